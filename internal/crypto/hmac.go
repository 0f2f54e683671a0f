package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// HMACAuth holds an API key triple used for HMAC-authenticated requests: the
// L2 trading credentials against the CLOB, or builder credentials for
// attribution headers.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret, base64 encoded
	Passphrase string // API passphrase
}

// FromCredentials wraps trading credentials for L2 signing.
func FromCredentials(c domain.TradingCredentials) *HMACAuth {
	return &HMACAuth{Key: c.Key, Secret: c.Secret, Passphrase: c.Passphrase}
}

// BuilderHeaders returns the POLY_BUILDER_* headers for a request, signing
// timestamp+method+path+body with the decoded secret.
func (h *HMACAuth) BuilderHeaders(method, path, body string) map[string]string {
	return h.BuilderHeadersAt(method, path, body, time.Now().Unix())
}

// BuilderHeadersAt is like BuilderHeaders with a caller-supplied timestamp.
func (h *HMACAuth) BuilderHeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"POLY_BUILDER_API_KEY":    h.Key,
		"POLY_BUILDER_TIMESTAMP":  ts,
		"POLY_BUILDER_PASSPHRASE": h.Passphrase,
		"POLY_BUILDER_SIGNATURE":  hmacSHA256Base64(decodeSecret(h.Secret), ts+method+path+body),
	}
}

// L2Headers returns the POLY_* headers for an authenticated CLOB request.
func (h *HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	return h.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is like L2Headers with a caller-supplied timestamp.
func (h *HMACAuth) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  hmacSHA256Base64(decodeSecret(h.Secret), ts+method+path+body),
	}
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}

// decodeSecret accepts both URL-safe and standard base64. An undecodable
// secret is used raw so the server rejects the request instead of us
// panicking.
func decodeSecret(secret string) []byte {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(secret); err == nil {
			return b
		}
	}
	return []byte(secret)
}

// hmacSHA256Base64 computes HMAC-SHA256 of message and returns it URL-safe
// base64 encoded, as the CLOB expects.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}
