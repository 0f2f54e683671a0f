package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyonboard/internal/crypto"
	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// BuilderSigner produces the POLY_BUILDER_* attribution headers for a
// request to the CLOB or the relayer.
type BuilderSigner interface {
	Headers(ctx context.Context, method, path, body string) (map[string]string, error)
}

// TokenSource supplies a bearer token for the remote signer. Implementations
// may refresh the token on every call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the token, or an error when it is empty.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("polymarket/builder: no bearer token configured")
	}
	return string(t), nil
}

// BuilderError is a failure to obtain builder headers from the remote signer.
// It matches domain.ErrBuilderAuth and deliberately hides the HTTP status of
// the signer's response, so a rejected bearer token is never mistaken for
// rejected trading credentials.
type BuilderError struct {
	Op  string
	Err error
}

func (e *BuilderError) Error() string {
	return "polymarket/builder: " + e.Op + ": " + e.Err.Error()
}

func (e *BuilderError) Unwrap() error { return domain.ErrBuilderAuth }

// RemoteBuilderSigner asks a remote signing service for builder headers so
// builder secrets never live in this process.
type RemoteBuilderSigner struct {
	url        string
	httpClient *http.Client
	tokens     TokenSource
}

// NewRemoteBuilderSigner creates a signer posting to url, authenticating with
// a fresh token from tokens on every call.
func NewRemoteBuilderSigner(url string, tokens TokenSource) *RemoteBuilderSigner {
	return &RemoteBuilderSigner{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokens:     tokens,
	}
}

type remoteSignRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   string `json:"body"`
}

// Headers posts {method, path, body} and returns the headers the service
// answers with.
func (s *RemoteBuilderSigner) Headers(ctx context.Context, method, path, body string) (map[string]string, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, &BuilderError{Op: "token", Err: err}
	}

	payload, err := json.Marshal(remoteSignRequest{Method: method, Path: path, Body: body})
	if err != nil {
		return nil, fmt.Errorf("polymarket/builder: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("polymarket/builder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	respBody, err := send(ctx, s.httpClient, nil, req)
	if err != nil {
		return nil, &BuilderError{Op: "remote sign", Err: err}
	}

	var headers map[string]string
	if err := json.Unmarshal(respBody, &headers); err != nil {
		return nil, &BuilderError{Op: "decode headers", Err: err}
	}
	if headers["POLY_BUILDER_SIGNATURE"] == "" {
		return nil, &BuilderError{Op: "remote sign", Err: errors.New("no signature in response")}
	}
	return headers, nil
}

// LocalBuilderSigner signs builder headers in-process. Only meant for
// development setups where builder credentials are configured locally.
type LocalBuilderSigner struct {
	auth *crypto.HMACAuth
}

// NewLocalBuilderSigner wraps a builder key triple.
func NewLocalBuilderSigner(auth *crypto.HMACAuth) *LocalBuilderSigner {
	return &LocalBuilderSigner{auth: auth}
}

// Headers signs locally; it never fails.
func (s *LocalBuilderSigner) Headers(_ context.Context, method, path, body string) (map[string]string, error) {
	return s.auth.BuilderHeaders(method, path, body), nil
}
