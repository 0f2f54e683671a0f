// Package crypto holds the owner key and every signature scheme the
// onboarding engine uses: EIP-712 (credentials, orders, Safe creation), Safe
// transaction signing, CREATE2 address derivation and HMAC request auth.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keystoreVersion  = 2
)

// ErrOwnerMismatch is returned when a key resolves to a different address
// than the configured owner.
var ErrOwnerMismatch = errors.New("key does not belong to the configured owner")

// sealedOwnerKey is the on-disk owner keystore. Address is authenticated as
// GCM additional data, so a file whose address field was edited no longer
// opens.
type sealedOwnerKey struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig tells LoadSigner where the owner key comes from.
type KeyConfig struct {
	// RawPrivateKey is a hex key, with or without 0x. It wins over
	// EncryptedKeyPath.
	RawPrivateKey string

	// EncryptedKeyPath is a keystore written by SealOwnerKey, opened with
	// KeyPassword.
	EncryptedKeyPath string
	KeyPassword      string

	// Owner, when set, is the address the key must control. Onboarding
	// derives the Safe and the credential scope from it, so loading the
	// wrong key would silently onboard a different account.
	Owner string
}

// SealOwnerKey encrypts the owner key with password (PBKDF2-HMAC-SHA256 and
// AES-256-GCM) and returns the keystore JSON.
func SealOwnerKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto/keystore: password must not be empty")
	}
	pk, err := parseOwnerKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	owner := ethcrypto.PubkeyToAddress(pk.PublicKey)

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto/keystore: salt: %w", err)
	}
	gcm, err := keystoreCipher(password, salt, pbkdf2Iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto/keystore: nonce: %w", err)
	}

	plain := ethcrypto.FromECDSA(pk)
	defer clear(plain)

	return json.MarshalIndent(sealedOwnerKey{
		Version:    keystoreVersion,
		Address:    owner.Hex(),
		Iterations: pbkdf2Iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plain, owner.Bytes())),
	}, "", "  ")
}

// OpenOwnerKey decrypts a keystore written by SealOwnerKey and checks that
// the key controls the address recorded in it.
func OpenOwnerKey(sealed []byte, password string) (*ecdsa.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto/keystore: password must not be empty")
	}
	var ks sealedOwnerKey
	if err := json.Unmarshal(sealed, &ks); err != nil {
		return nil, fmt.Errorf("crypto/keystore: parse: %w", err)
	}
	if ks.Version != keystoreVersion {
		return nil, fmt.Errorf("crypto/keystore: unsupported version %d", ks.Version)
	}
	if !common.IsHexAddress(ks.Address) || ks.Iterations <= 0 {
		return nil, errors.New("crypto/keystore: malformed keystore")
	}
	owner := common.HexToAddress(ks.Address)

	salt, err := base64.StdEncoding.DecodeString(ks.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(ks.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ks.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: ciphertext: %w", err)
	}

	gcm, err := keystoreCipher(password, salt, ks.Iterations)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, owner.Bytes())
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: wrong password or tampered keystore: %w", err)
	}
	defer clear(plain)

	pk, err := ethcrypto.ToECDSA(plain)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: decrypted key: %w", err)
	}
	if ethcrypto.PubkeyToAddress(pk.PublicKey) != owner {
		return nil, fmt.Errorf("crypto/keystore: %s: %w", owner.Hex(), ErrOwnerMismatch)
	}
	return pk, nil
}

// LoadSigner resolves the owner key from cfg and builds a Signer for
// chainID. A raw key wins over a keystore file.
func LoadSigner(cfg KeyConfig, chainID int64) (*Signer, error) {
	var (
		pk  *ecdsa.PrivateKey
		err error
	)
	switch {
	case cfg.RawPrivateKey != "":
		pk, err = parseOwnerKey(cfg.RawPrivateKey)
	case cfg.EncryptedKeyPath != "":
		var sealed []byte
		if sealed, err = os.ReadFile(cfg.EncryptedKeyPath); err != nil {
			return nil, fmt.Errorf("crypto/keystore: read %s: %w", cfg.EncryptedKeyPath, err)
		}
		pk, err = OpenOwnerKey(sealed, cfg.KeyPassword)
	default:
		return nil, errors.New("crypto/keystore: no owner key configured (set a raw key or an encrypted key path)")
	}
	if err != nil {
		return nil, err
	}

	s := newSigner(pk, chainID)
	if cfg.Owner != "" && !strings.EqualFold(cfg.Owner, s.Address().Hex()) {
		return nil, fmt.Errorf("crypto/keystore: key controls %s, want %s: %w", s.Address().Hex(), cfg.Owner, ErrOwnerMismatch)
	}
	return s, nil
}

func parseOwnerKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: owner key is not hex: %w", err)
	}
	defer clear(raw)
	pk, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: owner key: %w", err)
	}
	return pk, nil
}

func keystoreCipher(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: gcm: %w", err)
	}
	return gcm, nil
}
