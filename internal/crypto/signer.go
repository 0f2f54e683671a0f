package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// clobAuthMessage is the fixed statement signed to derive trading credentials.
const clobAuthMessage = "This message attests that I control the given wallet"

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	domainNameVersionChainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	domainWithContractTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// EIP712Domain(string name,uint256 chainId,address verifyingContract)
	domainNameChainContractTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,uint256 chainId,address verifyingContract)"),
	)

	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)

	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)

	createProxyTypeHash = ethcrypto.Keccak256(
		[]byte("CreateProxy(address paymentToken,uint256 payment,address paymentReceiver)"),
	)
)

// Signer holds the owner EOA key and produces every signature the engine
// needs: credential derivation, orders, Safe transactions and Safe creation.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
	authDomain []byte // cached ClobAuthDomain separator
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID (137 for Polygon mainnet, 80002 for Amoy testnet).
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return newSigner(pk, chainID), nil
}

func newSigner(pk *ecdsa.PrivateKey, chainID int64) *Signer {
	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}
	s.authDomain = ethcrypto.Keccak256(concatBytes(
		domainNameVersionChainTypeHash,
		ethcrypto.Keccak256([]byte("ClobAuthDomain")),
		ethcrypto.Keccak256([]byte("1")),
		bigIntTo32Bytes(big.NewInt(chainID)),
	))
	return s
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer was configured for.
func (s *Signer) ChainID() int64 {
	return s.chainID
}

// SignClobAuth signs the ClobAuth message used for L1 authentication. The
// same timestamp and nonce always produce the same signature, which is what
// makes credential derivation repeatable.
func (s *Signer) SignClobAuth(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(concatBytes(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(strconv.FormatInt(timestamp, 10))),
		bigIntTo32Bytes(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	))
	return s.signDigest(eip712Hash(s.authDomain, structHash))
}

// SignOrder signs an exchange Order struct. exchange is the verifying
// contract: the CTF exchange, or the neg-risk exchange for neg-risk markets.
func (s *Signer) SignOrder(o domain.SignedOrder, exchange common.Address) (string, error) {
	domainSep := ethcrypto.Keccak256(concatBytes(
		domainWithContractTypeHash,
		ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
		ethcrypto.Keccak256([]byte("1")),
		bigIntTo32Bytes(big.NewInt(s.chainID)),
		common.LeftPadBytes(exchange.Bytes(), 32),
	))
	return s.signDigest(eip712Hash(domainSep, OrderStructHash(o)))
}

// SignSafeTx signs a Safe transaction hash the way Safe expects an eth_sign
// signature: the hash is prefixed as a personal message and v is shifted by
// 4 so the contract knows which verification path to use.
func (s *Signer) SignSafeTx(tx SafeTx, safe common.Address) (string, error) {
	digest := SafeTxHash(s.chainID, safe, tx)
	prefixed := ethcrypto.Keccak256(
		[]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(digest))),
		digest,
	)
	sig, err := ethcrypto.Sign(prefixed, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing safe tx: %w", err)
	}
	sig[64] += 27 + 4
	return "0x" + hex.EncodeToString(sig), nil
}

// SignCreateProxy signs the Safe factory's CreateProxy message with zero
// payment, authorising a sponsored deployment of the owner's Safe.
func (s *Signer) SignCreateProxy(factory common.Address) (string, error) {
	domainSep := ethcrypto.Keccak256(concatBytes(
		domainNameChainContractTypeHash,
		ethcrypto.Keccak256([]byte("Polymarket Contract Proxy Factory")),
		bigIntTo32Bytes(big.NewInt(s.chainID)),
		common.LeftPadBytes(factory.Bytes(), 32),
	))
	structHash := ethcrypto.Keccak256(concatBytes(
		createProxyTypeHash,
		make([]byte, 32), // paymentToken
		make([]byte, 32), // payment
		make([]byte, 32), // paymentReceiver
	))
	return s.signDigest(eip712Hash(domainSep, structHash))
}

// OrderStructHash encodes and hashes an order according to EIP-712.
func OrderStructHash(o domain.SignedOrder) []byte {
	return ethcrypto.Keccak256(concatBytes(
		orderTypeHash,
		bigIntTo32Bytes(big.NewInt(o.Salt)),
		common.LeftPadBytes(o.Maker.Bytes(), 32),
		common.LeftPadBytes(o.Signer.Bytes(), 32),
		common.LeftPadBytes(o.Taker.Bytes(), 32),
		bigIntTo32Bytes(o.TokenID),
		bigIntTo32Bytes(o.MakerAmount),
		bigIntTo32Bytes(o.TakerAmount),
		bigIntTo32Bytes(o.Expiration),
		bigIntTo32Bytes(o.Nonce),
		bigIntTo32Bytes(o.FeeRateBps),
		bigIntTo32Bytes(big.NewInt(int64(o.SideIndex()))),
		bigIntTo32Bytes(big.NewInt(int64(o.SignatureType))),
	))
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n. A nil n
// encodes as zero.
func bigIntTo32Bytes(n *big.Int) []byte {
	padded := make([]byte, 32)
	if n == nil {
		return padded
	}
	b := n.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
