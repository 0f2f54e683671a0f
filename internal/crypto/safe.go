package crypto

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

// Safe operation codes.
const (
	OperationCall         uint8 = 0
	OperationDelegateCall uint8 = 1
)

var (
	// EIP712Domain(uint256 chainId,address verifyingContract)
	safeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(uint256 chainId,address verifyingContract)"),
	)

	safeTxTypeHash = ethcrypto.Keccak256(
		[]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"),
	)

	multiSendABI = func() abi.ABI {
		parsed, err := abi.JSON(strings.NewReader(
			`[{"inputs":[{"name":"transactions","type":"bytes"}],"name":"multiSend","outputs":[],"stateMutability":"payable","type":"function"}]`,
		))
		if err != nil {
			panic(fmt.Sprintf("crypto/safe: parse multiSend abi: %v", err))
		}
		return parsed
	}()
)

// SafeTx is the transaction a Safe executes on behalf of its owner. The
// relayer pays gas, so the gas and refund fields are always zero.
type SafeTx struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation uint8
	Nonce     *big.Int
}

// SafeAddress computes the counterfactual address of owner's Safe as created
// by factory. The salt is keccak256(abi.encode(owner)).
func SafeAddress(factory common.Address, initCodeHash common.Hash, owner common.Address) common.Address {
	var salt [32]byte
	copy(salt[:], ethcrypto.Keccak256(common.LeftPadBytes(owner.Bytes(), 32)))
	return ethcrypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// SafeTxHash returns the EIP-712 digest of tx for the Safe at safe.
func SafeTxHash(chainID int64, safe common.Address, tx SafeTx) []byte {
	domainSep := ethcrypto.Keccak256(concatBytes(
		safeDomainTypeHash,
		bigIntTo32Bytes(big.NewInt(chainID)),
		common.LeftPadBytes(safe.Bytes(), 32),
	))
	zero := make([]byte, 32)
	structHash := ethcrypto.Keccak256(concatBytes(
		safeTxTypeHash,
		common.LeftPadBytes(tx.To.Bytes(), 32),
		bigIntTo32Bytes(tx.Value),
		ethcrypto.Keccak256(tx.Data),
		bigIntTo32Bytes(big.NewInt(int64(tx.Operation))),
		zero, // safeTxGas
		zero, // baseGas
		zero, // gasPrice
		zero, // gasToken
		zero, // refundReceiver
		bigIntTo32Bytes(tx.Nonce),
	))
	return eip712Hash(domainSep, structHash)
}

// BuildSafeTx turns a batch into a single SafeTx. One call is executed
// directly; several are packed into a MultiSend delegatecall.
func BuildSafeTx(batch domain.MetaTransactionBatch, multisend common.Address, nonce *big.Int) (SafeTx, error) {
	switch batch.Len() {
	case 0:
		return SafeTx{}, domain.ErrEmptyBatch
	case 1:
		c := batch.Calls[0]
		return SafeTx{To: c.To, Value: valueOrZero(c.Value), Data: c.Data, Operation: OperationCall, Nonce: nonce}, nil
	}

	data, err := EncodeMultiSend(batch.Calls)
	if err != nil {
		return SafeTx{}, err
	}
	return SafeTx{
		To:        multisend,
		Value:     new(big.Int),
		Data:      data,
		Operation: OperationDelegateCall,
		Nonce:     nonce,
	}, nil
}

// EncodeMultiSend packs calls as
// operation(1) || to(20) || value(32) || len(32) || data
// per call and wraps the result in multiSend(bytes).
func EncodeMultiSend(calls []domain.Call) ([]byte, error) {
	var packed []byte
	for _, c := range calls {
		packed = append(packed, OperationCall)
		packed = append(packed, c.To.Bytes()...)
		packed = append(packed, bigIntTo32Bytes(valueOrZero(c.Value))...)
		packed = append(packed, bigIntTo32Bytes(big.NewInt(int64(len(c.Data))))...)
		packed = append(packed, c.Data...)
	}
	data, err := multiSendABI.Pack("multiSend", packed)
	if err != nil {
		return nil, fmt.Errorf("crypto/safe: pack multiSend: %w", err)
	}
	return data, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
