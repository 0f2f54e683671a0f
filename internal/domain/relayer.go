package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Call is one contract call inside a meta-transaction batch.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// MetaTransactionBatch is an ordered list of calls executed atomically by the
// smart wallet through the relayer. Batches are built per operation and
// never persisted.
type MetaTransactionBatch struct {
	Calls []Call
}

// Len returns the number of calls in the batch.
func (b MetaTransactionBatch) Len() int { return len(b.Calls) }

// Empty reports whether the batch has no calls.
func (b MetaTransactionBatch) Empty() bool { return len(b.Calls) == 0 }

// RelayerState is the lifecycle state of a relayer job.
type RelayerState string

const (
	RelayerStatePending   RelayerState = "PENDING"
	RelayerStateMined     RelayerState = "MINED"
	RelayerStateConfirmed RelayerState = "CONFIRMED"
	RelayerStateFailed    RelayerState = "FAILED"
)

// RelayerSuccessStates are the states treated as settled.
var RelayerSuccessStates = []RelayerState{RelayerStateMined, RelayerStateConfirmed}

// RelayerJob is the relayer's handle for a submitted batch.
type RelayerJob struct {
	TransactionID   string       `json:"transactionId"`
	State           RelayerState `json:"state"`
	TransactionHash string       `json:"transactionHash,omitempty"`
}

// TerminalResult is returned when a job reaches one of the requested success
// states.
type TerminalResult struct {
	TransactionID   string       `json:"transactionId"`
	State           RelayerState `json:"state"`
	TransactionHash string       `json:"transactionHash"`
	Attempts        int          `json:"attempts"`
}
