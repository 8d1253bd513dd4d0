package engine

import (
	"math/big"

	"github.com/Permutize/smart-accounts/batch"
)

// ExecutionRecord is emitted on every completed signed execution or
// simulation.
type ExecutionRecord struct {
	Principal batch.Address
	Nonce     uint64
	Digest    batch.Digest
	Simulated bool
}

// WithdrawalRecord is emitted on every completed withdrawal.
type WithdrawalRecord struct {
	Destination batch.Address
	Asset       batch.Address
	Amount      *big.Int
}

// RecordSink receives emitted records. The engine retains no history beyond
// delivering them; a nil sink drops them.
type RecordSink interface {
	ExecutionCompleted(ExecutionRecord)
	WithdrawalCompleted(WithdrawalRecord)
}

func (e *Engine) emitExecution(rec ExecutionRecord) {
	if e.sink != nil {
		e.sink.ExecutionCompleted(rec)
	}
}

func (e *Engine) emitWithdrawal(rec WithdrawalRecord) {
	if e.sink != nil {
		e.sink.WithdrawalCompleted(rec)
	}
}
