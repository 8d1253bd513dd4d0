package policy

import (
	"errors"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/token"
)

// ErrInvalidFeeCall is the single undifferentiated rejection for a signed
// batch whose first operation is not a qualifying fee payment. The check
// deliberately does not say which sub-condition failed: the relayer built
// the batch and can self-diagnose off-engine.
var ErrInvalidFeeCall = errors.New("first operation is not a valid fee call")

// TokenPolicyOracle is the read surface the fee hook consults. *token.Registry
// implements it.
type TokenPolicyOracle interface {
	IsEnabled(tok batch.Address) bool
	Lookup(tok batch.Address) (token.Config, bool)
	FeeSink() batch.Address
}

// FeeHook enforces a fee-payment precondition on signed batches: the first
// operation must be a standard transfer of an enabled token, addressed to
// the oracle's fee sink, with an amount inside the token's [min, max]
// bounds. Direct self-invocation keeps the no-op base check.
type FeeHook struct {
	NoopHook
	oracle TokenPolicyOracle
}

// NewFeeHook binds a fee-enforcing hook to its oracle. The binding is
// immutable for the hook's lifetime.
func NewFeeHook(oracle TokenPolicyOracle) *FeeHook {
	if oracle == nil {
		panic("policy: fee hook requires a token policy oracle")
	}
	return &FeeHook{oracle: oracle}
}

func (h *FeeHook) ValidateSigned(b batch.Batch) error {
	if b.Len() == 0 {
		return ErrInvalidFeeCall
	}
	first := b.Operation(0)

	tok := first.Target()
	if !h.oracle.IsEnabled(tok) {
		return ErrInvalidFeeCall
	}
	cfg, ok := h.oracle.Lookup(tok)
	if !ok {
		return ErrInvalidFeeCall
	}
	xfer, err := token.DecodeTransfer(first.Payload())
	if err != nil {
		return ErrInvalidFeeCall
	}
	if xfer.Recipient != h.oracle.FeeSink() {
		return ErrInvalidFeeCall
	}
	if xfer.Amount.Cmp(cfg.MinAmount) < 0 || xfer.Amount.Cmp(cfg.MaxAmount) > 0 {
		return ErrInvalidFeeCall
	}
	return nil
}
