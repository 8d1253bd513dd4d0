// Package policy defines the overridable pre-execution admission check the
// execution engine runs before touching any state.
//
// A Hook is a strategy selected at engine construction. The base hook admits
// everything; the fee hook additionally requires the first operation of a
// signed batch to pay a fee per an external token policy oracle.
package policy

import (
	"github.com/Permutize/smart-accounts/batch"
)

// Hook is the pre-execution admission check capability set.
type Hook interface {
	// ValidateDirect inspects a direct self-invocation before execution.
	ValidateDirect(caller batch.Address, ops []batch.Operation) error

	// ValidateSigned inspects a relayed signed batch before any state is
	// touched.
	ValidateSigned(b batch.Batch) error
}

// NoopHook admits every batch. It is the default hook and the ValidateDirect
// behavior of every shipped variant: direct self-invocation bypasses fee
// policy.
type NoopHook struct{}

func (NoopHook) ValidateDirect(batch.Address, []batch.Operation) error { return nil }

func (NoopHook) ValidateSigned(batch.Batch) error { return nil }
