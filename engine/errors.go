package engine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/nonce"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings;
// Error() text is for humans and may evolve.
type Kind string

const (
	KindStructural    Kind = "Structural"
	KindAuthorization Kind = "Authorization"
	KindTemporal      Kind = "Temporal"
	KindExecution     Kind = "Execution"
	KindTransfer      Kind = "Transfer"
	KindModeGuard     Kind = "ModeGuard"
)

// Error is the engine's structured error type.
//
// RuleID is a stable identifier (e.g. SA-AUTH-101) naming the violated
// gate. Every rejection carries one, so callers can branch on cause:
// re-quote on an expired deadline, abandon on an invalid signature.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// OperationError names the sub-operation that aborted a batch and the reason
// it surfaced. Reason is the target's decoded string reason when one was
// decodable, else a fixed placeholder, so it is always readable.
type OperationError struct {
	Index  int
	Reason string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d failed: %s", e.Index, e.Reason)
}

func errEmptyBatch() error {
	return newError(KindStructural, "SA-VAL-001", "batch has no operations")
}

func errInvalidAmount(amount *big.Int) error {
	return newError(KindStructural, "SA-VAL-002",
		fmt.Sprintf("amount %s must be non-negative and fit 256 bits", amount))
}

func errUnauthorizedCaller(caller batch.Address) error {
	return newError(KindAuthorization, "SA-AUTH-001", fmt.Sprintf("caller %s is not authorized", caller))
}

func errReentrantCall() error {
	return newError(KindAuthorization, "SA-AUTH-002", "reentrant call into a guarded entry point")
}

func errInvalidSignature(cause error) error {
	return wrapError(KindAuthorization, "SA-AUTH-101", "signature does not recover the authorized signer", cause)
}

func errInvalidNonce(cause *nonce.NonceError) error {
	return wrapError(KindAuthorization, "SA-AUTH-201",
		fmt.Sprintf("nonce mismatch: expected %d, got %d", cause.Expected, cause.Got), cause)
}

func errPolicyRejected(cause error) error {
	return wrapError(KindAuthorization, "SA-AUTH-301", "policy hook rejected the batch", cause)
}

func errExpiredDeadline(deadline, now uint64) error {
	return newError(KindTemporal, "SA-TIME-001",
		fmt.Sprintf("batch deadline %d is not in the future (now %d)", deadline, now))
}

func errOperationFailed(cause *OperationError) error {
	return wrapError(KindExecution, "SA-EXEC-001", cause.Error(), cause)
}

func errNativeTransferFailed(cause error) error {
	return wrapError(KindTransfer, "SA-XFER-001", "native asset transfer was rejected", cause)
}

func errSimulationNotAllowed(caller batch.Address) error {
	return newError(KindModeGuard, "SA-MODE-001",
		fmt.Sprintf("simulation requires the sentinel caller, got %s", caller))
}
