package engine

import (
	"errors"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/keys"
	"github.com/Permutize/smart-accounts/nonce"
)

// ExecuteDirect executes operations under the account's own authority: the
// caller must be the account identity itself. Operations run atomically in
// order; any failure aborts and rolls back the whole set.
func (e *Engine) ExecuteDirect(caller batch.Address, ops []batch.Operation) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	if caller != e.account {
		return errUnauthorizedCaller(caller)
	}
	if len(ops) == 0 {
		return errEmptyBatch()
	}
	if err := e.hook.ValidateDirect(caller, ops); err != nil {
		return errPolicyRejected(err)
	}

	rev := e.ledger.Snapshot()
	for i, op := range ops {
		res := e.ledger.Call(e.account, op)
		if !res.OK {
			e.ledger.RevertTo(rev)
			return errOperationFailed(&OperationError{Index: i, Reason: decodeFailureReason(res.ReturnData)})
		}
	}
	e.ledger.Commit(rev)
	return nil
}

// ExecuteSigned executes a relayed batch authorized by a detached signature
// from the account's controlling key. Callable by anyone: authorization
// comes from the signature, not the submitter.
//
// Gate order: shape, deadline, policy hook, checked nonce consume, signature
// recovery, then atomic in-order execution. Abort at any gate rolls back
// every state change, including the consumed nonce.
func (e *Engine) ExecuteSigned(b batch.Batch, signature []byte) (ExecutionRecord, error) {
	release, err := e.enter()
	if err != nil {
		return ExecutionRecord{}, err
	}
	defer release()
	return e.run(b, signature, false)
}

// SimulateBatch previews a batch best-effort. It is reachable only through
// the sentinel SimulationCaller, runs the same gates as ExecuteSigned, but
// swallows nonce and signature mismatches and ignores individual operation
// failures instead of aborting. All state, nonce included, is reverted
// before returning: simulation never commits anything.
func (e *Engine) SimulateBatch(caller batch.Address, b batch.Batch, signature []byte) (ExecutionRecord, error) {
	release, err := e.enter()
	if err != nil {
		return ExecutionRecord{}, err
	}
	defer release()

	if caller != SimulationCaller {
		return ExecutionRecord{}, errSimulationNotAllowed(caller)
	}
	return e.run(b, signature, true)
}

// run is the shared core of the strict and simulation paths; simulate flags
// every relaxed branch explicitly.
func (e *Engine) run(b batch.Batch, signature []byte, simulate bool) (ExecutionRecord, error) {
	if b.Len() == 0 {
		return ExecutionRecord{}, errEmptyBatch()
	}
	now := uint64(e.now().Unix())
	if b.Deadline() <= now {
		return ExecutionRecord{}, errExpiredDeadline(b.Deadline(), now)
	}
	if err := e.hook.ValidateSigned(b); err != nil {
		return ExecutionRecord{}, errPolicyRejected(err)
	}

	ledgerRev := e.ledger.Snapshot()
	nonceRev := e.nonces.Snapshot()
	abort := func() {
		e.ledger.RevertTo(ledgerRev)
		e.nonces.RevertTo(nonceRev)
	}

	if err := e.nonces.ConsumeChecked(e.account, e.account, b.Nonce()); err != nil {
		var nerr *nonce.NonceError
		if !errors.As(err, &nerr) {
			abort()
			return ExecutionRecord{}, err
		}
		// Simulation swallows the mismatch and previews anyway.
		if !simulate {
			abort()
			return ExecutionRecord{}, errInvalidNonce(nerr)
		}
	}

	digest := batch.BatchDigest(b)
	signer, err := keys.RecoverSigner(e.domain.SigningDigest(digest), signature)
	if err != nil || signer != e.account {
		if !simulate {
			abort()
			if err == nil {
				err = errors.New("recovered signer is not the authorized signer")
			}
			return ExecutionRecord{}, errInvalidSignature(err)
		}
		// Simulation swallows the signature failure.
	}

	for i, op := range b.Operations() {
		res := e.ledger.Call(e.account, op)
		if !res.OK {
			if simulate {
				// Best-effort preview: keep going past the failed operation.
				continue
			}
			abort()
			return ExecutionRecord{}, errOperationFailed(&OperationError{Index: i, Reason: decodeFailureReason(res.ReturnData)})
		}
	}

	if simulate {
		// Preview only: nothing survives, the nonce counter included.
		abort()
	} else {
		e.ledger.Commit(ledgerRev)
		e.nonces.Commit(nonceRev)
	}

	rec := ExecutionRecord{
		Principal: e.account,
		Nonce:     b.Nonce(),
		Digest:    digest,
		Simulated: simulate,
	}
	e.emitExecution(rec)
	return rec, nil
}
