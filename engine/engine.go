package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/keys"
	"github.com/Permutize/smart-accounts/nonce"
	"github.com/Permutize/smart-accounts/policy"
)

// SimulationCaller is the sentinel off-path caller marker. SimulateBatch is
// reachable only through it, so genuine execution can never take the relaxed
// path.
var SimulationCaller = batch.ZeroAddress

// Config assembles an Engine. Account, Ledger, and Nonces are required.
type Config struct {
	// Account is the account's own identity. It is also the principal
	// whose signature authorizes batches and the administrator for
	// withdrawals: one controlling key per account.
	Account batch.Address

	// Domain binds signatures to this deployment instance. Domain.Account
	// is forced to Account.
	Domain batch.Domain

	Ledger Ledger
	Nonces *nonce.Registry

	// Hook is the pre-execution admission check; nil means the no-op base.
	Hook policy.Hook

	// Now is the engine clock; nil means time.Now. Injected for tests.
	Now func() time.Time

	// Sink receives emitted records; nil drops them.
	Sink RecordSink
}

// Engine executes authorized batches for exactly one account.
type Engine struct {
	account batch.Address
	domain  batch.Domain
	ledger  Ledger
	nonces  *nonce.Registry
	hook    policy.Hook
	now     func() time.Time
	sink    RecordSink

	// Scoped reentrancy guard over the execution entry points.
	guardMu sync.Mutex
	busy    bool
}

// New validates cfg and constructs the engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Account.IsZero() {
		return nil, fmt.Errorf("engine requires a non-zero account identity")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("engine requires a ledger")
	}
	if cfg.Nonces == nil {
		return nil, fmt.Errorf("engine requires a nonce registry")
	}
	hook := cfg.Hook
	if hook == nil {
		hook = policy.NoopHook{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	domain := cfg.Domain
	domain.Account = cfg.Account
	return &Engine{
		account: cfg.Account,
		domain:  domain,
		ledger:  cfg.Ledger,
		nonces:  cfg.Nonces,
		hook:    hook,
		now:     now,
		sink:    cfg.Sink,
	}, nil
}

// Account returns the account identity the engine executes for.
func (e *Engine) Account() batch.Address { return e.account }

// Domain returns the deployment domain signatures are bound to.
func (e *Engine) Domain() batch.Domain { return e.domain }

// CurrentNonce returns the next-expected nonce for a principal. Read-only.
func (e *Engine) CurrentNonce(principal batch.Address) uint64 {
	return e.nonces.Peek(principal)
}

// BatchDigest returns the canonical digest identifying b.
func (e *Engine) BatchDigest(b batch.Batch) batch.Digest {
	return batch.BatchDigest(b)
}

// CheckSignature reports whether signature recovers the account's sole
// authorized signer for the given batch digest.
func (e *Engine) CheckSignature(digest batch.Digest, signature []byte) bool {
	signer, err := keys.RecoverSigner(e.domain.SigningDigest(digest), signature)
	if err != nil {
		return false
	}
	return signer == e.account
}

// enter acquires the scoped reentrancy guard. The release func must run on
// every exit path.
func (e *Engine) enter() (release func(), err error) {
	e.guardMu.Lock()
	if e.busy {
		e.guardMu.Unlock()
		return nil, errReentrantCall()
	}
	e.busy = true
	e.guardMu.Unlock()
	return func() {
		e.guardMu.Lock()
		e.busy = false
		e.guardMu.Unlock()
	}, nil
}
