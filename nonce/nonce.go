// Package nonce implements the per-principal monotonic counter registry that
// provides replay protection for signed batches.
//
// Counters start at 0, only ever advance by 1, and are never reset. The
// registry is the serialization point between competing submissions: two
// batches carrying the same nonce cannot both pass ConsumeChecked.
package nonce

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Permutize/smart-accounts/batch"
)

// ErrNotAuthorized is returned when a caller consumes a counter for another
// principal without being the registry administrator.
var ErrNotAuthorized = errors.New("caller is not the principal or the registry administrator")

// NonceError reports a checked consume against the wrong counter value.
// Expected is the counter's current value (the only nonce that would have
// been accepted); Got is the value the caller presented.
type NonceError struct {
	Principal batch.Address
	Expected  uint64
	Got       uint64
}

func (e *NonceError) Error() string {
	return fmt.Sprintf("invalid nonce for %s: expected %d, got %d", e.Principal, e.Expected, e.Got)
}

// Revision marks a point in the registry's mutation journal. It is the
// transactional boundary the execution engine reverts to when a call aborts,
// so a consumed nonce never survives a failed batch.
type Revision int

// Registry holds one monotonic counter per principal.
type Registry struct {
	mu       sync.Mutex
	admin    batch.Address
	counters map[batch.Address]uint64
	journal  []journalEntry
}

type journalEntry struct {
	principal batch.Address
	prev      uint64
}

// NewRegistry creates a registry administered by admin. The administrator
// may consume counters on behalf of other principals; everyone else only for
// themselves.
func NewRegistry(admin batch.Address) *Registry {
	return &Registry{
		admin:    admin,
		counters: make(map[batch.Address]uint64),
	}
}

// Admin returns the registry administrator.
func (r *Registry) Admin() batch.Address {
	return r.admin
}

// Peek returns the next-expected nonce for a principal without consuming it.
func (r *Registry) Peek(principal batch.Address) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[principal]
}

// Consume returns the principal's current counter value and advances it.
// caller must be the principal itself or the registry administrator.
func (r *Registry) Consume(caller, principal batch.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != principal && caller != r.admin {
		return 0, ErrNotAuthorized
	}
	return r.advance(principal), nil
}

// ConsumeChecked advances the principal's counter only if it currently
// equals expected; otherwise it fails with *NonceError and changes nothing.
func (r *Registry) ConsumeChecked(caller, principal batch.Address, expected uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != principal && caller != r.admin {
		return ErrNotAuthorized
	}
	current := r.counters[principal]
	if current != expected {
		return &NonceError{Principal: principal, Expected: current, Got: expected}
	}
	r.advance(principal)
	return nil
}

func (r *Registry) advance(principal batch.Address) uint64 {
	current := r.counters[principal]
	r.journal = append(r.journal, journalEntry{principal: principal, prev: current})
	r.counters[principal] = current + 1
	return current
}

// Snapshot marks the current journal position. Pair with exactly one Commit
// or RevertTo to bound an atomic unit of work.
func (r *Registry) Snapshot() Revision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Revision(len(r.journal))
}

// Commit seals every consume recorded since the given revision: the counters
// keep their values and the undo records are discarded, so the journal stays
// empty between completed units of work.
func (r *Registry) Commit(rev Revision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(rev) < 0 || int(rev) > len(r.journal) {
		return
	}
	r.journal = r.journal[:rev]
}

// RevertTo undoes every consume recorded since the given revision. Reverting
// is the only path by which a counter moves backwards, and it is only
// reachable inside an aborted unit of work.
func (r *Registry) RevertTo(rev Revision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(rev) < 0 || int(rev) > len(r.journal) {
		return
	}
	for i := len(r.journal) - 1; i >= int(rev); i-- {
		e := r.journal[i]
		r.counters[e.principal] = e.prev
	}
	r.journal = r.journal[:rev]
}
