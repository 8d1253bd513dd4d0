// Package token implements the fee-token policy registry consulted before a
// signed batch is admitted, and the standard transfer instruction codec fee
// payments are expressed in.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Permutize/smart-accounts/batch"
)

var (
	// ErrNotAuthorized is returned on registry mutation by a non-administrator.
	ErrNotAuthorized = errors.New("caller is not the registry administrator")

	// ErrUnknownToken is returned for reads/mutations of an unregistered token.
	ErrUnknownToken = errors.New("token is not registered")

	// ErrTokenExists is returned when adding an already-registered token.
	ErrTokenExists = errors.New("token is already registered")
)

// Config is the fee policy for one token.
type Config struct {
	Decimals  uint8
	Enabled   bool
	MinAmount *big.Int
	MaxAmount *big.Int
}

func (c Config) validate() error {
	if c.MinAmount == nil || c.MaxAmount == nil {
		return errors.New("token config requires min and max amounts")
	}
	if c.MinAmount.Sign() < 0 {
		return errors.New("token min amount must be non-negative")
	}
	if c.MinAmount.Cmp(c.MaxAmount) > 0 {
		return fmt.Errorf("token min amount %s exceeds max %s", c.MinAmount, c.MaxAmount)
	}
	return nil
}

func (c Config) clone() Config {
	out := Config{Decimals: c.Decimals, Enabled: c.Enabled}
	if c.MinAmount != nil {
		out.MinAmount = new(big.Int).Set(c.MinAmount)
	}
	if c.MaxAmount != nil {
		out.MaxAmount = new(big.Int).Set(c.MaxAmount)
	}
	return out
}

// Registry is the administrator-gated token policy oracle: which tokens are
// accepted for fee payment, within which amount bounds, and where the fee
// must land.
type Registry struct {
	mu      sync.RWMutex
	admin   batch.Address
	feeSink batch.Address
	tokens  map[batch.Address]Config
}

// NewRegistry creates a registry administered by admin whose fee payments
// must be sent to feeSink.
func NewRegistry(admin, feeSink batch.Address) *Registry {
	return &Registry{
		admin:   admin,
		feeSink: feeSink,
		tokens:  make(map[batch.Address]Config),
	}
}

// FeeSink returns the identity fee payments must be addressed to.
func (r *Registry) FeeSink() batch.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeSink
}

// Add registers a new token with its policy.
func (r *Registry) Add(caller, tok batch.Address, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.admin {
		return ErrNotAuthorized
	}
	if _, ok := r.tokens[tok]; ok {
		return ErrTokenExists
	}
	r.tokens[tok] = cfg.clone()
	return nil
}

// Enable marks a registered token as accepted for fee payment.
func (r *Registry) Enable(caller, tok batch.Address) error {
	return r.setEnabled(caller, tok, true)
}

// Disable marks a registered token as not accepted. Its config is retained.
func (r *Registry) Disable(caller, tok batch.Address) error {
	return r.setEnabled(caller, tok, false)
}

func (r *Registry) setEnabled(caller, tok batch.Address, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.admin {
		return ErrNotAuthorized
	}
	cfg, ok := r.tokens[tok]
	if !ok {
		return ErrUnknownToken
	}
	cfg.Enabled = enabled
	r.tokens[tok] = cfg
	return nil
}

// Update replaces the amount bounds for a registered token.
func (r *Registry) Update(caller, tok batch.Address, minAmount, maxAmount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.admin {
		return ErrNotAuthorized
	}
	cfg, ok := r.tokens[tok]
	if !ok {
		return ErrUnknownToken
	}
	next := Config{Decimals: cfg.Decimals, Enabled: cfg.Enabled, MinAmount: minAmount, MaxAmount: maxAmount}
	if err := next.validate(); err != nil {
		return err
	}
	r.tokens[tok] = next.clone()
	return nil
}

// Remove deletes a token from the registry entirely.
func (r *Registry) Remove(caller, tok batch.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.admin {
		return ErrNotAuthorized
	}
	if _, ok := r.tokens[tok]; !ok {
		return ErrUnknownToken
	}
	delete(r.tokens, tok)
	return nil
}

// IsEnabled reports whether a token is registered and currently accepted.
func (r *Registry) IsEnabled(tok batch.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.tokens[tok]
	return ok && cfg.Enabled
}

// Lookup returns the policy for a registered token.
func (r *Registry) Lookup(tok batch.Address) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.tokens[tok]
	if !ok {
		return Config{}, false
	}
	return cfg.clone(), true
}
