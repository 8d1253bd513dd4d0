package engine

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/token"
)

// CallHandler programs the behavior of one call target in a MemLedger.
type CallHandler func(from batch.Address, op batch.Operation) CallResult

// MemLedger is an in-memory Ledger: native balances, token ledgers that
// honor the standard transfer instruction, and programmable call targets.
// The daemon runs on it and tests script failure scenarios with it.
//
// All mutations are journaled; RevertTo undoes them in reverse order.
type MemLedger struct {
	mu       sync.Mutex
	native   map[batch.Address]*big.Int
	tokens   map[batch.Address]map[batch.Address]*big.Int
	handlers map[batch.Address]CallHandler
	journal  []func()
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		native:   make(map[batch.Address]*big.Int),
		tokens:   make(map[batch.Address]map[batch.Address]*big.Int),
		handlers: make(map[batch.Address]CallHandler),
	}
}

// SetNativeBalance replaces an identity's native balance (not journaled;
// setup only).
func (l *MemLedger) SetNativeBalance(addr batch.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.native[addr] = new(big.Int).Set(amount)
}

func (l *MemLedger) NativeBalance(addr batch.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.nativeOf(addr))
}

// RegisterToken installs a token ledger at the given target. Calls to the
// target whose payload decodes as a standard transfer move token balances.
func (l *MemLedger) RegisterToken(tok batch.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tokens[tok]; !ok {
		l.tokens[tok] = make(map[batch.Address]*big.Int)
	}
}

// SetTokenBalance replaces a holder's balance of a registered token (not
// journaled; setup only).
func (l *MemLedger) SetTokenBalance(tok, holder batch.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tokens[tok]; !ok {
		l.tokens[tok] = make(map[batch.Address]*big.Int)
	}
	l.tokens[tok][holder] = new(big.Int).Set(amount)
}

func (l *MemLedger) TokenBalance(tok, holder batch.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balances, ok := l.tokens[tok]; ok {
		if b, ok := balances[holder]; ok {
			return new(big.Int).Set(b)
		}
	}
	return new(big.Int)
}

// RegisterHandler installs a programmable call target. Handlers win over
// token ledgers at the same address.
func (l *MemLedger) RegisterHandler(target batch.Address, h CallHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[target] = h
}

func (l *MemLedger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

func (l *MemLedger) Commit(rev int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rev < 0 || rev > len(l.journal) {
		return
	}
	// The mutations stand; only their undo records are dropped.
	l.journal = l.journal[:rev]
}

func (l *MemLedger) RevertTo(rev int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rev < 0 || rev > len(l.journal) {
		return
	}
	for i := len(l.journal) - 1; i >= rev; i-- {
		l.journal[i]()
	}
	l.journal = l.journal[:rev]
}

func (l *MemLedger) Call(from batch.Address, op batch.Operation) CallResult {
	l.mu.Lock()
	handler, isHandler := l.handlers[op.Target()]
	l.mu.Unlock()

	// Move the attached value first; a failed value transfer fails the call.
	if op.Value().Sign() > 0 {
		if err := l.TransferNative(from, op.Target(), op.Value()); err != nil {
			return CallResult{OK: false, ReturnData: EncodeFailureReason(err.Error())}
		}
	}

	if isHandler {
		return handler(from, op)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if balances, ok := l.tokens[op.Target()]; ok {
		return l.tokenTransferLocked(balances, from, op.Payload())
	}

	// Unknown targets accept plain value sends and reject any payload.
	if len(op.Payload()) > 0 {
		return CallResult{OK: false}
	}
	return CallResult{OK: true}
}

func (l *MemLedger) tokenTransferLocked(balances map[batch.Address]*big.Int, from batch.Address, payload []byte) CallResult {
	xfer, err := token.DecodeTransfer(payload)
	if err != nil {
		return CallResult{OK: false, ReturnData: EncodeFailureReason("unknown token instruction")}
	}
	have := new(big.Int)
	if b, ok := balances[from]; ok {
		have.Set(b)
	}
	if have.Cmp(xfer.Amount) < 0 {
		return CallResult{OK: false, ReturnData: EncodeFailureReason("insufficient token balance")}
	}

	prevFrom := new(big.Int).Set(have)
	prevTo := new(big.Int)
	if b, ok := balances[xfer.Recipient]; ok {
		prevTo.Set(b)
	}
	balances[from] = new(big.Int).Sub(prevFrom, xfer.Amount)
	balances[xfer.Recipient] = new(big.Int).Add(prevTo, xfer.Amount)
	l.journal = append(l.journal, func() {
		balances[from] = prevFrom
		balances[xfer.Recipient] = prevTo
	})
	return CallResult{OK: true}
}

func (l *MemLedger) TransferNative(from, to batch.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	have := l.nativeOf(from)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient native balance: have %s, need %s", have, amount)
	}
	prevFrom := new(big.Int).Set(have)
	prevTo := new(big.Int).Set(l.nativeOf(to))
	l.native[from] = new(big.Int).Sub(prevFrom, amount)
	l.native[to] = new(big.Int).Add(prevTo, amount)
	l.journal = append(l.journal, func() {
		l.native[from] = prevFrom
		l.native[to] = prevTo
	})
	return nil
}

// nativeOf returns the live balance entry value; callers hold l.mu.
func (l *MemLedger) nativeOf(addr batch.Address) *big.Int {
	if b, ok := l.native[addr]; ok {
		return b
	}
	return new(big.Int)
}
