package batch

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// AddressSize is the byte length of an account identity.
const AddressSize = 20

// Address identifies an account, a call target, or a token.
type Address [AddressSize]byte

// ZeroAddress is the all-zero address. It doubles as the simulation sentinel
// caller and the native asset identifier.
var ZeroAddress = Address{}

// HexToAddress parses a 0x-prefixed (or bare) 40-hex-char address.
func HexToAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address hex: %w", err)
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// MustHexToAddress is HexToAddress that panics on malformed input.
// Intended for fixed addresses in tests and tooling.
func MustHexToAddress(s string) Address {
	a, err := HexToAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// BytesToAddress returns the address formed by the last AddressSize bytes of b.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressSize {
		b = b[len(b)-AddressSize:]
	}
	copy(a[AddressSize-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return append([]byte(nil), a[:]...) }

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// DigestSize is the byte length of a canonical digest.
const DigestSize = 32

// Digest is a 256-bit canonical hash value.
type Digest [DigestSize]byte

func (d Digest) Bytes() []byte { return append([]byte(nil), d[:]...) }

func (d Digest) String() string { return "0x" + hex.EncodeToString(d[:]) }

// Operation is one target-invocation unit within a batch: invoke Target with
// Value native units and the opaque Payload. Immutable once constructed;
// accessors copy.
type Operation struct {
	target  Address
	value   *big.Int
	payload []byte
}

// NewOperation constructs an Operation. A nil value is treated as zero;
// negative values and values wider than 256 bits are rejected.
func NewOperation(target Address, value *big.Int, payload []byte) (Operation, error) {
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return Operation{}, fmt.Errorf("operation value must be non-negative, got %s", value)
	}
	if value.BitLen() > 256 {
		return Operation{}, fmt.Errorf("operation value exceeds 256 bits")
	}
	return Operation{
		target:  target,
		value:   new(big.Int).Set(value),
		payload: append([]byte(nil), payload...),
	}, nil
}

// MustNewOperation is NewOperation that panics on invalid input.
func MustNewOperation(target Address, value *big.Int, payload []byte) Operation {
	op, err := NewOperation(target, value, payload)
	if err != nil {
		panic(err)
	}
	return op
}

func (op Operation) Target() Address { return op.target }

func (op Operation) Value() *big.Int {
	if op.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(op.value)
}

func (op Operation) Payload() []byte { return append([]byte(nil), op.payload...) }

// Equal reports structural equality of two operations.
func (op Operation) Equal(other Operation) bool {
	return op.target == other.target &&
		op.Value().Cmp(other.Value()) == 0 &&
		bytes.Equal(op.payload, other.payload)
}

// Batch is an ordered, non-empty set of operations bound to a nonce and an
// absolute deadline (unix seconds). A batch is identified by its canonical
// digest; any field change or operation reordering changes that digest.
type Batch struct {
	nonce    uint64
	deadline uint64
	ops      []Operation
}

// NewBatch constructs a Batch. The operation slice is copied; it must be
// non-empty.
func NewBatch(nonce, deadline uint64, ops []Operation) (Batch, error) {
	if len(ops) == 0 {
		return Batch{}, fmt.Errorf("batch requires at least one operation")
	}
	return Batch{
		nonce:    nonce,
		deadline: deadline,
		ops:      append([]Operation(nil), ops...),
	}, nil
}

// MustNewBatch is NewBatch that panics on invalid input.
func MustNewBatch(nonce, deadline uint64, ops []Operation) Batch {
	b, err := NewBatch(nonce, deadline, ops)
	if err != nil {
		panic(err)
	}
	return b
}

func (b Batch) Nonce() uint64 { return b.nonce }

// Deadline is the absolute expiry time in unix seconds.
func (b Batch) Deadline() uint64 { return b.deadline }

// Len returns the number of operations.
func (b Batch) Len() int { return len(b.ops) }

// Operation returns the i-th operation.
func (b Batch) Operation(i int) Operation { return b.ops[i] }

// Operations returns a copy of the ordered operation sequence.
func (b Batch) Operations() []Operation {
	return append([]Operation(nil), b.ops...)
}
