package model

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/Permutize/smart-accounts/batch"
)

// Operation is the JSON form of one batch operation.
type Operation struct {
	// Target is a 0x-prefixed 20-byte hex address.
	Target string `json:"target"`

	// Value is a non-negative decimal amount of native units; empty means 0.
	Value string `json:"value,omitempty"`

	// Payload is 0x-prefixed hex call data; empty means none.
	Payload string `json:"payload,omitempty"`
}

// Batch is the JSON form of a batch, as fed to the CLI.
type Batch struct {
	Nonce uint64 `json:"nonce"`

	// Deadline is the absolute expiry in unix seconds.
	Deadline uint64 `json:"deadline"`

	Operations []Operation `json:"operations"`
}

// Compile translates the JSON form into a canonical batch.
func (b Batch) Compile() (batch.Batch, error) {
	ops := make([]batch.Operation, 0, len(b.Operations))
	for i, op := range b.Operations {
		compiled, err := op.compile()
		if err != nil {
			return batch.Batch{}, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, compiled)
	}
	return batch.NewBatch(b.Nonce, b.Deadline, ops)
}

func (op Operation) compile() (batch.Operation, error) {
	target, err := batch.HexToAddress(op.Target)
	if err != nil {
		return batch.Operation{}, err
	}
	value := new(big.Int)
	if strings.TrimSpace(op.Value) != "" {
		if _, ok := value.SetString(strings.TrimSpace(op.Value), 10); !ok {
			return batch.Operation{}, fmt.Errorf("invalid decimal value %q", op.Value)
		}
	}
	var payload []byte
	if s := strings.TrimPrefix(strings.TrimSpace(op.Payload), "0x"); s != "" {
		payload, err = hex.DecodeString(s)
		if err != nil {
			return batch.Operation{}, fmt.Errorf("invalid payload hex: %w", err)
		}
	}
	return batch.NewOperation(target, value, payload)
}

// FromBatch projects a canonical batch into its JSON form.
func FromBatch(b batch.Batch) Batch {
	out := Batch{
		Nonce:      b.Nonce(),
		Deadline:   b.Deadline(),
		Operations: make([]Operation, 0, b.Len()),
	}
	for _, op := range b.Operations() {
		proj := Operation{Target: op.Target().String()}
		if op.Value().Sign() > 0 {
			proj.Value = op.Value().String()
		}
		if payload := op.Payload(); len(payload) > 0 {
			proj.Payload = "0x" + hex.EncodeToString(payload)
		}
		out.Operations = append(out.Operations, proj)
	}
	return out
}
