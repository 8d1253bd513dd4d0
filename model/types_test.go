package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Permutize/smart-accounts/batch"
)

const sampleJSON = `{
  "nonce": 7,
  "deadline": 1900000000,
  "operations": [
    {"target": "0x00000000000000000000000000000000000000aa", "value": "250"},
    {"target": "0x00000000000000000000000000000000000000bb", "payload": "0xdeadbeef"}
  ]
}`

func TestBatch_CompileFromJSON(t *testing.T) {
	var in Batch
	if err := json.Unmarshal([]byte(sampleJSON), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	b, err := in.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if b.Nonce() != 7 || b.Deadline() != 1900000000 || b.Len() != 2 {
		t.Fatalf("compiled batch = nonce %d deadline %d len %d", b.Nonce(), b.Deadline(), b.Len())
	}

	first := b.Operation(0)
	if want := (batch.Address{19: 0xAA}); first.Target() != want {
		t.Fatalf("first target = %s", first.Target())
	}
	if first.Value().Int64() != 250 || len(first.Payload()) != 0 {
		t.Fatalf("first op = value %s payload %x", first.Value(), first.Payload())
	}

	second := b.Operation(1)
	if second.Value().Sign() != 0 {
		t.Fatalf("second op value = %s", second.Value())
	}
	if got := second.Payload(); len(got) != 4 || got[0] != 0xDE {
		t.Fatalf("second op payload = %x", got)
	}
}

func TestBatch_CompileRejections(t *testing.T) {
	deadline := uint64(1900000000)
	cases := []struct {
		name string
		in   Batch
		want string
	}{
		{
			"no operations",
			Batch{Nonce: 0, Deadline: deadline},
			"operation",
		},
		{
			"bad target",
			Batch{Deadline: deadline, Operations: []Operation{{Target: "0x1234"}}},
			"address",
		},
		{
			"bad value",
			Batch{Deadline: deadline, Operations: []Operation{{Target: strings.Repeat("00", 20), Value: "12x"}}},
			"value",
		},
		{
			"negative value",
			Batch{Deadline: deadline, Operations: []Operation{{Target: strings.Repeat("00", 20), Value: "-5"}}},
			"",
		},
		{
			"bad payload hex",
			Batch{Deadline: deadline, Operations: []Operation{{Target: strings.Repeat("00", 20), Payload: "0xzz"}}},
			"payload",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.in.Compile()
			if err == nil {
				t.Fatal("invalid batch compiled")
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestFromBatch_RoundTrip(t *testing.T) {
	var in Batch
	if err := json.Unmarshal([]byte(sampleJSON), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	compiled, err := in.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	back := FromBatch(compiled)
	recompiled, err := back.Compile()
	if err != nil {
		t.Fatalf("re-Compile: %v", err)
	}
	if batch.BatchDigest(recompiled) != batch.BatchDigest(compiled) {
		t.Fatal("projection does not round-trip to the same canonical batch")
	}

	// Zero value and empty payload are omitted from the projection.
	if back.Operations[1].Value != "" {
		t.Fatalf("zero value projected as %q", back.Operations[1].Value)
	}
	if back.Operations[0].Payload != "" {
		t.Fatalf("empty payload projected as %q", back.Operations[0].Payload)
	}
}
