package batch

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Canonical binary wire form.
//
// Every field is big-endian and length-prefixed; amounts use minimal
// big-endian bytes (zero encodes to length 0, no leading zero bytes are
// accepted). Decode rejects anything that is not the exact canonical
// encoding, so there is exactly one byte string per batch and the wire form
// can feed hashing and signing directly.
const (
	batchMagic    = "SAB1"
	envelopeMagic = "SAE1"

	// maxPayloadBytes bounds a single operation payload on decode.
	maxPayloadBytes = 1 << 20

	// maxOperations bounds the operation count on decode.
	maxOperations = 1 << 12
)

// Encode returns the canonical binary encoding of b.
func Encode(b Batch) []byte {
	out := make([]byte, 0, 64)
	out = append(out, batchMagic...)
	out = binary.BigEndian.AppendUint64(out, b.nonce)
	out = binary.BigEndian.AppendUint64(out, b.deadline)
	out = binary.BigEndian.AppendUint32(out, uint32(len(b.ops)))
	for _, op := range b.ops {
		out = append(out, op.target[:]...)
		val := minimalBig(op.value)
		out = append(out, byte(len(val)))
		out = append(out, val...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(op.payload)))
		out = append(out, op.payload...)
	}
	return out
}

// Decode parses the canonical binary encoding of a batch. It fails on bad
// magic, truncated input, trailing bytes, an empty operation sequence, and
// non-minimal amount encodings.
func Decode(data []byte) (Batch, error) {
	r := reader{data: data}
	if err := r.magic(batchMagic); err != nil {
		return Batch{}, err
	}
	nonce, err := r.u64("nonce")
	if err != nil {
		return Batch{}, err
	}
	deadline, err := r.u64("deadline")
	if err != nil {
		return Batch{}, err
	}
	count, err := r.u32("operation count")
	if err != nil {
		return Batch{}, err
	}
	if count == 0 {
		return Batch{}, fmt.Errorf("batch encoding has zero operations")
	}
	if count > maxOperations {
		return Batch{}, fmt.Errorf("batch encoding has %d operations, limit %d", count, maxOperations)
	}

	ops := make([]Operation, 0, count)
	for i := uint32(0); i < count; i++ {
		tgt, err := r.take(AddressSize, "target")
		if err != nil {
			return Batch{}, err
		}
		vlen, err := r.u8("value length")
		if err != nil {
			return Batch{}, err
		}
		if vlen > 32 {
			return Batch{}, fmt.Errorf("operation %d: value length %d exceeds 32", i, vlen)
		}
		vb, err := r.take(int(vlen), "value")
		if err != nil {
			return Batch{}, err
		}
		if len(vb) > 0 && vb[0] == 0 {
			return Batch{}, fmt.Errorf("operation %d: non-minimal value encoding", i)
		}
		plen, err := r.u32("payload length")
		if err != nil {
			return Batch{}, err
		}
		if plen > maxPayloadBytes {
			return Batch{}, fmt.Errorf("operation %d: payload length %d exceeds %d", i, plen, maxPayloadBytes)
		}
		payload, err := r.take(int(plen), "payload")
		if err != nil {
			return Batch{}, err
		}
		var target Address
		copy(target[:], tgt)
		ops = append(ops, Operation{
			target:  target,
			value:   new(big.Int).SetBytes(vb),
			payload: append([]byte(nil), payload...),
		})
	}
	if r.rest() != 0 {
		return Batch{}, fmt.Errorf("batch encoding has %d trailing bytes", r.rest())
	}
	return Batch{nonce: nonce, deadline: deadline, ops: ops}, nil
}

// Envelope pairs a batch with a detached signature, as submitted by a
// relayer.
type Envelope struct {
	Batch     Batch
	Signature []byte
}

// EncodeEnvelope returns the canonical binary encoding of a signed envelope.
func EncodeEnvelope(e Envelope) []byte {
	bb := Encode(e.Batch)
	out := make([]byte, 0, len(envelopeMagic)+8+len(bb)+len(e.Signature))
	out = append(out, envelopeMagic...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(bb)))
	out = append(out, bb...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(e.Signature)))
	out = append(out, e.Signature...)
	return out
}

// DecodeEnvelope parses the canonical binary encoding of a signed envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	r := reader{data: data}
	if err := r.magic(envelopeMagic); err != nil {
		return Envelope{}, err
	}
	blen, err := r.u32("batch length")
	if err != nil {
		return Envelope{}, err
	}
	bb, err := r.take(int(blen), "batch")
	if err != nil {
		return Envelope{}, err
	}
	b, err := Decode(bb)
	if err != nil {
		return Envelope{}, err
	}
	slen, err := r.u32("signature length")
	if err != nil {
		return Envelope{}, err
	}
	sig, err := r.take(int(slen), "signature")
	if err != nil {
		return Envelope{}, err
	}
	if r.rest() != 0 {
		return Envelope{}, fmt.Errorf("envelope encoding has %d trailing bytes", r.rest())
	}
	return Envelope{Batch: b, Signature: append([]byte(nil), sig...)}, nil
}

// minimalBig returns the minimal big-endian byte form of v (nil/zero -> empty).
func minimalBig(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return nil
	}
	return v.Bytes()
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) rest() int { return len(r.data) - r.off }

func (r *reader) take(n int, field string) ([]byte, error) {
	if r.rest() < n {
		return nil, fmt.Errorf("truncated encoding: %s needs %d bytes, %d remain", field, n, r.rest())
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) magic(want string) error {
	got, err := r.take(len(want), "magic")
	if err != nil {
		return err
	}
	if string(got) != want {
		return fmt.Errorf("bad magic %q, want %q", got, want)
	}
	return nil
}

func (r *reader) u8(field string) (uint8, error) {
	b, err := r.take(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u32(field string) (uint32, error) {
	b, err := r.take(4, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u64(field string) (uint64, error) {
	b, err := r.take(8, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}
