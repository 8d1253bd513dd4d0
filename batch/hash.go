package batch

import (
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// Structural hashing tags. Each hashed structure carries its own tag so a
// digest of one structure can never collide with a digest of another.
var (
	// OperationTag prefixes every per-operation hash.
	OperationTag = sum256([]byte("permutize/smart-accounts/operation/v1"))

	// BatchTag prefixes every batch hash.
	BatchTag = sum256([]byte("permutize/smart-accounts/batch/v1"))

	// DomainTag prefixes the domain-separated signing digest.
	DomainTag = sum256([]byte("permutize/smart-accounts/domain/v1"))
)

func sum256(b []byte) Digest {
	return Digest(sha3.Sum256(b))
}

// u64be returns the 8-byte big-endian encoding of v.
func u64be(v uint64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], v)
	return out[:]
}

// bigTo32 returns the 32-byte big-endian encoding of a non-negative big.Int.
// Operation construction bounds values to 256 bits, so the value always fits.
func bigTo32(v *big.Int) []byte {
	var out [32]byte
	if v == nil || v.Sign() <= 0 {
		return out[:]
	}
	v.FillBytes(out[:])
	return out[:]
}

// OperationDigest returns the canonical per-operation hash:
//
//	H(OperationTag || target || value || H(payload))
//
// The payload is hashed rather than inlined so operation hashes are fixed
// width regardless of payload size.
func OperationDigest(op Operation) Digest {
	payloadHash := sha3.Sum256(op.payload)

	h := sha3.New256()
	h.Write(OperationTag[:])
	h.Write(op.target[:])
	h.Write(bigTo32(op.value))
	h.Write(payloadHash[:])

	var d Digest
	h.Sum(d[:0])
	return d
}

// BatchDigest returns the canonical digest uniquely identifying a batch's
// content and order:
//
//	H(BatchTag || nonce || deadline || H(opHash_0 || ... || opHash_n-1))
//
// It is a pure function of (nonce, deadline, operations): stable under
// repeated computation, and any field change or reordering of operations
// produces a different digest.
func BatchDigest(b Batch) Digest {
	ops := sha3.New256()
	for _, op := range b.ops {
		od := OperationDigest(op)
		ops.Write(od[:])
	}
	var opsHash Digest
	ops.Sum(opsHash[:0])

	h := sha3.New256()
	h.Write(BatchTag[:])
	h.Write(u64be(b.nonce))
	h.Write(u64be(b.deadline))
	h.Write(opsHash[:])

	var d Digest
	h.Sum(d[:0])
	return d
}
