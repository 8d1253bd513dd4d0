// Package batch defines the shared account-abstraction types: addresses,
// operations, batches, and the canonical digest scheme that identifies a
// batch.
//
// Canonical identity (structural batch hashing and the domain-separated
// signing digest) lives here so a signer can reproduce, off-engine and
// bit-for-bit, exactly what they approve before signing. The binary encoding
// in encode.go is the single wire form accepted by the RPC layer; hashing,
// signing, and submission all flow through it.
package batch
