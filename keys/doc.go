// Package keys implements signer identities and detached signature
// envelopes for batch authorization.
//
// A signature envelope carries the algorithm, the signer's public key, and
// the raw signature over a domain-separated signing digest. Verification
// "recovers" the signer: if the embedded key verifies the signature, the
// signer identity is the address derived from that key; otherwise no signer
// is recovered.
//
// Supported algorithms: ed25519 and dilithium3 (post-quantum).
package keys
