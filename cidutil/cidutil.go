// Package cidutil renders canonical digests and batch encodings as
// IPFS-compatible CIDs for records, logs, and tooling output.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/Permutize/smart-accounts/batch"
)

// DigestCID returns a CIDv1 string wrapping an already-computed 256-bit
// canonical digest (raw codec, sha3-256 multihash). The digest bytes are
// encoded as-is; nothing is re-hashed, so the CID names exactly the batch
// the digest identifies.
func DigestCID(d batch.Digest) string {
	mh, err := multihash.Encode(d.Bytes(), multihash.SHA3_256)
	if err != nil {
		// Encode only errors on unknown codes; SHA3_256 is registered.
		return ""
	}
	return cid.NewCidV1(cid.Raw, mh).String()
}

// BatchCID returns the CIDv1 string for a batch via its canonical digest.
func BatchCID(b batch.Batch) string {
	return DigestCID(batch.BatchDigest(b))
}

// ParseDigestCID parses a CID produced by DigestCID back into a digest.
func ParseDigestCID(s string) (batch.Digest, error) {
	var d batch.Digest
	c, err := cid.Decode(s)
	if err != nil {
		return d, err
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return d, err
	}
	if dec.Code != multihash.SHA3_256 || dec.Length != batch.DigestSize {
		return d, fmt.Errorf("cid %s does not carry a sha3-256 batch digest", s)
	}
	copy(d[:], dec.Digest)
	return d, nil
}
