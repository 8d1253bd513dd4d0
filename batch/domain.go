package batch

import (
	"golang.org/x/crypto/sha3"
)

// Domain binds signatures to one specific deployment instance. A signature
// produced for one {name, version, chain, account} tuple verifies nowhere
// else, blocking cross-instance and cross-network replay.
type Domain struct {
	// Name of the deployed system, e.g. "smart-accounts".
	Name string

	// Version of the signing scheme.
	Version string

	// ChainID identifies the network instance.
	ChainID uint64

	// Account is the verifying identity: the account the signature
	// authorizes action on.
	Account Address
}

// Separator returns the domain separator hash:
//
//	H(DomainTag || H(name) || H(version) || chainID || account)
func (d Domain) Separator() Digest {
	nameHash := sha3.Sum256([]byte(d.Name))
	versionHash := sha3.Sum256([]byte(d.Version))

	h := sha3.New256()
	h.Write(DomainTag[:])
	h.Write(nameHash[:])
	h.Write(versionHash[:])
	h.Write(u64be(d.ChainID))
	h.Write(d.Account[:])

	var out Digest
	h.Sum(out[:0])
	return out
}

// SigningDigest is the domain-separated transform of a batch digest; it is
// the exact value a principal signs:
//
//	H(separator || batchDigest)
func (d Domain) SigningDigest(batchDigest Digest) Digest {
	sep := d.Separator()

	h := sha3.New256()
	h.Write(sep[:])
	h.Write(batchDigest[:])

	var out Digest
	h.Sum(out[:0])
	return out
}
