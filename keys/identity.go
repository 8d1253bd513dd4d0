package keys

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"github.com/Permutize/smart-accounts/batch"
)

// Alg identifies a signature algorithm inside an envelope.
type Alg byte

const (
	AlgEd25519    Alg = 1
	AlgDilithium3 Alg = 2
)

func (a Alg) String() string {
	switch a {
	case AlgEd25519:
		return "ed25519"
	case AlgDilithium3:
		return "dilithium3"
	default:
		return fmt.Sprintf("alg(%d)", byte(a))
	}
}

// publicKeySize returns the raw public key length for an algorithm.
func (a Alg) publicKeySize() (int, error) {
	switch a {
	case AlgEd25519:
		return ed25519.PublicKeySize, nil
	case AlgDilithium3:
		return mode3.PublicKeySize, nil
	default:
		return 0, fmt.Errorf("unsupported signature algorithm %d", byte(a))
	}
}

// signatureSize returns the raw signature length for an algorithm.
func (a Alg) signatureSize() (int, error) {
	switch a {
	case AlgEd25519:
		return ed25519.SignatureSize, nil
	case AlgDilithium3:
		return mode3.SignatureSize, nil
	default:
		return 0, fmt.Errorf("unsupported signature algorithm %d", byte(a))
	}
}

// AddressFromPublicKey derives the signer identity for a raw public key:
// the last 20 bytes of sha3-256(alg-label || 0x00 || pubkey). Binding the
// algorithm label keeps an ed25519 key and a dilithium3 key with equal raw
// bytes from sharing an identity.
func AddressFromPublicKey(alg Alg, pub []byte) (batch.Address, error) {
	want, err := alg.publicKeySize()
	if err != nil {
		return batch.Address{}, err
	}
	if len(pub) != want {
		return batch.Address{}, fmt.Errorf("%s public key must be %d bytes, got %d", alg, want, len(pub))
	}
	h := sha3.New256()
	h.Write([]byte(alg.String()))
	h.Write([]byte{0})
	h.Write(pub)
	return batch.BytesToAddress(h.Sum(nil)), nil
}

// AddressFromEd25519 derives the signer identity for an ed25519 public key.
func AddressFromEd25519(pub ed25519.PublicKey) batch.Address {
	addr, err := AddressFromPublicKey(AlgEd25519, pub)
	if err != nil {
		// Length is the only failure mode; ed25519.PublicKey carries it.
		return batch.Address{}
	}
	return addr
}

// AddressFromDilithium3 derives the signer identity for a dilithium3 public key.
func AddressFromDilithium3(pub *mode3.PublicKey) (batch.Address, error) {
	raw, err := pub.MarshalBinary()
	if err != nil {
		return batch.Address{}, err
	}
	return AddressFromPublicKey(AlgDilithium3, raw)
}
