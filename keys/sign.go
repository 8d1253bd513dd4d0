package keys

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"github.com/Permutize/smart-accounts/batch"
)

// Envelope is a parsed detached signature: algorithm, signer public key, and
// the raw signature over a signing digest.
type Envelope struct {
	Alg       Alg
	PublicKey []byte
	Sig       []byte
}

// Encode returns the wire form: alg byte || pubkey || signature. Both
// trailing fields have fixed, algorithm-determined lengths, so the encoding
// is unambiguous.
func (e Envelope) Encode() []byte {
	out := make([]byte, 0, 1+len(e.PublicKey)+len(e.Sig))
	out = append(out, byte(e.Alg))
	out = append(out, e.PublicKey...)
	out = append(out, e.Sig...)
	return out
}

// DecodeEnvelope parses a detached signature envelope, enforcing exact
// algorithm-determined lengths.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return Envelope{}, fmt.Errorf("empty signature envelope")
	}
	alg := Alg(data[0])
	pubLen, err := alg.publicKeySize()
	if err != nil {
		return Envelope{}, err
	}
	sigLen, err := alg.signatureSize()
	if err != nil {
		return Envelope{}, err
	}
	if len(data) != 1+pubLen+sigLen {
		return Envelope{}, fmt.Errorf("%s envelope must be %d bytes, got %d", alg, 1+pubLen+sigLen, len(data))
	}
	return Envelope{
		Alg:       alg,
		PublicKey: append([]byte(nil), data[1:1+pubLen]...),
		Sig:       append([]byte(nil), data[1+pubLen:]...),
	}, nil
}

// SignEd25519 signs a 256-bit signing digest and returns the encoded
// envelope.
func SignEd25519(priv ed25519.PrivateKey, digest batch.Digest) []byte {
	pub := priv.Public().(ed25519.PublicKey)
	env := Envelope{
		Alg:       AlgEd25519,
		PublicKey: pub,
		Sig:       ed25519.Sign(priv, digest.Bytes()),
	}
	return env.Encode()
}

// SignDilithium3 signs a 256-bit signing digest and returns the encoded
// envelope.
func SignDilithium3(priv *mode3.PrivateKey, digest batch.Digest) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("missing private key")
	}
	pub := priv.Public().(*mode3.PublicKey)
	raw, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(priv, digest.Bytes(), sig)
	return Envelope{Alg: AlgDilithium3, PublicKey: raw, Sig: sig}.Encode(), nil
}

// RecoverSigner verifies an encoded envelope against a signing digest and
// returns the signer identity derived from the embedded public key. A
// malformed envelope or a failed verification recovers nobody.
func RecoverSigner(digest batch.Digest, signature []byte) (batch.Address, error) {
	env, err := DecodeEnvelope(signature)
	if err != nil {
		return batch.Address{}, err
	}
	switch env.Alg {
	case AlgEd25519:
		if !ed25519.Verify(ed25519.PublicKey(env.PublicKey), digest.Bytes(), env.Sig) {
			return batch.Address{}, fmt.Errorf("ed25519 signature invalid")
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(env.PublicKey); err != nil {
			return batch.Address{}, fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		if !mode3.Verify(&pk, digest.Bytes(), env.Sig) {
			return batch.Address{}, fmt.Errorf("dilithium3 signature invalid")
		}
	default:
		return batch.Address{}, fmt.Errorf("unsupported signature algorithm %d", byte(env.Alg))
	}
	return AddressFromPublicKey(env.Alg, env.PublicKey)
}
