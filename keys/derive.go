package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const kdfLabel = "permutize-smart-accounts-kms-lite-v1"

// NewSignerFromSeed returns the ed25519 private key for a 32-byte seed.
func NewSignerFromSeed(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// DeriveAccountSeed deterministically derives an account-specific ed25519
// seed from a root seed. One operator root can fan out to many account
// signers without storing each seed.
func DeriveAccountSeed(rootSeed []byte, account string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckKeyName(account); err != nil {
		return nil, err
	}

	h := sha3.New256()
	h.Write(rootSeed)
	h.Write([]byte{0})
	h.Write([]byte(kdfLabel))
	h.Write([]byte{0})
	h.Write([]byte("account:"))
	h.Write([]byte(account))
	sum := h.Sum(nil)

	out := make([]byte, ed25519.SeedSize)
	copy(out, sum[:ed25519.SeedSize])
	return out, nil
}

// ParseSeedHex parses a 64-hex-char (optionally 0x-prefixed) ed25519 seed.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid seed hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes (%d hex chars)", ed25519.SeedSize, ed25519.SeedSize*2)
	}
	return seed, nil
}
