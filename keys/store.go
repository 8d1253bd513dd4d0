package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore is a simple local-first signer store for the CLI.
//
// Ed25519 seeds only, one hex seed file per named signer, 0600 private key
// files. This is tooling convenience, not part of the protocol core.
type KeyStore struct {
	Directory string
}

// DefaultDirectory returns ~/.smartacct/keys.
func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".smartacct", "keys"), nil
}

// OpenKeyStore opens a store rooted at directory, defaulting to
// DefaultDirectory when directory is empty.
func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

// CheckKeyName validates a signer name: [a-zA-Z0-9_-]+ only.
func CheckKeyName(name string) error {
	if name == "" {
		return errors.New("signer name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in signer name", char)
	}
	return nil
}

func (ks *KeyStore) seedPath(name string) string {
	return filepath.Join(ks.Directory, name+".key")
}

// Save stores a seed under name. It refuses to overwrite unless force is set.
func (ks *KeyStore) Save(name string, seed []byte, force bool) error {
	if err := CheckKeyName(name); err != nil {
		return err
	}
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	path := ks.seedPath(name)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("signer %q already exists (use force to overwrite)", name)
		}
	}
	if err := os.MkdirAll(ks.Directory, 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0o600)
}

// Load returns the private key for a named signer.
func (ks *KeyStore) Load(name string) (ed25519.PrivateKey, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(ks.seedPath(name))
	if err != nil {
		return nil, err
	}
	seed, err := ParseSeedHex(string(raw))
	if err != nil {
		return nil, fmt.Errorf("signer %q: %w", name, err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// List returns the sorted names of stored signers.
func (ks *KeyStore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".key") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".key"))
	}
	sort.Strings(names)
	return names, nil
}
