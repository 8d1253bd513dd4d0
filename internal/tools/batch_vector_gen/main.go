// Command batch_vector_gen prints conformance vectors for the canonical
// batch encoding, digest scheme, and signature envelope. Off-engine signer
// implementations check themselves against this output.
package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/cidutil"
	"github.com/Permutize/smart-accounts/keys"
	"github.com/Permutize/smart-accounts/token"
)

func mustKeypair(seedByte byte) ed25519.PrivateKey {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	return ed25519.NewKeyFromSeed(seed)
}

func main() {
	priv := mustKeypair(0xA1)
	account := keys.AddressFromEd25519(priv.Public().(ed25519.PublicKey))

	feeSink := batch.MustHexToAddress("0x00000000000000000000000000000000000000fe")
	tokenX := batch.MustHexToAddress("0x0000000000000000000000000000000000000aaa")

	ops := []batch.Operation{
		batch.MustNewOperation(tokenX, nil, token.EncodeTransfer(feeSink, big.NewInt(1000))),
		batch.MustNewOperation(batch.MustHexToAddress("0x00000000000000000000000000000000000000b0"), big.NewInt(5), nil),
	}
	b := batch.MustNewBatch(0, 1900000000, ops)

	digest := batch.BatchDigest(b)
	domain := batch.Domain{Name: "smart-accounts", Version: "1", ChainID: 1, Account: account}
	signing := domain.SigningDigest(digest)
	envelope := batch.EncodeEnvelope(batch.Envelope{
		Batch:     b,
		Signature: keys.SignEd25519(priv, signing),
	})

	fmt.Printf("account:        %s\n", account)
	fmt.Printf("batch-bytes:    %s\n", hex.EncodeToString(batch.Encode(b)))
	fmt.Printf("batch-digest:   %s\n", digest)
	fmt.Printf("batch-cid:      %s\n", cidutil.DigestCID(digest))
	fmt.Printf("signing-digest: %s\n", signing)
	fmt.Printf("envelope:       %s\n", hex.EncodeToString(envelope))
}
