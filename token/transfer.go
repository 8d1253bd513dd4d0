package token

import (
	"bytes"
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/Permutize/smart-accounts/batch"
)

// TransferPayloadSize is the minimum byte length of a standard transfer
// instruction: 4-byte selector, 32-byte recipient word, 32-byte amount word.
const TransferPayloadSize = 4 + 32 + 32

// TransferSelector is the fixed 4-byte selector identifying the standard
// transfer instruction.
var TransferSelector = func() [4]byte {
	sum := sha3.Sum256([]byte("transfer(address,uint256)"))
	var sel [4]byte
	copy(sel[:], sum[:4])
	return sel
}()

// Transfer is a decoded standard transfer instruction.
type Transfer struct {
	Recipient batch.Address
	Amount    *big.Int
}

// EncodeTransfer builds a standard transfer payload. The amount must be
// non-negative and fit 256 bits; callers validate before encoding.
func EncodeTransfer(recipient batch.Address, amount *big.Int) []byte {
	out := make([]byte, TransferPayloadSize)
	copy(out[:4], TransferSelector[:])
	copy(out[4+12:4+32], recipient[:])
	if amount != nil && amount.Sign() > 0 {
		amount.FillBytes(out[4+32 : TransferPayloadSize])
	}
	return out
}

// DecodeTransfer parses a standard transfer instruction. It rejects payloads
// below the minimum length, an unknown selector, and a non-canonical
// recipient word (non-zero padding).
func DecodeTransfer(payload []byte) (Transfer, error) {
	if len(payload) < TransferPayloadSize {
		return Transfer{}, fmt.Errorf("transfer payload must be at least %d bytes, got %d", TransferPayloadSize, len(payload))
	}
	if !bytes.Equal(payload[:4], TransferSelector[:]) {
		return Transfer{}, fmt.Errorf("payload selector %x is not the transfer selector", payload[:4])
	}
	word := payload[4 : 4+32]
	for _, b := range word[:12] {
		if b != 0 {
			return Transfer{}, fmt.Errorf("transfer recipient word has non-zero padding")
		}
	}
	var recipient batch.Address
	copy(recipient[:], word[12:])
	amount := new(big.Int).SetBytes(payload[4+32 : TransferPayloadSize])
	return Transfer{Recipient: recipient, Amount: amount}, nil
}
