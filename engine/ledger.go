package engine

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"

	"github.com/Permutize/smart-accounts/batch"
)

// CallResult is the typed outcome of one sub-operation invocation.
type CallResult struct {
	OK         bool
	ReturnData []byte
}

// Ledger is the external world the engine executes against. Snapshot and
// RevertTo bound the atomic unit of work; every mutation made through Call
// or TransferNative since a snapshot must be undone by reverting to it.
// Commit seals a finished unit: it discards the undo records accumulated
// since the snapshot so the journal does not grow across committed calls.
// Every Snapshot is paired with exactly one Commit or RevertTo.
type Ledger interface {
	Snapshot() int
	Commit(rev int)
	RevertTo(rev int)

	// Call invokes op.Target with op.Value native units moved from `from`
	// and op.Payload as input. It never returns an error: failure is a
	// CallResult with OK=false and optional return data.
	Call(from batch.Address, op batch.Operation) CallResult

	// TransferNative moves native units between identities.
	TransferNative(from, to batch.Address, amount *big.Int) error

	// NativeBalance returns the native balance of an identity.
	NativeBalance(addr batch.Address) *big.Int
}

// GenericFailureReason substitutes for a failing sub-operation whose return
// data does not decode as a standard string reason.
const GenericFailureReason = "execution failed"

// reasonSelector is the fixed 4-byte selector of the standard string-typed
// failure reason encoding.
var reasonSelector = func() [4]byte {
	sum := sha3.Sum256([]byte("Error(string)"))
	var sel [4]byte
	copy(sel[:], sum[:4])
	return sel
}()

// reasonHeaderSize is the minimum length of a decodable failure reason:
// selector, 32-byte offset word, 32-byte length word.
const reasonHeaderSize = 4 + 32 + 32

// EncodeFailureReason builds the standard string-typed failure reason
// payload. Targets use it to make their failures readable; tests use it to
// exercise the decoding path.
func EncodeFailureReason(reason string) []byte {
	msg := []byte(reason)
	out := make([]byte, reasonHeaderSize+len(msg))
	copy(out[:4], reasonSelector[:])
	binary.BigEndian.PutUint64(out[4+24:4+32], 32)
	binary.BigEndian.PutUint64(out[4+32+24:reasonHeaderSize], uint64(len(msg)))
	copy(out[reasonHeaderSize:], msg)
	return out
}

// decodeFailureReason extracts the string reason from a failing call's
// return data. If the data is not a standard string-typed reason of
// sufficient length, the fixed generic reason is substituted so callers
// always receive a decodable reason.
func decodeFailureReason(ret []byte) string {
	if len(ret) < reasonHeaderSize {
		return GenericFailureReason
	}
	if !bytes.Equal(ret[:4], reasonSelector[:]) {
		return GenericFailureReason
	}
	offset, ok := canonicalWord(ret[4 : 4+32])
	if !ok || offset != 32 {
		return GenericFailureReason
	}
	strLen, ok := canonicalWord(ret[4+32 : reasonHeaderSize])
	if !ok || strLen > uint64(len(ret)-reasonHeaderSize) {
		return GenericFailureReason
	}
	msg := ret[reasonHeaderSize : reasonHeaderSize+int(strLen)]
	if !utf8.Valid(msg) {
		return GenericFailureReason
	}
	return string(msg)
}

// canonicalWord reads a 32-byte big-endian word whose value fits 64 bits;
// any non-zero byte in the upper 24 rejects the word.
func canonicalWord(word []byte) (uint64, bool) {
	for _, b := range word[:24] {
		if b != 0 {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(word[24:]), true
}
