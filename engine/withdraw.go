package engine

import (
	"math/big"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/token"
)

// NativeAsset is the asset identifier for the native value unit.
var NativeAsset = batch.ZeroAddress

// Withdraw moves assets out of the account. Administrator only (the account
// identity administers itself). The amount must be non-negative and fit 256
// bits, the same bounds an operation value carries. The native asset moves
// via a direct value transfer; any other asset is delegated to that token's
// standard transfer instruction.
func (e *Engine) Withdraw(caller, asset, destination batch.Address, amount *big.Int) (WithdrawalRecord, error) {
	if caller != e.account {
		return WithdrawalRecord{}, errUnauthorizedCaller(caller)
	}
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 || amount.BitLen() > 256 {
		return WithdrawalRecord{}, errInvalidAmount(amount)
	}

	rev := e.ledger.Snapshot()
	if asset == NativeAsset {
		if err := e.ledger.TransferNative(e.account, destination, amount); err != nil {
			e.ledger.RevertTo(rev)
			return WithdrawalRecord{}, errNativeTransferFailed(err)
		}
	} else {
		op := batch.MustNewOperation(asset, nil, token.EncodeTransfer(destination, amount))
		res := e.ledger.Call(e.account, op)
		if !res.OK {
			e.ledger.RevertTo(rev)
			return WithdrawalRecord{}, errOperationFailed(&OperationError{Index: 0, Reason: decodeFailureReason(res.ReturnData)})
		}
	}
	e.ledger.Commit(rev)

	rec := WithdrawalRecord{
		Destination: destination,
		Asset:       asset,
		Amount:      new(big.Int).Set(amount),
	}
	e.emitWithdrawal(rec)
	return rec, nil
}
