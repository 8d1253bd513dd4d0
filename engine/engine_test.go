package engine

import (
	"crypto/ed25519"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/keys"
	"github.com/Permutize/smart-accounts/nonce"
	"github.com/Permutize/smart-accounts/policy"
	"github.com/Permutize/smart-accounts/token"
)

var (
	feeToken = batch.Address{19: 0x10}
	feeSink  = batch.Address{19: 0xFE}
	stranger = batch.Address{19: 0x66}
	payee    = batch.Address{19: 0x22}
)

const (
	testNow      = 1_000_000
	testDeadline = 2_000_000
)

type recordCapture struct {
	executions  []ExecutionRecord
	withdrawals []WithdrawalRecord
}

func (c *recordCapture) ExecutionCompleted(rec ExecutionRecord)   { c.executions = append(c.executions, rec) }
func (c *recordCapture) WithdrawalCompleted(rec WithdrawalRecord) { c.withdrawals = append(c.withdrawals, rec) }

// fixture wires one account with an ed25519 controlling key, an in-memory
// ledger holding the account's balances, and a fee-enforcing policy over a
// single enabled token bounded to [1000, 100000].
type fixture struct {
	engine  *Engine
	ledger  *MemLedger
	nonces  *nonce.Registry
	tokens  *token.Registry
	sink    *recordCapture
	account batch.Address
	priv    ed25519.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = 0x42
	}
	priv := ed25519.NewKeyFromSeed(seed)
	account := keys.AddressFromEd25519(priv.Public().(ed25519.PublicKey))

	ledger := NewMemLedger()
	ledger.SetNativeBalance(account, big.NewInt(1_000_000))
	ledger.RegisterToken(feeToken)
	ledger.SetTokenBalance(feeToken, account, big.NewInt(500_000))

	tokens := token.NewRegistry(account, feeSink)
	if err := tokens.Add(account, feeToken, token.Config{
		Decimals:  6,
		Enabled:   true,
		MinAmount: big.NewInt(1000),
		MaxAmount: big.NewInt(100000),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	nonces := nonce.NewRegistry(account)
	sink := &recordCapture{}
	eng, err := New(Config{
		Account: account,
		Domain:  batch.Domain{Name: "smart-accounts", Version: "1", ChainID: 31337},
		Ledger:  ledger,
		Nonces:  nonces,
		Hook:    policy.NewFeeHook(tokens),
		Now:     func() time.Time { return time.Unix(testNow, 0) },
		Sink:    sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{
		engine:  eng,
		ledger:  ledger,
		nonces:  nonces,
		tokens:  tokens,
		sink:    sink,
		account: account,
		priv:    priv,
	}
}

func (f *fixture) feeOp(t *testing.T, amount int64) batch.Operation {
	t.Helper()
	payload := token.EncodeTransfer(feeSink, big.NewInt(amount))
	return batch.MustNewOperation(feeToken, nil, payload)
}

func (f *fixture) signedBatch(t *testing.T, nonceVal uint64, ops ...batch.Operation) (batch.Batch, []byte) {
	t.Helper()
	b, err := batch.NewBatch(nonceVal, testDeadline, ops)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	digest := f.engine.Domain().SigningDigest(batch.BatchDigest(b))
	return b, keys.SignEd25519(f.priv, digest)
}

func ruleID(t *testing.T, got, want string) {
	t.Helper()
	if got != want {
		t.Fatalf("rule = %q, want %q", got, want)
	}
}

func TestExecuteSigned_FeeThenTransfer(t *testing.T) {
	f := newFixture(t)
	send := batch.MustNewOperation(payee, big.NewInt(250), nil)
	b, sig := f.signedBatch(t, 0, f.feeOp(t, 1000), send)

	rec, err := f.engine.ExecuteSigned(b, sig)
	if err != nil {
		t.Fatalf("ExecuteSigned: %v", err)
	}
	if rec.Principal != f.account || rec.Nonce != 0 || rec.Simulated {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Digest != batch.BatchDigest(b) {
		t.Fatal("record digest does not identify the batch")
	}

	if got := f.ledger.TokenBalance(feeToken, feeSink).Int64(); got != 1000 {
		t.Fatalf("fee sink token balance = %d, want 1000", got)
	}
	if got := f.ledger.NativeBalance(payee).Int64(); got != 250 {
		t.Fatalf("payee native balance = %d, want 250", got)
	}
	if got := f.engine.CurrentNonce(f.account); got != 1 {
		t.Fatalf("nonce = %d, want 1", got)
	}
	if len(f.sink.executions) != 1 || f.sink.executions[0] != rec {
		t.Fatalf("sink captured %v", f.sink.executions)
	}

	// Committed executions leave no undo records behind.
	if got := f.ledger.Snapshot(); got != 0 {
		t.Fatalf("ledger journal holds %d entries after commit", got)
	}
	if got := f.nonces.Snapshot(); got != 0 {
		t.Fatalf("nonce journal holds %d entries after commit", got)
	}
}

func TestExecuteSigned_FeeBelowMinimum(t *testing.T) {
	f := newFixture(t)
	b, sig := f.signedBatch(t, 0, f.feeOp(t, 999))

	_, err := f.engine.ExecuteSigned(b, sig)
	ruleID(t, RuleID(err), "SA-AUTH-301")
	if !errors.Is(err, policy.ErrInvalidFeeCall) {
		t.Fatalf("err does not wrap ErrInvalidFeeCall: %v", err)
	}
	if got := f.engine.CurrentNonce(f.account); got != 0 {
		t.Fatalf("rejected batch moved the nonce to %d", got)
	}
	if got := f.ledger.TokenBalance(feeToken, feeSink).Sign(); got != 0 {
		t.Fatal("rejected batch moved token balances")
	}
}

func TestExecuteSigned_WrongKey(t *testing.T) {
	f := newFixture(t)
	b, _ := f.signedBatch(t, 0, f.feeOp(t, 1000))

	other := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	sig := keys.SignEd25519(other, f.engine.Domain().SigningDigest(batch.BatchDigest(b)))

	_, err := f.engine.ExecuteSigned(b, sig)
	ruleID(t, RuleID(err), "SA-AUTH-101")
	if !IsKind(err, KindAuthorization) {
		t.Fatalf("kind mismatch: %v", err)
	}
	if got := f.engine.CurrentNonce(f.account); got != 0 {
		t.Fatalf("failed authorization moved the nonce to %d", got)
	}
}

func TestExecuteSigned_SignatureOverDifferentBatchFails(t *testing.T) {
	f := newFixture(t)
	b1, sig1 := f.signedBatch(t, 0, f.feeOp(t, 1000))
	b2, _ := f.signedBatch(t, 0, f.feeOp(t, 2000))

	if _, err := f.engine.ExecuteSigned(b2, sig1); RuleID(err) != "SA-AUTH-101" {
		t.Fatalf("cross-batch signature accepted: %v", err)
	}
	if _, err := f.engine.ExecuteSigned(b1, sig1); err != nil {
		t.Fatalf("the matching batch then failed: %v", err)
	}
}

func TestExecuteSigned_Replay(t *testing.T) {
	f := newFixture(t)
	b, sig := f.signedBatch(t, 0, f.feeOp(t, 1000))

	if _, err := f.engine.ExecuteSigned(b, sig); err != nil {
		t.Fatalf("first submission: %v", err)
	}

	_, err := f.engine.ExecuteSigned(b, sig)
	ruleID(t, RuleID(err), "SA-AUTH-201")
	var nerr *nonce.NonceError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *nonce.NonceError cause, got %v", err)
	}
	if nerr.Expected != 1 || nerr.Got != 0 {
		t.Fatalf("NonceError = {expected %d, got %d}", nerr.Expected, nerr.Got)
	}
	if got := f.ledger.TokenBalance(feeToken, feeSink).Int64(); got != 1000 {
		t.Fatalf("replay double-charged the fee: sink = %d", got)
	}
}

func TestExecuteSigned_ExpiredDeadline(t *testing.T) {
	f := newFixture(t)
	for _, deadline := range []uint64{testNow - 1, testNow} {
		b, err := batch.NewBatch(0, deadline, []batch.Operation{f.feeOp(t, 1000)})
		if err != nil {
			t.Fatalf("NewBatch: %v", err)
		}
		sig := keys.SignEd25519(f.priv, f.engine.Domain().SigningDigest(batch.BatchDigest(b)))

		_, err = f.engine.ExecuteSigned(b, sig)
		ruleID(t, RuleID(err), "SA-TIME-001")
		if !IsKind(err, KindTemporal) {
			t.Fatalf("kind mismatch: %v", err)
		}
	}
}

func TestExecuteSigned_MidBatchFailureRevertsEverything(t *testing.T) {
	f := newFixture(t)
	failing := batch.Address{19: 0x77}
	f.ledger.RegisterHandler(failing, func(batch.Address, batch.Operation) CallResult {
		return CallResult{OK: false, ReturnData: EncodeFailureReason("target rejected the call")}
	})

	send := batch.MustNewOperation(payee, big.NewInt(250), nil)
	boom := batch.MustNewOperation(failing, nil, nil)
	b, sig := f.signedBatch(t, 0, f.feeOp(t, 1000), send, boom)

	_, err := f.engine.ExecuteSigned(b, sig)
	ruleID(t, RuleID(err), "SA-EXEC-001")
	var operr *OperationError
	if !errors.As(err, &operr) {
		t.Fatalf("expected *OperationError, got %v", err)
	}
	if operr.Index != 2 {
		t.Fatalf("failing index = %d, want 2", operr.Index)
	}
	if operr.Reason != "target rejected the call" {
		t.Fatalf("reason = %q", operr.Reason)
	}

	// The fee and the value send that preceded the failure are rolled back.
	if got := f.ledger.TokenBalance(feeToken, feeSink).Sign(); got != 0 {
		t.Fatal("fee survived an aborted batch")
	}
	if got := f.ledger.NativeBalance(payee).Sign(); got != 0 {
		t.Fatal("value send survived an aborted batch")
	}
	if got := f.engine.CurrentNonce(f.account); got != 0 {
		t.Fatalf("nonce survived an aborted batch: %d", got)
	}
}

func TestExecuteSigned_UndecodableFailureReason(t *testing.T) {
	f := newFixture(t)
	failing := batch.Address{19: 0x77}
	f.ledger.RegisterHandler(failing, func(batch.Address, batch.Operation) CallResult {
		return CallResult{OK: false, ReturnData: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
	})
	b, sig := f.signedBatch(t, 0, f.feeOp(t, 1000), batch.MustNewOperation(failing, nil, nil))

	_, err := f.engine.ExecuteSigned(b, sig)
	var operr *OperationError
	if !errors.As(err, &operr) {
		t.Fatalf("expected *OperationError, got %v", err)
	}
	if operr.Reason != GenericFailureReason {
		t.Fatalf("reason = %q, want %q", operr.Reason, GenericFailureReason)
	}
}

func TestExecuteSigned_ReentrancyBlocked(t *testing.T) {
	f := newFixture(t)
	var innerErr error
	reenter := batch.Address{19: 0x88}
	f.ledger.RegisterHandler(reenter, func(batch.Address, batch.Operation) CallResult {
		ops := []batch.Operation{batch.MustNewOperation(payee, big.NewInt(1), nil)}
		innerErr = f.engine.ExecuteDirect(f.account, ops)
		return CallResult{OK: innerErr == nil}
	})

	b, sig := f.signedBatch(t, 0, f.feeOp(t, 1000), batch.MustNewOperation(reenter, nil, nil))
	_, err := f.engine.ExecuteSigned(b, sig)

	ruleID(t, RuleID(innerErr), "SA-AUTH-002")
	ruleID(t, RuleID(err), "SA-EXEC-001")
	if got := f.engine.CurrentNonce(f.account); got != 0 {
		t.Fatalf("nonce = %d after blocked reentrancy", got)
	}

	// The guard is scoped to one call: the engine accepts work again.
	b2, sig2 := f.signedBatch(t, 0, f.feeOp(t, 1000))
	if _, err := f.engine.ExecuteSigned(b2, sig2); err != nil {
		t.Fatalf("engine stuck after a blocked reentrancy: %v", err)
	}
}

func TestExecuteDirect(t *testing.T) {
	f := newFixture(t)

	t.Run("unauthorized caller", func(t *testing.T) {
		ops := []batch.Operation{batch.MustNewOperation(payee, big.NewInt(1), nil)}
		err := f.engine.ExecuteDirect(stranger, ops)
		ruleID(t, RuleID(err), "SA-AUTH-001")
	})

	t.Run("empty operations", func(t *testing.T) {
		err := f.engine.ExecuteDirect(f.account, nil)
		ruleID(t, RuleID(err), "SA-VAL-001")
		if !IsKind(err, KindStructural) {
			t.Fatalf("kind mismatch: %v", err)
		}
	})

	t.Run("no fee required", func(t *testing.T) {
		// Direct self-invocation bypasses the signed-path fee precondition.
		ops := []batch.Operation{batch.MustNewOperation(payee, big.NewInt(100), nil)}
		if err := f.engine.ExecuteDirect(f.account, ops); err != nil {
			t.Fatalf("ExecuteDirect: %v", err)
		}
		if got := f.ledger.NativeBalance(payee).Int64(); got != 100 {
			t.Fatalf("payee balance = %d, want 100", got)
		}
		if got := f.engine.CurrentNonce(f.account); got != 0 {
			t.Fatalf("direct execution consumed a nonce: %d", got)
		}
	})

	t.Run("failure reverts earlier operations", func(t *testing.T) {
		failing := batch.Address{19: 0x77}
		f.ledger.RegisterHandler(failing, func(batch.Address, batch.Operation) CallResult {
			return CallResult{OK: false}
		})
		before := f.ledger.NativeBalance(payee).Int64()
		ops := []batch.Operation{
			batch.MustNewOperation(payee, big.NewInt(50), nil),
			batch.MustNewOperation(failing, nil, nil),
		}
		err := f.engine.ExecuteDirect(f.account, ops)
		ruleID(t, RuleID(err), "SA-EXEC-001")
		if got := f.ledger.NativeBalance(payee).Int64(); got != before {
			t.Fatalf("payee balance moved across an aborted direct call: %d != %d", got, before)
		}
	})
}

func TestSimulateBatch(t *testing.T) {
	t.Run("sentinel caller only", func(t *testing.T) {
		f := newFixture(t)
		b, sig := f.signedBatch(t, 0, f.feeOp(t, 1000))
		_, err := f.engine.SimulateBatch(f.account, b, sig)
		ruleID(t, RuleID(err), "SA-MODE-001")
		if !IsKind(err, KindModeGuard) {
			t.Fatalf("kind mismatch: %v", err)
		}
	})

	t.Run("commits nothing", func(t *testing.T) {
		f := newFixture(t)
		send := batch.MustNewOperation(payee, big.NewInt(250), nil)
		b, sig := f.signedBatch(t, 0, f.feeOp(t, 1000), send)

		rec, err := f.engine.SimulateBatch(SimulationCaller, b, sig)
		if err != nil {
			t.Fatalf("SimulateBatch: %v", err)
		}
		if !rec.Simulated {
			t.Fatal("record not marked simulated")
		}
		if got := f.engine.CurrentNonce(f.account); got != 0 {
			t.Fatalf("simulation advanced the nonce to %d", got)
		}
		if got := f.ledger.TokenBalance(feeToken, feeSink).Sign(); got != 0 {
			t.Fatal("simulation committed the fee transfer")
		}
		if got := f.ledger.NativeBalance(payee).Sign(); got != 0 {
			t.Fatal("simulation committed the value send")
		}

		// The real submission still runs afterwards, against nonce 0.
		if _, err := f.engine.ExecuteSigned(b, sig); err != nil {
			t.Fatalf("execution after simulation: %v", err)
		}
	})

	t.Run("swallows bad signature", func(t *testing.T) {
		f := newFixture(t)
		b, _ := f.signedBatch(t, 0, f.feeOp(t, 1000))
		if _, err := f.engine.SimulateBatch(SimulationCaller, b, []byte("garbage")); err != nil {
			t.Fatalf("SimulateBatch with bad signature: %v", err)
		}
	})

	t.Run("swallows wrong nonce", func(t *testing.T) {
		f := newFixture(t)
		b, sig := f.signedBatch(t, 7, f.feeOp(t, 1000))
		rec, err := f.engine.SimulateBatch(SimulationCaller, b, sig)
		if err != nil {
			t.Fatalf("SimulateBatch with future nonce: %v", err)
		}
		if rec.Nonce != 7 {
			t.Fatalf("record nonce = %d", rec.Nonce)
		}
		if got := f.engine.CurrentNonce(f.account); got != 0 {
			t.Fatalf("nonce moved to %d", got)
		}
	})

	t.Run("continues past failing operations", func(t *testing.T) {
		f := newFixture(t)
		failing := batch.Address{19: 0x77}
		calls := 0
		probe := batch.Address{19: 0x78}
		f.ledger.RegisterHandler(failing, func(batch.Address, batch.Operation) CallResult {
			return CallResult{OK: false}
		})
		f.ledger.RegisterHandler(probe, func(batch.Address, batch.Operation) CallResult {
			calls++
			return CallResult{OK: true}
		})

		b, sig := f.signedBatch(t, 0,
			f.feeOp(t, 1000),
			batch.MustNewOperation(failing, nil, nil),
			batch.MustNewOperation(probe, nil, nil),
		)
		if _, err := f.engine.SimulateBatch(SimulationCaller, b, sig); err != nil {
			t.Fatalf("SimulateBatch: %v", err)
		}
		if calls != 1 {
			t.Fatalf("operation after the failure ran %d times, want 1", calls)
		}
	})

	t.Run("strict gates still apply", func(t *testing.T) {
		f := newFixture(t)
		b, sig := f.signedBatch(t, 0, f.feeOp(t, 999))
		if _, err := f.engine.SimulateBatch(SimulationCaller, b, sig); RuleID(err) != "SA-AUTH-301" {
			t.Fatalf("fee gate relaxed under simulation: %v", err)
		}

		expired, err := batch.NewBatch(0, testNow, []batch.Operation{f.feeOp(t, 1000)})
		if err != nil {
			t.Fatalf("NewBatch: %v", err)
		}
		if _, err := f.engine.SimulateBatch(SimulationCaller, expired, sig); RuleID(err) != "SA-TIME-001" {
			t.Fatalf("deadline gate relaxed under simulation: %v", err)
		}
	})
}

func TestWithdraw(t *testing.T) {
	t.Run("admin gate", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Withdraw(stranger, NativeAsset, payee, big.NewInt(1))
		ruleID(t, RuleID(err), "SA-AUTH-001")
	})

	t.Run("invalid amounts", func(t *testing.T) {
		f := newFixture(t)
		overwide := new(big.Int).Lsh(big.NewInt(1), 300)
		for _, asset := range []batch.Address{NativeAsset, feeToken} {
			for _, amount := range []*big.Int{big.NewInt(-5), overwide} {
				_, err := f.engine.Withdraw(f.account, asset, payee, amount)
				ruleID(t, RuleID(err), "SA-VAL-002")
				if !IsKind(err, KindStructural) {
					t.Fatalf("kind mismatch: %v", err)
				}
			}
		}
		if len(f.sink.withdrawals) != 0 {
			t.Fatalf("rejected withdrawals emitted %d records", len(f.sink.withdrawals))
		}
		if got := f.ledger.NativeBalance(payee).Sign(); got != 0 {
			t.Fatal("rejected withdrawal moved native balance")
		}
		if got := f.ledger.TokenBalance(feeToken, payee).Sign(); got != 0 {
			t.Fatal("rejected withdrawal moved token balance")
		}
	})

	t.Run("native", func(t *testing.T) {
		f := newFixture(t)
		rec, err := f.engine.Withdraw(f.account, NativeAsset, payee, big.NewInt(400))
		if err != nil {
			t.Fatalf("Withdraw: %v", err)
		}
		if got := f.ledger.NativeBalance(payee).Int64(); got != 400 {
			t.Fatalf("payee balance = %d, want 400", got)
		}
		if rec.Asset != NativeAsset || rec.Destination != payee || rec.Amount.Int64() != 400 {
			t.Fatalf("record = %+v", rec)
		}
		if len(f.sink.withdrawals) != 1 {
			t.Fatalf("sink captured %d withdrawals", len(f.sink.withdrawals))
		}
	})

	t.Run("native insufficient", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Withdraw(f.account, NativeAsset, payee, big.NewInt(2_000_000))
		ruleID(t, RuleID(err), "SA-XFER-001")
		if !IsKind(err, KindTransfer) {
			t.Fatalf("kind mismatch: %v", err)
		}
		if got := f.ledger.NativeBalance(payee).Sign(); got != 0 {
			t.Fatal("failed withdrawal moved balances")
		}
	})

	t.Run("token", func(t *testing.T) {
		f := newFixture(t)
		rec, err := f.engine.Withdraw(f.account, feeToken, payee, big.NewInt(777))
		if err != nil {
			t.Fatalf("Withdraw: %v", err)
		}
		if got := f.ledger.TokenBalance(feeToken, payee).Int64(); got != 777 {
			t.Fatalf("payee token balance = %d, want 777", got)
		}
		if rec.Asset != feeToken {
			t.Fatalf("record asset = %s", rec.Asset)
		}
	})

	t.Run("token insufficient", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Withdraw(f.account, feeToken, payee, big.NewInt(10_000_000))
		ruleID(t, RuleID(err), "SA-EXEC-001")
	})
}

func TestCheckSignature(t *testing.T) {
	f := newFixture(t)
	b, sig := f.signedBatch(t, 0, f.feeOp(t, 1000))
	digest := f.engine.BatchDigest(b)

	if !f.engine.CheckSignature(digest, sig) {
		t.Fatal("valid signature rejected")
	}
	if f.engine.CheckSignature(batch.Digest{1}, sig) {
		t.Fatal("signature accepted against a different digest")
	}
	if f.engine.CheckSignature(digest, []byte("garbage")) {
		t.Fatal("garbage signature accepted")
	}
}

func TestNew_Validation(t *testing.T) {
	nonces := nonce.NewRegistry(batch.Address{19: 1})
	ledger := NewMemLedger()
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero account", Config{Ledger: ledger, Nonces: nonces}},
		{"nil ledger", Config{Account: batch.Address{19: 1}, Nonces: nonces}},
		{"nil nonces", Config{Account: batch.Address{19: 1}, Ledger: ledger}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}

	eng, err := New(Config{
		Account: batch.Address{19: 1},
		Domain:  batch.Domain{Name: "x", Account: batch.Address{19: 9}},
		Ledger:  ledger,
		Nonces:  nonces,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if eng.Domain().Account != eng.Account() {
		t.Fatal("domain account not pinned to the engine account")
	}
}
