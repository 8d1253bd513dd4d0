// Command smartacctd serves one smart account's execution engine over gRPC.
//
// Configuration comes from the environment (SMARTACCTD_* variables); see the
// config struct. With fee policy enabled, signed batches must open with a
// qualifying fee payment validated against the configured token registry.
package main

import (
	"fmt"
	"math/big"
	"net"
	"os"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/cidutil"
	"github.com/Permutize/smart-accounts/engine"
	"github.com/Permutize/smart-accounts/nonce"
	"github.com/Permutize/smart-accounts/policy"
	"github.com/Permutize/smart-accounts/rpc"
	"github.com/Permutize/smart-accounts/token"
)

type config struct {
	Listen        string `env:"SMARTACCTD_LISTEN" envDefault:"127.0.0.1:7443"`
	Account       string `env:"SMARTACCTD_ACCOUNT,required"`
	DomainName    string `env:"SMARTACCTD_DOMAIN_NAME" envDefault:"smart-accounts"`
	DomainVersion string `env:"SMARTACCTD_DOMAIN_VERSION" envDefault:"1"`
	ChainID       uint64 `env:"SMARTACCTD_CHAIN_ID" envDefault:"1"`

	// Fee policy: when enabled, FeeSink and FeeToken are required and the
	// token is registered enabled with the given bounds.
	FeePolicy bool   `env:"SMARTACCTD_FEE_POLICY" envDefault:"false"`
	FeeSink   string `env:"SMARTACCTD_FEE_SINK"`
	FeeToken  string `env:"SMARTACCTD_FEE_TOKEN"`
	FeeMin    string `env:"SMARTACCTD_FEE_MIN" envDefault:"0"`
	FeeMax    string `env:"SMARTACCTD_FEE_MAX" envDefault:"0"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	account, err := batch.HexToAddress(cfg.Account)
	if err != nil {
		return fmt.Errorf("SMARTACCTD_ACCOUNT: %w", err)
	}

	hook, err := buildHook(cfg, account)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		Account: account,
		Domain: batch.Domain{
			Name:    cfg.DomainName,
			Version: cfg.DomainVersion,
			ChainID: cfg.ChainID,
		},
		Ledger: engine.NewMemLedger(),
		Nonces: nonce.NewRegistry(account),
		Hook:   hook,
		Sink:   &zapSink{log: log},
	})
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	defer lis.Close()

	s := grpc.NewServer()
	rpc.RegisterAccountServer(s, &rpc.Server{Engine: eng})

	log.Info("smartacctd listening",
		zap.String("addr", lis.Addr().String()),
		zap.String("account", account.String()),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Bool("fee_policy", cfg.FeePolicy),
	)
	return s.Serve(lis)
}

func buildHook(cfg config, account batch.Address) (policy.Hook, error) {
	if !cfg.FeePolicy {
		return policy.NoopHook{}, nil
	}
	feeSink, err := batch.HexToAddress(cfg.FeeSink)
	if err != nil {
		return nil, fmt.Errorf("SMARTACCTD_FEE_SINK: %w", err)
	}
	feeToken, err := batch.HexToAddress(cfg.FeeToken)
	if err != nil {
		return nil, fmt.Errorf("SMARTACCTD_FEE_TOKEN: %w", err)
	}
	feeMin, ok := new(big.Int).SetString(cfg.FeeMin, 10)
	if !ok {
		return nil, fmt.Errorf("SMARTACCTD_FEE_MIN: invalid decimal %q", cfg.FeeMin)
	}
	feeMax, ok := new(big.Int).SetString(cfg.FeeMax, 10)
	if !ok {
		return nil, fmt.Errorf("SMARTACCTD_FEE_MAX: invalid decimal %q", cfg.FeeMax)
	}

	oracle := token.NewRegistry(account, feeSink)
	if err := oracle.Add(account, feeToken, token.Config{
		Enabled:   true,
		MinAmount: feeMin,
		MaxAmount: feeMax,
	}); err != nil {
		return nil, fmt.Errorf("register fee token: %w", err)
	}
	return policy.NewFeeHook(oracle), nil
}

// zapSink logs emitted records; the engine keeps no history of its own.
type zapSink struct {
	log *zap.Logger
}

func (s *zapSink) ExecutionCompleted(rec engine.ExecutionRecord) {
	s.log.Info("batch completed",
		zap.String("principal", rec.Principal.String()),
		zap.Uint64("nonce", rec.Nonce),
		zap.String("digest", cidutil.DigestCID(rec.Digest)),
		zap.Bool("simulated", rec.Simulated),
	)
}

func (s *zapSink) WithdrawalCompleted(rec engine.WithdrawalRecord) {
	s.log.Info("withdrawal completed",
		zap.String("destination", rec.Destination.String()),
		zap.String("asset", rec.Asset.String()),
		zap.String("amount", rec.Amount.String()),
	)
}
