// Package app assembles the orchestrator's components from configuration. Both
// binaries build on it so they share one wiring.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/balance"
	"github.com/aman-zulfiqar/rift-liquidity/internal/bundle"
	"github.com/aman-zulfiqar/rift-liquidity/internal/cache"
	"github.com/aman-zulfiqar/rift-liquidity/internal/classifier"
	"github.com/aman-zulfiqar/rift-liquidity/internal/config"
	"github.com/aman-zulfiqar/rift-liquidity/internal/confirm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/feeledger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/history"
	"github.com/aman-zulfiqar/rift-liquidity/internal/oracle"
	"github.com/aman-zulfiqar/rift-liquidity/internal/orchestrator"
	"github.com/aman-zulfiqar/rift-liquidity/internal/overrides"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
	"github.com/aman-zulfiqar/rift-liquidity/internal/server"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
	"github.com/aman-zulfiqar/rift-liquidity/internal/wallet"
)

// App holds every long-lived component. Wallet and Runner are nil when no key
// is configured; Relay is nil without a bundle endpoint.
type App struct {
	Config *config.Config
	Log    *logrus.Logger

	RPC        *rpc.Client
	Store      cache.Store
	History    history.Store
	Mints      *token.MintCache
	Overrides  *overrides.Store
	Classifier *classifier.Classifier
	Oracle     *oracle.Client
	Quotes     *quote.Engine
	Ledger     *feeledger.Ledger
	Balances   *balance.Reconciler
	Tracker    *confirm.Tracker
	Relay      *bundle.Client
	Wallet     *wallet.Wallet

	Builder *orchestrator.Builder
	Runner  *orchestrator.Runner
}

// New connects the configured backends. Redis and ClickHouse are optional and
// fall back to in-process implementations.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	a.RPC = rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		RateLimit:    cfg.RPCRateLimit,
		Burst:        cfg.RPCBurst,
		Logger:       log,
	})

	if cfg.RedisAddr != "" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, log)
		if err != nil {
			return nil, err
		}
		a.Store = rs
	} else {
		log.Warn("redis-addr not set, balances and overrides are kept in memory")
		a.Store = cache.NewMemoryStore()
	}

	a.History = history.Nop{}
	if cfg.ClickHouseAddr != "" {
		hs, err := history.NewClickHouseStore(ctx, history.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		}, log)
		if err != nil {
			log.WithError(err).Warn("confirmation history disabled")
		} else {
			a.History = hs
		}
	}

	ov, err := overrides.NewStore(a.Store)
	if err != nil {
		return nil, err
	}
	a.Overrides = ov
	a.Mints = token.NewMintCache(a.RPC, cfg.Commitment)
	a.Classifier = classifier.New(a.RPC, a.Overrides, cfg.Commitment, log)
	a.Oracle = oracle.NewClient(cfg.OracleURL, cfg.OracleAPIKey, a.Store, log)
	a.Quotes = quote.NewEngine(a.Classifier, a.Oracle, a.Mints, quote.Config{FallbackHaircutBps: cfg.FallbackHaircutBps}, log)
	a.Ledger = feeledger.NewLedger(a.RPC, cfg.Commitment, log)
	a.Balances = balance.NewReconciler(a.Store, a.RPC, a.Mints, balance.Config{
		Freshness:       cfg.BalanceFreshness,
		RecheckAttempts: cfg.BalanceRecheckAttempts,
		RecheckDelay:    cfg.BalanceRecheckDelay,
		Commitment:      cfg.Commitment,
	}, log)
	a.Tracker = confirm.NewTracker(a.RPC, confirm.Config{
		Interval:    cfg.ConfirmInterval,
		MaxAttempts: cfg.ConfirmAttempts,
		Commitment:  cfg.Commitment,
	}, log)

	if cfg.BundleURL != "" {
		relayRPC := rpc.NewClient(rpc.ClientConfig{
			BaseURL:    cfg.BundleURL,
			Timeout:    cfg.HTTPTimeout,
			MaxRetries: cfg.MaxRetries,
			Logger:     log,
		})
		if a.Relay, err = bundle.NewClient(relayRPC, cfg.BundleTipAccount, log); err != nil {
			return nil, err
		}
	}

	var preset solana.PublicKey
	if cfg.DLMMPresetParameter != "" {
		if preset, err = solana.PublicKeyFromBase58(cfg.DLMMPresetParameter); err != nil {
			return nil, fmt.Errorf("dlmm-preset-parameter: %w", err)
		}
	}
	a.Builder = orchestrator.NewBuilder(orchestrator.Deps{
		Pools:     a.Classifier,
		Positions: a.Classifier,
		Quotes:    a.Quotes,
		Mints:     a.Mints,
		Ledger:    a.Ledger,
		Balances:  a.Balances,
		Accounts:  a.RPC,
	}, orchestrator.BuilderConfig{
		SlippageBps:           cfg.DefaultSlippageBps,
		FallbackHaircutBps:    cfg.FallbackHaircutBps,
		DistributionMarginPpm: cfg.DistributionMarginPpm,
		Commitment:            cfg.Commitment,
		DLMMPresetParameter:   preset,
		DLMMBinStep:           cfg.DLMMBinStep,
		PositionWidth:         cfg.PositionWidth,
		CPFeeBps:              cfg.CPFeeBps,
		BundlingAvailable:     a.Relay != nil,
	}, log)

	if cfg.WalletPrivateKey != "" {
		if a.Wallet, err = wallet.New(cfg.WalletPrivateKey, a.RPC, log); err != nil {
			return nil, err
		}
		deps := orchestrator.RunnerDeps{
			Chain:     a.RPC,
			Signer:    a.Wallet,
			Confirmer: a.Tracker,
			Balances:  a.Balances,
			Pools:     a.Classifier,
			Overrides: a.Overrides,
			History:   a.History,
			Publisher: a.Store,
		}
		if a.Relay != nil {
			deps.Relay = a.Relay
		}
		a.Runner = orchestrator.NewRunner(deps, orchestrator.RunnerConfig{
			Commitment:        cfg.Commitment,
			StaleToleranceBps: cfg.StaleQuoteToleranceBps,
			TipLamports:       cfg.BundleTipLamports,
		}, log)
		log.WithField("wallet", a.Wallet.Address()).Info("signing wallet loaded")
	}
	return a, nil
}

// Handlers exposes the read-only surface over HTTP.
func (a *App) Handlers(devMode bool) *server.Handlers {
	return &server.Handlers{
		Pools:                 a.Classifier,
		Quotes:                a.Quotes,
		Ledger:                a.Ledger,
		Balances:              a.Balances,
		Overrides:             a.Overrides,
		HistoryStore:          a.History,
		Backends:              map[string]server.Pinger{"store": a.Store, "history": a.History},
		DistributionMarginPpm: a.Config.DistributionMarginPpm,
		DevMode:               devMode,
		Logger:                a.Log,
	}
}

// RequireRunner fails for commands that must sign.
func (a *App) RequireRunner() (*orchestrator.Runner, error) {
	if a.Runner == nil {
		return nil, errors.New("wallet-private-key is not configured")
	}
	return a.Runner, nil
}

func (a *App) Close() error {
	return errors.Join(a.History.Close(), a.Store.Close())
}
