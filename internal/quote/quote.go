// Package quote derives deposit counter-amounts from live pool reserves and
// initial prices for pools that do not exist yet.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

// ErrPriceUnavailable means the oracle has no price for one of the assets and no
// manual price was supplied.
var ErrPriceUnavailable = errors.New("price unavailable")

// PoolReader returns a pool with reserves read at call time.
type PoolReader interface {
	Classify(ctx context.Context, address solana.PublicKey) (*pool.Pool, error)
}

// PriceOracle returns the USD price of a mint, or nil when it has none.
type PriceOracle interface {
	GetPrice(ctx context.Context, mint solana.PublicKey) (*decimal.Decimal, error)
}

type MintReader interface {
	Get(ctx context.Context, mint solana.PublicKey) (*token.MintInfo, error)
}

type Config struct {
	FallbackHaircutBps uint16
}

type Engine struct {
	pools  PoolReader
	oracle PriceOracle
	mints  MintReader
	cfg    Config
	log    *logrus.Logger
}

// NewEngine wires the quote engine. oracle is only needed for creation quotes and
// mints only for haircut and decimal lookups; either may be nil.
func NewEngine(pools PoolReader, oracle PriceOracle, mints MintReader, cfg Config, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	if cfg.FallbackHaircutBps == 0 {
		cfg.FallbackHaircutBps = constants.FallbackHaircutBps
	}
	return &Engine{pools: pools, oracle: oracle, mints: mints, cfg: cfg, log: log}
}

// DepositQuote is the counter-amount for a one-sided input against an existing pool.
// ReserveA and ReserveB are the reserves it was derived from, kept for the
// submit-time staleness check.
type DepositQuote struct {
	PoolAddress    solana.PublicKey `json:"pool_address"`
	Family         pool.Family      `json:"family"`
	SourceSide     pool.Side        `json:"source_side"`
	SourceMint     solana.PublicKey `json:"source_mint"`
	CounterMint    solana.PublicKey `json:"counter_mint"`
	SourceAmount   uint64           `json:"source_amount"`
	SourceReceived uint64           `json:"source_received"`
	CounterAmount  uint64           `json:"counter_amount"`
	EffectiveRatio decimal.Decimal  `json:"effective_ratio"`
	ReserveA       uint64           `json:"reserve_a"`
	ReserveB       uint64           `json:"reserve_b"`
}

// FromReserves computes counter = amount * reserveCounter / reserveKnown, rounded
// down. Neither family charges a fee on deposit, so no adjustment is applied.
func FromReserves(p *pool.Pool, sourceMint solana.PublicKey, amount uint64) (*DepositQuote, error) {
	side, err := p.SideOf(sourceMint)
	if err != nil {
		return nil, err
	}
	known, counter := p.Reserve(side), p.Reserve(side.Other())
	if known == 0 || counter == 0 {
		return nil, fmt.Errorf("quote %s: %w", p.Address, pool.ErrEmptyPool)
	}

	out := new(big.Int).SetUint64(amount)
	out.Mul(out, new(big.Int).SetUint64(counter))
	out.Div(out, new(big.Int).SetUint64(known))
	if !out.IsUint64() {
		return nil, fmt.Errorf("quote %s: counter amount overflows u64", p.Address)
	}

	return &DepositQuote{
		PoolAddress:    p.Address,
		Family:         p.Family,
		SourceSide:     side,
		SourceMint:     sourceMint,
		CounterMint:    p.Mint(side.Other()),
		SourceAmount:   amount,
		SourceReceived: amount,
		CounterAmount:  out.Uint64(),
		EffectiveRatio: Ratio(counter, known),
		ReserveA:       p.ReserveA,
		ReserveB:       p.ReserveB,
	}, nil
}

// Ratio is num/den in raw units.
func Ratio(num, den uint64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(num).Div(decimal.NewFromUint64(den))
}

// Deposit quotes a one-sided input against the pool's current reserves.
func (e *Engine) Deposit(ctx context.Context, poolAddress, sourceMint solana.PublicKey, amount uint64) (*DepositQuote, error) {
	p, err := e.pools.Classify(ctx, poolAddress)
	if err != nil {
		return nil, err
	}
	q, err := FromReserves(p, sourceMint, amount)
	if err != nil {
		return nil, err
	}

	if e.mints != nil {
		info, err := e.mints.Get(ctx, sourceMint)
		if err != nil {
			return nil, err
		}
		q.SourceReceived = token.Haircut(amount, info, e.cfg.FallbackHaircutBps)
	}

	e.log.WithFields(logrus.Fields{
		"pool":    poolAddress.String(),
		"source":  sourceMint.String(),
		"amount":  amount,
		"counter": q.CounterAmount,
		"ratio":   q.EffectiveRatio.String(),
	}).Debug("deposit quote")
	return q, nil
}

// CheckStale compares the ratio a quote was built from with current reserves and
// fails when it moved more than toleranceBps.
func CheckStale(q *DepositQuote, current *pool.Pool, toleranceBps uint16) error {
	known, counter := current.Reserve(q.SourceSide), current.Reserve(q.SourceSide.Other())
	if known == 0 || counter == 0 {
		return fmt.Errorf("recheck %s: %w", current.Address, pool.ErrEmptyPool)
	}
	now := Ratio(counter, known)
	if q.EffectiveRatio.IsZero() {
		return nil
	}

	dev := now.Sub(q.EffectiveRatio).Abs().Div(q.EffectiveRatio).Mul(decimal.NewFromInt(constants.BpsDenominator))
	devBps := dev.Ceil().IntPart()
	if devBps > int64(toleranceBps) {
		return &pool.StaleQuoteError{
			Pool:         current.Address,
			QuotedRatio:  q.EffectiveRatio.String(),
			CurrentRatio: now.String(),
			DeviationBps: devBps,
			ToleranceBps: toleranceBps,
		}
	}
	return nil
}
