package quote

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

// CreationRequest describes a pool that does not exist yet. Price is expressed as
// QuoteMint per one BaseMint, the way a caller thinks about it.
type CreationRequest struct {
	BaseMint    solana.PublicKey
	QuoteMint   solana.PublicKey
	BaseAmount  uint64
	QuoteAmount uint64 // zero for a single-sided deposit
	Family      pool.Family

	// BasePriceMint, when set, is looked up in the oracle instead of BaseMint. A
	// rift that does not exist yet trades at its underlying's price.
	BasePriceMint solana.PublicKey

	// ManualPrice is used when the oracle cannot price both assets.
	ManualPrice *decimal.Decimal
}

// CreationQuote carries both the caller-facing price and the price in the
// program's storage order. Only PoolPrice may be handed to instruction builders.
type CreationQuote struct {
	BaseMint   solana.PublicKey `json:"base_mint"`
	QuoteMint  solana.PublicKey `json:"quote_mint"`
	TokenAMint solana.PublicKey `json:"token_a_mint"`
	TokenBMint solana.PublicKey `json:"token_b_mint"`
	BaseSide   pool.Side        `json:"base_side"`
	Family     pool.Family      `json:"family"`

	Price     decimal.Decimal `json:"price"`
	PoolPrice decimal.Decimal `json:"pool_price"`
	Inverted  bool            `json:"inverted"`

	DecimalsA uint8 `json:"decimals_a"`
	DecimalsB uint8 `json:"decimals_b"`

	BaseAmount         uint64 `json:"base_amount"`
	BaseDeposit        uint64 `json:"base_deposit"`
	QuoteAmount        uint64 `json:"quote_amount"`
	QuoteDeposit       uint64 `json:"quote_deposit"`
	ImpliedQuoteAmount uint64 `json:"implied_quote_amount"`
	SingleSided        bool   `json:"single_sided"`
}

// AmountA returns the deposit in storage slot A.
func (q *CreationQuote) AmountA() uint64 {
	if q.BaseSide == pool.SideA {
		return q.BaseDeposit
	}
	return q.QuoteDeposit
}

func (q *CreationQuote) AmountB() uint64 {
	if q.BaseSide == pool.SideB {
		return q.BaseDeposit
	}
	return q.QuoteDeposit
}

// StoragePrice converts a quote-per-base price into token B per token A, the order
// the AMM programs keep. The price is inverted whenever the quote mint sorts before
// the base mint.
func StoragePrice(base, quote solana.PublicKey, price decimal.Decimal) (decimal.Decimal, bool, error) {
	if !price.IsPositive() {
		return decimal.Zero, false, fmt.Errorf("price must be positive, got %s", price)
	}
	if base.Equals(quote) {
		return decimal.Zero, false, fmt.Errorf("base and quote mint are both %s", base)
	}
	if pool.SortsBefore(quote, base) {
		return decimal.NewFromInt(1).DivRound(price, 18), true, nil
	}
	return price, false, nil
}

// CrossPrice is baseUSD / quoteUSD: units of quote per one base.
func CrossPrice(baseUSD, quoteUSD decimal.Decimal) (decimal.Decimal, error) {
	if !baseUSD.IsPositive() || !quoteUSD.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive usd price (%s, %s)", baseUSD, quoteUSD)
	}
	return baseUSD.DivRound(quoteUSD, 18), nil
}

func (e *Engine) price(ctx context.Context, req CreationRequest) (decimal.Decimal, error) {
	priceMint := req.BaseMint
	if !req.BasePriceMint.IsZero() {
		priceMint = req.BasePriceMint
	}
	if e.oracle != nil {
		baseUSD, err := e.oracle.GetPrice(ctx, priceMint)
		if err != nil {
			return decimal.Zero, err
		}
		quoteUSD, err := e.oracle.GetPrice(ctx, req.QuoteMint)
		if err != nil {
			return decimal.Zero, err
		}
		if baseUSD != nil && quoteUSD != nil {
			return CrossPrice(*baseUSD, *quoteUSD)
		}
	}
	if req.ManualPrice != nil {
		return *req.ManualPrice, nil
	}
	return decimal.Zero, fmt.Errorf("price %s/%s: %w", req.BaseMint, req.QuoteMint, ErrPriceUnavailable)
}

// Creation prices a pool that does not exist yet. Deposit amounts are reduced by the
// transfer fee of their mint, because the AMM credits only what it receives.
func (e *Engine) Creation(ctx context.Context, req CreationRequest) (*CreationQuote, error) {
	if e.mints == nil {
		return nil, fmt.Errorf("creation quote needs a mint reader")
	}
	price, err := e.price(ctx, req)
	if err != nil {
		return nil, err
	}
	poolPrice, inverted, err := StoragePrice(req.BaseMint, req.QuoteMint, price)
	if err != nil {
		return nil, err
	}

	baseInfo, err := e.mints.Get(ctx, req.BaseMint)
	if err != nil {
		return nil, err
	}
	quoteInfo, err := e.mints.Get(ctx, req.QuoteMint)
	if err != nil {
		return nil, err
	}

	q := &CreationQuote{
		BaseMint:     req.BaseMint,
		QuoteMint:    req.QuoteMint,
		Family:       req.Family,
		Price:        price,
		PoolPrice:    poolPrice,
		Inverted:     inverted,
		BaseAmount:   req.BaseAmount,
		BaseDeposit:  token.Haircut(req.BaseAmount, baseInfo, e.cfg.FallbackHaircutBps),
		QuoteAmount:  req.QuoteAmount,
		QuoteDeposit: token.Haircut(req.QuoteAmount, quoteInfo, e.cfg.FallbackHaircutBps),
		SingleSided:  req.QuoteAmount == 0,
	}
	q.TokenAMint, q.TokenBMint = pool.CanonicalOrder(req.BaseMint, req.QuoteMint)
	if q.TokenAMint.Equals(req.BaseMint) {
		q.BaseSide = pool.SideA
		q.DecimalsA, q.DecimalsB = baseInfo.Decimals, quoteInfo.Decimals
	} else {
		q.BaseSide = pool.SideB
		q.DecimalsA, q.DecimalsB = quoteInfo.Decimals, baseInfo.Decimals
	}
	q.ImpliedQuoteAmount = Counter(q.BaseDeposit, baseInfo.Decimals, quoteInfo.Decimals, price)

	e.log.WithFields(logrus.Fields{
		"base":       req.BaseMint.String(),
		"quote":      req.QuoteMint.String(),
		"price":      price.String(),
		"pool_price": poolPrice.String(),
		"inverted":   inverted,
		"haircut":    req.BaseAmount - q.BaseDeposit,
	}).Debug("creation quote")
	return q, nil
}

// Counter converts a raw base amount into the raw quote amount at price (quote per
// base, UI units), rounded down.
func Counter(baseAmount uint64, baseDecimals, quoteDecimals uint8, price decimal.Decimal) uint64 {
	v := decimal.NewFromUint64(baseAmount).
		Shift(-int32(baseDecimals)).
		Mul(price).
		Shift(int32(quoteDecimals)).
		Floor()
	if v.IsNegative() || !v.BigInt().IsUint64() {
		return 0
	}
	return v.BigInt().Uint64()
}
