package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
)

func parseAmount(c echo.Context, name string, required bool) (uint64, *ErrorResponse) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		if required {
			return 0, &ErrorResponse{Error: "invalid " + name, Details: map[string]any{name: "required"}}
		}
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, &ErrorResponse{Error: "invalid " + name, Details: map[string]any{name: "must be uint64"}}
	}
	return n, nil
}

// DepositQuote prices the counter side of a deposit into an existing pool.
func (h *Handlers) DepositQuote(c echo.Context) error {
	poolAddr, ok := pubkeyParam(c.QueryParam("pool"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid pool", map[string]any{"pool": "required base58 address"})
	}
	mint, ok := pubkeyParam(c.QueryParam("mint"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid mint", map[string]any{"mint": "required base58 address"})
	}
	amount, bad := parseAmount(c, "amount", true)
	if bad != nil {
		return h.err(c, http.StatusBadRequest, bad.Error, bad.Details)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	q, err := h.Quotes.Deposit(ctx, poolAddr, mint, amount)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

// CreationQuote prices a pool that does not exist yet. price overrides the oracle
// when it cannot price both mints.
func (h *Handlers) CreationQuote(c echo.Context) error {
	base, ok := pubkeyParam(c.QueryParam("base"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid base", map[string]any{"base": "required base58 address"})
	}
	quoteMint, ok := pubkeyParam(c.QueryParam("quote"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid quote", map[string]any{"quote": "required base58 address"})
	}
	amount, bad := parseAmount(c, "amount", true)
	if bad != nil {
		return h.err(c, http.StatusBadRequest, bad.Error, bad.Details)
	}
	quoteAmount, bad := parseAmount(c, "quote_amount", false)
	if bad != nil {
		return h.err(c, http.StatusBadRequest, bad.Error, bad.Details)
	}

	family := pool.FamilyConstantProduct
	if v := strings.TrimSpace(c.QueryParam("family")); v != "" {
		f, err := pool.ParseFamily(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid family", map[string]any{"family": "bin_based or constant_product"})
		}
		family = f
	}

	req := quote.CreationRequest{
		BaseMint:    base,
		QuoteMint:   quoteMint,
		BaseAmount:  amount,
		QuoteAmount: quoteAmount,
		Family:      family,
	}
	if v := strings.TrimSpace(c.QueryParam("price")); v != "" {
		p, err := decimal.NewFromString(v)
		if err != nil || !p.IsPositive() {
			return h.err(c, http.StatusBadRequest, "invalid price", map[string]any{"price": "must be a positive decimal"})
		}
		req.ManualPrice = &p
	}
	if v := strings.TrimSpace(c.QueryParam("price_mint")); v != "" {
		pm, ok := pubkeyParam(v)
		if !ok {
			return h.err(c, http.StatusBadRequest, "invalid price_mint", nil)
		}
		req.BasePriceMint = pm
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	q, err := h.Quotes.Creation(ctx, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, q)
}
