package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/balance"
	"github.com/aman-zulfiqar/rift-liquidity/internal/feeledger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/history"
	"github.com/aman-zulfiqar/rift-liquidity/internal/overrides"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rift"
	"github.com/aman-zulfiqar/rift-liquidity/internal/withdraw"
)

type PoolReader interface {
	Classify(ctx context.Context, address solana.PublicKey) (*pool.Pool, error)
}

type Quoter interface {
	Deposit(ctx context.Context, poolAddress, sourceMint solana.PublicKey, amount uint64) (*quote.DepositQuote, error)
	Creation(ctx context.Context, req quote.CreationRequest) (*quote.CreationQuote, error)
}

type FeeLedger interface {
	Entry(ctx context.Context, riftAddress, caller solana.PublicKey) (*rift.Rift, feeledger.Entry, error)
}

type BalanceReader interface {
	Get(ctx context.Context, owner, mint solana.PublicKey) (*balance.Cached, error)
}

type OverrideStore interface {
	Get(ctx context.Context, address solana.PublicKey) (*overrides.Override, error)
	List(ctx context.Context) ([]*overrides.Override, error)
	Delete(ctx context.Context, address solana.PublicKey) error
}

// Pinger is any backend the health check should probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Pools        PoolReader
	Quotes       Quoter
	Ledger       FeeLedger
	Balances     BalanceReader
	Overrides    OverrideStore
	HistoryStore history.Store

	// Backends are probed by /v1/health, keyed by name
	Backends map[string]Pinger

	DistributionMarginPpm uint64
	DevMode               bool
	Logger                *logrus.Logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// fail renders a domain error with the status its kind maps to.
func (h *Handlers) fail(c echo.Context, err error) error {
	code, msg := classify(err)
	if code >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return h.err(c, code, msg, err.Error())
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func pubkeyParam(raw string) (solana.PublicKey, bool) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil || pk.IsZero() {
		return solana.PublicKey{}, false
	}
	return pk, true
}

func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{OK: true}
	if len(h.Backends) > 0 {
		resp.Backend = make(map[string]bool, len(h.Backends))
		for name, b := range h.Backends {
			ok := b.Ping(ctx) == nil
			resp.Backend[name] = ok
			resp.OK = resp.OK && ok
		}
	}
	if !resp.OK {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Pool classifies an address and returns its current reserves.
func (h *Handlers) Pool(c echo.Context) error {
	addr, ok := pubkeyParam(c.Param("address"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid address", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	p, err := h.Pools.Classify(ctx, addr)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handlers) Balance(c echo.Context) error {
	owner, ok := pubkeyParam(c.Param("owner"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid owner", nil)
	}
	mint, ok := pubkeyParam(c.Param("mint"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid mint", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	bal, err := h.Balances.Get(ctx, owner, mint)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, bal)
}

// RiftFees returns the caller's fee ledger entry. With amount set it also converts
// that claim into the amount the distribution instruction would carry.
func (h *Handlers) RiftFees(c echo.Context) error {
	riftAddr, ok := pubkeyParam(c.Param("rift"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid rift", nil)
	}
	caller, ok := pubkeyParam(c.QueryParam("caller"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid caller", map[string]any{"caller": "required base58 address"})
	}
	var amount uint64
	if v := strings.TrimSpace(c.QueryParam("amount")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "must be uint64"})
		}
		amount = n
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	_, entry, err := h.Ledger.Entry(ctx, riftAddr, caller)
	if err != nil {
		return h.fail(c, err)
	}
	resp := FeesResponse{Entry: entry, Claimable: feeledger.ToUI(entry.CallerClaimable, entry.Decimals)}
	if amount > 0 {
		dist, err := entry.Distribute(amount, h.DistributionMarginPpm)
		if err != nil {
			return h.fail(c, err)
		}
		resp.Distribution = dist
	}
	return c.JSON(http.StatusOK, resp)
}

// WithdrawalPlan runs the planner over positions in the request body. Nothing is
// read from chain.
func (h *Handlers) WithdrawalPlan(c echo.Context) error {
	var req WithdrawalPlanRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", err.Error())
	}
	selected := make([]solana.PublicKey, 0, len(req.Selected))
	for _, s := range req.Selected {
		pk, ok := pubkeyParam(s)
		if !ok {
			return h.err(c, http.StatusBadRequest, "invalid selected position", map[string]any{"selected": s})
		}
		selected = append(selected, pk)
	}
	for i, p := range req.Positions {
		if err := p.Validate(); err != nil {
			return h.err(c, http.StatusBadRequest, "invalid position", map[string]any{"index": i, "err": err.Error()})
		}
	}

	plan, err := withdraw.Build(withdraw.Request{
		Positions:  req.Positions,
		Mode:       req.Mode,
		Percentage: req.Percentage,
		Selected:   selected,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, plan)
}

// History returns the most recent confirmation records with optional limit parameter
// Accepts limit query parameter (default: 50, range: 1-200)
func (h *Handlers) History(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 200 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}
	if h.HistoryStore == nil {
		return c.JSON(http.StatusOK, ListResponse[history.Entry]{Items: []history.Entry{}})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.HistoryStore.Recent(ctx, limit)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get history", err.Error())
	}
	if items == nil {
		items = []history.Entry{}
	}
	return c.JSON(http.StatusOK, ListResponse[history.Entry]{Items: items})
}

func (h *Handlers) OverridesList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	items, err := h.Overrides.List(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	if items == nil {
		items = []*overrides.Override{}
	}
	return c.JSON(http.StatusOK, ListResponse[*overrides.Override]{Items: items})
}

func (h *Handlers) OverridesGet(c echo.Context) error {
	addr, ok := pubkeyParam(c.Param("pool"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid pool", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	ov, err := h.Overrides.Get(ctx, addr)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ov)
}

func (h *Handlers) OverridesDelete(c echo.Context) error {
	addr, ok := pubkeyParam(c.Param("pool"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid pool", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Overrides.Delete(ctx, addr); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
