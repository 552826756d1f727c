package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/rift-liquidity/internal/balance"
	"github.com/aman-zulfiqar/rift-liquidity/internal/feeledger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/overrides"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rift"
	"github.com/aman-zulfiqar/rift-liquidity/internal/withdraw"
)

// JSONErrorHandler renders every error, including 404s and middleware rejections,
// as an ErrorResponse. Details carry the underlying error in dev mode only.
func JSONErrorHandler(devMode bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			resp := ErrorResponse{Error: http.StatusText(he.Code), Code: he.Code}
			if devMode && he.Internal != nil {
				resp.Details = he.Internal.Error()
			}
			_ = c.JSON(he.Code, resp)
			return
		}

		code, msg := classify(err)
		resp := ErrorResponse{Error: msg, Code: code}
		if devMode {
			resp.Details = err.Error()
		}
		_ = c.JSON(code, resp)
	}
}

// classify maps domain errors to a status and a public message.
func classify(err error) (int, string) {
	var (
		classErr *pool.ClassificationError
		staleErr *pool.StaleQuoteError
		progErr  rift.ProgramError
	)
	switch {
	case errors.As(err, &classErr):
		return http.StatusUnprocessableEntity, "pool could not be classified"
	case errors.As(err, &staleErr):
		return http.StatusConflict, "quote is stale"
	case errors.As(err, &progErr):
		return http.StatusUnprocessableEntity, progErr.Name
	case errors.Is(err, overrides.ErrNotFound):
		return http.StatusNotFound, "override not found"
	case errors.Is(err, pool.ErrEmptyPool), errors.Is(err, pool.ErrNoLongerSingleSided):
		return http.StatusConflict, "pool cannot be quoted"
	case errors.Is(err, quote.ErrPriceUnavailable):
		return http.StatusServiceUnavailable, "price unavailable"
	case errors.Is(err, feeledger.ErrNothingToClaim), errors.Is(err, feeledger.ErrExceedsClaim):
		return http.StatusUnprocessableEntity, "invalid claim"
	case errors.Is(err, withdraw.ErrInvalidPercentage), errors.Is(err, withdraw.ErrNoPositions):
		return http.StatusBadRequest, "invalid withdrawal"
	case errors.Is(err, balance.ErrNotSettled):
		return http.StatusServiceUnavailable, "balance not settled"
	}
	return http.StatusInternalServerError, "internal server error"
}
