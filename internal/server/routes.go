package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	e.HTTPErrorHandler = JSONErrorHandler(cfg.DevMode)

	e.Use(SetJSONContentType)
	e.Use(SetNoCacheHeaders)

	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/v1/health"
			},
			ErrorHandler: func(err error, c echo.Context) error {
				return echo.NewHTTPError(http.StatusUnauthorized).SetInternal(err)
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1, nil
			},
		}))
	}

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)
	v1.GET("/pools/:address", h.Pool)
	v1.GET("/rifts/:rift/fees", h.RiftFees)
	v1.POST("/withdrawals/plan", h.WithdrawalPlan)
	v1.GET("/balances/:owner/:mint", h.Balance)
	v1.GET("/history", h.History)

	// quotes hit the price oracle, so they are rate limited per client
	qrate, qburst := cfg.QuoteRate, cfg.QuoteBurst
	if qrate <= 0 {
		qrate = 5
	}
	if qburst <= 0 {
		qburst = 10
	}
	quotes := v1.Group("/quotes")
	quotes.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(qrate),
		Burst:     qburst,
		ExpiresIn: 2 * time.Minute,
	})))
	quotes.GET("/deposit", h.DepositQuote)
	quotes.GET("/create", h.CreationQuote)

	ov := v1.Group("/overrides")
	ov.GET("", h.OverridesList)
	ov.GET("/:pool", h.OverridesGet)
	ov.DELETE("/:pool", h.OverridesDelete)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
