// Package oracle reads USD prices used to seed pools that have no reserves yet.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/cache"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
)

const DefaultBaseURL = "https://lite-api.jup.ag/price/v3"

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	store cache.Store
	log   *logrus.Logger
}

// NewClient builds a price client. store is optional; when set, prices are cached
// for constants.PriceCacheTTL.
func NewClient(baseURL, apiKey string, store cache.Store, log *logrus.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(apiKey),
		HTTP: &http.Client{
			Timeout: 12 * time.Second,
		},
		store: store,
		log:   log,
	}
}

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("price api http %d", e.StatusCode)
	}
	return fmt.Sprintf("price api http %d: %s", e.StatusCode, b)
}

// GetPrice returns the USD price of mint, or nil when the service does not know
// it. Unknown is not an error: callers fall back to a manual price.
func (c *Client) GetPrice(ctx context.Context, mint solana.PublicKey) (*decimal.Decimal, error) {
	key := constants.CacheKeyPricePrefix + mint.String()
	if c.store != nil {
		if raw, err := c.store.Get(ctx, key); err == nil {
			var p decimal.Decimal
			if err := p.UnmarshalText(raw); err == nil {
				return &p, nil
			}
		} else if !errors.Is(err, cache.ErrNotFound) {
			c.log.WithError(err).Warn("price cache read failed")
		}
	}

	prices, err := c.Prices(ctx, mint)
	if err != nil {
		return nil, err
	}
	entry, ok := prices[mint.String()]
	if !ok || entry == nil || !entry.USDPrice.IsPositive() {
		c.log.WithField("mint", mint.String()).Debug("no oracle price")
		return nil, nil
	}

	p := entry.USDPrice
	if c.store != nil {
		if err := c.store.Put(ctx, key, []byte(p.String()), constants.PriceCacheTTL); err != nil {
			c.log.WithError(err).Warn("price cache write failed")
		}
	}
	return &p, nil
}

// Prices fetches several mints in one request.
func (c *Client) Prices(ctx context.Context, mints ...solana.PublicKey) (PriceResponse, error) {
	if len(mints) == 0 {
		return PriceResponse{}, nil
	}
	ids := make([]string, len(mints))
	for i, m := range mints {
		ids[i] = m.String()
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("accept", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("x-api-key", c.APIKey)
	}

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: res.StatusCode, Body: body}
	}

	var out PriceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}
	return out, nil
}
