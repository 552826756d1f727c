package server

import (
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/rift-liquidity/internal/feeledger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/withdraw"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details any    `json:"details,omitempty"` // dev mode only
}

type HealthResponse struct {
	OK      bool            `json:"ok"`
	Backend map[string]bool `json:"backends,omitempty"`
}

// FeesResponse is the fee ledger entry for one caller, plus the amount a claim
// of Entered would distribute when amount was given.
type FeesResponse struct {
	Entry        feeledger.Entry         `json:"entry"`
	Claimable    decimal.Decimal         `json:"claimable_ui"`
	Distribution *feeledger.Distribution `json:"distribution,omitempty"`
}

// WithdrawalPlanRequest plans over positions the caller supplies.
type WithdrawalPlanRequest struct {
	Positions  []pool.Position `json:"positions"`
	Mode       withdraw.Mode   `json:"mode"`
	Percentage decimal.Decimal `json:"percentage"`
	Selected   []string        `json:"selected,omitempty"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
}
