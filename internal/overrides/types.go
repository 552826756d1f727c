package overrides

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
)

var ErrNotFound = errors.New("override not found")

// Override records a pool this service created, so it stays usable before RPC
// nodes serve the account and across restarts.
type Override struct {
	Pool      pool.Pool        `json:"pool"`
	Rift      solana.PublicKey `json:"rift"`
	Signature string           `json:"signature,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}
