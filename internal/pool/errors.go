package pool

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrEmptyPool means a reserve is zero, so no ratio can be derived from the pool.
	ErrEmptyPool = errors.New("pool has an empty reserve")

	ErrNoLongerSingleSided = errors.New("pool is no longer single-sided")
)

// ClassificationError is returned when an address cannot be mapped to a known family.
type ClassificationError struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Reason  string
}

func (e *ClassificationError) Error() string {
	if e.Owner.IsZero() {
		return fmt.Sprintf("classify %s: %s", e.Address, e.Reason)
	}
	return fmt.Sprintf("classify %s: %s (owner %s)", e.Address, e.Reason, e.Owner)
}

// StaleQuoteError reports that reserves moved past tolerance between quote and submit.
type StaleQuoteError struct {
	Pool         solana.PublicKey
	QuotedRatio  string
	CurrentRatio string
	DeviationBps int64
	ToleranceBps uint16
}

func (e *StaleQuoteError) Error() string {
	return fmt.Sprintf("stale quote for pool %s: ratio moved %s -> %s (%d bps > %d bps tolerance)",
		e.Pool, e.QuotedRatio, e.CurrentRatio, e.DeviationBps, e.ToleranceBps)
}
