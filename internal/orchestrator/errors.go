package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/confirm"
)

// ErrPartialBundleUnavailable is returned for intents whose transactions must land
// together when no bundling relay is configured. Nothing is submitted.
var ErrPartialBundleUnavailable = errors.New("atomic bundling required but no relay is available")

// InsufficientBalanceError is a failed pre-flight balance check.
type InsufficientBalanceError struct {
	Mint      solana.PublicKey `json:"mint"`
	Required  uint64           `json:"required"`
	Available uint64           `json:"available"`
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance of %s: need %d, have %d", e.Mint, e.Required, e.Available)
}

// SimulationFailedError is a dry-run rejection. Err is nil when the node returned
// an error shape that could not be decoded.
type SimulationFailedError struct {
	Step string                         `json:"step"`
	Err  *confirm.OnChainExecutionError `json:"error,omitempty"`
	Logs []string                       `json:"logs,omitempty"`
}

func (e *SimulationFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "simulation of %q failed", e.Step)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Name)
		if e.Err.Message != "" && e.Err.Message != e.Err.Name {
			b.WriteString(": ")
			b.WriteString(e.Err.Message)
		}
	}
	return b.String()
}

func (e *SimulationFailedError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}
