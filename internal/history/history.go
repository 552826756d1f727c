// Package history keeps an append-only log of submitted transactions and their
// terminal confirmation status.
package history

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/aman-zulfiqar/rift-liquidity/internal/confirm"
)

// Entry is one row of the confirmations table.
type Entry struct {
	RecordID    uuid.UUID      `json:"record_id"`
	PlanID      uuid.UUID      `json:"plan_id"`
	Intent      string         `json:"intent"`
	Step        uint16         `json:"step"`
	Label       string         `json:"label"`
	Signature   string         `json:"signature"`
	Status      confirm.Status `json:"status"`
	Slot        uint64         `json:"slot"`
	Attempts    uint16         `json:"attempts"`
	ErrorName   string         `json:"error_name,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// FromRecord flattens a confirmation record for storage.
func FromRecord(planID uuid.UUID, intent string, step int, label string, rec *confirm.Record) Entry {
	e := Entry{
		RecordID:    rec.ID,
		PlanID:      planID,
		Intent:      intent,
		Step:        uint16(step),
		Label:       label,
		Signature:   rec.Signature.String(),
		Status:      rec.Status,
		Slot:        rec.Slot,
		Attempts:    uint16(rec.Attempts),
		SubmittedAt: rec.SubmittedAt,
		FinishedAt:  rec.FinishedAt,
	}
	if rec.Error != nil {
		e.ErrorName = rec.Error.Name
		e.ErrorDetail = rec.Error.Error()
	}
	return e
}

// Store persists entries.
type Store interface {
	// Insert appends one entry
	Insert(ctx context.Context, e Entry) error

	// Recent returns the newest entries first
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	io.Closer
}

// Nop is used when no history database is configured.
type Nop struct{}

func (Nop) Insert(context.Context, Entry) error          { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Nop) Ping(context.Context) error                   { return nil }
func (Nop) Close() error                                 { return nil }

var (
	_ Store = Nop{}
	_ Store = (*ClickHouseStore)(nil)
)
