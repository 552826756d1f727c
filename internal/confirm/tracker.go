// Package confirm submits signed transactions and polls their status until a
// terminal state. Push subscriptions are deliberately not used.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusTimedOut
}

// Record follows one submitted signature.
type Record struct {
	ID          uuid.UUID              `json:"id"`
	Signature   solana.Signature       `json:"signature"`
	SubmittedAt time.Time              `json:"submitted_at"`
	FinishedAt  time.Time              `json:"finished_at,omitempty"`
	Status      Status                 `json:"status"`
	Slot        uint64                 `json:"slot,omitempty"`
	Attempts    int                    `json:"attempts"`
	Error       *OnChainExecutionError `json:"error,omitempty"`
}

// Client is the slice of the RPC client the tracker needs.
type Client interface {
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatus, error)
}

type Config struct {
	Interval       time.Duration
	MaxAttempts    int
	RequestTimeout time.Duration
	Commitment     string
}

type Tracker struct {
	client Client
	cfg    Config
	log    *logrus.Logger
	now    func() time.Time
}

func NewTracker(client Client, cfg Config, log *logrus.Logger) *Tracker {
	if log == nil {
		log = logrus.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = constants.ConfirmInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = constants.ConfirmMaxAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = constants.ConfirmRequestTimeout
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	return &Tracker{client: client, cfg: cfg, log: log, now: time.Now}
}

// SubmitAndConfirm sends tx once and polls until it is confirmed, fails on-chain or
// the attempts run out. A positive timeout bounds the number of polls to
// timeout/interval. Once the send succeeds ctx cancellation is ignored: the
// tracker always reaches a terminal state.
//
// A TimedOut record is returned together with ErrTimedOut, a Failed one together
// with its *OnChainExecutionError.
func (t *Tracker) SubmitAndConfirm(ctx context.Context, tx *solana.Transaction, timeout time.Duration) (*Record, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	sig, err := t.client.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	rec := &Record{ID: uuid.New(), Signature: sig, SubmittedAt: t.now(), Status: StatusPending}

	t.log.WithFields(logrus.Fields{
		"signature": sig.String(),
		"record":    rec.ID.String(),
	}).Debug("transaction submitted")

	return rec, t.poll(context.WithoutCancel(ctx), rec, TransactionPrograms(tx), t.attempts(timeout))
}

// Confirm polls a signature submitted elsewhere, e.g. through a bundle relay.
func (t *Tracker) Confirm(ctx context.Context, sig solana.Signature, tx *solana.Transaction, timeout time.Duration) (*Record, error) {
	rec := &Record{ID: uuid.New(), Signature: sig, SubmittedAt: t.now(), Status: StatusPending}
	return rec, t.poll(context.WithoutCancel(ctx), rec, TransactionPrograms(tx), t.attempts(timeout))
}

func (t *Tracker) attempts(timeout time.Duration) int {
	if timeout <= 0 {
		return t.cfg.MaxAttempts
	}
	n := int((timeout + t.cfg.Interval - 1) / t.cfg.Interval)
	return max(n, 1)
}

func (t *Tracker) poll(ctx context.Context, rec *Record, programs ProgramResolver, attempts int) error {
	fields := logrus.Fields{"signature": rec.Signature.String()}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(t.cfg.Interval)
		}
		rec.Attempts = attempt

		status, err := t.status(ctx, rec.Signature)
		if err != nil {
			// treated as "not observed yet"; the next poll decides
			t.log.WithFields(fields).WithError(err).WithField("attempt", attempt).Debug("status poll failed")
			continue
		}
		t.log.WithFields(fields).WithField("attempt", attempt).Debug("polled signature status")
		if status == nil || !status.Reached(t.cfg.Commitment) {
			continue
		}

		rec.Slot = status.Slot
		rec.FinishedAt = t.now()
		if status.HasError() {
			rec.Status = StatusFailed
			rec.Error = DecodeError(status.Err, programs)
			rec.Error.Signature = rec.Signature
			t.log.WithFields(fields).WithField("error", rec.Error.Error()).Error("transaction failed on-chain")
			return rec.Error
		}
		rec.Status = StatusConfirmed
		t.log.WithFields(fields).WithField("slot", status.Slot).Info("transaction confirmed")
		return nil
	}

	rec.Status = StatusTimedOut
	rec.FinishedAt = t.now()
	t.log.WithFields(fields).WithField("attempts", attempts).Warn("confirmation timed out")
	return ErrTimedOut
}

func (t *Tracker) status(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()
	return t.client.GetSignatureStatus(ctx, sig)
}

// IsTimedOut reports whether err is an ambiguous outcome rather than a failure.
func IsTimedOut(err error) bool {
	return errors.Is(err, ErrTimedOut)
}
