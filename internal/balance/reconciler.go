// Package balance keeps per-owner token balances that are updated optimistically
// after local confirmations and reconciled against lagging RPC nodes.
package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/cache"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

// ErrNotSettled is returned when a re-read never saw an acceptable balance.
var ErrNotSettled = errors.New("balance not visible after rechecks")

// Cached is one owner/mint balance. A non-zero LastOptimisticUpdateAt marks a value
// written locally after a transaction, which wins over remote reads until the
// freshness window has passed.
type Cached struct {
	Owner                  solana.PublicKey `json:"owner"`
	Mint                   solana.PublicKey `json:"mint"`
	Value                  uint64           `json:"value"`
	Decimals               uint8            `json:"decimals"`
	FetchedAt              time.Time        `json:"fetched_at"`
	LastOptimisticUpdateAt time.Time        `json:"last_optimistic_update_at,omitempty"`
}

// Optimistic reports whether c is a local write younger than window.
func (c *Cached) Optimistic(now time.Time, window time.Duration) bool {
	return !c.LastOptimisticUpdateAt.IsZero() && now.Sub(c.LastOptimisticUpdateAt) <= window
}

// Reader is the slice of the RPC client used for remote balance reads.
type Reader interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment string) (uint64, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment string) (*rpc.TokenBalance, error)
}

type MintReader interface {
	Get(ctx context.Context, mint solana.PublicKey) (*token.MintInfo, error)
}

type Config struct {
	Freshness       time.Duration
	RecheckAttempts int
	RecheckDelay    time.Duration
	Commitment      string
}

// Reconciler is the only shared mutable state of the orchestrator; every read and
// write of a CachedBalance goes through it.
type Reconciler struct {
	store  cache.Store
	reader Reader
	mints  MintReader
	cfg    Config
	log    *logrus.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	mu sync.Mutex
}

func NewReconciler(store cache.Store, reader Reader, mints MintReader, cfg Config, log *logrus.Logger) *Reconciler {
	if log == nil {
		log = logrus.New()
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = constants.BalanceFreshnessWindow
	}
	if cfg.RecheckAttempts <= 0 {
		cfg.RecheckAttempts = constants.BalanceRecheckAttempts
	}
	if cfg.RecheckDelay <= 0 {
		cfg.RecheckDelay = constants.BalanceRecheckDelay
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	return &Reconciler{
		store:  store,
		reader: reader,
		mints:  mints,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func Key(owner, mint solana.PublicKey) string {
	return constants.CacheKeyBalancePrefix + owner.String() + ":" + mint.String()
}

// Get returns the optimistic value while it is fresh, otherwise a remote read which
// then replaces the cached entry.
func (r *Reconciler) Get(ctx context.Context, owner, mint solana.PublicKey) (*Cached, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cached, err := r.load(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.Optimistic(r.now(), r.cfg.Freshness) {
		return cached, nil
	}
	return r.refreshLocked(ctx, owner, mint)
}

// Refresh forces a remote read, ignoring any optimistic value.
func (r *Reconciler) Refresh(ctx context.Context, owner, mint solana.PublicKey) (*Cached, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshLocked(ctx, owner, mint)
}

func (r *Reconciler) refreshLocked(ctx context.Context, owner, mint solana.PublicKey) (*Cached, error) {
	value, decimals, err := r.Remote(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	c := &Cached{Owner: owner, Mint: mint, Value: value, Decimals: decimals, FetchedAt: r.now()}
	if err := r.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Current reports whether c can serve as the base of an optimistic update: a
// fresh local write, or a remote read taken within window.
func (c *Cached) Current(now time.Time, window time.Duration) bool {
	return c.Optimistic(now, window) || now.Sub(c.FetchedAt) <= window
}

// ApplyDelta adjusts the balance locally right after a confirmed transaction. The
// result is clamped at zero. A cached value older than the freshness window is
// re-read first so the delta never lands on a stale base.
func (r *Reconciler) ApplyDelta(ctx context.Context, owner, mint solana.PublicKey, delta int64) (*Cached, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.load(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	if c == nil || !c.Current(r.now(), r.cfg.Freshness) {
		if c, err = r.refreshLocked(ctx, owner, mint); err != nil {
			return nil, err
		}
	}

	switch {
	case delta >= 0:
		c.Value += uint64(delta)
	case uint64(-delta) > c.Value:
		c.Value = 0
	default:
		c.Value -= uint64(-delta)
	}
	c.LastOptimisticUpdateAt = r.now()
	if err := r.save(ctx, c); err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"owner": owner.String(),
		"mint":  mint.String(),
		"delta": delta,
		"value": c.Value,
	}).Debug("optimistic balance update")
	return c, nil
}

// Recheck re-reads the remote balance until accept returns true, sleeping
// RecheckDelay between attempts. It exists for the window where a transaction is
// confirmed but its effect is not yet served by the node.
func (r *Reconciler) Recheck(ctx context.Context, owner, mint solana.PublicKey, accept func(uint64) bool) (uint64, error) {
	var (
		last    uint64
		lastErr error
	)
	for attempt := 1; attempt <= r.cfg.RecheckAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.cfg.RecheckDelay); err != nil {
				return 0, err
			}
		}
		value, _, err := r.Remote(ctx, owner, mint)
		r.log.WithFields(logrus.Fields{
			"owner":   owner.String(),
			"mint":    mint.String(),
			"attempt": attempt,
			"value":   value,
		}).Debug("balance recheck")
		if err != nil {
			lastErr = err
			continue
		}
		last = value
		if accept(value) {
			r.mu.Lock()
			err := r.save(ctx, &Cached{Owner: owner, Mint: mint, Value: value, FetchedAt: r.now()})
			r.mu.Unlock()
			if err != nil {
				r.log.WithError(err).Warn("could not cache rechecked balance")
			}
			return value, nil
		}
	}
	if lastErr != nil {
		return last, fmt.Errorf("%w: %v", ErrNotSettled, lastErr)
	}
	return last, fmt.Errorf("%w: last seen %d", ErrNotSettled, last)
}

// Remote reads the balance straight from RPC. Native SOL is the owner's lamport
// balance; a token account that does not exist yet holds zero.
func (r *Reconciler) Remote(ctx context.Context, owner, mint solana.PublicKey) (uint64, uint8, error) {
	if mint.Equals(token.NativeMint) {
		v, err := r.reader.GetBalance(ctx, owner, r.cfg.Commitment)
		if err != nil {
			return 0, 0, fmt.Errorf("lamport balance of %s: %w", owner, err)
		}
		return v, 9, nil
	}

	program := solana.TokenProgramID
	var decimals uint8
	if r.mints != nil {
		info, err := r.mints.Get(ctx, mint)
		if err != nil {
			return 0, 0, err
		}
		program, decimals = info.Program, info.Decimals
	}
	ata, _, err := token.FindAssociatedTokenAddress(owner, mint, program)
	if err != nil {
		return 0, 0, err
	}
	bal, err := r.reader.GetTokenAccountBalance(ctx, ata, r.cfg.Commitment)
	if rpc.IsAccountNotFound(err) {
		return 0, decimals, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("token balance of %s: %w", ata, err)
	}
	return bal.Amount, bal.Decimals, nil
}

func (r *Reconciler) load(ctx context.Context, owner, mint solana.PublicKey) (*Cached, error) {
	raw, err := r.store.Get(ctx, Key(owner, mint))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	var c Cached
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("unmarshal balance: %w", err)
	}
	return &c, nil
}

func (r *Reconciler) save(ctx context.Context, c *Cached) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal balance: %w", err)
	}
	if err := r.store.Put(ctx, Key(c.Owner, c.Mint), raw, 0); err != nil {
		return fmt.Errorf("store balance: %w", err)
	}
	return nil
}
