package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/confirm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/history"
	"github.com/aman-zulfiqar/rift-liquidity/internal/overrides"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
)

// Chain is the slice of the RPC client the runner needs.
type Chain interface {
	GetLatestBlockhash(ctx context.Context, commitment string) (solana.Hash, uint64, error)
	SimulateTransaction(ctx context.Context, raw []byte, commitment string) (*rpc.SimulationResult, error)
}

type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction, extra ...solana.PrivateKey) (*solana.Transaction, error)
}

type Confirmer interface {
	SubmitAndConfirm(ctx context.Context, tx *solana.Transaction, timeout time.Duration) (*confirm.Record, error)
	Confirm(ctx context.Context, sig solana.Signature, tx *solana.Transaction, timeout time.Duration) (*confirm.Record, error)
}

// Relay submits atomic bundles.
type Relay interface {
	SubmitBundle(ctx context.Context, txs []*solana.Transaction) (string, error)
	TipInstruction(payer solana.PublicKey, lamports uint64) solana.Instruction
}

type OverrideWriter interface {
	Upsert(ctx context.Context, p pool.Pool, rift solana.PublicKey, signature string) (*overrides.Override, error)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type RunnerConfig struct {
	Commitment        string
	StaleToleranceBps uint16
	TipLamports       uint64
	// ConfirmTimeout bounds polling per transaction; zero uses the tracker's
	// attempt limit.
	ConfirmTimeout time.Duration
}

// RunnerDeps wires the runner. Relay, Overrides, History and Publisher are optional.
type RunnerDeps struct {
	Chain     Chain
	Signer    Signer
	Confirmer Confirmer
	Balances  Balances
	Pools     PoolReader
	Relay     Relay
	Overrides OverrideWriter
	History   history.Store
	Publisher Publisher
}

// Runner executes transaction plans. It is the only component that signs and
// submits.
type Runner struct {
	RunnerDeps
	cfg RunnerConfig
	log *logrus.Logger
}

func NewRunner(deps RunnerDeps, cfg RunnerConfig, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.New()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.StaleToleranceBps == 0 {
		cfg.StaleToleranceBps = constants.StaleQuoteToleranceBps
	}
	if cfg.TipLamports == 0 {
		cfg.TipLamports = constants.DefaultBundleTipLamports
	}
	if deps.History == nil {
		deps.History = history.Nop{}
	}
	return &Runner{RunnerDeps: deps, cfg: cfg, log: log}
}

// Result is what a run produced. Records holds every transaction that reached a
// terminal state, including the one that failed or timed out.
type Result struct {
	PlanID    uuid.UUID         `json:"plan_id"`
	BundleID  string            `json:"bundle_id,omitempty"`
	Records   []*confirm.Record `json:"records"`
	Completed bool              `json:"completed"`
}

// Run executes plan. Cancelling ctx stops the run before the next submission;
// a transaction already submitted is still tracked to a terminal state.
func (r *Runner) Run(ctx context.Context, plan *TransactionPlan, progress ProgressFunc) (*Result, error) {
	if !plan.Owner.Equals(r.Signer.PublicKey()) {
		return nil, fmt.Errorf("plan owner %s is not the signing wallet %s", plan.Owner, r.Signer.PublicKey())
	}
	r.log.WithFields(logrus.Fields{
		"plan":   plan.ID.String(),
		"intent": string(plan.Intent),
		"mode":   plan.Mode.String(),
		"steps":  len(plan.Steps),
	}).Info("running plan")

	if plan.Mode == ModeAtomicBundle {
		return r.runBundle(ctx, plan, progress)
	}
	return r.runSequential(ctx, plan, progress)
}

func (r *Runner) runSequential(ctx context.Context, plan *TransactionPlan, progress ProgressFunc) (*Result, error) {
	res := &Result{PlanID: plan.ID}
	sc := &StepContext{Plan: plan}
	total := len(plan.Steps)

	for i, step := range plan.Steps {
		n := i + 1
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r.report(ctx, progress, plan, n, "building "+step.Label)

		built, err := step.Build(ctx, sc)
		if err != nil {
			return res, fmt.Errorf("step %d/%d (%s): %w", n, total, step.Label, err)
		}
		if built == nil || len(built.Instructions) == 0 {
			r.report(ctx, progress, plan, n, "nothing to do for "+step.Label)
			continue
		}
		if err := r.preflight(ctx, plan.Owner, built.Requirements, built.Quote); err != nil {
			return res, err
		}

		hash, _, err := r.Chain.GetLatestBlockhash(ctx, r.cfg.Commitment)
		if err != nil {
			return res, fmt.Errorf("blockhash: %w", err)
		}
		tx, err := r.sign(ctx, plan.Owner, built, hash)
		if err != nil {
			return res, err
		}
		if err := r.simulate(ctx, step.Label, tx); err != nil {
			return res, err
		}

		r.report(ctx, progress, plan, n, "submitting "+step.Label)
		rec, err := r.Confirmer.SubmitAndConfirm(ctx, tx, r.cfg.ConfirmTimeout)
		if rec != nil {
			res.Records = append(res.Records, rec)
			sc.Records = append(sc.Records, rec)
			r.record(ctx, plan, i, step.Label, rec)
		}
		if err != nil {
			r.report(ctx, progress, plan, n, failureStatus(step.Label, err))
			return res, fmt.Errorf("step %d/%d (%s): %w", n, total, step.Label, err)
		}

		r.settle(ctx, plan, built, rec)
		r.report(ctx, progress, plan, n, "confirmed "+step.Label)
	}

	res.Completed = true
	return res, nil
}

// runBundle builds every step up front, tips the last transaction and hands all
// of them to the relay together. Only the first transaction is simulated: the
// rest read accounts the earlier ones create.
func (r *Runner) runBundle(ctx context.Context, plan *TransactionPlan, progress ProgressFunc) (*Result, error) {
	if r.Relay == nil {
		return nil, ErrPartialBundleUnavailable
	}
	if len(plan.Steps) == 0 {
		return &Result{PlanID: plan.ID, Completed: true}, nil
	}
	if len(plan.Steps) > constants.MaxBundleTransactions {
		return nil, fmt.Errorf("plan has %d transactions, a bundle holds at most %d", len(plan.Steps), constants.MaxBundleTransactions)
	}
	res := &Result{PlanID: plan.ID}
	sc := &StepContext{Plan: plan}

	builts := make([]*Built, len(plan.Steps))
	var reqs []Requirement
	for i, step := range plan.Steps {
		r.report(ctx, progress, plan, i+1, "building "+step.Label)
		built, err := step.Build(ctx, sc)
		if err != nil {
			return res, fmt.Errorf("step %d (%s): %w", i+1, step.Label, err)
		}
		if built == nil || len(built.Instructions) == 0 {
			return res, fmt.Errorf("step %d (%s) is empty; bundles cannot skip transactions", i+1, step.Label)
		}
		if err := r.checkQuote(ctx, built.Quote); err != nil {
			return res, err
		}
		reqs = append(reqs, built.Requirements...)
		builts[i] = built
	}
	if err := r.preflight(ctx, plan.Owner, reqs, nil); err != nil {
		return res, err
	}

	// static steps share their Built with the plan, so the tip goes on a copy
	tipped := *builts[len(builts)-1]
	tipped.Instructions = append(slices.Clone(tipped.Instructions), r.Relay.TipInstruction(plan.Owner, r.cfg.TipLamports))
	builts[len(builts)-1] = &tipped

	hash, _, err := r.Chain.GetLatestBlockhash(ctx, r.cfg.Commitment)
	if err != nil {
		return res, fmt.Errorf("blockhash: %w", err)
	}
	txs := make([]*solana.Transaction, len(builts))
	for i, built := range builts {
		if txs[i], err = r.sign(ctx, plan.Owner, built, hash); err != nil {
			return res, err
		}
	}
	if err := r.simulate(ctx, plan.Steps[0].Label, txs[0]); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	r.report(ctx, progress, plan, 1, "submitting bundle")
	id, err := r.Relay.SubmitBundle(ctx, txs)
	if err != nil {
		return res, err
	}
	res.BundleID = id

	// a bundle lands whole or not at all, so the first terminal failure decides
	for i, tx := range txs {
		label := plan.Steps[i].Label
		rec, err := r.Confirmer.Confirm(ctx, tx.Signatures[0], tx, r.cfg.ConfirmTimeout)
		if rec != nil {
			res.Records = append(res.Records, rec)
			r.record(ctx, plan, i, label, rec)
		}
		if err != nil {
			r.report(ctx, progress, plan, i+1, failureStatus(label, err))
			return res, fmt.Errorf("bundle %s, transaction %d (%s): %w", id, i+1, label, err)
		}
		r.report(ctx, progress, plan, i+1, "confirmed "+label)
	}
	for i, built := range builts {
		r.settle(ctx, plan, built, res.Records[i])
	}

	res.Completed = true
	return res, nil
}

// preflight fails before anything is signed when the owner cannot cover reqs.
func (r *Runner) preflight(ctx context.Context, owner solana.PublicKey, reqs []Requirement, q *quote.DepositQuote) error {
	totals := make(map[solana.PublicKey]uint64)
	var order []solana.PublicKey
	for _, req := range reqs {
		if _, ok := totals[req.Mint]; !ok {
			order = append(order, req.Mint)
		}
		totals[req.Mint] += req.Amount
	}
	for _, mint := range order {
		bal, err := r.Balances.Get(ctx, owner, mint)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", mint, err)
		}
		if bal.Value < totals[mint] {
			return &InsufficientBalanceError{Mint: mint, Required: totals[mint], Available: bal.Value}
		}
	}
	return r.checkQuote(ctx, q)
}

// checkQuote re-reads the pool and rejects a quote whose ratio has moved.
func (r *Runner) checkQuote(ctx context.Context, q *quote.DepositQuote) error {
	if q == nil || r.Pools == nil {
		return nil
	}
	current, err := r.Pools.Classify(ctx, q.PoolAddress)
	if err != nil {
		return fmt.Errorf("re-read pool %s: %w", q.PoolAddress, err)
	}
	return quote.CheckStale(q, current, r.cfg.StaleToleranceBps)
}

func (r *Runner) sign(ctx context.Context, owner solana.PublicKey, built *Built, hash solana.Hash) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(built.Instructions, hash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return r.Signer.SignTransaction(ctx, tx, built.Signers...)
}

func (r *Runner) simulate(ctx context.Context, label string, tx *solana.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize transaction: %w", err)
	}
	sim, err := r.Chain.SimulateTransaction(ctx, raw, r.cfg.Commitment)
	if err != nil {
		return fmt.Errorf("simulate %s: %w", label, err)
	}
	if !sim.Failed() {
		r.log.WithFields(logrus.Fields{"step": label, "units": sim.UnitsConsumed}).Debug("simulation passed")
		return nil
	}
	decoded := confirm.DecodeError(sim.Err, confirm.TransactionPrograms(tx))
	r.log.WithFields(logrus.Fields{"step": label, "logs": len(sim.Logs)}).Warn("simulation failed")
	return &SimulationFailedError{Step: label, Err: decoded, Logs: sim.Logs}
}

// settle applies optimistic balance changes and records created pools. The
// transaction is already final, so failures here are logged only.
func (r *Runner) settle(ctx context.Context, plan *TransactionPlan, built *Built, rec *confirm.Record) {
	for _, d := range built.Deltas {
		if _, err := r.Balances.ApplyDelta(ctx, plan.Owner, d.Mint, d.Amount); err != nil {
			r.log.WithError(err).WithField("mint", d.Mint.String()).Warn("could not apply balance delta")
		}
	}
	if built.CreatedPool == nil || r.Overrides == nil {
		return
	}
	if _, err := r.Overrides.Upsert(ctx, *built.CreatedPool, plan.Rift, rec.Signature.String()); err != nil {
		r.log.WithError(err).WithField("pool", built.CreatedPool.Address.String()).Warn("could not record pool override")
	}
}

func (r *Runner) record(ctx context.Context, plan *TransactionPlan, index int, label string, rec *confirm.Record) {
	entry := history.FromRecord(plan.ID, string(plan.Intent), index, label, rec)
	if err := r.History.Insert(ctx, entry); err != nil {
		r.log.WithError(err).WithField("signature", rec.Signature.String()).Warn("could not store confirmation history")
	}
}

func (r *Runner) report(ctx context.Context, progress ProgressFunc, plan *TransactionPlan, current int, status string) {
	ev := Progress{PlanID: plan.ID, Current: current, Total: len(plan.Steps), Status: status}
	r.log.WithFields(logrus.Fields{
		"plan": plan.ID.String(),
		"step": fmt.Sprintf("%d/%d", current, ev.Total),
	}).Info(status)

	if progress != nil {
		progress(ev)
	}
	if r.Publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := r.Publisher.Publish(ctx, constants.ChannelPlanProgress, payload); err != nil {
		r.log.WithError(err).Debug("could not publish progress")
	}
}

func failureStatus(label string, err error) string {
	if confirm.IsTimedOut(err) {
		return "timed out " + label
	}
	return "failed " + label
}
