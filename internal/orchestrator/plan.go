package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/aman-zulfiqar/rift-liquidity/internal/confirm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
)

// Mode decides how the transactions of a plan are submitted.
type Mode int

const (
	// ModeSequential submits one transaction at a time; each must confirm before
	// the next is built.
	ModeSequential Mode = iota
	// ModeAtomicBundle submits every transaction through the relay to land in one
	// slot or not at all.
	ModeAtomicBundle
)

func (m Mode) String() string {
	if m == ModeAtomicBundle {
		return "atomic_bundle"
	}
	return "sequential"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

type Intent string

const (
	IntentLaunch       Intent = "launch"
	IntentAddLiquidity Intent = "add_liquidity"
	IntentCreatePool   Intent = "create_pool"
	IntentWithdraw     Intent = "withdraw"
	IntentClaimFees    Intent = "claim_fees"
	IntentUnwrap       Intent = "unwrap"
)

// Requirement is a balance the owner must hold before a step is submitted.
type Requirement struct {
	Mint   solana.PublicKey `json:"mint"`
	Amount uint64           `json:"amount"`
}

// Delta is an expected balance change applied optimistically once a step confirms.
type Delta struct {
	Mint   solana.PublicKey `json:"mint"`
	Amount int64            `json:"amount"`
}

// Built is one transaction's worth of instructions plus everything the runner
// must do around submitting it.
type Built struct {
	Instructions []solana.Instruction
	Requirements []Requirement
	Deltas       []Delta

	// Signers are fresh keypairs the transaction creates (positions, NFT mints).
	Signers []solana.PrivateKey

	// Quote is re-checked against current reserves right before submission.
	Quote *quote.DepositQuote

	// CreatedPool is recorded as an override once the step confirms.
	CreatedPool *pool.Pool
}

// StepContext is what a deferred builder sees: the records of every step that
// confirmed before it.
type StepContext struct {
	Plan    *TransactionPlan
	Records []*confirm.Record
}

// Step builds one transaction. Build runs only after the previous step
// confirmed, so it may read chain state that step produced.
type Step struct {
	Label string
	Build func(ctx context.Context, sc *StepContext) (*Built, error)
}

// TransactionPlan is an ordered list of transactions and how to submit them.
type TransactionPlan struct {
	ID     uuid.UUID        `json:"id"`
	Intent Intent           `json:"intent"`
	Mode   Mode             `json:"mode"`
	Owner  solana.PublicKey `json:"owner"`
	Steps  []Step           `json:"-"`

	// Rift is recorded with created pool overrides; zero when not applicable.
	Rift solana.PublicKey `json:"rift,omitempty"`

	// Summary is what the caller is shown before signing.
	Summary map[string]any `json:"summary,omitempty"`
}

func newPlan(intent Intent, mode Mode, owner solana.PublicKey) *TransactionPlan {
	return &TransactionPlan{ID: uuid.New(), Intent: intent, Mode: mode, Owner: owner, Summary: map[string]any{}}
}

func (p *TransactionPlan) add(label string, build func(context.Context, *StepContext) (*Built, error)) {
	p.Steps = append(p.Steps, Step{Label: label, Build: build})
}

// static wraps an already built transaction as a step.
func static(b *Built) func(context.Context, *StepContext) (*Built, error) {
	return func(context.Context, *StepContext) (*Built, error) { return b, nil }
}

func (p *TransactionPlan) Labels() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Label
	}
	return out
}

func (p *TransactionPlan) String() string {
	return fmt.Sprintf("%s plan %s (%s): %s", p.Intent, p.ID, p.Mode, strings.Join(p.Labels(), " -> "))
}

// Progress is reported before and after every step.
type Progress struct {
	PlanID  uuid.UUID `json:"plan_id"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
	Status  string    `json:"status"`
}

type ProgressFunc func(Progress)
