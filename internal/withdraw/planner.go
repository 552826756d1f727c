// Package withdraw turns a set of positions and a withdrawal mode into ordered,
// family-homogeneous transaction steps.
package withdraw

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/cpamm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/dlmm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
)

var (
	ErrInvalidPercentage = errors.New("percentage must be within (0, 100]")
	ErrNoPositions       = errors.New("no positions selected")
)

// MaxSingleRemovalsPerTx caps how many constant-product positions share one
// transaction; each removal carries its own NFT and token accounts.
const MaxSingleRemovalsPerTx = 2

type Mode int

const (
	ModePercentage Mode = iota
	ModeExplicit
)

func (m Mode) String() string {
	if m == ModeExplicit {
		return "explicit"
	}
	return "percentage"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "percentage", "":
		return ModePercentage, nil
	case "explicit":
		return ModeExplicit, nil
	default:
		return 0, fmt.Errorf("unknown withdrawal mode %q", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

type Request struct {
	Positions []pool.Position
	Mode      Mode
	// Percentage applies to every position in ModePercentage.
	Percentage decimal.Decimal
	// Selected lists position addresses withdrawn in full in ModeExplicit.
	Selected []solana.PublicKey
}

// BinRemoval withdraws Bps of every bin in [FromBinID, ToBinID] of one position.
type BinRemoval struct {
	Position  *pool.BinPosition `json:"position"`
	FromBinID int32             `json:"from_bin_id"`
	ToBinID   int32             `json:"to_bin_id"`
	Bps       uint16            `json:"bps"`
	// Close is set on the last batch of a full withdrawal.
	Close bool `json:"close"`
}

type SingleRemoval struct {
	Position       *pool.SinglePosition `json:"position"`
	LiquidityDelta *big.Int             `json:"liquidity_delta"`
	Bps            uint16               `json:"bps"`
	Close          bool                 `json:"close"`
}

// Step is exactly one transaction. Only the field matching Family is set.
type Step struct {
	Family      pool.Family      `json:"family"`
	Pool        solana.PublicKey `json:"pool"`
	Description string           `json:"description"`

	Bin    *BinRemoval     `json:"bin,omitempty"`
	Single []SingleRemoval `json:"single,omitempty"`
}

type Plan struct {
	Mode  Mode   `json:"mode"`
	Bps   uint16 `json:"bps"`
	Steps []Step `json:"steps"`
}

func (p *Plan) Empty() bool { return len(p.Steps) == 0 }

// PercentToBps validates pct and converts it to basis points. Zero is allowed and
// yields zero; anything that rounds to zero bps otherwise is rejected.
func PercentToBps(pct decimal.Decimal) (uint16, error) {
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidPercentage, pct)
	}
	if pct.IsZero() {
		return 0, nil
	}
	bps := pct.Mul(decimal.NewFromInt(100)).Floor().IntPart()
	if bps == 0 {
		return 0, fmt.Errorf("%w: %s is below one basis point", ErrInvalidPercentage, pct)
	}
	return uint16(bps), nil
}

// Build plans the withdrawal steps. Families are never mixed within a step: every
// bin batch is its own step, constant-product removals are grouped per pool.
func Build(req Request) (*Plan, error) {
	var (
		bps       uint16
		positions []pool.Position
		err       error
	)
	switch req.Mode {
	case ModePercentage:
		if bps, err = PercentToBps(req.Percentage); err != nil {
			return nil, err
		}
		if bps == 0 {
			return &Plan{Mode: req.Mode}, nil
		}
		positions = req.Positions
	case ModeExplicit:
		bps = constants.BpsDenominator
		positions = selectPositions(req.Positions, req.Selected)
	default:
		return nil, fmt.Errorf("unknown withdrawal mode %d", req.Mode)
	}
	if len(positions) == 0 {
		return nil, ErrNoPositions
	}

	var (
		bins    []pool.Position
		singles = make(map[solana.PublicKey][]pool.Position)
		pools   []solana.PublicKey
	)
	for _, p := range positions {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		switch p.Family {
		case pool.FamilyBinBased:
			bins = append(bins, p)
		case pool.FamilyConstantProduct:
			addr := p.Single.Pool
			if _, ok := singles[addr]; !ok {
				pools = append(pools, addr)
			}
			singles[addr] = append(singles[addr], p)
		}
	}

	plan := &Plan{Mode: req.Mode, Bps: bps}
	sort.SliceStable(bins, func(i, j int) bool {
		return bytes.Compare(bins[i].Bin.Address[:], bins[j].Bin.Address[:]) < 0
	})
	for _, p := range bins {
		plan.Steps = append(plan.Steps, binSteps(p.Bin, bps)...)
	}

	sort.Slice(pools, func(i, j int) bool { return bytes.Compare(pools[i][:], pools[j][:]) < 0 })
	for _, addr := range pools {
		plan.Steps = append(plan.Steps, singleSteps(addr, singles[addr], bps)...)
	}
	return plan, nil
}

func selectPositions(all []pool.Position, selected []solana.PublicKey) []pool.Position {
	want := make(map[solana.PublicKey]struct{}, len(selected))
	for _, s := range selected {
		want[s] = struct{}{}
	}
	var out []pool.Position
	for _, p := range all {
		if _, ok := want[p.Address()]; ok {
			out = append(out, p)
		}
	}
	return out
}

// binSteps splits the position range at bin array boundaries so each batch touches
// one bin array.
func binSteps(p *pool.BinPosition, bps uint16) []Step {
	var out []Step
	for from := p.LowerBinID; from <= p.UpperBinID; {
		_, arrayUpper := dlmm.BinArrayBounds(dlmm.BinArrayIndex(from))
		to := min(arrayUpper, p.UpperBinID)
		out = append(out, Step{
			Family: pool.FamilyBinBased,
			Pool:   p.Pool,
			Bin:    &BinRemoval{Position: p, FromBinID: from, ToBinID: to, Bps: bps},
		})
		from = to + 1
	}

	total := len(out)
	for i := range out {
		out[i].Description = fmt.Sprintf("remove bins %d..%d of %s (%d/%d)",
			out[i].Bin.FromBinID, out[i].Bin.ToBinID, short(p.Address), i+1, total)
	}
	if bps == constants.BpsDenominator && total > 0 {
		out[total-1].Bin.Close = true
	}
	return out
}

func singleSteps(poolAddr solana.PublicKey, positions []pool.Position, bps uint16) []Step {
	sort.SliceStable(positions, func(i, j int) bool {
		return bytes.Compare(positions[i].Single.Address[:], positions[j].Single.Address[:]) < 0
	})

	var out []Step
	for start := 0; start < len(positions); start += MaxSingleRemovalsPerTx {
		end := min(start+MaxSingleRemovalsPerTx, len(positions))
		step := Step{Family: pool.FamilyConstantProduct, Pool: poolAddr}
		for _, p := range positions[start:end] {
			step.Single = append(step.Single, SingleRemoval{
				Position:       p.Single,
				LiquidityDelta: cpamm.ShareOf(p.Single.Liquidity, bps),
				Bps:            bps,
				Close:          bps == constants.BpsDenominator,
			})
		}
		step.Description = fmt.Sprintf("remove %d position(s) from pool %s", len(step.Single), short(poolAddr))
		out = append(out, step)
	}
	return out
}

func short(pk solana.PublicKey) string {
	s := pk.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}
