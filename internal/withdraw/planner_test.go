package withdraw

import (
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
)

func binPos(lower, upper int32) pool.Position {
	return pool.NewBinPosition(&pool.BinPosition{
		Address:    solana.NewWallet().PublicKey(),
		Pool:       solana.NewWallet().PublicKey(),
		LowerBinID: lower,
		UpperBinID: upper,
	})
}

func singlePos(poolAddr solana.PublicKey, liquidity int64) pool.Position {
	return pool.NewSinglePosition(&pool.SinglePosition{
		Address:   solana.NewWallet().PublicKey(),
		Pool:      poolAddr,
		NFTMint:   solana.NewWallet().PublicKey(),
		Liquidity: big.NewInt(liquidity),
	})
}

// simulate applies a plan and returns the fraction of liquidity left per position,
// treating every bin as holding one unit of liquidity.
func simulate(positions []pool.Position, plan *Plan) map[solana.PublicKey]decimal.Decimal {
	bins := make(map[solana.PublicKey]map[int32]decimal.Decimal)
	singles := make(map[solana.PublicKey]*big.Int)
	for _, p := range positions {
		switch p.Family {
		case pool.FamilyBinBased:
			m := make(map[int32]decimal.Decimal)
			for id := p.Bin.LowerBinID; id <= p.Bin.UpperBinID; id++ {
				m[id] = decimal.NewFromInt(1)
			}
			bins[p.Bin.Address] = m
		case pool.FamilyConstantProduct:
			singles[p.Single.Address] = new(big.Int).Set(p.Single.Liquidity)
		}
	}

	for _, s := range plan.Steps {
		if s.Bin != nil {
			share := decimal.NewFromInt(int64(s.Bin.Bps)).Div(decimal.NewFromInt(10_000))
			m := bins[s.Bin.Position.Address]
			for id := s.Bin.FromBinID; id <= s.Bin.ToBinID; id++ {
				m[id] = m[id].Sub(m[id].Mul(share))
			}
		}
		for _, r := range s.Single {
			singles[r.Position.Address].Sub(singles[r.Position.Address], r.LiquidityDelta)
		}
	}

	out := make(map[solana.PublicKey]decimal.Decimal)
	for addr, m := range bins {
		left := decimal.Zero
		for _, v := range m {
			left = left.Add(v)
		}
		out[addr] = left
	}
	for addr, l := range singles {
		out[addr] = decimal.NewFromBigInt(l, 0)
	}
	return out
}

func TestBuild_FullPercentageEmptiesEverything(t *testing.T) {
	cp := solana.NewWallet().PublicKey()
	positions := []pool.Position{
		binPos(-100, -31),
		binPos(0, 69),
		binPos(65, 134),
		singlePos(cp, 1_000_003),
		singlePos(cp, 7),
		singlePos(cp, 0),
		singlePos(solana.NewWallet().PublicKey(), 42),
	}

	plan, err := Build(Request{Positions: positions, Mode: ModePercentage, Percentage: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, uint16(10_000), plan.Bps)

	for addr, left := range simulate(positions, plan) {
		assert.True(t, left.IsZero(), "position %s keeps %s", addr, left)
	}
}

func TestBuild_NeverMixesFamilies(t *testing.T) {
	cp := solana.NewWallet().PublicKey()
	positions := []pool.Position{binPos(0, 10), singlePos(cp, 5), binPos(-5, 80), singlePos(cp, 9), singlePos(cp, 11)}

	plan, err := Build(Request{Positions: positions, Mode: ModePercentage, Percentage: decimal.NewFromInt(50)})
	require.NoError(t, err)

	var binSteps, singleSteps int
	for _, s := range plan.Steps {
		switch s.Family {
		case pool.FamilyBinBased:
			require.NotNil(t, s.Bin)
			assert.Empty(t, s.Single)
			assert.Equal(t, uint16(5_000), s.Bin.Bps)
			assert.False(t, s.Bin.Close)
			binSteps++
		case pool.FamilyConstantProduct:
			assert.Nil(t, s.Bin)
			assert.LessOrEqual(t, len(s.Single), MaxSingleRemovalsPerTx)
			for _, r := range s.Single {
				assert.Equal(t, cp, r.Position.Pool)
				assert.False(t, r.Close)
			}
			singleSteps++
		}
	}
	// [0,10] is one batch, [-5,80] spans arrays -1, 0 and 1
	assert.Equal(t, 4, binSteps)
	assert.Equal(t, 2, singleSteps)
}

func TestBuild_BinBatchesFollowArrays(t *testing.T) {
	p := binPos(-75, -1)
	plan, err := Build(Request{Positions: []pool.Position{p}, Mode: ModeExplicit, Selected: []solana.PublicKey{p.Address()}})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)

	assert.Equal(t, int32(-75), plan.Steps[0].Bin.FromBinID)
	assert.Equal(t, int32(-71), plan.Steps[0].Bin.ToBinID)
	assert.Equal(t, int32(-70), plan.Steps[1].Bin.FromBinID)
	assert.Equal(t, int32(-1), plan.Steps[1].Bin.ToBinID)
	assert.False(t, plan.Steps[0].Bin.Close)
	assert.True(t, plan.Steps[1].Bin.Close)
	assert.Contains(t, plan.Steps[1].Description, "(2/2)")
}

func TestBuild_Explicit(t *testing.T) {
	cp := solana.NewWallet().PublicKey()
	keep, take := singlePos(cp, 10), singlePos(cp, 20)

	plan, err := Build(Request{
		Positions: []pool.Position{keep, take},
		Mode:      ModeExplicit,
		Selected:  []solana.PublicKey{take.Address()},
	})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	require.Len(t, plan.Steps[0].Single, 1)
	r := plan.Steps[0].Single[0]
	assert.Equal(t, take.Address(), r.Position.Address)
	assert.Equal(t, int64(20), r.LiquidityDelta.Int64())
	assert.True(t, r.Close)

	_, err = Build(Request{Positions: []pool.Position{keep}, Mode: ModeExplicit})
	assert.ErrorIs(t, err, ErrNoPositions)
}

func TestBuild_PercentageValidation(t *testing.T) {
	positions := []pool.Position{binPos(0, 3)}

	plan, err := Build(Request{Positions: positions, Mode: ModePercentage, Percentage: decimal.Zero})
	require.NoError(t, err)
	assert.True(t, plan.Empty())

	for _, pct := range []string{"-1", "100.01", "250", "0.001"} {
		_, err := Build(Request{Positions: positions, Mode: ModePercentage, Percentage: decimal.RequireFromString(pct)})
		assert.ErrorIs(t, err, ErrInvalidPercentage, pct)
	}

	_, err = Build(Request{Mode: ModePercentage, Percentage: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, ErrNoPositions)
}

func TestPercentToBps(t *testing.T) {
	bps, err := PercentToBps(decimal.RequireFromString("12.345"))
	require.NoError(t, err)
	assert.Equal(t, uint16(1_234), bps)
}

func TestModeText(t *testing.T) {
	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("explicit")))
	assert.Equal(t, ModeExplicit, m)
	assert.Error(t, m.UnmarshalText([]byte("everything")))
}
