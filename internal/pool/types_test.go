package pool

import (
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalOrder(t *testing.T) {
	var low, high solana.PublicKey
	low[0] = 1
	high[0] = 2

	a, b := CanonicalOrder(high, low)
	assert.Equal(t, low, a)
	assert.Equal(t, high, b)
	assert.True(t, SortsBefore(low, high))
	assert.False(t, SortsBefore(high, low))
}

func TestPoolValidate(t *testing.T) {
	var mintA, mintB solana.PublicKey
	mintA[0], mintB[0] = 1, 2

	p := &Pool{Family: FamilyBinBased, TokenAMint: mintA, TokenBMint: mintB, Bin: &BinState{}}
	require.NoError(t, p.Validate())

	p.TokenBMint = mintA
	assert.Error(t, p.Validate())

	p = &Pool{Family: FamilyConstantProduct, TokenAMint: mintA, TokenBMint: mintB, Bin: &BinState{}}
	assert.Error(t, p.Validate())

	p = &Pool{Family: FamilyUnknown, TokenAMint: mintA, TokenBMint: mintB}
	assert.Error(t, p.Validate())
}

func TestSideOf(t *testing.T) {
	var mintA, mintB, other solana.PublicKey
	mintA[0], mintB[0], other[0] = 1, 2, 3
	p := &Pool{TokenAMint: mintA, TokenBMint: mintB, ReserveA: 10, ReserveB: 1000}

	s, err := p.SideOf(mintB)
	require.NoError(t, err)
	assert.Equal(t, SideB, s)
	assert.Equal(t, uint64(1000), p.Reserve(s))
	assert.Equal(t, mintA, p.Mint(s.Other()))

	_, err = p.SideOf(other)
	assert.Error(t, err)
}

func TestFamilyText(t *testing.T) {
	b, err := FamilyConstantProduct.MarshalText()
	require.NoError(t, err)

	var f Family
	require.NoError(t, f.UnmarshalText(b))
	assert.Equal(t, FamilyConstantProduct, f)
	assert.Error(t, f.UnmarshalText([]byte("orderbook")))
}

func TestPositionValidate(t *testing.T) {
	bin := NewBinPosition(&BinPosition{LowerBinID: 10, UpperBinID: 5})
	assert.Error(t, bin.Validate())

	bin.Bin.UpperBinID = 80
	require.NoError(t, bin.Validate())
	assert.Equal(t, 71, bin.Bin.Width())

	single := NewSinglePosition(&SinglePosition{Liquidity: big.NewInt(5)})
	assert.NoError(t, single.Validate())
	assert.Error(t, Position{Family: FamilyConstantProduct}.Validate())
}
