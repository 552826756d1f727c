package rift

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeRift(t *testing.T, r Rift) []byte {
	t.Helper()
	data, err := r.Encode()
	require.NoError(t, err)
	// trailing fields are ignored by the decoder
	return append(data, make([]byte, 64)...)
}

func TestDecodeRift(t *testing.T) {
	treasury := solana.NewWallet().PublicKey()
	want := Rift{
		Name:                   "SOL_RIFT",
		Creator:                solana.NewWallet().PublicKey(),
		UnderlyingMint:         solana.NewWallet().PublicKey(),
		RiftMint:               solana.NewWallet().PublicKey(),
		Vault:                  solana.NewWallet().PublicKey(),
		FeesVault:              solana.NewWallet().PublicKey(),
		WithheldVault:          solana.NewWallet().PublicKey(),
		PartnerFeeBps:          50,
		TreasuryWallet:         &treasury,
		WrapFeeBps:             30,
		UnwrapFeeBps:           30,
		TotalUnderlyingWrapped: 1_000,
		TotalRiftMinted:        997,
		TotalBurned:            3,
	}

	got, err := DecodeRift(encodeRift(t, want))
	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.Nil(t, got.PartnerWallet)

	_, err = DecodeRift([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestExpectedWrapOutput(t *testing.T) {
	assert.Equal(t, uint64(997), ExpectedWrapOutput(1_000, 30))
	// fee rounds down
	assert.Equal(t, uint64(100), ExpectedWrapOutput(100, 30))
	assert.Equal(t, uint64(0), ExpectedWrapOutput(0, 30))
}

func TestFeeSplit_SumsToTotal(t *testing.T) {
	for _, total := range []uint64{1, 2, 3, 99, 100, 1_000_001} {
		p, tr := FeeSplit(total)
		assert.Equal(t, total, p+tr)
		assert.LessOrEqual(t, p, tr)
	}
}

func TestDerive(t *testing.T) {
	underlying := solana.NewWallet().PublicKey()
	creator := solana.NewWallet().PublicKey()

	a, err := Derive(underlying, creator)
	require.NoError(t, err)

	b, err := DeriveFromRift(a.Rift, a.RiftMint)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	seen := map[solana.PublicKey]bool{}
	for _, pk := range []solana.PublicKey{a.Rift, a.RiftMint, a.RiftMintAuthority, a.Vault, a.FeesVault, a.WithheldVault, a.VaultAuthority} {
		assert.False(t, seen[pk])
		seen[pk] = true
	}
}

func TestNewCreateRiftIx(t *testing.T) {
	creator := solana.NewWallet().PublicKey()
	underlying := solana.NewWallet().PublicKey()
	addrs, err := Derive(underlying, creator)
	require.NoError(t, err)

	ix, err := NewCreateRiftIx(creator, underlying, solana.TokenProgramID, addrs, CreateRiftParams{
		Name:           "BONK_RIFT",
		TransferFeeBps: 80,
	})
	require.NoError(t, err)
	assert.Len(t, ix.Accounts(), 13)

	data, err := ix.Data()
	require.NoError(t, err)
	// discriminator, None partner, name[32], len, fee, prefix
	require.Len(t, data, 8+1+32+1+2+1)
	assert.Equal(t, byte(0), data[8])
	assert.Equal(t, byte(9), data[41])
	assert.Equal(t, uint16(80), binary.LittleEndian.Uint16(data[42:]))

	_, err = NewCreateRiftIx(creator, underlying, solana.TokenProgramID, addrs, CreateRiftParams{Name: "X", TransferFeeBps: 50})
	assert.Error(t, err)
	_, err = NewCreateRiftIx(creator, underlying, solana.TokenProgramID, addrs, CreateRiftParams{Name: "X", TransferFeeBps: 101})
	assert.Error(t, err)
}

func TestNewDistributeFeesIx_OptionalPartner(t *testing.T) {
	addrs, err := Derive(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, err)

	d := DistributeAccounts{
		Payer:             solana.NewWallet().PublicKey(),
		UnderlyingMint:    solana.NewWallet().PublicKey(),
		UnderlyingProgram: solana.TokenProgramID,
		TreasuryWallet:    solana.NewWallet().PublicKey(),
	}
	ix, err := NewDistributeFeesIx(d, addrs, 100)
	require.NoError(t, err)
	accounts := ix.Accounts()
	require.Len(t, accounts, 12)
	assert.Equal(t, ProgramID, accounts[7].PublicKey)
	assert.Equal(t, ProgramID, accounts[8].PublicKey)

	partner := solana.NewWallet().PublicKey()
	d.PartnerWallet = &partner
	ix, err = NewDistributeFeesIx(d, addrs, 100)
	require.NoError(t, err)
	assert.Equal(t, partner, ix.Accounts()[7].PublicKey)
	assert.True(t, ix.Accounts()[8].IsWritable)

	_, err = NewDistributeFeesIx(d, addrs, 0)
	assert.Error(t, err)
}

func TestLookupError(t *testing.T) {
	e, ok := LookupError(CodeSlippageExceeded)
	require.True(t, ok)
	assert.Equal(t, "SlippageExceeded", e.Name)

	e, ok = LookupError(6000)
	require.True(t, ok)
	assert.Equal(t, "InvalidAccountData", e.Name)

	_, ok = LookupError(5999)
	assert.False(t, ok)
	_, ok = LookupError(9999)
	assert.False(t, ok)
}
