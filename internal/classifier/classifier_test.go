package classifier

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/rift-liquidity/internal/anchor"
	"github.com/aman-zulfiqar/rift-liquidity/internal/cache"
	"github.com/aman-zulfiqar/rift-liquidity/internal/cpamm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/dlmm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/logger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/overrides"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
)

type fakeChain struct {
	accounts map[solana.PublicKey]*rpc.AccountInfo
	balances map[solana.PublicKey]uint64
	program  []rpc.ProgramAccount
	owned    []rpc.OwnedTokenAccount
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		accounts: map[solana.PublicKey]*rpc.AccountInfo{},
		balances: map[solana.PublicKey]uint64{},
	}
}

func (f *fakeChain) GetAccountInfo(_ context.Context, a solana.PublicKey, _ string) (*rpc.AccountInfo, error) {
	return f.accounts[a], nil
}

func (f *fakeChain) GetMultipleAccounts(_ context.Context, addrs []solana.PublicKey, _ string) ([]*rpc.AccountInfo, error) {
	out := make([]*rpc.AccountInfo, len(addrs))
	for i, a := range addrs {
		out[i] = f.accounts[a]
	}
	return out, nil
}

func (f *fakeChain) GetTokenAccountBalance(_ context.Context, a solana.PublicKey, _ string) (*rpc.TokenBalance, error) {
	v, ok := f.balances[a]
	if !ok {
		return nil, errors.New("could not find account")
	}
	return &rpc.TokenBalance{Amount: v}, nil
}

func (f *fakeChain) GetProgramAccounts(context.Context, solana.PublicKey, uint64, []rpc.MemcmpFilter, string) ([]rpc.ProgramAccount, error) {
	return f.program, nil
}

func (f *fakeChain) GetTokenAccountsByOwner(context.Context, solana.PublicKey, solana.PublicKey, string) ([]rpc.OwnedTokenAccount, error) {
	return f.owned, nil
}

func lbPairData(tokenX, tokenY, reserveX, reserveY solana.PublicKey, activeID int32) []byte {
	data := make([]byte, 904)
	disc := anchor.AccountDiscriminator("LbPair")
	copy(data, disc[:])
	binary.LittleEndian.PutUint16(data[8:], 10_000)
	binary.LittleEndian.PutUint32(data[76:], uint32(activeID))
	binary.LittleEndian.PutUint16(data[80:], 10)
	copy(data[88:], tokenX[:])
	copy(data[120:], tokenY[:])
	copy(data[152:], reserveX[:])
	copy(data[184:], reserveY[:])
	return data
}

func putU128(dst []byte, v *big.Int) {
	lo := new(big.Int).And(v, new(big.Int).SetUint64(^uint64(0))).Uint64()
	binary.LittleEndian.PutUint64(dst[:8], lo)
	binary.LittleEndian.PutUint64(dst[8:16], new(big.Int).Rsh(v, 64).Uint64())
}

func cpPoolData(mintA, mintB, vaultA, vaultB solana.PublicKey) []byte {
	data := make([]byte, 1112)
	disc := anchor.AccountDiscriminator("Pool")
	copy(data, disc[:])
	binary.LittleEndian.PutUint64(data[8:], 10_000_000)
	copy(data[168:], mintA[:])
	copy(data[200:], mintB[:])
	copy(data[232:], vaultA[:])
	copy(data[264:], vaultB[:])
	putU128(data[360:], big.NewInt(5))
	putU128(data[424:], cpamm.MinSqrtPrice)
	putU128(data[440:], cpamm.MaxSqrtPrice)
	putU128(data[456:], new(big.Int).Lsh(big.NewInt(1), 64))
	return data
}

func key() solana.PublicKey { return solana.NewWallet().PublicKey() }

func TestClassify_BinBased(t *testing.T) {
	chain := newFakeChain()
	addr, x, y, rx, ry := key(), key(), key(), key(), key()
	chain.accounts[addr] = &rpc.AccountInfo{Address: addr, Owner: dlmm.ProgramID, Data: lbPairData(x, y, rx, ry, -12)}
	chain.balances[rx] = 10
	chain.balances[ry] = 1_000

	p, err := New(chain, nil, "confirmed", logger.Discard()).Classify(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, pool.FamilyBinBased, p.Family)
	assert.Equal(t, x, p.TokenAMint)
	assert.Equal(t, y, p.TokenBMint)
	assert.Equal(t, uint64(10), p.ReserveA)
	assert.Equal(t, uint64(1_000), p.ReserveB)
	assert.Equal(t, int32(-12), p.Bin.ActiveID)
	assert.Equal(t, uint16(10), p.FeeBps)
	assert.NoError(t, p.Validate())
}

func TestClassify_ConstantProduct(t *testing.T) {
	chain := newFakeChain()
	addr, a, b, va, vb := key(), key(), key(), key(), key()
	chain.accounts[addr] = &rpc.AccountInfo{Address: addr, Owner: cpamm.ProgramID, Data: cpPoolData(a, b, va, vb)}
	chain.balances[va] = 7
	chain.balances[vb] = 0

	p, err := New(chain, nil, "confirmed", logger.Discard()).Classify(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, pool.FamilyConstantProduct, p.Family)
	assert.Equal(t, a, p.TokenAMint)
	assert.Equal(t, uint16(100), p.FeeBps)
	assert.Equal(t, uint64(7), p.ReserveA)
	assert.Equal(t, int64(5), p.ConstantProduct.Liquidity.Int64())
}

func TestClassify_UnknownOwner(t *testing.T) {
	chain := newFakeChain()
	addr := key()
	owner := key()
	chain.accounts[addr] = &rpc.AccountInfo{Address: addr, Owner: owner, Data: []byte{1}}

	_, err := New(chain, nil, "confirmed", logger.Discard()).Classify(context.Background(), addr)
	var cerr *pool.ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, owner, cerr.Owner)
}

func TestClassify_BadLayout(t *testing.T) {
	chain := newFakeChain()
	addr := key()
	chain.accounts[addr] = &rpc.AccountInfo{Address: addr, Owner: dlmm.ProgramID, Data: []byte{1, 2, 3}}

	_, err := New(chain, nil, "confirmed", logger.Discard()).Classify(context.Background(), addr)
	var cerr *pool.ClassificationError
	assert.ErrorAs(t, err, &cerr)
}

func TestClassify_RejectsSameMintOnBothSides(t *testing.T) {
	for name, acc := range map[string]func(addr, mint, v1, v2 solana.PublicKey) *rpc.AccountInfo{
		"bin_based": func(addr, mint, v1, v2 solana.PublicKey) *rpc.AccountInfo {
			return &rpc.AccountInfo{Address: addr, Owner: dlmm.ProgramID, Data: lbPairData(mint, mint, v1, v2, 0)}
		},
		"constant_product": func(addr, mint, v1, v2 solana.PublicKey) *rpc.AccountInfo {
			return &rpc.AccountInfo{Address: addr, Owner: cpamm.ProgramID, Data: cpPoolData(mint, mint, v1, v2)}
		},
	} {
		t.Run(name, func(t *testing.T) {
			chain := newFakeChain()
			addr, mint, v1, v2 := key(), key(), key(), key()
			chain.accounts[addr] = acc(addr, mint, v1, v2)
			chain.balances[v1] = 1
			chain.balances[v2] = 1

			_, err := New(chain, nil, "confirmed", logger.Discard()).Classify(context.Background(), addr)
			var cerr *pool.ClassificationError
			require.ErrorAs(t, err, &cerr)
			assert.Contains(t, cerr.Reason, "share mint")
		})
	}
}

func TestClassify_FallsBackToOverride(t *testing.T) {
	chain := newFakeChain()
	store, err := overrides.NewStore(cache.NewMemoryStore())
	require.NoError(t, err)

	p := pool.Pool{
		Address:    key(),
		Family:     pool.FamilyBinBased,
		TokenAMint: key(),
		TokenBMint: key(),
		ReserveA:   55,
		Bin:        &pool.BinState{ActiveID: 3, BinStep: 25, ReserveXAccount: key(), ReserveYAccount: key()},
	}
	_, err = store.Upsert(context.Background(), p, solana.PublicKey{}, "sig")
	require.NoError(t, err)

	c := New(chain, store, "confirmed", logger.Discard())
	got, err := c.Classify(context.Background(), p.Address)
	require.NoError(t, err)
	assert.Equal(t, p.Address, got.Address)
	assert.Equal(t, uint64(55), got.ReserveA, "recorded reserves stand in while vaults are invisible")

	_, err = c.Classify(context.Background(), key())
	var cerr *pool.ClassificationError
	assert.ErrorAs(t, err, &cerr)
}

func TestPositions_Bin(t *testing.T) {
	chain := newFakeChain()
	lbPair, owner := key(), key()

	data := make([]byte, 8120)
	disc := anchor.AccountDiscriminator("PositionV2")
	copy(data, disc[:])
	copy(data[8:], lbPair[:])
	copy(data[40:], owner[:])
	binary.LittleEndian.PutUint32(data[7912:], 0)
	binary.LittleEndian.PutUint32(data[7916:], 69)
	posAddr := key()
	chain.program = []rpc.ProgramAccount{
		{Address: posAddr, Account: rpc.AccountInfo{Address: posAddr, Owner: dlmm.ProgramID, Data: data}},
		{Address: key(), Account: rpc.AccountInfo{Data: []byte{0}}},
	}

	c := New(chain, nil, "confirmed", logger.Discard())
	positions, err := c.Positions(context.Background(), owner, &pool.Pool{Address: lbPair, Family: pool.FamilyBinBased})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, posAddr, positions[0].Address())
	assert.Equal(t, 70, positions[0].Bin.Width())
}

func TestPositions_Single(t *testing.T) {
	chain := newFakeChain()
	poolAddr, owner, nft := key(), key(), key()
	posAddr, err := cpamm.DerivePosition(nft)
	require.NoError(t, err)

	data := make([]byte, 408)
	disc := anchor.AccountDiscriminator("Position")
	copy(data, disc[:])
	copy(data[8:], poolAddr[:])
	copy(data[40:], nft[:])
	putU128(data[152:], big.NewInt(900))
	chain.accounts[posAddr] = &rpc.AccountInfo{Address: posAddr, Owner: cpamm.ProgramID, Data: data}

	nftAccount := key()
	chain.owned = []rpc.OwnedTokenAccount{
		{Address: nftAccount, Mint: nft, Amount: 1},
		{Address: key(), Mint: key(), Amount: 500},
	}

	c := New(chain, nil, "confirmed", logger.Discard())
	positions, err := c.Positions(context.Background(), owner, &pool.Pool{Address: poolAddr, Family: pool.FamilyConstantProduct})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, posAddr, positions[0].Address())
	assert.Equal(t, nftAccount, positions[0].Single.NFTAccount)
	assert.Equal(t, int64(900), positions[0].Single.Liquidity.Int64())
}
