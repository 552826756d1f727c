// Package classifier maps an on-chain pool address to its AMM family and the
// token order the program stores.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/cpamm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/dlmm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/overrides"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

// ChainReader is the slice of the RPC client the classifier needs
type ChainReader interface {
	GetAccountInfo(ctx context.Context, address solana.PublicKey, commitment string) (*rpc.AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey, commitment string) ([]*rpc.AccountInfo, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment string) (*rpc.TokenBalance, error)
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64, filters []rpc.MemcmpFilter, commitment string) ([]rpc.ProgramAccount, error)
	GetTokenAccountsByOwner(ctx context.Context, owner, tokenProgram solana.PublicKey, commitment string) ([]rpc.OwnedTokenAccount, error)
}

// OverrideLookup resolves pools this service created but RPC may not serve yet.
type OverrideLookup interface {
	Get(ctx context.Context, address solana.PublicKey) (*overrides.Override, error)
}

type Classifier struct {
	reader     ChainReader
	overrides  OverrideLookup
	commitment string
	log        *logrus.Logger
}

// New builds a classifier; ov may be nil.
func New(reader ChainReader, ov OverrideLookup, commitment string, log *logrus.Logger) *Classifier {
	if log == nil {
		log = logrus.New()
	}
	return &Classifier{reader: reader, overrides: ov, commitment: commitment, log: log}
}

// Classify reads the pool account, picks the family from its owner and loads
// current reserves. Reserves are never served from a cache.
func (c *Classifier) Classify(ctx context.Context, address solana.PublicKey) (*pool.Pool, error) {
	acc, err := c.reader.GetAccountInfo(ctx, address, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("fetch pool %s: %w", address, err)
	}
	if acc == nil {
		return c.fromOverride(ctx, address)
	}

	var p *pool.Pool
	switch {
	case acc.Owner.Equals(dlmm.ProgramID):
		p, err = fromLbPair(acc)
	case acc.Owner.Equals(cpamm.ProgramID):
		p, err = fromCPPool(acc)
	default:
		return nil, &pool.ClassificationError{Address: address, Owner: acc.Owner, Reason: "unknown pool program"}
	}
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		return nil, &pool.ClassificationError{Address: address, Owner: acc.Owner, Reason: err.Error()}
	}

	if err := c.RefreshReserves(ctx, p); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"pool":    address.String(),
		"family":  p.Family.String(),
		"token_a": p.TokenAMint.String(),
		"token_b": p.TokenBMint.String(),
	}).Debug("classified pool")
	return p, nil
}

func (c *Classifier) fromOverride(ctx context.Context, address solana.PublicKey) (*pool.Pool, error) {
	notFound := &pool.ClassificationError{Address: address, Reason: "account not found"}
	if c.overrides == nil {
		return nil, notFound
	}
	ov, err := c.overrides.Get(ctx, address)
	if errors.Is(err, overrides.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup override for %s: %w", address, err)
	}

	p := ov.Pool
	if err := c.RefreshReserves(ctx, &p); err != nil {
		// vaults of a just-created pool can lag as well; the recorded reserves stand in
		c.log.WithError(err).WithField("pool", address.String()).Debug("override reserves not refreshed")
	}
	c.log.WithField("pool", address.String()).Info("pool served from override")
	return &p, nil
}

// RefreshReserves re-reads both reserve accounts of p.
func (c *Classifier) RefreshReserves(ctx context.Context, p *pool.Pool) error {
	var a, b solana.PublicKey
	switch p.Family {
	case pool.FamilyBinBased:
		a, b = p.Bin.ReserveXAccount, p.Bin.ReserveYAccount
	case pool.FamilyConstantProduct:
		a, b = p.ConstantProduct.VaultA, p.ConstantProduct.VaultB
	default:
		return fmt.Errorf("pool %s: unknown family", p.Address)
	}

	balA, err := c.reader.GetTokenAccountBalance(ctx, a, c.commitment)
	if err != nil {
		return fmt.Errorf("reserve A of %s: %w", p.Address, err)
	}
	balB, err := c.reader.GetTokenAccountBalance(ctx, b, c.commitment)
	if err != nil {
		return fmt.Errorf("reserve B of %s: %w", p.Address, err)
	}
	p.ReserveA, p.ReserveB = balA.Amount, balB.Amount
	return nil
}

func fromLbPair(acc *rpc.AccountInfo) (*pool.Pool, error) {
	pair, err := dlmm.DecodeLbPair(acc.Data)
	if err != nil {
		return nil, err
	}
	return &pool.Pool{
		Address:    acc.Address,
		Family:     pool.FamilyBinBased,
		TokenAMint: pair.TokenXMint,
		TokenBMint: pair.TokenYMint,
		FeeBps:     pair.BaseFeeBps(),
		Bin: &pool.BinState{
			ActiveID:        pair.ActiveID,
			BinStep:         pair.BinStep,
			ReserveXAccount: pair.ReserveX,
			ReserveYAccount: pair.ReserveY,
		},
	}, nil
}

func fromCPPool(acc *rpc.AccountInfo) (*pool.Pool, error) {
	cp, err := cpamm.DecodePool(acc.Data)
	if err != nil {
		return nil, err
	}
	return &pool.Pool{
		Address:    acc.Address,
		Family:     pool.FamilyConstantProduct,
		TokenAMint: cp.TokenAMint,
		TokenBMint: cp.TokenBMint,
		FeeBps:     cp.FeeBps(),
		ConstantProduct: &pool.ConstantProductState{
			VaultA:       cp.TokenAVault,
			VaultB:       cp.TokenBVault,
			Liquidity:    cp.Liquidity,
			SqrtPrice:    cp.SqrtPrice,
			SqrtMinPrice: cp.SqrtMinPrice,
			SqrtMaxPrice: cp.SqrtMaxPrice,
		},
	}, nil
}

// Positions lists owner's positions in p.
func (c *Classifier) Positions(ctx context.Context, owner solana.PublicKey, p *pool.Pool) ([]pool.Position, error) {
	switch p.Family {
	case pool.FamilyBinBased:
		return c.binPositions(ctx, owner, p.Address)
	case pool.FamilyConstantProduct:
		return c.singlePositions(ctx, owner, p.Address)
	default:
		return nil, fmt.Errorf("pool %s: unknown family", p.Address)
	}
}

func (c *Classifier) binPositions(ctx context.Context, owner, lbPair solana.PublicKey) ([]pool.Position, error) {
	accounts, err := c.reader.GetProgramAccounts(ctx, dlmm.ProgramID, 0, []rpc.MemcmpFilter{
		{Offset: 8, Bytes: lbPair.String()},
		{Offset: dlmm.PositionOwnerOffset, Bytes: owner.String()},
	}, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("list positions of %s: %w", owner, err)
	}

	out := make([]pool.Position, 0, len(accounts))
	for _, a := range accounts {
		pos, err := dlmm.DecodePosition(a.Account.Data)
		if err != nil {
			c.log.WithError(err).WithField("position", a.Address.String()).Warn("skipping undecodable position")
			continue
		}
		out = append(out, pool.NewBinPosition(&pool.BinPosition{
			Address:    a.Address,
			Pool:       pos.LbPair,
			Owner:      pos.Owner,
			LowerBinID: pos.LowerBinID,
			UpperBinID: pos.UpperBinID,
		}))
	}
	return out, nil
}

// singlePositions finds position NFTs held by owner and keeps those on poolAddr.
func (c *Classifier) singlePositions(ctx context.Context, owner, poolAddr solana.PublicKey) ([]pool.Position, error) {
	held, err := c.reader.GetTokenAccountsByOwner(ctx, owner, token.Token2022ProgramID, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("list token accounts of %s: %w", owner, err)
	}

	var (
		addrs []solana.PublicKey
		nfts  []rpc.OwnedTokenAccount
	)
	for _, h := range held {
		if h.Amount != 1 {
			continue
		}
		addr, err := cpamm.DerivePosition(h.Mint)
		if err != nil {
			continue
		}
		addrs = append(addrs, addr)
		nfts = append(nfts, h)
	}
	if len(addrs) == 0 {
		return nil, nil
	}

	accounts, err := c.reader.GetMultipleAccounts(ctx, addrs, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	var out []pool.Position
	for i, acc := range accounts {
		if acc == nil || !acc.Owner.Equals(cpamm.ProgramID) {
			continue
		}
		pos, err := cpamm.DecodePosition(acc.Data)
		if err != nil || !pos.Pool.Equals(poolAddr) {
			continue
		}
		out = append(out, pool.NewSinglePosition(&pool.SinglePosition{
			Address:    addrs[i],
			Pool:       pos.Pool,
			NFTMint:    pos.NFTMint,
			NFTAccount: nfts[i].Address,
			Liquidity:  pos.UnlockedLiquidity,
		}))
	}
	return out, nil
}
