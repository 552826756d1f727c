package cpamm

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/anchor"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

// Activation and fee collection modes accepted by initialize_customizable_pool.
const (
	ActivationBySlot      uint8 = 0
	ActivationByTimestamp uint8 = 1

	CollectFeeBothTokens uint8 = 0
	CollectFeeOnlyB      uint8 = 1
)

func seedPDA(seeds ...[]byte) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress(seeds, ProgramID)
	return pda, err
}

func PoolAuthority() solana.PublicKey {
	pda, err := seedPDA([]byte("pool_authority"))
	if err != nil {
		panic(fmt.Sprintf("pool authority: %v", err))
	}
	return pda
}

// DeriveCustomizablePool seeds the larger mint first.
func DeriveCustomizablePool(mintA, mintB solana.PublicKey) (solana.PublicKey, error) {
	hi, lo := mintA, mintB
	if bytes.Compare(mintA[:], mintB[:]) < 0 {
		hi, lo = mintB, mintA
	}
	return seedPDA([]byte("cpool"), hi.Bytes(), lo.Bytes())
}

func DerivePosition(nftMint solana.PublicKey) (solana.PublicKey, error) {
	return seedPDA([]byte("position"), nftMint.Bytes())
}

func DerivePositionNFTAccount(nftMint solana.PublicKey) (solana.PublicKey, error) {
	return seedPDA([]byte("position_nft_account"), nftMint.Bytes())
}

func DeriveTokenVault(mint, pool solana.PublicKey) (solana.PublicKey, error) {
	return seedPDA([]byte("token_vault"), mint.Bytes(), pool.Bytes())
}

func meta(pk solana.PublicKey, signer, writable bool) *solana.AccountMeta {
	return &solana.AccountMeta{PublicKey: pk, IsSigner: signer, IsWritable: writable}
}

func eventAccounts() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		meta(anchor.EventAuthority(ProgramID), false, false),
		meta(ProgramID, false, false),
	}
}

// PoolAccounts are the static accounts of a pool.
type PoolAccounts struct {
	Pool          solana.PublicKey
	TokenAMint    solana.PublicKey
	TokenBMint    solana.PublicKey
	TokenAVault   solana.PublicKey
	TokenBVault   solana.PublicKey
	TokenAProgram solana.PublicKey
	TokenBProgram solana.PublicKey
}

// PositionAccounts identifies a position and its NFT.
type PositionAccounts struct {
	Position   solana.PublicKey
	NFTMint    solana.PublicKey
	NFTAccount solana.PublicKey
}

// NewPositionAccounts derives the position and NFT account for an NFT mint.
func NewPositionAccounts(nftMint solana.PublicKey) (PositionAccounts, error) {
	position, err := DerivePosition(nftMint)
	if err != nil {
		return PositionAccounts{}, err
	}
	nftAccount, err := DerivePositionNFTAccount(nftMint)
	if err != nil {
		return PositionAccounts{}, err
	}
	return PositionAccounts{Position: position, NFTMint: nftMint, NFTAccount: nftAccount}, nil
}

// CreatePoolParams configures a customizable pool and its first deposit.
type CreatePoolParams struct {
	FeeBps         uint16
	SqrtMinPrice   *big.Int
	SqrtMaxPrice   *big.Int
	SqrtPrice      *big.Int
	Liquidity      *big.Int
	ActivationType uint8
	CollectFeeMode uint8
}

// NewInitializeCustomizablePoolIx creates the pool, mints the first position NFT
// and deposits the amounts backing p.Liquidity from the payer's token accounts.
func NewInitializeCustomizablePoolIx(payer solana.PublicKey, accs PoolAccounts, pos PositionAccounts, payerTokenA, payerTokenB solana.PublicKey, p CreatePoolParams) (solana.Instruction, error) {
	if p.SqrtMinPrice == nil || p.SqrtMaxPrice == nil || p.SqrtPrice == nil || p.Liquidity == nil {
		return nil, fmt.Errorf("pool params are incomplete")
	}
	if p.SqrtPrice.Cmp(p.SqrtMinPrice) < 0 || p.SqrtPrice.Cmp(p.SqrtMaxPrice) > 0 {
		return nil, fmt.Errorf("sqrt price outside [min, max]")
	}

	cliff := uint64(p.FeeBps) * (FeeDenominator / 10_000)
	data, err := anchor.NewArgs("initialize_customizable_pool").
		// base_fee
		U64(cliff).
		U16(0).
		U64(0).
		U64(0).
		U8(0).
		Bytes([]byte{0, 0, 0}).
		U8(0). // dynamic_fee: None
		U128(p.SqrtMinPrice).
		U128(p.SqrtMaxPrice).
		Bool(false). // has_alpha_vault
		U128(p.Liquidity).
		U128(p.SqrtPrice).
		U8(p.ActivationType).
		U8(p.CollectFeeMode).
		OptionU64(nil).
		Build()
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		meta(payer, false, false), // creator
		meta(pos.NFTMint, true, true),
		meta(pos.NFTAccount, false, true),
		meta(payer, true, true),
		meta(PoolAuthority(), false, false),
		meta(accs.Pool, false, true),
		meta(pos.Position, false, true),
		meta(accs.TokenAMint, false, false),
		meta(accs.TokenBMint, false, false),
		meta(accs.TokenAVault, false, true),
		meta(accs.TokenBVault, false, true),
		meta(payerTokenA, false, true),
		meta(payerTokenB, false, true),
		meta(accs.TokenAProgram, false, false),
		meta(accs.TokenBProgram, false, false),
		meta(token.Token2022ProgramID, false, false),
		meta(solana.SystemProgramID, false, false),
	}
	accounts = append(accounts, eventAccounts()...)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewCreatePositionIx opens an empty position on an existing pool.
func NewCreatePositionIx(owner, payer, pool solana.PublicKey, pos PositionAccounts) (solana.Instruction, error) {
	data, err := anchor.NewArgs("create_position").Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(owner, false, false),
		meta(pos.NFTMint, true, true),
		meta(pos.NFTAccount, false, true),
		meta(pool, false, true),
		meta(pos.Position, false, true),
		meta(PoolAuthority(), false, false),
		meta(payer, true, true),
		meta(token.Token2022ProgramID, false, false),
		meta(solana.SystemProgramID, false, false),
	}
	accounts = append(accounts, eventAccounts()...)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// LiquidityArgs are the liquidity delta and per-token thresholds. For deposits
// thresholds are maxima, for withdrawals minima.
type LiquidityArgs struct {
	LiquidityDelta *big.Int
	ThresholdA     uint64
	ThresholdB     uint64
}

func liquidityAccounts(owner solana.PublicKey, accs PoolAccounts, pos PositionAccounts, userTokenA, userTokenB solana.PublicKey) []*solana.AccountMeta {
	accounts := []*solana.AccountMeta{
		meta(accs.Pool, false, true),
		meta(pos.Position, false, true),
		meta(userTokenA, false, true),
		meta(userTokenB, false, true),
		meta(accs.TokenAVault, false, true),
		meta(accs.TokenBVault, false, true),
		meta(accs.TokenAMint, false, false),
		meta(accs.TokenBMint, false, false),
		meta(pos.NFTAccount, false, false),
		meta(owner, true, false),
		meta(accs.TokenAProgram, false, false),
		meta(accs.TokenBProgram, false, false),
	}
	return append(accounts, eventAccounts()...)
}

func NewAddLiquidityIx(owner solana.PublicKey, accs PoolAccounts, pos PositionAccounts, userTokenA, userTokenB solana.PublicKey, args LiquidityArgs) (solana.Instruction, error) {
	data, err := anchor.NewArgs("add_liquidity").
		U128(args.LiquidityDelta).
		U64(args.ThresholdA).
		U64(args.ThresholdB).
		Build()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ProgramID, liquidityAccounts(owner, accs, pos, userTokenA, userTokenB), data), nil
}

func NewRemoveLiquidityIx(owner solana.PublicKey, accs PoolAccounts, pos PositionAccounts, userTokenA, userTokenB solana.PublicKey, args LiquidityArgs) (solana.Instruction, error) {
	data, err := anchor.NewArgs("remove_liquidity").
		U128(args.LiquidityDelta).
		U64(args.ThresholdA).
		U64(args.ThresholdB).
		Build()
	if err != nil {
		return nil, err
	}
	accounts := append([]*solana.AccountMeta{meta(PoolAuthority(), false, false)},
		liquidityAccounts(owner, accs, pos, userTokenA, userTokenB)...)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewRemoveAllLiquidityIx withdraws every unlocked unit of the position.
func NewRemoveAllLiquidityIx(owner solana.PublicKey, accs PoolAccounts, pos PositionAccounts, userTokenA, userTokenB solana.PublicKey, minA, minB uint64) (solana.Instruction, error) {
	data, err := anchor.NewArgs("remove_all_liquidity").U64(minA).U64(minB).Build()
	if err != nil {
		return nil, err
	}
	accounts := append([]*solana.AccountMeta{meta(PoolAuthority(), false, false)},
		liquidityAccounts(owner, accs, pos, userTokenA, userTokenB)...)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewClosePositionIx burns the position NFT; the position must hold no liquidity.
func NewClosePositionIx(owner, pool solana.PublicKey, pos PositionAccounts) (solana.Instruction, error) {
	data, err := anchor.NewArgs("close_position").Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(pos.NFTMint, false, true),
		meta(pos.NFTAccount, false, true),
		meta(pool, false, true),
		meta(pos.Position, false, true),
		meta(PoolAuthority(), false, false),
		meta(owner, false, true), // rent_receiver
		meta(owner, true, false),
		meta(token.Token2022ProgramID, false, false),
	}
	accounts = append(accounts, eventAccounts()...)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}
