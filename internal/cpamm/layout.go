package cpamm

import (
	"encoding/binary"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/anchor"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
)

// ProgramID is the constant-product AMM program
var ProgramID = solana.MustPublicKeyFromBase58(constants.DAMMProgram)

// FeeDenominator scales cliff_fee_numerator.
const FeeDenominator = 1_000_000_000

// Pool account layout, discriminator included:
// 8    pool_fees (160 bytes, base fee cliff numerator first)
// 168  token_a_mint, token_b_mint, token_a_vault, token_b_vault
// 296  whitelisted_vault, partner
// 360  liquidity u128
// 424  sqrt_min_price, sqrt_max_price, sqrt_price (u128 each)
// 481  pool_status
const (
	poolMinSize = 488

	offsetTokenAMint   = 168
	offsetLiquidity    = 360
	offsetSqrtMinPrice = 424
	offsetPoolStatus   = 481

	positionMinSize         = 200
	offsetUnlockedLiquidity = 152
)

// Pool is the decoded pool state used for quoting and instruction building.
type Pool struct {
	CliffFeeNumerator uint64
	TokenAMint        solana.PublicKey
	TokenBMint        solana.PublicKey
	TokenAVault       solana.PublicKey
	TokenBVault       solana.PublicKey
	Liquidity         *big.Int
	SqrtMinPrice      *big.Int
	SqrtMaxPrice      *big.Int
	SqrtPrice         *big.Int
	Status            uint8
}

// FeeBps converts the base fee numerator to basis points
func (p *Pool) FeeBps() uint16 {
	return uint16(p.CliffFeeNumerator * 10_000 / FeeDenominator)
}

func DecodePool(data []byte) (*Pool, error) {
	if err := anchor.CheckAccount(data, "Pool"); err != nil {
		return nil, err
	}
	if len(data) < poolMinSize {
		return nil, fmt.Errorf("Pool: data too short (%d bytes)", len(data))
	}

	var (
		out Pool
		err error
	)
	dec := bin.NewBorshDecoder(data[8:])
	if out.CliffFeeNumerator, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, err
	}

	dec = bin.NewBorshDecoder(data[offsetTokenAMint:])
	for _, dst := range []*solana.PublicKey{&out.TokenAMint, &out.TokenBMint, &out.TokenAVault, &out.TokenBVault} {
		if *dst, err = anchor.ReadPubkey(dec); err != nil {
			return nil, err
		}
	}

	dec = bin.NewBorshDecoder(data[offsetLiquidity:])
	if out.Liquidity, err = anchor.ReadU128(dec); err != nil {
		return nil, err
	}

	dec = bin.NewBorshDecoder(data[offsetSqrtMinPrice:])
	for _, dst := range []**big.Int{&out.SqrtMinPrice, &out.SqrtMaxPrice, &out.SqrtPrice} {
		if *dst, err = anchor.ReadU128(dec); err != nil {
			return nil, err
		}
	}
	out.Status = data[offsetPoolStatus]
	return &out, nil
}

// Position is the NFT-keyed liquidity claim on a pool.
type Position struct {
	Pool              solana.PublicKey
	NFTMint           solana.PublicKey
	UnlockedLiquidity *big.Int
}

func DecodePosition(data []byte) (*Position, error) {
	if err := anchor.CheckAccount(data, "Position"); err != nil {
		return nil, err
	}
	if len(data) < positionMinSize {
		return nil, fmt.Errorf("Position: data too short (%d bytes)", len(data))
	}

	var (
		out Position
		err error
	)
	dec := bin.NewBorshDecoder(data[8:])
	if out.Pool, err = anchor.ReadPubkey(dec); err != nil {
		return nil, err
	}
	if out.NFTMint, err = anchor.ReadPubkey(dec); err != nil {
		return nil, err
	}
	dec = bin.NewBorshDecoder(data[offsetUnlockedLiquidity:])
	if out.UnlockedLiquidity, err = anchor.ReadU128(dec); err != nil {
		return nil, err
	}
	return &out, nil
}

// PositionPoolOffset is where the pool key sits, for getProgramAccounts filters.
const PositionPoolOffset = 8
