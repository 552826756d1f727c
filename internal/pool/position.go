package pool

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// BinPosition owns the inclusive bin range [LowerBinID, UpperBinID] of a bin-based pool.
type BinPosition struct {
	Address    solana.PublicKey `json:"address"`
	Pool       solana.PublicKey `json:"pool"`
	Owner      solana.PublicKey `json:"owner"`
	LowerBinID int32            `json:"lower_bin_id"`
	UpperBinID int32            `json:"upper_bin_id"`
}

// Width is the number of bins covered.
func (b *BinPosition) Width() int {
	return int(b.UpperBinID-b.LowerBinID) + 1
}

// SinglePosition is an NFT-keyed claim on a constant-product pool.
type SinglePosition struct {
	Address    solana.PublicKey `json:"address"`
	Pool       solana.PublicKey `json:"pool"`
	NFTMint    solana.PublicKey `json:"nft_mint"`
	NFTAccount solana.PublicKey `json:"nft_account"`
	Liquidity  *big.Int         `json:"liquidity"`
}

// Position is a tagged union: exactly one of Bin or Single is set, matching Family.
type Position struct {
	Family Family          `json:"family"`
	Bin    *BinPosition    `json:"bin,omitempty"`
	Single *SinglePosition `json:"single,omitempty"`
}

func NewBinPosition(p *BinPosition) Position {
	return Position{Family: FamilyBinBased, Bin: p}
}

func NewSinglePosition(p *SinglePosition) Position {
	return Position{Family: FamilyConstantProduct, Single: p}
}

func (p Position) Validate() error {
	switch p.Family {
	case FamilyBinBased:
		if p.Bin == nil {
			return fmt.Errorf("bin-based position without bin data")
		}
		if p.Bin.UpperBinID < p.Bin.LowerBinID {
			return fmt.Errorf("position %s: upper bin %d below lower bin %d", p.Bin.Address, p.Bin.UpperBinID, p.Bin.LowerBinID)
		}
	case FamilyConstantProduct:
		if p.Single == nil {
			return fmt.Errorf("constant-product position without position data")
		}
		if p.Single.Liquidity == nil || p.Single.Liquidity.Sign() < 0 {
			return fmt.Errorf("position %s: invalid liquidity", p.Single.Address)
		}
	default:
		return fmt.Errorf("position with unknown family")
	}
	return nil
}

func (p Position) Address() solana.PublicKey {
	switch p.Family {
	case FamilyBinBased:
		return p.Bin.Address
	case FamilyConstantProduct:
		return p.Single.Address
	default:
		return solana.PublicKey{}
	}
}

func (p Position) PoolAddress() solana.PublicKey {
	switch p.Family {
	case FamilyBinBased:
		return p.Bin.Pool
	case FamilyConstantProduct:
		return p.Single.Pool
	default:
		return solana.PublicKey{}
	}
}
