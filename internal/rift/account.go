package rift

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/anchor"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
)

// Rift is the leading part of the vault program's Rift account.
type Rift struct {
	Name                   string            `json:"name"`
	Creator                solana.PublicKey  `json:"creator"`
	UnderlyingMint         solana.PublicKey  `json:"underlying_mint"`
	RiftMint               solana.PublicKey  `json:"rift_mint"`
	Vault                  solana.PublicKey  `json:"vault"`
	FeesVault              solana.PublicKey  `json:"fees_vault"`
	WithheldVault          solana.PublicKey  `json:"withheld_vault"`
	PartnerFeeBps          uint16            `json:"partner_fee_bps"`
	PartnerWallet          *solana.PublicKey `json:"partner_wallet,omitempty"`
	TreasuryWallet         *solana.PublicKey `json:"treasury_wallet,omitempty"`
	WrapFeeBps             uint16            `json:"wrap_fee_bps"`
	UnwrapFeeBps           uint16            `json:"unwrap_fee_bps"`
	TotalUnderlyingWrapped uint64            `json:"total_underlying_wrapped"`
	TotalRiftMinted        uint64            `json:"total_rift_minted"`
	TotalBurned            uint64            `json:"total_burned"`
}

// DecodeRift parses a Rift account. Only the fields up to the running totals are read.
func DecodeRift(data []byte) (*Rift, error) {
	if err := anchor.CheckAccount(data, "Rift"); err != nil {
		return nil, err
	}

	var (
		out Rift
		err error
	)
	dec := bin.NewBorshDecoder(data[8:])

	name, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("rift name: %w", err)
	}
	out.Name = string(bytes.TrimRight(name, "\x00"))

	for _, dst := range []*solana.PublicKey{
		&out.Creator, &out.UnderlyingMint, &out.RiftMint,
		&out.Vault, &out.FeesVault, &out.WithheldVault,
	} {
		if *dst, err = anchor.ReadPubkey(dec); err != nil {
			return nil, err
		}
	}

	if out.PartnerFeeBps, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, err
	}
	if out.PartnerWallet, err = readOptionPubkey(dec); err != nil {
		return nil, fmt.Errorf("partner wallet: %w", err)
	}
	if out.TreasuryWallet, err = readOptionPubkey(dec); err != nil {
		return nil, fmt.Errorf("treasury wallet: %w", err)
	}
	if out.WrapFeeBps, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, err
	}
	if out.UnwrapFeeBps, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, dst := range []*uint64{&out.TotalUnderlyingWrapped, &out.TotalRiftMinted, &out.TotalBurned} {
		if *dst, err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// Encode is the inverse of DecodeRift; fields past the running totals are zeroed.
func (r *Rift) Encode() ([]byte, error) {
	name, _, err := EncodeName(r.Name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	disc := anchor.AccountDiscriminator("Rift")
	if err := enc.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(name[:], false); err != nil {
		return nil, err
	}
	for _, pk := range []solana.PublicKey{r.Creator, r.UnderlyingMint, r.RiftMint, r.Vault, r.FeesVault, r.WithheldVault} {
		if err := enc.WriteBytes(pk[:], false); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint16(r.PartnerFeeBps, binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, pk := range []*solana.PublicKey{r.PartnerWallet, r.TreasuryWallet} {
		if err := writeOptionPubkey(enc, pk); err != nil {
			return nil, err
		}
	}
	for _, v := range []uint16{r.WrapFeeBps, r.UnwrapFeeBps} {
		if err := enc.WriteUint16(v, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	for _, v := range []uint64{r.TotalUnderlyingWrapped, r.TotalRiftMinted, r.TotalBurned} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeOptionPubkey(enc *bin.Encoder, pk *solana.PublicKey) error {
	if pk == nil {
		return enc.WriteUint8(0)
	}
	if err := enc.WriteUint8(1); err != nil {
		return err
	}
	return enc.WriteBytes(pk[:], false)
}

func readOptionPubkey(dec *bin.Decoder) (*solana.PublicKey, error) {
	tag, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return nil, nil
	case 1:
		pk, err := anchor.ReadPubkey(dec)
		if err != nil {
			return nil, err
		}
		return &pk, nil
	default:
		return nil, fmt.Errorf("invalid option tag %d", tag)
	}
}

// ExpectedWrapOutput is what wrap_tokens mints for amountReceived underlying units
// arriving in the vault: the wrap fee is floor(received*bps/10000).
func ExpectedWrapOutput(amountReceived uint64, wrapFeeBps uint16) uint64 {
	fee := new(big.Int).Mul(new(big.Int).SetUint64(amountReceived), big.NewInt(int64(wrapFeeBps)))
	fee.Div(fee, big.NewInt(constants.BpsDenominator))
	return amountReceived - fee.Uint64()
}

// FeeSplit is how distribute_fees_from_vault pays out amount.
func FeeSplit(amount uint64) (partner, treasury uint64) {
	partner = amount / 2
	return partner, amount - partner
}

// EncodeName packs a rift name into the fixed 32-byte field.
func EncodeName(name string) ([32]byte, uint8, error) {
	var out [32]byte
	if len(name) == 0 || len(name) > len(out) {
		return out, 0, fmt.Errorf("rift name must be 1..32 bytes, got %d", len(name))
	}
	copy(out[:], name)
	return out, uint8(len(name)), nil
}
