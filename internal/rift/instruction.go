package rift

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/anchor"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

// Prefix types accepted by create_rift.
const (
	PrefixRift     uint8 = 0
	PrefixMonorift uint8 = 1
)

func meta(pk solana.PublicKey, signer, writable bool) *solana.AccountMeta {
	return &solana.AccountMeta{PublicKey: pk, IsSigner: signer, IsWritable: writable}
}

// CreateRiftParams are the arguments of create_rift.
type CreateRiftParams struct {
	Name           string
	PartnerWallet  *solana.PublicKey
	TransferFeeBps uint16
	PrefixType     uint8
}

// NewCreateRiftIx creates the rift account and its Token-2022 mint.
func NewCreateRiftIx(creator, underlyingMint, underlyingProgram solana.PublicKey, addrs *Addresses, p CreateRiftParams) (solana.Instruction, error) {
	if p.TransferFeeBps < constants.MinRiftTransferFeeBps || p.TransferFeeBps > constants.MaxRiftTransferFeeBps {
		return nil, fmt.Errorf("transfer fee %d bps outside %d..%d",
			p.TransferFeeBps, constants.MinRiftTransferFeeBps, constants.MaxRiftTransferFeeBps)
	}
	name, nameLen, err := EncodeName(p.Name)
	if err != nil {
		return nil, err
	}

	data, err := anchor.NewArgs("create_rift").
		OptionPubkey(p.PartnerWallet).
		Bytes(name[:]).
		U8(nameLen).
		U16(p.TransferFeeBps).
		U8(p.PrefixType).
		Build()
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		meta(creator, true, true),
		meta(addrs.Rift, false, true),
		meta(underlyingMint, false, false),
		meta(addrs.RiftMint, false, true),
		meta(addrs.RiftMintAuthority, false, false),
		meta(addrs.Vault, false, true),
		meta(addrs.FeesVault, false, true),
		meta(addrs.WithheldVault, false, true),
		meta(addrs.VaultAuthority, false, false),
		meta(token.Token2022ProgramID, false, false),
		meta(solana.SystemProgramID, false, false),
		meta(solana.SysVarRentPubkey, false, false),
		meta(underlyingProgram, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewInitializeVaultIx creates the underlying vault token account.
func NewInitializeVaultIx(user, underlyingMint, underlyingProgram solana.PublicKey, addrs *Addresses) (solana.Instruction, error) {
	data, err := anchor.NewArgs("initialize_vault").Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(user, true, true),
		meta(addrs.Rift, false, true),
		meta(addrs.Vault, false, true),
		meta(underlyingMint, false, false),
		meta(addrs.VaultAuthority, false, false),
		meta(addrs.RiftMintAuthority, false, false),
		meta(underlyingProgram, false, false),
		meta(solana.SystemProgramID, false, false),
		meta(solana.SysVarRentPubkey, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewInitializeFeesVaultIx creates the vault that collects wrap and unwrap fees.
func NewInitializeFeesVaultIx(user, underlyingMint, underlyingProgram solana.PublicKey, addrs *Addresses) (solana.Instruction, error) {
	data, err := anchor.NewArgs("initialize_fees_vault").Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(user, true, true),
		meta(addrs.Rift, false, true),
		meta(addrs.FeesVault, false, true),
		meta(underlyingMint, false, false),
		meta(addrs.VaultAuthority, false, false),
		meta(underlyingProgram, false, false),
		meta(solana.SystemProgramID, false, false),
		meta(solana.SysVarRentPubkey, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewInitializeWithheldVaultIx creates the rift-token vault for withheld transfer fees.
func NewInitializeWithheldVaultIx(user solana.PublicKey, addrs *Addresses) (solana.Instruction, error) {
	data, err := anchor.NewArgs("initialize_withheld_vault").Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(user, true, true),
		meta(addrs.Rift, false, true),
		meta(addrs.WithheldVault, false, true),
		meta(addrs.RiftMint, false, false),
		meta(addrs.VaultAuthority, false, false),
		meta(token.Token2022ProgramID, false, false),
		meta(solana.SystemProgramID, false, false),
		meta(solana.SysVarRentPubkey, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// WrapAccounts are the user-side accounts for wrap and unwrap.
type WrapAccounts struct {
	User              solana.PublicKey
	UserUnderlying    solana.PublicKey
	UserRift          solana.PublicKey
	UnderlyingMint    solana.PublicKey
	UnderlyingProgram solana.PublicKey
}

// NewWrapIx deposits amount underlying and mints at least minRiftOut rift tokens.
func NewWrapIx(w WrapAccounts, addrs *Addresses, amount, minRiftOut uint64) (solana.Instruction, error) {
	if amount == 0 {
		return nil, fmt.Errorf("wrap amount must be positive")
	}
	data, err := anchor.NewArgs("wrap_tokens").U64(amount).U64(minRiftOut).Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(w.User, true, true),
		meta(addrs.Rift, false, true),
		meta(w.UserUnderlying, false, true),
		meta(w.UserRift, false, true),
		meta(addrs.Vault, false, true),
		meta(w.UnderlyingMint, false, false),
		meta(addrs.RiftMint, false, true),
		meta(addrs.RiftMintAuthority, false, false),
		meta(addrs.FeesVault, false, true),
		meta(addrs.VaultAuthority, false, false),
		meta(w.UnderlyingProgram, false, false),
		meta(token.Token2022ProgramID, false, false),
		meta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewUnwrapIx burns riftAmount and returns at least minUnderlyingOut from the vault.
func NewUnwrapIx(w WrapAccounts, addrs *Addresses, riftAmount, minUnderlyingOut uint64) (solana.Instruction, error) {
	if riftAmount == 0 {
		return nil, fmt.Errorf("unwrap amount must be positive")
	}
	data, err := anchor.NewArgs("unwrap_from_vault").U64(riftAmount).U64(minUnderlyingOut).Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(w.User, true, true),
		meta(addrs.Rift, false, true),
		meta(w.UserUnderlying, false, true),
		meta(w.UserRift, false, true),
		meta(addrs.Vault, false, true),
		meta(w.UnderlyingMint, false, false),
		meta(addrs.VaultAuthority, false, false),
		meta(addrs.RiftMintAuthority, false, false),
		meta(addrs.RiftMint, false, true),
		meta(addrs.FeesVault, false, true),
		meta(w.UnderlyingProgram, false, false),
		meta(token.Token2022ProgramID, false, false),
		meta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// DistributeAccounts identifies the beneficiaries of a fee distribution.
type DistributeAccounts struct {
	Payer             solana.PublicKey
	UnderlyingMint    solana.PublicKey
	UnderlyingProgram solana.PublicKey
	TreasuryWallet    solana.PublicKey
	PartnerWallet     *solana.PublicKey
}

// NewDistributeFeesIx pays amount out of the fees vault, half to the partner and
// the remainder to the treasury. Beneficiary token accounts are their ATAs.
func NewDistributeFeesIx(d DistributeAccounts, addrs *Addresses, amount uint64) (solana.Instruction, error) {
	if amount == 0 {
		return nil, fmt.Errorf("distribution amount must be positive")
	}
	treasuryATA, _, err := token.FindAssociatedTokenAddress(d.TreasuryWallet, d.UnderlyingMint, d.UnderlyingProgram)
	if err != nil {
		return nil, fmt.Errorf("treasury ata: %w", err)
	}

	// absent optional accounts are passed as the program id
	partnerWallet, partnerATA := ProgramID, ProgramID
	if d.PartnerWallet != nil {
		partnerWallet = *d.PartnerWallet
		if partnerATA, _, err = token.FindAssociatedTokenAddress(partnerWallet, d.UnderlyingMint, d.UnderlyingProgram); err != nil {
			return nil, fmt.Errorf("partner ata: %w", err)
		}
	}

	data, err := anchor.NewArgs("distribute_fees_from_vault").U64(amount).Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(d.Payer, true, true),
		meta(addrs.Rift, false, true),
		meta(addrs.FeesVault, false, true),
		meta(addrs.VaultAuthority, false, false),
		meta(d.UnderlyingMint, false, false),
		meta(d.TreasuryWallet, false, false),
		meta(treasuryATA, false, true),
		meta(partnerWallet, false, false),
		meta(partnerATA, false, d.PartnerWallet != nil),
		meta(token.AssociatedTokenProgramID, false, false),
		meta(solana.SystemProgramID, false, false),
		meta(d.UnderlyingProgram, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, data), nil
}
