// Package rift speaks the wrapping vault program: PDA derivation, the Rift account
// layout, instruction builders and the program's error table.
package rift

import (
	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
)

// ProgramID is the wrapping vault program
var ProgramID = solana.MustPublicKeyFromBase58(constants.RiftProgram)

// Addresses are all program-derived accounts of one rift.
type Addresses struct {
	Rift              solana.PublicKey `json:"rift"`
	RiftMint          solana.PublicKey `json:"rift_mint"`
	RiftMintAuthority solana.PublicKey `json:"rift_mint_authority"`
	Vault             solana.PublicKey `json:"vault"`
	FeesVault         solana.PublicKey `json:"fees_vault"`
	WithheldVault     solana.PublicKey `json:"withheld_vault"`
	VaultAuthority    solana.PublicKey `json:"vault_authority"`
}

func find(seeds ...[]byte) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress(seeds, ProgramID)
	return pda, err
}

// Derive computes every PDA of the rift created by creator over underlying.
func Derive(underlying, creator solana.PublicKey) (*Addresses, error) {
	var (
		out Addresses
		err error
	)
	if out.Rift, err = find([]byte("rift"), underlying.Bytes(), creator.Bytes()); err != nil {
		return nil, err
	}
	if out.RiftMint, err = find([]byte("rift_mint"), underlying.Bytes(), creator.Bytes()); err != nil {
		return nil, err
	}
	if err = out.deriveVaults(); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeriveFromRift recomputes the rift-keyed PDAs for an existing rift account.
func DeriveFromRift(rift, riftMint solana.PublicKey) (*Addresses, error) {
	out := Addresses{Rift: rift, RiftMint: riftMint}
	if err := out.deriveVaults(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Addresses) deriveVaults() error {
	seeds := []struct {
		dst    *solana.PublicKey
		prefix string
	}{
		{&a.RiftMintAuthority, "rift_mint_auth"},
		{&a.Vault, "vault"},
		{&a.FeesVault, "fees_vault"},
		{&a.WithheldVault, "withheld_vault"},
		{&a.VaultAuthority, "vault_auth"},
	}
	for _, s := range seeds {
		pda, err := find([]byte(s.prefix), a.Rift.Bytes())
		if err != nil {
			return err
		}
		*s.dst = pda
	}
	return nil
}
