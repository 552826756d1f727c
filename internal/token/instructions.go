package token

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
	Token2022ProgramID       = solana.Token2022ProgramID
	NativeMint               = solana.WrappedSol
)

// IsTokenProgram reports whether program is SPL Token or Token-2022.
func IsTokenProgram(program solana.PublicKey) bool {
	return program.Equals(solana.TokenProgramID) || program.Equals(Token2022ProgramID)
}

// FindAssociatedTokenAddress derives the ATA PDA for (owner, mint) under the mint's token program.
func FindAssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (ata solana.PublicKey, bump uint8, err error) {
	if !IsTokenProgram(tokenProgram) {
		return solana.PublicKey{}, 0, fmt.Errorf("unsupported token program %s", tokenProgram)
	}
	// Seeds: [owner, token_program, mint]
	return solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			tokenProgram.Bytes(),
			mint.Bytes(),
		},
		AssociatedTokenProgramID,
	)
}

// NewCreateIdempotentATAIx builds an ATA CreateIdempotent instruction, which succeeds
// when the account already exists.
// Account order (ATA program):
// 0. payer (signer, writable)
// 1. ata (writable)
// 2. owner
// 3. mint
// 4. system_program
// 5. token_program
func NewCreateIdempotentATAIx(payer, ata, owner, mint, tokenProgram solana.PublicKey) solana.Instruction {
	accounts := []*solana.AccountMeta{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: ata, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: tokenProgram, IsSigner: false, IsWritable: false},
	}

	// 1 = CreateIdempotent
	return solana.NewInstruction(AssociatedTokenProgramID, accounts, []byte{1})
}

// NewSystemTransferIx builds a SystemProgram transfer instruction.
func NewSystemTransferIx(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	// SystemProgram instruction layout:
	// u32: instruction index (2 = Transfer)
	// u64: lamports
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	accounts := []*solana.AccountMeta{
		{PublicKey: from, IsSigner: true, IsWritable: true},
		{PublicKey: to, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(solana.SystemProgramID, accounts, data)
}

// NewSyncNativeIx builds a SPL Token SyncNative instruction.
func NewSyncNativeIx(nativeAccount solana.PublicKey) solana.Instruction {
	// TokenProgram instruction index 17 = SyncNative
	accounts := []*solana.AccountMeta{
		{PublicKey: nativeAccount, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(solana.TokenProgramID, accounts, []byte{17})
}

// NewCloseAccountIx builds a CloseAccount instruction for either token program.
func NewCloseAccountIx(account, destination, owner, tokenProgram solana.PublicKey) solana.Instruction {
	// instruction index 9 = CloseAccount
	accounts := []*solana.AccountMeta{
		{PublicKey: account, IsSigner: false, IsWritable: true},
		{PublicKey: destination, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: true, IsWritable: false},
	}
	return solana.NewInstruction(tokenProgram, accounts, []byte{9})
}

// WrapSOLInstructions funds the owner's wSOL ATA with lamports and syncs it.
func WrapSOLInstructions(owner solana.PublicKey, lamports uint64) ([]solana.Instruction, solana.PublicKey, error) {
	ata, _, err := FindAssociatedTokenAddress(owner, NativeMint, solana.TokenProgramID)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	return []solana.Instruction{
		NewCreateIdempotentATAIx(owner, ata, owner, NativeMint, solana.TokenProgramID),
		NewSystemTransferIx(owner, ata, lamports),
		NewSyncNativeIx(ata),
	}, ata, nil
}

func RequirePubkey(pk solana.PublicKey, name string) error {
	if pk.IsZero() {
		return fmt.Errorf("%s is zero", name)
	}
	return nil
}
