package confirm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/rift"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

// ErrTimedOut accompanies a TimedOut record. The transaction may still land, so it
// must not be resubmitted without re-reading chain state first.
var ErrTimedOut = errors.New("confirmation timed out; outcome unknown")

// OnChainExecutionError is a transaction that executed and reverted.
type OnChainExecutionError struct {
	Signature solana.Signature `json:"signature"`
	// InstructionIndex is -1 when the error is not tied to an instruction.
	InstructionIndex int              `json:"instruction_index"`
	Program          solana.PublicKey `json:"program"`
	Code             *uint32          `json:"code,omitempty"`
	Name             string           `json:"name"`
	Message          string           `json:"message"`
	Raw              string           `json:"raw"`
}

func (e *OnChainExecutionError) Error() string {
	var b strings.Builder
	if !e.Signature.IsZero() {
		fmt.Fprintf(&b, "transaction %s failed", e.Signature)
	} else {
		b.WriteString("transaction failed")
	}
	if e.InstructionIndex >= 0 {
		fmt.Fprintf(&b, " at instruction %d", e.InstructionIndex)
		if !e.Program.IsZero() {
			fmt.Fprintf(&b, " (%s)", e.Program)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Name)
	if e.Message != "" && e.Message != e.Name {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

var splTokenErrors = []string{
	"NotRentExempt", "InsufficientFunds", "InvalidMint", "MintMismatch", "OwnerMismatch",
	"FixedSupply", "AlreadyInUse", "InvalidNumberOfProvidedSigners", "InvalidNumberOfRequiredSigners",
	"UninitializedState", "NativeNotSupported", "NonNativeHasBalance", "InvalidInstruction",
	"InvalidState", "Overflow", "AuthorityTypeNotSupported", "MintCannotFreeze", "AccountFrozen",
	"MintDecimalsMismatch", "NonNativeNotSupported",
}

var anchorErrors = map[uint32]string{
	100:  "InstructionMissing",
	101:  "InstructionFallbackNotFound",
	102:  "InstructionDidNotDeserialize",
	103:  "InstructionDidNotSerialize",
	2000: "ConstraintMut",
	2001: "ConstraintHasOne",
	2002: "ConstraintSigner",
	2003: "ConstraintRaw",
	2004: "ConstraintOwner",
	2005: "ConstraintRentExempt",
	2006: "ConstraintSeeds",
	2007: "ConstraintExecutable",
	2009: "ConstraintAssociated",
	2011: "ConstraintClose",
	2012: "ConstraintAddress",
	2014: "ConstraintTokenMint",
	2015: "ConstraintTokenOwner",
	3000: "AccountDiscriminatorAlreadySet",
	3001: "AccountDiscriminatorNotFound",
	3002: "AccountDiscriminatorMismatch",
	3003: "AccountDidNotDeserialize",
	3004: "AccountDidNotSerialize",
	3005: "AccountNotEnoughKeys",
	3006: "AccountNotMutable",
	3007: "AccountOwnedByWrongProgram",
	3008: "InvalidProgramId",
	3009: "InvalidProgramExecutable",
	3010: "AccountNotSigner",
	3011: "AccountNotSystemOwned",
	3012: "AccountNotInitialized",
	3014: "AccountNotAssociatedTokenAccount",
	3015: "AccountSysvarMismatch",
	4100: "DeclaredProgramIdMismatch",
}

// ProgramResolver maps an instruction index to the program it invoked. It may
// return the zero key when unknown.
type ProgramResolver func(index int) solana.PublicKey

// TransactionPrograms resolves programs from the transaction that produced the error.
func TransactionPrograms(tx *solana.Transaction) ProgramResolver {
	return func(index int) solana.PublicKey {
		if tx == nil || index < 0 || index >= len(tx.Message.Instructions) {
			return solana.PublicKey{}
		}
		pk, err := tx.ResolveProgramIDIndex(tx.Message.Instructions[index].ProgramIDIndex)
		if err != nil {
			return solana.PublicKey{}
		}
		return pk
	}
}

// DecodeError turns the err field of a signature status or simulation result into
// an OnChainExecutionError. It returns nil for an empty or null value.
//
// Shapes handled: "AccountInUse", {"InstructionError":[2,"InvalidAccountData"]} and
// {"InstructionError":[2,{"Custom":6016}]}.
func DecodeError(raw json.RawMessage, programs ProgramResolver) *OnChainExecutionError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	out := &OnChainExecutionError{InstructionIndex: -1, Raw: string(raw)}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		out.Name, out.Message = name, name
		return out
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		out.Name, out.Message = "Unknown", string(raw)
		return out
	}
	ixErr, ok := obj["InstructionError"]
	if !ok {
		for k := range obj {
			out.Name, out.Message = k, string(obj[k])
		}
		return out
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(ixErr, &pair); err != nil || len(pair) != 2 {
		out.Name, out.Message = "InstructionError", string(ixErr)
		return out
	}
	if err := json.Unmarshal(pair[0], &out.InstructionIndex); err != nil {
		out.InstructionIndex = -1
	}
	if programs != nil {
		out.Program = programs(out.InstructionIndex)
	}

	if err := json.Unmarshal(pair[1], &name); err == nil {
		out.Name, out.Message = name, name
		return out
	}
	var custom struct {
		Custom *uint32 `json:"Custom"`
	}
	if err := json.Unmarshal(pair[1], &custom); err != nil || custom.Custom == nil {
		out.Name, out.Message = "InstructionError", string(pair[1])
		return out
	}
	out.Code = custom.Custom
	out.Name, out.Message = describeCustom(out.Program, *custom.Custom)
	return out
}

func describeCustom(program solana.PublicKey, code uint32) (name, message string) {
	switch {
	case program.Equals(rift.ProgramID) || program.IsZero():
		if pe, ok := rift.LookupError(code); ok {
			return pe.Name, pe.Message
		}
	case token.IsTokenProgram(program):
		if int(code) < len(splTokenErrors) {
			return splTokenErrors[code], "token program: " + splTokenErrors[code]
		}
	}
	if n, ok := anchorErrors[code]; ok {
		return n, "anchor: " + n
	}
	return "Custom", fmt.Sprintf("custom program error 0x%x", code)
}
