package rpc

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// IsAccountNotFound reports whether err is the node saying a token account does
// not exist (yet).
func IsAccountNotFound(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return strings.Contains(strings.ToLower(rpcErr.Message), "could not find account")
}

// AccountInfo is a decoded getAccountInfo value
type AccountInfo struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Executable bool
	Data       []byte
}

// accountValue is the wire form of an account with base64 data
type accountValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Executable bool     `json:"executable"`
	Data       []string `json:"data"`
}

// TokenAmount represents token balance information
type TokenAmount struct {
	Amount         string  `json:"amount"`
	Decimals       uint8   `json:"decimals"`
	UIAmountString string  `json:"uiAmountString"`
	UIAmount       float64 `json:"uiAmount"`
}

// TokenBalance is a parsed raw token account balance
type TokenBalance struct {
	Amount   uint64
	Decimals uint8
	Slot     uint64
}

// SignatureStatus is one entry of getSignatureStatuses
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// HasError reports whether the status carries an on-chain execution error.
func (s *SignatureStatus) HasError() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// Reached reports whether the status meets the requested commitment level
func (s *SignatureStatus) Reached(commitment string) bool {
	switch commitment {
	case "processed":
		return s.ConfirmationStatus != ""
	case "finalized":
		return s.ConfirmationStatus == "finalized"
	default:
		return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
	}
}

// SimulationResult contains simulation output
type SimulationResult struct {
	Err           json.RawMessage
	Logs          []string
	UnitsConsumed uint64
}

// Failed reports whether the simulation was rejected
func (r *SimulationResult) Failed() bool {
	return len(r.Err) > 0 && string(r.Err) != "null"
}

// OwnedTokenAccount is a jsonParsed token account held by an owner
type OwnedTokenAccount struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Amount  uint64
}

// MemcmpFilter restricts getProgramAccounts results by raw bytes at an offset
type MemcmpFilter struct {
	Offset uint64
	Bytes  string // base58
}

// ProgramAccount is one getProgramAccounts entry
type ProgramAccount struct {
	Address solana.PublicKey
	Account AccountInfo
}
