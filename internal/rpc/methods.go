package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// GetAccountInfo returns nil, nil when the account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, address solana.PublicKey, commitment string) (*AccountInfo, error) {
	var resp struct {
		Result struct {
			Value *accountValue `json:"value"`
		} `json:"result"`
		Error *RPCError `json:"error"`
	}

	params := []any{
		address.String(),
		map[string]any{
			"encoding":   "base64",
			"commitment": commitment,
		},
	}

	if err := c.Call(ctx, "getAccountInfo", params, &resp); err != nil {
		return nil, fmt.Errorf("getAccountInfo RPC failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getAccountInfo error: %w", resp.Error)
	}
	if resp.Result.Value == nil {
		return nil, nil
	}

	return decodeAccount(address, resp.Result.Value)
}

// GetMultipleAccounts keeps input order; missing accounts are nil entries.
func (c *Client) GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey, commitment string) ([]*AccountInfo, error) {
	keys := make([]string, len(addresses))
	for i, a := range addresses {
		keys[i] = a.String()
	}

	var resp struct {
		Result struct {
			Value []*accountValue `json:"value"`
		} `json:"result"`
		Error *RPCError `json:"error"`
	}

	params := []any{
		keys,
		map[string]any{
			"encoding":   "base64",
			"commitment": commitment,
		},
	}

	if err := c.Call(ctx, "getMultipleAccounts", params, &resp); err != nil {
		return nil, fmt.Errorf("getMultipleAccounts RPC failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getMultipleAccounts error: %w", resp.Error)
	}
	if len(resp.Result.Value) != len(addresses) {
		return nil, fmt.Errorf("getMultipleAccounts: expected %d accounts, got %d", len(addresses), len(resp.Result.Value))
	}

	out := make([]*AccountInfo, len(addresses))
	for i, v := range resp.Result.Value {
		if v == nil {
			continue
		}
		acc, err := decodeAccount(addresses[i], v)
		if err != nil {
			return nil, err
		}
		out[i] = acc
	}
	return out, nil
}

// GetProgramAccounts lists accounts owned by program that match every filter
func (c *Client) GetProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64, filters []MemcmpFilter, commitment string) ([]ProgramAccount, error) {
	rawFilters := make([]any, 0, len(filters)+1)
	if dataSize > 0 {
		rawFilters = append(rawFilters, map[string]any{"dataSize": dataSize})
	}
	for _, f := range filters {
		rawFilters = append(rawFilters, map[string]any{
			"memcmp": map[string]any{"offset": f.Offset, "bytes": f.Bytes},
		})
	}

	var resp struct {
		Result []struct {
			Pubkey  string       `json:"pubkey"`
			Account accountValue `json:"account"`
		} `json:"result"`
		Error *RPCError `json:"error"`
	}

	params := []any{
		program.String(),
		map[string]any{
			"encoding":   "base64",
			"commitment": commitment,
			"filters":    rawFilters,
		},
	}

	if err := c.Call(ctx, "getProgramAccounts", params, &resp); err != nil {
		return nil, fmt.Errorf("getProgramAccounts RPC failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getProgramAccounts error: %w", resp.Error)
	}

	out := make([]ProgramAccount, 0, len(resp.Result))
	for _, r := range resp.Result {
		addr, err := solana.PublicKeyFromBase58(r.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("invalid account address %q: %w", r.Pubkey, err)
		}
		acc, err := decodeAccount(addr, &r.Account)
		if err != nil {
			return nil, err
		}
		out = append(out, ProgramAccount{Address: addr, Account: *acc})
	}
	return out, nil
}

// GetTokenAccountBalance returns the raw amount held by a token account
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment string) (*TokenBalance, error) {
	var resp struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value TokenAmount `json:"value"`
		} `json:"result"`
		Error *RPCError `json:"error"`
	}

	params := []any{
		account.String(),
		map[string]any{"commitment": commitment},
	}

	if err := c.Call(ctx, "getTokenAccountBalance", params, &resp); err != nil {
		return nil, fmt.Errorf("getTokenAccountBalance RPC failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getTokenAccountBalance error: %w", resp.Error)
	}

	amount, err := strconv.ParseUint(resp.Result.Value.Amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format %q: %w", resp.Result.Value.Amount, err)
	}

	return &TokenBalance{
		Amount:   amount,
		Decimals: resp.Result.Value.Decimals,
		Slot:     resp.Result.Context.Slot,
	}, nil
}

// GetBalance returns the lamport balance of an account
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey, commitment string) (uint64, error) {
	var resp struct {
		Result struct {
			Value uint64 `json:"value"`
		} `json:"result"`
		Error *RPCError `json:"error"`
	}

	params := []any{
		account.String(),
		map[string]any{"commitment": commitment},
	}

	if err := c.Call(ctx, "getBalance", params, &resp); err != nil {
		return 0, fmt.Errorf("getBalance RPC failed: %w", err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("getBalance error: %w", resp.Error)
	}
	return resp.Result.Value, nil
}

// GetTokenAccountsByOwner lists the owner's accounts under a token program (jsonParsed)
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner, tokenProgram solana.PublicKey, commitment string) ([]OwnedTokenAccount, error) {
	var resp struct {
		Result struct {
			Value []struct {
				Pubkey  string `json:"pubkey"`
				Account struct {
					Data struct {
						Parsed struct {
							Info struct {
								Mint        string      `json:"mint"`
								TokenAmount TokenAmount `json:"tokenAmount"`
							} `json:"info"`
						} `json:"parsed"`
					} `json:"data"`
				} `json:"account"`
			} `json:"value"`
		} `json:"result"`
		Error *RPCError `json:"error"`
	}

	params := []any{
		owner.String(),
		map[string]any{"programId": tokenProgram.String()},
		map[string]any{
			"encoding":   "jsonParsed",
			"commitment": commitment,
		},
	}

	if err := c.Call(ctx, "getTokenAccountsByOwner", params, &resp); err != nil {
		return nil, fmt.Errorf("getTokenAccountsByOwner RPC failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getTokenAccountsByOwner error: %w", resp.Error)
	}

	out := make([]OwnedTokenAccount, 0, len(resp.Result.Value))
	for _, v := range resp.Result.Value {
		addr, err := solana.PublicKeyFromBase58(v.Pubkey)
		if err != nil {
			continue
		}
		mint, err := solana.PublicKeyFromBase58(v.Account.Data.Parsed.Info.Mint)
		if err != nil {
			continue
		}
		amount, err := strconv.ParseUint(v.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, OwnedTokenAccount{Address: addr, Mint: mint, Amount: amount})
	}
	return out, nil
}

// GetLatestBlockhash fetches the most recent blockhash with commitment level
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment string) (solana.Hash, uint64, error) {
	var resp struct {
		Result struct {
			Value struct {
				Blockhash            string `json:"blockhash"`
				LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
			} `json:"value"`
		} `json:"result"`
		Error *RPCError `json:"error"`
	}

	params := []any{
		map[string]any{"commitment": commitment},
	}

	if err := c.Call(ctx, "getLatestBlockhash", params, &resp); err != nil {
		return solana.Hash{}, 0, fmt.Errorf("getLatestBlockhash failed: %w", err)
	}
	if resp.Error != nil {
		return solana.Hash{}, 0, fmt.Errorf("getLatestBlockhash error: %w", resp.Error)
	}

	hash, err := solana.HashFromBase58(resp.Result.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("invalid blockhash format: %w", err)
	}

	return hash, resp.Result.Value.LastValidBlockHeight, nil
}

// SendRawTransaction submits signed wire bytes exactly once. Preflight is skipped
// because callers simulate explicitly before signing.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	params := []any{
		base64.StdEncoding.EncodeToString(raw),
		map[string]any{
			"encoding":      "base64",
			"skipPreflight": true,
			"maxRetries":    0,
		},
	}

	var resp struct {
		Result string    `json:"result"`
		Error  *RPCError `json:"error"`
	}

	if err := c.CallOnce(ctx, "sendTransaction", params, &resp); err != nil {
		return solana.Signature{}, fmt.Errorf("sendTransaction RPC failed: %w", err)
	}
	if resp.Error != nil {
		return solana.Signature{}, fmt.Errorf("sendTransaction error: code=%d, message=%s: %w",
			resp.Error.Code, resp.Error.Message, resp.Error)
	}

	sig, err := solana.SignatureFromBase58(resp.Result)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid signature in response: %w", err)
	}
	return sig, nil
}

// GetSignatureStatus returns nil, nil while the cluster has not seen the signature.
func (c *Client) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	var resp struct {
		Result struct {
			Value []*SignatureStatus `json:"value"`
		} `json:"result"`
		Error *RPCError `json:"error"`
	}

	params := []any{
		[]string{sig.String()},
		map[string]any{"searchTransactionHistory": true},
	}

	if err := c.Call(ctx, "getSignatureStatuses", params, &resp); err != nil {
		return nil, fmt.Errorf("getSignatureStatuses RPC failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getSignatureStatuses error: %w", resp.Error)
	}

	if len(resp.Result.Value) == 0 || resp.Result.Value[0] == nil {
		return nil, nil
	}
	return resp.Result.Value[0], nil
}

// SimulateTransaction dry-runs signed or unsigned wire bytes
func (c *Client) SimulateTransaction(ctx context.Context, raw []byte, commitment string) (*SimulationResult, error) {
	var resp struct {
		Result struct {
			Value struct {
				Err           json.RawMessage `json:"err"`
				Logs          []string        `json:"logs"`
				UnitsConsumed uint64          `json:"unitsConsumed,omitempty"`
			} `json:"value"`
		} `json:"result"`
		Error *RPCError `json:"error"`
	}

	params := []any{
		base64.StdEncoding.EncodeToString(raw),
		map[string]any{
			"encoding":               "base64",
			"commitment":             commitment,
			"sigVerify":              false,
			"replaceRecentBlockhash": true,
		},
	}

	if err := c.Call(ctx, "simulateTransaction", params, &resp); err != nil {
		return nil, fmt.Errorf("simulateTransaction failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("simulateTransaction error: %w", resp.Error)
	}

	return &SimulationResult{
		Err:           resp.Result.Value.Err,
		Logs:          resp.Result.Value.Logs,
		UnitsConsumed: resp.Result.Value.UnitsConsumed,
	}, nil
}

func decodeAccount(address solana.PublicKey, v *accountValue) (*AccountInfo, error) {
	owner, err := solana.PublicKeyFromBase58(v.Owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner %q for %s: %w", v.Owner, address, err)
	}

	var data []byte
	if len(v.Data) > 0 {
		data, err = base64.StdEncoding.DecodeString(v.Data[0])
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data for %s: %w", address, err)
		}
	}

	return &AccountInfo{
		Address:    address,
		Owner:      owner,
		Lamports:   v.Lamports,
		Executable: v.Executable,
		Data:       data,
	}, nil
}
