// Package bundle submits groups of signed transactions to a block-engine relay
// that lands them atomically in one slot or not at all.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

var ErrTooManyTransactions = fmt.Errorf("a bundle holds at most %d transactions", constants.MaxBundleTransactions)

// Relay is the atomic submission capability.
type Relay interface {
	SubmitBundle(ctx context.Context, txs []*solana.Transaction) (string, error)
}

// Caller is the JSON-RPC transport, satisfied by *rpc.Client pointed at the relay.
type Caller interface {
	CallOnce(ctx context.Context, method string, params interface{}, result interface{}) error
	Call(ctx context.Context, method string, params interface{}, result interface{}) error
}

type Client struct {
	rpc  Caller
	tips []solana.PublicKey
	log  *logrus.Logger
}

// NewClient uses tipAccount when set, otherwise one of the relay's published tip
// accounts picked per bundle.
func NewClient(caller Caller, tipAccount string, log *logrus.Logger) (*Client, error) {
	if log == nil {
		log = logrus.New()
	}
	var tips []solana.PublicKey
	if tipAccount != "" {
		pk, err := solana.PublicKeyFromBase58(tipAccount)
		if err != nil {
			return nil, fmt.Errorf("invalid tip account: %w", err)
		}
		tips = []solana.PublicKey{pk}
	} else {
		for _, s := range constants.BundleTipAccounts {
			tips = append(tips, solana.MustPublicKeyFromBase58(s))
		}
	}
	return &Client{rpc: caller, tips: tips, log: log}, nil
}

// TipInstruction pays the relay. It belongs at the end of the last transaction so
// the tip is only spent when every transaction before it executed.
func (c *Client) TipInstruction(payer solana.PublicKey, lamports uint64) solana.Instruction {
	if lamports == 0 {
		lamports = constants.DefaultBundleTipLamports
	}
	tip := c.tips[rand.IntN(len(c.tips))]
	return token.NewSystemTransferIx(payer, tip, lamports)
}

// SubmitBundle sends base58-encoded signed transactions in order and returns the
// relay's bundle id. Submission is never retried.
func (c *Client) SubmitBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	if len(txs) == 0 {
		return "", errors.New("empty bundle")
	}
	if len(txs) > constants.MaxBundleTransactions {
		return "", ErrTooManyTransactions
	}

	encoded := make([]string, len(txs))
	for i, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("serialize bundle tx %d: %w", i, err)
		}
		encoded[i] = base58.Encode(raw)
	}

	var resp struct {
		Result string        `json:"result"`
		Error  *rpc.RPCError `json:"error"`
	}
	if err := c.rpc.CallOnce(ctx, "sendBundle", []any{encoded}, &resp); err != nil {
		return "", fmt.Errorf("sendBundle failed: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("sendBundle error: code=%d, message=%s: %w", resp.Error.Code, resp.Error.Message, resp.Error)
	}
	if resp.Result == "" {
		return "", errors.New("relay returned no bundle id")
	}

	c.log.WithFields(logrus.Fields{
		"bundle_id":    resp.Result,
		"transactions": len(txs),
	}).Info("bundle submitted")
	return resp.Result, nil
}

// Status is one entry of getBundleStatuses. It is nil until the relay has seen the
// bundle land.
type Status struct {
	BundleID           string         `json:"bundle_id"`
	Transactions       []string       `json:"transactions"`
	Slot               uint64         `json:"slot"`
	ConfirmationStatus string         `json:"confirmation_status"`
	Err                map[string]any `json:"err"`
}

// Landed reports whether the bundle executed without error.
func (s *Status) Landed() bool {
	if s == nil || s.ConfirmationStatus == "" {
		return false
	}
	_, ok := s.Err["Ok"]
	return len(s.Err) == 0 || ok
}

func (c *Client) BundleStatus(ctx context.Context, bundleID string) (*Status, error) {
	var resp struct {
		Result struct {
			Value []*Status `json:"value"`
		} `json:"result"`
		Error *rpc.RPCError `json:"error"`
	}
	if err := c.rpc.Call(ctx, "getBundleStatuses", []any{[]string{bundleID}}, &resp); err != nil {
		return nil, fmt.Errorf("getBundleStatuses failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getBundleStatuses error: %w", resp.Error)
	}
	if len(resp.Result.Value) == 0 {
		return nil, nil
	}
	return resp.Result.Value[0], nil
}
