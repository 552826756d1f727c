package bundle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/rift-liquidity/internal/logger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
)

type relayRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newRelay(t *testing.T, handler func(relayRequest) string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req relayRequest
		require.NoError(t, json.Unmarshal(body, &req))
		_, _ = w.Write([]byte(handler(req)))
	}))
	t.Cleanup(srv.Close)

	caller := rpc.NewClient(rpc.ClientConfig{
		BaseURL:      srv.URL,
		Timeout:      2 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		Logger:       logger.Discard(),
	})
	c, err := NewClient(caller, "", logger.Discard())
	require.NoError(t, err)
	return c
}

func signedTx(t *testing.T, payer solana.PrivateKey, data byte) *solana.Transaction {
	t.Helper()
	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(payer.PublicKey()).SIGNER().WRITE(),
	}, []byte{data})
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{1}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(solana.PublicKey) *solana.PrivateKey { return &payer })
	require.NoError(t, err)
	return tx
}

func TestSubmitBundle(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	txs := []*solana.Transaction{signedTx(t, payer, 1), signedTx(t, payer, 2)}

	var got []string
	c := newRelay(t, func(req relayRequest) string {
		assert.Equal(t, "sendBundle", req.Method)
		require.Len(t, req.Params, 1)
		require.NoError(t, json.Unmarshal(req.Params[0], &got))
		return `{"jsonrpc":"2.0","id":1,"result":"b-123"}`
	})

	id, err := c.SubmitBundle(context.Background(), txs)
	require.NoError(t, err)
	assert.Equal(t, "b-123", id)

	require.Len(t, got, 2)
	for i, enc := range got {
		raw, err := base58.Decode(enc)
		require.NoError(t, err)
		want, err := txs[i].MarshalBinary()
		require.NoError(t, err)
		assert.Equal(t, want, raw, "order and encoding of tx %d", i)
	}
}

func TestSubmitBundle_NotRetried(t *testing.T) {
	var calls int32
	c := newRelay(t, func(relayRequest) string {
		atomic.AddInt32(&calls, 1)
		return `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bundle rejected"}}`
	})
	_, err := c.SubmitBundle(context.Background(), []*solana.Transaction{signedTx(t, solana.NewWallet().PrivateKey, 1)})
	assert.ErrorContains(t, err, "bundle rejected")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubmitBundle_Limits(t *testing.T) {
	c := newRelay(t, func(relayRequest) string { return `{}` })
	_, err := c.SubmitBundle(context.Background(), nil)
	assert.Error(t, err)

	payer := solana.NewWallet().PrivateKey
	var txs []*solana.Transaction
	for i := 0; i < 6; i++ {
		txs = append(txs, signedTx(t, payer, byte(i)))
	}
	_, err = c.SubmitBundle(context.Background(), txs)
	assert.ErrorIs(t, err, ErrTooManyTransactions)
}

func TestBundleStatus(t *testing.T) {
	c := newRelay(t, func(req relayRequest) string {
		assert.Equal(t, "getBundleStatuses", req.Method)
		return `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":9},"value":[
			{"bundle_id":"b-1","transactions":["s1","s2"],"slot":9,"confirmation_status":"confirmed","err":{"Ok":null}}
		]}}`
	})
	st, err := c.BundleStatus(context.Background(), "b-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Landed())
	assert.Equal(t, []string{"s1", "s2"}, st.Transactions)

	var pending *Status
	assert.False(t, pending.Landed())
}

func TestTipInstruction(t *testing.T) {
	tipAccount := solana.NewWallet().PublicKey()
	c, err := NewClient(nil, tipAccount.String(), logger.Discard())
	require.NoError(t, err)

	payer := solana.NewWallet().PublicKey()
	ix := c.TipInstruction(payer, 0)
	assert.Equal(t, solana.SystemProgramID, ix.ProgramID())
	accounts := ix.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, payer, accounts[0].PublicKey)
	assert.Equal(t, tipAccount, accounts[1].PublicKey)

	_, err = NewClient(nil, "not-a-key", logger.Discard())
	assert.Error(t, err)
}
