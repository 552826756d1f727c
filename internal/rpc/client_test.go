package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newTestServer(t *testing.T, handler func(req rpcRequest) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req rpcRequest
		require.NoError(t, json.Unmarshal(body, &req))
		status, resp := handler(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string, retries int) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(ClientConfig{
		BaseURL:      url,
		Timeout:      2 * time.Second,
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
		Logger:       logger,
	})
}

func TestCall_RetriesOnRateLimit(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(req rpcRequest) (int, string) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return http.StatusTooManyRequests, ""
		}
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":42}}`
	})

	c := newTestClient(srv.URL, 3)
	bal, err := c.GetBalance(context.Background(), solana.SystemProgramID, "confirmed")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCallOnce_DoesNotRetry(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(req rpcRequest) (int, string) {
		atomic.AddInt32(&calls, 1)
		return http.StatusInternalServerError, ""
	})

	c := newTestClient(srv.URL, 5)
	_, err := c.SendRawTransaction(context.Background(), []byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetAccountInfo(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
	data := base64.StdEncoding.EncodeToString([]byte{9, 8, 7})

	srv := newTestServer(t, func(req rpcRequest) (int, string) {
		assert.Equal(t, "getAccountInfo", req.Method)
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":5},"value":{"lamports":10,"owner":"` +
			owner.String() + `","executable":false,"data":["` + data + `","base64"]}}}`
	})

	c := newTestClient(srv.URL, 0)
	acc, err := c.GetAccountInfo(context.Background(), solana.SystemProgramID, "confirmed")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.True(t, acc.Owner.Equals(owner))
	assert.Equal(t, []byte{9, 8, 7}, acc.Data)
}

func TestGetAccountInfo_Missing(t *testing.T) {
	srv := newTestServer(t, func(req rpcRequest) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":5},"value":null}}`
	})

	c := newTestClient(srv.URL, 0)
	acc, err := c.GetAccountInfo(context.Background(), solana.SystemProgramID, "confirmed")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestGetTokenAccountBalance(t *testing.T) {
	srv := newTestServer(t, func(req rpcRequest) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":77},"value":{"amount":"1000000","decimals":6,"uiAmount":1.0,"uiAmountString":"1"}}}`
	})

	c := newTestClient(srv.URL, 0)
	bal, err := c.GetTokenAccountBalance(context.Background(), solana.SystemProgramID, "confirmed")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), bal.Amount)
	assert.Equal(t, uint8(6), bal.Decimals)
	assert.Equal(t, uint64(77), bal.Slot)
}

func TestGetSignatureStatus(t *testing.T) {
	t.Run("unknown", func(t *testing.T) {
		srv := newTestServer(t, func(req rpcRequest) (int, string) {
			return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[null]}}`
		})
		st, err := newTestClient(srv.URL, 0).GetSignatureStatus(context.Background(), solana.Signature{})
		require.NoError(t, err)
		assert.Nil(t, st)
	})

	t.Run("failed", func(t *testing.T) {
		srv := newTestServer(t, func(req rpcRequest) (int, string) {
			return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[{"slot":9,"confirmations":null,"err":{"InstructionError":[0,{"Custom":6062}]},"confirmationStatus":"confirmed"}]}}`
		})
		st, err := newTestClient(srv.URL, 0).GetSignatureStatus(context.Background(), solana.Signature{})
		require.NoError(t, err)
		require.NotNil(t, st)
		assert.True(t, st.HasError())
		assert.True(t, st.Reached("confirmed"))
		assert.False(t, st.Reached("finalized"))
	})

	t.Run("ok", func(t *testing.T) {
		srv := newTestServer(t, func(req rpcRequest) (int, string) {
			return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[{"slot":9,"confirmations":3,"err":null,"confirmationStatus":"confirmed"}]}}`
		})
		st, err := newTestClient(srv.URL, 0).GetSignatureStatus(context.Background(), solana.Signature{})
		require.NoError(t, err)
		require.NotNil(t, st)
		assert.False(t, st.HasError())
	})
}

func TestRPCErrorSurfaced(t *testing.T) {
	srv := newTestServer(t, func(req rpcRequest) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"Transaction simulation failed"}}`
	})

	_, err := newTestClient(srv.URL, 0).SendRawTransaction(context.Background(), []byte{1})
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32002, rpcErr.Code)
}
