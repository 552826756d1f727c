package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/rift-liquidity/internal/logger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rift"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

type scriptedClient struct {
	mu       sync.Mutex
	sendErr  error
	sent     int
	statuses []*rpc.SignatureStatus
	errs     []error
	polls    int
}

func (c *scriptedClient) SendRawTransaction(context.Context, []byte) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return solana.Signature{}, c.sendErr
	}
	c.sent++
	return solana.Signature{1, 2, 3}, nil
}

func (c *scriptedClient) GetSignatureStatus(ctx context.Context, _ solana.Signature) (*rpc.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := c.polls
	c.polls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.statuses) {
		return c.statuses[i], nil
	}
	return nil, nil
}

func testTx(t *testing.T) *solana.Transaction {
	t.Helper()
	payer := solana.NewWallet()
	ix := solana.NewInstruction(rift.ProgramID, solana.AccountMetaSlice{
		solana.Meta(payer.PublicKey()).SIGNER().WRITE(),
	}, []byte{1})
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{9}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(payer.PublicKey()) {
			return &payer.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

func fastTracker(c Client, attempts int) *Tracker {
	return NewTracker(c, Config{Interval: time.Millisecond, MaxAttempts: attempts, Commitment: "confirmed"}, logger.Discard())
}

func TestSubmitAndConfirm_Confirmed(t *testing.T) {
	c := &scriptedClient{statuses: []*rpc.SignatureStatus{
		nil,
		{Slot: 10, ConfirmationStatus: "processed"},
		{Slot: 11, ConfirmationStatus: "confirmed"},
	}}
	rec, err := fastTracker(c, 30).SubmitAndConfirm(context.Background(), testTx(t), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, rec.Status)
	assert.Equal(t, uint64(11), rec.Slot)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, 1, c.sent)
	assert.True(t, rec.Status.Terminal())
}

func TestSubmitAndConfirm_TimedOutNotFailed(t *testing.T) {
	c := &scriptedClient{}
	rec, err := fastTracker(c, 5).SubmitAndConfirm(context.Background(), testTx(t), 0)
	require.ErrorIs(t, err, ErrTimedOut)
	assert.True(t, IsTimedOut(err))
	assert.Equal(t, StatusTimedOut, rec.Status)
	assert.Nil(t, rec.Error)
	assert.Equal(t, 5, c.polls)
	assert.Equal(t, 1, c.sent, "a timed-out transaction is never resubmitted")
}

func TestSubmitAndConfirm_PollErrorsAreNotFailures(t *testing.T) {
	boom := errors.New("node unavailable")
	c := &scriptedClient{
		errs:     []error{boom, boom},
		statuses: []*rpc.SignatureStatus{nil, nil, {ConfirmationStatus: "finalized"}},
	}
	rec, err := fastTracker(c, 10).SubmitAndConfirm(context.Background(), testTx(t), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, rec.Status)
}

func TestSubmitAndConfirm_FailedWithDecodedError(t *testing.T) {
	c := &scriptedClient{statuses: []*rpc.SignatureStatus{
		{Slot: 5, ConfirmationStatus: "confirmed", Err: json.RawMessage(`{"InstructionError":[0,{"Custom":6062}]}`)},
	}}
	rec, err := fastTracker(c, 10).SubmitAndConfirm(context.Background(), testTx(t), 0)

	var onChain *OnChainExecutionError
	require.ErrorAs(t, err, &onChain)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "SlippageExceeded", onChain.Name)
	assert.Equal(t, rift.ProgramID, onChain.Program)
	assert.Equal(t, 0, onChain.InstructionIndex)
	require.NotNil(t, onChain.Code)
	assert.Equal(t, rift.CodeSlippageExceeded, *onChain.Code)
	assert.Equal(t, rec.Signature, onChain.Signature)
	assert.False(t, IsTimedOut(err))
}

func TestSubmitAndConfirm_SendError(t *testing.T) {
	c := &scriptedClient{sendErr: errors.New("blockhash not found")}
	rec, err := fastTracker(c, 3).SubmitAndConfirm(context.Background(), testTx(t), 0)
	assert.Error(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 0, c.polls)
}

func TestSubmitAndConfirm_IgnoresCancelAfterSubmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &scriptedClient{statuses: []*rpc.SignatureStatus{{ConfirmationStatus: "confirmed"}}}

	rec, err := fastTracker(c, 3).SubmitAndConfirm(ctx, testTx(t), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, rec.Status)
}

func TestTimeoutBoundsAttempts(t *testing.T) {
	tr := NewTracker(&scriptedClient{}, Config{Interval: time.Second, MaxAttempts: 30}, logger.Discard())
	assert.Equal(t, 30, tr.attempts(0))
	assert.Equal(t, 5, tr.attempts(5*time.Second))
	assert.Equal(t, 3, tr.attempts(2500*time.Millisecond))
	assert.Equal(t, 1, tr.attempts(time.Millisecond))
}

func TestDecodeError(t *testing.T) {
	assert.Nil(t, DecodeError(nil, nil))
	assert.Nil(t, DecodeError(json.RawMessage("null"), nil))

	e := DecodeError(json.RawMessage(`"AccountInUse"`), nil)
	assert.Equal(t, "AccountInUse", e.Name)
	assert.Equal(t, -1, e.InstructionIndex)

	e = DecodeError(json.RawMessage(`{"InstructionError":[2,"InvalidAccountData"]}`), nil)
	assert.Equal(t, 2, e.InstructionIndex)
	assert.Equal(t, "InvalidAccountData", e.Name)

	tokenProgram := func(int) solana.PublicKey { return token.Token2022ProgramID }
	e = DecodeError(json.RawMessage(`{"InstructionError":[1,{"Custom":1}]}`), tokenProgram)
	assert.Equal(t, "InsufficientFunds", e.Name)
	assert.Contains(t, e.Error(), "instruction 1")

	other := func(int) solana.PublicKey { return solana.SystemProgramID }
	e = DecodeError(json.RawMessage(`{"InstructionError":[0,{"Custom":3012}]}`), other)
	assert.Equal(t, "AccountNotInitialized", e.Name)

	e = DecodeError(json.RawMessage(`{"InstructionError":[0,{"Custom":6099}]}`), other)
	assert.Equal(t, "Custom", e.Name)
	assert.Contains(t, e.Message, "0x17d3")

	e = DecodeError(json.RawMessage(`{"InsufficientFundsForRent":{"account_index":3}}`), nil)
	assert.Equal(t, "InsufficientFundsForRent", e.Name)
}
