package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krypt-labs/krypt-gateway/internal/metrics"
	"github.com/krypt-labs/krypt-gateway/internal/models"
	"github.com/krypt-labs/krypt-gateway/internal/wallet"
)

var (
	testAccount   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testRecipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// fakeGateway implements wallet.Gateway and records call order
type fakeGateway struct {
	available      bool
	silentAccounts []common.Address
	promptAccounts []common.Address
	promptErr      error
	balance        *big.Int
	balanceErr     error
	sendErr        error
	waitErr        error
	sentTransfers  []wallet.TransferParams
	calls          *[]string
}

func (g *fakeGateway) record(call string) {
	if g.calls != nil {
		*g.calls = append(*g.calls, call)
	}
}

func (g *fakeGateway) Available() bool { return g.available }

func (g *fakeGateway) RequestAccounts(ctx context.Context, prompt bool) ([]common.Address, error) {
	if !g.available {
		return nil, wallet.ErrUnavailable
	}
	if prompt {
		g.record("accounts_prompt")
		if g.promptErr != nil {
			return nil, g.promptErr
		}
		return g.promptAccounts, nil
	}
	g.record("accounts_silent")
	return g.silentAccounts, nil
}

func (g *fakeGateway) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	g.record("balance")
	if g.balanceErr != nil {
		return nil, g.balanceErr
	}
	return g.balance, nil
}

func (g *fakeGateway) SendNativeTransfer(ctx context.Context, params wallet.TransferParams) (common.Hash, error) {
	g.record("send_native")
	if g.sendErr != nil {
		return common.Hash{}, g.sendErr
	}
	g.sentTransfers = append(g.sentTransfers, params)
	return common.HexToHash("0xaa"), nil
}

func (g *fakeGateway) SubmitCall(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	g.record("submit_call")
	return common.HexToHash("0xbb"), nil
}

func (g *fakeGateway) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	g.record("eth_call")
	return nil, nil
}

func (g *fakeGateway) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	g.record("wait")
	if g.waitErr != nil {
		return nil, g.waitErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

// fakeLedger implements Ledger and simulates the contract appending
// records on confirmed writes
type fakeLedger struct {
	transfers  []models.TransferRecord
	requests   []models.FundingRequest
	recordErr  error
	createErr  error
	approveErr error
	fulfillErr error
	readErr    error
	calls      *[]string
}

func (l *fakeLedger) record(call string) {
	if l.calls != nil {
		*l.calls = append(*l.calls, call)
	}
}

func (l *fakeLedger) Address() common.Address {
	return common.HexToAddress("0x9999999999999999999999999999999999999999")
}

func (l *fakeLedger) AllTransfers(ctx context.Context) ([]models.TransferRecord, error) {
	l.record("all_transfers")
	if l.readErr != nil {
		return nil, l.readErr
	}
	out := make([]models.TransferRecord, len(l.transfers))
	copy(out, l.transfers)
	return out, nil
}

func (l *fakeLedger) TransferCount(ctx context.Context) (uint64, error) {
	l.record("transfer_count")
	if l.readErr != nil {
		return 0, l.readErr
	}
	return uint64(len(l.transfers)), nil
}

func (l *fakeLedger) RecordTransfer(ctx context.Context, to common.Address, amount *big.Int, message string) (common.Hash, error) {
	l.record("record_transfer")
	if l.recordErr != nil {
		return common.Hash{}, l.recordErr
	}
	l.transfers = append(l.transfers, models.TransferRecord{
		Sender:    testAccount.Hex(),
		Recipient: to.Hex(),
		Amount:    amount.String(),
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	return common.HexToHash("0xcc"), nil
}

func (l *fakeLedger) CreateRequest(ctx context.Context, target common.Address, amount *big.Int, message string) (common.Hash, error) {
	l.record("create_request")
	if l.createErr != nil {
		return common.Hash{}, l.createErr
	}
	l.requests = append(l.requests, models.FundingRequest{
		Requester: testAccount.Hex(),
		Target:    target.Hex(),
		Amount:    amount.String(),
		Message:   message,
		Timestamp: time.Now().UTC(),
		Index:     uint64(len(l.requests)),
	})
	return common.HexToHash("0xdd"), nil
}

func (l *fakeLedger) ApproveRequest(ctx context.Context, index uint64) (common.Hash, error) {
	l.record("approve_request")
	if l.approveErr != nil {
		return common.Hash{}, l.approveErr
	}
	l.requests[index].Approved = true
	return common.HexToHash("0xee"), nil
}

func (l *fakeLedger) FulfillRequest(ctx context.Context, index uint64, value *big.Int) (common.Hash, error) {
	l.record("fulfill_request")
	if l.fulfillErr != nil {
		return common.Hash{}, l.fulfillErr
	}
	l.requests[index].Fulfilled = true
	return common.HexToHash("0xff"), nil
}

func (l *fakeLedger) AllRequests(ctx context.Context) ([]models.FundingRequest, error) {
	l.record("all_requests")
	if l.readErr != nil {
		return nil, l.readErr
	}
	out := make([]models.FundingRequest, len(l.requests))
	copy(out, l.requests)
	return out, nil
}

func (l *fakeLedger) RequestCount(ctx context.Context) (uint64, error) {
	l.record("request_count")
	if l.readErr != nil {
		return 0, l.readErr
	}
	return uint64(len(l.requests)), nil
}

func newTestOrchestrator(gw *fakeGateway, l *fakeLedger) *Orchestrator {
	m := metrics.New(prometheus.NewRegistry())
	return New(gw, l, nil, m, zap.NewNop())
}

func connectedGateway(calls *[]string) *fakeGateway {
	return &fakeGateway{
		available:      true,
		silentAccounts: []common.Address{testAccount},
		balance:        big.NewInt(2e18),
		calls:          calls,
	}
}

// ==================== Session ====================

func TestAuthorize_GatewayUnavailable(t *testing.T) {
	gw := &fakeGateway{available: false}
	orch := newTestOrchestrator(gw, &fakeLedger{})

	_, err := orch.Authorize(context.Background())
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	_, _, connected := orch.Session()
	assert.False(t, connected, "no state change expected")
}

func TestAuthorize_AlreadyConnected(t *testing.T) {
	gw := connectedGateway(nil)
	orch := newTestOrchestrator(gw, &fakeLedger{})

	result, err := orch.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AuthAlreadyConnected, result)

	account, balance, connected := orch.Session()
	assert.True(t, connected)
	assert.Equal(t, testAccount.Hex(), account)
	assert.Equal(t, "2", balance)
}

func TestAuthorize_PromptGrantsAccount(t *testing.T) {
	gw := &fakeGateway{
		available:      true,
		promptAccounts: []common.Address{testAccount},
		balance:        big.NewInt(1e18),
	}
	orch := newTestOrchestrator(gw, &fakeLedger{})

	result, err := orch.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AuthConnected, result)

	account, balance, connected := orch.Session()
	assert.True(t, connected)
	assert.Equal(t, testAccount.Hex(), account)
	assert.Equal(t, "1", balance)
}

func TestAuthorize_PromptRejected(t *testing.T) {
	gw := &fakeGateway{
		available: true,
		promptErr: wallet.ErrRejected,
	}
	orch := newTestOrchestrator(gw, &fakeLedger{})

	_, err := orch.Authorize(context.Background())
	require.ErrorIs(t, err, ErrUserRejected)

	_, _, connected := orch.Session()
	assert.False(t, connected)
}

func TestCheckExistingAuthorization_NoGateway(t *testing.T) {
	gw := &fakeGateway{available: false}
	orch := newTestOrchestrator(gw, &fakeLedger{})

	orch.CheckExistingAuthorization(context.Background())

	_, _, connected := orch.Session()
	assert.False(t, connected)
}

func TestCheckExistingAuthorization_LoadsSnapshots(t *testing.T) {
	l := &fakeLedger{
		transfers: []models.TransferRecord{{Sender: "a", Recipient: "b", Amount: "1"}},
		requests:  []models.FundingRequest{{Requester: "c", Index: 0}},
	}
	gw := connectedGateway(nil)
	orch := newTestOrchestrator(gw, l)

	orch.CheckExistingAuthorization(context.Background())

	account, _, connected := orch.Session()
	assert.True(t, connected)
	assert.Equal(t, testAccount.Hex(), account)
	assert.Len(t, orch.Transfers(), 1)
	assert.Len(t, orch.Requests(), 1)
}

func TestCheckExistingAuthorization_AccountSwitchReplacesSnapshots(t *testing.T) {
	l := &fakeLedger{
		transfers: []models.TransferRecord{{Sender: "a", Amount: "1"}},
	}
	gw := connectedGateway(nil)
	orch := newTestOrchestrator(gw, l)

	orch.CheckExistingAuthorization(context.Background())
	require.Len(t, orch.Transfers(), 1)

	// Wallet-side account switch plus fresh on-chain history
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	gw.silentAccounts = []common.Address{other}
	l.transfers = []models.TransferRecord{
		{Sender: "x", Amount: "2"},
		{Sender: "y", Amount: "3"},
	}

	orch.CheckExistingAuthorization(context.Background())

	account, _, _ := orch.Session()
	assert.Equal(t, other.Hex(), account)

	transfers := orch.Transfers()
	require.Len(t, transfers, 2, "snapshot must be replaced, not merged")
	assert.Equal(t, "x", transfers[0].Sender)
}

// ==================== Transfers ====================

func TestSendTransfer_Success(t *testing.T) {
	var calls []string
	gw := connectedGateway(&calls)
	l := &fakeLedger{calls: &calls}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	calls = calls[:0]
	err := orch.SendTransfer(context.Background(), testRecipient, "1.5", "hello")
	require.NoError(t, err)

	// Wallet leg strictly before ledger leg, confirmation before refreshes
	require.GreaterOrEqual(t, len(calls), 4)
	assert.Equal(t, "send_native", calls[0])
	assert.Equal(t, "record_transfer", calls[1])
	assert.Equal(t, "wait", calls[2])

	assert.False(t, orch.OperationFlags().Sending, "flag must be lowered")

	transfers := orch.Transfers()
	require.NotEmpty(t, transfers)
	latest := transfers[len(transfers)-1]
	assert.Equal(t, testRecipient.Hex(), latest.Recipient)
	assert.Equal(t, "hello", latest.Message)

	require.Len(t, gw.sentTransfers, 1)
	assert.Equal(t, "1500000000000000000", gw.sentTransfers[0].Value.String())
}

func TestSendTransfer_InvalidAmount(t *testing.T) {
	var calls []string
	gw := connectedGateway(&calls)
	orch := newTestOrchestrator(gw, &fakeLedger{})
	orch.CheckExistingAuthorization(context.Background())

	calls = calls[:0]
	err := orch.SendTransfer(context.Background(), testRecipient, "not-a-number", "")
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, calls, "no network call before validation")
	assert.False(t, orch.OperationFlags().Sending)
}

func TestSendTransfer_ZeroAmountPermitted(t *testing.T) {
	gw := connectedGateway(nil)
	orch := newTestOrchestrator(gw, &fakeLedger{})
	orch.CheckExistingAuthorization(context.Background())

	err := orch.SendTransfer(context.Background(), testRecipient, "0", "zero")
	require.NoError(t, err)

	require.Len(t, gw.sentTransfers, 1)
	assert.Equal(t, "0", gw.sentTransfers[0].Value.String())
}

func TestSendTransfer_WalletRejected(t *testing.T) {
	gw := connectedGateway(nil)
	gw.sendErr = wallet.ErrRejected
	l := &fakeLedger{}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	err := orch.SendTransfer(context.Background(), testRecipient, "1", "")
	require.ErrorIs(t, err, ErrUserRejected)
	assert.False(t, orch.OperationFlags().Sending)
	assert.Empty(t, l.transfers, "ledger leg must not run after wallet failure")
}

func TestSendTransfer_LedgerFailureAfterWalletSuccess(t *testing.T) {
	gw := connectedGateway(nil)
	l := &fakeLedger{recordErr: errors.New("execution reverted")}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	err := orch.SendTransfer(context.Background(), testRecipient, "1", "")
	require.ErrorIs(t, err, ErrContractCallFailed)

	assert.False(t, orch.OperationFlags().Sending, "flag must never be left raised")
	assert.Len(t, gw.sentTransfers, 1, "wallet leg already executed")
}

func TestSendTransfer_ConfirmationFailure(t *testing.T) {
	gw := connectedGateway(nil)
	gw.waitErr = errors.New("timeout waiting for transaction")
	orch := newTestOrchestrator(gw, &fakeLedger{})
	orch.CheckExistingAuthorization(context.Background())

	err := orch.SendTransfer(context.Background(), testRecipient, "1", "")
	require.ErrorIs(t, err, ErrContractCallFailed)
	assert.False(t, orch.OperationFlags().Sending)
}

// ==================== Balance ====================

func TestRefreshBalance_FailureKeepsPreviousValue(t *testing.T) {
	gw := connectedGateway(nil)
	orch := newTestOrchestrator(gw, &fakeLedger{})
	orch.CheckExistingAuthorization(context.Background())

	_, balance, _ := orch.Session()
	require.Equal(t, "2", balance)

	gw.balanceErr = errors.New("node unreachable")
	orch.RefreshBalance(context.Background(), testAccount)

	_, balance, _ = orch.Session()
	assert.Equal(t, "2", balance, "previous value must survive a failed refresh")
}

// ==================== Funding requests ====================

func seededRequests() []models.FundingRequest {
	return []models.FundingRequest{
		{Requester: "r0", Target: "t0", Amount: "1", Index: 0},
		{Requester: "r1", Target: "t1", Amount: "2", Index: 1, Approved: true},
		{Requester: "r2", Target: "t2", Amount: "3", Index: 2, Approved: true, Fulfilled: true},
	}
}

func TestCreateRequest_Success(t *testing.T) {
	gw := connectedGateway(nil)
	l := &fakeLedger{}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	err := orch.CreateRequest(context.Background(), testRecipient, "2.5", "rent")
	require.NoError(t, err)

	assert.False(t, orch.OperationFlags().Creating)

	requests := orch.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, testRecipient.Hex(), requests[0].Target)
	assert.Equal(t, models.RequestStatusPending, requests[0].Status())
}

func TestCreateRequest_InvalidAmount(t *testing.T) {
	gw := connectedGateway(nil)
	l := &fakeLedger{}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	err := orch.CreateRequest(context.Background(), testRecipient, "1.2.3", "")
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, l.requests)
}

func TestApproveRequest_Success(t *testing.T) {
	gw := connectedGateway(nil)
	l := &fakeLedger{requests: seededRequests()}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	err := orch.ApproveRequest(context.Background(), 0)
	require.NoError(t, err)

	assert.False(t, orch.OperationFlags().Approving)

	requests := orch.Requests()
	assert.Equal(t, models.RequestStatusApproved, requests[0].Status())
}

func TestApproveRequest_AlreadyFulfilled(t *testing.T) {
	var calls []string
	gw := connectedGateway(&calls)
	l := &fakeLedger{requests: seededRequests(), calls: &calls}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	calls = calls[:0]
	err := orch.ApproveRequest(context.Background(), 2)
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.NotContains(t, calls, "approve_request")
}

func TestFulfillRequest_Success(t *testing.T) {
	var calls []string
	gw := connectedGateway(&calls)
	l := &fakeLedger{requests: seededRequests(), calls: &calls}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	calls = calls[:0]
	err := orch.FulfillRequest(context.Background(), testRecipient, "2", 1)
	require.NoError(t, err)

	// Native transfer strictly before the ledger fulfillment
	sendIdx := indexOf(calls, "send_native")
	fulfillIdx := indexOf(calls, "fulfill_request")
	require.GreaterOrEqual(t, sendIdx, 0)
	require.GreaterOrEqual(t, fulfillIdx, 0)
	assert.Less(t, sendIdx, fulfillIdx)

	assert.False(t, orch.OperationFlags().Fulfilling)

	requests := orch.Requests()
	assert.Equal(t, models.RequestStatusFulfilled, requests[1].Status())
}

func TestFulfillRequest_PendingRejected(t *testing.T) {
	gw := connectedGateway(nil)
	l := &fakeLedger{requests: seededRequests()}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	err := orch.FulfillRequest(context.Background(), testRecipient, "1", 0)
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, gw.sentTransfers, "no funds may move for an unapproved request")
}

func TestFulfillRequest_AlreadyFulfilledRejected(t *testing.T) {
	gw := connectedGateway(nil)
	l := &fakeLedger{requests: seededRequests()}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())

	err := orch.FulfillRequest(context.Background(), testRecipient, "3", 2)
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, gw.sentTransfers)
}

func TestRequestSnapshotRefreshFailureKeepsPrevious(t *testing.T) {
	gw := connectedGateway(nil)
	l := &fakeLedger{requests: seededRequests()}
	orch := newTestOrchestrator(gw, l)
	orch.CheckExistingAuthorization(context.Background())
	require.Len(t, orch.Requests(), 3)

	l.readErr = fmt.Errorf("node unreachable")
	orch.CheckExistingAuthorization(context.Background())

	assert.Len(t, orch.Requests(), 3, "stale snapshot preferred over loss")
}

func indexOf(calls []string, want string) int {
	for i, c := range calls {
		if c == want {
			return i
		}
	}
	return -1
}
