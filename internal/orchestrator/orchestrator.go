// Package orchestrator mediates between the wallet gateway and the
// ledger contract. It owns the derived application state (active
// account, balance, history snapshots, in-progress flags) and exposes
// the operations the presentation layer dispatches.
//
// State rules: history snapshots are always replaced wholesale from a
// fresh fetch, never patched, so each snapshot is consistent at a
// single block height. In-progress flags are advisory: the
// orchestrator guarantees a flag is lowered on every exit path but
// does not serialize operations across flags.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/krypt-labs/krypt-gateway/internal/metrics"
	"github.com/krypt-labs/krypt-gateway/internal/models"
	"github.com/krypt-labs/krypt-gateway/internal/units"
	"github.com/krypt-labs/krypt-gateway/internal/wallet"
)

// Ledger is the subset of the contract binding the orchestrator
// consumes
type Ledger interface {
	Address() common.Address
	AllTransfers(ctx context.Context) ([]models.TransferRecord, error)
	TransferCount(ctx context.Context) (uint64, error)
	RecordTransfer(ctx context.Context, to common.Address, amount *big.Int, message string) (common.Hash, error)
	CreateRequest(ctx context.Context, target common.Address, amount *big.Int, message string) (common.Hash, error)
	ApproveRequest(ctx context.Context, index uint64) (common.Hash, error)
	FulfillRequest(ctx context.Context, index uint64, value *big.Int) (common.Hash, error)
	AllRequests(ctx context.Context) ([]models.FundingRequest, error)
	RequestCount(ctx context.Context) (uint64, error)
}

// CounterCache is the advisory counter store. May be absent.
type CounterCache interface {
	GetCounters(ctx context.Context, contractAddress string) (*models.CounterSnapshot, error)
	UpsertCounters(ctx context.Context, contractAddress string, transferCount, requestCount int64) error
}

// AuthResult reports the outcome of a successful Authorize call
type AuthResult string

const (
	AuthConnected        AuthResult = "connected"
	AuthAlreadyConnected AuthResult = "already_connected"
)

// Flags holds one advisory boolean per long-running write operation,
// true while that operation's on-chain confirmation is outstanding
type Flags struct {
	Sending    bool `json:"sending"`
	Creating   bool `json:"creating"`
	Approving  bool `json:"approving"`
	Fulfilling bool `json:"fulfilling"`
}

// Orchestrator owns the derived state and mediates all wallet and
// contract calls
type Orchestrator struct {
	gateway wallet.Gateway
	ledger  Ledger
	cache   CounterCache // nil when the counter cache is disabled
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu        sync.RWMutex
	account   common.Address
	connected bool
	balance   string
	transfers []models.TransferRecord
	requests  []models.FundingRequest
	flags     Flags
}

// New creates an orchestrator with all dependencies injected
func New(gateway wallet.Gateway, ledger Ledger, cache CounterCache, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		gateway: gateway,
		ledger:  ledger,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

// ==================== Session ====================

// CheckExistingAuthorization queries the gateway for already
// authorized accounts without prompting. When one exists it becomes
// the active account and the balance and both history snapshots are
// refreshed. A missing gateway is an expected condition and only
// logged.
func (o *Orchestrator) CheckExistingAuthorization(ctx context.Context) {
	accounts, err := o.gateway.RequestAccounts(ctx, false)
	if err != nil {
		o.logger.Info("Wallet gateway not available", zap.Error(err))
		return
	}
	if len(accounts) == 0 {
		o.logger.Info("No authorized accounts found")
		return
	}

	o.setAccount(accounts[0])
	o.RefreshBalance(ctx, accounts[0])
	o.refreshTransfers(ctx)
	o.refreshRequests(ctx)
	o.validateCounterCache(ctx)
}

// Authorize establishes wallet authorization, prompting if needed.
// Returns AuthAlreadyConnected (a confirmation, not an error) when an
// account is already authorized.
func (o *Orchestrator) Authorize(ctx context.Context) (AuthResult, error) {
	if !o.gateway.Available() {
		return "", ErrGatewayUnavailable
	}

	accounts, err := o.gateway.RequestAccounts(ctx, false)
	if err != nil {
		return "", o.gatewayError("account query failed", err)
	}

	if len(accounts) > 0 {
		o.setAccount(accounts[0])
		o.RefreshBalance(ctx, accounts[0])
		return AuthAlreadyConnected, nil
	}

	accounts, err = o.gateway.RequestAccounts(ctx, true)
	if err != nil {
		return "", o.gatewayError("authorization failed", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("%w: no accounts granted", ErrGatewayError)
	}

	o.setAccount(accounts[0])
	o.RefreshBalance(ctx, accounts[0])
	return AuthConnected, nil
}

// RefreshBalance re-queries and formats the account balance. Never
// returns an error: on failure the previous value is kept and the
// failure logged.
func (o *Orchestrator) RefreshBalance(ctx context.Context, account common.Address) {
	raw, err := o.gateway.BalanceAt(ctx, account)
	if err != nil {
		o.logger.Warn("Balance refresh failed, keeping previous value",
			zap.String("account", account.Hex()),
			zap.Error(err))
		return
	}

	o.mu.Lock()
	o.balance = units.FormatAmount(raw)
	o.mu.Unlock()
}

// ==================== Transfers ====================

// SendTransfer executes a value transfer with an attached message:
// the native transfer goes through the wallet first, then the ledger
// records it. The send flag is raised only around the ledger leg's
// confirmation and is lowered on every exit path.
func (o *Orchestrator) SendTransfer(ctx context.Context, recipient common.Address, amount, message string) error {
	wei, err := units.ParseAmount(amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	account, ok := o.activeAccount()
	if !ok {
		if !o.gateway.Available() {
			return ErrGatewayUnavailable
		}
		return fmt.Errorf("%w: no active account", ErrGatewayError)
	}

	o.metrics.OpsSubmitted.WithLabelValues(metrics.OpSend).Inc()

	walletTx, err := o.gateway.SendNativeTransfer(ctx, wallet.TransferParams{
		To:    recipient,
		Value: wei,
	})
	if err != nil {
		o.metrics.OpsFailed.WithLabelValues(metrics.OpSend).Inc()
		return o.gatewayError("native transfer failed", err)
	}

	o.setFlag(&o.flags.Sending, true)
	defer o.setFlag(&o.flags.Sending, false)

	ledgerTx, err := o.ledger.RecordTransfer(ctx, recipient, wei, message)
	if err != nil {
		return o.ledgerWriteFailed(metrics.OpSend, walletTx, err)
	}
	if _, err := o.gateway.WaitForTransaction(ctx, ledgerTx); err != nil {
		return o.ledgerWriteFailed(metrics.OpSend, walletTx, err)
	}

	o.metrics.OpsConfirmed.WithLabelValues(metrics.OpSend).Inc()
	o.logger.Info("Transfer confirmed",
		zap.String("wallet_tx", walletTx.Hex()),
		zap.String("ledger_tx", ledgerTx.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount))

	o.refreshTransfers(ctx)
	o.RefreshBalance(ctx, account)
	o.updateCounterCache(ctx)
	return nil
}

// ==================== Funding requests ====================

// CreateRequest records a new funding request on the ledger
func (o *Orchestrator) CreateRequest(ctx context.Context, target common.Address, amount, message string) error {
	wei, err := units.ParseAmount(amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	if _, ok := o.activeAccount(); !ok {
		if !o.gateway.Available() {
			return ErrGatewayUnavailable
		}
		return fmt.Errorf("%w: no active account", ErrGatewayError)
	}

	o.metrics.OpsSubmitted.WithLabelValues(metrics.OpCreate).Inc()

	o.setFlag(&o.flags.Creating, true)
	defer o.setFlag(&o.flags.Creating, false)

	tx, err := o.ledger.CreateRequest(ctx, target, wei, message)
	if err != nil {
		return o.ledgerWriteFailed(metrics.OpCreate, common.Hash{}, err)
	}
	if _, err := o.gateway.WaitForTransaction(ctx, tx); err != nil {
		return o.ledgerWriteFailed(metrics.OpCreate, common.Hash{}, err)
	}

	o.metrics.OpsConfirmed.WithLabelValues(metrics.OpCreate).Inc()
	o.logger.Info("Funding request created",
		zap.String("ledger_tx", tx.Hex()),
		zap.String("target", target.Hex()),
		zap.String("amount", amount))

	o.finishRequestWrite(ctx)
	return nil
}

// ApproveRequest approves the request at the given global index. The
// transition itself is contract-enforced; locally we only reject
// transitions the current snapshot already proves impossible.
func (o *Orchestrator) ApproveRequest(ctx context.Context, index uint64) error {
	if req, ok := o.requestByIndex(index); ok && req.Status() == models.RequestStatusFulfilled {
		return fmt.Errorf("%w: request %d is already fulfilled", ErrInvalidStatus, index)
	}

	if _, ok := o.activeAccount(); !ok {
		if !o.gateway.Available() {
			return ErrGatewayUnavailable
		}
		return fmt.Errorf("%w: no active account", ErrGatewayError)
	}

	o.metrics.OpsSubmitted.WithLabelValues(metrics.OpApprove).Inc()

	o.setFlag(&o.flags.Approving, true)
	defer o.setFlag(&o.flags.Approving, false)

	tx, err := o.ledger.ApproveRequest(ctx, index)
	if err != nil {
		return o.ledgerWriteFailed(metrics.OpApprove, common.Hash{}, err)
	}
	if _, err := o.gateway.WaitForTransaction(ctx, tx); err != nil {
		return o.ledgerWriteFailed(metrics.OpApprove, common.Hash{}, err)
	}

	o.metrics.OpsConfirmed.WithLabelValues(metrics.OpApprove).Inc()
	o.logger.Info("Funding request approved",
		zap.String("ledger_tx", tx.Hex()),
		zap.Uint64("index", index))

	o.finishRequestWrite(ctx)
	return nil
}

// FulfillRequest sends the matching native transfer to the target and
// then records the fulfillment on the ledger carrying the same value
func (o *Orchestrator) FulfillRequest(ctx context.Context, target common.Address, amount string, index uint64) error {
	wei, err := units.ParseAmount(amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	if req, ok := o.requestByIndex(index); ok {
		switch req.Status() {
		case models.RequestStatusPending:
			return fmt.Errorf("%w: request %d is not approved", ErrInvalidStatus, index)
		case models.RequestStatusFulfilled:
			return fmt.Errorf("%w: request %d is already fulfilled", ErrInvalidStatus, index)
		}
	}

	if _, ok := o.activeAccount(); !ok {
		if !o.gateway.Available() {
			return ErrGatewayUnavailable
		}
		return fmt.Errorf("%w: no active account", ErrGatewayError)
	}

	o.metrics.OpsSubmitted.WithLabelValues(metrics.OpFulfill).Inc()

	walletTx, err := o.gateway.SendNativeTransfer(ctx, wallet.TransferParams{
		To:    target,
		Value: wei,
	})
	if err != nil {
		o.metrics.OpsFailed.WithLabelValues(metrics.OpFulfill).Inc()
		return o.gatewayError("native transfer failed", err)
	}

	o.setFlag(&o.flags.Fulfilling, true)
	defer o.setFlag(&o.flags.Fulfilling, false)

	tx, err := o.ledger.FulfillRequest(ctx, index, wei)
	if err != nil {
		return o.ledgerWriteFailed(metrics.OpFulfill, walletTx, err)
	}
	if _, err := o.gateway.WaitForTransaction(ctx, tx); err != nil {
		return o.ledgerWriteFailed(metrics.OpFulfill, walletTx, err)
	}

	o.metrics.OpsConfirmed.WithLabelValues(metrics.OpFulfill).Inc()
	o.logger.Info("Funding request fulfilled",
		zap.String("wallet_tx", walletTx.Hex()),
		zap.String("ledger_tx", tx.Hex()),
		zap.Uint64("index", index))

	o.finishRequestWrite(ctx)
	return nil
}

// finishRequestWrite runs the read-only refreshes shared by all
// request writes. All failures are logged, never propagated.
func (o *Orchestrator) finishRequestWrite(ctx context.Context) {
	o.refreshRequests(ctx)
	if account, ok := o.activeAccount(); ok {
		o.RefreshBalance(ctx, account)
	}
	o.updateCounterCache(ctx)
}

// ==================== State reads ====================

// Session returns the active account (empty when not connected) and
// its last refreshed balance
func (o *Orchestrator) Session() (account, balance string, connected bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.connected {
		return "", o.balance, false
	}
	return o.account.Hex(), o.balance, true
}

// Transfers returns a copy of the current transfer snapshot in fetch
// order (oldest first)
func (o *Orchestrator) Transfers() []models.TransferRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.TransferRecord, len(o.transfers))
	copy(out, o.transfers)
	return out
}

// Requests returns a copy of the current request snapshot in fetch
// order (oldest first)
func (o *Orchestrator) Requests() []models.FundingRequest {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.FundingRequest, len(o.requests))
	copy(out, o.requests)
	return out
}

// OperationFlags returns the current advisory in-progress flags
func (o *Orchestrator) OperationFlags() Flags {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.flags
}

// ==================== Internals ====================

func (o *Orchestrator) setAccount(account common.Address) {
	o.mu.Lock()
	if o.connected && o.account != account {
		o.logger.Info("Active account switched",
			zap.String("previous", o.account.Hex()),
			zap.String("current", account.Hex()))
	}
	o.account = account
	o.connected = true
	o.mu.Unlock()
}

func (o *Orchestrator) activeAccount() (common.Address, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.account, o.connected
}

func (o *Orchestrator) requestByIndex(index uint64) (models.FundingRequest, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, req := range o.requests {
		if req.Index == index {
			return req, true
		}
	}
	return models.FundingRequest{}, false
}

func (o *Orchestrator) setFlag(flag *bool, v bool) {
	o.mu.Lock()
	*flag = v
	o.mu.Unlock()
}

// refreshTransfers replaces the transfer snapshot wholesale with a
// fresh fetch. Failures are logged only; the stale snapshot survives.
func (o *Orchestrator) refreshTransfers(ctx context.Context) {
	transfers, err := o.ledger.AllTransfers(ctx)
	if err != nil {
		o.logger.Warn("Transfer snapshot refresh failed, keeping previous snapshot", zap.Error(err))
		return
	}

	o.mu.Lock()
	o.transfers = transfers
	o.mu.Unlock()
	o.metrics.SnapshotSize.WithLabelValues("transfers").Set(float64(len(transfers)))
}

// refreshRequests replaces the request snapshot wholesale with a
// fresh fetch. Failures are logged only.
func (o *Orchestrator) refreshRequests(ctx context.Context) {
	requests, err := o.ledger.AllRequests(ctx)
	if err != nil {
		o.logger.Warn("Request snapshot refresh failed, keeping previous snapshot", zap.Error(err))
		return
	}

	o.mu.Lock()
	o.requests = requests
	o.mu.Unlock()
	o.metrics.SnapshotSize.WithLabelValues("requests").Set(float64(len(requests)))
}

// updateCounterCache re-queries the ledger counters and records them
// in the advisory cache. Advisory only: every failure is logged and
// swallowed.
func (o *Orchestrator) updateCounterCache(ctx context.Context) {
	if o.cache == nil {
		return
	}

	transferCount, err := o.ledger.TransferCount(ctx)
	if err != nil {
		o.logger.Warn("Transfer counter query failed", zap.Error(err))
		return
	}
	requestCount, err := o.ledger.RequestCount(ctx)
	if err != nil {
		o.logger.Warn("Request counter query failed", zap.Error(err))
		return
	}

	addr := o.ledger.Address().Hex()
	if err := o.cache.UpsertCounters(ctx, addr, int64(transferCount), int64(requestCount)); err != nil {
		o.logger.Warn("Counter cache update failed", zap.Error(err))
	}
}

// validateCounterCache compares cached counters against the contract
// and refreshes the cache. Mismatches only indicate activity since
// the last run; the contract always wins.
func (o *Orchestrator) validateCounterCache(ctx context.Context) {
	if o.cache == nil {
		return
	}

	addr := o.ledger.Address().Hex()
	cached, err := o.cache.GetCounters(ctx, addr)
	if err != nil {
		o.logger.Warn("Counter cache read failed", zap.Error(err))
		return
	}

	transferCount, err := o.ledger.TransferCount(ctx)
	if err != nil {
		o.logger.Warn("Transfer counter query failed", zap.Error(err))
		return
	}

	if cached != nil && cached.TransferCount != int64(transferCount) {
		o.logger.Info("Cached transfer counter out of date",
			zap.Int64("cached", cached.TransferCount),
			zap.Uint64("on_chain", transferCount))
	}

	o.updateCounterCache(ctx)
}

// gatewayError classifies a wallet gateway failure into the error
// taxonomy, logging it first
func (o *Orchestrator) gatewayError(msg string, err error) error {
	o.logger.Error("Wallet gateway operation failed",
		zap.String("detail", msg),
		zap.Error(err))

	switch {
	case errors.Is(err, wallet.ErrUnavailable):
		return ErrGatewayUnavailable
	case errors.Is(err, wallet.ErrRejected):
		return fmt.Errorf("%w: %v", ErrUserRejected, err)
	default:
		return fmt.Errorf("%w: %v", ErrGatewayError, err)
	}
}

// ledgerWriteFailed records and classifies a failed ledger write.
// When a wallet-side transfer already succeeded the failure leaves
// funds moved without a ledger entry; the wallet tx hash is logged so
// the inconsistency can be traced.
func (o *Orchestrator) ledgerWriteFailed(op string, walletTx common.Hash, err error) error {
	o.metrics.OpsFailed.WithLabelValues(op).Inc()

	fields := []zap.Field{zap.String("operation", op), zap.Error(err)}
	if walletTx != (common.Hash{}) {
		fields = append(fields, zap.String("wallet_tx", walletTx.Hex()))
		o.logger.Error("Ledger write failed after wallet transfer succeeded; funds moved without a ledger entry", fields...)
	} else {
		o.logger.Error("Ledger write failed", fields...)
	}

	return fmt.Errorf("%w: %v", ErrContractCallFailed, err)
}
