package orchestrator

import "errors"

// Write-path error conditions. Each is logged and returned to the
// caller; read-path refresh failures are logged and swallowed so
// staleness never blocks the caller.
var (
	// ErrGatewayUnavailable means no wallet provider is configured.
	// An expected condition: callers translate it into an
	// instructional message, not a fault.
	ErrGatewayUnavailable = errors.New("no wallet gateway available: install a wallet provider")

	// ErrInvalidAmount means the amount field failed numeric parsing.
	// Raised before any network call.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUserRejected means the wallet signer declined the operation
	ErrUserRejected = errors.New("operation rejected by wallet")

	// ErrGatewayError means the wallet provider failed
	ErrGatewayError = errors.New("wallet gateway error")

	// ErrContractCallFailed means the ledger call failed after any
	// wallet-side step already succeeded
	ErrContractCallFailed = errors.New("ledger contract call failed")

	// ErrInvalidStatus means the local snapshot already proves the
	// requested lifecycle transition impossible (approve on a
	// fulfilled request, fulfill on a pending one)
	ErrInvalidStatus = errors.New("request status does not allow this operation")
)
