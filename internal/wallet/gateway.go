// Package wallet defines the wallet gateway consumed by the
// orchestrator: account discovery, balance queries, and raw
// transaction submission. The node-backed implementation signs with a
// locally configured key; the interface also admits browser-wallet
// style implementations that can prompt and be rejected.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrUnavailable indicates no signing backend is configured.
	// Expected condition, not a fault: callers translate it into an
	// instructional message.
	ErrUnavailable = errors.New("wallet gateway unavailable")

	// ErrRejected indicates the signer declined the transaction
	ErrRejected = errors.New("transaction rejected by signer")
)

// TransferParams describes a plain native-currency transfer
type TransferParams struct {
	To       common.Address
	Value    *big.Int
	GasLimit uint64 // fixed hint; no estimation for plain transfers
}

// Gateway is the wallet boundary. All blocking operations take a
// context; Available never blocks.
type Gateway interface {
	// Available reports whether a signing backend is present
	Available() bool

	// RequestAccounts returns the authorized accounts. With prompt
	// false it only reports already-authorized accounts and never
	// interacts with the user.
	RequestAccounts(ctx context.Context, prompt bool) ([]common.Address, error)

	// BalanceAt returns the native-token balance in base units
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)

	// SendNativeTransfer submits a signed plain value transfer
	SendNativeTransfer(ctx context.Context, params TransferParams) (common.Hash, error)

	// SubmitCall signs and submits a contract call carrying data and
	// an optional value
	SubmitCall(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)

	// CallContract executes a read-only contract call
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// WaitForTransaction blocks until the transaction is mined or the
	// configured confirmation timeout elapses
	WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}
