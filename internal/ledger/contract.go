// Package ledger binds the deployed ledger contract: the on-chain
// program recording value transfers and funding requests. The ABI is
// fixed; the contract itself is an external collaborator and all
// business rules (who may approve, who may fulfill) are enforced
// there, not here.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/krypt-labs/krypt-gateway/internal/models"
	"github.com/krypt-labs/krypt-gateway/internal/units"
	"github.com/krypt-labs/krypt-gateway/internal/wallet"
)

// LedgerABI is the ABI for the deployed ledger contract
const LedgerABI = `[
	{
		"inputs": [
			{"internalType": "address payable", "name": "receiver", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "string", "name": "message", "type": "string"}
		],
		"name": "addToBlockchain",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getAllTransactions",
		"outputs": [
			{
				"components": [
					{"internalType": "address", "name": "sender", "type": "address"},
					{"internalType": "address", "name": "receiver", "type": "address"},
					{"internalType": "uint256", "name": "amount", "type": "uint256"},
					{"internalType": "string", "name": "message", "type": "string"},
					{"internalType": "uint256", "name": "timestamp", "type": "uint256"}
				],
				"internalType": "struct Transactions.TransferStruct[]",
				"name": "",
				"type": "tuple[]"
			}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getTransactionCount",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address payable", "name": "target", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "string", "name": "message", "type": "string"}
		],
		"name": "createRequest",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "index", "type": "uint256"}],
		"name": "approveRequest",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "index", "type": "uint256"}],
		"name": "fulfillRequest",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getAllRequests",
		"outputs": [
			{
				"components": [
					{"internalType": "address", "name": "requester", "type": "address"},
					{"internalType": "address", "name": "target", "type": "address"},
					{"internalType": "uint256", "name": "amount", "type": "uint256"},
					{"internalType": "string", "name": "message", "type": "string"},
					{"internalType": "uint256", "name": "timestamp", "type": "uint256"},
					{"internalType": "bool", "name": "approved", "type": "bool"},
					{"internalType": "bool", "name": "fulfilled", "type": "bool"}
				],
				"internalType": "struct Transactions.RequestStruct[]",
				"name": "",
				"type": "tuple[]"
			}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getRequestCount",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Contract provides typed access to the ledger contract through a
// wallet gateway
type Contract struct {
	gateway wallet.Gateway
	address common.Address
	abi     abi.ABI
	logger  *zap.Logger
}

// New creates a ledger contract binding at the given address
func New(gateway wallet.Gateway, address common.Address, logger *zap.Logger) (*Contract, error) {
	parsedABI, err := abi.JSON(strings.NewReader(LedgerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger ABI: %w", err)
	}

	return &Contract{
		gateway: gateway,
		address: address,
		abi:     parsedABI,
		logger:  logger,
	}, nil
}

// Address returns the contract address
func (c *Contract) Address() common.Address {
	return c.address
}

// rawTransfer matches the contract's TransferStruct tuple layout
type rawTransfer struct {
	Sender    common.Address
	Receiver  common.Address
	Amount    *big.Int
	Message   string
	Timestamp *big.Int
}

// rawRequest matches the contract's RequestStruct tuple layout
type rawRequest struct {
	Requester common.Address
	Target    common.Address
	Amount    *big.Int
	Message   string
	Timestamp *big.Int
	Approved  bool
	Fulfilled bool
}

// AllTransfers fetches the full transfer history in chain append
// order (oldest first)
func (c *Contract) AllTransfers(ctx context.Context) ([]models.TransferRecord, error) {
	result, err := c.call(ctx, "getAllTransactions")
	if err != nil {
		return nil, err
	}

	var raw []rawTransfer
	if err := c.abi.UnpackIntoInterface(&raw, "getAllTransactions", result); err != nil {
		return nil, fmt.Errorf("failed to unpack getAllTransactions result: %w", err)
	}

	records := make([]models.TransferRecord, 0, len(raw))
	for _, t := range raw {
		records = append(records, models.TransferRecord{
			Sender:    t.Sender.Hex(),
			Recipient: t.Receiver.Hex(),
			Amount:    units.FormatAmount(t.Amount),
			Message:   t.Message,
			Timestamp: time.Unix(t.Timestamp.Int64(), 0).UTC(),
		})
	}
	return records, nil
}

// TransferCount returns the contract's transfer counter
func (c *Contract) TransferCount(ctx context.Context) (uint64, error) {
	return c.callCounter(ctx, "getTransactionCount")
}

// RecordTransfer publishes a completed value transfer to the ledger
func (c *Contract) RecordTransfer(ctx context.Context, to common.Address, amount *big.Int, message string) (common.Hash, error) {
	return c.submit(ctx, nil, "addToBlockchain", to, amount, message)
}

// CreateRequest records a new funding request against the target
// address
func (c *Contract) CreateRequest(ctx context.Context, target common.Address, amount *big.Int, message string) (common.Hash, error) {
	return c.submit(ctx, nil, "createRequest", target, amount, message)
}

// ApproveRequest approves the request at the given global index
func (c *Contract) ApproveRequest(ctx context.Context, index uint64) (common.Hash, error) {
	return c.submit(ctx, nil, "approveRequest", new(big.Int).SetUint64(index))
}

// FulfillRequest marks the request at the given global index as
// fulfilled, carrying the matching value
func (c *Contract) FulfillRequest(ctx context.Context, index uint64, value *big.Int) (common.Hash, error) {
	return c.submit(ctx, value, "fulfillRequest", new(big.Int).SetUint64(index))
}

// AllRequests fetches the full global request list in chain append
// order. Each entry's Index is its absolute position in that list.
func (c *Contract) AllRequests(ctx context.Context) ([]models.FundingRequest, error) {
	result, err := c.call(ctx, "getAllRequests")
	if err != nil {
		return nil, err
	}

	var raw []rawRequest
	if err := c.abi.UnpackIntoInterface(&raw, "getAllRequests", result); err != nil {
		return nil, fmt.Errorf("failed to unpack getAllRequests result: %w", err)
	}

	requests := make([]models.FundingRequest, 0, len(raw))
	for i, r := range raw {
		requests = append(requests, models.FundingRequest{
			Requester: r.Requester.Hex(),
			Target:    r.Target.Hex(),
			Amount:    units.FormatAmount(r.Amount),
			Message:   r.Message,
			Timestamp: time.Unix(r.Timestamp.Int64(), 0).UTC(),
			Index:     uint64(i),
			Approved:  r.Approved,
			Fulfilled: r.Fulfilled,
		})
	}
	return requests, nil
}

// RequestCount returns the contract's request counter
func (c *Contract) RequestCount(ctx context.Context) (uint64, error) {
	return c.callCounter(ctx, "getRequestCount")
}

// call packs and executes a read-only contract call
func (c *Contract) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := c.gateway.CallContract(ctx, c.address, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return result, nil
}

// callCounter executes a read-only call returning a single uint256
func (c *Contract) callCounter(ctx context.Context, method string) (uint64, error) {
	result, err := c.call(ctx, method)
	if err != nil {
		return 0, err
	}

	out, err := c.abi.Unpack(method, result)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected %s result type %T", method, out[0])
	}
	return count.Uint64(), nil
}

// submit packs and submits a state-changing contract call
func (c *Contract) submit(ctx context.Context, value *big.Int, method string, args ...interface{}) (common.Hash, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	txHash, err := c.gateway.SubmitCall(ctx, c.address, data, value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit %s: %w", method, err)
	}

	c.logger.Info("Ledger call submitted",
		zap.String("method", method),
		zap.String("tx_hash", txHash.Hex()))

	return txHash, nil
}
