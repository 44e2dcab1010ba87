package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/krypt-labs/krypt-gateway/internal/config"
)

// NodeGateway implements Gateway against an EVM JSON-RPC node with a
// locally held signing key. Constructed without an RPC endpoint or a
// key it degrades to Available() == false instead of failing; an
// absent wallet is an expected condition.
type NodeGateway struct {
	ethClient    *ethclient.Client
	privateKey   *ecdsa.PrivateKey
	fromAddress  common.Address
	gasLimit     uint64
	waitTimeout  time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewNodeGateway creates a node-backed wallet gateway
func NewNodeGateway(cfg *config.Config, logger *zap.Logger) (*NodeGateway, error) {
	gw := &NodeGateway{
		gasLimit:     cfg.Chain.NativeTransferGas,
		waitTimeout:  cfg.Chain.ConfirmationTimeout,
		pollInterval: cfg.Chain.ConfirmationInterval,
		logger:       logger,
	}

	if cfg.Chain.RPCEndpoint == "" {
		logger.Warn("No RPC endpoint configured, wallet gateway unavailable")
		return gw, nil
	}

	ethClient, err := ethclient.Dial(cfg.Chain.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint %s: %w", cfg.Chain.RPCEndpoint, err)
	}
	gw.ethClient = ethClient

	if cfg.Signer.PrivateKey == "" {
		logger.Warn("No signer key configured, wallet gateway unavailable")
		return gw, nil
	}

	privateKeyHex := strings.TrimPrefix(cfg.Signer.PrivateKey, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	gw.privateKey = privateKey
	gw.fromAddress = crypto.PubkeyToAddress(*publicKey)

	logger.Info("Wallet gateway initialized",
		zap.String("chain_name", cfg.Chain.Name),
		zap.String("account", gw.fromAddress.Hex()))

	return gw, nil
}

// Close closes the underlying RPC connection
func (g *NodeGateway) Close() {
	if g.ethClient != nil {
		g.ethClient.Close()
	}
}

// Available reports whether the gateway can sign transactions
func (g *NodeGateway) Available() bool {
	return g.ethClient != nil && g.privateKey != nil
}

// Account returns the signing account address
func (g *NodeGateway) Account() common.Address {
	return g.fromAddress
}

// RequestAccounts returns the configured signing account. A node
// gateway holds its key locally, so prompting and silent discovery
// report the same account set.
func (g *NodeGateway) RequestAccounts(ctx context.Context, prompt bool) ([]common.Address, error) {
	if !g.Available() {
		return nil, ErrUnavailable
	}
	return []common.Address{g.fromAddress}, nil
}

// BalanceAt returns the native-token balance of an address
func (g *NodeGateway) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	if g.ethClient == nil {
		return nil, ErrUnavailable
	}
	return g.ethClient.BalanceAt(ctx, addr, nil)
}

// SendNativeTransfer signs and submits a plain value transfer with
// the fixed gas hint
func (g *NodeGateway) SendNativeTransfer(ctx context.Context, params TransferParams) (common.Hash, error) {
	if !g.Available() {
		return common.Hash{}, ErrUnavailable
	}

	gasLimit := params.GasLimit
	if gasLimit == 0 {
		gasLimit = g.gasLimit
	}

	txHash, err := g.signAndSend(ctx, params.To, nil, params.Value, gasLimit)
	if err != nil {
		return common.Hash{}, err
	}

	g.logger.Info("Native transfer sent",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("to", params.To.Hex()),
		zap.String("value", params.Value.String()))

	return txHash, nil
}

// SubmitCall signs and submits a contract call, estimating gas with a
// 20% buffer
func (g *NodeGateway) SubmitCall(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if !g.Available() {
		return common.Hash{}, ErrUnavailable
	}

	gasLimit, err := g.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:  g.fromAddress,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gasLimit = gasLimit * 120 / 100

	txHash, err := g.signAndSend(ctx, to, data, value, gasLimit)
	if err != nil {
		return common.Hash{}, err
	}

	g.logger.Info("Contract call sent",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("gas_limit", gasLimit))

	return txHash, nil
}

// CallContract executes a read-only contract call
func (g *NodeGateway) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if g.ethClient == nil {
		return nil, ErrUnavailable
	}
	return g.ethClient.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: data,
	}, nil)
}

// signAndSend builds, signs, and submits a transaction
func (g *NodeGateway) signAndSend(ctx context.Context, to common.Address, data []byte, value *big.Int, gasLimit uint64) (common.Hash, error) {
	chainID, err := g.ethClient.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get chain ID: %w", err)
	}

	nonce, err := g.ethClient.PendingNonceAt(ctx, g.fromAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := g.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), g.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := g.ethClient.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash(), nil
}

// WaitForTransaction polls for the transaction receipt until mined or
// the confirmation timeout elapses
func (g *NodeGateway) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if g.ethClient == nil {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, g.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for transaction %s", txHash.Hex())
		case <-ticker.C:
			receipt, err := g.ethClient.TransactionReceipt(ctx, txHash)
			if err == nil && receipt != nil {
				if receipt.Status == types.ReceiptStatusFailed {
					return receipt, fmt.Errorf("transaction reverted: %s", txHash.Hex())
				}
				return receipt, nil
			}
			// Not yet mined, keep polling
		}
	}
}
