package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"fractea_engine/internal/config"
	"fractea_engine/internal/port"
)

// EVMClient implements port.ChainClient over an ethclient connection to one
// configured network. All outbound calls share a rate limiter and a per-call
// timeout so one slow node cannot pile up goroutines.
type EVMClient struct {
	ethClient   *ethclient.Client
	node        config.NetworkNode
	chainID     *big.Int
	contract    common.Address
	limiter     *rate.Limiter
	callTimeout time.Duration
}

// NewEVMClient dials the network's primary RPC URL, falling back through the
// configured alternates until one connects.
func NewEVMClient(node config.NetworkNode, contract common.Address, limiter *rate.Limiter, connectionTimeout, callTimeout time.Duration) (*EVMClient, error) {
	rpcURLs := append([]string{node.RPCURL}, node.FallbackRPCURLs...)
	var lastErr error

	for _, rpcURL := range rpcURLs {
		if rpcURL == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
		client, err := ethclient.DialContext(ctx, rpcURL)
		cancel()

		if err == nil {
			return &EVMClient{
				ethClient:   client,
				node:        node,
				chainID:     big.NewInt(node.ChainID),
				contract:    contract,
				limiter:     limiter,
				callTimeout: callTimeout,
			}, nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}

	return nil, fmt.Errorf("all RPC connection attempts failed for network %s: %w", node.Name, lastErr)
}

// Node returns the network definition this client is bound to.
func (c *EVMClient) Node() config.NetworkNode {
	return c.node
}

// ChainID returns the configured chain identifier for replay-protected signing.
func (c *EVMClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *EVMClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	return callCtx, cancel, nil
}

func (c *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	callCtx, cancel, err := c.callCtx(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	return c.ethClient.EstimateGas(callCtx, msg)
}

func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.callCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.ethClient.SuggestGasPrice(callCtx)
}

func (c *EVMClient) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	callCtx, cancel, err := c.callCtx(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	return c.ethClient.PendingNonceAt(callCtx, address)
}

func (c *EVMClient) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	callCtx, cancel, err := c.callCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.ethClient.BalanceAt(callCtx, address, nil)
}

func (c *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	callCtx, cancel, err := c.callCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.ethClient.TransactionReceipt(callCtx, hash)
}

// SendTransaction pushes a signed transaction to the node. Exposed for the
// live broadcaster; the pipeline itself goes through port.Broadcaster.
func (c *EVMClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	callCtx, cancel, err := c.callCtx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return c.ethClient.SendTransaction(callCtx, tx)
}

func (c *EVMClient) FractionBalance(ctx context.Context, owner common.Address, assetID *big.Int) (*big.Int, error) {
	return c.readUint256(ctx, "balanceOf", owner, assetID)
}

func (c *EVMClient) ClaimableRent(ctx context.Context, assetID *big.Int, owner common.Address) (*big.Int, error) {
	return c.readUint256(ctx, "calculateClaimable", assetID, owner)
}

func (c *EVMClient) readUint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	contractABI := ledgerContractABI()
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	callCtx, cancel, err := c.callCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	raw, err := c.ethClient.CallContract(callCtx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed on %s: %w", method, c.node.Name, err)
	}
	if len(raw) == 0 {
		return big.NewInt(0), nil
	}

	unpacked, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("%s returned no data", method)
	}
	value, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to assert %s result to *big.Int, got %T", method, unpacked[0])
	}
	return value, nil
}

var _ port.ChainClient = (*EVMClient)(nil)
