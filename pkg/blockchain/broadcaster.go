package blockchain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"fractea_engine/internal/port"
)

// LiveBroadcaster pushes signed transactions to the real network through the
// engine's EVM client.
type LiveBroadcaster struct {
	client *EVMClient
	logger *zap.Logger
}

// NewLiveBroadcaster binds the broadcaster to one network client.
func NewLiveBroadcaster(client *EVMClient, logger *zap.Logger) *LiveBroadcaster {
	return &LiveBroadcaster{client: client, logger: logger.Named("broadcaster")}
}

func (b *LiveBroadcaster) Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if err := b.client.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	hash := tx.Hash()
	b.logger.Info("Transaction broadcast",
		zap.String("hash", hash.Hex()),
		zap.String("network", b.client.Node().Name),
		zap.Uint64("nonce", tx.Nonce()))
	return hash, nil
}

func (b *LiveBroadcaster) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return b.client.TransactionReceipt(ctx, hash)
}

var _ port.Broadcaster = (*LiveBroadcaster)(nil)

// SimulatedBroadcaster mines everything instantly in memory. It is the
// composition-time substitute for environments without a reachable node, and
// the lever tests use to force failed, delayed or rejected confirmations.
type SimulatedBroadcaster struct {
	mu          sync.Mutex
	receipts    map[common.Hash]*types.Receipt
	blockNumber uint64

	nextStatus       uint64
	nextBroadcastErr error
	withholdReceipts bool
}

// NewSimulatedBroadcaster creates an empty simulated network.
func NewSimulatedBroadcaster() *SimulatedBroadcaster {
	return &SimulatedBroadcaster{
		receipts:    make(map[common.Hash]*types.Receipt),
		blockNumber: 1,
		nextStatus:  types.ReceiptStatusSuccessful,
	}
}

// SetNextBroadcastError makes the next Broadcast call fail with err.
func (b *SimulatedBroadcaster) SetNextBroadcastError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextBroadcastErr = err
}

// SetNextStatus fixes the receipt status of subsequently broadcast transactions.
func (b *SimulatedBroadcaster) SetNextStatus(status uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextStatus = status
}

// SetWithholdReceipts suppresses receipts, leaving transactions in flight.
func (b *SimulatedBroadcaster) SetWithholdReceipts(withhold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.withholdReceipts = withhold
}

// Release publishes a receipt for a previously withheld transaction.
func (b *SimulatedBroadcaster) Release(hash common.Hash, status uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockNumber++
	b.receipts[hash] = &types.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(b.blockNumber),
	}
}

func (b *SimulatedBroadcaster) Broadcast(_ context.Context, tx *types.Transaction) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.nextBroadcastErr != nil {
		err := b.nextBroadcastErr
		b.nextBroadcastErr = nil
		return common.Hash{}, err
	}

	hash := tx.Hash()
	if !b.withholdReceipts {
		b.blockNumber++
		b.receipts[hash] = &types.Receipt{
			Status:      b.nextStatus,
			TxHash:      hash,
			BlockNumber: new(big.Int).SetUint64(b.blockNumber),
		}
	}
	return hash, nil
}

func (b *SimulatedBroadcaster) Receipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

var _ port.Broadcaster = (*SimulatedBroadcaster)(nil)
