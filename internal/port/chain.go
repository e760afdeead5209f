package port

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainClient is the read/estimate surface of the network RPC boundary. The
// engine treats it as an untyped remote service subject to transient failure.
type ChainClient interface {
	// ChainID returns the chain identifier used for replay-protected signing.
	ChainID() *big.Int

	// EstimateGas asks the network for the resource cost of this exact payload.
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// SuggestGasPrice returns the current network gas price.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// PendingNonceAt returns the next usable nonce for the address.
	PendingNonceAt(ctx context.Context, address common.Address) (uint64, error)

	// BalanceAt fetches the native currency balance for an address.
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)

	// TransactionReceipt fetches the receipt, or an error while still pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// FractionBalance reads balanceOf(owner, assetID) from the ledger contract.
	FractionBalance(ctx context.Context, owner common.Address, assetID *big.Int) (*big.Int, error)

	// ClaimableRent reads calculateClaimable(assetID, owner) from the ledger
	// contract. The accrual algorithm behind it is opaque to this engine.
	ClaimableRent(ctx context.Context, assetID *big.Int, owner common.Address) (*big.Int, error)
}

// ChainClientProvider hands out (and caches) clients per configured network.
type ChainClientProvider interface {
	GetClient(network string) (ChainClient, error)
}

// Broadcaster pushes a signed payload onto the network. Implementations are
// selected once at composition time: live against an RPC node, or simulated.
type Broadcaster interface {
	// Broadcast submits the signed transaction and returns its hash. Once this
	// returns, the operation can no longer be cancelled.
	Broadcast(ctx context.Context, tx *types.Transaction) (common.Hash, error)

	// Receipt fetches the confirmation receipt for a broadcast transaction.
	// ethereum.NotFound is returned while the transaction is still in flight.
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}
