package port

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/shopspring/decimal"

	"fractea_engine/internal/entity"
)

// FeePolicy produces resource-cost estimates with per-class fallbacks and a
// safety multiplier, so business logic never carries gas literals.
type FeePolicy interface {
	// Estimate queries the network for the cost of msg; on failure it falls
	// back to the configured per-class constant instead of aborting. The
	// returned estimate already carries the padded (multiplied) unit count.
	Estimate(ctx context.Context, chain ChainClient, msg ethereum.CallMsg, class entity.OperationClass) entity.FeeEstimate
}

// LedgerService is the per-owner balance cache mutated by the pipeline
// (optimistic) and by reconciliation (authoritative).
type LedgerService interface {
	// Get returns the owner's cached entry, reconstructing it from durable
	// storage on cache miss rather than failing.
	Get(ctx context.Context, ownerID string) (*entity.LedgerEntry, error)

	// ApplyOptimistic applies a pipeline delta atomically; any change that
	// would drive a balance negative is rejected before mutation.
	ApplyOptimistic(ctx context.Context, ownerID string, delta entity.LedgerDelta) error

	// Rollback undoes a previously applied optimistic delta.
	Rollback(ctx context.Context, ownerID string, delta entity.LedgerDelta) error

	// Overwrite replaces the cached entry with the authoritative one. Used
	// only by the reconciliation service.
	Overwrite(ctx context.Context, entry *entity.LedgerEntry) error

	// ResetClaimable consumes the claimable amount for an asset and returns
	// what was consumed; a second call with no intervening deposit yields 0.
	ResetClaimable(ctx context.Context, ownerID string, assetID int64) (decimal.Decimal, error)
}

// HistoryService is the append-only transaction record with monotonic status.
type HistoryService interface {
	Append(ctx context.Context, tx *entity.Transaction) error
	UpdateStatus(ctx context.Context, ownerID, hash string, status entity.TxStatus, blockNumber uint64) error
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.Transaction, error)
	GetByHash(ctx context.Context, ownerID, hash string) (*entity.Transaction, error)
	ListPending(ctx context.Context) ([]*entity.Transaction, error)
}

// TransferRequest describes a native-value transfer through the pipeline.
type TransferRequest struct {
	To      string
	Value   *big.Int
	Payload []byte
}

// ClaimResult reports a completed rent claim.
type ClaimResult struct {
	Tx     *entity.Transaction
	Amount decimal.Decimal
}

// SubmissionService drives an operation through build, estimate, integrity
// check, sign, broadcast and confirmation tracking.
type SubmissionService interface {
	// SubmitTransfer sends native value from the owner's custodial wallet.
	SubmitTransfer(ctx context.Context, ownerID string, req TransferRequest) (*entity.Transaction, error)

	// Invest submits a ledger-contract mint call buying fractions of an asset.
	Invest(ctx context.Context, ownerID string, assetID int64, fractions int64, cost *big.Int) (*entity.Transaction, error)

	// ClaimRent submits a claim call and, once completed, consumes the cached
	// claimable amount exactly once.
	ClaimRent(ctx context.Context, ownerID string, assetID int64) (*ClaimResult, error)

	// DepositRent submits a relayer depositRent call for an asset. The accrual
	// split happens inside the contract and is not recomputed here.
	DepositRent(ctx context.Context, relayerOwnerID string, assetID int64, amount *big.Int) (*entity.Transaction, error)

	// DepositTokens credits a cached token balance (off-chain ledger move).
	DepositTokens(ctx context.Context, ownerID, symbol string, amount decimal.Decimal) (*entity.Transaction, error)

	// WithdrawTokens debits a cached token balance; overdrafts are rejected
	// with INSUFFICIENT_FUNDS before any mutation.
	WithdrawTokens(ctx context.Context, ownerID, symbol string, amount decimal.Decimal) (*entity.Transaction, error)

	// TransferTokens moves a cached token balance between two owners.
	TransferTokens(ctx context.Context, fromOwnerID, toOwnerID, symbol string, amount decimal.Decimal) (*entity.Transaction, error)

	// Run drives the pending-transaction re-check worker until ctx ends.
	Run(ctx context.Context)
}

// ReconciliationService re-syncs cached state from the authoritative network.
type ReconciliationService interface {
	// Sync overwrites the owner's cached ledger with authoritative reads.
	// Disagreement is expected and is not an error; it is logged and resolved.
	Sync(ctx context.Context, ownerID string) (*entity.LedgerEntry, error)

	// SyncAsync schedules a sync without blocking the caller.
	SyncAsync(ownerID string)

	// Run re-syncs all owners on a fixed interval until ctx ends.
	Run(ctx context.Context)
}
