package port

import (
	"context"

	"fractea_engine/internal/entity"
)

// KVStore is the durable per-owner storage boundary: schemaless blobs keyed
// by string, with prefix listing for hydration scans.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// WalletRepository persists custodial wallets keyed by owner.
type WalletRepository interface {
	Get(ctx context.Context, ownerID string) (*entity.CustodialWallet, bool, error)
	Put(ctx context.Context, wallet *entity.CustodialWallet) error
	List(ctx context.Context) ([]*entity.CustodialWallet, error)
}

// LedgerRepository persists ledger entries keyed by owner.
type LedgerRepository interface {
	Get(ctx context.Context, ownerID string) (*entity.LedgerEntry, bool, error)
	Put(ctx context.Context, entry *entity.LedgerEntry) error
}

// TransactionRepository persists the append-only per-owner history.
type TransactionRepository interface {
	Append(ctx context.Context, tx *entity.Transaction) error
	Update(ctx context.Context, tx *entity.Transaction) error
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.Transaction, error)
	GetByHash(ctx context.Context, ownerID, hash string) (*entity.Transaction, bool, error)
	ListPending(ctx context.Context) ([]*entity.Transaction, error)
}
