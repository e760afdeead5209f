package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
)

const ledgerKeyPrefix = "ledger:"

type ledgerRepository struct {
	store port.KVStore
}

// NewLedgerRepository wraps a KVStore with ledger-entry marshalling.
func NewLedgerRepository(store port.KVStore) port.LedgerRepository {
	return &ledgerRepository{store: store}
}

func (r *ledgerRepository) Get(ctx context.Context, ownerID string) (*entity.LedgerEntry, bool, error) {
	blob, ok, err := r.store.Get(ctx, ledgerKeyPrefix+ownerID)
	if err != nil || !ok {
		return nil, false, err
	}
	var entry entity.LedgerEntry
	if err := json.Unmarshal(blob, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal ledger entry for owner %s: %w", ownerID, err)
	}
	if entry.Balances == nil {
		entry.Balances = make(map[int64]int64)
	}
	if entry.Claimable == nil {
		entry.Claimable = make(map[int64]decimal.Decimal)
	}
	return &entry, true, nil
}

func (r *ledgerRepository) Put(ctx context.Context, entry *entity.LedgerEntry) error {
	blob, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry for owner %s: %w", entry.OwnerID, err)
	}
	return r.store.Put(ctx, ledgerKeyPrefix+entry.OwnerID, blob)
}
