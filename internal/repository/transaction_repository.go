package repository

import (
	"context"
	"fmt"
	"sync"

	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
)

const txLogKeyPrefix = "txlog:"

// transactionRepository stores each owner's transaction log as a single
// append-ordered blob. Appends and status updates share one lock so two
// concurrent writers never clobber each other's read-modify-write.
type transactionRepository struct {
	store port.KVStore
	mu    sync.Mutex
}

// NewTransactionRepository wraps a KVStore with transaction-log marshalling.
func NewTransactionRepository(store port.KVStore) port.TransactionRepository {
	return &transactionRepository{store: store}
}

func (r *transactionRepository) load(ctx context.Context, ownerID string) ([]*entity.Transaction, error) {
	blob, ok, err := r.store.Get(ctx, txLogKeyPrefix+ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var log []*entity.Transaction
	if err := json.Unmarshal(blob, &log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction log for owner %s: %w", ownerID, err)
	}
	return log, nil
}

func (r *transactionRepository) save(ctx context.Context, ownerID string, log []*entity.Transaction) error {
	blob, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction log for owner %s: %w", ownerID, err)
	}
	return r.store.Put(ctx, txLogKeyPrefix+ownerID, blob)
}

func (r *transactionRepository) Append(ctx context.Context, tx *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, err := r.load(ctx, tx.OwnerID)
	if err != nil {
		return err
	}
	log = append(log, tx)
	return r.save(ctx, tx.OwnerID, log)
}

func (r *transactionRepository) Update(ctx context.Context, tx *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, err := r.load(ctx, tx.OwnerID)
	if err != nil {
		return err
	}
	for i, existing := range log {
		if existing.ID == tx.ID {
			log[i] = tx
			return r.save(ctx, tx.OwnerID, log)
		}
	}
	return fmt.Errorf("transaction %s not found in log for owner %s", tx.ID, tx.OwnerID)
}

func (r *transactionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx, ownerID)
}

func (r *transactionRepository) GetByHash(ctx context.Context, ownerID, hash string) (*entity.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, err := r.load(ctx, ownerID)
	if err != nil {
		return nil, false, err
	}
	for _, tx := range log {
		if tx.Hash == hash {
			return tx, true, nil
		}
	}
	return nil, false, nil
}

func (r *transactionRepository) ListPending(ctx context.Context) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, err := r.store.Keys(ctx, txLogKeyPrefix)
	if err != nil {
		return nil, err
	}
	var pending []*entity.Transaction
	for _, key := range keys {
		blob, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var log []*entity.Transaction
		if err := json.Unmarshal(blob, &log); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction log blob %s: %w", key, err)
		}
		for _, tx := range log {
			if tx.Status == entity.StatusPending {
				pending = append(pending, tx)
			}
		}
	}
	return pending, nil
}
