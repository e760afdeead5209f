package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
)

// historyService is the append-only transaction record. Rows are never
// removed; the only mutation allowed after append is the monotonic status
// transition PENDING -> COMPLETED/FAILED.
type historyService struct {
	repo   port.TransactionRepository
	logger *zap.Logger
}

// NewHistoryService creates the history layer over the transaction store.
func NewHistoryService(repo port.TransactionRepository, logger *zap.Logger) port.HistoryService {
	return &historyService{repo: repo, logger: logger.Named("history")}
}

func (s *historyService) Append(ctx context.Context, tx *entity.Transaction) error {
	if tx.OwnerID == "" {
		return entity.NewValidationError("transaction owner must not be empty")
	}
	if tx.Status == "" {
		tx.Status = entity.StatusPending
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	if err := s.repo.Append(ctx, tx); err != nil {
		return fmt.Errorf("failed to append history row: %w", err)
	}
	s.logger.Debug("Appended history row",
		zap.String("owner_id", tx.OwnerID),
		zap.String("hash", tx.Hash),
		zap.String("kind", string(tx.Kind)))
	return nil
}

func (s *historyService) UpdateStatus(ctx context.Context, ownerID, hash string, status entity.TxStatus, blockNumber uint64) error {
	tx, ok, err := s.repo.GetByHash(ctx, ownerID, hash)
	if err != nil {
		return err
	}
	if !ok {
		return entity.NewValidationError(fmt.Sprintf("no history row with hash %q for owner %q", hash, ownerID))
	}

	if tx.Status == status {
		// Re-check workers may race the confirmation wait; landing on the same
		// terminal state twice is fine.
		return nil
	}
	if !tx.Status.CanTransitionTo(status) {
		return entity.NewValidationError(fmt.Sprintf(
			"illegal status transition %s -> %s for transaction %s", tx.Status, status, hash))
	}

	tx.Status = status
	tx.UpdatedAt = time.Now().UTC()
	if blockNumber > 0 {
		tx.BlockNumber = blockNumber
	}
	if err := s.repo.Update(ctx, tx); err != nil {
		return fmt.Errorf("failed to update history row %s: %w", hash, err)
	}

	s.logger.Info("Transaction status updated",
		zap.String("owner_id", ownerID),
		zap.String("hash", hash),
		zap.String("status", string(status)),
		zap.Uint64("block", blockNumber))
	return nil
}

func (s *historyService) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Transaction, error) {
	rows, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}

func (s *historyService) GetByHash(ctx context.Context, ownerID, hash string) (*entity.Transaction, error) {
	tx, ok, err := s.repo.GetByHash(ctx, ownerID, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, entity.NewValidationError(fmt.Sprintf("no history row with hash %q for owner %q", hash, ownerID))
	}
	return tx, nil
}

func (s *historyService) ListPending(ctx context.Context) ([]*entity.Transaction, error) {
	return s.repo.ListPending(ctx)
}
