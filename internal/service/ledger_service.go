package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fractea_engine/internal/config"
	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
)

// ledgerService is the fast-read cache over the durable ledger store. The
// cache can always be reconstructed: a miss falls through to the repository
// (or an empty entry) instead of failing the read.
type ledgerService struct {
	repo   port.LedgerRepository
	cache  *gocache.Cache
	logger *zap.Logger

	// One lock for all mutations keeps apply/rollback/overwrite atomic with
	// respect to each other. Contention is per-process and short-lived.
	mu sync.Mutex
}

// NewLedgerService creates the cache over the given repository.
func NewLedgerService(repo port.LedgerRepository, cfg config.CacheConfig, logger *zap.Logger) port.LedgerService {
	return &ledgerService{
		repo: repo,
		cache: gocache.New(
			time.Duration(cfg.TTLMinutes)*time.Minute,
			time.Duration(cfg.CleanupMinutes)*time.Minute,
		),
		logger: logger.Named("ledger"),
	}
}

func (s *ledgerService) Get(ctx context.Context, ownerID string) (*entity.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.loadLocked(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

// loadLocked returns the live cached entry, reconstructing on miss. Callers
// hold s.mu and must not leak the returned pointer without cloning.
func (s *ledgerService) loadLocked(ctx context.Context, ownerID string) (*entity.LedgerEntry, error) {
	if cached, ok := s.cache.Get(ownerID); ok {
		return cached.(*entity.LedgerEntry), nil
	}

	entry, ok, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct ledger entry for owner %s: %w", ownerID, err)
	}
	if !ok {
		entry = entity.NewLedgerEntry(ownerID)
	} else {
		s.logger.Debug("Reconstructed ledger entry from durable store", zap.String("owner_id", ownerID))
	}
	s.cache.Set(ownerID, entry, gocache.DefaultExpiration)
	return entry, nil
}

func (s *ledgerService) persistLocked(ctx context.Context, entry *entity.LedgerEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	s.cache.Set(entry.OwnerID, entry, gocache.DefaultExpiration)
	if err := s.repo.Put(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist ledger entry for owner %s: %w", entry.OwnerID, err)
	}
	return nil
}

func (s *ledgerService) ApplyOptimistic(ctx context.Context, ownerID string, delta entity.LedgerDelta) error {
	if delta.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.loadLocked(ctx, ownerID)
	if err != nil {
		return err
	}

	// Reject before mutating: the delta lands whole or not at all.
	for assetID, change := range delta.Balances {
		if entry.Balances[assetID]+change < 0 {
			return entity.NewInsufficientFundsError(fmt.Sprintf(
				"owner %q holds %d fractions of asset %d, cannot apply change of %d",
				ownerID, entry.Balances[assetID], assetID, change))
		}
	}

	updated := entry.Clone()
	for assetID, change := range delta.Balances {
		updated.Balances[assetID] += change
	}
	return s.persistLocked(ctx, updated)
}

func (s *ledgerService) Rollback(ctx context.Context, ownerID string, delta entity.LedgerDelta) error {
	if delta.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.loadLocked(ctx, ownerID)
	if err != nil {
		return err
	}

	updated := entry.Clone()
	for assetID, change := range delta.Inverse().Balances {
		next := updated.Balances[assetID] + change
		if next < 0 {
			// A rollback below zero means the cache was overwritten by
			// reconciliation in between. Clamp and let the next sync settle it.
			s.logger.Warn("Rollback would drive balance negative, clamping to zero",
				zap.String("owner_id", ownerID),
				zap.Int64("asset_id", assetID),
				zap.Int64("attempted", next))
			next = 0
		}
		updated.Balances[assetID] = next
	}
	return s.persistLocked(ctx, updated)
}

func (s *ledgerService) Overwrite(ctx context.Context, entry *entity.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx, entry.Clone())
}

func (s *ledgerService) ResetClaimable(ctx context.Context, ownerID string, assetID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.loadLocked(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}

	consumed, ok := entry.Claimable[assetID]
	if !ok || consumed.IsZero() {
		return decimal.Zero, nil
	}

	updated := entry.Clone()
	updated.Claimable[assetID] = decimal.Zero
	if err := s.persistLocked(ctx, updated); err != nil {
		return decimal.Zero, err
	}
	return consumed, nil
}
