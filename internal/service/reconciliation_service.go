package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fractea_engine/internal/config"
	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
	"fractea_engine/internal/utils"
	"fractea_engine/pkg/metrics"
)

// reconciliationService re-reads every tracked position from the chain and
// overwrites the cache with what it finds. Disagreement is expected after
// failed or externally submitted transactions; the chain always wins.
type reconciliationService struct {
	cfg      *config.Config
	custody  port.CustodyService
	ledger   port.LedgerService
	wallets  port.WalletRepository
	provider port.ChainClientProvider
	logger   *zap.Logger

	asyncCh chan string
}

// NewReconciliationService creates the sync loop over the configured assets.
func NewReconciliationService(
	cfg *config.Config,
	custody port.CustodyService,
	ledger port.LedgerService,
	wallets port.WalletRepository,
	provider port.ChainClientProvider,
	logger *zap.Logger,
) port.ReconciliationService {
	return &reconciliationService{
		cfg:      cfg,
		custody:  custody,
		ledger:   ledger,
		wallets:  wallets,
		provider: provider,
		logger:   logger.Named("reconciliation"),
		asyncCh:  make(chan string, 256),
	}
}

func (s *reconciliationService) Sync(ctx context.Context, ownerID string) (*entity.LedgerEntry, error) {
	wallet, err := s.custody.Lookup(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	client, err := s.provider.GetClient(s.cfg.ActiveNetwork)
	if err != nil {
		return nil, entity.NewNetworkError("cannot reach the active network", err)
	}
	node, ok := s.cfg.Network(s.cfg.ActiveNetwork)
	if !ok {
		return nil, fmt.Errorf("active network %q is not configured", s.cfg.ActiveNetwork)
	}

	address := common.HexToAddress(wallet.Address)
	authoritative := entity.NewLedgerEntry(ownerID)

	for _, assetID := range s.cfg.Reconciliation.TrackedAssets {
		fractions, err := client.FractionBalance(ctx, address, big.NewInt(assetID))
		if err != nil {
			return nil, entity.NewNetworkError(fmt.Sprintf("failed to read fraction balance for asset %d", assetID), err)
		}
		if fractions.Sign() > 0 {
			authoritative.Balances[assetID] = fractions.Int64()
		}

		claimable, err := client.ClaimableRent(ctx, big.NewInt(assetID), address)
		if err != nil {
			return nil, entity.NewNetworkError(fmt.Sprintf("failed to read claimable rent for asset %d", assetID), err)
		}
		if claimable.Sign() > 0 {
			authoritative.Claimable[assetID] = utils.WeiToDecimal(claimable, node.Decimals)
		}
	}

	cached, err := s.ledger.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !entriesAgree(cached, authoritative) {
		metrics.ReconciliationDiscrepancies.Inc()
		s.logger.Warn("Cached ledger diverged from chain state, overwriting",
			zap.String("owner_id", ownerID),
			zap.Any("cached_balances", cached.Balances),
			zap.Any("chain_balances", authoritative.Balances))
	}
	if err := s.ledger.Overwrite(ctx, authoritative); err != nil {
		return nil, err
	}

	// The owner-facing native balance rides along with the ledger sync.
	nativeWei, err := client.BalanceAt(ctx, address)
	if err != nil {
		s.logger.Warn("Failed to read native balance during sync",
			zap.String("owner_id", ownerID),
			zap.Error(err))
	} else {
		updated := wallet.Clone()
		updated.TokenBalances[node.NativeSymbol] = utils.WeiToDecimal(nativeWei, node.Decimals)
		if err := s.custody.UpdateTokenBalances(ctx, updated); err != nil {
			s.logger.Warn("Failed to persist native balance during sync",
				zap.String("owner_id", ownerID),
				zap.Error(err))
		}
	}

	metrics.ReconciliationRuns.Inc()
	s.logger.Debug("Owner reconciled", zap.String("owner_id", ownerID))
	return authoritative, nil
}

func (s *reconciliationService) SyncAsync(ownerID string) {
	select {
	case s.asyncCh <- ownerID:
	default:
		s.logger.Warn("Reconciliation queue full, dropping async sync request",
			zap.String("owner_id", ownerID))
	}
}

func (s *reconciliationService) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Reconciliation.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Reconciliation loop started",
		zap.Duration("interval", interval),
		zap.Int64s("tracked_assets", s.cfg.Reconciliation.TrackedAssets))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reconciliation loop stopped")
			return
		case ownerID := <-s.asyncCh:
			if _, err := s.Sync(ctx, ownerID); err != nil {
				s.logger.Error("Async reconciliation failed",
					zap.String("owner_id", ownerID),
					zap.Error(err))
			}
		case <-ticker.C:
			s.syncAll(ctx)
		}
	}
}

func (s *reconciliationService) syncAll(ctx context.Context) {
	wallets, err := s.wallets.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list wallets for reconciliation", zap.Error(err))
		return
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Reconciliation.MaxConcurrentOwners)
	for _, wallet := range wallets {
		ownerID := wallet.OwnerID
		g.Go(func() error {
			if _, err := s.Sync(groupCtx, ownerID); err != nil {
				// One owner failing must not stop the sweep.
				s.logger.Error("Owner reconciliation failed",
					zap.String("owner_id", ownerID),
					zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Reconciliation sweep aborted", zap.Error(err))
	}
}

// entriesAgree compares two entries treating absent keys as zero.
func entriesAgree(a, b *entity.LedgerEntry) bool {
	for assetID, count := range a.Balances {
		if b.Balances[assetID] != count {
			return false
		}
	}
	for assetID, count := range b.Balances {
		if a.Balances[assetID] != count {
			return false
		}
	}
	for assetID, amount := range a.Claimable {
		if !b.Claimable[assetID].Equal(amount) {
			return false
		}
	}
	for assetID, amount := range b.Claimable {
		if !a.Claimable[assetID].Equal(amount) {
			return false
		}
	}
	return true
}
