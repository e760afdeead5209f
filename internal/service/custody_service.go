package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fractea_engine/internal/config"
	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
)

// custodyService provisions per-owner key pairs and guards the sealed key
// material. Key bytes exist unsealed only inside Provision and Reveal; they
// are never logged and never leave this package except to the signer.
type custodyService struct {
	wallets port.WalletRepository
	ledgers port.LedgerRepository
	cipher  port.KeyCipher
	cfg     config.CustodyConfig
	logger  *zap.Logger

	// Serializes Provision so two concurrent calls for one owner cannot
	// generate two key pairs.
	provisionMu sync.Mutex
}

// NewCustodyService creates the custody layer over the wallet store.
func NewCustodyService(
	wallets port.WalletRepository,
	ledgers port.LedgerRepository,
	cipher port.KeyCipher,
	cfg config.CustodyConfig,
	logger *zap.Logger,
) port.CustodyService {
	return &custodyService{
		wallets: wallets,
		ledgers: ledgers,
		cipher:  cipher,
		cfg:     cfg,
		logger:  logger.Named("custody"),
	}
}

func (s *custodyService) Provision(ctx context.Context, ownerID, email string) (*entity.CustodialWallet, error) {
	if ownerID == "" {
		return nil, entity.NewValidationError("ownerId must not be empty")
	}

	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()

	existing, ok, err := s.wallets.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up wallet for owner %s: %w", ownerID, err)
	}
	if ok {
		s.logger.Debug("Provision is a no-op, wallet already exists", zap.String("owner_id", ownerID))
		return existing, nil
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair for owner %s: %w", ownerID, err)
	}
	material := crypto.FromECDSA(privateKey)
	defer zeroBytes(material)

	sealed, err := s.cipher.Seal(material)
	if err != nil {
		return nil, fmt.Errorf("failed to seal key material for owner %s: %w", ownerID, err)
	}

	wallet := &entity.CustodialWallet{
		OwnerID:       ownerID,
		Email:         email,
		Address:       crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
		EncryptedKey:  sealed,
		TokenBalances: s.defaultTokenBalances(),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.wallets.Put(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to persist wallet for owner %s: %w", ownerID, err)
	}
	if err := s.ledgers.Put(ctx, entity.NewLedgerEntry(ownerID)); err != nil {
		return nil, fmt.Errorf("failed to persist ledger entry for owner %s: %w", ownerID, err)
	}

	s.logger.Info("Provisioned custodial wallet",
		zap.String("owner_id", ownerID),
		zap.String("address", wallet.Address))
	return wallet, nil
}

func (s *custodyService) Lookup(ctx context.Context, ownerID string) (*entity.CustodialWallet, error) {
	wallet, ok, err := s.wallets.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up wallet for owner %s: %w", ownerID, err)
	}
	if !ok {
		return nil, entity.NewUnknownOwnerError(ownerID)
	}
	return wallet, nil
}

func (s *custodyService) Reveal(wallet *entity.CustodialWallet) ([]byte, error) {
	material, err := s.cipher.Open(wallet.EncryptedKey)
	if err != nil {
		return nil, entity.NewIntegrityError(fmt.Sprintf("sealed key for owner %q cannot be opened", wallet.OwnerID))
	}
	return material, nil
}

func (s *custodyService) VerifyIntegrity(wallet *entity.CustodialWallet, material []byte) error {
	privateKey, err := crypto.ToECDSA(material)
	if err != nil {
		return entity.NewIntegrityError(fmt.Sprintf("key material for owner %q is not a valid private key", wallet.OwnerID))
	}
	derived := crypto.PubkeyToAddress(privateKey.PublicKey)
	if derived != common.HexToAddress(wallet.Address) {
		s.logger.Error("Key material does not derive the recorded address",
			zap.String("owner_id", wallet.OwnerID),
			zap.String("recorded", wallet.Address),
			zap.String("derived", derived.Hex()))
		return entity.NewIntegrityError(fmt.Sprintf("key material for owner %q does not match the recorded address", wallet.OwnerID))
	}
	return nil
}

func (s *custodyService) UpdateTokenBalances(ctx context.Context, wallet *entity.CustodialWallet) error {
	return s.wallets.Put(ctx, wallet)
}

func (s *custodyService) defaultTokenBalances() map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal, len(s.cfg.DefaultBalances))
	for symbol, raw := range s.cfg.DefaultBalances {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			s.logger.Warn("Invalid default balance in config, using zero",
				zap.String("symbol", symbol),
				zap.String("value", raw))
			amount = decimal.Zero
		}
		balances[symbol] = amount
	}
	return balances
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
