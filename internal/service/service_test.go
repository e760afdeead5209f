package service

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fractea_engine/internal/config"
	"fractea_engine/internal/port"
	"fractea_engine/internal/repository"
	"fractea_engine/pkg/blockchain"
)

// fakeCipher is a reversible stand-in for the keystore envelope. The real
// cipher has its own tests; service tests only need seal/open to round-trip.
type fakeCipher struct {
	failOpen bool
}

var sealPrefix = []byte("sealed:")

func (c *fakeCipher) Seal(material []byte) ([]byte, error) {
	return append(append([]byte(nil), sealPrefix...), material...), nil
}

func (c *fakeCipher) Open(sealed []byte) ([]byte, error) {
	if c.failOpen {
		return nil, errors.New("cipher open forced to fail")
	}
	if !bytes.HasPrefix(sealed, sealPrefix) {
		return nil, errors.New("not a sealed blob")
	}
	return append([]byte(nil), bytes.TrimPrefix(sealed, sealPrefix)...), nil
}

// fakeChainClient is a scriptable port.ChainClient.
type fakeChainClient struct {
	chainID     *big.Int
	estimateGas uint64
	estimateErr error
	gasPrice    *big.Int
	gasPriceErr error
	nonce       uint64
	balance     *big.Int

	fractionBalances map[int64]*big.Int
	claimable        map[int64]*big.Int
}

func newFakeChainClient() *fakeChainClient {
	return &fakeChainClient{
		chainID:          big.NewInt(5003),
		estimateGas:      21000,
		gasPrice:         big.NewInt(2_000_000_000),
		balance:          big.NewInt(0),
		fractionBalances: make(map[int64]*big.Int),
		claimable:        make(map[int64]*big.Int),
	}
}

func (c *fakeChainClient) ChainID() *big.Int { return c.chainID }

func (c *fakeChainClient) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	return c.estimateGas, c.estimateErr
}

func (c *fakeChainClient) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return c.gasPrice, c.gasPriceErr
}

func (c *fakeChainClient) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	nonce := c.nonce
	c.nonce++
	return nonce, nil
}

func (c *fakeChainClient) BalanceAt(_ context.Context, _ common.Address) (*big.Int, error) {
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeChainClient) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (c *fakeChainClient) FractionBalance(_ context.Context, _ common.Address, assetID *big.Int) (*big.Int, error) {
	if balance, ok := c.fractionBalances[assetID.Int64()]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (c *fakeChainClient) ClaimableRent(_ context.Context, assetID *big.Int, _ common.Address) (*big.Int, error) {
	if amount, ok := c.claimable[assetID.Int64()]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

type fakeProvider struct {
	client port.ChainClient
	err    error
}

func (p *fakeProvider) GetClient(_ string) (port.ChainClient, error) {
	return p.client, p.err
}

func newTestConfig() *config.Config {
	return &config.Config{
		ActiveNetwork: "testnet",
		Networks: []config.NetworkNode{
			{
				Name:         "testnet",
				ChainID:      5003,
				NativeSymbol: "MNT",
				Decimals:     18,
			},
		},
		Contract: config.ContractConfig{Address: "0x00000000000000000000000000000000000000cc"},
		Custody: config.CustodyConfig{
			SecretEnv:       "FRACTEA_CUSTODY_SECRET",
			DefaultBalances: map[string]string{"USDC": "0.00", "MNT": "0.00"},
			RelayerOwnerID:  "relayer@fractea.app",
		},
		FeePolicy: config.FeePolicyConfig{
			SafetyMultiplier: 1.2,
			FallbackUnits: map[string]uint64{
				"native_transfer": 100000,
				"token_operation": 120000,
				"contract_call":   150000,
			},
			DefaultGasPriceWei: 1_000_000_000,
		},
		Submission: config.SubmissionConfig{
			ConfirmTimeoutSeconds:  1,
			PollIntervalMillis:     10,
			RecheckIntervalSeconds: 1,
		},
		Reconciliation: config.ReconciliationConfig{
			IntervalSeconds:     60,
			TrackedAssets:       []int64{1, 2},
			MaxConcurrentOwners: 2,
		},
		Cache: config.CacheConfig{TTLMinutes: 1, CleanupMinutes: 1},
	}
}

// testEngine bundles a fully wired service stack over in-memory storage.
type testEngine struct {
	cfg        *config.Config
	chain      *fakeChainClient
	cipher     *fakeCipher
	caster     *blockchain.SimulatedBroadcaster
	wallets    port.WalletRepository
	ledgerRepo port.LedgerRepository
	custody    port.CustodyService
	ledger     port.LedgerService
	history    port.HistoryService
	submission port.SubmissionService
	recon      port.ReconciliationService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	cfg := newTestConfig()
	logger := zap.NewNop()

	store := repository.NewMemoryKVStore()
	walletRepo := repository.NewWalletRepository(store)
	ledgerRepo := repository.NewLedgerRepository(store)
	txRepo := repository.NewTransactionRepository(store)

	cipher := &fakeCipher{}
	chain := newFakeChainClient()
	provider := &fakeProvider{client: chain}
	caster := blockchain.NewSimulatedBroadcaster()

	custodySvc := NewCustodyService(walletRepo, ledgerRepo, cipher, cfg.Custody, logger)
	ledgerSvc := NewLedgerService(ledgerRepo, cfg.Cache, logger)
	historySvc := NewHistoryService(txRepo, logger)
	fees := NewFeePolicy(cfg.FeePolicy, logger)
	reconSvc := NewReconciliationService(cfg, custodySvc, ledgerSvc, walletRepo, provider, logger)
	submissionSvc := NewSubmissionService(
		cfg, custodySvc, ledgerSvc, historySvc, fees, provider, caster, nil, reconSvc, logger)

	return &testEngine{
		cfg:        cfg,
		chain:      chain,
		cipher:     cipher,
		caster:     caster,
		wallets:    walletRepo,
		ledgerRepo: ledgerRepo,
		custody:    custodySvc,
		ledger:     ledgerSvc,
		history:    historySvc,
		submission: submissionSvc,
		recon:      reconSvc,
	}
}

func (e *testEngine) provision(t *testing.T, ownerID string) string {
	t.Helper()
	wallet, err := e.custody.Provision(context.Background(), ownerID, ownerID)
	require.NoError(t, err)
	return wallet.Address
}
