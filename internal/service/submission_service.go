package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fractea_engine/internal/config"
	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
	"fractea_engine/pkg/blockchain"
	"fractea_engine/pkg/metrics"
)

// pendingRecord remembers what a broadcast transaction will do to the cached
// ledger, so a failed receipt can be rolled back. Records live in memory
// only; anything lost across a restart is settled by reconciliation.
type pendingRecord struct {
	ownerID string
	kind    entity.TxKind
	assetID int64
	delta   entity.LedgerDelta
}

// submissionService drives every operation through one pipeline: validate,
// estimate, integrity-check, sign, broadcast, then track confirmation. The
// per-owner lock is held from build through broadcast so nonces never race;
// the confirmation wait happens outside it.
type submissionService struct {
	cfg      *config.Config
	custody  port.CustodyService
	ledger   port.LedgerService
	history  port.HistoryService
	fees     port.FeePolicy
	provider port.ChainClientProvider
	caster   port.Broadcaster
	explorer port.ExplorerGateway
	recon    port.ReconciliationService
	logger   *zap.Logger

	ownerLocks sync.Map // ownerID -> *sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]pendingRecord // tx hash -> record
}

// NewSubmissionService wires the pipeline. explorer and recon may be nil;
// the pipeline degrades to RPC-only receipts and no post-confirm sync.
func NewSubmissionService(
	cfg *config.Config,
	custody port.CustodyService,
	ledger port.LedgerService,
	history port.HistoryService,
	fees port.FeePolicy,
	provider port.ChainClientProvider,
	caster port.Broadcaster,
	explorer port.ExplorerGateway,
	recon port.ReconciliationService,
	logger *zap.Logger,
) port.SubmissionService {
	return &submissionService{
		cfg:      cfg,
		custody:  custody,
		ledger:   ledger,
		history:  history,
		fees:     fees,
		provider: provider,
		caster:   caster,
		explorer: explorer,
		recon:    recon,
		logger:   logger.Named("submission"),
		pending:  make(map[string]pendingRecord),
	}
}

func (s *submissionService) ownerLock(ownerID string) *sync.Mutex {
	lock, _ := s.ownerLocks.LoadOrStore(ownerID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *submissionService) registerPending(hash string, rec pendingRecord) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[hash] = rec
}

func (s *submissionService) popPending(hash string) (pendingRecord, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	rec, ok := s.pending[hash]
	if ok {
		delete(s.pending, hash)
	}
	return rec, ok
}

// chainSubmission is one fully described on-chain operation.
type chainSubmission struct {
	ownerID string
	kind    entity.TxKind
	class   entity.OperationClass
	to      common.Address
	value   *big.Int
	payload []byte
	assetID int64
	delta   entity.LedgerDelta
}

// SubmitTransfer sends native value from the owner's custodial wallet.
func (s *submissionService) SubmitTransfer(ctx context.Context, ownerID string, req port.TransferRequest) (*entity.Transaction, error) {
	if !common.IsHexAddress(req.To) {
		return nil, entity.NewValidationError(fmt.Sprintf("destination %q is not a valid address", req.To))
	}
	if req.Value == nil || req.Value.Sign() < 0 {
		return nil, entity.NewValidationError("transfer value must be a non-negative amount")
	}
	if req.Value.Sign() == 0 && len(req.Payload) == 0 {
		return nil, entity.NewValidationError("transfer carries neither value nor payload")
	}

	return s.submit(ctx, chainSubmission{
		ownerID: ownerID,
		kind:    entity.KindTransfer,
		class:   entity.OpNativeTransfer,
		to:      common.HexToAddress(req.To),
		value:   req.Value,
		payload: req.Payload,
	})
}

// Invest buys fractions of an asset through the ledger contract's mint call.
func (s *submissionService) Invest(ctx context.Context, ownerID string, assetID, fractions int64, cost *big.Int) (*entity.Transaction, error) {
	if assetID <= 0 {
		return nil, entity.NewValidationError("assetId must be positive")
	}
	if fractions <= 0 {
		return nil, entity.NewValidationError("fraction count must be positive")
	}
	if cost == nil || cost.Sign() <= 0 {
		return nil, entity.NewValidationError("investment cost must be positive")
	}

	wallet, err := s.custody.Lookup(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	payload, err := blockchain.PackMint(common.HexToAddress(wallet.Address), big.NewInt(assetID), big.NewInt(fractions))
	if err != nil {
		return nil, err
	}

	return s.submit(ctx, chainSubmission{
		ownerID: ownerID,
		kind:    entity.KindInvest,
		class:   entity.OpContractCall,
		to:      common.HexToAddress(s.cfg.Contract.Address),
		value:   cost,
		payload: payload,
		assetID: assetID,
		delta:   entity.LedgerDelta{Balances: map[int64]int64{assetID: fractions}},
	})
}

// ClaimRent submits a claim call. The claimable amount is read from the chain
// up front, both to reject empty claims and to report what was claimed; the
// cached amount is consumed exactly once on completion.
func (s *submissionService) ClaimRent(ctx context.Context, ownerID string, assetID int64) (*port.ClaimResult, error) {
	if assetID <= 0 {
		return nil, entity.NewValidationError("assetId must be positive")
	}

	wallet, err := s.custody.Lookup(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	client, err := s.provider.GetClient(s.cfg.ActiveNetwork)
	if err != nil {
		return nil, entity.NewNetworkError("cannot reach the active network", err)
	}

	claimableWei, err := client.ClaimableRent(ctx, big.NewInt(assetID), common.HexToAddress(wallet.Address))
	if err != nil {
		return nil, entity.NewNetworkError("failed to read claimable rent", err)
	}
	if claimableWei.Sign() == 0 {
		return nil, entity.NewValidationError(fmt.Sprintf("owner %q has no claimable rent for asset %d", ownerID, assetID))
	}

	payload, err := blockchain.PackClaim(big.NewInt(assetID))
	if err != nil {
		return nil, err
	}

	record, err := s.submit(ctx, chainSubmission{
		ownerID: ownerID,
		kind:    entity.KindClaim,
		class:   entity.OpContractCall,
		to:      common.HexToAddress(s.cfg.Contract.Address),
		value:   big.NewInt(0),
		payload: payload,
		assetID: assetID,
	})
	if err != nil {
		if record == nil {
			return nil, err
		}
		return &port.ClaimResult{Tx: record}, err
	}

	result := &port.ClaimResult{Tx: record}
	if record.Status == entity.StatusCompleted {
		node, _ := s.cfg.Network(s.cfg.ActiveNetwork)
		result.Amount = decimal.NewFromBigInt(claimableWei, -int32(node.Decimals))
		if _, err := s.ledger.ResetClaimable(ctx, ownerID, assetID); err != nil {
			s.logger.Warn("Failed to reset cached claimable after claim",
				zap.String("owner_id", ownerID),
				zap.Int64("asset_id", assetID),
				zap.Error(err))
		}
	}
	return result, nil
}

// DepositRent submits the platform relayer's depositRent call for an asset.
// The per-fraction accrual split happens inside the contract.
func (s *submissionService) DepositRent(ctx context.Context, relayerOwnerID string, assetID int64, amount *big.Int) (*entity.Transaction, error) {
	if assetID <= 0 {
		return nil, entity.NewValidationError("assetId must be positive")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, entity.NewValidationError("rent amount must be positive")
	}
	if s.cfg.Custody.RelayerOwnerID != "" && relayerOwnerID != s.cfg.Custody.RelayerOwnerID {
		return nil, entity.NewValidationError(fmt.Sprintf("owner %q is not the configured rent relayer", relayerOwnerID))
	}

	payload, err := blockchain.PackDepositRent(big.NewInt(assetID))
	if err != nil {
		return nil, err
	}

	return s.submit(ctx, chainSubmission{
		ownerID: relayerOwnerID,
		kind:    entity.KindRentDeposit,
		class:   entity.OpContractCall,
		to:      common.HexToAddress(s.cfg.Contract.Address),
		value:   amount,
		payload: payload,
		assetID: assetID,
	})
}

func (s *submissionService) submit(ctx context.Context, sub chainSubmission) (*entity.Transaction, error) {
	timer := prometheus.NewTimer(metrics.SubmissionDuration.WithLabelValues(string(sub.kind)))
	defer timer.ObserveDuration()

	lock := s.ownerLock(sub.ownerID)
	lock.Lock()
	locked := true
	unlock := func() {
		if locked {
			locked = false
			lock.Unlock()
		}
	}
	defer unlock()

	wallet, err := s.custody.Lookup(ctx, sub.ownerID)
	if err != nil {
		return nil, err
	}

	client, err := s.provider.GetClient(s.cfg.ActiveNetwork)
	if err != nil {
		return nil, entity.NewNetworkError("cannot reach the active network", err)
	}

	from := common.HexToAddress(wallet.Address)
	value := sub.value
	if value == nil {
		value = big.NewInt(0)
	}

	msg := ethereum.CallMsg{From: from, To: &sub.to, Value: value, Data: sub.payload}
	estimate := s.fees.Estimate(ctx, client, msg, sub.class)

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil || gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice = big.NewInt(s.cfg.FeePolicy.DefaultGasPriceWei)
		s.logger.Warn("Gas price suggestion failed, using configured default",
			zap.String("owner_id", sub.ownerID),
			zap.String("default_wei", gasPrice.String()),
			zap.Error(err))
	}

	material, err := s.custody.Reveal(wallet)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(material)
	if err := s.custody.VerifyIntegrity(wallet, material); err != nil {
		return nil, err
	}
	privateKey, err := crypto.ToECDSA(material)
	if err != nil {
		return nil, entity.NewIntegrityError(fmt.Sprintf("key material for owner %q is not a valid private key", sub.ownerID))
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, entity.NewNetworkError("failed to fetch pending nonce", err)
	}

	tx := types.NewTransaction(nonce, sub.to, value, estimate.PaddedUnits, gasPrice, sub.payload)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(client.ChainID()), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction for owner %s: %w", sub.ownerID, err)
	}

	hash, err := s.caster.Broadcast(ctx, signed)
	if err != nil {
		// Rejected before entering the mempool: no history row, nothing to track.
		return nil, entity.ClassifyBroadcastError(err)
	}
	metrics.TxSubmitted.WithLabelValues(string(sub.kind)).Inc()

	record := &entity.Transaction{
		ID:       uuid.NewString(),
		OwnerID:  sub.ownerID,
		Hash:     hash.Hex(),
		From:     wallet.Address,
		To:       sub.to.Hex(),
		Value:    value.String(),
		Payload:  sub.payload,
		Nonce:    nonce,
		GasLimit: estimate.PaddedUnits,
		GasPrice: gasPrice.String(),
		Network:  s.cfg.ActiveNetwork,
		Kind:     sub.kind,
		Class:    sub.class,
		Status:   entity.StatusPending,
	}
	if err := s.history.Append(ctx, record); err != nil {
		s.logger.Error("Broadcast succeeded but history append failed",
			zap.String("hash", record.Hash),
			zap.Error(err))
		return nil, err
	}

	if !sub.delta.IsZero() {
		if err := s.ledger.ApplyOptimistic(ctx, sub.ownerID, sub.delta); err != nil {
			s.logger.Warn("Optimistic ledger apply rejected, reconciliation will settle",
				zap.String("owner_id", sub.ownerID),
				zap.String("hash", record.Hash),
				zap.Error(err))
			sub.delta = entity.LedgerDelta{}
		}
	}
	s.registerPending(record.Hash, pendingRecord{
		ownerID: sub.ownerID,
		kind:    sub.kind,
		assetID: sub.assetID,
		delta:   sub.delta,
	})

	unlock()
	return s.awaitConfirmation(ctx, record)
}

// awaitConfirmation polls for the receipt until the configured bound. On
// timeout the transaction stays PENDING; it is never resubmitted, only
// re-checked by the background worker.
func (s *submissionService) awaitConfirmation(ctx context.Context, record *entity.Transaction) (*entity.Transaction, error) {
	poll := time.Duration(s.cfg.Submission.PollIntervalMillis) * time.Millisecond
	deadline := time.Now().Add(time.Duration(s.cfg.Submission.ConfirmTimeoutSeconds) * time.Second)
	hash := common.HexToHash(record.Hash)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		receipt, err := s.caster.Receipt(ctx, hash)
		if err == nil && receipt != nil {
			success := receipt.Status == types.ReceiptStatusSuccessful
			var blockNumber uint64
			if receipt.BlockNumber != nil {
				blockNumber = receipt.BlockNumber.Uint64()
			}
			s.settle(ctx, record.OwnerID, record.Hash, success, blockNumber)
			if success {
				record.Status = entity.StatusCompleted
				record.BlockNumber = blockNumber
			} else {
				record.Status = entity.StatusFailed
				record.BlockNumber = blockNumber
			}
			return record, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.logger.Debug("Receipt poll failed", zap.String("hash", record.Hash), zap.Error(err))
		}

		if time.Now().After(deadline) {
			metrics.TxTimeouts.Inc()
			s.logger.Warn("Confirmation wait timed out, transaction stays pending",
				zap.String("owner_id", record.OwnerID),
				zap.String("hash", record.Hash))
			return record, entity.NewTimeoutError(fmt.Sprintf(
				"transaction %s was not confirmed within %ds", record.Hash, s.cfg.Submission.ConfirmTimeoutSeconds))
		}

		select {
		case <-ctx.Done():
			return record, entity.NewTimeoutError(fmt.Sprintf(
				"confirmation wait for %s cancelled, transaction stays pending", record.Hash))
		case <-ticker.C:
		}
	}
}

// settle records the terminal status and squares the cached ledger with it.
func (s *submissionService) settle(ctx context.Context, ownerID, hash string, success bool, blockNumber uint64) {
	status := entity.StatusFailed
	if success {
		status = entity.StatusCompleted
	}
	if err := s.history.UpdateStatus(ctx, ownerID, hash, status, blockNumber); err != nil {
		s.logger.Error("Failed to record terminal status",
			zap.String("hash", hash),
			zap.String("status", string(status)),
			zap.Error(err))
	}

	rec, known := s.popPending(hash)
	if success {
		metrics.TxConfirmed.WithLabelValues(string(rec.kind)).Inc()
		if s.recon != nil {
			s.recon.SyncAsync(ownerID)
		}
		return
	}

	metrics.TxFailed.WithLabelValues(string(rec.kind)).Inc()
	if known && !rec.delta.IsZero() {
		if err := s.ledger.Rollback(ctx, ownerID, rec.delta); err != nil {
			s.logger.Error("Failed to roll back optimistic delta",
				zap.String("owner_id", ownerID),
				zap.String("hash", hash),
				zap.Error(err))
		}
	} else if s.recon != nil {
		// Delta lost across a restart; authoritative sync settles the cache.
		s.recon.SyncAsync(ownerID)
	}
}

// Run drives the pending re-check worker: every interval, each PENDING row is
// checked against the RPC receipt and, failing that, the explorer index.
func (s *submissionService) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Submission.RecheckIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Pending re-check worker started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Pending re-check worker stopped")
			return
		case <-ticker.C:
			s.recheckPending(ctx)
		}
	}
}

func (s *submissionService) recheckPending(ctx context.Context) {
	rows, err := s.history.ListPending(ctx)
	if err != nil {
		s.logger.Error("Failed to list pending transactions", zap.Error(err))
		return
	}
	for _, row := range rows {
		if row.Kind == entity.KindTokenDeposit || row.Kind == entity.KindTokenWithdraw || row.Kind == entity.KindTokenTransfer {
			continue
		}
		s.recheckOne(ctx, row)
	}
}

func (s *submissionService) recheckOne(ctx context.Context, row *entity.Transaction) {
	hash := common.HexToHash(row.Hash)

	receipt, err := s.caster.Receipt(ctx, hash)
	if err == nil && receipt != nil {
		var blockNumber uint64
		if receipt.BlockNumber != nil {
			blockNumber = receipt.BlockNumber.Uint64()
		}
		s.settle(ctx, row.OwnerID, row.Hash, receipt.Status == types.ReceiptStatusSuccessful, blockNumber)
		return
	}
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		s.logger.Debug("Re-check receipt poll failed", zap.String("hash", row.Hash), zap.Error(err))
	}

	if s.explorer == nil {
		return
	}
	found, success, err := s.explorer.ReceiptStatus(ctx, row.Hash)
	if err != nil {
		s.logger.Debug("Explorer re-check failed", zap.String("hash", row.Hash), zap.Error(err))
		return
	}
	if found {
		s.logger.Info("Explorer resolved a pending transaction",
			zap.String("hash", row.Hash),
			zap.Bool("success", success))
		s.settle(ctx, row.OwnerID, row.Hash, success, 0)
	}
}

// syntheticHash labels off-chain ledger moves in the history log. It is a
// digest of the row ID, not a network transaction hash.
func syntheticHash(id string) string {
	return common.BytesToHash(crypto.Keccak256([]byte(id))).Hex()
}

func (s *submissionService) appendTokenRow(ctx context.Context, ownerID, from, to string, kind entity.TxKind, amount decimal.Decimal, hash string) (*entity.Transaction, error) {
	record := &entity.Transaction{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Hash:    hash,
		From:    from,
		To:      to,
		Value:   amount.String(),
		Network: s.cfg.ActiveNetwork,
		Kind:    kind,
		Class:   entity.OpTokenOperation,
		Status:  entity.StatusPending,
	}
	if err := s.history.Append(ctx, record); err != nil {
		return nil, err
	}
	// Off-chain moves settle as soon as the balance write lands; the row still
	// passes through PENDING so status stays monotonic.
	if err := s.history.UpdateStatus(ctx, ownerID, hash, entity.StatusCompleted, 0); err != nil {
		return nil, err
	}
	record.Status = entity.StatusCompleted
	return record, nil
}

// DepositTokens credits a cached token balance.
func (s *submissionService) DepositTokens(ctx context.Context, ownerID, symbol string, amount decimal.Decimal) (*entity.Transaction, error) {
	if err := validateTokenAmount(symbol, amount); err != nil {
		return nil, err
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	wallet, err := s.custody.Lookup(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	updated := wallet.Clone()
	updated.TokenBalances[symbol] = updated.TokenBalances[symbol].Add(amount)
	if err := s.custody.UpdateTokenBalances(ctx, updated); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	return s.appendTokenRow(ctx, ownerID, updated.Address, updated.Address, entity.KindTokenDeposit, amount, syntheticHash(id))
}

// WithdrawTokens debits a cached token balance, rejecting overdrafts before
// any mutation.
func (s *submissionService) WithdrawTokens(ctx context.Context, ownerID, symbol string, amount decimal.Decimal) (*entity.Transaction, error) {
	if err := validateTokenAmount(symbol, amount); err != nil {
		return nil, err
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	wallet, err := s.custody.Lookup(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if wallet.TokenBalances[symbol].LessThan(amount) {
		return nil, entity.NewInsufficientFundsError(fmt.Sprintf(
			"owner %q holds %s %s, cannot withdraw %s",
			ownerID, wallet.TokenBalances[symbol].String(), symbol, amount.String()))
	}

	updated := wallet.Clone()
	updated.TokenBalances[symbol] = updated.TokenBalances[symbol].Sub(amount)
	if err := s.custody.UpdateTokenBalances(ctx, updated); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	return s.appendTokenRow(ctx, ownerID, updated.Address, updated.Address, entity.KindTokenWithdraw, amount, syntheticHash(id))
}

// TransferTokens moves a cached token balance between two owners atomically.
func (s *submissionService) TransferTokens(ctx context.Context, fromOwnerID, toOwnerID, symbol string, amount decimal.Decimal) (*entity.Transaction, error) {
	if err := validateTokenAmount(symbol, amount); err != nil {
		return nil, err
	}
	if fromOwnerID == toOwnerID {
		return nil, entity.NewValidationError("token transfer source and destination are the same owner")
	}

	// Lock both owners in a fixed order so concurrent opposite transfers
	// cannot deadlock.
	ordered := []string{fromOwnerID, toOwnerID}
	sort.Strings(ordered)
	for _, ownerID := range ordered {
		lock := s.ownerLock(ownerID)
		lock.Lock()
		defer lock.Unlock()
	}

	sender, err := s.custody.Lookup(ctx, fromOwnerID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.custody.Lookup(ctx, toOwnerID)
	if err != nil {
		return nil, err
	}
	if sender.TokenBalances[symbol].LessThan(amount) {
		return nil, entity.NewInsufficientFundsError(fmt.Sprintf(
			"owner %q holds %s %s, cannot transfer %s",
			fromOwnerID, sender.TokenBalances[symbol].String(), symbol, amount.String()))
	}

	updatedSender := sender.Clone()
	updatedSender.TokenBalances[symbol] = updatedSender.TokenBalances[symbol].Sub(amount)
	updatedReceiver := receiver.Clone()
	updatedReceiver.TokenBalances[symbol] = updatedReceiver.TokenBalances[symbol].Add(amount)

	if err := s.custody.UpdateTokenBalances(ctx, updatedSender); err != nil {
		return nil, err
	}
	if err := s.custody.UpdateTokenBalances(ctx, updatedReceiver); err != nil {
		// Put the debit back; the two writes are not transactional.
		if undoErr := s.custody.UpdateTokenBalances(ctx, sender); undoErr != nil {
			s.logger.Error("Failed to undo sender debit after receiver credit failure",
				zap.String("from", fromOwnerID),
				zap.String("to", toOwnerID),
				zap.Error(undoErr))
		}
		return nil, err
	}

	hash := syntheticHash(uuid.NewString())
	if _, err := s.appendTokenRow(ctx, toOwnerID, updatedSender.Address, updatedReceiver.Address, entity.KindTokenTransfer, amount, hash); err != nil {
		s.logger.Warn("Failed to record receiver side of token transfer", zap.Error(err))
	}
	return s.appendTokenRow(ctx, fromOwnerID, updatedSender.Address, updatedReceiver.Address, entity.KindTokenTransfer, amount, hash)
}

func validateTokenAmount(symbol string, amount decimal.Decimal) error {
	if symbol == "" {
		return entity.NewValidationError("token symbol must not be empty")
	}
	if !amount.IsPositive() {
		return entity.NewValidationError("token amount must be positive")
	}
	return nil
}
