package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
)

func TestSubmitTransferCompletes(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	tx, err := engine.submission.SubmitTransfer(ctx, "alice@example.com", port.TransferRequest{
		To:    "0x00000000000000000000000000000000000000bb",
		Value: big.NewInt(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, tx.Status)
	assert.NotZero(t, tx.BlockNumber)
	assert.Equal(t, "1000", tx.Value)
	assert.Equal(t, entity.KindTransfer, tx.Kind)

	row, err := engine.history.GetByHash(ctx, "alice@example.com", tx.Hash)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, row.Status)
}

func TestSubmitTransferValidation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	_, err := engine.submission.SubmitTransfer(ctx, "alice@example.com", port.TransferRequest{
		To:    "not-an-address",
		Value: big.NewInt(1),
	})
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindValidation))

	_, err = engine.submission.SubmitTransfer(ctx, "alice@example.com", port.TransferRequest{
		To:    "0x00000000000000000000000000000000000000bb",
		Value: big.NewInt(0),
	})
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindValidation))
}

func TestSubmitTransferUnknownOwner(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.submission.SubmitTransfer(context.Background(), "nobody@example.com", port.TransferRequest{
		To:    "0x00000000000000000000000000000000000000bb",
		Value: big.NewInt(1),
	})
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindUnknownOwner))
}

func TestBroadcastRejectionLeavesNoHistory(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	engine.caster.SetNextBroadcastError(errors.New("insufficient funds for gas * price + value"))

	_, err := engine.submission.SubmitTransfer(ctx, "alice@example.com", port.TransferRequest{
		To:    "0x00000000000000000000000000000000000000bb",
		Value: big.NewInt(1000),
	})
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindInsufficientFunds))

	rows, err := engine.history.ListByOwner(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBroadcastGasErrorClassification(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	engine.caster.SetNextBroadcastError(errors.New("intrinsic gas too low"))

	_, err := engine.submission.SubmitTransfer(ctx, "alice@example.com", port.TransferRequest{
		To:    "0x00000000000000000000000000000000000000bb",
		Value: big.NewInt(1000),
	})
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindInsufficientResource))
}

func TestInvestAppliesLedgerDelta(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	tx, err := engine.submission.Invest(ctx, "alice@example.com", 1, 10, big.NewInt(5_000_000))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, tx.Status)
	assert.Equal(t, entity.KindInvest, tx.Kind)

	entry, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(10), entry.Balances[1])
}

func TestInvestRevertedOnChainRollsBack(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	engine.caster.SetNextStatus(types.ReceiptStatusFailed)

	tx, err := engine.submission.Invest(ctx, "alice@example.com", 1, 10, big.NewInt(5_000_000))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, tx.Status)

	row, err := engine.history.GetByHash(ctx, "alice@example.com", tx.Hash)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, row.Status)

	entry, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.Balances[1])
}

func TestConfirmationTimeoutStaysPending(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	engine.caster.SetWithholdReceipts(true)

	tx, err := engine.submission.SubmitTransfer(ctx, "alice@example.com", port.TransferRequest{
		To:    "0x00000000000000000000000000000000000000bb",
		Value: big.NewInt(1000),
	})
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindTimeout))
	require.NotNil(t, tx)
	assert.Equal(t, entity.StatusPending, tx.Status)

	row, err := engine.history.GetByHash(ctx, "alice@example.com", tx.Hash)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, row.Status)
}

func TestRecheckWorkerResolvesPending(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	engine.caster.SetWithholdReceipts(true)
	tx, err := engine.submission.SubmitTransfer(ctx, "alice@example.com", port.TransferRequest{
		To:    "0x00000000000000000000000000000000000000bb",
		Value: big.NewInt(1000),
	})
	require.Error(t, err)
	require.NotNil(t, tx)

	// The network mines the transaction later; the re-check pass picks it up.
	engine.caster.SetWithholdReceipts(false)
	engine.caster.Release(common.HexToHash(tx.Hash), types.ReceiptStatusSuccessful)

	engine.submission.(*submissionService).recheckPending(ctx)

	row, err := engine.history.GetByHash(ctx, "alice@example.com", tx.Hash)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, row.Status)
}

func TestClaimRentConsumesClaimableOnce(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	oneAndHalf, _ := new(big.Int).SetString("1500000000000000000", 10)
	engine.chain.claimable[1] = oneAndHalf

	entry := entity.NewLedgerEntry("alice@example.com")
	entry.Claimable[1] = decimal.RequireFromString("1.5")
	require.NoError(t, engine.ledger.Overwrite(ctx, entry))

	result, err := engine.submission.ClaimRent(ctx, "alice@example.com", 1)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, result.Tx.Status)
	assert.True(t, result.Amount.Equal(decimal.RequireFromString("1.5")))

	after, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, after.Claimable[1].IsZero())
}

func TestClaimRentRejectsEmptyClaim(t *testing.T) {
	engine := newTestEngine(t)
	engine.provision(t, "alice@example.com")

	_, err := engine.submission.ClaimRent(context.Background(), "alice@example.com", 1)
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindValidation))
}

func TestDepositRentRequiresConfiguredRelayer(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")
	engine.provision(t, "relayer@fractea.app")

	_, err := engine.submission.DepositRent(ctx, "alice@example.com", 1, big.NewInt(1000))
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindValidation))

	tx, err := engine.submission.DepositRent(ctx, "relayer@fractea.app", 1, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, tx.Status)
	assert.Equal(t, entity.KindRentDeposit, tx.Kind)
}

func TestTokenDepositAndWithdraw(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	_, err := engine.submission.DepositTokens(ctx, "alice@example.com", "USDC", decimal.RequireFromString("25.00"))
	require.NoError(t, err)

	tx, err := engine.submission.WithdrawTokens(ctx, "alice@example.com", "USDC", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, tx.Status)

	wallet, err := engine.custody.Lookup(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, wallet.TokenBalances["USDC"].Equal(decimal.RequireFromString("15.00")))
}

func TestTokenWithdrawRejectsOverdraft(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	_, err := engine.submission.WithdrawTokens(ctx, "alice@example.com", "USDC", decimal.RequireFromString("1.00"))
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindInsufficientFunds))

	// Nothing mutated, nothing recorded.
	wallet, err := engine.custody.Lookup(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, wallet.TokenBalances["USDC"].IsZero())
	rows, err := engine.history.ListByOwner(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTokenTransferMovesBalances(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")
	engine.provision(t, "bob@example.com")

	_, err := engine.submission.DepositTokens(ctx, "alice@example.com", "USDC", decimal.RequireFromString("20.00"))
	require.NoError(t, err)

	tx, err := engine.submission.TransferTokens(ctx, "alice@example.com", "bob@example.com", "USDC", decimal.RequireFromString("7.50"))
	require.NoError(t, err)
	assert.Equal(t, entity.KindTokenTransfer, tx.Kind)

	alice, err := engine.custody.Lookup(ctx, "alice@example.com")
	require.NoError(t, err)
	bob, err := engine.custody.Lookup(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, alice.TokenBalances["USDC"].Equal(decimal.RequireFromString("12.50")))
	assert.True(t, bob.TokenBalances["USDC"].Equal(decimal.RequireFromString("7.50")))

	// Both sides carry a history row under the same synthetic hash.
	bobRows, err := engine.history.ListByOwner(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Len(t, bobRows, 1)
	assert.Equal(t, tx.Hash, bobRows[0].Hash)
}

func TestTokenTransferToSelfRejected(t *testing.T) {
	engine := newTestEngine(t)
	engine.provision(t, "alice@example.com")

	_, err := engine.submission.TransferTokens(context.Background(),
		"alice@example.com", "alice@example.com", "USDC", decimal.RequireFromString("1.00"))
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindValidation))
}
