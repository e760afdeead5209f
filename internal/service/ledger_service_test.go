package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fractea_engine/internal/entity"
)

func TestApplyOptimisticAccumulates(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.ledger.ApplyOptimistic(ctx, "alice@example.com",
		entity.LedgerDelta{Balances: map[int64]int64{1: 5}}))
	require.NoError(t, engine.ledger.ApplyOptimistic(ctx, "alice@example.com",
		entity.LedgerDelta{Balances: map[int64]int64{1: 3, 2: 1}}))

	entry, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(8), entry.Balances[1])
	assert.Equal(t, int64(1), entry.Balances[2])
}

func TestApplyOptimisticRejectsNegativeBeforeMutation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.ledger.ApplyOptimistic(ctx, "alice@example.com",
		entity.LedgerDelta{Balances: map[int64]int64{1: 5}}))

	// One leg would go negative; neither leg may land.
	err := engine.ledger.ApplyOptimistic(ctx, "alice@example.com",
		entity.LedgerDelta{Balances: map[int64]int64{1: 2, 2: -1}})
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindInsufficientFunds))

	entry, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(5), entry.Balances[1])
	assert.Equal(t, int64(0), entry.Balances[2])
}

func TestRollbackUndoesDelta(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	delta := entity.LedgerDelta{Balances: map[int64]int64{1: 5}}
	require.NoError(t, engine.ledger.ApplyOptimistic(ctx, "alice@example.com", delta))
	require.NoError(t, engine.ledger.Rollback(ctx, "alice@example.com", delta))

	entry, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.Balances[1])
}

func TestRollbackClampsAtZero(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	// Rolling back a delta that was never applied must not go negative.
	require.NoError(t, engine.ledger.Rollback(ctx, "alice@example.com",
		entity.LedgerDelta{Balances: map[int64]int64{1: 5}}))

	entry, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.Balances[1])
}

func TestOverwriteReplacesCachedEntry(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.ledger.ApplyOptimistic(ctx, "alice@example.com",
		entity.LedgerDelta{Balances: map[int64]int64{1: 5}}))

	authoritative := entity.NewLedgerEntry("alice@example.com")
	authoritative.Balances[1] = 2
	authoritative.Claimable[1] = decimal.RequireFromString("0.75")
	require.NoError(t, engine.ledger.Overwrite(ctx, authoritative))

	entry, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Balances[1])
	assert.True(t, entry.Claimable[1].Equal(decimal.RequireFromString("0.75")))
}

func TestResetClaimableConsumesExactlyOnce(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	entry := entity.NewLedgerEntry("alice@example.com")
	entry.Claimable[1] = decimal.RequireFromString("1.25")
	require.NoError(t, engine.ledger.Overwrite(ctx, entry))

	first, err := engine.ledger.ResetClaimable(ctx, "alice@example.com", 1)
	require.NoError(t, err)
	assert.True(t, first.Equal(decimal.RequireFromString("1.25")))

	second, err := engine.ledger.ResetClaimable(ctx, "alice@example.com", 1)
	require.NoError(t, err)
	assert.True(t, second.IsZero())
}

func TestGetReconstructsFromDurableStore(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.ledger.ApplyOptimistic(ctx, "alice@example.com",
		entity.LedgerDelta{Balances: map[int64]int64{1: 4}}))

	// A second service over the same repository sees the durable copy.
	rebuilt := NewLedgerService(engine.ledgerRepo, engine.cfg.Cache, zap.NewNop())
	entry, err := rebuilt.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Balances[1])
}
