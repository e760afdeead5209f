package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fractea_engine/internal/entity"
)

func TestSyncOverwritesCacheWithChainState(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	// Cache says 10 fractions; the chain says 4 plus some accrued rent.
	require.NoError(t, engine.ledger.ApplyOptimistic(ctx, "alice@example.com",
		entity.LedgerDelta{Balances: map[int64]int64{1: 10}}))
	engine.chain.fractionBalances[1] = big.NewInt(4)
	halfToken, _ := new(big.Int).SetString("500000000000000000", 10)
	engine.chain.claimable[1] = halfToken

	entry, err := engine.recon.Sync(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Balances[1])
	assert.True(t, entry.Claimable[1].Equal(decimal.RequireFromString("0.5")))

	cached, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(4), cached.Balances[1])
}

func TestSyncUpdatesNativeBalance(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	twoTokens, _ := new(big.Int).SetString("2000000000000000000", 10)
	engine.chain.balance = twoTokens

	_, err := engine.recon.Sync(ctx, "alice@example.com")
	require.NoError(t, err)

	wallet, err := engine.custody.Lookup(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, wallet.TokenBalances["MNT"].Equal(decimal.RequireFromString("2")))
}

func TestSyncUnknownOwner(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.recon.Sync(context.Background(), "nobody@example.com")
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindUnknownOwner))
}

func TestSyncClearsStaleAssets(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	engine.provision(t, "alice@example.com")

	// Asset 2 exists only in the cache; the chain reports nothing for it.
	require.NoError(t, engine.ledger.ApplyOptimistic(ctx, "alice@example.com",
		entity.LedgerDelta{Balances: map[int64]int64{2: 3}}))

	entry, err := engine.recon.Sync(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.Balances[2])
}
