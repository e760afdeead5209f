package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fractea_engine/internal/entity"
)

func TestProvisionCreatesWalletWithDefaults(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	wallet, err := engine.custody.Provision(ctx, "alice@example.com", "alice@example.com")
	require.NoError(t, err)

	assert.True(t, common.IsHexAddress(wallet.Address))
	assert.NotEmpty(t, wallet.EncryptedKey)
	assert.True(t, wallet.TokenBalances["USDC"].IsZero())
	assert.True(t, wallet.TokenBalances["MNT"].IsZero())

	// A fresh ledger entry rides along with the wallet.
	entry, err := engine.ledger.Get(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, entry.Balances)
}

func TestProvisionIsIdempotent(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.custody.Provision(ctx, "alice@example.com", "alice@example.com")
	require.NoError(t, err)
	second, err := engine.custody.Provision(ctx, "alice@example.com", "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, first.EncryptedKey, second.EncryptedKey)
}

func TestLookupUnknownOwner(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.custody.Lookup(context.Background(), "nobody@example.com")
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindUnknownOwner))
}

func TestRevealRoundTripsKeyMaterial(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	wallet, err := engine.custody.Provision(ctx, "alice@example.com", "alice@example.com")
	require.NoError(t, err)

	material, err := engine.custody.Reveal(wallet)
	require.NoError(t, err)
	require.NoError(t, engine.custody.VerifyIntegrity(wallet, material))
}

func TestRevealFailureIsIntegrityError(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	wallet, err := engine.custody.Provision(ctx, "alice@example.com", "alice@example.com")
	require.NoError(t, err)

	engine.cipher.failOpen = true
	_, err = engine.custody.Reveal(wallet)
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindIntegrity))
}

func TestVerifyIntegrityDetectsAddressMismatch(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	alice, err := engine.custody.Provision(ctx, "alice@example.com", "alice@example.com")
	require.NoError(t, err)
	bob, err := engine.custody.Provision(ctx, "bob@example.com", "bob@example.com")
	require.NoError(t, err)

	// Bob's key material against Alice's recorded address.
	bobMaterial, err := engine.custody.Reveal(bob)
	require.NoError(t, err)

	err = engine.custody.VerifyIntegrity(alice, bobMaterial)
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindIntegrity))
}

func TestProvisionRejectsEmptyOwner(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.custody.Provision(context.Background(), "", "")
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindValidation))
}
