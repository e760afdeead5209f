package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusPending.CanTransitionTo(StatusFailed))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusFailed))
	assert.False(t, StatusFailed.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusPending))

	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestClassifyBroadcastError(t *testing.T) {
	cases := []struct {
		text string
		kind ErrorKind
	}{
		{"insufficient funds for gas * price + value", KindInsufficientFunds},
		{"insufficient balance for transfer", KindInsufficientFunds},
		{"intrinsic gas too low", KindInsufficientResource},
		{"gas required exceeds allowance", KindInsufficientResource},
		{"transaction underpriced", KindInsufficientResource},
		{"connection refused", KindNetwork},
	}
	for _, tc := range cases {
		err := ClassifyBroadcastError(errors.New(tc.text))
		assert.Equal(t, tc.kind, err.Kind, tc.text)
	}
	assert.Nil(t, ClassifyBroadcastError(nil))
}

func TestLedgerDeltaInverse(t *testing.T) {
	delta := LedgerDelta{Balances: map[int64]int64{1: 5, 2: -3}}
	inv := delta.Inverse()
	assert.Equal(t, int64(-5), inv.Balances[1])
	assert.Equal(t, int64(3), inv.Balances[2])

	assert.True(t, LedgerDelta{}.IsZero())
	assert.True(t, LedgerDelta{Balances: map[int64]int64{1: 0}}.IsZero())
	assert.False(t, delta.IsZero())
}

func TestPublicWalletNeverCarriesKeyMaterial(t *testing.T) {
	wallet := &CustodialWallet{
		OwnerID:      "alice@example.com",
		Address:      "0x00000000000000000000000000000000000000aa",
		EncryptedKey: []byte("sealed"),
	}
	public := wallet.Public()
	assert.Equal(t, wallet.Address, public.Address)
	// PublicWallet has no key field at all; this guards the Clone path too.
	clone := wallet.Clone()
	clone.EncryptedKey[0] = 'X'
	assert.Equal(t, byte('s'), wallet.EncryptedKey[0])
}
