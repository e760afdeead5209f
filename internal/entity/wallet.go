package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustodialWallet is a key pair managed on the owner's behalf by the platform,
// together with the cached token balances shown to the owner.
type CustodialWallet struct {
	OwnerID       string                     `json:"ownerId"`
	Email         string                     `json:"email"`
	Address       string                     `json:"address"`
	EncryptedKey  []byte                     `json:"encryptedKey"`
	TokenBalances map[string]decimal.Decimal `json:"tokenBalances"`
	CreatedAt     time.Time                  `json:"createdAt"`
}

// PublicWallet is the owner-facing view of a wallet. It never carries key material.
type PublicWallet struct {
	OwnerID       string                     `json:"ownerId"`
	Email         string                     `json:"email"`
	Address       string                     `json:"address"`
	TokenBalances map[string]decimal.Decimal `json:"tokenBalances"`
	CreatedAt     time.Time                  `json:"createdAt"`
}

// Public returns the wallet view that may cross the API boundary.
func (w *CustodialWallet) Public() PublicWallet {
	balances := make(map[string]decimal.Decimal, len(w.TokenBalances))
	for symbol, amount := range w.TokenBalances {
		balances[symbol] = amount
	}
	return PublicWallet{
		OwnerID:       w.OwnerID,
		Email:         w.Email,
		Address:       w.Address,
		TokenBalances: balances,
		CreatedAt:     w.CreatedAt,
	}
}

// Clone returns a deep copy so callers can mutate without racing the cache.
func (w *CustodialWallet) Clone() *CustodialWallet {
	cp := *w
	cp.EncryptedKey = append([]byte(nil), w.EncryptedKey...)
	cp.TokenBalances = make(map[string]decimal.Decimal, len(w.TokenBalances))
	for symbol, amount := range w.TokenBalances {
		cp.TokenBalances[symbol] = amount
	}
	return &cp
}
