package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry mirrors the owner's on-chain position: fraction counts per property
// and accrued, not-yet-withdrawn rent. Values are never negative.
type LedgerEntry struct {
	OwnerID   string                      `json:"ownerId"`
	Balances  map[int64]int64             `json:"balances"`
	Claimable map[int64]decimal.Decimal   `json:"claimable"`
	UpdatedAt time.Time                   `json:"updatedAt"`
}

// NewLedgerEntry returns an empty entry for an owner.
func NewLedgerEntry(ownerID string) *LedgerEntry {
	return &LedgerEntry{
		OwnerID:   ownerID,
		Balances:  make(map[int64]int64),
		Claimable: make(map[int64]decimal.Decimal),
		UpdatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy, so optimistic mutations stay all-or-nothing.
func (e *LedgerEntry) Clone() *LedgerEntry {
	cp := &LedgerEntry{
		OwnerID:   e.OwnerID,
		Balances:  make(map[int64]int64, len(e.Balances)),
		Claimable: make(map[int64]decimal.Decimal, len(e.Claimable)),
		UpdatedAt: e.UpdatedAt,
	}
	for assetID, count := range e.Balances {
		cp.Balances[assetID] = count
	}
	for assetID, amount := range e.Claimable {
		cp.Claimable[assetID] = amount
	}
	return cp
}

// LedgerDelta is a signed change in fraction counts, applied atomically by the
// ledger cache after a pipeline operation completes.
type LedgerDelta struct {
	Balances map[int64]int64 `json:"balances"`
}

// Inverse returns the delta that undoes this one.
func (d LedgerDelta) Inverse() LedgerDelta {
	inv := LedgerDelta{Balances: make(map[int64]int64, len(d.Balances))}
	for assetID, count := range d.Balances {
		inv.Balances[assetID] = -count
	}
	return inv
}

// IsZero reports whether the delta changes nothing.
func (d LedgerDelta) IsZero() bool {
	for _, count := range d.Balances {
		if count != 0 {
			return false
		}
	}
	return true
}
