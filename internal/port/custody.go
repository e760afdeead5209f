package port

import (
	"context"

	"fractea_engine/internal/entity"
)

// KeyCipher seals key material at rest and opens it for signing. The pipeline
// never sees how; a real envelope-encryption or external KMS implementation
// can be substituted without touching any caller.
type KeyCipher interface {
	// Seal encrypts raw key material. open(seal(k)) == k must hold for all k.
	Seal(material []byte) ([]byte, error)

	// Open decrypts previously sealed material.
	Open(ciphertext []byte) ([]byte, error)
}

// CustodyService provisions and guards per-owner key material.
type CustodyService interface {
	// Provision creates the owner's wallet, or returns the existing one.
	// Idempotent per owner.
	Provision(ctx context.Context, ownerID, email string) (*entity.CustodialWallet, error)

	// Lookup returns the owner's wallet or an UNKNOWN_OWNER error.
	Lookup(ctx context.Context, ownerID string) (*entity.CustodialWallet, error)

	// Reveal decrypts the wallet's key material for signing use only. The
	// result must never be logged or returned across a trust boundary, and
	// the caller must verify it against the recorded address before signing.
	Reveal(wallet *entity.CustodialWallet) ([]byte, error)

	// VerifyIntegrity checks that the revealed material derives the wallet's
	// recorded address. A mismatch is a fatal INTEGRITY error.
	VerifyIntegrity(wallet *entity.CustodialWallet, material []byte) error

	// UpdateTokenBalances persists a mutated token balance map for the owner.
	UpdateTokenBalances(ctx context.Context, wallet *entity.CustodialWallet) error
}
