package keycipher

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// KeystoreCipher seals private key material into the geth keystore envelope
// (scrypt + AES-128-CTR) under a platform secret. Sealed blobs are what the
// wallet store persists; raw material exists only transiently in memory.
type KeystoreCipher struct {
	secret  string
	scryptN int
	scryptP int
}

// Option tunes the cipher.
type Option func(*KeystoreCipher)

// WithLightScrypt lowers the scrypt cost to the keystore's light profile.
// Meant for tests, where the standard profile takes seconds per call.
func WithLightScrypt() Option {
	return func(c *KeystoreCipher) {
		c.scryptN = keystore.LightScryptN
		c.scryptP = keystore.LightScryptP
	}
}

// NewKeystoreCipher creates a cipher sealing under the given secret.
func NewKeystoreCipher(secret string, opts ...Option) (*KeystoreCipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("custody secret must not be empty")
	}
	c := &KeystoreCipher{
		secret:  secret,
		scryptN: keystore.StandardScryptN,
		scryptP: keystore.StandardScryptP,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Seal encrypts raw secp256k1 private key material into a keystore JSON blob.
func (c *KeystoreCipher) Seal(material []byte) ([]byte, error) {
	privateKey, err := crypto.ToECDSA(material)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key material: %w", err)
	}
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}
	blob, err := keystore.EncryptKey(key, c.secret, c.scryptN, c.scryptP)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key: %w", err)
	}
	return blob, nil
}

// Open decrypts a sealed blob back into raw private key material.
func (c *KeystoreCipher) Open(sealed []byte) ([]byte, error) {
	key, err := keystore.DecryptKey(sealed, c.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}
	return crypto.FromECDSA(key.PrivateKey), nil
}
