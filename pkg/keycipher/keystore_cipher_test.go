package keycipher

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeystoreCipherRoundTrip(t *testing.T) {
	cipher, err := NewKeystoreCipher("platform-secret", WithLightScrypt())
	require.NoError(t, err)

	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	material := crypto.FromECDSA(privateKey)

	sealed, err := cipher.Seal(material)
	require.NoError(t, err)
	assert.NotEqual(t, material, sealed)

	opened, err := cipher.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, material, opened)
}

func TestKeystoreCipherWrongSecret(t *testing.T) {
	cipher, err := NewKeystoreCipher("right-secret", WithLightScrypt())
	require.NoError(t, err)

	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	sealed, err := cipher.Seal(crypto.FromECDSA(privateKey))
	require.NoError(t, err)

	other, err := NewKeystoreCipher("wrong-secret", WithLightScrypt())
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.Error(t, err)
}

func TestKeystoreCipherRejectsEmptySecret(t *testing.T) {
	_, err := NewKeystoreCipher("")
	assert.Error(t, err)
}

func TestKeystoreCipherRejectsGarbageMaterial(t *testing.T) {
	cipher, err := NewKeystoreCipher("platform-secret", WithLightScrypt())
	require.NoError(t, err)

	_, err = cipher.Seal([]byte("not a key"))
	assert.Error(t, err)
}
