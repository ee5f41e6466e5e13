package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc := RSA{}
	pub, priv, err := enc.GenerateKeyPair(2048)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("hello bob"), pub)
	require.NoError(t, err)

	plaintext, err := enc.Decrypt(ciphertext, priv)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", string(plaintext))
}

func TestExportImportPublicKeyRoundTrip(t *testing.T) {
	enc := RSA{}
	pub, _, err := enc.GenerateKeyPair(2048)
	require.NoError(t, err)

	pemBytes, err := enc.ExportPublicKey(pub)
	require.NoError(t, err)

	imported, err := enc.ImportPublicKey(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, pub.N, imported.N)
	assert.Equal(t, pub.E, imported.E)
}

func TestImportPublicKeyRejectsGarbage(t *testing.T) {
	enc := RSA{}
	_, err := enc.ImportPublicKey([]byte("not a pem"))
	require.Error(t, err)
}

func TestPersistAndReadPrivateKey(t *testing.T) {
	enc := RSA{}
	_, priv, err := enc.GenerateKeyPair(2048)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "priv.pem")
	require.NoError(t, PersistPrivateKey(enc, path, priv))

	got, err := ReadPrivateKey(enc, path)
	require.NoError(t, err)
	assert.Equal(t, priv.D, got.D)
}
