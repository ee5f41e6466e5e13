// Package crypto implements the encryption collaborator the core treats
// as an opaque capability: generate/import/export keys, encrypt, decrypt.
// RSA-PKCS1v15 is the only algorithm in the pack with no ecosystem
// counterpart available, so this wraps the standard library's crypto/rsa
// rather than a third-party implementation; every other collaborator in
// this module reaches for a pack dependency instead.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/realzhujunhao/jhchat/internal/errs"
)

// Encryptor is the narrow capability the client consumes. Keys are held
// in memory as *rsa types; only their PEM form crosses the wire, as
// SendPubKey content.
type Encryptor interface {
	GenerateKeyPair(bits int) (*rsa.PublicKey, *rsa.PrivateKey, error)
	ImportPublicKey(pemBytes []byte) (*rsa.PublicKey, error)
	ExportPublicKey(key *rsa.PublicKey) ([]byte, error)
	ImportPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error)
	ExportPrivateKey(key *rsa.PrivateKey) ([]byte, error)
	Encrypt(plaintext []byte, pub *rsa.PublicKey) ([]byte, error)
	Decrypt(ciphertext []byte, priv *rsa.PrivateKey) ([]byte, error)
}

// RSA is the default Encryptor: PKCS1v15 for transport, PKIX/PKCS8 PEM for
// key persistence and exchange.
type RSA struct{}

var _ Encryptor = RSA{}

// GenerateKeyPair produces a fresh keypair of the given modulus length.
func (RSA) GenerateKeyPair(bits int) (*rsa.PublicKey, *rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, errs.Wrap(errs.SourceClient, errs.EncryptKeyGeneration, err)
	}
	return &priv.PublicKey, priv, nil
}

// Encrypt seals plaintext for pub. The core only ever sees the resulting
// ciphertext as opaque Message content.
func (RSA) Encrypt(plaintext []byte, pub *rsa.PublicKey) ([]byte, error) {
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
	if err != nil {
		return nil, errs.Wrap(errs.SourceClient, errs.Encryption, err)
	}
	return ciphertext, nil
}

// Decrypt opens ciphertext with priv.
func (RSA) Decrypt(ciphertext []byte, priv *rsa.PrivateKey) ([]byte, error) {
	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ciphertext)
	if err != nil {
		return nil, errs.Wrap(errs.SourceClient, errs.Decryption, err)
	}
	return plaintext, nil
}

// ExportPublicKey PEM-encodes key for transmission as SendPubKey content
// or for writing to SelfKeyDir.
func (RSA) ExportPublicKey(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, errs.Wrap(errs.SourceClient, errs.EncryptKeyPersistence, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ImportPublicKey decodes a PEM blob received over the wire or read from
// one of the client's key directories.
func (RSA) ImportPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errs.Client(errs.EncryptKeyPersistence, "no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errs.Wrap(errs.SourceClient, errs.EncryptKeyPersistence, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errs.Client(errs.EncryptKeyPersistence, "PEM block is not an RSA public key")
	}
	return rsaPub, nil
}

// ExportPrivateKey PEM-encodes key for writing to SelfKeyDir. Never sent
// over the wire.
func (RSA) ExportPrivateKey(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, errs.Wrap(errs.SourceClient, errs.EncryptKeyPersistence, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ImportPrivateKey decodes a PEM blob read from SelfKeyDir.
func (RSA) ImportPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errs.Client(errs.EncryptKeyPersistence, "no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errs.Wrap(errs.SourceClient, errs.EncryptKeyPersistence, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errs.Client(errs.EncryptKeyPersistence, "PEM block is not an RSA private key")
	}
	return rsaKey, nil
}

// PersistPublicKey and PersistPrivateKey write a key's PEM form to path,
// and ReadPublicKey / ReadPrivateKey read it back. These are the sync
// file primitives the client's key-directory bookkeeping builds on.

func PersistPublicKey(enc Encryptor, path string, key *rsa.PublicKey) error {
	bytes, err := enc.ExportPublicKey(key)
	if err != nil {
		return err
	}
	return writeKeyFile(path, bytes)
}

func PersistPrivateKey(enc Encryptor, path string, key *rsa.PrivateKey) error {
	bytes, err := enc.ExportPrivateKey(key)
	if err != nil {
		return err
	}
	return writeKeyFile(path, bytes)
}

func ReadPublicKey(enc Encryptor, path string) (*rsa.PublicKey, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.SourceExternal, errs.IO, err)
	}
	return enc.ImportPublicKey(bytes)
}

func ReadPrivateKey(enc Encryptor, path string) (*rsa.PrivateKey, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.SourceExternal, errs.IO, err)
	}
	return enc.ImportPrivateKey(bytes)
}

func writeKeyFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errs.Wrap(errs.SourceExternal, errs.IO, err)
	}
	return nil
}
