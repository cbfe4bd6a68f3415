// Package flowcrypto implements the hybrid encryption scheme used by the
// WhatsApp Flows data exchange: the platform wraps a per-request AES key
// with the business's RSA public key, and the Flow body travels as
// AES-256-GCM ciphertext with the 16-byte tag appended. Responses are
// encrypted under the same session key with the request nonce inverted.
package flowcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

const (
	// NonceSize is the GCM nonce length the platform uses.
	NonceSize = 12
	// TagSize is the GCM authentication tag length appended to ciphertexts.
	TagSize = 16
)

// ErrKeyDecryption means the RSA-wrapped session key could not be recovered
// with our private key. Foreign or malformed requests land here; retrying
// cannot help.
var ErrKeyDecryption = errors.New("flowcrypto: session key decryption failed")

// ErrIntegrity means GCM tag verification failed: the body was tampered
// with, or was encrypted under a different key than the one recovered.
var ErrIntegrity = errors.New("flowcrypto: body integrity check failed")

// LoadPrivateKey reads a PEM-encoded RSA private key (PKCS#1 or PKCS#8)
// from path.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey parses a PEM-encoded RSA private key.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key data")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want *rsa.PrivateKey", parsed)
	}
	return key, nil
}

// DecryptSessionKey unwraps the per-request AES session key using
// RSA-OAEP with SHA-256. The returned key must not outlive the request.
func DecryptSessionKey(encryptedKey []byte, priv *rsa.PrivateKey) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDecryption, err)
	}
	return key, nil
}

// DecryptBody opens an AES-GCM ciphertext whose last TagSize bytes are the
// authentication tag. It fails closed: on tag mismatch no plaintext is
// returned.
func DecryptBody(ciphertextWithTag, nonce, key []byte) ([]byte, error) {
	if len(ciphertextWithTag) < TagSize {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrIntegrity)
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", ErrIntegrity, len(nonce), NonceSize)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertextWithTag, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return plaintext, nil
}

// EncryptBody seals plaintext with AES-GCM, returning ciphertext with the
// tag appended — the mirror of the inbound format.
func EncryptBody(plaintext, key, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("encrypt body: nonce is %d bytes, want %d", len(nonce), NonceSize)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// InvertNonce derives the response nonce from the request nonce by
// flipping every bit. The protocol requires distinct nonces per direction
// under the same session key; reusing the request nonce is a violation.
func InvertNonce(nonce []byte) []byte {
	inverted := make([]byte, len(nonce))
	for i, b := range nonce {
		inverted[i] = b ^ 0xFF
	}
	return inverted
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}
