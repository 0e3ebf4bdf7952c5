package encryptor

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = chacha20poly1305.NonceSizeX
	keySize   = chacha20poly1305.KeySize
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
)

// ErrUnseal is returned when a sealed blob cannot be opened, either because
// the password is wrong or the blob was tampered with or bound to another id.
var ErrUnseal = errors.New("unable to unseal staged object")

// Sealer protects staged objects at rest. The binding is authenticated but not
// encrypted; the staging area passes the object id so that a sealed blob cannot
// be served under a different id.
type Sealer interface {
	Seal(plaintext []byte, password string, binding []byte) ([]byte, error)
	Open(sealed []byte, password string, binding []byte) ([]byte, error)
}

// xChaChaSealer uses XChaCha20-Poly1305 with an scrypt-derived key.
// Layout: salt(16) | nonce(24) | ciphertext+tag.
type xChaChaSealer struct{}

func NewSealer() Sealer {
	return xChaChaSealer{}
}

func (xChaChaSealer) deriveKey(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
}

func (s xChaChaSealer) Seal(plaintext []byte, password string, binding []byte) ([]byte, error) {
	if password == "" {
		return nil, errors.New("empty password")
	}
	out := make([]byte, saltSize+nonceSize, saltSize+nonceSize+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(out[:saltSize+nonceSize]); err != nil {
		return nil, fmt.Errorf("failed to generate salt and nonce: %w", err)
	}

	key, err := s.deriveKey(password, out[:saltSize])
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD cipher: %w", err)
	}

	return aead.Seal(out, out[saltSize:saltSize+nonceSize], plaintext, binding), nil
}

func (s xChaChaSealer) Open(sealed []byte, password string, binding []byte) ([]byte, error) {
	if len(sealed) < saltSize+nonceSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: blob too short", ErrUnseal)
	}

	key, err := s.deriveKey(password, sealed[:saltSize])
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, sealed[saltSize:saltSize+nonceSize], sealed[saltSize+nonceSize:], binding)
	if err != nil {
		return nil, ErrUnseal
	}
	return plaintext, nil
}
