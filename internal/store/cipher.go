package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdf info string binds derived keys to this use so the same secret used
// elsewhere yields a different key.
const cipherInfo = "chamber-agent state encryption"

var errCiphertextTooShort = errors.New("ciphertext shorter than nonce")

// stateCipher seals/opens the state file with AES-GCM using a key derived
// from the configured secret.
type stateCipher struct {
	aead cipher.AEAD
}

func newStateCipher(secret string) (*stateCipher, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(cipherInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &stateCipher{aead: aead}, nil
}

// seal returns nonce||ciphertext.
func (c *stateCipher) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *stateCipher) open(sealed []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, errCiphertextTooShort
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, ciphertext, nil)
}
