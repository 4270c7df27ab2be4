// Package secrets implements the keyed encryption service that protects host
// credentials at rest. The cipher is injected into the persistence layer
// rather than held as process-global state, and supports an explicit
// initialize/rotate lifecycle: after Rotate the previous key remains usable
// for decryption until the store re-encrypts its rows.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	kdfRounds = 10000
)

// ErrNotInitialized is returned when the cipher is used before Initialize.
var ErrNotInitialized = errors.New("secrets: cipher not initialized")

// ErrDecryptFailed is returned when a ciphertext cannot be opened with the
// current or previous key.
var ErrDecryptFailed = errors.New("secrets: decryption failed")

// Cipher encrypts and decrypts short credential strings with AES-256-GCM.
// Keys are derived from a passphrase with PBKDF2 using a per-message salt.
type Cipher struct {
	mu         sync.RWMutex
	passphrase []byte
	previous   []byte
}

// New returns an uninitialized cipher. Initialize must be called before use.
func New() *Cipher {
	return &Cipher{}
}

// Initialize sets the active passphrase. Calling Initialize on an already
// initialized cipher replaces the key without keeping the old one; use
// Rotate for key rotation.
func (c *Cipher) Initialize(passphrase string) error {
	if passphrase == "" {
		return errors.New("secrets: passphrase must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passphrase = []byte(passphrase)
	c.previous = nil
	return nil
}

// Rotate swaps in a new passphrase, keeping the old one available for
// decryption so existing rows can be re-encrypted by the store.
func (c *Cipher) Rotate(passphrase string) error {
	if passphrase == "" {
		return errors.New("secrets: passphrase must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.passphrase == nil {
		return ErrNotInitialized
	}
	c.previous = c.passphrase
	c.passphrase = []byte(passphrase)
	return nil
}

// Encrypt seals plaintext with the current key. The output embeds the salt
// and nonce and is base64 encoded for storage in a text column.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	c.mu.RLock()
	passphrase := c.passphrase
	c.mu.RUnlock()
	if passphrase == nil {
		return "", ErrNotInitialized
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("secrets: generating salt: %w", err)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, saltSize+nonceSize+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a ciphertext produced by Encrypt, trying the current key
// first and falling back to the previous key after a rotation.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	c.mu.RLock()
	passphrase := c.passphrase
	previous := c.previous
	c.mu.RUnlock()
	if passphrase == nil {
		return "", ErrNotInitialized
	}

	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("secrets: malformed ciphertext: %w", err)
	}
	if len(blob) < saltSize+nonceSize {
		return "", ErrDecryptFailed
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	sealed := blob[saltSize+nonceSize:]

	for _, key := range [][]byte{passphrase, previous} {
		if key == nil {
			continue
		}
		aead, err := newAEAD(key, salt)
		if err != nil {
			return "", err
		}
		if plain, err := aead.Open(nil, nonce, sealed, nil); err == nil {
			return string(plain), nil
		}
	}

	return "", ErrDecryptFailed
}

func newAEAD(passphrase, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(passphrase, salt, kdfRounds, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating AEAD: %w", err)
	}
	return aead, nil
}
