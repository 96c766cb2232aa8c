// Package secret seals small values (API keys) at rest with AES-256-GCM.
// The encryption key is derived with HKDF-SHA256 from a random per-user
// master key kept in a 0600 file next to the database.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	masterKeySize = 32
	hkdfInfo      = "whisperclip credentials v1"
	sealedPrefix  = "v1:"
)

// ErrMalformed is returned by Open for values that were not produced by Seal.
var ErrMalformed = errors.New("secret: malformed sealed value")

// Sealer encrypts and decrypts values with one derived key.
type Sealer struct {
	key []byte
}

// New derives the sealing key from master.
func New(master []byte) (*Sealer, error) {
	if len(master) < masterKeySize {
		return nil, fmt.Errorf("secret: master key must be at least %d bytes, got %d", masterKeySize, len(master))
	}
	key, err := deriveKey(master)
	if err != nil {
		return nil, err
	}
	return &Sealer{key: key}, nil
}

// LoadOrCreate reads the master key at path, creating a random one (mode
// 0600) on first use.
func LoadOrCreate(path string) (*Sealer, error) {
	master, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		master = make([]byte, masterKeySize)
		if _, err := io.ReadFull(rand.Reader, master); err != nil {
			return nil, fmt.Errorf("secret: generate master key: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("secret: create key dir: %w", err)
		}
		if err := os.WriteFile(path, master, 0600); err != nil {
			return nil, fmt.Errorf("secret: write master key: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("secret: read master key: %w", err)
	}
	return New(master)
}

func deriveKey(master []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("secret: HKDF: %w", err)
	}
	return key, nil
}

func (s *Sealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("secret: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: new GCM: %w", err)
	}
	return aead, nil
}

// Seal encrypts plaintext and returns "v1:" + base64(iv || ciphertext || tag).
func (s *Sealer) Seal(plaintext string) (string, error) {
	aead, err := s.aead()
	if err != nil {
		return "", err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("secret: random IV: %w", err)
	}
	sealed := aead.Seal(iv, iv, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, sealedPrefix)
	if !ok {
		return "", ErrMalformed
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	aead, err := s.aead()
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformed
	}
	iv, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secret: decrypt: %w", err)
	}
	return string(plaintext), nil
}
