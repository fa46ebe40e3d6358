package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize    = 32 // AES-256
	saltSize   = 32
	pbkdf2Iter = 100000

	// SealedPrefix marks a config value produced by Seal
	SealedPrefix = "enc:"
)

// SecretBox encrypts config secrets (API key, cookie) at rest. The key is
// derived from a per-installation salt file and the machine identity, so a
// sealed value only opens on the machine that produced it.
type SecretBox struct {
	keyPath string
}

// NewSecretBox creates a secret box keeping its salt in dataDir/.key
func NewSecretBox(dataDir string) *SecretBox {
	return &SecretBox{
		keyPath: filepath.Join(dataDir, ".key"),
	}
}

// IsSealed reports whether value carries the sealed prefix
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Seal encrypts a secret and returns it as "enc:<base64>"
func (b *SecretBox) Seal(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	key, err := b.getOrCreateKey()
	if err != nil {
		return "", fmt.Errorf("failed to get encryption key: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(secret), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open returns the plain secret. Values without the sealed prefix are
// returned unchanged so plain-text configs keep working.
func (b *SecretBox) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}

	key, err := b.loadKey()
	if err != nil {
		return "", fmt.Errorf("failed to load encryption key: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func (b *SecretBox) getOrCreateKey() ([]byte, error) {
	if key, err := b.loadKey(); err == nil {
		return key, nil
	}
	return b.generateAndSaveKey()
}

// loadKey reads the salt and derives the key from it
func (b *SecretBox) loadKey() ([]byte, error) {
	data, err := os.ReadFile(b.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(salt) < saltSize {
		return nil, fmt.Errorf("invalid key file format")
	}

	return deriveKey(salt[:saltSize]), nil
}

func (b *SecretBox) generateAndSaveKey() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(b.keyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(b.keyPath, []byte(base64.StdEncoding.EncodeToString(salt)), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	return deriveKey(salt), nil
}

func deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(machineID()), salt, pbkdf2Iter, keySize, sha256.New)
}

// machineID returns hostname:username
func machineID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "default-machine"
	}

	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}
	if username == "" {
		username = "default-user"
	}

	return hostname + ":" + username
}

// DeleteKey removes the salt file; sealed values become unreadable
func (b *SecretBox) DeleteKey() error {
	if err := os.Remove(b.keyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}
