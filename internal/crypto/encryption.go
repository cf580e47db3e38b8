package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encryption algorithm names, recorded in audit events
const (
	AlgorithmXChaCha20 = "XChaCha20-Poly1305"
	AlgorithmAESGCM    = "AES-256-GCM"
)

// KeySize is the key length for both AEADs
const KeySize = 32

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// AEADCipher seals payloads with a fixed key. The random nonce is
// prepended to the ciphertext.
type AEADCipher struct {
	aead      cipher.AEAD
	algorithm string
}

// NewXChaCha20Cipher creates an XChaCha20-Poly1305 cipher
func NewXChaCha20Cipher(key []byte) (*AEADCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &AEADCipher{aead: aead, algorithm: AlgorithmXChaCha20}, nil
}

// NewAESGCMCipher creates an AES-256-GCM cipher
func NewAESGCMCipher(key []byte) (*AEADCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AEADCipher{aead: gcm, algorithm: AlgorithmAESGCM}, nil
}

// NewCipher picks the implementation by algorithm name
func NewCipher(algorithm string, key []byte) (*AEADCipher, error) {
	switch strings.ToLower(algorithm) {
	case "", "xchacha20", strings.ToLower(AlgorithmXChaCha20):
		return NewXChaCha20Cipher(key)
	case "aes-gcm", strings.ToLower(AlgorithmAESGCM):
		return NewAESGCMCipher(key)
	default:
		return nil, fmt.Errorf("unsupported encryption algorithm: %s", algorithm)
	}
}

func (c *AEADCipher) Algorithm() string { return c.algorithm }

// Encrypt returns nonce || ciphertext
func (c *AEADCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt
func (c *AEADCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns+c.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// ParseKey decodes a hex-encoded 256-bit key
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), KeySize)
	}
	return key, nil
}

// GenerateKey returns a random 256-bit key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}
