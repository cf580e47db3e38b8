package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func newTestCiphers(t *testing.T) []*AEADCipher {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	x, err := NewXChaCha20Cipher(key)
	if err != nil {
		t.Fatalf("NewXChaCha20Cipher failed: %v", err)
	}
	a, err := NewAESGCMCipher(key)
	if err != nil {
		t.Fatalf("NewAESGCMCipher failed: %v", err)
	}
	return []*AEADCipher{x, a}
}

func TestAEADCipher_RoundTrip(t *testing.T) {
	plaintext := []byte("Hello, World! This is a test of payload encryption.")

	for _, c := range newTestCiphers(t) {
		t.Run(c.Algorithm(), func(t *testing.T) {
			ciphertext, err := c.Encrypt(plaintext)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			if bytes.Contains(ciphertext, plaintext) {
				t.Error("Ciphertext contains plaintext")
			}

			decrypted, err := c.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !bytes.Equal(plaintext, decrypted) {
				t.Error("Decrypted data doesn't match original")
			}
		})
	}
}

func TestAEADCipher_UniqueNonces(t *testing.T) {
	for _, c := range newTestCiphers(t) {
		a, _ := c.Encrypt([]byte("same"))
		b, _ := c.Encrypt([]byte("same"))
		if bytes.Equal(a, b) {
			t.Errorf("%s: identical ciphertexts for repeated plaintext", c.Algorithm())
		}
	}
}

func TestAEADCipher_Tampering(t *testing.T) {
	for _, c := range newTestCiphers(t) {
		t.Run(c.Algorithm(), func(t *testing.T) {
			ciphertext, _ := c.Encrypt([]byte("integrity matters"))
			ciphertext[len(ciphertext)-1] ^= 0x01
			if _, err := c.Decrypt(ciphertext); err == nil {
				t.Error("Expected error for tampered ciphertext")
			}

			if _, err := c.Decrypt([]byte{1, 2, 3}); !errors.Is(err, ErrCiphertextTooShort) {
				t.Errorf("Decrypt(short) error = %v, want ErrCiphertextTooShort", err)
			}
		})
	}
}

func TestAEADCipher_WrongKey(t *testing.T) {
	k1, _ := GenerateKey()
	k2, _ := GenerateKey()
	c1, _ := NewXChaCha20Cipher(k1)
	c2, _ := NewXChaCha20Cipher(k2)

	ciphertext, _ := c1.Encrypt([]byte("secret"))
	if _, err := c2.Decrypt(ciphertext); err == nil {
		t.Error("Expected error decrypting with the wrong key")
	}
}

func TestNewCipher(t *testing.T) {
	key, _ := GenerateKey()

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", AlgorithmXChaCha20, false},
		{"xchacha20", AlgorithmXChaCha20, false},
		{"XChaCha20-Poly1305", AlgorithmXChaCha20, false},
		{"aes-gcm", AlgorithmAESGCM, false},
		{"AES-256-GCM", AlgorithmAESGCM, false},
		{"rot13", "", true},
	}

	for _, tt := range tests {
		c, err := NewCipher(tt.name, key)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewCipher(%q) expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewCipher(%q) error = %v", tt.name, err)
		}
		if c.Algorithm() != tt.want {
			t.Errorf("NewCipher(%q).Algorithm() = %v, want %v", tt.name, c.Algorithm(), tt.want)
		}
	}

	if _, err := NewCipher("", key[:16]); err == nil {
		t.Error("Expected error for short key")
	}
}

func TestParseKey(t *testing.T) {
	key, _ := GenerateKey()
	encoded := hex.EncodeToString(key)

	parsed, err := ParseKey("  " + encoded + "\n")
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if !bytes.Equal(key, parsed) {
		t.Error("Parsed key doesn't match")
	}

	if _, err := ParseKey("zz"); err == nil {
		t.Error("Expected error for non-hex key")
	}
	if _, err := ParseKey(encoded[:32]); err == nil {
		t.Error("Expected error for 128-bit key")
	}
}
