// Package tokencipher encrypts OAuth credentials for storage.
//
// Blobs are hex(iv):hex(authTag):hex(ciphertext) using AES-256-GCM with a
// key derived from the server-wide secret via SHA-256. Values that do not
// match the three-part shape are treated as legacy plaintext and returned
// unchanged by Decrypt.
package tokencipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"auth-gateway/internal/logger"
)

const (
	nonceSize = 12 // 96-bit GCM nonce
	sep       = ":"
)

var ErrMissingSecret = errors.New("tokencipher: encryption secret is not configured")

// deriveKey turns an arbitrary-length passphrase into a 32-byte AES key.
func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func newGCM(secret string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("tokencipher: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("tokencipher: cipher.NewGCM: %w", err)
	}
	return aead, nil
}

// Encrypt encrypts token under secret. An empty token passes through as
// empty: the cipher never encrypts an absent value.
func Encrypt(token, secret string) (string, error) {
	if token == "" {
		return "", nil
	}
	if secret == "" {
		return "", ErrMissingSecret
	}

	aead, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("tokencipher: nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(token), nil)

	// GCM appends the 16-byte tag to the ciphertext; the stored format
	// keeps iv, tag and ciphertext as separate hex parts.
	tagStart := len(sealed) - aead.Overhead()
	ct, tag := sealed[:tagStart], sealed[tagStart:]

	return hex.EncodeToString(nonce) + sep + hex.EncodeToString(tag) + sep + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. A value that is not in the three-part blob
// format is returned unchanged (legacy plaintext, warned about); a
// well-formed blob that fails hex decoding or tag verification is an error.
func Decrypt(blob, secret string) (string, error) {
	if blob == "" {
		return "", nil
	}

	parts := strings.Split(blob, sep)
	if len(parts) != 3 {
		logger.Warn("stored token is not encrypted, returning as-is", map[string]any{
			"parts": len(parts),
		})
		return blob, nil
	}

	if secret == "" {
		return "", ErrMissingSecret
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("tokencipher: decode iv: %w", err)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("tokencipher: iv must be %d bytes, got %d", nonceSize, len(nonce))
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("tokencipher: decode auth tag: %w", err)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("tokencipher: decode ciphertext: %w", err)
	}

	aead, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	pt, err := aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("tokencipher: auth/decrypt: %w", err)
	}
	return string(pt), nil
}
