package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

var (
	// ErrInvalidKey is returned when the encryption key is not KeySize bytes long.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")

	errMalformedCiphertext = errors.New("ciphertext record is malformed")
)

// GenerateKey returns a new random encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// sealer encrypts tokens with AES-256-GCM.
// A sealed record is base64(nonce ‖ tag ‖ ciphertext).
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKey, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &sealer{aead: gcm}, nil
}

// seal encrypts plaintext under a fresh random nonce.
func (s *sealer) seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal returns ciphertext ‖ tag; the stored layout puts the tag first.
	sealed := s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - s.aead.Overhead()

	packed := make([]byte, 0, len(nonce)+len(sealed))
	packed = append(packed, nonce...)
	packed = append(packed, sealed[split:]...)
	packed = append(packed, sealed[:split]...)

	return base64.StdEncoding.EncodeToString(packed), nil
}

// open verifies and decrypts a record produced by seal.
func (s *sealer) open(record string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(record)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errMalformedCiphertext, err)
	}

	nonceSize, tagSize := s.aead.NonceSize(), s.aead.Overhead()
	if len(raw) < nonceSize+tagSize {
		return "", fmt.Errorf("%w: too short", errMalformedCiphertext)
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ciphertext := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plaintext), nil
}
