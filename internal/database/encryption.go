package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"campusguard/internal/constants"
	"campusguard/internal/models"

	"golang.org/x/crypto/pbkdf2"
)

const (
	nonceSize       = 12
	keySize         = 32
	pbkdf2Iteration = 100000
)

// encryptor applies the at-rest protection tier a classification assigned.
// STANDARD content is stored as-is; ENHANCED and RECORD content is sealed
// with AES-GCM under a key derived from the deployment secret.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor() (*encryptor, error) {
	secret := os.Getenv("CAMPUSGUARD_ENCRYPTION_SECRET")
	if secret == "" {
		// Dev mode: all tiers fall back to plaintext storage.
		return &encryptor{gcm: nil}, nil
	}

	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), pbkdf2Iteration, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

// EncryptForLevel seals plaintext according to the encryption level.
func (e *encryptor) EncryptForLevel(plaintext string, level models.EncryptionLevel) (string, error) {
	if level == models.EncryptionStandard {
		return plaintext, nil
	}
	return e.encrypt(plaintext)
}

// DecryptForLevel reverses EncryptForLevel for the same level.
func (e *encryptor) DecryptForLevel(stored string, level models.EncryptionLevel) (string, error) {
	if level == models.EncryptionStandard {
		return stored, nil
	}
	return e.decrypt(stored)
}

func (e *encryptor) encrypt(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	result := append(nonce, ciphertext...)
	return base64.StdEncoding.EncodeToString(result), nil
}

func (e *encryptor) decrypt(stored string) (string, error) {
	if stored == "" || e.gcm == nil {
		return stored, nil
	}

	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
