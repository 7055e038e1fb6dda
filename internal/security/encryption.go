package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// EncryptionConfig defines at-rest encryption parameters
type EncryptionConfig struct {
	// scrypt parameters (OWASP recommended minimum)
	SCryptN      int // CPU/memory cost parameter (32768 minimum)
	SCryptR      int // block size parameter
	SCryptP      int // parallelization parameter
	SCryptKeyLen int // key length in bytes (32 for AES-256)

	NonceSize int // 96-bit nonce for GCM
}

// EncryptedPayload is the serialized form of an encrypted local record
type EncryptedPayload struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// ErrDecryptionFailed indicates a corrupted or tampered payload. Callers
// treat this as "record absent", never as a crash.
var ErrDecryptionFailed = errors.New("decryption failed")

// DefaultEncryptionConfig returns the production encryption configuration
func DefaultEncryptionConfig() *EncryptionConfig {
	return &EncryptionConfig{
		SCryptN:      32768,
		SCryptR:      8,
		SCryptP:      1,
		SCryptKeyLen: 32,
		NonceSize:    12,
	}
}

// Encrypt encrypts plaintext with AES-256-GCM under a key derived from
// passphrase via scrypt with a fresh random salt.
func Encrypt(plaintext, passphrase []byte, config *EncryptionConfig) (*EncryptedPayload, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext cannot be empty")
	}
	if len(passphrase) < 16 {
		return nil, errors.New("passphrase must be at least 16 bytes")
	}
	if config == nil {
		config = DefaultEncryptionConfig()
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key(passphrase, salt, config.SCryptN, config.SCryptR, config.SCryptP, config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, config.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EncryptedPayload{
		Version:    1,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Decrypt reverses Encrypt. Any authentication or format failure returns
// ErrDecryptionFailed so callers can uniformly fail closed.
func Decrypt(payload *EncryptedPayload, passphrase []byte, config *EncryptionConfig) ([]byte, error) {
	if payload == nil {
		return nil, ErrDecryptionFailed
	}
	if len(passphrase) < 16 {
		return nil, errors.New("passphrase must be at least 16 bytes")
	}
	if config == nil {
		config = DefaultEncryptionConfig()
	}
	if payload.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported payload version %d", ErrDecryptionFailed, payload.Version)
	}
	// A hand-edited payload can carry fields of any length; gcm.Open panics
	// on a wrong-size nonce, so reject malformed shapes up front
	if len(payload.Salt) == 0 || len(payload.Ciphertext) == 0 {
		return nil, fmt.Errorf("%w: malformed payload", ErrDecryptionFailed)
	}
	if len(payload.Nonce) != config.NonceSize {
		return nil, fmt.Errorf("%w: malformed payload", ErrDecryptionFailed)
	}

	key, err := scrypt.Key(passphrase, payload.Salt, config.SCryptN, config.SCryptR, config.SCryptP, config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptRecord encrypts plaintext and returns the JSON-serialized payload
func EncryptRecord(plaintext, passphrase []byte) ([]byte, error) {
	payload, err := Encrypt(plaintext, passphrase, nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

// DecryptRecord parses a JSON-serialized payload and decrypts it. A payload
// that fails to parse returns ErrDecryptionFailed.
func DecryptRecord(data, passphrase []byte) ([]byte, error) {
	var payload EncryptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, ErrDecryptionFailed
	}
	return Decrypt(&payload, passphrase, nil)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
