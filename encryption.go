package strata

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// encryptionNonceSize is the AES-GCM nonce size.
	encryptionNonceSize = 12
	// encryptionSaltSize is the PBKDF2 salt size.
	encryptionSaltSize = 32
	// encryptionKeySize is the AES-256 key size.
	encryptionKeySize = 32
	// pbkdf2Iterations is the PBKDF2 iteration count.
	pbkdf2Iterations = 100000
)

// EncryptionConfig configures at-rest encryption of persisted engine
// state. The engine consumes encryption as an opaque capability; any
// Encryptor can be substituted.
type EncryptionConfig struct {
	// Enabled turns on encryption of persisted state.
	Enabled bool

	// Key is the raw encryption key (32 bytes for AES-256). If empty,
	// KeyPassword is used to derive a key.
	Key []byte

	// KeyPassword derives the key via PBKDF2 when Key is empty.
	KeyPassword string
}

// Encryptor is the opaque encrypt/decrypt capability consumed by the
// engine for persisted state.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(payload []byte) ([]byte, error)
}

// aesEncryptor implements Encryptor with AES-256-GCM. For password-derived
// keys the per-payload salt is embedded in the output so payloads remain
// decryptable across restarts.
type aesEncryptor struct {
	key      []byte
	password string
}

// NewEncryptor creates the default Encryptor from the configuration.
// Returns (nil, nil) when encryption is disabled.
func NewEncryptor(cfg EncryptionConfig) (Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Key) > 0 {
		if len(cfg.Key) != encryptionKeySize {
			return nil, errors.New("encryption key must be 32 bytes for AES-256")
		}
		return &aesEncryptor{key: append([]byte(nil), cfg.Key...)}, nil
	}
	if cfg.KeyPassword != "" {
		return &aesEncryptor{password: cfg.KeyPassword}, nil
	}
	return nil, errors.New("encryption enabled but no key or password provided")
}

func (e *aesEncryptor) gcmFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals the plaintext. Output layout: salt || nonce || ciphertext.
// The salt is all zeros in raw-key mode.
func (e *aesEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, encryptionSaltSize)
	key := e.key
	if key == nil {
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		key = pbkdf2.Key([]byte(e.password), salt, pbkdf2Iterations, encryptionKeySize, sha256.New)
	}

	gcm, err := e.gcmFor(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, encryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, encryptionSaltSize+encryptionNonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func (e *aesEncryptor) Decrypt(payload []byte) ([]byte, error) {
	if len(payload) < encryptionSaltSize+encryptionNonceSize {
		return nil, errors.New("encrypted payload too short")
	}
	salt := payload[:encryptionSaltSize]
	nonce := payload[encryptionSaltSize : encryptionSaltSize+encryptionNonceSize]
	ciphertext := payload[encryptionSaltSize+encryptionNonceSize:]

	key := e.key
	if key == nil {
		key = pbkdf2.Key([]byte(e.password), salt, pbkdf2Iterations, encryptionKeySize, sha256.New)
	}
	gcm, err := e.gcmFor(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return plaintext, nil
}
