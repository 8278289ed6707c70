package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/logger"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSecretUnavailable means the secret is not configured: key file,
	// settings file or the named field is missing.
	ErrSecretUnavailable = errors.New("secret unavailable")
	// ErrMalformedSecret means the stored value is not iv-hex:ciphertext-hex.
	ErrMalformedSecret = errors.New("malformed secret value")
	// ErrDecryptionFailed means the value is well formed but the key does not
	// open it, or the key material itself is corrupt.
	ErrDecryptionFailed = errors.New("decryption failed")
)

type SecretsConfig struct {
	KeyPath      string
	SettingsPath string
	Logger       logrus.FieldLogger
}

// Store resolves encrypted settings fields. Nothing is cached: every Get
// reads the key file and the settings file and returns fresh plaintext.
type Store struct {
	config SecretsConfig
	log    logrus.FieldLogger
}

func NewWithConfig(config SecretsConfig) *Store {
	return &Store{
		config: config,
		log:    logger.OrStandard(config.Logger),
	}
}

func (s *Store) Get(name string) (string, error) {
	key, err := s.readKey()
	if err != nil {
		return "", err
	}

	sealed, err := s.readField(name)
	if err != nil {
		return "", err
	}

	plaintext, err := open(key, sealed)
	if err != nil {
		return "", fmt.Errorf("secret %q: %w", name, err)
	}
	return string(plaintext), nil
}

func (s *Store) readKey() ([]byte, error) {
	info, err := os.Stat(s.config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: key material not found", ErrSecretUnavailable)
	}
	if info.Mode().Perm()&0o077 != 0 {
		s.log.WithFields(logrus.Fields{
			"path": s.config.KeyPath,
			"mode": info.Mode().Perm().String(),
		}).Warn("Key material is readable by group or others")
	}

	raw, err := os.ReadFile(s.config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading key material: %v", ErrSecretUnavailable, err)
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: key material is not hex", ErrDecryptionFailed)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("%w: key must be 16, 24 or 32 bytes, got %d", ErrDecryptionFailed, len(key))
	}
}

func (s *Store) readField(name string) (string, error) {
	data, err := os.ReadFile(s.config.SettingsPath)
	if err != nil {
		return "", fmt.Errorf("%w: settings file not readable", ErrSecretUnavailable)
	}

	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return "", fmt.Errorf("%w: settings file is not a JSON object", ErrMalformedSecret)
	}

	raw, ok := settings[name]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: %q not set", ErrSecretUnavailable, name)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a string", ErrMalformedSecret, name)
	}
	if value == "" {
		return "", fmt.Errorf("%w: %q is empty", ErrSecretUnavailable, name)
	}
	return value, nil
}

func open(key []byte, sealed string) ([]byte, error) {
	ivHex, ctHex, ok := strings.Cut(sealed, ":")
	if !ok {
		return nil, fmt.Errorf("%w: missing ':' separator", ErrMalformedSecret)
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d hex-encoded bytes", ErrMalformedSecret, aes.BlockSize)
	}
	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext is not hex", ErrMalformedSecret)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return unpad(plaintext)
}

func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
	}
	if !bytes.Equal(data[len(data)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
	}
	return data[:len(data)-n], nil
}

// Seal encrypts plaintext under keyHex and returns iv-hex:ciphertext-hex with
// a fresh random IV.
func Seal(keyHex string, plaintext string) (string, error) {
	key, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return "", fmt.Errorf("invalid key format (must be hex): %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte(plaintext), bytes.Repeat([]byte{byte(n)}, n)...)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// GenerateKey returns a new random 32-byte key, hex-encoded.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// InitKey writes a fresh key to KeyPath with owner-only permissions. An
// existing key file is left untouched so sealed values stay readable.
func (s *Store) InitKey() (bool, error) {
	if _, err := os.Stat(s.config.KeyPath); err == nil {
		return false, nil
	}

	key, err := GenerateKey()
	if err != nil {
		return false, err
	}
	if dir := filepath.Dir(s.config.KeyPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return false, fmt.Errorf("failed to create key directory: %w", err)
		}
	}
	if err := os.WriteFile(s.config.KeyPath, []byte(key+"\n"), 0o600); err != nil {
		return false, fmt.Errorf("failed to write key material: %w", err)
	}
	return true, nil
}

// Put seals plaintext under the current key and stores it as field name,
// keeping every other field of the settings file.
func (s *Store) Put(name, plaintext string) error {
	if name == "" {
		return fmt.Errorf("secret name is required")
	}

	raw, err := os.ReadFile(s.config.KeyPath)
	if err != nil {
		return fmt.Errorf("%w: key material not found", ErrSecretUnavailable)
	}
	sealed, err := Seal(string(raw), plaintext)
	if err != nil {
		return err
	}

	settings := map[string]interface{}{}
	data, err := os.ReadFile(s.config.SettingsPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("%w: settings file is not a JSON object", ErrMalformedSecret)
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to read settings file: %w", err)
	}
	settings[name] = sealed

	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(s.config.SettingsPath, out, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	s.log.WithField("name", name).Info("Secret stored")
	return nil
}
