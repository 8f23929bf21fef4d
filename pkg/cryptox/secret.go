package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ErrNoMasterKey is returned when neither a key file nor AUTH_MASTER_KEY is
// configured and the ephemeral fallback is not allowed.
var ErrNoMasterKey = errors.New("no master key configured: set AUTH_MASTER_KEY_PATH or AUTH_MASTER_KEY")

var (
	masterKeyMu    sync.Mutex
	masterKey      []byte
	masterKeyPath  string
	allowEphemeral bool
)

// SetMasterKeyPath configures where the sealing key is loaded from. It must be
// called before the first Seal/Open. Without a path the AUTH_MASTER_KEY
// environment variable is used.
func SetMasterKeyPath(path string) {
	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()

	masterKeyPath = path
	masterKey = nil
}

// AllowEphemeralMasterKey lets a process without a configured key seal with a
// random one. Sealed values then do not survive a restart, so only
// development setups should allow it.
func AllowEphemeralMasterKey(allow bool) {
	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()

	allowEphemeral = allow
	masterKey = nil
}

// LoadMasterKey loads the sealing key now so a missing key fails at startup
// instead of on the first Seal.
func LoadMasterKey() error {
	_, err := getMasterKey()
	return err
}

// ResetMasterKeyForTesting forgets the loaded key and the ephemeral allowance
// so the next call reloads it.
func ResetMasterKeyForTesting() {
	AllowEphemeralMasterKey(false)
	SetMasterKeyPath("")
}

func getMasterKey() ([]byte, error) {
	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()

	if masterKey != nil {
		return masterKey, nil
	}

	var material []byte
	switch {
	case masterKeyPath != "":
		data, err := os.ReadFile(masterKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		material = data
	case os.Getenv("AUTH_MASTER_KEY") != "":
		material = []byte(os.Getenv("AUTH_MASTER_KEY"))
	case !allowEphemeral:
		return nil, ErrNoMasterKey
	default:
		slog.Warn("no master key configured, sealing with an ephemeral key")
		material = make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral master key: %w", err)
		}
	}

	sum := sha256.Sum256(material)
	masterKey = sum[:]
	return masterKey, nil
}

func newGCM() (cipher.AEAD, error) {
	key, err := getMasterKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get master key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with AES-256-GCM and returns
// base64url([12-byte nonce][ciphertext][16-byte tag]).
func Seal(plaintext string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func Open(sealed string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("sealed value too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}
