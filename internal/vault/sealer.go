package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/giantswarm/tandem/pkg/logging"
)

// ErrSealerUnavailable is returned by Seal/Open when no platform protection
// is available.
var ErrSealerUnavailable = errors.New("secure storage is not available")

// Sealer encrypts refresh tokens at rest. Available is consulted on every
// Save so that the degrade-to-fallback decision can be injected in tests.
type Sealer interface {
	Available() bool
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// KeySize is the size of an AEAD sealing key in bytes.
const KeySize = chacha20poly1305.KeySize

// AEADSealer seals with XChaCha20-Poly1305. The output is nonce||ciphertext.
type AEADSealer struct {
	aead cipher.AEAD
}

// NewAEADSealer creates a sealer from a 32-byte key.
func NewAEADSealer(key []byte) (*AEADSealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return &AEADSealer{aead: aead}, nil
}

// NewAEADSealerFromString creates a sealer from a base64 (standard or URL
// encoding) 32-byte key, as found in configuration.
func NewAEADSealerFromString(encoded string) (*AEADSealer, error) {
	key, err := decodeKey(encoded)
	if err != nil {
		return nil, err
	}
	return NewAEADSealer(key)
}

// GenerateKey returns a new random sealing key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func decodeKey(encoded string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(encoded); err == nil {
			if len(key) != KeySize {
				return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
			}
			return key, nil
		}
	}
	return nil, errors.New("encryption key is not valid base64")
}

func (s *AEADSealer) Available() bool { return true }

func (s *AEADSealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *AEADSealer) Open(ciphertext []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(ciphertext) < ns+s.aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	plaintext, err := s.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// KeyringSealer keeps a per-installation sealing key in the OS keystore
// (macOS Keychain, Secret Service, Windows Credential Manager). If the
// keystore cannot be reached the sealer reports itself unavailable.
type KeyringSealer struct {
	service string
	account string

	mu     sync.Mutex
	sealer *AEADSealer
}

// DefaultKeyringService is the keystore service name used by tandem.
const DefaultKeyringService = "tandem"

// NewKeyringSealer creates a sealer that stores its key under service/account.
func NewKeyringSealer(service, account string) *KeyringSealer {
	if service == "" {
		service = DefaultKeyringService
	}
	if account == "" {
		account = "token-vault-key"
	}
	return &KeyringSealer{service: service, account: account}
}

// load fetches (or creates) the key. Callers hold s.mu.
func (s *KeyringSealer) load() (*AEADSealer, error) {
	if s.sealer != nil {
		return s.sealer, nil
	}

	encoded, err := keyring.Get(s.service, s.account)
	if errors.Is(err, keyring.ErrNotFound) {
		encoded, err = GenerateKey()
		if err != nil {
			return nil, err
		}
		if err := keyring.Set(s.service, s.account, encoded); err != nil {
			return nil, fmt.Errorf("store key in keyring: %w", err)
		}
		logging.Audit("vault_key_created", "Token vault key created in OS keyring", "service", s.service)
	} else if err != nil {
		return nil, fmt.Errorf("read key from keyring: %w", err)
	}

	sealer, err := NewAEADSealerFromString(encoded)
	if err != nil {
		return nil, err
	}
	s.sealer = sealer
	return sealer, nil
}

// Available reports whether the keystore could provide a key.
func (s *KeyringSealer) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(); err != nil {
		logging.Debug("Vault", "OS keyring unavailable: %v", err)
		return false
	}
	return true
}

func (s *KeyringSealer) Seal(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	sealer, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealerUnavailable, err)
	}
	return sealer.Seal(plaintext)
}

func (s *KeyringSealer) Open(ciphertext []byte) ([]byte, error) {
	s.mu.Lock()
	sealer, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealerUnavailable, err)
	}
	return sealer.Open(ciphertext)
}

// Unavailable is a Sealer that is never available.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) Seal([]byte) ([]byte, error) { return nil, ErrSealerUnavailable }

func (Unavailable) Open([]byte) ([]byte, error) { return nil, ErrSealerUnavailable }

var (
	_ Sealer = (*AEADSealer)(nil)
	_ Sealer = (*KeyringSealer)(nil)
	_ Sealer = Unavailable{}
)
