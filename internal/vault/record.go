package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Mode records how a refresh token was protected at rest.
type Mode string

const (
	// ModePlatformSealed means the token was encrypted by the Sealer.
	ModePlatformSealed Mode = "platform_sealed"
	// ModeFallback means no sealer was available and the token is stored as-is.
	ModeFallback Mode = "fallback"
)

// Record is the persisted form of a user's refresh token.
type Record struct {
	RefreshTokenCiphertext []byte    `json:"refresh_token_ciphertext"`
	Mode                   Mode      `json:"mode"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// ErrNoRecord is returned by a RecordStore when no record exists for a user.
var ErrNoRecord = errors.New("no token record")

// RecordStore persists records keyed by user id.
type RecordStore interface {
	Get(userID string) (*Record, error)
	Put(userID string, rec *Record) error
	Delete(userID string) error
}

// FileStore keeps each record in its own JSON file.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the storage directory (0700) and returns a FileStore.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// recordKey derives a filesystem-safe name from a user id.
func recordKey(userID string) string {
	hash := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(hash[:16])
}

func (s *FileStore) path(userID string) string {
	return filepath.Join(s.dir, recordKey(userID)+".json")
}

// Get reads the record for userID.
func (s *FileStore) Get(userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path is derived from a hash, not user input
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoRecord
		}
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}
	return &rec, nil
}

// Put overwrites the record for userID.
func (s *FileStore) Put(userID string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	path := s.path(userID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write token record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace token record: %w", err)
	}
	return nil
}

// Delete removes the record. A missing record is not an error.
func (s *FileStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(userID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	return nil
}

// MemoryStore is an in-process RecordStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrNoRecord
	}
	rec.RefreshTokenCiphertext = append([]byte(nil), rec.RefreshTokenCiphertext...)
	return &rec, nil
}

func (s *MemoryStore) Put(userID string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	cp.RefreshTokenCiphertext = append([]byte(nil), rec.RefreshTokenCiphertext...)
	s.records[userID] = cp
	return nil
}

func (s *MemoryStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userID)
	return nil
}

var (
	_ RecordStore = (*FileStore)(nil)
	_ RecordStore = (*MemoryStore)(nil)
)
