package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tokens")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	_, err = store.Get("u1")
	assert.ErrorIs(t, err, ErrNoRecord)

	rec := &Record{
		RefreshTokenCiphertext: []byte{0x01, 0x02, 0x03},
		Mode:                   ModePlatformSealed,
		UpdatedAt:              time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.Put("u1", rec))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.Contains(entries[0].Name(), "u1"), "file name must not reveal the user id")

	fi, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	got, err := store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, rec.RefreshTokenCiphertext, got.RefreshTokenCiphertext)
	assert.Equal(t, rec.Mode, got.Mode)
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))

	require.NoError(t, store.Delete("u1"))
	require.NoError(t, store.Delete("u1"))
	_, err = store.Get("u1")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestRecordKey_Deterministic(t *testing.T) {
	assert.Equal(t, recordKey("u1"), recordKey("u1"))
	assert.NotEqual(t, recordKey("u1"), recordKey("u2"))
	assert.Len(t, recordKey("u1"), 32)
}

func TestMemoryStore_CopiesData(t *testing.T) {
	store := NewMemoryStore()
	buf := []byte("secret")
	require.NoError(t, store.Put("u1", &Record{RefreshTokenCiphertext: buf, Mode: ModeFallback}))
	buf[0] = 'X'

	got, err := store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got.RefreshTokenCiphertext))
}
