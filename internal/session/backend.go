package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PartitionsDir is the directory under the data dir holding partitions.
const PartitionsDir = "partitions"

// DirBackend keeps each partition in its own 0700 directory.
type DirBackend struct {
	root string
}

// NewDirBackend returns a backend rooted at <dataDir>/partitions.
func NewDirBackend(dataDir string) *DirBackend {
	return &DirBackend{root: filepath.Join(dataDir, PartitionsDir)}
}

func (b *DirBackend) path(partition string) (string, error) {
	p := filepath.Join(b.root, partition)
	if filepath.Dir(p) != filepath.Clean(b.root) {
		return "", fmt.Errorf("partition %q escapes %s", partition, b.root)
	}
	return p, nil
}

// Open creates the partition directory if needed.
func (b *DirBackend) Open(_ context.Context, partition string) (string, error) {
	p, err := b.path(partition)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0700); err != nil {
		return "", fmt.Errorf("failed to create partition directory: %w", err)
	}
	return p, nil
}

// Wipe removes the partition directory and everything in it.
func (b *DirBackend) Wipe(_ context.Context, partition string) error {
	p, err := b.path(partition)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("failed to remove partition directory: %w", err)
	}
	return nil
}

// MemoryBackend keeps partitions only in memory.
type MemoryBackend struct {
	mu   sync.Mutex
	open map[string]bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{open: make(map[string]bool)}
}

func (b *MemoryBackend) Open(_ context.Context, partition string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open[partition] = true
	return "memory:" + partition, nil
}

func (b *MemoryBackend) Wipe(_ context.Context, partition string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.open, partition)
	return nil
}

// Has reports whether the partition is open.
func (b *MemoryBackend) Has(partition string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[partition]
}

var (
	_ Backend = (*DirBackend)(nil)
	_ Backend = (*MemoryBackend)(nil)
)
