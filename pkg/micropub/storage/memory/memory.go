// Package memory keeps media uploads in memory. Intended for tests and development.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tendant/simple-micropub/pkg/micropub"
)

// Backend is an in-memory implementation of micropub.MediaStore
type Backend struct {
	mu              sync.RWMutex
	objects         map[string][]byte
	objectsMimeType map[string]string
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects:         make(map[string][]byte),
		objectsMimeType: make(map[string]string),
	}
}

// Move reads the spooled upload into memory and removes the temp file
func (b *Backend) Move(ctx context.Context, tempPath, key, mimeType string) (string, error) {
	data, err := os.ReadFile(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	_ = os.Remove(tempPath)

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = data
	b.objectsMimeType[key] = mimeType
	return "memory://" + key, nil
}

// Open returns a reader over the stored bytes
func (b *Backend) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[key]
	if !exists {
		return nil, "", micropub.ErrMediaNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), b.objectsMimeType[key], nil
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
