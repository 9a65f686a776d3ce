// Package fs stores media uploads on the local filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-micropub/pkg/micropub"
)

// Backend is a filesystem implementation of micropub.MediaStore
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for stored media
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

// Move renames the spooled upload into baseDir/key, copying when the
// rename crosses filesystems, and makes it world readable.
func (b *Backend) Move(ctx context.Context, tempPath, key, mimeType string) (string, error) {
	dest, err := b.path(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.Rename(tempPath, dest); err != nil {
		if err := copyFile(tempPath, dest); err != nil {
			return "", err
		}
		_ = os.Remove(tempPath)
	}

	if err := os.Chmod(dest, 0644); err != nil {
		return "", fmt.Errorf("failed to set permissions: %w", err)
	}

	return dest, nil
}

// Open returns the stored file and its detected content type
func (b *Backend) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, "", err
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, "", micropub.ErrMediaNotFound
	} else if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	// Detect content type
	contentType := "application/octet-stream"
	buffer := make([]byte, 512)
	if n, err := file.Read(buffer); err == nil {
		contentType = http.DetectContentType(buffer[:n])
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}

	return file, contentType, nil
}

// path resolves key below baseDir, rejecting keys that escape it
func (b *Backend) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid media key: %s", key)
	}
	return filepath.Join(b.baseDir, clean), nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return out.Close()
}
