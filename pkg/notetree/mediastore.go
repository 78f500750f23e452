package notetree

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MediaStore persists uploaded media payloads and returns the URL the asset
// record should reference. Metadata stays in the main store; only the bytes
// live here.
type MediaStore interface {
	// Save writes the payload and returns its public URL and size.
	Save(ctx context.Context, filename string, r io.Reader) (url string, size int64, err error)
}

// FilesystemMediaStore writes payloads to a local directory. Files get a
// generated name so uploads can never collide or traverse paths.
type FilesystemMediaStore struct {
	// Dir is the storage directory, created on first use.
	Dir string

	// BaseURL prefixes returned URLs, e.g. "/media".
	BaseURL string
}

func (s *FilesystemMediaStore) Save(ctx context.Context, filename string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create media directory: %w", err)
	}

	ext := filepath.Ext(filename)
	name := uuid.NewString() + ext
	path := filepath.Join(s.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create media file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write media file: %w", err)
	}
	return s.BaseURL + "/" + name, size, nil
}
