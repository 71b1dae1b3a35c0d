// Package media stores item photos on local disk or in an S3-compatible bucket.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/rl1809/patrion/internal/port"
)

// FileSystemStorage writes photos into a single directory. Keys are file names;
// URLs are the key appended to the public base URL.
type FileSystemStorage struct {
	root    string
	baseURL string
}

func NewFileSystemStorage(root, baseURL string) (*FileSystemStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &FileSystemStorage{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *FileSystemStorage) Root() string { return s.root }

func (s *FileSystemStorage) Put(ctx context.Context, name, contentType string, r io.Reader, size int64) (port.StoredMedia, error) {
	key := objectKey(name)
	dest := filepath.Join(s.root, key)

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return port.StoredMedia{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, io.LimitReader(r, size+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return port.StoredMedia{}, fmt.Errorf("failed to write photo: %w", err)
	}
	if written != size {
		return port.StoredMedia{}, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := ctx.Err(); err != nil {
		return port.StoredMedia{}, err
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return port.StoredMedia{}, fmt.Errorf("failed to store photo: %w", err)
	}

	return port.StoredMedia{Key: key, URL: s.baseURL + "/" + key}, nil
}

func (s *FileSystemStorage) Delete(ctx context.Context, key string) error {
	if key == "" || key != path.Base(key) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid media key %q", key)
	}
	err := os.Remove(filepath.Join(s.root, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// objectKey builds a unique key that keeps the original extension.
func objectKey(name string) string {
	ext := strings.ToLower(filepath.Ext(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	if len(ext) > 10 || strings.ContainsAny(ext, " /") {
		ext = ""
	}
	return "photo-" + uuid.New().String() + ext
}
