package port

import (
	"context"
	"io"
)

// StoredMedia identifies an uploaded object.
type StoredMedia struct {
	Key string
	URL string
}

type MediaStorage interface {
	// Put stores size bytes read from r. name is only used to keep the extension.
	Put(ctx context.Context, name, contentType string, r io.Reader, size int64) (StoredMedia, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
