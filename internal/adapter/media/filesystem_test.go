package media

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemStorage_PutAndDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileSystemStorage(root, "/uploads/")
	require.NoError(t, err)

	data := []byte("\x89PNG fake image")
	stored, err := store.Put(context.Background(), "chair.PNG", "image/png", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stored.Key, "photo-"))
	assert.True(t, strings.HasSuffix(stored.Key, ".png"))
	assert.Equal(t, "/uploads/"+stored.Key, stored.URL)

	got, err := os.ReadFile(filepath.Join(root, stored.Key))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.Delete(context.Background(), stored.Key))
	_, err = os.Stat(filepath.Join(root, stored.Key))
	assert.True(t, os.IsNotExist(err))

	// deleting again is not an error
	assert.NoError(t, store.Delete(context.Background(), stored.Key))
}

func TestFileSystemStorage_SizeMismatch(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileSystemStorage(root, "/uploads")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "a.jpg", "image/jpeg", strings.NewReader("short"), 100)
	assert.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial files should remain")
}

func TestFileSystemStorage_DeleteRejectsTraversal(t *testing.T) {
	store, err := NewFileSystemStorage(t.TempDir(), "/uploads")
	require.NoError(t, err)

	assert.Error(t, store.Delete(context.Background(), "../etc/passwd"))
	assert.Error(t, store.Delete(context.Background(), ""))
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantExt string
	}{
		{name: "keeps extension", input: "photo.jpeg", wantExt: ".jpeg"},
		{name: "windows path", input: `C:\Users\me\IMG_01.JPG`, wantExt: ".jpg"},
		{name: "no extension", input: "blob", wantExt: ""},
		{name: "absurd extension", input: "x.thisisnotanextension", wantExt: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := objectKey(tt.input)
			assert.True(t, strings.HasPrefix(key, "photo-"))
			assert.Equal(t, tt.wantExt, filepath.Ext(key))
		})
	}
}
