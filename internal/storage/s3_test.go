package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// S3 KEY TESTS
// =============================================================================

func TestS3ObjectKey(t *testing.T) {
	tests := []struct {
		prefix   string
		key      string
		expected string
	}{
		{"", "abc.png", "abc.png"},
		{"content", "abc.png", "content/abc.png"},
		{"content/", "abc.png", "content/abc.png"},
		{"a/b", "abc", "a/b/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix+"|"+tt.key, func(t *testing.T) {
			store := &S3Store{bucket: "test-bucket", prefix: strings.Trim(tt.prefix, "/")}
			assert.Equal(t, tt.expected, store.objectKey(tt.key))
		})
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Options{Region: "eu-south-1"})
	assert.Error(t, err)
}

// =============================================================================
// LOCAL STORE TESTS
// =============================================================================

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := store.Put(ctx, "a1.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Size)
	assert.Equal(t, "a1.txt", res.Key)

	rc, err := store.Open(ctx, "a1.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, "a1.txt"))
	_, err = store.Open(ctx, "a1.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(ctx, "a1.txt"), "deleting twice is fine")
}

func TestLocalStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "b.bin", bytes.NewReader(make([]byte, 1024)), 1024, "")
	require.NoError(t, err)
	require.NoError(t, store.Check(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.bin", entries[0].Name())
}

func TestLocalStoreRejectsPathKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "nested/file", ".hidden"} {
		_, err := store.Put(ctx, key, strings.NewReader("x"), 1, "")
		assert.Error(t, err, key)
		_, err = store.Open(ctx, key)
		assert.Error(t, err, key)
	}
}
