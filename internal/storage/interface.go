package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob does not exist
var ErrNotFound = errors.New("blob not found")

// PutResult describes a stored blob
type PutResult struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
}

// BlobStore keeps content blobs by key. Keys are flat file names such as
// "<uuid>.png".
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*PutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Check(ctx context.Context) error
}

var (
	_ BlobStore = (*LocalStore)(nil)
	_ BlobStore = (*S3Store)(nil)
)
