// Package core holds the contracts shared by every media storage backend.
// The facade in internal/blob re-exports them for the rest of the tree.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver names a storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // media tree on local disk, the default
	DriverS3         Driver = "s3"     // S3 or MinIO bucket
	DriverMemory     Driver = "memory" // ephemeral, tests only
)

// PutOptions carries optional write parameters.
type PutOptions struct {
	ContentType string // MIME type; drivers guess from the key when empty
}

// SignedURLOptions shapes a pre-signed URL request.
type SignedURLOptions struct {
	Method  string        // GET or PUT; only GET is issued internally
	Expiry  time.Duration // drivers fall back to 15m when zero
	Headers map[string]string
}

// Info is the metadata a driver reports for one stored object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url,omitempty"`
}

// Store is the narrow S3-shaped surface the media layer needs. Keys follow
// the entity_type/record_id/filename layout archives use, so the same tree
// round-trips through export and import untouched.
type Store interface {
	// Put writes a new object. Writing over an existing key is an error;
	// callers delete first when they mean to replace.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get opens the object for reading along with its metadata.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head reports metadata without opening the object.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes the object, reporting (false, nil) when it was absent.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns every object under prefix in ascending key order.
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL mints a time-limited URL for the object, or ErrUnsupported
	// when the backend has no way to issue one.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	// Driver reports which backend is answering.
	Driver() Driver
}

// ErrUnsupported marks an optional capability a driver does not offer.
var ErrUnsupported = errors.New("blobstore: unsupported operation")
