package blob

import (
	"context"

	"printvault/internal/infra/blob/fs"
	"printvault/internal/infra/blob/memory"
	"printvault/internal/infra/blob/s3"
)

// NewFilesystem roots a filesystem-backed store at dir, the driver Open
// picks by default. The Store return type keeps call sites off the concrete
// implementation.
func NewFilesystem(dir string) (Store, error) {
	return fs.New(dir)
}

// NewMemory returns the ephemeral store used in tests.
func NewMemory() Store { return memory.New() }

// S3Config carries the settings for an S3 or MinIO backend.
type S3Config = s3.Config

// NewS3 connects a store to the bucket described by cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return s3.New(ctx, cfg)
}

// OpenFromEnv builds an S3 store from the PRINTVAULT_BLOB_S3_* variables.
func OpenFromEnv(ctx context.Context) (Store, error) {
	return s3.OpenFromEnv(ctx)
}

// NewMockS3ForTests returns the in-process S3 fake for cross-package tests.
func NewMockS3ForTests() Store { return s3.NewMockForTests() }
