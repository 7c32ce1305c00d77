package blob

import (
	"context"
	"fmt"
	"os"
)

// Open builds the Store selected by PRINTVAULT_BLOB_DRIVER (fs, s3 or
// memory). The filesystem driver is the default and roots its media tree at
// PRINTVAULT_BLOB_FS_ROOT. The s3 driver reads its own
// PRINTVAULT_BLOB_S3_* variables.
func Open(ctx context.Context) (Store, error) {
	switch driver := Driver(os.Getenv("PRINTVAULT_BLOB_DRIVER")); driver {
	case "", DriverFilesystem:
		return NewFilesystem(os.Getenv("PRINTVAULT_BLOB_FS_ROOT"))
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
