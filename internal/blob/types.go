// Package blob is the media storage facade the rest of the tree imports. It
// re-exports the core contracts and constructs the concrete drivers, so call
// sites depend on the Store interface and never on a backend package.
package blob

import "printvault/internal/blob/core"

// Aliases for the core contracts. Declared here so internal import paths
// stay stable even if the driver packages move.
type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	Store            = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrUnsupported mirrors core.ErrUnsupported so call sites can errors.Is
// against the facade alone.
var ErrUnsupported = core.ErrUnsupported
