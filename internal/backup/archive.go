package backup

import (
	"time"
)

// FormatVersion is the current generation of the archive format.
// Increment when making breaking changes to the manifest or table layout.
const FormatVersion = 1

// ApplicationName marks archives produced by this application. Readers
// refuse archives stamped by a different application.
const ApplicationName = "printvault"

// Archive member layout.
const (
	// ManifestName is the archive member holding the Manifest.
	ManifestName = "manifest.json"
	// TablesPrefix is the directory holding one CSV table per entity type.
	TablesPrefix = "tables/"
	// MediaPrefix is the directory holding media payloads keyed
	// entity_type/record_id/filename.
	MediaPrefix = "media/"
)

// Manifest is the archive header: format generation, provenance, and the
// exact table set with row counts. Readers validate the whole header before
// touching any record.
type Manifest struct {
	FormatVersion int              `json:"format_version"`
	Application   string           `json:"application"`
	CreatedAt     time.Time        `json:"created_at"`
	Entities      []ManifestEntity `json:"entities"`
	MediaFiles    int              `json:"media_files"`
}

// ManifestEntity declares one exported table.
type ManifestEntity struct {
	Type       string   `json:"type"`
	Table      string   `json:"table"`
	Columns    []string `json:"columns"`
	NaturalKey string   `json:"natural_key"`
	Rows       int      `json:"rows"`
}

// Limits caps archive decompression to defend against zip bombs and
// pathological member counts. Zero fields fall back to the defaults.
type Limits struct {
	// MaxFiles bounds the number of archive members.
	MaxFiles int
	// MaxFileBytes bounds a single decompressed member.
	MaxFileBytes int64
	// MaxTotalBytes bounds the sum of all decompressed members.
	MaxTotalBytes int64
}

// Default decompression caps. Large enough for realistic media collections,
// small enough to stop a hostile archive before it exhausts the host.
const (
	DefaultMaxFiles      = 50_000
	DefaultMaxFileBytes  = int64(512) << 20 // 512 MiB per member
	DefaultMaxTotalBytes = int64(4) << 30   // 4 GiB decompressed total
)

func (l Limits) withDefaults() Limits {
	if l.MaxFiles <= 0 {
		l.MaxFiles = DefaultMaxFiles
	}
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = DefaultMaxFileBytes
	}
	if l.MaxTotalBytes <= 0 {
		l.MaxTotalBytes = DefaultMaxTotalBytes
	}
	return l
}
