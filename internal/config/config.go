// Package config loads application configuration in three layers: compiled
// defaults, an optional TOML file named by PRINTVAULT_CONFIG, then
// PRINTVAULT_* environment variables. Later layers win. Everything is
// validated once at startup so misconfiguration fails fast.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML files can write "15m" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Blob    BlobConfig    `toml:"blob"`
	Backup  BackupConfig  `toml:"backup"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, host:port or :port.
	Addr string `toml:"addr"`
	// ReadTimeout bounds reading a request; exports disable the write
	// timeout so large archives can stream.
	ReadTimeout Duration `toml:"read_timeout"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	// MaxUploadBytes caps archive uploads.
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
}

// StorageConfig selects and parameterizes the record store.
type StorageConfig struct {
	// Driver is memory, sqlite, or postgres.
	Driver string `toml:"driver"`
	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `toml:"sqlite_path"`
	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string `toml:"postgres_dsn"`
}

// BlobConfig selects the media store. S3 credentials and bucket settings
// stay in the environment, where the s3 driver reads them.
type BlobConfig struct {
	// Driver is fs, s3, or memory.
	Driver string `toml:"driver"`
	// FSRoot is the media directory for the fs driver.
	FSRoot string `toml:"fs_root"`
}

// BackupConfig tunes the export and import engine.
type BackupConfig struct {
	// LockTTL bounds how long an abandoned operation blocks others.
	LockTTL Duration `toml:"lock_ttl"`
	// MaxErrorSamples bounds per-type error samples in validation reports.
	MaxErrorSamples int `toml:"max_error_samples"`
	// MaxArchiveFiles bounds archive member counts.
	MaxArchiveFiles int `toml:"max_archive_files"`
	// MaxFileBytes bounds a single decompressed archive member.
	MaxFileBytes int64 `toml:"max_file_bytes"`
	// MaxTotalBytes bounds an archive's total decompressed size.
	MaxTotalBytes int64 `toml:"max_total_bytes"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `toml:"level"`
	// Format is text or json.
	Format string `toml:"format"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{15 * time.Second},
			ShutdownTimeout: Duration{30 * time.Second},
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "./printvault.db",
		},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "./media",
		},
		Backup: BackupConfig{
			LockTTL:         Duration{15 * time.Minute},
			MaxErrorSamples: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the effective configuration: defaults, then the TOML file
// named by PRINTVAULT_CONFIG if set, then environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("PRINTVAULT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "PRINTVAULT_ADDR")
	setString(&cfg.Storage.Driver, "PRINTVAULT_STORAGE_DRIVER")
	setString(&cfg.Storage.SQLitePath, "PRINTVAULT_SQLITE_PATH")
	setString(&cfg.Storage.PostgresDSN, "PRINTVAULT_POSTGRES_DSN")
	setString(&cfg.Blob.Driver, "PRINTVAULT_BLOB_DRIVER")
	setString(&cfg.Blob.FSRoot, "PRINTVAULT_BLOB_FS_ROOT")
	setString(&cfg.Logging.Level, "PRINTVAULT_LOG_LEVEL")
	setString(&cfg.Logging.Format, "PRINTVAULT_LOG_FORMAT")
	if err := setDuration(&cfg.Backup.LockTTL, "PRINTVAULT_LOCK_TTL"); err != nil {
		return err
	}
	if err := setInt(&cfg.Backup.MaxErrorSamples, "PRINTVAULT_MAX_ERROR_SAMPLES"); err != nil {
		return err
	}
	if err := setInt64(&cfg.Server.MaxUploadBytes, "PRINTVAULT_MAX_UPLOAD_BYTES"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setDuration(dst *Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	dst.Duration = parsed
	return nil
}

func setInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = parsed
	return nil
}

func setInt64(dst *int64, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = parsed
	return nil
}

// Validate rejects values no component can act on.
func (c Config) Validate() error {
	if !slices.Contains([]string{"memory", "sqlite", "postgres"}, c.Storage.Driver) {
		return fmt.Errorf("storage.driver must be memory, sqlite, or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
	}
	if !slices.Contains([]string{"fs", "s3", "memory"}, c.Blob.Driver) {
		return fmt.Errorf("blob.driver must be fs, s3, or memory, got %q", c.Blob.Driver)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Backup.MaxErrorSamples < 1 {
		return fmt.Errorf("backup.max_error_samples must be at least 1, got %d", c.Backup.MaxErrorSamples)
	}
	if c.Backup.LockTTL.Duration < 0 {
		return fmt.Errorf("backup.lock_ttl must not be negative")
	}
	return nil
}
