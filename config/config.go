// Package config loads facevault settings from the environment.
//
// Variables use the FACEVAULT_ prefix, e.g. FACEVAULT_DATA_DIR or
// FACEVAULT_DIMENSION. Only prefixed names are read, so unrelated variables
// such as HOME or LOG_LEVEL never leak in. An optional .env file is read first; variables already
// set in the environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/persistence"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "FACEVAULT"

// Config validation errors
var (
	ErrInvalidDataDir     = errors.New("data_dir cannot be empty")
	ErrInvalidDimension   = errors.New("dimension must be positive")
	ErrInvalidKind        = errors.New("index_kind must be flat, ivf or graph")
	ErrInvalidCompression = errors.New("compression must be none, lz4 or zstd")
	ErrInvalidWorkers     = errors.New("batch_workers must not be negative")
	ErrInvalidThresholds  = errors.New("match_far must exceed match_near")
	ErrInvalidLogFormat   = errors.New("log_format must be 'json' or 'text'")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidBackup      = errors.New("backup_target must be none, local, s3 or minio")
	ErrMissingBackupPath  = errors.New("backup target requires backup_path or backup_bucket")
)

// Config holds every setting of a facevault process.
type Config struct {
	DataDir     string `split_words:"true" default:"./data/index"`
	Dimension   int    `default:"512"`
	IndexKind   string `split_words:"true" default:"flat"`
	Compression string `default:"zstd"`

	IVFLists      int `split_words:"true" default:"64"`
	IVFProbes     int `split_words:"true" default:"8"`
	GraphM        int `split_words:"true" default:"32"`
	GraphEfSearch int `split_words:"true" default:"256"`

	ExtractorURL     string        `split_words:"true" default:"http://localhost:8001"`
	ExtractorTimeout time.Duration `split_words:"true" default:"30s"`
	ExtractorRPS     float64       `split_words:"true" default:"0"`
	ExtractorBurst   int           `split_words:"true" default:"0"`

	BatchWorkers  int           `split_words:"true" default:"4"`
	WatchDebounce time.Duration `split_words:"true" default:"2s"`

	ArchiveDir  string `split_words:"true"`
	OriginsFile string `split_words:"true"`

	MatchNear float32 `split_words:"true" default:"500"`
	MatchFar  float32 `split_words:"true" default:"1000"`

	RedisURL string `split_words:"true"`

	BackupTarget  string `split_words:"true" default:"none"`
	BackupPath    string `split_words:"true"`
	BackupBucket  string `split_words:"true"`
	BackupPrefix  string `split_words:"true" default:"facevault/"`
	BackupKeep    int    `split_words:"true" default:"7"`
	RestoreOnOpen bool   `split_words:"true" default:"false"`

	S3Region   string `split_words:"true"`
	S3Endpoint string `split_words:"true"`

	MinioEndpoint  string `split_words:"true" default:"localhost:9000"`
	MinioAccessKey string `split_words:"true"`
	MinioSecretKey string `split_words:"true"`
	MinioSecure    bool   `split_words:"true" default:"false"`

	MetricsAddr string `split_words:"true"`
	LogFormat   string `split_words:"true" default:"text"`
	LogLevel    string `split_words:"true" default:"info"`
}

// Load reads the .env files (default ".env", missing files are ignored) and
// then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrInvalidDataDir
	}
	if c.Dimension <= 0 {
		return ErrInvalidDimension
	}
	if _, err := index.ParseKind(c.IndexKind); err != nil {
		return ErrInvalidKind
	}
	if _, err := persistence.ParseCompression(c.Compression); err != nil {
		return ErrInvalidCompression
	}
	if c.BatchWorkers < 0 {
		return ErrInvalidWorkers
	}
	if c.MatchFar <= c.MatchNear {
		return ErrInvalidThresholds
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return ErrInvalidLogFormat
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch c.BackupTarget {
	case "none", "":
	case "local":
		if c.BackupPath == "" {
			return ErrMissingBackupPath
		}
	case "s3", "minio":
		if c.BackupBucket == "" {
			return ErrMissingBackupPath
		}
	default:
		return ErrInvalidBackup
	}
	return nil
}

// Kind returns the parsed index kind. Validate must have succeeded.
func (c *Config) Kind() index.Kind {
	k, _ := index.ParseKind(c.IndexKind)
	return k
}

// CompressionCodec returns the parsed snapshot compression. Validate must
// have succeeded.
func (c *Config) CompressionCodec() persistence.Compression {
	comp, _ := persistence.ParseCompression(c.Compression)
	return comp
}
