// Package blob is the entry point for blob storage. Callers depend on Store
// and Open; backend packages under internal/infra/blob stay private to it.
package blob

import (
	"context"
	"fmt"
	"os"

	"locationcore/internal/blob/core"
	"locationcore/internal/infra/blob/fs"
	"locationcore/internal/infra/blob/memory"
	"locationcore/internal/infra/blob/s3"
)

type (
	Store      = core.Store
	Info       = core.Info
	PutOptions = core.PutOptions
	Driver     = core.Driver
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// Config selects a backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     s3.Config
}

// ConfigFromEnv reads:
//
//	LOCATIONCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	LOCATIONCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 variables are documented on s3.ConfigFromEnv)
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Driver: Driver(os.Getenv("LOCATIONCORE_BLOB_DRIVER")),
		FSRoot: os.Getenv("LOCATIONCORE_BLOB_FS_ROOT"),
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverFilesystem
	}
	if cfg.Driver == DriverS3 {
		s3cfg, err := s3.ConfigFromEnv()
		if err != nil {
			return Config{}, err
		}
		cfg.S3 = s3cfg
	}
	return cfg, nil
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		store, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverS3:
		store, err := s3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewMemory returns an in-memory store for tests and ephemeral runs.
func NewMemory() Store { return memory.New() }
