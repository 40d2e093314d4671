// Package blob selects an archive storage backend and lays out the material
// archive on top of it.
package blob

import (
	"context"
	"fmt"

	"mofgen/internal/blob/core"
	"mofgen/internal/infra/blob/fs"
	"mofgen/internal/infra/blob/memory"
	"mofgen/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrNotFound is matched by errors for missing keys.
var ErrNotFound = core.ErrNotFound

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open returns the configured store. An empty driver selects the filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		st, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverS3:
		st, err := s3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memory.New() }
