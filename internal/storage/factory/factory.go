// Package factory opens the storage backend selected by configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/gravadigital/eventhub-api/internal/config"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/memory"
	"github.com/gravadigital/eventhub-api/internal/storage/postgres"
	"github.com/gravadigital/eventhub-api/internal/storage/sqlite"
)

// StorageType represents the type of storage backend
type StorageType string

const (
	// StorageTypePostgres represents PostgreSQL storage
	StorageTypePostgres StorageType = "postgres"
	// StorageTypeSQLite represents a single-file SQLite database
	StorageTypeSQLite StorageType = "sqlite"
	// StorageTypeMemory keeps everything in process memory
	StorageTypeMemory StorageType = "memory"
)

// Factory creates storage backends
type Factory struct {
	storageType StorageType
}

// NewFactory creates a new storage factory
func NewFactory(storageType StorageType) *Factory {
	return &Factory{
		storageType: storageType,
	}
}

// FromConfig returns a factory for the configured STORAGE_TYPE
func FromConfig(cfg *config.Config) (*Factory, error) {
	st, err := ValidateStorageType(cfg.Storage.Type)
	if err != nil {
		return nil, err
	}
	return NewFactory(st), nil
}

// Type returns the backend type this factory opens
func (f *Factory) Type() StorageType {
	return f.storageType
}

// Open creates a backend of the configured type
func (f *Factory) Open(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch f.storageType {
	case StorageTypePostgres:
		backend, err = openPostgres(ctx, cfg)
	case StorageTypeSQLite:
		backend, err = openSQLite(cfg)
	case StorageTypeMemory:
		backend = memory.New()
	default:
		err = fmt.Errorf("unsupported storage type: %s", f.storageType)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// the helpers keep a nil *Store from becoming a non-nil Backend

func openPostgres(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	s, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openSQLite(cfg *config.Config) (storage.Backend, error) {
	s, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open is shorthand for FromConfig followed by Factory.Open
func Open(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	f, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return f.Open(ctx, cfg)
}

// GetSupportedTypes returns a list of supported storage types
func GetSupportedTypes() []StorageType {
	return []StorageType{
		StorageTypePostgres,
		StorageTypeSQLite,
		StorageTypeMemory,
	}
}

// ValidateStorageType validates if a storage type is supported
func ValidateStorageType(storageType string) (StorageType, error) {
	st := StorageType(storageType)

	for _, supported := range GetSupportedTypes() {
		if st == supported {
			return st, nil
		}
	}

	return "", fmt.Errorf("unsupported storage type: %s. Supported types: %v", storageType, GetSupportedTypes())
}
