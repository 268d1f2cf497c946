package core

import (
	"context"
	"fmt"
	"os"

	"locationcore/internal/infra/persistence/memory"
	"locationcore/internal/infra/persistence/postgres"
	"locationcore/internal/infra/persistence/sqlite"
	"locationcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterises a backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageConfigFromEnv reads the backend selection from the environment.
// Defaults to sqlite when unset.
//
//	LOCATIONCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	LOCATIONCORE_SQLITE_PATH: path to sqlite file (default ./locationcore.db)
//	LOCATIONCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	driver := StorageDriver(os.Getenv("LOCATIONCORE_STORAGE_DRIVER"))
	if driver == "" {
		driver = StorageSQLite
	}
	return StorageConfig{
		Driver:      driver,
		SQLitePath:  os.Getenv("LOCATIONCORE_SQLITE_PATH"),
		PostgresDSN: os.Getenv("LOCATIONCORE_POSTGRES_DSN"),
	}
}

// OpenPersistentStore constructs the configured backend. A nil engine falls
// back to NewDefaultRulesEngine.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine, opts ...memory.Option) (domain.PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
