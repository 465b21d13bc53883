package records

import (
	"fmt"
	"os"

	"fieldlog/internal/infra/persistence/memory"
	"fieldlog/internal/infra/persistence/postgres"
	"fieldlog/internal/infra/persistence/sqlite"
	"fieldlog/pkg/domain"
)

// StorageDriver identifies a concrete snapshot persister implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersister selects a snapshot backend using environment variables.
// Defaults to sqlite when unset.
//
//	FIELDLOG_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	FIELDLOG_SQLITE_PATH: path to sqlite file (default ./fieldlog.db)
//	FIELDLOG_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersister() (domain.Persister, error) {
	driver := os.Getenv("FIELDLOG_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("FIELDLOG_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("FIELDLOG_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
