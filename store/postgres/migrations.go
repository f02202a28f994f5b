package postgres

import "fmt"

// TableConfig configures the table names used by the stores.
type TableConfig struct {
	// WorkerTypesTable is the name of the table storing worker-type records.
	WorkerTypesTable string

	// WorkersTable is the name of the table storing worker records.
	WorkersTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		WorkerTypesTable: "provider_worker_types",
		WorkersTable:     "provider_workers",
	}
}

// MigrationUp returns the SQL to create the provider tables. Worker rows
// reference their worker type; credentialed stays NULL until a credential
// has been issued for the worker.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create worker-type records table
CREATE TABLE %s (
    name TEXT PRIMARY KEY,
    config JSONB NOT NULL DEFAULT '{}',
    provider_data JSONB NOT NULL DEFAULT '{}'
);

-- Create worker records table
CREATE TABLE %s (
    worker_type TEXT NOT NULL REFERENCES %s(name),
    worker_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    credentialed BOOLEAN,
    PRIMARY KEY (worker_type, worker_id)
);

-- Index for listing workers by worker type in creation order
CREATE INDEX idx_workers_worker_type_created ON %s(worker_type, created);
`, config.WorkerTypesTable, config.WorkersTable, config.WorkerTypesTable, config.WorkersTable)
}

// MigrationDown returns the SQL to drop the provider tables. Workers are
// dropped first due to the foreign key constraint.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop worker records table (must be dropped first due to foreign key)
DROP TABLE IF EXISTS %s;

-- Drop worker-type records table
DROP TABLE IF EXISTS %s;
`, config.WorkersTable, config.WorkerTypesTable)
}
