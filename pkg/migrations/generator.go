package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.SchemaName, "SchemaName"); err != nil {
		return err
	}
	if err := validateIdentifier(config.WorkerTypesTable, "WorkerTypesTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.WorkersTable, "WorkersTable"); err != nil {
		return err
	}
	return nil
}

// Config configures migration generation for the provider tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// SchemaName is the database schema name (PostgreSQL) or database name (MySQL)
	// For SQLite, table name prefixes are used instead of schemas (e.g., fleet_table_name)
	SchemaName string

	// WorkerTypesTable is the name of the worker-type records table
	WorkerTypesTable string

	// WorkersTable is the name of the worker records table
	WorkersTable string
}

// DefaultConfig returns the default configuration for provider migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:     "migrations",
		OutputFilename:   fmt.Sprintf("%s_init_fleet_provider.sql", timestamp),
		SchemaName:       "fleet",
		WorkerTypesTable: "worker_types",
		WorkersTable:     "workers",
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generatePostgresSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generatePostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Fleet Provider Infrastructure Migration
-- Generated: %s
-- Database: PostgreSQL

-- Create schema for provider tables
CREATE SCHEMA IF NOT EXISTS %s;

-- Worker-type records table
-- Stores the placement configuration and tracked cloud operations per worker type
-- config and provider_data are JSON documents owned by the provider
CREATE TABLE IF NOT EXISTS %s.%s (
    name TEXT PRIMARY KEY,
    config JSONB NOT NULL DEFAULT '{}',
    provider_data JSONB NOT NULL DEFAULT '{}'
);

-- Worker records table
-- One row per provisioned instance, created before the cloud create call returns
-- credentialed stays NULL until a credential has been issued for the worker
CREATE TABLE IF NOT EXISTS %s.%s (
    worker_type TEXT NOT NULL REFERENCES %s.%s(name),
    worker_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    credentialed BOOLEAN,
    PRIMARY KEY (worker_type, worker_id)
);

-- Index for listing workers by worker type in creation order
CREATE INDEX IF NOT EXISTS idx_%s_worker_type_created
    ON %s.%s (worker_type, created);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchemaName, config.WorkerTypesTable,
		config.SchemaName, config.WorkersTable,
		config.SchemaName, config.WorkerTypesTable,
		config.WorkersTable, config.SchemaName, config.WorkersTable,
	)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateMySQLSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Fleet Provider Infrastructure Migration
-- Generated: %s
-- Database: MySQL/MariaDB

-- Create database for provider tables if it doesn't exist
-- In MySQL, we use a separate database instead of schema
CREATE DATABASE IF NOT EXISTS %s
    DEFAULT CHARACTER SET utf8mb4
    DEFAULT COLLATE utf8mb4_unicode_ci;

-- Switch to provider database
USE %s;

-- Worker-type records table
-- Stores the placement configuration and tracked cloud operations per worker type
-- config and provider_data are JSON documents owned by the provider
CREATE TABLE IF NOT EXISTS %s (
    name VARCHAR(255) PRIMARY KEY,
    config JSON NOT NULL,
    provider_data JSON NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Worker records table
-- One row per provisioned instance, created before the cloud create call returns
-- credentialed stays NULL until a credential has been issued for the worker
CREATE TABLE IF NOT EXISTS %s (
    worker_type VARCHAR(255) NOT NULL,
    worker_id VARCHAR(255) NOT NULL,
    provider VARCHAR(255) NOT NULL,
    created TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    credentialed BOOLEAN,
    PRIMARY KEY (worker_type, worker_id),
    FOREIGN KEY (worker_type) REFERENCES %s(name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Index for listing workers by worker type in creation order
CREATE INDEX idx_%s_worker_type_created
    ON %s (worker_type, created);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchemaName,
		config.WorkerTypesTable,
		config.WorkersTable,
		config.WorkerTypesTable,
		config.WorkersTable, config.WorkersTable,
	)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateSQLiteSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateSQLiteSQL(config *Config) string {
	// SQLite doesn't support schemas, so we use table name prefixes instead
	workerTypesTable := config.SchemaName + "_" + config.WorkerTypesTable
	workersTable := config.SchemaName + "_" + config.WorkersTable

	return fmt.Sprintf(`-- Fleet Provider Infrastructure Migration
-- Generated: %s
-- Database: SQLite

-- Worker-type records table
-- Stores the placement configuration and tracked cloud operations per worker type
-- config and provider_data are JSON documents owned by the provider
CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    config TEXT NOT NULL DEFAULT '{}',
    provider_data TEXT NOT NULL DEFAULT '{}'
);

-- Worker records table
-- One row per provisioned instance, created before the cloud create call returns
-- credentialed stays NULL until a credential has been issued for the worker
CREATE TABLE IF NOT EXISTS %s (
    worker_type TEXT NOT NULL,
    worker_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    created TEXT NOT NULL DEFAULT (datetime('now')),
    credentialed BOOLEAN,
    PRIMARY KEY (worker_type, worker_id)
);

-- Index for listing workers by worker type in creation order
CREATE INDEX IF NOT EXISTS idx_%s_worker_type_created
    ON %s (worker_type, created);
`,
		time.Now().Format(time.RFC3339),
		workerTypesTable,
		workersTable,
		workersTable, workersTable,
	)
}
