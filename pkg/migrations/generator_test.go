package migrations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGeneratePostgres(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "test_migration.sql",
		SchemaName:       "fleet",
		WorkerTypesTable: "worker_types",
		WorkersTable:     "workers",
	}

	err := GeneratePostgres(&config)
	if err != nil {
		t.Fatalf("GeneratePostgres failed: %v", err)
	}

	// Verify file was created
	outputPath := filepath.Join(tmpDir, config.OutputFilename)
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}

	sql := string(content)

	// Verify schema creation
	if !strings.Contains(sql, "CREATE SCHEMA IF NOT EXISTS fleet") {
		t.Error("Missing schema creation")
	}

	// Verify worker_types table
	requiredWorkerTypesStrings := []string{
		"CREATE TABLE IF NOT EXISTS fleet.worker_types",
		"name TEXT PRIMARY KEY",
		"config JSONB NOT NULL DEFAULT '{}'",
		"provider_data JSONB NOT NULL DEFAULT '{}'",
	}

	for _, required := range requiredWorkerTypesStrings {
		if !strings.Contains(sql, required) {
			t.Errorf("worker_types table missing required string: %s", required)
		}
	}

	// Verify workers table
	requiredWorkersStrings := []string{
		"CREATE TABLE IF NOT EXISTS fleet.workers",
		"worker_type TEXT NOT NULL REFERENCES fleet.worker_types(name)",
		"worker_id TEXT NOT NULL",
		"provider TEXT NOT NULL",
		"created TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		"credentialed BOOLEAN",
		"PRIMARY KEY (worker_type, worker_id)",
	}

	for _, required := range requiredWorkersStrings {
		if !strings.Contains(sql, required) {
			t.Errorf("workers table missing required string: %s", required)
		}
	}

	// Verify index is created
	if !strings.Contains(sql, "idx_workers_worker_type_created") {
		t.Error("Generated SQL missing index: idx_workers_worker_type_created")
	}
}

func TestGeneratePostgres_CustomNames(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "custom_migration.sql",
		SchemaName:       "custom_schema",
		WorkerTypesTable: "custom_worker_types",
		WorkersTable:     "custom_workers",
	}

	err := GeneratePostgres(&config)
	if err != nil {
		t.Fatalf("GeneratePostgres failed: %v", err)
	}

	outputPath := filepath.Join(tmpDir, config.OutputFilename)
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}

	sql := string(content)

	// Verify custom names are used
	if !strings.Contains(sql, "CREATE SCHEMA IF NOT EXISTS custom_schema") {
		t.Error("Custom schema name not used")
	}
	if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS custom_schema.custom_worker_types") {
		t.Error("Custom worker types table name not used")
	}
	if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS custom_schema.custom_workers") {
		t.Error("Custom workers table name not used")
	}
}

func TestGenerateMySQL(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "test_migration.sql",
		SchemaName:       "fleet",
		WorkerTypesTable: "worker_types",
		WorkersTable:     "workers",
	}

	err := GenerateMySQL(&config)
	if err != nil {
		t.Fatalf("GenerateMySQL failed: %v", err)
	}

	// Verify file was created
	outputPath := filepath.Join(tmpDir, config.OutputFilename)
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}

	sql := string(content)

	// Verify database creation
	if !strings.Contains(sql, "CREATE DATABASE IF NOT EXISTS fleet") {
		t.Error("Missing database creation")
	}
	if !strings.Contains(sql, "USE fleet") {
		t.Error("Missing USE database statement")
	}

	// Verify worker_types table for MySQL
	requiredWorkerTypesStrings := []string{
		"CREATE TABLE IF NOT EXISTS worker_types",
		"name VARCHAR(255) PRIMARY KEY",
		"config JSON NOT NULL",
		"provider_data JSON NOT NULL",
		"ENGINE=InnoDB",
		"CHARSET=utf8mb4",
	}

	for _, required := range requiredWorkerTypesStrings {
		if !strings.Contains(sql, required) {
			t.Errorf("worker_types table missing required string: %s", required)
		}
	}

	// Verify workers table
	requiredWorkersStrings := []string{
		"CREATE TABLE IF NOT EXISTS workers",
		"worker_type VARCHAR(255) NOT NULL",
		"worker_id VARCHAR(255) NOT NULL",
		"provider VARCHAR(255) NOT NULL",
		"created TIMESTAMP(6) NOT NULL",
		"credentialed BOOLEAN",
		"PRIMARY KEY (worker_type, worker_id)",
		"FOREIGN KEY (worker_type) REFERENCES worker_types(name)",
	}

	for _, required := range requiredWorkersStrings {
		if !strings.Contains(sql, required) {
			t.Errorf("workers table missing required string: %s", required)
		}
	}

	// Verify index
	if !strings.Contains(sql, "idx_workers_worker_type_created") {
		t.Error("Generated SQL missing index: idx_workers_worker_type_created")
	}
}

func TestGenerateSQLite(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "test_migration.sql",
		SchemaName:       "fleet",
		WorkerTypesTable: "worker_types",
		WorkersTable:     "workers",
	}

	err := GenerateSQLite(&config)
	if err != nil {
		t.Fatalf("GenerateSQLite failed: %v", err)
	}

	// Verify file was created
	outputPath := filepath.Join(tmpDir, config.OutputFilename)
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}

	sql := string(content)

	// Verify worker_types table for SQLite (with prefix)
	requiredWorkerTypesStrings := []string{
		"CREATE TABLE IF NOT EXISTS fleet_worker_types",
		"name TEXT PRIMARY KEY",
		"config TEXT NOT NULL DEFAULT '{}'",
		"provider_data TEXT NOT NULL DEFAULT '{}'",
	}

	for _, required := range requiredWorkerTypesStrings {
		if !strings.Contains(sql, required) {
			t.Errorf("worker_types table missing required string: %s", required)
		}
	}

	// Verify workers table
	requiredWorkersStrings := []string{
		"CREATE TABLE IF NOT EXISTS fleet_workers",
		"worker_type TEXT NOT NULL",
		"worker_id TEXT NOT NULL",
		"provider TEXT NOT NULL",
		"credentialed BOOLEAN",
		"PRIMARY KEY (worker_type, worker_id)",
	}

	for _, required := range requiredWorkersStrings {
		if !strings.Contains(sql, required) {
			t.Errorf("workers table missing required string: %s", required)
		}
	}

	// Verify index (with table prefix)
	if !strings.Contains(sql, "idx_fleet_workers_worker_type_created") {
		t.Error("Generated SQL missing index: idx_fleet_workers_worker_type_created")
	}
}

func TestGenerateSQLite_CustomNames(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "custom_migration.sql",
		SchemaName:       "custom",
		WorkerTypesTable: "custom_worker_types",
		WorkersTable:     "custom_workers",
	}

	err := GenerateSQLite(&config)
	if err != nil {
		t.Fatalf("GenerateSQLite failed: %v", err)
	}

	outputPath := filepath.Join(tmpDir, config.OutputFilename)
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}

	sql := string(content)

	// Verify custom names are used (with schema prefix)
	if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS custom_custom_worker_types") {
		t.Error("Custom worker types table name not used")
	}
	if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS custom_custom_workers") {
		t.Error("Custom workers table name not used")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	// Verify defaults
	if config.OutputFolder != "migrations" {
		t.Errorf("Expected OutputFolder to be 'migrations', got '%s'", config.OutputFolder)
	}
	if config.SchemaName != "fleet" {
		t.Errorf("Expected SchemaName to be 'fleet', got '%s'", config.SchemaName)
	}
	if config.WorkerTypesTable != "worker_types" {
		t.Errorf("Expected WorkerTypesTable to be 'worker_types', got '%s'", config.WorkerTypesTable)
	}
	if config.WorkersTable != "workers" {
		t.Errorf("Expected WorkersTable to be 'workers', got '%s'", config.WorkersTable)
	}

	// Verify filename has timestamp format
	if !strings.HasSuffix(config.OutputFilename, "_init_fleet_provider.sql") {
		t.Errorf("Expected OutputFilename to end with '_init_fleet_provider.sql', got '%s'", config.OutputFilename)
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		fieldName string
		wantError bool
	}{
		{"valid simple", "table_name", "TableName", false},
		{"valid with numbers", "table123", "TableName", false},
		{"valid with underscores", "my_table_name", "TableName", false},
		{"empty string", "", "TableName", true},
		{"starts with number", "123table", "TableName", true},
		{"contains spaces", "table name", "TableName", true},
		{"contains dash", "table-name", "TableName", true},
		{"contains semicolon", "table;DROP TABLE users", "TableName", true},
		{"contains quotes", "table'name", "TableName", true},
		{"sql injection attempt", "table; DROP TABLE users--", "TableName", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIdentifier(tt.value, tt.fieldName)
			if tt.wantError && err == nil {
				t.Errorf("Expected error for value '%s', got nil", tt.value)
			}
			if !tt.wantError && err != nil {
				t.Errorf("Expected no error for value '%s', got: %v", tt.value, err)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantError bool
	}{
		{
			name: "valid config",
			config: Config{
				SchemaName:       "fleet",
				WorkerTypesTable: "worker_types",
				WorkersTable:     "workers",
			},
			wantError: false,
		},
		{
			name: "invalid schema name",
			config: Config{
				SchemaName:       "schema; DROP TABLE users--",
				WorkerTypesTable: "worker_types",
				WorkersTable:     "workers",
			},
			wantError: true,
		},
		{
			name: "invalid worker types table",
			config: Config{
				SchemaName:       "fleet",
				WorkerTypesTable: "table'; DROP TABLE users--",
				WorkersTable:     "workers",
			},
			wantError: true,
		},
		{
			name: "empty schema name",
			config: Config{
				SchemaName:       "",
				WorkerTypesTable: "worker_types",
				WorkersTable:     "workers",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(&tt.config)
			if tt.wantError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestGeneratePostgres_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "test.sql",
		SchemaName:       "schema'; DROP TABLE users--",
		WorkerTypesTable: "worker_types",
		WorkersTable:     "workers",
	}

	err := GeneratePostgres(&config)
	if err == nil {
		t.Fatal("Expected error for invalid schema name, got nil")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected error to mention 'invalid configuration', got: %v", err)
	}
}

func TestGenerateMySQL_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "test.sql",
		SchemaName:       "fleet",
		WorkerTypesTable: "table'; DROP TABLE users--",
		WorkersTable:     "workers",
	}

	err := GenerateMySQL(&config)
	if err == nil {
		t.Fatal("Expected error for invalid table name, got nil")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected error to mention 'invalid configuration', got: %v", err)
	}
}

func TestGenerateSQLite_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "test.sql",
		SchemaName:       "fleet",
		WorkerTypesTable: "worker_types",
		WorkersTable:     "workers'; DROP TABLE users--",
	}

	err := GenerateSQLite(&config)
	if err == nil {
		t.Fatal("Expected error for invalid workers table name, got nil")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected error to mention 'invalid configuration', got: %v", err)
	}
}
