// Package postgres implements the worker-type and worker stores on
// PostgreSQL via database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/store"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// WorkerTypes is a PostgreSQL implementation of store.WorkerTypeStore.
// Modify runs SELECT ... FOR UPDATE inside a transaction, so concurrent
// Modify calls for the same record serialize on the row lock.
type WorkerTypes struct {
	db    *sql.DB
	table string
}

// NewWorkerTypes creates a worker-type store with default table names.
func NewWorkerTypes(db *sql.DB) *WorkerTypes {
	return NewWorkerTypesWithConfig(db, DefaultTableConfig())
}

// NewWorkerTypesWithConfig creates a worker-type store with custom table
// names.
func NewWorkerTypesWithConfig(db *sql.DB, config TableConfig) *WorkerTypes {
	return &WorkerTypes{db: db, table: config.WorkerTypesTable}
}

// Get returns the worker type with the given name.
// Returns store.ErrWorkerTypeNotFound if it does not exist.
func (s *WorkerTypes) Get(ctx context.Context, name fleet.WorkerTypeName) (fleet.WorkerType, error) {
	query := fmt.Sprintf(`
		SELECT name, config, provider_data
		FROM %s
		WHERE name = $1
	`, s.table)

	return scanWorkerType(s.db.QueryRowContext(ctx, query, string(name)))
}

// Put creates or replaces a worker-type record.
func (s *WorkerTypes) Put(ctx context.Context, workerType fleet.WorkerType) error {
	configJSON, err := json.Marshal(workerType.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	providerDataJSON, err := json.Marshal(workerType.ProviderData)
	if err != nil {
		return fmt.Errorf("failed to encode provider data: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name, config, provider_data)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET config = $2, provider_data = $3
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query, string(workerType.Name), configJSON, providerDataJSON); err != nil {
		return fmt.Errorf("failed to put worker type: %w", err)
	}

	return nil
}

// Modify applies fn to the worker type inside a transaction holding the row
// lock. Returns store.ErrWorkerTypeNotFound if the record does not exist.
func (s *WorkerTypes) Modify(ctx context.Context, name fleet.WorkerTypeName, fn func(*fleet.WorkerType) error) (fleet.WorkerType, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := fmt.Sprintf(`
		SELECT name, config, provider_data
		FROM %s
		WHERE name = $1
		FOR UPDATE
	`, s.table)

	workerType, err := scanWorkerType(tx.QueryRowContext(ctx, query, string(name)))
	if err != nil {
		return fleet.WorkerType{}, err
	}

	if err := fn(&workerType); err != nil {
		return fleet.WorkerType{}, err
	}

	configJSON, err := json.Marshal(workerType.Config)
	if err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to encode config: %w", err)
	}
	providerDataJSON, err := json.Marshal(workerType.ProviderData)
	if err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to encode provider data: %w", err)
	}

	update := fmt.Sprintf(`
		UPDATE %s
		SET config = $2, provider_data = $3
		WHERE name = $1
	`, s.table)

	if _, err := tx.ExecContext(ctx, update, string(name), configJSON, providerDataJSON); err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to update worker type: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to commit worker type update: %w", err)
	}

	return workerType, nil
}

// List returns every worker-type record.
func (s *WorkerTypes) List(ctx context.Context) ([]fleet.WorkerType, error) {
	query := fmt.Sprintf(`
		SELECT name, config, provider_data
		FROM %s
		ORDER BY name
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list worker types: %w", err)
	}
	defer rows.Close()

	var workerTypes []fleet.WorkerType
	for rows.Next() {
		workerType, err := scanWorkerType(rows)
		if err != nil {
			return nil, err
		}
		workerTypes = append(workerTypes, workerType)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate worker types: %w", err)
	}

	return workerTypes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkerType(row rowScanner) (fleet.WorkerType, error) {
	var (
		name             string
		configJSON       []byte
		providerDataJSON []byte
	)

	err := row.Scan(&name, &configJSON, &providerDataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.WorkerType{}, store.ErrWorkerTypeNotFound
	}
	if err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to scan worker type: %w", err)
	}

	workerType := fleet.WorkerType{Name: fleet.WorkerTypeName(name)}
	if err := json.Unmarshal(configJSON, &workerType.Config); err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := json.Unmarshal(providerDataJSON, &workerType.ProviderData); err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to decode provider data: %w", err)
	}

	return workerType, nil
}

// Workers is a PostgreSQL implementation of store.WorkerStore.
type Workers struct {
	db    *sql.DB
	table string
}

// NewWorkers creates a worker store with default table names.
func NewWorkers(db *sql.DB) *Workers {
	return NewWorkersWithConfig(db, DefaultTableConfig())
}

// NewWorkersWithConfig creates a worker store with custom table names.
func NewWorkersWithConfig(db *sql.DB, config TableConfig) *Workers {
	return &Workers{db: db, table: config.WorkersTable}
}

// Create inserts a new worker row.
// Returns store.ErrWorkerExists if the keys are taken.
func (s *Workers) Create(ctx context.Context, worker fleet.Worker) (fleet.Worker, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (worker_type, worker_id, provider, created, credentialed)
		VALUES ($1, $2, $3, $4, $5)
	`, s.table)

	_, err := s.db.ExecContext(ctx, query,
		string(worker.WorkerType),
		worker.WorkerID,
		worker.Provider,
		worker.Created,
		worker.Credentialed,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fleet.Worker{}, store.ErrWorkerExists
		}
		return fleet.Worker{}, fmt.Errorf("failed to create worker: %w", err)
	}

	return worker, nil
}

// Get returns the worker with the given keys.
// Returns store.ErrWorkerNotFound if it does not exist.
func (s *Workers) Get(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) (fleet.Worker, error) {
	query := fmt.Sprintf(`
		SELECT worker_type, worker_id, provider, created, credentialed
		FROM %s
		WHERE worker_type = $1 AND worker_id = $2
	`, s.table)

	return scanWorker(s.db.QueryRowContext(ctx, query, string(workerType), workerID))
}

// Modify applies fn to the worker inside a transaction holding the row lock.
// Returns store.ErrWorkerNotFound if the record does not exist.
func (s *Workers) Modify(ctx context.Context, workerType fleet.WorkerTypeName, workerID string, fn func(*fleet.Worker) error) (fleet.Worker, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fleet.Worker{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := fmt.Sprintf(`
		SELECT worker_type, worker_id, provider, created, credentialed
		FROM %s
		WHERE worker_type = $1 AND worker_id = $2
		FOR UPDATE
	`, s.table)

	worker, err := scanWorker(tx.QueryRowContext(ctx, query, string(workerType), workerID))
	if err != nil {
		return fleet.Worker{}, err
	}

	if err := fn(&worker); err != nil {
		return fleet.Worker{}, err
	}

	update := fmt.Sprintf(`
		UPDATE %s
		SET provider = $3, created = $4, credentialed = $5
		WHERE worker_type = $1 AND worker_id = $2
	`, s.table)

	_, err = tx.ExecContext(ctx, update,
		string(workerType),
		workerID,
		worker.Provider,
		worker.Created,
		worker.Credentialed,
	)
	if err != nil {
		return fleet.Worker{}, fmt.Errorf("failed to update worker: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fleet.Worker{}, fmt.Errorf("failed to commit worker update: %w", err)
	}

	return worker, nil
}

// Delete removes a worker row.
// Returns store.ErrWorkerNotFound if the record does not exist.
func (s *Workers) Delete(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE worker_type = $1 AND worker_id = $2
	`, s.table)

	result, err := s.db.ExecContext(ctx, query, string(workerType), workerID)
	if err != nil {
		return fmt.Errorf("failed to delete worker: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return store.ErrWorkerNotFound
	}

	return nil
}

// ListByWorkerType returns every worker belonging to a worker type.
func (s *Workers) ListByWorkerType(ctx context.Context, workerType fleet.WorkerTypeName) ([]fleet.Worker, error) {
	query := fmt.Sprintf(`
		SELECT worker_type, worker_id, provider, created, credentialed
		FROM %s
		WHERE worker_type = $1
		ORDER BY created
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query, string(workerType))
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	workers := make([]fleet.Worker, 0)
	for rows.Next() {
		worker, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workers: %w", err)
	}

	return workers, nil
}

func scanWorker(row rowScanner) (fleet.Worker, error) {
	var (
		worker       fleet.Worker
		workerType   string
		credentialed sql.NullBool
	)

	err := row.Scan(&workerType, &worker.WorkerID, &worker.Provider, &worker.Created, &credentialed)
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.Worker{}, store.ErrWorkerNotFound
	}
	if err != nil {
		return fleet.Worker{}, fmt.Errorf("failed to scan worker: %w", err)
	}

	worker.WorkerType = fleet.WorkerTypeName(workerType)
	if credentialed.Valid {
		worker.Credentialed = &credentialed.Bool
	}

	return worker, nil
}
