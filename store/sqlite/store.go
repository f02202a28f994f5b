// Package sqlite implements the worker-type and worker stores on SQLite
// via database/sql and mattn/go-sqlite3. It is intended for single-node
// deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	fleet "github.com/fleetworks/fleet-provider"
	"github.com/fleetworks/fleet-provider/store"
	"github.com/mattn/go-sqlite3"
)

// Schema returns the SQL to create the provider tables.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS provider_worker_types (
    name TEXT PRIMARY KEY,
    config TEXT NOT NULL DEFAULT '{}',
    provider_data TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS provider_workers (
    worker_type TEXT NOT NULL,
    worker_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    created TIMESTAMP NOT NULL,
    credentialed BOOLEAN,
    PRIMARY KEY (worker_type, worker_id)
);
`
}

// WorkerTypes is a SQLite implementation of store.WorkerTypeStore.
//
// SQLite has no row-level locking, so Modify serializes on a process-level
// mutex in addition to running inside a transaction. That is sufficient
// because a SQLite database only ever has one writing process.
type WorkerTypes struct {
	db *sql.DB
	mu sync.Mutex
}

// NewWorkerTypes creates a worker-type store backed by db. The caller is
// responsible for applying Schema first.
func NewWorkerTypes(db *sql.DB) *WorkerTypes {
	return &WorkerTypes{db: db}
}

// Get returns the worker type with the given name.
// Returns store.ErrWorkerTypeNotFound if it does not exist.
func (s *WorkerTypes) Get(ctx context.Context, name fleet.WorkerTypeName) (fleet.WorkerType, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, config, provider_data
		FROM provider_worker_types
		WHERE name = ?
	`, string(name))

	return scanWorkerType(row)
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_worker_types (name, config, provider_data)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET config = excluded.config, provider_data = excluded.provider_data
	`, string(workerType.Name), configJSON, providerDataJSON)
	if err != nil {
		return fmt.Errorf("failed to put worker type: %w", err)
	}

	return nil
}

// Modify applies fn to the worker type while holding the store mutex.
// Returns store.ErrWorkerTypeNotFound if the record does not exist.
func (s *WorkerTypes) Modify(ctx context.Context, name fleet.WorkerTypeName, fn func(*fleet.WorkerType) error) (fleet.WorkerType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	workerType, err := scanWorkerType(tx.QueryRowContext(ctx, `
		SELECT name, config, provider_data
		FROM provider_worker_types
		WHERE name = ?
	`, string(name)))
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

	_, err = tx.ExecContext(ctx, `
		UPDATE provider_worker_types
		SET config = ?, provider_data = ?
		WHERE name = ?
	`, configJSON, providerDataJSON, string(name))
	if err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to update worker type: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fleet.WorkerType{}, fmt.Errorf("failed to commit worker type update: %w", err)
	}

	return workerType, nil
}

// List returns every worker-type record.
func (s *WorkerTypes) List(ctx context.Context) ([]fleet.WorkerType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, config, provider_data
		FROM provider_worker_types
		ORDER BY name
	`)
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

// Workers is a SQLite implementation of store.WorkerStore.
type Workers struct {
	db *sql.DB
	mu sync.Mutex
}

// NewWorkers creates a worker store backed by db. The caller is responsible
// for applying Schema first.
func NewWorkers(db *sql.DB) *Workers {
	return &Workers{db: db}
}

// Create inserts a new worker row.
// Returns store.ErrWorkerExists if the keys are taken.
func (s *Workers) Create(ctx context.Context, worker fleet.Worker) (fleet.Worker, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_workers (worker_type, worker_id, provider, created, credentialed)
		VALUES (?, ?, ?, ?, ?)
	`,
		string(worker.WorkerType),
		worker.WorkerID,
		worker.Provider,
		worker.Created,
		worker.Credentialed,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fleet.Worker{}, store.ErrWorkerExists
		}
		return fleet.Worker{}, fmt.Errorf("failed to create worker: %w", err)
	}

	return worker, nil
}

// Get returns the worker with the given keys.
// Returns store.ErrWorkerNotFound if it does not exist.
func (s *Workers) Get(ctx context.Context, workerType fleet.WorkerTypeName, workerID string) (fleet.Worker, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT worker_type, worker_id, provider, created, credentialed
		FROM provider_workers
		WHERE worker_type = ? AND worker_id = ?
	`, string(workerType), workerID)

	return scanWorker(row)
}

// Modify applies fn to the worker while holding the store mutex.
// Returns store.ErrWorkerNotFound if the record does not exist.
func (s *Workers) Modify(ctx context.Context, workerType fleet.WorkerTypeName, workerID string, fn func(*fleet.Worker) error) (fleet.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fleet.Worker{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	worker, err := scanWorker(tx.QueryRowContext(ctx, `
		SELECT worker_type, worker_id, provider, created, credentialed
		FROM provider_workers
		WHERE worker_type = ? AND worker_id = ?
	`, string(workerType), workerID))
	if err != nil {
		return fleet.Worker{}, err
	}

	if err := fn(&worker); err != nil {
		return fleet.Worker{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE provider_workers
		SET provider = ?, created = ?, credentialed = ?
		WHERE worker_type = ? AND worker_id = ?
	`,
		worker.Provider,
		worker.Created,
		worker.Credentialed,
		string(workerType),
		workerID,
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
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM provider_workers
		WHERE worker_type = ? AND worker_id = ?
	`, string(workerType), workerID)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_type, worker_id, provider, created, credentialed
		FROM provider_workers
		WHERE worker_type = ?
		ORDER BY created
	`, string(workerType))
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
