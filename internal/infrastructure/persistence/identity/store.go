// Package identity provides the durable and session-scoped stores behind
// visitor and session id resolution.
package identity

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	schema "github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/database"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
)

// SQLStore persists identities in a sqlite file or a remote libsql database.
type SQLStore struct {
	db *database.DB
}

// OpenSQLStore connects to dsn, picking the driver from its scheme, and
// ensures the schema exists.
func OpenSQLStore(dsn, authToken string, logger *logging.ChanneledLogger) (*SQLStore, error) {
	driver := database.DriverForDSN(dsn)
	db, err := database.NewConnectionWithLogger(driver, database.BuildDSN(dsn, authToken), logger)
	if err != nil {
		return nil, err
	}
	if err := schema.NewTableCreator().CreateSchema(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// Get returns the stored value for key.
func (s *SQLStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM beacon_identity WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read identity %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO beacon_identity (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to write identity %s: %w", key, err)
	}
	return nil
}

// Delete removes key, the equivalent of clearing browser storage.
func (s *SQLStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM beacon_identity WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", key, err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// MemoryStore is a session-scoped store that lives as long as the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
