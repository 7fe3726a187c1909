// Package store persists agents and their experience logs in an embedded
// SQLite database. Memories and reflections are append-only; the only rows
// ever updated in place are the agents themselves (position and
// interaction counter).
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an agent id does not exist.
var ErrNotFound = errors.New("agent not found")

// Store wraps the embedded SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens (or creates) the database at path and applies the schema.
func New(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// _txlock=immediate makes every transaction take the write lock up
	// front. The existence-check transactions in AddMemory/AddReflection
	// would otherwise start as readers and hit SQLITE_BUSY on the
	// read-to-write upgrade, which bypasses the busy_timeout handler.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("store opened", zap.String("path", path))
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		name              TEXT NOT NULL,
		x_position        REAL NOT NULL DEFAULT 0,
		y_position        REAL NOT NULL DEFAULT 0,
		interaction_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS memories (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id        INTEGER NOT NULL REFERENCES agents(id),
		type            TEXT NOT NULL,
		content         TEXT NOT NULL,
		timestamp       TEXT NOT NULL,
		emotional_state TEXT NOT NULL DEFAULT 'neutral',
		relevance       REAL NOT NULL DEFAULT 0.5
	);
	CREATE INDEX IF NOT EXISTS idx_memories_agent_ts ON memories(agent_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_type_id ON memories(type, id);

	CREATE TABLE IF NOT EXISTS reflections (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id  INTEGER NOT NULL REFERENCES agents(id),
		content   TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reflections_agent_ts ON reflections(agent_id, timestamp DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close shuts down the database.
func (s *Store) Close() error {
	return s.db.Close()
}
