package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sovereign-research-orchestrator/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the embedded single-writer SPO fact store.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at path, creating the schema and
// running any pending migrations.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Get(logging.CategoryStore).Info("opening fact store at %s", path)

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryStore).Debug("pragma failed: %s: %v", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Get(logging.CategoryStore).Info("fact store ready at %s", path)
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS spo_triplets (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		predicate TEXT NOT NULL,
		object TEXT NOT NULL,
		confidence REAL NOT NULL,
		tier TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		provenance_blob TEXT NOT NULL,
		metadata_blob TEXT,
		source_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_spo_subject ON spo_triplets(subject);
	CREATE INDEX IF NOT EXISTS idx_spo_predicate ON spo_triplets(predicate);
	CREATE INDEX IF NOT EXISTS idx_spo_object ON spo_triplets(object);
	CREATE INDEX IF NOT EXISTS idx_spo_tier ON spo_triplets(tier);
	CREATE INDEX IF NOT EXISTS idx_spo_confidence ON spo_triplets(confidence DESC);
	CREATE INDEX IF NOT EXISTS idx_spo_created ON spo_triplets(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_spo_source ON spo_triplets(source_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS spo_fts USING fts5(
		id UNINDEXED, subject, predicate, object, content=''
	);

	CREATE TRIGGER IF NOT EXISTS spo_fts_insert AFTER INSERT ON spo_triplets BEGIN
		INSERT INTO spo_fts(rowid, id, subject, predicate, object)
		VALUES (new.rowid, new.id, new.subject, new.predicate, new.object);
	END;

	CREATE TRIGGER IF NOT EXISTS spo_fts_delete AFTER DELETE ON spo_triplets BEGIN
		INSERT INTO spo_fts(spo_fts, rowid, id, subject, predicate, object)
		VALUES ('delete', old.rowid, old.id, old.subject, old.predicate, old.object);
	END;

	CREATE TRIGGER IF NOT EXISTS spo_fts_update AFTER UPDATE ON spo_triplets BEGIN
		INSERT INTO spo_fts(spo_fts, rowid, id, subject, predicate, object)
		VALUES ('delete', old.rowid, old.id, old.subject, old.predicate, old.object);
		INSERT INTO spo_fts(rowid, id, subject, predicate, object)
		VALUES (new.rowid, new.id, new.subject, new.predicate, new.object);
	END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	logging.Get(logging.CategoryStore).Info("closing fact store")
	return s.db.Close()
}

// DB returns the underlying *sql.DB, for components (e.g. migrations, tests)
// that need direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}
