package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// NewSqliteStore opens the sqlite database and prepares every repository
func NewSqliteStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Concurrent readers with a single writer
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	store := &Store{closer: db.Close}
	if store.Relationships, err = NewRelationshipRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if store.Activities, err = NewActivityRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if store.Alerts, err = NewAlertRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if store.Defenses, err = NewDefenseRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if store.Cycles, err = NewCycleRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if store.Credentials, err = NewCredentialRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	if store.Channels, err = NewChannelRepo(db); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
