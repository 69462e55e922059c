package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

// cycleRepo implements the CycleLog repository
type cycleRepo struct {
	db *sql.DB
}

// NewCycleRepo creates a new CycleLog repository
func NewCycleRepo(db *sql.DB) (repo.CycleRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cycle_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			relationships_checked INTEGER NOT NULL DEFAULT 0,
			activities_found INTEGER NOT NULL DEFAULT 0,
			new_negative INTEGER NOT NULL DEFAULT 0,
			alerts_sent INTEGER NOT NULL DEFAULT 0,
			errors TEXT NOT NULL DEFAULT '[]',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			ran_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle_logs table: %w", err)
	}
	return &cycleRepo{db: db}, nil
}

// Append persists one finished cycle
func (r *cycleRepo) Append(ctx context.Context, log *domain.CycleLog) (int64, error) {
	errs := log.Errors
	if errs == nil {
		errs = []string{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode cycle errors: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO cycle_logs (relationships_checked, activities_found, new_negative, alerts_sent, errors, duration_ms, ran_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, log.RelationshipsChecked, log.ActivitiesFound, log.NewNegative, log.AlertsSent,
		string(encoded), log.DurationMs, log.RanAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to append cycle log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read cycle log id: %w", err)
	}
	return id, nil
}

// Latest returns the most recent cycle, or ErrNotFound before the first run
func (r *cycleRepo) Latest(ctx context.Context) (*domain.CycleLog, error) {
	row := r.db.QueryRowContext(ctx, cycleSelect+` ORDER BY id DESC LIMIT 1`)
	return scanCycle(row)
}

// List lists cycles newest-first
func (r *cycleRepo) List(ctx context.Context, limit int) ([]*domain.CycleLog, error) {
	rows, err := r.db.QueryContext(ctx, cycleSelect+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.CycleLog
	for rows.Next() {
		log, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

// PruneBefore deletes cycles that ran before the cutoff
func (r *cycleRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cycle_logs WHERE ran_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cycle logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const cycleSelect = `
	SELECT id, relationships_checked, activities_found, new_negative, alerts_sent, errors, duration_ms, ran_at
	FROM cycle_logs
`

func scanCycle(row rowScanner) (*domain.CycleLog, error) {
	var log domain.CycleLog
	var encoded string
	var ranAt int64
	err := row.Scan(&log.ID, &log.RelationshipsChecked, &log.ActivitiesFound, &log.NewNegative,
		&log.AlertsSent, &encoded, &log.DurationMs, &ranAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cycle log: %w", err)
	}
	if err := json.Unmarshal([]byte(encoded), &log.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode cycle errors: %w", err)
	}
	log.RanAt = time.Unix(ranAt, 0)
	return &log, nil
}
