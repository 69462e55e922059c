package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

// activityRepo implements the Activity repository
type activityRepo struct {
	db *sql.DB
}

// NewActivityRepo creates a new Activity repository
func NewActivityRepo(db *sql.DB) (repo.ActivityRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			relationship_id INTEGER NOT NULL DEFAULT 0,
			external_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			author_key TEXT NOT NULL DEFAULT '',
			author_name TEXT NOT NULL DEFAULT '',
			author_address TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			comment TEXT NOT NULL DEFAULT '',
			negative INTEGER NOT NULL DEFAULT 0,
			alerted INTEGER NOT NULL DEFAULT 0,
			event_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create activities table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_activities_negative ON activities(negative, id)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create activities index: %w", err)
	}
	return &activityRepo{db: db}, nil
}

// Create persists a new activity record.
// The event time is stored in unix milliseconds; everything else in seconds.
func (r *activityRepo) Create(ctx context.Context, rec *domain.ActivityRecord) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO activities (relationship_id, external_id, kind, author_key, author_name, author_address,
			score, comment, negative, alerted, event_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`,
		rec.RelationshipID,
		rec.ExternalID,
		rec.Kind,
		rec.AuthorKey,
		rec.AuthorName,
		rec.AuthorAddress,
		rec.Score,
		rec.Comment,
		boolToInt(rec.Negative),
		rec.EventAt.UnixMilli(),
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read activity id: %w", err)
	}
	return id, nil
}

// ExistsExternalID reports whether the dedup key is already stored
func (r *activityRepo) ExistsExternalID(ctx context.Context, externalID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM activities WHERE external_id = ?`, externalID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check external id: %w", err)
	}
	return true, nil
}

// GetByID gets an activity record by id
func (r *activityRepo) GetByID(ctx context.Context, id int64) (*domain.ActivityRecord, error) {
	row := r.db.QueryRowContext(ctx, activitySelect+` WHERE id = ?`, id)
	return scanActivity(row)
}

// MarkAlerted sets the alerted flag
func (r *activityRepo) MarkAlerted(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE activities SET alerted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark activity alerted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List lists records newest-first, optionally only negative ones
func (r *activityRepo) List(ctx context.Context, onlyNegative bool, limit, offset int) ([]*domain.ActivityRecord, error) {
	query := activitySelect
	if onlyNegative {
		query += ` WHERE negative = 1`
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []*domain.ActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of stored records
func (r *activityRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return n, nil
}

const activitySelect = `
	SELECT id, relationship_id, external_id, kind, author_key, author_name, author_address,
		score, comment, negative, alerted, event_at, created_at
	FROM activities
`

func scanActivity(row rowScanner) (*domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	var negative, alerted int
	var eventAt, createdAt int64
	err := row.Scan(&rec.ID, &rec.RelationshipID, &rec.ExternalID, &rec.Kind,
		&rec.AuthorKey, &rec.AuthorName, &rec.AuthorAddress,
		&rec.Score, &rec.Comment, &negative, &alerted, &eventAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}
	rec.Negative = negative == 1
	rec.Alerted = alerted == 1
	rec.EventAt = time.UnixMilli(eventAt)
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
