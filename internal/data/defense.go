package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

// defenseRepo implements the Defense repository
type defenseRepo struct {
	db *sql.DB
}

// NewDefenseRepo creates a new Defense repository
func NewDefenseRepo(db *sql.DB) (repo.DefenseRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS defenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			activity_id INTEGER NOT NULL DEFAULT 0,
			target_key TEXT NOT NULL,
			score INTEGER NOT NULL,
			comment TEXT NOT NULL,
			status TEXT NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			tx_ref TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create defenses table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_defenses_activity ON defenses(activity_id, status)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create defenses index: %w", err)
	}
	return &defenseRepo{db: db}, nil
}

// Create persists a new defense row
func (r *defenseRepo) Create(ctx context.Context, def *domain.Defense) (int64, error) {
	now := time.Now().Unix()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO defenses (activity_id, target_key, score, comment, status, external_id, tx_ref, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '', '', '', ?, ?)
	`, def.ActivityID, def.TargetKey, def.Score, def.Comment, string(def.Status), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create defense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read defense id: %w", err)
	}
	return id, nil
}

// GetByID gets a defense by id
func (r *defenseRepo) GetByID(ctx context.Context, id int64) (*domain.Defense, error) {
	row := r.db.QueryRowContext(ctx, defenseSelect+` WHERE id = ?`, id)
	return scanDefense(row)
}

// GetActiveByActivity finds the PENDING or CONFIRMED defense for an activity
func (r *defenseRepo) GetActiveByActivity(ctx context.Context, activityID int64) (*domain.Defense, error) {
	row := r.db.QueryRowContext(ctx, defenseSelect+`
		WHERE activity_id = ? AND status IN (?, ?)
		ORDER BY id DESC LIMIT 1
	`, activityID, string(domain.DefensePending), string(domain.DefenseConfirmed))
	return scanDefense(row)
}

// MarkConfirmed moves a PENDING defense to CONFIRMED
func (r *defenseRepo) MarkConfirmed(ctx context.Context, id int64) error {
	return r.transition(ctx, id, `
		UPDATE defenses SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.DefenseConfirmed), time.Now().Unix(), id, string(domain.DefensePending))
}

// MarkPosted moves a CONFIRMED defense to POSTED and records the receipt.
// The stored score and comment are replaced; an operator edit before posting
// must win over the original suggestion.
func (r *defenseRepo) MarkPosted(ctx context.Context, id int64, score int, comment, externalID, txRef string) error {
	return r.transition(ctx, id, `
		UPDATE defenses SET status = ?, score = ?, comment = ?, external_id = ?, tx_ref = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.DefensePosted), score, comment, externalID, txRef, time.Now().Unix(), id, string(domain.DefenseConfirmed))
}

// MarkFailed moves a CONFIRMED defense to FAILED with the failure detail
func (r *defenseRepo) MarkFailed(ctx context.Context, id int64, detail string) error {
	return r.transition(ctx, id, `
		UPDATE defenses SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.DefenseFailed), detail, time.Now().Unix(), id, string(domain.DefenseConfirmed))
}

// List lists defenses newest-first, optionally filtered by status
func (r *defenseRepo) List(ctx context.Context, status domain.DefenseStatus, limit int) ([]*domain.Defense, error) {
	query := defenseSelect
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list defenses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Defense
	for rows.Next() {
		def, err := scanDefense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

// transition runs a guarded conditional update and maps a zero row count to
// ErrNotFound or ErrInvalidState depending on whether the row exists
func (r *defenseRepo) transition(ctx context.Context, id int64, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update defense: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM defenses WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read defense status: %w", err)
	}
	return domain.ErrInvalidState
}

const defenseSelect = `
	SELECT id, activity_id, target_key, score, comment, status, external_id, tx_ref, last_error, created_at, updated_at
	FROM defenses
`

func scanDefense(row rowScanner) (*domain.Defense, error) {
	var def domain.Defense
	var status string
	var createdAt, updatedAt int64
	err := row.Scan(&def.ID, &def.ActivityID, &def.TargetKey, &def.Score, &def.Comment, &status,
		&def.ExternalID, &def.TxRef, &def.LastError, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan defense: %w", err)
	}
	def.Status = domain.DefenseStatus(status)
	def.CreatedAt = time.Unix(createdAt, 0)
	def.UpdatedAt = time.Unix(updatedAt, 0)
	return &def, nil
}
