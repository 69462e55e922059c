package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

// alertRepo implements the Alert repository
type alertRepo struct {
	db *sql.DB
}

// NewAlertRepo creates a new Alert repository
func NewAlertRepo(db *sql.DB) (repo.AlertRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			activity_id INTEGER NOT NULL DEFAULT 0,
			type TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			sent_at INTEGER NOT NULL,
			responded_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create alerts table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, sent_at)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create alerts index: %w", err)
	}
	return &alertRepo{db: db}, nil
}

// Create persists a new alert row
func (r *alertRepo) Create(ctx context.Context, alert *domain.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, activity_id, type, channel, status, message_id, sent_at, responded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, alert.ID, alert.ActivityID, alert.Type, alert.Channel, string(alert.Status), alert.MessageID, alert.SentAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetByID gets an alert by id
func (r *alertRepo) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	row := r.db.QueryRowContext(ctx, alertSelect+` WHERE id = ?`, id)
	return scanAlert(row)
}

// UpdateStatus moves a pending alert to a terminal state.
// Returns ErrNotFound for unknown ids and ErrInvalidState when the alert
// has already been responded to.
func (r *alertRepo) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, responded_at = ?
		WHERE id = ? AND status = ?
	`, string(status), time.Now().Unix(), id, string(domain.AlertPending))
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM alerts WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read alert status: %w", err)
	}
	return domain.ErrInvalidState
}

// List lists alerts newest-first, optionally filtered by status
func (r *alertRepo) List(ctx context.Context, status domain.AlertStatus, limit int) ([]*domain.Alert, error) {
	query := alertSelect
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY sent_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// ExpirePendingBefore expires pending alerts sent before the cutoff
func (r *alertRepo) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, responded_at = ?
		WHERE status = ? AND sent_at < ?
	`, string(domain.AlertExpired), time.Now().Unix(), string(domain.AlertPending), cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to expire alerts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const alertSelect = `
	SELECT id, activity_id, type, channel, status, message_id, sent_at, responded_at
	FROM alerts
`

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var alert domain.Alert
	var status string
	var sentAt, respondedAt int64
	err := row.Scan(&alert.ID, &alert.ActivityID, &alert.Type, &alert.Channel, &status,
		&alert.MessageID, &sentAt, &respondedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	alert.Status = domain.AlertStatus(status)
	alert.SentAt = time.Unix(sentAt, 0)
	if respondedAt > 0 {
		alert.RespondedAt = time.Unix(respondedAt, 0)
	}
	return &alert, nil
}
