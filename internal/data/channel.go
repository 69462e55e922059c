package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

// channelRepo implements the ChannelConfig repository
type channelRepo struct {
	db *sql.DB
}

// NewChannelRepo creates a new ChannelConfig repository
func NewChannelRepo(db *sql.DB) (repo.ChannelConfigRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS channel_configs (
			name TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel_configs table: %w", err)
	}
	return &channelRepo{db: db}, nil
}

// Ensure registers a channel with its default flag if not yet present
func (r *channelRepo) Ensure(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO channel_configs (name, enabled, updated_at)
		VALUES (?, 1, ?)
	`, name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to register channel: %w", err)
	}
	return nil
}

// SetEnabled flips the persisted channel flag
func (r *channelRepo) SetEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channel_configs (name, enabled, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, name, boolToInt(enabled), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set channel flag: %w", err)
	}
	return nil
}

// IsEnabled reports the channel flag; unknown channels default to enabled
func (r *channelRepo) IsEnabled(ctx context.Context, name string) (bool, error) {
	var enabled int
	err := r.db.QueryRowContext(ctx, `SELECT enabled FROM channel_configs WHERE name = ?`, name).Scan(&enabled)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read channel flag: %w", err)
	}
	return enabled == 1, nil
}

// List lists every registered channel
func (r *channelRepo) List(ctx context.Context) ([]*domain.ChannelConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, enabled, updated_at FROM channel_configs ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var out []*domain.ChannelConfig
	for rows.Next() {
		var cc domain.ChannelConfig
		var enabled int
		var updatedAt int64
		if err := rows.Scan(&cc.Name, &enabled, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		cc.Enabled = enabled == 1
		cc.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, &cc)
	}
	return out, rows.Err()
}
