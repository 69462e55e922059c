package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

// relationshipRepo implements the Relationship repository
type relationshipRepo struct {
	db *sql.DB
}

// NewRelationshipRepo creates a new Relationship repository
func NewRelationshipRepo(db *sql.DB) (repo.RelationshipRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS relationships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			userkey TEXT NOT NULL UNIQUE,
			vouch_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create relationships table: %w", err)
	}
	return &relationshipRepo{db: db}, nil
}

// Upsert creates or refreshes a relationship keyed by userkey
func (r *relationshipRepo) Upsert(ctx context.Context, rel *domain.Relationship) (int64, error) {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO relationships (userkey, vouch_id, name, address, score, active, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(userkey) DO UPDATE SET
			vouch_id = excluded.vouch_id,
			name = excluded.name,
			address = excluded.address,
			score = excluded.score,
			active = 1,
			last_seen = excluded.last_seen
	`, rel.Userkey, rel.VouchID, rel.Name, rel.Address, rel.Score, now, rel.LastSeen.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to upsert relationship: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `SELECT id FROM relationships WHERE userkey = ?`, rel.Userkey).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read relationship id: %w", err)
	}
	return id, nil
}

// GetByUserkey gets a relationship by its network userkey
func (r *relationshipRepo) GetByUserkey(ctx context.Context, userkey string) (*domain.Relationship, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, userkey, vouch_id, name, address, score, active, first_seen, last_seen
		FROM relationships
		WHERE userkey = ?
	`, userkey)
	return scanRelationship(row)
}

// List lists relationships, optionally only active ones
func (r *relationshipRepo) List(ctx context.Context, onlyActive bool) ([]*domain.Relationship, error) {
	query := `
		SELECT id, userkey, vouch_id, name, address, score, active, first_seen, last_seen
		FROM relationships
	`
	if onlyActive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var out []*domain.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// Deactivate clears the active flag
func (r *relationshipRepo) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE relationships SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate relationship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRelationship(row rowScanner) (*domain.Relationship, error) {
	var rel domain.Relationship
	var active int
	var firstSeen, lastSeen int64
	err := row.Scan(&rel.ID, &rel.Userkey, &rel.VouchID, &rel.Name, &rel.Address, &rel.Score, &active, &firstSeen, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan relationship: %w", err)
	}
	rel.Active = active == 1
	rel.FirstSeen = time.Unix(firstSeen, 0)
	rel.LastSeen = time.Unix(lastSeen, 0)
	return &rel, nil
}
