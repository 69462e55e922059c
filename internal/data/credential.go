package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

// credentialRepo implements the Credential repository.
// The table holds at most one row; a new token replaces the previous one.
type credentialRepo struct {
	db *sql.DB
}

// NewCredentialRepo creates a new Credential repository
func NewCredentialRepo(db *sql.DB) (repo.CredentialRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			expires_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials table: %w", err)
	}
	return &credentialRepo{db: db}, nil
}

// Save stores the credential, replacing any previous one
func (r *credentialRepo) Save(ctx context.Context, cred *domain.Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (id, token, subject, session_id, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			subject = excluded.subject,
			session_id = excluded.session_id,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, cred.Token, cred.Subject, cred.SessionID, cred.ExpiresAt.Unix(), cred.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Load returns the stored credential, or ErrNotFound when none was saved
func (r *credentialRepo) Load(ctx context.Context) (*domain.Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token, subject, session_id, expires_at, updated_at
		FROM credentials
		WHERE id = 1
	`)

	var cred domain.Credential
	var expiresAt, updatedAt int64
	err := row.Scan(&cred.Token, &cred.Subject, &cred.SessionID, &expiresAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	cred.ExpiresAt = time.Unix(expiresAt, 0)
	cred.UpdatedAt = time.Unix(updatedAt, 0)
	return &cred, nil
}
