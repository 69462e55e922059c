package data

import (
	"context"

	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

// Store contains all repositories
type Store struct {
	Relationships repo.RelationshipRepo
	Activities    repo.ActivityRepo
	Alerts        repo.AlertRepo
	Defenses      repo.DefenseRepo
	Cycles        repo.CycleRepo
	Credentials   repo.CredentialRepo
	Channels      repo.ChannelConfigRepo

	closer func() error
}

// NewStore opens the configured backend and prepares every repository.
// A non-empty databaseURL selects postgres; the default is a local sqlite file.
func NewStore(ctx context.Context, databaseURL, sqlitePath string) (*Store, error) {
	if databaseURL != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	return NewSqliteStore(sqlitePath)
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
