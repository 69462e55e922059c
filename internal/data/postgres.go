package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

// NewPostgresStore connects to postgres and prepares every repository
func NewPostgresStore(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{
		Relationships: &pgRelationshipRepo{pool: pool},
		Activities:    &pgActivityRepo{pool: pool},
		Alerts:        &pgAlertRepo{pool: pool},
		Defenses:      &pgDefenseRepo{pool: pool},
		Cycles:        &pgCycleRepo{pool: pool},
		Credentials:   &pgCredentialRepo{pool: pool},
		Channels:      &pgChannelRepo{pool: pool},
		closer: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS relationships (
			id BIGSERIAL PRIMARY KEY,
			userkey TEXT NOT NULL UNIQUE,
			vouch_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			score BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			first_seen BIGINT NOT NULL,
			last_seen BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id BIGSERIAL PRIMARY KEY,
			relationship_id BIGINT NOT NULL DEFAULT 0,
			external_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			author_key TEXT NOT NULL DEFAULT '',
			author_name TEXT NOT NULL DEFAULT '',
			author_address TEXT NOT NULL DEFAULT '',
			score BIGINT NOT NULL DEFAULT 0,
			comment TEXT NOT NULL DEFAULT '',
			negative BOOLEAN NOT NULL DEFAULT FALSE,
			alerted BOOLEAN NOT NULL DEFAULT FALSE,
			event_at BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_negative ON activities(negative, id)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			activity_id BIGINT NOT NULL DEFAULT 0,
			type TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			sent_at BIGINT NOT NULL,
			responded_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, sent_at)`,
		`CREATE TABLE IF NOT EXISTS defenses (
			id BIGSERIAL PRIMARY KEY,
			activity_id BIGINT NOT NULL DEFAULT 0,
			target_key TEXT NOT NULL,
			score BIGINT NOT NULL,
			comment TEXT NOT NULL,
			status TEXT NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			tx_ref TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_defenses_activity ON defenses(activity_id, status)`,
		`CREATE TABLE IF NOT EXISTS cycle_logs (
			id BIGSERIAL PRIMARY KEY,
			relationships_checked BIGINT NOT NULL DEFAULT 0,
			activities_found BIGINT NOT NULL DEFAULT 0,
			new_negative BIGINT NOT NULL DEFAULT 0,
			alerts_sent BIGINT NOT NULL DEFAULT 0,
			errors JSONB NOT NULL DEFAULT '[]',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			ran_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id INT PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			expires_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channel_configs (
			name TEXT PRIMARY KEY,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at BIGINT NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to init postgres schema: %w", err)
		}
	}
	return nil
}

// ========== Relationships ==========

type pgRelationshipRepo struct {
	pool *pgxpool.Pool
}

func (r *pgRelationshipRepo) Upsert(ctx context.Context, rel *domain.Relationship) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO relationships (userkey, vouch_id, name, address, score, active, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
		ON CONFLICT (userkey) DO UPDATE SET
			vouch_id = EXCLUDED.vouch_id,
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			score = EXCLUDED.score,
			active = TRUE,
			last_seen = EXCLUDED.last_seen
		RETURNING id
	`, rel.Userkey, rel.VouchID, rel.Name, rel.Address, rel.Score, time.Now().Unix(), rel.LastSeen.Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert relationship: %w", err)
	}
	return id, nil
}

func (r *pgRelationshipRepo) GetByUserkey(ctx context.Context, userkey string) (*domain.Relationship, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, userkey, vouch_id, name, address, score, active, first_seen, last_seen
		FROM relationships
		WHERE userkey = $1
	`, userkey)
	return scanPgRelationship(row)
}

func (r *pgRelationshipRepo) List(ctx context.Context, onlyActive bool) ([]*domain.Relationship, error) {
	query := `
		SELECT id, userkey, vouch_id, name, address, score, active, first_seen, last_seen
		FROM relationships
	`
	if onlyActive {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var out []*domain.Relationship
	for rows.Next() {
		rel, err := scanPgRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (r *pgRelationshipRepo) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE relationships SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate relationship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPgRelationship(row pgx.Row) (*domain.Relationship, error) {
	var rel domain.Relationship
	var firstSeen, lastSeen int64
	err := row.Scan(&rel.ID, &rel.Userkey, &rel.VouchID, &rel.Name, &rel.Address, &rel.Score, &rel.Active, &firstSeen, &lastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan relationship: %w", err)
	}
	rel.FirstSeen = time.Unix(firstSeen, 0)
	rel.LastSeen = time.Unix(lastSeen, 0)
	return &rel, nil
}

// ========== Activities ==========

type pgActivityRepo struct {
	pool *pgxpool.Pool
}

func (r *pgActivityRepo) Create(ctx context.Context, rec *domain.ActivityRecord) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO activities (relationship_id, external_id, kind, author_key, author_name, author_address,
			score, comment, negative, alerted, event_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $11)
		RETURNING id
	`, rec.RelationshipID, rec.ExternalID, rec.Kind, rec.AuthorKey, rec.AuthorName, rec.AuthorAddress,
		rec.Score, rec.Comment, rec.Negative, rec.EventAt.UnixMilli(), time.Now().Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create activity: %w", err)
	}
	return id, nil
}

func (r *pgActivityRepo) ExistsExternalID(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM activities WHERE external_id = $1)`, externalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check external id: %w", err)
	}
	return exists, nil
}

func (r *pgActivityRepo) GetByID(ctx context.Context, id int64) (*domain.ActivityRecord, error) {
	row := r.pool.QueryRow(ctx, pgActivitySelect+` WHERE id = $1`, id)
	return scanPgActivity(row)
}

func (r *pgActivityRepo) MarkAlerted(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE activities SET alerted = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark activity alerted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgActivityRepo) List(ctx context.Context, onlyNegative bool, limit, offset int) ([]*domain.ActivityRecord, error) {
	query := pgActivitySelect
	if onlyNegative {
		query += ` WHERE negative`
	}
	query += ` ORDER BY id DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []*domain.ActivityRecord
	for rows.Next() {
		rec, err := scanPgActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *pgActivityRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return n, nil
}

const pgActivitySelect = `
	SELECT id, relationship_id, external_id, kind, author_key, author_name, author_address,
		score, comment, negative, alerted, event_at, created_at
	FROM activities
`

func scanPgActivity(row pgx.Row) (*domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	var eventAt, createdAt int64
	err := row.Scan(&rec.ID, &rec.RelationshipID, &rec.ExternalID, &rec.Kind,
		&rec.AuthorKey, &rec.AuthorName, &rec.AuthorAddress,
		&rec.Score, &rec.Comment, &rec.Negative, &rec.Alerted, &eventAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}
	rec.EventAt = time.UnixMilli(eventAt)
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

// ========== Alerts ==========

type pgAlertRepo struct {
	pool *pgxpool.Pool
}

func (r *pgAlertRepo) Create(ctx context.Context, alert *domain.Alert) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO alerts (id, activity_id, type, channel, status, message_id, sent_at, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
	`, alert.ID, alert.ActivityID, alert.Type, alert.Channel, string(alert.Status), alert.MessageID, alert.SentAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (r *pgAlertRepo) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	row := r.pool.QueryRow(ctx, pgAlertSelect+` WHERE id = $1`, id)
	return scanPgAlert(row)
}

func (r *pgAlertRepo) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE alerts SET status = $1, responded_at = $2
		WHERE id = $3 AND status = $4
	`, string(status), time.Now().Unix(), id, string(domain.AlertPending))
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM alerts WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read alert status: %w", err)
	}
	return domain.ErrInvalidState
}

func (r *pgAlertRepo) List(ctx context.Context, status domain.AlertStatus, limit int) ([]*domain.Alert, error) {
	query := pgAlertSelect
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY sent_at DESC LIMIT $2`
		args = append(args, string(status), limit)
	} else {
		query += ` ORDER BY sent_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		alert, err := scanPgAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func (r *pgAlertRepo) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE alerts SET status = $1, responded_at = $2
		WHERE status = $3 AND sent_at < $4
	`, string(domain.AlertExpired), time.Now().Unix(), string(domain.AlertPending), cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to expire alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

const pgAlertSelect = `
	SELECT id, activity_id, type, channel, status, message_id, sent_at, responded_at
	FROM alerts
`

func scanPgAlert(row pgx.Row) (*domain.Alert, error) {
	var alert domain.Alert
	var status string
	var sentAt, respondedAt int64
	err := row.Scan(&alert.ID, &alert.ActivityID, &alert.Type, &alert.Channel, &status,
		&alert.MessageID, &sentAt, &respondedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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

// ========== Defenses ==========

type pgDefenseRepo struct {
	pool *pgxpool.Pool
}

func (r *pgDefenseRepo) Create(ctx context.Context, def *domain.Defense) (int64, error) {
	now := time.Now().Unix()
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO defenses (activity_id, target_key, score, comment, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, def.ActivityID, def.TargetKey, def.Score, def.Comment, string(def.Status), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create defense: %w", err)
	}
	return id, nil
}

func (r *pgDefenseRepo) GetByID(ctx context.Context, id int64) (*domain.Defense, error) {
	row := r.pool.QueryRow(ctx, pgDefenseSelect+` WHERE id = $1`, id)
	return scanPgDefense(row)
}

func (r *pgDefenseRepo) GetActiveByActivity(ctx context.Context, activityID int64) (*domain.Defense, error) {
	row := r.pool.QueryRow(ctx, pgDefenseSelect+`
		WHERE activity_id = $1 AND status IN ($2, $3)
		ORDER BY id DESC LIMIT 1
	`, activityID, string(domain.DefensePending), string(domain.DefenseConfirmed))
	return scanPgDefense(row)
}

func (r *pgDefenseRepo) MarkConfirmed(ctx context.Context, id int64) error {
	return r.transition(ctx, id, `
		UPDATE defenses SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(domain.DefenseConfirmed), time.Now().Unix(), id, string(domain.DefensePending))
}

func (r *pgDefenseRepo) MarkPosted(ctx context.Context, id int64, score int, comment, externalID, txRef string) error {
	return r.transition(ctx, id, `
		UPDATE defenses SET status = $1, score = $2, comment = $3, external_id = $4, tx_ref = $5, updated_at = $6
		WHERE id = $7 AND status = $8
	`, string(domain.DefensePosted), score, comment, externalID, txRef, time.Now().Unix(), id, string(domain.DefenseConfirmed))
}

func (r *pgDefenseRepo) MarkFailed(ctx context.Context, id int64, detail string) error {
	return r.transition(ctx, id, `
		UPDATE defenses SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`, string(domain.DefenseFailed), detail, time.Now().Unix(), id, string(domain.DefenseConfirmed))
}

func (r *pgDefenseRepo) List(ctx context.Context, status domain.DefenseStatus, limit int) ([]*domain.Defense, error) {
	query := pgDefenseSelect
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY id DESC LIMIT $2`
		args = append(args, string(status), limit)
	} else {
		query += ` ORDER BY id DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list defenses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Defense
	for rows.Next() {
		def, err := scanPgDefense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (r *pgDefenseRepo) transition(ctx context.Context, id int64, query string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update defense: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM defenses WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read defense status: %w", err)
	}
	return domain.ErrInvalidState
}

const pgDefenseSelect = `
	SELECT id, activity_id, target_key, score, comment, status, external_id, tx_ref, last_error, created_at, updated_at
	FROM defenses
`

func scanPgDefense(row pgx.Row) (*domain.Defense, error) {
	var def domain.Defense
	var status string
	var createdAt, updatedAt int64
	err := row.Scan(&def.ID, &def.ActivityID, &def.TargetKey, &def.Score, &def.Comment, &status,
		&def.ExternalID, &def.TxRef, &def.LastError, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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

// ========== Cycle logs ==========

type pgCycleRepo struct {
	pool *pgxpool.Pool
}

func (r *pgCycleRepo) Append(ctx context.Context, log *domain.CycleLog) (int64, error) {
	errs := log.Errors
	if errs == nil {
		errs = []string{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode cycle errors: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO cycle_logs (relationships_checked, activities_found, new_negative, alerts_sent, errors, duration_ms, ran_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, log.RelationshipsChecked, log.ActivitiesFound, log.NewNegative, log.AlertsSent,
		string(encoded), log.DurationMs, log.RanAt.Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append cycle log: %w", err)
	}
	return id, nil
}

func (r *pgCycleRepo) Latest(ctx context.Context) (*domain.CycleLog, error) {
	row := r.pool.QueryRow(ctx, pgCycleSelect+` ORDER BY id DESC LIMIT 1`)
	return scanPgCycle(row)
}

func (r *pgCycleRepo) List(ctx context.Context, limit int) ([]*domain.CycleLog, error) {
	rows, err := r.pool.Query(ctx, pgCycleSelect+` ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.CycleLog
	for rows.Next() {
		log, err := scanPgCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

func (r *pgCycleRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cycle_logs WHERE ran_at < $1`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cycle logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

const pgCycleSelect = `
	SELECT id, relationships_checked, activities_found, new_negative, alerts_sent, errors, duration_ms, ran_at
	FROM cycle_logs
`

func scanPgCycle(row pgx.Row) (*domain.CycleLog, error) {
	var log domain.CycleLog
	var encoded []byte
	var ranAt int64
	err := row.Scan(&log.ID, &log.RelationshipsChecked, &log.ActivitiesFound, &log.NewNegative,
		&log.AlertsSent, &encoded, &log.DurationMs, &ranAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cycle log: %w", err)
	}
	if err := json.Unmarshal(encoded, &log.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode cycle errors: %w", err)
	}
	log.RanAt = time.Unix(ranAt, 0)
	return &log, nil
}

// ========== Credentials ==========

type pgCredentialRepo struct {
	pool *pgxpool.Pool
}

func (r *pgCredentialRepo) Save(ctx context.Context, cred *domain.Credential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO credentials (id, token, subject, session_id, expires_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			token = EXCLUDED.token,
			subject = EXCLUDED.subject,
			session_id = EXCLUDED.session_id,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, cred.Token, cred.Subject, cred.SessionID, cred.ExpiresAt.Unix(), cred.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (r *pgCredentialRepo) Load(ctx context.Context) (*domain.Credential, error) {
	var cred domain.Credential
	var expiresAt, updatedAt int64
	err := r.pool.QueryRow(ctx, `
		SELECT token, subject, session_id, expires_at, updated_at
		FROM credentials
		WHERE id = 1
	`).Scan(&cred.Token, &cred.Subject, &cred.SessionID, &expiresAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	cred.ExpiresAt = time.Unix(expiresAt, 0)
	cred.UpdatedAt = time.Unix(updatedAt, 0)
	return &cred, nil
}

// ========== Channel configs ==========

type pgChannelRepo struct {
	pool *pgxpool.Pool
}

func (r *pgChannelRepo) Ensure(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO channel_configs (name, enabled, updated_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to register channel: %w", err)
	}
	return nil
}

func (r *pgChannelRepo) SetEnabled(ctx context.Context, name string, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO channel_configs (name, enabled, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`, name, enabled, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set channel flag: %w", err)
	}
	return nil
}

func (r *pgChannelRepo) IsEnabled(ctx context.Context, name string) (bool, error) {
	var enabled bool
	err := r.pool.QueryRow(ctx, `SELECT enabled FROM channel_configs WHERE name = $1`, name).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read channel flag: %w", err)
	}
	return enabled, nil
}

func (r *pgChannelRepo) List(ctx context.Context) ([]*domain.ChannelConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, enabled, updated_at FROM channel_configs ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var out []*domain.ChannelConfig
	for rows.Next() {
		var cc domain.ChannelConfig
		var updatedAt int64
		if err := rows.Scan(&cc.Name, &cc.Enabled, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		cc.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, &cc)
	}
	return out, rows.Err()
}
