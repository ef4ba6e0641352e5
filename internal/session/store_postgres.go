package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in PostgreSQL. The uniqueness invariants
// (call_id, one active session per host) live in the schema so they hold
// under concurrent writers, not just under the coordinator's pre-checks.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSessionSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSessionSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			problem TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			host_id TEXT NOT NULL,
			participant_id TEXT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			call_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_call_id ON sessions (call_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_host_active ON sessions (host_id) WHERE status = 'active';`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status_created ON sessions (status, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_participant_status ON sessions (participant_id, status);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init session schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const sessionColumns = `id, problem, difficulty, host_id, participant_id, status, call_id, created_at, ended_at`

func (s *PostgresStore) Insert(ctx context.Context, sess *Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sess.ID,
		sess.Problem,
		sess.Difficulty,
		sess.HostID,
		sess.ParticipantID,
		string(sess.Status),
		sess.CallID,
		sess.CreatedAt,
		sess.EndedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "idx_sessions_call_id":
				return ErrDuplicateCallID
			case "idx_sessions_host_active":
				return ErrHostHasActive
			}
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id)
	return scanSession(row)
}

func (s *PostgresStore) FindActiveByHost(ctx context.Context, hostID string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE host_id=$1 AND status='active'`, hostID)
	return scanSession(row)
}

// ClaimParticipant is a single conditional UPDATE: the host exclusion sits in
// the predicate so a self-joining host never transiently occupies the slot.
func (s *PostgresStore) ClaimParticipant(ctx context.Context, sessionID, joinerID string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE sessions
		 SET participant_id=$2
		 WHERE id=$1 AND status='active' AND participant_id IS NULL AND host_id <> $2
		 RETURNING `+sessionColumns,
		sessionID, joinerID)
	sess, err := scanSession(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrClaimFailed
	}
	return sess, err
}

func (s *PostgresStore) Complete(ctx context.Context, sessionID string, endedAt time.Time) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE sessions
		 SET status='completed', ended_at=$2
		 WHERE id=$1 AND status='active'
		 RETURNING `+sessionColumns,
		sessionID, endedAt.UTC())
	sess, err := scanSession(row)
	if errors.Is(err, ErrNotFound) {
		// Zero rows: either missing or already completed.
		if _, gerr := s.GetByID(ctx, sessionID); gerr != nil {
			return nil, gerr
		}
		return nil, ErrNotActive
	}
	return sess, err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context, page, limit int) ([]*Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions WHERE status='active'
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		limit, offsetFor(page, limit))
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *PostgresStore) ListRecentForUser(ctx context.Context, userID string, page, limit int) ([]*Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE status='completed' AND (host_id=$1 OR participant_id=$1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offsetFor(page, limit))
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func offsetFor(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	var status string
	err := row.Scan(
		&sess.ID,
		&sess.Problem,
		&sess.Difficulty,
		&sess.HostID,
		&sess.ParticipantID,
		&status,
		&sess.CallID,
		&sess.CreatedAt,
		&sess.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Status = Status(status)
	return &sess, nil
}

func scanSessions(rows pgx.Rows) ([]*Session, error) {
	out := make([]*Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}
