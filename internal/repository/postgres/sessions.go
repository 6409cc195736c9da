package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

const sessionsTable = "security.sessions"

var sessionColumns = []string{
	"token",
	"owner_id",
	"ip",
	"state",
	"created_at",
	"last_activity_at",
	"mfa_verified_at",
}

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{exec: tx, builder: r.builder}
}

// Create persists a new session. A token collision surfaces as repository.ErrConflict.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			session.Token,
			session.OwnerID,
			session.IP,
			string(session.State),
			session.CreatedAt.UTC(),
			session.LastActivityAt.UTC(),
			optionalTime(session.MFAVerifiedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", mapPostgresError(err))
	}
	return nil
}

// Get fetches a session by its token.
func (r *SessionRepository) Get(ctx context.Context, token string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From(sessionsTable).
		Where(squirrel.Eq{"token": token}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, fmt.Errorf("select session: %w", mapPostgresError(err))
	}
	return session, nil
}

// ListByOwner returns every session of the owner ordered by creation time.
func (r *SessionRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From(sessionsTable).
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Touch moves last activity forward on an active session.
func (r *SessionRepository) Touch(ctx context.Context, token string, at time.Time) (bool, error) {
	stmt, args, err := r.builder.Update(sessionsTable).
		Set("last_activity_at", at.UTC()).
		Where(squirrel.Eq{"token": token, "state": string(domain.SessionActive)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build touch session sql: %w", err)
	}
	return r.conditionalUpdate(ctx, token, stmt, args)
}

// TransitionState flips the state only when the stored state still equals from.
func (r *SessionRepository) TransitionState(ctx context.Context, token string, from, to domain.SessionState, _ time.Time) (bool, error) {
	stmt, args, err := r.builder.Update(sessionsTable).
		Set("state", string(to)).
		Where(squirrel.Eq{"token": token, "state": string(from)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build transition session sql: %w", err)
	}
	return r.conditionalUpdate(ctx, token, stmt, args)
}

// MarkMFAVerified stamps the session with the moment its owner passed two-factor verification.
func (r *SessionRepository) MarkMFAVerified(ctx context.Context, token string, at time.Time) error {
	stmt, args, err := r.builder.Update(sessionsTable).
		Set("mfa_verified_at", at.UTC()).
		Where(squirrel.Eq{"token": token}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark mfa sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark mfa verified: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountByState groups sessions by state and counts distinct owners.
func (r *SessionRepository) CountByState(ctx context.Context) (map[domain.SessionState]int, int, error) {
	stmt, args, err := r.builder.
		Select("state", "COUNT(*)").
		From(sessionsTable).
		GroupBy("state").
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	counts := make(map[domain.SessionState]int, 3)
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, 0, fmt.Errorf("scan session count: %w", err)
		}
		counts[domain.SessionState(state)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate session counts: %w", err)
	}

	ownersStmt, ownersArgs, err := r.builder.
		Select("COUNT(DISTINCT owner_id)").
		From(sessionsTable).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count owners sql: %w", err)
	}

	var owners int
	if err := r.exec.QueryRow(ctx, ownersStmt, ownersArgs...).Scan(&owners); err != nil {
		return nil, 0, fmt.Errorf("count owners: %w", mapPostgresError(err))
	}

	return counts, owners, nil
}

// conditionalUpdate runs a guarded UPDATE and tells a lost race apart from a missing token.
func (r *SessionRepository) conditionalUpdate(ctx context.Context, token, stmt string, args []any) (bool, error) {
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("update session: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM security.sessions WHERE token = $1)", token).Scan(&exists); err != nil {
		return false, fmt.Errorf("check session exists: %w", mapPostgresError(err))
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		session       domain.Session
		state         string
		mfaVerifiedAt *time.Time
	)
	if err := row.Scan(
		&session.Token,
		&session.OwnerID,
		&session.IP,
		&state,
		&session.CreatedAt,
		&session.LastActivityAt,
		&mfaVerifiedAt,
	); err != nil {
		return nil, err
	}
	session.State = domain.SessionState(state)
	session.CreatedAt = session.CreatedAt.UTC()
	session.LastActivityAt = session.LastActivityAt.UTC()
	if mfaVerifiedAt != nil {
		at := mfaVerifiedAt.UTC()
		session.MFAVerifiedAt = &at
	}
	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
