package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
)

const enrollmentsTable = "security.mfa_enrollments"

// EnrollmentRepository stores two-factor enrollments in PostgreSQL.
type EnrollmentRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewEnrollmentRepository(exec pgExecutor) *EnrollmentRepository {
	return &EnrollmentRepository{exec: exec, builder: newBuilder()}
}

// Save upserts the enrollment of an owner.
func (r *EnrollmentRepository) Save(ctx context.Context, enrollment domain.Enrollment) error {
	stmt, args, err := r.builder.Insert(enrollmentsTable).
		Columns("owner_id", "enabled", "method", "phone", "email", "totp_secret", "enabled_at").
		Values(
			enrollment.OwnerID,
			enrollment.Enabled,
			string(enrollment.Method),
			optionalString(enrollment.Phone),
			optionalString(enrollment.Email),
			optionalString(enrollment.TOTPSecret),
			optionalTime(enrollment.EnabledAt),
		).
		Suffix("ON CONFLICT (owner_id) DO UPDATE SET enabled = EXCLUDED.enabled, method = EXCLUDED.method, " +
			"phone = EXCLUDED.phone, email = EXCLUDED.email, totp_secret = EXCLUDED.totp_secret, enabled_at = EXCLUDED.enabled_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert enrollment sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert enrollment: %w", mapPostgresError(err))
	}
	return nil
}

// Get returns the enrollment of an owner.
func (r *EnrollmentRepository) Get(ctx context.Context, ownerID string) (*domain.Enrollment, error) {
	stmt, args, err := r.builder.
		Select("owner_id", "enabled", "method", "phone", "email", "totp_secret", "enabled_at").
		From(enrollmentsTable).
		Where(squirrel.Eq{"owner_id": ownerID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select enrollment sql: %w", err)
	}

	var (
		enrollment               domain.Enrollment
		method                   string
		phone, email, totpSecret *string
		enabledAt                *time.Time
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&enrollment.OwnerID,
		&enrollment.Enabled,
		&method,
		&phone,
		&email,
		&totpSecret,
		&enabledAt,
	); err != nil {
		return nil, fmt.Errorf("select enrollment: %w", mapPostgresError(err))
	}

	enrollment.Method = domain.TwoFactorMethod(method)
	if phone != nil {
		enrollment.Phone = *phone
	}
	if email != nil {
		enrollment.Email = *email
	}
	if totpSecret != nil {
		enrollment.TOTPSecret = *totpSecret
	}
	if enabledAt != nil {
		at := enabledAt.UTC()
		enrollment.EnabledAt = &at
	}
	return &enrollment, nil
}

var _ port.EnrollmentRepository = (*EnrollmentRepository)(nil)
