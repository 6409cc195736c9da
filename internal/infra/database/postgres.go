package database

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/config"
)

const securitySchema = "security"

// schemaStatements create the tables used by the postgres repositories.
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS security`,
	`CREATE TABLE IF NOT EXISTS security.sessions (
		token            TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL,
		ip               TEXT NOT NULL,
		state            TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		last_activity_at TIMESTAMPTZ NOT NULL,
		mfa_verified_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_owner_state_idx ON security.sessions (owner_id, state)`,
	`CREATE TABLE IF NOT EXISTS security.mfa_enrollments (
		owner_id    TEXT PRIMARY KEY,
		enabled     BOOLEAN NOT NULL,
		method      TEXT NOT NULL,
		phone       TEXT,
		email       TEXT,
		totp_secret TEXT,
		enabled_at  TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS security.audit_log (
		seq          BIGSERIAL PRIMARY KEY,
		id           UUID NOT NULL UNIQUE,
		occurred_at  TIMESTAMPTZ NOT NULL,
		actor        TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		description  TEXT NOT NULL,
		metadata     JSONB NOT NULL DEFAULT '{}'::jsonb,
		content_hash TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_actor_idx ON security.audit_log (actor, seq)`,
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func NewPostgresPool(ctx context.Context, cfg config.PostgresSettings, log *zap.Logger) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = make(map[string]string)
	}
	poolConfig.ConnConfig.RuntimeParams["search_path"] = fmt.Sprintf("%s,public", securitySchema)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	log.Info("connected to postgres",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)

	return pool, nil
}

// EnsureSchema creates the security schema and its tables when missing.
func EnsureSchema(ctx context.Context, db execer) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
