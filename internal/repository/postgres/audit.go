package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
)

const auditTable = "security.audit_log"

// AuditRepository appends audit entries to PostgreSQL. An entry is durable once the
// INSERT commits.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{exec: exec, builder: newBuilder()}
}

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	stmt, args, err := r.builder.Insert(auditTable).
		Columns("id", "occurred_at", "actor", "event_type", "description", "metadata", "content_hash").
		Values(
			entry.ID,
			entry.Timestamp.UTC(),
			entry.Actor,
			string(entry.EventType),
			entry.Description,
			payload,
			entry.ContentHash,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", mapPostgresError(err))
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, actor string) ([]domain.AuditEntry, error) {
	query := r.builder.
		Select("id", "occurred_at", "actor", "event_type", "description", "metadata", "content_hash").
		From(auditTable).
		OrderBy("seq ASC")
	if actor != "" {
		query = query.Where(squirrel.Eq{"actor": actor})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", mapPostgresError(err))
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			entry     domain.AuditEntry
			eventType string
			metadata  []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Actor,
			&eventType,
			&entry.Description,
			&metadata,
			&entry.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.EventType = domain.AuditEventType(eventType)
		entry.Timestamp = entry.Timestamp.UTC()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata for %s: %w", entry.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

var _ port.AuditStore = (*AuditRepository)(nil)
