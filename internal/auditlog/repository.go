package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/store"
)

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db       *store.DB
	serverID uuid.UUID
	log      zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed audit repository.
func NewSQLRepository(db *store.DB, serverID uuid.UUID, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, serverID: serverID, log: logger}
}

// Append inserts one audit entry on the caller's transaction. Details encode
// as a JSON object; nil encodes as {}.
func (r *SQLRepository) Append(ctx context.Context, q store.Querier, rec Record) error {
	details := rec.Details
	if details == nil {
		details = map[string]any{}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO audit_log (id, server_id, actor_id, action, target_type, target_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		store.NewID(), r.serverID, rec.ActorID, rec.Action, rec.TargetType, rec.TargetID,
		string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries newest first, optionally filtered by actor and action,
// with keyset pagination on id.
func (r *SQLRepository) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	query := `SELECT id, actor_id, action, target_type, target_id, details, created_at
FROM audit_log WHERE 1=1`
	var args []any
	if opts.ActorID != nil {
		query += " AND actor_id = ?"
		args = append(args, *opts.ActorID)
	}
	if opts.Action != "" {
		query += " AND action = ?"
		args = append(args, opts.Action)
	}
	if opts.Before != nil {
		query += " AND id < ?"
		args = append(args, *opts.Before)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, ClampLimit(opts.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			targetID uuid.NullUUID
			details  string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.TargetType, &targetID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if targetID.Valid {
			e.TargetID = &targetID.UUID
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
