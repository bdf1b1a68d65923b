package invite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/store"
)

const (
	codeLength     = 8
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxCodeRetries = 3
)

const selectColumns = "id, code, creator_id, max_uses, use_count, expires_at, revoked, created_at"

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db       *store.DB
	serverID uuid.UUID
	log      zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed invite repository.
func NewSQLRepository(db *store.DB, serverID uuid.UUID, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, serverID: serverID, log: logger}
}

// Create inserts a new invite with a randomly generated code. Generation
// retries up to maxCodeRetries on the unlikely event of a code collision.
func (r *SQLRepository) Create(ctx context.Context, creatorID uuid.UUID, params CreateParams) (*Invite, error) {
	var expiresAt *time.Time
	if params.MaxAgeSeconds > 0 {
		t := time.Now().UTC().Add(time.Duration(params.MaxAgeSeconds) * time.Second)
		expiresAt = &t
	}

	for attempt := range maxCodeRetries {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}

		inv := Invite{
			ID:        store.NewID(),
			Code:      code,
			CreatorID: creatorID,
			MaxUses:   params.MaxUses,
			ExpiresAt: expiresAt,
			CreatedAt: time.Now().UTC(),
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO invites (id, server_id, code, creator_id, max_uses, use_count, expires_at, revoked, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, FALSE, ?)`,
			inv.ID, r.serverID, inv.Code, inv.CreatorID, inv.MaxUses, inv.ExpiresAt, inv.CreatedAt)
		if err != nil {
			if store.IsUniqueViolation(err) && attempt < maxCodeRetries-1 {
				continue
			}
			if store.IsUniqueViolation(err) {
				return nil, ErrCodeExhausted
			}
			return nil, fmt.Errorf("insert invite: %w", err)
		}
		return &inv, nil
	}
	return nil, ErrCodeExhausted
}

// GetByCode returns the invite matching the given code.
func (r *SQLRepository) GetByCode(ctx context.Context, code string) (*Invite, error) {
	inv, err := scanInvite(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM invites WHERE code = ?", code).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query invite by code: %w", err)
	}
	return inv, nil
}

// List returns all invites, newest first.
func (r *SQLRepository) List(ctx context.Context) ([]Invite, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM invites ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("query invites: %w", err)
	}
	defer rows.Close()

	var invites []Invite
	for rows.Next() {
		inv, err := scanInvite(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		invites = append(invites, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invites: %w", err)
	}
	return invites, nil
}

// Revoke marks an invite revoked and returns it. Returns ErrNotFound if no
// matching invite exists.
func (r *SQLRepository) Revoke(ctx context.Context, id uuid.UUID) (*Invite, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE invites SET revoked = TRUE WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("revoke invite: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	inv, err := scanInvite(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM invites WHERE id = ?", id).Scan)
	if err != nil {
		return nil, fmt.Errorf("query revoked invite: %w", err)
	}
	return inv, nil
}

// Use atomically increments the use count of a valid invite and returns the
// updated invite. If the atomic update matches zero rows, a diagnostic query
// determines the specific reason for failure.
func (r *SQLRepository) Use(ctx context.Context, code string) (*Invite, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invites
		 SET use_count = use_count + 1
		 WHERE code = ?
		   AND NOT revoked
		   AND (expires_at IS NULL OR expires_at > ?)
		   AND (max_uses = 0 OR use_count < max_uses)`,
		code, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("use invite: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, r.diagnoseUseFailure(ctx, code)
	}

	inv, err := scanInvite(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM invites WHERE code = ?", code).Scan)
	if err != nil {
		return nil, fmt.Errorf("query used invite: %w", err)
	}
	return inv, nil
}

// diagnoseUseFailure determines why an atomic use update matched zero rows.
func (r *SQLRepository) diagnoseUseFailure(ctx context.Context, code string) error {
	inv, err := r.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	switch {
	case inv.Revoked:
		return ErrRevoked
	case inv.ExpiresAt != nil && !inv.ExpiresAt.After(time.Now()):
		return ErrExpired
	case inv.MaxUses > 0 && inv.UseCount >= inv.MaxUses:
		return ErrMaxUsesReached
	default:
		return ErrNotFound
	}
}

// scanInvite scans a single invite row via the given scan function so both
// sql.Row and sql.Rows work.
func scanInvite(scan func(...any) error) (*Invite, error) {
	var (
		inv       Invite
		expiresAt sql.NullTime
	)
	err := scan(
		&inv.ID, &inv.Code, &inv.CreatorID,
		&inv.MaxUses, &inv.UseCount, &expiresAt, &inv.Revoked, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		inv.ExpiresAt = &t
	}
	return &inv, nil
}

// generateCode produces a cryptographically random alphanumeric string of
// codeLength characters.
func generateCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("crypto/rand: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
