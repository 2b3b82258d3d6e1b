package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

const tokenColumns = `id, token_hash, claim_state, claim_code, claim_expires_at, owner, claimed_at, created_at, last_used_at`

// Create inserts a new token row.
func (r *TokenRepo) Create(ctx context.Context, t *model.Token) error {
	const q = `
INSERT INTO tokens (id, token_hash, claim_state, claim_code, claim_expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, t.ID, t.Hash, string(t.State), t.ClaimCode, t.ClaimExpiresAt, t.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return storageErr(err)
}

// GetByHash selects a token by secret hash.
func (r *TokenRepo) GetByHash(ctx context.Context, hash []byte) (*model.Token, error) {
	return r.getOne(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE token_hash=$1`, hash)
}

// GetByID selects a token by ID.
func (r *TokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Token, error) {
	return r.getOne(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id=$1`, id)
}

// GetByClaimCode selects a token by outstanding claim code.
func (r *TokenRepo) GetByClaimCode(ctx context.Context, code string) (*model.Token, error) {
	return r.getOne(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE claim_code=$1`, code)
}

func (r *TokenRepo) getOne(ctx context.Context, q string, arg any) (*model.Token, error) {
	var (
		t     model.Token
		state string
	)
	err := r.db.Pool.QueryRow(ctx, q, arg).Scan(
		&t.ID, &t.Hash, &state, &t.ClaimCode, &t.ClaimExpiresAt, &t.Owner, &t.ClaimedAt, &t.CreatedAt, &t.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, storageErr(err)
	}
	t.State = model.ClaimState(state)
	return &t, nil
}

// Touch sets last_used_at.
func (r *TokenRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE tokens SET last_used_at=$2 WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id, at)
	return storageErr(err)
}

// MarkPending records owner on an unclaimed token.
func (r *TokenRepo) MarkPending(ctx context.Context, id uuid.UUID, owner string) error {
	const q = `
UPDATE tokens SET claim_state='pending', owner=$2
WHERE id=$1 AND claim_state='unclaimed'`
	tag, err := r.db.Pool.Exec(ctx, q, id, owner)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrConflict
	}
	return nil
}

// Confirm marks a token claimed and clears its claim code.
func (r *TokenRepo) Confirm(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `
WITH upd AS (
  UPDATE tokens SET claim_state='claimed', claimed_at=$2, claim_code=NULL, claim_expires_at=NULL
  WHERE id=$1 AND claim_state<>'claimed'
  RETURNING id
)
SELECT EXISTS (SELECT 1 FROM tokens WHERE id=$1), EXISTS (SELECT 1 FROM upd)`
	var found, updated bool
	if err := r.db.Pool.QueryRow(ctx, q, id, at).Scan(&found, &updated); err != nil {
		return storageErr(err)
	}
	switch {
	case !found:
		return errs.ErrNotFound
	case !updated:
		return errs.ErrAlreadyClaimed
	}
	return nil
}

// Revert returns a claimed token to unclaimed with a fresh claim code.
func (r *TokenRepo) Revert(ctx context.Context, id uuid.UUID, code string, expiresAt time.Time) error {
	const q = `
WITH upd AS (
  UPDATE tokens SET claim_state='unclaimed', claimed_at=NULL, owner=NULL, claim_code=$2, claim_expires_at=$3
  WHERE id=$1 AND claim_state='claimed'
  RETURNING id
)
SELECT EXISTS (SELECT 1 FROM tokens WHERE id=$1), EXISTS (SELECT 1 FROM upd)`
	var found, updated bool
	if err := r.db.Pool.QueryRow(ctx, q, id, code, expiresAt).Scan(&found, &updated); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return storageErr(err)
	}
	switch {
	case !found:
		return errs.ErrNotFound
	case !updated:
		return errs.ErrNotClaimed
	}
	return nil
}
