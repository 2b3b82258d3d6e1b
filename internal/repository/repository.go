// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/benchboard/internal/model"
)

// TokenRepository stores client credentials and their claim state.
type TokenRepository interface {
	// Create inserts a new unclaimed token.
	Create(ctx context.Context, t *model.Token) error
	// GetByHash loads a token by the hash of its secret.
	GetByHash(ctx context.Context, hash []byte) (*model.Token, error)
	// GetByID loads a token by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Token, error)
	// GetByClaimCode loads a token by its outstanding claim code.
	GetByClaimCode(ctx context.Context, code string) (*model.Token, error)
	// Touch records the last-used time.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkPending moves an unclaimed token to pending for owner.
	MarkPending(ctx context.Context, id uuid.UUID, owner string) error
	// Confirm moves a not-yet-claimed token to claimed and clears its claim code.
	Confirm(ctx context.Context, id uuid.UUID, at time.Time) error
	// Revert moves a claimed token back to unclaimed with a fresh claim code.
	Revert(ctx context.Context, id uuid.UUID, code string, expiresAt time.Time) error
}

// SubmissionRepository stores immutable benchmark results.
type SubmissionRepository interface {
	// Get loads a submission by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	// Insert stores a new submission; a duplicate ID yields errs.ErrAlreadyExists.
	Insert(ctx context.Context, s *model.Submission) error
	// CountSince counts the token's submissions created at or after since.
	CountSince(ctx context.Context, tokenID uuid.UUID, since time.Time) (int, error)
}

// VersionRepository stores benchmark versions.
type VersionRepository interface {
	// EnsureExists creates a not-current, not-hidden version unless it already exists.
	EnsureExists(ctx context.Context, id string) error
	// Current returns the IDs of versions flagged current.
	Current(ctx context.Context) ([]string, error)
	// List returns versions newest first.
	List(ctx context.Context, includeHidden bool) ([]model.BenchmarkVersion, error)
	// SetCurrent clears every current flag and sets it on id.
	SetCurrent(ctx context.Context, id string) error
	// SetHidden updates the hidden flag of id.
	SetHidden(ctx context.Context, id string, hidden bool) error
}

// Standing is the position of a score within the whole submission population.
type Standing struct {
	Above int64 // distinct percentages strictly greater
	Below int64 // submissions strictly lower
	Total int64
}

// RankingRepository answers aggregate queries over submissions.
type RankingRepository interface {
	// Standing counts the population around percentage.
	Standing(ctx context.Context, percentage float64) (Standing, error)
	// Leaderboard aggregates submissions per model.
	Leaderboard(ctx context.Context, f model.LeaderboardFilter) ([]model.LeaderboardEntry, error)
}
