package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/model"
)

// SubmissionRepo implements SubmissionRepository using PostgreSQL.
type SubmissionRepo struct{ db *DB }

// NewSubmissionRepo constructs a submission repository.
func NewSubmissionRepo(db *DB) *SubmissionRepo { return &SubmissionRepo{db: db} }

const submissionColumns = `id, token_id, model, provider, total_score, max_score, score_percentage,
execution_time_ms, cost, token_usage, submitted_at, client_version, software_version,
benchmark_version, tasks, usage_summary, metadata, created_at`

// Insert stores a submission. Task list, token usage and blobs are stored as JSONB.
func (r *SubmissionRepo) Insert(ctx context.Context, s *model.Submission) error {
	tasks, err := json.Marshal(s.Tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	usage, err := jsonOrNil(s.TokenUsage)
	if err != nil {
		return fmt.Errorf("encode token_usage: %w", err)
	}
	summary, err := jsonOrNil(s.UsageSummary)
	if err != nil {
		return fmt.Errorf("encode usage_summary: %w", err)
	}
	meta, err := jsonOrNil(s.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	const q = `
INSERT INTO submissions (` + submissionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err = r.db.Pool.Exec(ctx, q,
		s.ID, s.TokenID, s.Model, s.Provider, s.TotalScore, s.MaxScore, s.ScorePercentage,
		s.ExecutionTimeMS, s.Cost, usage, s.Timestamp, s.ClientVersion, s.SoftwareVersion,
		s.BenchmarkVersion, tasks, summary, meta, s.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return storageErr(err)
}

// Get selects a submission by ID.
func (r *SubmissionRepo) Get(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	const q = `SELECT ` + submissionColumns + ` FROM submissions WHERE id=$1`
	var (
		s             model.Submission
		usage, tasks  []byte
		summary, meta []byte
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&s.ID, &s.TokenID, &s.Model, &s.Provider, &s.TotalScore, &s.MaxScore, &s.ScorePercentage,
		&s.ExecutionTimeMS, &s.Cost, &usage, &s.Timestamp, &s.ClientVersion, &s.SoftwareVersion,
		&s.BenchmarkVersion, &tasks, &summary, &meta, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, storageErr(err)
	}
	if err := json.Unmarshal(tasks, &s.Tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	if len(usage) > 0 {
		s.TokenUsage = &model.TokenUsage{}
		if err := json.Unmarshal(usage, s.TokenUsage); err != nil {
			return nil, fmt.Errorf("decode token_usage: %w", err)
		}
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &s.UsageSummary); err != nil {
			return nil, fmt.Errorf("decode usage_summary: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &s, nil
}

// CountSince counts submissions of a token by server-assigned creation time.
func (r *SubmissionRepo) CountSince(ctx context.Context, tokenID uuid.UUID, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM submissions WHERE token_id=$1 AND created_at >= $2`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, tokenID, since).Scan(&n); err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// jsonOrNil encodes v, mapping nil pointers and empty maps to SQL NULL.
func jsonOrNil(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *model.TokenUsage:
		if t == nil {
			return nil, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
