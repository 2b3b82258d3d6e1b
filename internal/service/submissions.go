package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/metrics"
	"github.com/and161185/benchboard/internal/model"
	"github.com/and161185/benchboard/internal/repository"
	"github.com/and161185/benchboard/internal/validate"
)

const (
	submissionQuota       = 100
	submissionQuotaWindow = 24 * time.Hour
)

// SubmissionService accepts benchmark results and reads them back.
type SubmissionService interface {
	// Ingest stores p for id. Resubmitting a known submission ID returns the stored result.
	Ingest(ctx context.Context, id model.Identity, p model.SubmissionPayload) (model.IngestResult, error)
	// Submit validates p, resolves secret, ingests and ranks the result.
	Submit(ctx context.Context, secret string, p model.SubmissionPayload) (model.SubmitResult, error)
	// Get returns a stored submission with its current ranking.
	Get(ctx context.Context, id uuid.UUID) (model.SubmissionDetail, error)
}

type SubmissionServiceImpl struct {
	subs     repository.SubmissionRepository
	versions repository.VersionRepository
	identity IdentityService
	ranking  RankingService
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewSubmissionService constructs SubmissionService with required dependencies.
func NewSubmissionService(
	subs repository.SubmissionRepository,
	versions repository.VersionRepository,
	identity IdentityService,
	ranking RankingService,
	m *metrics.Metrics,
) *SubmissionServiceImpl {
	return &SubmissionServiceImpl{subs: subs, versions: versions, identity: identity, ranking: ranking, metrics: m, now: time.Now}
}

// Ingest is idempotent on the submission ID. Concurrent first submissions of the same ID
// are resolved by the primary key: the loser re-reads the winner's row.
func (s *SubmissionServiceImpl) Ingest(ctx context.Context, id model.Identity, p model.SubmissionPayload) (model.IngestResult, error) {
	sub, err := toSubmission(id, p)
	if err != nil {
		return model.IngestResult{}, err
	}

	if res, found, err := s.existing(ctx, sub.ID); err != nil || found {
		return res, err
	}

	now := s.now().UTC()
	n, err := s.subs.CountSince(ctx, id.TokenID, now.Add(-submissionQuotaWindow))
	if err != nil {
		return model.IngestResult{}, err
	}
	if n >= submissionQuota {
		s.metrics.RateLimited("submission")
		return model.IngestResult{}, errs.ErrSubmissionQuota
	}

	if sub.BenchmarkVersion != nil {
		if err := s.versions.EnsureExists(ctx, *sub.BenchmarkVersion); err != nil {
			return model.IngestResult{}, fmt.Errorf("register benchmark version: %w", err)
		}
	}

	sub.CreatedAt = now
	if err := s.subs.Insert(ctx, sub); err != nil {
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return model.IngestResult{}, err
		}
		res, found, rerr := s.existing(ctx, sub.ID)
		if rerr != nil {
			return model.IngestResult{}, rerr
		}
		if !found {
			return model.IngestResult{}, err
		}
		return res, nil
	}

	s.metrics.SubmissionIngested(true)
	s.identity.Touch(ctx, id)
	return model.IngestResult{SubmissionID: sub.ID, ScorePercentage: sub.ScorePercentage, IsNew: true}, nil
}

func (s *SubmissionServiceImpl) existing(ctx context.Context, id uuid.UUID) (model.IngestResult, bool, error) {
	prev, err := s.subs.Get(ctx, id)
	switch {
	case err == nil:
		s.metrics.SubmissionIngested(false)
		return model.IngestResult{SubmissionID: prev.ID, ScorePercentage: prev.ScorePercentage}, true, nil
	case errors.Is(err, errs.ErrNotFound):
		return model.IngestResult{}, false, nil
	default:
		return model.IngestResult{}, false, err
	}
}

// Submit runs validation, credential resolution, ingest and ranking in that order.
func (s *SubmissionServiceImpl) Submit(ctx context.Context, secret string, p model.SubmissionPayload) (model.SubmitResult, error) {
	if err := errs.NewValidation(validate.Submission(p)); err != nil {
		return model.SubmitResult{}, err
	}
	id, err := s.identity.Resolve(ctx, secret)
	if err != nil {
		return model.SubmitResult{}, err
	}
	res, err := s.Ingest(ctx, id, p)
	if err != nil {
		return model.SubmitResult{}, err
	}
	rk, err := s.ranking.RankAndPercentile(ctx, res.ScorePercentage)
	if err != nil {
		return model.SubmitResult{}, err
	}
	return model.SubmitResult{IngestResult: res, Ranking: rk}, nil
}

// Get loads a submission and ranks it against the current population.
func (s *SubmissionServiceImpl) Get(ctx context.Context, id uuid.UUID) (model.SubmissionDetail, error) {
	if id == uuid.Nil {
		return model.SubmissionDetail{}, errs.NewValidation([]string{"submission_id must be a valid UUID v4"})
	}
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return model.SubmissionDetail{}, err
	}
	rk, err := s.ranking.RankAndPercentile(ctx, sub.ScorePercentage)
	if err != nil {
		return model.SubmissionDetail{}, err
	}
	return model.SubmissionDetail{Submission: *sub, Ranking: rk}, nil
}

// ScorePercentage is total/max, or 0 when max is 0.
func ScorePercentage(total, maxScore float64) float64 {
	if maxScore == 0 {
		return 0
	}
	return total / maxScore
}

// toSubmission converts a payload into a storable submission. Payloads that skipped
// Submit's validation are still checked here so Ingest never stores malformed rows.
func toSubmission(id model.Identity, p model.SubmissionPayload) (*model.Submission, error) {
	if err := errs.NewValidation(validate.Submission(p)); err != nil {
		return nil, err
	}
	subID, err := uuid.FromString(p.SubmissionID)
	if err != nil {
		return nil, errs.NewValidation([]string{"submission_id must be a valid UUID v4"})
	}
	ts, err := validate.ParseTimestamp(p.Timestamp)
	if err != nil {
		return nil, errs.NewValidation([]string{"timestamp must be a valid ISO-8601 date/time"})
	}

	tasks := make([]model.TaskResult, len(p.Tasks))
	for i, t := range p.Tasks {
		tasks[i] = model.TaskResult{Name: t.Name, Score: *t.Score, MaxScore: *t.MaxScore, Metadata: t.Metadata}
	}
	return &model.Submission{
		ID:               subID,
		TokenID:          id.TokenID,
		Model:            strings.TrimSpace(p.Model),
		Provider:         optString(p.Provider),
		TotalScore:       *p.TotalScore,
		MaxScore:         *p.MaxScore,
		ScorePercentage:  ScorePercentage(*p.TotalScore, *p.MaxScore),
		ExecutionTimeMS:  p.ExecutionTimeMS,
		Cost:             p.Cost,
		TokenUsage:       p.TokenUsage,
		Timestamp:        ts,
		ClientVersion:    optString(p.ClientVersion),
		SoftwareVersion:  optString(p.SoftwareVersion),
		BenchmarkVersion: optString(p.BenchmarkVersion),
		Tasks:            tasks,
		UsageSummary:     p.UsageSummary,
		Metadata:         p.Metadata,
	}, nil
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
