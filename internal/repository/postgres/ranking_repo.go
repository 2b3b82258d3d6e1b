package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/benchboard/internal/model"
	"github.com/and161185/benchboard/internal/repository"
)

// RankingRepo implements RankingRepository using PostgreSQL aggregates.
type RankingRepo struct{ db *DB }

// NewRankingRepo constructs a ranking repository.
func NewRankingRepo(db *DB) *RankingRepo { return &RankingRepo{db: db} }

// Standing counts the whole submission population around percentage.
func (r *RankingRepo) Standing(ctx context.Context, percentage float64) (repository.Standing, error) {
	const q = `
SELECT
  COUNT(DISTINCT score_percentage) FILTER (WHERE score_percentage > $1),
  COUNT(*) FILTER (WHERE score_percentage < $1),
  COUNT(*)
FROM submissions`
	var s repository.Standing
	if err := r.db.Pool.QueryRow(ctx, q, percentage).Scan(&s.Above, &s.Below, &s.Total); err != nil {
		return repository.Standing{}, storageErr(err)
	}
	return s, nil
}

// Leaderboard aggregates submissions per model. Optional filters are AND-combined;
// an empty scope applies no version filter.
func (r *RankingRepo) Leaderboard(ctx context.Context, f model.LeaderboardFilter) ([]model.LeaderboardEntry, error) {
	var p predicates
	if len(f.Scope) > 0 {
		p.add("s.benchmark_version = ANY(?)", f.Scope)
	}
	if f.Provider != "" {
		p.add("s.provider = ?", f.Provider)
	}
	if f.VerifiedOnly {
		p.add("t.claim_state = ?", string(model.ClaimClaimed))
	}
	where := p.where()
	limit := p.bind(f.Limit)

	q := `
SELECT
  s.model,
  MAX(s.score_percentage),
  AVG(s.score_percentage),
  AVG(s.execution_time_ms),
  MIN(s.execution_time_ms),
  AVG(s.cost),
  MIN(s.cost),
  COUNT(*),
  MAX(s.submitted_at),
  (ARRAY_AGG(s.id ORDER BY s.score_percentage DESC, s.submitted_at DESC, s.id ASC))[1]
FROM submissions s
JOIN tokens t ON t.id = s.token_id
` + where + `
GROUP BY s.model
ORDER BY MAX(s.score_percentage) DESC, COUNT(*) DESC, s.model ASC
LIMIT ` + limit

	rows, err := r.db.Pool.Query(ctx, q, p.args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	out := make([]model.LeaderboardEntry, 0)
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(
			&e.Model, &e.BestScore, &e.AvgScore,
			&e.AvgExecutionTimeMS, &e.MinExecutionTimeMS,
			&e.AvgCost, &e.MinCost,
			&e.SubmissionCount, &e.LatestTimestamp, &e.BestSubmissionID,
		); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, e)
	}
	return out, storageErr(rows.Err())
}
