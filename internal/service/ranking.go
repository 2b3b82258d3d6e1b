package service

import (
	"context"
	"math"

	"github.com/and161185/benchboard/internal/model"
	"github.com/and161185/benchboard/internal/repository"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 200
)

// RankingService computes global standing and per-model aggregates.
type RankingService interface {
	// RankAndPercentile places percentage within every stored submission.
	RankAndPercentile(ctx context.Context, percentage float64) (model.Ranking, error)
	// Leaderboard aggregates submissions per model within f.
	Leaderboard(ctx context.Context, f model.LeaderboardFilter) ([]model.LeaderboardEntry, error)
}

type RankingServiceImpl struct {
	repo repository.RankingRepository
}

// NewRankingService constructs RankingService.
func NewRankingService(repo repository.RankingRepository) *RankingServiceImpl {
	return &RankingServiceImpl{repo: repo}
}

// RankAndPercentile uses dense ranking: equal percentages share a rank and
// rank = 1 + number of distinct percentages strictly above.
// Percentile is the share of submissions strictly below, in percent with two decimals.
func (s *RankingServiceImpl) RankAndPercentile(ctx context.Context, percentage float64) (model.Ranking, error) {
	st, err := s.repo.Standing(ctx, percentage)
	if err != nil {
		return model.Ranking{}, err
	}
	return model.Ranking{Rank: st.Above + 1, Percentile: percentile(st.Below, st.Total)}, nil
}

func percentile(below, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(10000*float64(below)/float64(total)) / 100
}

// Leaderboard clamps the limit to 1..200, 0 meaning 50.
func (s *RankingServiceImpl) Leaderboard(ctx context.Context, f model.LeaderboardFilter) ([]model.LeaderboardEntry, error) {
	f.Limit = ClampLimit(f.Limit)
	return s.repo.Leaderboard(ctx, f)
}

// ClampLimit normalizes a requested leaderboard size.
func ClampLimit(n int) int {
	switch {
	case n == 0:
		return defaultLeaderboardLimit
	case n < 1:
		return 1
	case n > maxLeaderboardLimit:
		return maxLeaderboardLimit
	default:
		return n
	}
}
