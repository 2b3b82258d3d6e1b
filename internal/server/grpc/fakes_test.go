package grpcserver

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/idp"
	"github.com/and161185/benchboard/internal/model"
	"github.com/and161185/benchboard/internal/service"
	"github.com/and161185/benchboard/internal/validate"
)

const (
	testSecret    = "sek-123"
	testClaimCode = "ABCD2345"
)

// fakeBackend implements every service the server depends on.
type fakeBackend struct {
	mu sync.Mutex

	tokenID    uuid.UUID
	origin     string
	claimOwner string
	confirmed  bool
	subs       map[uuid.UUID]model.Submission
	lastFilter model.LeaderboardFilter
	versions   []model.BenchmarkVersion

	// failWith, when set, is returned by Leaderboard.
	failWith error
}

var (
	_ service.IdentityService   = (*fakeBackend)(nil)
	_ service.SubmissionService = (*fakeBackend)(nil)
	_ service.VersionService    = (*fakeBackend)(nil)
	_ service.RankingService    = (*fakeBackend)(nil)
)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tokenID: uuid.Must(uuid.NewV4()),
		subs:    map[uuid.UUID]model.Submission{},
		versions: []model.BenchmarkVersion{
			{ID: "v2", Current: true},
			{ID: "v1", Hidden: true},
		},
	}
}

func (f *fakeBackend) Register(_ context.Context, origin string) (model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.origin = origin
	return model.Registration{
		TokenID:        f.tokenID,
		Secret:         testSecret,
		ClaimCode:      testClaimCode,
		ClaimExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (f *fakeBackend) Resolve(_ context.Context, secret string) (model.Identity, error) {
	if secret != testSecret {
		return model.Identity{}, errs.ErrUnauthorized
	}
	return model.Identity{TokenID: f.tokenID, State: model.ClaimUnclaimed}, nil
}

func (f *fakeBackend) Touch(context.Context, model.Identity) {}

func (f *fakeBackend) RequestClaim(_ context.Context, code, owner string) (uuid.UUID, error) {
	if code != testClaimCode {
		return uuid.Nil, errs.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimOwner = owner
	return f.tokenID, nil
}

func (f *fakeBackend) ConfirmClaim(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case id != f.tokenID:
		return errs.ErrNotFound
	case f.confirmed:
		return errs.ErrAlreadyClaimed
	}
	f.confirmed = true
	return nil
}

func (f *fakeBackend) RevertClaim(_ context.Context, id uuid.UUID) (model.ClaimTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.tokenID || !f.confirmed {
		return model.ClaimTicket{}, errs.ErrNotClaimed
	}
	f.confirmed = false
	return model.ClaimTicket{TokenID: id, Code: "EFGH6789", ExpiresAt: time.Now().Add(24 * time.Hour)}, nil
}

func (f *fakeBackend) Ingest(context.Context, model.Identity, model.SubmissionPayload) (model.IngestResult, error) {
	return model.IngestResult{}, errs.ErrConflict
}

func (f *fakeBackend) Submit(ctx context.Context, secret string, p model.SubmissionPayload) (model.SubmitResult, error) {
	if err := errs.NewValidation(validate.Submission(p)); err != nil {
		return model.SubmitResult{}, err
	}
	id, err := f.Resolve(ctx, secret)
	if err != nil {
		return model.SubmitResult{}, err
	}
	subID := uuid.FromStringOrNil(p.SubmissionID)
	pct := service.ScorePercentage(*p.TotalScore, *p.MaxScore)

	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.subs[subID]; ok {
		return model.SubmitResult{IngestResult: model.IngestResult{SubmissionID: subID, ScorePercentage: prev.ScorePercentage}, Ranking: model.Ranking{Rank: 1, Percentile: 0}}, nil
	}
	f.subs[subID] = model.Submission{
		ID: subID, TokenID: id.TokenID, Model: p.Model,
		TotalScore: *p.TotalScore, MaxScore: *p.MaxScore, ScorePercentage: pct,
		Tasks: []model.TaskResult{{Score: *p.Tasks[0].Score, MaxScore: *p.Tasks[0].MaxScore}},
	}
	return model.SubmitResult{
		IngestResult: model.IngestResult{SubmissionID: subID, ScorePercentage: pct, IsNew: true},
		Ranking:      model.Ranking{Rank: 1, Percentile: 0},
	}, nil
}

func (f *fakeBackend) Get(_ context.Context, id uuid.UUID) (model.SubmissionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return model.SubmissionDetail{}, errs.ErrNotFound
	}
	return model.SubmissionDetail{Submission: s, Ranking: model.Ranking{Rank: 1}}, nil
}

func (f *fakeBackend) ResolveScope(_ context.Context, explicit string) ([]string, error) {
	if explicit != "" {
		return []string{explicit}, nil
	}
	return []string{"v2"}, nil
}

func (f *fakeBackend) List(_ context.Context, includeHidden bool) ([]model.BenchmarkVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BenchmarkVersion
	for _, v := range f.versions {
		if includeHidden || !v.Hidden {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeBackend) version(id string) (int, error) {
	if id == "" {
		return 0, errs.NewValidation([]string{"version must not be empty"})
	}
	for i, v := range f.versions {
		if v.ID == id {
			return i, nil
		}
	}
	return 0, errs.ErrNotFound
}

func (f *fakeBackend) SetCurrent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.version(id)
	if err != nil {
		return err
	}
	for j := range f.versions {
		f.versions[j].Current = j == i
	}
	return nil
}

func (f *fakeBackend) SetHidden(_ context.Context, id string, hidden bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.version(id)
	if err != nil {
		return err
	}
	f.versions[i].Hidden = hidden
	return nil
}

func (f *fakeBackend) RankAndPercentile(context.Context, float64) (model.Ranking, error) {
	return model.Ranking{Rank: 1}, nil
}

func (f *fakeBackend) Leaderboard(_ context.Context, flt model.LeaderboardFilter) ([]model.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = flt
	if f.failWith != nil {
		return nil, f.failWith
	}
	return []model.LeaderboardEntry{{Model: "m", BestScore: 0.9, AvgScore: 0.9, SubmissionCount: 1}}, nil
}

// fakeVerifier maps raw assertions to principals.
type fakeVerifier map[string]idp.Principal

func (v fakeVerifier) Verify(_ context.Context, raw string) (idp.Principal, error) {
	p, ok := v[raw]
	if !ok {
		return idp.Principal{}, errs.ErrUnauthorized
	}
	return p, nil
}
