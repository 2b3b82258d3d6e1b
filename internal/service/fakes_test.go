package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/limiter"
	"github.com/and161185/benchboard/internal/model"
	"github.com/and161185/benchboard/internal/repository"
)

/************ tokens ************/

type fakeTokens struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Token

	createErr  error
	createDups int // number of Create calls that fail with ErrAlreadyExists
	getErr     error
	touchErr   error
	touched    map[uuid.UUID]time.Time
}

var _ repository.TokenRepository = (*fakeTokens)(nil)

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byID: map[uuid.UUID]*model.Token{}, touched: map[uuid.UUID]time.Time{}}
}

func (f *fakeTokens) Create(_ context.Context, t *model.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.createDups > 0 {
		f.createDups--
		return errs.ErrAlreadyExists
	}
	cpy := *t
	if t.ClaimCode != nil {
		c := *t.ClaimCode
		cpy.ClaimCode = &c
	}
	f.byID[t.ID] = &cpy
	return nil
}

func (f *fakeTokens) find(match func(*model.Token) bool) (*model.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, t := range f.byID {
		if match(t) {
			c := *t
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeTokens) GetByHash(_ context.Context, hash []byte) (*model.Token, error) {
	return f.find(func(t *model.Token) bool { return string(t.Hash) == string(hash) })
}

func (f *fakeTokens) GetByID(_ context.Context, id uuid.UUID) (*model.Token, error) {
	return f.find(func(t *model.Token) bool { return t.ID == id })
}

func (f *fakeTokens) GetByClaimCode(_ context.Context, code string) (*model.Token, error) {
	return f.find(func(t *model.Token) bool { return t.ClaimCode != nil && *t.ClaimCode == code })
}

func (f *fakeTokens) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	f.touched[id] = at
	return nil
}

func (f *fakeTokens) MarkPending(_ context.Context, id uuid.UUID, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok || t.State != model.ClaimUnclaimed {
		return errs.ErrConflict
	}
	t.State = model.ClaimPending
	t.Owner = &owner
	return nil
}

func (f *fakeTokens) Confirm(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok || t.State == model.ClaimClaimed {
		return errs.ErrAlreadyClaimed
	}
	t.State = model.ClaimClaimed
	t.ClaimedAt = &at
	t.ClaimCode, t.ClaimExpiresAt = nil, nil
	return nil
}

func (f *fakeTokens) Revert(_ context.Context, id uuid.UUID, code string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok || t.State != model.ClaimClaimed {
		return errs.ErrNotClaimed
	}
	t.State = model.ClaimUnclaimed
	t.ClaimedAt, t.Owner = nil, nil
	t.ClaimCode, t.ClaimExpiresAt = &code, &expiresAt
	return nil
}

func (f *fakeTokens) get(id uuid.UUID) model.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

/************ limiter ************/

// fakeLimiter counts Record calls per origin and denies at limit.
type fakeLimiter struct {
	limit    int
	counts   map[string]int
	allowErr error
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func newFakeLimiter(limit int) *fakeLimiter {
	return &fakeLimiter{limit: limit, counts: map[string]int{}}
}

func (l *fakeLimiter) Allow(_ context.Context, origin []byte) (bool, time.Duration, error) {
	if l.allowErr != nil {
		return false, 0, l.allowErr
	}
	if l.counts[string(origin)] >= l.limit {
		return false, 30 * time.Minute, nil
	}
	return true, 0, nil
}

func (l *fakeLimiter) Record(_ context.Context, origin []byte) error {
	l.counts[string(origin)]++
	return nil
}

func (l *fakeLimiter) recorded() int {
	n := 0
	for _, c := range l.counts {
		n += c
	}
	return n
}

/************ submissions, versions, ranking ************/

// fakeStore keeps submissions and versions in memory and answers ranking queries over them.
type fakeStore struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]model.Submission
	versions map[string]*model.BenchmarkVersion

	getErr      error
	insertErr   error
	countErr    error
	standingErr error
	// raceWinner, when set, is stored right before the next Insert fails with ErrAlreadyExists.
	raceWinner *model.Submission
	inserts    int
	lastFilter model.LeaderboardFilter
}

var (
	_ repository.SubmissionRepository = (*fakeStore)(nil)
	_ repository.VersionRepository    = (*fakeStore)(nil)
	_ repository.RankingRepository    = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{subs: map[uuid.UUID]model.Submission{}, versions: map[string]*model.BenchmarkVersion{}}
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.subs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) Insert(_ context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.raceWinner != nil {
		f.subs[f.raceWinner.ID] = *f.raceWinner
		f.raceWinner = nil
	}
	if _, ok := f.subs[s.ID]; ok {
		return errs.ErrAlreadyExists
	}
	f.inserts++
	f.subs[s.ID] = *s
	return nil
}

func (f *fakeStore) CountSince(_ context.Context, tokenID uuid.UUID, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	n := 0
	for _, s := range f.subs {
		if s.TokenID == tokenID && !s.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) EnsureExists(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.versions[id]; !ok {
		f.versions[id] = &model.BenchmarkVersion{ID: id, CreatedAt: time.Now()}
	}
	return nil
}

func (f *fakeStore) Current(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, v := range f.versions {
		if v.Current {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) List(_ context.Context, includeHidden bool) ([]model.BenchmarkVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BenchmarkVersion
	for _, v := range f.versions {
		if includeHidden || !v.Hidden {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) SetCurrent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.versions[id]
	if !ok {
		return errs.ErrNotFound
	}
	for _, v := range f.versions {
		v.Current = false
	}
	target.Current = true
	return nil
}

func (f *fakeStore) SetHidden(_ context.Context, id string, hidden bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return errs.ErrNotFound
	}
	v.Hidden = hidden
	return nil
}

func (f *fakeStore) Standing(_ context.Context, p float64) (repository.Standing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.standingErr != nil {
		return repository.Standing{}, f.standingErr
	}
	var st repository.Standing
	above := map[float64]struct{}{}
	for _, s := range f.subs {
		st.Total++
		switch {
		case s.ScorePercentage > p:
			above[s.ScorePercentage] = struct{}{}
		case s.ScorePercentage < p:
			st.Below++
		}
	}
	st.Above = int64(len(above))
	return st, nil
}

func (f *fakeStore) Leaderboard(_ context.Context, lf model.LeaderboardFilter) ([]model.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = lf
	return []model.LeaderboardEntry{}, nil
}
