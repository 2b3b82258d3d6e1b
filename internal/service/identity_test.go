package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	pkgcrypto "github.com/and161185/benchboard/internal/crypto"
	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/model"
)

type identityFixture struct {
	svc     *IdentityServiceImpl
	tokens  *fakeTokens
	lim     *fakeLimiter
	effects *Effects
	now     time.Time
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()
	h, err := pkgcrypto.NewHasher([]byte("pepper"))
	require.NoError(t, err)
	fx := &identityFixture{
		tokens:  newFakeTokens(),
		lim:     newFakeLimiter(10),
		effects: NewEffects(zap.NewNop(), nil, time.Second),
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.svc = NewIdentityService(fx.tokens, h, fx.lim, fx.effects, nil)
	fx.svc.now = func() time.Time { return fx.now }
	return fx
}

func TestIdentity_RegisterThenResolve(t *testing.T) {
	t.Parallel()
	fx := newIdentityFixture(t)
	ctx := context.Background()

	reg, err := fx.svc.Register(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.NotEmpty(t, reg.Secret)
	require.Len(t, reg.ClaimCode, 8)
	require.Equal(t, fx.now.Add(24*time.Hour), reg.ClaimExpiresAt)

	stored := fx.tokens.get(reg.TokenID)
	require.Equal(t, model.ClaimUnclaimed, stored.State)
	require.NotContains(t, string(stored.Hash), reg.Secret, "raw secret is never stored")
	require.Equal(t, reg.ClaimCode, *stored.ClaimCode)

	id, err := fx.svc.Resolve(ctx, reg.Secret)
	require.NoError(t, err)
	require.Equal(t, reg.TokenID, id.TokenID)
	require.False(t, id.Verified())
}

func TestIdentity_EleventhRegistrationIsRateLimited(t *testing.T) {
	t.Parallel()
	fx := newIdentityFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := fx.svc.Register(ctx, "origin-a")
		require.NoError(t, err, "registration %d", i+1)
	}
	_, err := fx.svc.Register(ctx, "origin-a")
	require.ErrorIs(t, err, errs.ErrRegistrationQuota)
	require.ErrorIs(t, err, errs.ErrRateLimited)
	require.True(t, errs.Retryable(err))

	_, err = fx.svc.Register(ctx, "origin-b")
	require.NoError(t, err)
}

func TestIdentity_RegisterRetriesClaimCodeCollision(t *testing.T) {
	t.Parallel()
	fx := newIdentityFixture(t)
	fx.tokens.createDups = 2

	_, err := fx.svc.Register(context.Background(), "o")
	require.NoError(t, err)

	fx.tokens.createDups = 3
	_, err = fx.svc.Register(context.Background(), "o")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestIdentity_FailedRegistrationDoesNotConsumeQuota(t *testing.T) {
	t.Parallel()
	fx := newIdentityFixture(t)
	ctx := context.Background()

	fx.tokens.createErr = errs.ErrStorageUnavailable
	_, err := fx.svc.Register(ctx, "origin-a")
	require.ErrorIs(t, err, errs.ErrStorageUnavailable)

	fx.tokens.createErr = nil
	fx.tokens.createDups = 3
	_, err = fx.svc.Register(ctx, "origin-a")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.Zero(t, fx.lim.recorded())

	fx.tokens.createDups = 0
	for i := 0; i < 10; i++ {
		_, err := fx.svc.Register(ctx, "origin-a")
		require.NoError(t, err, "registration %d", i+1)
	}
	require.Equal(t, 10, fx.lim.recorded())
	_, err = fx.svc.Register(ctx, "origin-a")
	require.ErrorIs(t, err, errs.ErrRegistrationQuota)
}

func TestIdentity_RegisterPropagatesLimiterError(t *testing.T) {
	t.Parallel()
	fx := newIdentityFixture(t)
	fx.lim.allowErr = errs.ErrStorageUnavailable

	_, err := fx.svc.Register(context.Background(), "o")
	require.ErrorIs(t, err, errs.ErrStorageUnavailable)
	require.Empty(t, fx.tokens.byID)
}

func TestIdentity_ResolveRejects(t *testing.T) {
	t.Parallel()
	fx := newIdentityFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Resolve(ctx, "")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = fx.svc.Resolve(ctx, "unknown-secret")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	fx.tokens.getErr = errs.ErrStorageUnavailable
	_, err = fx.svc.Resolve(ctx, "any")
	require.ErrorIs(t, err, errs.ErrStorageUnavailable)
	require.NotErrorIs(t, err, errs.ErrUnauthorized, "store faults are not reported as bad credentials")
}

func TestIdentity_TouchIsBestEffort(t *testing.T) {
	t.Parallel()
	fx := newIdentityFixture(t)
	core, logs := observer.New(zap.WarnLevel)
	fx.svc.effects = NewEffects(zap.New(core), nil, time.Second)
	id := model.Identity{TokenID: uuid.Must(uuid.NewV4())}

	fx.svc.Touch(context.Background(), id)
	fx.svc.effects.Wait()
	fx.tokens.mu.Lock()
	require.Equal(t, fx.now, fx.tokens.touched[id.TokenID])
	fx.tokens.mu.Unlock()

	fx.tokens.touchErr = errors.New("db down")
	fx.svc.Touch(context.Background(), id)
	fx.svc.effects.Wait()
	require.Equal(t, 1, logs.Len())
}

func TestIdentity_ClaimLifecycle(t *testing.T) {
	t.Parallel()
	fx := newIdentityFixture(t)
	ctx := context.Background()

	reg, err := fx.svc.Register(ctx, "o")
	require.NoError(t, err)

	_, err = fx.svc.RequestClaim(ctx, "", "")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Len(t, errs.Violations(err), 2)

	_, err = fx.svc.RequestClaim(ctx, "NOPE2345", "alice@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)

	tokenID, err := fx.svc.RequestClaim(ctx, " "+strings.ToLower(reg.ClaimCode)+" ", "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, reg.TokenID, tokenID)
	require.Equal(t, model.ClaimPending, fx.tokens.get(tokenID).State)

	_, err = fx.svc.RequestClaim(ctx, reg.ClaimCode, "mallory@example.com")
	require.ErrorIs(t, err, errs.ErrConflict)

	require.NoError(t, fx.svc.ConfirmClaim(ctx, tokenID))
	tok := fx.tokens.get(tokenID)
	require.Equal(t, model.ClaimClaimed, tok.State)
	require.Nil(t, tok.ClaimCode)
	require.Equal(t, fx.now, *tok.ClaimedAt)

	id, err := fx.svc.Resolve(ctx, reg.Secret)
	require.NoError(t, err)
	require.True(t, id.Verified())

	err = fx.svc.ConfirmClaim(ctx, tokenID)
	require.ErrorIs(t, err, errs.ErrAlreadyClaimed)
	require.ErrorIs(t, err, errs.ErrConflict)

	ticket, err := fx.svc.RevertClaim(ctx, tokenID)
	require.NoError(t, err)
	require.Len(t, ticket.Code, 8)
	require.Equal(t, fx.now.Add(24*time.Hour), ticket.ExpiresAt)
	tok = fx.tokens.get(tokenID)
	require.Equal(t, model.ClaimUnclaimed, tok.State)
	require.Equal(t, ticket.Code, *tok.ClaimCode)

	_, err = fx.svc.RevertClaim(ctx, tokenID)
	require.ErrorIs(t, err, errs.ErrNotClaimed)

	require.ErrorIs(t, fx.svc.ConfirmClaim(ctx, uuid.Must(uuid.NewV4())), errs.ErrNotFound)
	_, err = fx.svc.RevertClaim(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestIdentity_RequestClaimExpired(t *testing.T) {
	t.Parallel()
	fx := newIdentityFixture(t)
	ctx := context.Background()

	reg, err := fx.svc.Register(ctx, "o")
	require.NoError(t, err)

	fx.now = fx.now.Add(24 * time.Hour)
	_, err = fx.svc.RequestClaim(ctx, reg.ClaimCode, "alice@example.com")
	require.ErrorIs(t, err, errs.ErrClaimExpired)
	require.Equal(t, model.ClaimUnclaimed, fx.tokens.get(reg.TokenID).State)
}
