// Package service contains the application services of the benchmark intake.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/benchboard/internal/crypto"
	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/limiter"
	"github.com/and161185/benchboard/internal/metrics"
	"github.com/and161185/benchboard/internal/model"
	"github.com/and161185/benchboard/internal/repository"
)

const (
	claimTTL = 24 * time.Hour
	// claim codes are short, so a unique collision is retried with a fresh code
	claimCodeAttempts = 3
)

// IdentityService issues client credentials, resolves them and drives claim transitions.
type IdentityService interface {
	// Register issues a new credential for origin under the per-origin quota.
	Register(ctx context.Context, origin string) (model.Registration, error)
	// Resolve maps a presented secret to its identity.
	Resolve(ctx context.Context, secret string) (model.Identity, error)
	// Touch records usage of the identity without blocking the caller.
	Touch(ctx context.Context, id model.Identity)
	// RequestClaim attaches owner to the unclaimed token behind code.
	RequestClaim(ctx context.Context, code, owner string) (uuid.UUID, error)
	// ConfirmClaim marks the token claimed.
	ConfirmClaim(ctx context.Context, tokenID uuid.UUID) error
	// RevertClaim returns a claimed token to unclaimed with a fresh claim code.
	RevertClaim(ctx context.Context, tokenID uuid.UUID) (model.ClaimTicket, error)
}

type IdentityServiceImpl struct {
	tokens  repository.TokenRepository
	hasher  *pkgcrypto.Hasher
	lim     limiter.Limiter
	effects *Effects
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewIdentityService constructs IdentityService with required dependencies.
func NewIdentityService(tokens repository.TokenRepository, hasher *pkgcrypto.Hasher, lim limiter.Limiter, effects *Effects, m *metrics.Metrics) *IdentityServiceImpl {
	return &IdentityServiceImpl{tokens: tokens, hasher: hasher, lim: lim, effects: effects, metrics: m, now: time.Now}
}

// Register checks the origin's sliding-window quota, records the attempt and stores
// the hash of a fresh secret. The secret itself is only returned, never persisted.
func (s *IdentityServiceImpl) Register(ctx context.Context, origin string) (model.Registration, error) {
	originHash := limiter.HashOrigin(origin)
	allowed, retry, err := s.lim.Allow(ctx, originHash)
	if err != nil {
		return model.Registration{}, err
	}
	if !allowed {
		s.metrics.RateLimited("registration")
		return model.Registration{}, fmt.Errorf("%w: retry after %s", errs.ErrRegistrationQuota, retry.Round(time.Second))
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Registration{}, err
	}
	secret, err := pkgcrypto.NewSecret()
	if err != nil {
		return model.Registration{}, err
	}
	now := s.now().UTC()
	expires := now.Add(claimTTL)
	tok := &model.Token{
		ID:             id,
		Hash:           s.hasher.Hash(secret),
		State:          model.ClaimUnclaimed,
		ClaimExpiresAt: &expires,
		CreatedAt:      now,
	}

	for attempt := 1; ; attempt++ {
		code, err := pkgcrypto.NewClaimCode()
		if err != nil {
			return model.Registration{}, err
		}
		tok.ClaimCode = &code
		err = s.tokens.Create(ctx, tok)
		if err == nil {
			// Only issued credentials count against the origin's quota.
			if err := s.lim.Record(ctx, originHash); err != nil {
				return model.Registration{}, err
			}
			s.metrics.Registered()
			return model.Registration{TokenID: id, Secret: secret, ClaimCode: code, ClaimExpiresAt: expires}, nil
		}
		if !errors.Is(err, errs.ErrAlreadyExists) || attempt == claimCodeAttempts {
			return model.Registration{}, err
		}
	}
}

// Resolve looks the secret up by its keyed hash and confirms it with a constant-time compare.
func (s *IdentityServiceImpl) Resolve(ctx context.Context, secret string) (model.Identity, error) {
	if secret == "" {
		return model.Identity{}, errs.ErrUnauthorized
	}
	tok, err := s.tokens.GetByHash(ctx, s.hasher.Hash(secret))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Identity{}, errs.ErrUnauthorized
		}
		return model.Identity{}, err
	}
	if !s.hasher.Verify(secret, tok.Hash) {
		return model.Identity{}, errs.ErrUnauthorized
	}
	return model.Identity{TokenID: tok.ID, State: tok.State}, nil
}

// Touch sets last_used_at as a best-effort effect.
func (s *IdentityServiceImpl) Touch(ctx context.Context, id model.Identity) {
	at := s.now().UTC()
	s.effects.Go(ctx, "touch", func(ctx context.Context) error {
		return s.tokens.Touch(ctx, id.TokenID, at)
	})
}

// RequestClaim moves the token behind an unexpired claim code to pending.
func (s *IdentityServiceImpl) RequestClaim(ctx context.Context, code, owner string) (uuid.UUID, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	owner = strings.TrimSpace(owner)
	var violations []string
	if code == "" {
		violations = append(violations, "claim_code is required")
	}
	if owner == "" {
		violations = append(violations, "owner is required")
	}
	if err := errs.NewValidation(violations); err != nil {
		return uuid.Nil, err
	}

	tok, err := s.tokens.GetByClaimCode(ctx, code)
	if err != nil {
		return uuid.Nil, err
	}
	switch tok.State {
	case model.ClaimClaimed:
		return uuid.Nil, errs.ErrAlreadyClaimed
	case model.ClaimPending:
		return uuid.Nil, fmt.Errorf("%w: claim already requested", errs.ErrConflict)
	}
	if tok.ClaimExpiresAt != nil && !s.now().Before(*tok.ClaimExpiresAt) {
		return uuid.Nil, errs.ErrClaimExpired
	}
	if err := s.tokens.MarkPending(ctx, tok.ID, owner); err != nil {
		return uuid.Nil, err
	}
	return tok.ID, nil
}

// ConfirmClaim marks the token claimed and clears its claim code.
func (s *IdentityServiceImpl) ConfirmClaim(ctx context.Context, tokenID uuid.UUID) error {
	tok, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if tok.State == model.ClaimClaimed {
		return errs.ErrAlreadyClaimed
	}
	return s.tokens.Confirm(ctx, tokenID, s.now().UTC())
}

// RevertClaim returns a claimed token to unclaimed and issues a new claim code.
func (s *IdentityServiceImpl) RevertClaim(ctx context.Context, tokenID uuid.UUID) (model.ClaimTicket, error) {
	tok, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return model.ClaimTicket{}, err
	}
	if tok.State != model.ClaimClaimed {
		return model.ClaimTicket{}, errs.ErrNotClaimed
	}
	expires := s.now().UTC().Add(claimTTL)
	for attempt := 1; ; attempt++ {
		code, err := pkgcrypto.NewClaimCode()
		if err != nil {
			return model.ClaimTicket{}, err
		}
		err = s.tokens.Revert(ctx, tokenID, code, expires)
		if err == nil {
			return model.ClaimTicket{TokenID: tokenID, Code: code, ExpiresAt: expires}, nil
		}
		if !errors.Is(err, errs.ErrAlreadyExists) || attempt == claimCodeAttempts {
			return model.ClaimTicket{}, err
		}
	}
}
