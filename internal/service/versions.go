package service

import (
	"context"
	"strings"

	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/model"
	"github.com/and161185/benchboard/internal/repository"
)

// VersionService resolves query scope and administers benchmark versions.
type VersionService interface {
	// ResolveScope returns the version filter of a query. An empty result means no filtering.
	ResolveScope(ctx context.Context, explicit string) ([]string, error)
	// List returns versions newest first.
	List(ctx context.Context, includeHidden bool) ([]model.BenchmarkVersion, error)
	// SetCurrent makes id the only current version.
	SetCurrent(ctx context.Context, id string) error
	// SetHidden toggles the public visibility of id.
	SetHidden(ctx context.Context, id string, hidden bool) error
}

type VersionServiceImpl struct {
	versions repository.VersionRepository
}

// NewVersionService constructs VersionService.
func NewVersionService(versions repository.VersionRepository) *VersionServiceImpl {
	return &VersionServiceImpl{versions: versions}
}

// ResolveScope returns [explicit] without an existence check, otherwise every current version.
func (s *VersionServiceImpl) ResolveScope(ctx context.Context, explicit string) ([]string, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return []string{v}, nil
	}
	current, err := s.versions.Current(ctx)
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (s *VersionServiceImpl) List(ctx context.Context, includeHidden bool) ([]model.BenchmarkVersion, error) {
	return s.versions.List(ctx, includeHidden)
}

func (s *VersionServiceImpl) SetCurrent(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errs.NewValidation([]string{"version is required"})
	}
	return s.versions.SetCurrent(ctx, id)
}

func (s *VersionServiceImpl) SetHidden(ctx context.Context, id string, hidden bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errs.NewValidation([]string{"version is required"})
	}
	return s.versions.SetHidden(ctx, id, hidden)
}
