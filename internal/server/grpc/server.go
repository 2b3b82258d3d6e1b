// Package grpcserver exposes the benchmark intake over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/benchboard/internal/api/intakev1"
	"github.com/and161185/benchboard/internal/convert"
	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/logging"
	"github.com/and161185/benchboard/internal/service"
)

// Server wires services into gRPC handlers.
type Server struct {
	identity service.IdentityService
	versions service.VersionService
	subs     service.SubmissionService
	ranking  service.RankingService
	log      *zap.Logger
}

var _ intakev1.IntakeServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(
	identity service.IdentityService,
	versions service.VersionService,
	subs service.SubmissionService,
	ranking service.RankingService,
	log *zap.Logger,
) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{identity: identity, versions: versions, subs: subs, ranking: ranking, log: log}
}

// PrincipalMethods lists the full method names that require an identity-provider assertion.
func PrincipalMethods() []string {
	return []string{
		intakev1.FullMethod(intakev1.MethodRequestClaim),
		intakev1.FullMethod(intakev1.MethodConfirmClaim),
		intakev1.FullMethod(intakev1.MethodRevertClaim),
		intakev1.FullMethod(intakev1.MethodSetCurrentVersion),
		intakev1.FullMethod(intakev1.MethodSetVersionHidden),
		intakev1.FullMethod(intakev1.MethodListAllVersions),
	}
}

// --- credentials ---

// Register issues a new client credential, rate limited per caller address.
func (s *Server) Register(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	reg, err := s.identity.Register(ctx, remoteIP(ctx))
	if err != nil {
		return nil, s.status(err)
	}
	s.log.Info("credential issued", logging.TokenID(reg.TokenID.String()))
	return s.reply(convert.RegistrationToStruct(reg))
}

func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// --- submissions ---

// Submit validates and stores a benchmark result, then ranks it.
func (s *Server) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	// a missing credential surfaces from the service after validation
	secret, _ := bearerTokenFromMD(ctx)
	res, err := s.subs.Submit(ctx, secret, convert.PayloadFromStruct(req))
	if err != nil {
		return nil, s.status(err)
	}
	return s.reply(convert.SubmitResultToStruct(res))
}

// GetSubmission returns a stored submission with its current rank.
func (s *Server) GetSubmission(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := uuidField(req, "submission_id")
	if err != nil {
		return nil, s.status(err)
	}
	d, err := s.subs.Get(ctx, id)
	if err != nil {
		return nil, s.status(err)
	}
	return s.reply(convert.SubmissionDetailToStruct(d))
}

// Leaderboard aggregates submissions per model within the resolved version scope.
func (s *Server) Leaderboard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	version, f := convert.LeaderboardFilterFromStruct(req)
	scope, err := s.versions.ResolveScope(ctx, version)
	if err != nil {
		return nil, s.status(err)
	}
	f.Scope = scope
	entries, err := s.ranking.Leaderboard(ctx, f)
	if err != nil {
		return nil, s.status(err)
	}
	return s.reply(convert.LeaderboardToStruct(scope, entries))
}

// ListVersions returns public benchmark versions, newest first.
func (s *Server) ListVersions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	vs, err := s.versions.List(ctx, false)
	if err != nil {
		return nil, s.status(err)
	}
	return s.reply(convert.VersionsToStruct(vs, false))
}

// --- claims ---

// RequestClaim attaches the asserted user to the token behind a claim code.
func (s *Server) RequestClaim(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "identity assertion required")
	}
	tokenID, err := s.identity.RequestClaim(ctx, convert.String(req, "claim_code"), p.Subject)
	if err != nil {
		return nil, s.status(err)
	}
	return s.reply(structpb.NewStruct(map[string]any{"token_id": tokenID.String(), "state": "pending"}))
}

// ConfirmClaim marks a token claimed. Admin only.
func (s *Server) ConfirmClaim(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	id, err := uuidField(req, "token_id")
	if err != nil {
		return nil, s.status(err)
	}
	if err := s.identity.ConfirmClaim(ctx, id); err != nil {
		return nil, s.status(err)
	}
	return s.reply(structpb.NewStruct(map[string]any{"token_id": id.String(), "state": "claimed"}))
}

// RevertClaim returns a claimed token to unclaimed with a fresh claim code. Admin only.
func (s *Server) RevertClaim(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	id, err := uuidField(req, "token_id")
	if err != nil {
		return nil, s.status(err)
	}
	t, err := s.identity.RevertClaim(ctx, id)
	if err != nil {
		return nil, s.status(err)
	}
	return s.reply(convert.ClaimTicketToStruct(t))
}

// --- versions (admin) ---

// SetCurrentVersion makes a version the only current one.
func (s *Server) SetCurrentVersion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	v := convert.String(req, "version")
	if err := s.versions.SetCurrent(ctx, v); err != nil {
		return nil, s.status(err)
	}
	return s.reply(structpb.NewStruct(map[string]any{"version": v, "current": true}))
}

// SetVersionHidden toggles public visibility of a version.
func (s *Server) SetVersionHidden(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	v, hidden := convert.String(req, "version"), convert.Bool(req, "hidden")
	if err := s.versions.SetHidden(ctx, v, hidden); err != nil {
		return nil, s.status(err)
	}
	return s.reply(structpb.NewStruct(map[string]any{"version": v, "hidden": hidden}))
}

// ListAllVersions returns every version including hidden ones.
func (s *Server) ListAllVersions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	vs, err := s.versions.List(ctx, true)
	if err != nil {
		return nil, s.status(err)
	}
	return s.reply(convert.VersionsToStruct(vs, true))
}

// --- helpers ---

func requireAdmin(ctx context.Context) error {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "identity assertion required")
	}
	if !p.Admin {
		return status.Error(codes.PermissionDenied, "admin role required")
	}
	return nil
}

func uuidField(req *structpb.Struct, key string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(convert.String(req, key)))
	if err != nil {
		return uuid.Nil, errs.NewValidation([]string{key + " must be a UUID"})
	}
	return id, nil
}

func (s *Server) reply(out *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, s.status(err)
	}
	return out, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get(intakev1.AuthorizationHeader) {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

func assertionFromMD(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(intakev1.AssertionHeader) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
