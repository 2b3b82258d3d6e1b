// Command benchboard-server starts the benchmark intake gRPC server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/benchboard/internal/api/intakev1"
	"github.com/and161185/benchboard/internal/config"
	pkgcrypto "github.com/and161185/benchboard/internal/crypto"
	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/idp"
	"github.com/and161185/benchboard/internal/limiter"
	"github.com/and161185/benchboard/internal/logging"
	"github.com/and161185/benchboard/internal/metrics"
	"github.com/and161185/benchboard/internal/migrate"
	"github.com/and161185/benchboard/internal/repository/postgres"
	grpcserver "github.com/and161185/benchboard/internal/server/grpc"
	"github.com/and161185/benchboard/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	registrationWindow = time.Hour
	registrationLimit  = 10
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "benchboard-server:", err)
		os.Exit(1)
	}
}

// parseConfig loads the config file named by --config and applies flag overrides on top.
func parseConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("benchboard-server", flag.ContinueOnError)
	path := fs.String("config", os.Getenv("BENCHBOARD_CONFIG"), "path to TOML config")
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	metricsAddr := fs.String("metrics-addr", "", "metrics listen address (overrides server.metrics_addr)")
	dsn := fs.String("dsn", "", "PostgreSQL DSN (overrides database.dsn)")
	dev := fs.Bool("dev", false, "enable server reflection (dev only)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if *dev {
		cfg.Server.Reflection = true
	}
	return cfg, cfg.Validate()
}

// run wires storage, services and transport, then serves until SIGINT/SIGTERM.
func run(args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer logging.Sync(logger)
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		logging.Addr(cfg.Server.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schema, err := migrate.Up(ctx, cfg.Database.DSN, logger)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	logger.Info("schema ready", zap.Int64("version", schema))

	db, pool, err := postgres.New(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hasher, err := pkgcrypto.NewHasher([]byte(cfg.Security.Pepper))
	if err != nil {
		return err
	}

	// Repositories
	tokens := postgres.NewTokenRepo(db)
	subs := postgres.NewSubmissionRepo(db)
	versions := postgres.NewVersionRepo(db)
	rankings := postgres.NewRankingRepo(db)
	lim := limiter.NewPG(pool, registrationWindow, registrationLimit)

	// Services
	effects := service.NewEffects(logger.With(logging.Component("effects")), m, cfg.Server.EffectTimeout.Duration)
	identitySvc := service.NewIdentityService(tokens, hasher, lim, effects, m)
	versionSvc := service.NewVersionService(versions)
	rankingSvc := service.NewRankingService(rankings)
	submissionSvc := service.NewSubmissionService(subs, versions, identitySvc, rankingSvc, m)

	verifier := newVerifier(cfg.IdP, logger)

	var opts []grpc.ServerOption
	if cfg.Server.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled; serving plaintext gRPC")
	}
	grpcLog := logger.With(logging.Component("grpc"))
	opts = append(opts, grpc.ChainUnaryInterceptor(
		grpcserver.RecoverUnary(grpcLog),
		grpcserver.MetricsUnary(m),
		grpcserver.LoggingUnary(grpcLog),
		grpcserver.AssertionUnary(verifier, grpcserver.PrincipalMethods()),
	))
	s := grpc.NewServer(opts...)

	intakev1.RegisterIntakeServer(s, grpcserver.New(identitySvc, versionSvc, submissionSvc, rankingSvc, grpcLog))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(intakev1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Server.Reflection {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	metricsSrv := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metricsMux(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", logging.Addr(cfg.Server.Addr), zap.Bool("tls", cfg.Server.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()
	go func() {
		logger.Info("metrics listening", logging.Addr(cfg.Server.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("server error", zap.Error(serveErr))
	}

	hs.Shutdown()
	timeout := cfg.Server.ShutdownTimeout.Duration
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	effects.Wait()

	logger.Info("shutdown complete")
	return serveErr
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// rejectAll is used when no identity provider is configured.
type rejectAll struct{}

func (rejectAll) Verify(context.Context, string) (idp.Principal, error) {
	return idp.Principal{}, errs.ErrUnauthorized
}

func newVerifier(cfg config.IdPConfig, log *zap.Logger) grpcserver.AssertionVerifier {
	if cfg.JWKSURL == "" {
		log.Warn("identity provider not configured; claim and admin methods are disabled")
		return rejectAll{}
	}
	keys := idp.NewKeyCache(cfg.JWKSURL, &http.Client{Timeout: 10 * time.Second}, cfg.KeyTTL.Duration)
	return idp.NewVerifier(keys, cfg.Issuer, cfg.Audience, cfg.AdminEmails)
}
