package grpcserver

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/benchboard/internal/metrics"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func TestLoggingUnary_MetadataOnly(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	ic := LoggingUnary(zap.New(core))

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", "Bearer top-secret"))
	info := &grpc.UnaryServerInfo{FullMethod: "/benchboard.v1.Intake/Submit"}

	resp, err := ic(ctx, "req", info, func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	wantErr := status.Error(codes.Unavailable, "storage unavailable")
	_, err = ic(ctx, "req", info, func(context.Context, any) (any, error) { return nil, wantErr })
	require.Equal(t, wantErr, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	fields := entries[0].ContextMap()
	require.Equal(t, "/benchboard.v1.Intake/Submit", fields["method"])
	require.Equal(t, "OK", fields["code"])
	require.Equal(t, "127.0.0.1:12345", fields["peer"])
	for _, e := range entries {
		for _, v := range e.ContextMap() {
			if str, ok := v.(string); ok {
				require.NotContains(t, str, "top-secret")
			}
		}
	}
}

func TestRecoverUnary_CatchesPanic(t *testing.T) {
	t.Parallel()

	ic := RecoverUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/benchboard.v1.Intake/Panic"}

	_, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) {
		panic("oh no")
	})
	require.Equal(t, codes.Internal, status.Code(err))

	resp, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { return 1, nil })
	require.NoError(t, err)
	require.Equal(t, 1, resp)
}

func TestMetricsUnary_CountsByCode(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	ic := MetricsUnary(metrics.New(reg))
	info := &grpc.UnaryServerInfo{FullMethod: "/benchboard.v1.Intake/Submit"}

	_, _ = ic(context.Background(), nil, info, func(context.Context, any) (any, error) { return nil, nil })
	_, _ = ic(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "bad")
	})
	_, _ = ic(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, errors.New("plain")
	})

	n, err := testutil.GatherAndCount(reg, "benchboard_rpc_requests_total")
	require.NoError(t, err)
	require.Equal(t, 3, n, "one series per distinct code")

	require.NotPanics(t, func() {
		_, _ = MetricsUnary(nil)(context.Background(), nil, info, func(context.Context, any) (any, error) { return nil, nil })
	})
}
