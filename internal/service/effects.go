package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/benchboard/internal/metrics"
)

// Effects runs best-effort side effects. They never block or fail the caller:
// each runs detached from the request's cancellation, bounded by a timeout,
// and a failure is logged at warn level and discarded.
type Effects struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewEffects constructs an effect runner. timeout <= 0 defaults to 5s.
func NewEffects(log *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Effects {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Effects{log: log, metrics: m, timeout: timeout}
}

// Go schedules fn. ctx supplies request-scoped values only; its deadline and cancellation are dropped.
func (e *Effects) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.Warn("best-effort effect panicked", zap.String("effect", name), zap.Any("panic", r))
				e.metrics.EffectFailed(name)
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.log.Warn("best-effort effect failed", zap.String("effect", name), zap.Error(err))
			e.metrics.EffectFailed(name)
		}
	}()
}

// Wait blocks until every scheduled effect has finished.
func (e *Effects) Wait() { e.wg.Wait() }
