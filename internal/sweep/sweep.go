// Package sweep expires stale deliveries on a fixed interval.
//
// The runner is a thin scheduling shell: all expiry semantics (which rows,
// compartment release, event emission) live in the delivery manager. It
// follows the same lifecycle pattern as other components:
//
//	runner := sweep.New(cfg, manager, logger)
//	runner.Start(ctx)
//	defer runner.Close()
package sweep

import (
	"context"
	"sync"
	"time"
)

// defaultInterval is used when configuration does not set one.
const defaultInterval = 5 * time.Minute

// Expirer is the slice of the delivery manager the runner needs.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Logger is the minimal logging surface used by the runner.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Runner drives the expiry sweep.
type Runner struct {
	interval time.Duration
	expirer  Expirer
	logger   Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a sweep runner. A non-positive interval falls back to the
// default.
func New(interval time.Duration, expirer Expirer, logger Logger) *Runner {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Runner{
		interval: interval,
		expirer:  expirer,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine. One sweep runs
// immediately so deliveries that went stale while the service was down are
// released without waiting a full interval.
func (r *Runner) Start(ctx context.Context) {
	var runCtx context.Context
	runCtx, r.cancel = context.WithCancel(ctx)

	go r.loop(runCtx)
}

// Close stops the sweep loop and waits for an in-flight sweep to finish.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		<-r.done
	})
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	count, err := r.expirer.ExpireStale(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if count > 0 {
		r.logger.Info("expiry sweep released deliveries", "count", count)
	}
}
