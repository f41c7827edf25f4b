package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner interleaves outbox polling with periodic reconciliation in one
// long-running loop.
type Runner struct {
	poller            *Poller
	reconciler        *Reconciler
	pollInterval      time.Duration
	reconcileInterval time.Duration
	log               *zap.SugaredLogger
}

func NewRunner(p *Poller, r *Reconciler, pollInterval, reconcileInterval time.Duration, logger *zap.SugaredLogger) *Runner {
	return &Runner{
		poller:            p,
		reconciler:        r,
		pollInterval:      pollInterval,
		reconcileInterval: reconcileInterval,
		log:               logger,
	}
}

// Run polls until the context is cancelled. The inter-poll wait is the only
// suspension point besides storage calls.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Infow("worker started",
		"poll_interval", r.pollInterval, "reconcile_interval", r.reconcileInterval)
	lastReconcile := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.poller.ProcessAvailable(ctx)
		if time.Since(lastReconcile) >= r.reconcileInterval {
			if _, err := r.reconciler.RunOnce(ctx); err != nil {
				r.log.Errorf("reconciliation pass: %v", err)
			}
			lastReconcile = time.Now()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}
