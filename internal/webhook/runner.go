package webhook

import (
	"context"
	"time"
)

// Runner drives the Dispatcher's periodic retry and renewal ticks.
// Retries run frequently since backoff windows are seconds-scale;
// renewal runs every 6h per §4.10.
type Runner struct {
	dispatcher    *Dispatcher
	retryInterval time.Duration
	renewInterval time.Duration
}

func NewRunner(dispatcher *Dispatcher) *Runner {
	return &Runner{
		dispatcher:    dispatcher,
		retryInterval: 15 * time.Second,
		renewInterval: 6 * time.Hour,
	}
}

func (r *Runner) Run(ctx context.Context) {
	retryTicker := time.NewTicker(r.retryInterval)
	renewTicker := time.NewTicker(r.renewInterval)
	defer retryTicker.Stop()
	defer renewTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-retryTicker.C:
			r.dispatcher.RetryDue(ctx)
		case <-renewTicker.C:
			r.dispatcher.RenewExpiring(ctx)
		}
	}
}
