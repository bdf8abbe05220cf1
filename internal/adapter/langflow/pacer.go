package langflow

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// pacer enforces a minimum spacing of 1/perSecond between the start times
// of successive invocations. There is one throttle per process, not per
// target or session, so concurrent callers serialize through the delay.
type pacer struct {
	limiter *rate.Limiter
	// sleep blocks for d or until ctx is done. Injectable for tests so
	// spacing can be asserted without real sleeping.
	sleep func(ctx context.Context, d time.Duration) error
}

func newPacer(perSecond float64) *pacer {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &pacer{
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepCtx,
	}
}

// wait blocks until the next invocation may start. The spacing guarantee
// covers start times only; completions may finish out of order.
func (p *pacer) wait(ctx context.Context) error {
	r := p.limiter.Reserve()
	if !r.OK() {
		return nil
	}
	d := r.Delay()
	if d <= 0 {
		return nil
	}
	if err := p.sleep(ctx, d); err != nil {
		r.Cancel()
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
