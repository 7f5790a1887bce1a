package transfer

import (
	"context"
	"math"
	"time"

	"github.com/handiism/photo-mirror/internal/errors"
)

// retrier runs store calls for a single photo. The budget is shared by every
// call made for that photo.
type retrier struct {
	budget   int
	cooldown float64
	exponent float64
	tries    int
}

func newRetrier(opts Options) *retrier {
	return &retrier{
		budget:   opts.RetryBudget,
		cooldown: opts.RetryCooldown,
		exponent: opts.RetryExponent,
	}
}

// do calls fn until it succeeds, fails with a non-transient error, or the
// budget runs out.
func (r *retrier) do(ctx context.Context, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil || !errors.IsTransient(err) || r.budget <= 0 {
			return err
		}
		r.budget--
		waitForRetry(ctx, r.cooldown, r.exponent, r.tries)
		r.tries++
	}
}

// waitForRetry sleeps cooldown*exponent^tries seconds or until ctx is done.
func waitForRetry(ctx context.Context, cooldown, exponent float64, tries int) {
	wait := cooldown * math.Pow(exponent, float64(tries))
	if wait <= 0 {
		return
	}
	t := time.NewTimer(time.Duration(wait * float64(time.Second)))
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
