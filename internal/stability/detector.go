// Package stability decides when a rendered page has stopped changing.
package stability

import (
	"context"
	"time"

	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"go.uber.org/zap"
)

const (
	DefaultInterval = time.Second
	DefaultChecks   = 5
)

// Sampler returns the current size of the rendered document.
type Sampler func(ctx context.Context) (int, error)

// ContentSampler samples the length of the serialized markup of page.
func ContentSampler(page schemas.Page) Sampler {
	return func(ctx context.Context) (int, error) {
		html, err := page.Content(ctx)
		if err != nil {
			return 0, err
		}
		return len(html), nil
	}
}

// Result describes how a Wait call ended.
type Result struct {
	// Stable is false when the poll budget ran out before quiescence.
	Stable  bool
	Samples int
	Size    int
}

// Detector polls a Sampler until the sampled size stays identical for
// Checks consecutive polls.
type Detector struct {
	Interval time.Duration
	Checks   int
	logger   *zap.Logger
	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDetector creates a detector. Non-positive values fall back to the defaults.
func NewDetector(logger *zap.Logger, interval time.Duration, checks int) *Detector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if checks <= 0 {
		checks = DefaultChecks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		Interval: interval,
		Checks:   checks,
		logger:   logger.Named("stability"),
		sleep:    sleepContext,
	}
}

// Wait samples at most timeout/Interval+1 times. Running out of samples is
// not an error: the page is captured as it is. A sampling failure or a
// cancelled context is returned.
func (d *Detector) Wait(ctx context.Context, sample Sampler, timeout time.Duration) (Result, error) {
	maxPolls := int(timeout / d.Interval)
	var (
		res    Result
		prev   int
		passed int
	)

	for i := 0; i <= maxPolls; i++ {
		cur, err := sample(ctx)
		if err != nil {
			return res, err
		}
		res.Samples++
		res.Size = cur

		// A zero size means nothing has rendered yet and never counts as stable.
		if prev == 0 || prev != cur {
			passed = 0
		} else {
			passed++
		}
		if passed >= d.Checks {
			res.Stable = true
			d.logger.Debug("Page size settled.", zap.Int("size", cur), zap.Int("samples", res.Samples))
			return res, nil
		}
		prev = cur

		if i == maxPolls {
			break
		}
		if err := d.sleep(ctx, d.Interval); err != nil {
			return res, err
		}
	}

	d.logger.Info("Page did not settle before the timeout; capturing anyway.",
		zap.Int("size", res.Size), zap.Int("samples", res.Samples), zap.Duration("timeout", timeout))
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
