package auth

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// condition is a predicate evaluated against the live page.
type condition func(ctx context.Context) (bool, error)

const defaultPollInterval = 100 * time.Millisecond

var errConditionPending = errors.New("condition not met")

// poll evaluates cond immediately and then every interval until it holds or
// timeout elapses. Predicate errors count as "not yet": pages throw while a
// login redirect tears the document down. Running out of time is (false, nil)
// unless the last evaluation failed, in which case that error is returned.
// Cancellation of ctx ends the wait at once.
func poll(ctx context.Context, logger *zap.Logger, interval, timeout time.Duration, cond condition) (bool, error) {
	if timeout <= 0 {
		return cond(ctx)
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = interval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = timeout

	operation := func() error {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errConditionPending
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		if !errors.Is(err, errConditionPending) {
			logger.Debug("Page probe failed, retrying.", zap.Error(err), zap.Duration("next", next))
		}
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, errConditionPending):
		return false, nil
	default:
		return false, err
	}
}

func not(c condition) condition {
	return func(ctx context.Context) (bool, error) {
		ok, err := c(ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// anyOf holds as soon as one condition holds. An error is only reported when
// no condition held.
func anyOf(conds ...condition) condition {
	return func(ctx context.Context) (bool, error) {
		var firstErr error
		for _, c := range conds {
			ok, err := c(ctx)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, firstErr
	}
}
