package extractor

import (
	"context"
	"time"
)

const (
	DefaultWaitTimeout  = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// WaitForElement polls root for a displayed element matching selector.
// A nil Node with a nil error means the timeout elapsed first.
func WaitForElement(ctx context.Context, root Node, selector string, timeout, interval time.Duration) (Node, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		el, err := root.QuerySelector(selector)
		if err != nil {
			return nil, err
		}
		if el != nil {
			shown, err := el.Displayed()
			if err != nil {
				return nil, err
			}
			if shown {
				return el, nil
			}
		}

		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
