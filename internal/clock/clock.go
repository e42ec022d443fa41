// Package clock abstracts time for components whose behavior is defined by
// waiting: the readiness poller and the self-termination guard. Tests
// substitute a fake so polling and multi-hour deadlines run instantly.
package clock

import (
	"context"
	"time"
)

type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err() in
	// the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
