// Package readiness turns "the instance exists" into "the workload is
// actually answering". A fresh instance with drivers and an engine to
// install takes a variable, sometimes long, time to come up; connection
// refusals during that window are expected, so every probe failure mode is
// uniformly "not yet ready, retry".
package readiness

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avkline/enginevm/internal/clock"
)

// ErrTimedOut is returned when the probe budget is exhausted. It is a
// normal, reportable outcome, not a crash.
var ErrTimedOut = errors.New("timed out waiting for workload readiness")

// Prober runs one cheap readiness check. A nil return means ready; any
// error, whether a non-zero exit or a transport failure, means retry.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// Poller runs a single-threaded sleep-then-probe loop: sequential probes,
// never concurrent, so a booting instance is not hammered and the order of
// observed states stays trivial to reason about.
type Poller struct {
	clock  clock.Clock
	logger *slog.Logger
}

func NewPoller(logger *slog.Logger) *Poller {
	return &Poller{clock: clock.Real{}, logger: logger}
}

// NewPollerWithClock is used by tests to substitute a fake clock.
func NewPollerWithClock(c clock.Clock, logger *slog.Logger) *Poller {
	return &Poller{clock: c, logger: logger}
}

// WaitReady probes until success, the attempt budget runs out, or ctx is
// cancelled. The first probe fires immediately; subsequent ones are spaced
// by interval. At most maxAttempts probes run; exhaustion yields
// ErrTimedOut.
func (p *Poller) WaitReady(ctx context.Context, probe Prober, interval time.Duration, maxAttempts int) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := probe.Probe(ctx)
		if err == nil {
			p.logger.Info("workload ready", "attempt", attempt)
			return nil
		}
		p.logger.Debug("workload not ready yet",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"err", err,
		)

		if attempt == maxAttempts {
			break
		}
		if err := p.clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}
	return ErrTimedOut
}
