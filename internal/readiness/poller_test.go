package readiness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avkline/enginevm/internal/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyProbe fails a fixed number of times before succeeding, counting
// every invocation.
type flakyProbe struct {
	failures int
	calls    int
}

func (p *flakyProbe) Probe(ctx context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return fmt.Errorf("probe exited 1")
	}
	return nil
}

func TestWaitReadySucceedsAfterFailures(t *testing.T) {
	clk := clock.NewFake(time.Now())
	poller := NewPollerWithClock(clk, testLogger())
	probe := &flakyProbe{failures: 3}

	err := poller.WaitReady(context.Background(), probe, time.Second, 5)
	require.NoError(t, err)

	// Three failures then one success, each retry spaced by the interval.
	assert.Equal(t, 4, probe.calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clk.Sleeps())
}

func TestWaitReadyImmediateSuccess(t *testing.T) {
	clk := clock.NewFake(time.Now())
	poller := NewPollerWithClock(clk, testLogger())
	probe := &flakyProbe{failures: 0}

	err := poller.WaitReady(context.Background(), probe, time.Second, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, probe.calls)
	assert.Empty(t, clk.Sleeps())
}

func TestWaitReadyTimesOut(t *testing.T) {
	clk := clock.NewFake(time.Now())
	poller := NewPollerWithClock(clk, testLogger())
	probe := &flakyProbe{failures: 10}

	err := poller.WaitReady(context.Background(), probe, time.Second, 3)
	require.ErrorIs(t, err, ErrTimedOut)

	// The budget bounds probe invocations, and there is no sleep after the
	// final attempt.
	assert.Equal(t, 3, probe.calls)
	assert.Len(t, clk.Sleeps(), 2)
}

func TestWaitReadyExactBudgetBoundary(t *testing.T) {
	clk := clock.NewFake(time.Now())
	poller := NewPollerWithClock(clk, testLogger())

	// N failures with max_attempts == N+1 succeeds on the last attempt.
	probe := &flakyProbe{failures: 4}
	err := poller.WaitReady(context.Background(), probe, time.Second, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, probe.calls)

	// N failures with max_attempts == N times out.
	probe = &flakyProbe{failures: 4}
	err = poller.WaitReady(context.Background(), probe, time.Second, 4)
	require.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, 4, probe.calls)
}

func TestWaitReadyTransportErrorsAreRetryable(t *testing.T) {
	clk := clock.NewFake(time.Now())
	poller := NewPollerWithClock(clk, testLogger())

	// Failure causes are not distinguished: connection refused and non-zero
	// exits both mean "retry".
	calls := 0
	probe := ProbeFunc(func(ctx context.Context) error {
		calls++
		switch calls {
		case 1:
			return fmt.Errorf("dial 203.0.113.10:22: connection refused")
		case 2:
			return fmt.Errorf("probe exited 127")
		default:
			return nil
		}
	})

	err := poller.WaitReady(context.Background(), probe, 5*time.Second, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitReadyCancelled(t *testing.T) {
	clk := clock.NewFake(time.Now())
	poller := NewPollerWithClock(clk, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probe := &flakyProbe{failures: 10}
	err := poller.WaitReady(ctx, probe, time.Second, 5)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, probe.calls)
}
