// Package guard is the on-instance safety net against forgotten, billing,
// possibly GPU-equipped instances. It computes its deadline once at start,
// sleeps, then deletes the instance it runs on. Nothing client-side can
// query, extend or cancel it; the only communication back is the instance's
// eventual disappearance, which both sides observe through the control
// plane.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avkline/enginevm/internal/clock"
	"github.com/avkline/enginevm/internal/domain"
)

// ControlPlane is the single operation the guard needs. *gce.Client
// satisfies it.
type ControlPlane interface {
	Delete(ctx context.Context, project, zone, name string) error
}

// Identity resolves which instance the guard is running on. The metadata
// client satisfies it; nothing is passed in from the provisioning side, so
// the guard works however it was installed.
type Identity interface {
	ProjectID(ctx context.Context) (string, error)
	Zone(ctx context.Context) (string, error)
	InstanceName(ctx context.Context) (string, error)
}

// Guard deletes its own instance after a fixed lifetime.
type Guard struct {
	cp     ControlPlane
	id     Identity
	clock  clock.Clock
	logger *slog.Logger

	lifetime  time.Duration
	retries   int
	retryWait time.Duration
}

// New creates a guard. retries bounds the delete attempts; past that the
// guard gives up and manual cleanup is required.
func New(cp ControlPlane, id Identity, lifetime time.Duration, retries int, retryWait time.Duration, logger *slog.Logger) *Guard {
	return &Guard{
		cp:        cp,
		id:        id,
		clock:     clock.Real{},
		logger:    logger,
		lifetime:  lifetime,
		retries:   retries,
		retryWait: retryWait,
	}
}

// WithClock substitutes the clock; used by tests.
func (g *Guard) WithClock(c clock.Clock) *Guard {
	g.clock = c
	return g
}

// Run resolves the guard's identity, sleeps until the deadline, then issues
// the delete-self request. The deadline is computed exactly once and never
// extended.
func (g *Guard) Run(ctx context.Context) error {
	if g.lifetime <= 0 {
		return fmt.Errorf("guard started without a lifetime")
	}

	project, err := g.id.ProjectID(ctx)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}
	zone, err := g.id.Zone(ctx)
	if err != nil {
		return fmt.Errorf("resolve zone: %w", err)
	}
	name, err := g.id.InstanceName(ctx)
	if err != nil {
		return fmt.Errorf("resolve instance name: %w", err)
	}

	deadline := g.clock.Now().Add(g.lifetime)
	g.logger.Info("armed",
		"instance", name,
		"zone", zone,
		"project", project,
		"lifetime", g.lifetime.String(),
		"deadline", deadline.Format(time.RFC3339),
	)

	if err := g.clock.Sleep(ctx, g.lifetime); err != nil {
		return err
	}

	return g.deleteSelf(ctx, project, zone, name)
}

// deleteSelf requests deletion with bounded retries. Deletion is forced and
// non-interactive; there is no supervisor to report to, so best effort is
// the contract.
func (g *Guard) deleteSelf(ctx context.Context, project, zone, name string) error {
	var lastErr error
	for attempt := 1; attempt <= g.retries; attempt++ {
		err := g.cp.Delete(ctx, project, zone, name)
		if err == nil {
			g.logger.Info("instance deletion requested", "instance", name, "attempt", attempt)
			return nil
		}

		var notFound domain.NotFoundError
		if errors.As(err, &notFound) {
			// Already gone through another path.
			g.logger.Info("instance already absent", "instance", name)
			return nil
		}

		lastErr = err
		g.logger.Error("delete-self failed", "instance", name, "attempt", attempt, "err", err)

		if attempt < g.retries {
			if err := g.clock.Sleep(ctx, g.retryWait); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("delete-self gave up after %d attempts: %w", g.retries, lastErr)
}
