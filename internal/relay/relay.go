// Package relay makes a remote engine's stdio indistinguishable from a
// local process's stdio. The payload is an opaque byte stream (in practice
// UCI text); the relay forwards it without interpretation, preserving byte
// order in each direction, and exits with the remote command's exit status.
package relay

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// ExitTransportFailure is returned when the session failed before any
// remote exit status was obtained, so callers can tell "the engine ran and
// exited abnormally" apart from "we never talked to the engine at all".
// EX_UNAVAILABLE from sysexits; distinct from anything an engine exits with.
const ExitTransportFailure = 69

// Session is a started remote command. *remote.Session satisfies it.
type Session interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() (int, error)
	Close() error
}

// Starter opens exactly one session for a command.
type Starter interface {
	Start(ctx context.Context, command string) (Session, error)
}

// Relay forwards stdio for a single session. It performs no retries of its
// own: one connection attempt, one command execution, one observed outcome.
// Retry policy belongs to the readiness poller during setup.
type Relay struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Relay {
	return &Relay{logger: logger}
}

// Run executes command through starter, wiring in/out/errw to the remote
// process, and returns the process exit code to report. Closing in (EOF)
// closes the remote stdin; cancelling ctx tears the session down.
func (r *Relay) Run(ctx context.Context, starter Starter, command string, in io.Reader, out, errw io.Writer) int {
	logger := r.logger.With("session_id", uuid.New().String())

	sess, err := starter.Start(ctx, command)
	if err != nil {
		logger.Error("failed to reach remote command", "command", command, "err", err)
		return ExitTransportFailure
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		sess.Close()
	}()

	// Both directions run concurrently; within each direction ordering is
	// whatever the pipe delivers, byte for byte. io.Copy adds no buffering
	// beyond its transfer buffer, so line boundaries are not coalesced.
	go func() {
		_, err := io.Copy(sess.Stdin(), in)
		if err != nil {
			logger.Debug("stdin forwarding ended", "err", err)
		}
		sess.Stdin().Close()
	}()

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		_, _ = io.Copy(errw, sess.Stderr())
	}()

	outDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(out, sess.Stdout())
		outDone <- err
	}()

	code, waitErr := sess.Wait()

	// Drain remaining output before reporting the exit status.
	if err := <-outDone; err != nil {
		logger.Debug("stdout forwarding ended", "err", err)
	}
	<-stderrDone

	if waitErr != nil {
		logger.Error("session ended without exit status", "err", waitErr)
		return ExitTransportFailure
	}

	logger.Info("remote command exited", "code", code)
	return code
}
