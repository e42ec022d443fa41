// Package remote runs commands on an engine instance over SSH. It separates
// the two failure modes callers must tell apart: the command ran and exited
// (an exit status exists, whatever its value) versus the session never got
// that far (dial, auth or channel failure).
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// ConnectError marks failures that happened before any remote exit status
// could exist: connection refused, host unreachable, authentication
// rejected, session setup failed.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return "remote connect: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsConnectError reports whether err means "we never managed to talk to the
// remote command at all".
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}

// Target identifies the instance and account commands run as.
type Target struct {
	Host    string
	Port    int
	User    string
	KeyPath string
}

func (t Target) addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Executor opens SSH sessions against a fixed target.
type Executor struct {
	target  Target
	timeout time.Duration
}

// NewExecutor creates an executor. timeout bounds each connection attempt;
// zero means 10 seconds.
func NewExecutor(target Target, timeout time.Duration) *Executor {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Executor{target: target, timeout: timeout}
}

// Run executes command and returns its exit status and combined output.
// A non-zero exit status is not an error; err is non-nil only when no exit
// status was obtained.
func (e *Executor) Run(ctx context.Context, command string) (int, []byte, error) {
	client, err := e.dial(ctx)
	if err != nil {
		return 0, nil, err
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return 0, nil, &ConnectError{Err: fmt.Errorf("open session: %w", err)}
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(command)
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), out, nil
		}
		return 0, out, fmt.Errorf("run %q: %w", command, err)
	}
	return 0, out, nil
}

// Start executes command with streaming stdio. The caller owns the returned
// session and must Close it.
func (e *Executor) Start(ctx context.Context, command string) (*Session, error) {
	client, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, &ConnectError{Err: fmt.Errorf("open session: %w", err)}
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := sess.Start(command); err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Err: fmt.Errorf("start %q: %w", command, err)}
	}

	return &Session{client: client, sess: sess, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (e *Executor) dial(ctx context.Context) (*ssh.Client, error) {
	keyData, err := os.ReadFile(e.target.KeyPath)
	if err != nil {
		return nil, &ConnectError{Err: fmt.Errorf("read key %s: %w", e.target.KeyPath, err)}
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, &ConnectError{Err: fmt.Errorf("parse key %s: %w", e.target.KeyPath, err)}
	}

	cfg := &ssh.ClientConfig{
		User: e.target.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Instances are freshly created, their host keys never seen before.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.timeout,
	}

	dialer := net.Dialer{Timeout: e.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.target.addr())
	if err != nil {
		return nil, &ConnectError{Err: fmt.Errorf("dial %s: %w", e.target.addr(), err)}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, e.target.addr(), cfg)
	if err != nil {
		conn.Close()
		return nil, &ConnectError{Err: fmt.Errorf("handshake with %s: %w", e.target.addr(), err)}
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Session is a started remote command with live byte channels.
type Session struct {
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (s *Session) Stdin() io.WriteCloser {
	return s.stdin
}

func (s *Session) Stdout() io.Reader {
	return s.stdout
}

func (s *Session) Stderr() io.Reader {
	return s.stderr
}

// Wait blocks until the remote command exits and returns its exit status.
// Once observed the status is final; nothing here retries. err is non-nil
// only when the command finished without reporting a status (e.g. the
// connection was severed).
func (s *Session) Wait() (int, error) {
	err := s.sess.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return 0, fmt.Errorf("session ended without exit status: %w", err)
}

// Close tears down the session and connection. Safe after Wait.
func (s *Session) Close() error {
	s.sess.Close()
	return s.client.Close()
}
