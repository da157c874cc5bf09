package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/virtinfra/guest-acceptor/metrics"
	"github.com/virtinfra/guest-acceptor/types"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultDialInterval   = 2 * time.Second
	defaultDialAttempts   = 5
	defaultCommandTimeout = 5 * time.Minute
	maxCaptureBytes       = 1 << 20
)

// Config controls how the SSH executor reaches its targets
type Config struct {
	Targets map[string]types.Target

	// DialTimeout bounds a single connection attempt
	DialTimeout time.Duration
	// DialInterval and DialAttempts shape the reconnect retry loop.
	// Freshly booted guests refuse connections for a while, so dialing
	// retries at a fixed interval before giving up.
	DialInterval time.Duration
	DialAttempts uint64
	// CommandTimeout applies when a caller passes a zero timeout
	CommandTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DialTimeout == 0 {
		out.DialTimeout = defaultDialTimeout
	}
	if out.DialInterval == 0 {
		out.DialInterval = defaultDialInterval
	}
	if out.DialAttempts == 0 {
		out.DialAttempts = defaultDialAttempts
	}
	if out.CommandTimeout == 0 {
		out.CommandTimeout = defaultCommandTimeout
	}
	return out
}

// SSHExecutor executes commands over SSH with one cached client per target.
// Session creation runs behind a per-target circuit breaker so a dead guest
// fails fast instead of hanging every subsequent step.
type SSHExecutor struct {
	cfg Config
	log *zap.SugaredLogger

	mu       sync.Mutex
	clients  map[string]*ssh.Client
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewSSHExecutor validates the target set and returns an executor.
// Connections are established lazily on first use.
func NewSSHExecutor(log *zap.SugaredLogger, cfg Config) (*SSHExecutor, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets configured")
	}
	for name, t := range cfg.Targets {
		if t.Address == "" {
			return nil, fmt.Errorf("target %s has no address", name)
		}
		if t.User == "" {
			return nil, fmt.Errorf("target %s has no user", name)
		}
		if t.Password == "" && t.KeyFile == "" {
			return nil, fmt.Errorf("target %s has neither password nor key file", name)
		}
	}
	return &SSHExecutor{
		cfg:      cfg.withDefaults(),
		log:      log.Named("ssh"),
		clients:  make(map[string]*ssh.Client),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}, nil
}

// Execute implements Executor
func (e *SSHExecutor) Execute(ctx context.Context, target, command string, timeout time.Duration) (CommandResult, error) {
	if timeout <= 0 {
		timeout = e.cfg.CommandTimeout
	}

	sess, err := e.session(ctx, target)
	if err != nil {
		return CommandResult{}, err
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = newCapWriter(&stdout, maxCaptureBytes)
	sess.Stderr = newCapWriter(&stderr, maxCaptureBytes)

	start := time.Now()
	if err := sess.Start(command); err != nil {
		e.forget(target)
		metrics.RecordSSHError(target, "connect")
		return CommandResult{}, &ConnectError{Target: target, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	result := func() CommandResult {
		return CommandResult{
			Stdout: stripansi.Strip(stdout.String()),
			Stderr: stripansi.Strip(stderr.String()),
		}
	}

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return result(), ctx.Err()
	case <-timer.C:
		_ = sess.Signal(ssh.SIGKILL)
		e.log.Warnw("remote command timed out", "target", target, "command", truncate(command), "timeout", timeout)
		metrics.RecordSSHError(target, "timeout")
		return result(), &CommandTimeoutError{Target: target, Command: command, Timeout: timeout}
	}

	res := result()
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	default:
		// The session died without delivering an exit status; the cached
		// client cannot be trusted anymore.
		e.forget(target)
		metrics.RecordSSHError(target, "connect")
		return res, &ConnectError{Target: target, Err: err}
	}

	e.log.Debugw("remote command finished",
		"target", target,
		"command", truncate(command),
		"exit", res.ExitCode,
		"duration", time.Since(start))
	return res, nil
}

// Push implements Executor
func (e *SSHExecutor) Push(ctx context.Context, target, remotePath string, data []byte) error {
	sess, err := e.session(ctx, target)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.Stdin = bytes.NewReader(data)
	if err := e.runSession(ctx, target, sess, fmt.Sprintf("cat > %s", remotePath)); err != nil {
		return fmt.Errorf("push %s to %s: %w", remotePath, target, err)
	}
	return nil
}

// Fetch implements Executor
func (e *SSHExecutor) Fetch(ctx context.Context, target, remotePath string) ([]byte, error) {
	sess, err := e.session(ctx, target)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	var out bytes.Buffer
	sess.Stdout = &out
	if err := e.runSession(ctx, target, sess, fmt.Sprintf("cat %s", remotePath)); err != nil {
		return nil, fmt.Errorf("fetch %s from %s: %w", remotePath, target, err)
	}
	return out.Bytes(), nil
}

// Close implements Executor
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for name, c := range e.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing client for %s: %w", name, err)
		}
		delete(e.clients, name)
	}
	return firstErr
}

// session opens a session on the target's cached client, dialing if needed
func (e *SSHExecutor) session(ctx context.Context, target string) (*ssh.Session, error) {
	client, err := e.client(ctx, target)
	if err != nil {
		metrics.RecordSSHError(target, faultKind(err))
		return nil, err
	}

	res, err := e.breaker(target).Execute(func() (any, error) {
		return client.NewSession()
	})
	if err != nil {
		metrics.RecordSSHError(target, "connect")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ConnectError{Target: target, Err: err}
		}
		// A failed session usually means the underlying connection is gone.
		e.forget(target)
		return nil, &ConnectError{Target: target, Err: err}
	}
	return res.(*ssh.Session), nil
}

func (e *SSHExecutor) client(ctx context.Context, target string) (*ssh.Client, error) {
	e.mu.Lock()
	if c, ok := e.clients[target]; ok {
		e.mu.Unlock()
		return c, nil
	}
	t, ok := e.cfg.Targets[target]
	e.mu.Unlock()
	if !ok {
		return nil, &ConnectError{Target: target, Err: fmt.Errorf("unknown target")}
	}

	conf, err := clientConfig(t, e.cfg.DialTimeout)
	if err != nil {
		return nil, &ConnectError{Target: target, Err: err}
	}

	var client *ssh.Client
	operation := func() error {
		c, dialErr := ssh.Dial("tcp", t.Addr(), conf)
		if dialErr != nil {
			if isAuthFailure(dialErr) {
				// Wrong credentials will not improve with retries.
				return backoff.Permanent(dialErr)
			}
			e.log.Debugw("dial failed, retrying", "target", target, "addr", t.Addr(), "error", dialErr)
			return dialErr
		}
		client = c
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.DialInterval), e.cfg.DialAttempts-1),
		ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, classifyDialError(target, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.clients[target]; ok {
		_ = client.Close()
		return existing, nil
	}
	e.clients[target] = client
	e.log.Infow("connected", "target", target, "addr", t.Addr())
	return client, nil
}

func (e *SSHExecutor) breaker(target string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if br, ok := e.breakers[target]; ok {
		return br
	}
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ssh-" + target,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})
	e.breakers[target] = br
	return br
}

func (e *SSHExecutor) forget(target string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[target]; ok {
		_ = c.Close()
		delete(e.clients, target)
	}
}

// runSession runs cmd on an already-open session, honoring ctx
func (e *SSHExecutor) runSession(ctx context.Context, target string, sess *ssh.Session, cmd string) error {
	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return ctx.Err()
	}
}

func clientConfig(t types.Target, dialTimeout time.Duration) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if t.KeyFile != "" {
		key, err := os.ReadFile(t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing key file %s: %w", t.KeyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if t.Password != "" {
		methods = append(methods, ssh.Password(t.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no credentials for target %s", t.Name)
	}
	return &ssh.ClientConfig{
		User: t.User,
		Auth: methods,
		// Guests are short-lived lab VMs with generated host keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
		BannerCallback:  func(string) error { return nil },
	}, nil
}

func truncate(command string) string {
	const max = 120
	if len(command) <= max {
		return command
	}
	return command[:max] + "..."
}

// capWriter bounds how much remote output is kept in memory
type capWriter struct {
	buf *bytes.Buffer
	max int
}

func newCapWriter(buf *bytes.Buffer, max int) *capWriter {
	return &capWriter{buf: buf, max: max}
}

func (w *capWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
