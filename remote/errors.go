package remote

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConnectError represents a failure to reach a target at all
type ConnectError struct {
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsConnectError checks if the error is or wraps a ConnectError
func IsConnectError(err error) bool {
	var connErr *ConnectError
	return err != nil && errors.As(err, &connErr)
}

// AuthError represents a target rejecting our credentials
type AuthError struct {
	Target string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticate to %s: %v", e.Target, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError checks if the error is or wraps an AuthError
func IsAuthError(err error) bool {
	var authErr *AuthError
	return err != nil && errors.As(err, &authErr)
}

// CommandTimeoutError represents a remote command that did not finish within
// its deadline. The remote side effects of the abandoned command are not
// rolled back.
type CommandTimeoutError struct {
	Target  string
	Command string
	Timeout time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %q on %s did not finish within %s", e.Command, e.Target, e.Timeout)
}

// IsCommandTimeoutError checks if the error is or wraps a CommandTimeoutError
func IsCommandTimeoutError(err error) bool {
	var toErr *CommandTimeoutError
	return err != nil && errors.As(err, &toErr)
}

// classifyDialError splits an ssh dial failure into auth vs connect. The ssh
// package reports both through one handshake error, so the split is by the
// messages it is known to emit for authentication rejections.
func classifyDialError(target string, err error) error {
	if isAuthFailure(err) {
		return &AuthError{Target: target, Err: err}
	}
	return &ConnectError{Target: target, Err: err}
}

func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "permission denied")
}

// faultKind names the transport fault class for metrics labels
func faultKind(err error) string {
	switch {
	case IsAuthError(err):
		return "auth"
	case IsCommandTimeoutError(err):
		return "timeout"
	default:
		return "connect"
	}
}
