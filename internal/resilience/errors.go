// Package resilience provides the retry, backoff, and circuit breaker
// policies shared by the match-history and upload clients.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (5xx, network timeout,
// connection reset). A zero StatusCode means the failure was not HTTP.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitedError is a transient error carrying the remote service's
// requested cooldown. Retry delays must not undercut RetryAfter.
type RateLimitedError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return e.Err.Error() }

func (e *RateLimitedError) Unwrap() error { return e.Err }

// NewRateLimitedError wraps a 429-style rejection.
func NewRateLimitedError(err error, retryAfter time.Duration) *RateLimitedError {
	return &RateLimitedError{Err: err, RetryAfter: retryAfter}
}

// QuotaExceededError means the upload service refused the request because a
// daily or account quota is exhausted. Not retryable within the run; the
// candidate stays pending and a future run picks it up.
type QuotaExceededError struct {
	Err error
}

func (e *QuotaExceededError) Error() string { return e.Err.Error() }

func (e *QuotaExceededError) Unwrap() error { return e.Err }

// NewQuotaExceededError wraps a quota rejection.
func NewQuotaExceededError(err error) *QuotaExceededError {
	return &QuotaExceededError{Err: err}
}

// CredentialError means the authenticated client was rejected on auth
// grounds. Nothing useful can proceed; the whole run aborts.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string { return e.Err.Error() }

func (e *CredentialError) Unwrap() error { return e.Err }

// NewCredentialError wraps an authorization failure.
func NewCredentialError(err error) *CredentialError {
	return &CredentialError{Err: err}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError or RateLimitedError, or matches common transient network
// patterns (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return true
	}

	// Quota and credential failures are never transient, even when an
	// underlying transport error would otherwise match.
	if IsQuota(err) || IsCredential(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsQuota returns true if the error chain contains a QuotaExceededError.
func IsQuota(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// IsCredential returns true if the error chain contains a CredentialError.
func IsCredential(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

// RetryAfterHint extracts the remote-requested cooldown from the error
// chain, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rle *RateLimitedError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
