package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsTransient_ExplicitWrap(t *testing.T) {
	err := NewTransientError(errors.New("http 503"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}

	wrapped := fmt.Errorf("fetch page 2: %w", err)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_RateLimited(t *testing.T) {
	err := NewRateLimitedError(errors.New("http 429"), 10*time.Second)
	if !IsTransient(err) {
		t.Error("expected RateLimitedError to be transient")
	}
}

func TestIsTransient_NetworkPatterns(t *testing.T) {
	cases := []string{
		"read tcp 10.0.0.1:443: connection reset by peer",
		"dial tcp: lookup api.example.com: no such host",
		"net/http: TLS handshake timeout",
	}
	for _, msg := range cases {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected %q to be transient", msg)
		}
	}
}

func TestIsTransient_QuotaAndCredentialAreNot(t *testing.T) {
	quota := NewQuotaExceededError(errors.New("uploadLimitExceeded"))
	if IsTransient(quota) {
		t.Error("quota errors must not be retried as transient")
	}
	cred := NewCredentialError(errors.New("invalid_grant"))
	if IsTransient(cred) {
		t.Error("credential errors must not be retried as transient")
	}
}

func TestIsQuota_IsCredential_Chain(t *testing.T) {
	quota := fmt.Errorf("upload video: %w", NewQuotaExceededError(errors.New("quota")))
	if !IsQuota(quota) {
		t.Error("expected IsQuota through the chain")
	}
	if IsCredential(quota) {
		t.Error("quota is not a credential error")
	}

	cred := fmt.Errorf("list playlists: %w", NewCredentialError(errors.New("401")))
	if !IsCredential(cred) {
		t.Error("expected IsCredential through the chain")
	}
}

func TestRetryAfterHint(t *testing.T) {
	if _, ok := RetryAfterHint(errors.New("plain")); ok {
		t.Error("plain error should carry no hint")
	}

	err := fmt.Errorf("upload: %w", NewRateLimitedError(errors.New("429"), 7*time.Second))
	hint, ok := RetryAfterHint(err)
	if !ok || hint != 7*time.Second {
		t.Errorf("expected 7s hint, got %v %v", hint, ok)
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to not be transient", code)
		}
	}
}
