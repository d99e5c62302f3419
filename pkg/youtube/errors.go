package youtube

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vodkeep/vodsync/internal/resilience"
)

// apiError is the Data API's error envelope.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// classifyResponse turns a non-2xx Data API response into the shared error
// taxonomy. Quota rejections must not be confused with rate limiting: quota
// resets on a daily schedule, so retrying within the run is pointless.
func classifyResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var ae apiError
	_ = json.Unmarshal(body, &ae)
	reason := ""
	if len(ae.Error.Errors) > 0 {
		reason = ae.Error.Errors[0].Reason
	}

	base := eris.Errorf("youtube api: http %d %s (%s)", resp.StatusCode, reason, ae.Error.Message)

	switch reason {
	case "quotaExceeded", "dailyLimitExceeded", "uploadLimitExceeded":
		return resilience.NewQuotaExceededError(base)
	case "authError", "invalidCredentials", "insufficientPermissions":
		return resilience.NewCredentialError(base)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resilience.NewCredentialError(base)
	case resp.StatusCode == http.StatusForbidden:
		// A 403 without a recognized reason is treated as a credential
		// problem rather than retried blindly.
		return resilience.NewCredentialError(base)
	case resp.StatusCode == http.StatusTooManyRequests:
		return resilience.NewRateLimitedError(base, parseRetryAfter(resp.Header.Get("Retry-After")))
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewTransientError(base, resp.StatusCode)
	}
	return base
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
