package youtube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vodkeep/vodsync/internal/resilience"
)

const defaultTokenURL = "https://oauth2.googleapis.com/token"

// Credentials holds an installed-app OAuth2 grant. The refresh token comes
// from a one-time interactive consent done outside this tool.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenURL overrides the Google token endpoint, for tests.
	TokenURL string
}

// NewAuthedClient returns an http.Client that injects a bearer token into
// every request, refreshing it before expiry.
func NewAuthedClient(creds Credentials) *http.Client {
	if creds.TokenURL == "" {
		creds.TokenURL = defaultTokenURL
	}
	return &http.Client{
		Transport: &tokenTransport{
			base:  http.DefaultTransport,
			creds: creds,
		},
	}
}

// tokenTransport refreshes and attaches the access token. Refreshes are
// serialized so concurrent uploads share one token.
type tokenTransport struct {
	base  http.RoundTripper
	creds Credentials

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.accessToken(req.Context())
	if err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+tok)
	return t.base.RoundTrip(clone)
}

func (t *tokenTransport) accessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Refresh a minute early so in-flight requests never race expiry.
	if t.token != "" && time.Until(t.expiry) > time.Minute {
		return t.token, nil
	}

	form := url.Values{}
	form.Set("client_id", t.creds.ClientID)
	form.Set("client_secret", t.creds.ClientSecret)
	form.Set("refresh_token", t.creds.RefreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "refresh access token"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		// invalid_grant means the refresh token was revoked; the operator
		// has to redo consent, so fail loudly as a credential problem.
		return "", resilience.NewCredentialError(eris.Errorf("token refresh failed: http %d", resp.StatusCode))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", eris.Wrap(err, "decode token response")
	}
	if payload.AccessToken == "" {
		return "", resilience.NewCredentialError(eris.New("token response missing access_token"))
	}

	t.token = payload.AccessToken
	t.expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return t.token, nil
}
