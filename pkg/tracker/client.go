// Package tracker wraps the third-party Valorant match-history API
// (henrikdev-style) used to look up what was played while a VOD recorded.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vodkeep/vodsync/internal/resilience"
)

// Account identifies the player whose history is queried.
type Account struct {
	Region string
	Name   string
	Tag    string
}

// MatchPage is one page of the lifetime match list.
type MatchPage struct {
	Matches  []Match
	Returned int
	After    int // matches remaining beyond this page
}

// Match is one lifetime match-list entry.
type Match struct {
	Meta  MatchMeta  `json:"meta"`
	Stats MatchStats `json:"stats"`
	Teams TeamScores `json:"teams"`
}

// MatchMeta is the identifying metadata of a match.
type MatchMeta struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Mode      string    `json:"mode"`
	Map       NamedRef  `json:"map"`
	// GameLengthMS is not present on all API versions; zero means unknown.
	GameLengthMS int64 `json:"game_length"`
}

// NamedRef is the API's {id, name} object.
type NamedRef struct {
	Name string `json:"name"`
}

// MatchStats is the requesting player's per-match stats subset.
type MatchStats struct {
	Team      string   `json:"team"` // "Red" or "Blue"
	Character NamedRef `json:"character"`
}

// TeamScores is the final round score per team.
type TeamScores struct {
	Red  int `json:"red"`
	Blue int `json:"blue"`
}

// MatchDetail is the subset of the full match payload the pipeline uses.
type MatchDetail struct {
	Players []DetailPlayer
}

// DetailPlayer is one entry of the match detail's player list.
type DetailPlayer struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
	Rank string `json:"currenttier_patched"`
}

// Client defines the match-history operations used by this application.
type Client interface {
	Matches(ctx context.Context, page, size int) (*MatchPage, error)
	Match(ctx context.Context, id string) (*MatchDetail, error)
}

// Options configures the HTTP tracker client.
type Options struct {
	BaseURL string
	APIKey  string
	Mode    string  // game mode filter, e.g. "competitive"; empty for all
	RPS     float64 // API courtesy limit; default 2 req/s
	Timeout time.Duration
}

// httpClient implements Client over net/http.
type httpClient struct {
	http    *http.Client
	opts    Options
	account Account
	limiter *rate.Limiter
}

// NewClient creates a match-history client for the given account.
func NewClient(account Account, opts Options) Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.henrikdev.xyz"
	}
	if opts.RPS <= 0 {
		opts.RPS = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &httpClient{
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		account: account,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), max(int(opts.RPS), 1)),
	}
}

func (c *httpClient) Matches(ctx context.Context, page, size int) (*MatchPage, error) {
	u := fmt.Sprintf("%s/valorant/v1/lifetime/matches/%s/%s/%s",
		c.opts.BaseURL,
		url.PathEscape(c.account.Region),
		url.PathEscape(c.account.Name),
		url.PathEscape(c.account.Tag),
	)

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if c.opts.Mode != "" {
		q.Set("mode", c.opts.Mode)
	}

	var payload struct {
		Data    []Match `json:"data"`
		Results struct {
			Returned int `json:"returned"`
			After    int `json:"after"`
		} `json:"results"`
	}
	if err := c.get(ctx, u+"?"+q.Encode(), &payload); err != nil {
		return nil, eris.Wrapf(err, "tracker: matches page %d", page)
	}

	return &MatchPage{
		Matches:  payload.Data,
		Returned: payload.Results.Returned,
		After:    payload.Results.After,
	}, nil
}

func (c *httpClient) Match(ctx context.Context, id string) (*MatchDetail, error) {
	u := fmt.Sprintf("%s/valorant/v2/match/%s", c.opts.BaseURL, url.PathEscape(id))

	var payload struct {
		Data struct {
			Players struct {
				AllPlayers []DetailPlayer `json:"all_players"`
			} `json:"players"`
		} `json:"data"`
	}
	if err := c.get(ctx, u, &payload); err != nil {
		return nil, eris.Wrapf(err, "tracker: match %s", id)
	}

	return &MatchDetail{Players: payload.Data.Players.AllPlayers}, nil
}

// get performs one rate-limited GET and decodes the JSON body, classifying
// HTTP failures into the shared error taxonomy.
func (c *httpClient) get(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resilience.NewCredentialError(eris.Errorf("http %d from match history API", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return resilience.NewRateLimitedError(
			eris.Errorf("http 429 from match history API"),
			parseRetryAfter(resp.Header.Get("Retry-After")),
		)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewTransientError(eris.Errorf("http %d from match history API", resp.StatusCode), resp.StatusCode)
	default:
		return eris.Errorf("http %d from match history API", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
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
