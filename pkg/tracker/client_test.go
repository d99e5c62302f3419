package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vodkeep/vodsync/internal/resilience"
)

func testAccount() Account {
	return Account{Region: "eu", Name: "Player", Tag: "EUW"}
}

func TestMatchesDecodesPage(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": 200,
			"data": [{
				"meta": {
					"id": "m-1",
					"started_at": "2026-08-20T19:00:00Z",
					"mode": "Competitive",
					"map": {"name": "Ascent"},
					"game_length": 2400000
				},
				"stats": {"team": "Red", "character": {"name": "Jett"}},
				"teams": {"red": 13, "blue": 9}
			}],
			"results": {"returned": 1, "after": 41}
		}`))
	}))
	defer srv.Close()

	c := NewClient(testAccount(), Options{BaseURL: srv.URL, APIKey: "key-123", Mode: "competitive", RPS: 1000})
	page, err := c.Matches(context.Background(), 2, 10)
	require.NoError(t, err)

	assert.Equal(t, "/valorant/v1/lifetime/matches/eu/Player/EUW", gotPath)
	assert.Equal(t, "key-123", gotAuth)
	assert.Equal(t, []string{"2"}, gotQuery["page"])
	assert.Equal(t, []string{"10"}, gotQuery["size"])
	assert.Equal(t, []string{"competitive"}, gotQuery["mode"])

	require.Len(t, page.Matches, 1)
	m := page.Matches[0]
	assert.Equal(t, "m-1", m.Meta.ID)
	assert.Equal(t, "Ascent", m.Meta.Map.Name)
	assert.Equal(t, "Jett", m.Stats.Character.Name)
	assert.Equal(t, 13, m.Teams.Red)
	assert.Equal(t, int64(2400000), m.Meta.GameLengthMS)
	assert.Equal(t, 41, page.After)
}

func TestMatchDecodesPlayers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/valorant/v2/match/m-1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"data": {"players": {"all_players": [
				{"name": "Player", "tag": "EUW", "currenttier_patched": "Diamond 2"},
				{"name": "Other", "tag": "NA1", "currenttier_patched": "Gold 3"}
			]}}
		}`))
	}))
	defer srv.Close()

	c := NewClient(testAccount(), Options{BaseURL: srv.URL, RPS: 1000})
	detail, err := c.Match(context.Background(), "m-1")
	require.NoError(t, err)
	require.Len(t, detail.Players, 2)
	assert.Equal(t, "Diamond 2", detail.Players[0].Rank)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		header http.Header
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.True(t, resilience.IsCredential(err))
				assert.False(t, resilience.IsTransient(err))
			},
		},
		{
			name:   "rate limited with retry-after",
			status: http.StatusTooManyRequests,
			header: http.Header{"Retry-After": []string{"7"}},
			check: func(t *testing.T, err error) {
				assert.True(t, resilience.IsTransient(err))
				hint, ok := resilience.RetryAfterHint(err)
				require.True(t, ok)
				assert.Equal(t, 7*time.Second, hint)
			},
		},
		{
			name:   "server error",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				assert.True(t, resilience.IsTransient(err))
			},
		},
		{
			name:   "bad request is permanent",
			status: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				assert.False(t, resilience.IsTransient(err))
				assert.False(t, resilience.IsCredential(err))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, vs := range tc.header {
					for _, v := range vs {
						w.Header().Add(k, v)
					}
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			c := NewClient(testAccount(), Options{BaseURL: srv.URL, RPS: 1000})
			_, err := c.Matches(context.Background(), 1, 10)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}
