package youtube

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePlaylistFindsExistingAcrossPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/playlists", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("mine"))

		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{
				"items": [{"id": "pl-other", "snippet": {"title": "Highlights"}}],
				"nextPageToken": "p2"
			}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"items": [{"id": "pl-vods", "snippet": {"title": "valorant vods"}}]
		}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{APIURL: srv.URL, RPS: 1000})
	id, err := c.EnsurePlaylist(context.Background(), "Valorant VODs")
	require.NoError(t, err)
	assert.Equal(t, "pl-vods", id)
}

func TestEnsurePlaylistCreatesWhenMissing(t *testing.T) {
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"items": []}`))
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		_, _ = w.Write([]byte(`{"id": "pl-new"}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{APIURL: srv.URL, RPS: 1000})
	id, err := c.EnsurePlaylist(context.Background(), "Valorant VODs")
	require.NoError(t, err)
	assert.Equal(t, "pl-new", id)

	snippet := created["snippet"].(map[string]any)
	assert.Equal(t, "Valorant VODs", snippet["title"])
}

func TestAddToPlaylist(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/playlistItems", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"id": "item-1"}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{APIURL: srv.URL, RPS: 1000})
	require.NoError(t, c.AddToPlaylist(context.Background(), "pl-vods", "vid-123"))

	snippet := body["snippet"].(map[string]any)
	assert.Equal(t, "pl-vods", snippet["playlistId"])
	resource := snippet["resourceId"].(map[string]any)
	assert.Equal(t, "vid-123", resource["videoId"])
}
