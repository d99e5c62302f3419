package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/vodkeep/vodsync/internal/resilience"
)

// EnsurePlaylist returns the ID of the caller's playlist with the given
// title, creating it (privacy unlisted) when none exists. Title comparison
// is case-insensitive.
func (c *httpClient) EnsurePlaylist(ctx context.Context, title string) (string, error) {
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("part", "snippet")
		q.Set("mine", "true")
		q.Set("maxResults", "50")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var payload struct {
			Items []struct {
				ID      string `json:"id"`
				Snippet struct {
					Title string `json:"title"`
				} `json:"snippet"`
			} `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := c.call(ctx, http.MethodGet, "/playlists?"+q.Encode(), nil, &payload); err != nil {
			return "", eris.Wrap(err, "list playlists")
		}

		for _, item := range payload.Items {
			if strings.EqualFold(item.Snippet.Title, title) {
				return item.ID, nil
			}
		}
		if payload.NextPageToken == "" {
			break
		}
		pageToken = payload.NextPageToken
	}

	body := map[string]any{
		"snippet": map[string]any{"title": title},
		"status":  map[string]any{"privacyStatus": "unlisted"},
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/playlists?part=snippet,status", body, &created); err != nil {
		return "", eris.Wrapf(err, "create playlist %q", title)
	}
	return created.ID, nil
}

// AddToPlaylist appends a video to the end of a playlist.
func (c *httpClient) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	body := map[string]any{
		"snippet": map[string]any{
			"playlistId": playlistID,
			"resourceId": map[string]any{
				"kind":    "youtube#video",
				"videoId": videoID,
			},
		},
	}
	if err := c.call(ctx, http.MethodPost, "/playlistItems?part=snippet", body, nil); err != nil {
		return eris.Wrapf(err, "add video %s to playlist %s", videoID, playlistID)
	}
	return nil
}

// call performs one rate-limited metadata request against the Data API.
func (c *httpClient) call(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "encode request body")
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.APIURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
