package youtube

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vodkeep/vodsync/internal/resilience"
)

func writeVideo(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testMeta() VideoMeta {
	return VideoMeta{
		Title:      "Jett, Ascent | Aug 20, 2026 | Win 13-9 | Diamond 2",
		CategoryID: "20",
		Privacy:    "unlisted",
	}
}

// uploadServer fakes the resumable upload protocol. Behavior per PUT attempt
// is scripted through failFirst.
type uploadServer struct {
	t         *testing.T
	failFirst int // PUTs to fail with 503 before accepting
	puts      int
	received  strings.Builder
	meta      map[string]any
}

func (s *uploadServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			require.NoError(s.t, json.NewDecoder(r.Body).Decode(&s.meta))
			w.Header().Set("Location", "http://"+r.Host+"/session/abc")
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPut && r.Header.Get("Content-Range") != "" &&
			strings.HasPrefix(r.Header.Get("Content-Range"), "bytes */"):
			// progress probe
			w.Header().Set("Range", "bytes=0-"+strconv.Itoa(s.received.Len()-1))
			w.WriteHeader(308)

		case r.Method == http.MethodPut:
			s.puts++
			body, err := io.ReadAll(r.Body)
			require.NoError(s.t, err)
			if s.puts <= s.failFirst {
				// keep half of what was sent, then drop the connection result
				s.received.WriteString(string(body[:len(body)/2]))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			s.received.WriteString(string(body))
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "vid-123"})
		}
	})
}

func TestUploadHappyPath(t *testing.T) {
	us := &uploadServer{t: t}
	srv := httptest.NewServer(us.handler())
	defer srv.Close()

	c := New(srv.Client(), Options{UploadURL: srv.URL + "/upload", APIURL: srv.URL, RPS: 1000})
	path := writeVideo(t, "0123456789abcdef")

	id, err := c.Upload(context.Background(), path, testMeta())
	require.NoError(t, err)
	assert.Equal(t, "vid-123", id)
	assert.Equal(t, "0123456789abcdef", us.received.String())

	snippet := us.meta["snippet"].(map[string]any)
	assert.Equal(t, testMeta().Title, snippet["title"])
	assert.Equal(t, "20", snippet["categoryId"])
	status := us.meta["status"].(map[string]any)
	assert.Equal(t, "unlisted", status["privacyStatus"])
}

func TestUploadResumesAfterInterruption(t *testing.T) {
	us := &uploadServer{t: t, failFirst: 1}
	srv := httptest.NewServer(us.handler())
	defer srv.Close()

	c := New(srv.Client(), Options{UploadURL: srv.URL + "/upload", APIURL: srv.URL, RPS: 1000, ChunkRetries: 3})
	path := writeVideo(t, "0123456789abcdef")

	id, err := c.Upload(context.Background(), path, testMeta())
	require.NoError(t, err)
	assert.Equal(t, "vid-123", id)
	// first PUT stored half, resume sent the rest exactly once
	assert.Equal(t, "0123456789abcdef", us.received.String())
	assert.Equal(t, 2, us.puts)
}

func TestUploadQuotaAbortsWithoutRetry(t *testing.T) {
	puts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Location", "http://"+r.Host+"/session/abc")
			return
		}
		puts++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{UploadURL: srv.URL + "/upload", APIURL: srv.URL, RPS: 1000, ChunkRetries: 5})
	_, err := c.Upload(context.Background(), writeVideo(t, "data"), testMeta())
	require.Error(t, err)
	assert.True(t, resilience.IsQuota(err))
	assert.Equal(t, 1, puts)
}

func TestUploadCredentialErrorAtInitiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"token expired"}}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), Options{UploadURL: srv.URL + "/upload", APIURL: srv.URL, RPS: 1000})
	_, err := c.Upload(context.Background(), writeVideo(t, "data"), testMeta())
	require.Error(t, err)
	assert.True(t, resilience.IsCredential(err))
}

func TestWatchURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", WatchURL("abc"))
}
