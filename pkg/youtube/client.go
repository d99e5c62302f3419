// Package youtube implements the video upload and playlist operations
// against the YouTube Data API v3, over a caller-supplied authenticated
// HTTP client.
package youtube

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"
	defaultAPIURL    = "https://www.googleapis.com/youtube/v3"
)

// VideoMeta describes the video being uploaded.
type VideoMeta struct {
	Title       string
	Description string
	CategoryID  string
	Privacy     string
	Tags        []string
}

// Client defines the YouTube operations used by the upload pipeline.
type Client interface {
	Upload(ctx context.Context, path string, meta VideoMeta) (videoID string, err error)
	EnsurePlaylist(ctx context.Context, title string) (playlistID string, err error)
	AddToPlaylist(ctx context.Context, playlistID, videoID string) error
}

// Options configures the HTTP client.
type Options struct {
	// UploadURL and APIURL override the Google endpoints, for tests.
	UploadURL string
	APIURL    string

	// RPS bounds metadata calls; uploads themselves are not limited.
	RPS float64

	// ChunkRetries bounds resume attempts for one upload session.
	ChunkRetries int
}

type httpClient struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
}

// New creates a client over http. The given http.Client must already carry
// OAuth2 credentials; this package never sees tokens.
func New(authed *http.Client, opts Options) Client {
	if opts.UploadURL == "" {
		opts.UploadURL = defaultUploadURL
	}
	if opts.APIURL == "" {
		opts.APIURL = defaultAPIURL
	}
	if opts.RPS <= 0 {
		opts.RPS = 2
	}
	if opts.ChunkRetries <= 0 {
		opts.ChunkRetries = 5
	}
	if authed == nil {
		authed = &http.Client{Timeout: 60 * time.Second}
	}
	return &httpClient{
		http:    authed,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), max(int(opts.RPS), 1)),
	}
}

// WatchURL returns the public watch page for an uploaded video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
