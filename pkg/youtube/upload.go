package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vodkeep/vodsync/internal/resilience"
)

// Upload performs a resumable upload of the file at path and returns the new
// video ID. Within one session it retries interrupted transfers from the last
// byte the server acknowledged; quota and credential rejections abort
// immediately.
func (c *httpClient) Upload(ctx context.Context, path string, meta VideoMeta) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", eris.Wrap(err, "stat video file")
	}
	size := info.Size()

	session, err := c.initiate(ctx, meta, size)
	if err != nil {
		return "", eris.Wrap(err, "initiate resumable upload")
	}

	var offset int64
	for attempt := 0; ; attempt++ {
		id, uploadErr := c.put(ctx, session, f, offset, size)
		if uploadErr == nil {
			return id, nil
		}
		if !resilience.IsTransient(uploadErr) || attempt+1 >= c.opts.ChunkRetries {
			return "", eris.Wrapf(uploadErr, "upload %s", path)
		}

		sleepBackoff(ctx, attempt)
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "upload interrupted")
		}

		var doneID string
		offset, doneID, err = c.probeOffset(ctx, session, size)
		if err != nil {
			return "", eris.Wrap(err, "query upload progress")
		}
		if doneID != "" {
			return doneID, nil
		}
		zap.L().Warn("resuming interrupted upload",
			zap.String("path", path),
			zap.Int64("offset", offset),
			zap.Int("attempt", attempt+1),
			zap.Error(uploadErr))
	}
}

// initiate opens a resumable upload session and returns its session URI.
func (c *httpClient) initiate(ctx context.Context, meta VideoMeta, size int64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{
		"snippet": map[string]any{
			"title":       meta.Title,
			"description": meta.Description,
			"categoryId":  meta.CategoryID,
			"tags":        meta.Tags,
		},
		"status": map[string]any{
			"privacyStatus":           meta.Privacy,
			"selfDeclaredMadeForKids": false,
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "encode metadata")
	}

	u := c.opts.UploadURL + "?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Upload-Content-Type", "video/mp4")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", classifyResponse(resp)
	}
	session := resp.Header.Get("Location")
	if session == "" {
		return "", eris.New("upload session URI missing from response")
	}
	return session, nil
}

// put streams the file from offset to the session URI. A full-file PUT omits
// the Content-Range header; resumed transfers carry one.
func (c *httpClient) put(ctx context.Context, session string, f *os.File, offset, size int64) (string, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", eris.Wrap(err, "seek video file")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, f)
	if err != nil {
		return "", err
	}
	req.ContentLength = size - offset
	req.Header.Set("Content-Type", "video/mp4")
	if offset > 0 {
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, size-1, size))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", classifyResponse(resp)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", eris.Wrap(err, "decode upload response")
	}
	if payload.ID == "" {
		return "", eris.New("upload response missing video id")
	}
	return payload.ID, nil
}

// probeOffset asks the server how many bytes of the session it has stored.
// If the server reports the upload finished on an earlier attempt, the video
// ID from its response is returned so the caller does not upload twice.
func (c *httpClient) probeOffset(ctx context.Context, session string, size int64) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.ID == "" {
			return 0, "", eris.New("upload reported complete but response has no video id")
		}
		return size, payload.ID, nil
	case 308: // Resume Incomplete
		r := resp.Header.Get("Range")
		if r == "" {
			return 0, "", nil
		}
		// Range: bytes=0-12345
		idx := strings.LastIndex(r, "-")
		if idx < 0 {
			return 0, "", eris.Errorf("malformed Range header %q", r)
		}
		last, err := strconv.ParseInt(r[idx+1:], 10, 64)
		if err != nil {
			return 0, "", eris.Wrapf(err, "malformed Range header %q", r)
		}
		return last + 1, "", nil
	default:
		return 0, "", classifyResponse(resp)
	}
}

// sleepBackoff waits 2^attempt seconds scaled by random jitter, matching the
// Data API's recommended resume schedule, or until the context ends.
func sleepBackoff(ctx context.Context, attempt int) {
	d := time.Duration(float64(int64(1)<<attempt) * (0.5 + rand.Float64()) * float64(time.Second))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
