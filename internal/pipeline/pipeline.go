// Package pipeline orchestrates one run: correlate each candidate with a
// match record, upload it, and record the outcome durably.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vodkeep/vodsync/internal/ledger"
	"github.com/vodkeep/vodsync/internal/model"
	"github.com/vodkeep/vodsync/internal/resilience"
	"github.com/vodkeep/vodsync/pkg/sheet"
	"github.com/vodkeep/vodsync/pkg/youtube"
)

// Correlator binds a candidate to at most one match record.
type Correlator interface {
	Correlate(ctx context.Context, cand model.VideoCandidate) (model.Correlation, error)
}

// Enricher fills in presentation fields (rank) on a bound match record.
// Enrichment is best effort and never fails a candidate.
type Enricher interface {
	Enrich(ctx context.Context, rec model.MatchRecord) model.MatchRecord
}

// Uploader is the remote video platform surface the pipeline needs.
type Uploader interface {
	Upload(ctx context.Context, path string, meta youtube.VideoMeta) (string, error)
	EnsurePlaylist(ctx context.Context, title string) (string, error)
	AddToPlaylist(ctx context.Context, playlistID, videoID string) error
}

// SheetLog records uploaded videos for human review. Appending the same
// match twice is the log's problem, not the pipeline's.
type SheetLog interface {
	Append(row sheet.Row) error
}

// Options tunes one pipeline instance.
type Options struct {
	Workers          int
	CandidateTimeout time.Duration

	// NoMatchRuns is how many independent runs must find no match before a
	// candidate is written off permanently.
	NoMatchRuns int

	// Upload presentation.
	Playlist   string
	Privacy    string
	CategoryID string

	// Retry policy for the upload call. Transport-level resume lives in the
	// uploader; this budget covers whole-call failures.
	UploadRetry resilience.RetryConfig

	// CorrelateRetry re-runs a correlation whose history source came back
	// unavailable even after the source's own per-page retries.
	CorrelateRetry resilience.RetryConfig
}

// Pipeline wires the run-scoped collaborators together.
type Pipeline struct {
	opts       Options
	ledger     ledger.Ledger
	correlator Correlator
	enricher   Enricher
	uploader   Uploader
	log        SheetLog
	limiter    *rate.Limiter

	// quotaHit flips when the platform rejects an upload for quota. The
	// remaining candidates keep correlating but defer their uploads, since
	// quota will not come back within the run.
	quotaHit atomic.Bool
}

// New creates a Pipeline. enricher and limiter may be nil.
func New(opts Options, lg ledger.Ledger, correlator Correlator, enricher Enricher, uploader Uploader, log SheetLog, limiter *rate.Limiter) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.CandidateTimeout <= 0 {
		opts.CandidateTimeout = 30 * time.Minute
	}
	if opts.NoMatchRuns <= 0 {
		opts.NoMatchRuns = 3
	}
	return &Pipeline{
		opts:       opts,
		ledger:     lg,
		correlator: correlator,
		enricher:   enricher,
		uploader:   uploader,
		log:        log,
		limiter:    limiter,
	}
}

// abortError cancels the whole run. Only credential failures produce it:
// every subsequent call would fail the same way, and retrying burns quota.
type abortError struct{ err error }

func (e *abortError) Error() string { return fmt.Sprintf("run aborted: %v", e.err) }
func (e *abortError) Unwrap() error { return e.err }

// Run processes all candidates and returns the report. The returned error is
// non-nil only when the run was aborted (credential failure or context
// cancellation); per-candidate failures are reported, not returned.
func (p *Pipeline) Run(ctx context.Context, candidates []model.VideoCandidate) (*model.RunReport, error) {
	report := &model.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	var mu sync.Mutex
	p.quotaHit.Store(false)

	playlistID := p.ensurePlaylist(ctx, report, &mu)

	zap.L().Info("starting run",
		zap.String("run_id", report.RunID),
		zap.Int("candidates", len(candidates)),
		zap.Int("workers", p.opts.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, p.opts.CandidateTimeout)
			defer cancel()

			res, err := p.process(cctx, cand, playlistID, report, &mu)
			mu.Lock()
			report.Add(res)
			mu.Unlock()

			var abort *abortError
			if errors.As(err, &abort) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	report.FinishedAt = time.Now().UTC()

	zap.L().Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("done", report.Done),
		zap.Int("skipped", report.Skipped),
		zap.Int("deferred", report.Deferred),
		zap.Int("failed", report.Failed))

	if err != nil {
		return report, eris.Wrap(err, "pipeline run")
	}
	return report, nil
}

// ensurePlaylist resolves the target playlist once per run. A failure only
// disables playlist placement; uploads still proceed.
func (p *Pipeline) ensurePlaylist(ctx context.Context, report *model.RunReport, mu *sync.Mutex) string {
	if p.opts.Playlist == "" || p.uploader == nil {
		return ""
	}
	id, err := p.uploader.EnsurePlaylist(ctx, p.opts.Playlist)
	if err != nil {
		zap.L().Warn("playlist unavailable, uploads will not be grouped",
			zap.String("playlist", p.opts.Playlist),
			zap.Error(err))
		mu.Lock()
		report.Warnings = append(report.Warnings, fmt.Sprintf("playlist %q unavailable: %v", p.opts.Playlist, err))
		mu.Unlock()
		return ""
	}
	return id
}

// process runs one candidate through the full state machine.
func (p *Pipeline) process(ctx context.Context, cand model.VideoCandidate, playlistID string, report *model.RunReport, mu *sync.Mutex) (model.CandidateResult, error) {
	key := cand.Key()
	res := model.CandidateResult{Key: key, Path: cand.Path}
	logger := zap.L().With(zap.String("path", cand.Path), zap.String("key", key))

	entry, err := p.ledger.Get(ctx, key)
	if err != nil {
		res.Outcome = model.OutcomeFailed
		res.Error = fmt.Sprintf("ledger read: %v", err)
		return res, nil
	}
	if entry != nil && entry.State.Terminal() {
		res.Outcome = model.OutcomeSkipped
		if entry.State == model.StateUploaded {
			res.VideoID = entry.VideoID
			logger.Debug("already uploaded", zap.String("video_id", entry.VideoID))
		} else {
			res.Warning = "written off: " + entry.LastError
		}
		return res, nil
	}

	corr, err := resilience.DoVal(ctx, p.opts.CorrelateRetry, func(ctx context.Context) (model.Correlation, error) {
		return p.correlator.Correlate(ctx, cand)
	})
	if err != nil {
		if resilience.IsCredential(err) {
			res.Outcome = model.OutcomeFailed
			res.Error = err.Error()
			return res, &abortError{err: err}
		}
		// Remote unavailable. The candidate stays pending and the miss
		// counter is untouched, since history was never actually consulted.
		p.recordPending(ctx, key, cand.Path, entry, err)
		res.Outcome = model.OutcomeFailed
		res.Error = err.Error()
		return res, nil
	}

	if corr.Match == nil {
		updated, err := p.ledger.RecordMiss(ctx, key, cand.Path, p.opts.NoMatchRuns)
		if err != nil {
			res.Outcome = model.OutcomeFailed
			res.Error = fmt.Sprintf("ledger write: %v", err)
			return res, nil
		}
		res.Outcome = model.OutcomeSkipped
		if updated.State == model.StateFailedPermanent {
			res.Warning = fmt.Sprintf("no match found in %d runs, written off", updated.MissCount)
			logger.Warn("candidate written off, no match ever found", zap.Int("runs", updated.MissCount))
		} else {
			res.Warning = "no overlapping match yet"
		}
		return res, nil
	}

	match := *corr.Match
	if p.enricher != nil {
		match = p.enricher.Enrich(ctx, match)
	}
	if corr.Ambiguous {
		mu.Lock()
		report.Ambiguous = append(report.Ambiguous, corr)
		mu.Unlock()
	}

	if p.quotaHit.Load() {
		p.recordPending(ctx, key, cand.Path, entry, eris.New("upload deferred: quota exhausted"))
		res.Outcome = model.OutcomeDeferred
		res.Warning = "upload deferred: quota exhausted earlier in the run"
		return res, nil
	}

	// The pending entry goes in before the upload so an interruption
	// between upload and acknowledgment is visible on the next run.
	pending := model.LedgerEntry{
		Key:         key,
		Path:        cand.Path,
		State:       model.StatePending,
		MatchID:     match.ID,
		AttemptedAt: time.Now().UTC(),
	}
	if entry != nil {
		pending.MissCount = entry.MissCount
	}
	if err := p.ledger.Put(ctx, pending); err != nil {
		res.Outcome = model.OutcomeFailed
		res.Error = fmt.Sprintf("ledger write: %v", err)
		return res, nil
	}

	videoID, err := p.upload(ctx, cand, match)
	if err != nil {
		switch {
		case resilience.IsQuota(err):
			p.quotaHit.Store(true)
			p.recordPending(ctx, key, cand.Path, &pending, err)
			res.Outcome = model.OutcomeDeferred
			res.Warning = "upload deferred: " + err.Error()
			logger.Warn("quota exhausted, deferring remaining uploads")
			return res, nil
		case resilience.IsCredential(err):
			res.Outcome = model.OutcomeFailed
			res.Error = err.Error()
			return res, &abortError{err: err}
		default:
			p.recordPending(ctx, key, cand.Path, &pending, err)
			res.Outcome = model.OutcomeFailed
			res.Error = err.Error()
			return res, nil
		}
	}
	res.VideoID = videoID

	uploaded := pending
	uploaded.State = model.StateUploaded
	uploaded.VideoID = videoID
	uploaded.LastError = ""
	uploaded.UploadedAt = time.Now().UTC()
	if err := p.ledger.Put(ctx, uploaded); err != nil {
		// The video is on the platform but the ledger does not know. The
		// run must surface this loudly so a human reconciles it before the
		// next run re-uploads the file.
		werr := &ledger.WriteError{Key: key, Err: err}
		res.Outcome = model.OutcomeFailed
		res.Error = fmt.Sprintf("uploaded as %s but %v", videoID, werr)
		mu.Lock()
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("video %s uploaded for %s but not recorded; reconcile before next run", videoID, cand.Path))
		mu.Unlock()
		logger.Error("ledger write failed after upload", zap.String("video_id", videoID), zap.Error(err))
		return res, nil
	}

	p.finishUpload(ctx, cand, match, videoID, playlistID, uploaded.UploadedAt, &res, report, mu)

	res.Outcome = model.OutcomeDone
	logger.Info("uploaded",
		zap.String("video_id", videoID),
		zap.String("match_id", match.ID),
		zap.String("title", match.Title()))
	return res, nil
}

// upload runs the platform upload under the retry budget and shared limiter.
func (p *Pipeline) upload(ctx context.Context, cand model.VideoCandidate, match model.MatchRecord) (string, error) {
	meta := youtube.VideoMeta{
		Title:      match.Title(),
		CategoryID: p.opts.CategoryID,
		Privacy:    p.opts.Privacy,
	}
	return resilience.DoVal(ctx, p.opts.UploadRetry, func(ctx context.Context) (string, error) {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		return p.uploader.Upload(ctx, cand.Path, meta)
	})
}

// finishUpload does the post-upload bookkeeping: spreadsheet row and
// playlist placement. Both are best effort; the upload already succeeded.
func (p *Pipeline) finishUpload(ctx context.Context, cand model.VideoCandidate, match model.MatchRecord, videoID, playlistID string, uploadedAt time.Time, res *model.CandidateResult, report *model.RunReport, mu *sync.Mutex) {
	if p.log != nil {
		err := p.log.Append(sheet.Row{
			MatchID:    match.ID,
			Date:       match.StartedAt,
			Result:     match.Result,
			Score:      match.Score,
			Agent:      match.Agent,
			Map:        match.Map,
			Rank:       match.Rank,
			VideoLink:  youtube.WatchURL(videoID),
			LocalPath:  cand.Path,
			UploadedAt: uploadedAt,
		})
		if err != nil {
			res.Warning = fmt.Sprintf("upload log row missing: %v", err)
			mu.Lock()
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("row for match %s (video %s) missing from upload log: %v", match.ID, videoID, err))
			mu.Unlock()
			zap.L().Warn("upload log append failed", zap.String("match_id", match.ID), zap.Error(err))
		}
	}

	if playlistID != "" {
		if err := p.uploader.AddToPlaylist(ctx, playlistID, videoID); err != nil {
			if res.Warning != "" {
				res.Warning += "; "
			}
			res.Warning += fmt.Sprintf("not added to playlist: %v", err)
			zap.L().Warn("playlist placement failed", zap.String("video_id", videoID), zap.Error(err))
		}
	}
}

// recordPending best-effort persists a pending entry carrying the latest
// error. Ledger failures here are logged, not surfaced; the candidate's
// outcome was already decided.
func (p *Pipeline) recordPending(ctx context.Context, key, path string, prev *model.LedgerEntry, cause error) {
	entry := model.LedgerEntry{
		Key:         key,
		Path:        path,
		State:       model.StatePending,
		LastError:   cause.Error(),
		AttemptedAt: time.Now().UTC(),
	}
	if prev != nil {
		entry.MatchID = prev.MatchID
		entry.MissCount = prev.MissCount
	}
	if err := p.ledger.Put(ctx, entry); err != nil {
		zap.L().Warn("could not persist pending state", zap.String("key", key), zap.Error(err))
	}
}
