package main

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vodkeep/vodsync/internal/correlate"
	"github.com/vodkeep/vodsync/internal/ledger"
	"github.com/vodkeep/vodsync/internal/pipeline"
	"github.com/vodkeep/vodsync/internal/resilience"
	"github.com/vodkeep/vodsync/pkg/sheet"
	"github.com/vodkeep/vodsync/pkg/tracker"
	"github.com/vodkeep/vodsync/pkg/youtube"
)

// env bundles the run-scoped collaborators built from config.
type env struct {
	Ledger     ledger.Ledger
	Source     *tracker.Source
	Correlator *correlate.Correlator
	Pipeline   *pipeline.Pipeline
	Sheet      *sheet.Log
}

func (e *env) Close() {
	if e.Ledger != nil {
		_ = e.Ledger.Close()
	}
}

// openLedger opens and migrates the SQLite ledger.
func openLedger(ctx context.Context) (ledger.Ledger, error) {
	lg, err := ledger.NewSQLite(cfg.Ledger.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open ledger")
	}
	if err := lg.Migrate(ctx); err != nil {
		_ = lg.Close()
		return nil, eris.Wrap(err, "migrate ledger")
	}
	return lg, nil
}

// initEnv wires the full upload pipeline from config.
func initEnv(ctx context.Context) (*env, error) {
	lg, err := openLedger(ctx)
	if err != nil {
		return nil, err
	}

	log, err := sheet.Open(cfg.Sheet.Path)
	if err != nil {
		_ = lg.Close()
		return nil, eris.Wrap(err, "open upload log")
	}

	retry := resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoff,
		cfg.Retry.MaxBackoff,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)
	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
		cfg.Retry.BreakerThreshold,
		cfg.Retry.BreakerReset,
	))

	account := tracker.Account{
		Region: cfg.Tracker.Region,
		Name:   cfg.Tracker.Name,
		Tag:    cfg.Tracker.Tag,
	}
	source := tracker.NewSource(
		tracker.NewClient(account, tracker.Options{
			BaseURL: cfg.Tracker.BaseURL,
			APIKey:  cfg.Tracker.APIKey,
			Mode:    cfg.Tracker.Mode,
			RPS:     cfg.Tracker.RPS,
		}),
		account,
		cfg.Tracker.PageSize,
		retry,
		breaker,
	)

	uploader := youtube.New(
		youtube.NewAuthedClient(youtube.Credentials{
			ClientID:     cfg.Upload.ClientID,
			ClientSecret: cfg.Upload.ClientSecret,
			RefreshToken: cfg.Upload.RefreshToken,
		}),
		youtube.Options{ChunkRetries: cfg.Upload.MaxAttempts},
	)

	limiter := rate.NewLimiter(rate.Limit(cfg.Pipeline.RequestRPS), cfg.Pipeline.RequestBurst)
	correlator := correlate.New(source, cfg.Scan.SkewTolerance)

	p := pipeline.New(
		pipeline.Options{
			Workers:          cfg.Pipeline.Workers,
			CandidateTimeout: cfg.Pipeline.CandidateTimeout,
			NoMatchRuns:      cfg.Pipeline.NoMatchRuns,
			Playlist:         cfg.Upload.Playlist,
			Privacy:          cfg.Upload.Privacy,
			CategoryID:       cfg.Upload.CategoryID,
			UploadRetry:      retry,
			CorrelateRetry:   retry,
		},
		lg,
		correlator,
		source,
		uploader,
		log,
		limiter,
	)

	return &env{Ledger: lg, Source: source, Correlator: correlator, Pipeline: p, Sheet: log}, nil
}
