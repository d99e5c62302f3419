package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vodkeep/vodsync/internal/model"
	"github.com/vodkeep/vodsync/internal/scan"
)

var (
	syncDir    string
	syncDryRun bool
	syncLimit  int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Scan the recordings directory and upload matched VODs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dir := cfg.Scan.Dir
		if syncDir != "" {
			dir = syncDir
		}
		if dir == "" {
			return eris.New("no recordings directory configured (set scan.dir or --dir)")
		}

		candidates, err := collectCandidates(dir)
		if err != nil {
			return err
		}
		if syncLimit > 0 && len(candidates) > syncLimit {
			candidates = candidates[:syncLimit]
		}
		if len(candidates) == 0 {
			zap.L().Info("no eligible recordings found", zap.String("dir", dir))
			return nil
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if syncDryRun {
			return dryRun(ctx, e, candidates)
		}

		report, err := e.Pipeline.Run(ctx, candidates)
		printReport(cmd, report)
		if err != nil {
			return eris.Wrap(err, "sync")
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncDir, "dir", "", "recordings directory (overrides config)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "correlate only, upload nothing")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "max candidates to process (0 = all)")
	rootCmd.AddCommand(syncCmd)
}

// collectCandidates walks the directory, filters out short or stale files,
// and fingerprints the survivors.
func collectCandidates(dir string) ([]model.VideoCandidate, error) {
	files, err := scan.Walk(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "scan %s", dir)
	}

	candidates := scan.Filter(files, cfg.Scan.MinDuration, cfg.Scan.MaxAge, time.Now())
	zap.L().Info("scanned recordings",
		zap.String("dir", dir),
		zap.Int("found", len(files)),
		zap.Int("eligible", len(candidates)))

	return scan.WithFingerprints(candidates), nil
}

// dryRun correlates every candidate and prints what a real run would upload.
func dryRun(ctx context.Context, e *env, candidates []model.VideoCandidate) error {
	for _, cand := range candidates {
		already, err := e.Ledger.Exists(ctx, cand.Key(), model.StateUploaded)
		if err != nil {
			return eris.Wrap(err, "ledger read")
		}
		if already {
			fmt.Printf("%-60s already uploaded\n", cand.Path)
			continue
		}

		corr, err := e.Correlator.Correlate(ctx, cand)
		if err != nil {
			fmt.Printf("%-60s error: %v\n", cand.Path, err)
			continue
		}
		if corr.Match == nil {
			fmt.Printf("%-60s no overlapping match\n", cand.Path)
			continue
		}

		match := e.Source.Enrich(ctx, *corr.Match)
		note := ""
		if corr.Ambiguous {
			note = fmt.Sprintf("  (ambiguous: %d overlapping)", corr.Overlapping)
		}
		fmt.Printf("%-60s would upload as %q%s\n", cand.Path, match.Title(), note)
	}
	return nil
}

func printReport(cmd *cobra.Command, report *model.RunReport) {
	if report == nil {
		return
	}
	cmd.Printf("run %s: %d uploaded, %d skipped, %d deferred, %d failed (%.0fs)\n",
		report.RunID, report.Done, report.Skipped, report.Deferred, report.Failed,
		report.FinishedAt.Sub(report.StartedAt).Seconds())

	for _, res := range report.Results {
		switch {
		case res.Error != "":
			cmd.Printf("  FAIL %s: %s\n", res.Path, res.Error)
		case res.Warning != "":
			cmd.Printf("  warn %s: %s\n", res.Path, res.Warning)
		}
	}
	for _, corr := range report.Ambiguous {
		cmd.Printf("  review %s: %d matches overlapped, used %s\n",
			corr.Candidate.Path, corr.Overlapping, corr.Match.ID)
	}
	for _, w := range report.Warnings {
		cmd.Printf("  WARNING %s\n", w)
	}
}
