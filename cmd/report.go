package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vodkeep/vodsync/internal/ledger"
	"github.com/vodkeep/vodsync/internal/model"
	"github.com/vodkeep/vodsync/pkg/sheet"
	"github.com/vodkeep/vodsync/pkg/youtube"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Reconcile the XLSX upload log against the ledger",
	Long:  "Finds uploaded ledger entries with no row in the upload log (left behind when a row append failed mid-run) and re-appends them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lg, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer lg.Close() //nolint:errcheck

		log, err := sheet.Open(cfg.Sheet.Path)
		if err != nil {
			return eris.Wrap(err, "open upload log")
		}

		uploaded, err := lg.List(ctx, ledger.Filter{State: model.StateUploaded})
		if err != nil {
			return eris.Wrap(err, "list uploaded entries")
		}

		restored := 0
		for _, e := range uploaded {
			if e.MatchID == "" || log.Has(e.MatchID) {
				continue
			}
			// Match details were not persisted; the restored row carries
			// what the ledger knows and leaves the rest for the reviewer.
			err := log.Append(sheet.Row{
				MatchID:    e.MatchID,
				Date:       e.AttemptedAt,
				VideoLink:  youtube.WatchURL(e.VideoID),
				LocalPath:  e.Path,
				UploadedAt: e.UploadedAt,
			})
			if err != nil {
				return eris.Wrapf(err, "restore row for match %s", e.MatchID)
			}
			restored++
			zap.L().Info("restored upload log row",
				zap.String("match_id", e.MatchID),
				zap.String("video_id", e.VideoID))
		}

		cmd.Printf("%d uploaded entries checked, %d rows restored\n", len(uploaded), restored)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
