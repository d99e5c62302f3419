package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vodkeep/vodsync/internal/ledger"
	"github.com/vodkeep/vodsync/internal/model"
)

var (
	statusState string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger state for tracked recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		lg, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer lg.Close() //nolint:errcheck

		filter := ledger.Filter{Limit: statusLimit}
		switch statusState {
		case "":
		case string(model.StatePending), string(model.StateUploaded), string(model.StateFailedPermanent):
			filter.State = model.EntryState(statusState)
		default:
			return eris.Errorf("unknown state %q", statusState)
		}

		entries, err := lg.List(cmd.Context(), filter)
		if err != nil {
			return eris.Wrap(err, "list ledger")
		}
		if len(entries) == 0 {
			cmd.Println("ledger is empty")
			return nil
		}

		cmd.Printf("%-18s %-12s %-24s %s\n", "STATE", "MISSES", "ATTEMPTED", "PATH")
		for _, e := range entries {
			attempted := "-"
			if !e.AttemptedAt.IsZero() {
				attempted = e.AttemptedAt.Format("2006-01-02 15:04:05")
			}
			cmd.Printf("%-18s %-12d %-24s %s\n", e.State, e.MissCount, attempted, e.Path)
			if e.VideoID != "" {
				cmd.Printf("%-18s %-12s %-24s video %s\n", "", "", "", e.VideoID)
			}
			if e.LastError != "" {
				cmd.Printf("%-18s %-12s %-24s last error: %s\n", "", "", "", e.LastError)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusState, "state", "", "filter by state (pending, uploaded, failed-permanent)")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 50, "max entries to show (0 shows all)")
	rootCmd.AddCommand(statusCmd)
}
