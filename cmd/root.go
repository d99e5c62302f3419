package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vodkeep/vodsync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vodsync",
	Short: "Correlate local game recordings with match history and upload them",
	Long:  "Scans a recordings directory, matches each VOD against the player's match history, uploads matched videos to YouTube with generated titles, and keeps a durable ledger plus an XLSX log of what went where.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
