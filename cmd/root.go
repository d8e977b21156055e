package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voicebridge/leadlink/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadlink",
	Short: "Reconcile form leads with voice agent conversations",
	Long:  "Matches submitted leads against transcripts of voice agent calls by name, phone, and call timing, then persists the lead/conversation link.",
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
