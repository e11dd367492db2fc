package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	followupsLimit        int
	followupsReleaseStale bool
)

var followupsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Manage the follow-up email queue",
}

var followupsProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Generate and send due follow-up emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "followups")
		if err != nil {
			return err
		}
		defer env.Close()

		if followupsReleaseStale {
			cutoff := time.Duration(cfg.Followups.StaleClaimMinutes) * time.Minute
			released, err := env.Executor.ReleaseStale(ctx, cutoff)
			if err != nil {
				return err
			}
			if released > 0 {
				zap.L().Info("released stale claims", zap.Int("count", released))
			}
		}

		limit := followupsLimit
		if limit == 0 {
			limit = cfg.Followups.Limit
		}

		summary, err := env.Executor.ProcessDue(ctx, limit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	followupsProcessCmd.Flags().IntVar(&followupsLimit, "limit", 0, "max items to process (default from config)")
	followupsProcessCmd.Flags().BoolVar(&followupsReleaseStale, "release-stale", false, "reset abandoned processing claims before polling")
	followupsCmd.AddCommand(followupsProcessCmd)
	rootCmd.AddCommand(followupsCmd)
}
