package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/engager-cli/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [limit]",
	Short: "Run the engager pipeline on a cron schedule",
	Long: "Keeps running and starts a pipeline pass at every tick of the cron expression " +
		"(schedule.cron, standard five-field syntax). Passes never overlap. Stops on interrupt.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := parseLimit(args)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		expr, _ := cmd.Flags().GetString("cron")
		if expr == "" {
			expr = cfg.Schedule.Cron
		}

		s, err := schedule.New(cfg.Schedule.Timezone)
		if err != nil {
			return err
		}
		if _, err := s.Next(expr, time.Now()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		job := func(ctx context.Context) error {
			return runOnce(ctx, limit, out)
		}

		if now, _ := cmd.Flags().GetBool("now"); now {
			if err := job(cmd.Context()); err != nil {
				zap.L().Error("schedule: initial run failed", zap.Error(err))
			}
		}
		return s.Run(cmd.Context(), "engagers", expr, job)
	},
}

func init() {
	scheduleCmd.Flags().String("cron", "", "cron expression overriding schedule.cron")
	scheduleCmd.Flags().Bool("now", false, "run once immediately before waiting for the first tick")
	rootCmd.AddCommand(scheduleCmd)
}
