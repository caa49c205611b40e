package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/engager-cli/internal/collector"
	"github.com/sells-group/engager-cli/internal/config"
	"github.com/sells-group/engager-cli/internal/delivery"
	"github.com/sells-group/engager-cli/internal/enrich"
	"github.com/sells-group/engager-cli/internal/pipeline"
	"github.com/sells-group/engager-cli/internal/sheet"
	"github.com/sells-group/engager-cli/internal/tracker"
	"github.com/sells-group/engager-cli/pkg/datagen"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "engager-cli [limit]",
	Short: "Track LinkedIn post engagers and send new leads to Clay",
	Long: "Reads post URLs from a Google Sheet, collects reactions, comments and reposts, " +
		"skips people already sent, enriches the rest with profile data, posts them to a Clay webhook " +
		"and writes a snapshot file. An optional limit processes only the first N posts.",
	Args: cobra.MaximumNArgs(1),
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
	RunE: runEngagers,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// parseLimit reads the optional post limit. Absent or 0 means no limit.
func parseLimit(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, eris.Errorf("limit must be a non-negative integer, got %q", args[0])
	}
	return n, nil
}

func runEngagers(cmd *cobra.Command, args []string) error {
	limit, err := parseLimit(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return runOnce(cmd.Context(), limit, cmd.OutOrStdout())
}

// runOnce performs one pipeline pass and prints its summary to out.
func runOnce(ctx context.Context, limit int, out io.Writer) error {
	st, err := openTracker(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	sum, err := buildPipeline(cfg, st).Run(ctx, limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "--- Summary ---")
	fmt.Fprintf(out, "Run:                 %s\n", sum.RunID)
	fmt.Fprintf(out, "Posts processed:     %d\n", sum.Posts)
	fmt.Fprintf(out, "Total engagements:   %d\n", sum.Engagements)
	fmt.Fprintf(out, "Previously sent:     %d\n", sum.PreviouslySent)
	fmt.Fprintf(out, "New leads:           %d\n", sum.NewLeads)
	fmt.Fprintf(out, "Enriched:            %d\n", sum.Enriched)
	fmt.Fprintf(out, "Sent to Clay:        %d (failed %d)\n", sum.Delivery.Sent, sum.Delivery.Failed)
	for _, path := range sum.SnapshotPaths {
		fmt.Fprintf(out, "Snapshot:            %s\n", path)
	}
	return nil
}

func openTracker(ctx context.Context) (tracker.Store, error) {
	return tracker.Open(ctx, tracker.Options{
		Driver:      cfg.Tracker.Driver,
		Path:        cfg.Tracker.Path,
		DatabaseURL: cfg.Tracker.DatabaseURL,
	})
}

func buildPipeline(c *config.Config, st tracker.Store) *pipeline.Pipeline {
	client := datagen.NewClient(c.Datagen.Key,
		datagen.WithBaseURL(c.Datagen.BaseURL),
		datagen.WithRateLimit(c.Datagen.RateLimit),
	)
	return pipeline.New(c,
		sheet.New(sheet.WithBaseURL(c.Sheet.BaseURL)),
		collector.New(client,
			collector.WithPostDelay(time.Duration(c.Collect.PostDelayMs)*time.Millisecond),
			collector.WithMaxRepostPages(c.Collect.MaxRepostPages),
		),
		st,
		enrich.New(client, enrich.WithWorkers(c.Enrich.MaxWorkers)),
		delivery.NewWebhook(c.Clay.WebhookURL,
			delivery.WithBatchSize(c.Clay.BatchSize),
			delivery.WithTimeout(time.Duration(c.Clay.TimeoutSecs)*time.Second),
		),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
