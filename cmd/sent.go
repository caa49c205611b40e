package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var sentCmd = &cobra.Command{
	Use:   "sent",
	Short: "Show the sent-leads tracker status",
	Long:  "Prints how many people have been sent to Clay and when the tracker was last updated.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openTracker(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, err := st.Status(ctx)
		if err != nil {
			return eris.Wrap(err, "sent")
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}

		last := "never"
		if !status.LastUpdated.IsZero() {
			last = status.LastUpdated.Format(time.RFC3339)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "BACKEND\t%s\n", cfg.Tracker.Driver)
		fmt.Fprintf(w, "SENT\t%d\n", status.Count)
		fmt.Fprintf(w, "LAST UPDATED\t%s\n", last)
		return w.Flush()
	},
}

func init() {
	sentCmd.Flags().Bool("json", false, "print status as JSON")
	rootCmd.AddCommand(sentCmd)
}
