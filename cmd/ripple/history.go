package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/llehouerou/ripple/internal/errmsg"
	"github.com/llehouerou/ripple/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent plays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("%s: %w", errmsg.OpHistoryLoad, err)
			}
			return printHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of plays to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded play",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %w", errmsg.OpHistoryClear, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s plays\n", humanize.Comma(n))
			return nil
		},
	})
	return cmd
}

func printHistory(out io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "no plays recorded")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tOUTCOME\tPOSITION\tURL")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			e.ID, humanize.Time(e.StartedAt), outcomeOf(e), progressOf(e), e.URL)
	}
	return w.Flush()
}

func outcomeOf(e history.Entry) string {
	if e.EndedAt == nil {
		return "playing"
	}
	if e.Outcome == history.OutcomeFailed && e.Status > 0 {
		return fmt.Sprintf("failed (%d)", e.Status)
	}
	return e.Outcome
}

func progressOf(e history.Entry) string {
	if e.Live {
		return "live"
	}
	if e.Duration <= 0 {
		return formatClock(e.Position)
	}
	return formatClock(e.Position) + " / " + formatClock(e.Duration)
}
