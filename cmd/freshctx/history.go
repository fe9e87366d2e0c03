package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"freshctx/internal/formatter"
	"freshctx/internal/store"
	"freshctx/pkg/utils"
)

const historyQueryWidth = 40

func newHistoryCmd() *cobra.Command {
	var (
		archive string
		format  string
		count   int
		keep    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			s, err := store.Open(archive)
			if err != nil {
				return err
			}
			defer s.Close()

			if keep > 0 {
				removed, err := s.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d run(s)\n", removed)
			}

			runs, err := s.Runs(cmd.Context(), count)
			if err != nil {
				return err
			}

			return printHistory(cmd.OutOrStdout(), format, runs)
		},
	}

	cmd.Flags().StringVar(&archive, "archive", defaultArchive, "SQLite run archive")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table or json")
	cmd.Flags().IntVarP(&count, "number", "n", 10, "number of runs to list (0 for all)")
	cmd.Flags().IntVar(&keep, "prune", 0, "delete all but the newest N runs before listing")

	return cmd
}

func printHistory(w io.Writer, format string, runs []store.RunSummary) error {
	if format == formatJSON {
		if runs == nil {
			runs = []store.RunSummary{}
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no archived runs")
		return err
	}

	rows := []string{
		"| Run | Started | Query | Records | Elapsed | Failed |",
		"| --- | --- | --- | --- | --- | --- |",
	}

	for _, run := range runs {
		query := strings.ReplaceAll(utils.TruncateWidth(utils.NormalizeWhitespace(run.Query), historyQueryWidth), "|", `\|`)

		rows = append(rows, fmt.Sprintf("| %s | %s | %s | %d | %s | %s |",
			run.ID,
			run.StartedAt.Format("2006-01-02 15:04:05 UTC"),
			query,
			run.RecordCount,
			run.Elapsed,
			strings.Join(run.FailedProviders, ", ")))
	}

	_, err := fmt.Fprintln(w, formatter.FormatMarkdown(strings.Join(rows, "\n")))

	return err
}
