package main

import (
	"io"

	"github.com/spf13/cobra"

	"freshctx/internal/store"
)

func newShowCmd() *cobra.Command {
	var (
		archive string
		format  string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the records of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			s, err := store.Open(archive)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			records, err := s.Records(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			report := runReport{
				StartedAt: run.StartedAt,
				RunID:     run.ID,
				Query:     run.Query,
				Failed:    run.FailedProviders,
				Records:   records,
				Count:     len(records),
			}

			return writeOutput(cmd.OutOrStdout(), output, func(w io.Writer) error {
				return printReport(w, format, report)
			})
		},
	}

	cmd.Flags().StringVar(&archive, "archive", defaultArchive, "SQLite run archive")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write output to this file instead of stdout")

	return cmd
}

