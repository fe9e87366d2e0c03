package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"freshctx/internal/aggregator"
	"freshctx/internal/formatter"
	"freshctx/internal/models"
	"freshctx/internal/store"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

type fetchOptions struct {
	root    *rootOptions
	format  string
	archive   string
	output    string
	limit     int
	noArchive bool
}

// runReport is the JSON shape of fetch and show.
type runReport struct {
	StartedAt time.Time              `json:"started_at"`
	RunID     string                 `json:"run_id"`
	Query     string                 `json:"query"`
	Failed    []string               `json:"failed,omitempty"`
	Records   []models.ContextRecord `json:"records"`
	Count     int                    `json:"count"`
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{root: root}

	cmd := &cobra.Command{
		Use:   "fetch <query>",
		Short: "Aggregate fresh context records for a query",
		Long: `Query every enabled source concurrently and print the merged records.

Examples:
  freshctx fetch "retrieval augmented generation"
  freshctx fetch "diffusion models" --limit 5 --format json
  freshctx fetch "agents" --archive runs.db --output digest.md
  freshctx fetch "agents" --no-archive`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, strings.Join(args, " "))
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "l", 0, "maximum records (retrieval.limit when 0)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatTable, "output format: table or json")
	cmd.Flags().StringVar(&opts.archive, "archive", defaultArchive, "SQLite archive to record the run in")
	cmd.Flags().BoolVar(&opts.noArchive, "no-archive", false, "do not record the run")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write output to this file instead of stdout")

	return cmd
}

func (o *fetchOptions) run(cmd *cobra.Command, query string) error {
	if err := checkFormat(o.format); err != nil {
		return err
	}

	cfg, err := o.root.load()
	if err != nil {
		return err
	}

	log := newLogger(cfg, cmd.ErrOrStderr())

	limit := o.limit
	if limit <= 0 {
		limit = cfg.Retrieval.Limit
	}

	agg := aggregator.New(cfg, log)
	result := agg.Run(cmd.Context(), query, limit)

	var failed []string
	for _, outcome := range result.Failed() {
		failed = append(failed, outcome.Provider)
	}

	if !o.noArchive && o.archive != "" {
		if err := archiveRun(cmd, o.archive, result, failed); err != nil {
			return err
		}

		log.Info("📦 run archived", "run_id", result.RunID, "archive", o.archive)
	}

	report := runReport{
		StartedAt: result.StartedAt,
		RunID:     result.RunID,
		Query:     query,
		Failed:    failed,
		Records:   result.Records,
		Count:     len(result.Records),
	}

	return writeOutput(cmd.OutOrStdout(), o.output, func(w io.Writer) error {
		return printReport(w, o.format, report)
	})
}

func archiveRun(cmd *cobra.Command, path string, result aggregator.Result, failed []string) error {
	archive, err := store.Open(path)
	if err != nil {
		return err
	}
	defer archive.Close()

	_, err = archive.SaveRun(cmd.Context(), store.RunSummary{
		ID:              result.RunID,
		Query:           result.Query,
		Limit:           result.Limit,
		StartedAt:       result.StartedAt,
		Elapsed:         result.Elapsed,
		FailedProviders: failed,
	}, result.Records)

	return err
}

func printReport(w io.Writer, format string, report runReport) error {
	if format == formatJSON {
		if report.Records == nil {
			report.Records = []models.ContextRecord{}
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	}

	_, err := fmt.Fprintln(w, formatter.RenderDigest(formatter.Digest{
		GeneratedAt: report.StartedAt,
		RunID:       report.RunID,
		Query:       report.Query,
		Records:     report.Records,
		Failed:      report.Failed,
	}))

	return err
}

// writeOutput sends write to path when set, otherwise to stdout.
func writeOutput(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := write(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func checkFormat(format string) error {
	if format != formatTable && format != formatJSON {
		return fmt.Errorf("unknown format %q (want %s or %s)", format, formatTable, formatJSON)
	}

	return nil
}
