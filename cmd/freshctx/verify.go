package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"freshctx/internal/validator"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <digest.md>",
		Short: "Check that a saved digest is intact and well ranked",
		Long: `verify recomputes the digest hash, then checks the record table: row
numbering, published values and newest-first order with undated records last.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			result := validator.Validate(string(content))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.String())

			if err := result.Err(); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			meta := result.Meta
			fmt.Fprintf(out, "✅ %s verified: run %s, %d record(s), generated %s\n",
				args[0], meta.RunID, meta.Records, meta.GeneratedAt.Format("2006-01-02 15:04 UTC"))

			return nil
		},
	}
}
