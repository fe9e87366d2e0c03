// Package main provides the freshctx command: aggregate fresh context for a
// query, archive runs and inspect past ones.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"freshctx/internal/config"
	"freshctx/internal/logger"
)

var version = "dev"

// defaultArchive is the run archive used when --archive is not given.
// data/ carries its own go.mod so the toolchain never walks it.
const defaultArchive = "data/freshctx.db"

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "freshctx",
		Short: "Aggregate recent news, papers and releases for a query",
		Long: `freshctx queries news, arXiv, GitHub releases, Semantic Scholar, Crossref,
conference proceedings and topic RSS feeds concurrently, then returns one
deduplicated list of context records ordered newest first.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config YAML (built-in defaults when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newFetchCmd(opts),
		newHistoryCmd(),
		newShowCmd(),
		newVerifyCmd(),
		newConfigCmd(opts),
	)

	return root
}

// load returns the effective configuration: file (or defaults), environment, then flags.
func (o *rootOptions) load() (*config.Config, error) {
	var cfg *config.Config

	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.ApplyEnv(os.LookupEnv)
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *logger.Logger {
	return logger.New(cfg.Logging.Level, cfg.Logging.Format, w)
}
