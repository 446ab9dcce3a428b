// Command crawl inspects DICOM files, directory indexes and the series found in folders.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/macadamian/dicomscan"
	"github.com/macadamian/dicomscan/classify"
	"github.com/macadamian/dicomscan/config"
	"github.com/macadamian/dicomscan/logging"
	"github.com/macadamian/dicomscan/series"
	"github.com/macadamian/dicomscan/sniff"
)

// Version is injected at build time via -ldflags
var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the state shared by subcommands once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Inspect DICOM files, directory indexes and series",
		Long: `crawl reads the headers of DICOM files without decoding pixel data.

It can print the extracted header fields of a file, dump its element tree,
resolve a DICOMDIR to the folders it references, group a folder into series
and list a directory the way a file browser filter would.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "dicomscan.yaml", "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error), overrides the configuration")

	cmd.AddCommand(a.newHeaderCommand())
	cmd.AddCommand(a.newDumpCommand())
	cmd.AddCommand(a.newDicomdirCommand())
	cmd.AddCommand(a.newSeriesCommand())
	cmd.AddCommand(a.newLsCommand())

	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log, err := logging.New(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	a.log.Debug().Str("config", a.configPath).Msg("configuration loaded")
	return nil
}

func (a *app) sniffer() (*sniff.Sniffer, error) {
	s, err := sniff.New(a.cfg.Sniff.Extensions, a.cfg.Sniff.ReservedNames)
	if err != nil {
		return nil, fmt.Errorf("invalid sniff configuration: %w", err)
	}
	return s, nil
}

func (a *app) headerOptions() []dicomscan.Option {
	return []dicomscan.Option{
		dicomscan.WithMaxBytes(a.cfg.Header.MaxBytes),
		dicomscan.WithLogger(a.log),
	}
}

func (a *app) seriesOptions() (series.Options, error) {
	s, err := a.sniffer()
	if err != nil {
		return series.Options{}, err
	}
	return series.Options{
		Concurrency: a.cfg.Scan.Concurrency,
		MaxFiles:    a.cfg.Scan.MaxFiles,
		MaxBytes:    a.cfg.Header.MaxBytes,
		Sniffer:     s,
		Logger:      a.log,
	}, nil
}

func (a *app) filterOptions() (classify.Options, error) {
	s, err := a.sniffer()
	if err != nil {
		return classify.Options{}, err
	}
	opts := classify.DefaultOptions()
	opts.DeepCheck = a.cfg.Classify.DeepCheck
	opts.SyncBudget = a.cfg.Classify.SyncBudget
	opts.MaxPending = a.cfg.Classify.MaxPending
	opts.RefilterDelay = a.cfg.Classify.RefilterDelay
	opts.IndexSuffix = a.cfg.Classify.IndexSuffix
	opts.Sniffer = s
	opts.Logger = a.log
	return opts, nil
}
