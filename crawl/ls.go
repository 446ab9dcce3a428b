package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/macadamian/dicomscan/classify"
)

type lsFlags struct {
	deep        bool
	index       bool
	watch       bool
	metricsAddr string
}

func (a *app) newLsCommand() *cobra.Command {
	var flags lsFlags
	cmd := &cobra.Command{
		Use:   "ls <dir>",
		Short: "List a directory through the file browser filter",
		Long: `List the entries of a directory that a DICOM file browser would show.

Folders are always shown. Files are shown when their name is recognized or,
with --deep, when their content is. Content checks beyond the synchronous
budget run in the background and the listing is refreshed when they finish.
With --watch the listing is also refreshed whenever the directory changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLs(cmd, args[0], flags)
		},
	}
	cmd.Flags().BoolVar(&flags.deep, "deep", false, "check the content of files with unrecognized names")
	cmd.Flags().BoolVar(&flags.index, "index", false, "show index files instead of images")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "keep listing as the directory changes")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	return cmd
}

func (a *app) runLs(cmd *cobra.Command, dir string, flags lsFlags) error {
	opts, err := a.filterOptions()
	if err != nil {
		return err
	}
	if flags.deep {
		opts.DeepCheck = true
	}
	if flags.index {
		opts.Mode = classify.IndexFileMode
	}

	reg := prometheus.NewRegistry()
	opts.Metrics = classify.NewMetrics(reg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if flags.metricsAddr != "" {
		reg.MustRegister(collectors.NewGoCollector())
		srv := &http.Server{
			Addr:              flags.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Str("addr", flags.metricsAddr).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
		a.log.Info().Str("addr", flags.metricsAddr).Msg("serving metrics")
	}

	f := classify.New(opts)
	defer f.Close()

	out := cmd.OutOrStdout()
	listing, err := list(f, dir)
	if err != nil {
		return err
	}

	if !flags.watch && f.Pending() == 0 {
		printListing(out, dir, listing, f.Pending())
		return nil
	}

	var changes <-chan struct{}
	if flags.watch {
		printListing(out, dir, listing, f.Pending())
		w, err := classify.NewWatcher(a.log, dir)
		if err != nil {
			return err
		}
		defer w.Close()
		changes = w.Changes()
	}

	// Serve owns the filter from here on; refilter runs on its goroutine.
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var listErr error
	refilter := func() {
		listing, listErr = list(f, dir)
		if listErr != nil {
			cancel()
			return
		}
		if flags.watch {
			printListing(out, dir, listing, f.Pending())
			return
		}
		if f.Pending() == 0 {
			cancel()
		}
	}

	err = f.Serve(serveCtx, refilter, changes)
	if listErr != nil {
		return listErr
	}
	if flags.watch {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	printListing(out, dir, listing, f.Pending())
	return nil
}

// list runs one filtering pass over the entries of dir.
func list(f *classify.Filter, dir string) ([]classify.Entry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	entries := make([]classify.Entry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			// removed since ReadDir
			continue
		}
		entries = append(entries, classify.Entry{Path: filepath.Join(dir, d.Name()), Info: info})
	}
	return f.Filter(entries), nil
}

func printListing(out io.Writer, dir string, entries []classify.Entry, pending int) {
	blue := color.New(color.FgBlue, color.Bold)
	faint := color.New(color.Faint)

	for _, e := range entries {
		name := filepath.Base(e.Path)
		if e.Info != nil && e.Info.IsDir() {
			blue.Fprintf(out, "%s/\n", name)
			continue
		}
		fmt.Fprintln(out, name)
	}
	summary := fmt.Sprintf("%d entries shown in %s", len(entries), dir)
	if pending > 0 {
		summary += fmt.Sprintf(", %d still being checked", pending)
	}
	faint.Fprintln(out, summary)
}
