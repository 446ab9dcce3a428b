package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/macadamian/dicomscan/series"
	"github.com/macadamian/dicomscan/sniff"
)

func (a *app) newSeriesCommand() *cobra.Command {
	var noIndex bool
	cmd := &cobra.Command{
		Use:   "series <path>",
		Short: "Group the DICOM files under a folder into series",
		Long: `Group the DICOM files under a folder into series.

A DICOMDIR path, or a folder holding one, is resolved to the folders it
references. Use --no-index to scan the folder tree directly instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSeries(cmd, args[0], noIndex)
		},
	}
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "ignore any DICOMDIR and walk the folder tree")
	return cmd
}

func (a *app) runSeries(cmd *cobra.Command, path string, noIndex bool) error {
	opts, err := a.seriesOptions()
	if err != nil {
		return err
	}
	if f, ok := cmd.ErrOrStderr().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		opts.Progress = func(p series.Progress) {
			fmt.Fprintf(f, "\rread %d/%d", p.Done, p.Total)
			if p.Done == p.Total {
				fmt.Fprintln(f)
			}
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	var res *series.Result
	switch {
	case !info.IsDir():
		res, err = series.ScanDirectoryIndex(cmd.Context(), path, opts)
	case !noIndex:
		if index, ok := sniff.FindDirectoryIndex(path); ok {
			a.log.Debug().Str("index", index).Msg("using directory index")
			res, err = series.ScanDirectoryIndex(cmd.Context(), index, opts)
			break
		}
		fallthrough
	default:
		res, err = series.Scan(cmd.Context(), path, opts)
	}
	if err != nil {
		return err
	}

	printSeries(cmd.OutOrStdout(), res)
	return nil
}

func printSeries(out io.Writer, res *series.Result) {
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)
	green := color.New(color.FgGreen)

	if res.HasPatient {
		p := res.Patient
		bold.Fprintf(out, "Patient: %s", p.Name)
		fmt.Fprintf(out, "  ID %s  %s", p.ID, p.Sex)
		if !p.BirthDate.IsZero() {
			fmt.Fprintf(out, "  born %s", p.BirthDate.Format("2006-01-02"))
		}
		fmt.Fprintln(out)
	}

	for _, s := range res.Series {
		bold.Fprint(out, s.Description)
		green.Fprintf(out, "  %d images", len(s.Files))
		fmt.Fprintln(out)
		faint.Fprintf(out, "  key %s\n", s.Key)
		fmt.Fprintf(out, "  representative %s\n", s.Representative)
	}

	summary := fmt.Sprintf("%d series from %d candidate files", len(res.Series), res.Candidates)
	if res.Truncated {
		summary += " (file limit reached)"
	}
	faint.Fprintln(out, summary)
}
