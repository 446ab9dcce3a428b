package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macadamian/dicomscan"
)

type headerReport struct {
	Path   string                  `json:"path"`
	Fields *dicomscan.HeaderFields `json:"fields,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

func (a *app) newHeaderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "header <file>...",
		Short: "Print the header fields extracted from DICOM files",
		Long: `Print, as JSON, the header fields extracted from the start of each file.

Files with an unsupported transfer syntax are reported with the fields
found in their meta group.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runHeader,
	}
}

func (a *app) runHeader(cmd *cobra.Command, args []string) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	failed := 0
	for _, path := range args {
		fields, err := dicomscan.ReadHeader(path, a.headerOptions()...)
		report := headerReport{Path: path, Fields: fields}
		if err != nil {
			report.Error = err.Error()
			if !errors.Is(err, dicomscan.ErrUnsupportedEncoding) {
				failed++
			}
		}
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be read", failed, len(args))
	}
	return nil
}
