package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/macadamian/dicomscan"
	"github.com/macadamian/dicomscan/sniff"
)

func (a *app) newDicomdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dicomdir <path>",
		Short: "List the folders referenced by a DICOMDIR",
		Long: `List the folders holding the images referenced by a DICOMDIR.

The path may be the index file itself or the folder containing it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := resolveIndex(args[0])
			if err != nil {
				return err
			}
			if !sniff.LooksLikeDirectoryIndex(index) {
				a.log.Warn().Str("path", index).Msg("file does not look like a directory index")
			}

			folders, err := dicomscan.ReadDirectoryIndex(index, dicomscan.WithLogger(a.log))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range folders {
				fmt.Fprintln(out, f)
			}
			a.log.Info().Str("index", index).Int("folders", len(folders)).Msg("directory index resolved")
			return nil
		},
	}
}

// resolveIndex returns path itself for files, or the directory index found in the folder.
func resolveIndex(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", dicomscan.ErrIO, err)
	}
	if !info.IsDir() {
		return path, nil
	}
	index, ok := sniff.FindDirectoryIndex(path)
	if !ok {
		return "", fmt.Errorf("no directory index in %s", path)
	}
	return index, nil
}
