// Package series groups the DICOM files found under a set of folders into image series.
package series

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/macadamian/dicomscan"
	"github.com/macadamian/dicomscan/sniff"
)

const (
	DefaultConcurrency = 4
	DefaultMaxFiles    = 20000
)

// Untitled is the description of a series with no description, modality or number.
const Untitled = "(untitled)"

// Options configures a scan. Zero values select the defaults.
type Options struct {
	Concurrency int
	MaxFiles    int
	// MaxBytes is passed to dicomscan.WithMaxBytes.
	MaxBytes int
	Sniffer  *sniff.Sniffer
	Logger   zerolog.Logger
	// Progress is called once per header read. Calls are serialized.
	Progress func(Progress)
}

// Progress reports how many of the candidate files have been read.
type Progress struct {
	Done  int
	Total int
	Path  string
}

// Series is one group of files sharing a series key.
type Series struct {
	Key              string
	Description      string
	StudyInstanceUID string
	Modality         string
	// Files in natural name order.
	Files []string
	// Representative is the middle file of Files.
	Representative string
}

// Result is the outcome of a scan.
type Result struct {
	Series []Series
	// Patient comes from the first monochrome image; HasPatient is false when there was none.
	Patient    dicomscan.Patient
	HasPatient bool
	// Candidates is the number of files whose header was read.
	Candidates int
	// Truncated is set when discovery stopped at MaxFiles.
	Truncated bool
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = DefaultMaxFiles
	}
	if o.Sniffer == nil {
		o.Sniffer = sniff.Default
	}
	return o
}

// Key returns the Series Instance UID, or a composite of study, series number, modality and
// geometry when the UID is missing.
func Key(h *dicomscan.HeaderFields) string {
	if h.SeriesInstanceUID != "" {
		return h.SeriesInstanceUID
	}
	rows, cols := 0, 0
	if h.Rows != nil {
		rows = *h.Rows
	}
	if h.Columns != nil {
		cols = *h.Columns
	}
	return fmt.Sprintf("ST=%s|SN=%s|MD=%s|%dx%d", h.StudyInstanceUID, h.SeriesNumber, h.Modality, rows, cols)
}

// Describe returns the series description, falling back to modality and series number.
func Describe(h *dicomscan.HeaderFields) string {
	if d := strings.TrimSpace(h.SeriesDescription); d != "" {
		return d
	}
	if h.Modality == "" && h.SeriesNumber == "" {
		return Untitled
	}
	return strings.TrimSpace(h.Modality + " " + h.SeriesNumber)
}

func admitted(h *dicomscan.HeaderFields) bool {
	return h.Rows != nil || h.Columns != nil || h.HasPixelData
}

// Scan groups the files under root.
func Scan(ctx context.Context, root string, opts Options) (*Result, error) {
	return ScanFolders(ctx, []string{root}, opts)
}

// ScanDirectoryIndex resolves the DICOMDIR at path and scans the folders it references. An index
// with no image records falls back to the folder holding it.
func ScanDirectoryIndex(ctx context.Context, path string, opts Options) (*Result, error) {
	o := opts.withDefaults()
	folders, err := dicomscan.ReadDirectoryIndex(path, dicomscan.WithLogger(o.Logger))
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		o.Logger.Debug().Str("path", abs).Msg("directory index lists no images, scanning its folder")
		folders = []string{filepath.Dir(abs)}
	}
	return ScanFolders(ctx, folders, o)
}

// ScanFolders reads the headers of every DICOM candidate below folders and groups them.
// Unreadable or non image files are skipped. Cancelling ctx aborts the scan with its error.
func ScanFolders(ctx context.Context, folders []string, opts Options) (*Result, error) {
	o := opts.withDefaults()

	candidates, truncated, err := discover(ctx, folders, o)
	if err != nil {
		return nil, err
	}
	naturalSort(candidates)

	headers, err := readHeaders(ctx, candidates, o)
	if err != nil {
		return nil, err
	}

	res := &Result{Candidates: len(candidates), Truncated: truncated}
	groups := make(map[string][]int)
	var order []string
	for i, h := range headers {
		if h == nil || !admitted(h) {
			continue
		}
		key := Key(h)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
		if !res.HasPatient && h.IsMonochrome() {
			res.Patient = h.Patient()
			res.HasPatient = true
		}
	}

	res.Series = make([]Series, 0, len(order))
	for _, key := range order {
		idx := groups[key]
		files := make([]string, len(idx))
		for j, i := range idx {
			files[j] = candidates[i]
		}
		mid := idx[(len(idx)-1)/2]
		rep := headers[mid]
		res.Series = append(res.Series, Series{
			Key:              key,
			Description:      Describe(rep),
			StudyInstanceUID: rep.StudyInstanceUID,
			Modality:         rep.Modality,
			Files:            files,
			Representative:   candidates[mid],
		})
	}
	sortSeries(res.Series)

	o.Logger.Debug().
		Int("candidates", res.Candidates).
		Int("series", len(res.Series)).
		Bool("truncated", truncated).
		Msg("series scan complete")
	return res, nil
}

// discover walks folders for files the sniffer accepts, skipping directory indexes. Folders
// nested in one another are visited once.
func discover(ctx context.Context, folders []string, o Options) ([]string, bool, error) {
	seen := make(map[string]struct{})
	var found []string
	truncated := false

	for _, folder := range folders {
		if truncated {
			break
		}
		err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				o.Logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if _, ok := seen[path]; ok {
				return nil
			}
			seen[path] = struct{}{}
			if o.Sniffer.IsDirectoryIndexName(d.Name()) || !o.Sniffer.LooksLikeDICOM(path) {
				return nil
			}
			found = append(found, path)
			if len(found) >= o.MaxFiles {
				truncated = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			return nil, false, err
		}
	}
	return found, truncated, nil
}

// readHeaders extracts the header of each path. Entries stay nil for files that could not be read.
func readHeaders(ctx context.Context, paths []string, o Options) ([]*dicomscan.HeaderFields, error) {
	headers := make([]*dicomscan.HeaderFields, len(paths))
	readOpts := []dicomscan.Option{dicomscan.WithLogger(o.Logger)}
	if o.MaxBytes > 0 {
		readOpts = append(readOpts, dicomscan.WithMaxBytes(o.MaxBytes))
	}

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for i, path := range paths {
		i, path := i, path
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := dicomscan.ReadHeader(path, readOpts...)
			if err != nil {
				o.Logger.Debug().Err(err).Str("path", path).Msg("skipping file")
			} else {
				headers[i] = h
			}
			if o.Progress != nil {
				mu.Lock()
				done++
				o.Progress(Progress{Done: done, Total: len(paths), Path: path})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return headers, nil
}

// naturalSort orders paths so that embedded numbers compare by value: IM2 before IM10.
func naturalSort(paths []string) {
	c := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
	sort.SliceStable(paths, func(i, j int) bool {
		if r := c.CompareString(paths[i], paths[j]); r != 0 {
			return r < 0
		}
		return paths[i] < paths[j]
	})
}

// sortSeries orders by description, then larger series first, then key.
func sortSeries(series []Series) {
	c := collate.New(language.Und, collate.Numeric, collate.Loose)
	sort.SliceStable(series, func(i, j int) bool {
		a, b := series[i], series[j]
		if r := c.CompareString(a.Description, b.Description); r != 0 {
			return r < 0
		}
		if len(a.Files) != len(b.Files) {
			return len(a.Files) > len(b.Files)
		}
		return a.Key < b.Key
	})
}
