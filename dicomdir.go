package dicomscan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/macadamian/dicomscan/tlv"
)

var (
	directoryRecordSequenceTag = tlv.Tag{Group: 0x0004, Element: 0x1220}
	directoryRecordTypeTag     = tlv.Tag{Group: 0x0004, Element: 0x1430}
	referencedFileIDTag        = tlv.Tag{Group: 0x0004, Element: 0x1500}
)

// directoryRecord holds the two attributes of one Directory Record Sequence item that matter for
// folder resolution.
type directoryRecord struct {
	recordType string
	fileID     string
}

// ReadDirectoryIndex reads the DICOMDIR at path and returns the sorted, deduplicated absolute
// folders holding its IMAGE records.
func ReadDirectoryIndex(path string, opts ...Option) ([]string, error) {
	o := newOptions(opts)
	o.log = o.log.With().Str("path", path).Logger()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	buf, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return parseDirectoryIndex(buf, filepath.Dir(abs), o)
}

// ParseDirectoryIndex is ReadDirectoryIndex over bytes already in memory; referenced files are
// resolved against baseDir.
//
// A dataset without a Directory Record Sequence yields an empty list. Decoding stops at the first
// malformed element or undefined length item, returning the folders collected before it.
func ParseDirectoryIndex(buf []byte, baseDir string, opts ...Option) ([]string, error) {
	return parseDirectoryIndex(buf, baseDir, newOptions(opts))
}

func parseDirectoryIndex(buf []byte, baseDir string, o options) ([]string, error) {
	r, err := newDatasetReader(buf)
	if err != nil {
		return []string{}, err
	}

	folders := make(map[string]struct{})
	for !r.done() {
		h, err := r.next()
		if err != nil {
			o.log.Debug().Err(err).Msg("directory index scan stopped")
			break
		}
		if h.Tag != directoryRecordSequenceTag {
			if err := r.s.Skip(h); err != nil {
				o.log.Debug().Err(err).Msg("directory index scan stopped")
				break
			}
			continue
		}

		walkDirectoryRecords(r.s, h, o, func(rec directoryRecord) {
			if folder, ok := rec.folder(baseDir); ok {
				folders[folder] = struct{}{}
			}
		})
		break
	}

	out := make([]string, 0, len(folders))
	for f := range folders {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// walkDirectoryRecords calls fn for every item of the Directory Record Sequence whose header is
// seq. The scanner must be positioned at the sequence value.
func walkDirectoryRecords(s *tlv.Scanner, seq tlv.ElementHeader, o options, fn func(directoryRecord)) {
	end := -1
	if !seq.Undefined() {
		end = seq.ValueOffset + int(seq.Length)
	}

	for !s.Done() && (end < 0 || s.Offset() < end) {
		item, err := s.Next()
		if err != nil {
			o.log.Debug().Err(err).Msg("directory record walk stopped")
			return
		}
		switch {
		case item.Tag == tlv.SequenceDelimitationTag:
			return
		case item.Tag != tlv.ItemTag:
			o.log.Debug().Stringer("tag", item.Tag).Int("offset", item.Offset).Msg("expected directory record item")
			return
		case item.Undefined():
			o.log.Debug().Int("offset", item.Offset).Msg("undefined length directory record not supported")
			return
		}

		body, err := s.Sub(item.Length)
		if err != nil {
			o.log.Debug().Err(err).Msg("directory record walk stopped")
			return
		}
		fn(readDirectoryRecord(body))
	}
}

// readDirectoryRecord flat scans one item body. Nested sequences are skipped.
func readDirectoryRecord(s *tlv.Scanner) directoryRecord {
	var rec directoryRecord
	for !s.Done() {
		h, err := s.Next()
		if err != nil {
			break
		}
		if (h.Tag == directoryRecordTypeTag || h.Tag == referencedFileIDTag) && !h.Undefined() {
			v, err := s.Value(h)
			if err != nil {
				break
			}
			if h.Tag == directoryRecordTypeTag {
				rec.recordType = trimValue(string(v))
			} else {
				rec.fileID = trimValue(string(v))
			}
			continue
		}
		if err := s.Skip(h); err != nil {
			break
		}
	}
	return rec
}

// folder returns the folder holding the referenced file of an IMAGE record.
func (rec directoryRecord) folder(baseDir string) (string, bool) {
	if !strings.EqualFold(rec.recordType, "IMAGE") || rec.fileID == "" {
		return "", false
	}
	parts := []string{baseDir}
	for _, p := range strings.Split(rec.fileID, `\`) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 1 {
		return "", false
	}
	return filepath.Dir(filepath.Join(parts...)), true
}
