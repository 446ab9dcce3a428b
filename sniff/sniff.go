// Package sniff decides cheaply whether a file is DICOM, from its name or its first bytes.
package sniff

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// SignatureOffset is where the DICM signature follows the preamble.
const SignatureOffset = 128

// IndexProbeSize is how much of a file LooksLikeDirectoryIndex searches for the directory storage
// SOP class.
const IndexProbeSize = 8 << 10

var (
	signature = []byte("DICM")

	// mediaStorageDirectoryStorage is the SOP class UID of DICOMDIR files.
	mediaStorageDirectoryStorage = []byte("1.2.840.10008.1.3.10")
)

var (
	DefaultExtensions    = []string{".dcm", ".dicom", ".ima"}
	DefaultReservedNames = []string{"DICOMDIR", "DIRFILE", "DICOMDIR;1"}
)

// indexNameProbes are the names FindDirectoryIndex looks for, in order.
var indexNameProbes = []string{"DICOMDIR", "dicomdir", "DICOMDIR;1", "DIRFILE", "dirfile"}

// Default uses DefaultExtensions and DefaultReservedNames.
var Default = MustNew(DefaultExtensions, DefaultReservedNames)

// Sniffer matches file names against extensions and reserved names, ignoring case.
type Sniffer struct {
	extensions glob.Glob
	reserved   glob.Glob
}

// New compiles a Sniffer. Extensions include the leading dot; both lists are literal.
func New(extensions, reservedNames []string) (*Sniffer, error) {
	ext, err := compile(extensions, "*")
	if err != nil {
		return nil, fmt.Errorf("extensions: %w", err)
	}
	reserved, err := compile(reservedNames, "")
	if err != nil {
		return nil, fmt.Errorf("reserved names: %w", err)
	}
	return &Sniffer{extensions: ext, reserved: reserved}, nil
}

// MustNew is New that panics on error.
func MustNew(extensions, reservedNames []string) *Sniffer {
	s, err := New(extensions, reservedNames)
	if err != nil {
		panic(err)
	}
	return s
}

// compile builds prefix{a,b,c} from the lowercased, quoted names. An empty list matches nothing.
func compile(names []string, prefix string) (glob.Glob, error) {
	var alts []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			alts = append(alts, glob.QuoteMeta(strings.ToLower(n)))
		}
	}
	switch len(alts) {
	case 0:
		return nil, nil
	case 1:
		return glob.Compile(prefix + alts[0])
	}
	return glob.Compile(prefix + "{" + strings.Join(alts, ",") + "}")
}

func match(g glob.Glob, name string) bool {
	return g != nil && g.Match(strings.ToLower(filepath.Base(name)))
}

// IsDirectoryIndexName reports whether the base name of name is a reserved directory index name.
func (s *Sniffer) IsDirectoryIndexName(name string) bool {
	return match(s.reserved, name)
}

// HasImageExtension reports whether name carries a recognized extension.
func (s *Sniffer) HasImageExtension(name string) bool {
	return match(s.extensions, name)
}

// LooksLikeDICOM reports whether path has a recognized extension or, failing that, carries the
// DICM signature. Unreadable files do not qualify.
func (s *Sniffer) LooksLikeDICOM(path string) bool {
	return s.HasImageExtension(path) || HasSignature(path)
}

// HasSignature reports whether the file is at least 132 bytes long with DICM at offset 128.
func HasSignature(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var sig [4]byte
	if _, err := f.ReadAt(sig[:], SignatureOffset); err != nil {
		return false
	}
	return bytes.Equal(sig[:], signature)
}

// LooksLikeDirectoryIndex reports whether path carries the DICM signature or mentions the
// directory storage SOP class within its first IndexProbeSize bytes.
func LooksLikeDirectoryIndex(path string) bool {
	if HasSignature(path) {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, IndexProbeSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	return bytes.Contains(head[:n], mediaStorageDirectoryStorage)
}

// FindDirectoryIndex looks for a directory index file directly inside dir.
func FindDirectoryIndex(dir string) (string, bool) {
	for _, name := range indexNameProbes {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// IsDirectoryIndexName calls Default.IsDirectoryIndexName.
func IsDirectoryIndexName(name string) bool {
	return Default.IsDirectoryIndexName(name)
}

// HasImageExtension calls Default.HasImageExtension.
func HasImageExtension(name string) bool {
	return Default.HasImageExtension(name)
}

// LooksLikeDICOM calls Default.LooksLikeDICOM.
func LooksLikeDICOM(path string) bool {
	return Default.LooksLikeDICOM(path)
}
