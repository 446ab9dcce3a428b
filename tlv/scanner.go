package tlv

import (
	"fmt"
)

// ElementHeader is the decoded header of a single data element. The value itself is left in the
// buffer; use Scanner.Value or Scanner.Skip to consume it.
type ElementHeader struct {
	Tag Tag

	// VR is the code read from the stream, or Implicit when the stream carries none.
	VR VR

	// Length is the declared value length in bytes, or UndefinedLength.
	Length uint32

	// Offset is the position of the tag in the scanned buffer, ValueOffset the position of the
	// first value byte.
	Offset      int
	ValueOffset int
}

// Undefined reports whether the value is terminated by a delimitation item.
func (h ElementHeader) Undefined() bool {
	return h.Length == UndefinedLength
}

// EffectiveVR returns the stream VR, falling back to the data dictionary for implicit headers.
func (h ElementHeader) EffectiveVR() VR {
	if h.VR != Implicit {
		return h.VR
	}
	if h.Tag.IsDelimiter() {
		return Implicit
	}
	return h.Tag.DictionaryVR()
}

// IsSequence reports whether the value holds items that are themselves datasets.
func (h ElementHeader) IsSequence() bool {
	if h.Tag.IsDelimiter() {
		return false
	}
	vr := h.EffectiveVR()
	if vr == SQ {
		return true
	}
	return h.Undefined() && !h.isEncapsulated()
}

// isEncapsulated reports whether an undefined length value holds raw fragments, as encapsulated
// pixel data does.
func (h ElementHeader) isEncapsulated() bool {
	if h.Tag == PixelDataTag {
		return true
	}
	vr := h.EffectiveVR()
	return vr == OB || vr == OW
}

// Scanner decodes element headers one at a time from a buffer.
type Scanner struct {
	c    *Cursor
	mode Mode
}

// NewScanner returns a Scanner reading buf from the start in the given mode.
func NewScanner(buf []byte, mode Mode) *Scanner {
	return NewScannerAt(buf, 0, mode)
}

// NewScannerAt returns a Scanner reading buf from offset pos. Offsets in decoded headers stay
// relative to the start of buf.
func NewScannerAt(buf []byte, pos int, mode Mode) *Scanner {
	if pos > len(buf) {
		pos = len(buf)
	}
	return &Scanner{c: &Cursor{buf: buf, pos: pos}, mode: mode}
}

// Mode returns the VR mode used for non-meta elements.
func (s *Scanner) Mode() Mode {
	return s.mode
}

// SetMode changes the VR mode for subsequent headers.
func (s *Scanner) SetMode(m Mode) {
	s.mode = m
}

// Offset returns the current position in the buffer.
func (s *Scanner) Offset() int {
	return s.c.Pos()
}

// Done is true once the buffer has been consumed.
func (s *Scanner) Done() bool {
	return s.c.Done()
}

// Peek returns the tag at the current position without consuming it.
func (s *Scanner) Peek() (Tag, bool) {
	b := s.c.peek(0, 4)
	if len(b) < 4 {
		return Tag{}, false
	}
	return Tag{
		Group:   uint16(b[0]) | uint16(b[1])<<8,
		Element: uint16(b[2]) | uint16(b[3])<<8,
	}, true
}

// Next decodes the element header at the current position and leaves the scanner at the first
// value byte.
func (s *Scanner) Next() (ElementHeader, error) {
	h := ElementHeader{Offset: s.c.Pos()}
	mode := s.mode
	if t, ok := s.Peek(); ok && t.IsMeta() {
		// file meta information is explicit VR, but tolerate legacy files that ignore that
		mode = DetectMode(s.c.buf, s.c.Pos())
	}

	tag, err := s.c.Tag()
	if err != nil {
		return h, fmt.Errorf("reading tag at offset %d: %w", h.Offset, err)
	}
	h.Tag = tag

	if tag.IsDelimiter() || mode == ImplicitVR {
		if h.Length, err = s.c.Uint32(); err != nil {
			return h, fmt.Errorf("reading length of %v: %w", tag, err)
		}
		h.ValueOffset = s.c.Pos()
		return h, nil
	}

	code, err := s.c.Bytes(2)
	if err != nil {
		return h, fmt.Errorf("reading vr of %v: %w", tag, err)
	}
	h.VR = VR(code)
	if !h.VR.Known() {
		return h, fmt.Errorf("%w: unknown vr %q for %v", ErrUnsupportedEncoding, code, tag)
	}

	if h.VR.LongForm() {
		if err := s.c.Skip(2); err != nil {
			return h, fmt.Errorf("reading reserved field of %v: %w", tag, err)
		}
		if h.Length, err = s.c.Uint32(); err != nil {
			return h, fmt.Errorf("reading 32 bit length of %v: %w", tag, err)
		}
	} else {
		length, err := s.c.Uint16()
		if err != nil {
			return h, fmt.Errorf("reading 16 bit length of %v: %w", tag, err)
		}
		h.Length = uint32(length)
	}
	h.ValueOffset = s.c.Pos()
	return h, nil
}

// Value returns a view of the value bytes of h, which must be the header just returned by Next.
func (s *Scanner) Value(h ElementHeader) ([]byte, error) {
	if h.Undefined() {
		return nil, fmt.Errorf("%w: %v has undefined length", ErrUnsupportedEncoding, h.Tag)
	}
	b, err := s.c.Bytes(h.Length)
	if err != nil {
		return nil, fmt.Errorf("reading value of %v: %w", h.Tag, err)
	}
	return b, nil
}

// Skip advances past the value of h, which must be the header just returned by Next. Undefined
// length values are skipped by walking their nested items up to the matching delimiter.
func (s *Scanner) Skip(h ElementHeader) error {
	if !h.Undefined() {
		if err := s.c.Skip(h.Length); err != nil {
			return fmt.Errorf("skipping value of %v: %w", h.Tag, err)
		}
		return nil
	}
	f, ok := s.container(h)
	if !ok {
		return fmt.Errorf("%w: %v has undefined length", ErrUnsupportedEncoding, h.Tag)
	}
	return s.run([]frame{f}, nil)
}

// Sub returns a Scanner limited to the next n bytes and advances s past them. Offsets reported by
// the returned scanner are positions in the parent buffer.
func (s *Scanner) Sub(n uint32) (*Scanner, error) {
	start := s.c.Pos()
	if err := s.c.Skip(n); err != nil {
		return nil, err
	}
	return &Scanner{c: &Cursor{buf: s.c.buf[:s.c.Pos()], pos: start}, mode: s.mode}, nil
}
