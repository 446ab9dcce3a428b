package tlv

import (
	"encoding/binary"
	"fmt"
)

// Cursor is a bounds-checked forward reader over a byte buffer. Reads either return the value and
// advance, or fail with ErrOutOfBounds. After a failure the position is unspecified and the cursor
// should not be used again.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a Cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current read offset.
func (c *Cursor) Pos() int {
	return c.pos
}

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	return len(c.buf) - c.pos
}

// Done is true once every byte has been consumed.
func (c *Cursor) Done() bool {
	return c.pos >= len(c.buf)
}

func (c *Cursor) need(n uint64) error {
	if n > uint64(len(c.buf)-c.pos) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrOutOfBounds, n, c.pos, len(c.buf)-c.pos)
	}
	return nil
}

// Uint16 reads a little endian 16 bit unsigned integer.
func (c *Cursor) Uint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// Uint32 reads a little endian 32 bit unsigned integer.
func (c *Cursor) Uint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// Bytes returns a view of the next n bytes. The slice aliases the source buffer.
func (c *Cursor) Bytes(n uint32) ([]byte, error) {
	if err := c.need(uint64(n)); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+int(n) : c.pos+int(n)]
	c.pos += int(n)
	return b, nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n uint32) error {
	if err := c.need(uint64(n)); err != nil {
		return err
	}
	c.pos += int(n)
	return nil
}

// Tag reads a group and element number pair.
func (c *Cursor) Tag() (Tag, error) {
	group, err := c.Uint16()
	if err != nil {
		return Tag{}, err
	}
	element, err := c.Uint16()
	if err != nil {
		return Tag{}, err
	}
	return Tag{Group: group, Element: element}, nil
}

// peek returns up to n bytes at offset off from the current position without advancing.
func (c *Cursor) peek(off, n int) []byte {
	start := c.pos + off
	if start < 0 || start >= len(c.buf) {
		return nil
	}
	end := start + n
	if end > len(c.buf) {
		end = len(c.buf)
	}
	return c.buf[start:end]
}
