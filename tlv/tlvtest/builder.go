// Package tlvtest builds synthetic DICOM byte streams for tests.
package tlvtest

import (
	"bytes"
	"encoding/binary"

	"github.com/macadamian/dicomscan/tlv"
)

// Builder accumulates encoded elements. Methods return the builder so calls can be chained.
type Builder struct {
	buf  bytes.Buffer
	mode tlv.Mode
}

// New returns a Builder encoding elements in the given mode.
func New(mode tlv.Mode) *Builder {
	return &Builder{mode: mode}
}

// Bytes returns the encoded stream.
func (b *Builder) Bytes() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int {
	return b.buf.Len()
}

// Preamble writes 128 zero bytes followed by the "DICM" signature.
func (b *Builder) Preamble() *Builder {
	b.buf.Write(make([]byte, 128))
	b.buf.WriteString("DICM")
	return b
}

// Meta writes a file meta group (always explicit VR) declaring the transfer syntax.
func (b *Builder) Meta(transferSyntax string) *Builder {
	body := New(tlv.ExplicitVR).String(tlv.Tag{Group: 0x0002, Element: 0x0010}, tlv.UI, transferSyntax)
	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(body.Len()))
	New(tlv.ExplicitVR).Element(tlv.Tag{Group: 0x0002, Element: 0x0000}, tlv.UL, length).writeTo(b)
	body.writeTo(b)
	return b
}

func (b *Builder) writeTo(dst *Builder) {
	dst.buf.Write(b.buf.Bytes())
}

// Raw appends bytes verbatim.
func (b *Builder) Raw(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

// Header writes only an element header with the given declared length.
func (b *Builder) Header(tag tlv.Tag, vr tlv.VR, length uint32) *Builder {
	b.putTag(tag)
	if b.mode == tlv.ImplicitVR || tag.IsDelimiter() {
		b.putUint32(length)
		return b
	}
	b.buf.WriteString(string(vr))
	if vr.LongForm() {
		b.buf.Write([]byte{0, 0})
		b.putUint32(length)
		return b
	}
	b.putUint16(uint16(length))
	return b
}

// Element writes a complete element with a defined length.
func (b *Builder) Element(tag tlv.Tag, vr tlv.VR, value []byte) *Builder {
	b.Header(tag, vr, uint32(len(value)))
	b.buf.Write(value)
	return b
}

// String writes a text element padded to even length, with NUL for UI and space otherwise.
func (b *Builder) String(tag tlv.Tag, vr tlv.VR, s string) *Builder {
	v := []byte(s)
	if len(v)%2 == 1 {
		if vr == tlv.UI {
			v = append(v, 0)
		} else {
			v = append(v, ' ')
		}
	}
	return b.Element(tag, vr, v)
}

// Uint16 writes a US element.
func (b *Builder) Uint16(tag tlv.Tag, v uint16) *Builder {
	p := make([]byte, 2)
	binary.LittleEndian.PutUint16(p, v)
	return b.Element(tag, tlv.US, p)
}

// Sequence writes an SQ element. Each item is encoded with a defined length unless undefined is
// set, in which case the sequence and its items are delimiter terminated.
func (b *Builder) Sequence(tag tlv.Tag, undefined bool, items ...*Builder) *Builder {
	body := New(b.mode)
	for _, it := range items {
		body.Item(it, undefined)
	}
	if undefined {
		b.Header(tag, tlv.SQ, tlv.UndefinedLength)
		body.writeTo(b)
		b.putTag(tlv.SequenceDelimitationTag)
		b.putUint32(0)
		return b
	}
	b.Header(tag, tlv.SQ, uint32(body.Len()))
	body.writeTo(b)
	return b
}

// UndefinedSequence writes an SQ element of undefined length closed by a sequence delimiter
// whose items all carry a defined length.
func (b *Builder) UndefinedSequence(tag tlv.Tag, items ...*Builder) *Builder {
	b.Header(tag, tlv.SQ, tlv.UndefinedLength)
	for _, it := range items {
		b.Item(it, false)
	}
	b.putTag(tlv.SequenceDelimitationTag)
	b.putUint32(0)
	return b
}

// Item writes an item wrapping the content of it.
func (b *Builder) Item(it *Builder, undefined bool) *Builder {
	b.putTag(tlv.ItemTag)
	if undefined {
		b.putUint32(tlv.UndefinedLength)
		it.writeTo(b)
		b.putTag(tlv.ItemDelimitationTag)
		b.putUint32(0)
		return b
	}
	b.putUint32(uint32(it.Len()))
	it.writeTo(b)
	return b
}

// Encapsulated writes pixel data with undefined length made of the given fragments.
func (b *Builder) Encapsulated(fragments ...[]byte) *Builder {
	b.Header(tlv.PixelDataTag, tlv.OB, tlv.UndefinedLength)
	for _, f := range fragments {
		b.putTag(tlv.ItemTag)
		b.putUint32(uint32(len(f)))
		b.buf.Write(f)
	}
	b.putTag(tlv.SequenceDelimitationTag)
	b.putUint32(0)
	return b
}

func (b *Builder) putTag(t tlv.Tag) {
	b.putUint16(t.Group)
	b.putUint16(t.Element)
}

func (b *Builder) putUint16(v uint16) {
	var p [2]byte
	binary.LittleEndian.PutUint16(p[:], v)
	b.buf.Write(p[:])
}

func (b *Builder) putUint32(v uint32) {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	b.buf.Write(p[:])
}
