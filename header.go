package dicomscan

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	"golang.org/x/text/encoding"

	"github.com/macadamian/dicomscan/tlv"
)

const preambleLength = 128

var signature = []byte("DICM")

var (
	transferSyntaxTag       = tlv.Tag{Group: 0x0002, Element: 0x0010}
	specificCharacterSetTag = tlv.Tag{Group: 0x0008, Element: 0x0005}
)

// Transfer syntaxes whose dataset cannot be read as little endian TLV.
var unsupportedTransferSyntaxes = map[string]string{
	"1.2.840.10008.1.2.2":    "explicit VR big endian",
	"1.2.840.10008.1.2.1.99": "deflated explicit VR little endian",
}

// HasPreamble reports whether buf starts with the 128 byte preamble and the DICM signature.
func HasPreamble(buf []byte) bool {
	return len(buf) >= preambleLength+len(signature) &&
		bytes.Equal(buf[preambleLength:preambleLength+len(signature)], signature)
}

type transferSyntaxError struct {
	uid  string
	name string
}

func (e *transferSyntaxError) Error() string {
	return fmt.Sprintf("%v: %s transfer syntax (%s)", ErrUnsupportedEncoding, e.name, e.uid)
}

func (e *transferSyntaxError) Unwrap() error {
	return ErrUnsupportedEncoding
}

// datasetReader drives a Scanner over a whole file: it skips the preamble, reads the meta group
// and switches to the dataset VR mode at the first element outside it.
type datasetReader struct {
	buf            []byte
	s              *tlv.Scanner
	preamble       bool
	detected       bool
	transferSyntax string
}

func newDatasetReader(buf []byte) (*datasetReader, error) {
	r := &datasetReader{buf: buf}
	start := 0
	if HasPreamble(buf) {
		r.preamble = true
		start = preambleLength + len(signature)
	} else if !plausibleLegacy(buf) {
		return nil, fmt.Errorf("%w: no preamble and no element at offset 0", ErrNotRecognized)
	}
	r.s = tlv.NewScannerAt(buf, start, tlv.ExplicitVR)
	return r, nil
}

// plausibleLegacy checks that a file without preamble starts with the tag of a low, even,
// non-command group, as datasets written without meta information do.
func plausibleLegacy(buf []byte) bool {
	if len(buf) < 8 {
		return false
	}
	group := binary.LittleEndian.Uint16(buf)
	return group%2 == 0 && group >= 0x0002 && group <= 0x0010
}

func (r *datasetReader) done() bool {
	return r.s.Done()
}

func (r *datasetReader) next() (tlv.ElementHeader, error) {
	if !r.detected {
		if t, ok := r.s.Peek(); ok && !t.IsMeta() {
			if err := r.enterDataset(); err != nil {
				return tlv.ElementHeader{}, err
			}
		}
	}

	h, err := r.s.Next()
	if err != nil {
		return h, err
	}
	if h.Tag == transferSyntaxTag && !h.Undefined() && uint64(h.ValueOffset)+uint64(h.Length) <= uint64(len(r.buf)) {
		r.transferSyntax = trimValue(string(r.buf[h.ValueOffset : h.ValueOffset+int(h.Length)]))
	}
	return h, nil
}

// enterDataset switches the scanner to the VR mode of the dataset. It is called once, when the
// next element is past the meta group.
func (r *datasetReader) enterDataset() error {
	if name, bad := unsupportedTransferSyntaxes[r.transferSyntax]; bad {
		return &transferSyntaxError{uid: r.transferSyntax, name: name}
	}
	r.s.SetMode(tlv.DetectMode(r.buf, r.s.Offset()))
	r.detected = true
	return nil
}

// ReadHeader extracts HeaderFields from the first bytes of the file at path.
//
// Decoding stops at Pixel Data, once every value field has been read, at the byte cap or at the
// first element that fails to decode. A failure after at least one element is not an error: the
// fields found so far are returned with Truncated set. A file whose first element cannot be
// decoded, or that holds no element at all, yields an error wrapping ErrNotRecognized.
func ReadHeader(path string, opts ...Option) (*HeaderFields, error) {
	o := newOptions(opts)
	o.log = o.log.With().Str("path", path).Logger()

	buf, capped, err := readPrefix(path, o.maxBytes)
	if err != nil {
		return nil, err
	}
	return parseHeader(buf, capped, o)
}

// ParseHeader is ReadHeader over bytes already in memory.
func ParseHeader(buf []byte, opts ...Option) (*HeaderFields, error) {
	o := newOptions(opts)
	capped := false
	if len(buf) > o.maxBytes {
		buf = buf[:o.maxBytes]
		capped = true
	}
	return parseHeader(buf, capped, o)
}

func parseHeader(buf []byte, capped bool, o options) (*HeaderFields, error) {
	r, err := newDatasetReader(buf)
	if err != nil {
		return nil, err
	}

	fields := &HeaderFields{Preamble: r.preamble}
	v := reflect.ValueOf(fields)
	var dec *encoding.Decoder
	seen := make(map[tlv.Tag]bool, len(headerWatch))
	remaining := headerValues
	decoded := 0

	err = func() error {
		for !r.done() {
			h, err := r.next()
			if err != nil {
				return err
			}

			if h.Tag == tlv.PixelDataTag {
				headerWatch[h.Tag].assign(v, nil, nil)
				decoded++
				return nil
			}

			wf, watched := headerWatch[h.Tag]
			if !watched || seen[h.Tag] || h.Undefined() {
				if err := r.s.Skip(h); err != nil {
					return err
				}
				decoded++
				continue
			}

			value, err := r.s.Value(h)
			if err != nil {
				return err
			}
			decoded++
			seen[h.Tag] = true
			if !wf.presence {
				remaining--
			}
			if !wf.assign(v, value, dec) {
				o.log.Debug().Stringer("tag", h.Tag).Str("field", wf.name).Msg("value does not parse")
			}
			if h.Tag == specificCharacterSetTag {
				dec = decoderFor(fields.SpecificCharacterSet)
			}
			if remaining == 0 {
				return nil
			}
		}
		return nil
	}()

	var tsErr *transferSyntaxError
	switch {
	case errors.As(err, &tsErr):
		o.log.Debug().Str("transfer_syntax", tsErr.uid).Msg("dataset encoding not supported")
		return fields, err
	case decoded == 0 && err == nil:
		return nil, fmt.Errorf("%w: no elements", ErrNotRecognized)
	case decoded == 0:
		return nil, fmt.Errorf("%w: %w", ErrNotRecognized, err)
	case err == nil:
		return fields, nil
	case capped && errors.Is(err, ErrOutOfBounds):
		o.log.Debug().Int("elements", decoded).Msg("header scan reached byte cap")
		return fields, nil
	}
	fields.Truncated = true
	o.log.Debug().Err(err).Int("elements", decoded).Msg("header scan stopped")
	return fields, nil
}

// readPrefix reads at most limit bytes from the start of the file. capped reports whether the
// file is longer than limit.
func readPrefix(path string, limit int) (buf []byte, capped bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrIO, err)
	}
	n := limit
	if st.Size() < int64(n) {
		n = int(st.Size())
	}

	buf = make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("%w: reading %s: %w", ErrIO, path, err)
	}
	return buf[:read], st.Size() > int64(limit), nil
}
