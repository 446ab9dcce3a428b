package tlv

import "errors"

var (
	// ErrOutOfBounds is returned when a read would run past the end of the buffer.
	ErrOutOfBounds = errors.New("read past end of buffer")

	// ErrUnsupportedEncoding is returned for encodings the scanner does not handle, such as an
	// undefined-length item where only defined lengths are allowed.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")

	// ErrNotRecognized is returned when the input does not look like a DICOM dataset at all.
	ErrNotRecognized = errors.New("not a recognized DICOM dataset")
)
