package dicomscan

import (
	"errors"

	"github.com/macadamian/dicomscan/tlv"
)

var (
	// ErrIO wraps open, stat and read failures.
	ErrIO = errors.New("i/o failure")

	ErrOutOfBounds         = tlv.ErrOutOfBounds
	ErrUnsupportedEncoding = tlv.ErrUnsupportedEncoding
	ErrNotRecognized       = tlv.ErrNotRecognized
)
