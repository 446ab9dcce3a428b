package dicomscan

import "github.com/rs/zerolog"

// DefaultMaxBytes is the default number of bytes read from the start of a file.
const DefaultMaxBytes = 1 << 20

type options struct {
	maxBytes int
	log      zerolog.Logger
}

// Option configures ReadHeader, ParseHeader and the directory index readers.
type Option func(*options)

// WithMaxBytes caps the number of bytes read and scanned. Values <= 0 restore the default.
func WithMaxBytes(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = DefaultMaxBytes
		}
		o.maxBytes = n
	}
}

// WithLogger sets the logger used for scan diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func newOptions(opts []Option) options {
	o := options{maxBytes: DefaultMaxBytes, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
