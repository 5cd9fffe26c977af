// Package codec converts profile values to and from JSON-safe snapshot text.
//
// Encode never fails: values that cannot be represented (opaque kinds, repeated
// composites) are omitted and reported as diagnostics. Decode fails only on
// text that is not a JSON object, which callers treat as "no snapshot".
package codec

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// ErrMalformed is returned by Decode for text that is not a valid snapshot.
var ErrMalformed = errors.New("malformed snapshot")

// DefaultTemporalFields lists field names whose string values are revived into
// Temporal values on decode.
var DefaultTemporalFields = []string{"createdAt", "startDate", "updatedAt", "timestamp", "date"}

// DefaultSetField is the field name whose array value is revived into a StringSet.
const DefaultSetField = "communityPostFireReactions"

// Options configures a Codec.
type Options struct {
	// TemporalFields are revived from strings at any depth. Nil means DefaultTemporalFields.
	TemporalFields []string

	// SetField is revived from an array of strings. Empty means DefaultSetField.
	SetField string

	// Logger receives encode diagnostics. Nil discards them.
	Logger logrus.FieldLogger
}

// Codec encodes and decodes snapshots. It is stateless between calls and safe
// for concurrent use.
type Codec struct {
	temporal map[string]struct{}
	setField string
	log      logrus.FieldLogger
}

// New creates a Codec from options.
func New(opts Options) *Codec {
	fields := opts.TemporalFields
	if fields == nil {
		fields = DefaultTemporalFields
	}
	temporal := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		temporal[f] = struct{}{}
	}

	setField := opts.SetField
	if setField == "" {
		setField = DefaultSetField
	}

	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Codec{temporal: temporal, setField: setField, log: log}
}

// Default returns a Codec with default field names and no diagnostics output.
func Default() *Codec {
	return New(Options{})
}

// WithLogger returns a copy of c that reports diagnostics to log.
func (c *Codec) WithLogger(log logrus.FieldLogger) *Codec {
	cp := *c
	cp.log = log
	return &cp
}
