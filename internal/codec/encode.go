package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/roach88/profilesync/internal/value"
)

// Omission reasons reported in diagnostics.
const (
	ReasonCircular  = "circular"
	ReasonOpaque    = "opaque"
	ReasonNonFinite = "non-finite"
)

// Encode renders v as JSON snapshot text.
//
// Output is deterministic: object keys are sorted by UTF-16 code units and
// StringSet members ascending, so encoding the same value twice gives
// identical text.
//
// Encode always completes:
//   - a composite (non-empty Array or Object) seen earlier in the same call is
//     omitted at every later occurrence, which breaks cycles of any length
//   - Opaque values are omitted
//   - non-finite floats encode as null
//
// Omitted object fields are dropped, omitted array elements are skipped, and
// an omitted root encodes as null. Each omission logs a warning.
func (c *Codec) Encode(v value.Value) string {
	e := &encoder{log: c.log, seen: make(map[compositeID]struct{})}

	var buf bytes.Buffer
	if !e.write(&buf, v, "$") {
		buf.WriteString("null")
	}
	return buf.String()
}

// compositeID identifies an Array or Object by its backing storage.
type compositeID struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

type encoder struct {
	log  logrus.FieldLogger
	seen map[compositeID]struct{}
}

// visit records a composite and reports whether it was already visited.
func (e *encoder) visit(v any, n int) bool {
	if n == 0 {
		return false
	}
	rv := reflect.ValueOf(v)
	id := compositeID{kind: rv.Kind(), ptr: rv.Pointer(), len: n}
	if _, ok := e.seen[id]; ok {
		return true
	}
	e.seen[id] = struct{}{}
	return false
}

func (e *encoder) omit(path, reason string, v value.Value) {
	fields := logrus.Fields{"path": path, "reason": reason}
	if op, ok := v.(value.Opaque); ok {
		fields["type"] = fmt.Sprintf("%T", op.V)
	}
	e.log.WithFields(fields).Warn("snapshot field omitted")
}

// write appends the encoding of v to buf. It returns false, writing nothing,
// when v is omitted.
func (e *encoder) write(buf *bytes.Buffer, v value.Value, path string) bool {
	switch val := v.(type) {
	case nil, value.Null:
		buf.WriteString("null")
	case value.String:
		writeString(buf, string(val))
	case value.Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case value.Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			e.omit(path, ReasonNonFinite, v)
			buf.WriteString("null")
			return true
		}
		b, _ := json.Marshal(f)
		buf.Write(b)
	case value.Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case value.Temporal:
		writeString(buf, value.FormatTime(val.Time()))
	case value.StringSet:
		buf.WriteByte('[')
		for i, m := range val.Members() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, m)
		}
		buf.WriteByte(']')
	case value.Array:
		if e.visit(val, len(val)) {
			e.omit(path, ReasonCircular, v)
			return false
		}
		buf.WriteByte('[')
		first := true
		for i, elem := range val {
			var eb bytes.Buffer
			if !e.write(&eb, elem, fmt.Sprintf("%s[%d]", path, i)) {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			buf.Write(eb.Bytes())
		}
		buf.WriteByte(']')
	case value.Object:
		if e.visit(val, len(val)) {
			e.omit(path, ReasonCircular, v)
			return false
		}
		buf.WriteByte('{')
		first := true
		for _, k := range val.SortedKeys() {
			var eb bytes.Buffer
			if !e.write(&eb, val[k], path+"."+k) {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeString(buf, k)
			buf.WriteByte(':')
			buf.Write(eb.Bytes())
		}
		buf.WriteByte('}')
	default:
		// value.Opaque, and nothing else: the interface is sealed.
		e.omit(path, ReasonOpaque, v)
		return false
	}
	return true
}

// writeString writes s as a JSON string without HTML escaping.
func writeString(buf *bytes.Buffer, s string) {
	var sb bytes.Buffer
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode
	b := sb.Bytes()
	// json.Encoder adds a trailing newline
	buf.Write(b[:len(b)-1])
}
