package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/profilesync/internal/value"
)

// Decode parses snapshot text into an Object.
//
// String values under a configured temporal field name are revived into
// Temporal values when they parse as date-times, and the configured set field
// is revived into a StringSet when it holds only strings. All other fields,
// including unknown ones, decode as their literal JSON shape. Integral numbers
// decode as Int, others as Float.
//
// Text that is not a single JSON object returns an error wrapping ErrMalformed.
func (c *Codec) Decode(text string) (value.Object, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber() // keep integers exact

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after snapshot", ErrMalformed)
	}

	root, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: root is %T, want object", ErrMalformed, raw)
	}
	return c.reviveObject(root), nil
}

func (c *Codec) reviveObject(m map[string]any) value.Object {
	obj := make(value.Object, len(m))
	for k, elem := range m {
		obj[k] = c.revive(k, elem)
	}
	return obj
}

// revive converts a decoded JSON value found under field into a Value.
// Array elements carry no field name.
func (c *Codec) revive(field string, raw any) value.Value {
	switch val := raw.(type) {
	case nil:
		return value.Null{}
	case bool:
		return value.Bool(val)
	case string:
		if _, ok := c.temporal[field]; ok {
			if t, ok := value.ParseTime(val); ok {
				return value.Temporal(t)
			}
		}
		return value.String(val)
	case json.Number:
		return number(val)
	case []any:
		if field == c.setField {
			if set, ok := stringSet(val); ok {
				return set
			}
		}
		arr := make(value.Array, len(val))
		for i, elem := range val {
			arr[i] = c.revive("", elem)
		}
		return arr
	case map[string]any:
		return c.reviveObject(val)
	default:
		// encoding/json produces nothing else
		return value.Opaque{V: raw}
	}
}

func number(n json.Number) value.Value {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return value.Int(i)
		}
	}
	f, _ := n.Float64() // out-of-range literals saturate to ±Inf
	return value.Float(f)
}

func stringSet(elems []any) (value.StringSet, bool) {
	set := make(value.StringSet, len(elems))
	for _, elem := range elems {
		s, ok := elem.(string)
		if !ok {
			return nil, false
		}
		set[s] = struct{}{}
	}
	return set, true
}
