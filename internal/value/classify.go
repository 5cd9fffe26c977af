package value

import (
	"math"
	"reflect"
	"time"
)

// Classify maps a Go value onto exactly one Value variant.
//
// Recognised inputs are the Value types themselves, Go primitives, time.Time,
// *time.Time, ServerTime, []string, []any, map[string]any and []map[string]any.
// Everything else becomes Opaque.
//
// Go maps and slices that reference themselves classify into Value graphs with
// the same shape, so cycles survive classification and are handled by the codec.
func Classify(v any) Value {
	c := classifier{seen: make(map[compositeKey]Value)}
	return c.classify(v)
}

// compositeKey identifies a Go map or slice by its backing storage.
type compositeKey struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

type classifier struct {
	seen map[compositeKey]Value
}

func (c *classifier) classify(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case Value:
		return val
	case string:
		return String(val)
	case bool:
		return Bool(val)
	case int:
		return Int(val)
	case int8:
		return Int(val)
	case int16:
		return Int(val)
	case int32:
		return Int(val)
	case int64:
		return Int(val)
	case uint:
		return uintValue(uint64(val))
	case uint8:
		return Int(val)
	case uint16:
		return Int(val)
	case uint32:
		return Int(val)
	case uint64:
		return uintValue(val)
	case float32:
		return floatValue(float64(val))
	case float64:
		return floatValue(val)
	case time.Time:
		return Temporal(val)
	case *time.Time:
		if val == nil {
			return Null{}
		}
		return Temporal(*val)
	case ServerTime:
		if !val.Resolved() {
			return Opaque{V: val}
		}
		return Temporal(val.At)
	case []string:
		arr := make(Array, len(val))
		for i, s := range val {
			arr[i] = String(s)
		}
		return arr
	case []any:
		return c.slice(val)
	case map[string]any:
		return c.goMap(val)
	case []map[string]any:
		arr := make(Array, len(val))
		for i, m := range val {
			arr[i] = c.goMap(m)
		}
		return arr
	default:
		return Opaque{V: v}
	}
}

func uintValue(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

// floatValue keeps integral floats integral so that numbers decoded by JSON
// libraries as float64 compare equal to their Int form.
func floatValue(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return Int(int64(f))
	}
	return Float(f)
}

func keyOf(v any) (compositeKey, bool) {
	rv := reflect.ValueOf(v)
	if rv.Len() == 0 {
		return compositeKey{}, false
	}
	return compositeKey{kind: rv.Kind(), ptr: rv.Pointer(), len: rv.Len()}, true
}

func (c *classifier) goMap(m map[string]any) Value {
	if m == nil {
		return Null{}
	}
	key, track := keyOf(m)
	if track {
		if done, ok := c.seen[key]; ok {
			return done
		}
	}
	obj := make(Object, len(m))
	if track {
		c.seen[key] = obj
	}
	for k, elem := range m {
		obj[k] = c.classify(elem)
	}
	return obj
}

func (c *classifier) slice(s []any) Value {
	key, track := keyOf(s)
	if track {
		if done, ok := c.seen[key]; ok {
			return done
		}
	}
	arr := make(Array, len(s))
	if track {
		c.seen[key] = arr
	}
	for i, elem := range s {
		arr[i] = c.classify(elem)
	}
	return arr
}
