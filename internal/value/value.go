package value

import (
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface over the encodable value kinds.
// Only the types in this file implement it.
type Value interface {
	value() // Sealed
}

// Null represents a JSON null.
type Null struct{}

func (Null) value() {}

// String represents a string value.
type String string

func (String) value() {}

// Int represents an integral number.
type Int int64

func (Int) value() {}

// Float represents a non-integral number.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Temporal represents a point in time.
// Compare with Equal, never with ==, so that locations do not matter.
type Temporal time.Time

func (Temporal) value() {}

// Time returns the underlying time.Time.
func (t Temporal) Time() time.Time {
	return time.Time(t)
}

// NewTemporal wraps a time.Time.
func NewTemporal(t time.Time) Temporal {
	return Temporal(t)
}

// StringSet is an unordered collection of unique strings.
type StringSet map[string]struct{}

func (StringSet) value() {}

// NewStringSet creates a set holding the given members. Duplicates collapse.
func NewStringSet(members ...string) StringSet {
	s := make(StringSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Add inserts a member.
func (s StringSet) Add(member string) {
	s[member] = struct{}{}
}

// Remove deletes a member. Removing an absent member is a no-op.
func (s StringSet) Remove(member string) {
	delete(s, member)
}

// Has reports whether member is in the set.
func (s StringSet) Has(member string) bool {
	_, ok := s[member]
	return ok
}

// Members returns the members in ascending order.
func (s StringSet) Members() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) value() {}

// Object represents a plain key to value mapping.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Opaque wraps a value of a kind the codec does not recognise.
// It exists so that classification is total; the codec omits it.
type Opaque struct {
	V any
}

func (Opaque) value() {}

// Pair is a key-value pair for Object construction.
type Pair struct {
	Key   string
	Value Value
}

// O is a shorthand for Pair.
// Example: NewObject(O("id", String("abc")), O("urgeIndex", Int(0)))
func O(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// NewObject creates an Object from pairs. Later pairs win on duplicate keys.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// NewArray creates an Array from values.
func NewArray(vals ...Value) Array {
	if vals == nil {
		return Array{}
	}
	return Array(vals)
}

// SortedKeys returns keys ordered by UTF-16 code units, the order JSON
// canonicalisation (RFC 8785) uses. Go's string order is UTF-8 and differs
// outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
