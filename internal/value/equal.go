package value

// Equal reports whether two values are field-wise equal.
//
// Temporal values compare by instant, StringSets by membership, Arrays
// element by element and Objects key by key. Int and Float compare by
// numeric value. Equal does not terminate on cyclic inputs.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return float64(av) == float64(bv)
		}
		return false
	case Float:
		switch bv := b.(type) {
		case Float:
			return av == bv
		case Int:
			return float64(av) == float64(bv)
		}
		return false
	case Temporal:
		bv, ok := b.(Temporal)
		return ok && av.Time().Equal(bv.Time())
	case StringSet:
		bv, ok := b.(StringSet)
		if !ok || len(av) != len(bv) {
			return false
		}
		for m := range av {
			if !bv.Has(m) {
				return false
			}
		}
		return true
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, ok := bv[k]
			if !ok || !Equal(elem, other) {
				return false
			}
		}
		return true
	case Opaque:
		// Opaque values have no comparable shape.
		return false
	}
	return false
}
