// Package value defines the closed set of value kinds a profile snapshot may hold.
//
// Every value entering the codec is first classified into exactly one variant:
//   - Null, String, Int, Float, Bool: JSON primitives
//   - Temporal: a point in time
//   - StringSet: membership-only collection of strings
//   - Array, Object: plain composites
//   - Opaque: anything else; never written to storage
//
// Classification is an explicit type switch over known Go types. Values are never
// probed for incidental methods at runtime.
//
// This package imports nothing internal.
package value
