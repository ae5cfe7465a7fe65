// Package snapshot takes deep copies of values handed across API boundaries, so that
// callers never share mutable state with a loaded configuration.
package snapshot

import (
	"github.com/pkg/errors"
	"github.com/tiendc/go-deepcopy"
)

// Copy returns a deep copy of *src. Slices, maps and pointers are copied recursively.
// A nil src yields (nil, nil).
func Copy[T any](src *T) (*T, error) {
	if src == nil {
		return nil, nil
	}

	var dst T
	if err := deepcopy.Copy(&dst, src); err != nil {
		return nil, errors.Wrapf(err, "failed to deep copy type %T", src)
	}
	return &dst, nil
}

// MustCopy is Copy for values that are always copyable, such as option structs built
// from plain fields. It panics if the copy fails.
//
//	settings := *snapshot.MustCopy(&opts)
func MustCopy[T any](src *T) *T {
	result, err := Copy(src)
	if err != nil {
		panic("failed to create immutable snapshot: " + err.Error())
	}
	return result
}

// Slice returns a deep copy of src. The copy of an empty or nil slice is an empty,
// non-nil slice, which serializes as [] rather than null.
func Slice[T any](src []T) []T {
	dst := make([]T, 0, len(src))
	if len(src) == 0 {
		return dst
	}
	if err := deepcopy.Copy(&dst, src); err != nil {
		panic("failed to create immutable snapshot: " + err.Error())
	}
	return dst
}
