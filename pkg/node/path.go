package node

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrPathNotFound is returned when a path does not select any node of a tree.
var ErrPathNotFound = errors.New("path not found")

// SplitPath splits a "/"-separated path into its segments. Empty segments are dropped,
// so "a/b", "/a/b" and "a//b/" are the same path, and "" selects the root.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// Lookup walks the tree one segment at a time. A segment selects a key in a Mapping or,
// parsed as a decimal integer, an index in a Sequence. Any segment that selects nothing
// fails with ErrPathNotFound.
func (n *Node) Lookup(segments ...string) (*Node, error) {
	current := orNull(n)
	for i, segment := range segments {
		at := strings.Join(segments[:i+1], "/")
		switch current.Kind() {
		case Mapping:
			next, ok := current.pairs[segment]
			if !ok {
				return nil, errors.Wrapf(ErrPathNotFound, "no key %q at %q", segment, at)
			}
			current = next
		case Sequence:
			index, err := strconv.Atoi(segment)
			if err != nil {
				return nil, errors.Wrapf(ErrPathNotFound, "%q is not a sequence index at %q", segment, at)
			}
			next, ok := current.Index(index)
			if !ok {
				return nil, errors.Wrapf(ErrPathNotFound, "index %d out of range at %q", index, at)
			}
			current = next
		default:
			return nil, errors.Wrapf(ErrPathNotFound, "cannot descend into %s at %q", current.Kind(), at)
		}
	}
	return current, nil
}

// LookupPath is Lookup over a "/"-separated path.
func (n *Node) LookupPath(path string) (*Node, error) {
	return n.Lookup(SplitPath(path)...)
}
