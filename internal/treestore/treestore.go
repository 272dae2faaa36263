// Package treestore defines a path-addressed tree store: the only storage
// primitive the workout catalog is built on.
//
// A tree is a JSON-like value. Objects are map[string]any, legacy list nodes
// are []any, everything else is a scalar. A node is addressed by the keys on
// the way down from the root, written "a/b/c".
//
// Writing a nil value removes a node. Removing a node never prunes ancestors
// that become empty.
package treestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors shared by every backend.
var (
	// ErrInvalidPath is returned for malformed keys, overlapping multi-write
	// paths and writes a backend cannot represent at the given depth.
	ErrInvalidPath = errors.New("treestore: invalid path")

	// ErrConcurrentModification is returned when a backend with optimistic
	// locking detects that a node changed between its read and its write.
	ErrConcurrentModification = errors.New("treestore: node was modified concurrently")
)

// forbiddenKeyChars are not allowed inside a single key.
const forbiddenKeyChars = "/.#$[]"

// Store is the hierarchical store contract.
type Store interface {
	// Read returns the node at path, deep-copied. A nil node means absent.
	Read(ctx context.Context, path Path) (any, error)

	// Write replaces the node at path. Writing nil removes it.
	Write(ctx context.Context, path Path, value any) error

	// Merge sets each field as a child of path, leaving other children untouched.
	Merge(ctx context.Context, path Path, fields map[string]any) error

	// Remove deletes the node at path and everything below it.
	Remove(ctx context.Context, path Path) error

	// GenerateKey returns a new key for a child of parent. Keys are unique
	// across the whole store and sort in creation order.
	GenerateKey(ctx context.Context, parent Path) (string, error)

	// MultiWrite applies every "a/b/c" -> value update or none of them.
	// Nil values remove. Paths must not overlap.
	MultiWrite(ctx context.Context, updates map[string]any) error
}

// NewKey returns a time-ordered UUIDv7 string.
func NewKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return id.String(), nil
}

// ValidateKey checks that k can be used as a single path segment.
func ValidateKey(k string) error {
	if k == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidPath)
	}
	if strings.ContainsAny(k, forbiddenKeyChars) {
		return fmt.Errorf("%w: key %q contains one of %q", ErrInvalidPath, k, forbiddenKeyChars)
	}
	return nil
}

// Path is a sequence of keys from the root. The empty path is the root.
type Path []string

// ParsePath splits "a/b/c". Leading and trailing slashes are ignored and an
// empty string is the root.
func ParsePath(s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return Path{}, nil
	}
	p := Path(strings.Split(s, "/"))
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// MustParsePath is ParsePath for constant paths.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Validate checks every key of p.
func (p Path) Validate() error {
	for _, k := range p {
		if err := ValidateKey(k); err != nil {
			return err
		}
	}
	return nil
}

// Child returns a new path with keys appended. p is never modified.
func (p Path) Child(keys ...string) Path {
	out := make(Path, 0, len(p)+len(keys))
	out = append(out, p...)
	return append(out, keys...)
}

// Parent returns the path one level up. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[:len(p)-1 : len(p)-1]
}

// HasPrefix reports whether q is p or an ancestor of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Equal reports whether p and q address the same node.
func (p Path) Equal(q Path) bool {
	return len(p) == len(q) && p.HasPrefix(q)
}

// Update is one entry of a multi-path write.
type Update struct {
	Path  Path
	Value any
}

// ParseUpdates validates a MultiWrite argument and returns its entries sorted
// by path. Overlapping paths are rejected.
func ParseUpdates(updates map[string]any) ([]Update, error) {
	out := make([]Update, 0, len(updates))
	for raw, v := range updates {
		p, err := ParsePath(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Update{Path: p, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path.String() < out[j].Path.String()
	})
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[i].Path.HasPrefix(out[j].Path) || out[j].Path.HasPrefix(out[i].Path) {
				return nil, fmt.Errorf("%w: %q overlaps %q", ErrInvalidPath, out[i].Path, out[j].Path)
			}
		}
	}
	return out, nil
}

// MergeUpdates turns a Merge call into the equivalent update list.
func MergeUpdates(path Path, fields map[string]any) ([]Update, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}
	out := make([]Update, 0, len(fields))
	for k, v := range fields {
		if err := ValidateKey(k); err != nil {
			return nil, err
		}
		out = append(out, Update{Path: path.Child(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path.String() < out[j].Path.String()
	})
	return out, nil
}
