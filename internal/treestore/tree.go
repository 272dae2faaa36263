package treestore

import (
	"fmt"
	"sort"
	"strconv"
)

// Lookup returns the node at p below node, or nil when it is absent.
// Numeric keys index into list nodes.
func Lookup(node any, p Path) any {
	cur := node
	for _, k := range p {
		switch n := cur.(type) {
		case map[string]any:
			v, ok := n[k]
			if !ok {
				return nil
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(n) {
				return nil
			}
			cur = n[i]
		default:
			return nil
		}
	}
	return cur
}

// Assign sets the node at p below root to v and returns the new root.
// Missing or scalar intermediate nodes are replaced by objects; a nil v
// removes the node. root is modified in place where possible.
func Assign(root any, p Path, v any) (any, error) {
	if len(p) == 0 {
		return v, nil
	}
	k := p[0]

	switch n := root.(type) {
	case map[string]any:
		child, err := Assign(n[k], p[1:], v)
		if err != nil {
			return nil, err
		}
		if child == nil {
			delete(n, k)
		} else {
			n[k] = child
		}
		return n, nil

	case []any:
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(n) {
			return nil, fmt.Errorf("%w: %q is not an index of a %d element list", ErrInvalidPath, k, len(n))
		}
		child, err := Assign(n[i], p[1:], v)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return append(n[:i:i], n[i+1:]...), nil
		}
		n[i] = child
		return n, nil

	default:
		if v == nil {
			// nothing to remove below a scalar or an absent node
			return root, nil
		}
		child, err := Assign(nil, p[1:], v)
		if err != nil {
			return nil, err
		}
		return map[string]any{k: child}, nil
	}
}

// Clone deep-copies a tree value, normalizing typed containers to
// map[string]any and []any. Nil object members are dropped.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			if c == nil {
				continue
			}
			out[k] = Clone(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = Clone(c)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = Clone(c)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = c
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = c
		}
		return out
	default:
		return v
	}
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Explode splits the value written at p into the subtrees found at the given
// absolute depth. Backends that store one unit per partition path use it for
// writes above the partition depth. Anything but an object above that depth
// cannot be represented and yields ErrInvalidPath.
func Explode(p Path, v any, depth int) ([]Update, error) {
	if v == nil {
		return nil, nil
	}
	if len(p) >= depth {
		return []Update{{Path: p, Value: v}}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: cannot store a %T at %q above partition depth %d", ErrInvalidPath, v, p, depth)
	}
	var out []Update
	for _, k := range SortedKeys(m) {
		if err := ValidateKey(k); err != nil {
			return nil, err
		}
		sub, err := Explode(p.Child(k), m[k], depth)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}
