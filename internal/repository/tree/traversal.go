package tree

import (
	"errors"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/treestore"
)

const (
	// Depth is the number of discriminator levels above a leaf collection.
	Depth = 4

	// LeafKey names the leaf collection under the last discriminator level.
	LeafKey = "exercises"
)

// entry is one record found in a leaf collection.
type entry struct {
	path domain.Discriminators
	// key is the record's key in a keyed collection; empty for list entries.
	key string
	// index is the position in a list collection; -1 for keyed entries.
	index int
	node  map[string]any
}

func (e entry) location() domain.Location {
	return domain.Location{Path: e.path, Key: e.key, Index: e.index}
}

// errStopWalk ends a walk early without reporting an error.
var errStopWalk = errors.New("stop walk")

type visitFunc func(e entry) error

// walk calls visit for every leaf entry of root, descending depth object
// levels in key order before enumerating the leaf collection. Keyed
// collections are visited in key order and lists in index order. Anything
// that is not an object is skipped.
func walk(root any, depth int, visit visitFunc) error {
	err := descend(root, make([]string, 0, depth), depth, visit)
	if errors.Is(err, errStopWalk) {
		return nil
	}
	return err
}

func descend(node any, prefix []string, depth int, visit visitFunc) error {
	m, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	if len(prefix) == depth {
		return visitLeaves(m[LeafKey], domain.DiscriminatorsFromSegments(prefix), visit)
	}
	for _, k := range treestore.SortedKeys(m) {
		if err := descend(m[k], append(prefix, k), depth, visit); err != nil {
			return err
		}
	}
	return nil
}

func visitLeaves(collection any, path domain.Discriminators, visit visitFunc) error {
	switch c := collection.(type) {
	case map[string]any:
		for _, k := range treestore.SortedKeys(c) {
			node, ok := c[k].(map[string]any)
			if !ok {
				continue
			}
			if err := visit(entry{path: path, key: k, index: -1, node: node}); err != nil {
				return err
			}
		}
	case []any:
		for i, v := range c {
			node, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if err := visit(entry{path: path, index: i, node: node}); err != nil {
				return err
			}
		}
	}
	return nil
}
