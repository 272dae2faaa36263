package treestore

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Values are deep-copied on the way in and on
// the way out so callers never share state with the tree.
type Memory struct {
	mu   sync.RWMutex
	root any
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryFrom creates an in-memory store seeded with a copy of root.
func NewMemoryFrom(root map[string]any) *Memory {
	return &Memory{root: Clone(root)}
}

func (m *Memory) Read(ctx context.Context, path Path) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := path.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Clone(Lookup(m.root, path)), nil
}

func (m *Memory) Write(ctx context.Context, path Path, value any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	return m.apply(ctx, []Update{{Path: path, Value: value}})
}

func (m *Memory) Merge(ctx context.Context, path Path, fields map[string]any) error {
	updates, err := MergeUpdates(path, fields)
	if err != nil {
		return err
	}
	return m.apply(ctx, updates)
}

func (m *Memory) Remove(ctx context.Context, path Path) error {
	return m.Write(ctx, path, nil)
}

func (m *Memory) GenerateKey(ctx context.Context, parent Path) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return NewKey()
}

func (m *Memory) MultiWrite(ctx context.Context, updates map[string]any) error {
	parsed, err := ParseUpdates(updates)
	if err != nil {
		return err
	}
	return m.apply(ctx, parsed)
}

// apply works on a copy of the tree and swaps it in only when every update
// succeeded.
func (m *Memory) apply(ctx context.Context, updates []Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := Clone(m.root)
	for _, u := range updates {
		var err error
		next, err = Assign(next, u.Path, Clone(u.Value))
		if err != nil {
			return err
		}
	}
	m.root = next
	return nil
}
