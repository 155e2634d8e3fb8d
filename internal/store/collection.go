package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Record is a stored value that can deep-copy itself, so the table never
// shares pointer fields with callers.
type Record[T any] interface {
	Clone() T
}

// Collection is an in-memory table of T backed by a single JSON file. All
// mutations happen under one lock and are written through to disk before
// the call returns, so a reader in the same process always sees the last
// successful write.
type Collection[T Record[T]] struct {
	mu    sync.RWMutex
	path  string
	idOf  func(T) string
	items []T
}

// OpenCollection loads the collection at path, creating the directory and an
// empty array file when nothing exists yet.
func OpenCollection[T Record[T]](path string, idOf func(T) string) (*Collection[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	c := &Collection[T]{path: path, idOf: idOf, items: []T{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := c.flush(c.items); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &c.items); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if c.items == nil {
		c.items = []T{}
	}
	return c, nil
}

func (c *Collection[T]) List() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	for i, it := range c.items {
		out[i] = it.Clone()
	}
	return out
}

// Find returns the first record matching pred.
func (c *Collection[T]) Find(pred func(T) bool) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if pred(it) {
			return it.Clone(), true
		}
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) Filter(pred func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0)
	for _, it := range c.items {
		if pred(it) {
			out = append(out, it.Clone())
		}
	}
	return out
}

// Insert appends rec. It fails with ErrDuplicate when a record with the same
// id exists or when any of the conflict predicates match an existing record.
func (c *Collection[T]) Insert(rec T, conflicts ...func(T) bool) error {
	id := c.idOf(rec)
	return c.apply(func(items []T) ([]T, error) {
		for _, it := range items {
			if c.idOf(it) == id {
				return nil, fmt.Errorf("id %s: %w", id, ErrDuplicate)
			}
			for _, conflict := range conflicts {
				if conflict(it) {
					return nil, ErrDuplicate
				}
			}
		}
		return append(items, rec.Clone()), nil
	})
}

// Update applies mutate to the record with the given id and returns the
// stored result.
func (c *Collection[T]) Update(id string, mutate func(*T)) (T, error) {
	var updated T
	err := c.apply(func(items []T) ([]T, error) {
		i := c.index(items, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		next := items[i].Clone()
		mutate(&next)
		items[i] = next
		updated = next.Clone()
		return items, nil
	})
	return updated, err
}

func (c *Collection[T]) Delete(id string) (T, error) {
	var removed T
	err := c.apply(func(items []T) ([]T, error) {
		i := c.index(items, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		removed = items[i]
		return slices.Delete(items, i, i+1), nil
	})
	return removed, err
}

func (c *Collection[T]) index(items []T, id string) int {
	return slices.IndexFunc(items, func(it T) bool { return c.idOf(it) == id })
}

// apply runs fn on a copy of the table and only swaps it in once the new
// state is on disk.
func (c *Collection[T]) apply(fn func(items []T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fn(slices.Clone(c.items))
	if err != nil {
		return err
	}
	if err := c.flush(next); err != nil {
		return err
	}
	c.items = next
	return nil
}

func (c *Collection[T]) flush(items []T) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", c.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", c.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", c.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", c.path, err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace %s: %w", c.path, err)
	}
	return nil
}
