package index

import (
	"fmt"
	"sync"
	"sync/atomic"

	pkgerrors "annie/pkg/errors"
)

// GuardedIndex serializes writers and lets readers run concurrently over one
// Backend. Add, Remove, Insert, InsertBatch, Build and Load take the
// exclusive lock; every other operation takes the shared lock.
//
// A *GuardedIndex is meant to be shared: every holder sees the same backend.
type GuardedIndex struct {
	mu         sync.RWMutex
	backend    Backend
	generation atomic.Uint64
}

// NewGuardedIndex wraps b. b must not be used directly afterwards.
func NewGuardedIndex(b Backend) *GuardedIndex {
	return &GuardedIndex{backend: b}
}

// LoadGuardedFlatIndex restores a flat index from path + SnapshotSuffix and guards it.
func LoadGuardedFlatIndex(path string) (*GuardedIndex, error) {
	f, err := LoadFlatIndex(path)
	if err != nil {
		return nil, err
	}
	return NewGuardedIndex(f), nil
}

// Generation increases after every successful mutation.
func (g *GuardedIndex) Generation() uint64 { return g.generation.Load() }

func (g *GuardedIndex) write(op string, fn func() error) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer recoverInto(op, &err)
	if err = fn(); err == nil {
		g.generation.Add(1)
	}
	return err
}

func (g *GuardedIndex) read(op string, fn func() error) (err error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	defer recoverInto(op, &err)
	return fn()
}

// recoverInto turns a panic raised while the lock is held into an error.
// The deferred unlock still runs, so the index stays usable.
func recoverInto(op string, err *error) {
	if r := recover(); r != nil {
		*err = pkgerrors.Storage(op, fmt.Errorf("panic: %v", r))
	}
}

func (g *GuardedIndex) Add(vectors [][]float32, ids []int64) error {
	return g.write("add", func() error {
		m, ok := g.backend.(Mutator)
		if !ok {
			return notImplemented("add")
		}
		return m.Add(vectors, ids)
	})
}

// Remove returns the number of entries dropped.
func (g *GuardedIndex) Remove(ids []int64) (int, error) {
	var n int
	err := g.write("remove", func() error {
		m, ok := g.backend.(Mutator)
		if !ok {
			return notImplemented("remove")
		}
		n = m.Remove(ids)
		return nil
	})
	return n, err
}

func (g *GuardedIndex) Insert(vector []float32) (int64, error) {
	var id int64
	err := g.write("insert", func() error {
		var err error
		id, err = g.backend.Insert(vector)
		return err
	})
	return id, err
}

// InsertBatch inserts every vector under one exclusive lock, so readers see
// either none or all of them. Backends without a BatchInserter are checked
// for dimension up front and then fed one Insert at a time.
func (g *GuardedIndex) InsertBatch(vectors [][]float32) ([]int64, error) {
	var ids []int64
	err := g.write("insert", func() error {
		if bi, ok := g.backend.(BatchInserter); ok {
			var err error
			ids, err = bi.InsertBatch(vectors)
			return err
		}
		if err := checkRows(g.backend.Dim(), vectors); err != nil {
			return pkgerrors.Wrap("insert", err)
		}
		ids = make([]int64, 0, len(vectors))
		for _, v := range vectors {
			id, err := g.backend.Insert(v)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (g *GuardedIndex) Build() error {
	return g.write("build", g.backend.Build)
}

func (g *GuardedIndex) Load(path string) error {
	return g.write("restore", func() error { return g.backend.Load(path) })
}

func (g *GuardedIndex) Search(vector []float32, k int) (*SearchResult, error) {
	var res *SearchResult
	err := g.read("search", func() error {
		var err error
		res, err = g.backend.Search(vector, k)
		return err
	})
	return res, err
}

func (g *GuardedIndex) SearchBatch(queries [][]float32, k int) (*BatchResult, error) {
	var res *BatchResult
	err := g.read("search_batch", func() error {
		var err error
		res, err = SearchBatch(g.backend, queries, k)
		return err
	})
	return res, err
}

func (g *GuardedIndex) SearchFiltered(vector []float32, k int, allow Predicate) (*SearchResult, error) {
	var res *SearchResult
	err := g.read("search_filtered", func() error {
		fs, ok := g.backend.(FilteredSearcher)
		if !ok {
			return notImplemented("search_filtered")
		}
		var err error
		res, err = fs.SearchFiltered(vector, k, allow)
		return err
	})
	return res, err
}

func (g *GuardedIndex) Save(path string) error {
	return g.read("save", func() error { return g.backend.Save(path) })
}

func (g *GuardedIndex) Dim() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.backend.Dim()
}

func (g *GuardedIndex) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.backend.Len()
}

// Info reports the backend configuration. Backends without a Describer
// report only dimension and count.
func (g *GuardedIndex) Info() Info {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if d, ok := g.backend.(Describer); ok {
		return d.Info()
	}
	return Info{Dimension: g.backend.Dim(), Count: g.backend.Len()}
}

func (g *GuardedIndex) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.backend.Close()
}

func notImplemented(op string) error {
	return pkgerrors.Wrap(op, fmt.Errorf("%w: backend does not support %s", pkgerrors.ErrNotImplemented, op))
}
