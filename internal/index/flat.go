package index

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"

	pkgerrors "annie/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// entry is one stored vector. It is never modified after insertion.
type entry struct {
	id     int64
	vector []float32
	norm   float32 // squared L2 norm of vector
}

func newEntry(id int64, vector []float32) entry {
	v := slices.Clone(vector)
	return entry{id: id, vector: v, norm: SquaredNorm(v)}
}

// hit is a scored candidate produced by a scan.
type hit struct {
	id   int64
	dist float32
}

// FlatIndex is an exact index: every query scans all entries in parallel and
// ranks them by distance. Entries keep insertion order and duplicate ids are
// stored as separate entries.
//
// FlatIndex is not safe for concurrent mutation; wrap it in a GuardedIndex
// when writers and readers share it.
type FlatIndex struct {
	dim     int
	metric  Metric
	entries []entry
	nextID  int64 // next id handed out by Insert
}

// NewFlatIndex creates an exact index over vectors of length dim.
func NewFlatIndex(dim int, space SpaceType) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, pkgerrors.Wrap("new", fmt.Errorf("%w: %d", pkgerrors.ErrInvalidDimension, dim))
	}
	metric, err := NewMetric(space, 0)
	if err != nil {
		return nil, pkgerrors.Wrap("new", err)
	}
	return &FlatIndex{dim: dim, metric: metric}, nil
}

// NewMinkowskiFlatIndex creates an exact index ranking by Minkowski-p distance.
func NewMinkowskiFlatIndex(dim int, p float32) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, pkgerrors.Wrap("new", fmt.Errorf("%w: %d", pkgerrors.ErrInvalidDimension, dim))
	}
	if !(p > 0) {
		return nil, pkgerrors.Wrap("new", fmt.Errorf("%w: minkowski p must be > 0, got %v", pkgerrors.ErrInvalidParameter, p))
	}
	return &FlatIndex{dim: dim, metric: Metric{Space: MinkowskiSpace, P: p}}, nil
}

func newFlatIndex(config *IndexConfig) (Backend, error) {
	var (
		f   *FlatIndex
		err error
	)
	if config.MinkowskiP != 0 || config.SpaceType == MinkowskiSpace {
		f, err = NewMinkowskiFlatIndex(config.Dimension, config.MinkowskiP)
	} else {
		f, err = NewFlatIndex(config.Dimension, config.SpaceType)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Add appends one entry per (vector, id) pair. The batch is validated as a
// whole first; on error nothing is inserted.
func (f *FlatIndex) Add(vectors [][]float32, ids []int64) error {
	if len(vectors) != len(ids) {
		return pkgerrors.Wrap("add", fmt.Errorf("%w: %d vectors, %d ids", pkgerrors.ErrInputMismatch, len(vectors), len(ids)))
	}
	if err := checkRows(f.dim, vectors); err != nil {
		return pkgerrors.Wrap("add", err)
	}

	f.entries = slices.Grow(f.entries, len(vectors))
	for i, v := range vectors {
		f.entries = append(f.entries, newEntry(ids[i], v))
		if ids[i] >= f.nextID && ids[i] < math.MaxInt64 {
			f.nextID = ids[i] + 1
		}
	}
	return nil
}

// Insert adds vector under the next free id and returns that id.
func (f *FlatIndex) Insert(vector []float32) (int64, error) {
	id := f.nextID
	if err := f.Add([][]float32{vector}, []int64{id}); err != nil {
		return 0, err
	}
	return id, nil
}

// InsertBatch adds vectors under consecutive fresh ids and returns them.
func (f *FlatIndex) InsertBatch(vectors [][]float32) ([]int64, error) {
	ids := make([]int64, len(vectors))
	for i := range ids {
		ids[i] = f.nextID + int64(i)
	}
	if err := f.Add(vectors, ids); err != nil {
		return nil, pkgerrors.Wrap("insert", errors.Unwrap(err))
	}
	return ids, nil
}

// Remove deletes every entry whose id is in ids and returns how many were dropped.
// Unknown ids are ignored.
func (f *FlatIndex) Remove(ids []int64) int {
	if len(ids) == 0 || len(f.entries) == 0 {
		return 0
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	before := len(f.entries)
	f.entries = slices.DeleteFunc(f.entries, func(e entry) bool {
		_, ok := drop[e.id]
		return ok
	})
	return before - len(f.entries)
}

// Build is a no-op: results always reflect the current entries.
func (f *FlatIndex) Build() error { return nil }

// Search returns the k entries nearest to vector, nearest first. Fewer than k
// results come back when the index holds fewer entries.
func (f *FlatIndex) Search(vector []float32, k int) (*SearchResult, error) {
	return f.search("search", vector, k, nil)
}

// SearchFiltered ranks only entries whose id passes allow. A nil allow accepts everything.
func (f *FlatIndex) SearchFiltered(vector []float32, k int, allow Predicate) (*SearchResult, error) {
	return f.search("search_filtered", vector, k, allow)
}

// SearchBatch runs Search for every row of queries in parallel and packs the
// answers into a rectangular len(queries) x k result.
func (f *FlatIndex) SearchBatch(queries [][]float32, k int) (*BatchResult, error) {
	return searchBatch(f.dim, len(f.entries), queries, k, func(q []float32) (*SearchResult, error) {
		return f.search("search_batch", q, k, nil)
	})
}

func (f *FlatIndex) search(op string, q []float32, k int, allow Predicate) (*SearchResult, error) {
	if len(q) != f.dim {
		return nil, pkgerrors.Wrap(op, pkgerrors.NewDimensionError(f.dim, len(q)))
	}
	if k < 0 {
		return nil, pkgerrors.Wrap(op, fmt.Errorf("%w: k must be >= 0, got %d", pkgerrors.ErrInvalidParameter, k))
	}
	if k == 0 {
		return &SearchResult{IDs: []int64{}, Distances: []float32{}}, nil
	}
	hits, err := f.scan(op, q, allow)
	if err != nil {
		return nil, err
	}
	return rank(hits, k), nil
}

// scan scores every admitted entry against q. Chunks run on separate
// goroutines and are concatenated in insertion order. A panic in allow is
// returned as an error wrapping ErrStorage whichever goroutine raised it.
func (f *FlatIndex) scan(op string, q []float32, allow Predicate) ([]hit, error) {
	var qNorm float32
	if f.metric.usesNorms() {
		qNorm = SquaredNorm(q)
	}

	n := len(f.entries)
	chunks := scanChunks(n)
	size := (n + chunks - 1) / chunks
	parts := make([][]hit, chunks)

	scanChunk := func(c int) (err error) {
		defer recoverInto(op, &err)
		lo := c * size
		hi := min(lo+size, n)
		if lo >= hi {
			return nil
		}
		out := make([]hit, 0, hi-lo)
		for _, e := range f.entries[lo:hi] {
			if allow != nil && !allow(e.id) {
				continue
			}
			out = append(out, hit{id: e.id, dist: f.metric.distance(q, qNorm, e.vector, e.norm)})
		}
		parts[c] = out
		return nil
	}

	if chunks == 1 {
		if err := scanChunk(0); err != nil {
			return nil, err
		}
		return parts[0], nil
	}
	var g errgroup.Group
	for c := range chunks {
		g.Go(func() error { return scanChunk(c) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(parts...), nil
}

func scanChunks(n int) int {
	chunks := (n + minScanChunk - 1) / minScanChunk
	return max(1, min(chunks, runtime.GOMAXPROCS(0)))
}

// rank sorts hits by ascending distance and keeps the first k. The sort is
// stable, so equal distances keep insertion order.
func rank(hits []hit, k int) *SearchResult {
	slices.SortStableFunc(hits, func(a, b hit) int { return compareDistance(a.dist, b.dist) })
	if k < len(hits) {
		hits = hits[:k]
	}
	res := &SearchResult{
		IDs:       make([]int64, len(hits)),
		Distances: make([]float32, len(hits)),
	}
	for i, h := range hits {
		res.IDs[i] = h.id
		res.Distances[i] = h.dist
	}
	return res
}

// compareDistance orders ascending with NaN after every number.
func compareDistance(a, b float32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	aNaN, bNaN := a != a, b != b
	switch {
	case aNaN && !bNaN:
		return 1
	case !aNaN && bNaN:
		return -1
	}
	return 0
}

// checkRows reports every row whose length differs from dim.
func checkRows(dim int, rows [][]float32) error {
	var errs []error
	for i, v := range rows {
		if len(v) != dim {
			errs = append(errs, &pkgerrors.DimensionError{Expected: dim, Actual: len(v), Row: i})
		}
	}
	return errors.Join(errs...)
}

// Save writes a snapshot to path + SnapshotSuffix.
func (f *FlatIndex) Save(path string) error {
	return writeSnapshot(path+SnapshotSuffix, f.snapshot())
}

// Load replaces dimension, metric and entries with the snapshot at path + SnapshotSuffix.
// The index is left untouched when the snapshot cannot be read.
func (f *FlatIndex) Load(path string) error {
	restored, err := LoadFlatIndex(path)
	if err != nil {
		return err
	}
	*f = *restored
	return nil
}

// LoadFlatIndex restores an index saved with Save.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	snap, err := readSnapshot(path + SnapshotSuffix)
	if err != nil {
		return nil, err
	}
	return snap.flatIndex()
}

func (f *FlatIndex) Dim() int { return f.dim }

func (f *FlatIndex) Len() int { return len(f.entries) }

// Metric returns the distance configuration.
func (f *FlatIndex) Metric() Metric { return f.metric }

func (f *FlatIndex) Info() Info {
	return Info{
		IndexType:  FLATIndex,
		SpaceType:  f.metric.Space,
		MinkowskiP: f.metric.P,
		Dimension:  f.dim,
		Count:      len(f.entries),
	}
}

// Close releases nothing; the entries are garbage collected with the index.
func (f *FlatIndex) Close() error { return nil }
