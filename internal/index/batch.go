package index

import (
	"fmt"
	"math"
	"runtime"

	pkgerrors "annie/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// BatchResult is a Rows x K matrix of ids and distances stored row-major.
// K is the requested k capped at the number of stored entries. Rows with
// fewer than K matches are padded with PadID and +Inf.
type BatchResult struct {
	Rows      int
	K         int
	IDs       []int64
	Distances []float32
}

// Row returns the ids and distances of row i, padding included.
func (b *BatchResult) Row(i int) ([]int64, []float32) {
	lo, hi := i*b.K, (i+1)*b.K
	return b.IDs[lo:hi], b.Distances[lo:hi]
}

// Matches returns row i without padding.
func (b *BatchResult) Matches(i int) *SearchResult {
	ids, dists := b.Row(i)
	n := len(ids)
	for n > 0 && ids[n-1] == PadID && math.IsInf(float64(dists[n-1]), 1) {
		n--
	}
	return &SearchResult{IDs: ids[:n], Distances: dists[:n]}
}

// SearchBatch answers every query with b.Search in parallel. Backends that
// implement BatchSearcher are asked directly.
func SearchBatch(b Backend, queries [][]float32, k int) (*BatchResult, error) {
	if bs, ok := b.(BatchSearcher); ok {
		return bs.SearchBatch(queries, k)
	}
	return searchBatch(b.Dim(), b.Len(), queries, k, func(q []float32) (*SearchResult, error) {
		return b.Search(q, k)
	})
}

func searchBatch(dim, count int, queries [][]float32, k int, search func(q []float32) (*SearchResult, error)) (*BatchResult, error) {
	if k < 0 {
		return nil, pkgerrors.Wrap("search_batch", fmt.Errorf("%w: k must be >= 0, got %d", pkgerrors.ErrInvalidParameter, k))
	}
	if err := checkRows(dim, queries); err != nil {
		return nil, pkgerrors.Wrap("search_batch", err)
	}

	rows := make([]*SearchResult, len(queries))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, q := range queries {
		g.Go(func() (err error) {
			defer recoverInto("search_batch", &err)
			rows[i], err = search(q)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// no row can hold more than count matches, so wider rows would be padding only
	return packRows(rows, min(k, count))
}

// packRows lays rows out as a len(rows) x k matrix, padding short rows.
func packRows(rows []*SearchResult, k int) (*BatchResult, error) {
	out := &BatchResult{
		Rows:      len(rows),
		K:         k,
		IDs:       make([]int64, 0, len(rows)*k),
		Distances: make([]float32, 0, len(rows)*k),
	}
	inf := float32(math.Inf(1))
	for i, r := range rows {
		if len(r.IDs) != len(r.Distances) || len(r.IDs) > k {
			return nil, pkgerrors.Wrap("search_batch", fmt.Errorf("%w: row %d has %d ids and %d distances for k=%d",
				pkgerrors.ErrReshape, i, len(r.IDs), len(r.Distances), k))
		}
		out.IDs = append(out.IDs, r.IDs...)
		out.Distances = append(out.Distances, r.Distances...)
		for range k - len(r.IDs) {
			out.IDs = append(out.IDs, PadID)
			out.Distances = append(out.Distances, inf)
		}
	}
	return out, nil
}
