package index

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	pkgerrors "annie/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphConfigFrom(t *testing.T) {
	cfg := graphConfigFrom(map[string]any{
		"M":           float64(32),
		"efSearch":    100,
		"maxElements": int64(500),
	})
	assert.Equal(t, GraphConfig{M: 32, EfSearch: 100, Capacity: 500}, cfg)

	cfg = graphConfigFrom(map[string]any{"M": "lots", "efSearch": -3})
	assert.Equal(t, GraphConfig{M: DEFAULT_M, EfSearch: DEFAULT_EF_SEARCH, Capacity: DEFAULT_MAX_ELEMENTS}, cfg)

	assert.Equal(t, DEFAULT_M, graphConfigFrom(nil).M)
}

func TestGraphIndex(t *testing.T) {
	config := &IndexConfig{
		IndexType: HNSWIndex,
		Dimension: 3,
		SpaceType: EuclideanSpace,
		Parameters: map[string]any{
			"M":           16,
			"efSearch":    50,
			"maxElements": 1000,
		},
	}

	b, err := New(config)
	require.NoError(t, err)
	index := b.(*GraphIndex)

	id, err := index.Insert([]float32{1.0, 2.0, 3.0})
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)

	vectors := [][]float32{
		{4.0, 5.0, 6.0},
		{7.0, 8.0, 9.0},
		{10.0, 11.0, 12.0},
	}
	require.NoError(t, index.Add(vectors, []int64{200, 300, 400}))
	assert.Equal(t, 4, index.Len())
	require.NoError(t, index.Build())

	queryVector := []float32{1.1, 2.1, 3.1}
	result, err := index.Search(queryVector, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 200}, result.IDs)
	assert.InDelta(t, Euclidean(queryVector, []float32{1, 2, 3}), result.Distances[0], 1e-5)

	assert.Equal(t, 1, index.Remove([]int64{0}))
	assert.Equal(t, 0, index.Remove([]int64{0}))
	assert.Equal(t, 3, index.Len())

	result, err = index.Search(queryVector, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, result.IDs)

	info := index.Info()
	assert.Equal(t, HNSWIndex, info.IndexType)
	assert.Equal(t, 3, info.Count)
}

func TestGraphIndexInvalidInputs(t *testing.T) {
	config := &IndexConfig{IndexType: HNSWIndex, Dimension: -1, SpaceType: EuclideanSpace}
	index, err := New(config)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidDimension))
	assert.Nil(t, index)

	config.Dimension = 3
	index, err = New(config)
	require.NoError(t, err)
	g := index.(*GraphIndex)

	_, err = g.Insert([]float32{1.0, 2.0})
	assert.True(t, errors.Is(err, pkgerrors.ErrDimensionMismatch))

	err = g.Add([][]float32{{1.0, 2.0, 3.0}}, []int64{1, 2})
	assert.True(t, errors.Is(err, pkgerrors.ErrInputMismatch))

	err = g.Add([][]float32{{1.0, 2.0, 3.0}, {1.0}}, []int64{1, 2})
	assert.True(t, errors.Is(err, pkgerrors.ErrDimensionMismatch))
	assert.Equal(t, 0, g.Len())

	_, err = g.Search([]float32{1.0}, 1)
	assert.True(t, errors.Is(err, pkgerrors.ErrDimensionMismatch))

	res, err := g.Search([]float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())
}

func TestGraphIndexCapacity(t *testing.T) {
	g, err := NewGraphIndex(2, Metric{Space: EuclideanSpace}, GraphConfig{M: 4, EfSearch: 10, Capacity: 2})
	require.NoError(t, err)

	require.NoError(t, g.Add([][]float32{{0, 0}}, []int64{1}))
	err = g.Add([][]float32{{1, 1}, {2, 2}}, []int64{2, 3})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidParameter))
	assert.Equal(t, 1, g.Len())

	_, err = g.Insert([]float32{1, 1})
	require.NoError(t, err)
	_, err = g.Insert([]float32{2, 2})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidParameter))
}

func TestGraphIndexInsertBatch(t *testing.T) {
	g, err := NewGraphIndex(2, Metric{Space: EuclideanSpace}, GraphConfig{M: 4, EfSearch: 10, Capacity: 3})
	require.NoError(t, err)

	ids, err := g.InsertBatch([][]float32{{0, 0}, {1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, ids)

	_, err = g.InsertBatch([][]float32{{2, 2}, {3, 3}})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidParameter))
	_, err = g.InsertBatch([][]float32{{2}})
	assert.True(t, errors.Is(err, pkgerrors.ErrDimensionMismatch))
	assert.Equal(t, 2, g.Len())

	res, err := g.Search([]float32{1, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, res.IDs)
}

func TestGraphIndexPersistenceNotImplemented(t *testing.T) {
	g, err := NewGraphIndex(2, Metric{Space: CosineSpace}, GraphConfig{M: 4, EfSearch: 10, Capacity: 10})
	require.NoError(t, err)
	_, err = g.Insert([]float32{1, 0})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph")
	assert.True(t, errors.Is(g.Save(path), pkgerrors.ErrNotImplemented))
	assert.True(t, errors.Is(g.Load(path), pkgerrors.ErrNotImplemented))

	_, err = os.Stat(path + SnapshotSuffix)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, g.Len())
}

func TestGraphIndexCustomMetric(t *testing.T) {
	g, err := NewGraphIndex(4, Metric{Space: ManhattanSpace}, GraphConfig{M: 8, EfSearch: 64, Capacity: 200})
	require.NoError(t, err)

	r := rand.New(rand.NewSource(3))
	vecs := randomVectors(r, 100, 4)
	ids := make([]int64, len(vecs))
	for i := range ids {
		ids[i] = int64(1000 + i)
	}
	require.NoError(t, g.Add(vecs, ids))

	// a stored vector finds itself at distance zero
	res, err := g.Search(vecs[42], 5)
	require.NoError(t, err)
	require.NotEmpty(t, res.IDs)
	assert.Equal(t, int64(1042), res.IDs[0])
	assert.InDelta(t, 0, res.Distances[0], 1e-6)
	for i := 1; i < res.Len(); i++ {
		assert.LessOrEqual(t, res.Distances[i-1], res.Distances[i])
	}
}

func TestFactoryUnsupportedType(t *testing.T) {
	_, err := New(&IndexConfig{IndexType: "ivf", Dimension: 4})
	assert.True(t, errors.Is(err, pkgerrors.ErrUnsupportedIndexType))

	_, err = New(nil)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidParameter))

	b, err := New(&IndexConfig{Dimension: 4, MinkowskiP: 2.5})
	require.NoError(t, err)
	assert.Equal(t, Metric{Space: MinkowskiSpace, P: 2.5}, b.(*FlatIndex).Metric())

	_, err = New(&IndexConfig{IndexType: HNSWIndex, Dimension: 4, MinkowskiP: float32(math.NaN())})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidParameter))
	_, err = New(&IndexConfig{IndexType: FLATIndex, Dimension: 4, MinkowskiP: float32(math.NaN())})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidParameter))

	assert.True(t, Persistent(FLATIndex))
	assert.False(t, Persistent(HNSWIndex))
}
