package index

import (
	"fmt"
	"slices"

	pkgerrors "annie/pkg/errors"
	"annie/pkg/logger"

	"github.com/coder/hnsw"
)

// GraphConfig holds the parameters forwarded to the wrapped graph.
type GraphConfig struct {
	M        int
	EfSearch int
	Capacity int
}

func graphConfigFrom(params map[string]any) GraphConfig {
	return GraphConfig{
		M:        intParam(params, "M", DEFAULT_M),
		EfSearch: intParam(params, "efSearch", DEFAULT_EF_SEARCH),
		Capacity: intParam(params, "maxElements", DEFAULT_MAX_ELEMENTS),
	}
}

// intParam reads a positive integer parameter. JSON decodes numbers as
// float64, yaml and Go callers pass ints.
func intParam(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	var n int
	switch x := v.(type) {
	case float64:
		n = int(x)
	case int:
		n = x
	case int64:
		n = int(x)
	default:
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

// GraphIndex adapts an approximate HNSW graph to the Backend contract. The
// graph is keyed by dense internal ids; userIDs maps each internal id back
// to the caller id.
//
// GraphIndex is not safe for concurrent mutation.
type GraphIndex struct {
	graph   *hnsw.Graph[int]
	dim     int
	metric  Metric
	config  GraphConfig
	userIDs []int64
}

// NewGraphIndex creates an empty graph over vectors of length dim.
func NewGraphIndex(dim int, metric Metric, config GraphConfig) (*GraphIndex, error) {
	if dim <= 0 {
		return nil, pkgerrors.Wrap("new", fmt.Errorf("%w: %d", pkgerrors.ErrInvalidDimension, dim))
	}
	if config.M <= 0 || config.EfSearch <= 0 || config.Capacity <= 0 {
		return nil, pkgerrors.Wrap("new", fmt.Errorf("%w: graph config %+v", pkgerrors.ErrInvalidParameter, config))
	}

	return &GraphIndex{graph: newGraph(metric, config), dim: dim, metric: metric, config: config}, nil
}

func newGraph(metric Metric, config GraphConfig) *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = config.M
	g.EfSearch = config.EfSearch
	switch metric.Space {
	case EuclideanSpace:
		g.Distance = hnsw.EuclideanDistance
	case CosineSpace:
		g.Distance = hnsw.CosineDistance
	default:
		g.Distance = metric.Distance
	}
	return g
}

func newGraphIndex(config *IndexConfig) (Backend, error) {
	metric, err := NewMetric(config.SpaceType, config.MinkowskiP)
	if err != nil {
		return nil, pkgerrors.Wrap("new", err)
	}
	g, err := NewGraphIndex(config.Dimension, metric, graphConfigFrom(config.Parameters))
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Insert adds vector under its internal id and returns it.
func (g *GraphIndex) Insert(vector []float32) (int64, error) {
	if len(vector) != g.dim {
		return 0, pkgerrors.Wrap("insert", pkgerrors.NewDimensionError(g.dim, len(vector)))
	}
	if err := g.checkCapacity("insert", 1); err != nil {
		return 0, err
	}
	id := int64(len(g.userIDs))
	g.add(vector, id)
	return id, nil
}

// InsertBatch adds vectors under their internal ids. Dimension and capacity
// are checked for the whole batch first.
func (g *GraphIndex) InsertBatch(vectors [][]float32) ([]int64, error) {
	if err := checkRows(g.dim, vectors); err != nil {
		return nil, pkgerrors.Wrap("insert", err)
	}
	if err := g.checkCapacity("insert", len(vectors)); err != nil {
		return nil, err
	}
	ids := make([]int64, len(vectors))
	for i, v := range vectors {
		ids[i] = int64(len(g.userIDs))
		g.add(v, ids[i])
	}
	return ids, nil
}

// Add inserts vectors under caller-chosen ids. The batch is validated first.
func (g *GraphIndex) Add(vectors [][]float32, ids []int64) error {
	if len(vectors) != len(ids) {
		return pkgerrors.Wrap("add", fmt.Errorf("%w: %d vectors, %d ids", pkgerrors.ErrInputMismatch, len(vectors), len(ids)))
	}
	if err := checkRows(g.dim, vectors); err != nil {
		return pkgerrors.Wrap("add", err)
	}
	if err := g.checkCapacity("add", len(vectors)); err != nil {
		return err
	}
	for i, v := range vectors {
		g.add(v, ids[i])
	}
	return nil
}

func (g *GraphIndex) add(vector []float32, id int64) {
	key := len(g.userIDs)
	g.userIDs = append(g.userIDs, id)
	g.graph.Add(hnsw.MakeNode(key, slices.Clone(vector)))
}

// checkCapacity counts every internal id ever assigned, removed ones included,
// since the arena never reuses slots.
func (g *GraphIndex) checkCapacity(op string, n int) error {
	if len(g.userIDs)+n > g.config.Capacity {
		logger.Debug("Graph capacity reached", "capacity", g.config.Capacity, "requested", n)
		return pkgerrors.Wrap(op, fmt.Errorf("%w: graph capacity %d exceeded", pkgerrors.ErrInvalidParameter, g.config.Capacity))
	}
	return nil
}

// Remove deletes every node whose caller id is in ids.
func (g *GraphIndex) Remove(ids []int64) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	removed := 0
	for key, id := range g.userIDs {
		if _, ok := drop[id]; ok && g.graph.Delete(key) {
			removed++
		}
	}
	return removed
}

// Build is a no-op: the graph is updated on every insertion.
func (g *GraphIndex) Build() error { return nil }

// Search returns up to k approximate neighbours of vector, nearest first.
// Distances are recomputed with the index metric.
func (g *GraphIndex) Search(vector []float32, k int) (*SearchResult, error) {
	if len(vector) != g.dim {
		return nil, pkgerrors.Wrap("search", pkgerrors.NewDimensionError(g.dim, len(vector)))
	}
	if k < 0 {
		return nil, pkgerrors.Wrap("search", fmt.Errorf("%w: k must be >= 0, got %d", pkgerrors.ErrInvalidParameter, k))
	}
	if k == 0 || g.graph.Len() == 0 {
		return &SearchResult{IDs: []int64{}, Distances: []float32{}}, nil
	}

	nodes := g.graph.Search(vector, k)
	hits := make([]hit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, hit{id: g.userIDs[n.Key], dist: g.metric.Distance(vector, n.Value)})
	}
	return rank(hits, k), nil
}

// Save is not supported for graph indexes.
func (g *GraphIndex) Save(path string) error {
	return pkgerrors.Wrap("save", fmt.Errorf("%w: graph index persistence", pkgerrors.ErrNotImplemented))
}

// Load is not supported for graph indexes.
func (g *GraphIndex) Load(path string) error {
	return pkgerrors.Wrap("restore", fmt.Errorf("%w: graph index persistence", pkgerrors.ErrNotImplemented))
}

func (g *GraphIndex) Dim() int { return g.dim }

func (g *GraphIndex) Len() int { return g.graph.Len() }

func (g *GraphIndex) Info() Info {
	return Info{
		IndexType:  HNSWIndex,
		SpaceType:  g.metric.Space,
		MinkowskiP: g.metric.P,
		Dimension:  g.dim,
		Count:      g.graph.Len(),
	}
}

// Close drops every node.
func (g *GraphIndex) Close() error {
	g.graph = newGraph(g.metric, g.config)
	g.userIDs = nil
	return nil
}
