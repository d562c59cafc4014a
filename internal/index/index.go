package index

// SpaceType represents the distance metric type
type SpaceType string
type IndexType string

// IndexConfig represents index configuration
type IndexConfig struct {
	SpaceType SpaceType `json:"space_type" yaml:"space_type"`
	IndexType IndexType `json:"index_type" yaml:"index_type"`
	Dimension int       `json:"dimension" yaml:"dimension"`
	// MinkowskiP selects Minkowski-p distance when > 0, overriding SpaceType.
	MinkowskiP float32        `json:"minkowski_p,omitempty" yaml:"minkowski_p,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// SearchResult holds index-aligned ids and distances, nearest first.
type SearchResult struct {
	IDs       []int64
	Distances []float32
}

// Len returns the number of matches.
func (r *SearchResult) Len() int { return len(r.IDs) }

// Predicate decides whether the entry with the given id may appear in a
// filtered search. It is called from several goroutines at once and must not
// mutate shared state.
type Predicate func(id int64) bool

// Backend is the contract every index representation satisfies.
type Backend interface {
	// Insert adds one vector and returns the id assigned to it.
	Insert(vector []float32) (int64, error)

	// Build finalizes pending work. Backends that index incrementally treat it as a no-op.
	Build() error

	// Search returns the k nearest entries to vector.
	Search(vector []float32, k int) (*SearchResult, error)

	// Save writes the whole index state to path + SnapshotSuffix.
	Save(path string) error

	// Load replaces the index state with the snapshot at path + SnapshotSuffix.
	Load(path string) error

	// Dim returns the fixed vector dimension.
	Dim() int

	// Len returns the number of stored vectors.
	Len() int

	// Close releases resources held by the backend.
	Close() error
}

// Mutator is implemented by backends accepting caller-supplied ids and removal.
type Mutator interface {
	Add(vectors [][]float32, ids []int64) error
	Remove(ids []int64) int
}

// BatchInserter inserts several vectors under fresh ids. Every row is
// validated before any is stored, so a failed call changes nothing.
type BatchInserter interface {
	InsertBatch(vectors [][]float32) ([]int64, error)
}

// BatchSearcher answers several queries in one call.
type BatchSearcher interface {
	SearchBatch(queries [][]float32, k int) (*BatchResult, error)
}

// FilteredSearcher ranks only entries accepted by a Predicate.
type FilteredSearcher interface {
	SearchFiltered(vector []float32, k int, allow Predicate) (*SearchResult, error)
}

// Info describes an index for status reporting.
type Info struct {
	IndexType  IndexType `json:"index_type"`
	SpaceType  SpaceType `json:"space_type"`
	MinkowskiP float32   `json:"minkowski_p,omitempty"`
	Dimension  int       `json:"dimension"`
	Count      int       `json:"count"`
}

// Describer is implemented by backends that can report their configuration.
type Describer interface {
	Info() Info
}
