package index

const (
	EuclideanSpace SpaceType = "euclidean"
	CosineSpace    SpaceType = "cosine"
	ManhattanSpace SpaceType = "manhattan"
	ChebyshevSpace SpaceType = "chebyshev"
	MinkowskiSpace SpaceType = "minkowski"
)

const (
	FLATIndex IndexType = "flat"
	HNSWIndex IndexType = "hnsw"
)

// HNSW specific defaults
const (
	DEFAULT_M            = 16
	DEFAULT_EF_SEARCH    = 50
	DEFAULT_MAX_ELEMENTS = 10000
)

// snapshot files are written as <path><SnapshotSuffix>
const SnapshotSuffix = ".bin"

// entries per scan goroutine; smaller collections are scanned inline
const minScanChunk = 1024

// cosineEpsilon floors norm terms so zero vectors never divide by zero
const cosineEpsilon float32 = 1e-12

// PadID marks an unused slot in a padded batch result row.
const PadID int64 = -1
