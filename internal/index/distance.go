package index

import (
	"fmt"
	"strings"

	pkgerrors "annie/pkg/errors"

	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"
)

// Metric is a distance configuration fixed for the lifetime of an index.
// A positive P means Minkowski-p regardless of Space.
type Metric struct {
	Space SpaceType
	P     float32
}

// NewMetric validates space and p. A positive p selects Minkowski-p; a
// negative or NaN p is rejected.
func NewMetric(space SpaceType, p float32) (Metric, error) {
	if p > 0 {
		return Metric{Space: MinkowskiSpace, P: p}, nil
	}
	if !(p >= 0) || space == MinkowskiSpace {
		return Metric{}, fmt.Errorf("%w: minkowski p must be > 0, got %v", pkgerrors.ErrInvalidParameter, p)
	}
	switch space {
	case EuclideanSpace, CosineSpace, ManhattanSpace, ChebyshevSpace:
		return Metric{Space: space}, nil
	case "":
		return Metric{Space: EuclideanSpace}, nil
	default:
		return Metric{}, fmt.Errorf("%w: unknown space type %q", pkgerrors.ErrInvalidParameter, space)
	}
}

// ParseSpaceType accepts the canonical names plus the short aliases used by clients.
func ParseSpaceType(s string) (SpaceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "euclidean", "l2", "":
		return EuclideanSpace, nil
	case "cosine", "cos":
		return CosineSpace, nil
	case "manhattan", "l1":
		return ManhattanSpace, nil
	case "chebyshev", "linf":
		return ChebyshevSpace, nil
	case "minkowski":
		return MinkowskiSpace, nil
	}
	return "", fmt.Errorf("%w: unknown space type %q", pkgerrors.ErrInvalidParameter, s)
}

func (m Metric) String() string {
	if m.Space == MinkowskiSpace {
		return fmt.Sprintf("minkowski(p=%g)", m.P)
	}
	return string(m.Space)
}

// usesNorms reports whether the metric reads cached squared norms.
func (m Metric) usesNorms() bool {
	return m.Space == EuclideanSpace || m.Space == CosineSpace
}

// Distance computes the metric between a and b without cached norms.
func (m Metric) Distance(a, b []float32) float32 {
	var na, nb float32
	if m.usesNorms() {
		na, nb = SquaredNorm(a), SquaredNorm(b)
	}
	return m.distance(a, na, b, nb)
}

// distance computes the metric from a query and a stored vector with their squared norms.
func (m Metric) distance(q []float32, qNorm float32, v []float32, vNorm float32) float32 {
	switch m.Space {
	case EuclideanSpace:
		return EuclideanFromNorms(qNorm, vNorm, Dot(q, v))
	case CosineSpace:
		return CosineFromNorms(qNorm, vNorm, Dot(q, v))
	case ManhattanSpace:
		return Manhattan(q, v)
	case ChebyshevSpace:
		return Chebyshev(q, v)
	default:
		return Minkowski(q, v, m.P)
	}
}

// Dot returns the inner product of a and b.
func Dot(a, b []float32) float32 {
	return vek32.Dot(a, b)
}

// SquaredNorm returns sum(v_i^2).
func SquaredNorm(v []float32) float32 {
	return vek32.Dot(v, v)
}

// EuclideanFromNorms returns sqrt(|a|^2 + |b|^2 - 2 a.b), clamped at zero
// so rounding never produces the root of a negative number.
func EuclideanFromNorms(normA, normB, dot float32) float32 {
	d := normA + normB - 2*dot
	if d <= 0 {
		return 0
	}
	return math32.Sqrt(d)
}

// CosineFromNorms returns 1 - cos(a, b) clamped at zero.
// A zero vector is at distance 1 from everything.
func CosineFromNorms(normA, normB, dot float32) float32 {
	if normA == 0 || normB == 0 {
		return 1
	}
	denom := max(math32.Sqrt(normA), cosineEpsilon) * max(math32.Sqrt(normB), cosineEpsilon)
	return max(1-dot/denom, 0)
}

// Euclidean computes the L2 distance.
func Euclidean(a, b []float32) float32 {
	return EuclideanFromNorms(SquaredNorm(a), SquaredNorm(b), Dot(a, b))
}

// Cosine computes the cosine distance.
func Cosine(a, b []float32) float32 {
	return CosineFromNorms(SquaredNorm(a), SquaredNorm(b), Dot(a, b))
}

// absDiff returns |a_i - b_i| in a fresh slice.
func absDiff(a, b []float32) []float32 {
	d := vek32.Sub(a, b)
	vek32.Abs_Inplace(d)
	return d
}

// Manhattan computes the L1 distance.
func Manhattan(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Sum(absDiff(a, b))
}

// Chebyshev computes the L-infinity distance.
func Chebyshev(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Max(absDiff(a, b))
}

// Minkowski computes (sum |a_i - b_i|^p)^(1/p).
func Minkowski(a, b []float32, p float32) float32 {
	if len(a) == 0 {
		return 0
	}
	d := absDiff(a, b)
	vek32.Pow_Inplace(d, vek32.Repeat(p, len(d)))
	return math32.Pow(vek32.Sum(d), 1/p)
}
