package server

import (
	"encoding/binary"
	"math"

	"annie/internal/index"

	"github.com/twmb/murmur3"
)

// cacheKey identifies one unfiltered search against one index generation.
// Any mutation bumps the generation, so stale results are never hit.
type cacheKey struct {
	h1, h2 uint64
}

func searchCacheKey(name string, generation uint64, k int, vector []float32) cacheKey {
	buf := make([]byte, 0, len(name)+1+16+4*len(vector))
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, generation)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(k))
	for _, x := range vector {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
	}
	h1, h2 := murmur3.Sum128(buf)
	return cacheKey{h1: h1, h2: h2}
}

func (s *Server) cachedSearch(name string, g *index.GuardedIndex, vector []float32, k int) (*index.SearchResult, error) {
	key := searchCacheKey(name, g.Generation(), k, vector)
	if res, ok := s.cache.Get(key); ok {
		return res, nil
	}
	res, err := g.Search(vector, k)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, res)
	return res, nil
}
