package server

import (
	"annie/internal/cache"
	"annie/internal/index"
)

// CreateIndexRequest represents the request body for creating an index
type CreateIndexRequest struct {
	Name       string         `json:"name" binding:"required"`
	IndexType  string         `json:"index_type"`
	SpaceType  string         `json:"space_type"`
	Dimension  int            `json:"dimension"`
	MinkowskiP float32        `json:"minkowski_p,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// IndexResponse describes one index
type IndexResponse struct {
	Name string `json:"name"`
	index.Info
}

// ListIndexesResponse represents the response body for listing indexes
type ListIndexesResponse struct {
	Indexes []IndexResponse `json:"indexes"`
}

// AddVectorsRequest adds vectors under the given ids. Without ids the index
// assigns them.
type AddVectorsRequest struct {
	IDs     []int64     `json:"ids,omitempty"`
	Vectors [][]float32 `json:"vectors" binding:"required"`
}

type AddVectorsResponse struct {
	IDs []int64 `json:"ids"`
}

type RemoveVectorsRequest struct {
	IDs []int64 `json:"ids"`
}

type RemoveVectorsResponse struct {
	Removed int `json:"removed"`
}

// SearchRequest represents the request body for a k-NN query. A non-nil
// FilterIDs restricts results to those ids.
type SearchRequest struct {
	Vector    []float32 `json:"vector" binding:"required"`
	K         int       `json:"k"`
	FilterIDs []int64   `json:"filter_ids,omitempty"`
}

// SearchResponse holds index-aligned ids and distances, nearest first
type SearchResponse struct {
	IDs       []int64   `json:"ids"`
	Distances []float32 `json:"distances"`
}

type BatchSearchRequest struct {
	Queries [][]float32 `json:"queries" binding:"required"`
	K       int         `json:"k"`
}

// BatchSearchResponse carries one unpadded row per query.
type BatchSearchResponse struct {
	K       int              `json:"k"`
	Results []SearchResponse `json:"results"`
}

type HealthResponse struct {
	Status string      `json:"status"`
	Cache  cache.Stats `json:"cache"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// Code names the error kind, see pkg/errors.Code.
	Code string `json:"code"`
}
