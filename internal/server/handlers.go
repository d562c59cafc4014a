package server

import (
	"errors"
	"net/http"

	"annie/internal/index"
	pkgerrors "annie/pkg/errors"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", Cache: s.cache.Stats()})
	}
}

func (s *Server) handleCreateIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateIndexRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		space, err := index.ParseSpaceType(req.SpaceType)
		if err != nil {
			s.fail(c, err)
			return
		}

		cfg := &index.IndexConfig{
			IndexType:  index.IndexType(req.IndexType),
			SpaceType:  space,
			Dimension:  req.Dimension,
			MinkowskiP: req.MinkowskiP,
			Parameters: req.Parameters,
		}
		if cfg.IndexType == "" {
			cfg.IndexType = index.FLATIndex
		}
		g, err := s.manager.CreateIndex(req.Name, cfg)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.cache.Purge()
		c.JSON(http.StatusCreated, IndexResponse{Name: req.Name, Info: g.Info()})
	}
}

func (s *Server) handleGetIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		g, err := s.manager.GetIndex(name)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, IndexResponse{Name: name, Info: g.Info()})
	}
}

func (s *Server) handleListIndexes() gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses := s.manager.ListIndexes()
		resp := ListIndexesResponse{Indexes: make([]IndexResponse, len(statuses))}
		for i, st := range statuses {
			resp.Indexes[i] = IndexResponse{Name: st.Name, Info: st.Info}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleDeleteIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.manager.DeleteIndex(c.Param("name")); err != nil {
			s.fail(c, err)
			return
		}
		// a recreated index restarts its generation
		s.cache.Purge()
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleSaveIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.manager.SaveIndex(c.Param("name")); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleAddVectors() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		var req AddVectorsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		g, err := s.manager.GetIndex(name)
		if err != nil {
			s.fail(c, err)
			return
		}

		ids := req.IDs
		if ids != nil {
			err = g.Add(req.Vectors, ids)
		} else {
			ids, err = g.InsertBatch(req.Vectors)
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		s.scheduleSave(name)
		c.JSON(http.StatusOK, AddVectorsResponse{IDs: ids})
	}
}

func (s *Server) handleRemoveVectors() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		var req RemoveVectorsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		g, err := s.manager.GetIndex(name)
		if err != nil {
			s.fail(c, err)
			return
		}
		removed, err := g.Remove(req.IDs)
		if err != nil {
			s.fail(c, err)
			return
		}
		if removed > 0 {
			s.scheduleSave(name)
		}
		c.JSON(http.StatusOK, RemoveVectorsResponse{Removed: removed})
	}
}

func (s *Server) handleSearch() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		var req SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		g, err := s.manager.GetIndex(name)
		if err != nil {
			s.fail(c, err)
			return
		}

		var res *index.SearchResult
		if req.FilterIDs != nil {
			allowed := make(map[int64]struct{}, len(req.FilterIDs))
			for _, id := range req.FilterIDs {
				allowed[id] = struct{}{}
			}
			res, err = g.SearchFiltered(req.Vector, req.K, func(id int64) bool {
				_, ok := allowed[id]
				return ok
			})
		} else {
			res, err = s.cachedSearch(name, g, req.Vector, req.K)
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, SearchResponse{IDs: res.IDs, Distances: res.Distances})
	}
}

func (s *Server) handleSearchBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		g, err := s.manager.GetIndex(c.Param("name"))
		if err != nil {
			s.fail(c, err)
			return
		}
		batch, err := g.SearchBatch(req.Queries, req.K)
		if err != nil {
			s.fail(c, err)
			return
		}

		// JSON has no +Inf, so padding is stripped per row
		resp := BatchSearchResponse{K: batch.K, Results: make([]SearchResponse, batch.Rows)}
		for i := range batch.Rows {
			m := batch.Matches(i)
			resp.Results[i] = SearchResponse{IDs: m.IDs, Distances: m.Distances}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// scheduleSave queues a snapshot for persistent index types.
func (s *Server) scheduleSave(name string) {
	if err := s.manager.ScheduleSave(name); err != nil && !errors.Is(err, pkgerrors.ErrNotImplemented) {
		s.log.Warnw("Failed to schedule save", "index", name, "error", err)
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		s.log.Errorw("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: pkgerrors.Code(err)})
}

// badRequest answers a request body that could not be bound.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: pkgerrors.CodeInvalidParameter})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrIndexExists):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, pkgerrors.ErrInvalidDimension),
		errors.Is(err, pkgerrors.ErrInvalidParameter),
		errors.Is(err, pkgerrors.ErrInputMismatch),
		errors.Is(err, pkgerrors.ErrDimensionMismatch),
		errors.Is(err, pkgerrors.ErrUnsupportedIndexType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
