package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"annie/internal/cache"
	"annie/internal/config"
	"annie/internal/index"
	"annie/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router  *gin.Engine
	manager *index.Manager
	cache   *cache.LRUCache[cacheKey, *index.SearchResult]
	log     *zap.SugaredLogger
	http    *http.Server
}

// New creates a new server instance
func New(manager *index.Manager, conf config.ServerConfig) *Server {
	s := &Server{
		manager: manager,
		cache:   cache.NewLRUCache[cacheKey, *index.SearchResult](conf.CacheSize),
		log:     logger.Named("server"),
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              conf.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleHealthCheck())
	v1 := s.router.Group("/v1")
	v1.GET("/health", s.handleHealthCheck())

	v1.POST("/indexes", s.handleCreateIndex())
	v1.GET("/indexes", s.handleListIndexes())
	v1.GET("/indexes/:name", s.handleGetIndex())
	v1.DELETE("/indexes/:name", s.handleDeleteIndex())
	v1.POST("/indexes/:name/save", s.handleSaveIndex())

	v1.POST("/indexes/:name/vectors", s.handleAddVectors())
	v1.POST("/indexes/:name/vectors/delete", s.handleRemoveVectors())
	v1.POST("/indexes/:name/search", s.handleSearch())
	v1.POST("/indexes/:name/search/batch", s.handleSearchBatch())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.log.Infow("Listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugw("Request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
