// Package mockapi serves a local stand-in for the emissions analysis backend.
package mockapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verte-zerg/emiwiz/internal/model"
)

// Config controls the stand-in server.
type Config struct {
	Addr  string
	Quiet bool
	Log   io.Writer
}

// Upload is one request the server accepted.
type Upload struct {
	Endpoint      string
	TransactionID string
	City          string
	Fields        map[string]string
	Files         map[string]int
}

type failure struct {
	status  int
	message string
}

// Server bundles the router and the recorded uploads.
type Server struct {
	cfg    Config
	engine *gin.Engine

	mu       sync.Mutex
	uploads  []Upload
	plots    map[string]model.Table
	failures map[string]failure
}

// New constructs a server with routes and middleware.
func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if !cfg.Quiet {
		out := cfg.Log
		if out == nil {
			out = os.Stderr
		}
		engine.Use(gin.LoggerWithWriter(out))
	}
	engine.Use(corsMiddleware())

	s := &Server{
		cfg:      cfg,
		engine:   engine,
		plots:    map[string]model.Table{},
		failures: map[string]failure{},
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":5003"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Uploads returns a copy of the accepted uploads, oldest first.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// FailNext makes the next request to path answer with status and an error body.
func (s *Server) FailNext(path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status: status, message: message}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	uploads := s.engine.Group("/upload")
	uploads.Use(s.injectFailures())
	{
		uploads.POST("/vehicle_classification", s.handleClassification)
		uploads.POST("/penetration_rate", s.handlePenetration)
		uploads.POST("/traffic_volume", s.handleTrafficVolume)
		uploads.POST("/projected_traffic", s.handleProjectedTraffic)
	}

	s.engine.POST("/process/traffic", s.injectFailures(), s.handleProcessTraffic)
	s.engine.GET("/plot/traffic/:city/:year", s.handleTrafficPlot)
}

func (s *Server) injectFailures() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		f, ok := s.failures[c.Request.URL.Path]
		if ok {
			delete(s.failures, c.Request.URL.Path)
		}
		s.mu.Unlock()
		if ok {
			c.AbortWithStatusJSON(f.status, gin.H{"error": f.message})
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) record(u Upload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, u)
}

func plotKey(city, year string) string {
	return city + "/" + year
}

func isDefaultTransaction(id string) bool {
	return id == "" || id == "none" || id == model.DefaultTransactionID
}
