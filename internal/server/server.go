// Package server exposes the runtime over a local HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cortexlab/cortex/internal/engine"
	"github.com/cortexlab/cortex/internal/logger"
	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/runtime"
)

// Packs lists installed knowledge packs. force rescans the packs directory.
type Packs interface {
	Discover(ctx context.Context, force bool) ([]model.KnowledgePack, error)
}

// Config holds the server's collaborators.
type Config struct {
	Runtime *runtime.Runtime
	Packs   Packs
	Engine  engine.Engine
	// Model is loaded by POST /v1/model/load when the request names none.
	Model string
	Log   *logger.Logger
}

// Server serves the HTTP API.
type Server struct {
	rt     *runtime.Runtime
	packs  Packs
	engine engine.Engine
	log    *logger.Logger
	router *gin.Engine

	mu    sync.RWMutex
	model string
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		rt:     cfg.Runtime,
		packs:  cfg.Packs,
		engine: cfg.Engine,
		model:  cfg.Model,
		log:    log.With("component", "HTTPServer"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(s.log))

	router.GET("/healthcheck", healthCheck)

	v1 := router.Group("/v1")
	{
		v1.GET("/status", s.status)
		v1.GET("/tools", s.tools)
		v1.GET("/packs", s.listPacks)
		v1.POST("/packs/refresh", s.refreshPacks)
		v1.POST("/query", s.query)
		v1.POST("/stop", s.stop)
		v1.POST("/model/load", s.loadModel)
		v1.POST("/model/unload", s.unloadModel)
	}
	return router
}

// Model returns the name of the model queries are serialized for.
func (s *Server) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *Server) setModel(name string) {
	s.mu.Lock()
	s.model = name
	s.mu.Unlock()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	s.rt.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
