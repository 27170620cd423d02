// Package apiserver exposes the analytics over a small JSON HTTP API. CSV
// documents are posted as the raw request body.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/KaramelBytes/blendlab/internal/analysis"
	"github.com/KaramelBytes/blendlab/internal/logging"
	"github.com/KaramelBytes/blendlab/internal/match"
	"github.com/KaramelBytes/blendlab/internal/schema"
	"github.com/KaramelBytes/blendlab/internal/table"
)

// MaxBodyBytes caps the size of an uploaded CSV body.
const MaxBodyBytes = 32 << 20

// Server holds the analysis options and the reference dataset used for matching.
type Server struct {
	opts   analysis.Options
	log    zerolog.Logger
	engine *gin.Engine
	server *http.Server

	mu      sync.RWMutex
	ref     *table.Dataset
	refName string
}

// New builds the server and its routes.
func New(opts analysis.Options, log zerolog.Logger, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{opts: opts, log: log}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.GinMiddleware(log))
	engine.NoRoute(func(ctx *gin.Context) { respondError(ctx, http.StatusNotFound, errors.New("not found")) })

	engine.GET("/health", s.handleHealth)
	engine.POST("/analyze", s.handleAnalyze)
	engine.POST("/correlation", s.handleCorrelation)
	engine.POST("/projection", s.handleProjection)
	engine.POST("/summary", s.handleSummary)
	engine.POST("/reference", s.handleSetReference)
	engine.GET("/reference", s.handleGetReference)
	engine.POST("/match", s.handleMatch)
	engine.POST("/validate", s.handleValidate)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Handler:           s.engine,
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Msgf("starting to listen at %s", addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}
	s.log.Warn().Msg("shutting down blendlab HTTP API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info().Msg("graceful shutdown completed")
	return nil
}

func respondError(ctx *gin.Context, status int, err error) {
	if status >= 500 {
		_ = ctx.Error(err)
	}
	ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// respondDataError maps parse and column errors onto HTTP statuses.
func respondDataError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, table.ErrEmptyInput):
		respondError(ctx, http.StatusBadRequest, err)
	case errors.Is(err, analysis.ErrInsufficientColumns):
		respondError(ctx, http.StatusUnprocessableEntity, fmt.Errorf("not enough data: %w", err))
	default:
		respondError(ctx, http.StatusInternalServerError, err)
	}
}

func readDataset(ctx *gin.Context) (*table.Dataset, bool) {
	b, err := io.ReadAll(io.LimitReader(ctx.Request.Body, MaxBodyBytes+1))
	if err != nil {
		respondError(ctx, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return nil, false
	}
	if len(b) > MaxBodyBytes {
		respondError(ctx, http.StatusRequestEntityTooLarge, fmt.Errorf("body exceeds %d bytes", MaxBodyBytes))
		return nil, false
	}
	ds, err := table.Parse(string(b))
	if err != nil {
		respondDataError(ctx, err)
		return nil, false
	}
	return ds, true
}

func (s *Server) handleHealth(ctx *gin.Context) {
	s.mu.RLock()
	loaded := s.ref != nil
	s.mu.RUnlock()
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "reference_loaded": loaded})
}

func (s *Server) handleAnalyze(ctx *gin.Context) {
	ds, ok := readDataset(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, analysis.Analyze(ctx.Query("name"), ds, s.opts))
}

func (s *Server) handleCorrelation(ctx *gin.Context) {
	ds, ok := readDataset(ctx)
	if !ok {
		return
	}
	m, err := analysis.Correlation(ds)
	if err != nil {
		respondDataError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, m)
}

func (s *Server) handleProjection(ctx *gin.Context) {
	ds, ok := readDataset(ctx)
	if !ok {
		return
	}
	p, err := analysis.Project2D(ds)
	if err != nil {
		respondDataError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, p)
}

func (s *Server) handleSummary(ctx *gin.Context) {
	ds, ok := readDataset(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"rows":       ds.Len(),
		"columns":    analysis.Summarize(ds, s.opts.OutlierThreshold),
		"components": analysis.ComponentColumns(ds),
	})
}

type referenceInfo struct {
	Name       string   `json:"name"`
	Rows       int      `json:"rows"`
	Columns    []string `json:"columns"`
	Properties []int    `json:"properties"`
}

func describeReference(name string, ds *table.Dataset) referenceInfo {
	info := referenceInfo{Name: name, Rows: ds.Len(), Columns: ds.Columns, Properties: []int{}}
	for i := 1; i <= match.MaxProperty; i++ {
		if ds.HasColumn(match.PropertyColumn(i)) {
			info.Properties = append(info.Properties, i)
		}
	}
	return info
}

func (s *Server) handleSetReference(ctx *gin.Context) {
	ds, ok := readDataset(ctx)
	if !ok {
		return
	}
	name := ctx.Query("name")
	s.mu.Lock()
	s.ref = ds
	s.refName = name
	s.mu.Unlock()
	s.log.Info().Str("name", name).Int("rows", ds.Len()).Msg("reference dataset loaded")
	ctx.JSON(http.StatusOK, describeReference(name, ds))
}

func (s *Server) handleGetReference(ctx *gin.Context) {
	s.mu.RLock()
	ds, name := s.ref, s.refName
	s.mu.RUnlock()
	if ds == nil {
		respondError(ctx, http.StatusNotFound, errors.New("no reference dataset loaded"))
		return
	}
	ctx.JSON(http.StatusOK, describeReference(name, ds))
}

type matchRequest struct {
	Targets map[int]float64 `json:"targets"`
}

func (s *Server) handleMatch(ctx *gin.Context) {
	var req matchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	targets := match.TargetVector{}
	for i, v := range req.Targets {
		if err := targets.Set(i, v); err != nil {
			respondError(ctx, http.StatusBadRequest, err)
			return
		}
	}
	if len(targets) == 0 {
		respondError(ctx, http.StatusBadRequest, errors.New("at least one target is required"))
		return
	}
	s.mu.RLock()
	ref := s.ref
	s.mu.RUnlock()
	if ref == nil {
		respondError(ctx, http.StatusConflict, errors.New("no reference dataset loaded"))
		return
	}
	res, ok := match.FindBestMatch(ref, targets)
	if !ok {
		respondError(ctx, http.StatusNotFound, errors.New("no reference row carries the requested properties"))
		return
	}
	ctx.JSON(http.StatusOK, res)
}

func (s *Server) handleValidate(ctx *gin.Context) {
	b, err := io.ReadAll(io.LimitReader(ctx.Request.Body, MaxBodyBytes))
	if err != nil {
		respondError(ctx, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	header := schema.HeaderFromText(string(b))
	if len(header) == 0 {
		respondError(ctx, http.StatusBadRequest, table.ErrEmptyInput)
		return
	}
	required := schema.PredictionColumns()
	switch ctx.DefaultQuery("kind", "prediction") {
	case "prediction":
	case "training":
		required = schema.TrainingColumns()
	default:
		respondError(ctx, http.StatusBadRequest, fmt.Errorf("unknown kind %q (use prediction or training)", ctx.Query("kind")))
		return
	}
	res := schema.Check(header, required)
	ctx.JSON(http.StatusOK, gin.H{"valid": res.Valid(), "result": res})
}
