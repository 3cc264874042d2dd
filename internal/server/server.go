// Package server exposes the workflow operations as an HTTP job API.
//
// Mutating routes start a job and answer 202 with the pending job; pass
// ?wait=true to run it synchronously and get the finished job instead.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/jobs"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/logging"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/ratelimit"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/workflow"
)

// Per-client limits on /v1 routes.
const (
	clientRate  = 2.0 // requests per second
	clientBurst = 20
	clientIdle  = 10 * time.Minute
)

// Server serves the job API for one workflow service.
type Server struct {
	svc     *workflow.Service
	logger  *slog.Logger
	version string
	limiter *ratelimit.Limiter
}

// New creates a Server.
func New(svc *workflow.Service, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		svc:     svc,
		logger:  logger,
		version: version,
		limiter: ratelimit.NewLimiter(clientRate, clientBurst),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1", s.rateLimit())
	{
		v1.POST("/populations/:id/generate", s.generate)
		v1.DELETE("/populations/:id/agents", s.clearAgents)
		v1.GET("/runs/:id", s.getRun)
		v1.POST("/runs/:id/input", s.writeInput)
		v1.POST("/runs/:id/ingest", s.ingest)
		v1.GET("/jobs/:id", s.getJob)
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.pruneClients(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// rateLimit rejects clients that exceed their token bucket with 429.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, please try again shortly"})
			return
		}
		c.Next()
	}
}

func (s *Server) pruneClients(ctx context.Context) {
	ticker := time.NewTicker(clientIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Prune(clientIdle); n > 0 {
				s.logger.Debug("pruned idle rate limit buckets", "count", n)
			}
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.version})
}

type generateRequest struct {
	Seed *int64 `json:"seed"`
}

func (s *Server) generate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req generateRequest
	if !bindOptional(c, &req) {
		return
	}
	task, err := s.svc.GenerateTask(c.Request.Context(), id, req.Seed)
	s.start(c, task, err)
}

func (s *Server) clearAgents(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	task, err := s.svc.ClearAgentsTask(c.Request.Context(), id)
	s.start(c, task, err)
}

func (s *Server) writeInput(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	task, err := s.svc.WriteInputTask(c.Request.Context(), id)
	s.start(c, task, err)
}

type ingestRequest struct {
	// Output names the output document inside the document directory.
	Output string `json:"output"`
}

func (s *Server) ingest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ingestRequest
	if !bindOptional(c, &req) {
		return
	}
	task, err := s.svc.IngestTask(c.Request.Context(), id, req.Output)
	s.start(c, task, err)
}

func (s *Server) getRun(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	run, err := s.svc.Repository().GetRun(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getJob(c *gin.Context) {
	job, ok := s.svc.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// start submits task, or runs it to completion when ?wait=true.
func (s *Server) start(c *gin.Context, task workflow.Task, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}

	var job jobs.Job
	if c.Query("wait") == "true" {
		job, err = s.svc.Run(c.Request.Context(), task)
		if errors.Is(err, simerr.ErrJobInFlight) {
			s.fail(c, err)
			return
		}
		// A failed job is still a valid answer; its status carries the error.
		c.JSON(http.StatusOK, job)
		return
	}

	job, err = s.svc.Submit(task)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Location", "/v1/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": simerr.Describe(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, simerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simerr.ErrJobInFlight), errors.Is(err, simerr.ErrAlreadyGenerated):
		return http.StatusConflict
	case errors.Is(err, simerr.ErrConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// bindOptional decodes a JSON body if there is one.
func bindOptional(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}
