package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/layersplitter/job"
	"github.com/chaos-io/layersplitter/pipeline"
)

// Trigger starts one pipeline invocation; the scheduled cron job and the
// manual endpoint share the same entry point.
type Trigger interface {
	Run(ctx context.Context) (pipeline.RunStats, error)
}

// Server exposes the ledger and a manual trigger over HTTP.
type Server struct {
	store  job.Store
	runner Trigger
	log    *slog.Logger
}

func New(store job.Store, runner Trigger, log *slog.Logger) *Server {
	return &Server{store: store, runner: runner, log: log}
}

func (s *Server) Handler() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/jobs", s.listJobs)
	r.GET("/jobs/:id", s.getJob)
	r.POST("/jobs", s.submitJob)
	r.POST("/run", s.triggerRun)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listJobs(c *gin.Context) {
	jobs, err := s.store.List(c.Request.Context())
	if err != nil {
		s.log.Error("list jobs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if jobs == nil {
		jobs = []*job.ImageJob{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	j, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, job.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, j)
}

type submitRequest struct {
	Source string `json:"source" binding:"required"`
}

func (s *Server) submitJob(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j, created, err := s.store.Enqueue(c.Request.Context(), req.Source)
	if err != nil {
		s.log.Error("enqueue failed", "source", req.Source, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, j)
}

func (s *Server) triggerRun(c *gin.Context) {
	// the run outlives the HTTP exchange; a client hanging up must not
	// cancel in-flight inference or uploads
	stats, err := s.runner.Run(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		s.log.Error("manual run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
