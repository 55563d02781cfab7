// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/envitrace/envitrace/pkg/logging"
	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/graph"
	"github.com/envitrace/envitrace/services/pathway/predict"
)

// Options wires the server's collaborators.
type Options struct {
	Registry     *Registry
	Orchestrator *predict.Orchestrator
	Logger       *logging.Logger
	// Metrics receives the server's collectors. Nil disables
	// registration (used by tests to avoid duplicate collectors).
	Metrics prometheus.Registerer
}

// Server is the local HTTP API over pathways and prediction jobs.
type Server struct {
	engine       *gin.Engine
	registry     *Registry
	orchestrator *predict.Orchestrator
	log          *logging.Logger

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New builds the server and its routes.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		registry:     opts.Registry,
		orchestrator: opts.Orchestrator,
		log:          log,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "envitrace_http_requests_total",
			Help: "HTTP requests served, by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "envitrace_http_request_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if opts.Metrics != nil {
		opts.Metrics.MustRegister(s.requests, s.latency)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.observe)

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	api.GET("/pathways", s.handleListPathways)
	api.POST("/pathways", s.handleCreatePathway)
	api.GET("/pathways/:id", s.handleGetPathway)
	api.POST("/pathways/:id/nodes", s.handleAddNode)
	api.POST("/pathways/:id/edges", s.handleAddEdge)
	api.POST("/predictions", s.handleSubmitPrediction)
	api.GET("/jobs/:id/status", s.handleJobStatus)
	api.DELETE("/jobs/:id", s.handleDeleteJob)

	s.engine = engine
	return s
}

// Handler returns the HTTP handler for mounting or testing.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info("api listening", "addr", addr)
	return s.engine.Run(addr)
}

// observe is the metrics and access-log middleware.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	elapsed := time.Since(start)
	s.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	s.latency.WithLabelValues(route).Observe(elapsed.Seconds())
	s.log.Debug("request served",
		"route", route, "method", c.Request.Method,
		"status", c.Writer.Status(), "elapsed_ms", elapsed.Milliseconds())
}

func (s *Server) handleHealth(c *gin.Context) {
	pathways, jobs := s.registry.Counts()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pathways": pathways, "jobs": jobs})
}

type pathwaySummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Mode  string `json:"mode"`
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
}

func (s *Server) handleListPathways(c *gin.Context) {
	pathways := s.registry.Pathways()
	out := make([]pathwaySummary, len(pathways))
	for i, p := range pathways {
		out[i] = pathwaySummary{
			ID:    p.ID(),
			Name:  p.Name(),
			Mode:  p.Mode().String(),
			Nodes: p.NodeCount(),
			Edges: p.EdgeCount(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"pathways": out})
}

type createPathwayRequest struct {
	Name     string `json:"name" binding:"required"`
	SMILES   string `json:"smiles" binding:"required"`
	RootOnly bool   `json:"rootOnly"`
}

func (s *Server) handleCreatePathway(c *gin.Context) {
	var req createPathwayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	root, err := chem.NewStructure(req.SMILES)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var opts []graph.PathwayOption
	if req.RootOnly {
		opts = append(opts, graph.WithRootNodeOnly())
	}
	p := graph.NewPathwayWithRoot(req.Name, root, opts...)
	s.registry.AddPathway(p)
	c.JSON(http.StatusCreated, ExportPathway(p))
}

func (s *Server) handleGetPathway(c *gin.Context) {
	p, err := s.registry.Pathway(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ExportPathway(p))
}

type addNodeRequest struct {
	SMILES string `json:"smiles" binding:"required"`
	Name   string `json:"name"`
}

func (s *Server) handleAddNode(c *gin.Context) {
	p, err := s.registry.Pathway(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var req addNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	structure, err := chem.NewStructure(req.SMILES)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	node, err := p.AddNode(structure, req.Name)
	if err != nil {
		c.JSON(statusForGraphErr(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, exportNode(node))
}

type addEdgeRequest struct {
	SMIRKS    string `json:"smirks" binding:"required"`
	Multistep bool   `json:"multistep"`
}

func (s *Server) handleAddEdge(c *gin.Context) {
	p, err := s.registry.Pathway(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var req addEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	edge, err := p.AddEdge(graph.EdgeRequest{SMIRKS: req.SMIRKS, Multistep: req.Multistep})
	if err != nil {
		c.JSON(statusForGraphErr(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, exportEdge(edge))
}

type submitPredictionRequest struct {
	Name      string `json:"name" binding:"required"`
	SMILES    string `json:"smiles" binding:"required"`
	SettingID string `json:"settingId"`
}

func (s *Server) handleSubmitPrediction(c *gin.Context) {
	if s.orchestrator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prediction is not configured"})
		return
	}
	var req submitPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	root, err := chem.NewStructure(req.SMILES)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.orchestrator.Submit(c.Request.Context(), req.Name, root, req.SettingID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	tracked := s.registry.AddJob(job)
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":     tracked.LocalID,
		"pathwayId": job.Pathway().ID(),
		"status":    job.Status().String(),
	})
}

func (s *Server) handleJobStatus(c *gin.Context) {
	tracked, err := s.registry.Job(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	result, err := s.orchestrator.Poll(c.Request.Context(), tracked.Job)
	if err != nil && !errors.Is(err, predict.ErrPredictionFailed) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobId":      tracked.LocalID,
		"pathwayId":  tracked.Job.Pathway().ID(),
		"status":     result.Status.String(),
		"nodesAdded": result.NodesAdded,
		"edgesAdded": result.EdgesAdded,
		"revision":   result.Revision,
	})
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	tracked, err := s.registry.Job(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := s.orchestrator.Delete(c.Request.Context(), tracked.Job); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	s.registry.RemoveJob(tracked.LocalID)
	c.JSON(http.StatusOK, gin.H{"deleted": tracked.LocalID})
}

// statusForGraphErr maps graph errors onto HTTP statuses: caller
// mistakes are 400, invariant conflicts are 409.
func statusForGraphErr(err error) int {
	switch {
	case errors.Is(err, graph.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrInvariant):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
