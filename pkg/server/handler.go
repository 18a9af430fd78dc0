package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

const Version = "1.0.0"

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.health)
	api := r.Group("/api")
	{
		api.GET("/config", h.getConfig)

		api.POST("/research/stream", h.streamResearch)
		api.POST("/research", h.createJob)
		api.GET("/research", h.listJobs)
		api.GET("/research/:id", h.getJob)
		api.GET("/research/:id/logs", h.getJobLogs)

		api.GET("/sources/search", h.searchSources)
		api.GET("/sources/content", h.sourceContent)
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoDatabase), errors.Is(err, ErrNoIndex):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, research.ErrEmptyTopic), errors.Is(err, research.ErrInvalidMode), errors.Is(err, research.ErrInvalidLimit):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "deep-research", "version": Version})
}

func (h *Handler) getConfig(c *gin.Context) {
	d := h.Service.Engine.Defaults
	c.JSON(http.StatusOK, gin.H{
		"max_iterations":     d.MaxIterations,
		"max_detail_fetches": d.MaxDetailFetches,
		"default_mode":       d.Mode,
		"modes":              []research.Mode{research.ModeDepth, research.ModeBreadth, research.ModeBalanced},
	})
}

// streamResearch runs one research and relays its events as SSE frames.
// A client disconnect cancels the request context and with it the run.
func (h *Handler) streamResearch(c *gin.Context) {
	var req research.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rc, err := research.NewContext(req, h.Service.Engine.Defaults)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for ev := range h.Service.Engine.Events(c.Request.Context(), rc) {
		if err := writeEvent(c.Writer, ev); err != nil {
			return
		}
	}
}

func writeEvent(w gin.ResponseWriter, ev research.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func (h *Handler) createJob(c *gin.Context) {
	var req research.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Service.CreateJob(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.Service.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	// Return empty list instead of null
	if jobs == nil {
		jobs = []Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	job, err := h.Service.GetJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Service.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) searchSources(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	topK := 5
	if s := c.Query("top_k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must be a positive integer"})
			return
		}
		topK = n
	}

	results, err := h.Service.SearchSources(c.Request.Context(), q, topK, c.Query("url"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []vectorstore.SimilaritySearchResult{}
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handler) sourceContent(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	text, docs, err := h.Service.SourceContent(c.Request.Context(), url)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if len(docs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not indexed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":     url,
		"title":   docs[0].Metadata.Title,
		"chunks":  len(docs),
		"content": text,
	})
}
