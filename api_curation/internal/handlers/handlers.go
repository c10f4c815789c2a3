package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fortuneofweb3/blabz/api_curation/internal/curation"
	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
	"github.com/fortuneofweb3/blabz/pkg/logging"
	"github.com/fortuneofweb3/blabz/pkg/middleware"
)

type CurationHandler struct {
	svc     CurationService
	logger  logging.Logger
	metrics *APIMetrics
}

func NewCurationHandler(svc CurationService, logger logging.Logger, metrics *APIMetrics) *CurationHandler {
	return &CurationHandler{svc: svc, logger: logger, metrics: metrics}
}

// Register mounts every curation route under r.
func (h *CurationHandler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/curation/:handle", h.Ingest)

	feeds := api.Group("/feeds")
	feeds.GET("/global", h.GlobalFeed)
	feeds.GET("/projects/:name", h.ProjectFeed)
	feeds.GET("/accounts/:handle", h.AccountFeed)

	api.GET("/projects", h.ListProjects)
	api.POST("/projects", h.RegisterProject)
	api.POST("/accounts", h.RegisterAccount)
	api.DELETE("/accounts/:handle", h.PurgeAccount)
}

type ingestRequest struct {
	Window     string `json:"window"`
	MaxResults int    `json:"maxResults"`
	Force      bool   `json:"force"`
}

func (h *CurationHandler) Ingest(c *gin.Context) {
	const route = "ingest"
	var req ingestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, route, "Invalid request format")
			return
		}
	}
	if force, err := strconv.ParseBool(c.Query("force")); err == nil && force {
		req.Force = true
	}

	opts := curation.IngestOptions{MaxResults: req.MaxResults, Force: req.Force}
	if req.Window != "" {
		w, err := models.ParseWindow(req.Window)
		if err != nil {
			h.badRequest(c, route, err.Error())
			return
		}
		opts.Window = w.Duration
	}
	if opts.MaxResults < 0 {
		h.badRequest(c, route, "maxResults must not be negative")
		return
	}

	result, err := h.svc.IngestAndCurate(c.Request.Context(), c.Param("handle"), opts)
	if err != nil {
		h.fail(c, route, err)
		return
	}

	if result.RateLimited && result.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter))))
	}
	h.metrics.IncRequest(route, result.Source)
	c.JSON(http.StatusOK, result)
}

func (h *CurationHandler) GlobalFeed(c *gin.Context) {
	h.feed(c, "global_feed", func(ctx context.Context, w models.TimeWindow) ([]models.Post, error) {
		return h.svc.GetGlobalFeed(ctx, w)
	})
}

func (h *CurationHandler) ProjectFeed(c *gin.Context) {
	name := c.Param("name")
	h.feed(c, "project_feed", func(ctx context.Context, w models.TimeWindow) ([]models.Post, error) {
		return h.svc.GetProjectFeed(ctx, name, w)
	})
}

func (h *CurationHandler) AccountFeed(c *gin.Context) {
	handle := c.Param("handle")
	h.feed(c, "account_feed", func(ctx context.Context, w models.TimeWindow) ([]models.Post, error) {
		return h.svc.GetAccountFeed(ctx, handle, w)
	})
}

func (h *CurationHandler) feed(c *gin.Context, route string, load func(context.Context, models.TimeWindow) ([]models.Post, error)) {
	window, err := models.ParseWindow(c.Query("window"))
	if err != nil {
		h.badRequest(c, route, err.Error())
		return
	}

	posts, err := load(c.Request.Context(), window)
	if err != nil {
		h.fail(c, route, err)
		return
	}

	h.metrics.IncRequest(route, "success")
	c.JSON(http.StatusOK, gin.H{
		"window": window.Key(),
		"count":  len(posts),
		"posts":  posts,
	})
}

func (h *CurationHandler) ListProjects(c *gin.Context) {
	projects, err := h.svc.ListProjects(c.Request.Context())
	if err != nil {
		h.fail(c, "list_projects", err)
		return
	}
	h.metrics.IncRequest("list_projects", "success")
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *CurationHandler) RegisterProject(c *gin.Context) {
	const route = "register_project"
	var req curation.RegisterProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, route, "Invalid request format")
		return
	}

	project, err := h.svc.RegisterProject(c.Request.Context(), req)
	if err != nil {
		h.fail(c, route, err)
		return
	}
	h.metrics.IncRequest(route, "success")
	c.JSON(http.StatusOK, project)
}

func (h *CurationHandler) RegisterAccount(c *gin.Context) {
	const route = "register_account"
	var req curation.RegisterAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, route, "Invalid request format")
		return
	}

	account, err := h.svc.RegisterAccount(c.Request.Context(), req)
	if err != nil {
		h.fail(c, route, err)
		return
	}
	h.metrics.IncRequest(route, "success")
	c.JSON(http.StatusOK, account)
}

func (h *CurationHandler) PurgeAccount(c *gin.Context) {
	const route = "purge_account"
	if err := h.svc.PurgeAccount(c.Request.Context(), c.Param("handle")); err != nil {
		h.fail(c, route, err)
		return
	}
	h.metrics.IncRequest(route, "success")
	c.Status(http.StatusNoContent)
}

func (h *CurationHandler) badRequest(c *gin.Context, route, message string) {
	h.metrics.IncRequest(route, "bad_request")
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   message,
	})
}

// fail maps service errors onto HTTP statuses.
func (h *CurationHandler) fail(c *gin.Context, route string, err error) {
	log := middleware.GetContextLogger(c, h.logger).WithError(err)

	var validation *curation.ValidationError
	switch {
	case errors.As(err, &validation):
		h.badRequest(c, route, validation.Error())
		return

	case errors.Is(err, curation.ErrNotFound):
		h.metrics.IncRequest(route, "not_found")
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Not found"})
		return

	case errors.Is(err, curation.ErrUpstreamUnavailable):
		h.metrics.IncRequest(route, "upstream_unavailable")
		if d, ok := curation.RetryAfter(err); ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		}
		log.Warn("Upstream unavailable with nothing to fall back on")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Upstream unavailable"})
		return

	case errors.Is(err, curation.ErrStoreUnavailable):
		h.metrics.IncRequest(route, "store_unavailable")
		log.Error("Store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Store unavailable"})
		return

	case errors.Is(err, context.DeadlineExceeded):
		h.metrics.IncRequest(route, "timeout")
		log.Warn("Request deadline exceeded")
		c.JSON(http.StatusGatewayTimeout, gin.H{"success": false, "error": "Request timed out"})
		return
	}

	h.metrics.IncRequest(route, "error")
	log.WithField("route", route).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal error"})
}
