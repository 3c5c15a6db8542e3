package handlers

import (
	"net/http"

	"github.com/gateprep/exam-service/internal/services"
	"github.com/gateprep/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// StudentHandler serves the student roster and the per-student dashboards
type StudentHandler struct {
	BaseHandler
	feed      services.FeedService
	attempts  services.AttemptService
	analytics services.AnalyticsService
}

func NewStudentHandler(
	feed services.FeedService,
	attempts services.AttemptService,
	analytics services.AnalyticsService,
	logger utils.Logger,
) *StudentHandler {
	return &StudentHandler{
		BaseHandler: NewBaseHandler(logger),
		feed:        feed,
		attempts:    attempts,
		analytics:   analytics,
	}
}

// ListStudents handles GET /students
func (h *StudentHandler) ListStudents(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	req := parsePageRequest(c)
	page, err := h.feed.ListStudents(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// History handles GET /students/me/history
func (h *StudentHandler) History(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	history, err := h.attempts.History(c.Request.Context(), actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// Mistakes handles GET /students/me/mistakes
func (h *StudentHandler) Mistakes(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	req := parsePageRequest(c)
	page, err := h.feed.ListMistakes(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Analytics handles GET /students/me/analytics
func (h *StudentHandler) Analytics(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	analytics, err := h.analytics.StudentAnalytics(c.Request.Context(), actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

// AdminStats handles GET /admin/stats
func (h *StudentHandler) AdminStats(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	stats, err := h.analytics.AdminStats(c.Request.Context(), actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
