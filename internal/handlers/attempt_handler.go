package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gateprep/exam-service/internal/services"
	"github.com/gateprep/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type AttemptHandler struct {
	BaseHandler
	attempts services.AttemptService
}

func NewAttemptHandler(attempts services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler: NewBaseHandler(logger),
		attempts:    attempts,
	}
}

// StartAttempt handles POST /attempts. An unfinished attempt on the same test is
// returned instead of a new one.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	h.LogRequest(c, "Starting attempt")
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req services.StartAttemptRequest
	if !h.bindJSON(c, &req) {
		return
	}

	attempt, err := h.attempts.Start(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attempt)
}

// GetAttempt handles GET /attempts/:id
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.attempts.Get(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// SaveResponse handles PUT /attempts/:id/responses
func (h *AttemptHandler) SaveResponse(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.RespondRequest
	if !h.bindJSON(c, &req) {
		return
	}

	response, err := h.attempts.Respond(c.Request.Context(), id, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// SubmitAttempt handles POST /attempts/:id/submit. The body is optional and
// defaults to a manual submission.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	h.LogRequest(c, "Submitting attempt")
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
			Code:    "invalid_payload",
		})
		return
	}

	result, err := h.attempts.Submit(c.Request.Context(), id, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
