package handlers

import (
	"errors"
	"net/http"

	"github.com/gateprep/exam-service/internal/middleware"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/services"
	"github.com/gateprep/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

// NewBaseHandler creates a new base handler with logging capability
func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := append(h.contextFields(c), "remote_addr", c.ClientIP())
	fields = append(fields, additionalFields...)
	h.logger.Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := append(h.contextFields(c), additionalFields...)
	h.logger.LogError(err, message, fields...)
}

// LogWarn logs warning messages with context
func (h *BaseHandler) LogWarn(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := append(h.contextFields(c), additionalFields...)
	h.logger.Warn(message, fields...)
}

func (h *BaseHandler) contextFields(c *gin.Context) []interface{} {
	return []interface{}{
		"request_id", c.GetString("request_id"),
		"user_id", c.GetString("user_id"),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, err error, details ...interface{}) {
	errorResp := ErrorResponse{
		Message: message,
	}
	if len(details) > 0 {
		errorResp.Details = details[0]
	}

	if err != nil && statusCode >= http.StatusInternalServerError {
		h.LogError(c, err, message, "status_code", statusCode)
	} else {
		h.LogWarn(c, message, "status_code", statusCode)
	}

	c.JSON(statusCode, errorResp)
}

// RespondWithSuccess sends a consistent success response
func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// actor returns the authenticated caller. It aborts with 401 when the auth
// middleware did not run.
func (h *BaseHandler) actor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "Unauthorized access", Code: "unauthorized"})
	}
	return actor, ok
}

func (h *BaseHandler) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
			Code:    "invalid_payload",
		})
		return false
	}
	return true
}

// handleServiceError maps service error classes onto HTTP status codes
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
			Code:    "validation_error",
		})
		return
	}

	var externalErr *services.ExternalServiceError
	if errors.As(err, &externalErr) {
		h.LogError(c, err, "External service failed", "service", externalErr.Service)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: externalErr.Service + " is unavailable",
			Details: map[string]interface{}{"retryable": externalErr.Retryable},
			Code:    "external_error",
		})
		return
	}

	switch {
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: services.FormatError(err), Code: "validation_error"})
	case services.IsConflict(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: conflictMessage(err), Details: services.FormatError(err), Code: "conflict"})
	case services.IsUnauthorized(err):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Unauthorized access", Code: "unauthorized"})
	case services.IsForbidden(err):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "Forbidden - insufficient permissions", Code: "forbidden"})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Resource not found", Details: err.Error(), Code: "not_found"})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}

var conflictErrors = []error{
	services.ErrDuplicateSubject,
	services.ErrSubjectInUse,
	services.ErrTestHasAttempts,
	services.ErrTestInactive,
	services.ErrAttemptNotActive,
	services.ErrDuplicateTestQuestion,
}

// conflictMessage strips wrapping context so clients see only the rule that was hit
func conflictMessage(err error) string {
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}
