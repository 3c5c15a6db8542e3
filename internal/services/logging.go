package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// maxLoggedFieldErrors caps how many field errors one log line carries.
const maxLoggedFieldErrors = 5

// ServiceLogger logs the outcome of service operations
type ServiceLogger struct {
	logger *slog.Logger
}

func NewServiceLogger(logger *slog.Logger, service string) *ServiceLogger {
	return &ServiceLogger{logger: logger.With("service", service)}
}

// Operation times one service call. Create it with WithOperation and finish it with
// LogResult, usually from a defer.
type Operation struct {
	logger  *slog.Logger
	ctx     context.Context
	name    string
	started time.Time
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation string, userID uuid.UUID) *Operation {
	return &Operation{
		logger:  l.logger.With("operation", operation, "user_id", userID.String()),
		ctx:     ctx,
		name:    operation,
		started: time.Now(),
	}
}

// LogResult writes a single line for the operation. Expected client errors are logged
// at Warn with their details, unexpected ones at Error.
func (op *Operation) LogResult(resourceID uuid.UUID, resourceType string, err error) {
	status, level := outcome(err)
	attrs := []slog.Attr{
		slog.String("resource_id", resourceID.String()),
		slog.String("resource_type", resourceType),
		slog.String("status", status),
		slog.Duration("duration", time.Since(op.started)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	var validationErrors ValidationErrors
	var permErr *PermissionError
	switch {
	case errors.As(err, &validationErrors):
		attrs = append(attrs, slog.Int("error_count", len(validationErrors)))
		for i, fe := range validationErrors {
			if i == maxLoggedFieldErrors {
				break
			}
			attrs = append(attrs, slog.String("field_"+fe.Field, fe.Message))
		}
	case errors.As(err, &permErr):
		attrs = append(attrs, slog.String("action", permErr.Action), slog.String("reason", permErr.Reason))
	}

	op.logger.LogAttrs(op.ctx, level, fmt.Sprintf("%s %s", op.name, status), attrs...)
}

func outcome(err error) (string, slog.Level) {
	switch {
	case err == nil:
		return "success", slog.LevelInfo
	case IsValidation(err) || IsBusinessRule(err):
		return "validation_error", slog.LevelWarn
	case IsForbidden(err) || IsUnauthorized(err):
		return "unauthorized", slog.LevelWarn
	case IsConflict(err):
		return "conflict", slog.LevelWarn
	case IsNotFound(err):
		return "not_found", slog.LevelInfo
	default:
		return "error", slog.LevelError
	}
}

// ===== ERROR FORMATTING HELPERS =====

// FormatError renders err as a map suitable for an error response body
func FormatError(err error) map[string]interface{} {
	if err == nil {
		return nil
	}

	result := map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}

	var validationErrors ValidationErrors
	var businessErr *BusinessRuleError
	var permErr *PermissionError
	var externalErr *ExternalServiceError

	switch {
	case errors.As(err, &validationErrors):
		result["type"] = "validation"
		result["errors"] = validationErrors
	case errors.As(err, &businessErr):
		result["type"] = "business_rule"
		result["rule"] = businessErr.Rule
		result["context"] = businessErr.Context
	case errors.As(err, &permErr):
		result["type"] = "permission"
		result["resource"] = permErr.Resource
		result["action"] = permErr.Action
	case errors.As(err, &externalErr):
		result["type"] = "external"
		result["service"] = externalErr.Service
		result["retryable"] = externalErr.Retryable
	case IsNotFound(err):
		result["type"] = "not_found"
	case IsConflict(err):
		result["type"] = "conflict"
	case IsValidation(err):
		result["type"] = "validation"
	}

	return result
}
