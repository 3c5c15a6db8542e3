package services

import (
	"errors"
	"fmt"

	apperrors "github.com/gateprep/exam-service/internal/errors"
	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/google/uuid"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource conflict")

	// Catalog errors
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrDuplicateSubject = errors.New("subject already exists")
	ErrSubjectInUse     = errors.New("subject cannot be deleted - questions reference it")
	ErrQuestionNotFound = errors.New("question not found")

	// Test errors
	ErrTestNotFound          = errors.New("test not found")
	ErrTestQuestionNotFound  = errors.New("test question not found")
	ErrTestInactive          = errors.New("test is not active")
	ErrTestHasAttempts       = errors.New("test already has attempts")
	ErrNoQuestionsSelected   = errors.New("no questions selected")
	ErrInvalidRandomCounts   = errors.New("random selection needs at least one question")
	ErrNoGeneratedQuestions  = errors.New("no generated questions supplied")
	ErrDuplicateTestQuestion = errors.New("question already exists in test")

	// Attempt errors
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptAccessDenied  = errors.New("access denied to attempt")
	ErrAttemptNotActive     = errors.New("attempt is not active")
	ErrQuestionTypeMismatch = errors.New("question type does not match test question")

	// User errors
	ErrUserNotFound = errors.New("user not found")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// BusinessRuleError reports a refused state change. Err is the sentinel the rule
// guards, so errors.Is keeps working on the wrapped value.
type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
	Err     error                  `json:"-"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

func (bre *BusinessRuleError) Unwrap() error {
	return bre.Err
}

type PermissionError struct {
	UserID     uuid.UUID `json:"user_id"`
	ResourceID uuid.UUID `json:"resource_id"`
	Resource   string    `json:"resource"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %s - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

// Unwrap lets errors.Is match ErrForbidden.
func (pe *PermissionError) Unwrap() error {
	return ErrForbidden
}

// ExternalServiceError wraps a failure of a collaborator outside this service.
type ExternalServiceError struct {
	Service   string `json:"service"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{*apperrors.NewValidationError(field, message, value)}
}

func NewBusinessRuleError(rule string, err error, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: err.Error(),
		Context: context,
		Err:     err,
	}
}

func NewPermissionError(userID, resourceID uuid.UUID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSubjectNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrTestQuestionNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden checks if error represents a permission failure
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAttemptAccessDenied)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrNoQuestionsSelected) ||
		errors.Is(err, ErrInvalidRandomCounts) ||
		errors.Is(err, ErrNoGeneratedQuestions) ||
		errors.Is(err, ErrQuestionTypeMismatch) ||
		errors.Is(err, pagination.ErrInvalidCursor) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateSubject) ||
		errors.Is(err, ErrSubjectInUse) ||
		errors.Is(err, ErrTestHasAttempts) ||
		errors.Is(err, ErrTestInactive) ||
		errors.Is(err, ErrAttemptNotActive) ||
		errors.Is(err, ErrDuplicateTestQuestion)
}

// IsExternal checks if error came from an external collaborator
func IsExternal(err error) bool {
	var ese *ExternalServiceError
	return errors.As(err, &ese)
}
