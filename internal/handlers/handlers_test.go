package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gateprep/exam-service/internal/middleware"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/gateprep/exam-service/internal/services"
	"github.com/gateprep/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	studentActor = models.Actor{ID: uuid.MustParse("6f1c2b9e-3d7a-4c55-9b0e-2a8f4d1e7c01"), Name: "Asha", Role: models.RoleStudent}
	teacherActor = models.Actor{ID: uuid.MustParse("0b7e4a1d-52c8-4f3e-8d96-7c1a9e2b5f10"), Name: "Ravi", Role: models.RoleTeacher}
)

// fakeAuth authenticates by the X-Test-Role header
func fakeAuth(c *gin.Context) {
	switch c.GetHeader("X-Test-Role") {
	case "student":
		middleware.SetActor(c, studentActor)
	case "teacher":
		middleware.SetActor(c, teacherActor)
	default:
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Next()
}

func setupRouter(sm *MockServiceManager, db Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	router := gin.New()
	router.Use(utils.ContextLogger(logger))
	NewHandlerManager(sm, db, logger).SetupRoutes(router, fakeAuth)
	return router
}

func do(router *gin.Engine, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleServiceError_StatusMapping(t *testing.T) {
	attemptID := uuid.New()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("load: %w", services.ErrAttemptNotFound), http.StatusNotFound, "not_found"},
		{"not the owner", services.ErrAttemptAccessDenied, http.StatusForbidden, "forbidden"},
		{"permission error", services.NewPermissionError(studentActor.ID, attemptID, "attempt", "read", "not owner"), http.StatusForbidden, "forbidden"},
		{"field validation", services.NewValidationError("nat_response", "must be a number", "abc"), http.StatusBadRequest, "validation_error"},
		{"bad cursor", pagination.ErrInvalidCursor, http.StatusBadRequest, "validation_error"},
		{"closed attempt", services.ErrAttemptNotActive, http.StatusBadRequest, "conflict"},
		{"unauthorized", services.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"generator down", &services.ExternalServiceError{Service: "gemini", Retryable: true, Err: errors.New("503")}, http.StatusBadGateway, "external_error"},
		{"anything else", errors.New("connection reset"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := newMockServiceManager()
			sm.attempt.On("Get", mock.Anything, attemptID, studentActor).Return(nil, tt.err)
			router := setupRouter(sm, stubPinger{})

			w := do(router, http.MethodGet, "/api/v1/attempts/"+attemptID.String(), "student", nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestHandleServiceError_ValidationDetails(t *testing.T) {
	sm := newMockServiceManager()
	sm.catalog.On("CreateSubject", mock.Anything, &services.SubjectRequest{Name: ""}, teacherActor).
		Return(nil, services.NewValidationError("name", "is required", ""))
	router := setupRouter(sm, stubPinger{})

	w := do(router, http.MethodPost, "/api/v1/subjects", "teacher", map[string]string{"name": ""})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Details []services.ValidationError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "name", resp.Details[0].Field)
}

func TestRoutes_RoleGuards(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		role   string
	}{
		{"students cannot compose tests", http.MethodPost, "/api/v1/tests", "student"},
		{"students cannot create questions", http.MethodPost, "/api/v1/questions", "student"},
		{"students cannot see the roster", http.MethodGet, "/api/v1/students", "student"},
		{"students cannot read admin stats", http.MethodGet, "/api/v1/admin/stats", "student"},
		{"teachers cannot sit tests", http.MethodPost, "/api/v1/attempts", "teacher"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(newMockServiceManager(), stubPinger{})
			w := do(router, tt.method, tt.path, tt.role, map[string]string{})
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}

	t.Run("anonymous requests are rejected", func(t *testing.T) {
		router := setupRouter(newMockServiceManager(), stubPinger{})
		w := do(router, http.MethodGet, "/api/v1/tests", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAttemptHandler_Lifecycle(t *testing.T) {
	testID := uuid.New()
	attemptID := uuid.New()
	tqID := uuid.New()

	sm := newMockServiceManager()
	sm.attempt.On("Start", mock.Anything, &services.StartAttemptRequest{TestID: testID}, studentActor).
		Return(&models.TestAttempt{ID: attemptID, TestID: testID, StudentID: studentActor.ID, Status: models.AttemptInProgress}, nil)
	sm.attempt.On("Respond", mock.Anything, attemptID, mock.MatchedBy(func(req *services.RespondRequest) bool {
		return req.TestQuestionID == tqID && req.NATResponse != nil && *req.NATResponse == "11.5"
	}), studentActor).Return(&models.StudentResponse{AttemptID: attemptID, TestQuestionID: tqID}, nil)
	sm.attempt.On("Submit", mock.Anything, attemptID, &services.SubmitRequest{}, studentActor).
		Return(&services.SubmitResult{AttemptID: attemptID, Status: models.AttemptSubmitted, TotalScore: 1.67, MaxScore: 3}, nil)

	router := setupRouter(sm, stubPinger{})

	w := do(router, http.MethodPost, "/api/v1/attempts", "student", map[string]string{"test_id": testID.String()})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(router, http.MethodPut, "/api/v1/attempts/"+attemptID.String()+"/responses", "student", map[string]interface{}{
		"test_question_id": tqID,
		"question_type":    "NAT",
		"nat_response":     "11.5",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// no body means a manual submission
	w = do(router, http.MethodPost, "/api/v1/attempts/"+attemptID.String()+"/submit", "student", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result services.SubmitResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1.67, result.TotalScore)
	assert.Equal(t, models.AttemptSubmitted, result.Status)
	sm.attempt.AssertExpectations(t)
}

func TestAttemptHandler_BadInput(t *testing.T) {
	router := setupRouter(newMockServiceManager(), stubPinger{})

	w := do(router, http.MethodGet, "/api/v1/attempts/not-a-uuid", "student", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/"+uuid.NewString()+"/submit", bytes.NewBufferString("{"))
	req.Header.Set("X-Test-Role", "student")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_payload", decodeError(t, rec).Code)
}

func TestQuestionHandler_ListQuestions_ParsesQuery(t *testing.T) {
	subjectID := uuid.New()

	sm := newMockServiceManager()
	sm.feed.On("ListQuestions", mock.Anything, &services.ListQuestionsRequest{
		PageRequest: services.PageRequest{Cursor: "abc", Limit: pagination.MaxLimit},
		SubjectID:   &subjectID,
		Type:        models.QuestionNAT,
	}, studentActor).Return(&pagination.Page[*models.QuestionView]{Items: []*models.QuestionView{}}, nil)
	router := setupRouter(sm, stubPinger{})

	w := do(router, http.MethodGet, "/api/v1/questions?type=nat&limit=500&cursor=abc&subject_id="+subjectID.String(), "student", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"next_cursor":null,"has_more":false}`, w.Body.String())
	sm.feed.AssertExpectations(t)

	w = do(router, http.MethodGet, "/api/v1/questions?subject_id=nope", "student", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuestionHandler_QuestionRef(t *testing.T) {
	id := uuid.New()

	sm := newMockServiceManager()
	sm.catalog.On("GetQuestion", mock.Anything, models.QuestionRef{ID: id, Type: models.QuestionMSQ}, studentActor).
		Return(&models.QuestionView{ID: id, Type: models.QuestionMSQ}, nil)
	sm.catalog.On("DeleteQuestion", mock.Anything, models.QuestionRef{ID: id, Type: models.QuestionMCQ}, teacherActor).Return(nil)
	router := setupRouter(sm, stubPinger{})

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/questions/msq/"+id.String(), "student", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, "/api/v1/questions/MCQ/"+id.String(), "teacher", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/questions/essay/"+id.String(), "student", nil).Code)
	sm.catalog.AssertExpectations(t)
}

func TestQuestionHandler_ImportQuestions(t *testing.T) {
	upload := func(t *testing.T, router *gin.Engine) *httptest.ResponseRecorder {
		t.Helper()
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		part, err := form.CreateFormFile("file", "questions.xlsx")
		require.NoError(t, err)
		_, err = part.Write([]byte("xlsx bytes"))
		require.NoError(t, err)
		require.NoError(t, form.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/questions/import", &body)
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set("X-Test-Role", "teacher")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("created", func(t *testing.T) {
		sm := newMockServiceManager()
		sm.importExport.On("ImportQuestions", mock.Anything, mock.Anything, "questions.xlsx", teacherActor).
			Return(&models.ImportSummary{TotalRows: 2, SuccessCount: 2}, nil)

		w := upload(t, setupRouter(sm, stubPinger{}))

		assert.Equal(t, http.StatusCreated, w.Code)
		sm.importExport.AssertExpectations(t)
	})

	t.Run("row errors come back with the summary", func(t *testing.T) {
		summary := &models.ImportSummary{TotalRows: 2, ErrorCount: 1, Errors: []models.ImportValidationError{
			{Row: 3, Column: "correct", Message: "must be one of A-D"},
		}}
		sm := newMockServiceManager()
		sm.importExport.On("ImportQuestions", mock.Anything, mock.Anything, "questions.xlsx", teacherActor).
			Return(summary, fmt.Errorf("%w: %d invalid rows", services.ErrValidationFailed, 1))

		w := upload(t, setupRouter(sm, stubPinger{}))

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp struct {
			Details models.ImportSummary `json:"details"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Details.Errors, 1)
		assert.Equal(t, 3, resp.Details.Errors[0].Row)
	})

	t.Run("missing file", func(t *testing.T) {
		router := setupRouter(newMockServiceManager(), stubPinger{})
		w := do(router, http.MethodPost, "/api/v1/questions/import", "teacher", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTestHandler_ExportResults(t *testing.T) {
	testID := uuid.New()

	sm := newMockServiceManager()
	sm.importExport.On("ExportResults", mock.Anything, testID, teacherActor).Return([]byte("PK"), nil)
	router := setupRouter(sm, stubPinger{})

	w := do(router, http.MethodGet, "/api/v1/tests/"+testID.String()+"/results.xlsx", "teacher", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), testID.String())
	assert.Equal(t, "PK", w.Body.String())
}

func TestTestHandler_RemoveQuestion(t *testing.T) {
	testID := uuid.New()
	tqID := uuid.New()

	sm := newMockServiceManager()
	sm.test.On("RemoveQuestion", mock.Anything, testID, tqID, teacherActor).
		Return(services.NewBusinessRuleError("sequence_before_attempts", services.ErrTestHasAttempts, map[string]interface{}{"test_id": testID}))
	router := setupRouter(sm, stubPinger{})

	w := do(router, http.MethodDelete, fmt.Sprintf("/api/v1/tests/%s/questions/%s", testID, tqID), "teacher", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Details struct {
			Type string `json:"type"`
			Rule string `json:"rule"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, services.ErrTestHasAttempts.Error(), resp.Message)
	assert.Equal(t, "conflict", resp.Code)
	assert.Equal(t, "business_rule", resp.Details.Type)
	assert.Equal(t, "sequence_before_attempts", resp.Details.Rule)
}

func TestHealthCheck(t *testing.T) {
	w := do(setupRouter(newMockServiceManager(), stubPinger{}), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(setupRouter(newMockServiceManager(), stubPinger{err: errors.New("refused")}), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
