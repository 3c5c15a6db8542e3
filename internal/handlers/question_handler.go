package handlers

import (
	"net/http"
	"strings"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/services"
	"github.com/gateprep/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type QuestionHandler struct {
	BaseHandler
	catalog      services.CatalogService
	feed         services.FeedService
	importExport services.ImportExportService
}

func NewQuestionHandler(
	catalog services.CatalogService,
	feed services.FeedService,
	importExport services.ImportExportService,
	logger utils.Logger,
) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler:  NewBaseHandler(logger),
		catalog:      catalog,
		feed:         feed,
		importExport: importExport,
	}
}

// ===== SUBJECTS =====

// ListSubjects handles GET /subjects
func (h *QuestionHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.catalog.ListSubjects(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}

// CreateSubject handles POST /subjects
func (h *QuestionHandler) CreateSubject(c *gin.Context) {
	h.LogRequest(c, "Creating subject")
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req services.SubjectRequest
	if !h.bindJSON(c, &req) {
		return
	}

	subject, err := h.catalog.CreateSubject(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, subject)
}

// UpdateSubject handles PUT /subjects/:id
func (h *QuestionHandler) UpdateSubject(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SubjectRequest
	if !h.bindJSON(c, &req) {
		return
	}

	subject, err := h.catalog.UpdateSubject(c.Request.Context(), id, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, subject)
}

// DeleteSubject handles DELETE /subjects/:id
func (h *QuestionHandler) DeleteSubject(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteSubject(c.Request.Context(), id, actor); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== QUESTIONS =====

// ListQuestions handles GET /questions?cursor=&limit=&subject_id=&type=
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	req := services.ListQuestionsRequest{
		PageRequest: parsePageRequest(c),
		Type:        models.QuestionType(strings.ToUpper(c.Query("type"))),
	}
	if raw := c.Query("subject_id"); raw != "" {
		subjectID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid subject_id", Details: err.Error()})
			return
		}
		req.SubjectID = &subjectID
	}

	page, err := h.feed.ListQuestions(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreateQuestion handles POST /questions
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	h.LogRequest(c, "Creating question")
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req services.QuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	question, err := h.catalog.CreateQuestion(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

// BulkCreateQuestions handles POST /questions/bulk
func (h *QuestionHandler) BulkCreateQuestions(c *gin.Context) {
	h.LogRequest(c, "Creating questions in bulk")
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req services.BulkQuestionsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.catalog.BulkCreateQuestions(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ImportQuestions handles POST /questions/import (multipart field "file")
func (h *QuestionHandler) ImportQuestions(c *gin.Context) {
	h.LogRequest(c, "Importing questions")
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Missing upload", Details: err.Error()})
		return
	}
	file, err := header.Open()
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Unreadable upload", err)
		return
	}
	defer file.Close()

	summary, err := h.importExport.ImportQuestions(c.Request.Context(), file, header.Filename, actor)
	if err != nil {
		// Row level failures come back with the summary so the client can fix the file
		if summary != nil && services.IsValidation(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Import rejected",
				Details: summary,
				Code:    "validation_error",
			})
			return
		}
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

// GetQuestion handles GET /questions/:type/:id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	ref, ok := ParseQuestionRef(c)
	if !ok {
		return
	}

	question, err := h.catalog.GetQuestion(c.Request.Context(), ref, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// UpdateQuestion handles PUT /questions/:type/:id
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	ref, ok := ParseQuestionRef(c)
	if !ok {
		return
	}

	var req services.QuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Type == "" {
		req.Type = ref.Type
	}

	question, err := h.catalog.UpdateQuestion(c.Request.Context(), ref, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// DeleteQuestion handles DELETE /questions/:type/:id
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	ref, ok := ParseQuestionRef(c)
	if !ok {
		return
	}

	if err := h.catalog.DeleteQuestion(c.Request.Context(), ref, actor); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
