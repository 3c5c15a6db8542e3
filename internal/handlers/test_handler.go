package handlers

import (
	"fmt"
	"net/http"

	"github.com/gateprep/exam-service/internal/services"
	"github.com/gateprep/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type TestHandler struct {
	BaseHandler
	tests        services.TestService
	importExport services.ImportExportService
}

func NewTestHandler(tests services.TestService, importExport services.ImportExportService, logger utils.Logger) *TestHandler {
	return &TestHandler{
		BaseHandler:  NewBaseHandler(logger),
		tests:        tests,
		importExport: importExport,
	}
}

// CreateTest handles POST /tests
// @Summary Compose a test manually, randomly or from AI generated questions
// @Router /tests [post]
func (h *TestHandler) CreateTest(c *gin.Context) {
	h.LogRequest(c, "Creating test")
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req services.CreateTestRequest
	if !h.bindJSON(c, &req) {
		return
	}

	test, err := h.tests.Create(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, test)
}

// ListTests handles GET /tests?cursor=&limit=&active_only=
func (h *TestHandler) ListTests(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	req := services.ListTestsRequest{
		PageRequest: parsePageRequest(c),
		ActiveOnly:  c.Query("active_only") == "true",
	}

	page, err := h.tests.List(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetTest handles GET /tests/:id
func (h *TestHandler) GetTest(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.tests.Get(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// UpdateTest handles PUT /tests/:id
func (h *TestHandler) UpdateTest(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateTestRequest
	if !h.bindJSON(c, &req) {
		return
	}

	test, err := h.tests.Update(c.Request.Context(), id, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// DeleteTest handles DELETE /tests/:id
func (h *TestHandler) DeleteTest(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.tests.Delete(c.Request.Context(), id, actor); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddQuestion handles POST /tests/:id/questions
func (h *TestHandler) AddQuestion(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.AddTestQuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	tq, err := h.tests.AddQuestion(c.Request.Context(), id, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tq)
}

// RemoveQuestion handles DELETE /tests/:id/questions/:tqid
func (h *TestHandler) RemoveQuestion(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	tqID, ok := ParseUUIDParam(c, "tqid")
	if !ok {
		return
	}

	if err := h.tests.RemoveQuestion(c.Request.Context(), id, tqID, actor); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GenerateQuestions handles POST /tests/generate. The batch is returned for review
// and is not stored.
func (h *TestHandler) GenerateQuestions(c *gin.Context) {
	h.LogRequest(c, "Generating questions")
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req services.GenerateQuestionsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	questions, err := h.tests.GenerateQuestions(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// ExportResults handles GET /tests/:id/results.xlsx
func (h *TestHandler) ExportResults(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	data, err := h.importExport.ExportResults(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "results-"+id.String()+".xlsx"))
	c.Data(http.StatusOK, xlsxContentType, data)
}
