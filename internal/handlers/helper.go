package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/gateprep/exam-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ParseUUIDParam reads a uuid path parameter. On failure it writes a 400 and
// returns false.
func ParseUUIDParam(c *gin.Context, param string) (uuid.UUID, bool) {
	idStr := strings.TrimSpace(c.Param(param))
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: err.Error(),
		})
		return uuid.Nil, false
	}
	return id, true
}

// ParseQuestionRef reads the :type/:id pair that addresses a question
func ParseQuestionRef(c *gin.Context) (models.QuestionRef, bool) {
	qType := models.QuestionType(strings.ToUpper(c.Param("type")))
	if !qType.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid type",
			Details: "type must be one of MCQ, MSQ, NAT",
		})
		return models.QuestionRef{}, false
	}
	id, ok := ParseUUIDParam(c, "id")
	if !ok {
		return models.QuestionRef{}, false
	}
	return models.QuestionRef{ID: id, Type: qType}, true
}

func parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// parsePageRequest reads cursor and limit. Out of range limits are clamped rather
// than rejected.
func parsePageRequest(c *gin.Context) services.PageRequest {
	return services.PageRequest{
		Cursor: c.Query("cursor"),
		Limit:  pagination.ClampLimit(parseIntQuery(c, "limit", 0)),
	}
}
