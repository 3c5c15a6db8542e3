package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gateprep/exam-service/internal/middleware"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/services"
	"github.com/gateprep/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerManager struct {
	questionHandler *QuestionHandler
	testHandler     *TestHandler
	attemptHandler  *AttemptHandler
	studentHandler  *StudentHandler

	db     Pinger
	logger utils.Logger
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	db Pinger,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		questionHandler: NewQuestionHandler(serviceManager.Catalog(), serviceManager.Feed(), serviceManager.ImportExport(), logger),
		testHandler:     NewTestHandler(serviceManager.Test(), serviceManager.ImportExport(), logger),
		attemptHandler:  NewAttemptHandler(serviceManager.Attempt(), logger),
		studentHandler:  NewStudentHandler(serviceManager.Feed(), serviceManager.Attempt(), serviceManager.Analytics(), logger),
		db:              db,
		logger:          logger,
	}
}

// SetupRoutes sets up all API routes. authenticate must place a models.Actor on
// the context for every /api/v1 request.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine, authenticate gin.HandlerFunc) {
	router.GET("/health", hm.HealthCheck)

	managers := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	v1 := router.Group("/api/v1", authenticate)
	{
		subjects := v1.Group("/subjects")
		{
			subjects.GET("", hm.questionHandler.ListSubjects)
			subjects.POST("", managers, hm.questionHandler.CreateSubject)
			subjects.PUT("/:id", managers, hm.questionHandler.UpdateSubject)
			subjects.DELETE("/:id", managers, hm.questionHandler.DeleteSubject)
		}

		questions := v1.Group("/questions")
		{
			questions.GET("", hm.questionHandler.ListQuestions)
			questions.POST("", managers, hm.questionHandler.CreateQuestion)
			questions.POST("/bulk", managers, hm.questionHandler.BulkCreateQuestions)
			questions.POST("/import", managers, hm.questionHandler.ImportQuestions)
			questions.GET("/:type/:id", hm.questionHandler.GetQuestion)
			questions.PUT("/:type/:id", managers, hm.questionHandler.UpdateQuestion)
			questions.DELETE("/:type/:id", managers, hm.questionHandler.DeleteQuestion)
		}

		tests := v1.Group("/tests")
		{
			tests.GET("", hm.testHandler.ListTests)
			tests.POST("", managers, hm.testHandler.CreateTest)
			tests.POST("/generate", managers, hm.testHandler.GenerateQuestions)
			tests.GET("/:id", hm.testHandler.GetTest)
			tests.PUT("/:id", managers, hm.testHandler.UpdateTest)
			tests.DELETE("/:id", managers, hm.testHandler.DeleteTest)
			tests.GET("/:id/results.xlsx", managers, hm.testHandler.ExportResults)
			tests.POST("/:id/questions", managers, hm.testHandler.AddQuestion)
			tests.DELETE("/:id/questions/:tqid", managers, hm.testHandler.RemoveQuestion)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("", middleware.RequireRoles(models.RoleStudent), hm.attemptHandler.StartAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/responses", hm.attemptHandler.SaveResponse)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
		}

		students := v1.Group("/students")
		{
			students.GET("", managers, hm.studentHandler.ListStudents)
			students.GET("/me/history", hm.studentHandler.History)
			students.GET("/me/mistakes", hm.studentHandler.Mistakes)
			students.GET("/me/analytics", hm.studentHandler.Analytics)
		}

		v1.GET("/admin/stats", managers, hm.studentHandler.AdminStats)
	}
}

// HealthCheck handles GET /health
func (hm *HandlerManager) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := hm.db.Ping(ctx); err != nil {
		hm.logger.LogError(err, "Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "exam-service",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "exam-service",
	})
}
