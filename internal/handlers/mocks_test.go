package handlers

import (
	"context"
	"io"

	"github.com/gateprep/exam-service/internal/generator"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/gateprep/exam-service/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockServiceManager struct {
	catalog      *MockCatalogService
	test         *MockTestService
	attempt      *MockAttemptService
	feed         *MockFeedService
	analytics    *MockAnalyticsService
	importExport *MockImportExportService
}

func newMockServiceManager() *MockServiceManager {
	return &MockServiceManager{
		catalog:      new(MockCatalogService),
		test:         new(MockTestService),
		attempt:      new(MockAttemptService),
		feed:         new(MockFeedService),
		analytics:    new(MockAnalyticsService),
		importExport: new(MockImportExportService),
	}
}

func (m *MockServiceManager) Catalog() services.CatalogService           { return m.catalog }
func (m *MockServiceManager) Test() services.TestService                 { return m.test }
func (m *MockServiceManager) Attempt() services.AttemptService           { return m.attempt }
func (m *MockServiceManager) Feed() services.FeedService                 { return m.feed }
func (m *MockServiceManager) Analytics() services.AnalyticsService       { return m.analytics }
func (m *MockServiceManager) ImportExport() services.ImportExportService { return m.importExport }

// ===== CATALOG =====

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) CreateSubject(ctx context.Context, req *services.SubjectRequest, actor models.Actor) (*models.Subject, error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).(*models.Subject)
	return v, args.Error(1)
}

func (m *MockCatalogService) ListSubjects(ctx context.Context) ([]*models.Subject, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]*models.Subject)
	return v, args.Error(1)
}

func (m *MockCatalogService) UpdateSubject(ctx context.Context, id uuid.UUID, req *services.SubjectRequest, actor models.Actor) (*models.Subject, error) {
	args := m.Called(ctx, id, req, actor)
	v, _ := args.Get(0).(*models.Subject)
	return v, args.Error(1)
}

func (m *MockCatalogService) DeleteSubject(ctx context.Context, id uuid.UUID, actor models.Actor) error {
	return m.Called(ctx, id, actor).Error(0)
}

func (m *MockCatalogService) CreateQuestion(ctx context.Context, req *services.QuestionRequest, actor models.Actor) (*models.QuestionView, error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).(*models.QuestionView)
	return v, args.Error(1)
}

func (m *MockCatalogService) GetQuestion(ctx context.Context, ref models.QuestionRef, actor models.Actor) (*models.QuestionView, error) {
	args := m.Called(ctx, ref, actor)
	v, _ := args.Get(0).(*models.QuestionView)
	return v, args.Error(1)
}

func (m *MockCatalogService) UpdateQuestion(ctx context.Context, ref models.QuestionRef, req *services.QuestionRequest, actor models.Actor) (*models.QuestionView, error) {
	args := m.Called(ctx, ref, req, actor)
	v, _ := args.Get(0).(*models.QuestionView)
	return v, args.Error(1)
}

func (m *MockCatalogService) DeleteQuestion(ctx context.Context, ref models.QuestionRef, actor models.Actor) error {
	return m.Called(ctx, ref, actor).Error(0)
}

func (m *MockCatalogService) BulkCreateQuestions(ctx context.Context, req *services.BulkQuestionsRequest, actor models.Actor) (*services.BulkQuestionsResponse, error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).(*services.BulkQuestionsResponse)
	return v, args.Error(1)
}

// ===== TESTS =====

type MockTestService struct {
	mock.Mock
}

func (m *MockTestService) Create(ctx context.Context, req *services.CreateTestRequest, actor models.Actor) (*models.Test, error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).(*models.Test)
	return v, args.Error(1)
}

func (m *MockTestService) Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*services.TestDetail, error) {
	args := m.Called(ctx, id, actor)
	v, _ := args.Get(0).(*services.TestDetail)
	return v, args.Error(1)
}

func (m *MockTestService) List(ctx context.Context, req *services.ListTestsRequest, actor models.Actor) (*pagination.Page[*models.Test], error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).(*pagination.Page[*models.Test])
	return v, args.Error(1)
}

func (m *MockTestService) Update(ctx context.Context, id uuid.UUID, req *services.UpdateTestRequest, actor models.Actor) (*models.Test, error) {
	args := m.Called(ctx, id, req, actor)
	v, _ := args.Get(0).(*models.Test)
	return v, args.Error(1)
}

func (m *MockTestService) Delete(ctx context.Context, id uuid.UUID, actor models.Actor) error {
	return m.Called(ctx, id, actor).Error(0)
}

func (m *MockTestService) AddQuestion(ctx context.Context, testID uuid.UUID, req *services.AddTestQuestionRequest, actor models.Actor) (*models.TestQuestion, error) {
	args := m.Called(ctx, testID, req, actor)
	v, _ := args.Get(0).(*models.TestQuestion)
	return v, args.Error(1)
}

func (m *MockTestService) RemoveQuestion(ctx context.Context, testID, testQuestionID uuid.UUID, actor models.Actor) error {
	return m.Called(ctx, testID, testQuestionID, actor).Error(0)
}

func (m *MockTestService) GenerateQuestions(ctx context.Context, req *services.GenerateQuestionsRequest, actor models.Actor) ([]generator.GeneratedQuestion, error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).([]generator.GeneratedQuestion)
	return v, args.Error(1)
}

// ===== ATTEMPTS =====

type MockAttemptService struct {
	mock.Mock
}

func (m *MockAttemptService) Start(ctx context.Context, req *services.StartAttemptRequest, actor models.Actor) (*models.TestAttempt, error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).(*models.TestAttempt)
	return v, args.Error(1)
}

func (m *MockAttemptService) Respond(ctx context.Context, attemptID uuid.UUID, req *services.RespondRequest, actor models.Actor) (*models.StudentResponse, error) {
	args := m.Called(ctx, attemptID, req, actor)
	v, _ := args.Get(0).(*models.StudentResponse)
	return v, args.Error(1)
}

func (m *MockAttemptService) Submit(ctx context.Context, attemptID uuid.UUID, req *services.SubmitRequest, actor models.Actor) (*services.SubmitResult, error) {
	args := m.Called(ctx, attemptID, req, actor)
	v, _ := args.Get(0).(*services.SubmitResult)
	return v, args.Error(1)
}

func (m *MockAttemptService) Get(ctx context.Context, attemptID uuid.UUID, actor models.Actor) (*services.AttemptDetail, error) {
	args := m.Called(ctx, attemptID, actor)
	v, _ := args.Get(0).(*services.AttemptDetail)
	return v, args.Error(1)
}

func (m *MockAttemptService) History(ctx context.Context, actor models.Actor) ([]*repositories.AttemptSummary, error) {
	args := m.Called(ctx, actor)
	v, _ := args.Get(0).([]*repositories.AttemptSummary)
	return v, args.Error(1)
}

// ===== FEEDS =====

type MockFeedService struct {
	mock.Mock
}

func (m *MockFeedService) ListQuestions(ctx context.Context, req *services.ListQuestionsRequest, actor models.Actor) (*pagination.Page[*models.QuestionView], error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).(*pagination.Page[*models.QuestionView])
	return v, args.Error(1)
}

func (m *MockFeedService) ListMistakes(ctx context.Context, req *services.PageRequest, actor models.Actor) (*pagination.Page[*services.MistakeItem], error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).(*pagination.Page[*services.MistakeItem])
	return v, args.Error(1)
}

func (m *MockFeedService) ListStudents(ctx context.Context, req *services.PageRequest, actor models.Actor) (*pagination.Page[*models.User], error) {
	args := m.Called(ctx, req, actor)
	v, _ := args.Get(0).(*pagination.Page[*models.User])
	return v, args.Error(1)
}

// ===== ANALYTICS =====

type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) AdminStats(ctx context.Context, actor models.Actor) (*services.AdminStats, error) {
	args := m.Called(ctx, actor)
	v, _ := args.Get(0).(*services.AdminStats)
	return v, args.Error(1)
}

func (m *MockAnalyticsService) StudentAnalytics(ctx context.Context, actor models.Actor) (*services.StudentAnalytics, error) {
	args := m.Called(ctx, actor)
	v, _ := args.Get(0).(*services.StudentAnalytics)
	return v, args.Error(1)
}

// ===== IMPORT / EXPORT =====

type MockImportExportService struct {
	mock.Mock
}

func (m *MockImportExportService) ImportQuestions(ctx context.Context, reader io.Reader, filename string, actor models.Actor) (*models.ImportSummary, error) {
	args := m.Called(ctx, reader, filename, actor)
	v, _ := args.Get(0).(*models.ImportSummary)
	return v, args.Error(1)
}

func (m *MockImportExportService) ExportResults(ctx context.Context, testID uuid.UUID, actor models.Actor) ([]byte, error) {
	args := m.Called(ctx, testID, actor)
	v, _ := args.Get(0).([]byte)
	return v, args.Error(1)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }
