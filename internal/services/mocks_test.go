package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/gateprep/exam-service/internal/cache"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// MockRepository wires the table mocks together. WithTransaction runs the callback
// with a nil tx and returns its error.
type MockRepository struct {
	subjectRepo  *MockSubjectRepository
	questionRepo *MockQuestionRepository
	testRepo     *MockTestRepository
	attemptRepo  *MockAttemptRepository
	responseRepo *MockResponseRepository
	userRepo     *MockUserRepository
}

func newMockRepository() *MockRepository {
	return &MockRepository{
		subjectRepo:  &MockSubjectRepository{},
		questionRepo: &MockQuestionRepository{},
		testRepo:     &MockTestRepository{},
		attemptRepo:  &MockAttemptRepository{},
		responseRepo: &MockResponseRepository{},
		userRepo:     &MockUserRepository{},
	}
}

func (m *MockRepository) Subject() repositories.SubjectRepository   { return m.subjectRepo }
func (m *MockRepository) Question() repositories.QuestionRepository { return m.questionRepo }
func (m *MockRepository) Test() repositories.TestRepository         { return m.testRepo }
func (m *MockRepository) Attempt() repositories.AttemptRepository   { return m.attemptRepo }
func (m *MockRepository) Response() repositories.ResponseRepository { return m.responseRepo }
func (m *MockRepository) User() repositories.UserRepository         { return m.userRepo }

func (m *MockRepository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (m *MockRepository) Ping(ctx context.Context) error { return nil }

func (m *MockRepository) AssertExpectations(t mock.TestingT) {
	m.subjectRepo.AssertExpectations(t)
	m.questionRepo.AssertExpectations(t)
	m.testRepo.AssertExpectations(t)
	m.attemptRepo.AssertExpectations(t)
	m.responseRepo.AssertExpectations(t)
	m.userRepo.AssertExpectations(t)
}

// ===== SUBJECTS =====

type MockSubjectRepository struct {
	mock.Mock
}

func (m *MockSubjectRepository) Create(ctx context.Context, tx *gorm.DB, subject *models.Subject) error {
	args := m.Called(ctx, tx, subject)
	if subject.ID == uuid.Nil {
		subject.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockSubjectRepository) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Subject, error) {
	args := m.Called(ctx, tx, id)
	subject, _ := args.Get(0).(*models.Subject)
	return subject, args.Error(1)
}

func (m *MockSubjectRepository) GetByName(ctx context.Context, tx *gorm.DB, name string) (*models.Subject, error) {
	args := m.Called(ctx, tx, name)
	subject, _ := args.Get(0).(*models.Subject)
	return subject, args.Error(1)
}

func (m *MockSubjectRepository) List(ctx context.Context, tx *gorm.DB) ([]*models.Subject, error) {
	args := m.Called(ctx, tx)
	subjects, _ := args.Get(0).([]*models.Subject)
	return subjects, args.Error(1)
}

func (m *MockSubjectRepository) Update(ctx context.Context, tx *gorm.DB, subject *models.Subject) error {
	args := m.Called(ctx, tx, subject)
	return args.Error(0)
}

func (m *MockSubjectRepository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockSubjectRepository) ExistsByName(ctx context.Context, tx *gorm.DB, name string, excludeID *uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, name, excludeID)
	return args.Bool(0), args.Error(1)
}

// ===== QUESTIONS =====

type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) Create(ctx context.Context, tx *gorm.DB, question models.Question) error {
	args := m.Called(ctx, tx, question)
	if question.Base().ID == uuid.Nil {
		question.Base().ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockQuestionRepository) CreateBatch(ctx context.Context, tx *gorm.DB, questions []models.Question) error {
	args := m.Called(ctx, tx, questions)
	for _, q := range questions {
		if q.Base().ID == uuid.Nil {
			q.Base().ID = uuid.New()
		}
	}
	return args.Error(0)
}

func (m *MockQuestionRepository) GetByID(ctx context.Context, tx *gorm.DB, ref models.QuestionRef) (models.Question, error) {
	args := m.Called(ctx, tx, ref)
	question, _ := args.Get(0).(models.Question)
	return question, args.Error(1)
}

func (m *MockQuestionRepository) Update(ctx context.Context, tx *gorm.DB, question models.Question) error {
	args := m.Called(ctx, tx, question)
	return args.Error(0)
}

func (m *MockQuestionRepository) Delete(ctx context.Context, tx *gorm.DB, ref models.QuestionRef) error {
	args := m.Called(ctx, tx, ref)
	return args.Error(0)
}

func (m *MockQuestionRepository) List(ctx context.Context, tx *gorm.DB, qType models.QuestionType, filters repositories.QuestionFilters) ([]models.Question, error) {
	args := m.Called(ctx, tx, qType, filters)
	questions, _ := args.Get(0).([]models.Question)
	return questions, args.Error(1)
}

func (m *MockQuestionRepository) RandomIDs(ctx context.Context, tx *gorm.DB, qType models.QuestionType, count int, subjectID *uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, tx, qType, count, subjectID)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

func (m *MockQuestionRepository) Resolve(ctx context.Context, tx *gorm.DB, refs []models.QuestionRef) (map[models.QuestionRef]models.Question, error) {
	args := m.Called(ctx, tx, refs)
	resolved, _ := args.Get(0).(map[models.QuestionRef]models.Question)
	return resolved, args.Error(1)
}

func (m *MockQuestionRepository) CountByType(ctx context.Context, tx *gorm.DB) (map[models.QuestionType]int64, error) {
	args := m.Called(ctx, tx)
	counts, _ := args.Get(0).(map[models.QuestionType]int64)
	return counts, args.Error(1)
}

func (m *MockQuestionRepository) CountBySubject(ctx context.Context, tx *gorm.DB, subjectID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, subjectID)
	return args.Get(0).(int64), args.Error(1)
}

// ===== TESTS =====

type MockTestRepository struct {
	mock.Mock
}

func (m *MockTestRepository) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	args := m.Called(ctx, tx, test)
	if test.ID == uuid.Nil {
		test.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockTestRepository) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Test, error) {
	args := m.Called(ctx, tx, id)
	test, _ := args.Get(0).(*models.Test)
	return test, args.Error(1)
}

func (m *MockTestRepository) Update(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	args := m.Called(ctx, tx, test)
	return args.Error(0)
}

func (m *MockTestRepository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockTestRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.Test, error) {
	args := m.Called(ctx, tx, filters)
	tests, _ := args.Get(0).([]*models.Test)
	return tests, args.Error(1)
}

func (m *MockTestRepository) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTestRepository) AddQuestions(ctx context.Context, tx *gorm.DB, testQuestions []*models.TestQuestion) error {
	args := m.Called(ctx, tx, testQuestions)
	return args.Error(0)
}

func (m *MockTestRepository) GetQuestions(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*models.TestQuestion, error) {
	args := m.Called(ctx, tx, testID)
	sequence, _ := args.Get(0).([]*models.TestQuestion)
	return sequence, args.Error(1)
}

func (m *MockTestRepository) GetQuestion(ctx context.Context, tx *gorm.DB, testQuestionID uuid.UUID) (*models.TestQuestion, error) {
	args := m.Called(ctx, tx, testQuestionID)
	tq, _ := args.Get(0).(*models.TestQuestion)
	return tq, args.Error(1)
}

func (m *MockTestRepository) NextOrder(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (int, error) {
	args := m.Called(ctx, tx, testID)
	return args.Int(0), args.Error(1)
}

func (m *MockTestRepository) RemoveQuestion(ctx context.Context, tx *gorm.DB, testID, testQuestionID uuid.UUID) error {
	args := m.Called(ctx, tx, testID, testQuestionID)
	return args.Error(0)
}

func (m *MockTestRepository) HasAttempts(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, testID)
	return args.Bool(0), args.Error(1)
}

// ===== ATTEMPTS =====

type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	args := m.Called(ctx, tx, attempt)
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.TestAttempt, error) {
	args := m.Called(ctx, tx, id)
	attempt, _ := args.Get(0).(*models.TestAttempt)
	return attempt, args.Error(1)
}

func (m *MockAttemptRepository) Update(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	args := m.Called(ctx, tx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.TestAttempt, error) {
	args := m.Called(ctx, tx, id)
	attempt, _ := args.Get(0).(*models.TestAttempt)
	return attempt, args.Error(1)
}

func (m *MockAttemptRepository) GetByIDForShare(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.TestAttempt, error) {
	args := m.Called(ctx, tx, id)
	attempt, _ := args.Get(0).(*models.TestAttempt)
	return attempt, args.Error(1)
}

func (m *MockAttemptRepository) GetActive(ctx context.Context, tx *gorm.DB, studentID, testID uuid.UUID) (*models.TestAttempt, error) {
	args := m.Called(ctx, tx, studentID, testID)
	attempt, _ := args.Get(0).(*models.TestAttempt)
	return attempt, args.Error(1)
}

func (m *MockAttemptRepository) ListByStudent(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) ([]*repositories.AttemptSummary, error) {
	args := m.Called(ctx, tx, studentID)
	rows, _ := args.Get(0).([]*repositories.AttemptSummary)
	return rows, args.Error(1)
}

func (m *MockAttemptRepository) ListResultsByTest(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*models.ResultRow, error) {
	args := m.Called(ctx, tx, testID)
	rows, _ := args.Get(0).([]*models.ResultRow)
	return rows, args.Error(1)
}

func (m *MockAttemptRepository) RecentPerformance(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, limit int) ([]*repositories.PerformancePoint, error) {
	args := m.Called(ctx, tx, studentID, limit)
	points, _ := args.Get(0).([]*repositories.PerformancePoint)
	return points, args.Error(1)
}

func (m *MockAttemptRepository) Stats(ctx context.Context, tx *gorm.DB) (*repositories.AttemptStats, error) {
	args := m.Called(ctx, tx)
	stats, _ := args.Get(0).(*repositories.AttemptStats)
	return stats, args.Error(1)
}

// ===== RESPONSES =====

type MockResponseRepository struct {
	mock.Mock
}

func (m *MockResponseRepository) Upsert(ctx context.Context, tx *gorm.DB, response *models.StudentResponse) error {
	args := m.Called(ctx, tx, response)
	if response.ID == uuid.Nil {
		response.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockResponseRepository) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) ([]*models.StudentResponse, error) {
	args := m.Called(ctx, tx, attemptID)
	responses, _ := args.Get(0).([]*models.StudentResponse)
	return responses, args.Error(1)
}

func (m *MockResponseRepository) UpdateScores(ctx context.Context, tx *gorm.DB, responses []*models.StudentResponse) error {
	args := m.Called(ctx, tx, responses)
	return args.Error(0)
}

func (m *MockResponseRepository) ListMistakes(ctx context.Context, tx *gorm.DB, qType models.QuestionType, filters repositories.MistakeFilters) ([]*repositories.Mistake, error) {
	args := m.Called(ctx, tx, qType, filters)
	mistakes, _ := args.Get(0).([]*repositories.Mistake)
	return mistakes, args.Error(1)
}

func (m *MockResponseRepository) SubjectAccuracy(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) ([]*repositories.SubjectAccuracy, error) {
	args := m.Called(ctx, tx, studentID)
	rows, _ := args.Get(0).([]*repositories.SubjectAccuracy)
	return rows, args.Error(1)
}

// ===== USERS =====

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Upsert(ctx context.Context, tx *gorm.DB, user *models.User) error {
	args := m.Called(ctx, tx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, tx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.UserFilters) ([]*models.User, error) {
	args := m.Called(ctx, tx, filters)
	users, _ := args.Get(0).([]*models.User)
	return users, args.Error(1)
}

func (m *MockUserRepository) CountByRole(ctx context.Context, tx *gorm.DB, role models.UserRole) (int64, error) {
	args := m.Called(ctx, tx, role)
	return args.Get(0).(int64), args.Error(1)
}

// ===== CACHE =====

// recordingCache is an in-memory CacheService that remembers which keys were dropped.
type recordingCache struct {
	mu       sync.Mutex
	entries  map[string][]byte
	deleted  []string
	patterns []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string][]byte)}
}

func (c *recordingCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *recordingCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	data, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *recordingCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *recordingCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.entries, key)
		}
	}
	c.patterns = append(c.patterns, pattern)
	return nil
}

func (c *recordingCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// ===== FIXTURES =====

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func student() models.Actor {
	return models.Actor{ID: uuid.New(), Name: "Asha", Role: models.RoleStudent}
}

func admin() models.Actor {
	return models.Actor{ID: uuid.New(), Name: "Root", Role: models.RoleAdmin}
}

func ptr[T any](v T) *T {
	return &v
}
