package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gateprep/exam-service/internal/cache"
	"github.com/gateprep/exam-service/internal/events"
	"github.com/gateprep/exam-service/internal/generator"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/gateprep/exam-service/internal/validator"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TestService composes tests from the catalog and manages their question sequence
type TestService interface {
	Create(ctx context.Context, req *CreateTestRequest, actor models.Actor) (*models.Test, error)
	Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*TestDetail, error)
	List(ctx context.Context, req *ListTestsRequest, actor models.Actor) (*pagination.Page[*models.Test], error)
	Update(ctx context.Context, id uuid.UUID, req *UpdateTestRequest, actor models.Actor) (*models.Test, error)
	Delete(ctx context.Context, id uuid.UUID, actor models.Actor) error

	// Question sequence
	AddQuestion(ctx context.Context, testID uuid.UUID, req *AddTestQuestionRequest, actor models.Actor) (*models.TestQuestion, error)
	RemoveQuestion(ctx context.Context, testID, testQuestionID uuid.UUID, actor models.Actor) error

	// GenerateQuestions previews an AI batch without persisting it
	GenerateQuestions(ctx context.Context, req *GenerateQuestionsRequest, actor models.Actor) ([]generator.GeneratedQuestion, error)
}

type testService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	cache     cache.CacheService
	publisher events.EventPublisher
	generator generator.Generator
	cacheTTL  time.Duration
	ops       *ServiceLogger
}

func NewTestService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *validator.Validator,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	gen generator.Generator,
	cacheTTL time.Duration,
) TestService {
	return &testService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		cache:     cacheService,
		publisher: publisher,
		generator: gen,
		cacheTTL:  cacheTTL,
		ops:       NewServiceLogger(logger, "test"),
	}
}

// ===== COMPOSER =====

// Create writes the test row, any generated catalog rows and the ordered references
// in one transaction. Orders are 1..N in selection order.
func (s *testService) Create(ctx context.Context, req *CreateTestRequest, actor models.Actor) (test *models.Test, err error) {
	op := s.ops.WithOperation(ctx, "create_test", actor.ID)
	defer func() { op.LogResult(testIDOf(test), "test", err) }()

	if err := requireManager(actor, uuid.Nil, "test", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	// generated questions are checked before the transaction opens
	var generated []models.Question
	switch req.SelectionMode {
	case models.SelectionManual:
		if len(req.QuestionIDs) == 0 {
			return nil, ErrNoQuestionsSelected
		}
		if err := checkDistinct(req.QuestionIDs); err != nil {
			return nil, err
		}
	case models.SelectionRandom:
		if req.RandomCounts == nil || req.RandomCounts.Total() == 0 {
			return nil, ErrInvalidRandomCounts
		}
	case models.SelectionAI:
		if len(req.GeneratedQuestions) == 0 {
			return nil, ErrNoGeneratedQuestions
		}
		if req.SubjectID == nil {
			return nil, NewValidationError("subject_id", "is required for ai selection", nil)
		}
		if generated, err = s.toModels(req.GeneratedQuestions, *req.SubjectID); err != nil {
			return nil, err
		}
	}

	test = &models.Test{
		Name:         req.Name,
		Type:         req.Type,
		DurationMins: req.DurationMins,
		IsActive:     true,
		CreatedBy:    actor.ID,
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		refs, err := s.selectQuestions(ctx, tx, req, generated)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return ErrNoQuestionsSelected
		}

		if err := s.repo.Test().Create(ctx, tx, test); err != nil {
			return err
		}

		sequence := make([]*models.TestQuestion, len(refs))
		for i, ref := range refs {
			sequence[i] = &models.TestQuestion{
				TestID:        test.ID,
				QuestionID:    ref.ID,
				QuestionType:  ref.Type,
				QuestionOrder: i + 1,
			}
		}
		if err := s.repo.Test().AddQuestions(ctx, tx, sequence); err != nil {
			return err
		}
		test.QuestionCount = len(sequence)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStats(ctx)
	s.publish(ctx, events.NewTestCreatedEvent(events.TestCreatedEvent{
		TestID:        test.ID,
		Name:          test.Name,
		Type:          string(test.Type),
		SelectionMode: string(req.SelectionMode),
		QuestionCount: test.QuestionCount,
		CreatedBy:     actor.ID,
	}))

	s.logger.Info("Test created",
		"test_id", test.ID,
		"selection_mode", req.SelectionMode,
		"question_count", test.QuestionCount)
	return test, nil
}

// selectQuestions returns the ordered references for the requested strategy.
func (s *testService) selectQuestions(ctx context.Context, tx *gorm.DB, req *CreateTestRequest, generated []models.Question) ([]models.QuestionRef, error) {
	switch req.SelectionMode {
	case models.SelectionManual:
		resolved, err := s.repo.Question().Resolve(ctx, tx, req.QuestionIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve questions: %w", err)
		}
		for i, ref := range req.QuestionIDs {
			if _, ok := resolved[ref]; !ok {
				return nil, NewValidationError(fmt.Sprintf("question_ids[%d]", i), "question not found", ref.ID)
			}
		}
		return req.QuestionIDs, nil

	case models.SelectionRandom:
		// a short supply is not an error: every available question is taken
		var refs []models.QuestionRef
		for _, qType := range models.QuestionTypes {
			count := req.RandomCounts.For(qType)
			if count == 0 {
				continue
			}
			ids, err := s.repo.Question().RandomIDs(ctx, tx, qType, count, req.SubjectID)
			if err != nil {
				return nil, fmt.Errorf("failed to draw %s questions: %w", qType, err)
			}
			if len(ids) < count {
				s.logger.Warn("Fewer questions available than requested",
					"question_type", qType, "requested", count, "available", len(ids))
			}
			for _, id := range ids {
				refs = append(refs, models.QuestionRef{ID: id, Type: qType})
			}
		}
		return refs, nil

	case models.SelectionAI:
		if _, err := s.repo.Subject().GetByID(ctx, tx, *req.SubjectID); err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, ErrSubjectNotFound
			}
			return nil, fmt.Errorf("failed to get subject: %w", err)
		}
		if err := s.repo.Question().CreateBatch(ctx, tx, generated); err != nil {
			return nil, err
		}
		refs := make([]models.QuestionRef, len(generated))
		for i, q := range generated {
			refs[i] = models.RefOf(q)
		}
		return refs, nil
	}
	return nil, NewValidationError("selection_mode", "must be one of manual, random, ai", req.SelectionMode)
}

func (s *testService) toModels(batch []generator.GeneratedQuestion, subjectID uuid.UUID) ([]models.Question, error) {
	questions := make([]models.Question, 0, len(batch))
	var invalid ValidationErrors
	for i, g := range batch {
		q, err := g.ToModel(subjectID)
		if err != nil {
			invalid = append(invalid, NewValidationError(fmt.Sprintf("generated_questions[%d]", i), err.Error(), g.Type)...)
			continue
		}
		s.validator.Question().Normalize(q)
		questions = append(questions, q)
	}
	if len(invalid) > 0 {
		return nil, invalid
	}
	if err := s.validator.Question().ValidateBatch(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func checkDistinct(refs []models.QuestionRef) error {
	seen := make(map[models.QuestionRef]struct{}, len(refs))
	for i, ref := range refs {
		if _, dup := seen[ref]; dup {
			return NewValidationError(fmt.Sprintf("question_ids[%d]", i), "question selected more than once", ref.ID)
		}
		seen[ref] = struct{}{}
	}
	return nil
}

// ===== READS =====

func (s *testService) Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*TestDetail, error) {
	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.CanManage() {
		return detail, nil
	}
	if !detail.Test.IsActive {
		return nil, ErrTestNotFound
	}
	return detail.Public(), nil
}

// loadDetail reads the resolved test through the cache.
func (s *testService) loadDetail(ctx context.Context, id uuid.UUID) (*TestDetail, error) {
	key := cache.TestKey(id.String())

	var cached TestDetail
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Test cache read failed", "test_id", id, "error", err)
	}

	test, err := s.repo.Test().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	sequence, err := s.repo.Test().GetQuestions(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get test questions: %w", err)
	}

	refs := make([]models.QuestionRef, len(sequence))
	for i, tq := range sequence {
		refs[i] = tq.Ref()
	}
	resolved, err := s.repo.Question().Resolve(ctx, nil, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve test questions: %w", err)
	}

	detail := &TestDetail{Test: *test, Questions: make([]TestQuestionView, len(sequence))}
	detail.Test.QuestionCount = len(sequence)
	for i, tq := range sequence {
		view := TestQuestionView{
			TestQuestionID: tq.ID,
			QuestionOrder:  tq.QuestionOrder,
			QuestionID:     tq.QuestionID,
			QuestionType:   tq.QuestionType,
		}
		if q, ok := resolved[tq.Ref()]; ok {
			view.Question = models.View(q)
		}
		detail.Questions[i] = view
	}

	if err := s.cache.Set(ctx, key, detail, s.cacheTTL); err != nil {
		s.logger.Warn("Test cache write failed", "test_id", id, "error", err)
	}
	return detail, nil
}

func (s *testService) List(ctx context.Context, req *ListTestsRequest, actor models.Actor) (*pagination.Page[*models.Test], error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	after, err := pagination.Decode(req.Cursor)
	if err != nil {
		return nil, err
	}

	activeOnly := req.ActiveOnly || !actor.CanManage()
	page, err := pagination.Fetch(ctx, after, req.Limit,
		func(ctx context.Context, after *pagination.Cursor, limit int) ([]*models.Test, error) {
			return s.repo.Test().List(ctx, nil, repositories.TestFilters{ActiveOnly: activeOnly, After: after, Limit: limit})
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return &page, nil
}

// ===== MUTATIONS =====

func (s *testService) Update(ctx context.Context, id uuid.UUID, req *UpdateTestRequest, actor models.Actor) (test *models.Test, err error) {
	op := s.ops.WithOperation(ctx, "update_test", actor.ID)
	defer func() { op.LogResult(id, "test", err) }()

	if err := requireManager(actor, id, "test", "update"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	test, err = s.repo.Test().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	if req.Name != nil {
		test.Name = *req.Name
	}
	if req.Type != nil {
		test.Type = *req.Type
	}
	if req.DurationMins != nil {
		test.DurationMins = *req.DurationMins
	}
	if req.IsActive != nil {
		test.IsActive = *req.IsActive
	}

	if err := s.repo.Test().Update(ctx, nil, test); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	s.invalidateTest(ctx, id)
	return test, nil
}

func (s *testService) Delete(ctx context.Context, id uuid.UUID, actor models.Actor) (err error) {
	op := s.ops.WithOperation(ctx, "delete_test", actor.ID)
	defer func() { op.LogResult(id, "test", err) }()

	if err := requireManager(actor, id, "test", "delete"); err != nil {
		return err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.lockSequence(ctx, tx, id); err != nil {
			return err
		}
		return s.repo.Test().Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.invalidateTest(ctx, id)
	s.invalidateStats(ctx)
	return nil
}

func (s *testService) AddQuestion(ctx context.Context, testID uuid.UUID, req *AddTestQuestionRequest, actor models.Actor) (added *models.TestQuestion, err error) {
	op := s.ops.WithOperation(ctx, "add_test_question", actor.ID)
	defer func() { op.LogResult(testID, "test", err) }()

	if err := requireManager(actor, testID, "test", "update"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	ref := models.QuestionRef{ID: req.QuestionID, Type: req.QuestionType}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.lockSequence(ctx, tx, testID); err != nil {
			return err
		}
		if _, err := s.repo.Question().GetByID(ctx, tx, ref); err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuestionNotFound
			}
			return fmt.Errorf("failed to get question: %w", err)
		}

		sequence, err := s.repo.Test().GetQuestions(ctx, tx, testID)
		if err != nil {
			return fmt.Errorf("failed to get test questions: %w", err)
		}
		for _, tq := range sequence {
			if tq.Ref() == ref {
				return ErrDuplicateTestQuestion
			}
		}

		order, err := s.repo.Test().NextOrder(ctx, tx, testID)
		if err != nil {
			return err
		}
		added = &models.TestQuestion{
			TestID:        testID,
			QuestionID:    ref.ID,
			QuestionType:  ref.Type,
			QuestionOrder: order,
		}
		return s.repo.Test().AddQuestions(ctx, tx, []*models.TestQuestion{added})
	})
	if err != nil {
		return nil, err
	}
	s.invalidateTest(ctx, testID)
	return added, nil
}

func (s *testService) RemoveQuestion(ctx context.Context, testID, testQuestionID uuid.UUID, actor models.Actor) (err error) {
	op := s.ops.WithOperation(ctx, "remove_test_question", actor.ID)
	defer func() { op.LogResult(testQuestionID, "test_question", err) }()

	if err := requireManager(actor, testID, "test", "update"); err != nil {
		return err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.lockSequence(ctx, tx, testID); err != nil {
			return err
		}
		tq, err := s.repo.Test().GetQuestion(ctx, tx, testQuestionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrTestQuestionNotFound
			}
			return fmt.Errorf("failed to get test question: %w", err)
		}
		if tq.TestID != testID {
			return ErrTestQuestionNotFound
		}
		return s.repo.Test().RemoveQuestion(ctx, tx, testID, testQuestionID)
	})
	if err != nil {
		return err
	}
	s.invalidateTest(ctx, testID)
	return nil
}

// lockSequence checks the test exists and has no attempts, which would reference its positions.
func (s *testService) lockSequence(ctx context.Context, tx *gorm.DB, testID uuid.UUID) error {
	if _, err := s.repo.Test().GetByID(ctx, tx, testID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTestNotFound
		}
		return fmt.Errorf("failed to get test: %w", err)
	}
	hasAttempts, err := s.repo.Test().HasAttempts(ctx, tx, testID)
	if err != nil {
		return err
	}
	if hasAttempts {
		return NewBusinessRuleError("sequence_before_attempts", ErrTestHasAttempts, map[string]interface{}{
			"test_id": testID,
		})
	}
	return nil
}

// ===== GENERATION =====

func (s *testService) GenerateQuestions(ctx context.Context, req *GenerateQuestionsRequest, actor models.Actor) (batch []generator.GeneratedQuestion, err error) {
	op := s.ops.WithOperation(ctx, "generate_questions", actor.ID)
	defer func() { op.LogResult(req.SubjectID, "subject", err) }()

	if err := requireManager(actor, req.SubjectID, "question", "generate"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	subject, err := s.repo.Subject().GetByID(ctx, nil, req.SubjectID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	batch, err = s.generator.Generate(ctx, generator.Request{
		SubjectName:  subject.Name,
		Count:        req.Count,
		Type:         req.Type,
		Instructions: req.Instructions,
	})
	if err != nil {
		var apiErr *generator.APIError
		retryable := !errors.Is(err, generator.ErrNotConfigured)
		if errors.As(err, &apiErr) {
			retryable = apiErr.Retryable()
		}
		return nil, &ExternalServiceError{Service: "gemini", Retryable: retryable, Err: err}
	}

	// the preview must be acceptable to the ai composer as-is
	if _, err := s.toModels(batch, subject.ID); err != nil {
		return nil, &ExternalServiceError{Service: "gemini", Retryable: true, Err: fmt.Errorf("generated batch failed validation: %w", err)}
	}
	return batch, nil
}

// ===== SIDE EFFECTS =====

func (s *testService) invalidateTest(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, cache.TestKey(id.String())); err != nil {
		s.logger.Warn("Failed to invalidate test cache", "test_id", id, "error", err)
	}
}

func (s *testService) invalidateStats(ctx context.Context) {
	if err := s.cache.Delete(ctx, cache.AdminStatsKey); err != nil {
		s.logger.Warn("Failed to invalidate stats cache", "error", err)
	}
}

func (s *testService) publish(ctx context.Context, event *events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event", "event_type", event.Type, "error", err)
	}
}

func testIDOf(test *models.Test) uuid.UUID {
	if test == nil {
		return uuid.Nil
	}
	return test.ID
}
