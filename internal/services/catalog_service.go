package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gateprep/exam-service/internal/cache"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/gateprep/exam-service/internal/validator"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogService manages subjects and the three question kinds
type CatalogService interface {
	// Subjects
	CreateSubject(ctx context.Context, req *SubjectRequest, actor models.Actor) (*models.Subject, error)
	ListSubjects(ctx context.Context) ([]*models.Subject, error)
	UpdateSubject(ctx context.Context, id uuid.UUID, req *SubjectRequest, actor models.Actor) (*models.Subject, error)
	DeleteSubject(ctx context.Context, id uuid.UUID, actor models.Actor) error

	// Questions
	CreateQuestion(ctx context.Context, req *QuestionRequest, actor models.Actor) (*models.QuestionView, error)
	GetQuestion(ctx context.Context, ref models.QuestionRef, actor models.Actor) (*models.QuestionView, error)
	UpdateQuestion(ctx context.Context, ref models.QuestionRef, req *QuestionRequest, actor models.Actor) (*models.QuestionView, error)
	DeleteQuestion(ctx context.Context, ref models.QuestionRef, actor models.Actor) error
	BulkCreateQuestions(ctx context.Context, req *BulkQuestionsRequest, actor models.Actor) (*BulkQuestionsResponse, error)
}

type catalogService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	cache     cache.CacheService
	ops       *ServiceLogger
}

func NewCatalogService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, cacheService cache.CacheService) CatalogService {
	return &catalogService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		cache:     cacheService,
		ops:       NewServiceLogger(logger, "catalog"),
	}
}

// ===== SUBJECTS =====

func (s *catalogService) CreateSubject(ctx context.Context, req *SubjectRequest, actor models.Actor) (subject *models.Subject, err error) {
	op := s.ops.WithOperation(ctx, "create_subject", actor.ID)
	defer func() { op.LogResult(idOf(subject), "subject", err) }()

	if err := requireManager(actor, uuid.Nil, "subject", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.Subject().ExistsByName(ctx, nil, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check subject name: %w", err)
	}
	if exists {
		return nil, ErrDuplicateSubject
	}

	subject = &models.Subject{Name: name}
	if err := s.repo.Subject().Create(ctx, nil, subject); err != nil {
		if repositories.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateSubject
		}
		return nil, err
	}
	return subject, nil
}

func (s *catalogService) ListSubjects(ctx context.Context) ([]*models.Subject, error) {
	subjects, err := s.repo.Subject().List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	return subjects, nil
}

func (s *catalogService) UpdateSubject(ctx context.Context, id uuid.UUID, req *SubjectRequest, actor models.Actor) (subject *models.Subject, err error) {
	op := s.ops.WithOperation(ctx, "update_subject", actor.ID)
	defer func() { op.LogResult(id, "subject", err) }()

	if err := requireManager(actor, id, "subject", "update"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	subject, err = s.repo.Subject().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.Subject().ExistsByName(ctx, nil, name, &id)
	if err != nil {
		return nil, fmt.Errorf("failed to check subject name: %w", err)
	}
	if exists {
		return nil, ErrDuplicateSubject
	}

	subject.Name = name
	if err := s.repo.Subject().Update(ctx, nil, subject); err != nil {
		if repositories.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateSubject
		}
		return nil, err
	}
	return subject, nil
}

func (s *catalogService) DeleteSubject(ctx context.Context, id uuid.UUID, actor models.Actor) (err error) {
	op := s.ops.WithOperation(ctx, "delete_subject", actor.ID)
	defer func() { op.LogResult(id, "subject", err) }()

	if err := requireManager(actor, id, "subject", "delete"); err != nil {
		return err
	}

	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.Subject().GetByID(ctx, tx, id); err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSubjectNotFound
			}
			return fmt.Errorf("failed to get subject: %w", err)
		}

		inUse, err := s.repo.Question().CountBySubject(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to count subject questions: %w", err)
		}
		if inUse > 0 {
			return NewBusinessRuleError("subject_unreferenced", ErrSubjectInUse, map[string]interface{}{
				"subject_id":     id,
				"question_count": inUse,
			})
		}
		return s.repo.Subject().Delete(ctx, tx, id)
	})
}

// ===== QUESTIONS =====

func (s *catalogService) CreateQuestion(ctx context.Context, req *QuestionRequest, actor models.Actor) (view *models.QuestionView, err error) {
	op := s.ops.WithOperation(ctx, "create_question", actor.ID)
	defer func() { op.LogResult(viewID(view), "question", err) }()

	if err := requireManager(actor, uuid.Nil, "question", "create"); err != nil {
		return nil, err
	}

	question, err := s.buildQuestion(req)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSubject(ctx, nil, req.SubjectID); err != nil {
		return nil, err
	}

	if err := s.repo.Question().Create(ctx, nil, question); err != nil {
		if repositories.IsForeignKeyError(err) {
			return nil, ErrSubjectNotFound
		}
		return nil, err
	}
	s.invalidateStats(ctx)
	return models.View(question), nil
}

func (s *catalogService) GetQuestion(ctx context.Context, ref models.QuestionRef, actor models.Actor) (*models.QuestionView, error) {
	if !ref.Type.Valid() {
		return nil, NewValidationError("type", "must be a valid question type (MCQ, MSQ, NAT)", ref.Type)
	}

	question, err := s.repo.Question().GetByID(ctx, nil, ref)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	view := models.View(question)
	if !actor.CanManage() {
		view = view.Public()
	}
	return view, nil
}

func (s *catalogService) UpdateQuestion(ctx context.Context, ref models.QuestionRef, req *QuestionRequest, actor models.Actor) (view *models.QuestionView, err error) {
	op := s.ops.WithOperation(ctx, "update_question", actor.ID)
	defer func() { op.LogResult(ref.ID, "question", err) }()

	if err := requireManager(actor, ref.ID, "question", "update"); err != nil {
		return nil, err
	}
	if req.Type != ref.Type {
		return nil, NewValidationError("type", "cannot change the type of an existing question", req.Type)
	}

	question, err := s.buildQuestion(req)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Question().GetByID(ctx, nil, ref)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if err := s.ensureSubject(ctx, nil, req.SubjectID); err != nil {
		return nil, err
	}

	base := question.Base()
	base.ID = ref.ID
	base.CreatedAt = existing.Base().CreatedAt

	if err := s.repo.Question().Update(ctx, nil, question); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	s.invalidateTests(ctx)
	return models.View(question), nil
}

func (s *catalogService) DeleteQuestion(ctx context.Context, ref models.QuestionRef, actor models.Actor) (err error) {
	op := s.ops.WithOperation(ctx, "delete_question", actor.ID)
	defer func() { op.LogResult(ref.ID, "question", err) }()

	if err := requireManager(actor, ref.ID, "question", "delete"); err != nil {
		return err
	}
	if !ref.Type.Valid() {
		return NewValidationError("type", "must be a valid question type (MCQ, MSQ, NAT)", ref.Type)
	}

	// Test references to the question are left in place and skipped at scoring time.
	if err := s.repo.Question().Delete(ctx, nil, ref); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return err
	}
	s.invalidateTests(ctx)
	s.invalidateStats(ctx)
	return nil
}

func (s *catalogService) BulkCreateQuestions(ctx context.Context, req *BulkQuestionsRequest, actor models.Actor) (resp *BulkQuestionsResponse, err error) {
	op := s.ops.WithOperation(ctx, "bulk_create_questions", actor.ID)
	defer func() { op.LogResult(uuid.Nil, "question", err) }()

	if err := requireManager(actor, uuid.Nil, "question", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	questions := make([]models.Question, 0, len(req.Questions))
	subjects := make(map[uuid.UUID]struct{})
	var invalid ValidationErrors
	for i := range req.Questions {
		question, err := req.Questions[i].ToModel()
		if err != nil {
			invalid = append(invalid, prefixed(err, fmt.Sprintf("questions[%d].", i))...)
			continue
		}
		s.validator.Question().Normalize(question)
		questions = append(questions, question)
		subjects[req.Questions[i].SubjectID] = struct{}{}
	}
	if len(invalid) > 0 {
		return nil, invalid
	}
	if err := s.validator.Question().ValidateBatch(questions); err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		for subjectID := range subjects {
			if err := s.ensureSubject(ctx, tx, subjectID); err != nil {
				return err
			}
		}
		return s.repo.Question().CreateBatch(ctx, tx, questions)
	})
	if err != nil {
		return nil, err
	}

	resp = &BulkQuestionsResponse{Created: make([]models.QuestionRef, len(questions))}
	for i, q := range questions {
		resp.Created[i] = models.RefOf(q)
	}
	s.invalidateStats(ctx)
	s.logger.Info("Bulk created questions", "count", len(questions), "user_id", actor.ID)
	return resp, nil
}

// ===== HELPERS =====

// invalidateTests drops every cached test detail; any of them may embed the question.
func (s *catalogService) invalidateTests(ctx context.Context) {
	if err := s.cache.DeletePattern(ctx, cache.TestKeyPattern); err != nil {
		s.logger.Warn("Failed to invalidate test cache", "error", err)
	}
}

func (s *catalogService) invalidateStats(ctx context.Context) {
	if err := s.cache.Delete(ctx, cache.AdminStatsKey); err != nil {
		s.logger.Warn("Failed to invalidate stats cache", "error", err)
	}
}

// buildQuestion validates the request shape, converts it and applies the per-type rules.
func (s *catalogService) buildQuestion(req *QuestionRequest) (models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	question, err := req.ToModel()
	if err != nil {
		return nil, err
	}
	s.validator.Question().Normalize(question)
	if err := s.validator.Question().ValidateQuestion(question); err != nil {
		return nil, err
	}
	return question, nil
}

func (s *catalogService) ensureSubject(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if _, err := s.repo.Subject().GetByID(ctx, tx, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrSubjectNotFound
		}
		return fmt.Errorf("failed to get subject: %w", err)
	}
	return nil
}

func requireManager(actor models.Actor, resourceID uuid.UUID, resource, action string) error {
	if actor.CanManage() {
		return nil
	}
	return NewPermissionError(actor.ID, resourceID, resource, action, "requires admin or teacher role")
}

// prefixed returns err as validation errors with every field prefixed.
func prefixed(err error, prefix string) ValidationErrors {
	errs, ok := err.(ValidationErrors)
	if !ok {
		return NewValidationError(strings.TrimSuffix(prefix, "."), err.Error(), nil)
	}
	out := make(ValidationErrors, len(errs))
	for i, e := range errs {
		e.Field = prefix + e.Field
		out[i] = e
	}
	return out
}

func idOf(subject *models.Subject) uuid.UUID {
	if subject == nil {
		return uuid.Nil
	}
	return subject.ID
}

func viewID(view *models.QuestionView) uuid.UUID {
	if view == nil {
		return uuid.Nil
	}
	return view.ID
}
