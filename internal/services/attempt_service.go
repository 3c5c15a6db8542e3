package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gateprep/exam-service/internal/cache"
	"github.com/gateprep/exam-service/internal/events"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/gateprep/exam-service/internal/scoring"
	"github.com/gateprep/exam-service/internal/validator"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttemptService drives an attempt from start through autosaved responses to submission
type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest, actor models.Actor) (*models.TestAttempt, error)
	Respond(ctx context.Context, attemptID uuid.UUID, req *RespondRequest, actor models.Actor) (*models.StudentResponse, error)
	Submit(ctx context.Context, attemptID uuid.UUID, req *SubmitRequest, actor models.Actor) (*SubmitResult, error)

	Get(ctx context.Context, attemptID uuid.UUID, actor models.Actor) (*AttemptDetail, error)
	History(ctx context.Context, actor models.Actor) ([]*repositories.AttemptSummary, error)
}

type attemptService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	cache     cache.CacheService
	publisher events.EventPublisher
	ops       *ServiceLogger
	now       func() time.Time
}

func NewAttemptService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *validator.Validator,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
) AttemptService {
	return &attemptService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		cache:     cacheService,
		publisher: publisher,
		ops:       NewServiceLogger(logger, "attempt"),
		now:       time.Now,
	}
}

// ===== START =====

// Start returns the student's in-progress attempt for the test, creating one if none exists.
func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, actor models.Actor) (attempt *models.TestAttempt, err error) {
	op := s.ops.WithOperation(ctx, "start_attempt", actor.ID)
	defer func() { op.LogResult(attemptIDOf(attempt), "attempt", err) }()

	if !actor.IsStudent() {
		return nil, NewPermissionError(actor.ID, req.TestID, "test", "attempt", "only students can take tests")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	test, err := s.repo.Test().GetByID(ctx, nil, req.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	if !test.IsActive {
		return nil, ErrTestInactive
	}

	attempt, err = s.repo.Attempt().GetActive(ctx, nil, actor.ID, test.ID)
	if err == nil {
		s.logger.Info("Resuming attempt", "attempt_id", attempt.ID, "test_id", test.ID, "student_id", actor.ID)
		return attempt, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}

	attempt = &models.TestAttempt{
		StudentID: actor.ID,
		TestID:    test.ID,
		StartedAt: s.now().UTC(),
		Status:    models.AttemptInProgress,
	}
	if err := s.repo.Attempt().Create(ctx, nil, attempt); err != nil {
		if !repositories.IsDuplicateKeyError(err) {
			return nil, err
		}
		// a concurrent start won the partial unique index
		attempt, err = s.repo.Attempt().GetActive(ctx, nil, actor.ID, test.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get active attempt: %w", err)
		}
		return attempt, nil
	}

	s.publish(ctx, events.NewAttemptStartedEvent(events.AttemptStartedEvent{
		AttemptID:    attempt.ID,
		TestID:       test.ID,
		TestName:     test.Name,
		StudentID:    actor.ID,
		StartedAt:    attempt.StartedAt,
		DurationMins: test.DurationMins,
	}))
	s.logger.Info("Attempt started", "attempt_id", attempt.ID, "test_id", test.ID, "student_id", actor.ID)
	return attempt, nil
}

// ===== RESPOND =====

// Respond upserts the answer to one test question. The attempt row is share-locked so
// that a concurrent submit waits for the write or sees the attempt already closed.
func (s *attemptService) Respond(ctx context.Context, attemptID uuid.UUID, req *RespondRequest, actor models.Actor) (response *models.StudentResponse, err error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	response = &models.StudentResponse{
		AttemptID:         attemptID,
		TestQuestionID:    req.TestQuestionID,
		QuestionType:      req.QuestionType,
		IsMarkedForReview: req.IsMarkedForReview,
		TimeSpentSecs:     req.TimeSpentSecs,
		AnsweredAt:        s.now().UTC(),
	}
	if err := setResponsePayload(response, req); err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		attempt, err := s.repo.Attempt().GetByIDForShare(ctx, tx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to get attempt: %w", err)
		}
		if attempt.StudentID != actor.ID {
			return NewPermissionError(actor.ID, attemptID, "attempt", "respond", "not the attempt owner")
		}
		if attempt.Status != models.AttemptInProgress {
			return ErrAttemptNotActive
		}

		tq, err := s.repo.Test().GetQuestion(ctx, tx, req.TestQuestionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrTestQuestionNotFound
			}
			return fmt.Errorf("failed to get test question: %w", err)
		}
		if tq.TestID != attempt.TestID {
			return ErrTestQuestionNotFound
		}
		if tq.QuestionType != req.QuestionType {
			return ErrQuestionTypeMismatch
		}

		return s.repo.Response().Upsert(ctx, tx, response)
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// setResponsePayload writes the answer into the column matching the question type.
// The other two columns stay null.
func setResponsePayload(response *models.StudentResponse, req *RespondRequest) error {
	switch req.QuestionType {
	case models.QuestionMCQ:
		if req.MCQResponse != nil && *req.MCQResponse != "" {
			key := *req.MCQResponse
			response.MCQResponse = &key
		}
	case models.QuestionNAT:
		if req.NATResponse == nil {
			return nil
		}
		raw := strings.TrimSpace(*req.NATResponse)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return NewValidationError("nat_response", "must be a number", *req.NATResponse)
		}
		response.NATResponse = &v
	case models.QuestionMSQ:
		if len(req.MSQResponse) > 0 {
			response.MSQResponse = datatypes.JSONSlice[models.OptionKey](dedupe(req.MSQResponse))
		}
	}
	return nil
}

func dedupe(keys []models.OptionKey) []models.OptionKey {
	seen := make(map[models.OptionKey]struct{}, len(keys))
	out := make([]models.OptionKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// ===== SUBMIT =====

// Submit scores every question of the attempt's test and closes the attempt in one
// transaction. Submitting a closed attempt returns the stored scores unchanged.
func (s *attemptService) Submit(ctx context.Context, attemptID uuid.UUID, req *SubmitRequest, actor models.Actor) (result *SubmitResult, err error) {
	op := s.ops.WithOperation(ctx, "submit_attempt", actor.ID)
	defer func() { op.LogResult(attemptID, "attempt", err) }()

	if req == nil {
		req = &SubmitRequest{}
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var (
		attempt  *models.TestAttempt
		finished bool
	)
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		attempt, err = s.repo.Attempt().GetByIDForUpdate(ctx, tx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to get attempt: %w", err)
		}
		if attempt.StudentID != actor.ID {
			return NewPermissionError(actor.ID, attemptID, "attempt", "submit", "not the attempt owner")
		}
		if attempt.Status.Finished() {
			finished = true
			result = storedResult(attempt)
			return nil
		}

		if _, err := s.repo.Test().GetByID(ctx, tx, attempt.TestID); err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrTestNotFound
			}
			return fmt.Errorf("failed to get test: %w", err)
		}

		tally, scored, err := s.score(ctx, tx, attempt)
		if err != nil {
			return err
		}
		if err := s.repo.Response().UpdateScores(ctx, tx, scored); err != nil {
			return err
		}

		submittedAt := s.now().UTC()
		attempt.Status = models.AttemptSubmitted
		if req.Reason == SubmitTimeout {
			attempt.Status = models.AttemptTimedOut
		}
		attempt.SubmittedAt = &submittedAt
		attempt.TotalScore = &tally.Total
		attempt.MaxScore = &tally.Max
		if err := s.repo.Attempt().Update(ctx, tx, attempt); err != nil {
			return err
		}

		result = storedResult(attempt)
		result.SkippedQuestions = tally.Skipped
		return nil
	})
	if err != nil {
		return nil, err
	}
	if finished {
		s.logger.Info("Attempt already closed", "attempt_id", attemptID, "status", attempt.Status)
		return result, nil
	}

	if err := s.cache.Delete(ctx, cache.AdminStatsKey); err != nil {
		s.logger.Warn("Failed to invalidate stats cache", "error", err)
	}
	s.publish(ctx, events.NewAttemptSubmittedEvent(events.AttemptSubmittedEvent{
		AttemptID:   attempt.ID,
		TestID:      attempt.TestID,
		StudentID:   attempt.StudentID,
		Status:      string(attempt.Status),
		SubmittedAt: *attempt.SubmittedAt,
		TotalScore:  result.TotalScore,
		MaxScore:    result.MaxScore,
	}))

	s.logger.Info("Attempt submitted",
		"attempt_id", attempt.ID,
		"test_id", attempt.TestID,
		"student_id", attempt.StudentID,
		"status", attempt.Status,
		"total_score", result.TotalScore,
		"max_score", result.MaxScore,
		"skipped_questions", result.SkippedQuestions)
	return result, nil
}

// score evaluates the stored responses against the test's current questions. It returns
// the totals and the responses with is_correct and score_awarded filled in.
func (s *attemptService) score(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) (scoring.Tally, []*models.StudentResponse, error) {
	var tally scoring.Tally

	sequence, err := s.repo.Test().GetQuestions(ctx, tx, attempt.TestID)
	if err != nil {
		return tally, nil, fmt.Errorf("failed to get test questions: %w", err)
	}
	refs := make([]models.QuestionRef, len(sequence))
	for i, tq := range sequence {
		refs[i] = tq.Ref()
	}
	resolved, err := s.repo.Question().Resolve(ctx, tx, refs)
	if err != nil {
		return tally, nil, fmt.Errorf("failed to resolve test questions: %w", err)
	}

	responses, err := s.repo.Response().GetByAttempt(ctx, tx, attempt.ID)
	if err != nil {
		return tally, nil, err
	}
	byTestQuestion := make(map[uuid.UUID]*models.StudentResponse, len(responses))
	for _, r := range responses {
		byTestQuestion[r.TestQuestionID] = r
	}

	scored := make([]*models.StudentResponse, 0, len(responses))
	for _, tq := range sequence {
		response := byTestQuestion[tq.ID]

		question, ok := resolved[tq.Ref()]
		if !ok {
			s.logger.Warn("Skipping unresolved question during scoring",
				"attempt_id", attempt.ID,
				"test_id", attempt.TestID,
				"test_question_id", tq.ID,
				"question_id", tq.QuestionID,
				"question_type", tq.QuestionType)
			tally.Skip()
			if response != nil {
				scored = append(scored, withScore(response, false, 0))
			}
			continue
		}

		res := scoring.Evaluate(question, scoring.FromStudentResponse(response))
		tally.Add(question.Base().Marks, res.Score)
		if response != nil {
			scored = append(scored, withScore(response, res.IsCorrect, scoring.Round(res.Score)))
		}
	}
	return tally, scored, nil
}

func withScore(response *models.StudentResponse, correct bool, score float64) *models.StudentResponse {
	response.IsCorrect = &correct
	response.ScoreAwarded = &score
	return response
}

func storedResult(attempt *models.TestAttempt) *SubmitResult {
	result := &SubmitResult{
		AttemptID:   attempt.ID,
		Status:      attempt.Status,
		SubmittedAt: attempt.SubmittedAt,
	}
	if attempt.TotalScore != nil {
		result.TotalScore = *attempt.TotalScore
	}
	if attempt.MaxScore != nil {
		result.MaxScore = *attempt.MaxScore
	}
	return result
}

// ===== READS =====

func (s *attemptService) Get(ctx context.Context, attemptID uuid.UUID, actor models.Actor) (*AttemptDetail, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.StudentID != actor.ID && !actor.CanManage() {
		return nil, ErrAttemptAccessDenied
	}

	responses, err := s.repo.Response().GetByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, err
	}
	return &AttemptDetail{Attempt: *attempt, Responses: responses}, nil
}

func (s *attemptService) History(ctx context.Context, actor models.Actor) ([]*repositories.AttemptSummary, error) {
	attempts, err := s.repo.Attempt().ListByStudent(ctx, nil, actor.ID)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (s *attemptService) publish(ctx context.Context, event *events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event", "event_type", event.Type, "error", err)
	}
}

func attemptIDOf(attempt *models.TestAttempt) uuid.UUID {
	if attempt == nil {
		return uuid.Nil
	}
	return attempt.ID
}
