package services

import (
	"context"
	"log/slog"

	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/gateprep/exam-service/internal/validator"
	"github.com/google/uuid"
)

// FeedService serves the cursor-paginated feeds. Feeds over the question kinds query
// one source per kind and merge them into a single newest-first page.
type FeedService interface {
	ListQuestions(ctx context.Context, req *ListQuestionsRequest, actor models.Actor) (*pagination.Page[*models.QuestionView], error)
	ListMistakes(ctx context.Context, req *PageRequest, actor models.Actor) (*pagination.Page[*MistakeItem], error)
	ListStudents(ctx context.Context, req *PageRequest, actor models.Actor) (*pagination.Page[*models.User], error)
}

type feedService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
}

func NewFeedService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) FeedService {
	return &feedService{
		repo:      repo,
		logger:    logger,
		validator: validator,
	}
}

func (s *feedService) ListQuestions(ctx context.Context, req *ListQuestionsRequest, actor models.Actor) (*pagination.Page[*models.QuestionView], error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	after, err := pagination.Decode(req.Cursor)
	if err != nil {
		return nil, err
	}

	kinds := models.QuestionTypes
	if req.Type != "" {
		kinds = []models.QuestionType{req.Type}
	}

	sources := make([]pagination.Source[models.Question], len(kinds))
	for i, kind := range kinds {
		kind := kind
		sources[i] = func(ctx context.Context, after *pagination.Cursor, limit int) ([]models.Question, error) {
			return s.repo.Question().List(ctx, nil, kind, repositories.QuestionFilters{
				SubjectID: req.SubjectID,
				After:     after,
				Limit:     limit,
			})
		}
	}

	page, err := pagination.Fetch(ctx, after, req.Limit, sources...)
	if err != nil {
		return nil, err
	}

	manager := actor.CanManage()
	return mapPage(page, func(q models.Question) *models.QuestionView {
		view := models.View(q)
		if !manager {
			view = view.Public()
		}
		return view
	}), nil
}

// ListMistakes pages through the actor's incorrectly answered questions across every
// finished attempt. Responses whose question has since been deleted are not listed.
func (s *feedService) ListMistakes(ctx context.Context, req *PageRequest, actor models.Actor) (*pagination.Page[*MistakeItem], error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	after, err := pagination.Decode(req.Cursor)
	if err != nil {
		return nil, err
	}

	sources := make([]pagination.Source[*repositories.Mistake], len(models.QuestionTypes))
	for i, kind := range models.QuestionTypes {
		kind := kind
		sources[i] = func(ctx context.Context, after *pagination.Cursor, limit int) ([]*repositories.Mistake, error) {
			return s.repo.Response().ListMistakes(ctx, nil, kind, repositories.MistakeFilters{
				StudentID: actor.ID,
				After:     after,
				Limit:     limit,
			})
		}
	}

	page, err := pagination.Fetch(ctx, after, req.Limit, sources...)
	if err != nil {
		return nil, err
	}
	return mapPage(page, toMistakeItem), nil
}

func (s *feedService) ListStudents(ctx context.Context, req *PageRequest, actor models.Actor) (*pagination.Page[*models.User], error) {
	if err := requireManager(actor, uuid.Nil, "student", "list"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	after, err := pagination.Decode(req.Cursor)
	if err != nil {
		return nil, err
	}

	role := models.RoleStudent
	page, err := pagination.Fetch(ctx, after, req.Limit,
		func(ctx context.Context, after *pagination.Cursor, limit int) ([]*models.User, error) {
			return s.repo.User().List(ctx, nil, repositories.UserFilters{Role: &role, After: after, Limit: limit})
		})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func toMistakeItem(m *repositories.Mistake) *MistakeItem {
	item := &MistakeItem{
		ResponseID:   m.Response.ID,
		AttemptID:    m.Response.AttemptID,
		TestID:       m.TestID,
		AnsweredAt:   m.Response.AnsweredAt,
		MCQResponse:  m.Response.MCQResponse,
		NATResponse:  m.Response.NATResponse,
		MSQResponse:  m.Response.MSQResponse,
		ScoreAwarded: m.Response.ScoreAwarded,
	}
	if m.Question != nil {
		item.Question = models.View(m.Question)
	}
	return item
}

// mapPage converts page items, keeping the cursor and has-more flag.
func mapPage[T, U any](page pagination.Page[T], fn func(T) U) *pagination.Page[U] {
	out := &pagination.Page[U]{
		Items:      make([]U, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	for i, item := range page.Items {
		out.Items[i] = fn(item)
	}
	return out
}
