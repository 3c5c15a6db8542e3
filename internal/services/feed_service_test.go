package services

import (
	"context"
	"testing"
	"time"

	"github.com/gateprep/exam-service/internal/cache"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/gateprep/exam-service/internal/validator"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestFeedService_ListQuestions_MergesKinds(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	at := func(minutes int) models.QuestionBase {
		return models.QuestionBase{ID: uuid.New(), Question: "q", Marks: 1, CreatedAt: base.Add(time.Duration(minutes) * time.Minute)}
	}

	mcq := []models.Question{
		&models.MCQQuestion{QuestionBase: at(50), CorrectAns: models.Option1},
		&models.MCQQuestion{QuestionBase: at(10), CorrectAns: models.Option2},
	}
	msq := []models.Question{
		&models.MSQQuestion{QuestionBase: at(40), CorrectAnswers: []models.OptionKey{models.Option1}},
	}
	nat := []models.Question{
		&models.NATQuestion{QuestionBase: at(60), CorrectAnsMin: 1, CorrectAnsMax: 2},
		&models.NATQuestion{QuestionBase: at(30), CorrectAnsMin: 3, CorrectAnsMax: 4},
	}

	repo := newMockRepository()
	filters := repositories.QuestionFilters{Limit: 3}
	repo.questionRepo.On("List", mock.Anything, (*gorm.DB)(nil), models.QuestionMCQ, filters).Return(mcq, nil)
	repo.questionRepo.On("List", mock.Anything, (*gorm.DB)(nil), models.QuestionMSQ, filters).Return(msq, nil)
	repo.questionRepo.On("List", mock.Anything, (*gorm.DB)(nil), models.QuestionNAT, filters).Return(nat, nil)

	svc := NewFeedService(repo, discardLogger(), validator.New())
	page, err := svc.ListQuestions(ctx, &ListQuestionsRequest{PageRequest: PageRequest{Limit: 3}}, student())

	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, nat[0].Base().ID, page.Items[0].ID)
	assert.Equal(t, mcq[0].Base().ID, page.Items[1].ID)
	assert.Equal(t, msq[0].Base().ID, page.Items[2].ID)
	for _, item := range page.Items {
		assert.Nil(t, item.CorrectAns)
		assert.Empty(t, item.CorrectAnswers)
		assert.Nil(t, item.CorrectAnsMin)
	}

	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	cursor, err := pagination.Decode(*page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, msq[0].Key(), *cursor)
	repo.AssertExpectations(t)
}

func TestFeedService_ListQuestions_SingleKind(t *testing.T) {
	ctx := context.Background()
	subjectID := uuid.New()

	repo := newMockRepository()
	repo.questionRepo.On("List", mock.Anything, (*gorm.DB)(nil), models.QuestionNAT, mock.MatchedBy(func(f repositories.QuestionFilters) bool {
		return f.SubjectID != nil && *f.SubjectID == subjectID
	})).Return([]models.Question{}, nil)

	svc := NewFeedService(repo, discardLogger(), validator.New())
	page, err := svc.ListQuestions(ctx, &ListQuestionsRequest{SubjectID: &subjectID, Type: models.QuestionNAT}, admin())

	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)
	repo.AssertExpectations(t)
}

func TestFeedService_InvalidCursor(t *testing.T) {
	svc := NewFeedService(newMockRepository(), discardLogger(), validator.New())

	_, err := svc.ListMistakes(context.Background(), &PageRequest{Cursor: "not-a-cursor"}, student())

	assert.ErrorIs(t, err, pagination.ErrInvalidCursor)
	assert.True(t, IsValidation(err))
}

func TestFeedService_ListMistakes(t *testing.T) {
	ctx := context.Background()
	actor := student()
	answeredAt := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)

	mistake := &repositories.Mistake{
		Response: models.StudentResponse{
			ID: uuid.New(), AttemptID: uuid.New(), QuestionType: models.QuestionMCQ,
			MCQResponse: ptr(models.Option3), ScoreAwarded: ptr(-0.33), AnsweredAt: answeredAt,
		},
		TestID:   uuid.New(),
		Question: &models.MCQQuestion{QuestionBase: models.QuestionBase{ID: uuid.New(), Question: "q"}, CorrectAns: models.Option1},
	}

	repo := newMockRepository()
	ownMistakes := mock.MatchedBy(func(f repositories.MistakeFilters) bool { return f.StudentID == actor.ID })
	repo.responseRepo.On("ListMistakes", mock.Anything, (*gorm.DB)(nil), models.QuestionMCQ, ownMistakes).Return([]*repositories.Mistake{mistake}, nil)
	repo.responseRepo.On("ListMistakes", mock.Anything, (*gorm.DB)(nil), models.QuestionMSQ, ownMistakes).Return([]*repositories.Mistake{}, nil)
	repo.responseRepo.On("ListMistakes", mock.Anything, (*gorm.DB)(nil), models.QuestionNAT, ownMistakes).Return([]*repositories.Mistake{}, nil)

	svc := NewFeedService(repo, discardLogger(), validator.New())
	page, err := svc.ListMistakes(ctx, &PageRequest{}, actor)

	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	item := page.Items[0]
	assert.Equal(t, mistake.Response.ID, item.ResponseID)
	assert.Equal(t, mistake.TestID, item.TestID)
	require.NotNil(t, item.Question)
	assert.Equal(t, models.Option1, *item.Question.CorrectAns, "mistake review shows the correct answer")
	repo.AssertExpectations(t)
}

func TestFeedService_ListStudents_RequiresManager(t *testing.T) {
	svc := NewFeedService(newMockRepository(), discardLogger(), validator.New())

	_, err := svc.ListStudents(context.Background(), &PageRequest{}, student())

	assert.True(t, IsForbidden(err))
}

func TestAnalyticsService_AdminStats(t *testing.T) {
	ctx := context.Background()

	repo := newMockRepository()
	repo.questionRepo.On("CountByType", mock.Anything, (*gorm.DB)(nil)).Return(map[models.QuestionType]int64{
		models.QuestionMCQ: 12,
		models.QuestionNAT: 3,
	}, nil)
	repo.testRepo.On("Count", mock.Anything, (*gorm.DB)(nil)).Return(int64(4), nil)
	repo.userRepo.On("CountByRole", mock.Anything, (*gorm.DB)(nil), models.RoleStudent).Return(int64(25), nil)
	repo.attemptRepo.On("Stats", mock.Anything, (*gorm.DB)(nil)).Return(&repositories.AttemptStats{
		TotalAttempts: 40, FinishedAttempts: 31, AverageTotalScore: 7.456,
	}, nil)

	svc := NewAnalyticsService(repo, discardLogger(), cache.NewNoopCache(), time.Minute)
	stats, err := svc.AdminStats(ctx, admin())

	require.NoError(t, err)
	assert.Equal(t, int64(15), stats.TotalQuestions)
	assert.Equal(t, int64(0), stats.QuestionCounts[models.QuestionMSQ])
	assert.Len(t, stats.QuestionCounts, 3)
	assert.Equal(t, int64(4), stats.Tests)
	assert.Equal(t, int64(25), stats.Students)
	assert.Equal(t, int64(31), stats.FinishedAttempts)
	assert.Equal(t, 7.46, stats.AverageScore)
	repo.AssertExpectations(t)

	_, err = svc.AdminStats(ctx, student())
	assert.True(t, IsForbidden(err))
}

func TestAnalyticsService_StudentAnalytics(t *testing.T) {
	ctx := context.Background()
	actor := student()
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	newest := &repositories.PerformancePoint{AttemptID: uuid.New(), TotalScore: 8, MaxScore: 10, Date: day.Add(48 * time.Hour)}
	oldest := &repositories.PerformancePoint{AttemptID: uuid.New(), TotalScore: 4, MaxScore: 10, Date: day}

	repo := newMockRepository()
	repo.attemptRepo.On("RecentPerformance", mock.Anything, (*gorm.DB)(nil), actor.ID, 10).
		Return([]*repositories.PerformancePoint{newest, oldest}, nil)
	repo.responseRepo.On("SubjectAccuracy", mock.Anything, (*gorm.DB)(nil), actor.ID).
		Return([]*repositories.SubjectAccuracy{
			{SubjectID: uuid.New(), SubjectName: "Algorithms", Correct: 2, Total: 3},
			{SubjectID: uuid.New(), SubjectName: "Databases", Correct: 0, Total: 0},
		}, nil)

	svc := NewAnalyticsService(repo, discardLogger(), cache.NewNoopCache(), time.Minute)
	analytics, err := svc.StudentAnalytics(ctx, actor)

	require.NoError(t, err)
	require.Len(t, analytics.Performance, 2)
	assert.Equal(t, oldest.AttemptID, analytics.Performance[0].AttemptID)
	assert.Equal(t, newest.AttemptID, analytics.Performance[1].AttemptID)
	require.Len(t, analytics.SubjectAccuracy, 2)
	assert.Equal(t, 67, analytics.SubjectAccuracy[0].Accuracy)
	assert.Zero(t, analytics.SubjectAccuracy[1].Accuracy)
	repo.AssertExpectations(t)
}
