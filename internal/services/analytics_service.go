package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/gateprep/exam-service/internal/cache"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/gateprep/exam-service/internal/scoring"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// recentAttempts is how many finished attempts the performance chart shows.
const recentAttempts = 10

// AnalyticsService provides the admin dashboard and per-student analytics
type AnalyticsService interface {
	AdminStats(ctx context.Context, actor models.Actor) (*AdminStats, error)
	StudentAnalytics(ctx context.Context, actor models.Actor) (*StudentAnalytics, error)
}

type analyticsService struct {
	repo     repositories.Repository
	logger   *slog.Logger
	cache    cache.CacheService
	cacheTTL time.Duration
	now      func() time.Time
}

func NewAnalyticsService(repo repositories.Repository, logger *slog.Logger, cacheService cache.CacheService, cacheTTL time.Duration) AnalyticsService {
	return &analyticsService{
		repo:     repo,
		logger:   logger,
		cache:    cacheService,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (s *analyticsService) AdminStats(ctx context.Context, actor models.Actor) (*AdminStats, error) {
	if err := requireManager(actor, uuid.Nil, "stats", "read"); err != nil {
		return nil, err
	}

	var stats AdminStats
	err := s.cache.Get(ctx, cache.AdminStatsKey, &stats)
	if err == nil {
		return &stats, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Stats cache read failed", "error", err)
	}

	var (
		questionCounts map[models.QuestionType]int64
		attemptStats   *repositories.AttemptStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		questionCounts, err = s.repo.Question().CountByType(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		stats.Tests, err = s.repo.Test().Count(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		stats.Students, err = s.repo.User().CountByRole(gctx, nil, models.RoleStudent)
		return err
	})
	g.Go(func() (err error) {
		attemptStats, err = s.repo.Attempt().Stats(gctx, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to collect admin stats: %w", err)
	}

	stats.QuestionCounts = make(map[models.QuestionType]int64, len(models.QuestionTypes))
	for _, kind := range models.QuestionTypes {
		stats.QuestionCounts[kind] = questionCounts[kind]
		stats.TotalQuestions += questionCounts[kind]
	}
	stats.Attempts = attemptStats.TotalAttempts
	stats.FinishedAttempts = attemptStats.FinishedAttempts
	stats.AverageScore = scoring.Round(attemptStats.AverageTotalScore)
	stats.GeneratedAt = s.now().UTC()

	if err := s.cache.Set(ctx, cache.AdminStatsKey, &stats, s.cacheTTL); err != nil {
		s.logger.Warn("Stats cache write failed", "error", err)
	}
	return &stats, nil
}

// StudentAnalytics reports the actor's recent finished attempts in chronological order
// and per-subject accuracy over every scored response.
func (s *analyticsService) StudentAnalytics(ctx context.Context, actor models.Actor) (*StudentAnalytics, error) {
	var (
		performance []*repositories.PerformancePoint
		accuracy    []*repositories.SubjectAccuracy
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		performance, err = s.repo.Attempt().RecentPerformance(gctx, nil, actor.ID, recentAttempts)
		return err
	})
	g.Go(func() (err error) {
		accuracy, err = s.repo.Response().SubjectAccuracy(gctx, nil, actor.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to collect student analytics: %w", err)
	}

	// newest first from the store, the chart reads oldest first
	slices.Reverse(performance)

	out := &StudentAnalytics{
		Performance:     performance,
		SubjectAccuracy: make([]SubjectAccuracy, 0, len(accuracy)),
	}
	if out.Performance == nil {
		out.Performance = []*repositories.PerformancePoint{}
	}
	for _, a := range accuracy {
		out.SubjectAccuracy = append(out.SubjectAccuracy, SubjectAccuracy{
			SubjectID:   a.SubjectID,
			SubjectName: a.SubjectName,
			Correct:     a.Correct,
			Total:       a.Total,
			Accuracy:    percent(a.Correct, a.Total),
		})
	}
	return out, nil
}

func percent(part, total int64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
