package services

import (
	"log/slog"
	"time"

	"github.com/gateprep/exam-service/internal/cache"
	"github.com/gateprep/exam-service/internal/events"
	"github.com/gateprep/exam-service/internal/generator"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/gateprep/exam-service/internal/validator"
)

// ServiceManager gives handlers access to every service
type ServiceManager interface {
	Catalog() CatalogService
	Test() TestService
	Attempt() AttemptService
	Feed() FeedService
	Analytics() AnalyticsService
	ImportExport() ImportExportService
}

// Dependencies are the collaborators shared by the services.
type Dependencies struct {
	Repo      repositories.Repository
	Logger    *slog.Logger
	Validator *validator.Validator
	Cache     cache.CacheService
	Publisher events.EventPublisher
	Generator generator.Generator
	CacheTTL  time.Duration
}

type serviceManager struct {
	catalog      CatalogService
	test         TestService
	attempt      AttemptService
	feed         FeedService
	analytics    AnalyticsService
	importExport ImportExportService
}

func NewServiceManager(deps Dependencies) ServiceManager {
	return &serviceManager{
		catalog:      NewCatalogService(deps.Repo, deps.Logger, deps.Validator, deps.Cache),
		test:         NewTestService(deps.Repo, deps.Logger, deps.Validator, deps.Cache, deps.Publisher, deps.Generator, deps.CacheTTL),
		attempt:      NewAttemptService(deps.Repo, deps.Logger, deps.Validator, deps.Cache, deps.Publisher),
		feed:         NewFeedService(deps.Repo, deps.Logger, deps.Validator),
		analytics:    NewAnalyticsService(deps.Repo, deps.Logger, deps.Cache, deps.CacheTTL),
		importExport: NewImportExportService(deps.Repo, deps.Logger, deps.Validator, deps.Cache, deps.Publisher),
	}
}

func (m *serviceManager) Catalog() CatalogService           { return m.catalog }
func (m *serviceManager) Test() TestService                 { return m.test }
func (m *serviceManager) Attempt() AttemptService           { return m.attempt }
func (m *serviceManager) Feed() FeedService                 { return m.feed }
func (m *serviceManager) Analytics() AnalyticsService       { return m.analytics }
func (m *serviceManager) ImportExport() ImportExportService { return m.importExport }
