package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
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
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	resultsSheet   = "Results"
	exportTimeFmt  = "2006-01-02 15:04:05"
	maxImportRows  = 2000
	importColType  = "type"
	importColSubj  = "subject"
	importColQText = "question"
)

// ImportExportService handles spreadsheet import of questions and export of results
type ImportExportService interface {
	ImportQuestions(ctx context.Context, reader io.Reader, filename string, actor models.Actor) (*models.ImportSummary, error)
	ExportResults(ctx context.Context, testID uuid.UUID, actor models.Actor) ([]byte, error)
}

type importExportService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	cache     cache.CacheService
	publisher events.EventPublisher
}

func NewImportExportService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *validator.Validator,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
) ImportExportService {
	return &importExportService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		cache:     cacheService,
		publisher: publisher,
	}
}

// ===== IMPORT =====

// importRow is a parsed spreadsheet row waiting for its subject to be resolved.
type importRow struct {
	subject  string
	question models.Question
}

// ImportQuestions reads the first sheet of an xlsx workbook. Nothing is written unless
// every row is valid; otherwise the summary lists the row errors and ErrValidationFailed
// is returned alongside it.
func (s *importExportService) ImportQuestions(ctx context.Context, reader io.Reader, filename string, actor models.Actor) (*models.ImportSummary, error) {
	start := time.Now()
	if err := requireManager(actor, uuid.Nil, "question", "import"); err != nil {
		return nil, err
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".xlsx" {
		return nil, NewValidationError("file", "unsupported file format, expected .xlsx", ext)
	}

	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, NewValidationError("file", "not a readable xlsx workbook", err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewValidationError("file", "workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, NewValidationError("file", "sheet must have a header row and at least one data row", len(rows))
	}
	if len(rows)-1 > maxImportRows {
		return nil, NewValidationError("file", fmt.Sprintf("at most %d rows can be imported at once", maxImportRows), len(rows)-1)
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range []string{importColType, importColSubj, importColQText} {
		if _, ok := header[col]; !ok {
			return nil, NewValidationError("headers", "missing required column: "+col, col)
		}
	}

	summary := &models.ImportSummary{CreatedQuestions: []models.QuestionRef{}}
	parsed := make([]importRow, 0, len(rows)-1)
	for i, record := range rows[1:] {
		if blank(record) {
			continue
		}
		summary.TotalRows++
		row, rowErrs := s.parseRow(cells{record: record, header: header}, i+2)
		if len(rowErrs) > 0 {
			summary.Errors = append(summary.Errors, rowErrs...)
			summary.ErrorCount++
			continue
		}
		parsed = append(parsed, row)
	}
	if summary.ErrorCount > 0 {
		summary.ProcessingTime = time.Since(start)
		s.logger.Warn("Question import rejected", "total_rows", summary.TotalRows, "error_count", summary.ErrorCount)
		return summary, fmt.Errorf("%w: %d invalid rows", ErrValidationFailed, summary.ErrorCount)
	}
	if len(parsed) == 0 {
		return nil, NewValidationError("file", "sheet has no data rows", nil)
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		subjects := make(map[string]uuid.UUID)
		questions := make([]models.Question, len(parsed))
		for i, row := range parsed {
			key := strings.ToLower(row.subject)
			id, ok := subjects[key]
			if !ok {
				subject, created, err := s.subjectByName(ctx, tx, row.subject)
				if err != nil {
					return err
				}
				if created {
					summary.CreatedSubjects = append(summary.CreatedSubjects, subject.Name)
				}
				id = subject.ID
				subjects[key] = id
			}
			row.question.Base().SubjectID = id
			questions[i] = row.question
		}
		return s.repo.Question().CreateBatch(ctx, tx, questions)
	})
	if err != nil {
		return nil, err
	}

	for _, row := range parsed {
		summary.CreatedQuestions = append(summary.CreatedQuestions, models.RefOf(row.question))
	}
	summary.SuccessCount = len(parsed)
	summary.ProcessingTime = time.Since(start)

	if err := s.cache.Delete(ctx, cache.AdminStatsKey); err != nil {
		s.logger.Warn("Failed to invalidate stats cache", "error", err)
	}
	if err := s.publisher.Publish(ctx, events.NewQuestionsImportedEvent(events.QuestionsImportedEvent{
		ImportedBy:    actor.ID,
		QuestionCount: summary.SuccessCount,
		Subjects:      summary.CreatedSubjects,
	})); err != nil {
		s.logger.Error("Failed to publish event", "event_type", events.EventQuestionsImported, "error", err)
	}

	s.logger.Info("Question import completed",
		"total_rows", summary.TotalRows,
		"success_count", summary.SuccessCount,
		"created_subjects", len(summary.CreatedSubjects),
		"duration", summary.ProcessingTime)
	return summary, nil
}

func (s *importExportService) subjectByName(ctx context.Context, tx *gorm.DB, name string) (*models.Subject, bool, error) {
	subject, err := s.repo.Subject().GetByName(ctx, tx, name)
	if err == nil {
		return subject, false, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, false, fmt.Errorf("failed to get subject %q: %w", name, err)
	}
	subject = &models.Subject{Name: name}
	if err := s.repo.Subject().Create(ctx, tx, subject); err != nil {
		return nil, false, err
	}
	return subject, true, nil
}

// cells reads a spreadsheet record by column name. Missing trailing cells read as empty.
type cells struct {
	record []string
	header map[string]int
}

func (c cells) get(col string) string {
	i, ok := c.header[col]
	if !ok || i >= len(c.record) {
		return ""
	}
	return strings.TrimSpace(c.record[i])
}

func (c cells) optional(col string) *string {
	if v := c.get(col); v != "" {
		return &v
	}
	return nil
}

func (s *importExportService) parseRow(c cells, rowNum int) (importRow, []models.ImportValidationError) {
	var errs []models.ImportValidationError
	fail := func(col, msg, value string) {
		errs = append(errs, models.ImportValidationError{Row: rowNum, Column: col, Message: msg, Value: value})
	}

	row := importRow{subject: c.get(importColSubj)}
	if row.subject == "" {
		fail(importColSubj, "is required", "")
	}

	marks := 1
	if raw := c.get("marks"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			fail("marks", "must be a whole number", raw)
		}
		marks = v
	}

	base := models.QuestionBase{
		Question:    c.get(importColQText),
		Code:        c.optional("code"),
		Marks:       marks,
		Explanation: c.optional("explanation"),
	}
	opts := models.Options{
		Option1: c.get("option1"),
		Option2: c.get("option2"),
		Option3: c.get("option3"),
		Option4: c.get("option4"),
	}

	rawType := c.get(importColType)
	switch models.QuestionType(strings.ToUpper(rawType)) {
	case models.QuestionMCQ:
		correct, ok := parseOptionKey(c.get("correct"))
		if !ok {
			fail("correct", "must be one option: option1..option4, 1..4 or A..D", c.get("correct"))
		}
		negative := models.DefaultNegativeMarks
		if raw := c.get("negative_marks"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				fail("negative_marks", "must be a number", raw)
			}
			negative = v
		}
		row.question = &models.MCQQuestion{QuestionBase: base, Options: opts, CorrectAns: correct, NegativeMarks: negative}
	case models.QuestionMSQ:
		var correct []models.OptionKey
		for _, part := range strings.Split(c.get("correct"), ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			key, ok := parseOptionKey(part)
			if !ok {
				fail("correct", "must be a comma separated list of options", c.get("correct"))
				break
			}
			correct = append(correct, key)
		}
		row.question = &models.MSQQuestion{QuestionBase: base, Options: opts, CorrectAnswers: datatypes.JSONSlice[models.OptionKey](correct)}
	case models.QuestionNAT:
		min, err := strconv.ParseFloat(c.get("nat_min"), 64)
		if err != nil {
			fail("nat_min", "must be a number", c.get("nat_min"))
		}
		max := min
		if raw := c.get("nat_max"); raw != "" {
			if max, err = strconv.ParseFloat(raw, 64); err != nil {
				fail("nat_max", "must be a number", raw)
			}
		}
		row.question = &models.NATQuestion{QuestionBase: base, CorrectAnsMin: min, CorrectAnsMax: max}
	default:
		fail(importColType, "must be one of MCQ, MSQ, NAT", rawType)
		return row, errs
	}

	if len(errs) > 0 {
		return row, errs
	}

	s.validator.Question().Normalize(row.question)
	if err := s.validator.Question().ValidateQuestion(row.question); err != nil {
		if verrs, ok := err.(ValidationErrors); ok {
			for _, e := range verrs {
				fail(e.Field, e.Message, fmt.Sprint(e.Value))
			}
		}
	}
	return row, errs
}

// parseOptionKey accepts option1..option4, 1..4 and A..D.
func parseOptionKey(raw string) (models.OptionKey, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "1", "a":
		return models.Option1, true
	case "2", "b":
		return models.Option2, true
	case "3", "c":
		return models.Option3, true
	case "4", "d":
		return models.Option4, true
	}
	key := models.OptionKey(v)
	return key, key.Valid()
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ===== EXPORT =====

// ExportResults renders every finished attempt of a test as an xlsx sheet, best score first.
func (s *importExportService) ExportResults(ctx context.Context, testID uuid.UUID, actor models.Actor) ([]byte, error) {
	if err := requireManager(actor, testID, "test", "export_results"); err != nil {
		return nil, err
	}

	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	results, err := s.repo.Attempt().ListResultsByTest(ctx, nil, testID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headers := []interface{}{
		"Student ID", "Student Name", "Status", "Total Score", "Max Score", "Percentage", "Started At", "Submitted At",
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	row := 2
	for _, r := range results {
		if !r.Status.Finished() {
			continue
		}
		submitted := ""
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.UTC().Format(exportTimeFmt)
		}
		percentage := 0.0
		if r.MaxScore > 0 {
			percentage = scoring.Round(r.TotalScore / r.MaxScore * 100)
		}
		values := []interface{}{
			r.StudentID.String(),
			r.StudentName,
			string(r.Status),
			r.TotalScore,
			r.MaxScore,
			percentage,
			r.StartedAt.UTC().Format(exportTimeFmt),
			submitted,
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Exported test results", "test_id", test.ID, "rows", row-2, "user_id", actor.ID)
	return buf.Bytes(), nil
}
