package postgres

import (
	"context"
	"fmt"

	"github.com/gateprep/exam-service/internal/repositories"
	"gorm.io/gorm"
)

type repository struct {
	db       *gorm.DB
	subject  repositories.SubjectRepository
	question repositories.QuestionRepository
	test     repositories.TestRepository
	attempt  repositories.AttemptRepository
	response repositories.ResponseRepository
	user     repositories.UserRepository
}

// NewRepository wires every table repository over a single connection pool.
func NewRepository(db *gorm.DB) repositories.Repository {
	question := NewQuestionPostgreSQL(db)
	return &repository{
		db:       db,
		subject:  NewSubjectPostgreSQL(db),
		question: question,
		test:     NewTestPostgreSQL(db),
		attempt:  NewAttemptPostgreSQL(db),
		response: NewResponsePostgreSQL(db, question),
		user:     NewUserPostgreSQL(db),
	}
}

func (r *repository) Subject() repositories.SubjectRepository   { return r.subject }
func (r *repository) Question() repositories.QuestionRepository { return r.question }
func (r *repository) Test() repositories.TestRepository         { return r.test }
func (r *repository) Attempt() repositories.AttemptRepository   { return r.attempt }
func (r *repository) Response() repositories.ResponseRepository { return r.response }
func (r *repository) User() repositories.UserRepository         { return r.user }

func (r *repository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
