package postgres

import (
	"context"
	"fmt"

	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SharedHelpers holds query building blocks used by more than one repository.
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// getDB returns tx when the caller is inside a transaction, the base connection otherwise.
func (h *SharedHelpers) getDB(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return h.db.WithContext(ctx)
}

// applyKeyset restricts query to rows after the cursor and orders newest first.
// createdCol and idCol must be trusted column names.
func applyKeyset(query *gorm.DB, createdCol, idCol string, after *pagination.Cursor, limit int) *gorm.DB {
	if after != nil {
		query = query.Where(
			fmt.Sprintf("(%s < ? OR (%s = ? AND %s < ?))", createdCol, createdCol, idCol),
			after.CreatedAt, after.CreatedAt, after.ID,
		)
	}
	return query.
		Order(createdCol + " DESC").
		Order(idCol + " DESC").
		Limit(pagination.ClampLimit(limit))
}

// newID assigns a fresh uuid when id is unset.
func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
