package models

import (
	"time"

	"github.com/gateprep/exam-service/internal/pagination"
	"github.com/google/uuid"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// User mirrors an identity issued by the auth provider. Rows are upserted the first time
// the identity is seen so that students can be listed and counted.
type User struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"not null;size:255"`
	Email     string    `json:"email" gorm:"size:255;index"`
	Role      UserRole  `json:"role" gorm:"size:16;not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"index:,sort:desc"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) Key() pagination.Cursor {
	return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
}

// Actor is the authenticated identity an operation runs as.
type Actor struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  UserRole  `json:"role"`
}

func (a Actor) IsStudent() bool { return a.Role == RoleStudent }

// CanManage reports whether the actor may administer the catalog and tests.
func (a Actor) CanManage() bool {
	return a.Role == RoleAdmin || a.Role == RoleTeacher
}
