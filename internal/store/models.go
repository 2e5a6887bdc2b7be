package store

import (
	"errors"
	"time"

	"kampus/api/internal/report"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	Unit                  string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ReportFilter narrows ListReports. Zero values mean "any".
type ReportFilter struct {
	Status     report.Status
	Type       *report.Category
	FollowerID string
	AuthorID   string
	Since      *time.Time
	Limit      int
}

// ReportStats is the per-status breakdown shown on the admin panel.
type ReportStats struct {
	Total      int
	ByStatus   map[report.Status]int
	ByCategory map[report.Category]int
}
