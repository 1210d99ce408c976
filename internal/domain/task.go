package domain

import "time"

// Task is the domain entity for a board item. It is independent of
// Gin, Postgres and Redis.
//
// Position is the fractional ordering key: ascending Position defines the
// display order of ALL tasks belonging to one user. Categories are a
// filtered view over that single ordering, so Position is never scoped per
// category. Only the move operation writes Position; every other edit
// leaves it untouched.
type Task struct {
	ID          int64
	UserID      int64
	CategoryID  int64
	Title       string
	Description string
	IsDone      bool
	DueAt       *time.Time
	Position    float64

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}
