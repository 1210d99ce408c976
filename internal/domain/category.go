package domain

import "time"

// Category is a named grouping of tasks. Categories share the same
// fractional Position ordering as tasks, scoped per user.
//
// Exactly one category per user has IsDefault set. It is created lazily on
// first access and can never be deleted; deleting any other category
// reassigns its tasks to the default one.
type Category struct {
	ID        int64
	UserID    int64
	Name      string
	Position  float64
	IsDefault bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
