package dto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DueAt parses due_at from JSON as either date-only ("2006-01-02") or
// RFC3339. Date-only is stored as start of that day in UTC.
type DueAt struct{ t *time.Time }

func (d *DueAt) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		d.t = nil
		return nil
	}
	s := strings.TrimSpace(*raw)
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			if layout == "2006-01-02" {
				parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
			}
			d.t = &parsed
			return nil
		}
	}
	return fmt.Errorf("due_at: use date (YYYY-MM-DD) or RFC3339 datetime")
}

// Ptr returns *time.Time for use in service/domain.
func (d DueAt) Ptr() *time.Time { return d.t }

type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=255"`
	Description string `json:"description" binding:"max=1000"`
	CategoryID  *int64 `json:"category_id"` // optional: default category when absent
	DueAt       DueAt  `json:"due_at"`      // optional: "2026-02-19" or RFC3339
}

type UpdateTaskRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
	CategoryID  *int64  `json:"category_id"`
	DueAt       *DueAt  `json:"due_at"` // nil = keep, value = set
	IsDone      *bool   `json:"is_done"`
}

// MoveTaskRequest places a task between two siblings. before_id is the task
// that should sort immediately before the new spot, after_id immediately
// after; either may be absent for head/tail placement. category_id
// optionally re-homes the task while it moves.
type MoveTaskRequest struct {
	BeforeID   *int64 `json:"before_id"`
	AfterID    *int64 `json:"after_id"`
	CategoryID *int64 `json:"category_id"`
}

type TaskResponse struct {
	ID          int64      `json:"id"`
	CategoryID  int64      `json:"category_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	IsDone      bool       `json:"is_done"`
	DueAt       *time.Time `json:"due_at"`
	Position    float64    `json:"position"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ListTasksResponse struct {
	Items []TaskResponse `json:"items"`
}

type SuggestionResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type RefineTaskResponse struct {
	Suggestions []SuggestionResponse `json:"suggestions"`
}
