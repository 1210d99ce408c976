package service

import (
	"context"

	dom "taskboard/internal/domain"
)

// Suggestion is one proposed refinement of a task.
type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Suggester produces AI-generated refinements for a task. Text generation
// lives behind this interface; the service only forwards to a configured
// provider and never generates anything itself.
type Suggester interface {
	Refine(ctx context.Context, t dom.Task) ([]Suggestion, error)
}
