package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"taskboard/internal/cache"
	dom "taskboard/internal/domain"
	"taskboard/internal/position"
	"taskboard/internal/repo"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"
)

const (
	maxTitleLen       = 255
	maxDescriptionLen = 1000
)

// TaskService owns task business logic, including the reorder transaction
// behind drag-and-drop.
type TaskService struct {
	repo       repo.TaskRepo
	categories repo.CategoryRepo
	cache      *cache.BoardCache
	suggester  Suggester
	sf         singleflight.Group
}

// NewTaskService creates a TaskService. cache may be nil (caching disabled),
// suggester may be nil (refinement endpoint disabled).
func NewTaskService(r repo.TaskRepo, c repo.CategoryRepo, bc *cache.BoardCache, sg Suggester) *TaskService {
	return &TaskService{repo: r, categories: c, cache: bc, suggester: sg}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTitleLen {
		return "", fmt.Errorf("%w: title must be 1-%d characters", ErrValidation, maxTitleLen)
	}
	return title, nil
}

// Create appends the task to the tail of the user's board. When categoryID
// is nil the task lands in the default category, created on first use.
func (s *TaskService) Create(ctx context.Context, userID int64, categoryID *int64, title, desc string, dueAt *time.Time) (dom.Task, error) {
	title, err := validateTitle(title)
	if err != nil {
		return dom.Task{}, err
	}
	desc = strings.TrimSpace(desc)
	if len(desc) > maxDescriptionLen {
		return dom.Task{}, fmt.Errorf("%w: description must be at most %d characters", ErrValidation, maxDescriptionLen)
	}
	if dueAt != nil && dueAt.Before(time.Now().UTC()) {
		return dom.Task{}, ErrInvalidDueDate
	}

	var catID int64
	if categoryID != nil {
		c, err := s.categories.GetByID(ctx, userID, *categoryID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return dom.Task{}, ErrNotFound
			}
			return dom.Task{}, err
		}
		catID = c.ID
	} else {
		c, err := s.categories.EnsureDefault(ctx, userID)
		if err != nil {
			return dom.Task{}, err
		}
		catID = c.ID
	}

	t, err := s.repo.Create(ctx, dom.Task{
		UserID:      userID,
		CategoryID:  catID,
		Title:       title,
		Description: desc,
		DueAt:       dueAt,
	})
	if err != nil {
		return dom.Task{}, err
	}
	s.invalidateCache(ctx, userID)
	return t, nil
}

// List returns the user's tasks sorted ascending by position. A non-nil
// categoryID narrows the result to one column without changing the order.
func (s *TaskService) List(ctx context.Context, userID int64, categoryID *int64) ([]dom.Task, error) {
	if categoryID != nil {
		return s.repo.ListByCategory(ctx, userID, *categoryID)
	}
	if s.cache == nil {
		return s.repo.List(ctx, userID)
	}
	key := "list:" + strconv.FormatInt(userID, 10)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		if list, err := s.cache.GetTasks(ctx, userID); err == nil && list != nil {
			return list, nil
		}
		list, err := s.repo.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		_ = s.cache.SetTasks(ctx, userID, list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]dom.Task), nil
}

func (s *TaskService) GetByID(ctx context.Context, userID, id int64) (dom.Task, error) {
	t, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	return t, nil
}

// Update patches title, description, due date, done flag and category.
// Position is untouched: reordering goes through Move only.
func (s *TaskService) Update(ctx context.Context, userID, id int64, title, desc *string, dueAt *time.Time, isDone *bool, categoryID *int64) (dom.Task, error) {
	existing, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return dom.Task{}, err
	}
	patch := existing
	if title != nil {
		patch.Title, err = validateTitle(*title)
		if err != nil {
			return dom.Task{}, err
		}
	}
	if desc != nil {
		d := strings.TrimSpace(*desc)
		if len(d) > maxDescriptionLen {
			return dom.Task{}, fmt.Errorf("%w: description must be at most %d characters", ErrValidation, maxDescriptionLen)
		}
		patch.Description = d
	}
	if dueAt != nil {
		if dueAt.Before(time.Now().UTC()) {
			return dom.Task{}, ErrInvalidDueDate
		}
		patch.DueAt = dueAt
	}
	if isDone != nil {
		patch.IsDone = *isDone
	}
	if categoryID != nil {
		if _, err := s.categories.GetByID(ctx, userID, *categoryID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return dom.Task{}, ErrNotFound
			}
			return dom.Task{}, err
		}
		patch.CategoryID = *categoryID
	}
	t, err := s.repo.Update(ctx, userID, id, patch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	s.invalidateCache(ctx, userID)
	return t, nil
}

// Move places task id between beforeID and afterID, optionally into another
// category. The whole operation runs in one transaction: ownership check,
// locked read of the sibling set, position allocation, an at-most-once
// rebalance, and the final write.
func (s *TaskService) Move(ctx context.Context, userID, id int64, beforeID, afterID, categoryID *int64) (dom.Task, error) {
	if (beforeID != nil && *beforeID == id) || (afterID != nil && *afterID == id) {
		return dom.Task{}, fmt.Errorf("%w: task cannot neighbor itself", ErrValidation)
	}
	if beforeID != nil && afterID != nil && *beforeID == *afterID {
		return dom.Task{}, fmt.Errorf("%w: before_id and after_id must differ", ErrValidation)
	}
	if categoryID != nil {
		if _, err := s.categories.GetByID(ctx, userID, *categoryID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return dom.Task{}, ErrNotFound
			}
			return dom.Task{}, err
		}
	}

	var moved dom.Task
	err := s.repo.Move(ctx, userID, func(tx repo.TaskMoveTx) error {
		sibs, err := tx.Siblings(ctx)
		if err != nil {
			return err
		}
		if taskByID(sibs, id) == nil {
			return ErrNotFound
		}

		before, after, err := resolveTaskNeighbors(sibs, id, beforeID, afterID)
		if err != nil {
			return err
		}
		pos, err := position.Allocate(before, after)
		if errors.Is(err, position.ErrNeedsRebalance) {
			if sibs, err = rebalanceTasks(ctx, tx, sibs); err != nil {
				return err
			}
			if before, after, err = resolveTaskNeighbors(sibs, id, beforeID, afterID); err != nil {
				return err
			}
			// Spacing is a full gap everywhere now; this cannot signal
			// a second rebalance.
			if pos, err = position.Allocate(before, after); err != nil {
				return fmt.Errorf("%w: allocation failed after rebalance", ErrPosition)
			}
		} else if err != nil {
			return err
		}

		moved, err = tx.Relocate(ctx, id, pos, categoryID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return dom.Task{}, err
	}
	s.invalidateCache(ctx, userID)
	return moved, nil
}

// resolveTaskNeighbors maps before/after ids onto current positions from the
// freshly loaded sibling set. Client-supplied positions are never trusted.
// With neither id given the task goes to the tail of whatever else exists.
func resolveTaskNeighbors(sibs []dom.Task, moveID int64, beforeID, afterID *int64) (before, after *float64, err error) {
	if beforeID != nil {
		t := taskByID(sibs, *beforeID)
		if t == nil {
			return nil, nil, fmt.Errorf("%w: reference task %d not found", ErrPosition, *beforeID)
		}
		before = &t.Position
	}
	if afterID != nil {
		t := taskByID(sibs, *afterID)
		if t == nil {
			return nil, nil, fmt.Errorf("%w: reference task %d not found", ErrPosition, *afterID)
		}
		after = &t.Position
	}
	if before != nil && after != nil && *before > *after {
		return nil, nil, fmt.Errorf("%w: reference tasks %d and %d are in the opposite order", ErrValidation, *beforeID, *afterID)
	}
	if before == nil && after == nil {
		for i := range sibs {
			if sibs[i].ID == moveID {
				continue
			}
			if before == nil || sibs[i].Position > *before {
				before = &sibs[i].Position
			}
		}
	}
	return before, after, nil
}

func taskByID(sibs []dom.Task, id int64) *dom.Task {
	for i := range sibs {
		if sibs[i].ID == id {
			return &sibs[i]
		}
	}
	return nil
}

// rebalanceTasks rewrites every sibling's position to even gap spacing,
// preserving relative order. Runs inside the move transaction, so a failed
// write rolls the whole reorder back. Two passes: the distinct-position
// index checks each UPDATE on its own, so every row is parked outside the
// board's range before any final position is written.
func rebalanceTasks(ctx context.Context, tx repo.TaskMoveTx, sibs []dom.Task) ([]dom.Task, error) {
	sort.SliceStable(sibs, func(i, j int) bool { return sibs[i].Position < sibs[j].Position })
	if len(sibs) == 0 {
		return sibs, nil
	}
	parked := position.RebalanceStage(sibs[0].Position, len(sibs))
	fresh := position.Rebalance(len(sibs))
	for i := range sibs {
		if err := tx.SetPosition(ctx, sibs[i].ID, parked[i]); err != nil {
			return nil, fmt.Errorf("%w: rebalance write for task %d: %v", ErrPosition, sibs[i].ID, err)
		}
	}
	for i := range sibs {
		if err := tx.SetPosition(ctx, sibs[i].ID, fresh[i]); err != nil {
			return nil, fmt.Errorf("%w: rebalance write for task %d: %v", ErrPosition, sibs[i].ID, err)
		}
		sibs[i].Position = fresh[i]
	}
	return sibs, nil
}

func (s *TaskService) Complete(ctx context.Context, userID, id int64) (dom.Task, error) {
	t, err := s.repo.MarkDone(ctx, userID, id, true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	s.invalidateCache(ctx, userID)
	return t, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.repo.SoftDelete(ctx, userID, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	s.invalidateCache(ctx, userID)
	return nil
}

func (s *TaskService) Search(ctx context.Context, userID int64, q string) ([]dom.Task, error) {
	q = strings.TrimSpace(q)
	if s.cache == nil {
		return s.repo.Search(ctx, userID, q)
	}
	key := "search:" + strconv.FormatInt(userID, 10) + ":" + strings.ToLower(q)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		if list, err := s.cache.GetSearch(ctx, userID, q); err == nil && list != nil {
			return list, nil
		}
		list, err := s.repo.Search(ctx, userID, q)
		if err != nil {
			return nil, err
		}
		_ = s.cache.SetSearch(ctx, userID, q, list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]dom.Task), nil
}

func (s *TaskService) Overdue(ctx context.Context, userID int64) ([]dom.Task, error) {
	if s.cache == nil {
		return s.repo.Overdue(ctx, userID)
	}
	key := "overdue:" + strconv.FormatInt(userID, 10)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		if list, err := s.cache.GetOverdue(ctx, userID); err == nil && list != nil {
			return list, nil
		}
		list, err := s.repo.Overdue(ctx, userID)
		if err != nil {
			return nil, err
		}
		_ = s.cache.SetOverdue(ctx, userID, list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]dom.Task), nil
}

// Refine forwards the task to the configured suggestion provider.
func (s *TaskService) Refine(ctx context.Context, userID, id int64) ([]Suggestion, error) {
	if s.suggester == nil {
		return nil, ErrNoSuggester
	}
	t, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.suggester.Refine(ctx, t)
}

func (s *TaskService) invalidateCache(ctx context.Context, userID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateTasks(ctx, userID)
	}
}
