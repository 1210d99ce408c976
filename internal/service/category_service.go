package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"taskboard/internal/cache"
	dom "taskboard/internal/domain"
	"taskboard/internal/position"
	"taskboard/internal/repo"

	"github.com/jackc/pgx/v5"
)

// CategoryService owns category business logic. Categories follow the same
// fractional ordering as tasks, scoped per user.
type CategoryService struct {
	repo  repo.CategoryRepo
	cache *cache.BoardCache
}

// NewCategoryService creates a CategoryService. cache may be nil.
func NewCategoryService(r repo.CategoryRepo, bc *cache.BoardCache) *CategoryService {
	return &CategoryService{repo: r, cache: bc}
}

func (s *CategoryService) Create(ctx context.Context, userID int64, name string) (dom.Category, error) {
	name, err := validateTitle(name)
	if err != nil {
		return dom.Category{}, err
	}
	c, err := s.repo.Create(ctx, userID, name)
	if err != nil {
		return dom.Category{}, err
	}
	s.invalidateCache(ctx, userID)
	return c, nil
}

// List returns the user's categories sorted ascending by position. The
// default category is created here on first access, so a fresh account
// always sees at least one.
func (s *CategoryService) List(ctx context.Context, userID int64) ([]dom.Category, error) {
	if _, err := s.repo.EnsureDefault(ctx, userID); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if list, err := s.cache.GetCategories(ctx, userID); err == nil && list != nil {
			return list, nil
		}
	}
	list, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetCategories(ctx, userID, list)
	}
	return list, nil
}

func (s *CategoryService) Rename(ctx context.Context, userID, id int64, name string) (dom.Category, error) {
	name, err := validateTitle(name)
	if err != nil {
		return dom.Category{}, err
	}
	c, err := s.repo.Rename(ctx, userID, id, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Category{}, ErrNotFound
		}
		return dom.Category{}, err
	}
	s.invalidateCache(ctx, userID)
	return c, nil
}

// Delete removes a category and reassigns its tasks to the default one in
// the same transaction. The default category itself is undeletable.
func (s *CategoryService) Delete(ctx context.Context, userID, id int64) error {
	c, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if c.IsDefault {
		return fmt.Errorf("%w: the default category cannot be deleted", ErrValidation)
	}
	def, err := s.repo.EnsureDefault(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id, def.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	s.invalidateCache(ctx, userID)
	return nil
}

// Move reorders a category between beforeID and afterID. Same transaction
// shape as TaskService.Move: locked sibling read, allocation, at-most-once
// rebalance, single write.
func (s *CategoryService) Move(ctx context.Context, userID, id int64, beforeID, afterID *int64) (dom.Category, error) {
	if (beforeID != nil && *beforeID == id) || (afterID != nil && *afterID == id) {
		return dom.Category{}, fmt.Errorf("%w: category cannot neighbor itself", ErrValidation)
	}
	if beforeID != nil && afterID != nil && *beforeID == *afterID {
		return dom.Category{}, fmt.Errorf("%w: before_id and after_id must differ", ErrValidation)
	}

	var moved dom.Category
	err := s.repo.Move(ctx, userID, func(tx repo.CategoryMoveTx) error {
		sibs, err := tx.Siblings(ctx)
		if err != nil {
			return err
		}
		if categoryByID(sibs, id) == nil {
			return ErrNotFound
		}

		before, after, err := resolveCategoryNeighbors(sibs, id, beforeID, afterID)
		if err != nil {
			return err
		}
		pos, err := position.Allocate(before, after)
		if errors.Is(err, position.ErrNeedsRebalance) {
			if sibs, err = rebalanceCategories(ctx, tx, sibs); err != nil {
				return err
			}
			if before, after, err = resolveCategoryNeighbors(sibs, id, beforeID, afterID); err != nil {
				return err
			}
			if pos, err = position.Allocate(before, after); err != nil {
				return fmt.Errorf("%w: allocation failed after rebalance", ErrPosition)
			}
		} else if err != nil {
			return err
		}

		moved, err = tx.Place(ctx, id, pos)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return dom.Category{}, err
	}
	s.invalidateCache(ctx, userID)
	return moved, nil
}

func resolveCategoryNeighbors(sibs []dom.Category, moveID int64, beforeID, afterID *int64) (before, after *float64, err error) {
	if beforeID != nil {
		c := categoryByID(sibs, *beforeID)
		if c == nil {
			return nil, nil, fmt.Errorf("%w: reference category %d not found", ErrPosition, *beforeID)
		}
		before = &c.Position
	}
	if afterID != nil {
		c := categoryByID(sibs, *afterID)
		if c == nil {
			return nil, nil, fmt.Errorf("%w: reference category %d not found", ErrPosition, *afterID)
		}
		after = &c.Position
	}
	if before != nil && after != nil && *before > *after {
		return nil, nil, fmt.Errorf("%w: reference categories %d and %d are in the opposite order", ErrValidation, *beforeID, *afterID)
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

func categoryByID(sibs []dom.Category, id int64) *dom.Category {
	for i := range sibs {
		if sibs[i].ID == id {
			return &sibs[i]
		}
	}
	return nil
}

// rebalanceCategories parks every row outside the board's range before
// writing final positions, for the same per-statement index reason as the
// task rebalance.
func rebalanceCategories(ctx context.Context, tx repo.CategoryMoveTx, sibs []dom.Category) ([]dom.Category, error) {
	sort.SliceStable(sibs, func(i, j int) bool { return sibs[i].Position < sibs[j].Position })
	if len(sibs) == 0 {
		return sibs, nil
	}
	parked := position.RebalanceStage(sibs[0].Position, len(sibs))
	fresh := position.Rebalance(len(sibs))
	for i := range sibs {
		if err := tx.SetPosition(ctx, sibs[i].ID, parked[i]); err != nil {
			return nil, fmt.Errorf("%w: rebalance write for category %d: %v", ErrPosition, sibs[i].ID, err)
		}
	}
	for i := range sibs {
		if err := tx.SetPosition(ctx, sibs[i].ID, fresh[i]); err != nil {
			return nil, fmt.Errorf("%w: rebalance write for category %d: %v", ErrPosition, sibs[i].ID, err)
		}
		sibs[i].Position = fresh[i]
	}
	return sibs, nil
}

func (s *CategoryService) invalidateCache(ctx context.Context, userID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateCategories(ctx, userID)
		// Reassignments on delete change task rows too.
		_ = s.cache.InvalidateTasks(ctx, userID)
	}
}
