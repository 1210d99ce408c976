package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	dom "taskboard/internal/domain"
	"taskboard/internal/position"
	"taskboard/internal/repo"

	"github.com/jackc/pgx/v5"
)

// stubTaskRepo keeps tasks in memory and mimics the transactional move
// scope: writes made through the scope land on a copy and are only applied
// when the callback succeeds, so rollback behavior is observable.
type stubTaskRepo struct {
	tasks  []dom.Task
	nextID int64

	setPositionCalls int
	failSetPosition  bool
}

func newStubTaskRepo() *stubTaskRepo { return &stubTaskRepo{nextID: 1} }

func (r *stubTaskRepo) snapshot() []dom.Task {
	out := make([]dom.Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

func (r *stubTaskRepo) Create(_ context.Context, t dom.Task) (dom.Task, error) {
	var max float64
	for _, e := range r.tasks {
		if e.UserID == t.UserID && e.Position > max {
			max = e.Position
		}
	}
	t.ID = r.nextID
	r.nextID++
	t.Position = max + position.Gap
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	r.tasks = append(r.tasks, t)
	return t, nil
}

// positionTaken mirrors the distinct-position index: it checks every write
// on its own, against whatever the other rows hold at that moment.
func (r *stubTaskRepo) positionTaken(userID, id int64, pos float64) error {
	for _, t := range r.tasks {
		if t.UserID == userID && t.ID != id && t.Position == pos {
			return fmt.Errorf("duplicate position %v: tasks %d and %d", pos, id, t.ID)
		}
	}
	return nil
}

func (r *stubTaskRepo) find(userID, id int64) int {
	for i := range r.tasks {
		if r.tasks[i].UserID == userID && r.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *stubTaskRepo) GetByID(_ context.Context, userID, id int64) (dom.Task, error) {
	i := r.find(userID, id)
	if i < 0 {
		return dom.Task{}, pgx.ErrNoRows
	}
	return r.tasks[i], nil
}

func (r *stubTaskRepo) List(_ context.Context, userID int64) ([]dom.Task, error) {
	var list []dom.Task
	for _, t := range r.tasks {
		if t.UserID == userID {
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	return list, nil
}

func (r *stubTaskRepo) ListByCategory(ctx context.Context, userID, categoryID int64) ([]dom.Task, error) {
	all, _ := r.List(ctx, userID)
	var list []dom.Task
	for _, t := range all {
		if t.CategoryID == categoryID {
			list = append(list, t)
		}
	}
	return list, nil
}

func (r *stubTaskRepo) Update(_ context.Context, userID, id int64, patch dom.Task) (dom.Task, error) {
	i := r.find(userID, id)
	if i < 0 {
		return dom.Task{}, pgx.ErrNoRows
	}
	t := r.tasks[i]
	t.Title, t.Description, t.DueAt = patch.Title, patch.Description, patch.DueAt
	t.IsDone, t.CategoryID = patch.IsDone, patch.CategoryID
	r.tasks[i] = t
	return t, nil
}

func (r *stubTaskRepo) SoftDelete(_ context.Context, userID, id int64) error {
	i := r.find(userID, id)
	if i < 0 {
		return pgx.ErrNoRows
	}
	r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
	return nil
}

func (r *stubTaskRepo) MarkDone(_ context.Context, userID, id int64, done bool) (dom.Task, error) {
	i := r.find(userID, id)
	if i < 0 {
		return dom.Task{}, pgx.ErrNoRows
	}
	r.tasks[i].IsDone = done
	return r.tasks[i], nil
}

func (r *stubTaskRepo) Search(ctx context.Context, userID int64, q string) ([]dom.Task, error) {
	all, _ := r.List(ctx, userID)
	q = strings.ToLower(q)
	var list []dom.Task
	for _, t := range all {
		if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.Description), q) {
			list = append(list, t)
		}
	}
	return list, nil
}

func (r *stubTaskRepo) Overdue(ctx context.Context, userID int64) ([]dom.Task, error) {
	all, _ := r.List(ctx, userID)
	now := time.Now().UTC()
	var list []dom.Task
	for _, t := range all {
		if !t.IsDone && t.DueAt != nil && t.DueAt.Before(now) {
			list = append(list, t)
		}
	}
	return list, nil
}

func (r *stubTaskRepo) Move(_ context.Context, userID int64, fn func(tx repo.TaskMoveTx) error) error {
	staged := &stubTaskRepo{
		tasks:           r.snapshot(),
		nextID:          r.nextID,
		failSetPosition: r.failSetPosition,
	}
	tx := &stubTaskMoveTx{repo: staged, userID: userID}
	if err := fn(tx); err != nil {
		r.setPositionCalls += staged.setPositionCalls
		return err
	}
	r.tasks = staged.tasks
	r.setPositionCalls += staged.setPositionCalls
	return nil
}

type stubTaskMoveTx struct {
	repo   *stubTaskRepo
	userID int64
}

func (m *stubTaskMoveTx) Siblings(ctx context.Context) ([]dom.Task, error) {
	return m.repo.List(ctx, m.userID)
}

func (m *stubTaskMoveTx) SetPosition(_ context.Context, id int64, pos float64) error {
	if m.repo.failSetPosition {
		return pgx.ErrNoRows
	}
	i := m.repo.find(m.userID, id)
	if i < 0 {
		return pgx.ErrNoRows
	}
	if err := m.repo.positionTaken(m.userID, id, pos); err != nil {
		return err
	}
	m.repo.tasks[i].Position = pos
	m.repo.setPositionCalls++
	return nil
}

func (m *stubTaskMoveTx) Relocate(_ context.Context, id int64, pos float64, categoryID *int64) (dom.Task, error) {
	i := m.repo.find(m.userID, id)
	if i < 0 {
		return dom.Task{}, pgx.ErrNoRows
	}
	if err := m.repo.positionTaken(m.userID, id, pos); err != nil {
		return dom.Task{}, err
	}
	m.repo.tasks[i].Position = pos
	if categoryID != nil {
		m.repo.tasks[i].CategoryID = *categoryID
	}
	return m.repo.tasks[i], nil
}

// stubCategoryRepo mirrors stubTaskRepo for categories. It holds a pointer
// to the task repo so Delete can reassign member tasks like the SQL does.
type stubCategoryRepo struct {
	categories []dom.Category
	nextID     int64
	tasks      *stubTaskRepo

	setPositionCalls int
}

func newStubCategoryRepo(tasks *stubTaskRepo) *stubCategoryRepo {
	return &stubCategoryRepo{nextID: 1, tasks: tasks}
}

func (r *stubCategoryRepo) positionTaken(userID, id int64, pos float64) error {
	for _, c := range r.categories {
		if c.UserID == userID && c.ID != id && c.Position == pos {
			return fmt.Errorf("duplicate position %v: categories %d and %d", pos, id, c.ID)
		}
	}
	return nil
}

func (r *stubCategoryRepo) find(userID, id int64) int {
	for i := range r.categories {
		if r.categories[i].UserID == userID && r.categories[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *stubCategoryRepo) Create(_ context.Context, userID int64, name string) (dom.Category, error) {
	var max float64
	for _, c := range r.categories {
		if c.UserID == userID && c.Position > max {
			max = c.Position
		}
	}
	c := dom.Category{ID: r.nextID, UserID: userID, Name: name, Position: max + position.Gap}
	r.nextID++
	r.categories = append(r.categories, c)
	return c, nil
}

func (r *stubCategoryRepo) GetByID(_ context.Context, userID, id int64) (dom.Category, error) {
	i := r.find(userID, id)
	if i < 0 {
		return dom.Category{}, pgx.ErrNoRows
	}
	return r.categories[i], nil
}

func (r *stubCategoryRepo) List(_ context.Context, userID int64) ([]dom.Category, error) {
	var list []dom.Category
	for _, c := range r.categories {
		if c.UserID == userID {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	return list, nil
}

func (r *stubCategoryRepo) Rename(_ context.Context, userID, id int64, name string) (dom.Category, error) {
	i := r.find(userID, id)
	if i < 0 {
		return dom.Category{}, pgx.ErrNoRows
	}
	r.categories[i].Name = name
	return r.categories[i], nil
}

func (r *stubCategoryRepo) Delete(_ context.Context, userID, id, reassignTo int64) error {
	i := r.find(userID, id)
	if i < 0 || r.categories[i].IsDefault {
		return pgx.ErrNoRows
	}
	if r.tasks != nil {
		for j := range r.tasks.tasks {
			t := &r.tasks.tasks[j]
			if t.UserID == userID && t.CategoryID == id {
				t.CategoryID = reassignTo
			}
		}
	}
	r.categories = append(r.categories[:i], r.categories[i+1:]...)
	return nil
}

func (r *stubCategoryRepo) EnsureDefault(ctx context.Context, userID int64) (dom.Category, error) {
	for _, c := range r.categories {
		if c.UserID == userID && c.IsDefault {
			return c, nil
		}
	}
	c, _ := r.Create(ctx, userID, repo.DefaultCategoryName)
	i := r.find(userID, c.ID)
	r.categories[i].IsDefault = true
	return r.categories[i], nil
}

func (r *stubCategoryRepo) Move(_ context.Context, userID int64, fn func(tx repo.CategoryMoveTx) error) error {
	staged := &stubCategoryRepo{
		categories: append([]dom.Category(nil), r.categories...),
		nextID:     r.nextID,
	}
	tx := &stubCategoryMoveTx{repo: staged, userID: userID}
	if err := fn(tx); err != nil {
		r.setPositionCalls += staged.setPositionCalls
		return err
	}
	r.categories = staged.categories
	r.setPositionCalls += staged.setPositionCalls
	return nil
}

type stubCategoryMoveTx struct {
	repo   *stubCategoryRepo
	userID int64
}

func (m *stubCategoryMoveTx) Siblings(ctx context.Context) ([]dom.Category, error) {
	return m.repo.List(ctx, m.userID)
}

func (m *stubCategoryMoveTx) SetPosition(_ context.Context, id int64, pos float64) error {
	i := m.repo.find(m.userID, id)
	if i < 0 {
		return pgx.ErrNoRows
	}
	if err := m.repo.positionTaken(m.userID, id, pos); err != nil {
		return err
	}
	m.repo.categories[i].Position = pos
	m.repo.setPositionCalls++
	return nil
}

func (m *stubCategoryMoveTx) Place(_ context.Context, id int64, pos float64) (dom.Category, error) {
	i := m.repo.find(m.userID, id)
	if i < 0 {
		return dom.Category{}, pgx.ErrNoRows
	}
	if err := m.repo.positionTaken(m.userID, id, pos); err != nil {
		return dom.Category{}, err
	}
	m.repo.categories[i].Position = pos
	return m.repo.categories[i], nil
}
