package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	dom "taskboard/internal/domain"
)

func i64(v int64) *int64 { return &v }

// boardFixture wires a task service over in-memory repos with one user and
// n tasks named "t1".."tn" in creation order (positions 1000, 2000, ...).
func boardFixture(t *testing.T, userID int64, n int) (*TaskService, *stubTaskRepo, []dom.Task) {
	t.Helper()
	taskRepo := newStubTaskRepo()
	catRepo := newStubCategoryRepo(taskRepo)
	svc := NewTaskService(taskRepo, catRepo, nil, nil)
	tasks := make([]dom.Task, 0, n)
	for i := 0; i < n; i++ {
		task, err := svc.Create(context.Background(), userID, nil, "t"+string(rune('1'+i)), "", nil)
		if err != nil {
			t.Fatalf("create task %d: %v", i, err)
		}
		tasks = append(tasks, task)
	}
	return svc, taskRepo, tasks
}

func boardOrder(t *testing.T, svc *TaskService, userID int64) []int64 {
	t.Helper()
	list, err := svc.List(context.Background(), userID, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := make([]int64, len(list))
	for i, task := range list {
		ids[i] = task.ID
	}
	return ids
}

func assertDistinctPositions(t *testing.T, repo *stubTaskRepo) {
	t.Helper()
	seen := map[float64]int64{}
	for _, task := range repo.tasks {
		if other, ok := seen[task.Position]; ok {
			t.Fatalf("tasks %d and %d share position %v", other, task.ID, task.Position)
		}
		seen[task.Position] = task.ID
	}
}

func TestCreateAppendsAtTail(t *testing.T) {
	_, repo, tasks := boardFixture(t, 1, 3)
	for i, task := range tasks {
		want := float64(i+1) * 1000
		if task.Position != want {
			t.Fatalf("task %d: position %v, want %v", i, task.Position, want)
		}
	}
	assertDistinctPositions(t, repo)
}

func TestCreateValidation(t *testing.T) {
	taskRepo := newStubTaskRepo()
	svc := NewTaskService(taskRepo, newStubCategoryRepo(taskRepo), nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, nil, "   ", "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank title: got %v, want ErrValidation", err)
	}
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := svc.Create(ctx, 1, nil, string(long), "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("long title: got %v, want ErrValidation", err)
	}
	past := time.Now().UTC().Add(-time.Hour)
	if _, err := svc.Create(ctx, 1, nil, "ok", "", &past); !errors.Is(err, ErrInvalidDueDate) {
		t.Fatalf("past due date: got %v, want ErrInvalidDueDate", err)
	}
	if _, err := svc.Create(ctx, 1, i64(99), "ok", "", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown category: got %v, want ErrNotFound", err)
	}
}

func TestMoveBetweenNeighbors(t *testing.T) {
	svc, repo, tasks := boardFixture(t, 1, 3)
	a, b, c := tasks[0], tasks[1], tasks[2]

	// c (pos 3000) moves between a (1000) and b (2000).
	moved, err := svc.Move(context.Background(), 1, c.ID, i64(a.ID), i64(b.ID), nil)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Position != 1500 {
		t.Fatalf("moved position %v, want 1500", moved.Position)
	}
	for _, id := range []int64{a.ID, b.ID} {
		got, _ := svc.GetByID(context.Background(), 1, id)
		want := a.Position
		if id == b.ID {
			want = b.Position
		}
		if got.Position != want {
			t.Fatalf("neighbor %d position changed: %v -> %v", id, want, got.Position)
		}
	}
	if got, want := boardOrder(t, svc, 1), []int64{a.ID, c.ID, b.ID}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order %v, want %v", got, want)
	}
	if repo.setPositionCalls != 0 {
		t.Fatalf("plain midpoint move must not rebalance, saw %d position writes", repo.setPositionCalls)
	}
}

func TestMoveTriggersExactlyOneRebalance(t *testing.T) {
	svc, repo, tasks := boardFixture(t, 1, 3)
	a, b, c := tasks[0], tasks[1], tasks[2]

	// Degrade the gap between a and b below the threshold.
	repo.tasks[0].Position = 1000
	repo.tasks[1].Position = 1000.05

	moved, err := svc.Move(context.Background(), 1, c.ID, i64(a.ID), i64(b.ID), nil)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if repo.setPositionCalls != 6 {
		t.Fatalf("expected one rebalance (park and respace all 3 siblings), saw %d writes", repo.setPositionCalls)
	}
	gotA, _ := svc.GetByID(context.Background(), 1, a.ID)
	gotB, _ := svc.GetByID(context.Background(), 1, b.ID)
	if gotA.Position != 1000 || gotB.Position != 2000 {
		t.Fatalf("rebalanced neighbors at %v and %v, want 1000 and 2000", gotA.Position, gotB.Position)
	}
	if moved.Position <= gotA.Position || moved.Position >= gotB.Position {
		t.Fatalf("moved position %v not strictly between %v and %v", moved.Position, gotA.Position, gotB.Position)
	}
	if got, want := boardOrder(t, svc, 1), []int64{a.ID, c.ID, b.ID}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order %v, want %v", got, want)
	}
	assertDistinctPositions(t, repo)
}

// A rebalance hands row i the position another sibling still holds, so the
// writes must never land final values directly. The sibling write checks in
// the stub reject such a collision the way the distinct-position index does.
func TestMoveRebalanceSurvivesPositionIndex(t *testing.T) {
	svc, repo, tasks := boardFixture(t, 1, 3)
	a, b, c := tasks[0], tasks[1], tasks[2]
	repo.tasks[0].Position = 1000
	repo.tasks[1].Position = 1000.05
	repo.tasks[2].Position = 2000 // sits exactly where b's respaced key goes

	moved, err := svc.Move(context.Background(), 1, c.ID, i64(a.ID), i64(b.ID), nil)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	gotA, _ := svc.GetByID(context.Background(), 1, a.ID)
	gotB, _ := svc.GetByID(context.Background(), 1, b.ID)
	if moved.Position <= gotA.Position || moved.Position >= gotB.Position {
		t.Fatalf("moved position %v not strictly between %v and %v", moved.Position, gotA.Position, gotB.Position)
	}
	assertDistinctPositions(t, repo)
}

func TestMoveReversedReferencesRejected(t *testing.T) {
	svc, repo, tasks := boardFixture(t, 1, 3)
	before := repo.snapshot()

	// tasks[1] sorts after tasks[0], so this claims the opposite order.
	_, err := svc.Move(context.Background(), 1, tasks[2].ID, i64(tasks[1].ID), i64(tasks[0].ID), nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	if repo.setPositionCalls != 0 {
		t.Fatalf("reversed references caused %d position writes", repo.setPositionCalls)
	}
	if !reflect.DeepEqual(before, repo.snapshot()) {
		t.Fatal("rejected move changed the board")
	}
}

func TestMoveHeadAndTail(t *testing.T) {
	svc, _, tasks := boardFixture(t, 1, 2)
	a, b := tasks[0], tasks[1]
	ctx := context.Background()

	// Only after_id: insert at head.
	moved, err := svc.Move(ctx, 1, b.ID, nil, i64(a.ID), nil)
	if err != nil {
		t.Fatalf("head move: %v", err)
	}
	if moved.Position >= a.Position {
		t.Fatalf("head insert position %v, want < %v", moved.Position, a.Position)
	}

	// Only before_id: insert at tail.
	moved, err = svc.Move(ctx, 1, b.ID, i64(a.ID), nil, nil)
	if err != nil {
		t.Fatalf("tail move: %v", err)
	}
	if moved.Position <= a.Position {
		t.Fatalf("tail insert position %v, want > %v", moved.Position, a.Position)
	}
}

func TestMoveSoleTaskLandsAtBase(t *testing.T) {
	svc, repo, tasks := boardFixture(t, 1, 1)
	repo.tasks[0].Position = 4321 // anything but the base

	moved, err := svc.Move(context.Background(), 1, tasks[0].ID, nil, nil, nil)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Position != 1000 {
		t.Fatalf("sole task position %v, want 1000", moved.Position)
	}
}

func TestMoveForeignTaskWritesNothing(t *testing.T) {
	svc, repo, _ := boardFixture(t, 1, 2)
	owner2, err := svc.Create(context.Background(), 2, nil, "other", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := repo.snapshot()

	_, err = svc.Move(context.Background(), 1, owner2.ID, nil, nil, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if !reflect.DeepEqual(before, repo.snapshot()) {
		t.Fatal("store changed after rejected move")
	}
}

func TestMoveMissingReferenceAborts(t *testing.T) {
	svc, repo, tasks := boardFixture(t, 1, 2)
	before := repo.snapshot()

	_, err := svc.Move(context.Background(), 1, tasks[0].ID, i64(777), nil, nil)
	if !errors.Is(err, ErrPosition) {
		t.Fatalf("got %v, want ErrPosition", err)
	}
	if !reflect.DeepEqual(before, repo.snapshot()) {
		t.Fatal("store changed after aborted move")
	}
}

func TestMoveSelfReferenceRejected(t *testing.T) {
	svc, _, tasks := boardFixture(t, 1, 2)
	if _, err := svc.Move(context.Background(), 1, tasks[0].ID, i64(tasks[0].ID), nil, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestMoveFailedRebalanceRollsBack(t *testing.T) {
	svc, repo, tasks := boardFixture(t, 1, 3)
	repo.tasks[0].Position = 1000
	repo.tasks[1].Position = 1000.05
	repo.failSetPosition = true
	before := repo.snapshot()

	_, err := svc.Move(context.Background(), 1, tasks[2].ID, i64(tasks[0].ID), i64(tasks[1].ID), nil)
	if !errors.Is(err, ErrPosition) {
		t.Fatalf("got %v, want ErrPosition", err)
	}
	if !reflect.DeepEqual(before, repo.snapshot()) {
		t.Fatal("partial rebalance leaked out of the transaction")
	}
}

func TestMoveIntoCategory(t *testing.T) {
	taskRepo := newStubTaskRepo()
	catRepo := newStubCategoryRepo(taskRepo)
	svc := NewTaskService(taskRepo, catRepo, nil, nil)
	ctx := context.Background()

	work, err := catRepo.Create(ctx, 1, "Work")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	a, _ := svc.Create(ctx, 1, nil, "a", "", nil)
	b, _ := svc.Create(ctx, 1, nil, "b", "", nil)

	moved, err := svc.Move(ctx, 1, b.ID, nil, i64(a.ID), i64(work.ID))
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.CategoryID != work.ID {
		t.Fatalf("category %d, want %d", moved.CategoryID, work.ID)
	}
	if moved.Position >= a.Position {
		t.Fatalf("cross-category move must still honor ordering: %v >= %v", moved.Position, a.Position)
	}

	// A category owned by someone else is indistinguishable from missing.
	foreign, _ := catRepo.Create(ctx, 2, "Foreign")
	if _, err := svc.Move(ctx, 1, b.ID, nil, nil, i64(foreign.ID)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRepeatedInsertsStayOrderedAndDistinct(t *testing.T) {
	svc, repo, tasks := boardFixture(t, 1, 2)
	a := tasks[0]
	ctx := context.Background()

	// Squeeze new tasks between a and its current right neighbor until the
	// gap is exhausted several times over; ordering and distinctness must
	// hold through every rebalance.
	right := tasks[1]
	wantOrder := []int64{a.ID, right.ID}
	for i := 0; i < 30; i++ {
		task, err := svc.Create(ctx, 1, nil, "x", "", nil)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if _, err := svc.Move(ctx, 1, task.ID, i64(a.ID), i64(right.ID), nil); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		// task now sits directly after a.
		wantOrder = append([]int64{wantOrder[0]}, append([]int64{task.ID}, wantOrder[1:]...)...)
		right = task
		assertDistinctPositions(t, repo)
	}
	if got := boardOrder(t, svc, 1); !reflect.DeepEqual(got, wantOrder) {
		t.Fatalf("order diverged after %d inserts:\n got %v\nwant %v", len(wantOrder)-2, got, wantOrder)
	}
	if repo.setPositionCalls == 0 {
		t.Fatal("expected at least one rebalance over 30 squeezed inserts")
	}
}

func TestUpdateLeavesPositionUntouched(t *testing.T) {
	svc, _, tasks := boardFixture(t, 1, 2)
	title := "renamed"
	done := true
	got, err := svc.Update(context.Background(), 1, tasks[0].ID, &title, nil, nil, &done, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Position != tasks[0].Position {
		t.Fatalf("update changed position %v -> %v", tasks[0].Position, got.Position)
	}
	if got.Title != "renamed" || !got.IsDone {
		t.Fatalf("patch not applied: %+v", got)
	}
}

func TestRefineWithoutProvider(t *testing.T) {
	svc, _, tasks := boardFixture(t, 1, 1)
	if _, err := svc.Refine(context.Background(), 1, tasks[0].ID); !errors.Is(err, ErrNoSuggester) {
		t.Fatalf("got %v, want ErrNoSuggester", err)
	}
}

type staticSuggester struct{ out []Suggestion }

func (s staticSuggester) Refine(context.Context, dom.Task) ([]Suggestion, error) {
	return s.out, nil
}

func TestRefineForwardsToProvider(t *testing.T) {
	taskRepo := newStubTaskRepo()
	catRepo := newStubCategoryRepo(taskRepo)
	want := []Suggestion{{Title: "split into subtasks"}}
	svc := NewTaskService(taskRepo, catRepo, nil, staticSuggester{out: want})

	task, _ := svc.Create(context.Background(), 1, nil, "big", "", nil)
	got, err := svc.Refine(context.Background(), 1, task.ID)
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if _, err := svc.Refine(context.Background(), 2, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign refine: got %v, want ErrNotFound", err)
	}
}
