package repo

import (
	"context"
	"time"

	dom "taskboard/internal/domain"
	"taskboard/internal/position"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, user_id, category_id, title, description, is_done, due_at, position, created_at, updated_at, deleted_at`

// TaskRepo provides task persistence. All reads and writes are keyed by
// the owning user; a row belonging to someone else behaves exactly like a
// missing row.
type TaskRepo interface {
	Create(ctx context.Context, t dom.Task) (dom.Task, error)
	GetByID(ctx context.Context, userID, id int64) (dom.Task, error)
	List(ctx context.Context, userID int64) ([]dom.Task, error)
	ListByCategory(ctx context.Context, userID, categoryID int64) ([]dom.Task, error)
	Update(ctx context.Context, userID, id int64, patch dom.Task) (dom.Task, error)
	SoftDelete(ctx context.Context, userID, id int64) error
	MarkDone(ctx context.Context, userID, id int64, done bool) (dom.Task, error)
	Search(ctx context.Context, userID int64, q string) ([]dom.Task, error)
	Overdue(ctx context.Context, userID int64) ([]dom.Task, error)
	Move(ctx context.Context, userID int64, fn func(tx TaskMoveTx) error) error
}

// TaskMoveTx is the transaction scope a move runs in. Siblings locks the
// user's whole ordered set, so concurrent moves on one board serialize and
// never compute positions from the same stale snapshot. Everything done
// through the scope commits atomically or not at all.
type TaskMoveTx interface {
	// Siblings returns all of the user's live tasks sorted ascending by
	// position, locked for the duration of the transaction.
	Siblings(ctx context.Context) ([]dom.Task, error)
	// SetPosition rewrites one task's ordering key (rebalance writes).
	SetPosition(ctx context.Context, id int64, pos float64) error
	// Relocate writes the moving task's new position and, when categoryID
	// is non-nil, its new category.
	Relocate(ctx context.Context, id int64, pos float64, categoryID *int64) (dom.Task, error)
}

// PGTaskRepo implements TaskRepo with Postgres.
type PGTaskRepo struct {
	db *pgxpool.Pool
}

func NewPGTaskRepo(db *pgxpool.Pool) *PGTaskRepo {
	return &PGTaskRepo{db: db}
}

// row is satisfied by pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanTask(r row) (dom.Task, error) {
	var t dom.Task
	err := r.Scan(
		&t.ID, &t.UserID, &t.CategoryID, &t.Title, &t.Description, &t.IsDone,
		&t.DueAt, &t.Position, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	return t, err
}

func scanTasks(rows pgx.Rows) ([]dom.Task, error) {
	defer rows.Close()
	var list []dom.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Create inserts the task at the tail of the user's ordering: one gap past
// the current maximum position, or the base gap for an empty board.
// Concurrent creates can race on the MAX read, hence the retry.
func (r *PGTaskRepo) Create(ctx context.Context, t dom.Task) (dom.Task, error) {
	query := `
		INSERT INTO tasks (user_id, category_id, title, description, due_at, position)
		VALUES ($1, $2, $3, $4, $5,
			COALESCE((SELECT MAX(position) FROM tasks WHERE user_id = $1 AND deleted_at IS NULL), 0) + $6)
		RETURNING ` + taskColumns
	return retryPositionClash(func() (dom.Task, error) {
		return scanTask(r.db.QueryRow(ctx, query,
			t.UserID, t.CategoryID, t.Title, t.Description, t.DueAt, position.Gap))
	})
}

func (r *PGTaskRepo) GetByID(ctx context.Context, userID, id int64) (dom.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL`
	return scanTask(r.db.QueryRow(ctx, query, userID, id))
}

func (r *PGTaskRepo) List(ctx context.Context, userID int64) ([]dom.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND deleted_at IS NULL ORDER BY position ASC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (r *PGTaskRepo) ListByCategory(ctx context.Context, userID, categoryID int64) ([]dom.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = $1 AND category_id = $2 AND deleted_at IS NULL ORDER BY position ASC`
	rows, err := r.db.Query(ctx, query, userID, categoryID)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

// Update rewrites the editable fields. Position is deliberately absent:
// only Move touches the ordering key.
func (r *PGTaskRepo) Update(ctx context.Context, userID, id int64, patch dom.Task) (dom.Task, error) {
	query := `
		UPDATE tasks SET title = $3, description = $4, due_at = $5, is_done = $6, category_id = $7, updated_at = NOW()
		WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING ` + taskColumns
	return scanTask(r.db.QueryRow(ctx, query,
		userID, id, patch.Title, patch.Description, patch.DueAt, patch.IsDone, patch.CategoryID))
}

func (r *PGTaskRepo) SoftDelete(ctx context.Context, userID, id int64) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE tasks SET deleted_at = $3, updated_at = $3 WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL`,
		userID, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PGTaskRepo) MarkDone(ctx context.Context, userID, id int64, done bool) (dom.Task, error) {
	query := `
		UPDATE tasks SET is_done = $3, updated_at = NOW()
		WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING ` + taskColumns
	return scanTask(r.db.QueryRow(ctx, query, userID, id, done))
}

func (r *PGTaskRepo) Search(ctx context.Context, userID int64, q string) ([]dom.Task, error) {
	pattern := "%" + q + "%"
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL AND (title ILIKE $2 OR description ILIKE $2)
		ORDER BY position ASC`
	rows, err := r.db.Query(ctx, query, userID, pattern)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (r *PGTaskRepo) Overdue(ctx context.Context, userID int64) ([]dom.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL AND is_done = FALSE AND due_at IS NOT NULL AND due_at < NOW()
		ORDER BY due_at ASC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

// Move runs fn inside one transaction. fn returning an error rolls back
// every write made through the scope, including rebalance writes.
func (r *PGTaskRepo) Move(ctx context.Context, userID int64, fn func(tx TaskMoveTx) error) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&pgTaskMoveTx{tx: tx, userID: userID})
	})
}

type pgTaskMoveTx struct {
	tx     pgx.Tx
	userID int64
}

func (m *pgTaskMoveTx) Siblings(ctx context.Context) ([]dom.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL ORDER BY position ASC FOR UPDATE`
	rows, err := m.tx.Query(ctx, query, m.userID)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (m *pgTaskMoveTx) SetPosition(ctx context.Context, id int64, pos float64) error {
	tag, err := m.tx.Exec(ctx,
		`UPDATE tasks SET position = $3, updated_at = NOW() WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL`,
		m.userID, id, pos)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (m *pgTaskMoveTx) Relocate(ctx context.Context, id int64, pos float64, categoryID *int64) (dom.Task, error) {
	query := `
		UPDATE tasks SET position = $3, category_id = COALESCE($4, category_id), updated_at = NOW()
		WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING ` + taskColumns
	return scanTask(m.tx.QueryRow(ctx, query, m.userID, id, pos, categoryID))
}
