package repo

import (
	"context"
	"errors"

	dom "taskboard/internal/domain"
	"taskboard/internal/position"
	"taskboard/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const categoryColumns = `id, user_id, name, position, is_default, created_at, updated_at`

// DefaultCategoryName is the name of the lazily created default category.
const DefaultCategoryName = "Inbox"

// CategoryRepo provides category persistence, scoped per user like TaskRepo.
type CategoryRepo interface {
	Create(ctx context.Context, userID int64, name string) (dom.Category, error)
	GetByID(ctx context.Context, userID, id int64) (dom.Category, error)
	List(ctx context.Context, userID int64) ([]dom.Category, error)
	Rename(ctx context.Context, userID, id int64, name string) (dom.Category, error)
	// Delete removes a non-default category and reassigns its live tasks
	// to reassignTo, atomically. Deleting the default (or a missing row)
	// reports pgx.ErrNoRows.
	Delete(ctx context.Context, userID, id, reassignTo int64) error
	// EnsureDefault returns the user's default category, creating it on
	// first access. Safe under concurrent calls: a partial unique index
	// guarantees at most one default per user.
	EnsureDefault(ctx context.Context, userID int64) (dom.Category, error)
	Move(ctx context.Context, userID int64, fn func(tx CategoryMoveTx) error) error
}

// CategoryMoveTx mirrors TaskMoveTx for the per-user category ordering.
type CategoryMoveTx interface {
	Siblings(ctx context.Context) ([]dom.Category, error)
	SetPosition(ctx context.Context, id int64, pos float64) error
	Place(ctx context.Context, id int64, pos float64) (dom.Category, error)
}

// PGCategoryRepo implements CategoryRepo with Postgres.
type PGCategoryRepo struct {
	db *pgxpool.Pool
}

func NewPGCategoryRepo(db *pgxpool.Pool) *PGCategoryRepo {
	return &PGCategoryRepo{db: db}
}

func scanCategory(r row) (dom.Category, error) {
	var c dom.Category
	err := r.Scan(&c.ID, &c.UserID, &c.Name, &c.Position, &c.IsDefault, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanCategories(rows pgx.Rows) ([]dom.Category, error) {
	defer rows.Close()
	var list []dom.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *PGCategoryRepo) Create(ctx context.Context, userID int64, name string) (dom.Category, error) {
	query := `
		INSERT INTO categories (user_id, name, position)
		VALUES ($1, $2,
			COALESCE((SELECT MAX(position) FROM categories WHERE user_id = $1), 0) + $3)
		RETURNING ` + categoryColumns
	return retryPositionClash(func() (dom.Category, error) {
		return scanCategory(r.db.QueryRow(ctx, query, userID, name, position.Gap))
	})
}

func (r *PGCategoryRepo) GetByID(ctx context.Context, userID, id int64) (dom.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE user_id = $1 AND id = $2`
	return scanCategory(r.db.QueryRow(ctx, query, userID, id))
}

func (r *PGCategoryRepo) List(ctx context.Context, userID int64) ([]dom.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE user_id = $1 ORDER BY position ASC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return scanCategories(rows)
}

func (r *PGCategoryRepo) Rename(ctx context.Context, userID, id int64, name string) (dom.Category, error) {
	query := `
		UPDATE categories SET name = $3, updated_at = NOW()
		WHERE user_id = $1 AND id = $2
		RETURNING ` + categoryColumns
	return scanCategory(r.db.QueryRow(ctx, query, userID, id, name))
}

func (r *PGCategoryRepo) Delete(ctx context.Context, userID, id, reassignTo int64) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE tasks SET category_id = $3, updated_at = NOW()
			 WHERE user_id = $1 AND category_id = $2 AND deleted_at IS NULL`,
			userID, id, reassignTo)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM categories WHERE user_id = $1 AND id = $2 AND is_default = FALSE`,
			userID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

func (r *PGCategoryRepo) EnsureDefault(ctx context.Context, userID int64) (dom.Category, error) {
	get := `SELECT ` + categoryColumns + ` FROM categories WHERE user_id = $1 AND is_default = TRUE`
	// The default goes at the tail like any other category. A fixed
	// position would collide with a category the user created first and
	// leave the account without a default for good.
	insert := `
		INSERT INTO categories (user_id, name, position, is_default)
		VALUES ($1, $2,
			COALESCE((SELECT MAX(position) FROM categories WHERE user_id = $1), 0) + $3, TRUE)
		RETURNING ` + categoryColumns
	var c dom.Category
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		c, err = scanCategory(r.db.QueryRow(ctx, get, userID))
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return dom.Category{}, err
		}
		c, err = scanCategory(r.db.QueryRow(ctx, insert, userID, DefaultCategoryName, position.Gap))
		if !utils.IsPGUniqueViolation(err) {
			return c, err
		}
		// Unique violation: either another request won the one-default
		// race (the next select finds its row) or a concurrent create
		// took the tail position (the next insert re-reads the MAX).
	}
	return scanCategory(r.db.QueryRow(ctx, get, userID))
}

func (r *PGCategoryRepo) Move(ctx context.Context, userID int64, fn func(tx CategoryMoveTx) error) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&pgCategoryMoveTx{tx: tx, userID: userID})
	})
}

type pgCategoryMoveTx struct {
	tx     pgx.Tx
	userID int64
}

func (m *pgCategoryMoveTx) Siblings(ctx context.Context) ([]dom.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories
		WHERE user_id = $1 ORDER BY position ASC FOR UPDATE`
	rows, err := m.tx.Query(ctx, query, m.userID)
	if err != nil {
		return nil, err
	}
	return scanCategories(rows)
}

func (m *pgCategoryMoveTx) SetPosition(ctx context.Context, id int64, pos float64) error {
	tag, err := m.tx.Exec(ctx,
		`UPDATE categories SET position = $3, updated_at = NOW() WHERE user_id = $1 AND id = $2`,
		m.userID, id, pos)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (m *pgCategoryMoveTx) Place(ctx context.Context, id int64, pos float64) (dom.Category, error) {
	query := `
		UPDATE categories SET position = $3, updated_at = NOW()
		WHERE user_id = $1 AND id = $2
		RETURNING ` + categoryColumns
	return scanCategory(m.tx.QueryRow(ctx, query, m.userID, id, pos))
}
