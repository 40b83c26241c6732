package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/Oliskey-School/School-app--sub008/internal/models"
)

// TimetableRepository persists versioned class timetables.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a timetable assigning the next version for the class.
func (r *TimetableRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if timetable == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if strings.TrimSpace(timetable.ClassName) == "" {
		return fmt.Errorf("class_name is required")
	}
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	if timetable.Status == "" {
		timetable.Status = models.TimetableStatusDraft
	}
	if len(timetable.Meta) == 0 {
		timetable.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetables WHERE LOWER(class_name) = LOWER($1)`
	if err := sqlx.GetContext(ctx, target, &timetable.Version, nextVersionQuery, timetable.ClassName); err != nil {
		return fmt.Errorf("compute next timetable version: %w", err)
	}

	const insertQuery = `
INSERT INTO timetables (id, class_name, version, status, meta, created_at, updated_at)
VALUES (:id, :class_name, :version, :status, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, timetable); err != nil {
		return fmt.Errorf("insert timetable: %w", err)
	}
	return nil
}

// List returns timetables matching the filter, newest version first, with the total count.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	base := "FROM timetables WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ClassName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(class_name) = LOWER($%d)", len(args)+1))
		args = append(args, filter.ClassName)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, class_name, version, status, meta, created_at, updated_at %s ORDER BY class_name ASC, version DESC LIMIT %d OFFSET %d", base, size, offset)
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}
	return timetables, total, nil
}

// FindByID loads a timetable by its identifier.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT id, class_name, version, status, meta, created_at, updated_at FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// Delete removes a stored timetable version.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM timetables WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus updates the status (and optionally meta) of a timetable.
func (r *TimetableRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	if len(meta) > 0 {
		query = `UPDATE timetables SET status = $1, meta = $2, updated_at = $3 WHERE id = $4`
		args = []interface{}{status, meta, now, id}
	} else {
		query = `UPDATE timetables SET status = $1, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	}
	result, err := target.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update timetable status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
