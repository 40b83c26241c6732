package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Oliskey-School/School-app--sub008/internal/models"
)

// RosterRepository manages the teacher roster used to fill requests that omit one.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs a RosterRepository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

const rosterColumns = "id, name, employment_type, available_days, subjects, active, created_at, updated_at"

// ListActive returns active roster teachers in a stable order.
func (r *RosterRepository) ListActive(ctx context.Context) ([]models.RosterTeacher, error) {
	query := "SELECT " + rosterColumns + " FROM timetable_teachers WHERE active = TRUE ORDER BY name ASC, id ASC"
	var teachers []models.RosterTeacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list roster teachers: %w", err)
	}
	return teachers, nil
}

// FindByIDs loads the given teachers, active or not, in the order of ids.
func (r *RosterRepository) FindByIDs(ctx context.Context, ids []string) ([]models.RosterTeacher, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT " + rosterColumns + " FROM timetable_teachers WHERE id = ANY($1)"
	var found []models.RosterTeacher
	if err := r.db.SelectContext(ctx, &found, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find roster teachers: %w", err)
	}
	byID := make(map[string]models.RosterTeacher, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	ordered := make([]models.RosterTeacher, 0, len(found))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// Upsert inserts a roster teacher or replaces the stored record with the same id.
func (r *RosterRepository) Upsert(ctx context.Context, teacher *models.RosterTeacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now

	const query = `INSERT INTO timetable_teachers (id, name, employment_type, available_days, subjects, active, created_at, updated_at)
		VALUES (:id, :name, :employment_type, :available_days, :subjects, :active, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    employment_type = EXCLUDED.employment_type,
		    available_days = EXCLUDED.available_days,
		    subjects = EXCLUDED.subjects,
		    active = EXCLUDED.active,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("upsert roster teacher: %w", err)
	}
	return nil
}

// Deactivate removes a teacher from the active roster.
func (r *RosterRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE timetable_teachers SET active = FALSE, updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate roster teacher: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("roster teacher rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
