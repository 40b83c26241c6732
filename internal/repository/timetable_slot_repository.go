package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Oliskey-School/School-app--sub008/internal/models"
)

// TimetableSlotRepository manages the taught periods of stored timetables.
type TimetableSlotRepository struct {
	db *sqlx.DB
}

// NewTimetableSlotRepository builds repository.
func NewTimetableSlotRepository(db *sqlx.DB) *TimetableSlotRepository {
	return &TimetableSlotRepository{db: db}
}

func (r *TimetableSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// UpsertBatch inserts or updates slots for a timetable.
func (r *TimetableSlotRepository) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_slots (id, timetable_id, day, day_index, period, subject, teacher_id, teacher_name, created_at)
VALUES (:id, :timetable_id, :day, :day_index, :period, :subject, :teacher_id, :teacher_name, :created_at)
ON CONFLICT (timetable_id, day, period) DO UPDATE
SET subject = EXCLUDED.subject,
    teacher_id = EXCLUDED.teacher_id,
    teacher_name = EXCLUDED.teacher_name`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("upsert timetable slot: %w", err)
		}
	}
	return nil
}

// ListByTimetable returns slots ordered by day and period.
func (r *TimetableSlotRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	const query = `SELECT id, timetable_id, day, day_index, period, subject, teacher_id, teacher_name, created_at
FROM timetable_slots WHERE timetable_id = $1 ORDER BY day_index ASC, period ASC`
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slots, nil
}

// ListPublished returns every slot of published timetables together with its class name.
func (r *TimetableSlotRepository) ListPublished(ctx context.Context) ([]models.TimetableSlot, error) {
	const query = `SELECT s.id, s.timetable_id, s.day, s.day_index, s.period, s.subject, s.teacher_id, s.teacher_name, t.class_name, s.created_at
FROM timetable_slots s JOIN timetables t ON t.id = s.timetable_id
WHERE t.status = 'PUBLISHED' ORDER BY t.class_name ASC, s.day_index ASC, s.period ASC`
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, fmt.Errorf("list published timetable slots: %w", err)
	}
	return slots, nil
}
