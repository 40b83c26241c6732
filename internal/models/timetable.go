package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// TimetableStatus represents lifecycle phases for stored timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// Timetable is a versioned, persisted weekly timetable for one class.
type Timetable struct {
	ID        string          `db:"id" json:"id"`
	ClassName string          `db:"class_name" json:"class_name"`
	Version   int             `db:"version" json:"version"`
	Status    TimetableStatus `db:"status" json:"status"`
	Meta      types.JSONText  `db:"meta" json:"meta"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// TimetableSlot is one taught period inside a stored timetable. Free periods are not stored.
type TimetableSlot struct {
	ID          string    `db:"id" json:"id"`
	TimetableID string    `db:"timetable_id" json:"timetable_id"`
	Day         string    `db:"day" json:"day"`
	DayIndex    int       `db:"day_index" json:"day_index"`
	Period      int       `db:"period" json:"period"`
	Subject     string    `db:"subject" json:"subject"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	TeacherName string    `db:"teacher_name" json:"teacher_name"`
	ClassName   string    `db:"class_name" json:"class_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TimetableFilter narrows timetable listings.
type TimetableFilter struct {
	ClassName string
	Status    TimetableStatus
	Page      int
	PageSize  int
}

// RosterTeacher is a teacher record the solver can draw on when a request omits its roster.
type RosterTeacher struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	EmploymentType string         `db:"employment_type" json:"employment_type"`
	AvailableDays  pq.StringArray `db:"available_days" json:"available_days"`
	Subjects       pq.StringArray `db:"subjects" json:"subjects"`
	Active         bool           `db:"active" json:"active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}
