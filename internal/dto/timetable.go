package dto

import (
	"time"

	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
)

// GenerateTimetableRequest describes one class week to schedule. Semantic
// checks (positive periods, known employment types, quota capacity) are left
// to the solver so that they come back as structured results.
type GenerateTimetableRequest struct {
	ClassName        string                        `json:"className" validate:"max=64"`
	Subjects         []string                      `json:"subjects" validate:"max=64,dive,max=64"`
	Teachers         []timetable.TeacherInput      `json:"teachers" validate:"max=200"`
	TeacherIDs       []string                      `json:"teacherIds,omitempty" validate:"max=200"`
	PeriodsPerDay    int                           `json:"periodsPerDay" validate:"max=24"`
	Days             []string                      `json:"days" validate:"max=14,dive,max=32"`
	SubjectPeriods   map[string]int                `json:"subjectPeriods,omitempty"`
	SubjectTimeBands map[string]timetable.TimeBand `json:"subjectTimeBands,omitempty"`
	PreferredSlots   map[string][]string           `json:"preferredSlots,omitempty"`
}

// ToRequest converts the payload into a solver request.
func (r GenerateTimetableRequest) ToRequest() timetable.Request {
	return timetable.Request{
		ClassName:        r.ClassName,
		Subjects:         r.Subjects,
		Teachers:         r.Teachers,
		PeriodsPerDay:    r.PeriodsPerDay,
		Days:             r.Days,
		SubjectPeriods:   r.SubjectPeriods,
		SubjectTimeBands: r.SubjectTimeBands,
		PreferredSlots:   r.PreferredSlots,
	}
}

// GenerateTimetableResponse returns the solver result and the proposal it was stored under.
type GenerateTimetableResponse struct {
	ProposalID string                       `json:"proposalId,omitempty"`
	ExpiresAt  *time.Time                   `json:"expiresAt,omitempty"`
	Cached     bool                         `json:"cached"`
	Result     *timetable.GeneratedSchedule `json:"result"`
}

// GenerateSessionRequest schedules several classes that share one teacher pool.
type GenerateSessionRequest struct {
	Classes  []GenerateTimetableRequest `json:"classes" validate:"required,min=1,max=50,dive"`
	Parallel bool                       `json:"parallel"`
}

// SessionProposal links one scheduled class to its stored proposal.
type SessionProposal struct {
	ClassName  string           `json:"className"`
	ProposalID string           `json:"proposalId,omitempty"`
	Status     timetable.Status `json:"status"`
}

// GenerateSessionResponse returns every class result of a session.
type GenerateSessionResponse struct {
	SessionID string                   `json:"sessionId"`
	Proposals []SessionProposal        `json:"proposals"`
	Result    *timetable.SessionResult `json:"result"`
}

// TimetableJobStatus tracks asynchronous session generation.
type TimetableJobStatus string

const (
	TimetableJobQueued     TimetableJobStatus = "QUEUED"
	TimetableJobProcessing TimetableJobStatus = "PROCESSING"
	TimetableJobFinished   TimetableJobStatus = "FINISHED"
	TimetableJobFailed     TimetableJobStatus = "FAILED"
)

// TimetableJobResponse reports the state of a queued session.
type TimetableJobResponse struct {
	ID         string                   `json:"id"`
	Status     TimetableJobStatus       `json:"status"`
	CreatedBy  string                   `json:"createdBy,omitempty"`
	CreatedAt  time.Time                `json:"createdAt"`
	FinishedAt *time.Time               `json:"finishedAt,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Result     *GenerateSessionResponse `json:"result,omitempty"`
}

// SaveTimetableRequest persists a solved proposal as a new timetable version.
type SaveTimetableRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	Publish    bool   `json:"publish"`
}

// SaveTimetableResponse identifies the stored version.
type SaveTimetableResponse struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Status  string `json:"status"`
}

// TimetableQuery filters stored timetables.
type TimetableQuery struct {
	ClassName string `form:"className" json:"className"`
	Status    string `form:"status" json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED ARCHIVED"`
	Page      int    `form:"page" json:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"pageSize" json:"pageSize" validate:"omitempty,min=1,max=100"`
}

// ValidateTimetableRequest checks a timetable edited outside the solver.
type ValidateTimetableRequest struct {
	Class            GenerateTimetableRequest `json:"class"`
	Lessons          []timetable.Assignment   `json:"lessons" validate:"max=1000"`
	RespectPublished bool                     `json:"respectPublished"`
}

// RosterTeacherRequest creates or replaces a roster teacher.
type RosterTeacherRequest struct {
	ID             string   `json:"id" validate:"omitempty,max=64"`
	Name           string   `json:"name" validate:"required,max=120"`
	EmploymentType string   `json:"employmentType" validate:"required,oneof=FT PT"`
	AvailableDays  []string `json:"availableDays" validate:"required_if=EmploymentType PT,max=14"`
	Subjects       []string `json:"subjects" validate:"required,min=1,max=32"`
	Active         *bool    `json:"active"`
}
