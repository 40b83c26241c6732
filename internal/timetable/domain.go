// Package timetable builds weekly class timetables with a deterministic
// backtracking solver. Every produced schedule is re-checked by an independent
// validator before it is reported.
package timetable

import (
	"fmt"
	"strconv"
	"strings"
)

// EmploymentType distinguishes full-time from part-time staff.
type EmploymentType string

const (
	FullTime EmploymentType = "FT"
	PartTime EmploymentType = "PT"
)

// TimeBand is the preferred part of the day for a subject.
type TimeBand string

const (
	BandEither    TimeBand = "Either"
	BandMorning   TimeBand = "Morning"
	BandAfternoon TimeBand = "Afternoon"
)

// FreeSlot marks a slot that carries no lesson.
const FreeSlot = "Free"

// TeacherInput is a roster entry as supplied by the caller.
type TeacherInput struct {
	ID                    string         `json:"id" yaml:"id"`
	Name                  string         `json:"name" yaml:"name"`
	EmploymentType        EmploymentType `json:"employmentType" yaml:"employmentType"`
	AvailableDays         []string       `json:"availableDays,omitempty" yaml:"availableDays,omitempty"`
	SubjectSpecialization []string       `json:"subjectSpecialization,omitempty" yaml:"subjectSpecialization,omitempty"`
}

// Request describes one class to be scheduled.
type Request struct {
	ClassName        string              `json:"className" yaml:"className"`
	Subjects         []string            `json:"subjects" yaml:"subjects"`
	Teachers         []TeacherInput      `json:"teachers" yaml:"teachers"`
	PeriodsPerDay    int                 `json:"periodsPerDay" yaml:"periodsPerDay"`
	Days             []string            `json:"days" yaml:"days"`
	SubjectPeriods   map[string]int      `json:"subjectPeriods,omitempty" yaml:"subjectPeriods,omitempty"`
	SubjectTimeBands map[string]TimeBand `json:"subjectTimeBands,omitempty" yaml:"subjectTimeBands,omitempty"`
	PreferredSlots   map[string][]string `json:"preferredSlots,omitempty" yaml:"preferredSlots,omitempty"`
}

// Teacher is a normalised roster entry. AvailableDays always follows the
// school's day order and is never empty.
type Teacher struct {
	ID            string
	Name          string
	Employment    EmploymentType
	Subjects      []string
	AvailableDays []string
}

// IsPartTime reports whether the teacher is part-time.
func (t Teacher) IsPartTime() bool {
	return t.Employment == PartTime
}

// AvailableOn reports whether the teacher works on the named day.
func (t Teacher) AvailableOn(day string) bool {
	for _, d := range t.AvailableDays {
		if d == day {
			return true
		}
	}
	return false
}

// Teaches reports whether the teacher is qualified for subject.
func (t Teacher) Teaches(subject string) bool {
	for _, s := range t.Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// Subject is a normalised subject with its weekly quota.
type Subject struct {
	Name      string
	Quota     int
	Band      TimeBand
	Preferred []Slot
}

func (s Subject) prefers(slot Slot) bool {
	for _, p := range s.Preferred {
		if p == slot {
			return true
		}
	}
	return false
}

// Slot is a (day, period) position inside one class week. Day indexes the
// problem's ordered day list.
type Slot struct {
	Day    int
	Period int
}

// Assignment binds a slot of a class to a subject and teacher.
type Assignment struct {
	Class       string `json:"class" yaml:"class"`
	Day         string `json:"day" yaml:"day"`
	Period      int    `json:"period" yaml:"period"`
	Subject     string `json:"subject" yaml:"subject"`
	TeacherID   string `json:"teacherId" yaml:"teacherId"`
	TeacherName string `json:"teacherName" yaml:"teacherName"`
}

// Key returns the "Day-Period" identifier of the assignment's slot.
func (a Assignment) Key() string {
	return SlotKey(a.Day, a.Period)
}

// SlotKey formats a day name and period index as "Day-Period".
func SlotKey(day string, period int) string {
	return day + "-" + strconv.Itoa(period)
}

// ParseSlotKey splits a "Day-Period" key. Day names may themselves contain
// dashes, so the split happens at the last one.
func ParseSlotKey(key string) (string, int, error) {
	idx := strings.LastIndex(key, "-")
	if idx <= 0 || idx == len(key)-1 {
		return "", 0, fmt.Errorf("slot key %q must look like Day-Period", key)
	}
	period, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("slot key %q has a non-numeric period", key)
	}
	return key[:idx], period, nil
}

// Problem is the normalised form of a Request.
type Problem struct {
	ClassName     string
	Days          []string
	PeriodsPerDay int
	Subjects      []Subject
	Teachers      []Teacher
	Notices       []string

	dayIndex     map[string]int
	teacherIndex map[string]int
	subjectIndex map[string]int
}

// NumSlots is the number of slots in one class week.
func (p *Problem) NumSlots() int {
	return len(p.Days) * p.PeriodsPerDay
}

// Key formats a slot of this problem as "Day-Period".
func (p *Problem) Key(s Slot) string {
	return SlotKey(p.Days[s.Day], s.Period)
}

// Teacher looks a teacher up by identifier.
func (p *Problem) Teacher(id string) (Teacher, bool) {
	idx, ok := p.teacherIndex[id]
	if !ok {
		return Teacher{}, false
	}
	return p.Teachers[idx], true
}

// Quotas returns the subject quotas keyed by subject name.
func (p *Problem) Quotas() map[string]int {
	quotas := make(map[string]int, len(p.Subjects))
	for _, s := range p.Subjects {
		quotas[s.Name] = s.Quota
	}
	return quotas
}

func (p *Problem) slotIndex(s Slot) int {
	return s.Day*p.PeriodsPerDay + s.Period
}

func (p *Problem) slotAt(idx int) Slot {
	return Slot{Day: idx / p.PeriodsPerDay, Period: idx % p.PeriodsPerDay}
}

func (p *Problem) roster() map[string]Teacher {
	roster := make(map[string]Teacher, len(p.Teachers))
	for _, t := range p.Teachers {
		roster[t.ID] = t
	}
	return roster
}
