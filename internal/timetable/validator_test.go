package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lesson(class, day string, period int, subject, teacherID string) Assignment {
	return Assignment{Class: class, Day: day, Period: period, Subject: subject, TeacherID: teacherID, TeacherName: teacherID}
}

func rules(violations []ConstraintViolation) []Rule {
	out := make([]Rule, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Rule)
	}
	return out
}

func validatorRoster() map[string]Teacher {
	return map[string]Teacher{
		"bayo":  {ID: "bayo", Name: "Mr. Bayo", Employment: PartTime, Subjects: []string{"Mathematics"}, AvailableDays: []string{"Monday"}},
		"x":     {ID: "x", Name: "Mrs. X", Employment: FullTime, Subjects: []string{"English"}, AvailableDays: weekdays},
		"okoro": {ID: "okoro", Name: "Mr. Okoro", Employment: FullTime, Subjects: []string{"Physics"}, AvailableDays: weekdays},
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	roster := validatorRoster()
	classes := []ClassSchedule{
		{
			ClassName: "7A",
			Roster:    roster,
			Quotas:    map[string]int{"Mathematics": 1, "English": 2, "Physics": 1},
			Assignments: []Assignment{
				lesson("7A", "Monday", 0, "Mathematics", "bayo"),
				lesson("7A", "Tuesday", 0, "Mathematics", "bayo"),
				lesson("7A", "Monday", 1, "English", "x"),
				lesson("7A", "Monday", 1, "Physics", "okoro"),
			},
		},
		{
			ClassName:   "7B",
			Roster:      roster,
			Assignments: []Assignment{lesson("7B", "Monday", 0, "Mathematics", "bayo")},
		},
	}

	violations := Validate(classes, nil, true)
	assert.Equal(t, []Rule{
		RuleDuplicateSlot,
		RuleAvailability,
		RuleDoubleBooked,
		RuleQuotaUnmet,
		RuleQuotaExceeded,
	}, rules(violations))
	assert.Equal(t, []string{"Monday-1"}, violations[0].Slots)
	assert.Equal(t, "bayo", violations[1].TeacherID)
	assert.Contains(t, violations[2].Message, "7A, 7B")
	assert.Equal(t, "English", violations[3].Subject)
	assert.Equal(t, "Mathematics", violations[4].Subject)

	partial := Validate(classes, nil, false)
	assert.NotContains(t, rules(partial), RuleQuotaUnmet)
	assert.Len(t, partial, 4)
}

func TestValidateCountsCommittedOccupancy(t *testing.T) {
	occ := NewOccupancy()
	occ.Reserve("x", "Monday-1", "8C")

	class := ClassSchedule{
		ClassName:   "7A",
		Roster:      validatorRoster(),
		Assignments: []Assignment{lesson("7A", "Monday", 1, "English", "x")},
	}
	violations := Validate([]ClassSchedule{class}, occ, true)
	require.Len(t, violations, 1)
	assert.Equal(t, RuleDoubleBooked, violations[0].Rule)
	assert.Contains(t, violations[0].Message, "8C, 7A")

	assert.Empty(t, Validate([]ClassSchedule{class}, NewOccupancy(), true))
}

func TestValidateUnknownTeacher(t *testing.T) {
	violations := Validate([]ClassSchedule{{
		ClassName:   "7A",
		Roster:      validatorRoster(),
		Assignments: []Assignment{lesson("7A", "Monday", 0, "Chemistry", "ghost")},
	}}, nil, false)
	assert.Equal(t, []Rule{RuleUnknownTeacher}, rules(violations))
}

func TestValidateCleanScheduleReturnsEmptySlice(t *testing.T) {
	violations := Validate([]ClassSchedule{{
		ClassName: "7A",
		Roster:    validatorRoster(),
		Quotas:    map[string]int{"Mathematics": 1},
		Assignments: []Assignment{
			lesson("7A", "Monday", 0, "Mathematics", "bayo"),
		},
	}}, nil, true)
	require.NotNil(t, violations)
	assert.Empty(t, violations)
}

type viewStub struct {
	slots    map[Slot]string
	teachers map[string]string
	counts   map[string]int
}

func (v viewStub) SlotHolder(slot Slot) (string, bool) {
	s, ok := v.slots[slot]
	return s, ok
}

func (v viewStub) TeacherHolder(teacherID string, slot Slot) (string, bool) {
	c, ok := v.teachers[teacherID+"@"+SlotKey(weekdays[slot.Day], slot.Period)]
	return c, ok
}

func (v viewStub) AssignedCount(subject string) int {
	return v.counts[subject]
}

func TestCheckPlacement(t *testing.T) {
	p, failure := Normalize(Request{
		ClassName:      "7A",
		Subjects:       []string{"Mathematics", "English"},
		Teachers:       []TeacherInput{partTime("bayo", "Mr. Bayo", []string{"Monday"}, "Mathematics"), fullTime("x", "Mrs. X", "English")},
		PeriodsPerDay:  4,
		Days:           weekdays,
		SubjectPeriods: map[string]int{"Mathematics": 2, "English": 2},
	})
	require.Nil(t, failure)
	bayo, _ := p.Teacher("bayo")
	x, _ := p.Teacher("x")
	maths, english := p.Subjects[0], p.Subjects[1]

	empty := viewStub{}
	assert.Empty(t, CheckPlacement(p, empty, bayo, maths, Slot{Day: 0, Period: 0}))
	assert.Equal(t, []Rule{RuleAvailability}, rules(CheckPlacement(p, empty, bayo, maths, Slot{Day: 1, Period: 0})))

	busy := viewStub{
		slots:    map[Slot]string{{Day: 0, Period: 1}: "Mathematics"},
		teachers: map[string]string{"x@Monday-1": "7B"},
		counts:   map[string]int{"English": 2},
	}
	assert.Equal(t,
		[]Rule{RuleDuplicateSlot, RuleDoubleBooked, RuleQuotaExceeded},
		rules(CheckPlacement(p, busy, x, english, Slot{Day: 0, Period: 1})),
	)
}
