package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkRequest() Request {
	return Request{
		ClassName: "SS2",
		Subjects:  []string{"Mathematics", "English"},
		Teachers: []TeacherInput{
			partTime("bayo", "Mr. Bayo", []string{"Monday"}, "Mathematics"),
			fullTime("x", "Mrs. X", "English"),
		},
		PeriodsPerDay:  2,
		Days:           []string{"Monday", "Tuesday"},
		SubjectPeriods: map[string]int{"Mathematics": 2, "English": 1},
	}
}

func TestCheckAcceptsValidTimetable(t *testing.T) {
	result := Check(checkRequest(), []Assignment{
		{Day: "tuesday", Period: 0, Subject: "english", TeacherID: "x"},
		{Day: "Monday", Period: 1, Subject: "Mathematics", TeacherID: "bayo"},
		{Day: "Monday", Period: 0, Subject: "Mathematics", TeacherID: "bayo"},
	}, nil, nil)

	require.Equal(t, StatusSolved, result.Status)
	assert.Equal(t, map[string]string{
		"Monday-0":  "Mathematics",
		"Monday-1":  "Mathematics",
		"Tuesday-0": "English",
		"Tuesday-1": FreeSlot,
	}, result.Schedule)
	assert.Equal(t, "Mrs. X", result.Assignments["Tuesday-0"])
	assert.Equal(t, "Monday-0", result.Lessons[0].Key())
	assert.Empty(t, result.Validation.Warnings)
	assert.True(t, result.Validation.PTTeachersScheduledCorrectly)
	assert.Equal(t, 1.0, result.Score.Cluster)
}

func TestCheckReportsBrokenTimetable(t *testing.T) {
	committed := NewOccupancy()
	committed.Reserve("x", "Tuesday-0", "SS1")

	result := Check(checkRequest(), []Assignment{
		{Day: "Tuesday", Period: 1, Subject: "Mathematics", TeacherID: "bayo"},
		{Day: "Tuesday", Period: 0, Subject: "English", TeacherID: "x"},
		{Day: "Saturday", Period: 0, Subject: "Mathematics", TeacherID: "bayo"},
	}, committed, nil)

	require.Equal(t, StatusInfeasible, result.Status)
	assert.Equal(t, []Rule{RuleOutsideWeek, RuleAvailability, RuleDoubleBooked, RuleQuotaUnmet}, rules(result.Violations))
	assert.False(t, result.Validation.AllPTOnAvailableDays)
	assert.False(t, result.Validation.PTTeachersScheduledCorrectly)
	assert.False(t, result.Validation.NoTeacherConflicts)
	assert.False(t, result.Validation.SubjectLoadsMet)
	assert.Equal(t, "schedule failed verification", result.Validation.Warnings[0])
	assert.Equal(t, []string{"Mathematics"}, result.Failure.Subjects)
	assert.Len(t, result.Lessons, 2)
}

func TestCheckRejectsMalformedRequest(t *testing.T) {
	req := checkRequest()
	req.PeriodsPerDay = 0
	result := Check(req, nil, nil, nil)
	assert.Equal(t, StatusInvalidRequest, result.Status)
	assert.Empty(t, result.Schedule)
}

func TestCheckScoresWithGivenScorer(t *testing.T) {
	lessons := []Assignment{
		{Day: "Monday", Period: 0, Subject: "Mathematics", TeacherID: "bayo"},
		{Day: "Monday", Period: 1, Subject: "Mathematics", TeacherID: "bayo"},
		{Day: "Tuesday", Period: 0, Subject: "English", TeacherID: "x"},
	}
	weights := DefaultWeights()
	weights.Cluster = 5

	plain := Check(checkRequest(), lessons, nil, nil)
	weighted := Check(checkRequest(), lessons, nil, NewScorer(weights))

	require.Equal(t, StatusSolved, weighted.Status)
	assert.Equal(t, 1.0, plain.Score.Cluster)
	assert.Equal(t, 5.0, weighted.Score.Cluster)
	assert.Equal(t, plain.Score.Spread, weighted.Score.Spread)
}
