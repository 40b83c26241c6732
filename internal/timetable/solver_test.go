package timetable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSolver() *Solver {
	return NewSolver(DefaultConfig(), zap.NewNop())
}

func countSubjects(result *GeneratedSchedule) map[string]int {
	counts := make(map[string]int)
	for _, subject := range result.Schedule {
		if subject != FreeSlot {
			counts[subject]++
		}
	}
	return counts
}

func TestSolvePartTimeTeacherStaysOnAvailableDays(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), Request{
		ClassName:      "JSS1",
		Subjects:       []string{"Mathematics"},
		Teachers:       []TeacherInput{partTime("bayo", "Mr. Bayo", []string{"Monday", "Wednesday"}, "Mathematics")},
		PeriodsPerDay:  6,
		Days:           weekdays,
		SubjectPeriods: map[string]int{"Mathematics": 4},
	})

	require.Equal(t, StatusSolved, result.Status)
	require.Len(t, result.Lessons, 4)
	for _, a := range result.Lessons {
		assert.Contains(t, []string{"Monday", "Wednesday"}, a.Day)
		assert.Equal(t, "Mr. Bayo", result.Assignments[a.Key()])
	}
	assert.True(t, result.Validation.AllPTOnAvailableDays)
	assert.True(t, result.Validation.PTTeachersScheduledCorrectly)
	assert.True(t, result.Validation.NoTeacherConflicts)
	assert.True(t, result.Validation.SubjectLoadsMet)
	assert.NotNil(t, result.Validation.Warnings)
	assert.Empty(t, result.Validation.Warnings)
	assert.Nil(t, result.Failure)
	assert.Len(t, result.Schedule, 30)
	assert.Len(t, result.Assignments, 4)

	// Part-time lessons cluster into one block on a single day.
	assert.Equal(t, "Mathematics", result.Schedule["Monday-0"])
	assert.Equal(t, "Mathematics", result.Schedule["Monday-3"])
	assert.Equal(t, 3.0, result.Score.Cluster)
}

func TestSolveQuotaOverflowRejectsBeforeSearch(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), Request{
		ClassName:      "JSS1",
		Subjects:       []string{"Mathematics", "English"},
		Teachers:       []TeacherInput{fullTime("x", "Mrs. X", "Mathematics", "English")},
		PeriodsPerDay:  6,
		Days:           weekdays,
		SubjectPeriods: map[string]int{"Mathematics": 20, "English": 20},
	})

	assert.Equal(t, StatusQuotaOverflow, result.Status)
	require.NotNil(t, result.Failure)
	assert.Equal(t, []string{"Mathematics", "English"}, result.Failure.Subjects)
	assert.Empty(t, result.Lessons)
	assert.Empty(t, result.Schedule)
	assert.Empty(t, result.Assignments)
	assert.Zero(t, result.Stats.Nodes)
	assert.False(t, result.Validation.SubjectLoadsMet)
	require.Len(t, result.Validation.Warnings, 1)
	assert.Contains(t, result.Validation.Warnings[0], "English")
}

func scenarioD(periods int) Request {
	return Request{
		ClassName:      "SS2",
		Subjects:       []string{"Music"},
		Teachers:       []TeacherInput{partTime("ola", "Mr. Ola", []string{"Friday"}, "Music")},
		PeriodsPerDay:  periods,
		Days:           weekdays,
		SubjectPeriods: map[string]int{"Music": 3},
	}
}

func TestSolveReportsInsufficientAvailableDayCapacity(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), scenarioD(2))

	assert.Equal(t, StatusInfeasible, result.Status)
	require.Len(t, result.Unplaced, 1)
	u := result.Unplaced[0]
	assert.Equal(t, "ola", u.TeacherID)
	assert.Equal(t, "Music", u.Subject)
	assert.Equal(t, RuleInsufficientCapacity, u.Rule)
	assert.Equal(t, 3, u.Required)
	assert.Equal(t, 2, u.Placed)
	assert.Contains(t, u.Reason, "Mr. Ola")
	assert.Contains(t, u.Reason, "Friday")

	assert.False(t, result.Validation.SubjectLoadsMet)
	assert.False(t, result.Validation.PTTeachersScheduledCorrectly)
	assert.True(t, result.Validation.AllPTOnAvailableDays)
	assert.True(t, result.Validation.NoTeacherConflicts)
	assert.Contains(t, result.Validation.Warnings, u.Reason)
	require.NotNil(t, result.Failure)
	assert.Equal(t, []string{"Music"}, result.Failure.Subjects)
	for _, a := range result.Lessons {
		assert.Equal(t, "Friday", a.Day)
	}
}

func TestSolveMoreCapacityNeverBreaksFeasibility(t *testing.T) {
	solver := newTestSolver()
	assert.Equal(t, StatusInfeasible, solver.Solve(context.Background(), scenarioD(2)).Status)
	for _, periods := range []int{3, 4, 8} {
		assert.Equal(t, StatusSolved, solver.Solve(context.Background(), scenarioD(periods)).Status, "periods=%d", periods)
	}

	widened := scenarioD(2)
	widened.Teachers[0].AvailableDays = []string{"Thursday", "Friday"}
	assert.Equal(t, StatusSolved, solver.Solve(context.Background(), widened).Status)
}

func fullWeekRequest() Request {
	return Request{
		ClassName: "JSS3",
		Subjects:  []string{"Mathematics", "English", "Physics", "Chemistry", "Biology"},
		Teachers: []TeacherInput{
			partTime("bayo", "Mr. Bayo", []string{"Monday", "Tuesday", "Wednesday"}, "Mathematics"),
			fullTime("x", "Mrs. X", "English"),
			fullTime("okoro", "Mr. Okoro", "Physics"),
			fullTime("ada", "Mrs. Ada", "Chemistry"),
			fullTime("femi", "Mr. Femi", "Biology"),
		},
		PeriodsPerDay: 6,
		Days:          weekdays,
		SubjectPeriods: map[string]int{
			"Mathematics": 6, "English": 6, "Physics": 6, "Chemistry": 6, "Biology": 6,
		},
	}
}

func TestSolveMeetsQuotasExactly(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), fullWeekRequest())

	require.Equal(t, StatusSolved, result.Status, result.Validation.Warnings)
	assert.Equal(t, map[string]int{
		"Mathematics": 6, "English": 6, "Physics": 6, "Chemistry": 6, "Biology": 6,
	}, countSubjects(result))
	assert.Len(t, result.Assignments, 30)
	for key, subject := range result.Schedule {
		assert.NotEqual(t, FreeSlot, subject, key)
	}
	assert.Empty(t, result.Violations)

	// Full-time subjects are spread over several days.
	days := make(map[string]bool)
	for _, a := range result.Lessons {
		if a.Subject == "English" {
			days[a.Day] = true
		}
	}
	assert.GreaterOrEqual(t, len(days), 4)
}

func TestSolveIsDeterministic(t *testing.T) {
	solver := newTestSolver()
	first := solver.Solve(context.Background(), fullWeekRequest())
	second := solver.Solve(context.Background(), fullWeekRequest())

	assert.Equal(t, first.Schedule, second.Schedule)
	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Lessons, second.Lessons)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Stats.Nodes, second.Stats.Nodes)
}

func TestSolveFillsUnusedSlotsWithFree(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), Request{
		ClassName:      "JSS1",
		Subjects:       []string{"English"},
		Teachers:       []TeacherInput{fullTime("x", "Mrs. X", "English")},
		PeriodsPerDay:  2,
		Days:           []string{"Monday", "Tuesday"},
		SubjectPeriods: map[string]int{"English": 2},
		PreferredSlots: map[string][]string{"English": {"Tuesday-1"}},
	})

	require.Equal(t, StatusSolved, result.Status)
	assert.Equal(t, map[string]string{
		"Monday-0":  "English",
		"Monday-1":  FreeSlot,
		"Tuesday-0": FreeSlot,
		"Tuesday-1": "English",
	}, result.Schedule)
	assert.Equal(t, map[string]string{"Monday-0": "Mrs. X", "Tuesday-1": "Mrs. X"}, result.Assignments)
}

func TestSolveClassSlotsExhausted(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), Request{
		ClassName: "JSS1",
		Subjects:  []string{"Mathematics", "English"},
		Teachers: []TeacherInput{
			partTime("bayo", "Mr. Bayo", []string{"Monday"}, "Mathematics"),
			partTime("ike", "Ms. Ike", []string{"Monday"}, "English"),
		},
		PeriodsPerDay:  2,
		Days:           weekdays,
		SubjectPeriods: map[string]int{"Mathematics": 2, "English": 1},
	})

	assert.Equal(t, StatusInfeasible, result.Status)
	assert.False(t, result.Stats.TimedOut)
	require.Len(t, result.Unplaced, 1)
	assert.Equal(t, "English", result.Unplaced[0].Subject)
	assert.Equal(t, RuleClassSlotsExhausted, result.Unplaced[0].Rule)
	assert.Equal(t, map[string]int{"Mathematics": 2}, countSubjects(result))
	assert.Empty(t, result.Violations)
}

func TestSolveNoQualifiedTeacher(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), Request{
		ClassName:      "JSS1",
		Subjects:       []string{"Mathematics", "Art"},
		Teachers:       []TeacherInput{fullTime("x", "Mrs. X", "Mathematics")},
		PeriodsPerDay:  4,
		Days:           weekdays,
		SubjectPeriods: map[string]int{"Mathematics": 3, "Art": 2},
	})

	assert.Equal(t, StatusInfeasible, result.Status)
	require.Len(t, result.Unplaced, 1)
	assert.Equal(t, RuleNoQualifiedTeacher, result.Unplaced[0].Rule)
	assert.Equal(t, "Art", result.Unplaced[0].Subject)
	assert.Equal(t, map[string]int{"Mathematics": 3}, countSubjects(result))
	assert.True(t, result.Validation.PTTeachersScheduledCorrectly)
	assert.False(t, result.Validation.SubjectLoadsMet)
}

func TestSolveNodeBudgetReturnsBestPartial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodes = 1
	result := NewSolver(cfg, nil).Solve(context.Background(), Request{
		ClassName:      "JSS1",
		Subjects:       []string{"English"},
		Teachers:       []TeacherInput{fullTime("x", "Mrs. X", "English")},
		PeriodsPerDay:  6,
		Days:           weekdays,
		SubjectPeriods: map[string]int{"English": 3},
	})

	assert.Equal(t, StatusTimedOut, result.Status)
	assert.True(t, result.Stats.TimedOut)
	assert.Len(t, result.Lessons, 1)
	require.Len(t, result.Unplaced, 1)
	assert.Equal(t, RuleSearchBudget, result.Unplaced[0].Rule)
	require.NotNil(t, result.Failure)
	assert.Equal(t, StatusTimedOut, result.Failure.Kind)
	assert.False(t, result.Validation.SubjectLoadsMet)
	assert.True(t, result.Validation.NoTeacherConflicts)
}

func TestSolveInvalidRequestIsData(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), Request{ClassName: "JSS1", Subjects: []string{"Art"}, Days: weekdays})

	assert.Equal(t, StatusInvalidRequest, result.Status)
	assert.True(t, result.Status.Rejected())
	require.NotNil(t, result.Failure)
	assert.Contains(t, result.Failure.Error(), "periodsPerDay")
	assert.False(t, result.Validation.AllPTOnAvailableDays)
	assert.Empty(t, result.Lessons)
}

func TestSolveComparesSeveralSolutions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSolutions = 25
	result := NewSolver(cfg, zap.NewNop()).Solve(context.Background(), fullWeekRequest())
	single := newTestSolver().Solve(context.Background(), fullWeekRequest())

	require.Equal(t, StatusSolved, result.Status)
	assert.GreaterOrEqual(t, result.Score.Total, single.Score.Total)
	assert.Empty(t, result.Violations)
}

func TestSolveChoosesAmongQualifiedTeachers(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), Request{
		ClassName: "JSS2",
		Subjects:  []string{"Mathematics", "Physics"},
		Teachers: []TeacherInput{
			partTime("ada", "Mrs. Ada", []string{"Monday"}, "Mathematics", "Physics"),
			fullTime("ben", "Mr. Ben", "Mathematics"),
		},
		PeriodsPerDay:  2,
		Days:           []string{"Monday", "Tuesday"},
		SubjectPeriods: map[string]int{"Mathematics": 2, "Physics": 2},
	})

	require.Equal(t, StatusSolved, result.Status, result.Validation.Warnings)
	assert.Equal(t, map[string]string{
		"Monday-0":  "Physics",
		"Monday-1":  "Physics",
		"Tuesday-0": "Mathematics",
		"Tuesday-1": "Mathematics",
	}, result.Schedule)
	assert.Equal(t, map[string]string{
		"Monday-0":  "Mrs. Ada",
		"Monday-1":  "Mrs. Ada",
		"Tuesday-0": "Mr. Ben",
		"Tuesday-1": "Mr. Ben",
	}, result.Assignments)
	assert.Empty(t, result.Unplaced)
	assert.Empty(t, result.Violations)
}

func TestSolveSplitsQuotaAcrossTeachers(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), Request{
		ClassName: "JSS2",
		Subjects:  []string{"Mathematics"},
		Teachers: []TeacherInput{
			partTime("mon", "Mr. Bayo", []string{"Monday"}, "Mathematics"),
			partTime("tue", "Ms. Ike", []string{"Tuesday"}, "Mathematics"),
		},
		PeriodsPerDay:  2,
		Days:           []string{"Monday", "Tuesday"},
		SubjectPeriods: map[string]int{"Mathematics": 4},
	})

	require.Equal(t, StatusSolved, result.Status, result.Validation.Warnings)
	assert.Equal(t, map[string]int{"Mathematics": 4}, countSubjects(result))
	for _, a := range result.Lessons {
		if a.Day == "Monday" {
			assert.Equal(t, "mon", a.TeacherID, a.Key())
		} else {
			assert.Equal(t, "tue", a.TeacherID, a.Key())
		}
	}
	assert.True(t, result.Validation.AllPTOnAvailableDays)
	assert.True(t, result.Validation.PTTeachersScheduledCorrectly)
	assert.Empty(t, result.Violations)
}

// overCommitted gives Mrs. Ada four periods on a day that only has two.
func overCommitted() Request {
	return Request{
		ClassName: "SS1",
		Subjects:  []string{"Mathematics", "Physics", "English"},
		Teachers: []TeacherInput{
			partTime("ada", "Mrs. Ada", []string{"Monday"}, "Mathematics", "Physics"),
			fullTime("ben", "Mr. Ben", "English"),
		},
		PeriodsPerDay:  2,
		Days:           []string{"Monday", "Tuesday", "Wednesday"},
		SubjectPeriods: map[string]int{"Mathematics": 2, "Physics": 2, "English": 2},
	}
}

func TestSolveBestPartialKeepsEveryPlaceableLesson(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), overCommitted())

	require.Equal(t, StatusInfeasible, result.Status)
	assert.Len(t, result.Lessons, 4)
	assert.Equal(t, map[string]int{"Mathematics": 2, "English": 2}, countSubjects(result))
	for _, a := range result.Lessons {
		if a.TeacherID == "ada" {
			assert.Equal(t, "Monday", a.Day)
		}
	}
	assert.Empty(t, result.Violations)
}

func TestSolveReportsOverCommittedTeacher(t *testing.T) {
	result := newTestSolver().Solve(context.Background(), overCommitted())

	require.Equal(t, StatusInfeasible, result.Status)
	assert.False(t, result.Stats.TimedOut)
	require.Len(t, result.Unplaced, 1)
	u := result.Unplaced[0]
	assert.Equal(t, "Physics", u.Subject)
	assert.Equal(t, "ada", u.TeacherID)
	assert.Equal(t, RuleInsufficientCapacity, u.Rule)
	assert.Zero(t, u.Placed)
	assert.Contains(t, u.Reason, "Mrs. Ada")
	assert.Contains(t, u.Reason, "Mathematics, Physics need 4 periods")
	assert.Contains(t, u.Reason, "only 2 slots are usable")
	assert.Equal(t, []string{"Physics"}, result.Failure.Subjects)
}

func TestSolveReportsTeacherBookedByEarlierClass(t *testing.T) {
	occ := NewOccupancy()
	occ.Reserve("ada", "Tuesday-0", "SS0")
	req := overCommitted()
	req.Teachers[0].AvailableDays = []string{"Monday", "Tuesday"}

	result := newTestSolver().solve(context.Background(), req, occ)

	require.Equal(t, StatusInfeasible, result.Status)
	require.Len(t, result.Unplaced, 1)
	u := result.Unplaced[0]
	assert.Equal(t, RuleDoubleBooked, u.Rule)
	assert.Contains(t, u.Reason, "only 3 slots are usable")
	assert.Equal(t, 5, len(result.Lessons))
}
