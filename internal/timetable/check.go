package timetable

import (
	"fmt"
	"sort"
	"strings"
)

// RuleOutsideWeek flags a supplied lesson whose day or period is not part of
// the class week.
const RuleOutsideWeek Rule = "outside_week"

// Check verifies a timetable produced elsewhere, for example one edited by
// hand, against the class described by req. Nothing is searched: the lessons
// are validated as given, against committed when it is non-nil, and scored
// with scorer, or the default weights when scorer is nil. The result is
// SOLVED only when every quota is met and no hard constraint is broken.
func Check(req Request, lessons []Assignment, committed *Occupancy, scorer *Scorer) *GeneratedSchedule {
	p, failure := Normalize(req)
	if failure != nil {
		return rejected(req.ClassName, failure)
	}

	out := &GeneratedSchedule{
		ClassName:   p.ClassName,
		Schedule:    make(map[string]string, p.NumSlots()),
		Assignments: make(map[string]string, len(lessons)),
		Lessons:     make([]Assignment, 0, len(lessons)),
		Notices:     p.Notices,
	}
	for idx := 0; idx < p.NumSlots(); idx++ {
		out.Schedule[p.Key(p.slotAt(idx))] = FreeSlot
	}

	var outside []ConstraintViolation
	for _, raw := range lessons {
		a, ok := p.canonical(raw)
		if !ok {
			outside = append(outside, ConstraintViolation{
				Rule:      RuleOutsideWeek,
				Class:     p.ClassName,
				Slots:     []string{SlotKey(raw.Day, raw.Period)},
				TeacherID: raw.TeacherID,
				Subject:   raw.Subject,
				Message:   fmt.Sprintf("%s at %s is outside the school week of class %s", raw.Subject, SlotKey(raw.Day, raw.Period), p.ClassName),
			})
			continue
		}
		out.Lessons = append(out.Lessons, a)
	}
	sort.SliceStable(out.Lessons, func(i, j int) bool {
		return p.slotIndex(p.slotOf(out.Lessons[i])) < p.slotIndex(p.slotOf(out.Lessons[j]))
	})
	for _, a := range out.Lessons {
		out.Schedule[a.Key()] = a.Subject
		out.Assignments[a.Key()] = a.TeacherName
	}

	out.verified = ClassSchedule{
		ClassName:   p.ClassName,
		Assignments: out.Lessons,
		Roster:      p.roster(),
		Quotas:      p.Quotas(),
	}
	out.Violations = append(outside, Validate([]ClassSchedule{out.verified}, committed, true)...)
	out.Validation = summarise(out.verified.Roster, out.Violations, nil)
	if scorer == nil {
		scorer = NewScorer(DefaultWeights())
	}
	out.Score = scorer.Score(p, out.Lessons)

	if len(out.Violations) == 0 {
		out.Status = StatusSolved
		return out
	}
	out.Status = StatusInfeasible
	out.Failure = &Failure{Kind: StatusInfeasible, Message: "schedule failed verification"}
	seen := make(map[string]bool)
	for _, v := range out.Violations {
		if v.Subject != "" && !seen[v.Subject] {
			seen[v.Subject] = true
			out.Failure.Subjects = append(out.Failure.Subjects, v.Subject)
		}
	}
	out.Validation.Warnings = append([]string{out.Failure.Message}, out.Validation.Warnings...)
	return out
}

// canonical maps a supplied lesson onto this problem's day and subject
// spelling. It fails when the lesson lies outside the class week.
func (p *Problem) canonical(a Assignment) (Assignment, bool) {
	day := ""
	for _, d := range p.Days {
		if strings.EqualFold(d, strings.TrimSpace(a.Day)) {
			day = d
			break
		}
	}
	if day == "" || a.Period < 0 || a.Period >= p.PeriodsPerDay {
		return Assignment{}, false
	}
	a.Class = p.ClassName
	a.Day = day
	for _, s := range p.Subjects {
		if strings.EqualFold(s.Name, strings.TrimSpace(a.Subject)) {
			a.Subject = s.Name
			break
		}
	}
	if t, ok := p.Teacher(a.TeacherID); ok && a.TeacherName == "" {
		a.TeacherName = t.Name
	}
	return a, true
}

func (p *Problem) slotOf(a Assignment) Slot {
	return Slot{Day: p.dayIndex[a.Day], Period: a.Period}
}
