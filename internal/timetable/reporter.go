package timetable

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the outcome kind of one scheduling run.
type Status string

const (
	StatusSolved         Status = "SOLVED"
	StatusInfeasible     Status = "INFEASIBLE"
	StatusTimedOut       Status = "SEARCH_TIMED_OUT"
	StatusInvalidRequest Status = "INVALID_REQUEST"
	StatusQuotaOverflow  Status = "QUOTA_OVERFLOW"
)

// Rejected reports whether the request was refused before any search ran.
func (s Status) Rejected() bool {
	return s == StatusInvalidRequest || s == StatusQuotaOverflow
}

// Failure explains why a run did not produce a complete schedule.
type Failure struct {
	Kind     Status   `json:"kind"`
	Message  string   `json:"message"`
	Subjects []string `json:"subjects,omitempty"`
}

func (f *Failure) Error() string {
	if len(f.Subjects) == 0 {
		return string(f.Kind) + ": " + f.Message
	}
	return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Message, strings.Join(f.Subjects, ", "))
}

// Validation summarises the hard-constraint checks of a schedule. All flags
// are true only for a fully solved schedule.
type Validation struct {
	PTTeachersScheduledCorrectly bool     `json:"ptTeachersScheduledCorrectly"`
	AllPTOnAvailableDays         bool     `json:"allPtOnAvailableDays"`
	NoTeacherConflicts           bool     `json:"noTeacherConflicts"`
	SubjectLoadsMet              bool     `json:"subjectLoadsMet"`
	Warnings                     []string `json:"warnings"`
}

// UnplacedPair is a subject whose quota could not be met. When several
// teachers qualify, the teacher fields name the first of them in roster order
// and Reason names them all.
type UnplacedPair struct {
	TeacherID   string `json:"teacherId,omitempty"`
	TeacherName string `json:"teacherName,omitempty"`
	Subject     string `json:"subject"`
	Required    int    `json:"required"`
	Placed      int    `json:"placed"`
	Rule        Rule   `json:"rule"`
	Reason      string `json:"reason"`
}

// SearchStats describes the work done by the allocator.
type SearchStats struct {
	Nodes     int           `json:"nodes"`
	Solutions int           `json:"solutions"`
	Elapsed   time.Duration `json:"elapsedNs"`
	TimedOut  bool          `json:"timedOut"`
}

// GeneratedSchedule is the result of scheduling one class. Schedule and
// Assignments are keyed by "Day-Period"; every slot of the week appears in
// Schedule, unused ones as "Free", while Assignments only lists taught slots.
type GeneratedSchedule struct {
	Status      Status                `json:"status"`
	ClassName   string                `json:"className"`
	Schedule    map[string]string     `json:"schedule"`
	Assignments map[string]string     `json:"assignments"`
	Validation  Validation            `json:"validation"`
	Lessons     []Assignment          `json:"lessons"`
	Score       ScoreBreakdown        `json:"score"`
	Unplaced    []UnplacedPair        `json:"unplaced,omitempty"`
	Violations  []ConstraintViolation `json:"violations,omitempty"`
	Failure     *Failure              `json:"failure,omitempty"`
	Notices     []string              `json:"notices,omitempty"`
	Stats       SearchStats           `json:"stats"`

	verified ClassSchedule
}

// Solved reports whether every quota was met without violations.
func (g *GeneratedSchedule) Solved() bool {
	return g.Status == StatusSolved
}

func rejected(className string, failure *Failure) *GeneratedSchedule {
	warning := failure.Message
	if len(failure.Subjects) > 0 {
		warning = fmt.Sprintf("%s; offending subjects: %s", failure.Message, strings.Join(failure.Subjects, ", "))
	}
	return &GeneratedSchedule{
		Status:      failure.Kind,
		ClassName:   strings.TrimSpace(className),
		Schedule:    map[string]string{},
		Assignments: map[string]string{},
		Lessons:     []Assignment{},
		Validation:  Validation{Warnings: []string{warning}},
		Failure:     failure,
	}
}

type reporter struct {
	p       *Problem
	loads   []subjectLoad
	unbound []UnplacedPair
	outcome searchOutcome
	occ     *Occupancy
	scorer  *Scorer
	elapsed time.Duration
}

func (r *reporter) build() *GeneratedSchedule {
	p := r.p
	placements := r.outcome.solution
	found := r.outcome.solutions > 0
	if !found {
		placements = r.outcome.best
	}

	lessons := make([]Assignment, 0, len(placements))
	placed := make([]int, len(r.loads))
	sorted := append([]placement(nil), placements...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].slot < sorted[j].slot })
	for _, pl := range sorted {
		teacher := p.Teachers[pl.teacher]
		slot := p.slotAt(pl.slot)
		placed[pl.load]++
		lessons = append(lessons, Assignment{
			Class:       p.ClassName,
			Day:         p.Days[slot.Day],
			Period:      slot.Period,
			Subject:     r.loads[pl.load].subject.Name,
			TeacherID:   teacher.ID,
			TeacherName: teacher.Name,
		})
	}

	out := &GeneratedSchedule{
		ClassName:   p.ClassName,
		Schedule:    make(map[string]string, p.NumSlots()),
		Assignments: make(map[string]string, len(lessons)),
		Lessons:     lessons,
		Notices:     p.Notices,
		Score:       r.scorer.Score(p, lessons),
		Stats: SearchStats{
			Nodes:     r.outcome.nodes,
			Solutions: r.outcome.solutions,
			Elapsed:   r.elapsed,
			TimedOut:  r.outcome.timedOut && !found,
		},
	}
	for idx := 0; idx < p.NumSlots(); idx++ {
		out.Schedule[p.Key(p.slotAt(idx))] = FreeSlot
	}
	for _, a := range lessons {
		out.Schedule[a.Key()] = a.Subject
		out.Assignments[a.Key()] = a.TeacherName
	}

	out.Unplaced = append(out.Unplaced, r.unbound...)
	proven := len(r.unbound) > 0
	for i, load := range r.loads {
		if placed[i] >= load.subject.Quota {
			continue
		}
		u := r.diagnose(i, placed[i], found)
		if u.Rule != RuleSearchBudget && u.Rule != RuleClassSlotsExhausted {
			proven = true
		}
		out.Unplaced = append(out.Unplaced, u)
	}

	complete := found && len(out.Unplaced) == 0
	out.verified = ClassSchedule{
		ClassName:   p.ClassName,
		Assignments: lessons,
		Roster:      p.roster(),
		Quotas:      p.Quotas(),
	}
	out.Violations = Validate([]ClassSchedule{out.verified}, r.occ, complete)
	out.Validation = summarise(out.verified.Roster, out.Violations, out.Unplaced)

	switch {
	case complete && len(out.Violations) == 0:
		out.Status = StatusSolved
		out.Validation.Warnings = []string{}
	case complete:
		out.Status = StatusInfeasible
		out.Failure = &Failure{Kind: StatusInfeasible, Message: "generated schedule failed verification"}
	case !proven && out.Stats.TimedOut:
		out.Status = StatusTimedOut
		out.Failure = &Failure{
			Kind:    StatusTimedOut,
			Message: fmt.Sprintf("search budget exhausted after %d nodes, returning the best partial schedule", r.outcome.nodes),
		}
	default:
		out.Status = StatusInfeasible
		out.Failure = &Failure{Kind: StatusInfeasible, Message: "no schedule places every required period"}
	}
	if out.Failure != nil {
		for _, u := range out.Unplaced {
			out.Failure.Subjects = append(out.Failure.Subjects, u.Subject)
		}
		out.Validation.Warnings = append([]string{out.Failure.Message}, out.Validation.Warnings...)
	}
	return out
}

// diagnose explains why load li fell short. The subject's own quota is
// checked against its teachers first. Then the teachers are checked against
// everything they are the only ones qualified for, which catches one teacher
// spread over several subjects.
func (r *reporter) diagnose(li, placed int, found bool) UnplacedPair {
	load := r.loads[li]
	lead := r.p.Teachers[load.teachers[0]]
	quota := load.subject.Quota
	u := UnplacedPair{
		TeacherID:   lead.ID,
		TeacherName: lead.Name,
		Subject:     load.subject.Name,
		Required:    quota,
		Placed:      placed,
	}
	who := r.names(load.teachers)

	if load.raw < quota {
		u.Rule = RuleInsufficientCapacity
		if len(load.teachers) == 1 {
			u.Reason = fmt.Sprintf("could not place %s for %s: available on %s with %d periods each gives %d slots, %d required",
				lead.Name, load.subject.Name, strings.Join(lead.AvailableDays, ", "), r.p.PeriodsPerDay, load.raw, quota)
		} else {
			u.Reason = fmt.Sprintf("could not place %s: %s are available for %d slots together, %d required",
				load.subject.Name, who, load.raw, quota)
		}
		return u
	}
	if len(load.static) < quota {
		u.Rule = RuleDoubleBooked
		u.Reason = fmt.Sprintf("could not place %s for %s: only %d slots remain free after other classes, %d required",
			who, load.subject.Name, len(load.static), quota)
		return u
	}

	demand, subjects := r.boundDemand(load.teachers)
	if demand > len(load.static) {
		u.Rule = RuleDoubleBooked
		if demand > load.raw {
			u.Rule = RuleInsufficientCapacity
		}
		limit := load.raw
		if u.Rule == RuleDoubleBooked {
			limit = len(load.static)
		}
		u.Reason = fmt.Sprintf("could not place %s: %s need %d periods from %s but only %d slots are usable",
			load.subject.Name, strings.Join(subjects, ", "), demand, who, limit)
		return u
	}

	if r.outcome.timedOut && !found {
		u.Rule = RuleSearchBudget
		u.Reason = fmt.Sprintf("placed %d of %d periods of %s for %s before the search budget ran out",
			placed, quota, load.subject.Name, who)
		return u
	}
	u.Rule = RuleClassSlotsExhausted
	u.Reason = fmt.Sprintf("could not place %s for %s: placed %d of %d periods, remaining free slots clash with other lessons",
		who, load.subject.Name, placed, quota)
	return u
}

// boundDemand sums the quotas of every subject whose qualified teachers all
// belong to group. Those lessons can only be given by the group.
func (r *reporter) boundDemand(group []int) (int, []string) {
	in := make(map[int]bool, len(group))
	for _, t := range group {
		in[t] = true
	}
	demand := 0
	var subjects []string
	for _, load := range r.loads {
		bound := true
		for _, t := range load.teachers {
			if !in[t] {
				bound = false
				break
			}
		}
		if bound {
			demand += load.subject.Quota
			subjects = append(subjects, load.subject.Name)
		}
	}
	return demand, subjects
}

func (r *reporter) names(teachers []int) string {
	names := make([]string, len(teachers))
	for i, t := range teachers {
		names[i] = r.p.Teachers[t].Name
	}
	return strings.Join(names, ", ")
}

// summarise derives the validation flags from verified violations rather than
// from anything the allocator claims.
func summarise(roster map[string]Teacher, violations []ConstraintViolation, unplaced []UnplacedPair) Validation {
	v := Validation{
		PTTeachersScheduledCorrectly: true,
		AllPTOnAvailableDays:         true,
		NoTeacherConflicts:           true,
		SubjectLoadsMet:              len(unplaced) == 0,
		Warnings:                     []string{},
	}
	for _, viol := range violations {
		partTime := roster[viol.TeacherID].IsPartTime()
		switch viol.Rule {
		case RuleAvailability:
			if partTime {
				v.AllPTOnAvailableDays = false
			}
		case RuleDoubleBooked:
			v.NoTeacherConflicts = false
			if partTime {
				v.PTTeachersScheduledCorrectly = false
			}
		case RuleQuotaExceeded, RuleQuotaUnmet:
			v.SubjectLoadsMet = false
		}
		v.Warnings = append(v.Warnings, viol.Message)
	}
	for _, u := range unplaced {
		if roster[u.TeacherID].IsPartTime() {
			v.PTTeachersScheduledCorrectly = false
		}
		v.Warnings = append(v.Warnings, u.Reason)
	}
	if !v.AllPTOnAvailableDays {
		v.PTTeachersScheduledCorrectly = false
	}
	return v
}
