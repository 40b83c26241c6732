package timetable

import (
	"fmt"
	"sort"
	"strings"
)

// Rule names a hard constraint, or the reason a pair could not be placed.
type Rule string

const (
	RuleAvailability         Rule = "availability"
	RuleDoubleBooked         Rule = "teacher_double_booked"
	RuleDuplicateSlot        Rule = "duplicate_slot"
	RuleQuotaExceeded        Rule = "quota_exceeded"
	RuleQuotaUnmet           Rule = "quota_unmet"
	RuleUnknownTeacher       Rule = "unknown_teacher"
	RuleNoQualifiedTeacher   Rule = "no_qualified_teacher"
	RuleInsufficientCapacity Rule = "insufficient_capacity"
	RuleClassSlotsExhausted  Rule = "class_slots_exhausted"
	RuleSearchBudget         Rule = "search_budget_exceeded"
)

// ConstraintViolation describes one broken hard constraint.
type ConstraintViolation struct {
	Rule      Rule     `json:"rule"`
	Class     string   `json:"class,omitempty"`
	Slots     []string `json:"slots,omitempty"`
	TeacherID string   `json:"teacherId,omitempty"`
	Subject   string   `json:"subject,omitempty"`
	Message   string   `json:"message"`
}

// ClassSchedule is the validator's view of one class timetable. A nil Quotas
// map disables the quota checks.
type ClassSchedule struct {
	ClassName   string
	Assignments []Assignment
	Roster      map[string]Teacher
	Quotas      map[string]int
}

// Validate checks every hard constraint over all classes at once and returns
// every violation found. committed holds assignments of classes scheduled
// earlier in the same session; they count for double-booking only. The quota
// floor is checked only when complete is true.
func Validate(classes []ClassSchedule, committed *Occupancy, complete bool) []ConstraintViolation {
	violations := make([]ConstraintViolation, 0)

	for _, class := range classes {
		violations = append(violations, duplicateSlots(class)...)
		violations = append(violations, availability(class)...)
	}
	violations = append(violations, doubleBookings(classes, committed)...)
	for _, class := range classes {
		violations = append(violations, quotaChecks(class, complete)...)
	}
	return violations
}

func duplicateSlots(class ClassSchedule) []ConstraintViolation {
	var out []ConstraintViolation
	seen := make(map[string][]Assignment)
	var order []string
	for _, a := range class.Assignments {
		key := a.Key()
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		}
		seen[key] = append(seen[key], a)
	}
	for _, key := range order {
		list := seen[key]
		if len(list) < 2 {
			continue
		}
		subjects := make([]string, 0, len(list))
		for _, a := range list {
			subjects = append(subjects, a.Subject)
		}
		out = append(out, ConstraintViolation{
			Rule:    RuleDuplicateSlot,
			Class:   class.ClassName,
			Slots:   []string{key},
			Message: fmt.Sprintf("class %s has %d lessons at %s (%s)", class.ClassName, len(list), key, strings.Join(subjects, ", ")),
		})
	}
	return out
}

func availability(class ClassSchedule) []ConstraintViolation {
	var out []ConstraintViolation
	for _, a := range class.Assignments {
		teacher, ok := class.Roster[a.TeacherID]
		if !ok {
			out = append(out, ConstraintViolation{
				Rule:      RuleUnknownTeacher,
				Class:     class.ClassName,
				Slots:     []string{a.Key()},
				TeacherID: a.TeacherID,
				Subject:   a.Subject,
				Message:   fmt.Sprintf("%s at %s is taught by %q who is not on the roster", a.Subject, a.Key(), a.TeacherID),
			})
			continue
		}
		if !teacher.AvailableOn(a.Day) {
			out = append(out, ConstraintViolation{
				Rule:      RuleAvailability,
				Class:     class.ClassName,
				Slots:     []string{a.Key()},
				TeacherID: teacher.ID,
				Subject:   a.Subject,
				Message:   fmt.Sprintf("%s is not available on %s but teaches %s at %s", teacher.Name, a.Day, a.Subject, a.Key()),
			})
		}
	}
	return out
}

func doubleBookings(classes []ClassSchedule, committed *Occupancy) []ConstraintViolation {
	type booking struct {
		class string
		name  string
	}
	var out []ConstraintViolation
	held := make(map[string][]booking)
	var order []string
	for _, class := range classes {
		for _, a := range class.Assignments {
			id := a.TeacherID + "\x00" + a.Key()
			if _, ok := held[id]; !ok {
				order = append(order, id)
				if holder, busy := committed.Holder(a.TeacherID, a.Key()); busy && holder != class.ClassName {
					held[id] = append(held[id], booking{class: holder})
				}
			}
			held[id] = append(held[id], booking{class: class.ClassName, name: a.TeacherName})
		}
	}
	for _, id := range order {
		list := held[id]
		if len(list) < 2 {
			continue
		}
		parts := strings.SplitN(id, "\x00", 2)
		teacherName := parts[0]
		holders := make([]string, 0, len(list))
		for _, b := range list {
			holders = append(holders, b.class)
			if b.name != "" {
				teacherName = b.name
			}
		}
		out = append(out, ConstraintViolation{
			Rule:      RuleDoubleBooked,
			Slots:     []string{parts[1]},
			TeacherID: parts[0],
			Message:   fmt.Sprintf("%s is booked %d times at %s (classes: %s)", teacherName, len(list), parts[1], strings.Join(holders, ", ")),
		})
	}
	return out
}

func quotaChecks(class ClassSchedule, complete bool) []ConstraintViolation {
	if class.Quotas == nil {
		return nil
	}
	var out []ConstraintViolation
	counts := make(map[string]int)
	slots := make(map[string][]string)
	for _, a := range class.Assignments {
		counts[a.Subject]++
		slots[a.Subject] = append(slots[a.Subject], a.Key())
	}

	subjects := make([]string, 0, len(class.Quotas)+len(counts))
	for subject := range class.Quotas {
		subjects = append(subjects, subject)
	}
	for subject := range counts {
		if _, ok := class.Quotas[subject]; !ok {
			subjects = append(subjects, subject)
		}
	}
	sort.Strings(subjects)

	for _, subject := range subjects {
		quota := class.Quotas[subject]
		count := counts[subject]
		switch {
		case count > quota:
			out = append(out, ConstraintViolation{
				Rule:    RuleQuotaExceeded,
				Class:   class.ClassName,
				Slots:   slots[subject],
				Subject: subject,
				Message: fmt.Sprintf("%s has %d periods in class %s, quota is %d", subject, count, class.ClassName, quota),
			})
		case complete && count < quota:
			out = append(out, ConstraintViolation{
				Rule:    RuleQuotaUnmet,
				Class:   class.ClassName,
				Slots:   slots[subject],
				Subject: subject,
				Message: fmt.Sprintf("%s has %d of %d required periods in class %s", subject, count, quota, class.ClassName),
			})
		}
	}
	return out
}

// PlacementView is the partial state a single placement is checked against.
type PlacementView interface {
	// SlotHolder returns the subject already placed at slot in this class.
	SlotHolder(slot Slot) (string, bool)
	// TeacherHolder returns the class already holding the teacher at slot.
	TeacherHolder(teacherID string, slot Slot) (string, bool)
	// AssignedCount is the number of periods already given to subject.
	AssignedCount(subject string) int
}

// CheckPlacement reports the hard constraints that placing subject with
// teacher at slot would break, given the partial state in view. Only the
// constraints touched by the new assignment are evaluated.
func CheckPlacement(p *Problem, view PlacementView, teacher Teacher, subject Subject, slot Slot) []ConstraintViolation {
	var out []ConstraintViolation
	key := p.Key(slot)
	day := p.Days[slot.Day]

	if !teacher.AvailableOn(day) {
		out = append(out, ConstraintViolation{
			Rule: RuleAvailability, Class: p.ClassName, Slots: []string{key}, TeacherID: teacher.ID, Subject: subject.Name,
			Message: fmt.Sprintf("%s is not available on %s", teacher.Name, day),
		})
	}
	if held, ok := view.SlotHolder(slot); ok {
		out = append(out, ConstraintViolation{
			Rule: RuleDuplicateSlot, Class: p.ClassName, Slots: []string{key}, Subject: subject.Name,
			Message: fmt.Sprintf("%s is already taken by %s", key, held),
		})
	}
	if class, ok := view.TeacherHolder(teacher.ID, slot); ok {
		out = append(out, ConstraintViolation{
			Rule: RuleDoubleBooked, Class: p.ClassName, Slots: []string{key}, TeacherID: teacher.ID, Subject: subject.Name,
			Message: fmt.Sprintf("%s already teaches class %s at %s", teacher.Name, class, key),
		})
	}
	if view.AssignedCount(subject.Name) >= subject.Quota {
		out = append(out, ConstraintViolation{
			Rule: RuleQuotaExceeded, Class: p.ClassName, Slots: []string{key}, Subject: subject.Name,
			Message: fmt.Sprintf("%s already has its %d periods", subject.Name, subject.Quota),
		})
	}
	return out
}
