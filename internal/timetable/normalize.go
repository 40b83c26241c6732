package timetable

import (
	"fmt"
	"sort"
	"strings"
)

// Normalize validates req and converts it into a Problem. A non-nil Failure
// means the request is rejected before any search (INVALID_REQUEST or
// QUOTA_OVERFLOW). Soft issues, such as teachers dropped for lack of a
// matching specialisation, are collected in Problem.Notices.
func Normalize(req Request) (*Problem, *Failure) {
	p := &Problem{
		ClassName:     strings.TrimSpace(req.ClassName),
		PeriodsPerDay: req.PeriodsPerDay,
		dayIndex:      make(map[string]int),
		teacherIndex:  make(map[string]int),
		subjectIndex:  make(map[string]int),
	}

	if p.ClassName == "" {
		return nil, invalid("className is required")
	}
	if req.PeriodsPerDay <= 0 {
		return nil, invalid("periodsPerDay must be greater than zero")
	}
	if len(req.Days) == 0 {
		return nil, invalid("days must contain at least one entry")
	}

	dayLookup := make(map[string]string, len(req.Days))
	for _, raw := range req.Days {
		day := strings.TrimSpace(raw)
		if day == "" {
			return nil, invalid("days must not contain blank entries")
		}
		fold := strings.ToLower(day)
		if _, dup := dayLookup[fold]; dup {
			return nil, invalid(fmt.Sprintf("day %q is listed more than once", day))
		}
		dayLookup[fold] = day
		p.dayIndex[day] = len(p.Days)
		p.Days = append(p.Days, day)
	}

	if len(req.Subjects) == 0 {
		return nil, invalid("subjects must contain at least one entry")
	}
	subjectLookup := make(map[string]string, len(req.Subjects))
	for _, raw := range req.Subjects {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, invalid("subjects must not contain blank entries")
		}
		fold := strings.ToLower(name)
		if _, dup := subjectLookup[fold]; dup {
			return nil, invalid(fmt.Sprintf("subject %q is listed more than once", name))
		}
		subjectLookup[fold] = name
		p.subjectIndex[name] = len(p.Subjects)
		p.Subjects = append(p.Subjects, Subject{Name: name, Band: BandEither})
	}

	if failure := p.applyQuotas(req.SubjectPeriods, subjectLookup); failure != nil {
		return nil, failure
	}
	p.applyBands(req.SubjectTimeBands, subjectLookup)
	p.applyPreferredSlots(req.PreferredSlots, subjectLookup, dayLookup)

	seen := make(map[string]bool, len(req.Teachers))
	for _, in := range req.Teachers {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			return nil, invalid("every teacher needs an id")
		}
		if seen[id] {
			return nil, invalid(fmt.Sprintf("teacher id %q is listed more than once", id))
		}
		seen[id] = true

		teacher, failure := p.normalizeTeacher(id, in, dayLookup, subjectLookup)
		if failure != nil {
			return nil, failure
		}
		if teacher == nil {
			continue
		}
		p.teacherIndex[teacher.ID] = len(p.Teachers)
		p.Teachers = append(p.Teachers, *teacher)
	}

	return p, nil
}

func (p *Problem) normalizeTeacher(id string, in TeacherInput, days, subjects map[string]string) (*Teacher, *Failure) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = id
	}
	kind, ok := parseEmployment(in.EmploymentType)
	if !ok {
		return nil, invalid(fmt.Sprintf("teacher %s has unknown employmentType %q (expected FT or PT)", name, in.EmploymentType))
	}
	if in.EmploymentType == "" {
		p.notice("teacher %s has no employmentType, treating as full-time", name)
	}

	t := &Teacher{ID: id, Name: name, Employment: kind}

	for _, raw := range in.SubjectSpecialization {
		canonical, ok := subjects[strings.ToLower(strings.TrimSpace(raw))]
		if !ok || t.Teaches(canonical) {
			continue
		}
		t.Subjects = append(t.Subjects, canonical)
	}
	if len(t.Subjects) == 0 {
		p.notice("teacher %s excluded: no specialization matches the requested subjects", name)
		return nil, nil
	}
	sort.SliceStable(t.Subjects, func(i, j int) bool {
		return p.subjectIndex[t.Subjects[i]] < p.subjectIndex[t.Subjects[j]]
	})

	if kind == FullTime {
		t.AvailableDays = append([]string(nil), p.Days...)
		return t, nil
	}

	if len(in.AvailableDays) == 0 {
		return nil, invalid(fmt.Sprintf("part-time teacher %s must list availableDays", name))
	}
	available := make(map[string]bool, len(in.AvailableDays))
	for _, raw := range in.AvailableDays {
		canonical, ok := days[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			p.notice("teacher %s: available day %q is not a school day and was ignored", name, raw)
			continue
		}
		available[canonical] = true
	}
	for _, day := range p.Days {
		if available[day] {
			t.AvailableDays = append(t.AvailableDays, day)
		}
	}
	if len(t.AvailableDays) == 0 {
		p.notice("teacher %s excluded: none of the available days are school days", name)
		return nil, nil
	}
	return t, nil
}

func (p *Problem) applyQuotas(requested map[string]int, subjects map[string]string) *Failure {
	capacity := p.NumSlots()

	if requested == nil {
		base := capacity / len(p.Subjects)
		leftover := capacity - base*len(p.Subjects)
		for i := range p.Subjects {
			p.Subjects[i].Quota = base
			if i < leftover {
				p.Subjects[i].Quota++
			}
		}
		return nil
	}

	given := make(map[string]bool, len(requested))
	keys := make([]string, 0, len(requested))
	for key := range requested {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		quota := requested[key]
		canonical, ok := subjects[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			p.notice("subjectPeriods entry %q does not match a requested subject and was ignored", key)
			continue
		}
		if quota < 0 {
			return invalid(fmt.Sprintf("subjectPeriods for %s must not be negative", canonical))
		}
		p.Subjects[p.subjectIndex[canonical]].Quota = quota
		given[canonical] = true
	}
	for _, s := range p.Subjects {
		if !given[s.Name] {
			p.notice("subject %s has no entry in subjectPeriods, quota set to 0", s.Name)
		}
	}

	// The overflow names every subject asking for periods, in request order.
	total := 0
	var offending []string
	for _, s := range p.Subjects {
		total += s.Quota
		if s.Quota > 0 {
			offending = append(offending, s.Name)
		}
	}
	if total > capacity {
		return &Failure{
			Kind: StatusQuotaOverflow,
			Message: fmt.Sprintf("subject quotas need %d periods but only %d slots exist (%d days x %d periods)",
				total, capacity, len(p.Days), p.PeriodsPerDay),
			Subjects: offending,
		}
	}
	return nil
}

func (p *Problem) applyBands(bands map[string]TimeBand, subjects map[string]string) {
	keys := make([]string, 0, len(bands))
	for key := range bands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		canonical, ok := subjects[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			p.notice("subjectTimeBands entry %q does not match a requested subject and was ignored", key)
			continue
		}
		band, ok := parseBand(bands[key])
		if !ok {
			p.notice("subject %s has unknown time band %q, using Either", canonical, bands[key])
			continue
		}
		p.Subjects[p.subjectIndex[canonical]].Band = band
	}
}

func (p *Problem) applyPreferredSlots(preferred map[string][]string, subjects, days map[string]string) {
	keys := make([]string, 0, len(preferred))
	for key := range preferred {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		canonical, ok := subjects[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			p.notice("preferredSlots entry %q does not match a requested subject and was ignored", key)
			continue
		}
		subject := &p.Subjects[p.subjectIndex[canonical]]
		for _, raw := range preferred[key] {
			dayName, period, err := ParseSlotKey(strings.TrimSpace(raw))
			if err != nil {
				p.notice("subject %s: %v", canonical, err)
				continue
			}
			day, ok := days[strings.ToLower(dayName)]
			if !ok || period < 0 || period >= p.PeriodsPerDay {
				p.notice("subject %s: preferred slot %q is outside the school week", canonical, raw)
				continue
			}
			slot := Slot{Day: p.dayIndex[day], Period: period}
			if !subject.prefers(slot) {
				subject.Preferred = append(subject.Preferred, slot)
			}
		}
	}
}

func (p *Problem) notice(format string, args ...interface{}) {
	p.Notices = append(p.Notices, fmt.Sprintf(format, args...))
}

func parseEmployment(raw EmploymentType) (EmploymentType, bool) {
	switch strings.ToUpper(strings.TrimSpace(string(raw))) {
	case "", "FT", "FULLTIME", "FULL_TIME", "FULL-TIME":
		return FullTime, true
	case "PT", "PARTTIME", "PART_TIME", "PART-TIME":
		return PartTime, true
	}
	return "", false
}

func parseBand(raw TimeBand) (TimeBand, bool) {
	switch strings.ToLower(strings.TrimSpace(string(raw))) {
	case "", "either":
		return BandEither, true
	case "morning":
		return BandMorning, true
	case "afternoon":
		return BandAfternoon, true
	}
	return "", false
}

func invalid(message string) *Failure {
	return &Failure{Kind: StatusInvalidRequest, Message: message}
}
