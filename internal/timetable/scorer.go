package timetable

import "sort"

// Weights scales each soft-constraint component of the score.
type Weights struct {
	Cluster    float64 `json:"cluster"`
	Spread     float64 `json:"spread"`
	TimeOfDay  float64 `json:"timeOfDay"`
	Repetition float64 `json:"repetition"`
	Preferred  float64 `json:"preferred"`
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{Cluster: 1, Spread: 1, TimeOfDay: 0.5, Repetition: 2, Preferred: 0.5}
}

// ScoreBreakdown is a schedule's score split by component. Higher is better.
type ScoreBreakdown struct {
	Total      float64 `json:"total"`
	Cluster    float64 `json:"cluster"`
	Spread     float64 `json:"spread"`
	TimeOfDay  float64 `json:"timeOfDay"`
	Repetition float64 `json:"repetition"`
	Preferred  float64 `json:"preferred"`
}

// Scorer computes soft-constraint quality. It holds no state besides its
// weights, so equal inputs always produce equal scores.
type Scorer struct {
	weights Weights
}

// NewScorer builds a scorer.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

type scoredLesson struct {
	teacher int
	subject int
	slot    int
}

// Score rates the assignments of one class against problem p. Assignments
// naming teachers, subjects or slots unknown to p are ignored.
func (s *Scorer) Score(p *Problem, assignments []Assignment) ScoreBreakdown {
	lessons := make([]scoredLesson, 0, len(assignments))
	for _, a := range assignments {
		teacher, ok := p.teacherIndex[a.TeacherID]
		if !ok {
			continue
		}
		subject, ok := p.subjectIndex[a.Subject]
		if !ok {
			continue
		}
		day, ok := p.dayIndex[a.Day]
		if !ok || a.Period < 0 || a.Period >= p.PeriodsPerDay {
			continue
		}
		lessons = append(lessons, scoredLesson{teacher: teacher, subject: subject, slot: p.slotIndex(Slot{Day: day, Period: a.Period})})
	}
	return s.score(p, lessons)
}

func (s *Scorer) score(p *Problem, lessons []scoredLesson) ScoreBreakdown {
	var out ScoreBreakdown
	ordered := make([]scoredLesson, len(lessons))
	copy(ordered, lessons)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].slot != ordered[j].slot {
			return ordered[i].slot < ordered[j].slot
		}
		if ordered[i].teacher != ordered[j].teacher {
			return ordered[i].teacher < ordered[j].teacher
		}
		return ordered[i].subject < ordered[j].subject
	})
	periods := p.PeriodsPerDay
	days := len(p.Days)
	slots := p.NumSlots()

	teacherGrid := make([][]bool, len(p.Teachers))
	spreadDays := make(map[[2]int][]bool)
	subjectDay := make([]int, len(p.Subjects)*days)

	for _, l := range ordered {
		if teacherGrid[l.teacher] == nil {
			teacherGrid[l.teacher] = make([]bool, slots)
		}
		teacherGrid[l.teacher][l.slot] = true

		slot := p.slotAt(l.slot)
		subjectDay[l.subject*days+slot.Day]++

		if !p.Teachers[l.teacher].IsPartTime() {
			key := [2]int{l.teacher, l.subject}
			if spreadDays[key] == nil {
				spreadDays[key] = make([]bool, days)
			}
			spreadDays[key][slot.Day] = true
		}

		subject := p.Subjects[l.subject]
		if periods > 1 {
			switch subject.Band {
			case BandMorning:
				out.TimeOfDay += s.weights.TimeOfDay * float64(periods-1-slot.Period) / float64(periods-1)
			case BandAfternoon:
				out.TimeOfDay += s.weights.TimeOfDay * float64(slot.Period) / float64(periods-1)
			}
		}
		if subject.prefers(slot) {
			out.Preferred += s.weights.Preferred
		}
	}

	for t, grid := range teacherGrid {
		if grid == nil || !p.Teachers[t].IsPartTime() {
			continue
		}
		for d := 0; d < days; d++ {
			for period := 0; period+1 < periods; period++ {
				if grid[d*periods+period] && grid[d*periods+period+1] {
					out.Cluster += s.weights.Cluster
				}
			}
		}
	}

	for t := range p.Teachers {
		for subj := range p.Subjects {
			used, ok := spreadDays[[2]int{t, subj}]
			if !ok {
				continue
			}
			for _, u := range used {
				if u {
					out.Spread += s.weights.Spread
				}
			}
		}
	}

	for _, count := range subjectDay {
		if count >= 3 {
			out.Repetition -= s.weights.Repetition * float64(count-2)
		}
	}

	out.Total = out.Cluster + out.Spread + out.TimeOfDay + out.Repetition + out.Preferred
	return out
}
