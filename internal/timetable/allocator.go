package timetable

import (
	"context"
	"sort"
	"time"
)

// subjectLoad is one subject of a class together with every teacher qualified
// to teach it, in roster order. The search picks a teacher per lesson, so a
// quota may end up split across several of them.
type subjectLoad struct {
	subject    Subject
	subjectIdx int
	teachers   []int
	// demand is the number of lessons the search places. It is lower than the
	// quota only when the qualified teachers together cannot cover it.
	demand int
	// static lists the slots where at least one qualified teacher is
	// available and not booked by another class; raw ignores the bookings.
	static []int
	raw    int
}

func (l subjectLoad) partTimeOnly(p *Problem) bool {
	for _, t := range l.teachers {
		if !p.Teachers[t].IsPartTime() {
			return false
		}
	}
	return true
}

// placement is one lesson on the search stack. Lessons of the same subject
// are interchangeable whoever teaches them, so they are placed in strictly
// increasing rank, where rank orders slots period by period across the week.
type placement struct {
	load     int
	teacher  int
	slot     int
	prevLast int
}

// choice is a candidate (teacher, slot) for the next lesson of a subject.
type choice struct {
	teacher int
	slot    int
}

type searchLimits struct {
	maxNodes     int
	deadline     time.Time
	maxSolutions int
}

type searchOutcome struct {
	solution  []placement
	best      []placement
	timedOut  bool
	nodes     int
	solutions int
}

// buildLoads collects the qualified teachers of every subject with a
// non-zero quota. Subjects nobody can teach are returned as unplaced demand.
func buildLoads(p *Problem) ([]subjectLoad, []UnplacedPair) {
	var loads []subjectLoad
	var unbound []UnplacedPair
	for s, subject := range p.Subjects {
		if subject.Quota == 0 {
			continue
		}
		var teachers []int
		for t, teacher := range p.Teachers {
			if teacher.Teaches(subject.Name) {
				teachers = append(teachers, t)
			}
		}
		if len(teachers) == 0 {
			unbound = append(unbound, UnplacedPair{
				Subject:  subject.Name,
				Required: subject.Quota,
				Rule:     RuleNoQualifiedTeacher,
				Reason:   "no teacher on the roster is qualified to teach " + subject.Name,
			})
			continue
		}
		loads = append(loads, subjectLoad{
			subject:    subject,
			subjectIdx: s,
			teachers:   teachers,
			demand:     subject.Quota,
		})
	}
	return loads, unbound
}

type allocator struct {
	ctx    context.Context
	p      *Problem
	loads  []subjectLoad
	occ    *Occupancy
	scorer *Scorer
	limits searchLimits

	units       []int
	bySubject   map[string]int
	// open marks the slots a teacher is available and not booked elsewhere.
	open        [][]bool
	usable      []bool
	sole        [][]int
	slotLoad    []int
	slotTeacher []int
	sessionBusy [][]bool
	sessionDay  [][]int
	teacherDay  [][]int
	subjectDay  [][]int
	taught      [][]int
	assigned    []int
	rank        []int
	lastRank    []int
	stack       []placement

	nodes         int
	halted        bool
	solutions     int
	solution      []placement
	solutionScore float64
	best          []placement
	bestScore     float64
}

func newAllocator(ctx context.Context, p *Problem, loads []subjectLoad, occ *Occupancy, scorer *Scorer, limits searchLimits) *allocator {
	if limits.maxSolutions <= 0 {
		limits.maxSolutions = 1
	}
	days := len(p.Days)
	slots := p.NumSlots()
	a := &allocator{
		ctx:         ctx,
		p:           p,
		loads:       loads,
		occ:         occ,
		scorer:      scorer,
		limits:      limits,
		bySubject:   make(map[string]int, len(loads)),
		open:        make([][]bool, len(p.Teachers)),
		usable:      make([]bool, slots),
		sole:        make([][]int, len(p.Teachers)),
		slotLoad:    make([]int, slots),
		slotTeacher: make([]int, slots),
		sessionBusy: make([][]bool, len(p.Teachers)),
		sessionDay:  make([][]int, len(p.Teachers)),
		teacherDay:  make([][]int, len(p.Teachers)),
		subjectDay:  make([][]int, len(loads)),
		taught:      make([][]int, len(loads)),
		assigned:    make([]int, len(loads)),
		rank:        make([]int, slots),
		lastRank:    make([]int, len(loads)),
	}
	for i := range a.slotLoad {
		a.slotLoad[i] = -1
		a.slotTeacher[i] = -1
		slot := p.slotAt(i)
		a.rank[i] = slot.Period*days + slot.Day
	}
	for t, teacher := range p.Teachers {
		a.open[t] = make([]bool, slots)
		a.sessionBusy[t] = make([]bool, slots)
		a.sessionDay[t] = make([]int, days)
		a.teacherDay[t] = make([]int, days)
		for idx := 0; idx < slots; idx++ {
			slot := p.slotAt(idx)
			if _, busy := occ.Holder(teacher.ID, p.Key(slot)); busy {
				a.sessionBusy[t][idx] = true
				a.sessionDay[t][slot.Day]++
				continue
			}
			a.open[t][idx] = teacher.AvailableOn(p.Days[slot.Day])
		}
	}
	for i := range a.loads {
		load := &a.loads[i]
		a.bySubject[load.subject.Name] = i
		a.subjectDay[i] = make([]int, days)
		a.taught[i] = make([]int, len(load.teachers))
		a.lastRank[i] = -1
		if len(load.teachers) == 1 {
			a.sole[load.teachers[0]] = append(a.sole[load.teachers[0]], i)
		}
		load.static = load.static[:0]
		load.raw = 0
		for idx := 0; idx < slots; idx++ {
			day := p.Days[p.slotAt(idx).Day]
			available, free := false, false
			for _, t := range load.teachers {
				available = available || p.Teachers[t].AvailableOn(day)
				free = free || a.open[t][idx]
			}
			if available {
				load.raw++
			}
			if free {
				load.static = append(load.static, idx)
				a.usable[idx] = true
			}
		}
		if load.demand > len(load.static) {
			load.demand = len(load.static)
		}
	}
	a.units = a.orderUnits()
	return a
}

// orderUnits expands loads into single lessons: subjects only part-time staff
// can teach come first, then the rest, each group ordered by slack (free
// slots minus demand) so the most constrained subjects are searched first.
func (a *allocator) orderUnits() []int {
	order := make([]int, len(a.loads))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		li, lj := a.loads[order[i]], a.loads[order[j]]
		if pi, pj := li.partTimeOnly(a.p), lj.partTimeOnly(a.p); pi != pj {
			return pi
		}
		return len(li.static)-li.demand < len(lj.static)-lj.demand
	})
	var units []int
	for _, li := range order {
		for k := 0; k < a.loads[li].demand; k++ {
			units = append(units, li)
		}
	}
	return units
}

func (a *allocator) run() searchOutcome {
	if a.feasibleAhead() {
		a.descend(0)
	} else {
		a.extendBest(0)
	}
	return searchOutcome{
		solution:  a.solution,
		best:      a.best,
		timedOut:  a.halted,
		nodes:     a.nodes,
		solutions: a.solutions,
	}
}

func (a *allocator) descend(depth int) {
	if depth == len(a.units) {
		a.recordSolution()
		return
	}
	if !a.tick() {
		return
	}
	li := a.units[depth]
	load := a.loads[li]
	tried := false
	for _, c := range a.candidates(li) {
		teacher := a.p.Teachers[c.teacher]
		if len(CheckPlacement(a.p, a, teacher, load.subject, a.p.slotAt(c.slot))) > 0 {
			continue
		}
		tried = true
		a.place(li, c)
		a.trackBest()
		if a.feasibleAhead() {
			a.descend(depth + 1)
		} else {
			a.extendBest(depth + 1)
		}
		a.unplace()
		if a.done() {
			return
		}
	}
	if !tried {
		a.extendBest(depth + 1)
	}
}

// extendBest greedily places whatever it still can of the lessons from depth
// onward, skipping the ones that no longer fit, offers the result as the best
// partial schedule and then restores the stack.
func (a *allocator) extendBest(depth int) {
	if len(a.stack)+len(a.units)-depth <= len(a.best) {
		return
	}
	mark := len(a.stack)
	for _, li := range a.units[depth:] {
		load := a.loads[li]
		for _, c := range a.candidates(li) {
			if len(CheckPlacement(a.p, a, a.p.Teachers[c.teacher], load.subject, a.p.slotAt(c.slot))) == 0 {
				a.place(li, c)
				break
			}
		}
	}
	a.trackBest()
	for len(a.stack) > mark {
		a.unplace()
	}
}

func (a *allocator) done() bool {
	return a.halted || a.solutions >= a.limits.maxSolutions
}

func (a *allocator) tick() bool {
	a.nodes++
	if a.limits.maxNodes > 0 && a.nodes > a.limits.maxNodes {
		a.halted = true
		return false
	}
	if a.nodes%128 == 0 {
		if a.ctx.Err() != nil {
			a.halted = true
		} else if !a.limits.deadline.IsZero() && time.Now().After(a.limits.deadline) {
			a.halted = true
		}
	}
	return !a.halted
}

type candidate struct {
	choice
	order int
	shift int
	tier  int
	pref  int
	band  int
}

// candidates lists the (teacher, slot) options for the next lesson of load li
// in search order. Teachers already giving this subject come before bringing
// in another one. Part-time teachers cluster: slots next to their existing
// lessons come first, then days they already come in, then new days.
// Full-time teachers spread: days where the subject is not yet taught come
// first.
func (a *allocator) candidates(li int) []choice {
	load := a.loads[li]
	periods := a.p.PeriodsPerDay
	var list []candidate
	for _, idx := range load.static {
		if a.rank[idx] <= a.lastRank[li] || a.slotLoad[idx] >= 0 {
			continue
		}
		slot := a.p.slotAt(idx)
		band := bandRank(load.subject.Band, slot.Period, periods)
		pref := 1
		if load.subject.prefers(slot) {
			pref = 0
		}
		for k, t := range load.teachers {
			if !a.open[t][idx] {
				continue
			}
			c := candidate{choice: choice{teacher: t, slot: idx}, order: k, band: band, pref: pref}
			if a.assigned[li] > 0 && a.taught[li][k] == 0 {
				c.shift = 1
			}
			if a.p.Teachers[t].IsPartTime() {
				c.tier = a.clusterTier(t, slot)
			} else {
				c.tier = a.subjectDay[li][slot.Day]
			}
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		x, y := list[i], list[j]
		if x.shift != y.shift {
			return x.shift < y.shift
		}
		if x.tier != y.tier {
			return x.tier < y.tier
		}
		if x.pref != y.pref {
			return x.pref < y.pref
		}
		if x.band != y.band {
			return x.band < y.band
		}
		if a.rank[x.slot] != a.rank[y.slot] {
			return a.rank[x.slot] < a.rank[y.slot]
		}
		return x.order < y.order
	})
	out := make([]choice, len(list))
	for i, c := range list {
		out[i] = c.choice
	}
	return out
}

func (a *allocator) clusterTier(t int, slot Slot) int {
	periods := a.p.PeriodsPerDay
	base := slot.Day * periods
	for _, period := range []int{slot.Period - 1, slot.Period + 1} {
		if period < 0 || period >= periods {
			continue
		}
		if a.teacherBusyAt(t, base+period) {
			return 0
		}
	}
	if a.teacherDay[t][slot.Day] > 0 || a.sessionDay[t][slot.Day] > 0 {
		return 1
	}
	return 2
}

func (a *allocator) teacherBusyAt(t, idx int) bool {
	return a.sessionBusy[t][idx] || a.slotTeacher[idx] == t
}

func bandRank(band TimeBand, period, periods int) int {
	switch band {
	case BandMorning:
		return period
	case BandAfternoon:
		return periods - 1 - period
	}
	return 0
}

func (a *allocator) place(li int, c choice) {
	day := c.slot / a.p.PeriodsPerDay
	a.stack = append(a.stack, placement{load: li, teacher: c.teacher, slot: c.slot, prevLast: a.lastRank[li]})
	a.slotLoad[c.slot] = li
	a.slotTeacher[c.slot] = c.teacher
	a.assigned[li]++
	a.taught[li][a.teacherPos(li, c.teacher)]++
	a.lastRank[li] = a.rank[c.slot]
	a.teacherDay[c.teacher][day]++
	a.subjectDay[li][day]++
}

func (a *allocator) unplace() {
	top := a.stack[len(a.stack)-1]
	a.stack = a.stack[:len(a.stack)-1]
	day := top.slot / a.p.PeriodsPerDay
	a.slotLoad[top.slot] = -1
	a.slotTeacher[top.slot] = -1
	a.assigned[top.load]--
	a.taught[top.load][a.teacherPos(top.load, top.teacher)]--
	a.lastRank[top.load] = top.prevLast
	a.teacherDay[top.teacher][day]--
	a.subjectDay[top.load][day]--
}

func (a *allocator) teacherPos(li, t int) int {
	for k, qualified := range a.loads[li].teachers {
		if qualified == t {
			return k
		}
	}
	return -1
}

// feasibleAhead prunes the branch when the lessons still to place can no
// longer fit. Each subject is counted against the free slots after its last
// lesson and each teacher against the subjects nobody else can teach. The
// class as a whole is counted against its remaining free slots.
func (a *allocator) feasibleAhead() bool {
	total := 0
	for li, load := range a.loads {
		need := load.demand - a.assigned[li]
		if need <= 0 {
			continue
		}
		total += need
		free := 0
		for _, idx := range load.static {
			if a.rank[idx] > a.lastRank[li] && a.slotLoad[idx] < 0 {
				free++
				if free >= need {
					break
				}
			}
		}
		if free < need {
			return false
		}
	}
	if total == 0 {
		return true
	}

	for t, loads := range a.sole {
		need := 0
		for _, li := range loads {
			need += a.loads[li].demand - a.assigned[li]
		}
		if need <= 0 {
			continue
		}
		free := 0
		for idx, ok := range a.open[t] {
			if ok && a.slotLoad[idx] < 0 {
				free++
			}
		}
		if free < need {
			return false
		}
	}

	free := 0
	for idx, ok := range a.usable {
		if ok && a.slotLoad[idx] < 0 {
			free++
		}
	}
	return free >= total
}

func (a *allocator) trackBest() {
	count := len(a.stack)
	if count < len(a.best) {
		return
	}
	score := a.scoreStack()
	if count > len(a.best) || score > a.bestScore {
		a.best = append(a.best[:0:0], a.stack...)
		a.bestScore = score
	}
}

func (a *allocator) recordSolution() {
	score := a.scoreStack()
	if a.solutions == 0 || score > a.solutionScore {
		a.solution = append(make([]placement, 0, len(a.stack)), a.stack...)
		a.solutionScore = score
	}
	a.solutions++
}

func (a *allocator) scoreStack() float64 {
	lessons := make([]scoredLesson, len(a.stack))
	for i, pl := range a.stack {
		lessons[i] = scoredLesson{teacher: pl.teacher, subject: a.loads[pl.load].subjectIdx, slot: pl.slot}
	}
	return a.scorer.score(a.p, lessons).Total
}

// SlotHolder implements PlacementView.
func (a *allocator) SlotHolder(slot Slot) (string, bool) {
	held := a.slotLoad[a.p.slotIndex(slot)]
	if held < 0 {
		return "", false
	}
	return a.loads[held].subject.Name, true
}

// TeacherHolder implements PlacementView.
func (a *allocator) TeacherHolder(teacherID string, slot Slot) (string, bool) {
	if class, busy := a.occ.Holder(teacherID, a.p.Key(slot)); busy {
		return class, true
	}
	held := a.slotTeacher[a.p.slotIndex(slot)]
	if held >= 0 && a.p.Teachers[held].ID == teacherID {
		return a.p.ClassName, true
	}
	return "", false
}

// AssignedCount implements PlacementView.
func (a *allocator) AssignedCount(subject string) int {
	li, ok := a.bySubject[subject]
	if !ok {
		return 0
	}
	return a.assigned[li]
}
