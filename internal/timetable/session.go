package timetable

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config bounds the search and weights the scorer.
type Config struct {
	// MaxNodes caps the number of search nodes expanded per class. Zero means
	// no node limit.
	MaxNodes int
	// Timeout caps the wall-clock time spent per class. Zero means no limit.
	Timeout time.Duration
	// MaxSolutions is how many complete schedules are compared before the
	// best-scored one is returned.
	MaxSolutions int
	Weights      Weights
}

// DefaultConfig returns the solver defaults.
func DefaultConfig() Config {
	return Config{
		MaxNodes:     200000,
		Timeout:      5 * time.Second,
		MaxSolutions: 1,
		Weights:      DefaultWeights(),
	}
}

// Solver schedules classes. It is safe for concurrent use; all search state is
// local to a single call.
type Solver struct {
	cfg    Config
	scorer *Scorer
	logger *zap.Logger
}

// NewSolver constructs a solver.
func NewSolver(cfg Config, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSolutions <= 0 {
		cfg.MaxSolutions = 1
	}
	return &Solver{cfg: cfg, scorer: NewScorer(cfg.Weights), logger: logger}
}

// Config returns the effective configuration.
func (s *Solver) Config() Config {
	return s.cfg
}

// Scorer exposes the scorer the solver ranks schedules with.
func (s *Solver) Scorer() *Scorer {
	return s.scorer
}

// Solve schedules a single class in isolation.
func (s *Solver) Solve(ctx context.Context, req Request) *GeneratedSchedule {
	return s.solve(ctx, req, NewOccupancy())
}

func (s *Solver) solve(ctx context.Context, req Request, occ *Occupancy) *GeneratedSchedule {
	start := time.Now()
	p, failure := Normalize(req)
	if failure != nil {
		s.logger.Info("timetable request rejected",
			zap.String("class", req.ClassName),
			zap.String("status", string(failure.Kind)),
			zap.String("reason", failure.Message),
		)
		return rejected(req.ClassName, failure)
	}

	limits := searchLimits{maxNodes: s.cfg.MaxNodes, maxSolutions: s.cfg.MaxSolutions}
	if s.cfg.Timeout > 0 {
		limits.deadline = start.Add(s.cfg.Timeout)
	}
	if deadline, ok := ctx.Deadline(); ok && (limits.deadline.IsZero() || deadline.Before(limits.deadline)) {
		limits.deadline = deadline
	}

	loads, unbound := buildLoads(p)
	alloc := newAllocator(ctx, p, loads, occ, s.scorer, limits)
	outcome := alloc.run()

	rep := &reporter{
		p:       p,
		loads:   alloc.loads,
		unbound: unbound,
		outcome: outcome,
		occ:     occ,
		scorer:  s.scorer,
		elapsed: time.Since(start),
	}
	result := rep.build()

	fields := []zap.Field{
		zap.String("class", result.ClassName),
		zap.String("status", string(result.Status)),
		zap.Int("lessons", len(result.Lessons)),
		zap.Int("nodes", result.Stats.Nodes),
		zap.Duration("elapsed", result.Stats.Elapsed),
		zap.Float64("score", result.Score.Total),
	}
	if result.Solved() {
		s.logger.Info("timetable generated", fields...)
	} else {
		s.logger.Warn("timetable incomplete", append(fields, zap.Int("unplaced", len(result.Unplaced)))...)
	}
	return result
}

// Session schedules several classes that share one teacher roster. Classes
// are committed one after another into an append-only occupancy table, so a
// later class can never book a teacher already holding that slot.
type Session struct {
	ID string

	solver   *Solver
	mu       sync.Mutex
	baseline *Occupancy
	occ      *Occupancy
	classes  []ClassSchedule
	names    map[string]bool
}

// SessionResult is the outcome of scheduling a batch of classes.
type SessionResult struct {
	SessionID          string                `json:"sessionId"`
	Classes            []*GeneratedSchedule  `json:"classes"`
	Solved             int                   `json:"solved"`
	Failed             int                   `json:"failed"`
	NoTeacherConflicts bool                  `json:"noTeacherConflicts"`
	Violations         []ConstraintViolation `json:"violations"`
}

// NewSession opens an empty scheduling session.
func (s *Solver) NewSession() *Session {
	return s.NewSessionWith(nil)
}

// NewSessionWith opens a session whose teachers are already booked as recorded
// in baseline, typically the published timetables of other classes. The
// baseline is copied and never modified.
func (s *Solver) NewSessionWith(baseline *Occupancy) *Session {
	return &Session{
		ID:       uuid.NewString(),
		solver:   s,
		baseline: baseline.Clone(),
		occ:      baseline.Clone(),
		names:    make(map[string]bool),
	}
}

// Schedule solves one class against everything committed so far. Only solved
// classes are committed; a failed class leaves the occupancy untouched.
func (s *Session) Schedule(ctx context.Context, req Request) *GeneratedSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if failure := s.checkName(req.ClassName); failure != nil {
		return rejected(req.ClassName, failure)
	}
	result := s.solver.solve(ctx, req, s.occ)
	s.commit(result)
	return result
}

// ScheduleAll solves the classes sequentially in request order.
func (s *Session) ScheduleAll(ctx context.Context, reqs []Request) *SessionResult {
	results := make([]*GeneratedSchedule, len(reqs))
	for i, req := range reqs {
		results[i] = s.Schedule(ctx, req)
	}
	return s.summarise(results)
}

// ScheduleAllParallel solves classes concurrently. Requests are grouped so that
// no teacher appears in two groups; each group runs sequentially against its
// own snapshot of the occupancy, and the results are committed afterwards in
// request order by the calling goroutine. The outcome equals ScheduleAll.
func (s *Session) ScheduleAllParallel(ctx context.Context, reqs []Request, workers int) (*SessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]*GeneratedSchedule, len(reqs))
	runnable := make([]int, 0, len(reqs))
	for i, req := range reqs {
		if failure := s.checkName(req.ClassName); failure != nil {
			results[i] = rejected(req.ClassName, failure)
			continue
		}
		runnable = append(runnable, i)
	}

	groups := teacherGroups(reqs, runnable)
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, group := range groups {
		group := group
		snapshot := s.occ.Clone()
		g.Go(func() error {
			solved := make(map[string]bool)
			for _, i := range group {
				name := strings.ToLower(strings.TrimSpace(reqs[i].ClassName))
				if solved[name] {
					results[i] = rejected(reqs[i].ClassName, duplicateClass(reqs[i].ClassName))
					continue
				}
				result := s.solver.solve(gctx, reqs[i], snapshot)
				if result.Solved() {
					snapshot.Commit(result.Lessons)
					solved[name] = true
				}
				results[i] = result
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, i := range runnable {
		s.commit(results[i])
	}
	return s.summariseLocked(results), nil
}

// Occupancy returns the committed teacher bookings.
func (s *Session) Occupancy() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occ.Snapshot()
}

// Verify re-validates every committed class together.
func (s *Session) Verify() []ConstraintViolation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Validate(s.classes, s.baseline, true)
}

func (s *Session) checkName(className string) *Failure {
	name := strings.ToLower(strings.TrimSpace(className))
	if name == "" {
		return nil
	}
	if s.names[name] {
		return duplicateClass(className)
	}
	return nil
}

func duplicateClass(className string) *Failure {
	return &Failure{
		Kind:    StatusInvalidRequest,
		Message: fmt.Sprintf("class %s was already scheduled in this session", strings.TrimSpace(className)),
	}
}

func (s *Session) commit(result *GeneratedSchedule) {
	if !result.Solved() {
		return
	}
	s.occ.Commit(result.Lessons)
	s.names[strings.ToLower(result.ClassName)] = true
	s.classes = append(s.classes, result.verified)
}

func (s *Session) summarise(results []*GeneratedSchedule) *SessionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summariseLocked(results)
}

func (s *Session) summariseLocked(results []*GeneratedSchedule) *SessionResult {
	out := &SessionResult{SessionID: s.ID, Classes: results, NoTeacherConflicts: true}
	for _, r := range results {
		if r.Solved() {
			out.Solved++
		} else {
			out.Failed++
		}
		if !r.Status.Rejected() && !r.Validation.NoTeacherConflicts {
			out.NoTeacherConflicts = false
		}
	}
	out.Violations = Validate(s.classes, s.baseline, true)
	for _, v := range out.Violations {
		if v.Rule == RuleDoubleBooked {
			out.NoTeacherConflicts = false
		}
	}
	return out
}

// teacherGroups partitions the runnable requests so that requests sharing a
// teacher id or a class name end up in the same group. Groups and their members keep request
// order.
func teacherGroups(reqs []Request, runnable []int) [][]int {
	parent := make(map[int]int, len(runnable))
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri < rj {
			parent[rj] = ri
		} else if rj < ri {
			parent[ri] = rj
		}
	}
	for _, i := range runnable {
		parent[i] = i
	}
	owner := make(map[string]int)
	link := func(key string, i int) {
		if j, ok := owner[key]; ok {
			union(i, j)
			return
		}
		owner[key] = i
	}
	for _, i := range runnable {
		link("class\x00"+strings.ToLower(strings.TrimSpace(reqs[i].ClassName)), i)
		for _, t := range reqs[i].Teachers {
			if id := strings.TrimSpace(t.ID); id != "" {
				link("teacher\x00"+id, i)
			}
		}
	}

	index := make(map[int]int)
	var groups [][]int
	for _, i := range runnable {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
