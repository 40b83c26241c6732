package service

import (
	"sync"
	"time"

	"github.com/Oliskey-School/School-app--sub008/internal/dto"
	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
)

// timetableProposal is a generated class timetable waiting to be saved.
type timetableProposal struct {
	ProposalID  string                       `json:"proposalId"`
	ClassName   string                       `json:"className"`
	Request     timetable.Request            `json:"request"`
	Result      *timetable.GeneratedSchedule `json:"result"`
	RequestedAt time.Time                    `json:"requestedAt"`
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]timetableProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]timetableProposal),
	}
}

func (s *proposalStore) Save(proposal timetableProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalStore) Get(id string) (timetableProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return timetableProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return timetableProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Sweep drops expired proposals and returns how many were removed.
func (s *proposalStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, proposal := range s.items {
		if now.Sub(proposal.RequestedAt) > s.ttl {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// timetableJob is the tracked state of an asynchronous session.
type timetableJob struct {
	Status  dto.TimetableJobResponse   `json:"status"`
	Request dto.GenerateSessionRequest `json:"request"`
}

type jobStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]*timetableJob
}

func newJobStore(ttl time.Duration) *jobStore {
	return &jobStore{ttl: ttl, items: make(map[string]*timetableJob)}
}

func (s *jobStore) Put(job *timetableJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[job.Status.ID] = job
}

// Get returns a copy of the job so callers never race with the worker.
func (s *jobStore) Get(id string) (timetableJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.items[id]
	if !ok {
		return timetableJob{}, false
	}
	if job.Status.FinishedAt != nil && time.Since(*job.Status.FinishedAt) > s.ttl {
		return timetableJob{}, false
	}
	return *job, true
}

// Update applies fn to the stored job under the lock and returns the new state.
func (s *jobStore) Update(id string, fn func(*timetableJob)) (timetableJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.items[id]
	if !ok {
		return timetableJob{}, false
	}
	fn(job)
	return *job, true
}

func (s *jobStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.items {
		if job.Status.FinishedAt != nil && now.Sub(*job.Status.FinishedAt) > s.ttl {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}
