package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/Oliskey-School/School-app--sub008/internal/dto"
	"github.com/Oliskey-School/School-app--sub008/internal/models"
	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
	appErrors "github.com/Oliskey-School/School-app--sub008/pkg/errors"
	"github.com/Oliskey-School/School-app--sub008/pkg/export"
	"github.com/Oliskey-School/School-app--sub008/pkg/jobs"
)

type timetableRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error
}

type timetableSlotRepository interface {
	UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error
	ListByTimetable(ctx context.Context, timetableID string) ([]models.TimetableSlot, error)
	ListPublished(ctx context.Context) ([]models.TimetableSlot, error)
}

type rosterRepository interface {
	ListActive(ctx context.Context) ([]models.RosterTeacher, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.RosterTeacher, error)
	Upsert(ctx context.Context, teacher *models.RosterTeacher) error
	Deactivate(ctx context.Context, id string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type jobDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

const (
	timetableJobType       = "timetable_session"
	timetableAlgorithm     = "backtracking_v1"
	resultCacheKeyPrefix   = "results:"
	proposalCacheKeyPrefix = "proposals:"
	jobCacheKeyPrefix      = "jobs:"
	defaultTimetablePage   = 1
	defaultTimetablePageSz = 20
)

// TimetableServiceConfig governs proposal retention, result caching and session concurrency.
type TimetableServiceConfig struct {
	ProposalTTL    time.Duration
	ResultCacheTTL time.Duration
	JobTTL         time.Duration
	// Workers bounds the goroutines used by parallel sessions.
	Workers int
	// RespectPublished makes published timetables of other classes block teacher slots.
	RespectPublished bool
}

// TimetableService generates, validates and stores class timetables.
type TimetableService struct {
	timetables timetableRepository
	slots      timetableSlotRepository
	roster     rosterRepository
	tx         txProvider
	solver     *timetable.Solver
	cache      *CacheService
	metrics    *MetricsService
	queue      jobDispatcher
	exporter   *export.CSVExporter
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        TimetableServiceConfig
	proposals  *proposalStore
	jobs       *jobStore
}

// NewTimetableService wires timetable dependencies. Repositories may be nil
// when the service runs without a database; persistence calls then fail with
// an internal error while generation keeps working.
func NewTimetableService(
	timetables timetableRepository,
	slots timetableSlotRepository,
	roster rosterRepository,
	tx txProvider,
	solver *timetable.Solver,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableServiceConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if solver == nil {
		solver = timetable.NewSolver(timetable.DefaultConfig(), logger)
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.ResultCacheTTL <= 0 {
		cfg.ResultCacheTTL = 10 * time.Minute
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &TimetableService{
		timetables: timetables,
		slots:      slots,
		roster:     roster,
		tx:         tx,
		solver:     solver,
		cache:      cache,
		metrics:    metrics,
		exporter:   export.NewCSVExporter(),
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		proposals:  newProposalStore(cfg.ProposalTTL),
		jobs:       newJobStore(cfg.JobTTL),
	}
}

// AttachQueue enables asynchronous session generation.
func (s *TimetableService) AttachQueue(queue jobDispatcher) {
	s.queue = queue
}

// Generate schedules one class against the published timetables of the others.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	request, err := s.resolveRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	baseline, err := s.baseline(ctx, request.Days, request.ClassName)
	if err != nil {
		return nil, err
	}

	cacheKey := resultCacheKeyPrefix + fingerprint(request, baseline)
	var result timetable.GeneratedSchedule
	cached, cacheErr := s.cache.Get(ctx, cacheKey, &result)
	if cacheErr != nil {
		cached = false
	}

	resp := &dto.GenerateTimetableResponse{Cached: cached}
	if cached {
		resp.Result = &result
	} else {
		resp.Result = s.solver.NewSessionWith(baseline).Schedule(ctx, request)
		s.observe(resp.Result)
		if resp.Result.Status != timetable.StatusTimedOut {
			_ = s.cache.Set(ctx, cacheKey, resp.Result, s.cfg.ResultCacheTTL)
		}
	}

	if !resp.Result.Status.Rejected() {
		proposal := s.storeProposal(ctx, request, resp.Result)
		expires := proposal.RequestedAt.Add(s.cfg.ProposalTTL)
		resp.ProposalID = proposal.ProposalID
		resp.ExpiresAt = &expires
	}
	return resp, nil
}

// GenerateSession schedules several classes that share one teacher pool.
func (s *TimetableService) GenerateSession(ctx context.Context, req dto.GenerateSessionRequest) (*dto.GenerateSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable session payload")
	}
	requests := make([]timetable.Request, len(req.Classes))
	names := make([]string, len(req.Classes))
	for i, class := range req.Classes {
		request, err := s.resolveRequest(ctx, class)
		if err != nil {
			return nil, err
		}
		requests[i] = request
		names[i] = request.ClassName
	}
	baseline, err := s.baseline(ctx, requests[0].Days, names...)
	if err != nil {
		return nil, err
	}

	session := s.solver.NewSessionWith(baseline)
	var result *timetable.SessionResult
	if req.Parallel {
		result, err = session.ScheduleAllParallel(ctx, requests, s.cfg.Workers)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "parallel timetable session failed")
		}
	} else {
		result = session.ScheduleAll(ctx, requests)
	}

	resp := &dto.GenerateSessionResponse{
		SessionID: result.SessionID,
		Proposals: make([]dto.SessionProposal, len(result.Classes)),
		Result:    result,
	}
	for i, class := range result.Classes {
		s.observe(class)
		item := dto.SessionProposal{ClassName: class.ClassName, Status: class.Status}
		if !class.Status.Rejected() {
			item.ProposalID = s.storeProposal(ctx, requests[i], class).ProposalID
		}
		resp.Proposals[i] = item
	}
	s.logger.Info("timetable session finished",
		zap.String("session", result.SessionID),
		zap.Int("classes", len(result.Classes)),
		zap.Int("solved", result.Solved),
		zap.Int("failed", result.Failed),
		zap.Bool("parallel", req.Parallel),
	)
	return resp, nil
}

// EnqueueSession registers a session for background generation.
func (s *TimetableService) EnqueueSession(ctx context.Context, req dto.GenerateSessionRequest, createdBy string) (*dto.TimetableJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable session payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable queue unavailable")
	}

	job := &timetableJob{
		Status: dto.TimetableJobResponse{
			ID:        uuid.NewString(),
			Status:    dto.TimetableJobQueued,
			CreatedBy: createdBy,
			CreatedAt: time.Now().UTC(),
		},
		Request: req,
	}
	s.jobs.Put(job)

	if err := s.queue.TryEnqueue(jobs.Job{ID: job.Status.ID, Type: timetableJobType}); err != nil {
		now := time.Now().UTC()
		failed, _ := s.jobs.Update(job.Status.ID, func(j *timetableJob) {
			j.Status.Status = dto.TimetableJobFailed
			j.Status.Error = "failed to enqueue job"
			j.Status.FinishedAt = &now
		})
		s.mirrorJob(ctx, failed)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrQueueFull.Code, appErrors.ErrQueueFull.Status, "timetable queue is full, retry later")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue timetable session")
	}
	s.mirrorJob(ctx, *job)
	status := job.Status
	return &status, nil
}

// JobStatus returns the state of an asynchronous session.
func (s *TimetableService) JobStatus(ctx context.Context, id string) (*dto.TimetableJobResponse, error) {
	if job, ok := s.jobs.Get(id); ok {
		return &job.Status, nil
	}
	var job timetableJob
	hit, err := s.cache.Get(ctx, jobCacheKeyPrefix+id, &job)
	if err == nil && hit {
		return &job.Status, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable job not found")
}

// StartJob marks a queued job as processing and returns its request.
func (s *TimetableService) StartJob(ctx context.Context, id string) (dto.GenerateSessionRequest, error) {
	job, ok := s.jobs.Update(id, func(j *timetableJob) {
		j.Status.Status = dto.TimetableJobProcessing
		j.Status.Error = ""
	})
	if !ok {
		return dto.GenerateSessionRequest{}, appErrors.Clone(appErrors.ErrNotFound, "timetable job not found")
	}
	s.mirrorJob(ctx, job)
	return job.Request, nil
}

// FinishJob records the outcome of a job run. A non-final failure puts the job
// back into the queued state for the retry.
func (s *TimetableService) FinishJob(ctx context.Context, id string, result *dto.GenerateSessionResponse, runErr error, final bool) {
	job, ok := s.jobs.Update(id, func(j *timetableJob) {
		switch {
		case runErr == nil:
			now := time.Now().UTC()
			j.Status.Status = dto.TimetableJobFinished
			j.Status.Result = result
			j.Status.Error = ""
			j.Status.FinishedAt = &now
		case final:
			now := time.Now().UTC()
			j.Status.Status = dto.TimetableJobFailed
			j.Status.Error = runErr.Error()
			j.Status.FinishedAt = &now
		default:
			j.Status.Status = dto.TimetableJobQueued
			j.Status.Error = runErr.Error()
		}
	})
	if !ok {
		s.logger.Warn("finished unknown timetable job", zap.String("job_id", id))
		return
	}
	s.mirrorJob(ctx, job)
}

// Save persists a solved proposal as a new timetable version.
func (s *TimetableService) Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save timetable payload")
	}
	proposal, ok := s.findProposal(ctx, req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if !proposal.Result.Solved() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only solved proposals can be saved")
	}
	if s.tx == nil || s.timetables == nil || s.slots == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable storage unavailable")
	}
	if req.Publish {
		if err := s.verifyAgainstPublished(ctx, proposal.Request, proposal.Result.Lessons); err != nil {
			return nil, err
		}
	}

	metaBytes, marshalErr := json.Marshal(timetableMeta{
		Algorithm:  timetableAlgorithm,
		Generated:  proposal.RequestedAt,
		Request:    proposal.Request,
		Score:      proposal.Result.Score,
		Stats:      proposal.Result.Stats,
		Validation: proposal.Result.Validation,
		Notices:    proposal.Result.Notices,
	})
	if marshalErr != nil {
		return nil, appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable metadata")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	record := &models.Timetable{
		ClassName: proposal.Result.ClassName,
		Status:    models.TimetableStatusDraft,
		Meta:      types.JSONText(metaBytes),
	}
	if err = s.timetables.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
		return nil, err
	}

	if err = s.slots.UpsertBatch(ctx, tx, slotModels(record.ID, proposal.Request.Days, proposal.Result.Lessons)); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable slots")
		return nil, err
	}

	if req.Publish {
		if err = s.publishWithin(ctx, tx, record); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}

	s.proposals.Delete(req.ProposalID)
	_ = s.cache.Delete(ctx, proposalCacheKeyPrefix+req.ProposalID)
	s.logger.Info("timetable saved",
		zap.String("id", record.ID),
		zap.String("class", record.ClassName),
		zap.Int("version", record.Version),
		zap.String("status", string(record.Status)),
	)
	return &dto.SaveTimetableResponse{ID: record.ID, Version: record.Version, Status: string(record.Status)}, nil
}

// Publish makes a stored version the live timetable of its class.
func (s *TimetableService) Publish(ctx context.Context, id string) (*models.Timetable, error) {
	if s.tx == nil || s.timetables == nil || s.slots == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable storage unavailable")
	}
	record, err := s.findTimetable(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status == models.TimetableStatusPublished {
		return record, nil
	}

	var meta timetableMeta
	if len(record.Meta) > 0 && json.Unmarshal(record.Meta, &meta) == nil && meta.Request.ClassName != "" {
		stored, listErr := s.slots.ListByTimetable(ctx, record.ID)
		if listErr != nil {
			return nil, appErrors.Wrap(listErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable slots")
		}
		if err := s.verifyAgainstPublished(ctx, meta.Request, lessonsFromSlots(record.ClassName, stored)); err != nil {
			return nil, err
		}
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.publishWithin(ctx, tx, record); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}
	s.logger.Info("timetable published", zap.String("id", record.ID), zap.String("class", record.ClassName), zap.Int("version", record.Version))
	return record, nil
}

// List returns stored timetables with pagination.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}
	if s.timetables == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "timetable storage unavailable")
	}
	page := query.Page
	if page <= 0 {
		page = defaultTimetablePage
	}
	size := query.PageSize
	if size <= 0 {
		size = defaultTimetablePageSz
	}
	start := time.Now()
	items, total, err := s.timetables.List(ctx, models.TimetableFilter{
		ClassName: strings.TrimSpace(query.ClassName),
		Status:    models.TimetableStatus(query.Status),
		Page:      page,
		PageSize:  size,
	})
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("timetable_list", time.Since(start))
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetSlots returns the taught periods of a stored timetable.
func (s *TimetableService) GetSlots(ctx context.Context, id string) ([]models.TimetableSlot, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	if s.timetables == nil || s.slots == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable storage unavailable")
	}
	if _, err := s.findTimetable(ctx, id); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByTimetable(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable slots")
	}
	return slots, nil
}

// Export renders a stored timetable as a CSV grid with one row per period.
func (s *TimetableService) Export(ctx context.Context, id string) ([]byte, string, error) {
	if s.timetables == nil || s.slots == nil {
		return nil, "", appErrors.Clone(appErrors.ErrInternal, "timetable storage unavailable")
	}
	record, err := s.findTimetable(ctx, id)
	if err != nil {
		return nil, "", err
	}
	stored, err := s.slots.ListByTimetable(ctx, id)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable slots")
	}
	var meta timetableMeta
	if len(record.Meta) > 0 {
		_ = json.Unmarshal(record.Meta, &meta)
	}
	payload, err := s.exporter.Render(timetableGrid(meta.Request.Days, meta.Request.PeriodsPerDay, stored))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable export")
	}
	filename := fmt.Sprintf("timetable-%s-v%d.csv", slugify(record.ClassName), record.Version)
	return payload, filename, nil
}

// Delete removes a draft timetable version.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	if s.timetables == nil {
		return appErrors.Clone(appErrors.ErrInternal, "timetable storage unavailable")
	}
	record, err := s.findTimetable(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be deleted")
	}
	if err := s.timetables.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	return nil
}

// Validate checks a timetable built or edited outside the solver.
func (s *TimetableService) Validate(ctx context.Context, req dto.ValidateTimetableRequest) (*timetable.GeneratedSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable validation payload")
	}
	request, err := s.resolveRequest(ctx, req.Class)
	if err != nil {
		return nil, err
	}
	var committed *timetable.Occupancy
	if req.RespectPublished {
		committed, err = s.publishedOccupancy(ctx, request.Days, request.ClassName)
		if err != nil {
			return nil, err
		}
	}
	return timetable.Check(request, req.Lessons, committed, s.solver.Scorer()), nil
}

// ListRoster returns the active teachers available to the solver.
func (s *TimetableService) ListRoster(ctx context.Context) ([]models.RosterTeacher, error) {
	if s.roster == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "teacher roster unavailable")
	}
	teachers, err := s.roster.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return teachers, nil
}

// TeacherSchedule lists the published lessons of one roster teacher across
// every class, ordered by class, day and period.
func (s *TimetableService) TeacherSchedule(ctx context.Context, teacherID string) ([]models.TimetableSlot, error) {
	teacherID = strings.TrimSpace(teacherID)
	if s.roster == nil || s.slots == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable storage unavailable")
	}
	found, err := s.roster.FindByIDs(ctx, []string{teacherID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster teacher")
	}
	if len(found) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	start := time.Now()
	rows, err := s.slots.ListPublished(ctx)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("timetable_teacher_schedule", time.Since(start))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published timetables")
	}
	lessons := make([]models.TimetableSlot, 0)
	for _, row := range rows {
		if row.TeacherID == teacherID {
			lessons = append(lessons, row)
		}
	}
	return lessons, nil
}

// UpsertRoster creates or replaces a roster teacher.
func (s *TimetableService) UpsertRoster(ctx context.Context, req dto.RosterTeacherRequest) (*models.RosterTeacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster payload")
	}
	if s.roster == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "teacher roster unavailable")
	}
	teacher := &models.RosterTeacher{
		ID:             strings.TrimSpace(req.ID),
		Name:           strings.TrimSpace(req.Name),
		EmploymentType: req.EmploymentType,
		AvailableDays:  req.AvailableDays,
		Subjects:       req.Subjects,
		Active:         true,
	}
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	if req.Active != nil {
		teacher.Active = *req.Active
	}
	if err := s.roster.Upsert(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save roster teacher")
	}
	return teacher, nil
}

// DeactivateRoster removes a teacher from future generation runs.
func (s *TimetableService) DeactivateRoster(ctx context.Context, id string) error {
	if s.roster == nil {
		return appErrors.Clone(appErrors.ErrInternal, "teacher roster unavailable")
	}
	if err := s.roster.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "roster teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate roster teacher")
	}
	return nil
}

// SweepExpired drops expired proposals and finished jobs.
func (s *TimetableService) SweepExpired(now time.Time) {
	proposals := s.proposals.Sweep(now)
	finished := s.jobs.Sweep(now)
	if proposals > 0 || finished > 0 {
		s.logger.Debug("timetable stores swept", zap.Int("proposals", proposals), zap.Int("jobs", finished))
	}
}

// FlushResults drops every cached solver result. Cached results depend on
// the solver build and its search budgets, so the server calls this at start.
func (s *TimetableService) FlushResults(ctx context.Context) error {
	if err := s.cache.Invalidate(ctx, resultCacheKeyPrefix+"*"); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flush cached results")
	}
	return nil
}

// StartSweeper runs SweepExpired periodically until ctx is cancelled.
func (s *TimetableService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.SweepExpired(now)
			}
		}
	}()
}

type timetableMeta struct {
	Algorithm  string                   `json:"algorithm"`
	Generated  time.Time                `json:"generated"`
	Request    timetable.Request        `json:"request"`
	Score      timetable.ScoreBreakdown `json:"score"`
	Stats      timetable.SearchStats    `json:"stats"`
	Validation timetable.Validation     `json:"validation"`
	Notices    []string                 `json:"notices,omitempty"`
}

func (s *TimetableService) resolveRequest(ctx context.Context, req dto.GenerateTimetableRequest) (timetable.Request, error) {
	request := req.ToRequest()
	if len(request.Teachers) > 0 || s.roster == nil {
		return request, nil
	}
	var (
		rows []models.RosterTeacher
		err  error
	)
	if len(req.TeacherIDs) > 0 {
		rows, err = s.roster.FindByIDs(ctx, req.TeacherIDs)
	} else {
		rows, err = s.roster.ListActive(ctx)
	}
	if err != nil {
		return timetable.Request{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher roster")
	}
	request.Teachers = make([]timetable.TeacherInput, 0, len(rows))
	for _, row := range rows {
		request.Teachers = append(request.Teachers, timetable.TeacherInput{
			ID:                    row.ID,
			Name:                  row.Name,
			EmploymentType:        timetable.EmploymentType(row.EmploymentType),
			AvailableDays:         row.AvailableDays,
			SubjectSpecialization: row.Subjects,
		})
	}
	return request, nil
}

func (s *TimetableService) baseline(ctx context.Context, days []string, exclude ...string) (*timetable.Occupancy, error) {
	if !s.cfg.RespectPublished {
		return nil, nil
	}
	return s.publishedOccupancy(ctx, days, exclude...)
}

// publishedOccupancy books every teacher as recorded in the published
// timetables, skipping the classes being regenerated. Day names are matched
// case-insensitively against days.
func (s *TimetableService) publishedOccupancy(ctx context.Context, days []string, exclude ...string) (*timetable.Occupancy, error) {
	if s.slots == nil {
		return nil, nil
	}
	start := time.Now()
	rows, err := s.slots.ListPublished(ctx)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("timetable_published_slots", time.Since(start))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published timetables")
	}
	occ := timetable.NewOccupancy()
	for _, row := range rows {
		if containsFold(exclude, row.ClassName) {
			continue
		}
		occ.Reserve(row.TeacherID, timetable.SlotKey(matchDay(days, row.Day), row.Period), row.ClassName)
	}
	return occ, nil
}

func (s *TimetableService) verifyAgainstPublished(ctx context.Context, request timetable.Request, lessons []timetable.Assignment) error {
	committed, err := s.publishedOccupancy(ctx, request.Days, request.ClassName)
	if err != nil {
		return err
	}
	checked := timetable.Check(request, lessons, committed, s.solver.Scorer())
	if checked.Solved() {
		return nil
	}
	message := "timetable clashes with published timetables"
	if len(checked.Violations) > 0 {
		message = fmt.Sprintf("%s: %s", message, checked.Violations[0].Message)
	}
	return appErrors.Clone(appErrors.ErrConflict, message)
}

func (s *TimetableService) publishWithin(ctx context.Context, tx *sqlx.Tx, record *models.Timetable) error {
	current, _, err := s.timetables.List(ctx, models.TimetableFilter{
		ClassName: record.ClassName,
		Status:    models.TimetableStatusPublished,
		Page:      1,
		PageSize:  100,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published timetables")
	}
	for _, item := range current {
		if item.ID == record.ID || !strings.EqualFold(item.ClassName, record.ClassName) {
			continue
		}
		if err := s.timetables.UpdateStatus(ctx, tx, item.ID, models.TimetableStatusArchived, nil); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive previous timetable")
		}
	}
	if err := s.timetables.UpdateStatus(ctx, tx, record.ID, models.TimetableStatusPublished, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable status")
	}
	record.Status = models.TimetableStatusPublished
	return nil
}

func (s *TimetableService) findTimetable(ctx context.Context, id string) (*models.Timetable, error) {
	record, err := s.timetables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return record, nil
}

// storeProposal keeps the proposal in memory and mirrors it to the cache so
// another instance can save it.
func (s *TimetableService) storeProposal(ctx context.Context, request timetable.Request, result *timetable.GeneratedSchedule) timetableProposal {
	proposal := timetableProposal{
		ProposalID:  uuid.NewString(),
		ClassName:   result.ClassName,
		Request:     request,
		Result:      result,
		RequestedAt: time.Now().UTC(),
	}
	s.proposals.Save(proposal)
	if err := s.cache.Set(ctx, proposalCacheKeyPrefix+proposal.ProposalID, proposal, s.cfg.ProposalTTL); err != nil {
		s.logger.Debug("timetable proposal not mirrored", zap.String("proposal_id", proposal.ProposalID), zap.Error(err))
	}
	return proposal
}

func (s *TimetableService) findProposal(ctx context.Context, id string) (timetableProposal, bool) {
	if proposal, ok := s.proposals.Get(id); ok {
		return proposal, true
	}
	var proposal timetableProposal
	hit, err := s.cache.Get(ctx, proposalCacheKeyPrefix+id, &proposal)
	if err != nil || !hit || time.Since(proposal.RequestedAt) > s.cfg.ProposalTTL {
		return timetableProposal{}, false
	}
	return proposal, true
}

func (s *TimetableService) observe(result *timetable.GeneratedSchedule) {
	s.metrics.ObserveSolve(string(result.Status), result.Stats.Nodes, result.Stats.Elapsed)
}

func (s *TimetableService) mirrorJob(ctx context.Context, job timetableJob) {
	if err := s.cache.Set(ctx, jobCacheKeyPrefix+job.Status.ID, job, s.cfg.JobTTL); err != nil {
		s.logger.Debug("timetable job not mirrored", zap.String("job_id", job.Status.ID), zap.Error(err))
	}
}

// fingerprint identifies a solve by its request and the bookings it ran against.
func fingerprint(request timetable.Request, baseline *timetable.Occupancy) string {
	payload, _ := json.Marshal(struct {
		Request  timetable.Request   `json:"request"`
		Baseline map[string][]string `json:"baseline"`
	}{request, baseline.Snapshot()})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func slotModels(timetableID string, days []string, lessons []timetable.Assignment) []models.TimetableSlot {
	out := make([]models.TimetableSlot, 0, len(lessons))
	for _, lesson := range lessons {
		out = append(out, models.TimetableSlot{
			TimetableID: timetableID,
			Day:         lesson.Day,
			DayIndex:    dayIndex(days, lesson.Day),
			Period:      lesson.Period,
			Subject:     lesson.Subject,
			TeacherID:   lesson.TeacherID,
			TeacherName: lesson.TeacherName,
		})
	}
	return out
}

func lessonsFromSlots(className string, slots []models.TimetableSlot) []timetable.Assignment {
	out := make([]timetable.Assignment, 0, len(slots))
	for _, slot := range slots {
		out = append(out, timetable.Assignment{
			Class:       className,
			Day:         slot.Day,
			Period:      slot.Period,
			Subject:     slot.Subject,
			TeacherID:   slot.TeacherID,
			TeacherName: slot.TeacherName,
		})
	}
	return out
}

// timetableGrid lays slots out as rows of periods and columns of days. When
// the stored metadata lacks the week shape it is derived from the slots.
func timetableGrid(days []string, periods int, slots []models.TimetableSlot) export.Dataset {
	if len(days) == 0 {
		seen := make(map[string]bool)
		for _, slot := range slots {
			if !seen[slot.Day] {
				seen[slot.Day] = true
				days = append(days, slot.Day)
			}
		}
	}
	for _, slot := range slots {
		if slot.Period+1 > periods {
			periods = slot.Period + 1
		}
	}

	headers := append([]string{"Period"}, days...)
	rows := make([]map[string]string, periods)
	for p := 0; p < periods; p++ {
		row := map[string]string{"Period": strconv.Itoa(p)}
		for _, day := range days {
			row[day] = timetable.FreeSlot
		}
		rows[p] = row
	}
	for _, slot := range slots {
		day := matchDay(days, slot.Day)
		cell := slot.Subject
		if slot.TeacherName != "" {
			cell = fmt.Sprintf("%s (%s)", slot.Subject, slot.TeacherName)
		}
		rows[slot.Period][day] = cell
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func dayIndex(days []string, day string) int {
	for i, d := range days {
		if strings.EqualFold(strings.TrimSpace(d), day) {
			return i
		}
	}
	return len(days)
}

func matchDay(days []string, day string) string {
	for _, d := range days {
		if strings.EqualFold(strings.TrimSpace(d), day) {
			return strings.TrimSpace(d)
		}
	}
	return day
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}

func slugify(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "class"
	}
	return slug
}
