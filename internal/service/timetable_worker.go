package service

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Oliskey-School/School-app--sub008/internal/dto"
	appErrors "github.com/Oliskey-School/School-app--sub008/pkg/errors"
	"github.com/Oliskey-School/School-app--sub008/pkg/jobs"
)

type sessionJobRunner interface {
	StartJob(ctx context.Context, id string) (dto.GenerateSessionRequest, error)
	GenerateSession(ctx context.Context, req dto.GenerateSessionRequest) (*dto.GenerateSessionResponse, error)
	FinishJob(ctx context.Context, id string, result *dto.GenerateSessionResponse, runErr error, final bool)
}

// TimetableWorker bridges queue jobs to session generation. The queue owns
// retries; the worker only decides which failures are worth retrying.
type TimetableWorker struct {
	runner sessionJobRunner
	logger *zap.Logger
}

// NewTimetableWorker constructs a worker.
func NewTimetableWorker(runner sessionJobRunner, logger *zap.Logger) *TimetableWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableWorker{runner: runner, logger: logger}
}

// Handle processes a queue job. Client errors come back as jobs.Permanent
// so the queue gives up at once.
func (w *TimetableWorker) Handle(ctx context.Context, job jobs.Job) error {
	req, err := w.runner.StartJob(ctx, job.ID)
	if err != nil {
		w.logger.Warn("timetable job vanished", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	resp, err := w.runner.GenerateSession(ctx, req)
	if err != nil {
		if appErrors.FromError(err).Status < http.StatusInternalServerError {
			return jobs.Permanent(err)
		}
		w.runner.FinishJob(ctx, job.ID, nil, err, false)
		return err
	}
	w.runner.FinishJob(ctx, job.ID, resp, nil, true)
	w.logger.Info("timetable job finished",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Int("solved", resp.Result.Solved),
		zap.Int("failed", resp.Result.Failed),
	)
	return nil
}

// GiveUp marks a job failed once the queue stops retrying it.
func (w *TimetableWorker) GiveUp(ctx context.Context, job jobs.Job, err error) {
	w.runner.FinishJob(ctx, job.ID, nil, err, true)
}
