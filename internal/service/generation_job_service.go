package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-timetable/internal/dto"
	appErrors "github.com/noah-isme/institute-timetable/pkg/errors"
	"github.com/noah-isme/institute-timetable/pkg/jobs"
)

const generationJobType = "timetable.generate"

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
}

// GenerationJobConfig tunes asynchronous generation.
type GenerationJobConfig struct {
	Workers    int
	StatusTTL  time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// GenerationJobService runs generation requests on a background queue and tracks their status.
// A run blocked by another run for the same term is retried; every other failure is final.
type GenerationJobService struct {
	generator  timetableGenerator
	queue      *jobs.Queue
	store      *runStore
	validator  *validator.Validate
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// NewGenerationJobService constructs the service. Call Start before submitting.
func NewGenerationJobService(generator timetableGenerator, validate *validator.Validate, logger *zap.Logger, cfg GenerationJobConfig) *GenerationJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = time.Hour
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	s := &GenerationJobService{
		generator:  generator,
		store:      newRunStore(cfg.StatusTTL),
		validator:  validate,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		now:        time.Now,
	}
	s.queue = jobs.NewQueue("timetable-generation", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Retryable: func(err error) bool {
			return errors.Is(err, appErrors.ErrRunInProgress)
		},
		OnDrop: s.dropped,
		Logger: logger,
	})
	return s
}

// Start launches the workers.
func (s *GenerationJobService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for in-flight runs.
func (s *GenerationJobService) Stop() {
	s.queue.Stop()
}

// Submit validates and enqueues a run.
func (s *GenerationJobService) Submit(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationRun, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	if !req.All && req.DepartmentID == "" && len(req.BatchIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope must select all, a department or at least one batch")
	}

	run := dto.GenerationRun{
		ID:         uuid.NewString(),
		Status:     dto.RunStatusQueued,
		Request:    req,
		EnqueuedAt: s.now().UTC(),
	}
	s.store.Save(run)
	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: generationJobType, Payload: req}); err != nil {
		s.store.Delete(run.ID)
		if errors.Is(err, jobs.ErrQueueStopped) {
			return nil, appErrors.Wrap(err, appErrors.ErrFeatureDisabled.Code, appErrors.ErrFeatureDisabled.Status, "generation queue is not running")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation run")
	}
	s.logger.Info("generation run queued", zap.String("run_id", run.ID))
	return &run, nil
}

// Get reports the status of a run.
func (s *GenerationJobService) Get(_ context.Context, id string) (*dto.GenerationRun, error) {
	run, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation run not found or expired")
	}
	return &run, nil
}

func (s *GenerationJobService) handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.GenerateTimetableRequest)
	if !ok {
		s.finish(job.ID, nil, fmt.Errorf("unexpected payload %T", job.Payload))
		return nil
	}
	run, ok := s.store.Get(job.ID)
	if !ok {
		s.logger.Warn("generation run expired before start", zap.String("run_id", job.ID))
		return nil
	}
	started := s.now().UTC()
	run.Status = dto.RunStatusRunning
	run.StartedAt = &started
	s.store.Save(run)

	resp, err := s.generator.Generate(ctx, req)
	if err != nil && errors.Is(err, appErrors.ErrRunInProgress) && job.Attempt < s.maxRetries {
		run.Status = dto.RunStatusQueued
		run.StartedAt = nil
		s.store.Save(run)
		return err
	}
	s.finish(job.ID, resp, err)
	return nil
}

// dropped fails a run the queue abandoned so it never stays queued.
func (s *GenerationJobService) dropped(job jobs.Job, err error) {
	if errors.Is(err, jobs.ErrQueueStopped) {
		err = appErrors.Wrap(err, appErrors.ErrFeatureDisabled.Code, appErrors.ErrFeatureDisabled.Status, "generation queue stopped before the run started")
	}
	s.finish(job.ID, nil, err)
}

func (s *GenerationJobService) finish(id string, resp *dto.GenerateTimetableResponse, err error) {
	run, ok := s.store.Get(id)
	if !ok {
		return
	}
	finished := s.now().UTC()
	run.FinishedAt = &finished
	if err != nil {
		appErr := appErrors.FromError(err)
		run.Status = dto.RunStatusFailed
		run.Error = appErr.Error()
		run.ErrorCode = appErr.Code
		s.logger.Warn("generation run failed", zap.String("run_id", id), zap.Error(err))
	} else {
		run.Status = dto.RunStatusSucceeded
		run.Result = resp
		s.logger.Info("generation run succeeded", zap.String("run_id", id), zap.Int("conflicts", len(resp.Conflicts)))
	}
	s.store.Save(run)
}

type runStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]dto.GenerationRun
	now   func() time.Time
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{ttl: ttl, items: make(map[string]dto.GenerationRun), now: time.Now}
}

func (s *runStore) Save(run dto.GenerationRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.ID] = run
	for id, item := range s.items {
		if s.expired(item) {
			delete(s.items, id)
		}
	}
}

func (s *runStore) Get(id string) (dto.GenerationRun, bool) {
	s.mu.RLock()
	run, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.GenerationRun{}, false
	}
	if s.expired(run) {
		s.Delete(id)
		return dto.GenerationRun{}, false
	}
	return run, true
}

func (s *runStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// expired measures from the finish time; unfinished runs never expire.
func (s *runStore) expired(run dto.GenerationRun) bool {
	if run.FinishedAt == nil {
		return false
	}
	return s.now().Sub(*run.FinishedAt) > s.ttl
}
