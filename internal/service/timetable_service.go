package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-timetable/internal/dto"
	"github.com/noah-isme/institute-timetable/internal/models"
	"github.com/noah-isme/institute-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/institute-timetable/pkg/errors"
)

type registryLoader interface {
	Load(ctx context.Context, term models.Term, scope scheduler.Scope, respectExisting bool) (scheduler.Snapshot, error)
}

type timetableMaterializer interface {
	Materialize(ctx context.Context, reg *scheduler.Registry, result *scheduler.Result, generatedAt time.Time) ([]models.Timetable, error)
}

type timetableStore interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	FindByBatch(ctx context.Context, batchID string, term models.Term) (*models.Timetable, error)
	ListPlacements(ctx context.Context, timetableID string) ([]models.Placement, error)
	ListConflicts(ctx context.Context, timetableID string) ([]models.Conflict, error)
	Delete(ctx context.Context, id string) error
}

type runLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type timetableExporter interface {
	Render(t models.Timetable, format string) (*ExportFile, error)
}

// TimetableServiceConfig tunes generation runs.
type TimetableServiceConfig struct {
	LabsFirst        bool
	RespectExisting  bool
	RunTimeout       time.Duration
	LockTTL          time.Duration
	MaxBatchesPerRun int
	CacheTTL         time.Duration
}

// TimetableService runs generation and serves persisted timetables.
type TimetableService struct {
	registry     registryLoader
	materializer timetableMaterializer
	store        timetableStore
	locks        runLocker
	exporter     timetableExporter
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	cfg          TimetableServiceConfig
	now          func() time.Time
}

// NewTimetableService wires the generation pipeline.
func NewTimetableService(
	registry registryLoader,
	materializer timetableMaterializer,
	store timetableStore,
	locks runLocker,
	exporter timetableExporter,
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
	if exporter == nil {
		exporter = NewExportService(logger, nil, nil)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &TimetableService{
		registry:     registry,
		materializer: materializer,
		store:        store,
		locks:        locks,
		exporter:     exporter,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Generate plans the requested scope and, unless it is a dry run, replaces the persisted timetables
// of every planned batch. Unplaceable units are reported, never fatal.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	scope := scheduler.Scope{All: req.All, DepartmentID: req.DepartmentID, BatchIDs: req.BatchIDs}
	if scope.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope must select all, a department or at least one batch")
	}
	term, err := s.resolveTerm(req.Term)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With(zap.String("run_id", runID), zap.String("term", string(term)))

	release, err := s.lock(ctx, term)
	if err != nil {
		if errors.Is(err, appErrors.ErrRunInProgress) {
			s.metrics.ObserveGeneration(OutcomeInProgress, time.Since(started), 0, 0, nil)
		}
		return nil, err
	}
	defer release()

	snap, err := s.registry.Load(ctx, term, scope, s.cfg.RespectExisting)
	if err != nil {
		s.metrics.ObserveGeneration(OutcomeFailed, time.Since(started), 0, 0, nil)
		return nil, err
	}
	if s.cfg.MaxBatchesPerRun > 0 {
		if n := countScopedBatches(snap.Batches, scope, term); n > s.cfg.MaxBatchesPerRun {
			s.metrics.ObserveGeneration(OutcomeFailed, time.Since(started), 0, 0, nil)
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("scope selects %d batches, limit is %d", n, s.cfg.MaxBatchesPerRun))
		}
	}

	reg := scheduler.NewRegistry(snap)
	result, err := s.plan(ctx, reg, scheduler.Options{
		RunID:     runID,
		Term:      term,
		Scope:     scope,
		LabsFirst: s.cfg.LabsFirst,
		Logger:    logger,
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrCanceled) {
			s.metrics.ObserveGeneration(OutcomeCanceled, time.Since(started), 0, 0, nil)
			logger.Warn("generation run canceled", zap.Error(err))
			return nil, appErrors.WrapAs(appErrors.ErrRunCanceled, err, "")
		}
		s.metrics.ObserveGeneration(OutcomeFailed, time.Since(started), 0, 0, nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable planning failed")
	}
	if len(result.Batches) == 0 {
		s.metrics.ObserveGeneration(OutcomeFailed, time.Since(started), 0, len(result.Issues), nil)
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, noSchedulableBatchesMessage(result.Issues))
	}

	generatedAt := s.now().UTC()
	status := dto.GenerationStatusCompleted
	var timetables []models.Timetable
	if req.DryRun {
		status = dto.GenerationStatusDryRun
		timetables = BuildTimetables(result, generatedAt)
	} else {
		timetables, err = s.materializer.Materialize(ctx, reg, result, generatedAt)
		if err != nil {
			outcome := OutcomeFailed
			if errors.Is(err, appErrors.ErrStorage) {
				outcome = OutcomeStorage
			}
			s.metrics.ObserveGeneration(outcome, time.Since(started), 0, len(result.Issues), nil)
			return nil, err
		}
		if len(scope.BatchIDs) == 0 {
			_ = s.cache.Invalidate(context.WithoutCancel(ctx), TimetableTermCachePattern(term))
		} else {
			batchIDs := make([]string, 0, len(timetables))
			for _, t := range timetables {
				batchIDs = append(batchIDs, t.BatchID)
			}
			_ = s.cache.InvalidateBatches(context.WithoutCancel(ctx), term, batchIDs...)
		}
	}

	outcome := OutcomeCompleted
	switch {
	case req.DryRun:
		outcome = OutcomeDryRun
	case result.HasConflicts():
		outcome = OutcomeConflicts
	}
	s.metrics.ObserveGeneration(outcome, time.Since(started), len(result.Placements), len(result.Issues), conflictsByReason(result.Conflicts))

	return buildGenerateResponse(result, timetables, generatedAt, status), nil
}

// List returns timetable headers for a department and term.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]dto.TimetableView, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}
	timetables, err := s.store.List(ctx, models.TimetableFilter{DepartmentID: query.DepartmentID, Term: models.Term(query.Term)})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	views := make([]dto.TimetableView, 0, len(timetables))
	for _, t := range timetables {
		views = append(views, dto.NewTimetableView(t))
	}
	return views, nil
}

// Get returns one timetable with its placements and conflicts.
func (s *TimetableService) Get(ctx context.Context, id string) (*dto.TimetableView, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := dto.NewTimetableView(*t)
	return &view, nil
}

// GetByBatch returns the timetable of a batch for a term, the current term when raw is empty.
// Results are served from the cache when it is enabled.
func (s *TimetableService) GetByBatch(ctx context.Context, batchID, rawTerm string) (*dto.TimetableView, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch id is required")
	}
	term, err := s.resolveTerm(rawTerm)
	if err != nil {
		return nil, err
	}

	key := TimetableCacheKey(batchID, term)
	var cached dto.TimetableView
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	header, err := s.store.FindByBatch(ctx, batchID, term)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no %s term timetable for batch %s", term, batchID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if err := s.attach(ctx, header); err != nil {
		return nil, err
	}
	view := dto.NewTimetableView(*header)
	_ = s.cache.Set(ctx, key, view, s.cfg.CacheTTL)
	return &view, nil
}

// Export renders a timetable as json, csv or pdf.
func (s *TimetableService) Export(ctx context.Context, id, format string) (*ExportFile, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exporter.Render(*t, format)
}

// Delete removes a timetable and drops its cache entry.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	header, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	_ = s.cache.InvalidateBatches(ctx, header.Term, header.BatchID)
	s.logger.Info("timetable deleted", zap.String("timetable_id", id), zap.String("batch_id", header.BatchID), zap.String("term", string(header.Term)))
	return nil
}

func (s *TimetableService) resolveTerm(raw string) (models.Term, error) {
	term, err := models.ParseTerm(raw)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term")
	}
	if term == "" {
		term = models.TermFor(s.now())
	}
	return term, nil
}

// lock serialises runs per term. The returned func releases the lock even after ctx ends.
func (s *TimetableService) lock(ctx context.Context, term models.Term) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	key := string(term)
	token, ok, err := s.locks.Acquire(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire run lock")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrRunInProgress, fmt.Sprintf("a generation run for the %s term is already in progress", term))
	}
	return func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("failed to release run lock", zap.String("term", key), zap.Error(err))
		}
	}, nil
}

func (s *TimetableService) plan(ctx context.Context, reg *scheduler.Registry, opts scheduler.Options) (*scheduler.Result, error) {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	return scheduler.NewPlanner(reg, opts).Run(ctx)
}

func (s *TimetableService) load(ctx context.Context, id string) (*models.Timetable, error) {
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if err := s.attach(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TimetableService) attach(ctx context.Context, t *models.Timetable) error {
	placements, err := s.store.ListPlacements(ctx, t.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable placements")
	}
	conflicts, err := s.store.ListConflicts(ctx, t.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable conflicts")
	}
	t.Placements = placements
	t.Conflicts = conflicts
	return nil
}

func countScopedBatches(batches []models.Batch, scope scheduler.Scope, term models.Term) int {
	n := 0
	for _, b := range batches {
		if scope.Includes(b) && term.Includes(b.Semester) {
			n++
		}
	}
	return n
}

func conflictsByReason(conflicts []models.Conflict) map[string]int {
	out := make(map[string]int)
	for _, c := range conflicts {
		out[string(c.Reason)]++
	}
	return out
}

func noSchedulableBatchesMessage(issues []models.PreconditionIssue) string {
	if len(issues) == 0 {
		return "scope selects no batches for the term"
	}
	msgs := make([]string, 0, len(issues))
	for _, issue := range issues {
		msgs = append(msgs, issue.Message)
	}
	return "scope has no schedulable batches: " + strings.Join(msgs, "; ")
}

func buildGenerateResponse(result *scheduler.Result, timetables []models.Timetable, generatedAt time.Time, status string) *dto.GenerateTimetableResponse {
	resp := &dto.GenerateTimetableResponse{
		RunID:       result.RunID,
		Term:        result.Term,
		Semesters:   result.Semesters,
		GeneratedAt: generatedAt,
		Status:      status,
		Signature:   result.Signature,
		Timetables:  make([]dto.TimetableView, 0, len(timetables)),
		Placements:  make([]dto.PlacementView, 0, len(result.Placements)),
		Conflicts:   make([]dto.ConflictView, 0, len(result.Conflicts)),
		Issues:      make([]dto.IssueView, 0, len(result.Issues)),
		Stats: dto.GenerationStats{
			Units:     len(result.Units),
			Placed:    len(result.Placements),
			Conflicts: len(result.Conflicts),
			Workload:  result.Workload,
		},
	}
	for _, t := range timetables {
		resp.Timetables = append(resp.Timetables, dto.NewTimetableView(t))
	}
	for _, p := range result.Placements {
		resp.Placements = append(resp.Placements, dto.NewPlacementView(p))
	}
	for _, c := range result.Conflicts {
		resp.Conflicts = append(resp.Conflicts, dto.NewConflictView(c))
	}
	for _, i := range result.Issues {
		resp.Issues = append(resp.Issues, dto.NewIssueView(i))
	}
	return resp
}
