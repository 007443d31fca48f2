package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/institute-timetable/internal/models"
	"github.com/noah-isme/institute-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/institute-timetable/pkg/errors"
)

type registrySource interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	ListBatches(ctx context.Context) ([]models.Batch, error)
	ListSubjects(ctx context.Context) ([]models.Subject, error)
	ListFaculty(ctx context.Context) ([]models.Faculty, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
}

type termPlacementReader interface {
	ListPlacementsForTerm(ctx context.Context, term models.Term, excludeBatchIDs []string) ([]models.Placement, error)
}

// RegistryService fetches the source entities once per run and hands the planner a snapshot.
type RegistryService struct {
	source     registrySource
	placements termPlacementReader
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewRegistryService constructs the loader. placements may be nil when cross-scope seeding is not used.
func NewRegistryService(source registrySource, placements termPlacementReader, metrics *MetricsService, logger *zap.Logger) *RegistryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryService{source: source, placements: placements, metrics: metrics, logger: logger}
}

// Load reads every source entity and, with respectExisting, the placements stored for the term. The
// planner drops the ones belonging to batches it replaces.
func (s *RegistryService) Load(ctx context.Context, term models.Term, _ scheduler.Scope, respectExisting bool) (scheduler.Snapshot, error) {
	start := time.Now()
	var snap scheduler.Snapshot
	var err error

	if snap.Departments, err = s.source.ListDepartments(ctx); err != nil {
		return scheduler.Snapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load departments")
	}
	if snap.Batches, err = s.source.ListBatches(ctx); err != nil {
		return scheduler.Snapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batches")
	}
	if snap.Subjects, err = s.source.ListSubjects(ctx); err != nil {
		return scheduler.Snapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	if snap.Faculty, err = s.source.ListFaculty(ctx); err != nil {
		return scheduler.Snapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	if snap.Rooms, err = s.source.ListRooms(ctx); err != nil {
		return scheduler.Snapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	snap = scheduler.ApplyDefaults(snap)

	if respectExisting && s.placements != nil {
		existing, err := s.placements.ListPlacementsForTerm(ctx, term, nil)
		if err != nil {
			return scheduler.Snapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing placements")
		}
		snap.Existing = existing
	}

	s.metrics.ObserveRegistryLoad(time.Since(start))
	s.logger.Debug("registry snapshot loaded",
		zap.Int("departments", len(snap.Departments)),
		zap.Int("batches", len(snap.Batches)),
		zap.Int("subjects", len(snap.Subjects)),
		zap.Int("faculty", len(snap.Faculty)),
		zap.Int("rooms", len(snap.Rooms)),
		zap.Int("existing", len(snap.Existing)),
	)
	return snap, nil
}

// SnapshotRegistry serves a fixed snapshot, such as one decoded from a JSON file.
type SnapshotRegistry struct {
	snap scheduler.Snapshot
}

// NewSnapshotRegistry wraps snap.
func NewSnapshotRegistry(snap scheduler.Snapshot) *SnapshotRegistry {
	return &SnapshotRegistry{snap: scheduler.ApplyDefaults(snap)}
}

// Load returns the snapshot. Existing placements are kept only when respectExisting is set.
func (r *SnapshotRegistry) Load(_ context.Context, _ models.Term, _ scheduler.Scope, respectExisting bool) (scheduler.Snapshot, error) {
	snap := r.snap
	if !respectExisting {
		snap.Existing = nil
	}
	return snap, nil
}
