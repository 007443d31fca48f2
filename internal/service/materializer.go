package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-timetable/internal/models"
	"github.com/noah-isme/institute-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/institute-timetable/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type timetableWriter interface {
	ReplaceForScope(ctx context.Context, exec sqlx.ExtContext, term models.Term, batchIDs []string, timetables []models.Timetable) error
}

// Materializer turns a planning result into persisted per-batch timetables, replacing the previous
// timetables of the same batches and term in one transaction.
type Materializer struct {
	repo   timetableWriter
	tx     txProvider
	logger *zap.Logger
}

// NewMaterializer constructs a materializer.
func NewMaterializer(repo timetableWriter, tx txProvider, logger *zap.Logger) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{repo: repo, tx: tx, logger: logger}
}

// Materialize verifies the placements and swaps in the new timetables. Cancellation of ctx is
// ignored once the write starts. On any failure the previous timetables stay authoritative.
func (m *Materializer) Materialize(ctx context.Context, reg *scheduler.Registry, result *scheduler.Result, generatedAt time.Time) (_ []models.Timetable, err error) {
	if result == nil || len(result.Batches) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "nothing to materialize: scope has no schedulable batches")
	}
	if verr := scheduler.Verify(reg, result.Placements); verr != nil {
		m.logger.Error("placements failed verification", zap.String("run_id", result.RunID), zap.Error(verr))
		return nil, appErrors.Wrap(verr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "generated placements failed verification")
	}
	if m.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	timetables := BuildTimetables(result, generatedAt)
	batchIDs := make([]string, 0, len(result.Batches))
	for _, b := range result.Batches {
		batchIDs = append(batchIDs, b.ID)
	}

	ctx = context.WithoutCancel(ctx)
	tx, err := m.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				m.logger.Warn("rollback failed", zap.String("run_id", result.RunID), zap.Error(rbErr))
			}
		}
	}()

	if err = m.repo.ReplaceForScope(ctx, tx, result.Term, batchIDs, timetables); err != nil {
		m.logger.Error("timetable replace failed", zap.String("run_id", result.RunID), zap.Error(err))
		err = appErrors.WrapAs(appErrors.ErrStorage, err, "")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.WrapAs(appErrors.ErrStorage, err, "failed to commit timetables")
		return nil, err
	}

	m.logger.Info("timetables materialized",
		zap.String("run_id", result.RunID),
		zap.String("term", string(result.Term)),
		zap.Int("timetables", len(timetables)),
		zap.Int("placements", len(result.Placements)),
		zap.Int("conflicts", len(result.Conflicts)),
	)
	return timetables, nil
}

// BuildTimetables groups a result into one timetable per planned batch, in planning order. Sequence
// numbers restart at zero within each timetable.
func BuildTimetables(result *scheduler.Result, generatedAt time.Time) []models.Timetable {
	timetables := make([]models.Timetable, 0, len(result.Batches))
	for _, b := range result.Batches {
		placements := result.PlacementsFor(b.ID)
		for i := range placements {
			placements[i].Seq = i
		}
		conflicts := result.ConflictsFor(b.ID)
		for i := range conflicts {
			conflicts[i].Seq = i
		}
		timetables = append(timetables, models.Timetable{
			RunID:        result.RunID,
			BatchID:      b.ID,
			DepartmentID: b.DepartmentID,
			Semester:     b.Semester,
			Term:         result.Term,
			Signature:    scheduler.Signature(placements),
			GeneratedAt:  generatedAt,
			Placements:   placements,
			Conflicts:    conflicts,
		})
	}
	return timetables
}
