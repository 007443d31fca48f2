package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/institute-timetable/internal/models"
)

const (
	timetableColumns = `id, run_id, batch_id, department_id, semester, term, signature, generated_at, created_at`
	placementColumns = `id, timetable_id, seq, subject_id, faculty_id, room_id, batch_id, department_id, day, start_slot, duration, is_lab, occurrence, created_at`
	conflictColumns  = `id, timetable_id, seq, subject_id, batch_id, reason, occurrence, message`
)

// TimetableRepository persists generated timetables with their placements and conflicts.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ReplaceForScope deletes the timetables of the given batches for the term and inserts the new
// ones. Callers pass a transaction so the swap is all or nothing.
func (r *TimetableRepository) ReplaceForScope(ctx context.Context, exec sqlx.ExtContext, term models.Term, batchIDs []string, timetables []models.Timetable) error {
	if len(batchIDs) == 0 {
		return fmt.Errorf("replace timetables: scope has no batches")
	}
	target := r.exec(exec)

	const deleteQuery = `DELETE FROM timetables WHERE term = $1 AND batch_id = ANY($2)`
	if _, err := target.ExecContext(ctx, deleteQuery, term, pq.Array(batchIDs)); err != nil {
		return fmt.Errorf("delete timetables for scope: %w", err)
	}

	for i := range timetables {
		if err := r.insert(ctx, target, &timetables[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *TimetableRepository) insert(ctx context.Context, target sqlx.ExtContext, timetable *models.Timetable) error {
	now := time.Now().UTC()
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	if timetable.GeneratedAt.IsZero() {
		timetable.GeneratedAt = now
	}

	const timetableQuery = `INSERT INTO timetables (` + timetableColumns + `)
VALUES (:id, :run_id, :batch_id, :department_id, :semester, :term, :signature, :generated_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, timetableQuery, timetable); err != nil {
		return fmt.Errorf("insert timetable for batch %s: %w", timetable.BatchID, err)
	}

	const placementQuery = `INSERT INTO timetable_placements (` + placementColumns + `)
VALUES (:id, :timetable_id, :seq, :subject_id, :faculty_id, :room_id, :batch_id, :department_id, :day, :start_slot, :duration, :is_lab, :occurrence, :created_at)`
	for i := range timetable.Placements {
		p := &timetable.Placements[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.TimetableID = timetable.ID
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, placementQuery, p); err != nil {
			return fmt.Errorf("insert timetable placement: %w", err)
		}
	}

	const conflictQuery = `INSERT INTO timetable_conflicts (` + conflictColumns + `)
VALUES (:id, :timetable_id, :seq, :subject_id, :batch_id, :reason, :occurrence, :message)`
	for i := range timetable.Conflicts {
		c := &timetable.Conflicts[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.TimetableID = timetable.ID
		if _, err := sqlx.NamedExecContext(ctx, target, conflictQuery, c); err != nil {
			return fmt.Errorf("insert timetable conflict: %w", err)
		}
	}
	return nil
}

// List returns timetable headers matching the filter, without placements.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetables`
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Term != "" {
		conditions = append(conditions, fmt.Sprintf("term = $%d", len(args)+1))
		args = append(args, filter.Term)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY department_id ASC, semester ASC, batch_id ASC"

	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query, args...); err != nil {
		return nil, fmt.Errorf("list timetables: %w", err)
	}
	return timetables, nil
}

// FindByID loads a timetable header.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT ` + timetableColumns + ` FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// FindByBatch loads the timetable header of a batch for a term.
func (r *TimetableRepository) FindByBatch(ctx context.Context, batchID string, term models.Term) (*models.Timetable, error) {
	const query = `SELECT ` + timetableColumns + ` FROM timetables WHERE batch_id = $1 AND term = $2`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, batchID, term); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// ListPlacements returns the placements of a timetable in placement order.
func (r *TimetableRepository) ListPlacements(ctx context.Context, timetableID string) ([]models.Placement, error) {
	const query = `SELECT ` + placementColumns + ` FROM timetable_placements WHERE timetable_id = $1 ORDER BY seq ASC`
	var placements []models.Placement
	if err := r.db.SelectContext(ctx, &placements, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable placements: %w", err)
	}
	return placements, nil
}

// ListConflicts returns the conflicts of a timetable in report order.
func (r *TimetableRepository) ListConflicts(ctx context.Context, timetableID string) ([]models.Conflict, error) {
	const query = `SELECT ` + conflictColumns + ` FROM timetable_conflicts WHERE timetable_id = $1 ORDER BY seq ASC`
	var conflicts []models.Conflict
	if err := r.db.SelectContext(ctx, &conflicts, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable conflicts: %w", err)
	}
	return conflicts, nil
}

// ListPlacementsForTerm returns persisted placements of the term, leaving out the excluded batches.
func (r *TimetableRepository) ListPlacementsForTerm(ctx context.Context, term models.Term, excludeBatchIDs []string) ([]models.Placement, error) {
	const query = `SELECT p.id, p.timetable_id, p.seq, p.subject_id, p.faculty_id, p.room_id, p.batch_id, p.department_id,
p.day, p.start_slot, p.duration, p.is_lab, p.occurrence, p.created_at
FROM timetable_placements p
JOIN timetables t ON t.id = p.timetable_id
WHERE t.term = $1 AND NOT (p.batch_id = ANY($2))
ORDER BY t.batch_id ASC, p.seq ASC`
	if excludeBatchIDs == nil {
		excludeBatchIDs = []string{}
	}
	var placements []models.Placement
	if err := r.db.SelectContext(ctx, &placements, query, term, pq.Array(excludeBatchIDs)); err != nil {
		return nil, fmt.Errorf("list placements for term: %w", err)
	}
	return placements, nil
}

// Delete removes a timetable; placements and conflicts cascade.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM timetables WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
