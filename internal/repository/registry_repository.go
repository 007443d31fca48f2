package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-timetable/internal/models"
)

// RegistryRepository reads the source entities a generation run needs. Rows come back in
// registration order (created_at, then id) since the planner's tie-breaks depend on it.
type RegistryRepository struct {
	db *sqlx.DB
}

// NewRegistryRepository constructs the repository.
func NewRegistryRepository(db *sqlx.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// ListDepartments returns every department.
func (r *RegistryRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, name, code, created_at FROM departments ORDER BY created_at ASC, id ASC`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// ListBatches returns every batch with its subject list and availability.
func (r *RegistryRepository) ListBatches(ctx context.Context) ([]models.Batch, error) {
	const query = `SELECT id, name, semester, strength, department_id, subject_ids, avail_days, avail_slots, created_at
FROM batches ORDER BY created_at ASC, id ASC`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// ListSubjects returns every subject.
func (r *RegistryRepository) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	const query = `SELECT id, name, code, department_id, semester, credits, is_lab, hours_per_week, lab_block_size, duration_slots, faculty_id, created_at
FROM subjects ORDER BY created_at ASC, id ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// ListFaculty returns every faculty member with eligibility, availability and ceilings.
func (r *RegistryRepository) ListFaculty(ctx context.Context) ([]models.Faculty, error) {
	const query = `SELECT id, name, account_id, department_id, subject_ids, preferred_days, preferred_slots,
max_hours_per_week, max_lab_hours_per_week, max_lec_hours_per_week, created_at
FROM faculty ORDER BY created_at ASC, id ASC`
	var faculty []models.Faculty
	if err := r.db.SelectContext(ctx, &faculty, query); err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}
	return faculty, nil
}

// ListRooms returns every room.
func (r *RegistryRepository) ListRooms(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT id, name, capacity, type, department_id, avail_days, avail_slots, created_at
FROM rooms ORDER BY created_at ASC, id ASC`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
