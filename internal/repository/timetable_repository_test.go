package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-timetable/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTimetableRepositoryReplaceForScopeDeletesBeforeInsert(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE term = $1 AND batch_id = ANY($2)")).
		WithArgs("odd", `{"cse-1a"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WithArgs(sqlmock.AnyArg(), "run-1", "cse-1a", "cse", 1, "odd", "sig", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_placements")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 0, "math", "f-ada", "r-101", "cse-1a", "cse", "mon", 1, 1, false, 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_conflicts")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 0, "math", "cse-1a", "no_free_slot", 2, "full").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	timetables := []models.Timetable{{
		RunID: "run-1", BatchID: "cse-1a", DepartmentID: "cse", Semester: 1, Term: models.TermOdd, Signature: "sig",
		Placements: []models.Placement{{SubjectID: "math", FacultyID: "f-ada", RoomID: "r-101", BatchID: "cse-1a", DepartmentID: "cse",
			Day: models.Monday, StartSlot: 1, Duration: 1, Occurrence: 1}},
		Conflicts: []models.Conflict{{SubjectID: "math", BatchID: "cse-1a", Reason: models.ReasonNoFreeSlot, Occurrence: 2, Message: "full"}},
	}}

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceForScope(context.Background(), tx, models.TermOdd, []string{"cse-1a"}, timetables))
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, timetables[0].ID)
	assert.Equal(t, timetables[0].ID, timetables[0].Placements[0].TimetableID)
	assert.Equal(t, timetables[0].ID, timetables[0].Conflicts[0].TimetableID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryReplaceForScopeStopsOnInsertError(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).WillReturnError(errors.New("disk full"))

	err := repo.ReplaceForScope(context.Background(), nil, models.TermOdd, []string{"b1"}, []models.Timetable{{BatchID: "b1"}, {BatchID: "b2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryReplaceForScopeRequiresBatches(t *testing.T) {
	db, _, cleanup := newTimetableRepoMock(t)
	defer cleanup()

	err := NewTimetableRepository(db).ReplaceForScope(context.Background(), nil, models.TermOdd, nil, nil)
	assert.Error(t, err)
}

func TestTimetableRepositoryList(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "run_id", "batch_id", "department_id", "semester", "term", "signature", "generated_at", "created_at"}).
		AddRow("tt-1", "run-1", "cse-1a", "cse", 1, "odd", "sig", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE department_id = $1 AND term = $2 ORDER BY department_id ASC, semester ASC, batch_id ASC")).
		WithArgs("cse", "odd").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.TimetableFilter{DepartmentID: "cse", Term: models.TermOdd})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.TermOdd, list[0].Term)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindByBatchNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE batch_id = $1 AND term = $2")).
		WithArgs("cse-1a", "even").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByBatch(context.Background(), "cse-1a", models.TermEven)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListPlacements(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "timetable_id", "seq", "subject_id", "faculty_id", "room_id", "batch_id", "department_id", "day", "start_slot", "duration", "is_lab", "occurrence", "created_at"}).
		AddRow("p-1", "tt-1", 0, "lab", "f-1", "lab-1", "cse-1a", "cse", "tue", 3, 2, true, 1, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_placements WHERE timetable_id = $1 ORDER BY seq ASC")).
		WithArgs("tt-1").
		WillReturnRows(rows)

	placements, err := repo.ListPlacements(context.Background(), "tt-1")
	require.NoError(t, err)
	require.Len(t, placements, 1)
	assert.Equal(t, models.Tuesday, placements[0].Day)
	assert.Equal(t, models.SlotRange{Start: 3, Length: 2}, placements[0].Range())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListPlacementsForTerm(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "timetable_id", "seq", "subject_id", "faculty_id", "room_id", "batch_id", "department_id", "day", "start_slot", "duration", "is_lab", "occurrence", "created_at"}).
		AddRow("p-9", "tt-9", 0, "math", "f-ada", "r-101", "cse-1b", "cse", "mon", 1, 1, false, 1, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.term = $1 AND NOT (p.batch_id = ANY($2))")).
		WithArgs("odd", `{}`).
		WillReturnRows(rows)

	placements, err := repo.ListPlacementsForTerm(context.Background(), models.TermOdd, nil)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	assert.Equal(t, "cse-1b", placements[0].BatchID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs("tt-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "tt-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "tt-2"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
