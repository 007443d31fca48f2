package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-timetable/internal/dto"
	"github.com/noah-isme/institute-timetable/internal/models"
	"github.com/noah-isme/institute-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/institute-timetable/pkg/errors"
)

func strPtr(s string) *string { return &s }

func singleBatchSnapshot() scheduler.Snapshot {
	return scheduler.ApplyDefaults(scheduler.Snapshot{
		Departments: []models.Department{{ID: "cse", Name: "Computer Science"}},
		Batches: []models.Batch{{
			ID: "cse-1a", Name: "CSE 1A", Semester: 1, Strength: 60, DepartmentID: "cse",
			SubjectIDs: []string{"math"},
			AvailDays:  models.WeekdayList{models.Monday, models.Tuesday, models.Wednesday, models.Thursday, models.Friday},
			AvailSlots: models.SlotList{1, 2, 3, 4, 5, 6},
		}},
		Subjects: []models.Subject{{
			ID: "math", Name: "Mathematics", Code: "MA101", DepartmentID: "cse", Semester: 1,
			HoursPerWeek: 3, DurationSlots: 1, FacultyID: strPtr("f-ada"),
		}},
		Faculty: []models.Faculty{{ID: "f-ada", Name: "Ada", DepartmentID: "cse", SubjectIDs: []string{"math"}}},
		Rooms:   []models.Room{{ID: "r-101", Name: "Hall 101", Capacity: 120, Type: models.RoomTypeLecture, DepartmentID: "cse"}},
	})
}

func twoBatchSnapshot() scheduler.Snapshot {
	snap := singleBatchSnapshot()
	second := snap.Batches[0]
	second.ID, second.Name = "cse-1b", "CSE 1B"
	snap.Batches = append(snap.Batches, second)
	return snap
}

type stubRegistryLoader struct {
	snap    scheduler.Snapshot
	err     error
	terms   []models.Term
	respect []bool
}

func (s *stubRegistryLoader) Load(_ context.Context, term models.Term, _ scheduler.Scope, respectExisting bool) (scheduler.Snapshot, error) {
	s.terms = append(s.terms, term)
	s.respect = append(s.respect, respectExisting)
	return s.snap, s.err
}

// memTimetableStore keeps timetables in memory and implements both the writer and the reader.
type memTimetableStore struct {
	mu           sync.Mutex
	timetables   []models.Timetable
	seq          int
	replaceErr   error
	findByBatch  int
	replaceCalls int
}

func (s *memTimetableStore) ReplaceForScope(_ context.Context, _ sqlx.ExtContext, term models.Term, batchIDs []string, timetables []models.Timetable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceCalls++
	if s.replaceErr != nil {
		return s.replaceErr
	}
	replaced := make(map[string]bool, len(batchIDs))
	for _, id := range batchIDs {
		replaced[id] = true
	}
	kept := s.timetables[:0]
	for _, t := range s.timetables {
		if t.Term == term && replaced[t.BatchID] {
			continue
		}
		kept = append(kept, t)
	}
	s.timetables = kept
	for i := range timetables {
		s.seq++
		timetables[i].ID = fmt.Sprintf("tt-%d", s.seq)
		s.timetables = append(s.timetables, timetables[i])
	}
	return nil
}

func (s *memTimetableStore) List(_ context.Context, filter models.TimetableFilter) ([]models.Timetable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Timetable
	for _, t := range s.timetables {
		if filter.DepartmentID != "" && t.DepartmentID != filter.DepartmentID {
			continue
		}
		if filter.Term != "" && t.Term != filter.Term {
			continue
		}
		header := t
		header.Placements, header.Conflicts = nil, nil
		out = append(out, header)
	}
	return out, nil
}

func (s *memTimetableStore) find(match func(models.Timetable) bool) (*models.Timetable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timetables {
		if match(t) {
			header := t
			header.Placements, header.Conflicts = nil, nil
			return &header, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memTimetableStore) FindByID(_ context.Context, id string) (*models.Timetable, error) {
	return s.find(func(t models.Timetable) bool { return t.ID == id })
}

func (s *memTimetableStore) FindByBatch(_ context.Context, batchID string, term models.Term) (*models.Timetable, error) {
	s.findByBatch++
	return s.find(func(t models.Timetable) bool { return t.BatchID == batchID && t.Term == term })
}

func (s *memTimetableStore) ListPlacements(_ context.Context, id string) ([]models.Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timetables {
		if t.ID == id {
			return append([]models.Placement(nil), t.Placements...), nil
		}
	}
	return nil, nil
}

func (s *memTimetableStore) ListConflicts(_ context.Context, id string) ([]models.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timetables {
		if t.ID == id {
			return append([]models.Conflict(nil), t.Conflicts...), nil
		}
	}
	return nil, nil
}

func (s *memTimetableStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.timetables {
		if t.ID == id {
			s.timetables = append(s.timetables[:i], s.timetables[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type stubLocker struct {
	held     map[string]bool
	err      error
	released []string
}

func (l *stubLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return "", false, nil
	}
	l.held[key] = true
	return "token-" + key, true, nil
}

func (l *stubLocker) Release(_ context.Context, key, _ string) error {
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

type memCacheRepository struct {
	items    map[string][]byte
	deleted  []string
	patterns []string
}

func newMemCacheRepository() *memCacheRepository {
	return &memCacheRepository{items: map[string][]byte{}}
}

func (c *memCacheRepository) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCacheRepository) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func (c *memCacheRepository) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.items, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

func (c *memCacheRepository) DeleteByPattern(_ context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	for key := range c.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.items, key)
		}
	}
	return nil
}

type timetableFixture struct {
	svc     *TimetableService
	loader  *stubRegistryLoader
	store   *memTimetableStore
	locks   *stubLocker
	cache   *memCacheRepository
	metrics *MetricsService
}

func newTimetableFixture(t *testing.T, snap scheduler.Snapshot, cfg TimetableServiceConfig, commits int) *timetableFixture {
	t.Helper()
	provider, mock := newTxProviderMock(t)
	for i := 0; i < commits; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })

	f := &timetableFixture{
		loader: &stubRegistryLoader{snap: snap},
		store:  &memTimetableStore{},
		locks:  &stubLocker{},
		cache:  newMemCacheRepository(),
	}
	f.metrics = NewMetricsService()
	cache := NewCacheService(f.cache, f.metrics, time.Minute, nil, true)
	f.svc = NewTimetableService(f.loader, NewMaterializer(f.store, provider, nil), f.store, f.locks, nil, cache, f.metrics, nil, nil, cfg)
	f.svc.now = func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) }
	return f
}

func TestTimetableServiceGeneratePersistsTimetable(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{RespectExisting: true}, 1)

	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DepartmentID: "cse", Term: "odd"})
	require.NoError(t, err)

	assert.Equal(t, dto.GenerationStatusCompleted, resp.Status)
	assert.Equal(t, models.TermOdd, resp.Term)
	assert.Equal(t, []int{1, 3, 5, 7}, resp.Semesters)
	require.Len(t, resp.Placements, 3)
	days := []models.Weekday{resp.Placements[0].Day, resp.Placements[1].Day, resp.Placements[2].Day}
	assert.Equal(t, []models.Weekday{models.Monday, models.Tuesday, models.Wednesday}, days)
	for _, p := range resp.Placements {
		assert.Equal(t, []int{1}, p.Slots)
		assert.Equal(t, "f-ada", p.Faculty)
		assert.Equal(t, "r-101", p.Room)
	}
	assert.Empty(t, resp.Conflicts)
	assert.Equal(t, 3, resp.Stats.Placed)
	require.Len(t, resp.Timetables, 1)
	assert.NotEmpty(t, resp.Timetables[0].ID)

	require.Len(t, f.store.timetables, 1)
	assert.Equal(t, "cse-1a", f.store.timetables[0].BatchID)
	assert.Equal(t, []bool{true}, f.loader.respect)
	assert.Equal(t, []string{"odd"}, f.locks.released)
}

func TestTimetableServiceGenerateReplacesPriorTimetable(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 2)
	req := dto.GenerateTimetableRequest{BatchIDs: []string{"cse-1a"}, Term: "odd"}

	first, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.store.timetables, 1)
	assert.Equal(t, second.Timetables[0].ID, f.store.timetables[0].ID)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Signature, second.Signature)
	assert.Len(t, f.store.timetables[0].Placements, 3)
}

func TestTimetableServiceGenerateDryRunSkipsStorage(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 0)

	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{All: true, Term: "odd", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, dto.GenerationStatusDryRun, resp.Status)
	require.Len(t, resp.Timetables, 1)
	assert.Empty(t, resp.Timetables[0].ID)
	assert.Zero(t, f.store.replaceCalls)
}

func TestTimetableServiceGenerateValidation(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 0)

	cases := map[string]dto.GenerateTimetableRequest{
		"empty scope": {},
		"bad term":    {All: true, Term: "summer"},
		"blank batch": {BatchIDs: []string{""}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Generate(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
		})
	}
	assert.Empty(t, f.loader.terms)
}

func TestTimetableServiceGenerateDefaultsTermFromClock(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 0)
	f.svc.now = func() time.Time { return time.Date(2027, 2, 10, 9, 0, 0, 0, time.UTC) }

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DepartmentID: "cse"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Equal(t, []models.Term{models.TermEven}, f.loader.terms)
}

func TestTimetableServiceGenerateRunInProgress(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 0)
	f.locks.held = map[string]bool{"odd": true}

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{All: true, Term: "odd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRunInProgress))
	assert.Empty(t, f.loader.terms)
}

func TestTimetableServiceGenerateStorageFailureKeepsPrior(t *testing.T) {
	provider, mock := newTxProviderMock(t)
	store := &memTimetableStore{timetables: []models.Timetable{{ID: "old", BatchID: "cse-1a", Term: models.TermOdd}}, replaceErr: errors.New("disk full")}
	svc := NewTimetableService(&stubRegistryLoader{snap: singleBatchSnapshot()}, NewMaterializer(store, provider, nil), store, &stubLocker{}, nil, nil, nil, nil, nil, TimetableServiceConfig{})

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{All: true, Term: "odd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrStorage))
	require.Len(t, store.timetables, 1)
	assert.Equal(t, "old", store.timetables[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateCanceled(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Generate(ctx, dto.GenerateTimetableRequest{All: true, Term: "odd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRunCanceled))
	assert.Zero(t, f.store.replaceCalls)
	assert.Equal(t, []string{"odd"}, f.locks.released)
}

func TestTimetableServiceGenerateBatchLimit(t *testing.T) {
	f := newTimetableFixture(t, twoBatchSnapshot(), TimetableServiceConfig{MaxBatchesPerRun: 1}, 0)

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DepartmentID: "cse", Term: "odd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.runs.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, []string{"odd"}, f.locks.released)
}

func TestTimetableServiceGenerateRespectsSkippedBatchTimetable(t *testing.T) {
	scopes := map[string]dto.GenerateTimetableRequest{
		"department": {DepartmentID: "cse", Term: "odd"},
		"all":        {All: true, Term: "odd"},
	}
	for name, req := range scopes {
		t.Run(name, func(t *testing.T) {
			snap := twoBatchSnapshot()
			snap.Batches[1].Strength = 0
			snap.Existing = []models.Placement{{BatchID: "cse-1b", SubjectID: "math", FacultyID: "f-ada", RoomID: "r-101", Day: models.Monday, StartSlot: 1, Duration: 1}}
			f := newTimetableFixture(t, snap, TimetableServiceConfig{RespectExisting: true}, 1)
			f.store.timetables = []models.Timetable{{ID: "old-1b", BatchID: "cse-1b", DepartmentID: "cse", Term: models.TermOdd, Placements: snap.Existing}}

			resp, err := f.svc.Generate(context.Background(), req)
			require.NoError(t, err)
			require.Len(t, resp.Timetables, 1)
			assert.Equal(t, "cse-1a", resp.Timetables[0].BatchID)
			require.Len(t, resp.Placements, 3)
			for _, p := range resp.Placements {
				if p.Day == models.Monday {
					assert.NotContains(t, p.Slots, 1)
				}
			}

			require.Len(t, f.store.timetables, 2)
			assert.Equal(t, "old-1b", f.store.timetables[0].ID)
			assert.Len(t, f.store.timetables[0].Placements, 1)
		})
	}
}

func TestTimetableServiceGenerateReportsConflicts(t *testing.T) {
	snap := singleBatchSnapshot()
	snap.Subjects[0].HoursPerWeek = 40
	f := newTimetableFixture(t, snap, TimetableServiceConfig{}, 1)

	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{All: true, Term: "odd"})
	require.NoError(t, err)
	assert.Equal(t, dto.GenerationStatusCompleted, resp.Status)
	assert.Equal(t, 12, resp.Stats.Placed)
	assert.Equal(t, 28, resp.Stats.Conflicts)
	assert.Equal(t, resp.Stats.Units, resp.Stats.Placed+resp.Stats.Conflicts)
	require.Len(t, f.store.timetables, 1)
	assert.Len(t, f.store.timetables[0].Conflicts, 28)
}

func TestTimetableServiceReadSurface(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 1)
	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{All: true, Term: "odd"})
	require.NoError(t, err)
	id := resp.Timetables[0].ID

	list, err := f.svc.List(context.Background(), dto.TimetableQuery{DepartmentID: "cse", Term: "odd"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Placements)

	view, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, view.Placements, 3)

	_, err = f.svc.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTimetableServiceGetByBatchCachesView(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 1)
	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{All: true, Term: "odd"})
	require.NoError(t, err)

	first, err := f.svc.GetByBatch(context.Background(), "cse-1a", "")
	require.NoError(t, err)
	second, err := f.svc.GetByBatch(context.Background(), "cse-1a", "odd")
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.findByBatch)
	assert.Equal(t, first.Signature, second.Signature)
	assert.Len(t, second.Placements, 3)
	assert.Contains(t, f.cache.items, TimetableCacheKey("cse-1a", models.TermOdd))

	_, err = f.svc.GetByBatch(context.Background(), "cse-9z", "odd")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTimetableServiceGenerateInvalidatesCache(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 2)
	req := dto.GenerateTimetableRequest{All: true, Term: "odd"}
	_, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.GetByBatch(context.Background(), "cse-1a", "odd")
	require.NoError(t, err)

	_, err = f.svc.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.NotContains(t, f.cache.items, TimetableCacheKey("cse-1a", models.TermOdd))
}

func TestTimetableServiceGenerateInvalidatesTermCache(t *testing.T) {
	f := newTimetableFixture(t, twoBatchSnapshot(), TimetableServiceConfig{}, 2)
	f.cache.items[TimetableCacheKey("cse-1a", models.TermOdd)] = []byte("{}")
	f.cache.items[TimetableCacheKey("cse-1b", models.TermOdd)] = []byte("{}")
	f.cache.items[TimetableCacheKey("cse-1a", models.TermEven)] = []byte("{}")

	_, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{DepartmentID: "cse", Term: "odd"})
	require.NoError(t, err)
	assert.Equal(t, []string{TimetableTermCachePattern(models.TermOdd)}, f.cache.patterns)
	assert.NotContains(t, f.cache.items, TimetableCacheKey("cse-1a", models.TermOdd))
	assert.NotContains(t, f.cache.items, TimetableCacheKey("cse-1b", models.TermOdd))
	assert.Contains(t, f.cache.items, TimetableCacheKey("cse-1a", models.TermEven))

	_, err = f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{BatchIDs: []string{"cse-1a"}, Term: "odd"})
	require.NoError(t, err)
	assert.Len(t, f.cache.patterns, 1)
	assert.Equal(t, []string{TimetableCacheKey("cse-1a", models.TermOdd)}, f.cache.deleted)
}

func TestTimetableServiceDelete(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 1)
	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{All: true, Term: "odd"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), resp.Timetables[0].ID))
	assert.Empty(t, f.store.timetables)
	assert.Contains(t, f.cache.deleted, TimetableCacheKey("cse-1a", models.TermOdd))

	err = f.svc.Delete(context.Background(), resp.Timetables[0].ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTimetableServiceExport(t *testing.T) {
	f := newTimetableFixture(t, singleBatchSnapshot(), TimetableServiceConfig{}, 1)
	resp, err := f.svc.Generate(context.Background(), dto.GenerateTimetableRequest{All: true, Term: "odd"})
	require.NoError(t, err)
	id := resp.Timetables[0].ID

	file, err := f.svc.Export(context.Background(), id, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "timetable-cse-1a-odd.csv", file.Filename)
	assert.Contains(t, string(file.Body), "mon,1,1,math,f-ada,r-101,cse-1a,lecture,1")

	file, err = f.svc.Export(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", file.ContentType)

	_, err = f.svc.Export(context.Background(), id, "xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
