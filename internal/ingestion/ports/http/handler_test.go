package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/pkg/testutil"
)

type fakeStarter struct {
	job *domain.CollectionJob
	err error
}

func (f *fakeStarter) StartCollection(ctx context.Context, supplierTag string, mode domain.CollectionMode, filters domain.Filters, maxProducts int) (*domain.CollectionJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type fakeJobs struct {
	byID   map[string]*domain.CollectionJob
	recent []*domain.CollectionJob
}

func (f *fakeJobs) FindByID(ctx context.Context, jobID string) (*domain.CollectionJob, error) {
	return f.byID[jobID], nil
}
func (f *fakeJobs) ListRecent(ctx context.Context, supplierTag string, limit int) ([]*domain.CollectionJob, error) {
	return f.recent, nil
}

type fakeSchedules struct {
	saved  *domain.Schedule
	byID   map[string]*domain.Schedule
}

func (f *fakeSchedules) Save(ctx context.Context, s *domain.Schedule) error {
	f.saved = s
	if f.byID == nil {
		f.byID = make(map[string]*domain.Schedule)
	}
	f.byID[s.ScheduleID] = s
	return nil
}
func (f *fakeSchedules) FindByID(ctx context.Context, scheduleID string) (*domain.Schedule, error) {
	return f.byID[scheduleID], nil
}

type fakeRegistrar struct {
	registered []*domain.Schedule
}

func (f *fakeRegistrar) Register(sched *domain.Schedule) error {
	f.registered = append(f.registered, sched)
	return nil
}

type fakeCapability struct{}

func (fakeCapability) SupplierTag() string { return "zentrade" }
func (fakeCapability) Authenticate(ctx context.Context) error { return nil }
func (fakeCapability) TestConnection(ctx context.Context) (adapter.ConnectionTestResult, error) {
	return adapter.ConnectionTestResult{OK: true, LatencyMS: 5}, nil
}
func (fakeCapability) ListCategories(ctx context.Context) ([]adapter.Category, error) { return nil, nil }
func (fakeCapability) Collect(ctx context.Context, mode domain.CollectionMode, filters domain.Filters, max int) <-chan adapter.Result {
	out := make(chan adapter.Result)
	close(out)
	return out
}
func (fakeCapability) FetchDetail(ctx context.Context, id string) (*domain.RawRecord, error) { return nil, nil }
func (fakeCapability) FetchStock(ctx context.Context, ids []string) (map[string]adapter.StockInfo, error) {
	return nil, nil
}
func (fakeCapability) State() adapter.State { return adapter.StateReady }

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandler_StartCollectionReturnsAcceptedWithJobView(t *testing.T) {
	// Arrange
	job := domain.NewCollectionJob("job-1", "zentrade", domain.ModeAll, domain.DefaultFilters(), 0)
	starter := &fakeStarter{job: job}
	h := New(starter, &fakeJobs{}, &fakeSchedules{}, &fakeRegistrar{}, nil, func() string { return "job-1" })
	router := newTestRouter(h)

	body, _ := json.Marshal(map[string]any{"mode": "all", "max_products": 0})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingestion/suppliers/zentrade/collections", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rec, req)

	// Assert
	testutil.AssertEqual(t, rec.Code, http.StatusAccepted, "starting a collection should return 202")
	var view jobStatusView
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &view), "response should decode as a job view")
	testutil.AssertEqual(t, view.JobID, "job-1", "response should carry the started job's id")
}

func TestHandler_GetCollectionStatusReturns404WhenAbsent(t *testing.T) {
	// Arrange
	h := New(&fakeStarter{}, &fakeJobs{byID: map[string]*domain.CollectionJob{}}, &fakeSchedules{}, &fakeRegistrar{}, nil, func() string { return "x" })
	router := newTestRouter(h)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingestion/collections/missing", nil)
	rec := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rec, req)

	// Assert
	testutil.AssertEqual(t, rec.Code, http.StatusNotFound, "an unknown job id should 404")
}

func TestHandler_TestConnectionDelegatesToAdapter(t *testing.T) {
	// Arrange
	adapters := func(ctx context.Context, supplierTag string) (adapter.Capability, error) {
		return fakeCapability{}, nil
	}
	h := New(&fakeStarter{}, &fakeJobs{}, &fakeSchedules{}, &fakeRegistrar{}, adapters, func() string { return "x" })
	router := newTestRouter(h)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingestion/suppliers/zentrade/test_connection", nil)
	rec := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rec, req)

	// Assert
	testutil.AssertEqual(t, rec.Code, http.StatusOK, "test connection should succeed")
	var result adapter.ConnectionTestResult
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &result), "response should decode as a connection test result")
	testutil.AssertTrue(t, result.OK, "fake capability reports a healthy connection")
}

func TestHandler_CreateScheduleRegistersWithScheduler(t *testing.T) {
	// Arrange
	registrar := &fakeRegistrar{}
	h := New(&fakeStarter{}, &fakeJobs{}, &fakeSchedules{}, registrar, nil, func() string { return "sched-1" })
	router := newTestRouter(h)

	body, _ := json.Marshal(map[string]any{
		"supplier_tag":    "zentrade",
		"name":            "nightly full sync",
		"cron_expression": "0 2 * * *",
		"mode":            "all",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingestion/schedules", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rec, req)

	// Assert
	testutil.AssertEqual(t, rec.Code, http.StatusCreated, "creating a valid schedule should return 201")
	testutil.AssertLen(t, registrar.registered, 1, "the new schedule should be pushed into the live cron runner")
}

func TestHandler_PauseScheduleDeactivatesAndReregisters(t *testing.T) {
	// Arrange
	sched := domain.NewSchedule("sched-1", "zentrade", "nightly", "0 2 * * *", "UTC", domain.ModeAll, domain.DefaultFilters(), 0)
	schedules := &fakeSchedules{byID: map[string]*domain.Schedule{"sched-1": sched}}
	registrar := &fakeRegistrar{}
	h := New(&fakeStarter{}, &fakeJobs{}, schedules, registrar, nil, func() string { return "x" })
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingestion/schedules/sched-1/pause", nil)
	rec := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rec, req)

	// Assert
	testutil.AssertEqual(t, rec.Code, http.StatusOK, "pausing an existing schedule should succeed")
	testutil.AssertFalse(t, sched.Active, "pause should deactivate the schedule")
	testutil.AssertLen(t, registrar.registered, 1, "pause should re-register so the cron runner drops the entry")
}
