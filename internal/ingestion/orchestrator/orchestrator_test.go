package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/normalize"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/persistence/postgres"
	"github.com/sunwoo0067/wholesale-ingest/pkg/metrics"
	"github.com/sunwoo0067/wholesale-ingest/pkg/testutil"
)

func init() {
	// The orchestrator records to the process-wide metrics, which main
	// initializes at startup.
	metrics.Init("orchestrator_test")
}

type fakeCapability struct {
	supplierTag string
	records     []*domain.RawRecord
	authErr     error
}

func (f *fakeCapability) SupplierTag() string { return f.supplierTag }
func (f *fakeCapability) Authenticate(ctx context.Context) error { return f.authErr }
func (f *fakeCapability) TestConnection(ctx context.Context) (adapter.ConnectionTestResult, error) {
	return adapter.ConnectionTestResult{OK: true}, nil
}
func (f *fakeCapability) ListCategories(ctx context.Context) ([]adapter.Category, error) { return nil, nil }
func (f *fakeCapability) Collect(ctx context.Context, mode domain.CollectionMode, filters domain.Filters, max int) <-chan adapter.Result {
	out := make(chan adapter.Result, len(f.records))
	for _, r := range f.records {
		out <- adapter.Result{Record: r}
	}
	close(out)
	return out
}
func (f *fakeCapability) FetchDetail(ctx context.Context, id string) (*domain.RawRecord, error) {
	return nil, nil
}
func (f *fakeCapability) FetchStock(ctx context.Context, ids []string) (map[string]adapter.StockInfo, error) {
	return nil, nil
}
func (f *fakeCapability) State() adapter.State { return adapter.StateReady }

type fakeProductStore struct {
	mu      sync.Mutex
	upserts int
}

func (s *fakeProductStore) Upsert(ctx context.Context, p *domain.CanonicalProduct) (postgres.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	return postgres.UpsertResult{Inserted: true}, nil
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs []*domain.CollectionJob
}

func (s *fakeJobStore) Save(ctx context.Context, job *domain.CollectionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs = append(s.jobs, &cp)
	return nil
}

func (s *fakeJobStore) last() *domain.CollectionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return nil
	}
	return s.jobs[len(s.jobs)-1]
}

func rawRecord(supplierTag, id, name string, price int64) *domain.RawRecord {
	return &domain.RawRecord{
		SupplierTag: supplierTag,
		FetchedAt:   time.Now().UTC(),
		Payload: map[string]any{
			"product_id":      id,
			"name":            name,
			"wholesale_price": price,
			"stock_quantity":  float64(5),
		},
	}
}

func testFieldMaps() map[string]normalize.FieldMap {
	return map[string]normalize.FieldMap{
		"zentrade": {
			SupplierProductID: "product_id",
			Name:              "name",
			WholesalePrice:    "wholesale_price",
			StockQuantity:     "stock_quantity",
		},
	}
}

func waitForJobState(t *testing.T, store *fakeJobStore, state domain.JobState, timeout time.Duration) *domain.CollectionJob {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if job := store.last(); job != nil && job.State == state {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for job state %s, last seen: %+v", state, store.last())
	return nil
}

func TestStartCollection_CompletesAndUpsertsMatchingProducts(t *testing.T) {
	// Arrange
	records := []*domain.RawRecord{
		rawRecord("zentrade", "1", "Apple Wireless Earbuds", 10000),
		rawRecord("zentrade", "2", "Apple Wireless Earbuds Two", 12000),
	}
	adapters := func(ctx context.Context, supplierTag string) (adapter.Capability, error) {
		return &fakeCapability{supplierTag: supplierTag, records: records}, nil
	}
	products := &fakeProductStore{}
	jobs := &fakeJobStore{}
	o := New(adapters, products, jobs, testFieldMaps(), nil)

	// Act
	job, err := o.StartCollection(context.Background(), "zentrade", domain.ModeAll, domain.DefaultFilters(), 0)

	// Assert
	testutil.AssertNoError(t, err, "StartCollection should not fail for a fresh supplier")
	testutil.AssertNotNil(t, job, "job should be returned immediately")
	final := waitForJobState(t, jobs, domain.JobCompleted, time.Second)
	testutil.AssertEqual(t, final.ProductsFound, 2, "both records should be counted as found")
	testutil.AssertEqual(t, final.ProductsCollected, 2, "both records pass the default stock_only filter")

	products.mu.Lock()
	defer products.mu.Unlock()
	testutil.AssertEqual(t, products.upserts, 2, "both normalized products should reach the store")
}

func TestStartCollection_RejectsConcurrentRunForSameSupplier(t *testing.T) {
	// Arrange
	block := make(chan struct{})
	adapters := func(ctx context.Context, supplierTag string) (adapter.Capability, error) {
		<-block
		return &fakeCapability{supplierTag: supplierTag}, nil
	}
	products := &fakeProductStore{}
	jobs := &fakeJobStore{}
	o := New(adapters, products, jobs, testFieldMaps(), nil)

	// Act
	_, err := o.StartCollection(context.Background(), "zentrade", domain.ModeAll, domain.DefaultFilters(), 0)
	testutil.AssertNoError(t, err, "first run should start")
	_, secondErr := o.StartCollection(context.Background(), "zentrade", domain.ModeAll, domain.DefaultFilters(), 0)
	close(block)

	// Assert
	testutil.AssertError(t, secondErr, "second run for the same supplier should be rejected")
}

func TestStartCollection_AuthFailureMarksJobFailed(t *testing.T) {
	// Arrange
	adapters := func(ctx context.Context, supplierTag string) (adapter.Capability, error) {
		return &fakeCapability{supplierTag: supplierTag, authErr: errors.New("invalid credentials")}, nil
	}
	products := &fakeProductStore{}
	jobs := &fakeJobStore{}
	o := New(adapters, products, jobs, testFieldMaps(), nil)

	// Act
	_, err := o.StartCollection(context.Background(), "zentrade", domain.ModeAll, domain.DefaultFilters(), 0)

	// Assert
	testutil.AssertNoError(t, err, "StartCollection itself should succeed; the failure happens async")
	final := waitForJobState(t, jobs, domain.JobFailed, time.Second)
	testutil.AssertEqual(t, final.LastError(), "invalid credentials", "job should record the auth failure")
}

func TestTrigger_ReturnsFalseWithoutErrorWhenAlreadyRunning(t *testing.T) {
	// Arrange
	block := make(chan struct{})
	adapters := func(ctx context.Context, supplierTag string) (adapter.Capability, error) {
		<-block
		return &fakeCapability{supplierTag: supplierTag}, nil
	}
	products := &fakeProductStore{}
	jobs := &fakeJobStore{}
	o := New(adapters, products, jobs, testFieldMaps(), nil)
	_, err := o.StartCollection(context.Background(), "zentrade", domain.ModeAll, domain.DefaultFilters(), 0)
	testutil.AssertNoError(t, err, "first run should start")

	// Act
	ran, triggerErr := o.Trigger(context.Background(), "zentrade", domain.ModeAll, domain.DefaultFilters(), 0)
	close(block)

	// Assert
	testutil.AssertNoError(t, triggerErr, "a skipped trigger due to single-flight is not an error")
	testutil.AssertFalse(t, ran, "trigger should report that no new run was started")
}
