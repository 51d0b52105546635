// Package adapter defines the supplier capability set (SPEC_FULL §4.1):
// the single interface every supplier-specific wire client implements, so
// the Collection Orchestrator never branches on supplier identity.
package adapter

import (
	"context"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
)

// Category is a node in a supplier's category tree.
type Category struct {
	Code     string
	Name     string
	ParentCode string
}

// ConnectionTestResult is the reply to test_connection (spec §6).
type ConnectionTestResult struct {
	OK        bool
	LatencyMS int64
	APIInfo   map[string]any
	Error     string
}

// StockInfo is the per-product reply of fetch_stock.
type StockInfo struct {
	Quantity int
	InStock  bool
}

// Result carries either a RawRecord or a terminal error on the adapter's
// output channel, so a single page-boundary failure can end the stream
// without a panic or a lost error (SPEC_FULL §4.1 Go realization).
type Result struct {
	Record *domain.RawRecord
	Err    error
}

// State is the per-adapter-instance lifecycle (spec §4.1).
type State string

const (
	StateUninitialized State = "uninitialized"
	StateAuthenticating State = "authenticating"
	StateReady          State = "ready"
	StateCollecting     State = "collecting"
	StateFailed         State = "failed"
)

// Capability is the polymorphic interface every supplier adapter realizes
// (spec §4.1). A Capability value is never shared between concurrent jobs;
// the orchestrator constructs one per job run.
type Capability interface {
	// SupplierTag identifies which supplier this instance speaks for.
	SupplierTag() string

	// Authenticate establishes or refreshes credentials. Re-invoking it is
	// the only way out of the Failed state.
	Authenticate(ctx context.Context) error

	// TestConnection performs a lightweight connectivity check without
	// starting a collection.
	TestConnection(ctx context.Context) (ConnectionTestResult, error)

	// ListCategories returns the supplier's category tree.
	ListCategories(ctx context.Context) ([]Category, error)

	// Collect returns a restartable, finite lazy sequence of RawRecords as
	// a channel; it holds at most one page in memory and observes
	// ctx.Done() at page boundaries.
	Collect(ctx context.Context, mode domain.CollectionMode, filters domain.Filters, max int) <-chan Result

	// FetchDetail retrieves one product's full record, if still available.
	FetchDetail(ctx context.Context, supplierProductID string) (*domain.RawRecord, error)

	// FetchStock retrieves current stock for a batch of product ids.
	FetchStock(ctx context.Context, supplierProductIDs []string) (map[string]StockInfo, error)

	// State reports the adapter's current lifecycle state.
	State() State
}
