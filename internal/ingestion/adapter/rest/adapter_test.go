package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/httpclient"
	"github.com/sunwoo0067/wholesale-ingest/pkg/testutil"
)

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{DefaultRPS: 1000, MaxRetries: 1}, nil)
}

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/category/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(categoryEnvelope{
			Result: "success",
			Data:   []restCategoryDTO{{Code: "A_00_00_00", Name: "Electronics"}},
		})
	})
	mux.HandleFunc("/api/product/list", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var env listEnvelope
		env.Result = "success"
		if page == "1" {
			env.Data.Items = []restProduct{
				{ProductID: "P1", ItemName: "Widget", DomPrice: 1000, Stock: 5, Status: "active"},
			}
			env.Data.Pagination.CurrentPage = 1
			env.Data.Pagination.TotalPages = 2
		} else {
			env.Data.Items = []restProduct{
				{ProductID: "P2", ItemName: "Sold Out Gadget", DomPrice: 2000, Stock: 0, Status: "sold_out"},
			}
			env.Data.Pagination.CurrentPage = 2
			env.Data.Pagination.TotalPages = 2
		}
		json.NewEncoder(w).Encode(env)
	})
	mux.HandleFunc("/api/product/detail", func(w http.ResponseWriter, r *http.Request) {
		var env struct {
			Result string `json:"result"`
			Data   struct {
				ItemInfo restProduct `json:"itemInfo"`
			} `json:"data"`
		}
		env.Result = "success"
		env.Data.ItemInfo = restProduct{ProductID: "P1", ItemName: "Widget", Stock: 5, Status: "active"}
		json.NewEncoder(w).Encode(env)
	})
	return httptest.NewServer(mux)
}

func TestAdapter_CollectWalksAllPagesOfEachCategory(t *testing.T) {
	// Arrange
	server := newFakeServer(t)
	defer server.Close()
	creds := Credentials{APIKey: "key-1", BaseURL: server.URL}
	a := New("domeggook", creds, testClient())

	// Act
	var records []*domain.RawRecord
	for res := range a.Collect(t.Context(), domain.ModeAll, domain.Filters{}, 0) {
		testutil.AssertNoError(t, res.Err, "collect should not error against the fake server")
		records = append(records, res.Record)
	}

	// Assert
	testutil.AssertLen(t, records, 2, "both pages across the single category should be collected")
	testutil.AssertEqual(t, records[0].Payload["product_id"], "P1", "first page's product should come first")
	testutil.AssertEqual(t, records[1].Payload["in_stock"], false, "sold_out status with zero stock is out of stock")
}

func TestAdapter_CollectHonorsStockOnlyFilter(t *testing.T) {
	// Arrange
	server := newFakeServer(t)
	defer server.Close()
	creds := Credentials{APIKey: "key-1", BaseURL: server.URL}
	a := New("domeggook", creds, testClient())

	// Act
	var records []*domain.RawRecord
	for res := range a.Collect(t.Context(), domain.ModeAll, domain.Filters{StockOnly: true}, 0) {
		testutil.AssertNoError(t, res.Err, "collect should not error")
		records = append(records, res.Record)
	}

	// Assert
	testutil.AssertLen(t, records, 1, "stock_only should drop the sold-out product")
}

func TestAdapter_AuthenticateFailsWithoutAPIKey(t *testing.T) {
	// Arrange
	a := New("domeggook", Credentials{}, testClient())

	// Act
	err := a.Authenticate(t.Context())

	// Assert
	testutil.AssertError(t, err, "authenticate should fail without an api_key")
}

func TestAdapter_ListCategoriesReturnsParsedTree(t *testing.T) {
	// Arrange
	server := newFakeServer(t)
	defer server.Close()
	creds := Credentials{APIKey: "key-1", BaseURL: server.URL}
	a := New("domeggook", creds, testClient())

	// Act
	categories, err := a.ListCategories(t.Context())

	// Assert
	testutil.AssertNoError(t, err, "list categories should succeed")
	testutil.AssertLen(t, categories, 1, "fake server returns a single category")
	testutil.AssertEqual(t, categories[0].Code, "A_00_00_00", "category code should pass through verbatim")
}

func TestAdapter_FetchDetailNormalizesSingleProduct(t *testing.T) {
	// Arrange
	server := newFakeServer(t)
	defer server.Close()
	creds := Credentials{APIKey: "key-1", BaseURL: server.URL}
	a := New("domeggook", creds, testClient())

	// Act
	record, err := a.FetchDetail(t.Context(), "P1")

	// Assert
	testutil.AssertNoError(t, err, "fetch detail should succeed")
	testutil.AssertNotNil(t, record, "detail should return a record")
	testutil.AssertEqual(t, record.Payload["product_id"], "P1", "record should carry the requested product id")
}
