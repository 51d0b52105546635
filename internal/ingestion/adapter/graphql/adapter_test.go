package graphql

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/httpclient"
	"github.com/sunwoo0067/wholesale-ingest/pkg/testutil"
)

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{DefaultRPS: 1000, MaxRetries: 1}, nil)
}

type fakeServer struct {
	authHits  int
	keyPages  [][]string
	items     map[string]itemNode
}

func newFakeServer(t *testing.T, fs *fakeServer) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		fs.authHits++
		json.NewEncoder(w).Encode(authResponse{Token: "tok-1", ExpiresIn: 3600})
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch {
		case strings.Contains(req.Query, "GetAllProductKeys"):
			page := fs.keyPages[0]
			fs.keyPages = fs.keyPages[1:]
			edges := make([]map[string]any, len(page))
			for i, k := range page {
				edges[i] = map[string]any{"node": map[string]string{"key": k}}
			}
			data := map[string]any{
				"allItems": map[string]any{
					"pageInfo": map[string]any{"hasNextPage": len(fs.keyPages) > 0, "endCursor": "cursor"},
					"edges":    edges,
				},
			}
			raw, _ := json.Marshal(data)
			json.NewEncoder(w).Encode(map[string]json.RawMessage{"data": raw})
		case strings.Contains(req.Query, "GetMultipleProducts"):
			keysRaw, _ := json.Marshal(req.Variables["keys"])
			var keys []string
			json.Unmarshal(keysRaw, &keys)
			items := make([]itemNode, 0, len(keys))
			for _, k := range keys {
				if it, ok := fs.items[k]; ok {
					items = append(items, it)
				}
			}
			data := map[string]any{"items": items}
			raw, _ := json.Marshal(data)
			json.NewEncoder(w).Encode(map[string]json.RawMessage{"data": raw})
		case strings.Contains(req.Query, "Categories"):
			data := map[string]any{"categories": []map[string]string{{"id": "1", "name": "Audio", "parentId": ""}}}
			raw, _ := json.Marshal(data)
			json.NewEncoder(w).Encode(map[string]json.RawMessage{"data": raw})
		}
	})
	return httptest.NewServer(mux)
}

func TestAdapter_CollectPaginatesKeysThenBatchFetchesDetails(t *testing.T) {
	// Arrange
	fs := &fakeServer{
		keyPages: [][]string{{"A", "B"}},
		items: map[string]itemNode{
			"A": {Key: "A", Name: "Widget", Price: 1000, Status: "ACTIVE", Options: []struct {
				ID       string  `json:"id"`
				Price    float64 `json:"price"`
				Quantity int     `json:"quantity"`
			}{{ID: "o1", Quantity: 3}}},
			"B": {Key: "B", Name: "Gadget", Price: 2000, Status: "SOLDOUT"},
		},
	}
	server := newFakeServer(t, fs)
	defer server.Close()

	creds := Credentials{Username: "u", Password: "p", APIURL: server.URL + "/graphql", AuthURL: server.URL + "/auth"}
	a := New("ownerclan", creds, testClient())

	// Act
	var records []*domain.RawRecord
	for res := range a.Collect(t.Context(), domain.ModeAll, domain.Filters{}, 0) {
		testutil.AssertNoError(t, res.Err, "collect should not error against the fake server")
		records = append(records, res.Record)
	}

	// Assert
	testutil.AssertLen(t, records, 2, "both discovered keys should yield a record")
	testutil.AssertEqual(t, records[0].Payload["product_id"], "A", "first record should carry key A")
	testutil.AssertEqual(t, records[0].Payload["stock_quantity"], 3, "stock should sum option quantities")
	testutil.AssertEqual(t, records[0].Payload["in_stock"], true, "ACTIVE status with positive stock is in stock")
	testutil.AssertEqual(t, records[1].Payload["in_stock"], false, "SOLDOUT status is never in stock")
}

func TestAdapter_AuthenticateFailsWithoutCredentials(t *testing.T) {
	// Arrange
	a := New("ownerclan", Credentials{}, testClient())

	// Act
	err := a.Authenticate(t.Context())

	// Assert
	testutil.AssertError(t, err, "authenticate should fail without username/password")
}

func TestAdapter_ListCategoriesReturnsCategoryTree(t *testing.T) {
	// Arrange
	fs := &fakeServer{keyPages: [][]string{{}}}
	server := newFakeServer(t, fs)
	defer server.Close()
	creds := Credentials{Username: "u", Password: "p", APIURL: server.URL + "/graphql", AuthURL: server.URL + "/auth"}
	a := New("ownerclan", creds, testClient())

	// Act
	categories, err := a.ListCategories(t.Context())

	// Assert
	testutil.AssertNoError(t, err, "list categories should succeed")
	testutil.AssertLen(t, categories, 1, "fake server returns a single category")
	testutil.AssertEqual(t, categories[0].Name, "Audio", "category name should come through verbatim")
}

func TestAdapter_FetchStockSumsOptionQuantities(t *testing.T) {
	// Arrange
	fs := &fakeServer{
		keyPages: [][]string{{}},
		items: map[string]itemNode{
			"A": {Key: "A", Status: "ACTIVE", Options: []struct {
				ID       string  `json:"id"`
				Price    float64 `json:"price"`
				Quantity int     `json:"quantity"`
			}{{ID: "o1", Quantity: 2}, {ID: "o2", Quantity: 5}}},
		},
	}
	server := newFakeServer(t, fs)
	defer server.Close()
	creds := Credentials{Username: "u", Password: "p", APIURL: server.URL + "/graphql", AuthURL: server.URL + "/auth"}
	a := New("ownerclan", creds, testClient())

	// Act
	stock, err := a.FetchStock(t.Context(), []string{"A"})

	// Assert
	testutil.AssertNoError(t, err, "fetch stock should succeed")
	testutil.AssertEqual(t, stock["A"].Quantity, 7, "stock should sum all option quantities")
	testutil.AssertTrue(t, stock["A"].InStock, "positive stock with ACTIVE status is in stock")
}
