package xml

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/httpclient"
	"github.com/sunwoo0067/wholesale-ingest/pkg/testutil"
)

const fixtureDoc = `<?xml version="1.0" encoding="UTF-8"?>
<zentrade>
  <product code="P-1001">
    <prdtname>Wireless Earbuds</prdtname>
    <content>Great sound</content>
    <price buyprice="12000" consumerprice="18000"/>
    <baseinfo madein="KR" productcom="Acme" brand="Acme" model="AE-1"/>
    <dome_category dome_catecode="100">Electronics/Audio</dome_category>
    <status runout="0" opendate="2026-07-20"/>
    <listimg url1="https://example.com/1.jpg" url2="https://example.com/2.jpg"/>
    <option opt1nm="Color">Red^|^1000^|^1200↑=↑Blue^|^1000^|^1200</option>
  </product>
  <product code="P-1002">
    <prdtname>Sold Out Widget</prdtname>
    <price buyprice="5000" consumerprice="5000"/>
    <status runout="1" opendate="2026-07-18"/>
  </product>
</zentrade>`

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{DefaultRPS: 1000, MaxRetries: 1}, nil)
}

func TestAdapter_CollectParsesFixtureIntoRawRecords(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		w.Write([]byte(fixtureDoc))
	}))
	defer server.Close()

	creds := Credentials{APIID: "acct", APIKey: "secret", BaseURL: server.URL}
	a := New("zentrade", creds, DefaultConfig(), testClient())

	// Act
	var records []*domain.RawRecord
	for res := range a.Collect(t.Context(), domain.ModeAll, domain.DefaultFilters(), 0) {
		testutil.AssertNoError(t, res.Err, "collect should not error on a well-formed fixture")
		records = append(records, res.Record)
	}

	// Assert
	testutil.AssertLen(t, records, 2, "both products in the fixture should be collected")
	testutil.AssertEqual(t, records[0].Payload["product_id"], "P-1001", "first record should carry the first product's code")
	testutil.AssertEqual(t, records[0].Payload["in_stock"], true, "runout=0 should decode to in_stock=true")
	testutil.AssertEqual(t, records[1].Payload["in_stock"], false, "runout=1 should decode to in_stock=false")
}

func TestAdapter_AuthenticateFailsWithoutCredentials(t *testing.T) {
	// Arrange
	a := New("zentrade", Credentials{}, DefaultConfig(), testClient())

	// Act
	err := a.Authenticate(t.Context())

	// Assert
	testutil.AssertError(t, err, "authenticate should fail when api_id/api_key are missing")
}

func TestAdapter_ListCategoriesDedupesAcrossProducts(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fixtureDoc))
	}))
	defer server.Close()
	creds := Credentials{APIID: "acct", APIKey: "secret", BaseURL: server.URL}
	a := New("zentrade", creds, DefaultConfig(), testClient())

	// Act
	categories, err := a.ListCategories(t.Context())

	// Assert
	testutil.AssertNoError(t, err, "list categories should succeed")
	testutil.AssertLen(t, categories, 1, "only the first product has a category; the second has none")
	testutil.AssertEqual(t, categories[0].Code, "100", "category code should come from dome_catecode")
}

func TestAdapter_InferInStockHonorsConfigWhenRunoutMissing(t *testing.T) {
	// Arrange
	cfgTrue := Config{InferStockFromRunoutFlag: true}
	cfgFalse := Config{InferStockFromRunoutFlag: false}
	aTrue := New("zentrade", Credentials{}, cfgTrue, testClient())
	aFalse := New("zentrade", Credentials{}, cfgFalse, testClient())
	p := xmlProduct{Code: "P-1", Status: xmlStatus{}}

	// Act + Assert
	testutil.AssertTrue(t, aTrue.inferInStock(p), "default config should infer in-stock when runout is absent")
	testutil.AssertFalse(t, aFalse.inferInStock(p), "disabled inference should treat missing runout as out-of-stock")
}
