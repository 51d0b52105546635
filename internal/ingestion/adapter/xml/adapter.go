// Package xml implements the XML-over-HTTP Supplier Adapter (SPEC_FULL §6),
// grounded on original_source's zentrade_api.py: a fixed-parameter GET
// against a single endpoint, an EUC-KR-encoded `<zentrade>` document, and a
// CDATA-bearing `<option>` element carrying a delimited option table.
package xml

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/httpclient"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
	"github.com/sunwoo0067/wholesale-ingest/pkg/logger"
)

// Credentials is the plaintext shape sealed into SupplierAccount.AuthMaterial
// for an XML-source supplier (spec §6: "id=<account>&m_skey=<secret>").
type Credentials struct {
	APIID   string `json:"api_id"`
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// Config carries the per-supplier behavior switches SPEC_FULL §10 resolved.
type Config struct {
	// InferStockFromRunoutFlag mirrors the original heuristic: when true
	// (default) a missing explicit stock count is inferred from the
	// runout flag; when false it normalizes to out-of-stock/zero.
	InferStockFromRunoutFlag bool
}

func DefaultConfig() Config {
	return Config{InferStockFromRunoutFlag: true}
}

// Adapter implements adapter.Capability for one XML-source supplier account.
// Not safe for concurrent use across jobs; the orchestrator builds one
// instance per run (spec §4.1).
type Adapter struct {
	supplierTag string
	creds       Credentials
	cfg         Config
	http        *httpclient.Client

	mu    sync.Mutex
	state adapter.State
}

// New builds an XML Adapter. creds must already be decrypted by the caller
// (the orchestrator's AdapterFactory, via pkg/crypto.Sealer.Open).
func New(supplierTag string, creds Credentials, cfg Config, client *httpclient.Client) *Adapter {
	if creds.BaseURL == "" {
		creds.BaseURL = "https://www.zentrade.co.kr/shop/proc"
	}
	return &Adapter{
		supplierTag: supplierTag,
		creds:       creds,
		cfg:         cfg,
		http:        client,
		state:       adapter.StateUninitialized,
	}
}

var _ adapter.Capability = (*Adapter)(nil)

func (a *Adapter) SupplierTag() string { return a.supplierTag }

func (a *Adapter) State() adapter.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) setState(s adapter.State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Authenticate performs a lightweight product_api.php GET and checks the
// response parses as a <zentrade> document — the source has no separate
// auth endpoint, so a successful parse IS the authentication check (spec
// §6, zentrade_api.py's authenticate()).
func (a *Adapter) Authenticate(ctx context.Context) error {
	a.setState(adapter.StateAuthenticating)
	if a.creds.APIID == "" || a.creds.APIKey == "" {
		a.setState(adapter.StateFailed)
		return apperrors.AuthFailed(a.supplierTag, fmt.Errorf("missing api_id or api_key"))
	}

	req, err := a.newRequest(ctx, nil)
	if err != nil {
		a.setState(adapter.StateFailed)
		return apperrors.AuthFailed(a.supplierTag, err)
	}
	resp, err := a.http.Do(ctx, req, 0, true)
	if err != nil {
		a.setState(adapter.StateFailed)
		return apperrors.AuthFailed(a.supplierTag, err)
	}
	defer resp.Body.Close()

	if _, err := decodeDocument(resp.Body); err != nil {
		a.setState(adapter.StateFailed)
		return apperrors.AuthFailed(a.supplierTag, fmt.Errorf("invalid zentrade XML response: %w", err))
	}
	a.setState(adapter.StateReady)
	return nil
}

// TestConnection fetches the document with its own request and reports the
// document's product count as api info (spec §6 test_connection).
func (a *Adapter) TestConnection(ctx context.Context) (adapter.ConnectionTestResult, error) {
	start := time.Now()
	req, err := a.newRequest(ctx, nil)
	if err != nil {
		return adapter.ConnectionTestResult{Error: err.Error()}, err
	}
	resp, err := a.http.Do(ctx, req, 0, true)
	if err != nil {
		return adapter.ConnectionTestResult{Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	doc, err := decodeDocument(resp.Body)
	if err != nil {
		return adapter.ConnectionTestResult{Error: err.Error()}, nil
	}
	return adapter.ConnectionTestResult{
		OK:        true,
		LatencyMS: time.Since(start).Milliseconds(),
		APIInfo: map[string]any{
			"total_products": len(doc.Products),
			"encoding":       "euc-kr",
		},
	}, nil
}

// ListCategories extracts the category tree from the product feed; the
// source has no dedicated category endpoint (spec §6, get_categories()).
func (a *Adapter) ListCategories(ctx context.Context) ([]adapter.Category, error) {
	req, err := a.newRequest(ctx, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, req, 0, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	doc, err := decodeDocument(resp.Body)
	if err != nil {
		return nil, apperrors.SchemaMismatch(a.supplierTag, err)
	}

	seen := make(map[string]struct{})
	var out []adapter.Category
	for _, p := range doc.Products {
		code := p.Category.Code
		name := strings.TrimSpace(p.Category.Text)
		if code == "" || name == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, adapter.Category{Code: code, Name: name})
	}
	return out, nil
}

// Collect streams one page (the source returns the whole matching feed in
// a single response; there is no page token) as RawRecords, honoring
// max and the date/stock filters the source understands natively (spec
// §6: "paginates by date window" — here realized as a single windowed
// request, since the source has no cursor).
func (a *Adapter) Collect(ctx context.Context, mode domain.CollectionMode, filters domain.Filters, max int) <-chan adapter.Result {
	out := make(chan adapter.Result, 16)
	go func() {
		defer close(out)
		a.setState(adapter.StateCollecting)
		defer a.setState(adapter.StateReady)

		params := url.Values{}
		if mode == domain.ModeRecent {
			days := 7
			if filters.DateFrom != nil {
				days = int(time.Since(*filters.DateFrom).Hours()/24) + 1
			}
			now := time.Now().UTC()
			params.Set("opendate_s", now.AddDate(0, 0, -days).Format("2006-01-02"))
			params.Set("opendate_e", now.Format("2006-01-02"))
		} else {
			if filters.StockOnly {
				params.Set("runout", "0")
			}
			if filters.DateFrom != nil {
				params.Set("opendate_s", filters.DateFrom.Format("2006-01-02"))
			}
			if filters.DateTo != nil {
				params.Set("opendate_e", filters.DateTo.Format("2006-01-02"))
			}
		}

		req, err := a.newRequest(ctx, params)
		if err != nil {
			out <- adapter.Result{Err: err}
			return
		}
		resp, err := a.http.Do(ctx, req, 0, true)
		if err != nil {
			out <- adapter.Result{Err: apperrors.TransientIO(a.creds.BaseURL, err)}
			return
		}
		defer resp.Body.Close()

		doc, err := decodeDocument(resp.Body)
		if err != nil {
			out <- adapter.Result{Err: apperrors.SchemaMismatch(a.supplierTag, err)}
			return
		}

		count := 0
		for _, p := range doc.Products {
			if max > 0 && count >= max {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			rec, err := a.toRawRecord(p)
			if err != nil {
				out <- adapter.Result{Err: err}
				continue
			}
			out <- adapter.Result{Record: rec}
			count++
		}
	}()
	return out
}

// FetchDetail re-fetches the full feed and returns the one matching
// product; the source has no single-product endpoint (spec §6).
func (a *Adapter) FetchDetail(ctx context.Context, supplierProductID string) (*domain.RawRecord, error) {
	req, err := a.newRequest(ctx, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, req, 0, true)
	if err != nil {
		return nil, apperrors.TransientIO(a.creds.BaseURL, err)
	}
	defer resp.Body.Close()
	doc, err := decodeDocument(resp.Body)
	if err != nil {
		return nil, apperrors.SchemaMismatch(a.supplierTag, err)
	}
	for _, p := range doc.Products {
		if p.Code == supplierProductID {
			return a.toRawRecord(p)
		}
	}
	return nil, nil
}

// FetchStock derives stock from the runout flag across the full feed, since
// the source exposes no batched stock endpoint.
func (a *Adapter) FetchStock(ctx context.Context, supplierProductIDs []string) (map[string]adapter.StockInfo, error) {
	wanted := make(map[string]struct{}, len(supplierProductIDs))
	for _, id := range supplierProductIDs {
		wanted[id] = struct{}{}
	}
	req, err := a.newRequest(ctx, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, req, 0, true)
	if err != nil {
		return nil, apperrors.TransientIO(a.creds.BaseURL, err)
	}
	defer resp.Body.Close()
	doc, err := decodeDocument(resp.Body)
	if err != nil {
		return nil, apperrors.SchemaMismatch(a.supplierTag, err)
	}
	out := make(map[string]adapter.StockInfo, len(wanted))
	for _, p := range doc.Products {
		if _, ok := wanted[p.Code]; !ok {
			continue
		}
		inStock := a.inferInStock(p)
		qty := 0
		if inStock {
			qty = 1
		}
		out[p.Code] = adapter.StockInfo{Quantity: qty, InStock: inStock}
	}
	return out, nil
}

func (a *Adapter) newRequest(ctx context.Context, extra url.Values) (*http.Request, error) {
	params := url.Values{
		"id":      {a.creds.APIID},
		"m_skey":  {a.creds.APIKey},
	}
	for k, vs := range extra {
		params[k] = vs
	}
	endpoint := strings.TrimRight(a.creds.BaseURL, "/") + "/product_api.php?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "wholesale-ingest-collector/1.0")
	req.Header.Set("Accept", "application/xml, text/xml, */*")
	return req, nil
}

func (a *Adapter) inferInStock(p xmlProduct) bool {
	if !a.cfg.InferStockFromRunoutFlag {
		return false
	}
	if p.Status.Runout == "" {
		return true
	}
	return p.Status.Runout == "0"
}

func (a *Adapter) toRawRecord(p xmlProduct) (*domain.RawRecord, error) {
	if p.Code == "" {
		return nil, apperrors.SchemaMismatch(a.supplierTag, fmt.Errorf("product element missing code attribute"))
	}
	inStock := a.inferInStock(p)
	stockQty := 0
	if inStock {
		stockQty = 1
	}

	var images []string
	for _, u := range []string{p.Images.URL1, p.Images.URL2, p.Images.URL3, p.Images.URL4, p.Images.URL5} {
		if strings.TrimSpace(u) != "" {
			images = append(images, u)
		}
	}
	var mainImage string
	if len(images) > 0 {
		mainImage, images = images[0], images[1:]
	}

	var openedAt time.Time
	if p.Status.OpenDate != "" {
		if t, err := time.Parse("2006-01-02", p.Status.OpenDate); err == nil {
			openedAt = t
		}
	}

	payload := map[string]any{
		"product_id":      p.Code,
		"model":           p.BaseInfo.Model,
		"name":            p.Name,
		"content":         p.Content,
		"category_path":   strings.TrimSpace(p.Category.Text),
		"wholesale_price": p.Price.BuyPrice,
		"retail_price":    p.Price.ConsumerPrice,
		"stock_quantity":  stockQty,
		"in_stock":        inStock,
		"main_image":      mainImage,
		"additional_images": images,
		"origin":          p.BaseInfo.MadeIn,
		"manufacturer":    p.BaseInfo.ProductCom,
		"brand":           p.BaseInfo.Brand,
		"option_raw":      p.Option.Text,
		"option_name":     p.Option.Opt1Name,
		"opendate":        p.Status.OpenDate,
	}

	fetchedAt := openedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	return &domain.RawRecord{
		SupplierTag: a.supplierTag,
		Payload:     payload,
		FetchedAt:   fetchedAt,
	}, nil
}

// xmlDocument mirrors the <zentrade> root named in spec §6.
type xmlDocument struct {
	XMLName  xml.Name     `xml:"zentrade"`
	Products []xmlProduct `xml:"product"`
}

type xmlProduct struct {
	Code     string         `xml:"code,attr"`
	Name     string         `xml:"prdtname"`
	Content  string         `xml:"content"`
	Price    xmlPrice       `xml:"price"`
	BaseInfo xmlBaseInfo    `xml:"baseinfo"`
	Category xmlCategory    `xml:"dome_category"`
	Status   xmlStatus      `xml:"status"`
	Images   xmlImageBlock  `xml:"listimg"`
	Option   xmlOptionBlock `xml:"option"`
}

type xmlPrice struct {
	BuyPrice      string `xml:"buyprice,attr"`
	ConsumerPrice string `xml:"consumerprice,attr"`
}

type xmlBaseInfo struct {
	MadeIn     string `xml:"madein,attr"`
	ProductCom string `xml:"productcom,attr"`
	Brand      string `xml:"brand,attr"`
	Model      string `xml:"model,attr"`
}

type xmlCategory struct {
	Code string `xml:"dome_catecode,attr"`
	Text string `xml:",chardata"`
}

type xmlStatus struct {
	Runout   string `xml:"runout,attr"`
	OpenDate string `xml:"opendate,attr"`
}

type xmlImageBlock struct {
	URL1 string `xml:"url1,attr"`
	URL2 string `xml:"url2,attr"`
	URL3 string `xml:"url3,attr"`
	URL4 string `xml:"url4,attr"`
	URL5 string `xml:"url5,attr"`
}

type xmlOptionBlock struct {
	Opt1Name string `xml:"opt1nm,attr"`
	Text     string `xml:",cdata"`
}

// decodeDocument decodes an EUC-KR <zentrade> response (spec §6: "response
// is XML in an 8-bit Korean encoding"). golang.org/x/text/encoding/korean
// provides the charset transform; encoding/xml.Decoder.CharsetReader hooks
// it in so the stdlib XML decoder never sees raw EUC-KR bytes (SPEC_FULL
// §6 Go realization note).
func decodeDocument(body io.Reader) (*xmlDocument, error) {
	decoder := xml.NewDecoder(body)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(charset) {
		case "euc-kr", "ks_c_5601-1987", "cp949":
			return transform.NewReader(input, korean.EUCKR.NewDecoder()), nil
		default:
			return input, nil
		}
	}
	var doc xmlDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
