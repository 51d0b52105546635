// Package rest implements the JSON/REST Supplier Adapter (SPEC_FULL §6),
// grounded on original_source's domeggook_api.go: api_key query auth,
// a category tree walked page-by-page, and a page-index pagination
// protocol (`current_page`/`total_pages`) rather than cursors.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/httpclient"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
)

// listAPIVersion and detailAPIVersion are the product-list/detail API
// versions the adapter speaks,
// matching the source's pinned `version=4.1` / `version=4.5` query params.
const (
	listAPIVersion   = "4.1"
	detailAPIVersion = "4.5"
	maxPageLimit     = 100
)

// Credentials is the plaintext shape sealed into SupplierAccount.AuthMaterial
// for a REST-source supplier.
type Credentials struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// Adapter implements adapter.Capability for one JSON/REST-source supplier
// account. Not safe for concurrent use across jobs.
type Adapter struct {
	supplierTag string
	creds       Credentials
	http        *httpclient.Client

	mu    sync.Mutex
	state adapter.State
}

var _ adapter.Capability = (*Adapter)(nil)

// New builds a REST Adapter. creds must already be decrypted.
func New(supplierTag string, creds Credentials, client *httpclient.Client) *Adapter {
	return &Adapter{supplierTag: supplierTag, creds: creds, http: client, state: adapter.StateUninitialized}
}

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

type listEnvelope struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Data    struct {
		Items      []restProduct `json:"items"`
		Pagination struct {
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"data"`
}

type categoryEnvelope struct {
	Result string           `json:"result"`
	Data   []restCategoryDTO `json:"data"`
}

type restCategoryDTO struct {
	Code string `json:"category_code"`
	Name string `json:"category_name"`
}

type restProduct struct {
	ProductID      string  `json:"product_id"`
	SKU            string  `json:"sku"`
	ItemName       string  `json:"itemName"`
	ItemInfo       string  `json:"itemInfo"`
	CategoryName   string  `json:"categoryName"`
	DomPrice       float64 `json:"domPrice"`
	ConsumerPrice  float64 `json:"consumerPrice"`
	Stock          int     `json:"stock"`
	Status         string  `json:"status"`
	MainImage      string  `json:"mainImage"`
	ImageURL       string  `json:"image_url"`
	ImageList      []string `json:"imageList"`
	ShippingCost   float64 `json:"shippingCost"`
	ShippingMethod string  `json:"shippingMethod"`
	RegDate        string  `json:"reg_date"`
}

func (a *Adapter) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u, err := url.Parse(a.creds.BaseURL + path)
	if err != nil {
		return nil, apperrors.AuthFailed(a.supplierTag, err)
	}
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, req, 0, true)
	if err != nil {
		return nil, apperrors.TransientIO(a.creds.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.RateLimited(a.creds.BaseURL, 0)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.TransientExhausted(a.creds.BaseURL, 1, resp.StatusCode)
	}
	body := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		body = append(body, buf[:n]...)
		if readErr != nil {
			break
		}
	}
	return body, nil
}

// Authenticate validates the api_key by listing categories, mirroring the
// source's "authenticate via category list" pattern.
func (a *Adapter) Authenticate(ctx context.Context) error {
	a.setState(adapter.StateAuthenticating)
	if a.creds.APIKey == "" {
		a.setState(adapter.StateFailed)
		return apperrors.AuthFailed(a.supplierTag, fmt.Errorf("missing api_key"))
	}
	body, err := a.get(ctx, "/api/category/list", url.Values{
		"api_key": {a.creds.APIKey},
		"version": {"1.0"},
	})
	if err != nil {
		a.setState(adapter.StateFailed)
		return apperrors.AuthFailed(a.supplierTag, err)
	}
	var env categoryEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Result != "success" {
		a.setState(adapter.StateFailed)
		return apperrors.AuthFailed(a.supplierTag, fmt.Errorf("unexpected category list response"))
	}
	a.setState(adapter.StateReady)
	return nil
}

func (a *Adapter) TestConnection(ctx context.Context) (adapter.ConnectionTestResult, error) {
	start := time.Now()
	if err := a.Authenticate(ctx); err != nil {
		return adapter.ConnectionTestResult{Error: err.Error()}, nil
	}
	categories, err := a.ListCategories(ctx)
	if err != nil {
		return adapter.ConnectionTestResult{Error: err.Error()}, nil
	}
	return adapter.ConnectionTestResult{
		OK:        true,
		LatencyMS: time.Since(start).Milliseconds(),
		APIInfo:   map[string]any{"total_categories": len(categories), "api_version": listAPIVersion},
	}, nil
}

func (a *Adapter) ListCategories(ctx context.Context) ([]adapter.Category, error) {
	body, err := a.get(ctx, "/api/category/list", url.Values{
		"api_key": {a.creds.APIKey},
		"version": {"1.0"},
	})
	if err != nil {
		return nil, err
	}
	var env categoryEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.SchemaMismatch(a.supplierTag, err)
	}
	out := make([]adapter.Category, 0, len(env.Data))
	for _, c := range env.Data {
		out = append(out, adapter.Category{Code: c.Code, Name: c.Name})
	}
	return out, nil
}

func (a *Adapter) listPage(ctx context.Context, categoryCode string, page int) (listEnvelope, error) {
	var env listEnvelope
	body, err := a.get(ctx, "/api/product/list", url.Values{
		"api_key":       {a.creds.APIKey},
		"version":       {listAPIVersion},
		"category_code": {categoryCode},
		"page":          {strconv.Itoa(page)},
		"limit":         {strconv.Itoa(maxPageLimit)},
	})
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, apperrors.SchemaMismatch(a.supplierTag, err)
	}
	return env, nil
}

// Collect walks every supplied category (or every category from the
// supplier's tree when none is given) page by page, honoring the source's
// current_page/total_pages pagination contract.
func (a *Adapter) Collect(ctx context.Context, mode domain.CollectionMode, filters domain.Filters, max int) <-chan adapter.Result {
	out := make(chan adapter.Result, 16)
	go func() {
		defer close(out)

		categoryCodes := filters.Categories
		if len(categoryCodes) == 0 {
			categories, err := a.ListCategories(ctx)
			if err != nil {
				out <- adapter.Result{Err: err}
				return
			}
			for _, c := range categories {
				categoryCodes = append(categoryCodes, c.Code)
			}
		}

		collected := 0
		for _, categoryCode := range categoryCodes {
			if max > 0 && collected >= max {
				return
			}
			page := 1
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				env, err := a.listPage(ctx, categoryCode, page)
				if err != nil {
					out <- adapter.Result{Err: err}
					break
				}
				if len(env.Data.Items) == 0 {
					break
				}
				for _, item := range env.Data.Items {
					if max > 0 && collected >= max {
						return
					}
					if filters.StockOnly && item.Stock <= 0 {
						continue
					}
					out <- adapter.Result{Record: toRawRecord(a.supplierTag, item)}
					collected++
				}
				if env.Data.Pagination.CurrentPage >= env.Data.Pagination.TotalPages {
					break
				}
				page++
			}
		}
	}()
	return out
}

func (a *Adapter) FetchDetail(ctx context.Context, supplierProductID string) (*domain.RawRecord, error) {
	body, err := a.get(ctx, "/api/product/detail", url.Values{
		"api_key":    {a.creds.APIKey},
		"version":    {detailAPIVersion},
		"product_id": {supplierProductID},
	})
	if err != nil {
		return nil, err
	}
	var env struct {
		Result string `json:"result"`
		Data   struct {
			ItemInfo restProduct `json:"itemInfo"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.SchemaMismatch(a.supplierTag, err)
	}
	if env.Data.ItemInfo.ProductID == "" {
		return nil, nil
	}
	return toRawRecord(a.supplierTag, env.Data.ItemInfo), nil
}

func (a *Adapter) FetchStock(ctx context.Context, supplierProductIDs []string) (map[string]adapter.StockInfo, error) {
	out := make(map[string]adapter.StockInfo, len(supplierProductIDs))
	for _, id := range supplierProductIDs {
		rec, err := a.FetchDetail(ctx, id)
		if err != nil || rec == nil {
			out[id] = adapter.StockInfo{}
			continue
		}
		qty, _ := rec.Payload["stock_quantity"].(int)
		inStock, _ := rec.Payload["in_stock"].(bool)
		out[id] = adapter.StockInfo{Quantity: qty, InStock: inStock}
	}
	return out, nil
}

func toRawRecord(supplierTag string, item restProduct) *domain.RawRecord {
	mainImage := item.MainImage
	if mainImage == "" {
		mainImage = item.ImageURL
	}
	additional := make([]string, 0, len(item.ImageList))
	for _, img := range item.ImageList {
		if img != "" && img != mainImage {
			additional = append(additional, img)
		}
	}

	return &domain.RawRecord{
		SupplierTag: supplierTag,
		FetchedAt:   time.Now().UTC(),
		Payload: map[string]any{
			"product_id":       item.ProductID,
			"sku":              item.SKU,
			"name":             item.ItemName,
			"description":      item.ItemInfo,
			"category_path":    item.CategoryName,
			"wholesale_price":  item.DomPrice,
			"retail_price":     item.ConsumerPrice,
			"stock_quantity":   item.Stock,
			"in_stock":         item.Stock > 0 && item.Status != "sold_out",
			"main_image":       mainImage,
			"additional_images": additional,
			"shipping_cost":    item.ShippingCost,
			"opendate":         item.RegDate,
		},
	}
}
