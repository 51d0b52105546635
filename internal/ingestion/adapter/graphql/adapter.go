// Package graphql implements the GraphQL Supplier Adapter (SPEC_FULL §6),
// grounded on original_source's ownerclan_api.py: bearer-token auth against
// a separate auth endpoint, cursor-paginated key discovery, then batched
// detail fetch via `items(keys: [...])`.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/adapter"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/domain"
	"github.com/sunwoo0067/wholesale-ingest/internal/ingestion/httpclient"
	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
)

// maxBatchKeys is the source's hard batch-size ceiling for items(keys:[...])
// (spec §6: "limited to 5,000 keys").
const maxBatchKeys = 5000

// pageSize is the cursor page size used for key discovery.
const pageSize = 1000

// tokenExpiryMargin mirrors the original "expiresIn - 300s" refresh
// heuristic (spec §6).
const tokenExpiryMargin = 5 * time.Minute

// Credentials is the plaintext shape sealed into SupplierAccount.AuthMaterial
// for a GraphQL-source supplier.
type Credentials struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Service     string `json:"service"`
	UserType    string `json:"user_type"`
	APIURL      string `json:"api_url"`
	AuthURL     string `json:"auth_url"`
}

// Adapter implements adapter.Capability for one GraphQL-source supplier
// account. Not safe for concurrent use across jobs.
type Adapter struct {
	supplierTag string
	creds       Credentials
	http        *httpclient.Client

	mu        sync.Mutex
	state     adapter.State
	token     string
	expiresAt time.Time
}

var _ adapter.Capability = (*Adapter)(nil)

// New builds a GraphQL Adapter. creds must already be decrypted.
func New(supplierTag string, creds Credentials, client *httpclient.Client) *Adapter {
	if creds.APIURL == "" {
		creds.APIURL = "https://api-sandbox.ownerclan.com/v1/graphql"
	}
	if creds.AuthURL == "" {
		creds.AuthURL = "https://auth-sandbox.ownerclan.com/auth"
	}
	if creds.Service == "" {
		creds.Service = "ownerclan"
	}
	if creds.UserType == "" {
		creds.UserType = "seller"
	}
	return &Adapter{supplierTag: supplierTag, creds: creds, http: client, state: adapter.StateUninitialized}
}

func (a *Adapter) SupplierTag() string { return a.supplierTag }

func (a *Adapter) State() adapter.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

type authRequest struct {
	Service  string `json:"service"`
	UserType string `json:"userType"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// Authenticate obtains a bearer token, re-invoked transparently by
// validToken whenever the cached token is within tokenExpiryMargin of
// expiring (spec §6 "treat expiry as token_ttl − 5 minutes").
func (a *Adapter) Authenticate(ctx context.Context) error {
	a.mu.Lock()
	a.state = adapter.StateAuthenticating
	a.mu.Unlock()

	if a.creds.Username == "" || a.creds.Password == "" {
		a.markFailed()
		return apperrors.AuthFailed(a.supplierTag, fmt.Errorf("missing username or password"))
	}

	body, _ := json.Marshal(authRequest{
		Service:  a.creds.Service,
		UserType: a.creds.UserType,
		Username: a.creds.Username,
		Password: a.creds.Password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.creds.AuthURL, bytes.NewReader(body))
	if err != nil {
		a.markFailed()
		return apperrors.AuthFailed(a.supplierTag, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(ctx, req, 0, false)
	if err != nil {
		a.markFailed()
		return apperrors.AuthFailed(a.supplierTag, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		a.markFailed()
		return apperrors.AuthFailed(a.supplierTag, fmt.Errorf("auth endpoint returned status %d", resp.StatusCode))
	}

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		a.markFailed()
		return apperrors.AuthFailed(a.supplierTag, fmt.Errorf("invalid auth response: %w", err))
	}
	if out.ExpiresIn <= 0 {
		out.ExpiresIn = 3600
	}

	a.mu.Lock()
	a.token = out.Token
	a.expiresAt = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenExpiryMargin)
	a.state = adapter.StateReady
	a.mu.Unlock()
	return nil
}

func (a *Adapter) markFailed() {
	a.mu.Lock()
	a.state = adapter.StateFailed
	a.mu.Unlock()
}

// validToken returns the current bearer token, re-authenticating first if
// it is absent or within its refresh margin of expiry.
func (a *Adapter) validToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	token, expiresAt := a.token, a.expiresAt
	a.mu.Unlock()
	if token != "" && time.Now().Before(expiresAt) {
		return token, nil
	}
	if err := a.Authenticate(ctx); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token, nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

func (a *Adapter) request(ctx context.Context, query string, variables map[string]any, out any) error {
	token, err := a.validToken(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.creds.APIURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.http.Do(ctx, req, 0, false)
	if err != nil {
		return apperrors.TransientIO(a.creds.APIURL, err)
	}
	defer resp.Body.Close()

	var gr gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return apperrors.SchemaMismatch(a.supplierTag, fmt.Errorf("invalid GraphQL response: %w", err))
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, len(gr.Errors))
		for i, e := range gr.Errors {
			msgs[i] = e.Message
		}
		return apperrors.SchemaMismatch(a.supplierTag, fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; ")))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(gr.Data, out)
}

const categoriesQuery = `query Categories { categories { id name parentId } }`

type categoryNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
}

func (a *Adapter) TestConnection(ctx context.Context) (adapter.ConnectionTestResult, error) {
	start := time.Now()
	if err := a.Authenticate(ctx); err != nil {
		return adapter.ConnectionTestResult{Error: err.Error()}, nil
	}
	var data struct {
		Categories []categoryNode `json:"categories"`
	}
	if err := a.request(ctx, categoriesQuery, nil, &data); err != nil {
		return adapter.ConnectionTestResult{Error: err.Error()}, nil
	}
	return adapter.ConnectionTestResult{
		OK:        true,
		LatencyMS: time.Since(start).Milliseconds(),
		APIInfo:   map[string]any{"categories": len(data.Categories)},
	}, nil
}

func (a *Adapter) ListCategories(ctx context.Context) ([]adapter.Category, error) {
	var data struct {
		Categories []categoryNode `json:"categories"`
	}
	if err := a.request(ctx, categoriesQuery, nil, &data); err != nil {
		return nil, err
	}
	out := make([]adapter.Category, 0, len(data.Categories))
	for _, c := range data.Categories {
		out = append(out, adapter.Category{Code: c.ID, Name: c.Name, ParentCode: c.ParentID})
	}
	return out, nil
}

const keysQuery = `
query GetAllProductKeys($after: String, $first: Int) {
  allItems(after: $after, first: $first) {
    pageInfo { hasNextPage endCursor }
    edges { node { key } }
  }
}`

type keysPage struct {
	AllItems struct {
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
		Edges []struct {
			Node struct {
				Key string `json:"key"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"allItems"`
}

func (a *Adapter) collectKeys(ctx context.Context, max int) ([]string, error) {
	var keys []string
	var cursor string
	hasNext := true
	for hasNext && (max <= 0 || len(keys) < max) {
		first := pageSize
		if max > 0 && max-len(keys) < first {
			first = max - len(keys)
		}
		vars := map[string]any{"first": first}
		if cursor != "" {
			vars["after"] = cursor
		}
		var page keysPage
		if err := a.request(ctx, keysQuery, vars, &page); err != nil {
			return keys, err
		}
		for _, e := range page.AllItems.Edges {
			keys = append(keys, e.Node.Key)
		}
		hasNext = page.AllItems.PageInfo.HasNextPage
		cursor = page.AllItems.PageInfo.EndCursor
		select {
		case <-ctx.Done():
			return keys, ctx.Err()
		default:
		}
	}
	return keys, nil
}

const itemsQuery = `
query GetMultipleProducts($keys: [String!]!) {
  items(keys: $keys) {
    key
    name
    model
    production
    origin
    price
    fixedPrice
    category { id name }
    shippingFee
    status
    options { id price quantity }
    taxFree
    returnable
    images
    updatedAt
  }
}`

type itemNode struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Model       string   `json:"model"`
	Production  string   `json:"production"`
	Origin      string   `json:"origin"`
	Price       float64  `json:"price"`
	FixedPrice  float64  `json:"fixedPrice"`
	Category    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"category"`
	ShippingFee float64 `json:"shippingFee"`
	Status      string  `json:"status"`
	Options     []struct {
		ID       string  `json:"id"`
		Price    float64 `json:"price"`
		Quantity int     `json:"quantity"`
	} `json:"options"`
	TaxFree    bool     `json:"taxFree"`
	Returnable bool     `json:"returnable"`
	Images     []string `json:"images"`
	UpdatedAt  string   `json:"updatedAt"`
}

func (a *Adapter) fetchItems(ctx context.Context, keys []string) ([]itemNode, error) {
	if len(keys) > maxBatchKeys {
		keys = keys[:maxBatchKeys]
	}
	var data struct {
		Items []*itemNode `json:"items"`
	}
	if err := a.request(ctx, itemsQuery, map[string]any{"keys": keys}, &data); err != nil {
		return nil, err
	}
	out := make([]itemNode, 0, len(data.Items))
	for _, item := range data.Items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

// Collect discovers keys via cursor pagination, then fetches details in
// batches of up to 100 keys (spec §6).
func (a *Adapter) Collect(ctx context.Context, mode domain.CollectionMode, filters domain.Filters, max int) <-chan adapter.Result {
	out := make(chan adapter.Result, 16)
	go func() {
		defer close(out)
		keys, err := a.collectKeys(ctx, max)
		if err != nil && len(keys) == 0 {
			out <- adapter.Result{Err: err}
			return
		}

		const batchSize = 100
		collected := 0
		for i := 0; i < len(keys); i += batchSize {
			if max > 0 && collected >= max {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			end := i + batchSize
			if end > len(keys) {
				end = len(keys)
			}
			batch := keys[i:end]
			if max > 0 && collected+len(batch) > max {
				batch = batch[:max-collected]
			}
			items, err := a.fetchItems(ctx, batch)
			if err != nil {
				out <- adapter.Result{Err: err}
				continue
			}
			for _, item := range items {
				if filters.StockOnly && item.Status != "ACTIVE" {
					continue
				}
				out <- adapter.Result{Record: toRawRecord(a.supplierTag, item)}
				collected++
			}
		}
	}()
	return out
}

func (a *Adapter) FetchDetail(ctx context.Context, supplierProductID string) (*domain.RawRecord, error) {
	items, err := a.fetchItems(ctx, []string{supplierProductID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return toRawRecord(a.supplierTag, items[0]), nil
}

func (a *Adapter) FetchStock(ctx context.Context, supplierProductIDs []string) (map[string]adapter.StockInfo, error) {
	items, err := a.fetchItems(ctx, supplierProductIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]adapter.StockInfo, len(items))
	for _, item := range items {
		qty := 0
		for _, opt := range item.Options {
			qty += opt.Quantity
		}
		out[item.Key] = adapter.StockInfo{Quantity: qty, InStock: qty > 0 && item.Status == "ACTIVE"}
	}
	return out, nil
}

func toRawRecord(supplierTag string, item itemNode) *domain.RawRecord {
	price := item.FixedPrice
	if price <= 0 {
		price = item.Price
	}
	totalStock := 0
	for _, opt := range item.Options {
		totalStock += opt.Quantity
	}
	var mainImage string
	additional := item.Images
	if len(additional) > 0 {
		mainImage, additional = additional[0], additional[1:]
	}

	options := make([]map[string]any, 0, len(item.Options))
	for _, opt := range item.Options {
		options = append(options, map[string]any{
			"id":       opt.ID,
			"price":    opt.Price,
			"quantity": opt.Quantity,
		})
	}

	updatedAt := time.Now().UTC()
	if item.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, item.UpdatedAt); err == nil {
			updatedAt = t
		}
	}

	return &domain.RawRecord{
		SupplierTag: supplierTag,
		FetchedAt:   updatedAt,
		Payload: map[string]any{
			"product_id":        item.Key,
			"model":              item.Model,
			"name":               item.Name,
			"description":        item.Production,
			"category_path":      item.Category.Name,
			"wholesale_price":    price,
			"stock_quantity":     totalStock,
			"in_stock":           totalStock > 0 && item.Status == "ACTIVE",
			"main_image":         mainImage,
			"additional_images":  additional,
			"origin":             item.Origin,
			"shipping_cost":      item.ShippingFee,
			"tax_free":           item.TaxFree,
			"returnable":         item.Returnable,
			"updated_at":         item.UpdatedAt,
			"options":            options,
		},
	}
}
