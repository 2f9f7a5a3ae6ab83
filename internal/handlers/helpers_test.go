package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strideline/storefront/internal/catalog"
	"github.com/strideline/storefront/internal/clientstate"
	"github.com/strideline/storefront/internal/idempotency"
	"github.com/strideline/storefront/internal/listing"
	"github.com/strideline/storefront/internal/locale"
	"github.com/strideline/storefront/internal/middleware"
	"github.com/strideline/storefront/internal/pagecache"
	"github.com/strideline/storefront/internal/revalidate"
	"github.com/strideline/storefront/internal/seo"
)

const testSecret = "hook-secret"

type testApp struct {
	router   chi.Router
	guard    *listing.Guard
	pages    *pagecache.MemoryStore
	upstream *switchableSource
	browser  string
}

// switchableSource fails listing queries while down is set.
type switchableSource struct {
	catalog.Source
	down atomic.Bool
}

func (s *switchableSource) Products(ctx context.Context, f catalog.Filter) (catalog.Page, error) {
	if s.down.Load() {
		return catalog.Page{}, errors.New("cms: query status 503")
	}
	return s.Source.Products(ctx, f)
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ds, err := catalog.LoadDataset("../catalog/testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	source, err := catalog.NewMemorySource(ds)
	if err != nil {
		t.Fatalf("memory source: %v", err)
	}
	upstream := &switchableSource{Source: source}
	svc, err := catalog.NewService(catalog.ServiceDeps{Source: upstream})
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}

	table := locale.Default()
	registry := clientstate.NewRegistry(clientstate.NewMemoryStorage())
	guard := listing.NewGuard()
	store := pagecache.NewMemoryStore()
	cache := pagecache.New(store, time.Minute)

	hook, err := revalidate.NewHandler(revalidate.Deps{Secret: testSecret, Locales: table, Pages: store})
	if err != nil {
		t.Fatalf("revalidate handler: %v", err)
	}

	pages := NewPageHandlers(PageDeps{
		Catalog: svc,
		Locales: table,
		State:   registry,
		Site:    seo.Site{Name: "Strideline", BaseURL: "https://shop.example.com"},
		Cache:   cache.Middleware,
	})
	api := NewAPIHandlers(APIDeps{
		Catalog:      svc,
		Availability: source,
		Locales:      table,
		State:        registry,
		Guard:        guard,
		Revalidate:   hook,
		Idempotency:  idempotency.Middleware(idempotency.NewMemoryStore()),
	})

	router := NewRouter(
		WithMiddlewares(BrowserMiddleware(false), middleware.Locale(table)),
		WithPageRoutes(pages.Routes),
		WithAPIRoutes(api.Routes),
	)
	return &testApp{router: router, guard: guard, pages: store, upstream: upstream, browser: clientstate.NewBrowserID()}
}

func (a *testApp) do(t *testing.T, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: BrowserCookie, Value: a.browser})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

type listingBody struct {
	Locale      string `json:"locale"`
	Country     string `json:"country"`
	Currency    string `json:"currency"`
	Title       string `json:"title"`
	Breadcrumbs []struct {
		Label string `json:"label"`
		Href  string `json:"href"`
	} `json:"breadcrumbs"`
	Listing struct {
		Products []struct {
			ID     string `json:"id"`
			Handle string `json:"handle"`
			Gender string `json:"gender"`
		} `json:"products"`
		TotalCount int  `json:"totalCount"`
		NextOffset int  `json:"nextOffset"`
		HasMore    bool `json:"hasMore"`
		Remaining  int  `json:"remaining"`
	} `json:"listing"`
	FormattedPrices map[string]string `json:"formattedPrices"`
}
