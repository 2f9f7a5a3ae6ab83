package revalidate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/strideline/storefront/internal/locale"
	"github.com/strideline/storefront/internal/pagecache"
)

type countingPurger struct{ calls int }

func (c *countingPurger) Purge() { c.calls++ }

type failingStore struct{ pagecache.Store }

func (failingStore) InvalidatePaths(context.Context, []string) (int, error) {
	return 0, errors.New("redis down")
}

func newTestHandler(t *testing.T, store pagecache.Store, purgers ...Purger) *Handler {
	t.Helper()
	h, err := NewHandler(Deps{
		Secret:  "s3cret",
		Locales: locale.Default(),
		Pages:   store,
		Purgers: purgers,
		Clock:   func() time.Time { return time.UnixMilli(1700000000000) },
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h
}

func TestRevalidateRejectsBadSecret(t *testing.T) {
	h := newTestHandler(t, pagecache.NewMemoryStore())
	for _, target := range []string{"/api/revalidate", "/api/revalidate?secret=wrong", "/api/revalidate?secret=s3cret2"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"_type":"product"}`)))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, rec.Code)
		}
	}
}

func TestRevalidateProductPurgesEveryLocale(t *testing.T) {
	ctx := context.Background()
	store := pagecache.NewMemoryStore()
	entry := pagecache.Entry{Status: http.StatusOK, Body: []byte("{}")}
	_ = store.Set(ctx, "/en-se/products/distance-shorts-1", "/en-se/products/distance-shorts-1", entry, time.Minute)
	_ = store.Set(ctx, "/en-no/products/distance-shorts-1", "/en-no/products/distance-shorts-1", entry, time.Minute)
	_ = store.Set(ctx, "/en-se/products/other", "/en-se/products/other", entry, time.Minute)
	purger := &countingPurger{}

	h := newTestHandler(t, store, purger)
	rec := httptest.NewRecorder()
	body := `{"_type":"product","slug":{"current":"distance-shorts-1"}}`
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/revalidate?secret=s3cret", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Revalidated bool     `json:"revalidated"`
		Paths       []string `json:"paths"`
		Purged      int      `json:"purged"`
		Now         int64    `json:"now"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Revalidated || resp.Purged != 2 || resp.Now != 1700000000000 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Paths) != len(locale.Default().Locales()) {
		t.Fatalf("expected one path per locale, got %v", resp.Paths)
	}
	if purger.calls != 1 {
		t.Fatalf("expected upstream cache purge")
	}
	if _, ok, _ := store.Get(ctx, "/en-se/products/other"); !ok {
		t.Fatalf("unrelated product should stay cached")
	}
}

func TestRevalidateStoreFailure(t *testing.T) {
	h := newTestHandler(t, failingStore{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/revalidate?secret=s3cret", strings.NewReader(`{"_type":"brand","slug":"northpace"}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"revalidate_failed"`) {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
}

func TestRevalidateMalformedBody(t *testing.T) {
	h := newTestHandler(t, pagecache.NewMemoryStore())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/revalidate?secret=s3cret", strings.NewReader(`{"_type":`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPathsFor(t *testing.T) {
	cases := []struct {
		name    string
		payload Payload
		want    []string
	}{
		{"product handle", Payload{Type: TypeProduct, Handle: "trail-tee-2"}, []string{"/products/trail-tee-2"}},
		{"product slug", Payload{Type: TypeProduct, Slug: "trail-tee-2"}, []string{"/products/trail-tee-2"}},
		{"product without id", Payload{Type: TypeProduct}, []string{"/"}},
		{"brand", Payload{Type: TypeBrand, Slug: "northpace"}, []string{"/brands/northpace"}},
		{"collection", Payload{Type: TypeCollection, Slug: "race-day"}, []string{"/collections/race-day"}},
		{"category with gender", Payload{Type: TypeCategory, Gender: "women"}, []string{"/women"}},
		{"category without gender", Payload{Type: TypeCategory}, []string{"/men", "/women"}},
		{"other", Payload{Type: "siteSettings"}, []string{"/"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PathsFor(tc.payload); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestLocalizedPaths(t *testing.T) {
	got := LocalizedPaths([]string{"en-se", "en-no"}, []string{"/", "/women"})
	want := []string{"/en-se", "/en-se/women", "/en-no", "/en-no/women"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSlugDecoding(t *testing.T) {
	var p Payload
	if err := json.Unmarshal([]byte(`{"slug":" race-day "}`), &p); err != nil || p.Slug != "race-day" {
		t.Fatalf("string slug: %v %q", err, p.Slug)
	}
	if err := json.Unmarshal([]byte(`{"slug":{"_type":"slug","current":"summer"}}`), &p); err != nil || p.Slug != "summer" {
		t.Fatalf("object slug: %v %q", err, p.Slug)
	}
	if err := json.Unmarshal([]byte(`{"slug":null}`), &p); err != nil || p.Slug != "" {
		t.Fatalf("null slug: %v %q", err, p.Slug)
	}
}
