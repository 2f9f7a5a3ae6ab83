package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type recordingQuerier struct {
	query  string
	params map[string]any
	result string
	err    error
}

func (r *recordingQuerier) Query(_ context.Context, query string, params map[string]any, out any) error {
	r.query, r.params = query, params
	if r.err != nil {
		return r.err
	}
	return json.Unmarshal([]byte(r.result), out)
}

func TestBuildProductsQueryGenderAndCategory(t *testing.T) {
	query, params := BuildProductsQuery(Filter{Gender: "men", CategoryPath: []string{"clothing", "shorts"}, Offset: 24, Limit: 24})
	for _, fragment := range []string{
		`gender in [$gender, "unisex"]`,
		`categoryPath[0] == $c0`,
		`categoryPath[1] == $c1`,
		`[$start...$end]`,
		`"totalCount": count(*[`,
		`order(_createdAt desc, _id asc)`,
	} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("query missing %q:\n%s", fragment, query)
		}
	}
	if strings.Contains(query, "categoryPath[2]") {
		t.Fatalf("subcategory query must not constrain deeper levels")
	}
	if params["start"] != 24 || params["end"] != 48 || params["c1"] != "shorts" {
		t.Fatalf("unexpected params %v", params)
	}
}

func TestBuildProductsQuerySearch(t *testing.T) {
	query, params := BuildProductsQuery(Filter{Search: "Distance  shorts"})
	if params["q"] != "distance* shorts*" {
		t.Fatalf("unexpected search pattern %v", params["q"])
	}
	for _, fragment := range []string{
		`boost(title match $q, 3)`,
		`boost(handle.current match $q, 2)`,
		`boost(vendor match $q, 2)`,
		`order(_score desc`,
	} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("query missing %q", fragment)
		}
	}
}

func TestCMSSourceProducts(t *testing.T) {
	q := &recordingQuerier{result: `{
		"products": [{"id":"p1","title":"Distance Shorts 1","handle":"distance-shorts-1","sizes":["M",null,"M","L",""],"categoryPath":["clothing","shorts","running-shorts"],"gender":"Men","createdAt":"2024-02-01T10:00:00Z","priceRange":{"min":899,"max":899}}],
		"totalCount": 31
	}`}
	src := NewCMSSource(q)
	page, err := src.Products(context.Background(), Filter{Brand: "strideline"})
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if page.TotalCount != 31 || len(page.Products) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	p := page.Products[0]
	if strings.Join(p.Sizes, ",") != "M,L" {
		t.Fatalf("expected deduplicated sizes, got %v", p.Sizes)
	}
	if p.Gender != "men" || p.Category.Slug != "running-shorts" || p.CreatedAt == nil {
		t.Fatalf("unexpected normalisation %+v", p)
	}
	if q.params["brand"] != "strideline" {
		t.Fatalf("expected brand param, got %v", q.params)
	}
}

func TestCMSSourceNotFoundAndErrors(t *testing.T) {
	src := NewCMSSource(&recordingQuerier{result: `null`})
	if _, err := src.ProductByHandle(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := src.Brand(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := src.Collection(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	boom := errors.New("boom")
	failing := NewCMSSource(&recordingQuerier{err: boom})
	if _, err := failing.Products(context.Background(), Filter{Gender: "men"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
