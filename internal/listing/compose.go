package listing

import (
	"sort"

	"github.com/strideline/storefront/internal/catalog"
)

// FacetValue is one selectable filter value and how many loaded products carry it.
type FacetValue struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Facets lists the filter values available in the loaded product set.
type Facets struct {
	Sizes      []FacetValue `json:"sizes"`
	Brands     []FacetValue `json:"brands"`
	Categories []FacetValue `json:"categories"`
	Genders    []FacetValue `json:"genders"`
}

// Listing is the composed payload for a product grid.
type Listing struct {
	Products   []catalog.Product    `json:"products"`
	TotalCount int                  `json:"totalCount"`
	Loaded     int                  `json:"loaded"`
	Remaining  int                  `json:"remaining"`
	NextOffset int                  `json:"nextOffset"`
	HasMore    bool                 `json:"hasMore"`
	PageSize   int                  `json:"pageSize"`
	Selector   catalog.SelectorJSON `json:"selector"`
	State      State                `json:"state"`
	Query      string               `json:"query"`
	Facets     Facets               `json:"facets"`
}

// Compose combines a fetched page at offset with the URL filter state. Counts describe the
// server-side result; Products holds only what survives the client-side filters.
func Compose(page catalog.Page, offset int, s State, sel catalog.Selector) Listing {
	if offset < 0 {
		offset = 0
	}
	loaded := offset + len(page.Products)
	remaining := max(page.TotalCount-loaded, 0)
	return Listing{
		Products:   Apply(page.Products, s),
		TotalCount: page.TotalCount,
		Loaded:     loaded,
		Remaining:  remaining,
		NextOffset: loaded,
		HasMore:    remaining > 0 && len(page.Products) > 0,
		PageSize:   catalog.PageSize,
		Selector:   catalog.SelectorJSON{Value: sel},
		State:      s,
		Query:      s.Encode(),
		Facets:     BuildFacets(page.Products),
	}
}

// BuildFacets counts filter values across products.
func BuildFacets(products []catalog.Product) Facets {
	sizes := newCounter()
	brands := newCounter()
	categories := newCounter()
	genders := newCounter()
	for _, p := range products {
		for _, size := range p.Sizes {
			sizes.add(size, size)
		}
		if p.Brand.Slug != "" {
			brands.add(p.Brand.Slug, p.Brand.Name)
		}
		if p.Category.Slug != "" {
			label := p.Category.Title
			if label == "" {
				label = catalog.Humanize(p.Category.Slug)
			}
			categories.add(p.Category.Slug, label)
		}
		if p.Gender != "" {
			genders.add(p.Gender, catalog.Humanize(p.Gender))
		}
	}
	return Facets{
		Sizes:      sizes.values(false),
		Brands:     brands.values(true),
		Categories: categories.values(true),
		Genders:    genders.values(true),
	}
}

type counter struct {
	order  []string
	counts map[string]*FacetValue
}

func newCounter() *counter {
	return &counter{counts: map[string]*FacetValue{}}
}

func (c *counter) add(value, label string) {
	if fv, ok := c.counts[value]; ok {
		fv.Count++
		return
	}
	c.order = append(c.order, value)
	c.counts[value] = &FacetValue{Value: value, Label: label, Count: 1}
}

// values keeps first-seen order for sizes (size charts are not alphabetical) and sorts the rest by label.
func (c *counter) values(byLabel bool) []FacetValue {
	out := make([]FacetValue, 0, len(c.order))
	for _, v := range c.order {
		out = append(out, *c.counts[v])
	}
	if byLabel {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	}
	return out
}

// ExcludeLoaded drops products the client already holds.
func ExcludeLoaded(products []catalog.Product, loadedIDs []string) []catalog.Product {
	if len(loadedIDs) == 0 {
		return products
	}
	seen := make(map[string]struct{}, len(loadedIDs))
	for _, id := range loadedIDs {
		seen[id] = struct{}{}
	}
	out := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
