package catalog

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dataset is the fixture document format consumed by MemorySource.
type Dataset struct {
	Brands      []Brand          `yaml:"brands"`
	Collections []Collection     `yaml:"collections"`
	Products    []fixtureProduct `yaml:"products"`
}

type fixtureProduct struct {
	ID            string           `yaml:"id"`
	CommerceID    string           `yaml:"commerce_id"`
	Title         string           `yaml:"title"`
	Handle        string           `yaml:"handle"`
	Vendor        string           `yaml:"vendor"`
	Brand         string           `yaml:"brand"`
	Gender        string           `yaml:"gender"`
	CategoryPath  []string         `yaml:"category_path"`
	CategoryTitle string           `yaml:"category_title"`
	Tags          []string         `yaml:"tags"`
	Collections   []string         `yaml:"collections"`
	CreatedAt     string           `yaml:"created_at"`
	Price         PriceRange       `yaml:"price"`
	Image         Image            `yaml:"image"`
	Gallery       []Image          `yaml:"gallery"`
	Description   string           `yaml:"description"`
	Variants      []fixtureVariant `yaml:"variants"`
}

type fixtureVariant struct {
	ID          string   `yaml:"id"`
	Size        string   `yaml:"size"`
	Color       string   `yaml:"color"`
	SKU         string   `yaml:"sku"`
	Price       *float64 `yaml:"price"`
	Unavailable bool     `yaml:"unavailable"`
}

// MemorySource serves catalog queries from an in-memory dataset with the same semantics as the CMS
// queries. It backs local development without CMS credentials.
type MemorySource struct {
	products    []ProductDetail
	brands      map[string]Brand
	collections map[string]Collection
	variants    map[string]bool
}

// LoadDataset reads a YAML fixture file.
func LoadDataset(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("catalog: read fixtures: %w", err)
	}
	return ParseDataset(raw)
}

// ParseDataset decodes YAML fixture content.
func ParseDataset(raw []byte) (Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return Dataset{}, fmt.Errorf("catalog: parse fixtures: %w", err)
	}
	return ds, nil
}

// NewMemorySource indexes a dataset. Product handles must be unique.
func NewMemorySource(ds Dataset) (*MemorySource, error) {
	src := &MemorySource{
		brands:      make(map[string]Brand, len(ds.Brands)),
		collections: make(map[string]Collection, len(ds.Collections)),
		variants:    map[string]bool{},
	}
	for _, b := range ds.Brands {
		src.brands[b.Slug] = b
	}
	for _, c := range ds.Collections {
		src.collections[c.Slug] = c
	}

	handles := make(map[string]struct{}, len(ds.Products))
	for i, fp := range ds.Products {
		if strings.TrimSpace(fp.Handle) == "" {
			return nil, fmt.Errorf("catalog: fixture product %d has no handle", i)
		}
		if _, dup := handles[fp.Handle]; dup {
			return nil, fmt.Errorf("catalog: duplicate fixture handle %q", fp.Handle)
		}
		handles[fp.Handle] = struct{}{}

		detail, err := src.toDetail(fp)
		if err != nil {
			return nil, err
		}
		for _, v := range detail.Variants {
			src.variants[v.ID] = v.Available
		}
		src.products = append(src.products, detail)
	}
	return src, nil
}

func (m *MemorySource) toDetail(fp fixtureProduct) (ProductDetail, error) {
	brand, ok := m.brands[fp.Brand]
	if !ok && fp.Brand != "" {
		brand = Brand{Name: Humanize(fp.Brand), Slug: fp.Brand}
	}
	p := Product{
		ID:           fp.ID,
		CommerceID:   fp.CommerceID,
		Title:        fp.Title,
		Handle:       fp.Handle,
		Vendor:       fp.Vendor,
		Brand:        brand,
		Image:        fp.Image,
		PriceRange:   fp.Price,
		Category:     Category{Title: fp.CategoryTitle},
		CategoryPath: fp.CategoryPath,
		Gender:       fp.Gender,
		Tags:         fp.Tags,
		Collections:  fp.Collections,
	}
	if p.ID == "" {
		p.ID = "product-" + fp.Handle
	}
	if fp.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, fp.CreatedAt)
		if err != nil {
			return ProductDetail{}, fmt.Errorf("catalog: fixture %q created_at: %w", fp.Handle, err)
		}
		p.CreatedAt = &ts
	}

	variants := make([]Variant, 0, len(fp.Variants))
	sizes := make([]string, 0, len(fp.Variants))
	for i, fv := range fp.Variants {
		price := fp.Price.Min
		if fv.Price != nil {
			price = *fv.Price
		}
		id := fv.ID
		if id == "" {
			id = fmt.Sprintf("%s-variant-%d", p.ID, i+1)
		}
		variants = append(variants, Variant{
			ID:        id,
			Title:     variantTitle(fv.Size, fv.Color),
			Size:      fv.Size,
			Color:     fv.Color,
			SKU:       fv.SKU,
			Price:     price,
			Available: !fv.Unavailable,
		})
		sizes = append(sizes, fv.Size)
	}
	p.Sizes = sizes

	return ProductDetail{
		Product:     normalizeProduct(p),
		Description: fp.Description,
		Variants:    variants,
		Gallery:     fp.Gallery,
	}, nil
}

// Products evaluates f over the dataset.
func (m *MemorySource) Products(_ context.Context, f Filter) (Page, error) {
	type scored struct {
		product Product
		score   int
	}
	matched := make([]scored, 0, len(m.products))
	for _, d := range m.products {
		if !f.Matches(d.Product) {
			continue
		}
		s := scored{product: d.Product}
		if f.Search != "" {
			s.score = f.Score(d.Product)
		}
		matched = append(matched, s)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return newerFirst(matched[i].product, matched[j].product)
	})

	total := len(matched)
	start, end := pageBounds(f.Offset, f.Limit, total)
	products := make([]Product, 0, end-start)
	for _, s := range matched[start:end] {
		products = append(products, s.product)
	}
	return Page{Products: products, TotalCount: total}, nil
}

// ProductByHandle returns the detail document for handle.
func (m *MemorySource) ProductByHandle(_ context.Context, handle string) (ProductDetail, error) {
	for _, d := range m.products {
		if d.Handle == handle {
			d.Variants = slices.Clone(d.Variants)
			d.Gallery = slices.Clone(d.Gallery)
			return d, nil
		}
	}
	return ProductDetail{}, ErrNotFound
}

// Brand returns a brand by slug.
func (m *MemorySource) Brand(_ context.Context, slug string) (Brand, error) {
	if b, ok := m.brands[slug]; ok {
		return b, nil
	}
	return Brand{}, ErrNotFound
}

// Collection returns a collection by slug.
func (m *MemorySource) Collection(_ context.Context, slug string) (Collection, error) {
	if c, ok := m.collections[slug]; ok {
		return c, nil
	}
	return Collection{}, ErrNotFound
}

// Availability reports fixture availability per variant id; unknown ids are unavailable.
func (m *MemorySource) Availability(_ context.Context, variantIDs []string, _ string) map[string]bool {
	out := make(map[string]bool, len(variantIDs))
	for _, id := range variantIDs {
		out[id] = m.variants[id]
	}
	return out
}

// newerFirst orders by creation time descending, then id, so pagination is stable across requests.
func newerFirst(a, b Product) bool {
	switch {
	case a.CreatedAt != nil && b.CreatedAt != nil && !a.CreatedAt.Equal(*b.CreatedAt):
		return a.CreatedAt.After(*b.CreatedAt)
	case a.CreatedAt != nil && b.CreatedAt == nil:
		return true
	case a.CreatedAt == nil && b.CreatedAt != nil:
		return false
	}
	return a.ID < b.ID
}

func pageBounds(offset, limit, total int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = PageSize
	}
	start := min(offset, total)
	end := min(start+limit, total)
	return start, end
}

func variantTitle(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " / ")
}
