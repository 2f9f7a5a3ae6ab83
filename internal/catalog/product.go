package catalog

import (
	"errors"
	"strings"
	"time"
)

// PageSize is shared by the initial listing fetch and every load-more request.
const PageSize = 24

var (
	// ErrNotFound is returned when a product, brand or collection does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInvalidSelector indicates a selector with an unknown kind or missing parameters.
	ErrInvalidSelector = errors.New("catalog: invalid selector")
)

// Brand identifies a product brand.
type Brand struct {
	Name string `json:"name" yaml:"name"`
	Slug string `json:"slug" yaml:"slug"`
}

// Collection is an editorial product grouping.
type Collection struct {
	Title       string `json:"title" yaml:"title"`
	Slug        string `json:"slug" yaml:"slug"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Image is a CDN image with its low-quality placeholder.
type Image struct {
	URL  string `json:"url" yaml:"url"`
	Alt  string `json:"alt" yaml:"alt"`
	LQIP string `json:"lqip,omitempty" yaml:"lqip"`
}

// PriceRange holds whole-unit amounts (1499 means 1499 SEK, not cents).
type PriceRange struct {
	Min      float64 `json:"min" yaml:"min"`
	Max      float64 `json:"max" yaml:"max"`
	Currency string  `json:"currency,omitempty" yaml:"currency"`
}

// Category is the leaf category a product is filed under.
type Category struct {
	Title string `json:"title" yaml:"title"`
	Slug  string `json:"slug" yaml:"slug"`
}

// Product is the listing projection of a catalog product.
type Product struct {
	ID           string     `json:"id"`
	CommerceID   string     `json:"commerceId,omitempty"`
	Title        string     `json:"title"`
	Handle       string     `json:"handle"`
	Vendor       string     `json:"vendor,omitempty"`
	Brand        Brand      `json:"brand"`
	Image        Image      `json:"image"`
	PriceRange   PriceRange `json:"priceRange"`
	Sizes        []string   `json:"sizes"`
	Category     Category   `json:"category"`
	CategoryPath []string   `json:"categoryPath,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Collections  []string   `json:"collections,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
}

// Variant is one purchasable size/color combination.
type Variant struct {
	ID        string  `json:"id"`
	Title     string  `json:"title,omitempty"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
	SKU       string  `json:"sku,omitempty"`
	Price     float64 `json:"price"`
	Available bool    `json:"available"`
}

// ProductDetail extends the listing projection with detail view content.
type ProductDetail struct {
	Product
	Description     string    `json:"-"`
	DescriptionHTML string    `json:"descriptionHtml,omitempty"`
	Variants        []Variant `json:"variants"`
	Gallery         []Image   `json:"gallery,omitempty"`
}

// Page is one slice of a listing query plus the total size of the result set.
type Page struct {
	Products   []Product `json:"products"`
	TotalCount int       `json:"totalCount"`
	// Degraded marks an empty page served in place of a failed upstream query.
	Degraded bool `json:"-"`
}

// DedupeSizes drops empty and repeated values, keeping first-seen order.
func DedupeSizes(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func normalizeProduct(p Product) Product {
	p.Sizes = DedupeSizes(p.Sizes)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	if p.Category.Slug == "" && len(p.CategoryPath) > 0 {
		p.Category.Slug = p.CategoryPath[len(p.CategoryPath)-1]
	}
	if p.Image.Alt == "" {
		p.Image.Alt = p.Title
	}
	if p.CreatedAt != nil && p.CreatedAt.IsZero() {
		p.CreatedAt = nil
	}
	return p
}
