package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Querier runs a GROQ query against the CMS and decodes the result into out.
type Querier interface {
	Query(ctx context.Context, query string, params map[string]any, out any) error
}

// Source executes catalog queries.
type Source interface {
	Products(ctx context.Context, f Filter) (Page, error)
	ProductByHandle(ctx context.Context, handle string) (ProductDetail, error)
	Brand(ctx context.Context, slug string) (Brand, error)
	Collection(ctx context.Context, slug string) (Collection, error)
}

const productProjection = `{
  "id": _id,
  "commerceId": store.gid,
  title,
  "handle": handle.current,
  vendor,
  "brand": brand->{name, "slug": slug.current},
  "image": {
    "url": mainImage.asset->url,
    "alt": coalesce(mainImage.alt, title),
    "lqip": mainImage.asset->metadata.lqip
  },
  "priceRange": {
    "min": store.priceRange.minVariantPrice,
    "max": store.priceRange.maxVariantPrice,
    "currency": store.priceRange.currencyCode
  },
  "sizes": store.variants[]->store.option1,
  "category": category->{title, "slug": slug.current},
  categoryPath,
  gender,
  tags,
  "collections": collections[]->slug.current,
  "createdAt": _createdAt
}`

const detailProjection = `{
  ...` + productProjection + `,
  description,
  "gallery": gallery[]{"url": asset->url, "alt": coalesce(alt, ^.title), "lqip": asset->metadata.lqip},
  "variants": store.variants[]->{
    "id": store.gid,
    "title": store.title,
    "size": store.option1,
    "color": store.option2,
    "sku": store.sku,
    "price": store.price,
    "available": store.inventory.isAvailable
  }
}`

// scoreExpr ranks title above handle and vendor, which rank above the unboosted fields.
const scoreExpr = `score(
  boost(title match $q, 3),
  boost(handle.current match $q, 2),
  boost(vendor match $q, 2),
  brand->name match $q,
  category->title match $q,
  tags[] match $q
)`

const searchMatch = `(title match $q || handle.current match $q || vendor match $q || brand->name match $q || category->title match $q || tags[] match $q)`

// CMSSource builds GROQ queries for the headless CMS.
type CMSSource struct {
	client Querier
}

// NewCMSSource wraps a CMS query client.
func NewCMSSource(client Querier) *CMSSource {
	return &CMSSource{client: client}
}

// BuildProductsQuery renders the listing query for f and its parameters. The total is counted over the
// same constraint so it does not depend on the requested slice.
func BuildProductsQuery(f Filter) (string, map[string]any) {
	params := map[string]any{}
	clauses := []string{`_type == "product"`, `!(_id in path("drafts.**"))`}

	if f.Gender != "" {
		clauses = append(clauses, `gender in [$gender, "unisex"]`)
		params["gender"] = f.Gender
	}
	for i, seg := range f.CategoryPath {
		key := fmt.Sprintf("c%d", i)
		clauses = append(clauses, fmt.Sprintf("categoryPath[%d] == $%s", i, key))
		params[key] = seg
	}
	if f.Brand != "" {
		clauses = append(clauses, `brand->slug.current == $brand`)
		params["brand"] = f.Brand
	}
	if f.Collection != "" {
		clauses = append(clauses, `$collection in collections[]->slug.current`)
		params["collection"] = f.Collection
	}

	order := `order(_createdAt desc, _id asc)`
	if f.Search != "" {
		clauses = append(clauses, searchMatch)
		params["q"] = searchPattern(f.Search)
		order = scoreExpr + ` | order(_score desc, _createdAt desc, _id asc)`
	}

	start, limit := f.Offset, f.Limit
	if start < 0 {
		start = 0
	}
	if limit <= 0 {
		limit = PageSize
	}
	params["start"] = start
	params["end"] = start + limit

	constraint := strings.Join(clauses, " && ")
	query := fmt.Sprintf(`{
  "products": *[%s] | %s [$start...$end] %s,
  "totalCount": count(*[%s])
}`, constraint, order, productProjection, constraint)
	return query, params
}

// searchPattern turns each word into a prefix wildcard.
func searchPattern(term string) string {
	words := searchTerms(term)
	for i, w := range words {
		words[i] = w + "*"
	}
	return strings.Join(words, " ")
}

// Products runs the listing query.
func (s *CMSSource) Products(ctx context.Context, f Filter) (Page, error) {
	query, params := BuildProductsQuery(f)
	var result struct {
		Products   []Product `json:"products"`
		TotalCount int       `json:"totalCount"`
	}
	if err := s.client.Query(ctx, query, params, &result); err != nil {
		return Page{}, fmt.Errorf("catalog: products query: %w", err)
	}
	page := Page{Products: make([]Product, 0, len(result.Products)), TotalCount: result.TotalCount}
	for _, p := range result.Products {
		page.Products = append(page.Products, normalizeProduct(p))
	}
	return page, nil
}

// ProductByHandle fetches a product detail document.
func (s *CMSSource) ProductByHandle(ctx context.Context, handle string) (ProductDetail, error) {
	query := `*[_type == "product" && handle.current == $handle && !(_id in path("drafts.**"))][0]` + detailProjection
	var result *struct {
		Product
		Description string    `json:"description"`
		Gallery     []Image   `json:"gallery"`
		Variants    []Variant `json:"variants"`
	}
	if err := s.client.Query(ctx, query, map[string]any{"handle": handle}, &result); err != nil {
		return ProductDetail{}, fmt.Errorf("catalog: product query: %w", err)
	}
	if result == nil {
		return ProductDetail{}, ErrNotFound
	}
	return ProductDetail{
		Product:     normalizeProduct(result.Product),
		Description: result.Description,
		Gallery:     result.Gallery,
		Variants:    result.Variants,
	}, nil
}

// Brand fetches a brand by slug.
func (s *CMSSource) Brand(ctx context.Context, slug string) (Brand, error) {
	var result *Brand
	query := `*[_type == "brand" && slug.current == $slug][0]{name, "slug": slug.current}`
	if err := s.client.Query(ctx, query, map[string]any{"slug": slug}, &result); err != nil {
		return Brand{}, fmt.Errorf("catalog: brand query: %w", err)
	}
	if result == nil {
		return Brand{}, ErrNotFound
	}
	return *result, nil
}

// Collection fetches a collection by slug.
func (s *CMSSource) Collection(ctx context.Context, slug string) (Collection, error) {
	var result *Collection
	query := `*[_type == "collection" && slug.current == $slug][0]{title, "slug": slug.current, description}`
	if err := s.client.Query(ctx, query, map[string]any{"slug": slug}, &result); err != nil {
		return Collection{}, fmt.Errorf("catalog: collection query: %w", err)
	}
	if result == nil {
		return Collection{}, ErrNotFound
	}
	return *result, nil
}
