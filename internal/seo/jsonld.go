package seo

import (
	"strconv"
)

const schemaContext = "https://schema.org"

// schema.org availability values.
const (
	InStock    = "https://schema.org/InStock"
	OutOfStock = "https://schema.org/OutOfStock"
)

// WebSite returns a WebSite schema with a SearchAction pointing at the search page.
func WebSite(name, url, searchURL string) map[string]any {
	m := map[string]any{
		"@context": schemaContext,
		"@type":    "WebSite",
		"name":     name,
	}
	if url != "" {
		m["url"] = url
	}
	if searchURL != "" {
		m["potentialAction"] = map[string]any{
			"@type":       "SearchAction",
			"target":      searchURL + "?q={search_term_string}",
			"query-input": "required name=search_term_string",
		}
	}
	return m
}

// BreadcrumbItem maps name and absolute item URL.
type BreadcrumbItem struct {
	Name string
	Item string
}

// BreadcrumbList builds schema.org BreadcrumbList.
func BreadcrumbList(items []BreadcrumbItem) map[string]any {
	el := make([]map[string]any, 0, len(items))
	for i, it := range items {
		el = append(el, map[string]any{
			"@type":    "ListItem",
			"position": i + 1,
			"name":     it.Name,
			"item":     it.Item,
		})
	}
	return map[string]any{
		"@context":        schemaContext,
		"@type":           "BreadcrumbList",
		"itemListElement": el,
	}
}

// Offer is the priced, market-specific side of a Product schema.
type Offer struct {
	LowPrice     float64
	HighPrice    float64
	Currency     string
	Available    bool
	OfferCount   int
	CanonicalURL string
}

// ProductInput describes a product for JSON-LD.
type ProductInput struct {
	Name        string
	Description string
	URL         string
	Image       string
	SKU         string
	Brand       string
	Offer       Offer
}

// Product returns a Product schema. A price range becomes an AggregateOffer.
func Product(in ProductInput) map[string]any {
	m := map[string]any{
		"@context":    schemaContext,
		"@type":       "Product",
		"name":        in.Name,
		"description": in.Description,
	}
	if in.URL != "" {
		m["url"] = in.URL
	}
	if in.Image != "" {
		m["image"] = in.Image
	}
	if in.SKU != "" {
		m["sku"] = in.SKU
	}
	if in.Brand != "" {
		m["brand"] = map[string]any{"@type": "Brand", "name": in.Brand}
	}
	if in.Offer.Currency != "" {
		m["offers"] = offer(in.Offer)
	}
	return m
}

func offer(o Offer) map[string]any {
	availability := OutOfStock
	if o.Available {
		availability = InStock
	}
	if o.HighPrice > o.LowPrice {
		m := map[string]any{
			"@type":         "AggregateOffer",
			"lowPrice":      price(o.LowPrice),
			"highPrice":     price(o.HighPrice),
			"priceCurrency": o.Currency,
			"availability":  availability,
		}
		if o.OfferCount > 0 {
			m["offerCount"] = o.OfferCount
		}
		return m
	}
	m := map[string]any{
		"@type":         "Offer",
		"price":         price(o.LowPrice),
		"priceCurrency": o.Currency,
		"availability":  availability,
	}
	if o.CanonicalURL != "" {
		m["url"] = o.CanonicalURL
	}
	return m
}

// price renders whole units without a fraction when possible; schema.org expects a dot decimal.
func price(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
