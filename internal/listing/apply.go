package listing

import (
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/strideline/storefront/internal/catalog"
)

// Apply narrows the already-loaded products to the state's filters and sorts them. It never
// re-queries; dimensions combine with AND, values within a dimension with OR.
func Apply(products []catalog.Product, s State) []catalog.Product {
	out := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		if matches(p, s) {
			out = append(out, p)
		}
	}
	sortProducts(out, s.Sort)
	return out
}

func matches(p catalog.Product, s State) bool {
	if len(s.Sizes) > 0 && !anyIn(p.Sizes, s.Sizes, false) {
		return false
	}
	if len(s.Brands) > 0 && !slices.Contains(s.Brands, strings.ToLower(p.Brand.Slug)) {
		return false
	}
	if len(s.Categories) > 0 && !slices.Contains(s.Categories, strings.ToLower(p.Category.Slug)) && !anyIn(p.CategoryPath, s.Categories, true) {
		return false
	}
	if len(s.Genders) > 0 && p.Gender != catalog.GenderUnisex && !slices.Contains(s.Genders, p.Gender) {
		return false
	}
	return true
}

func anyIn(values, wanted []string, fold bool) bool {
	for _, v := range values {
		if fold {
			v = strings.ToLower(v)
		}
		if slices.Contains(wanted, v) {
			return true
		}
	}
	return false
}

func sortProducts(products []catalog.Product, order Sort) {
	switch order {
	case SortNewest:
		sort.SliceStable(products, func(i, j int) bool {
			a, b := products[i].CreatedAt, products[j].CreatedAt
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			return a.After(*b)
		})
	case SortPriceAsc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].PriceRange.Min < products[j].PriceRange.Min
		})
	case SortPriceDesc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].PriceRange.Min > products[j].PriceRange.Min
		})
	case SortNameAsc, SortNameDesc:
		col := collate.New(language.English, collate.IgnoreCase, collate.IgnoreDiacritics)
		sort.SliceStable(products, func(i, j int) bool {
			cmp := col.CompareString(products[i].Title, products[j].Title)
			if order == SortNameDesc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
}
