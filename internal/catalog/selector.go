package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tags a Selector variant on the wire.
type Kind string

const (
	KindGender      Kind = "gender"
	KindCategory    Kind = "category"
	KindSubcategory Kind = "subcategory"
	KindSpecific    Kind = "specific"
	KindBrand       Kind = "brand"
	KindCollection  Kind = "collection"
	KindSearch      Kind = "search"
)

// Genders that scope a listing. Unisex products appear under both.
const (
	GenderMen    = "men"
	GenderWomen  = "women"
	GenderUnisex = "unisex"
)

// Selector identifies one catalog query. The set of implementations is closed to this package so that
// FilterFor can dispatch exhaustively.
type Selector interface {
	Kind() Kind
	selector()
}

// GenderSelector lists every product for a gender.
type GenderSelector struct {
	Gender string `json:"gender"`
}

// CategorySelector lists a top-level category within a gender.
type CategorySelector struct {
	Gender   string `json:"gender"`
	Category string `json:"category"`
}

// SubcategorySelector lists a second-level category, including everything filed beneath it.
type SubcategorySelector struct {
	Gender      string `json:"gender"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// SpecificSelector lists a third-level category.
type SpecificSelector struct {
	Gender      string `json:"gender"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Specific    string `json:"specific"`
}

// BrandSelector lists a brand's products.
type BrandSelector struct {
	Brand string `json:"brand"`
}

// CollectionSelector lists an editorial collection.
type CollectionSelector struct {
	Collection string `json:"collection"`
}

// SearchSelector runs a free-text search.
type SearchSelector struct {
	Query string `json:"query"`
}

func (GenderSelector) Kind() Kind      { return KindGender }
func (CategorySelector) Kind() Kind    { return KindCategory }
func (SubcategorySelector) Kind() Kind { return KindSubcategory }
func (SpecificSelector) Kind() Kind    { return KindSpecific }
func (BrandSelector) Kind() Kind       { return KindBrand }
func (CollectionSelector) Kind() Kind  { return KindCollection }
func (SearchSelector) Kind() Kind      { return KindSearch }

func (GenderSelector) selector()      {}
func (CategorySelector) selector()    {}
func (SubcategorySelector) selector() {}
func (SpecificSelector) selector()    {}
func (BrandSelector) selector()       {}
func (CollectionSelector) selector()  {}
func (SearchSelector) selector()      {}

// Filter is the flattened query a Source executes.
type Filter struct {
	Gender       string
	CategoryPath []string
	Brand        string
	Collection   string
	Search       string
	Offset       int
	Limit        int
}

// FilterFor maps a selector to its query filter.
func FilterFor(sel Selector) (Filter, error) {
	var f Filter
	switch s := sel.(type) {
	case GenderSelector:
		f = Filter{Gender: s.Gender}
	case CategorySelector:
		f = Filter{Gender: s.Gender, CategoryPath: []string{s.Category}}
	case SubcategorySelector:
		f = Filter{Gender: s.Gender, CategoryPath: []string{s.Category, s.Subcategory}}
	case SpecificSelector:
		f = Filter{Gender: s.Gender, CategoryPath: []string{s.Category, s.Subcategory, s.Specific}}
	case BrandSelector:
		f = Filter{Brand: s.Brand}
	case CollectionSelector:
		f = Filter{Collection: s.Collection}
	case SearchSelector:
		f = Filter{Search: s.Query}
	case nil:
		return Filter{}, fmt.Errorf("%w: missing selector", ErrInvalidSelector)
	default:
		return Filter{}, fmt.Errorf("%w: unsupported selector %T", ErrInvalidSelector, sel)
	}
	return f.normalize()
}

func (f Filter) normalize() (Filter, error) {
	f.Gender = strings.ToLower(strings.TrimSpace(f.Gender))
	f.Brand = strings.TrimSpace(f.Brand)
	f.Collection = strings.TrimSpace(f.Collection)
	f.Search = strings.TrimSpace(f.Search)
	path := make([]string, 0, len(f.CategoryPath))
	for _, seg := range f.CategoryPath {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return Filter{}, fmt.Errorf("%w: empty category segment", ErrInvalidSelector)
		}
		path = append(path, seg)
	}
	f.CategoryPath = path

	if f.Gender != "" && f.Gender != GenderMen && f.Gender != GenderWomen {
		return Filter{}, fmt.Errorf("%w: unknown gender %q", ErrInvalidSelector, f.Gender)
	}
	if f.Gender == "" && f.Brand == "" && f.Collection == "" && f.Search == "" {
		return Filter{}, fmt.Errorf("%w: empty selector", ErrInvalidSelector)
	}
	return f, nil
}

// IsValidGender reports whether g names a gender listing.
func IsValidGender(g string) bool {
	return g == GenderMen || g == GenderWomen
}

type selectorWire struct {
	Kind        Kind   `json:"kind"`
	Gender      string `json:"gender,omitempty"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Specific    string `json:"specific,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Collection  string `json:"collection,omitempty"`
	Query       string `json:"query,omitempty"`
}

// EncodeSelector renders sel with its kind tag.
func EncodeSelector(sel Selector) ([]byte, error) {
	w, err := toWire(sel)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// DecodeSelector parses a tagged selector and rejects unknown kinds and missing parameters.
func DecodeSelector(data []byte) (Selector, error) {
	var w selectorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
	}
	var sel Selector
	switch w.Kind {
	case KindGender:
		sel = GenderSelector{Gender: w.Gender}
	case KindCategory:
		sel = CategorySelector{Gender: w.Gender, Category: w.Category}
	case KindSubcategory:
		sel = SubcategorySelector{Gender: w.Gender, Category: w.Category, Subcategory: w.Subcategory}
	case KindSpecific:
		sel = SpecificSelector{Gender: w.Gender, Category: w.Category, Subcategory: w.Subcategory, Specific: w.Specific}
	case KindBrand:
		sel = BrandSelector{Brand: w.Brand}
	case KindCollection:
		sel = CollectionSelector{Collection: w.Collection}
	case KindSearch:
		sel = SearchSelector{Query: w.Query}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSelector, w.Kind)
	}
	if err := validateSelector(sel); err != nil {
		return nil, err
	}
	return sel, nil
}

func validateSelector(sel Selector) error {
	f, err := FilterFor(sel)
	if err != nil {
		return err
	}
	switch sel.(type) {
	case GenderSelector, CategorySelector, SubcategorySelector, SpecificSelector:
		if f.Gender == "" {
			return fmt.Errorf("%w: %s selector requires a gender", ErrInvalidSelector, sel.Kind())
		}
	}
	return nil
}

func toWire(sel Selector) (selectorWire, error) {
	switch s := sel.(type) {
	case GenderSelector:
		return selectorWire{Kind: KindGender, Gender: s.Gender}, nil
	case CategorySelector:
		return selectorWire{Kind: KindCategory, Gender: s.Gender, Category: s.Category}, nil
	case SubcategorySelector:
		return selectorWire{Kind: KindSubcategory, Gender: s.Gender, Category: s.Category, Subcategory: s.Subcategory}, nil
	case SpecificSelector:
		return selectorWire{Kind: KindSpecific, Gender: s.Gender, Category: s.Category, Subcategory: s.Subcategory, Specific: s.Specific}, nil
	case BrandSelector:
		return selectorWire{Kind: KindBrand, Brand: s.Brand}, nil
	case CollectionSelector:
		return selectorWire{Kind: KindCollection, Collection: s.Collection}, nil
	case SearchSelector:
		return selectorWire{Kind: KindSearch, Query: s.Query}, nil
	default:
		return selectorWire{}, fmt.Errorf("%w: unsupported selector %T", ErrInvalidSelector, sel)
	}
}

// SelectorJSON embeds a Selector in request and response payloads.
type SelectorJSON struct {
	Value Selector
}

// MarshalJSON implements json.Marshaler.
func (s SelectorJSON) MarshalJSON() ([]byte, error) {
	if s.Value == nil {
		return []byte("null"), nil
	}
	return EncodeSelector(s.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SelectorJSON) UnmarshalJSON(data []byte) error {
	sel, err := DecodeSelector(data)
	if err != nil {
		return err
	}
	s.Value = sel
	return nil
}
