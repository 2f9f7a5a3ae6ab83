package listing

import (
	"net/url"
	"slices"
	"strings"
)

// Sort orders a listing client-side.
type Sort string

const (
	SortDefault   Sort = ""
	SortNewest    Sort = "newest"
	SortPriceAsc  Sort = "price-asc"
	SortPriceDesc Sort = "price-desc"
	SortNameAsc   Sort = "name-asc"
	SortNameDesc  Sort = "name-desc"
)

// Query parameter names for filter state.
const (
	ParamSize     = "size"
	ParamBrand    = "brand"
	ParamCategory = "category"
	ParamGender   = "gender"
	ParamSort     = "sort"
)

// State is the filter and sort selection carried in the URL.
type State struct {
	Sizes      []string `json:"sizes,omitempty"`
	Brands     []string `json:"brands,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Genders    []string `json:"genders,omitempty"`
	Sort       Sort     `json:"sort,omitempty"`
}

// ParseSort returns the sort named by raw, or SortDefault when unrecognised.
func ParseSort(raw string) Sort {
	switch s := Sort(strings.ToLower(strings.TrimSpace(raw))); s {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc:
		return s
	default:
		return SortDefault
	}
}

// ParseState reads filter state from query values. Each dimension accepts repeated keys and
// comma-separated values.
func ParseState(values url.Values) State {
	return State{
		Sizes:      multi(values[ParamSize], false),
		Brands:     multi(values[ParamBrand], true),
		Categories: multi(values[ParamCategory], true),
		Genders:    multi(values[ParamGender], true),
		Sort:       ParseSort(values.Get(ParamSort)),
	}
}

// Values writes the state back as canonical query values.
func (s State) Values() url.Values {
	values := url.Values{}
	set := func(key string, list []string) {
		if len(list) > 0 {
			values.Set(key, strings.Join(list, ","))
		}
	}
	set(ParamBrand, s.Brands)
	set(ParamCategory, s.Categories)
	set(ParamGender, s.Genders)
	set(ParamSize, s.Sizes)
	if s.Sort != SortDefault {
		values.Set(ParamSort, string(s.Sort))
	}
	return values
}

// Encode renders the canonical query string; equal states encode identically.
func (s State) Encode() string {
	return s.Values().Encode()
}

// IsZero reports whether no filter or sort is active.
func (s State) IsZero() bool {
	return len(s.Sizes) == 0 && len(s.Brands) == 0 && len(s.Categories) == 0 && len(s.Genders) == 0 && s.Sort == SortDefault
}

func multi(raw []string, lower bool) []string {
	var out []string
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if lower {
				part = strings.ToLower(part)
			}
			if part != "" {
				out = append(out, part)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
