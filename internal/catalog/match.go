package catalog

import (
	"slices"
	"strings"
	"unicode"
)

// Search weights. Title outranks handle and vendor, which outrank the unboosted fields.
const (
	titleBoost  = 3
	handleBoost = 2
	vendorBoost = 2
	plainBoost  = 1
)

// Matches reports whether p satisfies every constraint in f.
func (f Filter) Matches(p Product) bool {
	if f.Gender != "" && p.Gender != f.Gender && p.Gender != GenderUnisex {
		return false
	}
	if !hasPrefix(p.CategoryPath, f.CategoryPath) {
		return false
	}
	if f.Brand != "" && p.Brand.Slug != f.Brand {
		return false
	}
	if f.Collection != "" && !slices.Contains(p.Collections, f.Collection) {
		return false
	}
	if f.Search != "" && f.Score(p) == 0 {
		return false
	}
	return true
}

// Score ranks p against the search term. Zero means no field matched.
func (f Filter) Score(p Product) int {
	terms := searchTerms(f.Search)
	if len(terms) == 0 {
		return 0
	}
	score := 0
	if fieldMatches(p.Title, terms) {
		score += titleBoost
	}
	if fieldMatches(p.Handle, terms) {
		score += handleBoost
	}
	if fieldMatches(p.Vendor, terms) {
		score += vendorBoost
	}
	if fieldMatches(p.Brand.Name, terms) {
		score += plainBoost
	}
	if fieldMatches(p.Category.Title, terms) {
		score += plainBoost
	}
	for _, tag := range p.Tags {
		if fieldMatches(tag, terms) {
			score += plainBoost
			break
		}
	}
	return score
}

// fieldMatches applies prefix matching per token: every term must prefix some word of the field.
func fieldMatches(field string, terms []string) bool {
	words := searchTerms(field)
	if len(words) == 0 {
		return false
	}
	for _, term := range terms {
		found := false
		for _, word := range words {
			if strings.HasPrefix(word, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func searchTerms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i, seg := range prefix {
		if path[i] != seg {
			return false
		}
	}
	return true
}
