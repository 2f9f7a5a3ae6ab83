// Package locale maps URL locale tokens ("en-se") to storefront markets and back.
package locale

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Language is the only storefront language; every locale token is Language + "-" + country.
const Language = "en"

//go:embed countries.yaml
var embeddedCountries []byte

// Country is a row of the static market table.
type Country struct {
	Code     string `yaml:"code" json:"code"`
	Name     string `yaml:"name" json:"name"`
	Currency string `yaml:"currency" json:"currency"`
	Locale   string `yaml:"-" json:"locale"`
	Default  bool   `yaml:"default" json:"-"`
}

// Table is an immutable lookup between locales and countries. It is safe for concurrent use.
type Table struct {
	byCountry      map[string]Country
	byLocale       map[string]Country
	ordered        []Country
	defaultCountry Country
}

var (
	// ErrNoDefault is returned when the table does not mark exactly one default market.
	ErrNoDefault = errors.New("locale: exactly one default country is required")

	defaultTable = sync.OnceValue(func() *Table {
		t, err := Parse(embeddedCountries)
		if err != nil {
			panic(fmt.Sprintf("locale: embedded country table: %v", err))
		}
		return t
	})
)

// Default returns the table compiled into the binary.
func Default() *Table { return defaultTable() }

// Parse builds a Table from YAML of the form {countries: [{code, name, currency, default}]}.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		Countries []Country `yaml:"countries"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("locale: parse table: %w", err)
	}
	return New(doc.Countries)
}

// New validates the rows and builds a Table.
func New(countries []Country) (*Table, error) {
	t := &Table{
		byCountry: make(map[string]Country, len(countries)),
		byLocale:  make(map[string]Country, len(countries)),
	}
	defaults := 0
	for _, c := range countries {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		region, err := language.ParseRegion(code)
		if err != nil || !region.IsCountry() || len(code) != 2 {
			return nil, fmt.Errorf("locale: invalid country code %q", c.Code)
		}
		unit, err := currency.ParseISO(strings.TrimSpace(c.Currency))
		if err != nil {
			return nil, fmt.Errorf("locale: invalid currency %q for %s: %w", c.Currency, code, err)
		}
		if _, dup := t.byCountry[code]; dup {
			return nil, fmt.Errorf("locale: duplicate country %s", code)
		}
		c.Code = code
		c.Currency = unit.String()
		c.Name = strings.TrimSpace(c.Name)
		c.Locale = Language + "-" + strings.ToLower(code)
		t.byCountry[code] = c
		t.byLocale[c.Locale] = c
		t.ordered = append(t.ordered, c)
		if c.Default {
			defaults++
			t.defaultCountry = c
		}
	}
	if defaults != 1 {
		return nil, ErrNoDefault
	}
	sort.SliceStable(t.ordered, func(i, j int) bool { return t.ordered[i].Name < t.ordered[j].Name })
	return t, nil
}

// LocaleToCountry returns the country for a supported locale; anything else yields the default country.
func (t *Table) LocaleToCountry(locale string) string {
	if c, ok := t.byLocale[locale]; ok {
		return c.Code
	}
	return t.defaultCountry.Code
}

// CountryToLocale matches the country code case-insensitively; unknown codes yield the default locale.
func (t *Table) CountryToLocale(country string) string {
	if c, ok := t.byCountry[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return c.Locale
	}
	return t.defaultCountry.Locale
}

// IsValidLocale reports strict membership in the supported set.
func (t *Table) IsValidLocale(token string) bool {
	_, ok := t.byLocale[token]
	return ok
}

// IsSupportedCountry reports whether the country code (any case) is a market.
func (t *Table) IsSupportedCountry(country string) bool {
	_, ok := t.byCountry[strings.ToUpper(strings.TrimSpace(country))]
	return ok
}

// Country returns the market row for a country code.
func (t *Table) Country(code string) (Country, bool) {
	c, ok := t.byCountry[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// CurrencyFor returns the market currency, falling back to the default market's.
func (t *Table) CurrencyFor(country string) string {
	if c, ok := t.Country(country); ok {
		return c.Currency
	}
	return t.defaultCountry.Currency
}

// Countries lists markets ordered by display name.
func (t *Table) Countries() []Country {
	out := make([]Country, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Locales lists every supported locale token.
func (t *Table) Locales() []string {
	out := make([]string, 0, len(t.ordered))
	for _, c := range t.ordered {
		out = append(out, c.Locale)
	}
	sort.Strings(out)
	return out
}

// DefaultCountry returns the default market code.
func (t *Table) DefaultCountry() string { return t.defaultCountry.Code }

// DefaultLocale returns the default locale token.
func (t *Table) DefaultLocale() string { return t.defaultCountry.Locale }

// LooksLikeLocale reports whether a path segment has the locale shape: "en-" followed by two ASCII letters.
func LooksLikeLocale(segment string) bool {
	if len(segment) != len(Language)+3 || !strings.HasPrefix(segment, Language+"-") {
		return false
	}
	for _, r := range segment[len(Language)+1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
