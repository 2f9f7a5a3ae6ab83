// Package seo builds page metadata and schema.org payloads for storefront pages.
package seo

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// DescriptionLimit bounds meta descriptions.
const DescriptionLimit = 160

// OpenGraph mirrors the og:* tags.
type OpenGraph struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Type        string `json:"type"`
	Locale      string `json:"locale,omitempty"`
}

// Alternate is one hreflang link.
type Alternate struct {
	Hreflang string `json:"hreflang"`
	Href     string `json:"href"`
}

// Meta is the head metadata for a page.
type Meta struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Canonical   string      `json:"canonical"`
	Alternates  []Alternate `json:"alternates,omitempty"`
	OG          OpenGraph   `json:"og"`
}

// Site renders absolute URLs for a storefront.
type Site struct {
	Name          string
	BaseURL       string
	Locales       []string
	DefaultLocale string
}

// URL joins the base URL and path.
func (s Site) URL(path string) string {
	base := strings.TrimRight(s.BaseURL, "/")
	if path == "" || path == "/" {
		return base + "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Alternates lists the page at path (without locale) in every locale, plus x-default.
func (s Site) Alternates(path string) []Alternate {
	if path == "/" {
		path = ""
	}
	out := make([]Alternate, 0, len(s.Locales)+1)
	for _, loc := range s.Locales {
		out = append(out, Alternate{Hreflang: loc, Href: s.URL("/" + loc + path)})
	}
	if s.DefaultLocale != "" {
		out = append(out, Alternate{Hreflang: "x-default", Href: s.URL("/" + s.DefaultLocale + path)})
	}
	return out
}

// Page builds Meta for a localized page. path excludes the locale prefix.
func (s Site) Page(locale, path, title, description, image, ogType string) Meta {
	if path == "/" {
		path = ""
	}
	fullTitle := title
	if s.Name != "" && title != "" && title != s.Name {
		fullTitle = title + " | " + s.Name
	} else if title == "" {
		fullTitle = s.Name
	}
	if ogType == "" {
		ogType = "website"
	}
	return Meta{
		Title:       fullTitle,
		Description: description,
		Canonical:   s.URL("/" + locale + path),
		Alternates:  s.Alternates(path),
		OG: OpenGraph{
			Title:       title,
			Description: description,
			Image:       image,
			Type:        ogType,
			Locale:      ogLocale(locale),
		},
	}
}

// ogLocale converts "en-se" to "en_SE".
func ogLocale(locale string) string {
	lang, region, ok := strings.Cut(locale, "-")
	if !ok {
		return locale
	}
	return lang + "_" + strings.ToUpper(region)
}

// PlainText extracts readable text from an HTML fragment and truncates it at a word boundary.
func PlainText(html string, limit int) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return Truncate(text, limit)
}

// Truncate shortens text to at most limit runes, cutting at the last space and appending an ellipsis.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit-1])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
