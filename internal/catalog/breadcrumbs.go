package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Breadcrumb is one step of a category trail.
type Breadcrumb struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// BuildCategoryBreadcrumbs returns the gender root followed by one crumb per segment, each href
// extending the previous one. Hrefs are locale-less; the router prefixes them.
func BuildCategoryBreadcrumbs(gender string, segments []string) []Breadcrumb {
	caser := cases.Title(language.English)
	crumbs := make([]Breadcrumb, 0, len(segments)+1)
	href := "/" + gender
	crumbs = append(crumbs, Breadcrumb{Label: humanize(caser, gender), Href: href})
	for _, seg := range segments {
		href += "/" + seg
		crumbs = append(crumbs, Breadcrumb{Label: humanize(caser, seg), Href: href})
	}
	return crumbs
}

// Humanize converts a slug such as "running-shorts" into "Running Shorts".
func Humanize(slug string) string {
	return humanize(cases.Title(language.English), slug)
}

func humanize(caser cases.Caser, slug string) string {
	return caser.String(strings.ReplaceAll(slug, "-", " "))
}
