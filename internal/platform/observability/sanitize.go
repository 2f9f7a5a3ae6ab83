package observability

import (
	"strings"
	"unicode"
)

const (
	routeLimit  = 180
	methodLimit = 10
	addrLimit   = 64
)

// clean strips control characters and caps the result at limit runes.
func clean(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute makes a request path or route pattern safe for logs and span names.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clean(route, routeLimit)
}

// SanitizeMethod makes an HTTP method safe for logs.
func SanitizeMethod(method string) string {
	return clean(method, methodLimit)
}
