package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/strideline/storefront/internal/catalog"
	"github.com/strideline/storefront/internal/clientstate"
	"github.com/strideline/storefront/internal/format"
	"github.com/strideline/storefront/internal/listing"
	"github.com/strideline/storefront/internal/locale"
	"github.com/strideline/storefront/internal/middleware"
	"github.com/strideline/storefront/internal/platform/httpx"
	"github.com/strideline/storefront/internal/platform/observability"
	"github.com/strideline/storefront/internal/seo"
)

const maxSearchLength = 200

// CatalogService is the catalog read model the handlers depend on.
type CatalogService interface {
	List(ctx context.Context, sel catalog.Selector, offset int, country string) (catalog.Page, error)
	Product(ctx context.Context, handle, country string) (catalog.ProductDetail, error)
	Brand(ctx context.Context, slug string) (catalog.Brand, error)
	Collection(ctx context.Context, slug string) (catalog.Collection, error)
}

// PageDeps bundles PageHandlers collaborators.
type PageDeps struct {
	Catalog CatalogService
	Locales *locale.Table
	State   *clientstate.Registry
	Site    seo.Site
	// Cache wraps cacheable page routes; nil disables page caching.
	Cache func(http.Handler) http.Handler
}

// PageHandlers serves the locale-prefixed page data routes.
type PageHandlers struct {
	catalog CatalogService
	locales *locale.Table
	state   *clientstate.Registry
	site    seo.Site
	cache   func(http.Handler) http.Handler
}

// NewPageHandlers constructs page handlers.
func NewPageHandlers(deps PageDeps) *PageHandlers {
	h := &PageHandlers{
		catalog: deps.Catalog,
		locales: deps.Locales,
		state:   deps.State,
		site:    deps.Site,
		cache:   deps.Cache,
	}
	if h.locales == nil {
		h.locales = locale.Default()
	}
	if h.state == nil {
		h.state = clientstate.NewRegistry(nil)
	}
	if len(h.site.Locales) == 0 {
		h.site.Locales = h.locales.Locales()
	}
	if h.site.DefaultLocale == "" {
		h.site.DefaultLocale = h.locales.DefaultLocale()
	}
	if h.cache == nil {
		h.cache = func(next http.Handler) http.Handler { return next }
	}
	return h
}

// Routes wires the page routes onto r. The locale middleware must run before these handlers.
func (h *PageHandlers) Routes(r chi.Router) {
	r.Route("/{locale}", func(lr chi.Router) {
		lr.With(h.cache).Get("/", h.home)
		lr.With(h.cache).Get("/search", h.search)
		lr.With(h.cache).Get("/brands/{brand}", h.brand)
		lr.With(h.cache).Get("/collections/{collection}", h.collection)
		lr.With(h.recordView, h.cache).Get("/products/{handle}", h.product)
		lr.With(h.cache).Get("/{gender}", h.category)
		lr.With(h.cache).Get("/{gender}/{category}", h.category)
		lr.With(h.cache).Get("/{gender}/{category}/{subcategory}", h.category)
		lr.With(h.cache).Get("/{gender}/{category}/{subcategory}/{specific}", h.category)
	})
}

// market resolves the request's locale, country and currency.
type market struct {
	Locale   string `json:"locale"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
}

func (h *PageHandlers) market(ctx context.Context) market {
	loc, ok := middleware.LocaleFromContext(ctx)
	if !ok {
		loc = h.locales.DefaultLocale()
	}
	country, ok := middleware.CountryFromContext(ctx)
	if !ok {
		country = h.locales.LocaleToCountry(loc)
	}
	return market{Locale: loc, Country: country, Currency: h.locales.CurrencyFor(country)}
}

type listingPage struct {
	market
	Meta            seo.Meta             `json:"meta"`
	StructuredData  []map[string]any     `json:"structuredData,omitempty"`
	Title           string               `json:"title"`
	Breadcrumbs     []catalog.Breadcrumb `json:"breadcrumbs,omitempty"`
	Brand           *catalog.Brand       `json:"brand,omitempty"`
	Collection      *catalog.Collection  `json:"collection,omitempty"`
	Listing         listing.Listing      `json:"listing"`
	FormattedPrices map[string]string    `json:"formattedPrices"`
}

type homeSection struct {
	Title   string          `json:"title"`
	Href    string          `json:"href"`
	Listing listing.Listing `json:"listing"`
}

type homePage struct {
	market
	Meta           seo.Meta         `json:"meta"`
	StructuredData []map[string]any `json:"structuredData"`
	Sections       []homeSection    `json:"sections"`
}

func (h *PageHandlers) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m := h.market(ctx)
	state := listing.ParseState(r.URL.Query())
	page := homePage{
		market: m,
		Meta:   h.site.Page(m.Locale, "/", "", "", "", ""),
		StructuredData: []map[string]any{
			seo.WebSite(h.site.Name, h.site.URL("/"+m.Locale), h.site.URL("/"+m.Locale+"/search")),
		},
		Sections: make([]homeSection, 0, 2),
	}
	for _, gender := range []string{catalog.GenderWomen, catalog.GenderMen} {
		sel := catalog.GenderSelector{Gender: gender}
		result, err := h.catalog.List(ctx, sel, 0, m.Country)
		if err != nil {
			h.writeListError(ctx, w, err)
			return
		}
		page.Sections = append(page.Sections, homeSection{
			Title:   catalog.Humanize(gender),
			Href:    middleware.LocalizedPath(ctx, "/"+gender),
			Listing: listing.Compose(result, 0, state, sel),
		})
		if result.Degraded {
			noStore(w)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *PageHandlers) category(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gender := strings.ToLower(chi.URLParam(r, "gender"))
	if !catalog.IsValidGender(gender) {
		httpx.WriteError(ctx, w, httpx.NotFound("page not found"))
		return
	}
	segments := make([]string, 0, 3)
	for _, key := range []string{"category", "subcategory", "specific"} {
		if v := strings.ToLower(strings.TrimSpace(chi.URLParam(r, key))); v != "" {
			segments = append(segments, v)
		}
	}

	var sel catalog.Selector
	switch len(segments) {
	case 0:
		sel = catalog.GenderSelector{Gender: gender}
	case 1:
		sel = catalog.CategorySelector{Gender: gender, Category: segments[0]}
	case 2:
		sel = catalog.SubcategorySelector{Gender: gender, Category: segments[0], Subcategory: segments[1]}
	default:
		sel = catalog.SpecificSelector{Gender: gender, Category: segments[0], Subcategory: segments[1], Specific: segments[2]}
	}

	crumbs := catalog.BuildCategoryBreadcrumbs(gender, segments)
	for i := range crumbs {
		crumbs[i].Href = middleware.LocalizedPath(ctx, crumbs[i].Href)
	}
	h.writeListing(w, r, sel, listingPage{
		Title:          crumbs[len(crumbs)-1].Label,
		Breadcrumbs:    crumbs,
		StructuredData: []map[string]any{h.breadcrumbList(crumbs)},
	})
}

func (h *PageHandlers) brand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	brand, err := h.catalog.Brand(ctx, chi.URLParam(r, "brand"))
	if err != nil {
		h.writeLookupError(ctx, w, err, "brand not found")
		return
	}
	h.writeListing(w, r, catalog.BrandSelector{Brand: brand.Slug}, listingPage{Title: brand.Name, Brand: &brand})
}

func (h *PageHandlers) collection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	coll, err := h.catalog.Collection(ctx, chi.URLParam(r, "collection"))
	if err != nil {
		h.writeLookupError(ctx, w, err, "collection not found")
		return
	}
	page := listingPage{Title: coll.Title, Collection: &coll}
	page.Meta.Description = seo.Truncate(coll.Description, seo.DescriptionLimit)
	h.writeListing(w, r, catalog.CollectionSelector{Collection: coll.Slug}, page)
}

func (h *PageHandlers) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if utf8.RuneCountInString(query) > maxSearchLength {
		query = strings.TrimSpace(string([]rune(query)[:maxSearchLength]))
	}
	page := listingPage{Title: "Search"}
	if query == "" {
		m := h.market(r.Context())
		page.market = m
		page.Meta = h.site.Page(m.Locale, "/search", page.Title, "", "", "")
		page.Listing = listing.Compose(catalog.Page{Products: []catalog.Product{}}, 0, listing.ParseState(r.URL.Query()), nil)
		page.FormattedPrices = map[string]string{}
		httpx.WriteJSON(w, http.StatusOK, page)
		return
	}
	page.Title = "Search: " + query
	h.writeListing(w, r, catalog.SearchSelector{Query: query}, page)
}

func (h *PageHandlers) writeListing(w http.ResponseWriter, r *http.Request, sel catalog.Selector, page listingPage) {
	ctx := r.Context()
	m := h.market(ctx)
	result, err := h.catalog.List(ctx, sel, 0, m.Country)
	if err != nil {
		h.writeListError(ctx, w, err)
		return
	}
	page.market = m
	page.Meta = h.site.Page(m.Locale, localelessPath(r, m.Locale), page.Title, page.Meta.Description, listingImage(result), "")
	page.Listing = listing.Compose(result, 0, listing.ParseState(r.URL.Query()), sel)
	page.FormattedPrices = formattedPrices(page.Listing.Products, m.Currency)
	if result.Degraded {
		noStore(w)
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

type productPage struct {
	market
	Meta           seo.Meta              `json:"meta"`
	StructuredData []map[string]any      `json:"structuredData"`
	Product        catalog.ProductDetail `json:"product"`
	Breadcrumbs    []catalog.Breadcrumb  `json:"breadcrumbs,omitempty"`
	FormattedPrice string                `json:"formattedPrice"`
}

func (h *PageHandlers) product(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m := h.market(ctx)
	detail, err := h.catalog.Product(ctx, chi.URLParam(r, "handle"), m.Country)
	if err != nil {
		h.writeLookupError(ctx, w, err, "product not found")
		return
	}

	var crumbs []catalog.Breadcrumb
	if catalog.IsValidGender(detail.Gender) {
		crumbs = catalog.BuildCategoryBreadcrumbs(detail.Gender, detail.CategoryPath)
		for i := range crumbs {
			crumbs[i].Href = middleware.LocalizedPath(ctx, crumbs[i].Href)
		}
	}
	currency := detail.PriceRange.Currency
	if currency == "" {
		currency = m.Currency
	}
	description := seo.PlainText(detail.DescriptionHTML, seo.DescriptionLimit)
	path := "/products/" + detail.Handle
	meta := h.site.Page(m.Locale, path, detail.Title, description, detail.Image.URL, "product")
	structured := []map[string]any{seo.Product(seo.ProductInput{
		Name:        detail.Title,
		Description: description,
		URL:         meta.Canonical,
		Image:       detail.Image.URL,
		Brand:       detail.Brand.Name,
		Offer: seo.Offer{
			LowPrice:     detail.PriceRange.Min,
			HighPrice:    detail.PriceRange.Max,
			Currency:     currency,
			Available:    anyAvailable(detail.Variants),
			OfferCount:   len(detail.Variants),
			CanonicalURL: meta.Canonical,
		},
	})}
	if len(crumbs) > 0 {
		structured = append(structured, h.breadcrumbList(crumbs))
	}
	httpx.WriteJSON(w, http.StatusOK, productPage{
		market:         m,
		Meta:           meta,
		StructuredData: structured,
		Product:        detail,
		Breadcrumbs:    crumbs,
		FormattedPrice: format.FormatPriceRange(detail.PriceRange.Min, detail.PriceRange.Max, currency),
	})
}

// recordView updates the browser's recently viewed list and variant selection after a product page
// is served successfully, cached or not.
func (h *PageHandlers) recordView(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() != http.StatusOK {
			return
		}
		ctx := r.Context()
		browser := BrowserID(ctx)
		handle := chi.URLParam(r, "handle")
		if browser == "" || handle == "" {
			return
		}
		h.state.Variant(browser).View(handle)
		recent, err := h.state.RecentlyViewed(ctx, browser)
		if err == nil {
			err = recent.Add(ctx, handle)
		}
		if err != nil {
			observability.FromContext(ctx).Warn("pages: record recently viewed failed", zap.String("handle", handle), zap.Error(err))
		}
	})
}

func (h *PageHandlers) writeLookupError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, catalog.ErrNotFound) {
		httpx.WriteError(ctx, w, httpx.NotFound(msg))
		return
	}
	observability.FromContext(ctx).Error("pages: catalog lookup failed", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.Internal())
}

func (h *PageHandlers) writeListError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrInvalidSelector) {
		httpx.WriteError(ctx, w, httpx.NotFound("page not found"))
		return
	}
	observability.FromContext(ctx).Error("pages: listing failed", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.Internal())
}

// noStore keeps a stand-in page out of every cache so the real listing is served once the CMS
// recovers.
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

func formattedPrices(products []catalog.Product, fallbackCurrency string) map[string]string {
	out := make(map[string]string, len(products))
	for _, p := range products {
		currency := p.PriceRange.Currency
		if currency == "" {
			currency = fallbackCurrency
		}
		out[p.ID] = format.FormatPriceRange(p.PriceRange.Min, p.PriceRange.Max, currency)
	}
	return out
}

func (h *PageHandlers) breadcrumbList(crumbs []catalog.Breadcrumb) map[string]any {
	items := make([]seo.BreadcrumbItem, 0, len(crumbs))
	for _, c := range crumbs {
		items = append(items, seo.BreadcrumbItem{Name: c.Label, Item: h.site.URL(c.Href)})
	}
	return seo.BreadcrumbList(items)
}

func localelessPath(r *http.Request, loc string) string {
	p := strings.TrimPrefix(r.URL.Path, "/"+loc)
	if p == "" {
		return "/"
	}
	return p
}

func listingImage(page catalog.Page) string {
	for _, p := range page.Products {
		if p.Image.URL != "" {
			return p.Image.URL
		}
	}
	return ""
}

func anyAvailable(variants []catalog.Variant) bool {
	for _, v := range variants {
		if v.Available {
			return true
		}
	}
	return false
}
