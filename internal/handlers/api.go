package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/strideline/storefront/internal/catalog"
	"github.com/strideline/storefront/internal/clientstate"
	"github.com/strideline/storefront/internal/format"
	"github.com/strideline/storefront/internal/listing"
	"github.com/strideline/storefront/internal/locale"
	"github.com/strideline/storefront/internal/middleware"
	"github.com/strideline/storefront/internal/platform/httpx"
	"github.com/strideline/storefront/internal/platform/observability"
)

const maxAvailabilityIDs = 250

// AvailabilityChecker reports per-variant availability for a market.
type AvailabilityChecker interface {
	Availability(ctx context.Context, variantIDs []string, country string) map[string]bool
}

// APIDeps bundles APIHandlers collaborators.
type APIDeps struct {
	Catalog      CatalogService
	Availability AvailabilityChecker
	Locales      *locale.Table
	State        *clientstate.Registry
	Guard        *listing.Guard
	Revalidate   http.Handler
	// Idempotency guards cart mutations against retried submits; nil disables it.
	Idempotency func(http.Handler) http.Handler
}

// APIHandlers serves the /api endpoints backing client-side interactions.
type APIHandlers struct {
	catalog      CatalogService
	availability AvailabilityChecker
	locales      *locale.Table
	state        *clientstate.Registry
	guard        *listing.Guard
	revalidate   http.Handler
	idempotent   func(http.Handler) http.Handler
}

// NewAPIHandlers constructs the /api handlers.
func NewAPIHandlers(deps APIDeps) *APIHandlers {
	h := &APIHandlers{
		catalog:      deps.Catalog,
		availability: deps.Availability,
		locales:      deps.Locales,
		state:        deps.State,
		guard:        deps.Guard,
		revalidate:   deps.Revalidate,
		idempotent:   deps.Idempotency,
	}
	if h.locales == nil {
		h.locales = locale.Default()
	}
	if h.state == nil {
		h.state = clientstate.NewRegistry(nil)
	}
	if h.guard == nil {
		h.guard = listing.NewGuard()
	}
	if h.idempotent == nil {
		h.idempotent = func(next http.Handler) http.Handler { return next }
	}
	return h
}

// Routes wires the endpoints onto the /api router.
func (h *APIHandlers) Routes(r chi.Router) {
	r.Post("/load-more", h.loadMore)
	r.Post("/availability", h.checkAvailability)

	r.Get("/cart", h.getCart)
	r.Group(func(r chi.Router) {
		r.Use(h.idempotent)
		r.Delete("/cart", h.clearCart)
		r.Post("/cart/items", h.addCartItem)
		r.Patch("/cart/items/{id}", h.updateCartItem)
		r.Delete("/cart/items/{id}", h.removeCartItem)
	})

	r.Get("/variant", h.getVariant)
	r.Put("/variant", h.putVariant)
	r.Get("/recently-viewed", h.getRecentlyViewed)
	r.Get("/countries", h.getCountries)

	if h.revalidate != nil {
		r.Method(http.MethodPost, "/revalidate", h.revalidate)
	}
}

// country resolves the market for exempt /api requests: an explicit locale, then the country cookie,
// then the default.
func (h *APIHandlers) country(r *http.Request, explicitLocale string) string {
	if loc := strings.ToLower(strings.TrimSpace(explicitLocale)); h.locales.IsValidLocale(loc) {
		return h.locales.LocaleToCountry(loc)
	}
	if c, err := r.Cookie(middleware.CountryCookie); err == nil && h.locales.IsSupportedCountry(c.Value) {
		return strings.ToUpper(c.Value)
	}
	return h.locales.DefaultCountry()
}

type loadMoreRequest struct {
	Selector  catalog.SelectorJSON `json:"selector"`
	Offset    int                  `json:"offset"`
	LoadedIDs []string             `json:"loadedIds"`
	Locale    string               `json:"locale"`
	Query     string               `json:"query"`
}

type loadMoreResponse struct {
	listing.Listing
	FormattedPrices map[string]string `json:"formattedPrices"`
}

func (h *APIHandlers) loadMore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loadMoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Selector.Value == nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_selector", "selector is required"))
		return
	}
	if req.Offset < 0 {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_offset", "offset must not be negative"))
		return
	}

	encoded, err := catalog.EncodeSelector(req.Selector.Value)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_selector", err.Error()))
		return
	}
	release, err := h.guard.Acquire(BrowserID(ctx) + "|" + string(encoded))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.Conflict("load_in_flight", "a load for this listing is already in progress"))
		return
	}
	defer release()

	country := h.country(r, req.Locale)
	page, err := h.catalog.List(ctx, req.Selector.Value, req.Offset, country)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidSelector) {
			httpx.WriteError(ctx, w, httpx.BadRequest("invalid_selector", err.Error()))
			return
		}
		observability.FromContext(ctx).Error("api: load more failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.Internal())
		return
	}

	state := listing.State{}
	if values, err := url.ParseQuery(strings.TrimPrefix(req.Query, "?")); err == nil {
		state = listing.ParseState(values)
	}
	composed := listing.Compose(page, req.Offset, state, req.Selector.Value)
	composed.Products = listing.ExcludeLoaded(composed.Products, req.LoadedIDs)
	httpx.WriteJSON(w, http.StatusOK, loadMoreResponse{
		Listing:         composed,
		FormattedPrices: formattedPrices(composed.Products, h.locales.CurrencyFor(country)),
	})
}

type availabilityRequest struct {
	VariantIDs []string `json:"variantIds"`
	Locale     string   `json:"locale"`
}

func (h *APIHandlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req availabilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.VariantIDs) > maxAvailabilityIDs {
		httpx.WriteError(ctx, w, httpx.BadRequest("too_many_ids", "too many variant ids"))
		return
	}
	result := map[string]bool{}
	if h.availability != nil && len(req.VariantIDs) > 0 {
		result = h.availability.Availability(ctx, req.VariantIDs, h.country(r, req.Locale))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"availability": result})
}

type cartResponse struct {
	Items          []clientstate.CartItem `json:"items"`
	TotalItems     int                    `json:"totalItems"`
	TotalPrice     float64                `json:"totalPrice"`
	Currency       string                 `json:"currency"`
	FormattedTotal string                 `json:"formattedTotal"`
	Label          string                 `json:"label,omitempty"`
}

func (h *APIHandlers) loadCart(w http.ResponseWriter, r *http.Request) (*clientstate.Cart, bool) {
	ctx := r.Context()
	cart, err := h.state.Cart(ctx, BrowserID(ctx))
	if err != nil {
		observability.FromContext(ctx).Error("api: load cart failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.Unavailable("cart_unavailable", "cart is unavailable"))
		return nil, false
	}
	return cart, true
}

func (h *APIHandlers) writeCart(w http.ResponseWriter, r *http.Request, cart *clientstate.Cart, label string) {
	items := cart.Items()
	currency := ""
	for _, item := range items {
		if item.Currency != "" {
			currency = item.Currency
			break
		}
	}
	if currency == "" {
		currency = h.locales.CurrencyFor(h.country(r, ""))
	}
	total := cart.TotalPrice()
	httpx.WriteJSON(w, http.StatusOK, cartResponse{
		Items:          items,
		TotalItems:     cart.TotalItems(),
		TotalPrice:     total,
		Currency:       currency,
		FormattedTotal: format.FormatCurrency(total, currency),
		Label:          label,
	})
}

func (h *APIHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	cart, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	h.writeCart(w, r, cart, "")
}

func (h *APIHandlers) addCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var item clientstate.CartItem
	if !decodeBody(w, r, &item) {
		return
	}
	cart, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if err := cart.AddItem(ctx, item); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	selection := h.state.Variant(BrowserID(ctx))
	selection.MarkAdded(strings.TrimSpace(item.VariantID))
	h.writeCart(w, r, cart, selection.Snapshot().Label)
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *APIHandlers) updateCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "quantity is required"))
		return
	}
	cart, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if err := cart.UpdateQuantity(ctx, id, *req.Quantity); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, r, cart, "")
}

func (h *APIHandlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	cart, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if err := cart.RemoveItem(ctx, id); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, r, cart, "")
}

func (h *APIHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	if err := cart.Clear(ctx); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, r, cart, "")
}

func (h *APIHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, clientstate.ErrInvalidItem) {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_item", err.Error()))
		return
	}
	observability.FromContext(ctx).Error("api: cart update failed", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.Unavailable("cart_unavailable", "cart could not be saved"))
}

// itemID unescapes the {id} segment; variant ids contain slashes and arrive percent-encoded.
func itemID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || strings.TrimSpace(id) == "" {
		httpx.WriteError(r.Context(), w, httpx.BadRequest("invalid_request", "item id is invalid"))
		return "", false
	}
	return id, true
}

func (h *APIHandlers) getVariant(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.state.Variant(BrowserID(r.Context())).Snapshot())
}

type variantRequest struct {
	Product  string                       `json:"product"`
	Selected *clientstate.SelectedVariant `json:"selected"`
}

func (h *APIHandlers) putVariant(w http.ResponseWriter, r *http.Request) {
	var req variantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	selection := h.state.Variant(BrowserID(r.Context()))
	switch {
	case req.Selected != nil && strings.TrimSpace(req.Selected.ID) != "":
		selection.Select(req.Product, *req.Selected)
	case strings.TrimSpace(req.Product) != "":
		selection.View(req.Product)
	default:
		selection.Reset()
	}
	httpx.WriteJSON(w, http.StatusOK, selection.Snapshot())
}

func (h *APIHandlers) getRecentlyViewed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recent, err := h.state.RecentlyViewed(ctx, BrowserID(ctx))
	if err != nil {
		observability.FromContext(ctx).Error("api: load recently viewed failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.Unavailable("state_unavailable", "recently viewed is unavailable"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"handles": recent.Handles()})
}

func (h *APIHandlers) getCountries(w http.ResponseWriter, r *http.Request) {
	country := h.country(r, "")
	current, _ := h.locales.Country(country)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"countries": h.locales.Countries(),
		"current":   current,
	})
}
