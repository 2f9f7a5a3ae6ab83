package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strideline/storefront/internal/catalog"
	"github.com/strideline/storefront/internal/clientstate"
	"github.com/strideline/storefront/internal/idempotency"
)

const (
	variantS = "gid://shopify/ProductVariant/10011"
	variantM = "gid://shopify/ProductVariant/10012"
)

type cartBody struct {
	Items []struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	TotalItems     int     `json:"totalItems"`
	TotalPrice     float64 `json:"totalPrice"`
	Currency       string  `json:"currency"`
	FormattedTotal string  `json:"formattedTotal"`
	Label          string  `json:"label"`
}

func cartItemJSON(variantID, size string) string {
	return fmt.Sprintf(`{"productId":"prod-001","variantId":%q,"handle":"distance-shorts-1","title":"Distance Shorts 1","price":899,"currency":"SEK","size":%q}`, variantID, size)
}

func TestAddToCartLabelTransition(t *testing.T) {
	app := newTestApp(t)

	snap := decodeJSON[clientstate.VariantSnapshot](t, app.do(t, http.MethodGet, "/api/variant", ""))
	require.Equal(t, clientstate.LabelSelectSize, snap.Label)

	rec := app.do(t, http.MethodPut, "/api/variant", fmt.Sprintf(`{"product":"distance-shorts-1","selected":{"id":%q,"size":"S","price":899}}`, variantS))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, clientstate.LabelAddToCart, decodeJSON[clientstate.VariantSnapshot](t, rec).Label)

	rec = app.do(t, http.MethodPost, "/api/cart/items", cartItemJSON(variantS, "S"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart := decodeJSON[cartBody](t, rec)
	require.Equal(t, 1, cart.TotalItems)
	require.Equal(t, clientstate.LabelAddedToCart, cart.Label)
	require.Equal(t, "899 SEK", cart.FormattedTotal)

	rec = app.do(t, http.MethodPost, "/api/cart/items", cartItemJSON(variantS, "S"))
	cart = decodeJSON[cartBody](t, rec)
	require.Equal(t, 2, cart.TotalItems)
	require.Len(t, cart.Items, 1)
	require.Equal(t, "1798 SEK", cart.FormattedTotal)

	// Choosing another size clears the added flag.
	rec = app.do(t, http.MethodPut, "/api/variant", fmt.Sprintf(`{"product":"distance-shorts-1","selected":{"id":%q,"size":"M","price":899}}`, variantM))
	require.Equal(t, clientstate.LabelAddToCart, decodeJSON[clientstate.VariantSnapshot](t, rec).Label)

	// Navigating to another product resets the selection.
	app.do(t, http.MethodGet, "/en-se/products/distance-shorts-2", "")
	snap = decodeJSON[clientstate.VariantSnapshot](t, app.do(t, http.MethodGet, "/api/variant", ""))
	require.Nil(t, snap.Selected)
	require.Equal(t, clientstate.LabelSelectSize, snap.Label)
}

func TestCartQuantityAndRemoval(t *testing.T) {
	app := newTestApp(t)
	app.do(t, http.MethodPost, "/api/cart/items", cartItemJSON(variantS, "S"))
	app.do(t, http.MethodPost, "/api/cart/items", cartItemJSON(variantM, "M"))

	escaped := url.PathEscape(variantS)
	rec := app.do(t, http.MethodPatch, "/api/cart/items/"+escaped, `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 4, decodeJSON[cartBody](t, rec).TotalItems)

	rec = app.do(t, http.MethodPatch, "/api/cart/items/"+escaped, `{"quantity":0}`)
	cart := decodeJSON[cartBody](t, rec)
	require.Equal(t, 1, cart.TotalItems)
	require.Len(t, cart.Items, 1)
	require.Equal(t, variantM, cart.Items[0].ID)

	rec = app.do(t, http.MethodPatch, "/api/cart/items/"+escaped, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodDelete, "/api/cart/items/"+url.PathEscape(variantM), "")
	require.Equal(t, 0, decodeJSON[cartBody](t, rec).TotalItems)

	app.do(t, http.MethodPost, "/api/cart/items", cartItemJSON(variantM, "M"))
	rec = app.do(t, http.MethodDelete, "/api/cart", "")
	require.Equal(t, 0, decodeJSON[cartBody](t, rec).TotalItems)
}

func TestCartIsolatedPerBrowserAndUsesCountryCurrency(t *testing.T) {
	app := newTestApp(t)
	app.do(t, http.MethodPost, "/api/cart/items", cartItemJSON(variantS, "S"))

	other := *app
	other.browser = clientstate.NewBrowserID()
	rec := other.do(t, http.MethodGet, "/api/cart", "", &http.Cookie{Name: "country", Value: "NO"})
	cart := decodeJSON[cartBody](t, rec)
	require.Equal(t, 0, cart.TotalItems)
	require.Equal(t, "NOK", cart.Currency)
	require.Equal(t, "0 NOK", cart.FormattedTotal)
}

func TestAddCartItemValidation(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodPost, "/api/cart/items", `{"productId":"prod-001"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_item")

	rec = app.do(t, http.MethodPost, "/api/cart/items", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type loadMoreBody struct {
	Products []struct {
		ID string `json:"id"`
	} `json:"products"`
	TotalCount      int               `json:"totalCount"`
	NextOffset      int               `json:"nextOffset"`
	HasMore         bool              `json:"hasMore"`
	FormattedPrices map[string]string `json:"formattedPrices"`
}

func TestLoadMoreAppendsWithoutDuplicates(t *testing.T) {
	app := newTestApp(t)
	first := decodeJSON[listingBody](t, app.do(t, http.MethodGet, "/en-se/women", ""))
	loaded := make([]string, 0, len(first.Listing.Products))
	for _, p := range first.Listing.Products {
		loaded = append(loaded, p.ID)
	}
	ids, _ := json.Marshal(loaded)

	body := fmt.Sprintf(`{"selector":{"kind":"gender","gender":"women"},"offset":%d,"loadedIds":%s,"locale":"en-fi"}`, first.Listing.NextOffset, ids)
	rec := app.do(t, http.MethodPost, "/api/load-more", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decodeJSON[loadMoreBody](t, rec)

	require.Equal(t, first.Listing.TotalCount, next.TotalCount)
	require.Len(t, next.Products, first.Listing.TotalCount-catalog.PageSize)
	require.False(t, next.HasMore)
	require.Equal(t, first.Listing.TotalCount, next.NextOffset)
	seen := map[string]bool{}
	for _, id := range loaded {
		seen[id] = true
	}
	for _, p := range next.Products {
		require.False(t, seen[p.ID], "duplicate product %s", p.ID)
		require.True(t, strings.HasSuffix(next.FormattedPrices[p.ID], " EUR") || strings.HasSuffix(next.FormattedPrices[p.ID], " SEK"))
	}
}

func TestLoadMoreRejectsConcurrentRequests(t *testing.T) {
	app := newTestApp(t)
	encoded, err := catalog.EncodeSelector(catalog.GenderSelector{Gender: "men"})
	require.NoError(t, err)
	release, err := app.guard.Acquire(app.browser + "|" + string(encoded))
	require.NoError(t, err)

	body := `{"selector":{"kind":"gender","gender":"men"},"offset":24}`
	rec := app.do(t, http.MethodPost, "/api/load-more", body)
	require.Equal(t, http.StatusConflict, rec.Code)

	release()
	rec = app.do(t, http.MethodPost, "/api/load-more", body)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadMoreValidation(t *testing.T) {
	app := newTestApp(t)
	cases := []string{
		`{"offset":24}`,
		`{"selector":{"kind":"planet","gender":"men"},"offset":24}`,
		`{"selector":{"kind":"category","category":"shoes"},"offset":24}`,
		`{"selector":{"kind":"gender","gender":"men"},"offset":-1}`,
	}
	for _, body := range cases {
		rec := app.do(t, http.MethodPost, "/api/load-more", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodPost, "/api/availability", fmt.Sprintf(`{"variantIds":[%q,"gid://shopify/ProductVariant/0"]}`, variantS))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON[struct {
		Availability map[string]bool `json:"availability"`
	}](t, rec)
	require.True(t, body.Availability[variantS])
	require.False(t, body.Availability["gid://shopify/ProductVariant/0"])
}

func TestCountriesEndpoint(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/api/countries", "", &http.Cookie{Name: "country", Value: "DK"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON[struct {
		Countries []struct {
			Code   string `json:"code"`
			Locale string `json:"locale"`
		} `json:"countries"`
		Current struct {
			Code     string `json:"code"`
			Currency string `json:"currency"`
		} `json:"current"`
	}](t, rec)
	require.NotEmpty(t, body.Countries)
	require.Equal(t, "DK", body.Current.Code)
	require.Equal(t, "DKK", body.Current.Currency)
}

func TestAddToCartRetryWithIdempotencyKeyAddsOnce(t *testing.T) {
	app := newTestApp(t)
	submit := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(idempotency.Header, key)
		req.AddCookie(&http.Cookie{Name: BrowserCookie, Value: app.browser})
		rec := httptest.NewRecorder()
		app.router.ServeHTTP(rec, req)
		return rec
	}

	first := submit("add-1", cartItemJSON(variantS, "S"))
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	require.Empty(t, first.Header().Get(idempotency.ReplayHeader))

	retry := submit("add-1", cartItemJSON(variantS, "S"))
	require.Equal(t, http.StatusOK, retry.Code)
	require.Equal(t, "true", retry.Header().Get(idempotency.ReplayHeader))
	require.Equal(t, 1, decodeJSON[cartBody](t, retry).TotalItems)

	require.Equal(t, 1, decodeJSON[cartBody](t, app.do(t, http.MethodGet, "/api/cart", "")).TotalItems)

	reused := submit("add-1", cartItemJSON(variantM, "M"))
	require.Equal(t, http.StatusUnprocessableEntity, reused.Code)
}
