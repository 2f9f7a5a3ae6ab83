package commerce

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxIDsPerBatch is the storefront API's limit on identifiers per nodes() call.
const MaxIDsPerBatch = 250

// Price is a country-specific min/max price in whole currency units.
type Price struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// VariantPrice is the live price and availability of one variant.
type VariantPrice struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Available bool    `json:"available"`
}

// ProductPricing is the detail view price of a single product.
type ProductPricing struct {
	Handle   string                  `json:"handle"`
	Price    Price                   `json:"price"`
	Variants map[string]VariantPrice `json:"variants"`
}

const pricesQuery = `query LocalizedPrices($ids: [ID!]!, $country: CountryCode) @inContext(country: $country) {
  nodes(ids: $ids) {
    ... on Product {
      id
      handle
      priceRange {
        minVariantPrice { amount currencyCode }
        maxVariantPrice { amount currencyCode }
      }
    }
  }
}`

const productPriceQuery = `query ProductPrice($handle: String!, $country: CountryCode) @inContext(country: $country) {
  product(handle: $handle) {
    handle
    priceRange {
      minVariantPrice { amount currencyCode }
      maxVariantPrice { amount currencyCode }
    }
    variants(first: 100) {
      nodes {
        id
        availableForSale
        price { amount currencyCode }
      }
    }
  }
}`

const availabilityQuery = `query VariantAvailability($ids: [ID!]!, $country: CountryCode) @inContext(country: $country) {
  nodes(ids: $ids) {
    ... on ProductVariant {
      id
      availableForSale
    }
  }
}`

type money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

func (m money) value() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(m.Amount), 64)
	if err != nil {
		return 0
	}
	return v
}

type priceRange struct {
	MinVariantPrice money `json:"minVariantPrice"`
	MaxVariantPrice money `json:"maxVariantPrice"`
}

func (r priceRange) price() Price {
	currency := r.MinVariantPrice.CurrencyCode
	if currency == "" {
		currency = r.MaxVariantPrice.CurrencyCode
	}
	return Price{Min: r.MinVariantPrice.value(), Max: r.MaxVariantPrice.value(), Currency: currency}
}

// Localize returns country pricing keyed by product handle. Failed batches are logged, counted and
// skipped, so callers always get whatever subset resolved.
func (c *Client) Localize(ctx context.Context, productIDs []string, country string) map[string]Price {
	out := make(map[string]Price, len(productIDs))
	ids := uniqueNonEmpty(productIDs)
	if len(ids) == 0 || !c.Configured() {
		return out
	}

	var mu sync.Mutex
	c.eachBatch(ctx, "localize_prices", ids, func(ctx context.Context, batch []string) error {
		var data struct {
			Nodes []*struct {
				Handle     string     `json:"handle"`
				PriceRange priceRange `json:"priceRange"`
			} `json:"nodes"`
		}
		vars := map[string]any{"ids": batch, "country": countryCode(country)}
		if err := c.Do(ctx, "LocalizedPrices", pricesQuery, vars, &data); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, node := range data.Nodes {
			if node == nil || node.Handle == "" {
				continue
			}
			out[node.Handle] = node.PriceRange.price()
		}
		return nil
	})
	return out
}

// ProductPrice fetches the detail pricing for one product by handle.
func (c *Client) ProductPrice(ctx context.Context, handle, country string) (ProductPricing, error) {
	var data struct {
		Product *struct {
			Handle     string     `json:"handle"`
			PriceRange priceRange `json:"priceRange"`
			Variants   struct {
				Nodes []struct {
					ID               string `json:"id"`
					AvailableForSale bool   `json:"availableForSale"`
					Price            money  `json:"price"`
				} `json:"nodes"`
			} `json:"variants"`
		} `json:"product"`
	}
	vars := map[string]any{"handle": strings.TrimSpace(handle), "country": countryCode(country)}
	if err := c.Do(ctx, "ProductPrice", productPriceQuery, vars, &data); err != nil {
		return ProductPricing{}, err
	}
	if data.Product == nil {
		return ProductPricing{}, ErrNotFound
	}
	pricing := ProductPricing{
		Handle:   data.Product.Handle,
		Price:    data.Product.PriceRange.price(),
		Variants: make(map[string]VariantPrice, len(data.Product.Variants.Nodes)),
	}
	for _, v := range data.Product.Variants.Nodes {
		pricing.Variants[v.ID] = VariantPrice{
			Amount:    v.Price.value(),
			Currency:  v.Price.CurrencyCode,
			Available: v.AvailableForSale,
		}
	}
	return pricing, nil
}

// Availability reports availableForSale per variant id. Ids the store does not return, or whose batch
// failed, are reported unavailable.
func (c *Client) Availability(ctx context.Context, variantIDs []string, country string) map[string]bool {
	ids := uniqueNonEmpty(variantIDs)
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = false
	}
	if len(ids) == 0 || !c.Configured() {
		return out
	}

	var mu sync.Mutex
	c.eachBatch(ctx, "variant_availability", ids, func(ctx context.Context, batch []string) error {
		var data struct {
			Nodes []*struct {
				ID               string `json:"id"`
				AvailableForSale bool   `json:"availableForSale"`
			} `json:"nodes"`
		}
		vars := map[string]any{"ids": batch, "country": countryCode(country)}
		if err := c.Do(ctx, "VariantAvailability", availabilityQuery, vars, &data); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, node := range data.Nodes {
			if node == nil {
				continue
			}
			if _, requested := out[node.ID]; requested {
				out[node.ID] = node.AvailableForSale
			}
		}
		return nil
	})
	return out
}

// eachBatch runs fn over MaxIDsPerBatch-sized chunks with bounded concurrency. A failing chunk never
// cancels its siblings.
func (c *Client) eachBatch(ctx context.Context, operation string, ids []string, fn func(context.Context, []string) error) {
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, batch := range Chunk(ids, MaxIDsPerBatch) {
		batch := batch
		g.Go(func() error {
			if err := fn(ctx, batch); err != nil {
				c.logger.Warn("commerce: batch failed; continuing with partial result",
					zap.String("operation", operation),
					zap.Int("batch_size", len(batch)),
					zap.Error(err),
				)
				c.recordBatchFailure(ctx, operation)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxIDsPerBatch
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
