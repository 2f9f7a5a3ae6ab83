package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/strideline/storefront/internal/commerce"
	"github.com/strideline/storefront/internal/platform/requestctx"
)

// Pricer resolves country-specific prices from the commerce platform.
type Pricer interface {
	Localize(ctx context.Context, productIDs []string, country string) map[string]commerce.Price
	ProductPrice(ctx context.Context, handle, country string) (commerce.ProductPricing, error)
}

// ServiceDeps bundles constructor inputs for the catalog service.
type ServiceDeps struct {
	Source Source
	Prices Pricer
	Logger *zap.Logger
}

// Service joins catalog queries with live commerce pricing.
type Service struct {
	source Source
	prices Pricer
	logger *zap.Logger
}

// ErrSourceMissing indicates the catalog source dependency is absent.
var ErrSourceMissing = errors.New("catalog service: source is not configured")

// NewService constructs the catalog service. Prices may be nil, in which case reference prices are served.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Source == nil {
		return nil, ErrSourceMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: deps.Source, prices: deps.Prices, logger: logger.Named("catalog")}, nil
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	if logger := requestctx.Logger(ctx); logger != requestctx.NoopLogger() {
		return logger
	}
	return s.logger
}

// List runs the selector's query at offset and localizes prices for country. Upstream failures are
// logged and yield an empty page flagged Degraded; only an invalid selector is reported as an error.
func (s *Service) List(ctx context.Context, sel Selector, offset int, country string) (Page, error) {
	filter, err := FilterFor(sel)
	if err != nil {
		return Page{}, err
	}
	if offset < 0 {
		offset = 0
	}
	filter.Offset = offset
	filter.Limit = PageSize

	page, err := s.source.Products(ctx, filter)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, ctxErr
		}
		s.log(ctx).Error("catalog: listing query failed",
			zap.String("selector", string(sel.Kind())),
			zap.Int("offset", offset),
			zap.Error(err),
		)
		return Page{Products: []Product{}, Degraded: true}, nil
	}
	if page.Products == nil {
		page.Products = []Product{}
	}
	s.localize(ctx, page.Products, country)
	return page, nil
}

// localize overwrites reference prices with live ones where the commerce platform answered. Products
// without an entry keep the CMS-authored price.
func (s *Service) localize(ctx context.Context, products []Product, country string) {
	if s.prices == nil || len(products) == 0 {
		return
	}
	ids := make([]string, 0, len(products))
	for _, p := range products {
		if p.CommerceID != "" {
			ids = append(ids, p.CommerceID)
		}
	}
	if len(ids) == 0 {
		return
	}
	prices := s.prices.Localize(ctx, ids, country)
	for i := range products {
		if price, ok := prices[products[i].Handle]; ok {
			products[i].PriceRange = PriceRange{Min: price.Min, Max: price.Max, Currency: price.Currency}
		}
	}
}

// Product loads the detail document and its live price concurrently and joins them.
func (s *Service) Product(ctx context.Context, handle, country string) (ProductDetail, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return ProductDetail{}, ErrNotFound
	}

	var (
		detail  ProductDetail
		pricing commerce.ProductPricing
		priced  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.source.ProductByHandle(gctx, handle)
		if err != nil {
			return err
		}
		detail = d
		return nil
	})
	if s.prices != nil {
		g.Go(func() error {
			p, err := s.prices.ProductPrice(gctx, handle, country)
			if err != nil {
				if !errors.Is(err, commerce.ErrNotConfigured) && gctx.Err() == nil {
					s.log(ctx).Warn("catalog: live price unavailable; serving reference price",
						zap.String("handle", handle),
						zap.String("country", country),
						zap.Error(err),
					)
				}
				return nil
			}
			pricing, priced = p, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ProductDetail{}, err
		}
		return ProductDetail{}, fmt.Errorf("catalog: product %q: %w", handle, err)
	}

	if priced {
		applyPricing(&detail, pricing)
	}
	html, err := RenderDescription(detail.Description)
	if err != nil {
		s.log(ctx).Warn("catalog: description render failed", zap.String("handle", handle), zap.Error(err))
	}
	detail.DescriptionHTML = html
	return detail, nil
}

func applyPricing(detail *ProductDetail, pricing commerce.ProductPricing) {
	if pricing.Price.Currency != "" || pricing.Price.Max > 0 {
		detail.PriceRange = PriceRange{Min: pricing.Price.Min, Max: pricing.Price.Max, Currency: pricing.Price.Currency}
	}
	for i, v := range detail.Variants {
		if live, ok := pricing.Variants[v.ID]; ok {
			detail.Variants[i].Price = live.Amount
			detail.Variants[i].Available = live.Available
		}
	}
}

// Brand confirms a brand exists.
func (s *Service) Brand(ctx context.Context, slug string) (Brand, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Brand{}, ErrNotFound
	}
	return s.source.Brand(ctx, slug)
}

// Collection confirms a collection exists.
func (s *Service) Collection(ctx context.Context, slug string) (Collection, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Collection{}, ErrNotFound
	}
	return s.source.Collection(ctx, slug)
}
