package clientstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Storage keys, one per container.
const (
	CartKey           = "cart-storage"
	RecentlyViewedKey = "recently-viewed"
)

// ErrInvalidItem indicates a cart item without product or variant.
var ErrInvalidItem = errors.New("clientstate: cart item requires product and variant")

// CartItem is one cart line. ID is the variant id, which is unique per product+variant.
type CartItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId"`
	Handle    string  `json:"handle,omitempty"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency,omitempty"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
}

// persisted mirrors the versioned envelope the browser stores use.
type persisted[T any] struct {
	State   T   `json:"state"`
	Version int `json:"version"`
}

type cartState struct {
	Items []CartItem `json:"items"`
}

// Cart is the optimistic, browser-owned cart. Every mutation is persisted.
type Cart struct {
	mu      sync.Mutex
	storage Storage
	key     string
	items   []CartItem
}

func loadCart(ctx context.Context, storage Storage, browserID string) (*Cart, error) {
	c := &Cart{storage: storage, key: namespacedKey(browserID, CartKey)}
	raw, err := storage.Load(ctx, c.key)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		var p persisted[cartState]
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("clientstate: decode cart: %w", err)
		}
		c.items = p.State.Items
	}
	return c, nil
}

// AddItem inserts item with quantity 1, or increments the line holding the same product and variant.
func (c *Cart) AddItem(ctx context.Context, item CartItem) error {
	item.ProductID = strings.TrimSpace(item.ProductID)
	item.VariantID = strings.TrimSpace(item.VariantID)
	if item.ProductID == "" || item.VariantID == "" {
		return ErrInvalidItem
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ProductID == item.ProductID && c.items[i].VariantID == item.VariantID {
			c.items[i].Quantity++
			return c.persist(ctx)
		}
	}
	item.ID = item.VariantID
	item.Quantity = 1
	c.items = append(c.items, item)
	return c.persist(ctx)
}

// RemoveItem deletes the line with id. Unknown ids are ignored.
func (c *Cart) RemoveItem(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = without(c.items, id)
	return c.persist(ctx)
}

// UpdateQuantity sets a line's quantity, clamped at zero. Zero drops the line.
func (c *Cart) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quantity <= 0 {
		c.items = without(c.items, id)
		return c.persist(ctx)
	}
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Quantity = quantity
		}
	}
	return c.persist(ctx)
}

// Clear empties the cart and removes its stored entry.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	return c.storage.Delete(ctx, c.key)
}

// Items returns a copy of the cart lines.
func (c *Cart) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// TotalItems sums quantities.
func (c *Cart) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, item := range c.items {
		total += item.Quantity
	}
	return total
}

// TotalPrice sums price times quantity.
func (c *Cart) TotalPrice() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0.0
	for _, item := range c.items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

func (c *Cart) persist(ctx context.Context) error {
	raw, err := json.Marshal(persisted[cartState]{State: cartState{Items: c.items}})
	if err != nil {
		return fmt.Errorf("clientstate: encode cart: %w", err)
	}
	return c.storage.Save(ctx, c.key, raw)
}

func without(items []CartItem, id string) []CartItem {
	out := items[:0]
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}
