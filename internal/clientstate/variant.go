package clientstate

import (
	"strings"
	"sync"
)

// Add-to-cart button labels.
const (
	LabelSelectSize  = "SELECT SIZE"
	LabelAddToCart   = "ADD TO CART"
	LabelAddedToCart = "ADDED TO CART"
)

// AddToCartLabel derives the button label from the selection state.
func AddToCartLabel(selected, added bool) string {
	switch {
	case !selected:
		return LabelSelectSize
	case added:
		return LabelAddedToCart
	default:
		return LabelAddToCart
	}
}

// SelectedVariant is the size/color combination chosen on a product detail view.
type SelectedVariant struct {
	ID    string  `json:"id"`
	Size  string  `json:"size,omitempty"`
	Color string  `json:"color,omitempty"`
	Price float64 `json:"price"`
}

// VariantSnapshot is the observable state of a VariantSelection.
type VariantSnapshot struct {
	Product  string           `json:"product,omitempty"`
	Selected *SelectedVariant `json:"selected"`
	Added    bool             `json:"added"`
	Label    string           `json:"label"`
}

// VariantSelection holds at most one selected variant for the product being viewed. It is never persisted.
type VariantSelection struct {
	mu       sync.Mutex
	product  string
	selected *SelectedVariant
	added    bool
}

// View records navigation to product, dropping the selection when the product changes.
func (v *VariantSelection) View(product string) {
	product = strings.TrimSpace(product)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.product != product {
		v.product = product
		v.selected = nil
		v.added = false
	}
}

// Select overwrites the current selection.
func (v *VariantSelection) Select(product string, variant SelectedVariant) {
	product = strings.TrimSpace(product)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.product = product
	v.selected = &variant
	v.added = false
}

// MarkAdded flags that the selected variant was just added to the cart.
func (v *VariantSelection) MarkAdded(variantID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selected != nil && v.selected.ID == variantID {
		v.added = true
	}
}

// Reset clears the selection.
func (v *VariantSelection) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.product = ""
	v.selected = nil
	v.added = false
}

// Snapshot returns the current state and label.
func (v *VariantSelection) Snapshot() VariantSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := VariantSnapshot{Product: v.product, Added: v.added}
	if v.selected != nil {
		sel := *v.selected
		snap.Selected = &sel
	}
	snap.Label = AddToCartLabel(snap.Selected != nil, v.added)
	return snap
}
