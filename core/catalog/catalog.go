// Package catalog holds the read-only product list offered by the bot.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/orderbot/core/config"
)

// Item is a purchasable product with a per-unit price.
type Item struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Catalog is an immutable, ordered list of items.
type Catalog struct {
	items []Item
	byID  map[int]int
}

// ErrDuplicateID reports two items sharing an identifier.
var ErrDuplicateID = errors.New("catalog: duplicate item id")

// Default returns the built-in oil menu.
func Default() *Catalog {
	c, _ := New([]Item{
		{ID: 1, Name: "Sunflower Oil", UnitPrice: decimal.NewFromInt(120)},
		{ID: 2, Name: "Mustard Oil", UnitPrice: decimal.NewFromInt(140)},
		{ID: 3, Name: "Groundnut Oil", UnitPrice: decimal.NewFromInt(160)},
	})
	return c
}

// New validates items and builds a catalog preserving their order.
func New(items []Item) (*Catalog, error) {
	c := &Catalog{
		items: make([]Item, 0, len(items)),
		byID:  make(map[int]int, len(items)),
	}
	for _, it := range items {
		if it.ID <= 0 {
			return nil, fmt.Errorf("catalog: item %q: id must be positive", it.Name)
		}
		if strings.TrimSpace(it.Name) == "" {
			return nil, fmt.Errorf("catalog: item %d: name is required", it.ID)
		}
		if !it.UnitPrice.IsPositive() {
			return nil, fmt.Errorf("catalog: item %d: price must be positive", it.ID)
		}
		if _, dup := c.byID[it.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, it.ID)
		}
		c.byID[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}
	return c, nil
}

// FromConfig builds the catalog from configuration, falling back to Default
// when no items are configured.
func FromConfig(cfg config.CatalogConfig) (*Catalog, error) {
	if len(cfg.Items) == 0 {
		return Default(), nil
	}
	items := make([]Item, 0, len(cfg.Items))
	for _, ci := range cfg.Items {
		price, err := decimal.NewFromString(strings.TrimSpace(ci.Price))
		if err != nil {
			return nil, fmt.Errorf("catalog: item %d: invalid price %q: %w", ci.ID, ci.Price, err)
		}
		items = append(items, Item{ID: ci.ID, Name: strings.TrimSpace(ci.Name), UnitPrice: price})
	}
	return New(items)
}

// FindByID looks an item up by identifier.
func (c *Catalog) FindByID(id int) (Item, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Item{}, false
	}
	return c.items[idx], true
}

// All returns a copy of the items in display order.
func (c *Catalog) All() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Len reports the number of items.
func (c *Catalog) Len() int { return len(c.items) }

// Listing renders the numbered menu, one line per item.
func (c *Catalog) Listing(symbol, unit string) string {
	var b strings.Builder
	for i, it := range c.items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s - %s%s/%s", it.ID, it.Name, symbol, it.UnitPrice.String(), unit)
	}
	return b.String()
}
