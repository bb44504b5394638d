package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/orderbot/core/config"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.Equal(t, 3, c.Len())

	item, ok := c.FindByID(3)
	require.True(t, ok)
	assert.Equal(t, "Groundnut Oil", item.Name)
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(160)))

	_, ok = c.FindByID(7)
	assert.False(t, ok)
}

func TestAllReturnsCopy(t *testing.T) {
	c := Default()
	all := c.All()
	all[0].Name = "changed"
	item, _ := c.FindByID(1)
	assert.Equal(t, "Sunflower Oil", item.Name)
}

func TestNewRejectsInvalidItems(t *testing.T) {
	cases := map[string][]Item{
		"duplicate": {{ID: 1, Name: "a", UnitPrice: decimal.NewFromInt(1)}, {ID: 1, Name: "b", UnitPrice: decimal.NewFromInt(2)}},
		"zero id":   {{ID: 0, Name: "a", UnitPrice: decimal.NewFromInt(1)}},
		"no name":   {{ID: 1, Name: " ", UnitPrice: decimal.NewFromInt(1)}},
		"price":     {{ID: 1, Name: "a", UnitPrice: decimal.Zero}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(items)
			assert.Error(t, err)
		})
	}
}

func TestFromConfig(t *testing.T) {
	c, err := FromConfig(config.CatalogConfig{Items: []config.CatalogItem{
		{ID: 5, Name: " Olive Oil ", Price: "450.50"},
		{ID: 2, Name: "Coconut Oil", Price: "210"},
	}})
	require.NoError(t, err)
	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, 5, all[0].ID)
	assert.Equal(t, "Olive Oil", all[0].Name)
	assert.Equal(t, "450.5", all[0].UnitPrice.String())

	_, err = FromConfig(config.CatalogConfig{Items: []config.CatalogItem{{ID: 1, Name: "x", Price: "abc"}}})
	assert.Error(t, err)

	c, err = FromConfig(config.CatalogConfig{})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
}

func TestListing(t *testing.T) {
	want := "1. Sunflower Oil - ₹120/L\n2. Mustard Oil - ₹140/L\n3. Groundnut Oil - ₹160/L"
	assert.Equal(t, want, Default().Listing("₹", "L"))
}
