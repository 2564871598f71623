package model

import "fmt"

// CatalogItem is a sellable product and the buffer slot its quantity uses.
type CatalogItem struct {
	ID    string `json:"id" yaml:"id" validate:"required"`
	Name  string `json:"name" yaml:"name" validate:"required"`
	Price int64  `json:"price" yaml:"price" validate:"gte=0"`
	Slot  int    `json:"slot" yaml:"slot" validate:"gte=0"`
}

// Catalog is the static product list.
type Catalog []CatalogItem

// DefaultCatalog is the four-product storefront. Prices are in cents.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: "1", Name: "Premium Wireless Headphones", Price: 12999, Slot: 0},
		{ID: "2", Name: "Smart Watch Pro", Price: 29999, Slot: 1},
		{ID: "3", Name: "Wireless Charger Pad", Price: 4999, Slot: 2},
		{ID: "4", Name: "Bluetooth Speaker", Price: 7999, Slot: 3},
	}
}

// Lookup returns the catalog entry for id.
func (c Catalog) Lookup(id string) (CatalogItem, bool) {
	for _, it := range c {
		if it.ID == id {
			return it, true
		}
	}
	return CatalogItem{}, false
}

// SlotMap builds the validated slot table of the catalog.
func (c Catalog) SlotMap() (SlotMap, error) {
	assign := make(map[string]int, len(c))
	for _, it := range c {
		if _, dup := assign[it.ID]; dup {
			return SlotMap{}, fmt.Errorf("catalog: duplicate item id %q", it.ID)
		}
		assign[it.ID] = it.Slot
	}
	return NewSlotMap(assign)
}

// CartLine is what the storefront hands over at checkout.
type CartLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
	Price     int64  `json:"price" validate:"gte=0"`
}
