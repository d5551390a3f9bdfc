package model

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Cart maps product id to quantity. It is stored as a JSON object on the
// user row, so keys round-trip as strings.
type Cart map[int64]int

// UnmarshalJSON never fails on a stored cart. Quantities may be numbers or
// numeric strings; `[]` and null decode to an empty cart. Entries with a bad
// id or a non-positive quantity are dropped.
func (c *Cart) UnmarshalJSON(data []byte) error {
	cart := Cart{}
	var entries map[string]json.RawMessage
	if json.Unmarshal(data, &entries) == nil {
		for key, raw := range entries {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil || id <= 0 {
				continue
			}
			qty, ok := jsonInt(raw)
			if !ok || qty <= 0 {
				continue
			}
			cart[id] = int(qty)
		}
	}
	*c = cart
	return nil
}

// Add increments the quantity of productID by one and returns the new value.
func (c Cart) Add(productID int64) int {
	if c[productID] < 0 {
		c[productID] = 0
	}
	c[productID]++
	return c[productID]
}

// Entries returns the positive entries ordered by product id.
func (c Cart) Entries() []CartEntry {
	entries := make([]CartEntry, 0, len(c))
	for id, qty := range c {
		if qty > 0 {
			entries = append(entries, CartEntry{ProductID: id, Qty: qty})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ProductID < entries[j].ProductID })
	return entries
}

func (c Cart) IsEmpty() bool {
	for _, qty := range c {
		if qty > 0 {
			return false
		}
	}
	return true
}

type CartEntry struct {
	ProductID int64
	Qty       int
}

// CartLine is a cart entry joined with its active product.
type CartLine struct {
	Product   Product
	Qty       int
	LineTotal decimal.Decimal
}

type CartSummary struct {
	Lines []CartLine
	Total decimal.Decimal
}

func NewCartLine(p Product, qty int) CartLine {
	return CartLine{Product: p, Qty: qty, LineTotal: p.Price.Mul(decimal.NewFromInt(int64(qty)))}
}
