package checkout

// Snapshot is the price/name pair read under the reservation lock.
// Later catalog edits never reach orders built from it.
type Snapshot struct {
	Name       string
	PriceCents int64
}

// Item builds the frozen order line for a reserved quantity.
func (s Snapshot) Item(productID string, qty int) OrderItem {
	return OrderItem{
		ProductID:  productID,
		Name:       s.Name,
		PriceCents: s.PriceCents,
		Qty:        qty,
	}
}
