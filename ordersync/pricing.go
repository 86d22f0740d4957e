package ordersync

// The ERP encodes volume-discount steps as breakpoint indexes 1..7 rather
// than quantities. Index 2 is a second flavor of the base price some items
// use; indexes outside the table pass through as-is.
var breakIndexQuantities = map[int]int{
	1: 1,
	2: 1,
	3: 24,
	4: 48,
	5: 192,
	6: 480,
	7: 960,
}

// MapBreakIndex translates an ERP breakpoint index to the actual minimum
// quantity it stands for.
func MapBreakIndex(idx int) int {
	if qty, ok := breakIndexQuantities[idx]; ok {
		return qty
	}
	return idx
}

// PriceForQuantity returns the unit price for the given price tier and
// total cart quantity: the price of the highest breakpoint whose quantity
// is <= qty, falling back to the lowest available breakpoint when none
// qualifies. ok is false when the item has no breakpoints for the tier.
func PriceForQuantity(item *Item, tier string, qty int) (price float64, ok bool) {
	breaks := item.PriceBreaks[tier]
	if len(breaks) == 0 {
		return 0, false
	}
	var selected *PriceBreak
	for i := range breaks {
		b := &breaks[i]
		if b.Quantity <= qty && (selected == nil || b.Quantity > selected.Quantity) {
			selected = b
		}
	}
	if selected == nil {
		lowest := &breaks[0]
		for i := range breaks {
			if breaks[i].Quantity < lowest.Quantity {
				lowest = &breaks[i]
			}
		}
		return lowest.Price, true
	}
	return selected.Price, true
}

// PriceBreaksForTier returns the item's breakpoints for a price tier, or
// nil if the tier has none.
func PriceBreaksForTier(item *Item, tier string) []PriceBreak {
	return item.PriceBreaks[tier]
}

// BasePriceForTier returns the quantity-1 price for a tier, falling back
// to the first breakpoint when no explicit base exists.
func BasePriceForTier(item *Item, tier string) (price float64, ok bool) {
	breaks := item.PriceBreaks[tier]
	if len(breaks) == 0 {
		return 0, false
	}
	for _, b := range breaks {
		if b.Quantity == 1 {
			return b.Price, true
		}
	}
	return breaks[0].Price, true
}
