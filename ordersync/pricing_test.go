package ordersync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapBreakIndex(t *testing.T) {
	cases := []struct {
		index int
		qty   int
	}{
		{1, 1},
		{2, 1},
		{3, 24},
		{4, 48},
		{5, 192},
		{6, 480},
		{7, 960},
		{8, 8},  // unknown indexes pass through
		{0, 0},
		{-3, -3},
	}
	for _, tc := range cases {
		require.Equal(t, tc.qty, MapBreakIndex(tc.index), "index %d", tc.index)
	}
}

func testItem() *Item {
	return &Item{
		ID:  "item-1",
		SKU: "WIDGET",
		PriceBreaks: map[string][]PriceBreak{
			"2": {
				{Quantity: 1, Price: 10.00},
				{Quantity: 24, Price: 8.50},
				{Quantity: 48, Price: 7.25},
				{Quantity: 192, Price: 6.00},
			},
			"3": {
				{Quantity: 24, Price: 9.00}, // no quantity-1 break
			},
		},
	}
}

func TestPriceForQuantityHighestQualifyingBreak(t *testing.T) {
	it := testItem()

	cases := []struct {
		qty   int
		price float64
	}{
		{1, 10.00},
		{23, 10.00},
		{24, 8.50},
		{47, 8.50},
		{48, 7.25},
		{191, 7.25},
		{192, 6.00},
		{5000, 6.00},
	}
	for _, tc := range cases {
		price, ok := PriceForQuantity(it, "2", tc.qty)
		require.True(t, ok, "qty %d", tc.qty)
		require.Equal(t, tc.price, price, "qty %d", tc.qty)
	}
}

// Quantities below the lowest break fall back to the lowest break's price
// rather than having no price at all.
func TestPriceForQuantityBelowLowestBreak(t *testing.T) {
	it := testItem()

	price, ok := PriceForQuantity(it, "3", 5)
	require.True(t, ok)
	require.Equal(t, 9.00, price)
}

func TestPriceForQuantityUnknownTier(t *testing.T) {
	it := testItem()

	_, ok := PriceForQuantity(it, "9", 24)
	require.False(t, ok)

	_, ok = PriceForQuantity(&Item{ID: "item-2"}, "2", 24)
	require.False(t, ok)
}

func TestPriceBreaksForTier(t *testing.T) {
	it := testItem()

	breaks := PriceBreaksForTier(it, "2")
	require.Len(t, breaks, 4)
	require.Equal(t, PriceBreak{Quantity: 1, Price: 10.00}, breaks[0])

	require.Empty(t, PriceBreaksForTier(it, "9"))
}

func TestBasePriceForTier(t *testing.T) {
	it := testItem()

	price, ok := BasePriceForTier(it, "2")
	require.True(t, ok)
	require.Equal(t, 10.00, price)

	// No quantity-1 break: the first break stands in.
	price, ok = BasePriceForTier(it, "3")
	require.True(t, ok)
	require.Equal(t, 9.00, price)

	_, ok = BasePriceForTier(it, "9")
	require.False(t, ok)
}
