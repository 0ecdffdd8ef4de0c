package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// TestAllocateFIFO_SingleLotCoversRequest exercises the common case: one
// candidate lot holds more than enough stock.
func TestAllocateFIFO_SingleLotCoversRequest(t *testing.T) {
	candidates := []candidateLot{
		{id: 1, locationID: 10, available: dec("500")},
	}
	allocations, err := allocateFIFO(7, dec("200"), candidates)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, int64(1), allocations[0].LotID)
	assert.Equal(t, int64(7), allocations[0].ProductID)
	assert.Equal(t, int64(10), allocations[0].LocationID)
	assert.True(t, allocations[0].Quantity.Equal(dec("200")))
}

// TestAllocateFIFO_SpansMultipleLotsOldestFirst matches spec §8's FIFO
// scenario: lot A (100kg, older) then lot B (100kg, newer); requesting 150
// must draw 100 from A and 50 from B, in that order.
func TestAllocateFIFO_SpansMultipleLotsOldestFirst(t *testing.T) {
	candidates := []candidateLot{
		{id: 100, locationID: 1, available: dec("100")}, // lot A, oldest
		{id: 200, locationID: 1, available: dec("100")}, // lot B, newer
	}
	allocations, err := allocateFIFO(9, dec("150"), candidates)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, int64(100), allocations[0].LotID)
	assert.True(t, allocations[0].Quantity.Equal(dec("100")))
	assert.Equal(t, int64(200), allocations[1].LotID)
	assert.True(t, allocations[1].Quantity.Equal(dec("50")))
}

// TestAllocateFIFO_ExactTotalSucceeds confirms the boundary where available
// stock exactly equals the requested quantity.
func TestAllocateFIFO_ExactTotalSucceeds(t *testing.T) {
	candidates := []candidateLot{
		{id: 1, locationID: 1, available: dec("60")},
		{id: 2, locationID: 1, available: dec("40")},
	}
	allocations, err := allocateFIFO(3, dec("100"), candidates)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Quantity)
	}
	assert.True(t, total.Equal(dec("100")))
}

// TestAllocateFIFO_InsufficientStockReportsShortfall verifies P3: when the
// candidate set cannot cover the request, the error names the product, the
// total available, and the amount required.
func TestAllocateFIFO_InsufficientStockReportsShortfall(t *testing.T) {
	candidates := []candidateLot{
		{id: 1, locationID: 1, available: dec("30")},
	}
	_, err := allocateFIFO(42, dec("100"), candidates)
	require.Error(t, err)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Lines, 1)
	assert.Equal(t, int64(42), stockErr.Lines[0].ProductID)
	assert.True(t, stockErr.Lines[0].Available.Equal(dec("30")))
	assert.True(t, stockErr.Lines[0].Required.Equal(dec("100")))
}

// TestAllocateFIFO_NoCandidatesIsInsufficient covers the zero-lot edge case
// (product has never been received at all).
func TestAllocateFIFO_NoCandidatesIsInsufficient(t *testing.T) {
	_, err := allocateFIFO(1, dec("1"), nil)
	require.Error(t, err)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.True(t, stockErr.Lines[0].Available.IsZero())
}

// TestAllocateFIFO_ZeroRequiredAllocatesNothing guards against a degenerate
// zero-quantity request silently consuming a lot.
func TestAllocateFIFO_ZeroRequiredAllocatesNothing(t *testing.T) {
	candidates := []candidateLot{{id: 1, locationID: 1, available: dec("10")}}
	allocations, err := allocateFIFO(1, decimal.Zero, candidates)
	require.NoError(t, err)
	assert.Empty(t, allocations)
}
