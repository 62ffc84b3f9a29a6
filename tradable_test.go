package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_Validates(t *testing.T) {
	_, err := NewOrder("o1", "", "IBM", LimitPrice(100), SideBuy, 10)
	assert.Error(t, err)

	_, err = NewOrder("o1", "alice", "", LimitPrice(100), SideBuy, 10)
	assert.Error(t, err)

	_, err = NewOrder("o1", "alice", "IBM", LimitPrice(0), SideBuy, 10)
	assert.Error(t, err)

	_, err = NewOrder("o1", "alice", "IBM", LimitPrice(100), SideBuy, 0)
	assert.Error(t, err)

	_, err = NewOrder("", "alice", "IBM", LimitPrice(100), SideBuy, 10)
	assert.Error(t, err)

	o, err := NewOrder("o1", "alice", "IBM", LimitPrice(100), SideBuy, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, o.OriginalVolume)
	assert.Equal(t, 10, o.RemainingVolume)
	assert.Equal(t, 0, o.CancelledVolume)
	assert.False(t, o.IsQuoteSide)
}

func TestNewOrder_MarketPriceAllowed(t *testing.T) {
	o, err := NewOrder("o1", "alice", "IBM", MarketPrice(), SideBuy, 10)
	require.NoError(t, err)
	assert.True(t, o.Price.IsMarket())
}

func TestSetRemainingVolume_EnforcesBound(t *testing.T) {
	o, err := NewOrder("o1", "alice", "IBM", LimitPrice(100), SideBuy, 10)
	require.NoError(t, err)

	assert.Error(t, o.SetRemainingVolume(-1))

	require.NoError(t, o.SetCancelledVolume(4))
	assert.Error(t, o.SetRemainingVolume(7))
	assert.NoError(t, o.SetRemainingVolume(6))
}

func TestSetCancelledVolume_IsFlatOverwriteNotSum(t *testing.T) {
	o, err := NewOrder("o1", "alice", "IBM", LimitPrice(100), SideBuy, 10)
	require.NoError(t, err)

	require.NoError(t, o.SetCancelledVolume(4))
	assert.Equal(t, 4, o.CancelledVolume)

	// Overwrite, not accumulate: setting to 3 after 4 succeeds and leaves 3,
	// not 7, even though the bound check validated as if adding.
	require.NoError(t, o.SetCancelledVolume(3))
	assert.Equal(t, 3, o.CancelledVolume)
}

func TestNewQuote_BuildsBothSidesAtomically(t *testing.T) {
	q, err := NewQuote("b1", "s1", "alice", "IBM", LimitPrice(100), 10, LimitPrice(105), 5)
	require.NoError(t, err)
	assert.Equal(t, SideBuy, q.Buy.Side)
	assert.Equal(t, SideSell, q.Sell.Side)
	assert.True(t, q.Buy.IsQuoteSide)
	assert.True(t, q.Sell.IsQuoteSide)
	assert.Same(t, q.Buy, q.Side(SideBuy))
	assert.Same(t, q.Sell, q.Side(SideSell))
}

func TestNewQuote_RejectsInvalidSide(t *testing.T) {
	_, err := NewQuote("b1", "s1", "alice", "IBM", LimitPrice(0), 10, LimitPrice(105), 5)
	assert.Error(t, err)
}
