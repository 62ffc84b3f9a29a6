package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitPrice_Interning(t *testing.T) {
	a := LimitPrice(1050)
	b := LimitPrice(1050)
	assert.Same(t, a, b)
	assert.NotSame(t, a, LimitPrice(1051))
}

func TestMarketPrice_Singleton(t *testing.T) {
	assert.Same(t, MarketPrice(), MarketPrice())
	assert.True(t, MarketPrice().IsMarket())
	assert.False(t, LimitPrice(100).IsMarket())
}

func TestPrice_ComparisonsFalseWhenEitherSideIsMarket(t *testing.T) {
	limit := LimitPrice(100)
	mkt := MarketPrice()

	assert.False(t, mkt.Equal(mkt))
	assert.False(t, mkt.Equal(limit))
	assert.False(t, limit.Equal(mkt))
	assert.False(t, mkt.GreaterThan(limit))
	assert.False(t, mkt.GreaterOrEqual(limit))
	assert.False(t, mkt.LessThan(limit))
	assert.False(t, mkt.LessOrEqual(limit))
}

func TestPrice_Comparisons(t *testing.T) {
	low := LimitPrice(100)
	high := LimitPrice(200)

	assert.True(t, high.GreaterThan(low))
	assert.True(t, high.GreaterOrEqual(low))
	assert.True(t, high.GreaterOrEqual(high))
	assert.True(t, low.LessThan(high))
	assert.True(t, low.LessOrEqual(high))
	assert.True(t, low.Equal(LimitPrice(100)))
	assert.False(t, low.Equal(high))
}

func TestPrice_Arithmetic(t *testing.T) {
	sum, err := LimitPrice(100).Add(LimitPrice(50))
	assert.NoError(t, err)
	assert.Equal(t, int64(150), sum.Cents())

	diff, err := LimitPrice(100).Sub(LimitPrice(150))
	assert.NoError(t, err)
	assert.Equal(t, int64(-50), diff.Cents())
	assert.True(t, diff.IsNegative())

	scaled, err := LimitPrice(100).Mul(3)
	assert.NoError(t, err)
	assert.Equal(t, int64(300), scaled.Cents())
}

func TestPrice_ArithmeticFailsOnMarket(t *testing.T) {
	_, err := MarketPrice().Add(LimitPrice(100))
	assert.Error(t, err)
	var exchErr *Error
	assert.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindInvalidPriceOperation, exchErr.Kind)

	_, err = LimitPrice(100).Sub(MarketPrice())
	assert.Error(t, err)

	_, err = MarketPrice().Mul(2)
	assert.Error(t, err)
}

func TestPrice_String(t *testing.T) {
	assert.Equal(t, "MKT", MarketPrice().String())
	assert.Equal(t, "$10.00", LimitPrice(1000).String())
	assert.Equal(t, "$-10.50", LimitPrice(-1050).String())
	assert.Equal(t, "$0.05", LimitPrice(5).String())
}
