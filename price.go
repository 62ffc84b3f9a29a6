package exchange

import (
	"fmt"
	"sync"
)

// Price is an interned value representing either a LIMIT price, in integer
// cents, or the process-wide MARKET sentinel. Two LIMIT prices created for
// the same cent value are always the same *Price, so book-side price keys
// can use pointer identity for hashing and equality.
//
// Comparisons and arithmetic involving MARKET are deliberately undefined:
// every comparison method returns false and every arithmetic method fails
// with InvalidPriceOperation when either operand is MARKET. This keeps the
// matcher free of nil-checks on price comparisons at the cost of requiring
// callers to test IsMarket() before doing arithmetic.
type Price struct {
	cents  int64
	market bool
}

var (
	priceMu    sync.Mutex
	priceCache = map[int64]*Price{}
	market     = &Price{market: true}
)

// LimitPrice returns the interned LIMIT price for the given number of
// cents. Negative values are legal; they arise naturally from Sub.
func LimitPrice(cents int64) *Price {
	priceMu.Lock()
	defer priceMu.Unlock()
	if p, ok := priceCache[cents]; ok {
		return p
	}
	p := &Price{cents: cents}
	priceCache[cents] = p
	return p
}

// MarketPrice returns the sole MARKET sentinel.
func MarketPrice() *Price {
	return market
}

// IsMarket reports whether p is the MARKET sentinel.
func (p *Price) IsMarket() bool {
	return p.market
}

// Cents returns the underlying cent value. It is meaningless (and always 0)
// for MARKET; callers must check IsMarket first.
func (p *Price) Cents() int64 {
	return p.cents
}

// IsNegative reports whether a LIMIT price is below zero. MARKET is never
// negative.
func (p *Price) IsNegative() bool {
	if p.IsMarket() {
		return false
	}
	return p.cents < 0
}

// Add returns p+o as a new interned LIMIT price.
func (p *Price) Add(o *Price) (*Price, error) {
	if p.IsMarket() || o.IsMarket() {
		return nil, newError(KindInvalidPriceOperation, "cannot perform addition involving market prices")
	}
	return LimitPrice(p.cents + o.cents), nil
}

// Sub returns p-o as a new interned LIMIT price.
func (p *Price) Sub(o *Price) (*Price, error) {
	if p.IsMarket() || o.IsMarket() {
		return nil, newError(KindInvalidPriceOperation, "cannot perform subtraction involving market prices")
	}
	return LimitPrice(p.cents - o.cents), nil
}

// Mul returns p scaled by an integer factor.
func (p *Price) Mul(n int32) (*Price, error) {
	if p.IsMarket() {
		return nil, newError(KindInvalidPriceOperation, "cannot perform multiplication involving market prices")
	}
	return LimitPrice(p.cents * int64(n)), nil
}

func (p *Price) compare(o *Price) int {
	switch {
	case p.cents > o.cents:
		return 1
	case p.cents < o.cents:
		return -1
	default:
		return 0
	}
}

// GreaterOrEqual reports p >= o; false whenever either side is MARKET.
func (p *Price) GreaterOrEqual(o *Price) bool {
	if p.IsMarket() || o.IsMarket() {
		return false
	}
	return p.compare(o) >= 0
}

// GreaterThan reports p > o; false whenever either side is MARKET.
func (p *Price) GreaterThan(o *Price) bool {
	if p.IsMarket() || o.IsMarket() {
		return false
	}
	return p.compare(o) > 0
}

// LessOrEqual reports p <= o; false whenever either side is MARKET.
func (p *Price) LessOrEqual(o *Price) bool {
	if p.IsMarket() || o.IsMarket() {
		return false
	}
	return p.compare(o) <= 0
}

// LessThan reports p < o; false whenever either side is MARKET.
func (p *Price) LessThan(o *Price) bool {
	if p.IsMarket() || o.IsMarket() {
		return false
	}
	return p.compare(o) < 0
}

// Equal reports p == o by value; false whenever either side is MARKET, even
// MARKET compared to itself, matching the source's equality contract.
func (p *Price) Equal(o *Price) bool {
	if p.IsMarket() || o.IsMarket() {
		return false
	}
	return p.compare(o) == 0
}

// String renders MARKET as "MKT" and LIMIT as a locale-independent currency
// form, e.g. "$10.00" or "$-10.00" for a negative value.
func (p *Price) String() string {
	if p.IsMarket() {
		return "MKT"
	}
	neg := p.IsNegative()
	cents := p.cents
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100
	if neg {
		return fmt.Sprintf("$-%d.%02d", whole, frac)
	}
	return fmt.Sprintf("$%d.%02d", whole, frac)
}
