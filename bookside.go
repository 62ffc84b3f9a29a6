package exchange

import (
	"strconv"
	"sync"

	"github.com/huandu/skiplist"
	"github.com/igrmk/treemap/v2"
)

// priceLevel is the intrusive FIFO queue of entries resting at one price.
// Entries are linked through their own next/prev fields, the same pattern
// the source's price-level queue uses, so adding and removing an entry
// never touches a slice.
type priceLevel struct {
	price *Price
	head  *Tradable
	tail  *Tradable
	count int
}

func (pl *priceLevel) pushBack(t *Tradable) {
	t.next = nil
	t.prev = pl.tail
	if pl.tail != nil {
		pl.tail.next = t
	} else {
		pl.head = t
	}
	pl.tail = t
	pl.count++
}

func (pl *priceLevel) remove(t *Tradable) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		pl.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		pl.tail = t.prev
	}
	t.next, t.prev = nil, nil
	pl.count--
}

func (pl *priceLevel) snapshot() []*Tradable {
	out := make([]*Tradable, 0, pl.count)
	for e := pl.head; e != nil; e = e.next {
		out = append(out, e)
	}
	return out
}

func (pl *priceLevel) totalVolume() int {
	total := 0
	for e := pl.head; e != nil; e = e.next {
		total += e.RemainingVolume
	}
	return total
}

// betterThan reports whether a has priority over b for the given side: for
// BUY the highest price wins, for SELL the lowest price wins, and MARKET
// always wins over any LIMIT price on either side.
func betterThan(side Side, a, b *Price) bool {
	if a.IsMarket() {
		return !b.IsMarket()
	}
	if b.IsMarket() {
		return false
	}
	if side == SideBuy {
		return a.Cents() > b.Cents()
	}
	return a.Cents() < b.Cents()
}

// BookSide is the resting-order book for one side (BUY or SELL) of one
// product. Entries are indexed by price in a skiplist ordered so that the
// best price is always at the front, and within a price by FIFO arrival
// order, mirroring the source's price-time priority queue.
type BookSide struct {
	mu      sync.Mutex
	side    Side
	product string
	parent  *ProductBook

	levels     *skiplist.SkipList
	levelIndex map[*Price]*skiplist.Element
	entries    map[string]*Tradable // order id -> entry, orders only
}

func newBookSide(parent *ProductBook, product string, side Side) *BookSide {
	cmp := func(lhs, rhs any) int {
		a, b := lhs.(*Price), rhs.(*Price)
		switch {
		case betterThan(side, a, b):
			return -1
		case betterThan(side, b, a):
			return 1
		default:
			return 0
		}
	}
	return &BookSide{
		side:       side,
		product:    product,
		parent:     parent,
		levels:     skiplist.New(skiplist.GreaterThanFunc(cmp)),
		levelIndex: make(map[*Price]*skiplist.Element),
		entries:    make(map[string]*Tradable),
	}
}

func (bs *BookSide) levelAt(price *Price) *priceLevel {
	if el, ok := bs.levelIndex[price]; ok {
		return el.Value.(*priceLevel)
	}
	return nil
}

func (bs *BookSide) levelFor(price *Price) *priceLevel {
	if pl := bs.levelAt(price); pl != nil {
		return pl
	}
	pl := &priceLevel{price: price}
	el := bs.levels.Set(price, pl)
	bs.levelIndex[price] = el
	return pl
}

func (bs *BookSide) clearIfEmpty(pl *priceLevel) {
	if pl.count > 0 {
		return
	}
	if el, ok := bs.levelIndex[pl.price]; ok {
		bs.levels.RemoveElement(el)
		delete(bs.levelIndex, pl.price)
	}
}

// addToBook appends a new resting entry to its price level without trying
// to match it against anything.
func (bs *BookSide) addToBook(t *Tradable) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.levelFor(t.Price).pushBack(t)
	if !t.IsQuoteSide {
		bs.entries[t.ID] = t
	}
}

// topOfBook returns the best price level, or nil if the side is empty.
func (bs *BookSide) topOfBook() *priceLevel {
	el := bs.levels.Front()
	if el == nil {
		return nil
	}
	return el.Value.(*priceLevel)
}

// TopOfBookPrice reports the best resting price, if any.
func (bs *BookSide) TopOfBookPrice() (*Price, bool) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	pl := bs.topOfBook()
	if pl == nil {
		return nil, false
	}
	return pl.price, true
}

// TopOfBookVolume reports the aggregate remaining volume at the best price.
func (bs *BookSide) TopOfBookVolume() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	pl := bs.topOfBook()
	if pl == nil {
		return 0
	}
	return pl.totalVolume()
}

// HasMarketPrice reports whether any MARKET order rests on this side.
func (bs *BookSide) HasMarketPrice() bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	_, ok := bs.levelIndex[MarketPrice()]
	return ok
}

// HasOnlyMarketPrice reports whether the entire side is the MARKET level.
func (bs *BookSide) HasOnlyMarketPrice() bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if len(bs.levelIndex) != 1 {
		return false
	}
	_, ok := bs.levelIndex[MarketPrice()]
	return ok
}

// IsEmpty reports whether the side has no resting entries at all.
func (bs *BookSide) IsEmpty() bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.levels.Front() == nil
}

// AggregatedVolumeByPrice aggregates remaining volume per LIMIT price into
// an ordered cents -> volume treemap, for reporting callers that want a
// sorted cents view without reaching into the skiplist level index
// directly. MARKET has no place in a price-ordered map, so its aggregate
// volume, if any, is returned separately.
func (bs *BookSide) AggregatedVolumeByPrice() (*treemap.TreeMap[int64, int64], int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	agg := treemap.NewWithKeyCompare[int64, int64](func(a, b int64) bool { return a < b })
	marketVolume := 0
	for el := bs.levels.Front(); el != nil; el = el.Next() {
		pl := el.Value.(*priceLevel)
		if pl.price.IsMarket() {
			marketVolume = pl.totalVolume()
			continue
		}
		agg.Set(pl.price.Cents(), int64(pl.totalVolume()))
	}
	return agg, marketVolume
}

// GetBookDepth renders one "<price> x <volume>" line per price level, best
// price first, or a single placeholder line when the side is empty. MARKET,
// when resting, always leads since it has first priority regardless of
// side.
func (bs *BookSide) GetBookDepth() []string {
	agg, marketVolume := bs.AggregatedVolumeByPrice()
	var out []string
	if marketVolume > 0 {
		out = append(out, MarketPrice().String()+" x "+strconv.Itoa(marketVolume))
	}
	if bs.side == SideBuy {
		for it := agg.Reverse(); it.Valid(); it.Next() {
			out = append(out, LimitPrice(it.Key()).String()+" x "+strconv.Itoa(int(it.Value())))
		}
	} else {
		for it := agg.Iterator(); it.Valid(); it.Next() {
			out = append(out, LimitPrice(it.Key()).String()+" x "+strconv.Itoa(int(it.Value())))
		}
	}
	if len(out) == 0 {
		out = append(out, "<Empty>")
	}
	return out
}

// GetOrdersWithRemainingQty returns every order belonging to user with
// remaining volume, sorted by price descending regardless of side. This
// matches the source's reporting helper, which always reverse-sorts prices
// for this one query even on the SELL side.
func (bs *BookSide) GetOrdersWithRemainingQty(user string) []*Tradable {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	var prices []*Price
	for el := bs.levels.Front(); el != nil; el = el.Next() {
		prices = append(prices, el.Value.(*priceLevel).price)
	}
	sortPricesDescending(prices)
	var out []*Tradable
	for _, p := range prices {
		pl := bs.levelAt(p)
		for _, t := range pl.snapshot() {
			if t.User == user && t.RemainingVolume > 0 {
				out = append(out, t)
			}
		}
	}
	return out
}

func sortPricesDescending(prices []*Price) {
	for i := 1; i < len(prices); i++ {
		for j := i; j > 0 && betterLess(prices[j-1], prices[j]); j-- {
			prices[j-1], prices[j] = prices[j], prices[j-1]
		}
	}
}

// betterLess orders MARKET above all LIMIT prices and LIMIT prices by
// descending cent value, independent of book side.
func betterLess(a, b *Price) bool {
	if a.IsMarket() {
		return false
	}
	if b.IsMarket() {
		return true
	}
	return a.Cents() < b.Cents()
}

// removeEntry unlinks t from its price level and clears the level if it's
// now empty.
func (bs *BookSide) removeEntry(t *Tradable) {
	pl := bs.levelAt(t.Price)
	if pl == nil {
		return
	}
	pl.remove(t)
	delete(bs.entries, t.ID)
	bs.clearIfEmpty(pl)
}

// RemoveQuote silently removes the resting quote-side entry for user, if
// any. It never publishes a cancel; that's the caller's decision, since
// quote replacement and explicit quote cancellation treat this differently.
func (bs *BookSide) RemoveQuote(user string) *Tradable {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for el := bs.levels.Front(); el != nil; el = el.Next() {
		pl := el.Value.(*priceLevel)
		for e := pl.head; e != nil; e = e.next {
			if e.IsQuoteSide && e.User == user {
				pl.remove(e)
				bs.clearIfEmpty(pl)
				return e
			}
		}
	}
	return nil
}

// RemoveOrder removes and returns the resting order with the given id, if
// it is still resting on this side.
func (bs *BookSide) RemoveOrder(id string) *Tradable {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	t, ok := bs.entries[id]
	if !ok {
		return nil
	}
	bs.removeEntry(t)
	return t
}

// RemoveEntry unlinks a known entry from its price level directly. Unlike
// RemoveOrder, it works for quote-side entries too, since it doesn't need
// to look the entry up by id.
func (bs *BookSide) RemoveEntry(t *Tradable) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.removeEntry(t)
}

// topOfBookSnapshot returns the FIFO-ordered entries resting at the best
// price, for a caller that needs to iterate them as aggressors against the
// opposite side (the opening cross).
func (bs *BookSide) topOfBookSnapshot() ([]*Tradable, bool) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	pl := bs.topOfBook()
	if pl == nil {
		return nil, false
	}
	return pl.snapshot(), true
}

// CancelAll removes every resting entry on this side and returns them, best
// price first within price, FIFO order preserved. Collection happens before
// any mutation, matching the source's two-phase cancel-all.
func (bs *BookSide) CancelAll() []*Tradable {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	var victims []*Tradable
	var levels []*skiplist.Element
	for el := bs.levels.Front(); el != nil; el = el.Next() {
		victims = append(victims, el.Value.(*priceLevel).snapshot()...)
		levels = append(levels, el)
	}
	for _, el := range levels {
		bs.levels.RemoveElement(el)
	}
	bs.levelIndex = make(map[*Price]*skiplist.Element)
	bs.entries = make(map[string]*Tradable)
	for _, t := range victims {
		t.next, t.prev = nil, nil
	}
	return victims
}

// fillPass is the result of a single doTrade sweep across the top of book:
// the fills produced by that pass, both resting and aggressor fills, keyed
// by fillKey.
type fillPass struct {
	fills map[fillKey]*FillMessage
}

func newFillPass() *fillPass {
	return &fillPass{fills: make(map[fillKey]*FillMessage)}
}

func (fp *fillPass) add(fm *FillMessage) {
	key := makeFillKey(fm)
	if existing, ok := fp.fills[key]; ok {
		existing.Volume += fm.Volume
		existing.Details = fm.Details
		return
	}
	fp.fills[key] = fm
}

// effectivePrice is the price a trade executes at: the resting entry's
// price, unless the resting entry is MARKET, in which case the aggressor's
// price is used (when the aggressor itself is a LIMIT order); when both
// sides are MARKET, fallback is used, which during the opening cross is the
// last known sale price (or $0 if there has never been one).
func effectivePrice(resting, aggressor *Tradable, fallback *Price) *Price {
	if !resting.Price.IsMarket() {
		return resting.Price
	}
	if !aggressor.Price.IsMarket() {
		return aggressor.Price
	}
	return fallback
}

// doTrade runs one sweep of the aggressor against the current top of this
// book side, consuming as much of the top price level's FIFO queue as the
// aggressor's remaining volume allows, then returns the fills produced by
// this single pass. The caller is expected to loop this until the
// aggressor or the book is no longer marketable; see TryTrade.
func (bs *BookSide) doTrade(aggressor *Tradable, fallback *Price) (*fillPass, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	pass := newFillPass()
	pl := bs.topOfBook()
	if pl == nil {
		return pass, nil
	}

	resting := pl.snapshot()
	var consumed []*Tradable
	for _, r := range resting {
		if aggressor.RemainingVolume <= 0 {
			break
		}
		price := effectivePrice(r, aggressor, fallback)

		if aggressor.RemainingVolume >= r.RemainingVolume {
			tradedVol := r.RemainingVolume
			aggLeaving := aggressor.RemainingVolume - tradedVol

			rFill, err := NewFillMessage(r.User, r.Product, price, tradedVol, "leaving 0", r.Side, r.ID)
			if err != nil {
				return nil, err
			}
			aFill, err := NewFillMessage(aggressor.User, aggressor.Product, price, tradedVol, fillDetails(aggLeaving), aggressor.Side, aggressor.ID)
			if err != nil {
				return nil, err
			}
			pass.add(rFill)
			pass.add(aFill)

			if err := r.SetRemainingVolume(0); err != nil {
				return nil, err
			}
			aggressor.RemainingVolume = aggLeaving
			consumed = append(consumed, r)
			bs.parent.archiveTradable(r)
		} else {
			tradedVol := aggressor.RemainingVolume
			rLeaving := r.RemainingVolume - tradedVol

			rFill, err := NewFillMessage(r.User, r.Product, price, tradedVol, fillDetails(rLeaving), r.Side, r.ID)
			if err != nil {
				return nil, err
			}
			aFill, err := NewFillMessage(aggressor.User, aggressor.Product, price, tradedVol, "leaving 0", aggressor.Side, aggressor.ID)
			if err != nil {
				return nil, err
			}
			pass.add(rFill)
			pass.add(aFill)

			if err := r.SetRemainingVolume(rLeaving); err != nil {
				return nil, err
			}
			aggressor.RemainingVolume = 0
			bs.parent.archiveTradable(aggressor)
			break
		}
	}

	for _, r := range consumed {
		pl.remove(r)
		delete(bs.entries, r.ID)
	}
	bs.clearIfEmpty(pl)

	return pass, nil
}

func fillDetails(remaining int) string {
	return "leaving " + strconv.Itoa(remaining)
}

// TryTrade runs doTrade repeatedly until the aggressor is filled, this side
// runs dry, or the aggressor's price is no longer marketable against the
// current top of book, merging fills across passes by overwriting volume
// and details for any (user, id, price) seen in more than one pass.
//
// The marketability check only ever tests the aggressor's own price against
// the resting top of book, never the other way around: a BUY aggressor
// keeps trading while its price is >= the SELL side's top, or while the
// aggressor itself is MARKET; a SELL aggressor keeps trading while its
// price is <= the BUY side's top, or while it's MARKET. This mirrors the
// source exactly, including its asymmetry: it never separately checks
// whether the resting top is itself MARKET, because a MARKET entry never
// survives to rest once the market is open.
func (bs *BookSide) TryTrade(aggressor *Tradable, fallback *Price) (map[fillKey]*FillMessage, error) {
	merged := make(map[fillKey]*FillMessage)
	for {
		top, ok := bs.TopOfBookPrice()
		if aggressor.RemainingVolume <= 0 || !ok {
			break
		}
		marketable := aggressor.Price.IsMarket()
		if !marketable {
			if bs.side == SideBuy {
				marketable = aggressor.Price.LessOrEqual(top)
			} else {
				marketable = aggressor.Price.GreaterOrEqual(top)
			}
		}
		if !marketable {
			break
		}
		pass, err := bs.doTrade(aggressor, fallback)
		if err != nil {
			return nil, err
		}
		mergeFills(merged, pass.fills)
	}
	return merged, nil
}

// mergeFills applies the cross-pass merge rule: for keys seen in both maps,
// the newer pass's volume and details win outright (no summing); new keys
// are simply added.
func mergeFills(into, latest map[fillKey]*FillMessage) {
	for k, fm := range latest {
		if existing, ok := into[k]; ok {
			existing.Volume = fm.Volume
			existing.Details = fm.Details
			continue
		}
		into[k] = fm
	}
}

