package exchange

import (
	"math"
	"strconv"
	"sync"

	"github.com/igrmk/treemap/v2"
)

// archiveMarketKey is the sentinel archiveIndex key standing in for the
// MARKET price, which has no cents value of its own. It sorts after every
// representable LIMIT price.
const archiveMarketKey int64 = math.MaxInt64

func archiveKey(p *Price) int64 {
	if p.IsMarket() {
		return archiveMarketKey
	}
	return p.Cents()
}

func archivePriceForKey(key int64) *Price {
	if key == archiveMarketKey {
		return MarketPrice()
	}
	return LimitPrice(key)
}

// ProductBook maintains the BUY and SELL sides of a single product and the
// bookkeeping that sits above them: which users currently have a resting
// quote, the archive of tradables that have fully traded or cancelled, and
// the fingerprint used to suppress redundant current-market publications.
type ProductBook struct {
	mu sync.Mutex

	product  string
	buySide  *BookSide
	sellSide *BookSide

	userQuotes   map[string]struct{}
	oldEntries   map[*Price][]*Tradable
	archiveIndex *treemap.TreeMap[int64, struct{}] // ordered set of archived prices, by archiveKey

	lastSalePrice    *Price
	latestMarketData string

	publishers *publisherSet
	stateFn    func() MarketState
}

func newProductBook(product string, publishers *publisherSet, stateFn func() MarketState) *ProductBook {
	pb := &ProductBook{
		product:       product,
		userQuotes:    make(map[string]struct{}),
		oldEntries:    make(map[*Price][]*Tradable),
		archiveIndex:  treemap.NewWithKeyCompare[int64, struct{}](func(a, b int64) bool { return a < b }),
		lastSalePrice: LimitPrice(0),
		publishers:    publishers,
		stateFn:       stateFn,
	}
	pb.buySide = newBookSide(pb, product, SideBuy)
	pb.sellSide = newBookSide(pb, product, SideSell)
	return pb
}

func (pb *ProductBook) state() MarketState {
	return pb.stateFn()
}

// archiveTradable is called by a BookSide while it still holds its own
// lock, from inside a trade pass, to record a fully consumed entry. It sets
// cancelled volume to whatever remained and zeroes the remainder, matching
// the source's addOldEntry, then files the entry under its price.
func (pb *ProductBook) archiveTradable(t *Tradable) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	remaining := t.RemainingVolume
	_ = t.SetCancelledVolume(remaining)
	_ = t.SetRemainingVolume(0)
	pb.oldEntries[t.Price] = append(pb.oldEntries[t.Price], t)
	pb.archiveIndex.Set(archiveKey(t.Price), struct{}{})
}

// CheckTooLateToCancel scans the archive for orderID, in ascending price
// order, and publishes a "Too Late to Cancel" notice if found, or reports
// OrderNotFound.
func (pb *ProductBook) CheckTooLateToCancel(orderID string) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	for it := pb.archiveIndex.Iterator(); it.Valid(); it.Next() {
		price := archivePriceForKey(it.Key())
		for _, t := range pb.oldEntries[price] {
			if t.ID == orderID {
				cm, err := NewCancelMessage(t.User, t.Product, t.Price, t.RemainingVolume, "Too Late to Cancel", t.Side, t.ID)
				if err != nil {
					return err
				}
				pb.publishers.message.publishCancel(cm)
				return nil
			}
		}
	}
	return newError(KindOrderNotFound, "the requested order could not be found")
}

// GetBookDepth returns the BUY and SELL depth lines, in that order.
func (pb *ProductBook) GetBookDepth() [2][]string {
	return [2][]string{pb.buySide.GetBookDepth(), pb.sellSide.GetBookDepth()}
}

// GetMarketData returns the current best buy/sell price and volume,
// coercing an empty side's price to $0.
func (pb *ProductBook) GetMarketData() CurrentMarketDTO {
	buyPrice, ok := pb.buySide.TopOfBookPrice()
	if !ok {
		buyPrice = LimitPrice(0)
	}
	sellPrice, ok := pb.sellSide.TopOfBookPrice()
	if !ok {
		sellPrice = LimitPrice(0)
	}
	return CurrentMarketDTO{
		Product:    pb.product,
		BuyPrice:   buyPrice,
		BuyVolume:  pb.buySide.TopOfBookVolume(),
		SellPrice:  sellPrice,
		SellVolume: pb.sellSide.TopOfBookVolume(),
	}
}

// GetOrdersWithRemainingQty returns user's still-working orders from both
// sides.
func (pb *ProductBook) GetOrdersWithRemainingQty(user string) []*Tradable {
	out := pb.buySide.GetOrdersWithRemainingQty(user)
	out = append(out, pb.sellSide.GetOrdersWithRemainingQty(user)...)
	return out
}

// OpenMarket runs the opening cross: while the best buy and sell prices
// overlap, or either is MARKET, every entry at the top of the buy side is
// matched against the sell side in turn, fully filled buy entries are
// dropped, and the current market and last sale are published once per
// pass. The fill set used for last-sale reporting is whatever the final
// buy entry in the pass produced, matching the source's reassignment loop
// rather than a merge across the whole pass.
func (pb *ProductBook) OpenMarket() error {
	for {
		buyPrice, okBuy := pb.buySide.TopOfBookPrice()
		sellPrice, okSell := pb.sellSide.TopOfBookPrice()
		if !okBuy || !okSell {
			return nil
		}
		if !(buyPrice.GreaterOrEqual(sellPrice) || buyPrice.IsMarket() || sellPrice.IsMarket()) {
			return nil
		}

		pb.mu.Lock()
		fallback := pb.lastSalePrice
		pb.mu.Unlock()

		topBuys, ok := pb.buySide.topOfBookSnapshot()
		if !ok {
			return nil
		}

		var allFills map[fillKey]*FillMessage
		for _, t := range topBuys {
			fills, err := pb.sellSide.TryTrade(t, fallback)
			if err != nil {
				return err
			}
			allFills = fills
			if t.RemainingVolume == 0 {
				pb.buySide.RemoveEntry(t)
			}
		}
		pb.publishFills(allFills)
		pb.updateCurrentMarket()

		if len(allFills) > 0 {
			price, vol := lastSaleFromFills(allFills)
			pb.mu.Lock()
			pb.lastSalePrice = price
			pb.mu.Unlock()
			pb.publishers.lastSale.publishLastSale(pb.product, price, vol)
		}

		if pb.buySide.IsEmpty() || pb.sellSide.IsEmpty() {
			return nil
		}
	}
}

// CloseMarket cancels every resting entry on both sides and republishes the
// now-empty current market.
func (pb *ProductBook) CloseMarket() {
	victims := pb.buySide.CancelAll()
	victims = append(victims, pb.sellSide.CancelAll()...)
	for _, t := range victims {
		cm, err := NewCancelMessage(t.User, t.Product, t.Price, t.RemainingVolume, closeDetails(t), t.Side, t.ID)
		if err == nil {
			pb.publishers.message.publishCancel(cm)
		}
	}
	pb.updateCurrentMarket()
}

func closeDetails(t *Tradable) string {
	if t.IsQuoteSide {
		return "Quote " + t.Side.String() + "-Side Cancelled"
	}
	return t.Side.String() + " Order Cancelled"
}

// CancelOrder cancels a resting order by id on the given side.
func (pb *ProductBook) CancelOrder(side Side, orderID string) error {
	var bs *BookSide
	if side == SideBuy {
		bs = pb.buySide
	} else {
		bs = pb.sellSide
	}
	t := bs.RemoveOrder(orderID)
	if t == nil {
		return pb.CheckTooLateToCancel(orderID)
	}
	cm, err := NewCancelMessage(t.User, t.Product, t.Price, t.RemainingVolume, t.Side.String()+" Order Cancelled", t.Side, t.ID)
	if err != nil {
		return err
	}
	pb.publishers.message.publishCancel(cm)
	pb.updateCurrentMarket()
	return nil
}

// CancelQuote cancels both sides of user's resting quote, if any, and
// publishes a cancel notice per side actually found.
func (pb *ProductBook) CancelQuote(user string) error {
	if buy := pb.buySide.RemoveQuote(user); buy != nil {
		cm, err := NewCancelMessage(buy.User, buy.Product, buy.Price, buy.RemainingVolume, "Quote "+buy.Side.String()+"-Side Cancelled", buy.Side, buy.ID)
		if err != nil {
			return err
		}
		pb.publishers.message.publishCancel(cm)
	}
	if sell := pb.sellSide.RemoveQuote(user); sell != nil {
		cm, err := NewCancelMessage(sell.User, sell.Product, sell.Price, sell.RemainingVolume, "Quote "+sell.Side.String()+"-Side Cancelled", sell.Side, sell.ID)
		if err != nil {
			return err
		}
		pb.publishers.message.publishCancel(cm)
	}
	pb.mu.Lock()
	delete(pb.userQuotes, user)
	pb.mu.Unlock()
	pb.updateCurrentMarket()
	return nil
}

// AddQuote replaces user's existing quote, if any, with q. Replacement is
// silent: removing the old sides never publishes a cancel, matching the
// source's addToBook(Quote) path, which calls removeQuote directly instead
// of the cancel-publishing submitQuoteCancel.
func (pb *ProductBook) AddQuote(q *Quote) error {
	if err := pb.validateQuote(q); err != nil {
		return err
	}

	pb.mu.Lock()
	_, hadQuote := pb.userQuotes[q.UserName]
	pb.mu.Unlock()

	if hadQuote {
		pb.buySide.RemoveQuote(q.UserName)
		pb.sellSide.RemoveQuote(q.UserName)
		pb.updateCurrentMarket()
	}

	if err := pb.addToBook(SideBuy, q.Buy); err != nil {
		return err
	}
	if err := pb.addToBook(SideSell, q.Sell); err != nil {
		return err
	}

	pb.mu.Lock()
	pb.userQuotes[q.UserName] = struct{}{}
	pb.mu.Unlock()

	pb.updateCurrentMarket()
	return nil
}

// AddOrder routes an order to its side, matching it if the market is open.
func (pb *ProductBook) AddOrder(o *Tradable) error {
	if err := pb.addToBook(o.Side, o); err != nil {
		return err
	}
	pb.updateCurrentMarket()
	return nil
}

// addToBook is the private routing logic shared by AddOrder and AddQuote.
// While the market is in PREOPEN, entries rest without trying to match.
// Otherwise the entry is tried against the opposite side; anything left
// over rests unless the entry itself is MARKET, in which case the
// remainder is cancelled instead of resting.
func (pb *ProductBook) addToBook(side Side, trd *Tradable) error {
	if pb.state() == StatePreOpen {
		pb.sideFor(side).addToBook(trd)
		return nil
	}

	opposite := pb.sideFor(oppositeSide(side))
	pb.mu.Lock()
	fallback := pb.lastSalePrice
	pb.mu.Unlock()

	fills, err := opposite.TryTrade(trd, fallback)
	if err != nil {
		return err
	}
	if len(fills) > 0 {
		pb.publishFills(fills)
		pb.updateCurrentMarket()
		traded := trd.OriginalVolume - trd.RemainingVolume
		price, _ := lastSaleFromFills(fills)
		pb.mu.Lock()
		pb.lastSalePrice = price
		pb.mu.Unlock()
		pb.publishers.lastSale.publishLastSale(pb.product, price, traded)
	}

	if trd.RemainingVolume > 0 {
		if trd.Price.IsMarket() {
			cm, err := NewCancelMessage(trd.User, trd.Product, trd.Price, trd.RemainingVolume, "Cancelled", trd.Side, trd.ID)
			if err != nil {
				return err
			}
			pb.publishers.message.publishCancel(cm)
		} else {
			pb.sideFor(side).addToBook(trd)
		}
	}
	return nil
}

func oppositeSide(side Side) Side {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (pb *ProductBook) sideFor(side Side) *BookSide {
	if side == SideBuy {
		return pb.buySide
	}
	return pb.sellSide
}

// updateCurrentMarket recomputes the best-price fingerprint and publishes a
// current-market update only when it actually changed.
func (pb *ProductBook) updateCurrentMarket() {
	md := pb.GetMarketData()
	fingerprint := md.BuyPrice.String() + strconv.Itoa(md.BuyVolume) + md.SellPrice.String() + strconv.Itoa(md.SellVolume)

	pb.mu.Lock()
	changed := pb.latestMarketData != fingerprint
	if changed {
		pb.latestMarketData = fingerprint
	}
	pb.mu.Unlock()

	if changed {
		pb.publishers.currentMarket.publishCurrentMarket(md)
	}
}

func (pb *ProductBook) publishFills(fills map[fillKey]*FillMessage) {
	for _, fm := range fills {
		pb.publishers.message.publishFill(fm)
	}
}

// lastSaleFromFills reports the lowest price across the fill set as the
// last sale price, and the volume belonging to whichever fill has the
// highest price, matching the source's independent ascending and
// ascending-then-reversed sorts of the same fill set. Ties are broken
// arbitrarily, same as the source's unordered HashMap iteration.
func lastSaleFromFills(fills map[fillKey]*FillMessage) (*Price, int) {
	var minPrice *Price
	var maxPriceFill *FillMessage
	for _, fm := range fills {
		if minPrice == nil || fm.Price.Cents() < minPrice.Cents() {
			minPrice = fm.Price
		}
		if maxPriceFill == nil || fm.Price.Cents() > maxPriceFill.Price.Cents() {
			maxPriceFill = fm
		}
	}
	if minPrice == nil {
		return LimitPrice(0), 0
	}
	return minPrice, maxPriceFill.Volume
}

func (pb *ProductBook) validateQuote(q *Quote) error {
	buy, sell := q.Buy.Price, q.Sell.Price
	if sell.LessOrEqual(buy) {
		return newError(KindDataValidation, "sell price: %s cannot be less than or equal to the buy price: %s", sell, buy)
	}
	zero := LimitPrice(0)
	if buy.LessOrEqual(zero) || sell.LessOrEqual(zero) {
		return newError(KindDataValidation, "the buy and sell prices cannot be less than or equal to 0, buy price: %s, sell price: %s", buy, sell)
	}
	if q.Buy.OriginalVolume <= 0 || q.Sell.OriginalVolume <= 0 {
		return newError(KindDataValidation, "the original volume of the buy or sell side cannot be less than or equal to 0, buy volume: %d, sell volume: %d", q.Buy.OriginalVolume, q.Sell.OriginalVolume)
	}
	return nil
}

