package exchange

import (
	"fmt"
	"sync"
)

// Subscriber is anything that wants to receive market data. It is the Go
// shape of the source's callback-style user contract: one method per
// stream, plus AcceptMarketMessage for market-state broadcasts on the
// message stream, called synchronously on the publishing goroutine.
type Subscriber interface {
	AcceptCurrentMarket(product string, buyPrice *Price, buyVolume int, sellPrice *Price, sellVolume int)
	AcceptLastSale(product string, price *Price, volume int)
	AcceptTicker(product string, price *Price, arrow rune)
	AcceptMessage(msg fmt.Stringer)
	AcceptMarketMessage(text string)
}

// productRegistry is the per-product subscriber bookkeeping shared by
// every publisher: a set of subscribers per product, keyed by username so
// a targeted publish (a fill or cancel addressed to one user) is a map
// lookup instead of the source's linear scan.
type productRegistry struct {
	mu          sync.Mutex
	subscribers map[string]map[string]Subscriber
}

func newProductRegistry() *productRegistry {
	return &productRegistry{subscribers: make(map[string]map[string]Subscriber)}
}

func (r *productRegistry) subscribe(product, user string, sub Subscriber) error {
	if product == "" {
		return newError(KindInvalidStock, "you cannot subscribe to a null stock")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subscribers[product]
	if !ok {
		set = make(map[string]Subscriber)
		r.subscribers[product] = set
	}
	if _, exists := set[user]; exists {
		return newError(KindAlreadySubscribed, "the user %s is already subscribed to %s", user, product)
	}
	set[user] = sub
	return nil
}

func (r *productRegistry) unsubscribe(product, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subscribers[product]
	if !ok {
		return newError(KindInvalidStock, "the stock %s is not in the message system", product)
	}
	if _, exists := set[user]; !exists {
		return newError(KindNotSubscribed, "the user %s is not subscribed to %s", user, product)
	}
	delete(set, user)
	return nil
}

func (r *productRegistry) forProduct(product string) map[string]Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribers[product]
}

// CurrentMarketPublisher fans out best-bid/best-ask updates to subscribers
// of a product.
type CurrentMarketPublisher struct {
	reg *productRegistry
}

func newCurrentMarketPublisher() *CurrentMarketPublisher {
	return &CurrentMarketPublisher{reg: newProductRegistry()}
}

func (p *CurrentMarketPublisher) Subscribe(product, user string, sub Subscriber) error {
	return p.reg.subscribe(product, user, sub)
}

func (p *CurrentMarketPublisher) Unsubscribe(product, user string) error {
	return p.reg.unsubscribe(product, user)
}

func (p *CurrentMarketPublisher) publishCurrentMarket(md CurrentMarketDTO) {
	buyPrice, sellPrice := md.BuyPrice, md.SellPrice
	if buyPrice == nil {
		buyPrice = LimitPrice(0)
	}
	if sellPrice == nil {
		sellPrice = LimitPrice(0)
	}
	for _, sub := range p.reg.forProduct(md.Product) {
		sub.AcceptCurrentMarket(md.Product, buyPrice, md.BuyVolume, sellPrice, md.SellVolume)
	}
}

// LastSalePublisher fans out trade prints to subscribers of a product, and
// always forwards the print to the ticker publisher afterward.
type LastSalePublisher struct {
	reg    *productRegistry
	ticker *TickerPublisher
}

func newLastSalePublisher(ticker *TickerPublisher) *LastSalePublisher {
	return &LastSalePublisher{reg: newProductRegistry(), ticker: ticker}
}

func (p *LastSalePublisher) Subscribe(product, user string, sub Subscriber) error {
	return p.reg.subscribe(product, user, sub)
}

func (p *LastSalePublisher) Unsubscribe(product, user string) error {
	return p.reg.unsubscribe(product, user)
}

func (p *LastSalePublisher) publishLastSale(product string, price *Price, volume int) {
	if price == nil {
		price = LimitPrice(0)
	}
	for _, sub := range p.reg.forProduct(product) {
		sub.AcceptLastSale(product, price, volume)
	}
	p.ticker.publishTicker(product, price)
}

// TickerPublisher tracks the last known price per product and fans out a
// directional arrow alongside every new print.
type TickerPublisher struct {
	reg *productRegistry

	mu         sync.Mutex
	lastPrices map[string]*Price
}

func newTickerPublisher() *TickerPublisher {
	return &TickerPublisher{reg: newProductRegistry(), lastPrices: make(map[string]*Price)}
}

func (p *TickerPublisher) Subscribe(product, user string, sub Subscriber) error {
	return p.reg.subscribe(product, user, sub)
}

func (p *TickerPublisher) Unsubscribe(product, user string) error {
	return p.reg.unsubscribe(product, user)
}

const (
	arrowUp   rune = 8593 // '↑'
	arrowDown rune = 8595 // '↓'
	arrowFlat rune = '='
	arrowNone rune = ' '
)

func (p *TickerPublisher) publishTicker(product string, price *Price) {
	if price == nil {
		price = LimitPrice(0)
	}

	p.mu.Lock()
	last, known := p.lastPrices[product]
	var arrow rune
	switch {
	case !known:
		arrow = arrowNone
	case last.LessThan(price):
		arrow = arrowUp
	case last.GreaterThan(price):
		arrow = arrowDown
	default:
		arrow = arrowFlat
	}
	p.lastPrices[product] = price
	p.mu.Unlock()

	for _, sub := range p.reg.forProduct(product) {
		sub.AcceptTicker(product, price, arrow)
	}
}

// MessagePublisher delivers fills and cancels to the one subscriber they're
// addressed to, and broadcasts market state transitions to every
// subscriber across every product.
type MessagePublisher struct {
	reg *productRegistry

	mu             sync.Mutex
	allSubscribers map[string]Subscriber
}

func newMessagePublisher() *MessagePublisher {
	return &MessagePublisher{reg: newProductRegistry(), allSubscribers: make(map[string]Subscriber)}
}

func (p *MessagePublisher) Subscribe(product, user string, sub Subscriber) error {
	if err := p.reg.subscribe(product, user, sub); err != nil {
		return err
	}
	p.mu.Lock()
	p.allSubscribers[user] = sub
	p.mu.Unlock()
	return nil
}

func (p *MessagePublisher) Unsubscribe(product, user string) error {
	if err := p.reg.unsubscribe(product, user); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasAnySubscription(user) {
		delete(p.allSubscribers, user)
	}
	return nil
}

func (p *MessagePublisher) hasAnySubscription(user string) bool {
	p.reg.mu.Lock()
	defer p.reg.mu.Unlock()
	for _, set := range p.reg.subscribers {
		if _, ok := set[user]; ok {
			return true
		}
	}
	return false
}

func (p *MessagePublisher) publishCancel(cm *CancelMessage) {
	if sub, ok := p.reg.forProduct(cm.Product)[cm.User]; ok {
		sub.AcceptMessage(cm)
	}
}

func (p *MessagePublisher) publishFill(fm *FillMessage) {
	if sub, ok := p.reg.forProduct(fm.Product)[fm.User]; ok {
		sub.AcceptMessage(fm)
	}
}

func (p *MessagePublisher) publishMarketMessage(mm MarketStateMessage) {
	p.mu.Lock()
	subs := make([]Subscriber, 0, len(p.allSubscribers))
	for _, sub := range p.allSubscribers {
		subs = append(subs, sub)
	}
	p.mu.Unlock()
	for _, sub := range subs {
		sub.AcceptMarketMessage(mm.String())
	}
}

// publisherSet bundles the four streams so a ProductBook can be handed one
// reference instead of four.
type publisherSet struct {
	currentMarket *CurrentMarketPublisher
	lastSale      *LastSalePublisher
	ticker        *TickerPublisher
	message       *MessagePublisher
}

func newPublisherSet() *publisherSet {
	ticker := newTickerPublisher()
	return &publisherSet{
		currentMarket: newCurrentMarketPublisher(),
		lastSale:      newLastSalePublisher(ticker),
		ticker:        ticker,
		message:       newMessagePublisher(),
	}
}
