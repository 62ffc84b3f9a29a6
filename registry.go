package exchange

import (
	"log/slog"
	"sort"
	"sync"
)

// Exchange is the facade every operation goes through: it owns the set of
// product books, the market's lifecycle state, and the publisher streams
// they all report to. Unlike the source's singleton ProductService, an
// Exchange is an explicit value, so a process can run more than one (e.g.
// one per test), and there's nothing to reset between them.
type Exchange struct {
	mu          sync.Mutex
	state       MarketState
	books       map[string]*ProductBook
	publishers  *publisherSet
	idGenerator IDGenerator
	clock       Clock
	logger      *slog.Logger
}

// Option configures an Exchange at construction time.
type Option func(*Exchange)

// WithIDGenerator overrides the default sequence-plus-xid id generator
// entirely, mainly useful in tests that want full control over ids.
// WithClock is the lighter-weight alternative when only the default
// generator's timestamp component needs to be deterministic.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Exchange) { e.idGenerator = g }
}

// WithClock overrides the clock the default id generator uses to derive its
// xid suffix, so tests can assert on the id prefix and the suffix's
// timestamp. The suffix's counter bytes are not controlled by the clock, so
// full ids still differ. It has no effect once WithIDGenerator replaces the
// default generator outright.
func WithClock(c Clock) Option {
	return func(e *Exchange) { e.clock = c }
}

// WithLogger overrides the Exchange's logger. An Exchange is an explicit
// value rather than a singleton, so unlike the package-level SetLogger hook
// (which sets the default for every Exchange built after the call), this only
// affects the one instance being built — useful for running more than one Exchange with
// independently scoped log output, e.g. in parallel tests.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exchange) { e.logger = l }
}

// NewExchange constructs an Exchange with a CLOSED market and no products.
func NewExchange(opts ...Option) *Exchange {
	e := &Exchange{
		state:      StateClosed,
		books:      make(map[string]*ProductBook),
		publishers: newPublisherSet(),
		clock:      realClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.idGenerator == nil {
		e.idGenerator = newSequenceIDGenerator(e.clock)
	}
	return e
}

// GetMarketState reports the exchange's current lifecycle state.
func (e *Exchange) GetMarketState() MarketState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// GetProducts returns every known product, sorted for stable output.
func (e *Exchange) GetProducts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.books))
	for p := range e.books {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CreateProduct registers a new, empty product book.
func (e *Exchange) CreateProduct(product string) error {
	if product == "" {
		return newError(KindInvalidData, "the product cannot be null or empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.books[product]; exists {
		return newError(KindProductAlreadyExists, "the product %s already exists", product)
	}
	e.books[product] = newProductBook(product, e.publishers, e.GetMarketState)
	return nil
}

func (e *Exchange) book(product string) (*ProductBook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pb, ok := e.books[product]
	if !ok {
		return nil, newError(KindNoSuchProduct, "the product %s does not exist", product)
	}
	return pb, nil
}

// SetMarketState transitions the market, validating CLOSED->PREOPEN->OPEN->CLOSED
// in that cycle, broadcasting the transition, and then running the opening
// cross or the close-out cancel sweep across every product as appropriate.
func (e *Exchange) SetMarketState(next MarketState) error {
	e.mu.Lock()
	current := e.state
	if err := validateStateTransition(current, next); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = next
	books := make([]*ProductBook, 0, len(e.books))
	for _, pb := range e.books {
		books = append(books, pb)
	}
	e.mu.Unlock()

	e.logger.Info("market state transition", "from", current.String(), "to", next.String())
	e.publishers.message.publishMarketMessage(MarketStateMessage{State: next})

	switch next {
	case StateOpen:
		for _, pb := range books {
			if err := pb.OpenMarket(); err != nil {
				return err
			}
		}
	case StateClosed:
		for _, pb := range books {
			pb.CloseMarket()
		}
	}
	return nil
}

func validateStateTransition(current, next MarketState) error {
	var ok bool
	switch next {
	case StateClosed:
		ok = current == StateOpen
	case StateOpen:
		ok = current == StatePreOpen
	case StatePreOpen:
		ok = current == StateClosed
	}
	if !ok {
		return newError(KindInvalidMarketStateTransition, "cannot transition from %s to %s", current, next)
	}
	return nil
}

// SubmitOrder admits and routes a new order. The order's id is synthesized
// here, after admission checks pass, and returned to the caller.
func (e *Exchange) SubmitOrder(user, product string, price *Price, side Side, volume int) (string, error) {
	if price == nil {
		return "", newError(KindInvalidData, "your starting order price must be positive")
	}
	state := e.GetMarketState()
	if state == StateClosed {
		return "", newError(KindInvalidMarketState, "cannot submit an order while the market is closed")
	}
	if state == StatePreOpen && price.IsMarket() {
		return "", newError(KindInvalidMarketState, "cannot submit a market price order while the market is in PREOPEN state")
	}
	pb, err := e.book(product)
	if err != nil {
		return "", err
	}
	id := e.idGenerator.NextID(user, product, price)
	o, err := NewOrder(id, user, product, price, side, volume)
	if err != nil {
		return "", err
	}
	if err := pb.AddOrder(o); err != nil {
		return "", err
	}
	return id, nil
}

// SubmitQuote admits and routes a two-sided quote.
func (e *Exchange) SubmitQuote(user, product string, buyPrice *Price, buyVolume int, sellPrice *Price, sellVolume int) error {
	if buyPrice == nil || sellPrice == nil {
		return newError(KindInvalidData, "the buy and sell prices cannot be null")
	}
	if e.GetMarketState() == StateClosed {
		return newError(KindInvalidMarketState, "cannot submit a quote while the market is closed")
	}
	pb, err := e.book(product)
	if err != nil {
		return err
	}
	buyID := e.idGenerator.NextID(user, product, buyPrice)
	sellID := e.idGenerator.NextID(user, product, sellPrice)
	q, err := NewQuote(buyID, sellID, user, product, buyPrice, buyVolume, sellPrice, sellVolume)
	if err != nil {
		return err
	}
	return pb.AddQuote(q)
}

// SubmitOrderCancel admits and routes an order cancel request.
func (e *Exchange) SubmitOrderCancel(product string, side Side, orderID string) error {
	if e.GetMarketState() == StateClosed {
		return newError(KindInvalidMarketState, "cannot cancel an order when the market is closed")
	}
	if orderID == "" {
		return newError(KindInvalidData, "the order id cannot be empty or null")
	}
	pb, err := e.book(product)
	if err != nil {
		return err
	}
	return pb.CancelOrder(side, orderID)
}

// SubmitQuoteCancel admits and routes a quote cancel request.
func (e *Exchange) SubmitQuoteCancel(user, product string) error {
	if e.GetMarketState() == StateClosed {
		return newError(KindInvalidMarketState, "cannot cancel a quote when the market is closed")
	}
	if user == "" {
		return newError(KindInvalidData, "username cannot be null or empty")
	}
	pb, err := e.book(product)
	if err != nil {
		return err
	}
	return pb.CancelQuote(user)
}

// GetBookDepth reports the BUY and SELL depth lines for a product.
func (e *Exchange) GetBookDepth(product string) ([2][]string, error) {
	pb, err := e.book(product)
	if err != nil {
		return [2][]string{}, err
	}
	return pb.GetBookDepth(), nil
}

// GetMarketData reports the current best buy/sell price and volume for a
// product.
func (e *Exchange) GetMarketData(product string) (CurrentMarketDTO, error) {
	pb, err := e.book(product)
	if err != nil {
		return CurrentMarketDTO{}, err
	}
	return pb.GetMarketData(), nil
}

// GetOrdersWithRemainingQty reports user's still-working orders for a
// product.
func (e *Exchange) GetOrdersWithRemainingQty(user, product string) ([]*Tradable, error) {
	if user == "" {
		return nil, newError(KindInvalidData, "the username cannot be null or empty")
	}
	pb, err := e.book(product)
	if err != nil {
		return nil, err
	}
	return pb.GetOrdersWithRemainingQty(user), nil
}

// SubscribeCurrentMarket, SubscribeLastSale, SubscribeTicker and
// SubscribeMessages register sub to receive the named stream for product.
// SubscribeMessages additionally makes sub eligible for broadcast market
// state messages, regardless of product.
func (e *Exchange) SubscribeCurrentMarket(product, user string, sub Subscriber) error {
	return e.publishers.currentMarket.Subscribe(product, user, sub)
}

func (e *Exchange) SubscribeLastSale(product, user string, sub Subscriber) error {
	return e.publishers.lastSale.Subscribe(product, user, sub)
}

func (e *Exchange) SubscribeTicker(product, user string, sub Subscriber) error {
	return e.publishers.ticker.Subscribe(product, user, sub)
}

func (e *Exchange) SubscribeMessages(product, user string, sub Subscriber) error {
	return e.publishers.message.Subscribe(product, user, sub)
}

func (e *Exchange) UnsubscribeCurrentMarket(product, user string) error {
	return e.publishers.currentMarket.Unsubscribe(product, user)
}

func (e *Exchange) UnsubscribeLastSale(product, user string) error {
	return e.publishers.lastSale.Unsubscribe(product, user)
}

func (e *Exchange) UnsubscribeTicker(product, user string) error {
	return e.publishers.ticker.Unsubscribe(product, user)
}

func (e *Exchange) UnsubscribeMessages(product, user string) error {
	return e.publishers.message.Unsubscribe(product, user)
}
