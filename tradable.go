package exchange

// Side is the BUY or SELL polarity of a tradable entry.
type Side int8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// Tradable is the single entry type the book sides operate on. An Order and
// a QuoteSide carry exactly the same fields; IsQuoteSide is the only tag the
// matcher and the cancel paths need to tell them apart, since quotes cancel
// by user and orders cancel by id.
type Tradable struct {
	ID              string
	User            string
	Product         string
	Side            Side
	Price           *Price
	IsQuoteSide     bool
	OriginalVolume  int
	RemainingVolume int
	CancelledVolume int

	// next/prev form the intrusive FIFO list within a price level inside a
	// BookSide; zero value outside of one.
	next, prev *Tradable
}

// NewOrder constructs a resting or aggressor order entry.
func NewOrder(id, user, product string, price *Price, side Side, originalVolume int) (*Tradable, error) {
	return newTradable(id, user, product, price, side, originalVolume, false)
}

// NewQuoteSide constructs one side of a two-sided quote.
func NewQuoteSide(id, user, product string, price *Price, side Side, originalVolume int) (*Tradable, error) {
	return newTradable(id, user, product, price, side, originalVolume, true)
}

func newTradable(id, user, product string, price *Price, side Side, originalVolume int, isQuoteSide bool) (*Tradable, error) {
	if user == "" {
		return nil, newError(KindInvalidData, "the username must contain at least one character")
	}
	if product == "" {
		return nil, newError(KindInvalidData, "the product name must contain at least one character")
	}
	if price == nil || (!price.IsMarket() && price.Cents() <= 0) {
		return nil, newError(KindInvalidData, "your starting order price must be positive")
	}
	if originalVolume <= 0 {
		return nil, newError(KindInvalidData, "your original volume must be greater than 0, you entered: %d", originalVolume)
	}
	if id == "" {
		return nil, newError(KindInvalidData, "the order id must contain at least one character")
	}
	return &Tradable{
		ID:              id,
		User:            user,
		Product:         product,
		Side:            side,
		Price:           price,
		IsQuoteSide:     isQuoteSide,
		OriginalVolume:  originalVolume,
		RemainingVolume: originalVolume,
	}, nil
}

// SetRemainingVolume sets the remaining volume, enforcing the invariant that
// remaining+cancelled never exceeds the original volume.
func (t *Tradable) SetRemainingVolume(v int) error {
	if v < 0 {
		return newError(KindInvalidData, "the remaining volume cannot be negative")
	}
	if v+t.CancelledVolume > t.OriginalVolume {
		return newError(KindInvalidData, "requested remaining volume [%d] + cancelled volume [%d] would exceed original volume [%d]", v, t.CancelledVolume, t.OriginalVolume)
	}
	t.RemainingVolume = v
	return nil
}

// SetCancelledVolume sets the cancelled volume. The bound check is
// addend-style — it validates as if v were being added to the existing
// cancelled volume — but the assignment itself is a flat overwrite, not a
// sum. This mirrors the source faithfully; callers that want to accumulate
// cancelled volume must pass the already-accumulated total.
func (t *Tradable) SetCancelledVolume(v int) error {
	if v < 0 {
		return newError(KindInvalidData, "the cancelled volume cannot be negative")
	}
	if v+t.CancelledVolume > t.OriginalVolume {
		return newError(KindInvalidData, "cancelled volume [%d] + requested cancelled volume [%d] would exceed original volume [%d]", t.CancelledVolume, v, t.OriginalVolume)
	}
	t.CancelledVolume = v
	return nil
}

// Quote is a two-sided liquidity posting: a BUY QuoteSide and a SELL
// QuoteSide for the same user and product, constructed atomically so a
// caller never observes one side without the other.
type Quote struct {
	UserName string
	Product  string
	Buy      *Tradable
	Sell     *Tradable
}

// NewQuote builds both sides of a quote from already-synthesized ids.
func NewQuote(buyID, sellID, userName, product string, buyPrice *Price, buyVolume int, sellPrice *Price, sellVolume int) (*Quote, error) {
	buy, err := NewQuoteSide(buyID, userName, product, buyPrice, SideBuy, buyVolume)
	if err != nil {
		return nil, err
	}
	sell, err := NewQuoteSide(sellID, userName, product, sellPrice, SideSell, sellVolume)
	if err != nil {
		return nil, err
	}
	return &Quote{UserName: userName, Product: product, Buy: buy, Sell: sell}, nil
}

// Side returns a copy-free accessor to the requested quote side.
func (q *Quote) Side(side Side) *Tradable {
	if side == SideBuy {
		return q.Buy
	}
	return q.Sell
}
