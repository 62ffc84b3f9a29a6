package exchange

import "fmt"

// Message is the common shape shared by fill and cancel notifications.
type Message struct {
	User    string
	Product string
	Price   *Price
	Volume  int
	Details string
	Side    Side
	ID      string
}

func newMessage(user, product string, price *Price, volume int, details string, side Side, id string) (Message, error) {
	if user == "" {
		return Message{}, newError(KindInvalidData, "username cannot be null or empty")
	}
	if product == "" {
		return Message{}, newError(KindInvalidData, "product cannot be null or empty")
	}
	if price == nil {
		return Message{}, newError(KindInvalidData, "price cannot be null")
	}
	if volume < 0 {
		return Message{}, newError(KindInvalidData, "volume cannot be negative")
	}
	return Message{User: user, Product: product, Price: price, Volume: volume, Details: details, Side: side, ID: id}, nil
}

// FillMessage reports that a tradable entry traded, in whole or in part.
type FillMessage struct {
	Message
}

// NewFillMessage constructs a FillMessage.
func NewFillMessage(user, product string, price *Price, volume int, details string, side Side, id string) (*FillMessage, error) {
	m, err := newMessage(user, product, price, volume, details, side, id)
	if err != nil {
		return nil, err
	}
	return &FillMessage{Message: m}, nil
}

func (fm *FillMessage) String() string {
	return fmt.Sprintf("User: %s, Product: %s, Price: %s, Volume: %d, Details: %s, Side: %s", fm.User, fm.Product, fm.Price, fm.Volume, fm.Details, fm.Side)
}

// CancelMessage reports that a tradable entry, or part of it, was cancelled.
type CancelMessage struct {
	Message
}

// NewCancelMessage constructs a CancelMessage.
func NewCancelMessage(user, product string, price *Price, volume int, details string, side Side, id string) (*CancelMessage, error) {
	m, err := newMessage(user, product, price, volume, details, side, id)
	if err != nil {
		return nil, err
	}
	return &CancelMessage{Message: m}, nil
}

func (cm *CancelMessage) String() string {
	return fmt.Sprintf("User: %s, Product: %s, Price: %s, Volume: %d, Details: %s, Side: %s, Id: %s", cm.User, cm.Product, cm.Price, cm.Volume, cm.Details, cm.Side, cm.ID)
}

// MarketState is one of the three lifecycle states a market can be in.
type MarketState int8

const (
	StateClosed MarketState = iota
	StatePreOpen
	StateOpen
)

func (s MarketState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StatePreOpen:
		return "PREOPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarketStateMessage is broadcast to every message subscriber whenever the
// market transitions to a new state.
type MarketStateMessage struct {
	State MarketState
}

func (mm MarketStateMessage) String() string {
	return mm.State.String()
}

// CurrentMarketDTO is the immutable snapshot of a product's best buy and
// sell price/volume, as published by the current-market stream.
type CurrentMarketDTO struct {
	Product    string
	BuyPrice   *Price
	BuyVolume  int
	SellPrice  *Price
	SellVolume int
}

func (md CurrentMarketDTO) String() string {
	return fmt.Sprintf("%s %d@%s x %d@%s", md.Product, md.BuyVolume, md.BuyPrice, md.SellVolume, md.SellPrice)
}

// fillKey is the merge key described in the matching algorithm: two fills
// for the same counterparty, same entry id, at the same effective price
// are the same logical fill.
type fillKey struct {
	user  string
	id    string
	price *Price
}

func makeFillKey(fm *FillMessage) fillKey {
	return fillKey{user: fm.User, id: fm.ID, price: fm.Price}
}
