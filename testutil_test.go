package exchange

import (
	"fmt"
	"sync"
)

// MemorySubscriber is the in-memory Subscriber double every test in this
// package uses, following the same Memory-double pattern as the source's
// MemoryPublishLog: record everything, never block, let the test assert
// against the recorded slices afterward.
type MemorySubscriber struct {
	mu sync.Mutex

	CurrentMarkets []CurrentMarketDTO
	LastSales      []lastSaleCall
	Tickers        []tickerCall
	Messages       []string
	MarketMessages []string
}

type lastSaleCall struct {
	Product string
	Price   *Price
	Volume  int
}

type tickerCall struct {
	Product string
	Price   *Price
	Arrow   rune
}

func NewMemorySubscriber() *MemorySubscriber {
	return &MemorySubscriber{}
}

func (m *MemorySubscriber) AcceptCurrentMarket(product string, buyPrice *Price, buyVolume int, sellPrice *Price, sellVolume int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentMarkets = append(m.CurrentMarkets, CurrentMarketDTO{
		Product: product, BuyPrice: buyPrice, BuyVolume: buyVolume, SellPrice: sellPrice, SellVolume: sellVolume,
	})
}

func (m *MemorySubscriber) AcceptLastSale(product string, price *Price, volume int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastSales = append(m.LastSales, lastSaleCall{Product: product, Price: price, Volume: volume})
}

func (m *MemorySubscriber) AcceptTicker(product string, price *Price, arrow rune) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tickers = append(m.Tickers, tickerCall{Product: product, Price: price, Arrow: arrow})
}

func (m *MemorySubscriber) AcceptMessage(msg fmt.Stringer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg.String())
}

func (m *MemorySubscriber) AcceptMarketMessage(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarketMessages = append(m.MarketMessages, text)
}

func (m *MemorySubscriber) LastSaleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.LastSales)
}

func (m *MemorySubscriber) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}
