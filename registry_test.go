package exchange

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStateTransition_Matrix(t *testing.T) {
	valid := map[MarketState]MarketState{
		StateClosed:  StatePreOpen,
		StatePreOpen: StateOpen,
		StateOpen:    StateClosed,
	}
	states := []MarketState{StateClosed, StatePreOpen, StateOpen}

	for _, from := range states {
		for _, to := range states {
			err := validateStateTransition(from, to)
			if valid[from] == to {
				assert.NoError(t, err, "%s -> %s should be valid", from, to)
			} else {
				assert.Error(t, err, "%s -> %s should be invalid", from, to)
			}
		}
	}
}

func TestExchange_SetMarketState_BroadcastsAndRunsLifecycle(t *testing.T) {
	e := NewExchange()
	sub := NewMemorySubscriber()
	require.NoError(t, e.CreateProduct("IBM"))
	require.NoError(t, e.SubscribeMessages("IBM", "alice", sub))

	require.NoError(t, e.SetMarketState(StatePreOpen))
	require.NoError(t, e.SetMarketState(StateOpen))
	require.Len(t, sub.MarketMessages, 2)
	assert.Equal(t, "PREOPEN", sub.MarketMessages[0])
	assert.Equal(t, "OPEN", sub.MarketMessages[1])

	require.NoError(t, e.SetMarketState(StateClosed))
	assert.Len(t, sub.MarketMessages, 3)
}

func TestExchange_SetMarketState_RejectsInvalidTransition(t *testing.T) {
	e := NewExchange()
	err := e.SetMarketState(StateOpen)
	require.Error(t, err)
	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindInvalidMarketStateTransition, exchErr.Kind)
}

func TestExchange_SubmitOrder_RejectsWhenMarketClosed(t *testing.T) {
	e := NewExchange()
	require.NoError(t, e.CreateProduct("IBM"))

	_, err := e.SubmitOrder("alice", "IBM", LimitPrice(100), SideBuy, 10)
	require.Error(t, err)
	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindInvalidMarketState, exchErr.Kind)
}

func TestExchange_SubmitOrder_RejectsMarketOrderDuringPreOpen(t *testing.T) {
	e := NewExchange()
	require.NoError(t, e.CreateProduct("IBM"))
	require.NoError(t, e.SetMarketState(StatePreOpen))

	_, err := e.SubmitOrder("alice", "IBM", MarketPrice(), SideBuy, 10)
	require.Error(t, err)
	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindInvalidMarketState, exchErr.Kind)
}

func TestExchange_SubmitOrder_RejectsNilPrice(t *testing.T) {
	e := NewExchange()
	require.NoError(t, e.CreateProduct("IBM"))
	require.NoError(t, e.SetMarketState(StatePreOpen))

	_, err := e.SubmitOrder("alice", "IBM", nil, SideBuy, 10)
	require.Error(t, err)
	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindInvalidData, exchErr.Kind)
}

func TestExchange_SubmitOrder_AssignsIDAndRoutesToBook(t *testing.T) {
	e := NewExchange()
	require.NoError(t, e.CreateProduct("IBM"))
	require.NoError(t, e.SetMarketState(StatePreOpen))
	require.NoError(t, e.SetMarketState(StateOpen))

	id, err := e.SubmitOrder("alice", "IBM", LimitPrice(100), SideBuy, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	orders, err := e.GetOrdersWithRemainingQty("alice", "IBM")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)
}

func TestExchange_CreateProduct_RejectsDuplicate(t *testing.T) {
	e := NewExchange()
	require.NoError(t, e.CreateProduct("IBM"))
	err := e.CreateProduct("IBM")
	require.Error(t, err)
	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindProductAlreadyExists, exchErr.Kind)
}

func TestExchange_CreateProduct_RejectsEmptyName(t *testing.T) {
	e := NewExchange()
	err := e.CreateProduct("")
	require.Error(t, err)
	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindInvalidData, exchErr.Kind)
}

func TestExchange_GetProducts_Sorted(t *testing.T) {
	e := NewExchange()
	require.NoError(t, e.CreateProduct("GOOG"))
	require.NoError(t, e.CreateProduct("IBM"))
	require.NoError(t, e.CreateProduct("AAPL"))

	assert.Equal(t, []string{"AAPL", "GOOG", "IBM"}, e.GetProducts())
}

type stubIDGenerator struct{ calls int }

func (s *stubIDGenerator) NextID(user, product string, price *Price) string {
	s.calls++
	return "stub-id"
}

func TestExchange_WithIDGenerator_TakesEffect(t *testing.T) {
	stub := &stubIDGenerator{}
	e := NewExchange(WithIDGenerator(stub))
	require.NoError(t, e.CreateProduct("IBM"))
	require.NoError(t, e.SetMarketState(StatePreOpen))
	require.NoError(t, e.SetMarketState(StateOpen))

	id, err := e.SubmitOrder("alice", "IBM", LimitPrice(100), SideBuy, 10)
	require.NoError(t, err)
	assert.Equal(t, "stub-id", id)
	assert.Equal(t, 1, stub.calls)
}

func TestExchange_WithLogger_OverridesDefault(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewExchange(WithLogger(custom))
	assert.Same(t, custom, e.logger)
}

func TestExchange_SubmitQuoteCancel_RejectsClosedMarketAndEmptyUser(t *testing.T) {
	e := NewExchange()
	require.NoError(t, e.CreateProduct("IBM"))

	err := e.SubmitQuoteCancel("alice", "IBM")
	require.Error(t, err)
	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindInvalidMarketState, exchErr.Kind)

	require.NoError(t, e.SetMarketState(StatePreOpen))
	err = e.SubmitQuoteCancel("", "IBM")
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindInvalidData, exchErr.Kind)
}

func TestExchange_SubmitOrderCancel_RequiresOrderID(t *testing.T) {
	e := NewExchange()
	require.NoError(t, e.CreateProduct("IBM"))
	require.NoError(t, e.SetMarketState(StatePreOpen))

	err := e.SubmitOrderCancel("IBM", SideBuy, "")
	require.Error(t, err)
	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindInvalidData, exchErr.Kind)
}

func TestExchange_Book_RejectsUnknownProduct(t *testing.T) {
	e := NewExchange()
	_, err := e.GetMarketData("NOPE")
	require.Error(t, err)
	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, KindNoSuchProduct, exchErr.Kind)
}
