package sim

import (
	"sync"
	"testing"

	"algoengine/internal/event"
	"algoengine/internal/gateway/exchange"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *capture) Publish(evt event.Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func (c *capture) kinds() []event.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Kind, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Kind)
	}
	return out
}

var contracts = []exchange.Contract{{Symbol: "rb2405", Exchange: "SHFE"}}

func TestContractDefaults(t *testing.T) {
	e := New(nil, contracts, false)
	c, ok := e.GetContract("rb2405.SHFE")
	require.True(t, ok)
	assert.Equal(t, GatewayName, c.GatewayName)
	_, ok = e.GetContract("nope")
	assert.False(t, ok)

	e.Subscribe(exchange.SubscribeRequest{Symbol: "rb2405", Exchange: "SHFE"}, GatewayName)
	assert.Equal(t, []string{"rb2405.SHFE"}, e.Subscribed())
}

func TestSendOrder_FillPublishesOrderAndTrade(t *testing.T) {
	pub := &capture{}
	e := New(pub, contracts, true)
	e.UpdateTick(exchange.Tick{VtSymbol: "rb2405.SHFE", AskPrice1: decimal.NewFromInt(3501), BidPrice1: decimal.NewFromInt(3499)})

	id, err := e.SendOrder(exchange.OrderRequest{
		Symbol: "rb2405", Exchange: "SHFE", Direction: exchange.DirectionLong,
		PriceType: exchange.PriceTypeMarket, Volume: decimal.NewFromInt(2),
	}, GatewayName)
	require.NoError(t, err)
	assert.Contains(t, id, "SIM.")
	assert.Equal(t, []event.Kind{event.KindTick, event.KindOrder, event.KindTrade}, pub.kinds())

	trade := pub.events[2].Data.(*exchange.Trade)
	assert.Equal(t, id, trade.VtOrderID)
	assert.True(t, trade.Price.Equal(decimal.NewFromInt(3501)))

	o, ok := e.GetOrder(id)
	require.True(t, ok)
	assert.Equal(t, exchange.StatusAllTraded, o.Status)
	assert.Error(t, e.CancelOrder(exchange.CancelRequest{OrderID: o.OrderID}, GatewayName))
}

func TestCancelOrder(t *testing.T) {
	pub := &capture{}
	e := New(pub, contracts, false)
	id, err := e.SendOrder(exchange.OrderRequest{
		Symbol: "rb2405", Exchange: "SHFE", Direction: exchange.DirectionShort,
		Price: decimal.NewFromInt(3600), Volume: decimal.NewFromInt(1),
	}, GatewayName)
	require.NoError(t, err)
	o, _ := e.GetOrder(id)
	assert.Equal(t, exchange.StatusNotTraded, o.Status)

	require.NoError(t, e.CancelOrder(exchange.CancelRequest{OrderID: o.OrderID}, GatewayName))
	o, _ = e.GetOrder(id)
	assert.Equal(t, exchange.StatusCancelled, o.Status)
	assert.Error(t, e.CancelOrder(exchange.CancelRequest{OrderID: "missing"}, GatewayName))

	_, err = e.SendOrder(exchange.OrderRequest{Symbol: "rb2405", Exchange: "SHFE"}, GatewayName)
	assert.Error(t, err)
}
