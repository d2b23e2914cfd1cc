// Package sim is an in-memory main engine: it knows a fixed contract list,
// keeps the last tick per symbol and can fill orders immediately.
package sim

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"algoengine/internal/event"
	"algoengine/internal/gateway/exchange"
	"algoengine/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const GatewayName = "SIM"

// Publisher receives the order, trade and tick events the engine produces.
// It must queue them; delivering on the caller's goroutine would reach
// algorithms before SendOrder returns.
type Publisher interface {
	Publish(evt event.Event)
}

type Engine struct {
	pub  Publisher
	fill bool

	mu         sync.RWMutex
	contracts  map[string]*exchange.Contract
	subscribed map[string]struct{}
	orders     map[string]*exchange.Order
	ticks      map[string]*exchange.Tick
}

var _ exchange.MainEngine = (*Engine)(nil)

// New builds the engine. Contracts without a gateway get GatewayName and
// a missing VtSymbol is derived as symbol.exchange.
func New(pub Publisher, contracts []exchange.Contract, fill bool) *Engine {
	e := &Engine{
		pub:        pub,
		fill:       fill,
		contracts:  make(map[string]*exchange.Contract, len(contracts)),
		subscribed: make(map[string]struct{}),
		orders:     make(map[string]*exchange.Order),
		ticks:      make(map[string]*exchange.Tick),
	}
	for _, c := range contracts {
		if c.GatewayName == "" {
			c.GatewayName = GatewayName
		}
		if c.VtSymbol == "" {
			c.VtSymbol = VtSymbol(c.Symbol, c.Exchange)
		}
		e.contracts[c.VtSymbol] = &c
	}
	return e
}

func VtSymbol(symbol, exch string) string {
	if exch == "" {
		return symbol
	}
	return symbol + "." + exch
}

func (e *Engine) GetContract(vtSymbol string) (*exchange.Contract, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.contracts[vtSymbol]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func (e *Engine) Subscribe(req exchange.SubscribeRequest, gatewayName string) {
	vt := VtSymbol(req.Symbol, req.Exchange)
	e.mu.Lock()
	e.subscribed[vt] = struct{}{}
	e.mu.Unlock()
	logger.Infof("sim subscribe %s via %s", vt, gatewayName)
}

// Subscribed lists every symbol subscribed so far.
func (e *Engine) Subscribed() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.subscribed))
	for vt := range e.subscribed {
		out = append(out, vt)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) SendOrder(req exchange.OrderRequest, gatewayName string) (string, error) {
	if !req.Volume.IsPositive() {
		return "", fmt.Errorf("sim: order volume must be positive")
	}
	orderID := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	now := time.Now()
	order := &exchange.Order{
		VtOrderID:   gatewayName + "." + orderID,
		OrderID:     orderID,
		VtSymbol:    VtSymbol(req.Symbol, req.Exchange),
		Symbol:      req.Symbol,
		Exchange:    req.Exchange,
		GatewayName: gatewayName,
		Direction:   req.Direction,
		Offset:      req.Offset,
		PriceType:   req.PriceType,
		Price:       req.Price,
		TotalVolume: req.Volume,
		Status:      exchange.StatusNotTraded,
		OrderTime:   now,
	}

	var trade *exchange.Trade
	if e.fill {
		price := req.Price
		if req.PriceType == exchange.PriceTypeMarket || price.IsZero() {
			price = e.marketPrice(order.VtSymbol, req.Direction, price)
		}
		order.TradedVolume = req.Volume
		order.Status = exchange.StatusAllTraded
		trade = &exchange.Trade{
			VtTradeID:   gatewayName + "." + orderID + ".1",
			TradeID:     orderID + ".1",
			VtOrderID:   order.VtOrderID,
			VtSymbol:    order.VtSymbol,
			GatewayName: gatewayName,
			Direction:   req.Direction,
			Offset:      req.Offset,
			Price:       price,
			Volume:      req.Volume,
			TradeTime:   now,
		}
	}

	e.mu.Lock()
	e.orders[order.VtOrderID] = order
	snapshot := *order
	e.mu.Unlock()

	e.publish(event.NewOrder(&snapshot))
	if trade != nil {
		e.publish(event.NewTrade(trade))
	}
	return order.VtOrderID, nil
}

func (e *Engine) marketPrice(vtSymbol string, dir exchange.Direction, fallback decimal.Decimal) decimal.Decimal {
	e.mu.RLock()
	tick, ok := e.ticks[vtSymbol]
	e.mu.RUnlock()
	if !ok {
		return fallback
	}
	if dir == exchange.DirectionLong && tick.AskPrice1.IsPositive() {
		return tick.AskPrice1
	}
	if dir == exchange.DirectionShort && tick.BidPrice1.IsPositive() {
		return tick.BidPrice1
	}
	return tick.LastPrice
}

func (e *Engine) GetOrder(vtOrderID string) (*exchange.Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[vtOrderID]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

func (e *Engine) CancelOrder(req exchange.CancelRequest, gatewayName string) error {
	vtOrderID := gatewayName + "." + req.OrderID
	e.mu.Lock()
	o, ok := e.orders[vtOrderID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("sim: order %s not found", vtOrderID)
	}
	if o.Status.Finished() {
		e.mu.Unlock()
		return fmt.Errorf("sim: order %s already %s", vtOrderID, o.Status)
	}
	o.Status = exchange.StatusCancelled
	snapshot := *o
	e.mu.Unlock()

	e.publish(event.NewOrder(&snapshot))
	return nil
}

func (e *Engine) GetTick(vtSymbol string) (*exchange.Tick, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.ticks[vtSymbol]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// UpdateTick stores tick as the latest quote and publishes it.
func (e *Engine) UpdateTick(tick exchange.Tick) {
	if tick.Datetime.IsZero() {
		tick.Datetime = time.Now()
	}
	e.mu.Lock()
	e.ticks[tick.VtSymbol] = &tick
	e.mu.Unlock()
	cp := tick
	e.publish(event.NewTick(&cp))
}

func (e *Engine) WriteError(content string) {
	logger.Errorf("sim main engine: %s", content)
}

func (e *Engine) publish(evt event.Event) {
	if e.pub != nil {
		e.pub.Publish(evt)
	}
}
