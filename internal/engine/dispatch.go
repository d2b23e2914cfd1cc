package engine

import (
	"fmt"
	"runtime/debug"

	"algoengine/internal/algo"
	"algoengine/internal/event"
	"algoengine/internal/gateway/exchange"
	"algoengine/internal/logger"
)

func (e *Engine) processTickEvent(evt event.Event) {
	tick, ok := evt.Data.(*exchange.Tick)
	if !ok || tick == nil {
		return
	}
	for _, a := range e.registry.Subscribers(tick.VtSymbol) {
		e.deliver(a, "tick", func() { a.UpdateTick(tick) })
	}
}

func (e *Engine) processOrderEvent(evt event.Event) {
	order, ok := evt.Data.(*exchange.Order)
	if !ok || order == nil {
		return
	}
	if a := e.activeOwner(order.VtOrderID); a != nil {
		e.deliver(a, "order", func() { a.UpdateOrder(order) })
	}
}

func (e *Engine) processTradeEvent(evt event.Event) {
	trade, ok := evt.Data.(*exchange.Trade)
	if !ok || trade == nil {
		return
	}
	if a := e.activeOwner(trade.VtOrderID); a != nil {
		e.deliver(a, "trade", func() { a.UpdateTrade(trade) })
	}
}

func (e *Engine) processTimerEvent(event.Event) {
	for _, a := range e.registry.Active() {
		e.deliver(a, "timer", a.UpdateTimer)
	}
}

// activeOwner resolves the instance owning vtOrderID. Owners that have been
// stopped keep their entry but no longer receive updates.
func (e *Engine) activeOwner(vtOrderID string) algo.Algo {
	a, ok := e.registry.Owner(vtOrderID)
	if !ok {
		return nil
	}
	if !e.registry.IsActive(a) {
		logger.Debugf("drop update for %s, owner %s stopped", vtOrderID, a.Name())
		return nil
	}
	return a
}

// deliver runs one hook. A panic is confined to the instance that raised it.
func (e *Engine) deliver(a algo.Algo, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("algo %s %s panic: %v\n%s", a.Name(), hook, r, debug.Stack())
			e.WriteError(fmt.Sprintf("%s %s 处理异常: %v", a.Name(), hook, r), a)
		}
	}()
	fn()
}
