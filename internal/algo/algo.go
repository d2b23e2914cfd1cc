// Package algo defines the contract between the algo engine and the
// algorithm templates it hosts.
package algo

import (
	"algoengine/internal/gateway/exchange"

	"github.com/shopspring/decimal"
)

// Algo is one running algorithm instance.
type Algo interface {
	// Name returns the unique algoName assigned at construction.
	Name() string

	UpdateTick(tick *exchange.Tick)
	UpdateOrder(order *exchange.Order)
	UpdateTrade(trade *exchange.Trade)
	// UpdateTimer is the engine heartbeat, not tied to the instance's own schedule.
	UpdateTimer()
	Stop()
}

// Factory builds an instance from a setting. It must not block.
type Factory func(eng Engine, setting Setting) (Algo, error)

// Engine is the surface an algorithm uses to reach the market.
type Engine interface {
	Subscribe(a Algo, vtSymbol string)

	SendOrder(a Algo, vtSymbol string, direction exchange.Direction, price, volume decimal.Decimal, opts ...OrderOption) (string, error)
	Buy(a Algo, vtSymbol string, price, volume decimal.Decimal, opts ...OrderOption) (string, error)
	Sell(a Algo, vtSymbol string, price, volume decimal.Decimal, opts ...OrderOption) (string, error)
	CancelOrder(a Algo, vtOrderID string) error

	GetTick(a Algo, vtSymbol string) (*exchange.Tick, bool)
	GetContract(a Algo, vtSymbol string) (*exchange.Contract, bool)

	PutVarEvent(a Algo, vars map[string]any)
	PutParamEvent(a Algo, params map[string]any)

	WriteLog(content string, a Algo)
	WriteError(content string, a Algo)
}

// OrderOptions overrides the request defaults (Limit / Open).
type OrderOptions struct {
	PriceType exchange.PriceType
	Offset    exchange.Offset
}

type OrderOption func(*OrderOptions)

func WithPriceType(pt exchange.PriceType) OrderOption {
	return func(o *OrderOptions) { o.PriceType = pt }
}

func WithOffset(off exchange.Offset) OrderOption {
	return func(o *OrderOptions) { o.Offset = off }
}

// ResolveOrderOptions applies opts over the defaults.
func ResolveOrderOptions(opts ...OrderOption) OrderOptions {
	out := OrderOptions{PriceType: exchange.PriceTypeLimit, Offset: exchange.OffsetOpen}
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	if out.PriceType == "" {
		out.PriceType = exchange.PriceTypeLimit
	}
	if out.Offset == "" {
		out.Offset = exchange.OffsetOpen
	}
	return out
}
