// Package twap slices a target volume into equal child orders sent at a
// fixed interval, only while the market is at or better than the target
// price.
package twap

import (
	"fmt"
	"sync"

	"algoengine/internal/algo"
	"algoengine/internal/gateway/exchange"

	"github.com/shopspring/decimal"
)

const TemplateName = "Twap"

// Params 是 Twap 的算法参数
type Params struct {
	VtSymbol    string             `mapstructure:"vtSymbol"`
	Direction   exchange.Direction `mapstructure:"direction"`
	TargetPrice decimal.Decimal    `mapstructure:"targetPrice"`
	TotalVolume decimal.Decimal    `mapstructure:"totalVolume"`
	Time        int                `mapstructure:"time"`     // seconds
	Interval    int                `mapstructure:"interval"` // seconds
	PriceType   exchange.PriceType `mapstructure:"priceType"`
	Offset      exchange.Offset    `mapstructure:"offset"`
}

func (p Params) validate() error {
	if p.VtSymbol == "" {
		return fmt.Errorf("twap: vtSymbol is required")
	}
	if p.Direction != exchange.DirectionLong && p.Direction != exchange.DirectionShort {
		return fmt.Errorf("twap: invalid direction %q", p.Direction)
	}
	if !p.TotalVolume.IsPositive() {
		return fmt.Errorf("twap: totalVolume must be positive")
	}
	if p.Time <= 0 || p.Interval <= 0 || p.Interval > p.Time {
		return fmt.Errorf("twap: need 0 < interval <= time, got interval=%d time=%d", p.Interval, p.Time)
	}
	if p.PriceType != exchange.PriceTypeMarket && !p.TargetPrice.IsPositive() {
		return fmt.Errorf("twap: targetPrice must be positive")
	}
	return nil
}

func (p Params) asMap() map[string]any {
	return map[string]any{
		"vtSymbol":    p.VtSymbol,
		"direction":   string(p.Direction),
		"targetPrice": p.TargetPrice.String(),
		"totalVolume": p.TotalVolume.String(),
		"time":        p.Time,
		"interval":    p.Interval,
		"priceType":   string(p.PriceType),
		"offset":      string(p.Offset),
	}
}

// Register adds the template to t.
func Register(t *algo.Templates) error {
	return t.Register(TemplateName, New)
}

// Algo is one running Twap instance.
type Algo struct {
	name      string
	eng       algo.Engine
	p         Params
	orderSize decimal.Decimal

	mu         sync.Mutex
	active     bool
	timerCount int
	totalCount int
	traded     decimal.Decimal
	orders     map[string]struct{}
}

// New is the Twap factory.
func New(eng algo.Engine, s algo.Setting) (algo.Algo, error) {
	p := Params{PriceType: exchange.PriceTypeLimit, Offset: exchange.OffsetOpen}
	if err := algo.DecodeParams(s, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	slices := p.Time / p.Interval
	a := &Algo{
		name:      algo.NewAlgoName(TemplateName),
		eng:       eng,
		p:         p,
		orderSize: p.TotalVolume.Div(decimal.NewFromInt(int64(slices))),
		active:    true,
		orders:    make(map[string]struct{}),
	}
	eng.Subscribe(a, p.VtSymbol)
	eng.PutParamEvent(a, p.asMap())
	a.putVars()
	return a, nil
}

func (a *Algo) Name() string { return a.name }

func (a *Algo) UpdateTick(*exchange.Tick) {}

func (a *Algo) UpdateOrder(order *exchange.Order) {
	if !order.Status.Finished() {
		return
	}
	a.mu.Lock()
	delete(a.orders, order.VtOrderID)
	a.mu.Unlock()
}

func (a *Algo) UpdateTrade(trade *exchange.Trade) {
	a.mu.Lock()
	a.traded = a.traded.Add(trade.Volume)
	done := a.traded.GreaterThanOrEqual(a.p.TotalVolume)
	a.mu.Unlock()

	a.putVars()
	if done {
		a.eng.WriteLog("已交易完成", a)
		a.Stop()
	}
}

func (a *Algo) UpdateTimer() {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.timerCount++
	a.totalCount++
	// 最后一片在第 Time 次计时发出，下一次计时才收尾
	if a.totalCount > a.p.Time {
		a.mu.Unlock()
		a.eng.WriteLog("执行时间已到，停止算法", a)
		a.Stop()
		return
	}
	if a.timerCount < a.p.Interval {
		a.mu.Unlock()
		a.putVars()
		return
	}
	a.timerCount = 0
	size := decimal.Min(a.orderSize, a.p.TotalVolume.Sub(a.traded))
	pending := a.pendingLocked()
	a.mu.Unlock()

	for _, id := range pending {
		_ = a.eng.CancelOrder(a, id)
	}
	if size.IsPositive() {
		a.slice(size)
	}
	a.putVars()
}

// slice sends one child order when the quote allows it.
func (a *Algo) slice(size decimal.Decimal) {
	tick, ok := a.eng.GetTick(a, a.p.VtSymbol)
	if !ok {
		return
	}
	opts := []algo.OrderOption{algo.WithPriceType(a.p.PriceType), algo.WithOffset(a.p.Offset)}
	var (
		id  string
		err error
	)
	switch a.p.Direction {
	case exchange.DirectionLong:
		if a.p.PriceType == exchange.PriceTypeMarket {
			id, err = a.eng.Buy(a, a.p.VtSymbol, tick.AskPrice1, size, opts...)
		} else if tick.AskPrice1.LessThanOrEqual(a.p.TargetPrice) {
			id, err = a.eng.Buy(a, a.p.VtSymbol, a.p.TargetPrice, size, opts...)
		}
	case exchange.DirectionShort:
		if a.p.PriceType == exchange.PriceTypeMarket {
			id, err = a.eng.Sell(a, a.p.VtSymbol, tick.BidPrice1, size, opts...)
		} else if tick.BidPrice1.GreaterThanOrEqual(a.p.TargetPrice) {
			id, err = a.eng.Sell(a, a.p.VtSymbol, a.p.TargetPrice, size, opts...)
		}
	}
	if err != nil || id == "" {
		return
	}
	a.mu.Lock()
	a.orders[id] = struct{}{}
	a.mu.Unlock()
}

// Stop cancels working orders and deactivates the instance. Safe to call
// more than once.
func (a *Algo) Stop() {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.active = false
	pending := a.pendingLocked()
	a.mu.Unlock()

	for _, id := range pending {
		_ = a.eng.CancelOrder(a, id)
	}
	a.putVars()
	a.eng.WriteLog("停止算法", a)
}

func (a *Algo) pendingLocked() []string {
	out := make([]string, 0, len(a.orders))
	for id := range a.orders {
		out = append(out, id)
	}
	return out
}

func (a *Algo) putVars() {
	a.mu.Lock()
	vars := map[string]any{
		"active":       a.active,
		"timerCount":   a.timerCount,
		"totalCount":   a.totalCount,
		"tradedVolume": a.traded.String(),
	}
	a.mu.Unlock()
	a.eng.PutVarEvent(a, vars)
}
