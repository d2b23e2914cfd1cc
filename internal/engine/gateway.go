package engine

import (
	"fmt"

	"algoengine/internal/algo"
	"algoengine/internal/gateway/exchange"

	"github.com/shopspring/decimal"
)

// Subscribe issues the upstream subscription on the first request for a
// symbol and adds a to its fan-out set.
func (e *Engine) Subscribe(a algo.Algo, vtSymbol string) {
	contract, ok := e.main.GetContract(vtSymbol)
	if !ok {
		e.WriteLog(fmt.Sprintf("%s 订阅行情失败，找不到合约：%s", a.Name(), vtSymbol), a)
		return
	}
	if first := e.registry.AddSubscriber(vtSymbol, a); !first {
		return
	}
	req := exchange.SubscribeRequest{Symbol: contract.Symbol, Exchange: contract.Exchange}
	e.main.Subscribe(req, contract.GatewayName)
}

// SendOrder submits an order for a and records ownership of the returned
// vtOrderID before returning it.
func (e *Engine) SendOrder(a algo.Algo, vtSymbol string, direction exchange.Direction, price, volume decimal.Decimal, opts ...algo.OrderOption) (string, error) {
	contract, ok := e.main.GetContract(vtSymbol)
	if !ok {
		e.WriteLog(fmt.Sprintf("%s 委托下单失败，找不到合约：%s", a.Name(), vtSymbol), a)
		return "", fmt.Errorf("%w: %s", ErrContractNotFound, vtSymbol)
	}
	o := algo.ResolveOrderOptions(opts...)
	req := exchange.OrderRequest{
		VtSymbol:  vtSymbol,
		Symbol:    contract.Symbol,
		Exchange:  contract.Exchange,
		Direction: direction,
		Offset:    o.Offset,
		PriceType: o.PriceType,
		Price:     price,
		Volume:    volume,
	}
	vtOrderID, err := e.main.SendOrder(req, contract.GatewayName)
	if err != nil {
		e.WriteError(fmt.Sprintf("%s send order %s failed: %v", a.Name(), vtSymbol, err), a)
		return "", err
	}
	if vtOrderID == "" {
		e.WriteError(fmt.Sprintf("%s send order %s failed: %v", a.Name(), vtSymbol, ErrEmptyOrderID), a)
		return "", ErrEmptyOrderID
	}
	e.registry.SetOwner(vtOrderID, a)
	return vtOrderID, nil
}

func (e *Engine) Buy(a algo.Algo, vtSymbol string, price, volume decimal.Decimal, opts ...algo.OrderOption) (string, error) {
	return e.SendOrder(a, vtSymbol, exchange.DirectionLong, price, volume, opts...)
}

func (e *Engine) Sell(a algo.Algo, vtSymbol string, price, volume decimal.Decimal, opts ...algo.OrderOption) (string, error) {
	return e.SendOrder(a, vtSymbol, exchange.DirectionShort, price, volume, opts...)
}

// CancelOrder forwards a cancel built from the live order. Unknown ids are
// logged and nothing is sent.
func (e *Engine) CancelOrder(a algo.Algo, vtOrderID string) error {
	order, ok := e.main.GetOrder(vtOrderID)
	if !ok {
		e.WriteLog(fmt.Sprintf("%s 委托撤单失败，找不到委托：%s", a.Name(), vtOrderID), a)
		return fmt.Errorf("%w: %s", ErrOrderNotFound, vtOrderID)
	}
	req := exchange.CancelRequest{
		Symbol:    order.Symbol,
		Exchange:  order.Exchange,
		OrderID:   order.OrderID,
		FrontID:   order.FrontID,
		SessionID: order.SessionID,
	}
	if err := e.main.CancelOrder(req, order.GatewayName); err != nil {
		e.WriteError(fmt.Sprintf("%s cancel %s failed: %v", a.Name(), vtOrderID, err), a)
		return err
	}
	return nil
}

func (e *Engine) GetTick(a algo.Algo, vtSymbol string) (*exchange.Tick, bool) {
	tick, ok := e.main.GetTick(vtSymbol)
	if !ok {
		e.WriteLog(fmt.Sprintf("%s 查询行情失败，找不到报价：%s", a.Name(), vtSymbol), a)
		return nil, false
	}
	return tick, true
}

func (e *Engine) GetContract(a algo.Algo, vtSymbol string) (*exchange.Contract, bool) {
	contract, ok := e.main.GetContract(vtSymbol)
	if !ok {
		e.WriteLog(fmt.Sprintf("%s 查询合约失败，找不到合约：%s", a.Name(), vtSymbol), a)
		return nil, false
	}
	return contract, true
}
