// Package exchange defines the market, order and trade records exchanged
// with the main trading engine, plus the request types the algo engine
// builds when it subscribes, submits or cancels.
package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction 委托方向
type Direction string

const (
	DirectionLong  Direction = "Long"
	DirectionShort Direction = "Short"
)

// PriceType 价格类型
type PriceType string

const (
	PriceTypeLimit  PriceType = "Limit"
	PriceTypeMarket PriceType = "Market"
)

// Offset 开平方向
type Offset string

const (
	OffsetOpen           Offset = "Open"
	OffsetClose          Offset = "Close"
	OffsetCloseToday     Offset = "CloseToday"
	OffsetCloseYesterday Offset = "CloseYesterday"
)

// Status 委托状态
type Status string

const (
	StatusSubmitting Status = "Submitting"
	StatusNotTraded  Status = "NotTraded"
	StatusPartTraded Status = "PartTraded"
	StatusAllTraded  Status = "AllTraded"
	StatusCancelled  Status = "Cancelled"
	StatusRejected   Status = "Rejected"
)

// Finished reports whether no further fills can arrive for the order.
func (s Status) Finished() bool {
	switch s {
	case StatusAllTraded, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Contract describes a tradable instrument known to the main engine.
type Contract struct {
	VtSymbol    string          `json:"vtSymbol"`
	Symbol      string          `json:"symbol"`
	Exchange    string          `json:"exchange"`
	GatewayName string          `json:"gatewayName"`
	Name        string          `json:"name,omitempty"`
	PriceTick   decimal.Decimal `json:"priceTick"`
	Size        decimal.Decimal `json:"size"`
}

// Tick is a level-1 market data snapshot.
type Tick struct {
	VtSymbol    string          `json:"vtSymbol"`
	Symbol      string          `json:"symbol"`
	Exchange    string          `json:"exchange"`
	GatewayName string          `json:"gatewayName"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
	Volume      decimal.Decimal `json:"volume"`
	BidPrice1   decimal.Decimal `json:"bidPrice1"`
	BidVolume1  decimal.Decimal `json:"bidVolume1"`
	AskPrice1   decimal.Decimal `json:"askPrice1"`
	AskVolume1  decimal.Decimal `json:"askVolume1"`
	Datetime    time.Time       `json:"datetime"`
}

// Order is the main engine's view of a submitted order.
type Order struct {
	VtOrderID    string          `json:"vtOrderID"`
	OrderID      string          `json:"orderID"`
	VtSymbol     string          `json:"vtSymbol"`
	Symbol       string          `json:"symbol"`
	Exchange     string          `json:"exchange"`
	GatewayName  string          `json:"gatewayName"`
	Direction    Direction       `json:"direction"`
	Offset       Offset          `json:"offset"`
	PriceType    PriceType       `json:"priceType"`
	Price        decimal.Decimal `json:"price"`
	TotalVolume  decimal.Decimal `json:"totalVolume"`
	TradedVolume decimal.Decimal `json:"tradedVolume"`
	Status       Status          `json:"status"`
	FrontID      string          `json:"frontID,omitempty"`
	SessionID    string          `json:"sessionID,omitempty"`
	OrderTime    time.Time       `json:"orderTime"`
}

// Trade is a single fill against an order.
type Trade struct {
	VtTradeID   string          `json:"vtTradeID"`
	TradeID     string          `json:"tradeID"`
	VtOrderID   string          `json:"vtOrderID"`
	VtSymbol    string          `json:"vtSymbol"`
	GatewayName string          `json:"gatewayName"`
	Direction   Direction       `json:"direction"`
	Offset      Offset          `json:"offset"`
	Price       decimal.Decimal `json:"price"`
	Volume      decimal.Decimal `json:"volume"`
	TradeTime   time.Time       `json:"tradeTime"`
}

// SubscribeRequest asks a gateway for market data on one instrument.
type SubscribeRequest struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// OrderRequest is what the algo engine submits on behalf of an algorithm.
type OrderRequest struct {
	VtSymbol  string          `json:"vtSymbol"`
	Symbol    string          `json:"symbol"`
	Exchange  string          `json:"exchange"`
	Direction Direction       `json:"direction"`
	Offset    Offset          `json:"offset"`
	PriceType PriceType       `json:"priceType"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
}

// CancelRequest carries the identifiers a gateway needs to cancel an order.
type CancelRequest struct {
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	OrderID   string `json:"orderID"`
	FrontID   string `json:"frontID,omitempty"`
	SessionID string `json:"sessionID,omitempty"`
}
