package entity

import (
	"github.com/shopspring/decimal"
)

type OrderSide string
type OrderType string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// TradeOrderRequest is the payload of a client trade_order frame.
type TradeOrderRequest struct {
	RequestID string           `json:"requestId"`
	BotID     string           `json:"botId"`
	Pair      string           `json:"pair"`
	Side      OrderSide        `json:"side"`
	Type      OrderType        `json:"orderType"`
	Amount    decimal.Decimal  `json:"amount"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

type TradeOrderResult struct {
	RequestID string `json:"requestId"`
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}
