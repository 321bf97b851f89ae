package entity

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

type BotStatus struct {
	UserID       string          `db:"user_id" json:"userId"`
	BotID        string          `db:"bot_id" json:"botId"`
	Status       string          `db:"status" json:"status"`
	IsActive     bool            `db:"is_active" json:"isActive"`
	ActiveTrades int             `db:"active_trades" json:"activeTrades"`
	Equity       decimal.Decimal `db:"equity" json:"equity"`
	ActivatedAt  null.Time       `db:"activated_at" json:"activatedAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

func (b BotStatus) TableName() string {
	return "bot_statuses"
}

type TradeHistory struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"userId"`
	BotID      string           `db:"bot_id" json:"botId"`
	Pair       string           `db:"pair" json:"pair"`
	Side       string           `db:"side" json:"type"`
	Status     string           `db:"status" json:"status"`
	Amount     decimal.Decimal  `db:"amount" json:"amount"`
	Price      decimal.Decimal  `db:"price" json:"price"`
	ExitPrice  *decimal.Decimal `db:"exit_price" json:"exitPrice,omitempty"`
	Profit     *decimal.Decimal `db:"profit" json:"profit,omitempty"`
	ExecutedAt time.Time        `db:"executed_at" json:"executedAt"`
	ClosedAt   null.Time        `db:"closed_at" json:"closedAt"`
}

func (t TradeHistory) TableName() string {
	return "trade_histories"
}

type PerformanceMetric struct {
	UserID       string          `db:"user_id" json:"userId"`
	Timeframe    string          `db:"timeframe" json:"timeframe"`
	TotalTrades  int64           `db:"total_trades" json:"totalTrades"`
	WinRate      decimal.Decimal `db:"win_rate" json:"winRate"`
	TotalProfit  decimal.Decimal `db:"total_profit" json:"totalProfit"`
	MaxDrawdown  decimal.Decimal `db:"max_drawdown" json:"maxDrawdown"`
	Summary      null.String     `db:"summary" json:"summary"`
	CalculatedAt time.Time       `db:"calculated_at" json:"calculatedAt"`
}

func (p PerformanceMetric) TableName() string {
	return "performance_metrics"
}

type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Type      string    `db:"type" json:"type"`
	Priority  string    `db:"priority" json:"priority"`
	ReadAt    null.Time `db:"read_at" json:"readAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

func (n Notification) TableName() string {
	return "notifications"
}

type BotSettings struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"userId"`
	Settings  types.JSONText `db:"settings" json:"settings"`
	Version   int64          `db:"version" json:"version"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

func (b BotSettings) TableName() string {
	return "bot_settings"
}
