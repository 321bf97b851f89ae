package entity

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventBotActivated       EventKind = "bot_activated"
	EventBotDeactivated     EventKind = "bot_deactivated"
	EventTradeExecuted      EventKind = "trade_executed"
	EventTradeUpdated       EventKind = "trade_updated"
	EventPerformanceUpdated EventKind = "performance_updated"
	EventErrorOccurred      EventKind = "error_occurred"
	EventSettingsUpdated    EventKind = "settings_updated"
	EventLiveStatusUpdate   EventKind = "live_status_update"
	EventUserNotification   EventKind = "user_notification"
)

// GatewayEvent is a domain event as produced by the bot/trading services.
// Data holds the kind specific input (BotActivation, TradeExecution, ...).
type GatewayEvent struct {
	UserID string          `json:"user_id"`
	Kind   EventKind       `json:"kind"`
	Data   json.RawMessage `json:"data"`
}

// GatewayEventMessage is the envelope carried on the JetStream bus.
type GatewayEventMessage struct {
	RetryCount int          `json:"retry"`
	Origin     string       `json:"origin,omitempty"`
	EventID    string       `json:"eventId,omitempty"`
	Data       GatewayEvent `json:"data"`
}

type BotActivation struct {
	BotID          string    `json:"botId"`
	ActivationTime time.Time `json:"activationTime"`
}

type BotDeactivation struct {
	BotID            string    `json:"botId"`
	DeactivationTime time.Time `json:"deactivationTime"`
	Runtime          int64     `json:"runtime"`
}

type TradeExecution struct {
	TradeID   string          `json:"tradeId"`
	Pair      string          `json:"pair"`
	Side      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Profit    decimal.Decimal `json:"profit"`
	Timestamp time.Time       `json:"timestamp"`
}

type TradeUpdate struct {
	TradeID       string           `json:"tradeId"`
	Status        string           `json:"status"`
	CurrentProfit decimal.Decimal  `json:"currentProfit"`
	ExitPrice     *decimal.Decimal `json:"exitPrice,omitempty"`
	UpdateReason  string           `json:"updateReason"`
}

type PerformanceUpdate struct {
	Metrics   map[string]decimal.Decimal `json:"metrics"`
	Timeframe string                     `json:"timeframe"`
	Timestamp time.Time                  `json:"timestamp"`
	Summary   string                     `json:"summary"`
}

type BotError struct {
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Severity    string    `json:"severity"`
	Component   string    `json:"component"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

type SettingsUpdate struct {
	SettingsID string         `json:"settingsId"`
	Changes    map[string]any `json:"changes"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Version    int64          `json:"version"`
}

type LiveStatus struct {
	IsActive     bool                       `json:"isActive"`
	Uptime       int64                      `json:"uptime"`
	ActiveTrades int                        `json:"activeTrades"`
	Equity       decimal.Decimal            `json:"equity"`
	Performance  map[string]decimal.Decimal `json:"performance,omitempty"`
	LastUpdate   time.Time                  `json:"lastUpdate"`
}

type UserNotification struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Type     string   `json:"type"`
	Priority Priority `json:"priority,omitempty"`
	Actions  []string `json:"actions,omitempty"`
}
