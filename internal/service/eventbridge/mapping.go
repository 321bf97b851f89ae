package eventbridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
)

var (
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrMissingUserID    = errors.New("event user id is required")
	ErrInvalidEventData = errors.New("invalid event data")
)

// Route is where an event kind is delivered and how it is flagged.
type Route struct {
	Channels []string
	Options  gateway.BroadcastOptions
}

// RouteFor maps an event kind to its target channels. Every kind reaches the
// user's own user- and bot- channels; most add one system channel.
func RouteFor(kind entity.EventKind, userID string) (Route, error) {
	if userID == "" {
		return Route{}, ErrMissingUserID
	}

	channels := []string{
		constant.UserChannelPrefix + userID,
		constant.BotChannelPrefix + userID,
	}
	opts := gateway.BroadcastOptions{Priority: entity.PriorityNormal}

	switch kind {
	case entity.EventBotActivated, entity.EventBotDeactivated:
		channels = append(channels, constant.ChannelBotStatus)
		opts = gateway.BroadcastOptions{Priority: entity.PriorityHigh, Persistent: true}
	case entity.EventTradeExecuted:
		channels = append(channels, constant.ChannelTradingUpdates)
		opts.Priority = entity.PriorityHigh
	case entity.EventTradeUpdated:
		channels = append(channels, constant.ChannelTradingUpdates)
	case entity.EventPerformanceUpdated:
		channels = append(channels, constant.ChannelPerformanceMetrics)
	case entity.EventErrorOccurred:
		channels = append(channels, constant.ChannelNotifications)
		opts = gateway.BroadcastOptions{Priority: entity.PriorityUrgent, Persistent: true}
	case entity.EventSettingsUpdated, entity.EventLiveStatusUpdate:
	case entity.EventUserNotification:
		channels = []string{constant.ChannelNotifications}
	default:
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownEventKind, kind)
	}

	return Route{Channels: channels, Options: opts}, nil
}

type BotActivatedPayload struct {
	BotID          string    `json:"botId"`
	ActivationTime time.Time `json:"activationTime"`
	Status         string    `json:"status"`
	Message        string    `json:"message"`
}

type BotDeactivatedPayload struct {
	BotID            string    `json:"botId"`
	DeactivationTime time.Time `json:"deactivationTime"`
	Status           string    `json:"status"`
	Runtime          int64     `json:"runtime"`
	Message          string    `json:"message"`
}

type ErrorOccurredPayload struct {
	ErrorCode    string    `json:"errorCode"`
	ErrorMessage string    `json:"errorMessage"`
	Severity     string    `json:"severity"`
	Component    string    `json:"component"`
	Timestamp    time.Time `json:"timestamp"`
	Suggestions  []string  `json:"suggestions,omitempty"`
}

type UserNotificationPayload struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Priority  entity.Priority `json:"priority"`
	Actions   []string        `json:"actions"`
	Timestamp time.Time       `json:"timestamp"`
}

func botActivatedPayload(in entity.BotActivation) BotActivatedPayload {
	return BotActivatedPayload{
		BotID:          in.BotID,
		ActivationTime: in.ActivationTime,
		Status:         "active",
		Message:        "Bot activated successfully",
	}
}

func botDeactivatedPayload(in entity.BotDeactivation) BotDeactivatedPayload {
	return BotDeactivatedPayload{
		BotID:            in.BotID,
		DeactivationTime: in.DeactivationTime,
		Status:           "inactive",
		Runtime:          in.Runtime,
		Message:          "Bot deactivated",
	}
}

func errorOccurredPayload(in entity.BotError) ErrorOccurredPayload {
	return ErrorOccurredPayload{
		ErrorCode:    in.Code,
		ErrorMessage: in.Message,
		Severity:     in.Severity,
		Component:    in.Component,
		Timestamp:    in.Timestamp,
		Suggestions:  in.Suggestions,
	}
}

func userNotificationPayload(id string, in entity.UserNotification, now time.Time) UserNotificationPayload {
	priority := in.Priority
	if priority == "" {
		priority = entity.PriorityNormal
	}
	actions := in.Actions
	if actions == nil {
		actions = []string{}
	}
	return UserNotificationPayload{
		ID:        id,
		Title:     in.Title,
		Message:   in.Message,
		Type:      in.Type,
		Priority:  priority,
		Actions:   actions,
		Timestamp: now,
	}
}

// decodePayload turns raw event data of kind into the client facing payload.
func decodePayload(kind entity.EventKind, raw json.RawMessage) (any, error) {
	switch kind {
	case entity.EventBotActivated:
		var in entity.BotActivation
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		return botActivatedPayload(in), nil
	case entity.EventBotDeactivated:
		var in entity.BotDeactivation
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		return botDeactivatedPayload(in), nil
	case entity.EventTradeExecuted:
		var in entity.TradeExecution
		err := decode(raw, &in)
		return in, err
	case entity.EventTradeUpdated:
		var in entity.TradeUpdate
		err := decode(raw, &in)
		return in, err
	case entity.EventPerformanceUpdated:
		var in entity.PerformanceUpdate
		err := decode(raw, &in)
		return in, err
	case entity.EventErrorOccurred:
		var in entity.BotError
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		return errorOccurredPayload(in), nil
	case entity.EventSettingsUpdated:
		var in entity.SettingsUpdate
		err := decode(raw, &in)
		return in, err
	case entity.EventLiveStatusUpdate:
		var in entity.LiveStatus
		err := decode(raw, &in)
		return in, err
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventKind, kind)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty data", ErrInvalidEventData)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEventData, err)
	}
	return nil
}

// notificationFor summarizes a persistent event for the notifications table.
func notificationFor(kind entity.EventKind, payload any) (title, message string) {
	switch p := payload.(type) {
	case BotActivatedPayload:
		return "Bot activated", fmt.Sprintf("Bot %s is now active", p.BotID)
	case BotDeactivatedPayload:
		return "Bot deactivated", fmt.Sprintf("Bot %s stopped after %s", p.BotID, time.Duration(p.Runtime)*time.Millisecond)
	case ErrorOccurredPayload:
		return "Bot error", fmt.Sprintf("%s: %s", p.ErrorCode, p.ErrorMessage)
	case UserNotificationPayload:
		return p.Title, p.Message
	default:
		return string(kind), string(kind)
	}
}
