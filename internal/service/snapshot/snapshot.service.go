package snapshot

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
)

const (
	MessageTypeStatusRequest  = "status_request"
	MessageTypeStatusResponse = "status_response"

	recentTradesLimit        = 20
	unreadNotificationsLimit = 50
)

type BotStatusReader interface {
	FindByUserID(ctx context.Context, userID string) ([]entity.BotStatus, error)
}

type TradeHistoryReader interface {
	FindRecentByUserID(ctx context.Context, userID string, limit uint64) ([]entity.TradeHistory, error)
	CountOpenByUserID(ctx context.Context, userID string) (int, error)
}

type PerformanceMetricReader interface {
	FindLatestByUserID(ctx context.Context, userID string) ([]entity.PerformanceMetric, error)
}

type NotificationReader interface {
	FindUnreadByUserID(ctx context.Context, userID string, limit uint64) ([]entity.Notification, error)
}

// Service loads per user snapshots from the trading database.
type Service struct {
	bots          BotStatusReader
	trades        TradeHistoryReader
	metrics       PerformanceMetricReader
	notifications NotificationReader
}

func NewService(bots BotStatusReader, trades TradeHistoryReader, metrics PerformanceMetricReader, notifications NotificationReader) *Service {
	return &Service{
		bots:          bots,
		trades:        trades,
		metrics:       metrics,
		notifications: notifications,
	}
}

type statusRequest struct {
	BotID string `json:"botId"`
}

type StatusResponse struct {
	Bots       []entity.BotStatus         `json:"bots"`
	OpenTrades int                        `json:"openTrades"`
	Metrics    []entity.PerformanceMetric `json:"metrics"`
}

// InitialData returns the snapshot of a system channel for identity. User
// scoped channels have no snapshot.
func (s *Service) InitialData(ctx context.Context, identity entity.Identity, channel string) (any, error) {
	switch channel {
	case constant.ChannelBotStatus:
		return s.bots.FindByUserID(ctx, identity.UserID)
	case constant.ChannelTradingUpdates:
		return s.trades.FindRecentByUserID(ctx, identity.UserID, recentTradesLimit)
	case constant.ChannelPerformanceMetrics:
		return s.metrics.FindLatestByUserID(ctx, identity.UserID)
	case constant.ChannelNotifications:
		return s.notifications.FindUnreadByUserID(ctx, identity.UserID, unreadNotificationsLimit)
	default:
		return nil, nil
	}
}

func (s *Service) HandleStatusRequest(ctx context.Context, req gateway.Request) (*entity.Envelope, error) {
	var payload statusRequest
	if len(req.Message.Data) > 0 {
		if err := json.Unmarshal(req.Message.Data, &payload); err != nil {
			return nil, fmt.Errorf("invalid status request: %w", err)
		}
	}

	userID := req.Identity.UserID
	bots, err := s.bots.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if payload.BotID != "" {
		filtered := make([]entity.BotStatus, 0, 1)
		for _, bot := range bots {
			if bot.BotID == payload.BotID {
				filtered = append(filtered, bot)
			}
		}
		bots = filtered
	}

	openTrades, err := s.trades.CountOpenByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	metrics, err := s.metrics.FindLatestByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	env := entity.NewEnvelope(MessageTypeStatusResponse, StatusResponse{
		Bots:       bots,
		OpenTrades: openTrades,
		Metrics:    metrics,
	})
	return &env, nil
}
