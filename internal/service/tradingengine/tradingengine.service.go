package tradingengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	MessageTypeTradeOrder       = "trade_order"
	MessageTypeTradeOrderResult = "trade_order_result"

	placeOrderMethod = "/trading.v1.TradingEngine/PlaceOrder"
	defaultTimeout   = 5 * time.Second
	requestKeyTTL    = 24 * time.Hour
	requestKeyPrefix = "trade_order:"
)

var (
	ErrInvalidOrder      = errors.New("invalid trade order")
	ErrDuplicateOrder    = errors.New("duplicate order")
	ErrOrderRejected     = errors.New("order rejected by trading engine")
	ErrEngineUnavailable = errors.New("trading engine unavailable")
	ErrPlaceOrderFailed  = errors.New("failed to place order")
)

// RequestClaimer claims a request id once so a retried frame does not place
// the same order twice.
type RequestClaimer interface {
	Claim(ctx context.Context, requestID string) (bool, error)
}

type Service struct {
	conn    grpc.ClientConnInterface
	claimer RequestClaimer
	audit   entity.AuditSink
	timeout time.Duration
}

// NewService proxies trade_order frames to the trading engine. claimer and
// audit may be nil.
func NewService(conn grpc.ClientConnInterface, claimer RequestClaimer, audit entity.AuditSink, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		conn:    conn,
		claimer: claimer,
		audit:   audit,
		timeout: timeout,
	}
}

func (s *Service) HandleTradeOrder(ctx context.Context, req gateway.Request) (*entity.Envelope, error) {
	var order entity.TradeOrderRequest
	if len(req.Message.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidOrder)
	}
	if err := json.Unmarshal(req.Message.Data, &order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if order.RequestID == "" {
		order.RequestID = req.Message.RequestID
	}

	result, err := s.PlaceOrder(ctx, req.Identity, order)
	s.recordAudit(ctx, req, order, err)
	if err != nil {
		return nil, err
	}

	env := entity.NewEnvelope(MessageTypeTradeOrderResult, result)
	return &env, nil
}

func (s *Service) PlaceOrder(ctx context.Context, identity entity.Identity, order entity.TradeOrderRequest) (*entity.TradeOrderResult, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"userId":    identity.UserID,
		"botId":     order.BotID,
		"pair":      order.Pair,
		"requestId": order.RequestID,
	})

	if s.claimer != nil && order.RequestID != "" {
		claimed, err := s.claimer.Claim(ctx, order.RequestID)
		if err != nil {
			logger.Error(err)
			return nil, ErrPlaceOrderFailed
		}
		if !claimed {
			logger.Warn("duplicate order request")
			return nil, ErrDuplicateOrder
		}
	}

	in, err := structpb.NewStruct(orderFields(identity, order))
	if err != nil {
		logger.Error(err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out := &structpb.Struct{}
	err = s.conn.Invoke(ctx, placeOrderMethod, in, out)
	if err != nil {
		logger.Error(err)
		return nil, mapRPCError(err)
	}

	result := &entity.TradeOrderResult{
		RequestID: order.RequestID,
		OrderID:   out.GetFields()["orderId"].GetStringValue(),
		Status:    out.GetFields()["status"].GetStringValue(),
		Message:   out.GetFields()["message"].GetStringValue(),
	}
	logger.WithFields(logrus.Fields{
		"orderId": result.OrderID,
		"status":  result.Status,
	}).Info("order placed")

	return result, nil
}

func validateOrder(order entity.TradeOrderRequest) error {
	switch {
	case order.BotID == "":
		return fmt.Errorf("%w: botId is required", ErrInvalidOrder)
	case order.Pair == "":
		return fmt.Errorf("%w: pair is required", ErrInvalidOrder)
	case order.Side != entity.OrderSideBuy && order.Side != entity.OrderSideSell:
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	case order.Type != "" && order.Type != entity.OrderTypeLimit && order.Type != entity.OrderTypeMarket:
		return fmt.Errorf("%w: orderType must be LIMIT or MARKET", ErrInvalidOrder)
	case !order.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	case order.Type == entity.OrderTypeLimit && (order.Price == nil || !order.Price.IsPositive()):
		return fmt.Errorf("%w: limit orders need a positive price", ErrInvalidOrder)
	}
	return nil
}

func orderFields(identity entity.Identity, order entity.TradeOrderRequest) map[string]any {
	orderType := order.Type
	if orderType == "" {
		orderType = entity.OrderTypeMarket
	}

	fields := map[string]any{
		"requestId": order.RequestID,
		"userId":    identity.UserID,
		"botId":     order.BotID,
		"pair":      order.Pair,
		"side":      string(order.Side),
		"orderType": string(orderType),
		"amount":    order.Amount.String(),
	}
	if identity.Tenant != "" {
		fields["tenant"] = identity.Tenant
	}
	if order.Price != nil {
		fields["price"] = order.Price.String()
	}
	return fields
}

func mapRPCError(err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrOrderRejected, st.Message())
	case codes.AlreadyExists:
		return ErrDuplicateOrder
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrEngineUnavailable
	default:
		return ErrPlaceOrderFailed
	}
}

func (s *Service) recordAudit(ctx context.Context, req gateway.Request, order entity.TradeOrderRequest, err error) {
	if s.audit == nil {
		return
	}

	reason := "accepted"
	if err != nil {
		reason = err.Error()
	}
	s.audit.Audit(ctx, entity.AuditRecord{
		Action:    entity.AuditTradeRequested,
		SessionID: req.SessionID,
		UserID:    req.Identity.UserID,
		Reason:    fmt.Sprintf("%s %s %s: %s", order.Side, order.Amount, order.Pair, reason),
		Timestamp: time.Now().UTC(),
	})
}

// RedisClaimer stores claimed request ids in redis for a day.
type RedisClaimer struct {
	client *redis.Client
}

func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	return &RedisClaimer{client: client}
}

func (c *RedisClaimer) Claim(ctx context.Context, requestID string) (bool, error) {
	return c.client.SetNX(ctx, requestKeyPrefix+requestID, time.Now().UTC().Unix(), requestKeyTTL).Result()
}
