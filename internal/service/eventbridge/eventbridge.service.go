package eventbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
	"github.com/krobus00/realtime-gateway/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var ErrPublishEventFailed = errors.New("failed to publish gateway event")

// Broadcaster is the subset of the hub the bridge delivers through.
type Broadcaster interface {
	Publish(channels []string, env entity.Envelope, opts gateway.BroadcastOptions) int
	BroadcastToUser(userID string, env entity.Envelope, channelFilter []string) int
}

type NotificationWriter interface {
	Create(ctx context.Context, notification *entity.Notification) error
}

type Service struct {
	broadcaster   Broadcaster
	notifications NotificationWriter
	js            nats.JetStreamContext
	subscription  *nats.Subscription
	instanceID    string
	now           func() time.Time
}

// NewService builds the bridge. notifications and js may be nil; without
// them persistent events are not stored and PublishEvent dispatches locally.
func NewService(broadcaster Broadcaster, notifications NotificationWriter, js nats.JetStreamContext) *Service {
	return &Service{
		broadcaster:   broadcaster,
		notifications: notifications,
		js:            js,
		instanceID:    uuid.NewString(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) BotActivated(ctx context.Context, userID string, in entity.BotActivation) (int, error) {
	return s.emit(ctx, entity.EventBotActivated, userID, botActivatedPayload(in))
}

func (s *Service) BotDeactivated(ctx context.Context, userID string, in entity.BotDeactivation) (int, error) {
	return s.emit(ctx, entity.EventBotDeactivated, userID, botDeactivatedPayload(in))
}

func (s *Service) TradeExecuted(ctx context.Context, userID string, in entity.TradeExecution) (int, error) {
	return s.emit(ctx, entity.EventTradeExecuted, userID, in)
}

func (s *Service) TradeUpdated(ctx context.Context, userID string, in entity.TradeUpdate) (int, error) {
	return s.emit(ctx, entity.EventTradeUpdated, userID, in)
}

func (s *Service) PerformanceUpdated(ctx context.Context, userID string, in entity.PerformanceUpdate) (int, error) {
	return s.emit(ctx, entity.EventPerformanceUpdated, userID, in)
}

func (s *Service) ErrorOccurred(ctx context.Context, userID string, in entity.BotError) (int, error) {
	return s.emit(ctx, entity.EventErrorOccurred, userID, errorOccurredPayload(in))
}

func (s *Service) SettingsUpdated(ctx context.Context, userID string, in entity.SettingsUpdate) (int, error) {
	return s.emit(ctx, entity.EventSettingsUpdated, userID, in)
}

func (s *Service) LiveStatusUpdate(ctx context.Context, userID string, in entity.LiveStatus) (int, error) {
	return s.emit(ctx, entity.EventLiveStatusUpdate, userID, in)
}

// Notify sends a notification to every session of userID that joined the
// notifications channel.
func (s *Service) Notify(ctx context.Context, userID string, in entity.UserNotification) (int, error) {
	if userID == "" {
		return 0, ErrMissingUserID
	}

	eventID := uuid.NewString()
	return s.emitPrepared(ctx, preparedEvent{
		kind:    entity.EventUserNotification,
		userID:  userID,
		eventID: eventID,
		payload: userNotificationPayload(eventID, in, s.now()),
	}), nil
}

// Dispatch delivers a raw domain event to the local sessions and stores it
// when the kind is persistent.
func (s *Service) Dispatch(ctx context.Context, event entity.GatewayEvent) (int, error) {
	prepared, err := s.prepare(event, uuid.NewString())
	if err != nil {
		return 0, err
	}
	return s.emitPrepared(ctx, prepared), nil
}

// PublishEvent sends event to every gateway instance through JetStream.
// Without a stream the event is dispatched on this instance only. The
// notification row is written here, once, never by the consumers.
func (s *Service) PublishEvent(ctx context.Context, event entity.GatewayEvent) error {
	eventID := uuid.NewString()
	prepared, err := s.prepare(event, eventID)
	if err != nil {
		return err
	}

	if s.js == nil {
		s.emitPrepared(ctx, prepared)
		return nil
	}

	err = util.PublishEvent(ctx, s.js, constant.GetGatewayEventSubject(string(event.Kind)), entity.GatewayEventMessage{
		Origin:  s.instanceID,
		EventID: eventID,
		Data:    event,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"kind":   event.Kind,
			"userId": event.UserID,
		}).Error(err)
		return fmt.Errorf("%w: %v", ErrPublishEventFailed, err)
	}

	s.persist(ctx, prepared)
	return nil
}

// deliverRemote fans a bus event out to the local sessions only. Storage
// already happened on the publishing instance.
func (s *Service) deliverRemote(msg entity.GatewayEventMessage) (int, error) {
	eventID := msg.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	prepared, err := s.prepare(msg.Data, eventID)
	if err != nil {
		return 0, err
	}
	return s.deliver(prepared), nil
}

type preparedEvent struct {
	kind    entity.EventKind
	userID  string
	eventID string
	route   Route
	payload any
}

// prepare validates event and decodes its data into the outbound payload.
func (s *Service) prepare(event entity.GatewayEvent, eventID string) (preparedEvent, error) {
	route, err := RouteFor(event.Kind, event.UserID)
	if err != nil {
		return preparedEvent{}, err
	}

	prepared := preparedEvent{
		kind:    event.Kind,
		userID:  event.UserID,
		eventID: eventID,
		route:   route,
	}

	if event.Kind == entity.EventUserNotification {
		var in entity.UserNotification
		if err := decode(event.Data, &in); err != nil {
			return preparedEvent{}, err
		}
		prepared.payload = userNotificationPayload(eventID, in, s.now())
		return prepared, nil
	}

	prepared.payload, err = decodePayload(event.Kind, event.Data)
	if err != nil {
		return preparedEvent{}, err
	}
	return prepared, nil
}

func (s *Service) emit(ctx context.Context, kind entity.EventKind, userID string, payload any) (int, error) {
	route, err := RouteFor(kind, userID)
	if err != nil {
		return 0, err
	}

	return s.emitPrepared(ctx, preparedEvent{
		kind:    kind,
		userID:  userID,
		eventID: uuid.NewString(),
		route:   route,
		payload: payload,
	}), nil
}

func (s *Service) emitPrepared(ctx context.Context, prepared preparedEvent) int {
	delivered := s.deliver(prepared)
	s.persist(ctx, prepared)
	return delivered
}

func (s *Service) deliver(prepared preparedEvent) int {
	env := s.envelope(prepared.kind, prepared.payload, prepared.eventID)

	var delivered int
	if prepared.kind == entity.EventUserNotification {
		delivered = s.broadcaster.BroadcastToUser(prepared.userID, env, []string{constant.ChannelNotifications})
	} else {
		delivered = s.broadcaster.Publish(prepared.route.Channels, env, prepared.route.Options)
	}

	s.logEmit(prepared.kind, prepared.userID, prepared.eventID, delivered)
	return delivered
}

func (s *Service) envelope(kind entity.EventKind, payload any, eventID string) entity.Envelope {
	env := entity.NewEnvelope(string(kind), payload)
	env.Timestamp = s.now()
	env.EventID = eventID
	return env
}

// persist stores a notification row for events the client may have missed.
// User notifications are always stored. Failures are logged; delivery
// already happened.
func (s *Service) persist(ctx context.Context, prepared preparedEvent) {
	if s.notifications == nil {
		return
	}

	priority := prepared.route.Options.Priority
	if payload, ok := prepared.payload.(UserNotificationPayload); ok {
		priority = payload.Priority
	} else if !prepared.route.Options.Persistent {
		return
	}

	title, message := notificationFor(prepared.kind, prepared.payload)
	notification := &entity.Notification{
		UserID:    prepared.userID,
		Title:     title,
		Message:   message,
		Type:      string(prepared.kind),
		Priority:  string(priority),
		CreatedAt: s.now(),
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		logrus.WithFields(logrus.Fields{
			"kind":   prepared.kind,
			"userId": prepared.userID,
		}).Errorf("failed to persist notification: %v", err)
	}
}

func (s *Service) logEmit(kind entity.EventKind, userID, eventID string, delivered int) {
	logrus.WithFields(logrus.Fields{
		"kind":      kind,
		"userId":    userID,
		"eventId":   eventID,
		"delivered": delivered,
	}).Debug("gateway event emitted")
}

// NewGatewayEvent encodes a typed event input for PublishEvent.
func NewGatewayEvent(userID string, kind entity.EventKind, in any) (entity.GatewayEvent, error) {
	if _, err := RouteFor(kind, userID); err != nil {
		return entity.GatewayEvent{}, err
	}
	data, err := json.Marshal(in)
	if err != nil {
		return entity.GatewayEvent{}, err
	}
	return entity.GatewayEvent{UserID: userID, Kind: kind, Data: data}, nil
}
