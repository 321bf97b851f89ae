package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	MessageTypeWelcome                 = "welcome"
	MessageTypeError                   = "error"
	MessageTypeSubscribe               = "subscribe"
	MessageTypeUnsubscribe             = "unsubscribe"
	MessageTypePing                    = "ping"
	MessageTypePong                    = "pong"
	MessageTypeSubscriptionConfirmed   = "subscription_confirmed"
	MessageTypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	MessageTypeInitialData             = "initial_data"
)

func isBuiltinType(msgType string) bool {
	switch msgType {
	case MessageTypeSubscribe, MessageTypeUnsubscribe, MessageTypePing, MessageTypePong:
		return true
	}
	return false
}

type inboundFrame struct {
	Type      json.RawMessage `json:"type"`
	RequestID json.RawMessage `json:"requestId"`
	Channel   json.RawMessage `json:"channel"`
	Options   json.RawMessage `json:"options"`
	Data      json.RawMessage `json:"data"`
}

// ParseInbound decodes a client frame. It fails with ErrInvalidMessage
// unless the frame is a JSON object with a non empty string type. A
// requestId or channel that is not a string reads as empty, so a
// subscription with one is answered with ErrInvalidChannel.
func ParseInbound(data []byte) (entity.InboundMessage, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return entity.InboundMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	msgType := stringField(frame.Type)
	if msgType == "" {
		return entity.InboundMessage{}, fmt.Errorf("%w: type must be a non empty string", ErrInvalidMessage)
	}

	var opts entity.SubscribeOptions
	if len(frame.Options) > 0 {
		// unknown option shapes fall back to the defaults
		_ = json.Unmarshal(frame.Options, &opts)
	}

	return entity.InboundMessage{
		Type:      msgType,
		RequestID: stringField(frame.RequestID),
		Channel:   stringField(frame.Channel),
		Options:   opts,
		Data:      frame.Data,
	}, nil
}

func stringField(raw json.RawMessage) string {
	var v string
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return ""
	}
	return v
}

// HandleFrame routes one inbound frame from s. Failures are answered with an
// error envelope and never close the session.
func (h *Hub) HandleFrame(s *Session, data []byte) {
	h.Touch(s)
	s.messageCount.Add(1)
	h.stats.MessageReceived()

	msg, err := ParseInbound(data)
	if err != nil {
		h.replyError(s, "", err)
		return
	}

	if msg.Type != MessageTypePing && msg.Type != MessageTypePong {
		logrus.WithFields(logrus.Fields{
			"sessionId": s.id,
			"userId":    s.UserID(),
			"type":      msg.Type,
		}).Debug("inbound message")
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"sessionId": s.id,
				"type":      msg.Type,
			}).Errorf("panic while handling message: %v", r)
			h.replyError(s, msg.RequestID, fmt.Errorf("%w: %v", ErrProcessing, r))
		}
	}()

	switch msg.Type {
	case MessageTypeSubscribe:
		h.handleSubscribe(s, msg)
	case MessageTypeUnsubscribe:
		h.handleUnsubscribe(s, msg)
	case MessageTypePing:
		pong := entity.NewEnvelope(MessageTypePong, nil)
		pong.RequestID = msg.RequestID
		_ = h.send(s, pong)
	case MessageTypePong:
		// activity already recorded
	default:
		h.handleRequest(s, msg)
	}
}

func (h *Hub) handleSubscribe(s *Session, msg entity.InboundMessage) {
	h.mu.Lock()
	var err error
	if current, ok := h.registry.Get(s.id); !ok || current != s {
		err = ErrSessionClosed
	} else {
		err = h.directory.Subscribe(s, msg.Channel, msg.Options, h.now())
	}
	h.mu.Unlock()

	switch {
	case errors.Is(err, ErrSessionClosed):
		return
	case errors.Is(err, ErrChannelForbidden):
		logrus.WithFields(logrus.Fields{
			"sessionId": s.id,
			"userId":    s.UserID(),
			"channel":   msg.Channel,
		}).Warn("channel access denied")
		h.recordAudit(entity.AuditRecord{
			Action:    entity.AuditChannelDenied,
			SessionID: s.id,
			UserID:    s.UserID(),
			IP:        s.client.IP,
			Channel:   msg.Channel,
		})
		h.replyError(s, msg.RequestID, fmt.Errorf("%w: %s", err, msg.Channel))
		return
	case err != nil:
		h.replyError(s, msg.RequestID, err)
		return
	}

	confirmed := entity.NewEnvelope(MessageTypeSubscriptionConfirmed, nil)
	confirmed.Channel = msg.Channel
	confirmed.RequestID = msg.RequestID
	confirmed.Message = "Successfully subscribed to " + msg.Channel
	if err := h.send(s, confirmed); err != nil {
		return
	}

	if msg.Options.InitialData {
		h.sendInitialData(s, msg.Channel)
	}
}

func (h *Hub) sendInitialData(s *Session, channel string) {
	if h.snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.RequestTimeout)
	defer cancel()

	data, err := h.snapshots.InitialData(ctx, s.identity, channel)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"sessionId": s.id,
			"channel":   channel,
		}).Errorf("failed to load initial data: %v", err)
		return
	}
	if data == nil {
		return
	}

	env := entity.NewEnvelope(MessageTypeInitialData, data)
	env.Channel = channel
	_ = h.send(s, env)
}

func (h *Hub) handleUnsubscribe(s *Session, msg entity.InboundMessage) {
	if msg.Channel == "" {
		h.replyError(s, msg.RequestID, ErrInvalidChannel)
		return
	}

	h.mu.Lock()
	h.directory.Unsubscribe(s, msg.Channel)
	h.mu.Unlock()

	confirmed := entity.NewEnvelope(MessageTypeUnsubscriptionConfirmed, nil)
	confirmed.Channel = msg.Channel
	confirmed.RequestID = msg.RequestID
	confirmed.Message = "Successfully unsubscribed from " + msg.Channel
	_ = h.send(s, confirmed)
}

func (h *Hub) handleRequest(s *Session, msg entity.InboundMessage) {
	handler, ok := h.handler(msg.Type)
	if !ok {
		h.replyError(s, msg.RequestID, fmt.Errorf("%w: %s", ErrUnknownType, msg.Type))
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.RequestTimeout)
	defer cancel()

	reply, err := handler(ctx, Request{
		SessionID: s.id,
		Identity:  s.identity,
		Message:   msg,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"sessionId": s.id,
			"userId":    s.UserID(),
			"type":      msg.Type,
		}).Error(err)
		h.replyError(s, msg.RequestID, fmt.Errorf("%w: %v", ErrProcessing, err))
		return
	}
	if reply == nil {
		return
	}
	if reply.RequestID == "" {
		reply.RequestID = msg.RequestID
	}
	_ = h.send(s, *reply)
}

func (h *Hub) replyError(s *Session, requestID string, err error) {
	s.errorCount.Add(1)
	h.stats.Error()

	env := entity.NewEnvelope(MessageTypeError, nil)
	env.Code = errorCode(err)
	env.Message = err.Error()
	env.RequestID = requestID
	_ = h.send(s, env)
}
