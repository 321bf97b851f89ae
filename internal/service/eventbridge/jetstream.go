package eventbridge

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const defaultHandlerTimeout = 5 * time.Second

var ErrJetstreamDisabled = errors.New("jetstream is not configured")

func (s *Service) JetstreamEventInit(ctx context.Context) error {
	if s.js == nil {
		return ErrJetstreamDisabled
	}

	// limits retention so every instance's consumer sees every event
	streamConfig := &nats.StreamConfig{
		Name:      constant.GatewayEventStreamName,
		Subjects:  []string{constant.GatewayEventStreamSubjectAll},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    time.Hour,
	}

	stream, err := s.js.StreamInfo(constant.GatewayEventStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.GatewayEventStreamName)
		_, err = s.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.GatewayEventStreamName)
	_, err = s.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

// JetstreamEventSubscribe attaches an ephemeral consumer for this instance.
// Each gateway delivers only to its own sessions, so every instance reads the
// full subject space starting from new messages.
func (s *Service) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	timeout := config.Env.NatsJetstream.TimeoutHandler["gateway_event"]
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	maxDeliver := config.Env.NatsJetstream.MaxRetries
	if maxDeliver <= 0 {
		maxDeliver = 1
	}

	sub, err := s.js.Subscribe(
		constant.GatewayEventStreamSubjectAll,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(timeout, msg, s.handleGatewayEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				if nakErr := msg.Nak(); nakErr != nil {
					logrus.Errorf("failed to nak message: %v", nakErr)
				}
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.DeliverNew(),
		nats.AckExplicit(),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		logrus.Error(err)
		return err
	}
	s.subscription = sub

	logrus.WithField("instanceId", s.instanceID).Info("subscribed to gateway events")
	return nil
}

// Close drops this instance's consumer.
func (s *Service) Close() error {
	if s.subscription == nil {
		return nil
	}
	return s.subscription.Unsubscribe()
}

func (s *Service) handleGatewayEvent(ctx context.Context, msg *nats.Msg) error {
	logger := logrus.WithFields(logrus.Fields{
		"subject": msg.Subject,
	})

	var event entity.GatewayEventMessage
	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		// malformed payloads are acked; a redelivery cannot fix them
		logger.Errorf("dropping malformed gateway event: %v", err)
		return nil
	}

	_, err = s.deliverRemote(event)
	switch {
	case errors.Is(err, ErrUnknownEventKind), errors.Is(err, ErrMissingUserID), errors.Is(err, ErrInvalidEventData):
		logger.WithField("origin", event.Origin).Errorf("dropping gateway event: %v", err)
		return nil
	case err != nil:
		logger.Error(err)
		return err
	}

	return nil
}
