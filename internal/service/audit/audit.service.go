package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultStream = "gateway:audit"
	DefaultMaxLen = 100000

	defaultWriteTimeout = 2 * time.Second
)

// LogSink writes audit records to the structured log.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (LogSink) Audit(_ context.Context, record entity.AuditRecord) {
	entry := logrus.WithFields(logrus.Fields{
		"audit":     record.Action,
		"sessionId": record.SessionID,
		"userId":    record.UserID,
		"ip":        record.IP,
	})
	if record.Channel != "" {
		entry = entry.WithField("channel", record.Channel)
	}
	if record.Code != 0 {
		entry = entry.WithField("code", record.Code)
	}

	switch record.Action {
	case entity.AuditAuthFailed, entity.AuditChannelDenied:
		entry.Warn(record.Reason)
	default:
		entry.Info(record.Reason)
	}
}

// RedisSink appends audit records to a capped redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisSink(client *redis.Client, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (s *RedisSink) Audit(ctx context.Context, record entity.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultWriteTimeout)
	defer cancel()

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: recordValues(record),
	}).Err()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"stream": s.stream,
			"audit":  record.Action,
		}).Errorf("failed to write audit record: %v", err)
	}
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func recordValues(record entity.AuditRecord) map[string]any {
	values := map[string]any{
		"action":    string(record.Action),
		"timestamp": record.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	optional := map[string]string{
		"session_id": record.SessionID,
		"user_id":    record.UserID,
		"ip":         record.IP,
		"channel":    record.Channel,
		"reason":     record.Reason,
	}
	for key, value := range optional {
		if value != "" {
			values[key] = value
		}
	}
	if record.Code != 0 {
		values["code"] = strconv.Itoa(record.Code)
	}
	return values
}

// Multi fans a record out to every sink.
type Multi []entity.AuditSink

func (m Multi) Audit(ctx context.Context, record entity.AuditRecord) {
	for _, sink := range m {
		if sink != nil {
			sink.Audit(ctx, record)
		}
	}
}
