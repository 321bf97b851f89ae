package audit

import (
	"context"
	"testing"
	"time"

	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestRecordValues(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	values := recordValues(entity.AuditRecord{
		Action:    entity.AuditAuthFailed,
		IP:        "10.0.0.1",
		Code:      4001,
		Reason:    "token missing",
		Timestamp: ts,
	})

	require.Equal(t, map[string]any{
		"action":    "auth_failed",
		"timestamp": "2026-01-02T03:04:05Z",
		"ip":        "10.0.0.1",
		"code":      "4001",
		"reason":    "token missing",
	}, values)
}

func TestLogSink(t *testing.T) {
	hook := test.NewGlobal()
	t.Cleanup(hook.Reset)

	NewLogSink().Audit(context.Background(), entity.AuditRecord{
		Action:  entity.AuditChannelDenied,
		UserID:  "U1",
		Channel: "user-U2",
	})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.WarnLevel, entry.Level)
	require.Equal(t, entity.AuditChannelDenied, entry.Data["audit"])
	require.Equal(t, "user-U2", entry.Data["channel"])
}

type countingSink struct {
	count int
}

func (c *countingSink) Audit(context.Context, entity.AuditRecord) {
	c.count++
}

func TestMulti(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	Multi{a, nil, b}.Audit(context.Background(), entity.AuditRecord{Action: entity.AuditSessionOpened})
	require.Equal(t, 1, a.count)
	require.Equal(t, 1, b.count)
}
