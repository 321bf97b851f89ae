package entity

import (
	"context"
	"time"
)

type AuditAction string

const (
	AuditAuthSucceeded  AuditAction = "auth_succeeded"
	AuditAuthFailed     AuditAction = "auth_failed"
	AuditSessionOpened  AuditAction = "session_opened"
	AuditSessionClosed  AuditAction = "session_closed"
	AuditChannelDenied  AuditAction = "channel_denied"
	AuditTradeRequested AuditAction = "trade_requested"
)

type AuditRecord struct {
	Action    AuditAction `json:"action"`
	SessionID string      `json:"session_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	IP        string      `json:"ip,omitempty"`
	Channel   string      `json:"channel,omitempty"`
	Code      int         `json:"code,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// AuditSink receives security relevant events. Implementations must not block
// the caller for long; failures are theirs to log.
type AuditSink interface {
	Audit(ctx context.Context, record AuditRecord)
}
