package gateway

import (
	"time"

	"github.com/krobus00/realtime-gateway/internal/config"
)

const (
	DefaultHeartbeatInterval        = 30 * time.Second
	DefaultInactivityThreshold      = 5 * time.Minute
	DefaultSweepInterval            = 60 * time.Second
	DefaultWriteTimeout             = 10 * time.Second
	DefaultStatsLogInterval         = 5 * time.Minute
	DefaultRequestTimeout           = 10 * time.Second
	DefaultMaxChannelsPerConnection = 20
	DefaultMaxMessageSize           = 1 << 20
	DefaultOutboundBuffer           = 256
	DefaultMemoryLimitMB            = 500
)

var features = []string{
	"real_time_updates",
	"bot_status_monitoring",
	"trade_notifications",
	"performance_metrics",
	"error_alerts",
	"settings_sync",
}

type Config struct {
	HeartbeatInterval        time.Duration
	InactivityThreshold      time.Duration
	SweepInterval            time.Duration
	WriteTimeout             time.Duration
	StatsLogInterval         time.Duration
	RequestTimeout           time.Duration
	MaxChannelsPerConnection int
	MaxMessageSize           int64
	OutboundBuffer           int
	MemoryLimitMB            int
}

// NewConfig maps the gateway section of the service config, filling zero
// values with defaults.
func NewConfig(cfg config.GatewayConfig) Config {
	return Config{
		HeartbeatInterval:        cfg.HeartbeatInterval,
		InactivityThreshold:      cfg.InactivityThreshold,
		SweepInterval:            cfg.SweepInterval,
		WriteTimeout:             cfg.WriteTimeout,
		StatsLogInterval:         cfg.StatsLogInterval,
		RequestTimeout:           cfg.RequestTimeout,
		MaxChannelsPerConnection: cfg.MaxChannelsPerConnection,
		MaxMessageSize:           cfg.MaxMessageSize,
		OutboundBuffer:           cfg.OutboundBuffer,
		MemoryLimitMB:            cfg.MemoryLimitMB,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = DefaultInactivityThreshold
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.StatsLogInterval <= 0 {
		c.StatsLogInterval = DefaultStatsLogInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxChannelsPerConnection <= 0 {
		c.MaxChannelsPerConnection = DefaultMaxChannelsPerConnection
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.OutboundBuffer <= 0 {
		c.OutboundBuffer = DefaultOutboundBuffer
	}
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = DefaultMemoryLimitMB
	}
	return c
}
