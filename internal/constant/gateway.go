package constant

// system channels every authenticated session may join
const (
	ChannelBotStatus          = "bot-status"
	ChannelTradingUpdates     = "trading-updates"
	ChannelPerformanceMetrics = "performance-metrics"
	ChannelNotifications      = "notifications"

	UserChannelPrefix = "user-"
	BotChannelPrefix  = "bot-"
)

// websocket close codes sent by the gateway
const (
	CloseInactivity     = 4000
	CloseUnauthorized   = 4001
	CloseAuthFailure    = 4002
	CloseSlowConsumer   = 1008
	CloseServerShutdown = 1001
	CloseNormal         = 1000
)

const (
	GatewayEventStreamName       = "gateway_events"
	GatewayEventStreamSubjectAll = "gateway_events.*"
	GatewayEventSubjectPrefix    = "gateway_events."
)

func GetGatewayEventSubject(kind string) string {
	return GatewayEventSubjectPrefix + kind
}
