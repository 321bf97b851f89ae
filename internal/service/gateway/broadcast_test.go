package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastToChannel_SharedBroadcastID(t *testing.T) {
	h := newTestHub(t, testConfig())
	a, connA := admit(t, h, "U1")
	b, connB := admit(t, h, "U2")
	subscribe(t, h, a, constant.ChannelTradingUpdates)
	subscribe(t, h, b, constant.ChannelTradingUpdates)

	delivered := h.BroadcastToChannel(constant.ChannelTradingUpdates, entity.NewEnvelope("trade_executed", map[string]string{"tradeId": "t1"}), BroadcastOptions{Priority: entity.PriorityHigh})
	require.Equal(t, 2, delivered)

	gotA := connA.waitFor(t, "trade_executed", 1)[0]
	gotB := connB.waitFor(t, "trade_executed", 1)[0]
	require.NotNil(t, gotA.Metadata)
	require.NotNil(t, gotB.Metadata)
	require.NotEmpty(t, gotA.Metadata.BroadcastID)
	require.Equal(t, gotA.Metadata.BroadcastID, gotB.Metadata.BroadcastID)
	require.Equal(t, constant.ChannelTradingUpdates, gotA.Metadata.Channel)
	require.Equal(t, string(entity.PriorityHigh), gotA.Metadata.Priority)
}

func TestHub_BroadcastToChannel_OnlyCurrentSubscribers(t *testing.T) {
	h := newTestHub(t, testConfig())
	a, connA := admit(t, h, "U1")
	b, connB := admit(t, h, "U2")
	_, connC := admit(t, h, "U3")
	subscribe(t, h, a, constant.ChannelBotStatus)
	subscribe(t, h, b, constant.ChannelBotStatus)
	h.HandleFrame(b, []byte(`{"type":"unsubscribe","channel":"bot-status"}`))

	delivered := h.BroadcastToChannel(constant.ChannelBotStatus, entity.NewEnvelope("bot_activated", nil), BroadcastOptions{})
	require.Equal(t, 1, delivered)

	connA.waitFor(t, "bot_activated", 1)
	connB.waitFor(t, MessageTypeUnsubscriptionConfirmed, 1)
	require.Empty(t, connB.ofType(t, "bot_activated"))
	require.Empty(t, connC.ofType(t, "bot_activated"))

	require.Zero(t, h.BroadcastToChannel("user-U9", entity.NewEnvelope("noop", nil), BroadcastOptions{}))
}

func TestHub_BroadcastToChannel_SkipsBrokenTargets(t *testing.T) {
	h := newTestHub(t, testConfig())
	a, connA := admit(t, h, "U1")
	b, _ := admit(t, h, "U2")
	c, connC := admit(t, h, "U3")
	for _, s := range []*Session{a, b, c} {
		subscribe(t, h, s, constant.ChannelNotifications)
	}

	// closed behind the registry's back: still indexed, transport gone
	b.close(1006, "transport lost")

	delivered := h.BroadcastToChannel(constant.ChannelNotifications, entity.NewEnvelope("error_occurred", nil), BroadcastOptions{})
	require.Equal(t, 2, delivered)
	connA.waitFor(t, "error_occurred", 1)
	connC.waitFor(t, "error_occurred", 1)

	_, ok := h.Session(b.ID())
	require.False(t, ok)
	require.ElementsMatch(t, []string{a.ID(), c.ID()}, membersOf(h, constant.ChannelNotifications))
}

func TestHub_Publish_DeliversOncePerSession(t *testing.T) {
	h := newTestHub(t, testConfig())
	s, conn := admit(t, h, "U1")
	subscribe(t, h, s, constant.ChannelBotStatus)
	subscribe(t, h, s, "user-U1")
	subscribe(t, h, s, "bot-U1")

	delivered := h.Publish([]string{"user-U1", "bot-U1", constant.ChannelBotStatus}, entity.NewEnvelope("bot_activated", nil), BroadcastOptions{Persistent: true})
	require.Equal(t, 1, delivered)

	got := conn.waitFor(t, "bot_activated", 1)
	time.Sleep(20 * time.Millisecond)
	require.Len(t, conn.ofType(t, "bot_activated"), 1)
	require.Equal(t, "user-U1", got[0].Metadata.Channel)
	require.True(t, got[0].Metadata.Persistent)
	require.Equal(t, string(entity.PriorityNormal), got[0].Metadata.Priority)
}

func TestHub_BroadcastToUser(t *testing.T) {
	h := newTestHub(t, testConfig())
	a, connA := admit(t, h, "U1")
	_, connB := admit(t, h, "U1")
	_, connOther := admit(t, h, "U2")
	subscribe(t, h, a, constant.ChannelNotifications)

	require.Equal(t, 2, h.BroadcastToUser("U1", entity.NewEnvelope("live_status_update", nil), nil))
	connA.waitFor(t, "live_status_update", 1)
	connB.waitFor(t, "live_status_update", 1)

	require.Equal(t, 1, h.BroadcastToUser("U1", entity.NewEnvelope("user_notification", nil), []string{constant.ChannelNotifications}))
	connA.waitFor(t, "user_notification", 1)
	require.Empty(t, connB.ofType(t, "user_notification"))
	require.Empty(t, connOther.ofType(t, "live_status_update"))
}

func TestHub_Broadcast_PerConnectionFIFO(t *testing.T) {
	h := newTestHub(t, testConfig())
	s, conn := admit(t, h, "U1")
	subscribe(t, h, s, constant.ChannelTradingUpdates)

	for i := 0; i < 20; i++ {
		h.BroadcastToChannel(constant.ChannelTradingUpdates, entity.NewEnvelope(fmt.Sprintf("seq_%02d", i), nil), BroadcastOptions{})
	}

	require.Eventually(t, func() bool {
		return len(conn.envelopes(t)) >= 22
	}, 2*time.Second, 5*time.Millisecond)

	var seq []string
	for _, env := range conn.envelopes(t) {
		if len(env.Type) == 6 && env.Type[:4] == "seq_" {
			seq = append(seq, env.Type)
		}
	}
	require.Len(t, seq, 20)
	for i, msgType := range seq {
		require.Equal(t, fmt.Sprintf("seq_%02d", i), msgType)
	}
}

func TestHub_Broadcast_DropsSlowConsumer(t *testing.T) {
	cfg := testConfig()
	cfg.OutboundBuffer = 4
	h := newTestHub(t, cfg)

	slowConn := newBlockingTransport()
	t.Cleanup(slowConn.unblock)
	slow, err := h.Admit(slowConn, entity.Identity{UserID: "U1"}, entity.ClientInfo{})
	require.NoError(t, err)
	fast, fastConn := admit(t, h, "U2")
	subscribe(t, h, slow, constant.ChannelTradingUpdates)
	subscribe(t, h, fast, constant.ChannelTradingUpdates)

	for i := 0; i < 10; i++ {
		h.BroadcastToChannel(constant.ChannelTradingUpdates, entity.NewEnvelope("trade_updated", nil), BroadcastOptions{})
		fastConn.waitFor(t, "trade_updated", i+1)
	}

	_, ok := h.Session(slow.ID())
	require.False(t, ok)
	require.Equal(t, StateClosing, slow.State())
	require.Equal(t, []string{fast.ID()}, membersOf(h, constant.ChannelTradingUpdates))
	require.EqualValues(t, 1, h.Stats().SlowConsumerDrops)

	code, reason := slow.closeStatus()
	require.Equal(t, constant.CloseSlowConsumer, code)
	require.Equal(t, "slow consumer", reason)
}
