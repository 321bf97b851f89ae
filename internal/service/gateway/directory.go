package gateway

import (
	"strings"
	"time"

	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
)

var systemChannels = map[string]struct{}{
	constant.ChannelBotStatus:          {},
	constant.ChannelTradingUpdates:     {},
	constant.ChannelPerformanceMetrics: {},
	constant.ChannelNotifications:      {},
}

func IsSystemChannel(channel string) bool {
	_, ok := systemChannels[channel]
	return ok
}

// Authorize reports whether identity may subscribe to channel. System
// channels are open to every authenticated user, user-{id} and bot-{id}
// only to the owner, everything else is forbidden.
func Authorize(identity entity.Identity, channel string) error {
	if IsSystemChannel(channel) {
		return nil
	}

	for _, prefix := range []string{constant.UserChannelPrefix, constant.BotChannelPrefix} {
		owner, ok := strings.CutPrefix(channel, prefix)
		if !ok {
			continue
		}
		if owner != "" && owner == identity.UserID {
			return nil
		}
		return ErrChannelForbidden
	}

	return ErrChannelForbidden
}

// Directory maps channel names to subscriber session ids. Like Registry it
// relies on the hub for synchronization.
type Directory struct {
	channels    map[string]map[string]struct{}
	maxChannels int
}

func NewDirectory(maxChannels int) *Directory {
	return &Directory{
		channels:    make(map[string]map[string]struct{}),
		maxChannels: maxChannels,
	}
}

func (d *Directory) Subscribe(s *Session, channel string, opts entity.SubscribeOptions, now time.Time) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	if err := Authorize(s.identity, channel); err != nil {
		return err
	}
	if _, ok := s.channels[channel]; ok {
		return nil
	}
	if len(s.channels) >= d.maxChannels {
		return ErrChannelLimit
	}

	members, ok := d.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		d.channels[channel] = members
	}
	members[s.id] = struct{}{}
	s.channels[channel] = Subscription{SubscribedAt: now, Options: opts}
	return nil
}

// Unsubscribe reports whether the session was subscribed.
func (d *Directory) Unsubscribe(s *Session, channel string) bool {
	if _, ok := s.channels[channel]; !ok {
		return false
	}
	delete(s.channels, channel)
	d.removeMember(channel, s.id)
	return true
}

// Members returns a copy of the subscriber ids of channel.
func (d *Directory) Members(channel string) []string {
	members := d.channels[channel]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (d *Directory) Channels(s *Session) []string {
	channels := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	return channels
}

func (d *Directory) OnSessionRemoved(s *Session) {
	for ch := range s.channels {
		d.removeMember(ch, s.id)
	}
	clear(s.channels)
}

func (d *Directory) Len() int {
	return len(d.channels)
}

func (d *Directory) removeMember(channel, id string) {
	members, ok := d.channels[channel]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(d.channels, channel)
	}
}
