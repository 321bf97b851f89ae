package gateway

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

type StatsSnapshot struct {
	TotalConnections  int64     `json:"totalConnections"`
	ActiveConnections int64     `json:"activeConnections"`
	MessagesSent      int64     `json:"messagesSent"`
	MessagesReceived  int64     `json:"messagesReceived"`
	Errors            int64     `json:"errors"`
	Broadcasts        int64     `json:"broadcasts"`
	SlowConsumerDrops int64     `json:"slowConsumerDrops"`
	AuthFailures      int64     `json:"authFailures"`
	ActiveHeartbeats  int64     `json:"activeHeartbeats"`
	ActiveChannels    int       `json:"activeChannels"`
	MemoryRSSBytes    uint64    `json:"memoryRssBytes"`
	Uptime            int64     `json:"uptime"`
	StartTime         time.Time `json:"startTime"`
	Timestamp         time.Time `json:"timestamp"`
}

// Stats holds process wide gateway counters. All methods are safe for
// concurrent use.
type Stats struct {
	startTime         time.Time
	totalConnections  atomic.Int64
	activeConnections atomic.Int64
	messagesSent      atomic.Int64
	messagesReceived  atomic.Int64
	errors            atomic.Int64
	broadcasts        atomic.Int64
	slowConsumerDrops atomic.Int64
	authFailures      atomic.Int64
	activeHeartbeats  atomic.Int64
	memoryRSS         atomic.Uint64

	proc *process.Process
}

func NewStats(now time.Time) *Stats {
	s := &Stats{startTime: now}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logrus.Warnf("process stats unavailable: %v", err)
		return s
	}
	s.proc = proc
	return s
}

func (s *Stats) ConnectionOpened() {
	s.totalConnections.Add(1)
	s.activeConnections.Add(1)
}

func (s *Stats) ConnectionClosed() {
	s.activeConnections.Add(-1)
}

func (s *Stats) MessageSent() {
	s.messagesSent.Add(1)
}

func (s *Stats) MessageReceived() {
	s.messagesReceived.Add(1)
}

func (s *Stats) Error() {
	s.errors.Add(1)
}

func (s *Stats) Broadcast() {
	s.broadcasts.Add(1)
}

func (s *Stats) SlowConsumerDropped() {
	s.slowConsumerDrops.Add(1)
}

func (s *Stats) AuthFailed() {
	s.authFailures.Add(1)
}

func (s *Stats) HeartbeatStarted() {
	s.activeHeartbeats.Add(1)
}

func (s *Stats) HeartbeatStopped() {
	s.activeHeartbeats.Add(-1)
}

func (s *Stats) ActiveHeartbeats() int64 {
	return s.activeHeartbeats.Load()
}

// SampleMemory refreshes the resident set size gauge and returns it in
// bytes. Zero means the sample is unavailable.
func (s *Stats) SampleMemory() uint64 {
	if s.proc == nil {
		return 0
	}
	info, err := s.proc.MemoryInfo()
	if err != nil {
		logrus.Debugf("failed to sample memory: %v", err)
		return s.memoryRSS.Load()
	}
	s.memoryRSS.Store(info.RSS)
	return info.RSS
}

func (s *Stats) Snapshot(now time.Time, activeChannels int) StatsSnapshot {
	return StatsSnapshot{
		TotalConnections:  s.totalConnections.Load(),
		ActiveConnections: s.activeConnections.Load(),
		MessagesSent:      s.messagesSent.Load(),
		MessagesReceived:  s.messagesReceived.Load(),
		Errors:            s.errors.Load(),
		Broadcasts:        s.broadcasts.Load(),
		SlowConsumerDrops: s.slowConsumerDrops.Load(),
		AuthFailures:      s.authFailures.Load(),
		ActiveHeartbeats:  s.activeHeartbeats.Load(),
		ActiveChannels:    activeChannels,
		MemoryRSSBytes:    s.memoryRSS.Load(),
		Uptime:            now.Sub(s.startTime).Milliseconds(),
		StartTime:         s.startTime,
		Timestamp:         now,
	}
}
