// Package observability aggregates runtime metrics of the messaging
// server: event counters, the online gauge and self process stats.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"

	"mentorlink/domain/event"
)

// MessagingStats is one snapshot for the reporter and the debug page.
type MessagingStats struct {
	MessagesDelivered uint64  `json:"messages_delivered"`
	TypingEvents      uint64  `json:"typing_events"`
	PresenceEvents    uint64  `json:"presence_events"`
	DroppedEvents     uint64  `json:"dropped_events"`
	AuthFailures      uint64  `json:"auth_failures"`
	OnlineUsers       int64   `json:"online_users"`
	EventRate         float64 `json:"event_rate"` // events/s since the previous snapshot
	AllocMemMb        uint64  `json:"alloc_mem_mb"`
	RssMemMb          uint64  `json:"rss_mem_mb"`
	CpuPercent        float64 `json:"cpu_percent"`
	NumGC             uint32  `json:"num_gc"`
}

// MonitoringManager owns the counters. Increments are atomic so the hot
// paths never take a lock; the snapshot is refreshed by Listen.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MessagingStats

	messagesDelivered uint64
	typingEvents      uint64
	presenceEvents    uint64
	droppedEvents     uint64
	authFailures      uint64
	onlineUsers       int64
	windowEvents      uint64
	lastCheck         time.Time
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{
		log:       log,
		lastCheck: time.Now(),
	}
}

func (mm *MonitoringManager) IncrDroppedEvents() {
	atomic.AddUint64(&mm.droppedEvents, 1)
}

func (mm *MonitoringManager) IncrAuthFailures() {
	atomic.AddUint64(&mm.authFailures, 1)
}

func (mm *MonitoringManager) SetOnlineUsers(n int) {
	atomic.StoreInt64(&mm.onlineUsers, int64(n))
}

// Listen refreshes the snapshot at the given interval until the context is
// canceled.
func (mm *MonitoringManager) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		mm.log.Warn("Self process stats unavailable", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			mm.log.Info("Monitoring manager stopped")
			return
		case <-ticker.C:
			mm.updateStats(p)
		}
	}
}

func (mm *MonitoringManager) updateStats(p *process.Process) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	duration := now.Sub(mm.lastCheck).Seconds()
	if duration > 0 {
		window := atomic.SwapUint64(&mm.windowEvents, 0)
		mm.latestStats.EventRate = float64(window) / duration
	}
	mm.lastCheck = now

	mm.latestStats.MessagesDelivered = atomic.LoadUint64(&mm.messagesDelivered)
	mm.latestStats.TypingEvents = atomic.LoadUint64(&mm.typingEvents)
	mm.latestStats.PresenceEvents = atomic.LoadUint64(&mm.presenceEvents)
	mm.latestStats.DroppedEvents = atomic.LoadUint64(&mm.droppedEvents)
	mm.latestStats.AuthFailures = atomic.LoadUint64(&mm.authFailures)
	mm.latestStats.OnlineUsers = atomic.LoadInt64(&mm.onlineUsers)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC

	if p != nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			mm.latestStats.RssMemMb = memInfo.RSS / 1024 / 1024
		}
		if cpu, err := p.CPUPercent(); err == nil {
			mm.latestStats.CpuPercent = cpu
		}
	}

	mm.log.Debug("Stats updated",
		"delivered", mm.latestStats.MessagesDelivered,
		"event_rate", mm.latestStats.EventRate,
		"online", mm.latestStats.OnlineUsers,
		"mem_mb", mm.latestStats.AllocMemMb,
	)
}

func (mm *MonitoringManager) GetLatest() MessagingStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}

// Consume lets the manager sit in the fanout's permanent sinks: every
// routed event bumps its counter by kind. It never fails.
func (mm *MonitoringManager) Consume(_ context.Context, e event.ChannelEvent) error {
	atomic.AddUint64(&mm.windowEvents, 1)
	switch e.Kind() {
	case event.KindNewMessage:
		atomic.AddUint64(&mm.messagesDelivered, 1)
	case event.KindUserTyping, event.KindStopTyping:
		atomic.AddUint64(&mm.typingEvents, 1)
	case event.KindUserOnline, event.KindUserOffline, event.KindOnlineUsers:
		atomic.AddUint64(&mm.presenceEvents, 1)
	}
	return nil
}
