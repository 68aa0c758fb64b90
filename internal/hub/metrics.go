package hub

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics tracks connection and delivery counters.
type Metrics struct {
	activeConnections int64
	totalConnections  int64
	activeRooms       int64

	messagesReceived int64
	messagesSent     int64
	lastMessageTime  int64 // unix seconds

	broadcastErrors int64
	rejectedIntents int64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrementConnections() {
	atomic.AddInt64(&m.activeConnections, 1)
	atomic.AddInt64(&m.totalConnections, 1)
}

func (m *Metrics) DecrementConnections() {
	atomic.AddInt64(&m.activeConnections, -1)
}

func (m *Metrics) IncrementRooms() {
	atomic.AddInt64(&m.activeRooms, 1)
}

func (m *Metrics) DecrementRooms() {
	atomic.AddInt64(&m.activeRooms, -1)
}

func (m *Metrics) IncrementMessagesReceived() {
	atomic.AddInt64(&m.messagesReceived, 1)
	atomic.StoreInt64(&m.lastMessageTime, time.Now().Unix())
}

func (m *Metrics) IncrementMessagesSent() {
	atomic.AddInt64(&m.messagesSent, 1)
}

func (m *Metrics) IncrementBroadcastErrors() {
	atomic.AddInt64(&m.broadcastErrors, 1)
}

// IncrementRejectedIntents counts host-only intents sent by non-host connections.
func (m *Metrics) IncrementRejectedIntents() {
	atomic.AddInt64(&m.rejectedIntents, 1)
}

// MetricsSnapshot is a point-in-time view served by the metrics endpoint.
type MetricsSnapshot struct {
	ActiveConnections int64  `json:"active_connections"`
	TotalConnections  int64  `json:"total_connections"`
	ActiveRooms       int64  `json:"active_rooms"`
	MessagesReceived  int64  `json:"messages_received"`
	MessagesSent      int64  `json:"messages_sent"`
	LastMessageTime   string `json:"last_message_time"`
	BroadcastErrors   int64  `json:"broadcast_errors"`
	RejectedIntents   int64  `json:"rejected_intents"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	MemoryUsageMB     uint64 `json:"memory_usage_mb"`
	NumGoroutines     int    `json:"num_goroutines"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	last := "never"
	if ts := atomic.LoadInt64(&m.lastMessageTime); ts > 0 {
		last = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}

	return MetricsSnapshot{
		ActiveConnections: atomic.LoadInt64(&m.activeConnections),
		TotalConnections:  atomic.LoadInt64(&m.totalConnections),
		ActiveRooms:       atomic.LoadInt64(&m.activeRooms),
		MessagesReceived:  atomic.LoadInt64(&m.messagesReceived),
		MessagesSent:      atomic.LoadInt64(&m.messagesSent),
		LastMessageTime:   last,
		BroadcastErrors:   atomic.LoadInt64(&m.broadcastErrors),
		RejectedIntents:   atomic.LoadInt64(&m.rejectedIntents),
		UptimeSeconds:     int64(time.Since(m.startTime).Seconds()),
		MemoryUsageMB:     memStats.Alloc / 1024 / 1024,
		NumGoroutines:     runtime.NumGoroutine(),
	}
}
