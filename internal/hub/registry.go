// Package hub keeps track of live connections per room and fans events out to them.
package hub

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

// ErrSlowConsumer is returned by Conn.Send when the outbound buffer is full.
var ErrSlowConsumer = errors.New("connection send buffer full")

// Role selects the permission level of a connection inside a room.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// ParseRole maps a path segment to a Role.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleHost:
		return RoleHost, true
	case RolePlayer:
		return RolePlayer, true
	}
	return "", false
}

// Conn is a process-local client connection. Send must not block on network I/O.
type Conn interface {
	ID() string
	Send(msg []byte) error
	Close()
}

type roomConns struct {
	host    Conn
	players []Conn
}

func (rc *roomConns) empty() bool {
	return rc.host == nil && len(rc.players) == 0
}

// Registry holds at most one host and an ordered set of players per room code.
type Registry struct {
	logger  *zap.Logger
	metrics *Metrics

	mu     sync.RWMutex
	rooms  map[string]*roomConns
	onDrop func(room string, conn Conn, role Role)
}

func NewRegistry(logger *zap.Logger, metrics *Metrics) *Registry {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Registry{
		logger:  logger,
		metrics: metrics,
		rooms:   make(map[string]*roomConns),
	}
}

// OnDrop installs a callback run after a connection is removed because a send
// to it failed. It runs without registry locks held.
func (r *Registry) OnDrop(fn func(room string, conn Conn, role Role)) {
	r.mu.Lock()
	r.onDrop = fn
	r.mu.Unlock()
}

// Metrics exposes the delivery counters.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// Register adds conn to the room. A new host replaces the previous one.
func (r *Registry) Register(room string, conn Conn, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, ok := r.rooms[room]
	if !ok {
		rc = &roomConns{}
		r.rooms[room] = rc
		r.metrics.IncrementRooms()
	}

	switch role {
	case RoleHost:
		if rc.host == conn {
			return
		}
		if rc.host != nil {
			r.logger.Info("host replaced", zap.String("room", room), zap.String("previous", rc.host.ID()), zap.String("conn", conn.ID()))
			r.metrics.DecrementConnections()
		}
		rc.host = conn
	default:
		for _, p := range rc.players {
			if p == conn {
				return
			}
		}
		rc.players = append(rc.players, conn)
	}
	r.metrics.IncrementConnections()
}

// Unregister removes conn from the room and reports whether it was registered
// under role. A stale host that was already replaced is not the current host,
// so removing it leaves the new host in place and returns false.
func (r *Registry) Unregister(room string, conn Conn, role Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked(room, conn, role)
}

func (r *Registry) unregisterLocked(room string, conn Conn, role Role) bool {
	rc, ok := r.rooms[room]
	if !ok {
		return false
	}

	removed := false
	switch role {
	case RoleHost:
		if rc.host == conn {
			rc.host = nil
			removed = true
		}
	default:
		for i, p := range rc.players {
			if p == conn {
				rc.players = append(rc.players[:i], rc.players[i+1:]...)
				removed = true
				break
			}
		}
	}

	if removed {
		r.metrics.DecrementConnections()
	}
	if rc.empty() {
		delete(r.rooms, room)
		r.metrics.DecrementRooms()
	}
	return removed
}

// Broadcast delivers event to every player of the room and to the host unless
// excludeHost is set. A connection that fails delivery is dropped and closed;
// the remaining recipients still receive the event.
func (r *Registry) Broadcast(room string, event domain.Event, excludeHost bool) {
	msg, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("marshal event", zap.String("event", event.Name()), zap.Error(err))
		return
	}

	r.mu.RLock()
	rc, ok := r.rooms[room]
	if !ok {
		r.mu.RUnlock()
		return
	}
	recipients := make([]Conn, 0, len(rc.players)+1)
	recipients = append(recipients, rc.players...)
	host := rc.host
	if !excludeHost && host != nil {
		recipients = append(recipients, host)
	}
	r.mu.RUnlock()

	for _, conn := range recipients {
		if err := conn.Send(msg); err != nil {
			r.drop(room, conn, conn == host, err)
			continue
		}
		r.metrics.IncrementMessagesSent()
	}
}

// SendToHost delivers event to the room's current host, if any.
func (r *Registry) SendToHost(room string, event domain.Event) {
	r.mu.RLock()
	var host Conn
	if rc, ok := r.rooms[room]; ok {
		host = rc.host
	}
	r.mu.RUnlock()
	if host == nil {
		return
	}
	r.sendTo(room, host, true, event)
}

// SendTo delivers event to a single connection of the room.
func (r *Registry) SendTo(room string, conn Conn, event domain.Event) {
	r.sendTo(room, conn, r.IsHost(room, conn), event)
}

func (r *Registry) sendTo(room string, conn Conn, isHost bool, event domain.Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("marshal event", zap.String("event", event.Name()), zap.Error(err))
		return
	}
	if err := conn.Send(msg); err != nil {
		r.drop(room, conn, isHost, err)
		return
	}
	r.metrics.IncrementMessagesSent()
}

func (r *Registry) drop(room string, conn Conn, isHost bool, cause error) {
	r.metrics.IncrementBroadcastErrors()
	r.logger.Warn("dropping connection after failed send",
		zap.String("room", room), zap.String("conn", conn.ID()), zap.Error(cause))

	role := RolePlayer
	if isHost {
		role = RoleHost
	}
	r.mu.Lock()
	removed := r.unregisterLocked(room, conn, role)
	onDrop := r.onDrop
	r.mu.Unlock()
	conn.Close()

	if removed && onDrop != nil {
		onDrop(room, conn, role)
	}
}

// IsHost reports whether conn is the room's current host.
func (r *Registry) IsHost(room string, conn Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.rooms[room]
	return ok && rc.host != nil && rc.host == conn
}

// HasHost reports whether the room currently has a host connection.
func (r *Registry) HasHost(room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.rooms[room]
	return ok && rc.host != nil
}

// PlayerCount returns the number of player connections registered for the room.
func (r *Registry) PlayerCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rc, ok := r.rooms[room]; ok {
		return len(rc.players)
	}
	return 0
}

// Rooms lists codes of rooms with at least one connection.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.rooms))
	for code := range r.rooms {
		codes = append(codes, code)
	}
	return codes
}
