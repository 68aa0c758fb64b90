package app

import (
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hub"
)

type target int

const (
	targetRoom target = iota
	targetHost
	targetConn
)

// outgoing is one event produced by a command, addressed to the room, the host
// or a single connection.
type outgoing struct {
	target target
	conn   hub.Conn
	event  domain.Event
}

func toRoom(event domain.Event) outgoing {
	return outgoing{target: targetRoom, event: event}
}

func toHost(event domain.Event) outgoing {
	return outgoing{target: targetHost, event: event}
}

func toConn(conn hub.Conn, event domain.Event) outgoing {
	return outgoing{target: targetConn, conn: conn, event: event}
}

// deliver must be called with sess.mu held and releases it. The outbox lock is
// taken first so commands of one room are delivered in the order they were
// applied.
func (s *RoomService) deliver(sess *Session, out []outgoing) {
	if len(out) == 0 {
		sess.mu.Unlock()
		return
	}
	sess.outbox.Lock()
	sess.mu.Unlock()
	defer sess.outbox.Unlock()

	for _, o := range out {
		switch o.target {
		case targetRoom:
			s.hub.Broadcast(sess.code, o.event, false)
		case targetHost:
			s.hub.SendToHost(sess.code, o.event)
		case targetConn:
			s.hub.SendTo(sess.code, o.conn, o.event)
		}
	}
}
