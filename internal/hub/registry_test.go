package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

type fakeConn struct {
	id   string
	full bool

	mu     sync.Mutex
	msgs   [][]byte
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return ErrSlowConsumer
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) events(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.msgs))
	for _, m := range c.msgs {
		var env struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(m, &env); err != nil {
			t.Fatalf("decode %s: %v", m, err)
		}
		names = append(names, env.Event)
	}
	return names
}

func newTestRegistry() *Registry {
	return NewRegistry(zap.NewNop(), NewMetrics())
}

func TestBroadcastReachesHostAndPlayers(t *testing.T) {
	reg := newTestRegistry()
	host := &fakeConn{id: "h"}
	p1 := &fakeConn{id: "p1"}
	p2 := &fakeConn{id: "p2"}
	reg.Register("ROOM01", host, RoleHost)
	reg.Register("ROOM01", p1, RolePlayer)
	reg.Register("ROOM01", p2, RolePlayer)

	reg.Broadcast("ROOM01", domain.SimpleEvent{Event: domain.EventHostDisconnected}, false)
	reg.Broadcast("ROOM01", domain.NewLeaderboardEvent(domain.EventLeaderboard, nil), true)

	for _, c := range []*fakeConn{p1, p2} {
		got := c.events(t)
		if len(got) != 2 || got[0] != domain.EventHostDisconnected || got[1] != domain.EventLeaderboard {
			t.Fatalf("%s received %v", c.id, got)
		}
	}
	if got := host.events(t); len(got) != 1 {
		t.Fatalf("host should be excluded from second broadcast, got %v", got)
	}
}

func TestBroadcastIsolatedPerRoom(t *testing.T) {
	reg := newTestRegistry()
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	reg.Register("AAAAAA", a, RolePlayer)
	reg.Register("BBBBBB", b, RolePlayer)

	reg.Broadcast("AAAAAA", domain.SimpleEvent{Event: domain.EventQuizFinished}, false)
	if len(b.events(t)) != 0 {
		t.Fatalf("other room must not receive events")
	}
}

func TestFailedSendDropsOnlyThatConnection(t *testing.T) {
	reg := newTestRegistry()
	slow := &fakeConn{id: "slow", full: true}
	ok := &fakeConn{id: "ok"}
	reg.Register("ROOM01", slow, RolePlayer)
	reg.Register("ROOM01", ok, RolePlayer)

	var dropped []string
	reg.OnDrop(func(room string, conn Conn, role Role) {
		dropped = append(dropped, conn.ID())
	})

	reg.Broadcast("ROOM01", domain.SimpleEvent{Event: domain.EventQuizFinished}, false)

	if len(ok.events(t)) != 1 {
		t.Fatalf("healthy peer must still receive the event")
	}
	if !slow.closed {
		t.Fatalf("failed peer should be closed")
	}
	if reg.PlayerCount("ROOM01") != 1 {
		t.Fatalf("failed peer should be unregistered, count=%d", reg.PlayerCount("ROOM01"))
	}
	if len(dropped) != 1 || dropped[0] != "slow" {
		t.Fatalf("drop callback got %v", dropped)
	}
	if reg.Metrics().Snapshot().BroadcastErrors != 1 {
		t.Fatalf("expected one broadcast error")
	}
}

func TestHostReplacementLastWriterWins(t *testing.T) {
	reg := newTestRegistry()
	first := &fakeConn{id: "h1"}
	second := &fakeConn{id: "h2"}
	reg.Register("ROOM01", first, RoleHost)
	reg.Register("ROOM01", second, RoleHost)

	if reg.IsHost("ROOM01", first) || !reg.IsHost("ROOM01", second) {
		t.Fatalf("second host should replace the first")
	}
	if reg.Unregister("ROOM01", first, RoleHost) {
		t.Fatalf("stale host removal must report nothing removed")
	}
	if !reg.HasHost("ROOM01") {
		t.Fatalf("stale host removal must not evict the current host")
	}

	reg.SendToHost("ROOM01", domain.CountEvent{Event: domain.EventParticipantsUpdate, Count: 2})
	if len(second.events(t)) != 1 || len(first.events(t)) != 0 {
		t.Fatalf("unicast to host went to the wrong connection")
	}
	if got := reg.Metrics().Snapshot().ActiveConnections; got != 1 {
		t.Fatalf("active connections = %d, want 1", got)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	reg := newTestRegistry()
	p := &fakeConn{id: "p"}
	reg.Register("ROOM01", p, RolePlayer)

	if !reg.Unregister("ROOM01", p, RolePlayer) {
		t.Fatalf("first unregister should remove the player")
	}
	if reg.Unregister("ROOM01", p, RolePlayer) {
		t.Fatalf("second unregister should be a no-op")
	}
	if len(reg.Rooms()) != 0 {
		t.Fatalf("empty room should be forgotten, got %v", reg.Rooms())
	}
}

func TestConcurrentRegisterAndBroadcast(t *testing.T) {
	reg := newTestRegistry()
	reg.Register("ROOM01", &fakeConn{id: "h"}, RoleHost)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c := &fakeConn{id: "p"}
			reg.Register("ROOM01", c, RolePlayer)
			if i%2 == 0 {
				reg.Unregister("ROOM01", c, RolePlayer)
			}
		}(i)
		go func() {
			defer wg.Done()
			reg.Broadcast("ROOM01", domain.SimpleEvent{Event: domain.EventQuizResumed}, false)
		}()
	}
	wg.Wait()

	if got := reg.PlayerCount("ROOM01"); got != 25 {
		t.Fatalf("expected 25 players left, got %d", got)
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := ParseRole("host"); !ok || r != RoleHost {
		t.Fatalf("host not parsed")
	}
	if _, ok := ParseRole("admin"); ok {
		t.Fatalf("unknown role accepted")
	}
}
