package memory

import (
	"context"
	"testing"
)

func liveRooms(t *testing.T, store *SessionStore) []string {
	t.Helper()
	codes, err := store.LiveRooms(context.Background())
	if err != nil {
		t.Fatalf("live rooms: %v", err)
	}
	return codes
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	first := store.GetOrCreate("ABC123")
	second := store.GetOrCreate("ABC123")
	if first != second {
		t.Fatalf("expected the same session for one room code")
	}
	if _, ok := store.Get("ABC123"); !ok {
		t.Fatalf("expected session present")
	}
	if live := liveRooms(t, store); len(live) != 1 || live[0] != "ABC123" {
		t.Fatalf("expected ABC123 live, got %v", live)
	}

	store.Release("ABC123")
	if _, ok := store.Get("ABC123"); !ok {
		t.Fatalf("session must survive while a connection still holds it")
	}

	store.Release("ABC123")
	if _, ok := store.Get("ABC123"); ok {
		t.Fatalf("expected session removed when empty")
	}
	if live := liveRooms(t, store); len(live) != 0 {
		t.Fatalf("expected no sessions, got %v", live)
	}
}

func TestSessionStoreReleaseUnknown(t *testing.T) {
	store := NewSessionStore()
	store.Release("NOPE00")
	if live := liveRooms(t, store); len(live) != 0 {
		t.Fatalf("release of unknown code must be a no-op")
	}
}
