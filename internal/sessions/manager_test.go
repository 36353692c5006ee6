package sessions

import (
	"testing"
	"time"
)

func TestManagerPersistsAcrossInstances(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)
	store := m.StorePath("Main")
	key := BuildAccountPeerSessionKey("main", "httpbridge", "default", PeerDM, "c1")

	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := m.Upsert(store, key, t0, func(s *Session) { s.Channel = "httpbridge"; s.LastText = "hi" }); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	t1 := t0.Add(time.Minute)
	if err := m.Upsert(store, key, t1, func(s *Session) { s.LastText = "again" }); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	reloaded := NewManager(root)
	s, ok := reloaded.Get(reloaded.StorePath("main"), key)
	if !ok {
		t.Fatal("session not found after reload")
	}
	if s.MessageCount != 2 || s.LastText != "again" || s.Channel != "httpbridge" {
		t.Errorf("got %+v", s)
	}
	if !s.Created.Equal(t0) || !s.Updated.Equal(t1) {
		t.Errorf("created=%v updated=%v", s.Created, s.Updated)
	}
}

func TestManagerInMemoryAndDelete(t *testing.T) {
	m := NewManager("")
	store := m.StorePath("a")
	if err := m.Upsert(store, "k", time.Now(), func(*Session) {}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(m.List(store)) != 1 {
		t.Fatal("expected one session")
	}
	if len(m.List(m.StorePath("b"))) != 0 {
		t.Error("stores leak across agents")
	}
	if err := m.Delete(store, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := m.Get(store, "k"); ok {
		t.Error("session still present after Delete")
	}
}
