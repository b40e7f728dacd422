package orchestrator

import "testing"

type fakeArchiver struct{ calls []string }

func (f *fakeArchiver) Archive(joinKey string) error {
	f.calls = append(f.calls, joinKey)
	return nil
}

type fakeMounts struct{ started, stopped []string }

func (f *fakeMounts) StartMount(joinKey string) error {
	f.started = append(f.started, joinKey)
	return nil
}
func (f *fakeMounts) StopMount(joinKey string) error {
	f.stopped = append(f.stopped, joinKey)
	return nil
}

func TestGetOrCreateSessionStartsMountOnce(t *testing.T) {
	archiver := &fakeArchiver{}
	mounts := &fakeMounts{}
	store := NewStore(archiver, mounts, nil, 10, 10)

	s1, err := store.GetOrCreateSession("K")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := store.GetOrCreateSession("K")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s1 != s2 {
		t.Error("expected the same session instance on repeated get-or-create")
	}
	if len(mounts.started) != 1 {
		t.Errorf("expected mount started exactly once, got %d", len(mounts.started))
	}
	if len(archiver.calls) != 1 {
		t.Errorf("expected leftover-state archive exactly once, got %d", len(archiver.calls))
	}
}

func TestResetDoesNotStopMount(t *testing.T) {
	archiver := &fakeArchiver{}
	mounts := &fakeMounts{}
	store := NewStore(archiver, mounts, nil, 10, 10)
	store.GetOrCreateSession("K")

	if err := store.Reset("K"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.GetSession("K"); ok {
		t.Error("expected session removed from live registry after reset")
	}
	if len(mounts.stopped) != 0 {
		t.Error("reset must not stop the broadcaster mount")
	}
}

func TestEvictForReaperStopsMount(t *testing.T) {
	archiver := &fakeArchiver{}
	mounts := &fakeMounts{}
	store := NewStore(archiver, mounts, nil, 10, 10)
	store.GetOrCreateSession("K")

	if err := store.EvictForReaper("K"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mounts.stopped) != 1 {
		t.Error("expected reaper eviction to stop the mount")
	}
	if _, ok := store.GetSession("K"); ok {
		t.Error("expected session removed after eviction")
	}
}

func TestConversationRingEvictsOldestFirst(t *testing.T) {
	store := NewStore(nil, nil, nil, 2, 10)

	c1 := NewConversation("m", "", nil)
	c2 := NewConversation("m", "", nil)
	c3 := NewConversation("m", "", nil)
	store.PutConversation(c1)
	store.PutConversation(c2)
	store.PutConversation(c3)

	if _, ok := store.GetConversation(c1.Key); ok {
		t.Error("expected the oldest conversation to be evicted, not retained")
	}
	if _, ok := store.GetConversation(c2.Key); !ok {
		t.Error("expected the second conversation to survive")
	}
	if _, ok := store.GetConversation(c3.Key); !ok {
		t.Error("expected the newest conversation to survive")
	}
}
