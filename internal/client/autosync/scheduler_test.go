package autosync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/listkeeper/project/internal/contracts"
)

// fakeRemote records every Put and signals arrival on a channel.
type fakeRemote struct {
	mu   sync.Mutex
	puts []contracts.DraftPayload
	sent chan contracts.DraftPayload
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{sent: make(chan contracts.DraftPayload, 16)}
}

func (r *fakeRemote) Get(context.Context) (*contracts.DraftSnapshot, error) { return nil, nil }

func (r *fakeRemote) Put(_ context.Context, draft contracts.DraftPayload) (contracts.ListSummary, error) {
	r.mu.Lock()
	r.puts = append(r.puts, draft)
	r.mu.Unlock()
	r.sent <- draft
	return contracts.ListSummary{ID: "draft-1", UpdatedAt: time.Now().UTC()}, nil
}

func (r *fakeRemote) Delete(context.Context) error { return nil }

func (r *fakeRemote) putCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.puts)
}

// fakeCache counts synchronous local saves.
type fakeCache struct {
	mu     sync.Mutex
	drafts []contracts.DraftPayload
}

func (c *fakeCache) SaveDraft(draft contracts.DraftPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drafts = append(c.drafts, draft)
	return nil
}

func (c *fakeCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.drafts)
}

func draftTitled(title string) contracts.DraftPayload {
	return contracts.DraftPayload{Title: title}
}

func newTestScheduler(remote *fakeRemote, local *fakeCache) *Scheduler {
	s := NewScheduler(remote, local)
	s.Debounce = 30 * time.Millisecond
	return s
}

func waitForPut(t *testing.T, remote *fakeRemote) contracts.DraftPayload {
	t.Helper()
	select {
	case draft := <-remote.sent:
		return draft
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a remote put")
		return contracts.DraftPayload{}
	}
}

func TestSchedule_SavesLocallyRightAway(t *testing.T) {
	remote := newFakeRemote()
	local := &fakeCache{}
	s := newTestScheduler(remote, local)
	defer s.Cancel()

	s.Schedule(draftTitled("a"))
	if local.count() != 1 {
		t.Fatalf("local saves = %d, want 1 before the debounce fires", local.count())
	}
}

func TestSchedule_CoalescesWithinWindow(t *testing.T) {
	remote := newFakeRemote()
	local := &fakeCache{}
	s := newTestScheduler(remote, local)

	s.Schedule(draftTitled("a"))
	s.Schedule(draftTitled("b"))
	s.Schedule(draftTitled("c"))

	got := waitForPut(t, remote)
	if got.Title != "c" {
		t.Fatalf("remote received %q, want the last scheduled draft", got.Title)
	}

	// Give a stray second fire a chance to land before counting.
	time.Sleep(3 * s.Debounce)
	if remote.putCount() != 1 {
		t.Fatalf("remote puts = %d, want exactly 1", remote.putCount())
	}
	if local.count() != 3 {
		t.Fatalf("local saves = %d, want one per Schedule call", local.count())
	}
}

func TestSchedule_SeparateWindowsSendSeparately(t *testing.T) {
	remote := newFakeRemote()
	s := newTestScheduler(remote, &fakeCache{})

	s.Schedule(draftTitled("first"))
	if got := waitForPut(t, remote); got.Title != "first" {
		t.Fatalf("first window sent %q", got.Title)
	}

	s.Schedule(draftTitled("second"))
	if got := waitForPut(t, remote); got.Title != "second" {
		t.Fatalf("second window sent %q", got.Title)
	}
	if remote.putCount() != 2 {
		t.Fatalf("remote puts = %d, want 2", remote.putCount())
	}
}

func TestFire_StaleWindowDropped(t *testing.T) {
	remote := newFakeRemote()
	s := newTestScheduler(remote, &fakeCache{})
	s.Debounce = 200 * time.Millisecond

	s.Schedule(draftTitled("fresh"))
	// A callback left over from an earlier window whose Stop came too late.
	s.fire(0)
	if remote.putCount() != 0 {
		t.Fatalf("stale callback sent %d puts before the window elapsed", remote.putCount())
	}

	if got := waitForPut(t, remote); got.Title != "fresh" {
		t.Fatalf("remote received %q", got.Title)
	}
	if remote.putCount() != 1 {
		t.Fatalf("remote puts = %d, want 1", remote.putCount())
	}
}

func TestCancel_DiscardsPendingSend(t *testing.T) {
	remote := newFakeRemote()
	local := &fakeCache{}
	s := newTestScheduler(remote, local)

	s.Schedule(draftTitled("doomed"))
	s.Cancel()

	time.Sleep(3 * s.Debounce)
	if remote.putCount() != 0 {
		t.Fatalf("cancelled draft reached the remote: %d puts", remote.putCount())
	}
	// The local save already happened; Cancel only stops the remote leg.
	if local.count() != 1 {
		t.Fatalf("local saves = %d, want 1", local.count())
	}
}

func TestCancel_WithoutPendingIsNoop(t *testing.T) {
	remote := newFakeRemote()
	s := newTestScheduler(remote, &fakeCache{})
	s.Cancel()
	s.Cancel()
	if remote.putCount() != 0 {
		t.Fatalf("unexpected puts: %d", remote.putCount())
	}
}

func TestSchedule_AfterCancelWorksAgain(t *testing.T) {
	remote := newFakeRemote()
	s := newTestScheduler(remote, &fakeCache{})

	s.Schedule(draftTitled("dropped"))
	s.Cancel()
	s.Schedule(draftTitled("kept"))

	if got := waitForPut(t, remote); got.Title != "kept" {
		t.Fatalf("remote received %q, want \"kept\"", got.Title)
	}
	if remote.putCount() != 1 {
		t.Fatalf("remote puts = %d, want 1", remote.putCount())
	}
}
