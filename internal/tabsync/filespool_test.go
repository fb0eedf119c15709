package tabsync

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/listkeeper/project/internal/contracts"
)

func newSpoolPair(t *testing.T) (*FileBroadcaster, *FileBroadcaster) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tab-events.jsonl")
	a := NewFileBroadcaster(path, "tab-a")
	b := NewFileBroadcaster(path, "tab-b")
	a.Interval = 10 * time.Millisecond
	b.Interval = 10 * time.Millisecond
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

type eventRecorder struct {
	mu     sync.Mutex
	events []contracts.TabEvent
	seen   chan contracts.TabEvent
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{seen: make(chan contracts.TabEvent, 16)}
}

func (r *eventRecorder) handle(event contracts.TabEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.seen <- event
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func waitForEvent(t *testing.T, r *eventRecorder) contracts.TabEvent {
	t.Helper()
	select {
	case event := <-r.seen:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a tab event")
		return contracts.TabEvent{}
	}
}

func TestFileBroadcaster_DeliversAcrossTabs(t *testing.T) {
	a, b := newSpoolPair(t)
	recorder := newEventRecorder()

	unsubscribe, err := b.Subscribe(recorder.handle)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer unsubscribe()

	if err := a.Publish(contracts.TabListActivated); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	event := waitForEvent(t, recorder)
	if event.Type != contracts.TabListActivated || event.SourceTabID != "tab-a" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestFileBroadcaster_FiltersOwnEvents(t *testing.T) {
	a, b := newSpoolPair(t)
	own := newEventRecorder()
	other := newEventRecorder()

	unsubA, err := a.Subscribe(own.handle)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer unsubA()
	unsubB, err := b.Subscribe(other.handle)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer unsubB()

	if err := a.Publish(contracts.TabListReused); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	waitForEvent(t, other)
	// Let the publisher's own poller run a few times before asserting.
	time.Sleep(5 * a.Interval)
	if own.count() != 0 {
		t.Fatalf("publisher received its own event %d times", own.count())
	}
}

func TestFileBroadcaster_SubscriberStartsAtEndOfSpool(t *testing.T) {
	a, b := newSpoolPair(t)
	recorder := newEventRecorder()

	// Published before anyone subscribes; must never be replayed.
	if err := a.Publish(contracts.TabListDeleted); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	unsubscribe, err := b.Subscribe(recorder.handle)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer unsubscribe()

	if err := a.Publish(contracts.TabEditingStarted); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	event := waitForEvent(t, recorder)
	if event.Type != contracts.TabEditingStarted {
		t.Fatalf("replayed an old event: %+v", event)
	}
	time.Sleep(5 * b.Interval)
	if recorder.count() != 1 {
		t.Fatalf("events received = %d, want 1", recorder.count())
	}
}

func TestFileBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	a, b := newSpoolPair(t)
	recorder := newEventRecorder()

	unsubscribe, err := b.Subscribe(recorder.handle)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	unsubscribe()

	if err := a.Publish(contracts.TabEditingFinished); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	time.Sleep(5 * b.Interval)
	if recorder.count() != 0 {
		t.Fatalf("events after unsubscribe = %d, want 0", recorder.count())
	}
}

func TestFileBroadcaster_SkipsMalformedRecords(t *testing.T) {
	a, b := newSpoolPair(t)
	recorder := newEventRecorder()

	unsubscribe, err := b.Subscribe(recorder.handle)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer unsubscribe()

	f, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	if _, err := f.WriteString("{garbage\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	if err := a.Publish(contracts.TabListActivated); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	event := waitForEvent(t, recorder)
	if event.Type != contracts.TabListActivated {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestSubject_PerUser(t *testing.T) {
	if got := Subject("user-1"); got != "lists.tab.user-1" {
		t.Fatalf("Subject = %q", got)
	}
	if Subject("user-1") == Subject("user-2") {
		t.Fatal("subjects must be user-scoped")
	}
}
