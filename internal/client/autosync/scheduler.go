// Package autosync mirrors the in-memory draft to the server's autosave
// slot: synchronously to the local cache on every change, remotely after a
// debounce window that coalesces intermediate drafts.
package autosync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listkeeper/project/internal/contracts"
)

const DefaultDebounce = 1500 * time.Millisecond

// LocalCache is the synchronous persistence seam; local durability must
// never lag behind in-memory state.
type LocalCache interface {
	SaveDraft(draft contracts.DraftPayload) error
}

type schedulerState int

const (
	stateIdle schedulerState = iota
	statePending
	stateSending
)

// Scheduler is a coalescing debounced writer. Only the most recent pending
// draft is ever sent; Cancel discards a pending timer but never an
// in-flight send — the remote store's last-write-wins semantics are the
// backstop for late-landing requests.
type Scheduler struct {
	Remote   RemoteStore
	Local    LocalCache
	Debounce time.Duration
	Timeout  time.Duration

	mu      sync.Mutex
	state   schedulerState
	gen     uint64
	pending *contracts.DraftPayload
	timer   *time.Timer
}

func NewScheduler(remote RemoteStore, local LocalCache) *Scheduler {
	return &Scheduler{
		Remote:   remote,
		Local:    local,
		Debounce: DefaultDebounce,
		Timeout:  10 * time.Second,
	}
}

// Schedule records draft as the latest state, persists it locally right
// away, and (re)arms the debounce timer. Drafts scheduled within one window
// coalesce; exactly one remote put fires, carrying the last of them.
func (s *Scheduler) Schedule(draft contracts.DraftPayload) {
	if s.Local != nil {
		if err := s.Local.SaveDraft(draft); err != nil {
			slog.Warn("local draft persist failed", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &draft
	if s.timer != nil {
		s.timer.Stop()
	}
	// Stop can lose the race against a callback that already fired; the
	// generation check in fire turns that stale callback into a no-op so
	// the new window runs its full length.
	s.gen++
	gen := s.gen
	s.state = statePending
	s.timer = time.AfterFunc(s.Debounce, func() { s.fire(gen) })
}

// Cancel discards the pending timer without sending. It has no effect on a
// send already in flight.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != statePending {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.state = stateIdle
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != statePending || s.pending == nil {
		s.mu.Unlock()
		return
	}
	draft := *s.pending
	s.pending = nil
	s.timer = nil
	s.state = stateSending
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	if _, err := s.Remote.Put(ctx, draft); err != nil {
		// Not retried here: the local cache stays the durable fallback and
		// the next Schedule call tries again.
		slog.Warn("remote autosave failed", "error", err)
	}

	s.mu.Lock()
	if s.state == stateSending {
		s.state = stateIdle
	}
	s.mu.Unlock()
}
