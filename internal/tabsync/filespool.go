package tabsync

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/listkeeper/project/internal/contracts"
	"github.com/listkeeper/project/internal/platform/metrics"
)

// FileBroadcaster is the fallback transport for setups without a broker:
// publishers append one JSON record per event to a shared spool file and
// every tab polls it for growth, the storage-change signal. Subscribers
// start at the current end of the file, so old records are never replayed.
type FileBroadcaster struct {
	Path     string
	TabID    string
	Interval time.Duration
	Now      func() time.Time

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	offset   int64
	stop     chan struct{}
	done     chan struct{}
}

func NewFileBroadcaster(path, tabID string) *FileBroadcaster {
	return &FileBroadcaster{
		Path:     path,
		TabID:    tabID,
		Interval: 250 * time.Millisecond,
		Now:      func() time.Time { return time.Now().UTC() },
		handlers: map[int]Handler{},
	}
}

func (b *FileBroadcaster) Publish(eventType contracts.TabEventType) error {
	event := contracts.TabEvent{
		Type:        eventType,
		SourceTabID: b.TabID,
		Timestamp:   b.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(b.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(payload, '\n')); err != nil {
		return err
	}
	metrics.TabEventsPublished.WithLabelValues(string(eventType)).Inc()
	return nil
}

func (b *FileBroadcaster) Subscribe(handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	if b.stop == nil {
		if info, err := os.Stat(b.Path); err == nil {
			b.offset = info.Size()
		}
		b.stop = make(chan struct{})
		b.done = make(chan struct{})
		go b.poll(b.stop, b.done)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}, nil
}

func (b *FileBroadcaster) poll(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.drain()
		}
	}
}

func (b *FileBroadcaster) drain() {
	b.mu.Lock()
	offset := b.offset
	b.mu.Unlock()

	info, err := os.Stat(b.Path)
	if err != nil {
		return
	}
	if info.Size() < offset {
		// Spool was truncated by another tab; start over from the top.
		offset = 0
	}
	if info.Size() == offset {
		return
	}

	f, err := os.Open(b.Path)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	read := offset
	for scanner.Scan() {
		line := scanner.Bytes()
		read += int64(len(line)) + 1
		var event contracts.TabEvent
		if err := json.Unmarshal(line, &event); err != nil {
			slog.Warn("skipping malformed tab event record", "path", b.Path, "error", err)
			continue
		}
		if event.SourceTabID == b.TabID {
			continue
		}
		metrics.TabEventsReceived.WithLabelValues(string(event.Type)).Inc()
		b.dispatch(event)
	}

	b.mu.Lock()
	b.offset = read
	b.mu.Unlock()
}

func (b *FileBroadcaster) dispatch(event contracts.TabEvent) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}

func (b *FileBroadcaster) Close() error {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.handlers = map[int]Handler{}
	b.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}
