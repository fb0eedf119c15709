package tabsync

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/listkeeper/project/internal/contracts"
	"github.com/listkeeper/project/internal/platform/metrics"
)

// NATSBroadcaster is the preferred transport: one core NATS subject per
// user. Core pub/sub matches the contract exactly — no retention, no
// redelivery, a suspended tab simply misses the signal.
type NATSBroadcaster struct {
	Conn    *nats.Conn
	Subject string
	TabID   string
	Now     func() time.Time
}

func NewNATSBroadcaster(conn *nats.Conn, userID, tabID string) *NATSBroadcaster {
	return &NATSBroadcaster{
		Conn:    conn,
		Subject: Subject(userID),
		TabID:   tabID,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

func (b *NATSBroadcaster) Publish(eventType contracts.TabEventType) error {
	event := contracts.TabEvent{
		Type:        eventType,
		SourceTabID: b.TabID,
		Timestamp:   b.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := b.Conn.Publish(b.Subject, payload); err != nil {
		return err
	}
	metrics.TabEventsPublished.WithLabelValues(string(eventType)).Inc()
	return nil
}

func (b *NATSBroadcaster) Subscribe(handler Handler) (func(), error) {
	sub, err := b.Conn.Subscribe(b.Subject, func(msg *nats.Msg) {
		var event contracts.TabEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		if event.SourceTabID == b.TabID {
			return
		}
		metrics.TabEventsReceived.WithLabelValues(string(event.Type)).Inc()
		handler(event)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *NATSBroadcaster) Close() error {
	return nil
}
