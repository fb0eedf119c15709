// Package tabsync fans lifecycle events out to the user's other open tabs.
// Events are pure invalidation signals: receivers re-read authoritative
// state instead of trusting the event body. Delivery is fire-and-forget,
// at-most-once per receiving tab.
package tabsync

import (
	"github.com/listkeeper/project/internal/contracts"
)

type Handler func(contracts.TabEvent)

// Broadcaster is the origin-scoped publish/subscribe channel. Publish stamps
// the event with the local tab id and timestamp; Subscribe never delivers a
// tab's own events back to it.
type Broadcaster interface {
	Publish(eventType contracts.TabEventType) error
	Subscribe(handler Handler) (func(), error)
	Close() error
}

// Subject names the per-user channel on the NATS transport.
func Subject(userID string) string {
	return "lists.tab." + userID
}
