package notify

import (
	"context"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventUserLockedOut      EventType = "user_locked_out"
	EventSessionsRevoked    EventType = "sessions_revoked"
	EventAllSessionsRevoked EventType = "all_sessions_revoked"
)

// Event is a fire-and-forget notification about a security relevant change.
type Event struct {
	Type       EventType
	Subject    string
	Count      int
	OccurredAt time.Time
	Fields     map[string]string
}

// Notifier delivers events. Implementations must not block the caller on
// delivery failures and never return an error.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Notify(context.Context, Event) {}

// Multi fans out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}

var (
	_ Notifier = Noop{}
	_ Notifier = Multi(nil)
)
