package notify

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
)

// Sentry records events as breadcrumbs on the current hub and captures
// lockouts as messages.
type Sentry struct {
	hub *sentry.Hub
}

// NewSentry uses hub, or the current hub when nil.
func NewSentry(hub *sentry.Hub) *Sentry {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &Sentry{hub: hub}
}

func (s *Sentry) Notify(ctx context.Context, event Event) {
	hub := s.hub
	if h := sentry.GetHubFromContext(ctx); h != nil {
		hub = h
	}

	data := map[string]interface{}{"subject": event.Subject, "count": event.Count}
	for k, v := range event.Fields {
		data[k] = v
	}
	hub.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  "security",
		Message:   string(event.Type),
		Level:     sentry.LevelWarning,
		Data:      data,
		Timestamp: event.OccurredAt,
	}, nil)

	if event.Type == EventUserLockedOut {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("event", string(event.Type))
			scope.SetUser(sentry.User{ID: event.Subject})
			hub.CaptureMessage(fmt.Sprintf("user locked out after %d failed attempts", event.Count))
		})
	}
}

var _ Notifier = (*Sentry)(nil)
