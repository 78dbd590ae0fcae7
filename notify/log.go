package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Log writes every event to a zerolog logger at warn level.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, event Event) {
	e := l.logger.Warn().
		Str("event", string(event.Type)).
		Str("subject", event.Subject).
		Time("occurred_at", event.OccurredAt)
	if event.Count > 0 {
		e = e.Int("count", event.Count)
	}
	for k, v := range event.Fields {
		e = e.Str(k, v)
	}
	e.Msg("security event")
}

var _ Notifier = (*Log)(nil)
