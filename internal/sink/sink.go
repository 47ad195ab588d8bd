package sink

import (
	"context"
	"errors"
	"time"

	"winwatch/internal/event"
)

var (
	// ErrUnavailable means the collector could not be reached. Retrying
	// later may succeed.
	ErrUnavailable = errors.New("collector unavailable")
	// ErrRejected means the collector refused the request. Retrying the same
	// request will not help.
	ErrRejected = errors.New("collector rejected request")
)

// Sink accepts heartbeats for a stream and merges each one against the
// stream's last stored event. Callers issue Heartbeat serially.
type Sink interface {
	Heartbeat(ctx context.Context, stream event.StreamID, e event.Event, pulsetime time.Duration) error
}
