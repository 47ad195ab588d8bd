package storage

import (
	"context"
	"time"

	"winwatch/internal/event"
)

// Pending is a heartbeat waiting to be delivered.
type Pending struct {
	ID        int64
	Stream    event.StreamID
	Event     event.Event
	Pulsetime time.Duration
}

// Queue is a FIFO of undelivered heartbeats. Rows are deleted once the
// collector accepts them.
type Queue interface {
	Init(ctx context.Context) error
	Push(ctx context.Context, p Pending) (int64, error)
	// Last returns the newest row, or nil when the queue is empty.
	Last(ctx context.Context) (*Pending, error)
	// Peek returns the oldest row, or nil when the queue is empty.
	Peek(ctx context.Context) (*Pending, error)
	// Update replaces the event stored under id.
	Update(ctx context.Context, id int64, e event.Event) error
	Delete(ctx context.Context, id int64) error
	Len(ctx context.Context) (int, error)
	Close() error
}
