// Package queued is a store-and-forward Sink. Heartbeats are merged into a
// persistent queue and delivered in order by a background flusher, so the
// polling loop never waits on the network.
package queued

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"winwatch/internal/event"
	"winwatch/internal/metrics"
	"winwatch/internal/sink"
	"winwatch/internal/storage"
)

const defaultRetryInterval = 5 * time.Second

// Remote is the collector the flusher delivers to.
type Remote interface {
	CreateBucket(ctx context.Context, stream event.StreamID) error
	Heartbeat(ctx context.Context, stream event.StreamID, e event.Event, pulsetime time.Duration) error
}

type Options struct {
	RetryInterval time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

type Sink struct {
	remote Remote
	queue  storage.Queue
	opts   Options
	log    *slog.Logger

	mu       sync.Mutex
	inFlight int64 // queue id being delivered, 0 when idle
	buckets  map[event.StreamID]bool

	wake chan struct{}
}

func New(remote Remote, queue storage.Queue, opts Options) *Sink {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sink{
		remote:  remote,
		queue:   queue,
		opts:    opts,
		log:     opts.Logger,
		buckets: make(map[event.StreamID]bool),
		wake:    make(chan struct{}, 1),
	}
}

// Heartbeat folds e into the newest queued heartbeat when the merge rule
// allows it, otherwise queues it. It does no network I/O.
func (s *Sink) Heartbeat(ctx context.Context, stream event.StreamID, e event.Event, pulsetime time.Duration) error {
	s.mu.Lock()
	err := s.enqueueLocked(ctx, stream, e, pulsetime)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.signal()
	return nil
}

func (s *Sink) enqueueLocked(ctx context.Context, stream event.StreamID, e event.Event, pulsetime time.Duration) error {
	last, err := s.queue.Last(ctx)
	if err != nil {
		return err
	}
	if last != nil && last.ID != s.inFlight && last.Stream == stream && last.Pulsetime == pulsetime {
		if merged, ok := event.Merge(last.Event, e, pulsetime); ok {
			return s.queue.Update(ctx, last.ID, merged)
		}
	}
	if _, err := s.queue.Push(ctx, storage.Pending{Stream: stream, Event: e, Pulsetime: pulsetime}); err != nil {
		return err
	}
	s.updatePending(ctx)
	return nil
}

func (s *Sink) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued heartbeats until ctx is cancelled. Delivery stops at
// the first unavailable error and resumes after RetryInterval or the next
// Heartbeat, whichever comes first.
func (s *Sink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.RetryInterval)
	defer ticker.Stop()

	for {
		if err := s.Flush(ctx); err != nil && ctx.Err() == nil {
			s.logFlushError(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

func (s *Sink) logFlushError(err error) {
	if errors.Is(err, sink.ErrUnavailable) {
		s.log.Warn("Collector unavailable, will retry", "error", err, "retry_in", s.opts.RetryInterval)
		return
	}
	s.log.Error("Failed to flush heartbeat queue", "error", err, "retry_in", s.opts.RetryInterval)
}

// Flush delivers queued heartbeats oldest first until the queue is empty or
// the collector is unavailable. Rejected heartbeats are dropped.
func (s *Sink) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		p, err := s.queue.Peek(ctx)
		if err == nil && p != nil {
			s.inFlight = p.ID
		}
		s.mu.Unlock()
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}

		err = s.deliver(ctx, p)
		if err != nil && !errors.Is(err, sink.ErrRejected) {
			s.clearInFlight()
			s.opts.Metrics.SinkError()
			return err
		}
		if err != nil {
			s.opts.Metrics.SinkError()
			s.log.Error("Collector rejected heartbeat, dropping it", "id", p.ID, "bucket", p.Stream.BucketID(), "error", err)
		} else {
			s.opts.Metrics.HeartbeatSent()
		}

		s.mu.Lock()
		err = s.queue.Delete(ctx, p.ID)
		s.inFlight = 0
		s.updatePending(ctx)
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

func (s *Sink) deliver(ctx context.Context, p *storage.Pending) error {
	if !s.bucketReady(p.Stream) {
		if err := s.remote.CreateBucket(ctx, p.Stream); err != nil {
			return err
		}
		s.mu.Lock()
		s.buckets[p.Stream] = true
		s.mu.Unlock()
		s.log.Info("Bucket ready", "bucket", p.Stream.BucketID())
	}
	return s.remote.Heartbeat(ctx, p.Stream, p.Event, p.Pulsetime)
}

func (s *Sink) bucketReady(stream event.StreamID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buckets[stream]
}

func (s *Sink) clearInFlight() {
	s.mu.Lock()
	s.inFlight = 0
	s.mu.Unlock()
}

// Pending is the number of heartbeats not yet delivered.
func (s *Sink) Pending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len(ctx)
}

func (s *Sink) updatePending(ctx context.Context) {
	if s.opts.Metrics == nil {
		return
	}
	if n, err := s.queue.Len(ctx); err == nil {
		s.opts.Metrics.QueuePending(n)
	}
}

var _ sink.Sink = (*Sink)(nil)
