// Package heartbeat drives the polling cycle: sample the focused window,
// turn it into a labeled event, hand it to a sink, sleep, repeat.
//
// A tick never ends the loop. Probe failures, empty samples and sink errors
// are logged and the next tick runs on schedule.
package heartbeat

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"winwatch/internal/collector"
	"winwatch/internal/event"
	"winwatch/internal/metrics"
	"winwatch/internal/sink"
)

type Outcome string

const (
	OutcomeHeartbeat  Outcome = "heartbeat"
	OutcomeNoWindow   Outcome = "no_window"
	OutcomeProbeError Outcome = "probe_error"
	OutcomeSinkError  Outcome = "sink_error"
)

// TickResult is what one tick did. Event is set when a heartbeat was built,
// even if the sink then failed.
type TickResult struct {
	Outcome Outcome
	Event   *event.Event
	Err     error
}

type Options struct {
	Stream       event.StreamID
	PollInterval time.Duration
	ExcludeTitle bool
	Logger       *slog.Logger
	Metrics      *metrics.Metrics

	// Now and Sleep default to the wall clock and an interruptible timer.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

type Loop struct {
	probe     collector.Probe
	sink      sink.Sink
	opts      Options
	pulsetime time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	status Status
}

func New(probe collector.Probe, s sink.Sink, opts Options) *Loop {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loop{
		probe:     probe,
		sink:      s,
		opts:      opts,
		pulsetime: event.Pulsetime(opts.PollInterval),
		log:       opts.Logger,
	}
}

// Pulsetime is the merge tolerance sent with every heartbeat.
func (l *Loop) Pulsetime() time.Duration {
	return l.pulsetime
}

// Run polls until ctx is cancelled and then returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("Running watcher",
		"poll_time", l.opts.PollInterval.Seconds(),
		"pulsetime", l.pulsetime.Seconds(),
		"bucket", l.opts.Stream.BucketID(),
		"exclude_title", l.opts.ExcludeTitle,
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Tick(ctx)
		if err := l.opts.Sleep(ctx, l.opts.PollInterval); err != nil {
			return err
		}
	}
}

// Tick takes one sample and submits at most one heartbeat.
func (l *Loop) Tick(ctx context.Context) TickResult {
	res := l.tick(ctx)
	l.opts.Metrics.Tick(string(res.Outcome))
	l.record(res)
	return res
}

func (l *Loop) tick(ctx context.Context) TickResult {
	obs, err := l.probe.Sample()
	now := l.opts.Now()

	switch {
	case err != nil:
		l.log.Error("Failed to get active window", "error", err)
		return TickResult{Outcome: OutcomeProbeError, Err: err}

	case obs == nil:
		l.log.Debug("Unable to fetch window, trying again on next poll")
		return TickResult{Outcome: OutcomeNoWindow}

	default:
		ev := event.New(*obs, now, l.opts.ExcludeTitle)
		l.log.Debug("Current window",
			"app", obs.AppName,
			"title", event.Truncate(obs.Title, 80),
		)
		if err := l.sink.Heartbeat(ctx, l.opts.Stream, ev, l.pulsetime); err != nil {
			l.opts.Metrics.SinkError()
			l.log.Warn("Failed to submit heartbeat", "error", err)
			return TickResult{Outcome: OutcomeSinkError, Event: &ev, Err: err}
		}
		return TickResult{Outcome: OutcomeHeartbeat, Event: &ev}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
