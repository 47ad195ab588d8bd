package heartbeat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winwatch/internal/event"
	"winwatch/internal/metrics"
	"winwatch/internal/sink/memory"
)

var (
	stream = event.NewStreamID("aw-watcher-window", "testhost")
	t0     = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
)

type sample struct {
	obs *event.Observation
	err error
}

// scriptProbe replays samples in order and repeats the last one.
type scriptProbe struct {
	mu      sync.Mutex
	samples []sample
	calls   int
}

func (p *scriptProbe) Sample() (*event.Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.samples) {
		i = len(p.samples) - 1
	}
	p.calls++
	return p.samples[i].obs, p.samples[i].err
}

func (p *scriptProbe) Close() error { return nil }

// fakeClock advances by the requested duration on every Sleep and cancels
// the run after a fixed number of sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if len(c.sleeps) >= c.limit {
		c.cancel()
	}
	return ctx.Err()
}

type failingSink struct{ err error }

func (s failingSink) Heartbeat(context.Context, event.StreamID, event.Event, time.Duration) error {
	return s.err
}

func obs(app, title string) sample {
	return sample{obs: &event.Observation{AppName: app, Title: title}}
}

func runTicks(t *testing.T, probe *scriptProbe, ticks int, opts Options, s *memory.Sink) *fakeClock {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &fakeClock{now: t0, limit: ticks, cancel: cancel}
	opts.Stream = stream
	opts.Now = clock.Now
	opts.Sleep = clock.Sleep
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	}

	err := New(probe, s, opts).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	return clock
}

func TestPulsetimeIsPollPlusOneSecond(t *testing.T) {
	l := New(&scriptProbe{}, memory.New(), Options{PollInterval: 3 * time.Second})
	assert.Equal(t, 4*time.Second, l.Pulsetime())
}

func TestEndToEndEditorThenBrowser(t *testing.T) {
	probe := &scriptProbe{samples: []sample{
		obs("Editor", "a.py"),
		obs("Editor", "a.py"),
		obs("Editor", "a.py"),
		obs("Browser", "docs"),
	}}
	s := memory.New()

	runTicks(t, probe, 4, Options{}, s)

	events := s.Events(stream)
	require.Len(t, events, 2)

	assert.ElementsMatch(t, []string{"appname:Editor", "title:a.py"}, events[0].Labels)
	assert.True(t, events[0].Timestamp.Equal(t0))
	assert.Equal(t, 2*time.Second, events[0].Duration)

	assert.ElementsMatch(t, []string{"appname:Browser", "title:docs"}, events[1].Labels)
	assert.True(t, events[1].Timestamp.Equal(t0.Add(3*time.Second)))
	assert.Zero(t, events[1].Duration)
}

func TestProbeErrorIsolated(t *testing.T) {
	probe := &scriptProbe{samples: []sample{
		obs("Editor", "a.py"),
		{err: errors.New("BadWindow")},
		obs("Editor", "a.py"),
	}}
	s := memory.New()

	clock := runTicks(t, probe, 3, Options{}, s)

	assert.Equal(t, 3, probe.calls)
	// Every path sleeps the full interval, including the failed tick.
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clock.sleeps)

	decisions := s.Decisions()
	require.Len(t, decisions, 2)
	assert.True(t, decisions[0].Event.Timestamp.Equal(t0))
	// Tick 3 is 2s after tick 1, within the 2s pulsetime.
	assert.True(t, decisions[1].Merged)
}

func TestMissedTicksSplitInterval(t *testing.T) {
	probe := &scriptProbe{samples: []sample{
		obs("Editor", "a.py"),
		{err: errors.New("BadWindow")},
		{err: errors.New("BadWindow")},
		obs("Editor", "a.py"),
	}}
	s := memory.New()

	runTicks(t, probe, 4, Options{}, s)

	events := s.Events(stream)
	require.Len(t, events, 2)
	assert.True(t, events[1].Timestamp.Equal(t0.Add(3*time.Second)))
}

func TestNoWindowEmitsNothing(t *testing.T) {
	probe := &scriptProbe{samples: []sample{{}}}
	s := memory.New()

	runTicks(t, probe, 5, Options{}, s)

	assert.Equal(t, 5, probe.calls)
	assert.Empty(t, s.Decisions())
}

func TestExcludeTitle(t *testing.T) {
	probe := &scriptProbe{samples: []sample{
		obs("Browser", "bank statement"),
		obs("Browser", "inbox"),
	}}
	s := memory.New()

	runTicks(t, probe, 2, Options{ExcludeTitle: true}, s)

	events := s.Events(stream)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"title:excluded", "appname:Browser"}, events[0].Labels)
	assert.Equal(t, time.Second, events[0].Duration)
}

func TestTickOutcomes(t *testing.T) {
	probeErr := errors.New("no display")
	sinkErr := errors.New("connection refused")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)

	probe := &scriptProbe{samples: []sample{obs("Editor", "a.py"), {}, {err: probeErr}, obs("Editor", "a.py")}}
	s := memory.New()
	clock := &fakeClock{now: t0}
	l := New(probe, s, Options{Stream: stream, PollInterval: time.Second, Now: clock.Now, Metrics: m})
	ctx := context.Background()

	res := l.Tick(ctx)
	assert.Equal(t, OutcomeHeartbeat, res.Outcome)
	require.NotNil(t, res.Event)
	assert.NoError(t, res.Err)

	res = l.Tick(ctx)
	assert.Equal(t, OutcomeNoWindow, res.Outcome)
	assert.Nil(t, res.Event)

	res = l.Tick(ctx)
	assert.Equal(t, OutcomeProbeError, res.Outcome)
	assert.ErrorIs(t, res.Err, probeErr)
	assert.Nil(t, res.Event)

	l.sink = failingSink{err: sinkErr}
	res = l.Tick(ctx)
	assert.Equal(t, OutcomeSinkError, res.Outcome)
	assert.ErrorIs(t, res.Err, sinkErr)
	require.NotNil(t, res.Event)

	st := l.Status()
	assert.Equal(t, int64(4), st.Ticks)
	assert.Equal(t, int64(1), st.Heartbeats)
	assert.Equal(t, int64(1), st.NoWindow)
	assert.Equal(t, int64(1), st.ProbeErrors)
	assert.Equal(t, int64(1), st.SinkErrors)
	assert.Equal(t, OutcomeSinkError, st.LastOutcome)
	assert.Equal(t, []string{"title:a.py", "appname:Editor"}, st.LastLabels)
	assert.Equal(t, "connection refused", st.LastError)

	expected := `
# HELP winwatch_ticks_total Poll ticks by outcome.
# TYPE winwatch_ticks_total counter
winwatch_ticks_total{outcome="heartbeat"} 1
winwatch_ticks_total{outcome="no_window"} 1
winwatch_ticks_total{outcome="probe_error"} 1
winwatch_ticks_total{outcome="sink_error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "winwatch_ticks_total"))
}

func TestSinkErrorDoesNotStopLoop(t *testing.T) {
	probe := &scriptProbe{samples: []sample{obs("Editor", "a.py")}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &fakeClock{now: t0, limit: 3, cancel: cancel}

	l := New(probe, failingSink{err: errors.New("down")}, Options{
		Stream: stream, PollInterval: time.Second, Now: clock.Now, Sleep: clock.Sleep,
	})

	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.Equal(t, 3, probe.calls)
	assert.Equal(t, int64(3), l.Status().SinkErrors)
}

func TestRealSleepIsInterruptible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunReturnsWhenAlreadyCancelled(t *testing.T) {
	probe := &scriptProbe{samples: []sample{obs("Editor", "a.py")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(probe, memory.New(), Options{Stream: stream, PollInterval: time.Second}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, probe.calls)
}
