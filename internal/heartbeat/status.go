package heartbeat

import "time"

// Status is a point-in-time view of the loop for the status socket.
type Status struct {
	Ticks       int64     `json:"ticks"`
	Heartbeats  int64     `json:"heartbeats"`
	NoWindow    int64     `json:"no_window"`
	ProbeErrors int64     `json:"probe_errors"`
	SinkErrors  int64     `json:"sink_errors"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	LastTick    time.Time `json:"last_tick,omitempty"`
	LastLabels  []string  `json:"last_labels,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

func (l *Loop) record(res TickResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &l.status
	s.Ticks++
	s.LastOutcome = res.Outcome
	s.LastTick = l.opts.Now().UTC()
	switch res.Outcome {
	case OutcomeHeartbeat:
		s.Heartbeats++
	case OutcomeNoWindow:
		s.NoWindow++
	case OutcomeProbeError:
		s.ProbeErrors++
	case OutcomeSinkError:
		s.SinkErrors++
	}
	if res.Event != nil {
		s.LastLabels = append([]string(nil), res.Event.Labels...)
	}
	if res.Err != nil {
		s.LastError = res.Err.Error()
	}
}

func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.status
	s.LastLabels = append([]string(nil), l.status.LastLabels...)
	return s
}
