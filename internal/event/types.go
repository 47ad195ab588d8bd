package event

import (
	"fmt"
	"strings"
	"time"
)

// EventTypeCurrentWindow is the bucket type for focused-window heartbeats.
const EventTypeCurrentWindow = "currentwindow"

const (
	labelTitle    = "title:"
	labelAppName  = "appname:"
	titleExcluded = labelTitle + "excluded"
)

// Observation is what a probe reports about the focused window.
type Observation struct {
	AppName string `json:"appname"`
	Title   string `json:"title"`
}

// Event is a labeled heartbeat. Duration is only ever set by a merge.
type Event struct {
	Labels    []string      `json:"labels"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// StreamID identifies one append-only sequence of events on the collector.
type StreamID struct {
	Client   string `json:"client"`
	Hostname string `json:"hostname"`
	Type     string `json:"type"`
}

// NewStreamID returns the currentwindow stream for a client on a host.
func NewStreamID(client, hostname string) StreamID {
	return StreamID{Client: client, Hostname: hostname, Type: EventTypeCurrentWindow}
}

// BucketID is the collector-side name of the stream.
func (s StreamID) BucketID() string {
	return fmt.Sprintf("%s_%s", s.Client, s.Hostname)
}

// Labels derives the label list for an observation. The title label always
// comes first.
func Labels(o Observation, excludeTitle bool) []string {
	title := labelTitle + o.Title
	if excludeTitle {
		title = titleExcluded
	}
	return []string{title, labelAppName + o.AppName}
}

// New builds a zero-duration event for an observation at ts (stored as UTC).
func New(o Observation, ts time.Time, excludeTitle bool) Event {
	return Event{
		Labels:    Labels(o, excludeTitle),
		Timestamp: ts.UTC(),
	}
}

// End is the instant the event's interval stops.
func (e Event) End() time.Time {
	return e.Timestamp.Add(e.Duration)
}

// Data splits "key:value" labels into a map. Labels without a colon map to
// an empty value.
func (e Event) Data() map[string]string {
	data := make(map[string]string, len(e.Labels))
	for _, l := range e.Labels {
		k, v, _ := strings.Cut(l, ":")
		data[k] = v
	}
	return data
}

// Pulsetime is the merge tolerance for a given poll interval: one second
// more than the interval, which absorbs sleep overshoot and probe latency.
func Pulsetime(pollInterval time.Duration) time.Duration {
	return pollInterval + time.Second
}

// Truncate shortens s to maxLen runes for log output.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
