package event

import "time"

// SameLabels reports whether a and b hold the same labels as sets.
func SameLabels(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, l := range a {
		set[l] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, l := range b {
		if _, ok := set[l]; !ok {
			return false
		}
		other[l] = struct{}{}
	}
	return len(set) == len(other)
}

// Merge applies the heartbeat rule. If next carries the same labels as last
// and starts no later than pulsetime after last ends, last is returned
// extended to cover next and ok is true. Otherwise ok is false and next
// should be appended as a new event.
//
// The merged interval never shrinks, so a late or out-of-order heartbeat that
// lands inside last leaves it unchanged.
func Merge(last, next Event, pulsetime time.Duration) (merged Event, ok bool) {
	if !SameLabels(last.Labels, next.Labels) {
		return Event{}, false
	}
	if next.Timestamp.Sub(last.End()) > pulsetime {
		return Event{}, false
	}
	merged = last
	merged.Labels = append([]string(nil), last.Labels...)
	if d := next.End().Sub(last.Timestamp); d > merged.Duration {
		merged.Duration = d
	}
	return merged, true
}
