package booking

import "sort"

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// transitions is the full transition table. A booking never returns to
// pending, and a cancelled or failed booking never changes again.
// Cancellation is the one transition allowed out of confirmed.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusFailed},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {},
	StatusFailed:    {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether moving from s to target is allowed.
func (s Status) CanTransition(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// SourcesFor returns every status from which target is reachable. The
// repository uses this set as the predicate of its conditional updates, so
// the table here is the single place transitions are defined.
func SourcesFor(target Status) []string {
	var sources []string
	for from, allowed := range transitions {
		for _, t := range allowed {
			if t == target {
				sources = append(sources, string(from))
			}
		}
	}
	sort.Strings(sources)
	return sources
}
