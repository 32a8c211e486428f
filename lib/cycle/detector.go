// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package cycle

// EventKind classifies the result of a Detector check.
type EventKind int

const (
	// EventNone means the reported state did not change.
	EventNone EventKind = iota

	// EventDetected means a cycle appeared, or the reported cycle was
	// replaced by a different one.
	EventDetected

	// EventCleared means the previously reported cycle is gone and the
	// graph is acyclic.
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventDetected:
		return "detected"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is the outcome of one Check. Cycle is set for EventDetected.
type Event struct {
	Kind  EventKind
	Cycle Cycle
}

// Detector tracks the reported cycle across checks. The zero value is
// ready to use.
type Detector struct {
	current  Cycle
	reported bool
}

// Check examines the control-link graph after a mutation. While the
// reported cycle is still intact it stays reported, even if other
// cycles appear, so unrelated edits do not produce new events.
func (d *Detector) Check(edges []Edge) Event {
	if d.reported && intact(d.current, edges) {
		return Event{Kind: EventNone}
	}

	cycle, found := Find(edges)
	switch {
	case found:
		if d.reported && d.current.Equal(cycle) {
			return Event{Kind: EventNone}
		}
		d.current = cycle
		d.reported = true
		return Event{Kind: EventDetected, Cycle: cycle}
	case d.reported:
		d.current = Cycle{}
		d.reported = false
		return Event{Kind: EventCleared}
	default:
		return Event{Kind: EventNone}
	}
}

// Current returns the reported cycle, if any.
func (d *Detector) Current() (Cycle, bool) {
	return d.current, d.reported
}

// Reset forgets the reported cycle without emitting an event.
func (d *Detector) Reset() {
	d.current = Cycle{}
	d.reported = false
}

// intact reports whether every link of c is still present with the
// same endpoints.
func intact(c Cycle, edges []Edge) bool {
	present := make(map[Edge]bool, len(edges))
	for _, edge := range edges {
		present[edge] = true
	}
	for i, link := range c.Links {
		edge := Edge{Link: link, From: c.Objects[i], To: c.Objects[(i+1)%len(c.Objects)]}
		if !present[edge] {
			return false
		}
	}
	return len(c.Links) > 0
}
