// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package history implements the append-only event log that is the
// orchestrator's (C2) only durable source of truth (spec §3, §4.1). A
// workflow definition is a deterministic function over this history;
// replaying it from event 0 must reconstruct identical in-workflow state.
package history

import (
	"fmt"
	"sync"
	"time"
)

// Kind enumerates every event the orchestrator may append: the set in spec
// §3, plus WorkflowTimedOut, the three ChildWorkflow* kinds, and
// SideEffectRecorded.
type Kind string

const (
	KindWorkflowStarted           Kind = "WorkflowStarted"
	KindWorkflowCompleted         Kind = "WorkflowCompleted"
	KindWorkflowFailed            Kind = "WorkflowFailed"
	KindActivityScheduled         Kind = "ActivityScheduled"
	KindActivityStarted           Kind = "ActivityStarted"
	KindActivityCompleted         Kind = "ActivityCompleted"
	KindActivityFailed            Kind = "ActivityFailed"
	KindActivityTimedOut          Kind = "ActivityTimedOut"
	KindTimerStarted              Kind = "TimerStarted"
	KindTimerFired                Kind = "TimerFired"
	KindSignalReceived            Kind = "SignalReceived"
	KindSearchAttributesUpserted  Kind = "SearchAttributesUpserted"
	KindContinueAsNew             Kind = "ContinueAsNew"
	KindWorkflowTerminated        Kind = "WorkflowTerminated"
	KindWorkflowTimedOut          Kind = "WorkflowTimedOut"
	KindChildWorkflowInitiated    Kind = "ChildWorkflowInitiated"
	KindChildWorkflowCompleted    Kind = "ChildWorkflowCompleted"
	KindChildWorkflowFailed       Kind = "ChildWorkflowFailed"
	KindSideEffectRecorded        Kind = "SideEffectRecorded"
)

// Event is one immutable, ordered entry in an execution's history.
// event_id is monotonically increasing per execution (spec §3 invariant).
type Event struct {
	ID        int64     `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Payload   any       `json:"payload"`
}

// DefaultMaxEvents and DefaultMaxBytes implement the spec §4.1 history
// truncation threshold (50k events or 50MiB); exceeding either by more than
// a single event must fail the run (spec §8 boundary behavior).
const (
	DefaultMaxEvents = 50_000
	DefaultMaxBytes  = 50 * 1024 * 1024
)

// ErrHistoryOverflow is returned by Append when appending would exceed the
// truncation threshold by more than one event.
var ErrHistoryOverflow = fmt.Errorf("history: exceeds truncation threshold")

// History is the append-only event log for one run. Each method takes the
// History's own mutex, so single calls are safe from several goroutines; a
// PeekNextID/Append pair still needs external serialization, which the
// orchestrator provides per run_id via its own per-run mutex (spec §5
// Locking).
type History struct {
	mu         sync.RWMutex
	events     []Event
	nextID     int64
	approxSize int
	maxEvents  int
	maxBytes   int
}

// New creates an empty History using the default truncation thresholds.
func New() *History {
	return &History{maxEvents: DefaultMaxEvents, maxBytes: DefaultMaxBytes}
}

// Append adds kind/payload as the next event, stamped with now and the next
// monotonic event_id. It permits one event past the event-count threshold,
// so a run sitting exactly at the threshold can still complete, fail, or
// issue ContinueAsNew, and refuses any event beyond that.
func (h *History) Append(now time.Time, kind Kind, payload any) (Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.events) > h.maxEvents || h.approxSize >= h.maxBytes {
		return Event{}, ErrHistoryOverflow
	}

	h.nextID++
	ev := Event{ID: h.nextID, Timestamp: now, Kind: kind, Payload: payload}
	h.events = append(h.events, ev)
	h.approxSize += estimateSize(ev)
	return ev, nil
}

// Events returns a snapshot copy of all events recorded so far, in order.
func (h *History) Events() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// PeekNextID returns the event_id the next Append will assign, so a caller
// that needs to embed an event's own ID inside its payload (e.g.
// ActivityScheduledPayload.ScheduledEventID) can compute it beforehand.
// Callers must hold their own external serialization (as internal/workflow's
// Dispatcher does) to ensure no other Append races between this call and
// the matching Append.
func (h *History) PeekNextID() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nextID + 1
}

// Len reports the number of events recorded.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// NearTruncation reports whether the next Append is likely to be the last
// one permitted before ErrHistoryOverflow, so a workflow definition can
// choose to ContinueAsNew proactively (spec §4.1).
func (h *History) NearTruncation() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events) >= h.maxEvents || h.approxSize >= h.maxBytes-4096
}

// LoadFrom rebuilds a History from a previously persisted event slice, used
// when resuming an execution from storage (internal/orchestrator reads rows
// back out of Postgres and replays).
func LoadFrom(events []Event) *History {
	h := New()
	h.events = append(h.events, events...)
	for _, ev := range h.events {
		if ev.ID > h.nextID {
			h.nextID = ev.ID
		}
		h.approxSize += estimateSize(ev)
	}
	return h
}

func estimateSize(ev Event) int {
	// A cheap, allocation-free approximation; exact byte accounting would
	// require marshaling every payload on every append.
	return 64 + len(ev.Kind)
}
