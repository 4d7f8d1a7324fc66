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

package workflow

import (
	"fmt"
	"sync"
	"time"

	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/history"
	"github.com/kpernyer/heysh-workflow/internal/payload"
)

// DecisionSink receives every newly-scheduled (i.e. not replayed) decision
// event as the workflow goroutine emits it, so the orchestrator can push the
// corresponding work item onto the router, start a real timer, etc. It must
// not block.
type DecisionSink func(ev history.Event)

// Dispatcher drives one workflow run. It is grounded on the teacher's
// decisionsHelper/decisionStateMachine pair
// (internal_decision_state_machine.go): every outstanding "decision" has an
// identity and a lifecycle from issued to resolved. Unlike the teacher, which
// re-invokes the workflow function from scratch on every decision task and
// replays via a cooperative coroutine scheduler, this Dispatcher keeps the
// workflow function running in one long-lived goroutine across the run's
// lifetime, fast-forwarding it past already-recorded decisions on resume
// (see replayNext) and only blocking real goroutine execution at the live
// frontier. See DESIGN.md for why this substitution is in-bounds.
type Dispatcher struct {
	mu sync.Mutex

	hist  *history.History
	clock Clock
	sink  DecisionSink

	// recorded/cursor implement the replay fast-forward: recorded is the
	// full event snapshot as of dispatcher construction, cursor is the next
	// unconsumed index into it. Once cursor reaches len(recorded), every
	// subsequent decision is genuinely new (the "live frontier").
	recorded []history.Event
	cursor   int

	// resultBuf holds resolution events (ActivityCompleted/Failed/TimedOut,
	// TimerFired, ChildWorkflow*) keyed by the scheduledEventID they
	// resolve, whether discovered during the initial replay scan or
	// delivered live via Resolve. waiters holds the channel a blocked
	// Future.Get is waiting on, keyed the same way; whichever of
	// resultBuf/waiters the resolution reaches first wins the race, the
	// other direction is a direct handoff.
	resultBuf map[int64]history.Event
	waiters   map[int64]chan history.Event

	// signalBuf retains each buffered signal's originating event ID
	// alongside its payload, so an any-of wait that straddles a signal and
	// another source (awaitJoin) can order them by history rather than by
	// which buffer happened to be non-empty first.
	signalBuf     map[string][]bufferedSignal
	signalWaiters map[string][]chan struct{}

	// pendingJoins holds the any-of waits currently parked at the live
	// frontier (awaitJoin found nothing already resolved). Resolve and
	// Signal both consult it before falling back to resultBuf/signalBuf, so
	// whichever of them reaches the lock first for one of a join's sources
	// is recorded as that join's outcome exactly once - see awaitJoin.
	pendingJoins []*pendingJoin

	searchAttrs map[string]any

	currentTime time.Time

	done      chan struct{}
	result    payload.Payload
	resultErr error
	doneOnce  sync.Once

	continuedAsNew *history.ContinueAsNewPayload
}

// Clock abstracts wall-clock reads so tests can control time without
// sleeping; production wiring uses facebookgo/clock.
type Clock interface {
	Now() time.Time
}

// bufferedSignal is one signalBuf entry: the payload plus the event ID of
// the SignalReceived event it came from, needed to order it against other
// sources in an any-of wait.
type bufferedSignal struct {
	eventID int64
	payload payload.Payload
}

// joinSource names one branch of an any-of wait passed to awaitJoin: either
// a signal channel (signalName set) or a scheduled event such as a timer,
// activity, or child workflow (scheduledEventID set).
type joinSource struct {
	signalName       string
	scheduledEventID int64
}

// joinResolution is what awaitJoin returns: which source fired, and its
// resolution - a signal payload or a resolution event, never both.
type joinResolution struct {
	sourceIndex int
	isSignal    bool
	sigPayload  payload.Payload
	ev          history.Event
}

// pendingJoin is a live-frontier any-of wait parked in d.pendingJoins: none
// of its sources had resolved yet when awaitJoin was called, so Resolve and
// Signal deliver to it directly instead of buffering.
type pendingJoin struct {
	sources []joinSource
	ch      chan joinResolution
}

// NewDispatcher constructs a Dispatcher over an execution's full recorded
// history (empty for a brand-new run) and starts def running in its own
// goroutine. sink is invoked for every decision newly appended (never for
// ones fast-forwarded from recorded).
func NewDispatcher(h *history.History, clk Clock, sink DecisionSink, def Definition, input payload.Payload) *Dispatcher {
	d := &Dispatcher{
		hist:          h,
		clock:         clk,
		sink:          sink,
		recorded:      h.Events(),
		resultBuf:     make(map[int64]history.Event),
		waiters:       make(map[int64]chan history.Event),
		signalBuf:     make(map[string][]bufferedSignal),
		signalWaiters: make(map[string][]chan struct{}),
		searchAttrs:   make(map[string]any),
		done:          make(chan struct{}),
		currentTime:   clk.Now(),
	}
	d.replayScan()

	go func() {
		defer d.recoverPanic()
		result, err := def(newContext(d), input)
		d.finish(result, err)
	}()

	return d
}

// replayScan walks every already-recorded event once up front, before the
// workflow goroutine starts, bucketing resolution-kind events into
// resultBuf and signals into signalBuf, and advancing currentTime to the
// timestamp of the last recorded event (so Now() picks up where the prior
// life of this run left off).
func (d *Dispatcher) replayScan() {
	for _, ev := range d.recorded {
		d.currentTime = ev.Timestamp
		switch ev.Kind {
		case history.KindActivityCompleted:
			p := ev.Payload.(history.ActivityCompletedPayload)
			d.resultBuf[p.ScheduledEventID] = ev
		case history.KindActivityFailed:
			p := ev.Payload.(history.ActivityFailedPayload)
			d.resultBuf[p.ScheduledEventID] = ev
		case history.KindActivityTimedOut:
			p := ev.Payload.(history.ActivityTimedOutPayload)
			d.resultBuf[p.ScheduledEventID] = ev
		case history.KindTimerFired:
			// TimerFired is matched to its TimerStarted event by event ID
			// of the TimerStarted event, stored as its TimerID by NewTimer.
			p := ev.Payload.(history.TimerFiredPayload)
			id := timerIDToEventID(p.TimerID)
			d.resultBuf[id] = ev
		case history.KindSignalReceived:
			p := ev.Payload.(history.SignalReceivedPayload)
			d.signalBuf[p.SignalName] = append(d.signalBuf[p.SignalName], bufferedSignal{eventID: ev.ID, payload: p.Payload})
		case history.KindSearchAttributesUpserted:
			p := ev.Payload.(history.SearchAttributesUpsertedPayload)
			for k, v := range p.Attributes {
				d.searchAttrs[k] = v
			}
		case history.KindSideEffectRecorded:
			// consumed positionally via replayNext + cursor, not resultBuf.
		}
	}
}

func timerIDToEventID(timerID string) int64 {
	var id int64
	fmt.Sscanf(timerID, "%d", &id)
	return id
}

// replayNext returns the next recorded decision event (one workflow code
// itself produces) and true if the cursor has not yet reached the live
// frontier, else the zero Event and false. Recorded events of other kinds
// (WorkflowStarted, resolutions, signals) are stepped over; replayScan has
// already buffered the ones a workflow waits on.
func (d *Dispatcher) replayNext() (history.Event, bool) {
	for d.cursor < len(d.recorded) {
		ev := d.recorded[d.cursor]
		d.cursor++
		switch ev.Kind {
		case history.KindActivityScheduled, history.KindTimerStarted, history.KindChildWorkflowInitiated,
			history.KindSearchAttributesUpserted, history.KindContinueAsNew, history.KindSideEffectRecorded:
			return ev, true
		}
	}
	return history.Event{}, false
}

// schedule is the single chokepoint every decision-producing Context method
// funnels through: during replay it consumes the next recorded event
// (verifying its kind matches what the workflow code just asked for, else
// the run is non-deterministic); at the live frontier it appends a new event
// and invokes sink.
func (d *Dispatcher) schedule(kind history.Kind, payload any) (history.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ev, ok := d.replayNext(); ok {
		if ev.Kind != kind {
			return history.Event{}, heysherrors.NewNonDeterminismError(
				fmt.Sprintf("replay expected %s, workflow code produced %s", ev.Kind, kind))
		}
		return ev, nil
	}

	ev, err := d.hist.Append(d.currentTime, kind, payload)
	if err != nil {
		return history.Event{}, err
	}
	if d.sink != nil {
		d.sink(ev)
	}
	return ev, nil
}

// awaitResolution blocks the calling (workflow) goroutine until the
// resolution for scheduledEventID is available, consuming it from resultBuf
// if already present (replay or a Resolve that raced ahead of the Get call)
// or parking on a waiter channel until Resolve delivers it live.
func (d *Dispatcher) awaitResolution(scheduledEventID int64) history.Event {
	d.mu.Lock()
	if ev, ok := d.resultBuf[scheduledEventID]; ok {
		delete(d.resultBuf, scheduledEventID)
		d.mu.Unlock()
		return ev
	}
	ch := make(chan history.Event, 1)
	d.waiters[scheduledEventID] = ch
	d.mu.Unlock()
	return <-ch
}

// Resolve is called by the orchestrator when a live resolution event (an
// activity completion/failure/timeout report from the worker pool, or a
// fired timer) has just been appended to history. It hands the event
// directly to a parked waiter or a matching pendingJoin, or buffers it if
// nothing is waiting yet.
func (d *Dispatcher) Resolve(scheduledEventID int64, ev history.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentTime = ev.Timestamp
	if pj, idx := d.takeJoinForEvent(scheduledEventID); pj != nil {
		pj.ch <- joinResolution{sourceIndex: idx, ev: ev}
		return
	}
	if ch, ok := d.waiters[scheduledEventID]; ok {
		delete(d.waiters, scheduledEventID)
		ch <- ev
		return
	}
	d.resultBuf[scheduledEventID] = ev
}

// Signal delivers a named signal payload, handing it directly to a matching
// pendingJoin or a blocked receiver if one is parked, else buffering it for
// the next Receive()/awaitJoin. now stamps the SignalReceived event if it
// is newly appended (live, as opposed to fast-forwarded from recorded
// history).
func (d *Dispatcher) Signal(now time.Time, name string, p payload.Payload) error {
	d.mu.Lock()
	if len(d.signalBuf[name]) >= SignalChannelCapacity {
		d.mu.Unlock()
		return ErrChannelFull
	}
	d.currentTime = now
	d.mu.Unlock()

	ev, err := d.schedule(history.KindSignalReceived, history.SignalReceivedPayload{SignalName: name, Payload: p})
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if pj, idx := d.takeJoinForSignal(name); pj != nil {
		pj.ch <- joinResolution{sourceIndex: idx, isSignal: true, sigPayload: p}
		return nil
	}
	d.signalBuf[name] = append(d.signalBuf[name], bufferedSignal{eventID: ev.ID, payload: p})
	if waiters := d.signalWaiters[name]; len(waiters) > 0 {
		w := waiters[0]
		d.signalWaiters[name] = waiters[1:]
		close(w)
	}
	return nil
}

func (d *Dispatcher) receiveSignal(name string) payload.Payload {
	for {
		d.mu.Lock()
		if buf := d.signalBuf[name]; len(buf) > 0 {
			bs := buf[0]
			d.signalBuf[name] = buf[1:]
			d.mu.Unlock()
			return bs.payload
		}
		wake := make(chan struct{})
		d.signalWaiters[name] = append(d.signalWaiters[name], wake)
		d.mu.Unlock()
		<-wake
	}
}

func (d *Dispatcher) receiveSignalAsync(name string) (payload.Payload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf := d.signalBuf[name]; len(buf) > 0 {
		bs := buf[0]
		d.signalBuf[name] = buf[1:]
		return bs.payload, true
	}
	return payload.Payload{}, false
}

// awaitJoin blocks the calling workflow goroutine until one of sources
// resolves, returning which one and its resolution. It is the single
// chokepoint every any-of wait in this package funnels through (the
// signal-or-timeout HITL await, Selector), replacing the older pattern of
// racing one goroutine per source: that pattern let Go's scheduler, not
// history, pick the winner, which is wrong once more than one source is
// already resolved by the time the wait starts. That happens on replay
// every time, since an armed timer that lost a live race still fires and
// is appended to history after the signal that won it - replayScan buffers
// both before the workflow goroutine even starts. awaitJoin instead picks
// whichever source carries the earlier recorded event ID, reproducing the
// original decision instead of re-racing it. At the live frontier, where at
// most one source has actually happened, the winner is whichever of
// Signal/Resolve next reaches the dispatcher's lock holding one of these
// sources - a real, once-only decision, and exactly the order appended to
// history for a future replay to reproduce.
func (d *Dispatcher) awaitJoin(sources []joinSource) joinResolution {
	d.mu.Lock()
	if idx, res, ok := d.pickResolvedLocked(sources); ok {
		d.mu.Unlock()
		res.sourceIndex = idx
		return res
	}
	ch := make(chan joinResolution, 1)
	d.pendingJoins = append(d.pendingJoins, &pendingJoin{sources: sources, ch: ch})
	d.mu.Unlock()
	return <-ch
}

// pickResolvedLocked must be called with d.mu held. It looks for sources
// already present in signalBuf/resultBuf and, if more than one is, returns
// the one with the earliest event ID, consuming it from its buffer.
func (d *Dispatcher) pickResolvedLocked(sources []joinSource) (int, joinResolution, bool) {
	bestIdx := -1
	var bestEventID int64
	for i, s := range sources {
		var id int64
		var ok bool
		if s.signalName != "" {
			if buf := d.signalBuf[s.signalName]; len(buf) > 0 {
				id, ok = buf[0].eventID, true
			}
		} else if ev, present := d.resultBuf[s.scheduledEventID]; present {
			id, ok = ev.ID, true
		}
		if ok && (bestIdx == -1 || id < bestEventID) {
			bestIdx, bestEventID = i, id
		}
	}
	if bestIdx == -1 {
		return 0, joinResolution{}, false
	}
	s := sources[bestIdx]
	if s.signalName != "" {
		buf := d.signalBuf[s.signalName]
		bs := buf[0]
		d.signalBuf[s.signalName] = buf[1:]
		return bestIdx, joinResolution{isSignal: true, sigPayload: bs.payload}, true
	}
	ev := d.resultBuf[s.scheduledEventID]
	delete(d.resultBuf, s.scheduledEventID)
	return bestIdx, joinResolution{ev: ev}, true
}

// takeJoinForSignal removes and returns the pendingJoin (and the index of
// its matching source) that names signalName, if any. Must be called with
// d.mu held.
func (d *Dispatcher) takeJoinForSignal(name string) (*pendingJoin, int) {
	for i, pj := range d.pendingJoins {
		for si, src := range pj.sources {
			if src.signalName == name {
				d.pendingJoins = append(d.pendingJoins[:i], d.pendingJoins[i+1:]...)
				return pj, si
			}
		}
	}
	return nil, -1
}

// takeJoinForEvent removes and returns the pendingJoin (and the index of
// its matching source) that names scheduledEventID, if any. Must be called
// with d.mu held.
func (d *Dispatcher) takeJoinForEvent(scheduledEventID int64) (*pendingJoin, int) {
	for i, pj := range d.pendingJoins {
		for si, src := range pj.sources {
			if src.signalName == "" && src.scheduledEventID == scheduledEventID {
				d.pendingJoins = append(d.pendingJoins[:i], d.pendingJoins[i+1:]...)
				return pj, si
			}
		}
	}
	return nil, -1
}

func (d *Dispatcher) now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentTime
}

func (d *Dispatcher) nearHistoryLimit() bool {
	return d.hist.NearTruncation()
}

func (d *Dispatcher) finish(result payload.Payload, err error) {
	d.doneOnce.Do(func() {
		d.mu.Lock()
		d.result, d.resultErr = result, err
		d.mu.Unlock()
		close(d.done)
	})
}

func (d *Dispatcher) recoverPanic() {
	if r := recover(); r != nil {
		d.finish(payload.Payload{}, heysherrors.NewPanicError(r, ""))
	}
}

// Done returns a channel closed once the workflow function has returned
// (including via panic, captured as a PanicError) or ContinueAsNew was
// invoked.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Result returns the workflow's final result and error; only meaningful
// after Done() has fired.
func (d *Dispatcher) Result() (payload.Payload, error) {
	<-d.done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result, d.resultErr
}

// ContinuedAsNew reports the ContinueAsNew request if the run ended that
// way, rather than completing or failing.
func (d *Dispatcher) ContinuedAsNew() *history.ContinueAsNewPayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.continuedAsNew
}

func (d *Dispatcher) SearchAttributes() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]any, len(d.searchAttrs))
	for k, v := range d.searchAttrs {
		out[k] = v
	}
	return out
}
