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

// Package workflow is the deterministic authoring surface a workflow
// definition runs against: ExecuteActivity, NewTimer, GetSignalChannel,
// SideEffect, Now, UpsertSearchAttributes, ContinueAsNew. Every method on
// Context that touches the outside world goes through the Dispatcher so
// that replaying recorded history reproduces identical behavior.
package workflow

import (
	"time"

	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/history"
	"github.com/kpernyer/heysh-workflow/internal/payload"
)

// Definition is a registered workflow function. It must be deterministic:
// the only permitted sources of external input are the Context's methods.
type Definition func(ctx Context, input payload.Payload) (payload.Payload, error)

// Context is passed to every Definition and activity-scheduling helper.
// It intentionally does not embed context.Context: cancellation is modeled
// as a CanceledError returned from a blocking call, not ctx.Done(), because
// cancellation itself must be a replayable, history-recorded event.
type Context interface {
	// ExecuteActivity schedules req and returns a Future for its result.
	// It never blocks; call Future.Get to await the result.
	ExecuteActivity(req ActivityRequest) Future

	// ExecuteChildWorkflow starts a child workflow (spec §4.5/§4.6 parent↔
	// child correlation by run_id, never by pointer) and returns a Future
	// for its result. It never blocks; call Future.Get to await it.
	ExecuteChildWorkflow(req ChildWorkflowRequest) Future

	// NewTimer schedules a durable timer and returns a Future that resolves
	// with an empty Payload once d has elapsed (in workflow time).
	NewTimer(d time.Duration) Future

	// GetSignalChannel returns the named bounded signal channel, creating it
	// on first reference. Signals sent before the first Receive are buffered.
	GetSignalChannel(name string) SignalChannel

	// Now returns the current workflow time, derived from history rather
	// than the wall clock, so replay reproduces the exact same value.
	Now() time.Time

	// SideEffect runs fn exactly once and records its result in history;
	// on replay the recorded result is returned without calling fn again.
	// fn must not be used for anything that itself needs to be replayed
	// deterministically (e.g. scheduling further activities).
	SideEffect(fn func() (payload.Payload, error)) (payload.Payload, error)

	// UpsertSearchAttributes merges attrs into the execution's visible
	// search attributes (spec §3 SearchAttributeRecord).
	UpsertSearchAttributes(attrs map[string]any) error

	// ContinueAsNew ends the current run and atomically starts a new run of
	// the same workflow_id with fresh history, carrying input forward.
	ContinueAsNew(input payload.Payload) error

	// NearHistoryLimit reports whether the run should proactively
	// ContinueAsNew to avoid ErrHistoryOverflow.
	NearHistoryLimit() bool
}

// ActivityRequest describes one activity schedule (spec §3 ActivityTask).
type ActivityRequest struct {
	ActivityType           string
	Queue                  string
	Input                  payload.Payload
	StartToCloseTimeout    time.Duration
	ScheduleToCloseTimeout time.Duration
	HeartbeatTimeout       time.Duration
	RetryPolicy            history.RetryPolicy
}

// ChildWorkflowRequest describes a child workflow to start (spec §4.5/§4.6).
// WorkflowID, if empty, is derived deterministically from the parent run.
type ChildWorkflowRequest struct {
	WorkflowType string
	WorkflowID   string
	Input        payload.Payload
}

// Future represents the eventual result of a scheduled activity, timer, or
// child workflow. Get blocks the calling goroutine until the dispatcher
// resolves it, either from replayed history or a live event.
type Future interface {
	Get() (payload.Payload, error)
	IsReady() bool
}

// SignalChannel is the bounded, named inbox a workflow reads human or
// external signals from (spec §3, §8 invariant: overflow must surface as an
// explicit error, never silently drop).
type SignalChannel interface {
	// Receive blocks until a signal payload is available and returns it.
	Receive() payload.Payload
	// ReceiveAsync returns immediately: (payload, true) if one was queued,
	// else (zero value, false).
	ReceiveAsync() (payload.Payload, bool)
}

// SignalChannelCapacity is the bounded FIFO depth per channel name (spec §3).
const SignalChannelCapacity = 1024

// ErrChannelFull (a CapacityError) is returned by Dispatcher.Signal, before
// anything is appended to history, when a signal is sent to a channel already
// holding SignalChannelCapacity undelivered payloads.
var ErrChannelFull = heysherrors.NewCapacityError("signal_channel")

// WaitAll blocks until every future in fs has resolved, returning the first
// error encountered (if any) after all have settled.
func WaitAll(fs ...Future) error {
	var firstErr error
	for _, f := range fs {
		if _, err := f.Get(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Selector is the any-of primitive: Select blocks until at least one future
// among fs has resolved and returns its index and result.
type Selector struct {
	fs []Future
}

func NewSelector(fs ...Future) *Selector { return &Selector{fs: fs} }

// Select blocks until at least one future among fs has resolved and returns
// its index and result. It funnels through Dispatcher.awaitJoin rather than
// racing one goroutine per future: on replay, more than one future can
// already be resolved by the time Select is called, and which one actually
// won the original live race is recorded in history by event ID, not by
// whichever Get() a goroutine scheduler happened to unblock first.
func (s *Selector) Select() (int, payload.Payload, error) {
	futs := make([]*futureImpl, len(s.fs))
	sources := make([]joinSource, len(s.fs))
	var d *Dispatcher
	for i, f := range s.fs {
		fi := f.(*futureImpl)
		futs[i] = fi
		sources[i] = joinSource{scheduledEventID: fi.scheduledEventID}
		d = fi.d
	}
	res := d.awaitJoin(sources)
	winner := futs[res.sourceIndex]
	result, err := winner.decode(res.ev)
	winner.mu.Lock()
	winner.resolved, winner.result, winner.err = true, result, err
	winner.mu.Unlock()
	return res.sourceIndex, result, err
}

// AwaitSignalOrTimeout blocks until ch receives a signal or timeout
// resolves, whichever the recorded history actually reflects as first -
// not whichever goroutine a scheduler happened to run first. It is the
// primitive behind every HITL wait (a reviewer decision racing a review
// deadline): the timer, once armed, keeps running even after a signal wins
// the race, so its TimerFired can still land in history after the
// SignalReceived that resolved the original wait; awaitJoin orders the two
// by event ID so replay reproduces the same branch instead of re-racing it.
func AwaitSignalOrTimeout(ch SignalChannel, timeout Future) (payload.Payload, bool) {
	sc := ch.(*signalChannelImpl)
	tf := timeout.(*futureImpl)
	res := sc.d.awaitJoin([]joinSource{
		{signalName: sc.name},
		{scheduledEventID: tf.scheduledEventID},
	})
	if res.isSignal {
		return res.sigPayload, true
	}
	result, err := tf.decode(res.ev)
	tf.mu.Lock()
	tf.resolved, tf.result, tf.err = true, result, err
	tf.mu.Unlock()
	return payload.Payload{}, false
}
