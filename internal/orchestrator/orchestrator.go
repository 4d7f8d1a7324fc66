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

// Package orchestrator is the durable orchestrator (spec §3/§4.1/§5): it
// owns WorkflowExecution lifecycle, serializes all activity against a given
// run_id through a single mutex, and is the only thing allowed to append to
// a run's History. Its public method shapes mirror the teacher's Client
// interface (internal/client.go): StartWorkflow/SignalWorkflow/
// QueryWorkflow/DescribeWorkflow/TerminateWorkflow.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/history"
	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/workflow"

	"github.com/google/uuid"
)

// Status mirrors spec §3 WorkflowExecution.status.
type Status string

const (
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusTerminated   Status = "TERMINATED"
	StatusContinuedNew Status = "CONTINUED_AS_NEW"
	StatusTimedOut     Status = "TIMED_OUT"
)

// Execution is the durable record of one workflow run (spec §3
// WorkflowExecution), independent of whatever is currently resident in
// memory driving it.
type Execution struct {
	WorkflowID      string
	RunID           string
	WorkflowType    string
	TenantID        string
	Status          Status
	StartedAt       time.Time
	ClosedAt        time.Time
	Input           payload.Payload
	Result          payload.Payload
	FailureMessage  string
	SearchAttrs     map[string]any
	ParentRunID     string

	// RunTimeoutAt, if non-zero, is the deadline (spec §4.1 run-timeout
	// option) past which the run is force-failed with StatusTimedOut even
	// though its workflow code never returned. Persisted so a crash-resume
	// (Resume) re-arms the same deadline rather than granting a fresh one.
	RunTimeoutAt time.Time
}

// ScheduledActivity is handed to the Router (C3) every time a workflow
// decides to schedule one (spec §4.2).
type ScheduledActivity struct {
	WorkflowID       string
	RunID            string
	ScheduledEventID int64
	ActivityType     string
	Queue            string
	Input            payload.Payload
	history.RetryPolicy
	StartToCloseTimeout    time.Duration
	ScheduleToCloseTimeout time.Duration
	HeartbeatTimeout       time.Duration
}

// Scheduler is implemented by internal/router: the orchestrator hands it
// every freshly-scheduled activity; it never blocks the workflow goroutine.
type Scheduler interface {
	Schedule(ScheduledActivity)
}

// TimerService is implemented by whatever drives real time forward
// (production: facebookgo/clock-backed; tests: manual firing).
type TimerService interface {
	AfterFunc(d time.Duration, f func())
}

// Clock is re-exported so callers don't need to import internal/workflow.
type Clock = workflow.Clock

// Store is the persistence port (spec §6.4): Postgres in production
// (internal/orchestrator/pgstore.go), in-memory for tests
// (internal/orchestrator/memstore.go).
type Store interface {
	CreateExecution(ctx context.Context, exec *Execution) error
	LoadExecution(ctx context.Context, workflowID string) (*Execution, error)
	UpdateExecution(ctx context.Context, exec *Execution) error
	AppendEvents(ctx context.Context, runID string, events []history.Event) error
	LoadEvents(ctx context.Context, runID string) ([]history.Event, error)
	ListByAttributes(ctx context.Context, predicate func(map[string]any) bool) ([]*Execution, error)
}

// Orchestrator drives every active run and is the sole writer of each run's
// History (spec §5 Locking: "exactly one decision task for a given run_id
// executes at a time").
type Orchestrator struct {
	store     Store
	scheduler Scheduler
	timers    TimerService
	clock     Clock
	defs      map[string]workflow.Definition

	mu      sync.Mutex
	runs    map[string]*runState
	runLock map[string]*sync.Mutex

	// childWaiters correlates a child's workflow_id back to the parent run
	// and the ChildWorkflowInitiated event it must resolve on completion
	// (spec §4.5/§4.6: "parent knows child run_id; child signals parent by
	// name resolved through the orchestrator, never by pointer").
	childWaiters map[string]childWaiter
}

type childWaiter struct {
	parentRunID      string
	scheduledEventID int64
}

type runState struct {
	dispatcher *workflow.Dispatcher
	hist       *history.History
	exec       *Execution
}

// New constructs an Orchestrator. scheduler receives every newly-scheduled
// activity; timers drives durable timers.
func New(store Store, scheduler Scheduler, timers TimerService, clock Clock) *Orchestrator {
	return &Orchestrator{
		store:     store,
		scheduler: scheduler,
		timers:    timers,
		clock:     clock,
		defs:      make(map[string]workflow.Definition),
		runs:      make(map[string]*runState),
		runLock:   make(map[string]*sync.Mutex),
		childWaiters: make(map[string]childWaiter),
	}
}

// RegisterWorkflow binds a workflow type name to its Definition (spec §3:
// every WorkflowExecution.workflow_type names one of these).
func (o *Orchestrator) RegisterWorkflow(workflowType string, def workflow.Definition) {
	o.defs[workflowType] = def
}

func (o *Orchestrator) lockFor(runID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.runLock[runID]
	if !ok {
		l = &sync.Mutex{}
		o.runLock[runID] = l
	}
	return l
}

// StartOptions captures the id-reuse-policy surface of StartWorkflow.
type StartOptions struct {
	WorkflowID   string
	WorkflowType string
	TenantID     string
	Input        payload.Payload
	ParentRunID  string

	// RunTimeout bounds the run's total wall-clock lifetime (spec §4.1
	// run-timeout option); zero means no bound. Exceeding it fails the run
	// with StatusTimedOut (spec §5/§8 run_timeout -> WorkflowFailed(TimedOut)).
	RunTimeout time.Duration
}

// StartWorkflow creates a new Execution and begins driving it. Starting
// against a WorkflowID with an already-RUNNING execution returns
// AlreadyStartedError (spec §4.1 id-reuse-policy default).
func (o *Orchestrator) StartWorkflow(ctx context.Context, opts StartOptions) (*Execution, error) {
	def, ok := o.defs[opts.WorkflowType]
	if !ok {
		return nil, heysherrors.NewUserError(400, fmt.Sprintf("unknown workflow type %q", opts.WorkflowType))
	}
	if existing, err := o.store.LoadExecution(ctx, opts.WorkflowID); err == nil && existing != nil && existing.Status == StatusRunning {
		return nil, heysherrors.NewAlreadyStartedError(existing.WorkflowID, existing.RunID)
	}

	runID := uuid.NewString()
	exec := &Execution{
		WorkflowID:   opts.WorkflowID,
		RunID:        runID,
		WorkflowType: opts.WorkflowType,
		TenantID:     opts.TenantID,
		Status:       StatusRunning,
		StartedAt:    o.clock.Now(),
		Input:        opts.Input,
		SearchAttrs:  map[string]any{},
		ParentRunID:  opts.ParentRunID,
	}
	if opts.RunTimeout > 0 {
		exec.RunTimeoutAt = exec.StartedAt.Add(opts.RunTimeout)
	}
	if err := o.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	h := history.New()
	if _, err := h.Append(o.clock.Now(), history.KindWorkflowStarted, history.WorkflowStartedPayload{
		WorkflowType: opts.WorkflowType, TenantID: opts.TenantID, Input: opts.Input,
	}); err != nil {
		return nil, err
	}

	o.run(ctx, exec, h, def)
	o.armRunTimeout(ctx, exec)
	return exec, nil
}

func (o *Orchestrator) run(ctx context.Context, exec *Execution, h *history.History, def workflow.Definition) {
	lock := o.lockFor(exec.RunID)
	lock.Lock()

	sink := func(ev history.Event) { o.onDecision(ctx, exec, ev) }
	d := workflow.NewDispatcher(h, o.clock, sink, def, exec.Input)

	o.mu.Lock()
	o.runs[exec.RunID] = &runState{dispatcher: d, hist: h, exec: exec}
	o.mu.Unlock()
	lock.Unlock()

	go o.awaitCompletion(ctx, exec, h, d)
}

func (o *Orchestrator) awaitCompletion(ctx context.Context, exec *Execution, h *history.History, d *workflow.Dispatcher) {
	<-d.Done()
	lock := o.lockFor(exec.RunID)
	lock.Lock()
	defer lock.Unlock()

	if exec.Status == StatusTimedOut || exec.Status == StatusTerminated {
		// Already force-ended by timeoutRun/TerminateWorkflow while the
		// workflow goroutine kept running; don't clobber that outcome.
		return
	}

	if can := d.ContinuedAsNew(); can != nil {
		o.store.AppendEvents(ctx, exec.RunID, h.Events())
		exec.Status = StatusContinuedNew
		exec.ClosedAt = o.clock.Now()
		o.store.UpdateExecution(ctx, exec)

		newDef := o.defs[exec.WorkflowType]
		newExec := &Execution{
			WorkflowID: exec.WorkflowID, RunID: can.NewRunID, WorkflowType: exec.WorkflowType,
			TenantID: exec.TenantID, Status: StatusRunning, StartedAt: o.clock.Now(),
			Input: can.Input, SearchAttrs: map[string]any{},
		}
		o.store.CreateExecution(ctx, newExec)
		newH := history.New()
		newH.Append(o.clock.Now(), history.KindWorkflowStarted, history.WorkflowStartedPayload{
			WorkflowType: exec.WorkflowType, TenantID: exec.TenantID, Input: can.Input,
		})
		o.run(ctx, newExec, newH, newDef)
		return
	}

	result, err := d.Result()
	exec.SearchAttrs = d.SearchAttributes()
	exec.ClosedAt = o.clock.Now()
	if err != nil {
		exec.Status = StatusFailed
		exec.FailureMessage = err.Error()
		h.Append(o.clock.Now(), history.KindWorkflowFailed, history.WorkflowFailedPayload{Message: err.Error()})
	} else {
		exec.Status = StatusCompleted
		exec.Result = result
		h.Append(o.clock.Now(), history.KindWorkflowCompleted, history.WorkflowCompletedPayload{Result: result})
	}
	o.store.AppendEvents(ctx, exec.RunID, h.Events())
	o.store.UpdateExecution(ctx, exec)

	o.mu.Lock()
	delete(o.runs, exec.RunID)
	waiter, isChild := o.childWaiters[exec.WorkflowID]
	if isChild {
		delete(o.childWaiters, exec.WorkflowID)
	}
	o.mu.Unlock()

	if isChild {
		o.resolveParent(ctx, waiter, exec, err)
	}
}

// armRunTimeout starts the real timer backing exec.RunTimeoutAt, if set.
// Called once per execution after o.run, from both StartWorkflow and
// Resume, so a crash-resumed run keeps the same deadline rather than being
// granted a fresh one.
func (o *Orchestrator) armRunTimeout(ctx context.Context, exec *Execution) {
	if exec.RunTimeoutAt.IsZero() {
		return
	}
	d := time.Until(exec.RunTimeoutAt)
	if d < 0 {
		d = 0
	}
	o.timers.AfterFunc(d, func() { o.timeoutRun(ctx, exec.RunID) })
}

// timeoutRun force-ends a run that outlived its run-timeout (spec §4.1 run-
// timeout option; §5/§8 run_timeout -> WorkflowFailed(TimedOut)) without
// waiting for its workflow code to return, mirroring TerminateWorkflow's
// shape but recording StatusTimedOut rather than StatusTerminated.
func (o *Orchestrator) timeoutRun(ctx context.Context, runID string) {
	lock := o.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()

	o.mu.Lock()
	rs, ok := o.runs[runID]
	delete(o.runs, runID)
	o.mu.Unlock()
	if !ok {
		return
	}

	ev, err := rs.hist.Append(o.clock.Now(), history.KindWorkflowTimedOut, history.WorkflowTimedOutPayload{})
	if err != nil {
		return
	}
	o.store.AppendEvents(ctx, runID, []history.Event{ev})

	rs.exec.Status = StatusTimedOut
	rs.exec.FailureMessage = "run timeout exceeded"
	rs.exec.ClosedAt = o.clock.Now()
	o.store.UpdateExecution(ctx, rs.exec)
}

// resolveParent appends the ChildWorkflowCompleted/Failed event to the
// parent's history and resolves the Future the parent is (or will be)
// awaiting, mirroring how an activity's completion resolves its own future.
func (o *Orchestrator) resolveParent(ctx context.Context, waiter childWaiter, childExec *Execution, childErr error) {
	plock := o.lockFor(waiter.parentRunID)
	plock.Lock()
	defer plock.Unlock()

	o.mu.Lock()
	prs, ok := o.runs[waiter.parentRunID]
	o.mu.Unlock()
	if !ok {
		return
	}

	var ev history.Event
	if childErr != nil {
		ev, _ = prs.hist.Append(o.clock.Now(), history.KindChildWorkflowFailed, history.ChildWorkflowFailedPayload{
			ChildRunID: childExec.RunID, Message: childErr.Error(),
		})
	} else {
		ev, _ = prs.hist.Append(o.clock.Now(), history.KindChildWorkflowCompleted, history.ChildWorkflowCompletedPayload{
			ChildRunID: childExec.RunID, Result: childExec.Result,
		})
	}
	o.store.AppendEvents(ctx, waiter.parentRunID, []history.Event{ev})
	prs.dispatcher.Resolve(waiter.scheduledEventID, ev)
}

// onDecision is the workflow.DecisionSink: it persists the new event and,
// for ActivityScheduled/TimerStarted, does the actual side-effecting work
// (handing the task to the router, or arming a real timer).
func (o *Orchestrator) onDecision(ctx context.Context, exec *Execution, ev history.Event) {
	o.store.AppendEvents(ctx, exec.RunID, []history.Event{ev})

	switch ev.Kind {
	case history.KindActivityScheduled:
		p := ev.Payload.(history.ActivityScheduledPayload)
		o.scheduler.Schedule(ScheduledActivity{
			WorkflowID: exec.WorkflowID, RunID: exec.RunID, ScheduledEventID: ev.ID,
			ActivityType: p.ActivityType, Queue: p.Queue, Input: p.Input, RetryPolicy: p.RetryPolicy,
			StartToCloseTimeout: p.StartToCloseTimeout, ScheduleToCloseTimeout: p.ScheduleToCloseTimeout,
			HeartbeatTimeout: p.HeartbeatTimeout,
		})
	case history.KindTimerStarted:
		p := ev.Payload.(history.TimerStartedPayload)
		d := time.Until(p.FireTime)
		o.timers.AfterFunc(d, func() { o.fireTimer(ctx, exec.RunID, ev.ID, p.TimerID) })
	case history.KindChildWorkflowInitiated:
		p := ev.Payload.(history.ChildWorkflowInitiatedPayload)
		o.startChild(ctx, exec.RunID, ev.ID, p)
	case history.KindSearchAttributesUpserted:
		// Persisted immediately, not just at completion: spec §6.1's
		// GET /workflows?status=pending&queue=... and the HITL review
		// queue both scan Store.ListByAttributes while the run is still
		// RUNNING (internal/hitl.Reviews.Pending).
		p := ev.Payload.(history.SearchAttributesUpsertedPayload)
		if exec.SearchAttrs == nil {
			exec.SearchAttrs = make(map[string]any, len(p.Attributes))
		}
		for k, v := range p.Attributes {
			exec.SearchAttrs[k] = v
		}
		o.store.UpdateExecution(ctx, exec)
	}
}

func (o *Orchestrator) startChild(ctx context.Context, parentRunID string, scheduledEventID int64, p history.ChildWorkflowInitiatedPayload) {
	def, ok := o.defs[p.WorkflowType]
	if !ok {
		return
	}
	o.mu.Lock()
	o.childWaiters[p.ChildWorkflowID] = childWaiter{parentRunID: parentRunID, scheduledEventID: scheduledEventID}
	o.mu.Unlock()

	childExec := &Execution{
		WorkflowID: p.ChildWorkflowID, RunID: uuid.NewString(), WorkflowType: p.WorkflowType,
		Status: StatusRunning, StartedAt: o.clock.Now(), Input: p.Input, SearchAttrs: map[string]any{},
		ParentRunID: parentRunID,
	}
	o.store.CreateExecution(ctx, childExec)
	h := history.New()
	h.Append(o.clock.Now(), history.KindWorkflowStarted, history.WorkflowStartedPayload{
		WorkflowType: p.WorkflowType, Input: p.Input,
	})
	o.run(ctx, childExec, h, def)
}

func (o *Orchestrator) fireTimer(ctx context.Context, runID string, scheduledEventID int64, timerID string) {
	lock := o.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()

	o.mu.Lock()
	rs, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return
	}
	ev, err := rs.hist.Append(o.clock.Now(), history.KindTimerFired, history.TimerFiredPayload{TimerID: timerID})
	if err != nil {
		return
	}
	o.store.AppendEvents(ctx, runID, []history.Event{ev})
	rs.dispatcher.Resolve(scheduledEventID, ev)
}

// CompleteActivity is called directly by internal/worker, for a task it
// leased from internal/router, to report an activity's outcome, matching the
// teacher's
// Client.CompleteActivity shape (internal/client.go).
func (o *Orchestrator) CompleteActivity(ctx context.Context, runID string, scheduledEventID int64, result payload.Payload, activityErr error) error {
	lock := o.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()

	o.mu.Lock()
	rs, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return heysherrors.NewNotFoundError(runID)
	}

	var ev history.Event
	var err error
	if activityErr == nil {
		ev, err = rs.hist.Append(o.clock.Now(), history.KindActivityCompleted, history.ActivityCompletedPayload{
			ScheduledEventID: scheduledEventID, Result: result,
		})
	} else {
		ev, err = rs.hist.Append(o.clock.Now(), history.KindActivityFailed, history.ActivityFailedPayload{
			ScheduledEventID: scheduledEventID, Message: activityErr.Error(),
		})
	}
	if err != nil {
		return err
	}
	o.store.AppendEvents(ctx, runID, []history.Event{ev})
	rs.dispatcher.Resolve(scheduledEventID, ev)
	return nil
}

// SignalWorkflow delivers a named signal to a running execution (spec §3
// SignalChannel, §4.6 review_decision).
func (o *Orchestrator) SignalWorkflow(ctx context.Context, workflowID, signalName string, p payload.Payload) error {
	exec, err := o.store.LoadExecution(ctx, workflowID)
	if err != nil {
		return heysherrors.NewNotFoundError(workflowID)
	}
	lock := o.lockFor(exec.RunID)
	lock.Lock()
	defer lock.Unlock()

	o.mu.Lock()
	rs, ok := o.runs[exec.RunID]
	o.mu.Unlock()
	if !ok {
		return heysherrors.NewNotFoundError(workflowID)
	}
	return rs.dispatcher.Signal(o.clock.Now(), signalName, p)
}

// DescribeWorkflow returns the current persisted Execution snapshot.
func (o *Orchestrator) DescribeWorkflow(ctx context.Context, workflowID string) (*Execution, error) {
	exec, err := o.store.LoadExecution(ctx, workflowID)
	if err != nil {
		return nil, heysherrors.NewNotFoundError(workflowID)
	}
	return exec, nil
}

// QueryWorkflow answers a named query against an execution without
// affecting history (spec §3 QueryWorkflow, §6.1 query endpoint) - a
// read-only, non-replayed view. queryName "getInput" returns the
// execution's original input payload (spec §8's StartWorkflow/QueryWorkflow
// round-trip law); any other name, including "", returns the current
// search attributes, matching the §6.1 pending-review queue's in-memory
// read.
func (o *Orchestrator) QueryWorkflow(ctx context.Context, workflowID, queryName string) (any, error) {
	exec, err := o.store.LoadExecution(ctx, workflowID)
	if err != nil {
		return nil, heysherrors.NewNotFoundError(workflowID)
	}
	if queryName == "getInput" {
		return exec.Input, nil
	}
	o.mu.Lock()
	rs, ok := o.runs[exec.RunID]
	o.mu.Unlock()
	if !ok {
		return exec.SearchAttrs, nil
	}
	return rs.dispatcher.SearchAttributes(), nil
}

// ListByTenant returns every execution started for tenantID (spec §6.1
// GET /workflows?domain_id=...; domain_id is mapped to tenant_id at the
// ingress boundary before this call).
func (o *Orchestrator) ListByTenant(ctx context.Context, tenantID string) ([]*Execution, error) {
	all, err := o.store.ListByAttributes(ctx, func(map[string]any) bool { return true })
	if err != nil {
		return nil, err
	}
	out := make([]*Execution, 0, len(all))
	for _, e := range all {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

// TerminateWorkflow force-ends a run without running any further workflow
// code (spec §4.1), recording a WorkflowTerminated event.
func (o *Orchestrator) TerminateWorkflow(ctx context.Context, workflowID, reason string) error {
	exec, err := o.store.LoadExecution(ctx, workflowID)
	if err != nil {
		return heysherrors.NewNotFoundError(workflowID)
	}
	lock := o.lockFor(exec.RunID)
	lock.Lock()
	defer lock.Unlock()

	o.mu.Lock()
	rs, ok := o.runs[exec.RunID]
	delete(o.runs, exec.RunID)
	o.mu.Unlock()
	if !ok {
		return heysherrors.NewNotFoundError(workflowID)
	}
	ev, _ := rs.hist.Append(o.clock.Now(), history.KindWorkflowTerminated, history.WorkflowTerminatedPayload{Reason: reason})
	o.store.AppendEvents(ctx, exec.RunID, []history.Event{ev})

	exec.Status = StatusTerminated
	exec.FailureMessage = reason
	exec.ClosedAt = o.clock.Now()
	return o.store.UpdateExecution(ctx, exec)
}

// Resume reconstructs and re-drives every execution the Store reports as
// still RUNNING, replaying its persisted history into a fresh Dispatcher —
// the crash-recovery path (spec §4.1 durability guarantee).
func (o *Orchestrator) Resume(ctx context.Context, running []*Execution) error {
	for _, exec := range running {
		def, ok := o.defs[exec.WorkflowType]
		if !ok {
			continue
		}
		events, err := o.store.LoadEvents(ctx, exec.RunID)
		if err != nil {
			return err
		}
		h := history.LoadFrom(events)
		o.run(ctx, exec, h, def)
		o.armRunTimeout(ctx, exec)
	}
	return nil
}
