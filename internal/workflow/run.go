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
	"strconv"
	"sync"
	"time"

	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/history"
	"github.com/kpernyer/heysh-workflow/internal/payload"
)

type ctxImpl struct {
	d *Dispatcher
}

func newContext(d *Dispatcher) Context { return &ctxImpl{d: d} }

func (c *ctxImpl) ExecuteActivity(req ActivityRequest) Future {
	predictedID := c.d.hist.PeekNextID()
	rp := req.RetryPolicy
	if rp.InitialInterval == 0 {
		rp = history.DefaultRetryPolicy()
	}
	ev, err := c.d.schedule(history.KindActivityScheduled, history.ActivityScheduledPayload{
		ScheduledEventID:       predictedID,
		ActivityType:           req.ActivityType,
		Queue:                  req.Queue,
		Input:                  req.Input,
		StartToCloseTimeout:    req.StartToCloseTimeout,
		ScheduleToCloseTimeout: req.ScheduleToCloseTimeout,
		HeartbeatTimeout:       req.HeartbeatTimeout,
		RetryPolicy:            rp,
	})
	if err != nil {
		return &futureImpl{resolved: true, err: err}
	}
	return &futureImpl{d: c.d, scheduledEventID: ev.ID, kind: futureKindActivity}
}

func (c *ctxImpl) ExecuteChildWorkflow(req ChildWorkflowRequest) Future {
	predictedID := c.d.hist.PeekNextID()
	childWorkflowID := req.WorkflowID
	if childWorkflowID == "" {
		childWorkflowID = fmt.Sprintf("child-%d", predictedID)
	}
	ev, err := c.d.schedule(history.KindChildWorkflowInitiated, history.ChildWorkflowInitiatedPayload{
		ChildWorkflowID: childWorkflowID,
		WorkflowType:    req.WorkflowType,
		Input:           req.Input,
	})
	if err != nil {
		return &futureImpl{resolved: true, err: err}
	}
	return &futureImpl{d: c.d, scheduledEventID: ev.ID, kind: futureKindChildWorkflow}
}

func (c *ctxImpl) NewTimer(dur time.Duration) Future {
	predictedID := c.d.hist.PeekNextID()
	fireTime := c.d.now().Add(dur)
	timerID := strconv.FormatInt(predictedID, 10)
	ev, err := c.d.schedule(history.KindTimerStarted, history.TimerStartedPayload{
		TimerID:  timerID,
		FireTime: fireTime,
	})
	if err != nil {
		return &futureImpl{resolved: true, err: err}
	}
	return &futureImpl{d: c.d, scheduledEventID: ev.ID, kind: futureKindTimer}
}

func (c *ctxImpl) GetSignalChannel(name string) SignalChannel {
	return &signalChannelImpl{d: c.d, name: name}
}

func (c *ctxImpl) Now() time.Time { return c.d.now() }

func (c *ctxImpl) SideEffect(fn func() (payload.Payload, error)) (payload.Payload, error) {
	c.d.mu.Lock()
	if ev, ok := c.d.replayNext(); ok {
		c.d.mu.Unlock()
		if ev.Kind != history.KindSideEffectRecorded {
			return payload.Payload{}, heysherrors.NewNonDeterminismError(
				fmt.Sprintf("replay expected %s, workflow code produced SideEffectRecorded", ev.Kind))
		}
		return ev.Payload.(payload.Payload), nil
	}
	c.d.mu.Unlock()

	result, err := fn()
	if err != nil {
		return payload.Payload{}, err
	}
	c.d.mu.Lock()
	now := c.d.currentTime
	c.d.mu.Unlock()
	if _, appendErr := c.d.hist.Append(now, history.KindSideEffectRecorded, result); appendErr != nil {
		return payload.Payload{}, appendErr
	}
	return result, nil
}

func (c *ctxImpl) UpsertSearchAttributes(attrs map[string]any) error {
	_, err := c.d.schedule(history.KindSearchAttributesUpserted, history.SearchAttributesUpsertedPayload{Attributes: attrs})
	if err != nil {
		return err
	}
	c.d.mu.Lock()
	for k, v := range attrs {
		c.d.searchAttrs[k] = v
	}
	c.d.mu.Unlock()
	return nil
}

func (c *ctxImpl) ContinueAsNew(input payload.Payload) error {
	newRunID := fmt.Sprintf("run-%d", c.d.hist.PeekNextID())
	_, err := c.d.schedule(history.KindContinueAsNew, history.ContinueAsNewPayload{
		NewRunID: newRunID,
		Input:    input,
	})
	if err != nil {
		return err
	}
	c.d.mu.Lock()
	c.d.continuedAsNew = &history.ContinueAsNewPayload{NewRunID: newRunID, Input: input}
	c.d.mu.Unlock()
	c.d.finish(payload.Payload{}, nil)
	return nil
}

func (c *ctxImpl) NearHistoryLimit() bool { return c.d.nearHistoryLimit() }

type futureKind int

const (
	futureKindActivity futureKind = iota
	futureKindTimer
	futureKindChildWorkflow
)

type futureImpl struct {
	d                *Dispatcher
	scheduledEventID int64
	kind             futureKind

	mu       sync.Mutex
	resolved bool
	result   payload.Payload
	err      error
}

func (f *futureImpl) Get() (payload.Payload, error) {
	f.mu.Lock()
	if f.resolved {
		defer f.mu.Unlock()
		return f.result, f.err
	}
	f.mu.Unlock()

	ev := f.d.awaitResolution(f.scheduledEventID)
	result, err := f.decode(ev)

	f.mu.Lock()
	f.resolved = true
	f.result, f.err = result, err
	f.mu.Unlock()
	return result, err
}

func (f *futureImpl) decode(ev history.Event) (payload.Payload, error) {
	switch f.kind {
	case futureKindActivity:
		switch ev.Kind {
		case history.KindActivityCompleted:
			return ev.Payload.(history.ActivityCompletedPayload).Result, nil
		case history.KindActivityFailed:
			p := ev.Payload.(history.ActivityFailedPayload)
			return payload.Payload{}, heysherrors.NewActivityError(p.ScheduledEventID, p.Attempt, "", !p.NonRetryable,
				heysherrors.NewApplicationError(p.Message, p.NonRetryable, nil, nil))
		case history.KindActivityTimedOut:
			p := ev.Payload.(history.ActivityTimedOutPayload)
			kind := heysherrors.TimeoutStartToClose
			if p.TimeoutKind == heysherrors.TimeoutHeartbeat.String() {
				kind = heysherrors.TimeoutHeartbeat
			}
			return payload.Payload{}, heysherrors.NewTimeoutError(kind, nil, nil)
		}
	case futureKindTimer:
		if ev.Kind == history.KindTimerFired {
			return payload.Payload{}, nil
		}
	case futureKindChildWorkflow:
		switch ev.Kind {
		case history.KindChildWorkflowCompleted:
			return ev.Payload.(history.ChildWorkflowCompletedPayload).Result, nil
		case history.KindChildWorkflowFailed:
			p := ev.Payload.(history.ChildWorkflowFailedPayload)
			return payload.Payload{}, heysherrors.NewChildWorkflowExecutionError(p.ChildRunID, p.ChildRunID, "", heysherrors.NewApplicationError(p.Message, false, nil, nil))
		}
	}
	return payload.Payload{}, heysherrors.NewNonDeterminismError(
		fmt.Sprintf("unexpected resolution kind %s for future kind %d", ev.Kind, f.kind))
}

func (f *futureImpl) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

type signalChannelImpl struct {
	d    *Dispatcher
	name string
}

func (s *signalChannelImpl) Receive() payload.Payload { return s.d.receiveSignal(s.name) }

func (s *signalChannelImpl) ReceiveAsync() (payload.Payload, bool) {
	return s.d.receiveSignalAsync(s.name)
}
