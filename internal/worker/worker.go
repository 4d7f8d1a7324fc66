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

// Package worker contains functions to manage the lifecycle of the C4
// worker pool: one long-polling goroutine set per queue, bounded by that
// queue's concurrency cap, executing registered activities and reporting
// results back to the orchestrator.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"github.com/kpernyer/heysh-workflow/internal/activity"
	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/router"
)

// Completer is the subset of *orchestrator.Orchestrator the worker pool
// needs; kept as an interface so this package doesn't import orchestrator
// directly and can be exercised with a fake in tests.
type Completer interface {
	CompleteActivity(ctx context.Context, runID string, scheduledEventID int64, result payload.Payload, activityErr error) error
}

// Poller is the subset of *router.Router the worker pool needs.
type Poller interface {
	Poll(ctx context.Context, queueName string, timeout time.Duration) (router.Task, bool)
	Requeue(queueName, leaseID string)
	Complete(queueName, leaseID string)
}

// Options configures one Worker.
type Options struct {
	Identity      string
	Queues        []string
	LongPollTimeout time.Duration
	Concurrency   map[string]int // per-queue max in-flight executions
}

// Worker polls its configured queues and executes registered activities.
// Grounded on the teacher's worker/worker.go Start/Run/Stop lifecycle and
// internal/internal_task_pollers.go's poll-execute-report loop.
type Worker struct {
	poller   Poller
	completer Completer
	registry *activity.Registry
	clock    clock.Clock
	logger   *zap.Logger
	opts     Options

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(poller Poller, completer Completer, registry *activity.Registry, clk clock.Clock, logger *zap.Logger, opts Options) *Worker {
	if opts.LongPollTimeout == 0 {
		opts.LongPollTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{poller: poller, completer: completer, registry: registry, clock: clk, logger: logger, opts: opts, stop: make(chan struct{})}
}

// Start launches one poll loop per queue, each with its own concurrency cap.
func (w *Worker) Start() {
	for _, q := range w.opts.Queues {
		concurrency := w.opts.Concurrency[q]
		if concurrency <= 0 {
			concurrency = 1
		}
		sem := make(chan struct{}, concurrency)
		w.wg.Add(1)
		go w.pollLoop(q, sem)
	}
}

// Stop signals every poll loop to exit and waits for in-flight executions
// to drain (spec §5 drain lifecycle).
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
}

func (w *Worker) pollLoop(queueName string, sem chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		task, ok := w.poller.Poll(context.Background(), queueName, w.opts.LongPollTimeout)
		if !ok {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-w.stop:
			w.poller.Requeue(queueName, task.LeaseID)
			return
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-sem }()
			w.execute(queueName, task)
		}()
	}
}

func (w *Worker) execute(queueName string, task router.Task) {
	reg, ok := w.registry.Lookup(task.ActivityType)
	if !ok {
		w.logger.Warn("activity type not registered", zap.String("activity_type", task.ActivityType))
		w.completer.CompleteActivity(context.Background(), task.RunID, task.ScheduledEventID, payload.Payload{}, activity.ErrActivityTypeNotRegistered)
		w.poller.Complete(queueName, task.LeaseID)
		return
	}

	startToClose := task.StartToCloseTimeout
	if startToClose <= 0 {
		startToClose = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), startToClose)
	defer cancel()

	// Cooperative cancellation fires at start_to_close_timeout/4 before the
	// hard deadline, per spec §4.2, giving the activity a chance to exit
	// cleanly rather than being killed at the wire.
	softDeadline := startToClose - startToClose/4
	softCtx, softCancel := context.WithTimeout(ctx, softDeadline)
	defer softCancel()

	lastHeartbeat := w.clock.Now()
	var hbMu sync.Mutex
	heartbeat := func(details any) {
		hbMu.Lock()
		lastHeartbeat = w.clock.Now()
		hbMu.Unlock()
	}

	if reg.HeartbeatTimeout > 0 {
		go w.watchHeartbeat(softCtx, reg.HeartbeatTimeout, &hbMu, &lastHeartbeat, cancel)
	}

	actCtx := activity.Context{
		Context: softCtx, WorkflowID: task.WorkflowID, RunID: task.RunID,
		ScheduledEventID: task.ScheduledEventID, Attempt: task.Attempt, Heartbeat: heartbeat,
	}

	result, err := w.runWithRecover(reg.Fn, actCtx, task.Input)

	if err != nil && heysherrors.IsRetryable(err, task.RetryPolicy.NonRetryableErrorTypes) && task.Attempt < task.RetryPolicy.MaxAttempts {
		delay := task.RetryPolicy.NextDelay(task.Attempt)
		w.logger.Info("activity failed, will retry", zap.String("activity_type", task.ActivityType), zap.Duration("delay", delay), zap.Error(err))
		time.AfterFunc(delay, func() { w.poller.Requeue(queueName, task.LeaseID) })
		return
	}

	w.completer.CompleteActivity(context.Background(), task.RunID, task.ScheduledEventID, result, err)
	w.poller.Complete(queueName, task.LeaseID)
}

func (w *Worker) watchHeartbeat(ctx context.Context, timeout time.Duration, mu *sync.Mutex, last *time.Time, cancel context.CancelFunc) {
	ticker := w.clock.Ticker(timeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			stale := w.clock.Now().Sub(*last) > timeout
			mu.Unlock()
			if stale {
				cancel()
				return
			}
		}
	}
}

func (w *Worker) runWithRecover(fn activity.Func, ctx activity.Context, input payload.Payload) (result payload.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = heysherrors.NewPanicError(r, fmt.Sprintf("activity panic: %v", r))
		}
	}()
	return fn(ctx, input)
}
