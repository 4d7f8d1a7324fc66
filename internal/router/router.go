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

// Package router is the task-queue router (C3): three named queues, each
// with its own concurrency cap and resource floor, long-polled by
// internal/worker. It never rejects admission — depth backpressure is
// reported, not enforced, per spec §4.2.
package router

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
)

// Queue names, exactly the three spec §4.2 lists.
const (
	QueueAIProcessing = "ai-processing"
	QueueStorage      = "storage"
	QueueGeneral      = "general"
)

// DefaultQueue is used when a schedule call doesn't name one explicitly
// (spec §4.2: "explicit queue per scheduling call, with documented
// defaults").
const DefaultQueue = QueueGeneral

// QueueConfig carries the concurrency cap and resource floor for one queue.
type QueueConfig struct {
	MaxConcurrency     int
	SoftDepthThreshold int
	ResourceFloorNote  string
}

// DefaultConfig is grounded on the spec §4.2 table.
func DefaultConfig() map[string]QueueConfig {
	return map[string]QueueConfig{
		QueueAIProcessing: {MaxConcurrency: 5, SoftDepthThreshold: 50, ResourceFloorNote: "4 CPU / 16 GiB / accelerator: text extraction, embedding generation, LLM inference, relevance assessment, topic extraction, summary"},
		QueueStorage:      {MaxConcurrency: 20, SoftDepthThreshold: 200, ResourceFloorNote: "2 CPU / 8 GiB: vector-index write, graph write, metadata write, blob download"},
		QueueGeneral:      {MaxConcurrency: 50, SoftDepthThreshold: 100, ResourceFloorNote: "1 CPU / 4 GiB: coordination, validation, notification, HITL plumbing"},
	}
}

// Task is one leased unit of work handed to a worker by Poll.
type Task struct {
	orchestrator.ScheduledActivity
	LeaseID            string
	Attempt            int
	VisibilityDeadline time.Time
}

type queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  *list.List // *orchestrator.ScheduledActivity, FIFO, preserves schedule order
	leased   map[string]*leasedTask
	limiter  *rate.Limiter
	cfg      QueueConfig
	attempts map[int64]int // scheduledEventID -> attempts so far
}

type leasedTask struct {
	task     Task
	activity orchestrator.ScheduledActivity
}

// DepthGauge is a read-only snapshot of queue depth, exposed for metrics
// (spec §4.2 soft-depth-threshold backpressure signal).
type DepthGauge struct {
	Queue          string
	PendingDepth   int
	InFlightLeases int
	SoftThreshold  int
	OverThreshold  bool
}

// Router implements orchestrator.Scheduler.
type Router struct {
	queues map[string]*queue
}

// New builds a Router with cfg per named queue (use DefaultConfig() for the
// spec defaults).
func New(cfg map[string]QueueConfig) *Router {
	r := &Router{queues: make(map[string]*queue)}
	for name, c := range cfg {
		q := &queue{
			pending:  list.New(),
			leased:   make(map[string]*leasedTask),
			limiter:  rate.NewLimiter(rate.Limit(c.MaxConcurrency*10), c.MaxConcurrency*10),
			cfg:      c,
			attempts: make(map[int64]int),
		}
		q.cond = sync.NewCond(&q.mu)
		r.queues[name] = q
	}
	return r
}

func (r *Router) queueFor(name string) *queue {
	if name == "" {
		name = DefaultQueue
	}
	q, ok := r.queues[name]
	if !ok {
		// Unknown queue names still get somewhere to go rather than being
		// silently dropped; they land in general with no special cap.
		q = r.queues[QueueGeneral]
	}
	return q
}

// Schedule enqueues a freshly-decided activity. It never blocks and never
// rejects admission (spec §4.2): depth is a metric, not a gate.
func (r *Router) Schedule(sa orchestrator.ScheduledActivity) {
	q := r.queueFor(sa.Queue)
	q.mu.Lock()
	q.pending.PushBack(sa)
	q.cond.Signal()
	q.mu.Unlock()
}

// Poll long-polls queueName for up to timeout (spec §6.2: up to 60s) and
// returns the next leased Task, or (Task{}, false) if none arrived in time.
func (r *Router) Poll(ctx context.Context, queueName string, timeout time.Duration) (Task, bool) {
	q := r.queueFor(queueName)

	// The limiter shapes how fast leases are handed out within the queue's
	// concurrency cap, independent of FIFO ordering; a burst of admissions
	// still drains in schedule order, just not all in the same instant.
	if err := q.limiter.Wait(ctx); err != nil {
		return Task{}, false
	}

	deadline := time.Now().Add(timeout)
	q.mu.Lock()
	for q.pending.Len() == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			q.mu.Unlock()
			return Task{}, false
		}
		if !q.waitOrContext(ctx, remaining) {
			q.mu.Unlock()
			return Task{}, false
		}
	}

	front := q.pending.Front()
	q.pending.Remove(front)
	sa := front.Value.(orchestrator.ScheduledActivity)
	q.attempts[sa.ScheduledEventID]++
	attempt := q.attempts[sa.ScheduledEventID]

	leaseID := leaseIDFor(sa, attempt)
	visTimeout := sa.StartToCloseTimeout
	if visTimeout <= 0 {
		visTimeout = time.Minute
	}
	task := Task{ScheduledActivity: sa, LeaseID: leaseID, Attempt: attempt, VisibilityDeadline: time.Now().Add(visTimeout)}
	q.leased[leaseID] = &leasedTask{task: task, activity: sa}
	q.mu.Unlock()

	return task, true
}

// waitOrContext blocks on q.cond (with q.mu held) until signaled, ctx is
// canceled, or remaining elapses; returns false if it should give up.
// cond.Wait does not accept a timeout directly, so this uses a timer
// goroutine to force a wakeup, matching the teacher's long-poll deadline
// handling in internal_task_pollers.go.
func (q *queue) waitOrContext(ctx context.Context, remaining time.Duration) bool {
	woken := make(chan struct{})
	timer := time.AfterFunc(remaining, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	done := ctx.Done()
	if done != nil {
		go func() {
			select {
			case <-done:
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-woken:
			}
		}()
	}
	q.cond.Wait()
	close(woken)

	select {
	case <-done:
		return false
	default:
	}
	return q.pending.Len() > 0
}

// Requeue puts a leased task back at the front of its queue (worker crash,
// or a retryable failure that should be redelivered) — it does not
// increment the attempt counter; the next Poll does that.
func (r *Router) Requeue(queueName, leaseID string) {
	q := r.queueFor(queueName)
	q.mu.Lock()
	defer q.mu.Unlock()
	lt, ok := q.leased[leaseID]
	if !ok {
		return
	}
	delete(q.leased, leaseID)
	q.pending.PushFront(lt.activity)
	q.cond.Signal()
}

// Complete removes a lease once the worker has reported back through the
// orchestrator; it is idempotent.
func (r *Router) Complete(queueName, leaseID string) {
	q := r.queueFor(queueName)
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.leased, leaseID)
}

// Depth reports current pending/in-flight counts for every queue, for
// metrics export (spec §4.2 backpressure signal, not an admission gate).
func (r *Router) Depth() []DepthGauge {
	var out []DepthGauge
	for name, q := range r.queues {
		q.mu.Lock()
		g := DepthGauge{
			Queue: name, PendingDepth: q.pending.Len(), InFlightLeases: len(q.leased),
			SoftThreshold: q.cfg.SoftDepthThreshold,
		}
		g.OverThreshold = g.PendingDepth > g.SoftThreshold
		q.mu.Unlock()
		out = append(out, g)
	}
	return out
}

func leaseIDFor(sa orchestrator.ScheduledActivity, attempt int) string {
	return sa.RunID + ":" + strconv.FormatInt(sa.ScheduledEventID, 10) + ":" + strconv.Itoa(attempt)
}
