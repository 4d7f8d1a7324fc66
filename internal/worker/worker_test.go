package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpernyer/heysh-workflow/internal/activity"
	"github.com/kpernyer/heysh-workflow/internal/history"
	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/router"
)

type fakePoller struct {
	mu    sync.Mutex
	tasks []router.Task
}

func (f *fakePoller) Poll(ctx context.Context, queueName string, timeout time.Duration) (router.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tasks) == 0 {
		time.Sleep(5 * time.Millisecond)
		return router.Task{}, false
	}
	t := f.tasks[0]
	f.tasks = f.tasks[1:]
	return t, true
}
func (f *fakePoller) Requeue(queueName, leaseID string) {}
func (f *fakePoller) Complete(queueName, leaseID string) {}

type fakeCompleter struct {
	mu      sync.Mutex
	results map[int64]payload.Payload
	errs    map[int64]error
	done    chan struct{}
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{results: map[int64]payload.Payload{}, errs: map[int64]error{}, done: make(chan struct{}, 8)}
}

func (f *fakeCompleter) CompleteActivity(ctx context.Context, runID string, scheduledEventID int64, result payload.Payload, activityErr error) error {
	f.mu.Lock()
	f.results[scheduledEventID] = result
	f.errs[scheduledEventID] = activityErr
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func TestWorkerExecutesRegisteredActivity(t *testing.T) {
	reg := activity.NewRegistry()
	reg.Register("download_blob", activity.Registration{Fn: func(ctx activity.Context, input payload.Payload) (payload.Payload, error) {
		return payload.Encode("ok")
	}})

	poller := &fakePoller{tasks: []router.Task{{
		ScheduledActivity: orchestrator.ScheduledActivity{RunID: "run-1", ScheduledEventID: 1, ActivityType: "download_blob", RetryPolicy: history.DefaultRetryPolicy()},
		LeaseID:           "lease-1",
		Attempt:           1,
	}}}
	completer := newFakeCompleter()

	w := New(poller, completer, reg, clock.New(), nil, Options{Identity: "w1", Queues: []string{router.QueueStorage}, LongPollTimeout: 50 * time.Millisecond, Concurrency: map[string]int{router.QueueStorage: 1}})
	w.Start()
	defer w.Stop()

	select {
	case <-completer.done:
	case <-time.After(time.Second):
		t.Fatal("activity never completed")
	}

	completer.mu.Lock()
	defer completer.mu.Unlock()
	require.NoError(t, completer.errs[1])
	var s string
	require.NoError(t, payload.Decode(completer.results[1], &s))
	assert.Equal(t, "ok", s)
}

func TestWorkerReportsUnregisteredActivityType(t *testing.T) {
	reg := activity.NewRegistry()
	poller := &fakePoller{tasks: []router.Task{{
		ScheduledActivity: orchestrator.ScheduledActivity{RunID: "run-2", ScheduledEventID: 1, ActivityType: "unknown_type"},
		LeaseID:           "lease-2",
		Attempt:           1,
	}}}
	completer := newFakeCompleter()
	w := New(poller, completer, reg, clock.New(), nil, Options{Queues: []string{router.QueueGeneral}, LongPollTimeout: 50 * time.Millisecond, Concurrency: map[string]int{router.QueueGeneral: 1}})
	w.Start()
	defer w.Stop()

	select {
	case <-completer.done:
	case <-time.After(time.Second):
		t.Fatal("completion never reported")
	}
	completer.mu.Lock()
	defer completer.mu.Unlock()
	assert.Error(t, completer.errs[1])
}
