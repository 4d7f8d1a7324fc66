package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/workflow"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type fakeScheduler struct {
	scheduled chan ScheduledActivity
}

func newFakeScheduler() *fakeScheduler { return &fakeScheduler{scheduled: make(chan ScheduledActivity, 16)} }
func (f *fakeScheduler) Schedule(s ScheduledActivity)  { f.scheduled <- s }

type fakeTimers struct{}

func (fakeTimers) AfterFunc(d time.Duration, f func()) { go func() { time.Sleep(time.Millisecond); f() }() }

func echoWorkflow(ctx workflow.Context, input payload.Payload) (payload.Payload, error) {
	f := ctx.ExecuteActivity(workflow.ActivityRequest{ActivityType: "download_blob", Queue: "storage", Input: input})
	return f.Get()
}

func TestStartWorkflowRunsActivityToCompletion(t *testing.T) {
	store := NewMemStore()
	sched := newFakeScheduler()
	o := New(store, sched, fakeTimers{}, fakeClock{time.Now()})
	o.RegisterWorkflow("document_processing", echoWorkflow)

	in, _ := payload.Encode("doc-1")
	ctx := context.Background()
	exec, err := o.StartWorkflow(ctx, StartOptions{WorkflowID: "wf-1", WorkflowType: "document_processing", TenantID: "tenant-a", Input: in})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, exec.Status)

	var sa ScheduledActivity
	select {
	case sa = <-sched.scheduled:
	case <-time.After(time.Second):
		t.Fatal("activity was never scheduled")
	}
	assert.Equal(t, "download_blob", sa.ActivityType)
	assert.Equal(t, "storage", sa.Queue)

	result, _ := payload.Encode("downloaded")
	require.NoError(t, o.CompleteActivity(ctx, sa.RunID, sa.ScheduledEventID, result, nil))

	require.Eventually(t, func() bool {
		got, err := o.DescribeWorkflow(ctx, "wf-1")
		return err == nil && got.Status == StatusCompleted
	}, time.Second, time.Millisecond)

	got, err := o.DescribeWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	var s string
	require.NoError(t, payload.Decode(got.Result, &s))
	assert.Equal(t, "downloaded", s)
}

func TestStartWorkflowFailsWithTimedOutAfterRunTimeout(t *testing.T) {
	store := NewMemStore()
	sched := newFakeScheduler()
	o := New(store, sched, fakeTimers{}, fakeClock{time.Now()})
	o.RegisterWorkflow("document_processing", echoWorkflow)

	in, _ := payload.Encode("doc-1")
	ctx := context.Background()
	exec, err := o.StartWorkflow(ctx, StartOptions{
		WorkflowID: "wf-timeout", WorkflowType: "document_processing", TenantID: "t",
		Input: in, RunTimeout: time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, exec.Status)

	// Never complete the scheduled activity: the run must be force-failed by
	// the run-timeout rather than hang RUNNING forever.
	<-sched.scheduled

	require.Eventually(t, func() bool {
		got, err := o.DescribeWorkflow(ctx, "wf-timeout")
		return err == nil && got.Status == StatusTimedOut
	}, time.Second, time.Millisecond)

	got, err := o.DescribeWorkflow(ctx, "wf-timeout")
	require.NoError(t, err)
	assert.Equal(t, "run timeout exceeded", got.FailureMessage)
}

func TestQueryWorkflowGetInputRoundTrips(t *testing.T) {
	store := NewMemStore()
	sched := newFakeScheduler()
	o := New(store, sched, fakeTimers{}, fakeClock{time.Now()})
	o.RegisterWorkflow("document_processing", echoWorkflow)

	in, _ := payload.Encode("doc-1")
	ctx := context.Background()
	_, err := o.StartWorkflow(ctx, StartOptions{WorkflowID: "wf-query", WorkflowType: "document_processing", TenantID: "t", Input: in})
	require.NoError(t, err)

	res, err := o.QueryWorkflow(ctx, "wf-query", "getInput")
	require.NoError(t, err)
	got, ok := res.(payload.Payload)
	require.True(t, ok)
	var s string
	require.NoError(t, payload.Decode(got, &s))
	assert.Equal(t, "doc-1", s)
}

func TestStartWorkflowRejectsDuplicateWhileRunning(t *testing.T) {
	store := NewMemStore()
	sched := newFakeScheduler()
	o := New(store, sched, fakeTimers{}, fakeClock{time.Now()})
	o.RegisterWorkflow("document_processing", echoWorkflow)

	in, _ := payload.Encode("doc-1")
	ctx := context.Background()
	_, err := o.StartWorkflow(ctx, StartOptions{WorkflowID: "wf-dup", WorkflowType: "document_processing", TenantID: "t", Input: in})
	require.NoError(t, err)

	_, err = o.StartWorkflow(ctx, StartOptions{WorkflowID: "wf-dup", WorkflowType: "document_processing", TenantID: "t", Input: in})
	assert.Error(t, err)
}
