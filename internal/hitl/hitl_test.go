package hitl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/workflow"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type fakeScheduler struct{}

func (fakeScheduler) Schedule(orchestrator.ScheduledActivity) {}

type fakeTimers struct{}

func (fakeTimers) AfterFunc(d time.Duration, f func()) {}

// waitingWorkflow parks on a signal channel forever, letting the test drive
// UpsertSearchAttributes and SignalWorkflow against a RUNNING execution.
func waitingWorkflow(ctx workflow.Context, input payload.Payload) (payload.Payload, error) {
	if err := ctx.UpsertSearchAttributes(map[string]any{
		"Assignee": "controller",
		"Queue":    "document-review",
		"Status":   "pending",
	}); err != nil {
		return payload.Payload{}, err
	}
	ch := ctx.GetSignalChannel("controller_decision")
	ch.Receive()
	return payload.Encode(map[string]string{"decision": "approve"})
}

func TestReviewsPendingListsWaitingWorkflow(t *testing.T) {
	store := orchestrator.NewMemStore()
	o := orchestrator.New(store, fakeScheduler{}, fakeTimers{}, fakeClock{time.Now()})
	o.RegisterWorkflow("document_processing", waitingWorkflow)

	input, err := payload.Encode(map[string]string{})
	require.NoError(t, err)
	_, err = o.StartWorkflow(context.Background(), orchestrator.StartOptions{
		WorkflowID: "document:d1", WorkflowType: "document_processing", TenantID: "t1", Input: input,
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	reviews := New(o, store)
	items, err := reviews.Pending(context.Background(), "document-review")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "document:d1", items[0].WorkflowID)
	assert.Equal(t, "controller", items[0].Assignee)
}

func TestReviewsPendingFiltersByQueue(t *testing.T) {
	store := orchestrator.NewMemStore()
	o := orchestrator.New(store, fakeScheduler{}, fakeTimers{}, fakeClock{time.Now()})
	o.RegisterWorkflow("document_processing", waitingWorkflow)

	input, _ := payload.Encode(map[string]string{})
	_, err := o.StartWorkflow(context.Background(), orchestrator.StartOptions{
		WorkflowID: "document:d2", WorkflowType: "document_processing", TenantID: "t1", Input: input,
	})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	reviews := New(o, store)
	items, err := reviews.Pending(context.Background(), "quality-review")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReviewsDecideSignalsWorkflow(t *testing.T) {
	store := orchestrator.NewMemStore()
	o := orchestrator.New(store, fakeScheduler{}, fakeTimers{}, fakeClock{time.Now()})
	o.RegisterWorkflow("document_processing", waitingWorkflow)

	input, _ := payload.Encode(map[string]string{})
	_, err := o.StartWorkflow(context.Background(), orchestrator.StartOptions{
		WorkflowID: "document:d3", WorkflowType: "document_processing", TenantID: "t1", Input: input,
	})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	reviews := New(o, store)
	decisionPayload, err := payload.Encode(map[string]string{"decision": "approve", "reviewer": "u1"})
	require.NoError(t, err)
	require.NoError(t, reviews.Decide(context.Background(), "document:d3", "controller_decision", decisionPayload))

	time.Sleep(10 * time.Millisecond)
	exec, err := o.DescribeWorkflow(context.Background(), "document:d3")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, exec.Status)
}
