package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
)

func TestScheduleAndPollPreservesOrder(t *testing.T) {
	r := New(DefaultConfig())
	r.Schedule(orchestrator.ScheduledActivity{RunID: "run-1", ScheduledEventID: 1, ActivityType: "download_blob", Queue: QueueStorage})
	r.Schedule(orchestrator.ScheduledActivity{RunID: "run-1", ScheduledEventID: 2, ActivityType: "download_blob", Queue: QueueStorage})

	t1, ok := r.Poll(context.Background(), QueueStorage, time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(1), t1.ScheduledEventID)

	t2, ok := r.Poll(context.Background(), QueueStorage, time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(2), t2.ScheduledEventID)
}

func TestPollTimesOutWhenEmpty(t *testing.T) {
	r := New(DefaultConfig())
	_, ok := r.Poll(context.Background(), QueueGeneral, 20*time.Millisecond)
	assert.False(t, ok)
}

func TestPollWakesOnSchedule(t *testing.T) {
	r := New(DefaultConfig())
	done := make(chan Task, 1)
	go func() {
		task, ok := r.Poll(context.Background(), QueueAIProcessing, time.Second)
		if ok {
			done <- task
		}
	}()
	time.Sleep(20 * time.Millisecond)
	r.Schedule(orchestrator.ScheduledActivity{RunID: "run-2", ScheduledEventID: 5, ActivityType: "assess_relevance", Queue: QueueAIProcessing})

	select {
	case task := <-done:
		assert.Equal(t, "assess_relevance", task.ActivityType)
	case <-time.After(time.Second):
		t.Fatal("poll never woke up for the new task")
	}
}

func TestDefaultQueueUsedWhenUnspecified(t *testing.T) {
	r := New(DefaultConfig())
	r.Schedule(orchestrator.ScheduledActivity{RunID: "run-3", ScheduledEventID: 1, ActivityType: "notify_stakeholders"})
	task, ok := r.Poll(context.Background(), QueueGeneral, time.Second)
	require.True(t, ok)
	assert.Equal(t, "notify_stakeholders", task.ActivityType)
}

func TestRequeueRedeliversTask(t *testing.T) {
	r := New(DefaultConfig())
	r.Schedule(orchestrator.ScheduledActivity{RunID: "run-4", ScheduledEventID: 9, ActivityType: "download_blob", Queue: QueueStorage})
	task, ok := r.Poll(context.Background(), QueueStorage, time.Second)
	require.True(t, ok)

	r.Requeue(QueueStorage, task.LeaseID)
	redone, ok := r.Poll(context.Background(), QueueStorage, time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(9), redone.ScheduledEventID)
	assert.Equal(t, 2, redone.Attempt)
}
