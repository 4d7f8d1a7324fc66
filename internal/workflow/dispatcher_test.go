package workflow

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpernyer/heysh-workflow/internal/history"
	"github.com/kpernyer/heysh-workflow/internal/payload"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestDispatcherExecuteActivityLiveThenResolve(t *testing.T) {
	h := history.New()
	var scheduled []history.Event
	sink := func(ev history.Event) { scheduled = append(scheduled, ev) }

	in, _ := payload.Encode("hello")
	def := func(ctx Context, input payload.Payload) (payload.Payload, error) {
		f := ctx.ExecuteActivity(ActivityRequest{ActivityType: "download_blob", Input: input})
		return f.Get()
	}

	d := NewDispatcher(h, fixedClock{time.Now()}, sink, def, in)

	require.Eventually(t, func() bool { return len(scheduled) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, history.KindActivityScheduled, scheduled[0].Kind)

	result, _ := payload.Encode("world")
	completed, err := h.Append(time.Now(), history.KindActivityCompleted, history.ActivityCompletedPayload{
		ScheduledEventID: scheduled[0].ID,
		Result:           result,
	})
	require.NoError(t, err)
	d.Resolve(scheduled[0].ID, completed)

	got, err := d.Result()
	require.NoError(t, err)
	var s string
	require.NoError(t, payload.Decode(got, &s))
	assert.Equal(t, "world", s)
}

func TestDispatcherReplayFastForward(t *testing.T) {
	in, _ := payload.Encode("hello")
	def := func(ctx Context, input payload.Payload) (payload.Payload, error) {
		f := ctx.ExecuteActivity(ActivityRequest{ActivityType: "download_blob", Input: input})
		return f.Get()
	}

	// Build a history as if a prior process already scheduled and completed
	// the activity, then confirm a fresh Dispatcher resumes without
	// re-dispatching (sink must never fire).
	h := history.New()
	scheduledEv, err := h.Append(time.Now(), history.KindActivityScheduled, history.ActivityScheduledPayload{
		ScheduledEventID: 1, ActivityType: "download_blob", Input: in,
	})
	require.NoError(t, err)
	result, _ := payload.Encode("resumed")
	_, err = h.Append(time.Now(), history.KindActivityCompleted, history.ActivityCompletedPayload{
		ScheduledEventID: scheduledEv.ID, Result: result,
	})
	require.NoError(t, err)

	sinkCalled := false
	sink := func(ev history.Event) { sinkCalled = true }

	d := NewDispatcher(h, fixedClock{time.Now()}, sink, def, in)
	got, err := d.Result()
	require.NoError(t, err)
	var s string
	require.NoError(t, payload.Decode(got, &s))
	assert.Equal(t, "resumed", s)
	assert.False(t, sinkCalled, "replayed decisions must not be re-dispatched")
}

func TestDispatcherSignalBufferedBeforeReceive(t *testing.T) {
	h := history.New()
	in, _ := payload.Encode(nil)
	received := make(chan string, 1)
	def := func(ctx Context, input payload.Payload) (payload.Payload, error) {
		ch := ctx.GetSignalChannel("review_decision")
		p := ch.Receive()
		var s string
		payload.Decode(p, &s)
		received <- s
		return payload.Encode(s)
	}

	d := NewDispatcher(h, fixedClock{time.Now()}, nil, def, in)
	sig, _ := payload.Encode("approved")
	require.NoError(t, d.Signal(time.Now(), "review_decision", sig))

	select {
	case s := <-received:
		assert.Equal(t, "approved", s)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal delivery")
	}
	_, err := d.Result()
	require.NoError(t, err)
}

// TestDispatcherSignalWinsOverLaterRecordedTimerOnReplay reproduces a run
// where the signal won the live any-of race but the armed timer still fired
// afterward, so its TimerFired landed in history after the SignalReceived
// that already decided the outcome. Replay must pick the signal again by
// event order, not re-race goroutines.
func TestDispatcherSignalWinsOverLaterRecordedTimerOnReplay(t *testing.T) {
	def := func(ctx Context, input payload.Payload) (payload.Payload, error) {
		ch := ctx.GetSignalChannel("decision")
		timer := ctx.NewTimer(time.Hour)
		p, signaled := AwaitSignalOrTimeout(ch, timer)
		if !signaled {
			return payload.Encode("timed_out")
		}
		var s string
		payload.Decode(p, &s)
		return payload.Encode(s)
	}
	in, _ := payload.Encode(nil)

	h := history.New()
	started, err := h.Append(time.Now(), history.KindTimerStarted, history.TimerStartedPayload{
		TimerID: "1", FireTime: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	sig, _ := payload.Encode("approved")
	_, err = h.Append(time.Now(), history.KindSignalReceived, history.SignalReceivedPayload{
		SignalName: "decision", Payload: sig,
	})
	require.NoError(t, err)
	_, err = h.Append(time.Now(), history.KindTimerFired, history.TimerFiredPayload{
		TimerID: fmt.Sprintf("%d", started.ID),
	})
	require.NoError(t, err)

	d := NewDispatcher(h, fixedClock{time.Now()}, nil, def, in)
	got, err := d.Result()
	require.NoError(t, err)
	var s string
	require.NoError(t, payload.Decode(got, &s))
	assert.Equal(t, "approved", s, "replay must reproduce the signal-wins decision, not re-race")
}

func TestDispatcherSideEffectReplaysRecordedValue(t *testing.T) {
	calls := 0
	def := func(ctx Context, input payload.Payload) (payload.Payload, error) {
		return ctx.SideEffect(func() (payload.Payload, error) {
			calls++
			return payload.Encode("side-effect-value")
		})
	}
	in, _ := payload.Encode(nil)

	h := history.New()
	d1 := NewDispatcher(h, fixedClock{time.Now()}, nil, def, in)
	_, err := d1.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Resume against the now-populated history: fn must not run again.
	d2 := NewDispatcher(history.LoadFrom(h.Events()), fixedClock{time.Now()}, nil, def, in)
	got, err := d2.Result()
	require.NoError(t, err)
	var s string
	require.NoError(t, payload.Decode(got, &s))
	assert.Equal(t, "side-effect-value", s)
	assert.Equal(t, 1, calls, "SideEffect must not re-invoke fn on replay")
}
