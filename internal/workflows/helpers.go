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

package workflows

import (
	"time"

	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/workflow"
)

// runActivity encodes in, schedules activityType on queue, blocks for the
// result, and decodes it into an Out. It is a thin convenience wrapper
// around Context.ExecuteActivity for the common request/reply shape; fan-out
// callers that need to race or join futures use ctx.ExecuteActivity directly.
func runActivity[In any, Out any](ctx workflow.Context, activityType, queue string, timeout time.Duration, in In) (Out, error) {
	var out Out
	inPayload, err := payload.Encode(in)
	if err != nil {
		return out, err
	}
	fut := ctx.ExecuteActivity(workflow.ActivityRequest{
		ActivityType:        activityType,
		Queue:                queue,
		Input:                inPayload,
		StartToCloseTimeout:  timeout,
	})
	resultPayload, err := fut.Get()
	if err != nil {
		return out, err
	}
	if err := payload.Decode(resultPayload, &out); err != nil {
		return out, err
	}
	return out, nil
}

// mustEncode encodes v, returning a zero Payload on error; used only where
// the caller has already validated v is encodable (e.g. literal structs).
func mustEncode(v any) payload.Payload {
	p, err := payload.Encode(v)
	if err != nil {
		return payload.Payload{}
	}
	return p
}

// waitSignalOrTimeout blocks until either ch receives a payload or timeout
// resolves, whichever the recorded history says happened first. This is
// the human-in-the-loop await-with-deadline pattern (spec §4.4's
// PENDING_REVIEW escalation); it delegates to workflow.AwaitSignalOrTimeout
// so the choice is ordered by history event ID rather than by which of two
// racing goroutines a scheduler happens to wake first, which is the only
// way the choice replays identically on crash-resume.
func waitSignalOrTimeout(ch workflow.SignalChannel, timeout workflow.Future) (payload.Payload, bool) {
	return workflow.AwaitSignalOrTimeout(ch, timeout)
}
