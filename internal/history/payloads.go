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

package history

import (
	"time"

	"github.com/kpernyer/heysh-workflow/internal/payload"
)

// Kind-specific event payloads. These are stored in Event.Payload and type
// switched on during replay; keeping them as concrete structs (rather than
// a generic map) is what lets replay be deterministic and type-safe.

type WorkflowStartedPayload struct {
	WorkflowType string
	TenantID     string
	Input        payload.Payload
}

type WorkflowCompletedPayload struct {
	Result payload.Payload
}

type WorkflowFailedPayload struct {
	ErrorType string
	Message   string
	NonRetryable bool
}

type ActivityScheduledPayload struct {
	ScheduledEventID      int64
	ActivityType          string
	Queue                 string
	Input                 payload.Payload
	StartToCloseTimeout   time.Duration
	ScheduleToCloseTimeout time.Duration
	HeartbeatTimeout      time.Duration
	RetryPolicy           RetryPolicy
}

type ActivityStartedPayload struct {
	ScheduledEventID int64
	Attempt          int
	WorkerIdentity   string
}

type ActivityCompletedPayload struct {
	ScheduledEventID int64
	Result           payload.Payload
}

type ActivityFailedPayload struct {
	ScheduledEventID int64
	Attempt          int
	ErrorType        string
	Message          string
	NonRetryable     bool
}

type ActivityTimedOutPayload struct {
	ScheduledEventID int64
	TimeoutKind      string
}

type TimerStartedPayload struct {
	TimerID  string
	FireTime time.Time
}

type TimerFiredPayload struct {
	TimerID string
}

type SignalReceivedPayload struct {
	SignalName string
	Payload    payload.Payload
}

type SearchAttributesUpsertedPayload struct {
	Attributes map[string]any
}

type ContinueAsNewPayload struct {
	NewRunID string
	Input    payload.Payload
}

type WorkflowTerminatedPayload struct {
	Reason string
}

type WorkflowTimedOutPayload struct{}

type ChildWorkflowInitiatedPayload struct {
	ChildWorkflowID string
	ChildRunID      string
	WorkflowType    string
	Input           payload.Payload
}

type ChildWorkflowCompletedPayload struct {
	ChildRunID string
	Result     payload.Payload
}

type ChildWorkflowFailedPayload struct {
	ChildRunID string
	ErrorType  string
	Message    string
}

// RetryPolicy mirrors spec §3 ActivityTask.retry_policy.
type RetryPolicy struct {
	InitialInterval      time.Duration
	BackoffCoefficient   float64
	MaxInterval          time.Duration
	MaxAttempts          int
	NonRetryableErrorTypes []string
}

// DefaultRetryPolicy matches the exponential-backoff shape described in
// spec §4.3 (computed by the router, not the worker).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaxInterval:        time.Minute,
		MaxAttempts:        5,
	}
}

// NextDelay computes min(max_interval, initial_interval * backoff^n),
// n = attempt-1, exactly as spec §4.3 specifies.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	n := attempt - 1
	delay := float64(p.InitialInterval)
	for i := 0; i < n; i++ {
		delay *= p.BackoffCoefficient
		if delay > float64(p.MaxInterval) {
			delay = float64(p.MaxInterval)
			break
		}
	}
	if delay > float64(p.MaxInterval) {
		delay = float64(p.MaxInterval)
	}
	return time.Duration(delay)
}
