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

// Package errors defines the typed error taxonomy shared by the orchestrator,
// router, worker pool, and workflow definitions (spec §7).
//
// The shape follows the teacher SDK's internal/error.go: a small set of
// concrete types, each embedding heyshError for Unwrap()-friendly
// chaining, constructed via New* functions and inspected with errors.As.
package errors

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNoData is returned when extracting details from an error that carries none.
var ErrNoData = errors.New("heysh: no data available")

// ErrActivityResultPending indicates an activity will complete out-of-band via
// Orchestrator.CompleteActivity, e.g. a human-in-the-loop step.
var ErrActivityResultPending = errors.New("heysh: activity result pending, complete out of band")

type heyshError struct {
	cause error
}

func (e *heyshError) Unwrap() error { return e.cause }

// ApplicationError is returned from activity implementations with a message,
// a NonRetryable flag, and optional structured details. Maps to spec §7's
// TransientError (NonRetryable == false) and NonRetryableError (== true).
type ApplicationError struct {
	heyshError
	Message      string
	OriginalType string
	NonRetryable bool
	Details      any
}

// NewApplicationError builds an ApplicationError. OriginalType is set to the
// Go type name of cause, so a workflow catching it can switch on
// OriginalType without depending on the activity's package.
func NewApplicationError(message string, nonRetryable bool, cause error, details any) *ApplicationError {
	return &ApplicationError{
		heyshError:   heyshError{cause: cause},
		Message:      message,
		OriginalType: typeName(cause),
		NonRetryable: nonRetryable,
		Details:      details,
	}
}

func (e *ApplicationError) Error() string { return e.Message }

// TimeoutKind enumerates which timeout fired; see spec §5 Timeouts.
type TimeoutKind int

const (
	TimeoutScheduleToStart TimeoutKind = iota
	TimeoutStartToClose
	TimeoutHeartbeat
	TimeoutScheduleToClose
)

func (k TimeoutKind) String() string {
	switch k {
	case TimeoutScheduleToStart:
		return "ScheduleToStart"
	case TimeoutStartToClose:
		return "StartToClose"
	case TimeoutHeartbeat:
		return "Heartbeat"
	case TimeoutScheduleToClose:
		return "ScheduleToClose"
	default:
		return "Unknown"
	}
}

// TimeoutError is returned when an activity or child workflow times out.
type TimeoutError struct {
	heyshError
	Kind                 TimeoutKind
	LastHeartbeatDetails any
}

func NewTimeoutError(kind TimeoutKind, cause error, lastHeartbeatDetails any) *TimeoutError {
	return &TimeoutError{heyshError: heyshError{cause: cause}, Kind: kind, LastHeartbeatDetails: lastHeartbeatDetails}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout type %s: %v", e.Kind, e.cause)
}

// CanceledError is returned when a scheduled or running activity/workflow was canceled.
type CanceledError struct {
	heyshError
	Details any
}

func NewCanceledError(details any) *CanceledError {
	return &CanceledError{Details: details}
}

func (e *CanceledError) Error() string { return "canceled" }

// TerminatedError is returned when TerminateWorkflow ended the run.
type TerminatedError struct {
	heyshError
	Reason string
}

func NewTerminatedError(reason string) *TerminatedError {
	return &TerminatedError{Reason: reason}
}

func (e *TerminatedError) Error() string { return "terminated: " + e.Reason }

// PanicError wraps a recovered panic from workflow or activity code.
type PanicError struct {
	heyshError
	Value      any
	StackTrace string
}

func NewPanicError(value any, stack string) *PanicError {
	return &PanicError{Value: value, StackTrace: stack}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// ActivityError wraps the cause returned by a worker, decorated with enough
// identity to correlate against history (spec §3 ActivityTask reference).
type ActivityError struct {
	heyshError
	ScheduledEventID int64
	Attempt          int
	ActivityType     string
	Retryable        bool
}

func NewActivityError(scheduledEventID int64, attempt int, activityType string, retryable bool, cause error) *ActivityError {
	return &ActivityError{heyshError: heyshError{cause: cause}, ScheduledEventID: scheduledEventID, Attempt: attempt, ActivityType: activityType, Retryable: retryable}
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed (scheduledEventID=%d attempt=%d): %v", e.ActivityType, e.ScheduledEventID, e.Attempt, e.cause)
}

// ChildWorkflowExecutionError wraps a failure surfaced by a child workflow
// (spec §4.5/§4.6 parent/child relationship).
type ChildWorkflowExecutionError struct {
	heyshError
	WorkflowID   string
	RunID        string
	WorkflowType string
}

func NewChildWorkflowExecutionError(workflowID, runID, workflowType string, cause error) *ChildWorkflowExecutionError {
	return &ChildWorkflowExecutionError{heyshError: heyshError{cause: cause}, WorkflowID: workflowID, RunID: runID, WorkflowType: workflowType}
}

func (e *ChildWorkflowExecutionError) Error() string {
	return fmt.Sprintf("child workflow execution error (workflowID=%s runID=%s type=%s): %v", e.WorkflowID, e.RunID, e.WorkflowType, e.cause)
}

// WorkflowExecutionError is the top-level error returned to a caller awaiting
// a failed workflow's result.
type WorkflowExecutionError struct {
	heyshError
	WorkflowID string
	RunID      string
}

func NewWorkflowExecutionError(workflowID, runID string, cause error) *WorkflowExecutionError {
	return &WorkflowExecutionError{heyshError: heyshError{cause: cause}, WorkflowID: workflowID, RunID: runID}
}

func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("workflow execution error (workflowID=%s runID=%s): %v", e.WorkflowID, e.RunID, e.cause)
}

// NonDeterminismError is fatal for a run: replay produced a different
// decision sequence than history recorded (spec §4.1 Failure semantics,
// invariant 3 in §8).
type NonDeterminismError struct {
	heyshError
	Detail string
}

func NewNonDeterminismError(detail string) *NonDeterminismError {
	return &NonDeterminismError{Detail: detail}
}

func (e *NonDeterminismError) Error() string { return "non-determinism detected: " + e.Detail }

// CapacityError surfaces queue or signal-channel overflow (spec §3 bounded
// SignalChannel, §4.2 backpressure) to an HTTP 429/503.
type CapacityError struct {
	heyshError
	Resource string
}

func NewCapacityError(resource string) *CapacityError {
	return &CapacityError{Resource: resource}
}

func (e *CapacityError) Error() string { return "capacity exceeded: " + e.Resource }

// UserError is a 4xx-shaped error: bad input, unauthorized, unknown id.
type UserError struct {
	heyshError
	Detail string
	Status int
}

func NewUserError(status int, detail string) *UserError {
	return &UserError{Detail: detail, Status: status}
}

func (e *UserError) Error() string { return e.Detail }

// AlreadyStartedError is returned by StartWorkflow under a conflicting
// id-reuse-policy (spec §4.1).
type AlreadyStartedError struct {
	heyshError
	WorkflowID string
	RunID      string
}

func NewAlreadyStartedError(workflowID, runID string) *AlreadyStartedError {
	return &AlreadyStartedError{WorkflowID: workflowID, RunID: runID}
}

func (e *AlreadyStartedError) Error() string {
	return fmt.Sprintf("workflow %s already started (runID=%s)", e.WorkflowID, e.RunID)
}

// NotFoundError is returned when a workflow_id/run_id pair is unknown.
type NotFoundError struct {
	heyshError
	WorkflowID string
}

func NewNotFoundError(workflowID string) *NotFoundError {
	return &NotFoundError{WorkflowID: workflowID}
}

func (e *NotFoundError) Error() string { return "workflow not found: " + e.WorkflowID }

func typeName(err error) string {
	if err == nil {
		return ""
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// IsRetryable reports whether err should be retried given a policy's
// non-retryable type list, walking the cause chain exactly as the teacher's
// IsRetryable does (internal/error.go).
func IsRetryable(err error, nonRetryableTypes []string) bool {
	if err == nil {
		return false
	}

	var terminated *TerminatedError
	var canceled *CanceledError
	if errors.As(err, &terminated) || errors.As(err, &canceled) {
		return false
	}

	var appErr *ApplicationError
	if errors.As(err, &appErr) && appErr.NonRetryable {
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		if timeoutErr.Kind != TimeoutStartToClose && timeoutErr.Kind != TimeoutHeartbeat {
			return false
		}
	}

	root := err
	for {
		cause := errors.Unwrap(root)
		if cause == nil {
			break
		}
		root = cause
	}
	rootType := typeName(root)
	for _, nonRetryable := range nonRetryableTypes {
		if nonRetryable == rootType {
			return false
		}
		if appErr != nil && nonRetryable == appErr.OriginalType {
			return false
		}
	}
	return true
}
