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

// Package activity is the C1 activity library: a registration table mapping
// activity_type to an implementation plus its own heartbeat timeout (Open
// Question 3 resolution, see DESIGN.md), and the concrete implementations
// themselves.
package activity

import (
	"context"
	"time"

	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/payload"
)

// Context is handed to every Func. Heartbeat must be called periodically by
// long-running activities (spec §5 heartbeat-driven liveness); Done fires
// when the activity should cooperatively cancel (spec §4.2, deadline is
// start_to_close_timeout/4 before the hard deadline).
type Context struct {
	context.Context
	WorkflowID       string
	RunID            string
	ScheduledEventID int64
	Attempt          int
	Heartbeat        func(details any)
}

// Func is one activity implementation. Activities must be idempotent: the
// router may redeliver the same (run_id, scheduled_event_id) after a lease
// expiry even if the prior attempt actually completed (spec §4.2/§8).
type Func func(ctx Context, input payload.Payload) (payload.Payload, error)

// Registration binds a Func to its own heartbeat timeout default, since the
// teacher attaches timeouts per call site rather than centralizing them
// (internal/internal_task_pollers.go ActivityOptions).
type Registration struct {
	Fn               Func
	HeartbeatTimeout time.Duration
}

// ErrActivityTypeNotRegistered is returned (wrapped in a non-retryable
// ApplicationError) when the worker pool receives a task for an
// activity_type with no Registration.
var ErrActivityTypeNotRegistered = heysherrors.NewApplicationError("activity type not registered", true, nil, nil)

// Registry is the table a worker pool resolves ActivityType against.
type Registry struct {
	entries map[string]Registration
}

func NewRegistry() *Registry { return &Registry{entries: make(map[string]Registration)} }

func (r *Registry) Register(activityType string, reg Registration) {
	r.entries[activityType] = reg
}

func (r *Registry) Lookup(activityType string) (Registration, bool) {
	reg, ok := r.entries[activityType]
	return reg, ok
}
