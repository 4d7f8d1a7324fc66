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

// Package hitl is the human-in-the-loop review queue (spec §4.4/§4.6/§6.1):
// it turns the orchestrator's generic SearchAttrs predicate scan
// (internal/orchestrator.Store.ListByAttributes) into the typed
// "pending reviews on queue X" listing the ingress GET /workflows endpoint
// serves, and wraps SignalWorkflow for the controller_decision/
// review_decision verbs a reviewer submits.
package hitl

import (
	"context"
	"sort"

	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/payload"
)

// PendingItem is one entry in a review queue listing.
type PendingItem struct {
	WorkflowID     string
	RunID          string
	TenantID       string
	Assignee       string
	Queue          string
	Priority       string
	RelevanceScore float64
	DocumentID     string
	ContributorID  string
}

// Reviews wraps an Orchestrator with the listing/decision verbs the ingress
// layer's /workflows and /workflows/{id}/signal handlers need.
type Reviews struct {
	orch *orchestrator.Orchestrator
	list func(ctx context.Context, predicate func(map[string]any) bool) ([]*orchestrator.Execution, error)
}

// Lister is implemented by orchestrator.Store; Reviews only needs the
// attribute scan, not the full Store surface.
type Lister interface {
	ListByAttributes(ctx context.Context, predicate func(map[string]any) bool) ([]*orchestrator.Execution, error)
}

// New builds a Reviews query helper. orch handles signal delivery; store
// backs the listing (normally the same Store the Orchestrator was built
// with).
func New(orch *orchestrator.Orchestrator, store Lister) *Reviews {
	return &Reviews{orch: orch, list: store.ListByAttributes}
}

// Pending returns workflows currently sitting at status=pending on the
// named queue (spec §6.1: GET /workflows?status=pending&queue=...),
// oldest-started first.
func (r *Reviews) Pending(ctx context.Context, queue string) ([]PendingItem, error) {
	execs, err := r.list(ctx, func(attrs map[string]any) bool {
		return attrs["Status"] == "pending" && attrs["Queue"] == queue
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].StartedAt.Before(execs[j].StartedAt) })

	out := make([]PendingItem, 0, len(execs))
	for _, e := range execs {
		out = append(out, PendingItem{
			WorkflowID:     e.WorkflowID,
			RunID:          e.RunID,
			TenantID:       e.TenantID,
			Assignee:       stringAttr(e.SearchAttrs, "Assignee"),
			Queue:          stringAttr(e.SearchAttrs, "Queue"),
			Priority:       stringAttr(e.SearchAttrs, "Priority"),
			RelevanceScore: floatAttr(e.SearchAttrs, "RelevanceScore"),
			DocumentID:     stringAttr(e.SearchAttrs, "DocumentId"),
			ContributorID:  stringAttr(e.SearchAttrs, "ContributorId"),
		})
	}
	return out, nil
}

// Decide delivers a reviewer's decision to the named signal channel on the
// given workflow (controller_decision for document processing, or
// review_decision for quality review).
func (r *Reviews) Decide(ctx context.Context, workflowID, signalName string, p payload.Payload) error {
	return r.orch.SignalWorkflow(ctx, workflowID, signalName, p)
}

func stringAttr(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatAttr(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
