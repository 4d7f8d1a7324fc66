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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpernyer/heysh-workflow/internal/adapters/blob"
	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/payload"
)

func startDocument(t *testing.T, rig *testRig, workflowID string, policy Policy) *orchestrator.Execution {
	t.Helper()
	rig.Blob.Put("t1", "docs/"+workflowID, blob.Object{Data: []byte("Alpha Beta contributes context."), MIMEType: "text/plain"})

	in, err := payload.Encode(DocumentProcessingInput{
		DocumentID:           workflowID,
		TenantID:              "t1",
		BlobPath:               "docs/" + workflowID,
		ContributorPrincipal: "u-contrib",
		Policy:                 policy,
	})
	require.NoError(t, err)

	exec, err := rig.Orch.StartWorkflow(context.Background(), orchestrator.StartOptions{
		WorkflowID: workflowID, WorkflowType: WorkflowTypeDocumentProcessing, TenantID: "t1", Input: in,
	})
	require.NoError(t, err)
	return exec
}

// S1 — auto-approve: a high relevance score never blocks on review and
// never upserts the PENDING_REVIEW search attribute set.
func TestDocumentProcessingAutoApprove(t *testing.T) {
	rig := newTestRig(t)
	rig.LLM.ScoreFn = func(string) float64 { return 0.95 }

	startDocument(t, rig, "d-s1", Policy{AutoApproveThreshold: 0.8, RelevanceThreshold: 0.2, ReviewDeadline: time.Hour})

	exec := awaitTerminal(t, rig.Orch, "d-s1", 5*time.Second)
	require.Equal(t, orchestrator.StatusCompleted, exec.Status)

	var result DocumentProcessingResult
	require.NoError(t, payload.Decode(exec.Result, &result))
	assert.Equal(t, "PUBLISHED", result.State)
	assert.Empty(t, result.DecidedBy) // metadata records decided_by "system"; the result names no reviewer

	_, hadPending := exec.SearchAttrs["Status"]
	assert.False(t, hadPending, "auto-approve must never enter PENDING_REVIEW")
}

// S2 — HITL approval: a borderline score suspends on controller_decision;
// signaling approve publishes the document and records who decided it.
func TestDocumentProcessingHITLApprove(t *testing.T) {
	rig := newTestRig(t)
	rig.LLM.ScoreFn = func(string) float64 { return 0.5 }

	startDocument(t, rig, "d-s2", Policy{AutoApproveThreshold: 0.8, RelevanceThreshold: 0.2, ReviewDeadline: time.Hour})

	require.Eventually(t, func() bool {
		res, err := rig.Orch.QueryWorkflow(context.Background(), "d-s2", "")
		attrs, _ := res.(map[string]any)
		return err == nil && attrs["Status"] == "pending"
	}, 2*time.Second, 5*time.Millisecond, "workflow never reached PENDING_REVIEW")

	res, err := rig.Orch.QueryWorkflow(context.Background(), "d-s2", "")
	require.NoError(t, err)
	attrs := res.(map[string]any)
	assert.Equal(t, "controller", attrs["Assignee"])
	assert.Equal(t, "document-review", attrs["Queue"])
	assert.Equal(t, "normal", attrs["Priority"])
	assert.Equal(t, "t1", attrs["Tenant"])
	assert.Equal(t, "d-s2", attrs["DocumentId"])
	assert.Equal(t, "u-contrib", attrs["ContributorId"])
	assert.InDelta(t, 0.5, attrs["RelevanceScore"], 0.001)

	inputRes, err := rig.Orch.QueryWorkflow(context.Background(), "d-s2", "getInput")
	require.NoError(t, err)
	var gotInput DocumentProcessingInput
	require.NoError(t, payload.Decode(inputRes.(payload.Payload), &gotInput))
	assert.Equal(t, "d-s2", gotInput.DocumentID)

	decisionPayload, err := payload.Encode(ReviewDecisionSignal{Decision: "approve", ReviewerPrincipal: "u1"})
	require.NoError(t, err)
	require.NoError(t, rig.Orch.SignalWorkflow(context.Background(), "d-s2", SignalControllerDecision, decisionPayload))

	final := awaitTerminal(t, rig.Orch, "d-s2", 5*time.Second)
	require.Equal(t, orchestrator.StatusCompleted, final.Status)

	var result DocumentProcessingResult
	require.NoError(t, payload.Decode(final.Result, &result))
	assert.Equal(t, "PUBLISHED", result.State)
	assert.Equal(t, "u1", result.DecidedBy)
}

// S3 — review timeout escalation: no signal ever arrives, so the workflow
// escalates priority once and, after the second timeout, archives with the
// literal reason "review_timeout".
func TestDocumentProcessingReviewTimeoutEscalates(t *testing.T) {
	rig := newTestRig(t)
	rig.LLM.ScoreFn = func(string) float64 { return 0.5 }

	startDocument(t, rig, "d-s3", Policy{AutoApproveThreshold: 0.8, RelevanceThreshold: 0.2, ReviewDeadline: 24 * time.Hour})

	final := awaitTerminal(t, rig.Orch, "d-s3", 5*time.Second)
	require.Equal(t, orchestrator.StatusCompleted, final.Status)

	var result DocumentProcessingResult
	require.NoError(t, payload.Decode(final.Result, &result))
	assert.Equal(t, "ARCHIVED", result.State)
	assert.Equal(t, "review_timeout", result.Reason)
}

// S4 — partial publish rollback: the vector index upsert succeeds but the
// graph upsert fails, so the workflow compensates by deleting the vector
// entries it just wrote and archives rather than leaving a half-published
// document.
func TestDocumentProcessingPartialPublishRollsBack(t *testing.T) {
	rig := newTestRig(t)
	rig.LLM.ScoreFn = func(string) float64 { return 0.95 }
	rig.Graph.FailUpsert = true

	startDocument(t, rig, "d-s4", Policy{AutoApproveThreshold: 0.8, RelevanceThreshold: 0.2, ReviewDeadline: time.Hour})

	final := awaitTerminal(t, rig.Orch, "d-s4", 5*time.Second)
	require.Equal(t, orchestrator.StatusFailed, final.Status)
	assert.Equal(t, "partial_publish_rolled_back", final.FailureMessage)
	assert.Equal(t, true, final.SearchAttrs["rolled_back"])
}
