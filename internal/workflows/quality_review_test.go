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

	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/payload"
)

func startQualityReview(t *testing.T, rig *testRig, workflowID, reviewableID string) {
	t.Helper()
	in, err := payload.Encode(QualityReviewInput{
		ReviewID: workflowID, ReviewableType: "document", ReviewableID: reviewableID, TenantID: "t1",
	})
	require.NoError(t, err)
	_, err = rig.Orch.StartWorkflow(context.Background(), orchestrator.StartOptions{
		WorkflowID: workflowID, WorkflowType: WorkflowTypeQualityReview, TenantID: "t1", Input: in,
	})
	require.NoError(t, err)
}

func TestQualityReviewApprove(t *testing.T) {
	rig := newTestRig(t)
	startQualityReview(t, rig, "qr-approve", "doc-1")

	decisionPayload, err := payload.Encode(ReviewDecisionSignal{Decision: "approve", ReviewerPrincipal: "u1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return rig.Orch.SignalWorkflow(context.Background(), "qr-approve", SignalReviewDecision, decisionPayload) == nil
	}, time.Second, 5*time.Millisecond)

	exec := awaitTerminal(t, rig.Orch, "qr-approve", 5*time.Second)
	require.Equal(t, orchestrator.StatusCompleted, exec.Status)

	var result QualityReviewResult
	require.NoError(t, payload.Decode(exec.Result, &result))
	assert.Equal(t, "approve", result.Decision)
	assert.Equal(t, "u1", result.Reviewer)
	assert.Equal(t, "resolved", exec.SearchAttrs["status"])
}

func TestQualityReviewReject(t *testing.T) {
	rig := newTestRig(t)
	startQualityReview(t, rig, "qr-reject", "doc-2")

	decisionPayload, err := payload.Encode(ReviewDecisionSignal{Decision: "reject", ReviewerPrincipal: "u2", Comment: "missing citations"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return rig.Orch.SignalWorkflow(context.Background(), "qr-reject", SignalReviewDecision, decisionPayload) == nil
	}, time.Second, 5*time.Millisecond)

	exec := awaitTerminal(t, rig.Orch, "qr-reject", 5*time.Second)
	require.Equal(t, orchestrator.StatusCompleted, exec.Status)

	var result QualityReviewResult
	require.NoError(t, payload.Decode(exec.Result, &result))
	assert.Equal(t, "reject", result.Decision)
}

func TestQualityReviewRollbackDeletesIndexEntries(t *testing.T) {
	rig := newTestRig(t)
	startQualityReview(t, rig, "qr-rollback", "doc-3")

	decisionPayload, err := payload.Encode(ReviewDecisionSignal{Decision: "rollback", ReviewerPrincipal: "u3"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return rig.Orch.SignalWorkflow(context.Background(), "qr-rollback", SignalReviewDecision, decisionPayload) == nil
	}, time.Second, 5*time.Millisecond)

	exec := awaitTerminal(t, rig.Orch, "qr-rollback", 5*time.Second)
	require.Equal(t, orchestrator.StatusCompleted, exec.Status)

	var result QualityReviewResult
	require.NoError(t, payload.Decode(exec.Result, &result))
	assert.Equal(t, "rollback", result.Decision)
}
