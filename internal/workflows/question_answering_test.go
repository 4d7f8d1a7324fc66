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

func startQuestion(t *testing.T, rig *testRig, workflowID string) {
	t.Helper()
	in, err := payload.Encode(QuestionAnsweringInput{
		QuestionID: workflowID, QuestionText: "What does Alpha contribute?",
		TenantID: "t1", AskerPrincipal: "u-asker",
	})
	require.NoError(t, err)
	_, err = rig.Orch.StartWorkflow(context.Background(), orchestrator.StartOptions{
		WorkflowID: workflowID, WorkflowType: WorkflowTypeQuestionAnswering, TenantID: "t1", Input: in,
	})
	require.NoError(t, err)
}

// A confident answer is persisted straight through: vector_search and
// graph_neighbors both feed generate_answer, score_confidence clears the
// threshold, and no QualityReview child is ever spawned.
func TestQuestionAnsweringHighConfidenceSkipsReview(t *testing.T) {
	rig := newTestRig(t)
	rig.LLM.ScoreFn = func(string) float64 { return 0.9 }
	rig.LLM.CompleteFn = func(string) string { return "Alpha provides the relevance signal." }

	startQuestion(t, rig, "q-confident")

	exec := awaitTerminal(t, rig.Orch, "q-confident", 5*time.Second)
	require.Equal(t, orchestrator.StatusCompleted, exec.Status)

	var result QuestionAnsweringResult
	require.NoError(t, payload.Decode(exec.Result, &result))
	assert.Equal(t, "Alpha provides the relevance signal.", result.Answer)
	assert.False(t, result.Reviewed)
}

// S6 — a low-confidence answer spawns a QualityReview child, blocks on it,
// and resumes once review_decision=approve is signaled to the child.
func TestQuestionAnsweringLowConfidenceSpawnsReviewChild(t *testing.T) {
	rig := newTestRig(t)
	rig.LLM.ScoreFn = func(string) float64 { return 0.3 }
	rig.LLM.CompleteFn = func(string) string { return "Tentative answer." }

	startQuestion(t, rig, "q-s6")

	var childID string
	require.Eventually(t, func() bool {
		execs, err := rig.Store.ListByAttributes(context.Background(), func(attrs map[string]any) bool {
			return attrs["reviewable_id"] == "q-s6" && attrs["status"] == "pending"
		})
		if err != nil || len(execs) == 0 {
			return false
		}
		childID = execs[0].WorkflowID
		return true
	}, 2*time.Second, 5*time.Millisecond, "QualityReview child never reached pending")

	childExec, err := rig.Orch.DescribeWorkflow(context.Background(), childID)
	require.NoError(t, err)
	assert.Equal(t, "t1", childExec.SearchAttrs["tenant_id"])
	assert.Equal(t, "answer", childExec.SearchAttrs["reviewable_type"])

	decisionPayload, err := payload.Encode(ReviewDecisionSignal{Decision: "approve", ReviewerPrincipal: "u1"})
	require.NoError(t, err)
	require.NoError(t, rig.Orch.SignalWorkflow(context.Background(), childID, SignalReviewDecision, decisionPayload))

	final := awaitTerminal(t, rig.Orch, "q-s6", 5*time.Second)
	require.Equal(t, orchestrator.StatusCompleted, final.Status)

	var result QuestionAnsweringResult
	require.NoError(t, payload.Decode(final.Result, &result))
	assert.Equal(t, "Tentative answer.", result.Answer)
	assert.True(t, result.Reviewed)
}
