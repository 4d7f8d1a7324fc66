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
	"github.com/kpernyer/heysh-workflow/internal/activity"
	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/workflow"
)

// confidenceThreshold is θ from spec §4.5: below this, the answer is routed
// through a QualityReview child before being persisted.
const confidenceThreshold = 0.6

// QuestionAnswering implements C5b (spec §4.5):
//
//	vector_search ∥ graph_neighbors -> generate_answer -> score_confidence ->
//	  if confidence < θ: create_review_task spawns a QualityReview child,
//	  await its result (or abandon on timeout) -> update_metadata
func QuestionAnswering(ctx workflow.Context, input payload.Payload) (payload.Payload, error) {
	var in QuestionAnsweringInput
	if err := payload.Decode(input, &in); err != nil {
		return payload.Payload{}, err
	}

	if err := ctx.UpsertSearchAttributes(map[string]any{
		"status":    "RETRIEVING",
		"tenant_id": in.TenantID,
	}); err != nil {
		return payload.Payload{}, err
	}

	// vector_search and graph_neighbors both feed generate_answer's context,
	// so both results are required (an AND-join), not a race: schedule both
	// up front and let the worker pool run them concurrently.
	vecFut := ctx.ExecuteActivity(workflow.ActivityRequest{
		ActivityType:        ActivityVectorSearch,
		Queue:                QueueStorage,
		StartToCloseTimeout:  defaultStartToClose,
		Input: mustEncode(activity.VectorSearchInput{
			TenantID: in.TenantID, QuestionText: in.QuestionText, TopK: 8,
		}),
	})
	graphFut := ctx.ExecuteActivity(workflow.ActivityRequest{
		ActivityType:        ActivityGraphNeighbors,
		Queue:                QueueStorage,
		StartToCloseTimeout:  defaultStartToClose,
		Input: mustEncode(activity.GraphNeighborsInput{
			TenantID: in.TenantID, QuestionText: in.QuestionText, Depth: 2,
		}),
	})

	vecResultPayload, vecErr := vecFut.Get()
	graphResultPayload, graphErr := graphFut.Get()
	if vecErr != nil {
		return payload.Payload{}, vecErr
	}
	if graphErr != nil {
		return payload.Payload{}, graphErr
	}
	var vecOut activity.VectorSearchOutput
	if err := payload.Decode(vecResultPayload, &vecOut); err != nil {
		return payload.Payload{}, err
	}
	var graphOut activity.GraphNeighborsOutput
	if err := payload.Decode(graphResultPayload, &graphOut); err != nil {
		return payload.Payload{}, err
	}

	retrieved := append(append([]string{}, vecOut.Snippets...), graphOut.Snippets...)

	if err := ctx.UpsertSearchAttributes(map[string]any{"status": "GENERATING"}); err != nil {
		return payload.Payload{}, err
	}
	answerOut, err := runActivity[activity.GenerateAnswerInput, activity.GenerateAnswerOutput](
		ctx, ActivityGenerateAnswer, QueueAIProcessing, llmStartToClose,
		activity.GenerateAnswerInput{TenantID: in.TenantID, QuestionText: in.QuestionText, Context: retrieved})
	if err != nil {
		return payload.Payload{}, err
	}

	confidenceOut, err := runActivity[activity.ScoreConfidenceInput, activity.ScoreConfidenceOutput](
		ctx, ActivityScoreConfidence, QueueAIProcessing, llmStartToClose,
		activity.ScoreConfidenceInput{
			TenantID: in.TenantID, QuestionText: in.QuestionText,
			Answer: answerOut.Answer, Context: retrieved,
		})
	if err != nil {
		return payload.Payload{}, err
	}

	reviewed := false
	finalAnswer := answerOut.Answer
	if confidenceOut.Confidence < confidenceThreshold {
		if err := ctx.UpsertSearchAttributes(map[string]any{"status": "PENDING_REVIEW"}); err != nil {
			return payload.Payload{}, err
		}
		reviewTask, err := runActivity[activity.CreateReviewTaskInput, activity.CreateReviewTaskOutput](
			ctx, ActivityCreateReviewTask, QueueGeneral, defaultStartToClose,
			activity.CreateReviewTaskInput{
				TenantID: in.TenantID, ReviewableType: "answer", ReviewableID: in.QuestionID,
				Reason: "confidence below threshold",
			})
		if err == nil {
			childFut := ctx.ExecuteChildWorkflow(workflow.ChildWorkflowRequest{
				WorkflowType: WorkflowTypeQualityReview,
				WorkflowID:   "review-" + reviewTask.ReviewID,
				Input: mustEncode(QualityReviewInput{
					ReviewID: reviewTask.ReviewID, ReviewableType: "answer",
					ReviewableID: in.QuestionID, TenantID: in.TenantID,
				}),
			})
			childResultPayload, childErr := childFut.Get()
			if childErr == nil {
				var reviewResult QualityReviewResult
				if err := payload.Decode(childResultPayload, &reviewResult); err == nil {
					reviewed = true
					if reviewResult.Decision == "reject" {
						finalAnswer = ""
					}
				}
			}
			// On child timeout/failure the answer is persisted as-is
			// (spec §4.5: "or abandons on timeout").
		}
	}

	if err := ctx.UpsertSearchAttributes(map[string]any{"status": "PERSISTING"}); err != nil {
		return payload.Payload{}, err
	}
	_, err = runActivity[activity.UpdateMetadataInput, struct{}](
		ctx, ActivityUpdateMetadata, QueueGeneral, defaultStartToClose,
		activity.UpdateMetadataInput{
			TenantID: in.TenantID, DocumentID: in.QuestionID, Status: "ANSWERED",
			Fields: map[string]any{"answer": finalAnswer, "confidence": confidenceOut.Confidence, "reviewed": reviewed},
		})
	if err != nil {
		return payload.Payload{}, err
	}

	if err := ctx.UpsertSearchAttributes(map[string]any{"status": "COMPLETED"}); err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(QuestionAnsweringResult{
		Answer: finalAnswer, Confidence: confidenceOut.Confidence, Reviewed: reviewed,
	})
}
