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

	"github.com/kpernyer/heysh-workflow/internal/activity"
	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/workflow"
)

// reviewAbandonAfter bounds how long QualityReview waits for a decision
// before abandoning: the parent (document processing or Q&A) is not blocked
// indefinitely on a reviewer who never responds (spec §4.5 "abandons on
// timeout").
const reviewAbandonAfter = 72 * time.Hour

// QualityReview implements C5c (spec §4.6). It is spawnable as a child of
// DocumentProcessing or QuestionAnswering, or started directly by an admin.
// It maintains `pending` search attributes, awaits review_decision, and
// applies the decision via the matching compensation activity.
func QualityReview(ctx workflow.Context, input payload.Payload) (payload.Payload, error) {
	var in QualityReviewInput
	if err := payload.Decode(input, &in); err != nil {
		return payload.Payload{}, err
	}

	if err := ctx.UpsertSearchAttributes(map[string]any{
		"status":          "pending",
		"tenant_id":       in.TenantID,
		"reviewable_type": in.ReviewableType,
		"reviewable_id":   in.ReviewableID,
	}); err != nil {
		return payload.Payload{}, err
	}

	ch := ctx.GetSignalChannel(SignalReviewDecision)
	timer := ctx.NewTimer(reviewAbandonAfter)
	p, signaled := waitSignalOrTimeout(ch, timer)
	if !signaled {
		if err := ctx.UpsertSearchAttributes(map[string]any{"status": "abandoned"}); err != nil {
			return payload.Payload{}, err
		}
		return payload.Encode(QualityReviewResult{Decision: "abandoned"})
	}

	var decision ReviewDecisionSignal
	if err := payload.Decode(p, &decision); err != nil {
		return payload.Payload{}, err
	}

	switch decision.Decision {
	case "approve":
		_, err := runActivity[activity.UpdateMetadataInput, struct{}](
			ctx, ActivityUpdateMetadata, QueueGeneral, defaultStartToClose,
			activity.UpdateMetadataInput{
				TenantID: in.TenantID, DocumentID: in.ReviewableID, Status: "PUBLISHED",
				Fields: map[string]any{"reviewed_by": decision.ReviewerPrincipal},
			})
		if err != nil {
			return payload.Payload{}, err
		}

	case "reject":
		_, err := runActivity[activity.UpdateMetadataInput, struct{}](
			ctx, ActivityUpdateMetadata, QueueGeneral, defaultStartToClose,
			activity.UpdateMetadataInput{
				TenantID: in.TenantID, DocumentID: in.ReviewableID, Status: "ARCHIVED",
				Fields: map[string]any{"reviewed_by": decision.ReviewerPrincipal, "comment": decision.Comment},
			})
		if err != nil {
			return payload.Payload{}, err
		}

	case "rollback":
		if _, err := runActivity[activity.DeleteVectorIndexInput, struct{}](
			ctx, ActivityDeleteVectorIndex, QueueStorage, defaultStartToClose,
			activity.DeleteVectorIndexInput{TenantID: in.TenantID, DocumentID: in.ReviewableID}); err != nil {
			return payload.Payload{}, err
		}
		if _, err := runActivity[activity.DeleteGraphInput, struct{}](
			ctx, ActivityDeleteGraph, QueueStorage, defaultStartToClose,
			activity.DeleteGraphInput{TenantID: in.TenantID, DocumentID: in.ReviewableID}); err != nil {
			return payload.Payload{}, err
		}
		_, err := runActivity[activity.UpdateMetadataInput, struct{}](
			ctx, ActivityUpdateMetadata, QueueGeneral, defaultStartToClose,
			activity.UpdateMetadataInput{
				TenantID: in.TenantID, DocumentID: in.ReviewableID, Status: "ARCHIVED",
				Fields: map[string]any{"reviewed_by": decision.ReviewerPrincipal, "rolled_back": true},
			})
		if err != nil {
			return payload.Payload{}, err
		}
	}

	if err := ctx.UpsertSearchAttributes(map[string]any{"status": "resolved"}); err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(QualityReviewResult{Decision: decision.Decision, Reviewer: decision.ReviewerPrincipal})
}
