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
	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/workflow"
)

// DocumentProcessing implements the C5a state machine (spec §4.4):
//
//	INITIAL -> DOWNLOADING -> EXTRACTING -> ASSESSING ->
//	(AUTO_APPROVED | PENDING_REVIEW | AUTO_REJECTED) ->
//	(EMBEDDING & GRAPHING in parallel) -> METADATA_UPDATING ->
//	PUBLISHED | ARCHIVED
func DocumentProcessing(ctx workflow.Context, input payload.Payload) (payload.Payload, error) {
	var in DocumentProcessingInput
	if err := payload.Decode(input, &in); err != nil {
		return payload.Payload{}, err
	}

	setStatus := func(status string) error {
		return ctx.UpsertSearchAttributes(map[string]any{
			"status":      status,
			"tenant_id":   in.TenantID,
			"document_id": in.DocumentID,
		})
	}

	if err := setStatus("DOWNLOADING"); err != nil {
		return payload.Payload{}, err
	}
	dl, err := runActivity[activity.DownloadBlobInput, activity.DownloadBlobOutput](
		ctx, ActivityDownloadBlob, QueueStorage, defaultStartToClose,
		activity.DownloadBlobInput{TenantID: in.TenantID, BlobPath: in.BlobPath})
	if err != nil {
		return archiveDocument(ctx, in, "download_failed: "+err.Error())
	}

	if err := setStatus("EXTRACTING"); err != nil {
		return payload.Payload{}, err
	}
	extracted, err := runActivity[activity.ExtractTextInput, activity.ExtractTextOutput](
		ctx, ActivityExtractTextAndChunk, QueueAIProcessing, llmStartToClose,
		activity.ExtractTextInput{TenantID: in.TenantID, LocalPath: dl.LocalPath, MIMEType: dl.MIMEType})
	if err != nil {
		return archiveDocument(ctx, in, "extraction_failed: "+err.Error())
	}

	if err := setStatus("ASSESSING"); err != nil {
		return payload.Payload{}, err
	}
	assessment, err := runActivity[activity.AssessRelevanceInput, activity.AssessRelevanceOutput](
		ctx, ActivityAssessRelevance, QueueAIProcessing, llmStartToClose,
		activity.AssessRelevanceInput{TenantID: in.TenantID, Chunks: extracted.Chunks})
	if err != nil {
		return archiveDocument(ctx, in, "assessment_failed: "+err.Error())
	}

	decidedBy := "system"
	switch {
	case assessment.Score < in.Policy.RelevanceThreshold:
		if err := setStatus("AUTO_REJECTED"); err != nil {
			return payload.Payload{}, err
		}
		return archiveDocument(ctx, in, "auto_rejected: relevance score below threshold")

	case assessment.Score >= in.Policy.AutoApproveThreshold:
		if err := setStatus("AUTO_APPROVED"); err != nil {
			return payload.Payload{}, err
		}

	default:
		decision, err := awaitReviewDecision(ctx, in, assessment)
		if err != nil {
			return payload.Payload{}, err
		}
		if decision == nil {
			// Second timeout: auto-reject with a user-visible reason.
			if err := setStatus("AUTO_REJECTED"); err != nil {
				return payload.Payload{}, err
			}
			return archiveDocument(ctx, in, "review_timeout")
		}
		if decision.Decision != "approve" {
			if err := setStatus("AUTO_REJECTED"); err != nil {
				return payload.Payload{}, err
			}
			return archiveDocument(ctx, in, "rejected_by_reviewer: "+decision.Comment)
		}
		decidedBy = decision.ReviewerPrincipal
	}

	// EMBEDDING & GRAPHING in parallel: schedule both before blocking on
	// either, so the worker pool can run them concurrently.
	embedFut := ctx.ExecuteActivity(workflow.ActivityRequest{
		ActivityType:        ActivityGenerateEmbeddings,
		Queue:                QueueAIProcessing,
		StartToCloseTimeout:  llmStartToClose,
		Input: mustEncode(activity.GenerateEmbeddingsInput{
			TenantID: in.TenantID, DocumentID: in.DocumentID, Chunks: extracted.Chunks,
		}),
	})
	graphFut := ctx.ExecuteActivity(workflow.ActivityRequest{
		ActivityType:        ActivityExtractGraphEntities,
		Queue:                QueueAIProcessing,
		StartToCloseTimeout:  llmStartToClose,
		Input: mustEncode(activity.ExtractGraphEntitiesInput{
			TenantID: in.TenantID, DocumentID: in.DocumentID, Chunks: extracted.Chunks,
		}),
	})

	embedResultPayload, embedErr := embedFut.Get()
	graphResultPayload, graphErr := graphFut.Get()
	if embedErr != nil || graphErr != nil {
		if err := setStatus("ARCHIVED"); err != nil {
			return payload.Payload{}, err
		}
		return archiveDocument(ctx, in, "indexing_failed")
	}
	var embedOut activity.GenerateEmbeddingsOutput
	if err := payload.Decode(embedResultPayload, &embedOut); err != nil {
		return payload.Payload{}, err
	}
	var graphOut activity.ExtractGraphEntitiesOutput
	if err := payload.Decode(graphResultPayload, &graphOut); err != nil {
		return payload.Payload{}, err
	}

	// Schedule the two upserts in parallel too; on either permanent failure,
	// compensate by deleting the successful counterpart (spec §4.4, S4).
	vecFut := ctx.ExecuteActivity(workflow.ActivityRequest{
		ActivityType:        ActivityUpsertVectorIndex,
		Queue:                QueueStorage,
		StartToCloseTimeout:  defaultStartToClose,
		Input: mustEncode(activity.UpsertVectorIndexInput{
			TenantID: in.TenantID, DocumentID: in.DocumentID, VectorIDs: embedOut.VectorIDs,
		}),
	})
	graphUpsertFut := ctx.ExecuteActivity(workflow.ActivityRequest{
		ActivityType:        ActivityUpsertGraph,
		Queue:                QueueStorage,
		StartToCloseTimeout:  defaultStartToClose,
		Input: mustEncode(activity.UpsertGraphInput{
			TenantID: in.TenantID, DocumentID: in.DocumentID, EntityIDs: graphOut.EntityIDs,
		}),
	})
	_, vecErr := vecFut.Get()
	_, graphUpsertErr := graphUpsertFut.Get()

	if vecErr != nil || graphUpsertErr != nil {
		rolledBack := false
		if vecErr == nil && graphUpsertErr != nil {
			_, _ = runActivity[activity.DeleteVectorIndexInput, struct{}](
				ctx, ActivityDeleteVectorIndex, QueueStorage, defaultStartToClose,
				activity.DeleteVectorIndexInput{TenantID: in.TenantID, DocumentID: in.DocumentID})
			rolledBack = true
		}
		if graphUpsertErr == nil && vecErr != nil {
			_, _ = runActivity[activity.DeleteGraphInput, struct{}](
				ctx, ActivityDeleteGraph, QueueStorage, defaultStartToClose,
				activity.DeleteGraphInput{TenantID: in.TenantID, DocumentID: in.DocumentID})
			rolledBack = true
		}
		if err := setStatus("ARCHIVED"); err != nil {
			return payload.Payload{}, err
		}
		return payload.Payload{}, partialPublishFailed(ctx, decidedBy, rolledBack)
	}

	if err := setStatus("METADATA_UPDATING"); err != nil {
		return payload.Payload{}, err
	}
	_, metaErr := runActivity[activity.UpdateMetadataInput, struct{}](
		ctx, ActivityUpdateMetadata, QueueGeneral, defaultStartToClose,
		activity.UpdateMetadataInput{
			TenantID: in.TenantID, DocumentID: in.DocumentID, Status: "PUBLISHED",
			Fields: map[string]any{"decided_by": decidedBy},
		})
	if metaErr != nil {
		_, _ = runActivity[activity.DeleteVectorIndexInput, struct{}](
			ctx, ActivityDeleteVectorIndex, QueueStorage, defaultStartToClose,
			activity.DeleteVectorIndexInput{TenantID: in.TenantID, DocumentID: in.DocumentID})
		_, _ = runActivity[activity.DeleteGraphInput, struct{}](
			ctx, ActivityDeleteGraph, QueueStorage, defaultStartToClose,
			activity.DeleteGraphInput{TenantID: in.TenantID, DocumentID: in.DocumentID})
		if err := setStatus("ARCHIVED"); err != nil {
			return payload.Payload{}, err
		}
		return payload.Payload{}, partialPublishFailed(ctx, decidedBy, true)
	}

	if err := setStatus("PUBLISHED"); err != nil {
		return payload.Payload{}, err
	}
	result := DocumentProcessingResult{State: "PUBLISHED"}
	if decidedBy != "system" {
		result.DecidedBy = decidedBy
	}
	return payload.Encode(result)
}

// awaitReviewDecision blocks in PENDING_REVIEW for in.Policy.ReviewDeadline;
// on first timeout it escalates (re-upserts attributes, notifies
// stakeholders) and waits once more; on a second timeout it returns
// (nil, nil), signaling the caller to auto-reject.
func awaitReviewDecision(ctx workflow.Context, in DocumentProcessingInput, assessment activity.AssessRelevanceOutput) (*ReviewDecisionSignal, error) {
	deadline := in.Policy.ReviewDeadline
	if deadline <= 0 {
		deadline = reviewEscalateAfter
	}
	if err := ctx.UpsertSearchAttributes(map[string]any{
		"Assignee":       "controller",
		"Queue":          "document-review",
		"Status":         "pending",
		"Priority":       "normal",
		"DueAt":          ctx.Now().Add(deadline),
		"Tenant":         in.TenantID,
		"DocumentId":     in.DocumentID,
		"ContributorId":  in.ContributorPrincipal,
		"RelevanceScore": assessment.Score,
	}); err != nil {
		return nil, err
	}

	ch := ctx.GetSignalChannel(SignalControllerDecision)

	for attempt := 0; attempt < 2; attempt++ {
		timer := ctx.NewTimer(deadline)
		p, signaled := waitSignalOrTimeout(ch, timer)
		if signaled {
			var decision ReviewDecisionSignal
			if err := payload.Decode(p, &decision); err != nil {
				return nil, err
			}
			return &decision, nil
		}
		if attempt == 0 {
			if err := ctx.UpsertSearchAttributes(map[string]any{"Priority": "high"}); err != nil {
				return nil, err
			}
			_, _ = runActivity[activity.NotifyStakeholdersInput, struct{}](
				ctx, ActivityNotifyStakeholders, QueueGeneral, defaultStartToClose,
				activity.NotifyStakeholdersInput{
					TenantID: in.TenantID,
					Subject:  "Document review overdue: " + in.DocumentID,
					Body:     "Relevance score is borderline; review has not been actioned within the deadline.",
				})
		}
	}
	return nil, nil
}

// partialPublishFailed records the rollback outcome on the run's search
// attributes and returns the typed error that ends the run FAILED with
// reason partial_publish_rolled_back (spec §4.4 S4, §7): compensating by
// deleting the surviving counterpart index is not itself a successful
// outcome, so the run must not be reported completed.
func partialPublishFailed(ctx workflow.Context, decidedBy string, rolledBack bool) error {
	_ = ctx.UpsertSearchAttributes(map[string]any{
		"decided_by":  decidedBy,
		"rolled_back": rolledBack,
	})
	return heysherrors.NewApplicationError("partial_publish_rolled_back", true, nil, nil)
}

func archiveDocument(ctx workflow.Context, in DocumentProcessingInput, reason string) (payload.Payload, error) {
	_, _ = runActivity[activity.UpdateMetadataInput, struct{}](
		ctx, ActivityUpdateMetadata, QueueGeneral, defaultStartToClose,
		activity.UpdateMetadataInput{
			TenantID: in.TenantID, DocumentID: in.DocumentID, Status: "ARCHIVED",
			Fields: map[string]any{"reason": reason},
		})
	return payload.Encode(DocumentProcessingResult{State: "ARCHIVED", Reason: reason})
}
