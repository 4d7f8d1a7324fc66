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

// Package workflows holds the three concrete workflow definitions (C5):
// document processing, question answering, and quality review.
package workflows

import "time"

const (
	WorkflowTypeDocumentProcessing = "document_processing"
	WorkflowTypeQuestionAnswering  = "question_answering"
	WorkflowTypeQualityReview      = "quality_review"
)

// Policy carries the per-tenant thresholds named in spec §4.4.
type Policy struct {
	AutoApproveThreshold float64
	RelevanceThreshold   float64
	ReviewDeadline       time.Duration
}

// DocumentProcessingInput is spec §4.4's workflow input.
type DocumentProcessingInput struct {
	DocumentID          string
	TenantID            string
	BlobPath            string
	ContributorPrincipal string
	Policy              Policy
}

// DocumentProcessingResult is what the workflow returns on completion. Field
// names follow spec §8's literal scenario assertions (state, decided_by,
// reason) verbatim, since ingress callers match on these keys. A partial
// publish rollback is not a completion - it fails the run (see
// partialPublishFailed) - so this type never carries that outcome.
type DocumentProcessingResult struct {
	State     string `json:"state"` // PUBLISHED | ARCHIVED
	DecidedBy string `json:"decided_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// QuestionAnsweringInput is spec §4.5's workflow input.
type QuestionAnsweringInput struct {
	QuestionID    string
	QuestionText  string
	TenantID      string
	AskerPrincipal string
}

// QuestionAnsweringResult is returned on completion.
type QuestionAnsweringResult struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Reviewed   bool    `json:"reviewed"`
}

// QualityReviewInput is spec §4.6's workflow input; Reviewable identifies
// what is under review (a document or an answer).
type QualityReviewInput struct {
	ReviewID       string
	ReviewableType string
	ReviewableID   string
	TenantID       string
}

// QualityReviewResult is returned on completion.
type QualityReviewResult struct {
	Decision string `json:"decision"` // approve | reject | rollback
	Reviewer string `json:"reviewer"`
}

// ReviewDecisionSignal is the payload carried by the controller_decision /
// review_decision signal (spec §3 ReviewDecision). Field tags follow the
// literal signal payload shape callers send, e.g. {"decision":"approve",
// "reviewer":"u1"}.
type ReviewDecisionSignal struct {
	Decision          string    `json:"decision"` // approve | reject | changes_requested | rollback
	ReviewerPrincipal string    `json:"reviewer"`
	Comment           string    `json:"comment,omitempty"`
	DecidedAt         time.Time `json:"decided_at,omitempty"`
}
