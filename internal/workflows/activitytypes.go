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
)

// Activity type names scheduled by the three workflow definitions, re-exported
// from internal/activity so workflow code can refer to them unqualified.
const (
	ActivityDownloadBlob         = activity.ActivityDownloadBlob
	ActivityExtractTextAndChunk  = activity.ActivityExtractTextAndChunk
	ActivityAssessRelevance      = activity.ActivityAssessRelevance
	ActivityGenerateEmbeddings   = activity.ActivityGenerateEmbeddings
	ActivityExtractGraphEntities = activity.ActivityExtractGraphEntities
	ActivityUpsertVectorIndex    = activity.ActivityUpsertVectorIndex
	ActivityUpsertGraph          = activity.ActivityUpsertGraph
	ActivityDeleteVectorIndex    = activity.ActivityDeleteVectorIndex
	ActivityDeleteGraph          = activity.ActivityDeleteGraph
	ActivityUpdateMetadata       = activity.ActivityUpdateMetadata
	ActivityNotifyStakeholders   = activity.ActivityNotifyStakeholders
	ActivityVectorSearch         = activity.ActivityVectorSearch
	ActivityGraphNeighbors       = activity.ActivityGraphNeighbors
	ActivityGenerateAnswer       = activity.ActivityGenerateAnswer
	ActivityScoreConfidence      = activity.ActivityScoreConfidence
	ActivityCreateReviewTask     = activity.ActivityCreateReviewTask
)

// Queue assignments, matching spec §4.2's three-tier task queue table.
const (
	QueueAIProcessing = "ai-processing"
	QueueStorage      = "storage"
	QueueGeneral      = "general"
)

// Timeouts used across workflow definitions. Per-activity heartbeat
// timeouts are registered alongside each activity implementation
// (RegisterAll in internal/activity/activities.go), not centralized here.
const (
	defaultStartToClose = 2 * time.Minute
	llmStartToClose     = 5 * time.Minute
	reviewEscalateAfter = 24 * time.Hour
)

// Signal channel names. DocumentProcessing awaits controller_decision
// (spec §4.4); QualityReview awaits review_decision (spec §4.6) — two
// distinct names for two distinct suspension points.
const (
	SignalControllerDecision = "controller_decision"
	SignalReviewDecision     = "review_decision"
)
