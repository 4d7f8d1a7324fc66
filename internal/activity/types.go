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

package activity

// Input/output shapes shared between the workflow definitions that schedule
// these activities (internal/workflows) and the implementations that run
// them (this package's activities.go). Kept here rather than duplicated so
// encode/decode on either side agree on field names.

type DownloadBlobInput struct {
	TenantID string
	BlobPath string
}

type DownloadBlobOutput struct {
	LocalPath string
	SizeBytes int64
	MIMEType  string
}

type ExtractTextInput struct {
	TenantID  string
	LocalPath string
	MIMEType  string
}

type ExtractTextOutput struct {
	Chunks []string
}

type AssessRelevanceInput struct {
	TenantID string
	Chunks   []string
}

type AssessRelevanceOutput struct {
	Score float64
	Notes string
}

type GenerateEmbeddingsInput struct {
	TenantID   string
	DocumentID string
	Chunks     []string
}

type GenerateEmbeddingsOutput struct {
	VectorIDs []string
}

type ExtractGraphEntitiesInput struct {
	TenantID   string
	DocumentID string
	Chunks     []string
}

type ExtractGraphEntitiesOutput struct {
	EntityIDs []string
}

type UpsertVectorIndexInput struct {
	TenantID   string
	DocumentID string
	VectorIDs  []string
}

type UpsertGraphInput struct {
	TenantID   string
	DocumentID string
	EntityIDs  []string
}

type DeleteVectorIndexInput struct {
	TenantID   string
	DocumentID string
}

type DeleteGraphInput struct {
	TenantID   string
	DocumentID string
}

type UpdateMetadataInput struct {
	TenantID   string
	DocumentID string
	Status     string
	Fields     map[string]any
}

type NotifyStakeholdersInput struct {
	TenantID string
	Subject  string
	Body     string
	Targets  []string
}

type VectorSearchInput struct {
	TenantID     string
	QuestionText string
	TopK         int
}

type VectorSearchOutput struct {
	DocumentIDs []string
	Snippets    []string
}

type GraphNeighborsInput struct {
	TenantID     string
	QuestionText string
	Depth        int
}

type GraphNeighborsOutput struct {
	EntityIDs []string
	Snippets  []string
}

type GenerateAnswerInput struct {
	TenantID     string
	QuestionText string
	Context      []string
}

type GenerateAnswerOutput struct {
	Answer string
}

type ScoreConfidenceInput struct {
	TenantID     string
	QuestionText string
	Answer       string
	Context      []string
}

type ScoreConfidenceOutput struct {
	Confidence float64
}

type CreateReviewTaskInput struct {
	TenantID       string
	ReviewableType string
	ReviewableID   string
	Reason         string
}

type CreateReviewTaskOutput struct {
	ReviewID string
}
