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

// Activity type names: the registration keys Registry looks Funcs up by, and
// the keys workflow definitions schedule against. internal/workflows
// re-exports these as its own constants so workflow code can refer to them
// unqualified.
const (
	ActivityDownloadBlob         = "download_blob"
	ActivityExtractTextAndChunk  = "extract_text_and_chunk"
	ActivityAssessRelevance      = "assess_relevance"
	ActivityGenerateEmbeddings   = "generate_embeddings"
	ActivityExtractGraphEntities = "extract_graph_entities"
	ActivityUpsertVectorIndex    = "upsert_vector_index"
	ActivityUpsertGraph          = "upsert_graph"
	ActivityDeleteVectorIndex    = "delete_vector_index"
	ActivityDeleteGraph          = "delete_graph"
	ActivityUpdateMetadata       = "update_metadata"
	ActivityNotifyStakeholders   = "notify_stakeholders"
	ActivityVectorSearch         = "vector_search"
	ActivityGraphNeighbors       = "graph_neighbors"
	ActivityGenerateAnswer       = "generate_answer"
	ActivityScoreConfidence      = "score_confidence"
	ActivityCreateReviewTask     = "create_review_task"
)
