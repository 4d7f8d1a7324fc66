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

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kpernyer/heysh-workflow/internal/adapters/blob"
	"github.com/kpernyer/heysh-workflow/internal/adapters/graph"
	"github.com/kpernyer/heysh-workflow/internal/adapters/llm"
	"github.com/kpernyer/heysh-workflow/internal/adapters/metadata"
	"github.com/kpernyer/heysh-workflow/internal/adapters/vector"
	"github.com/kpernyer/heysh-workflow/internal/payload"
)

// Deps bundles every adapter the C1 activities call through. Built once at
// process startup and closed over by the Funcs Register binds.
type Deps struct {
	Blob     blob.Store
	Vector   vector.Index
	Graph    graph.Graph
	LLM      llm.Client
	Metadata metadata.Store
	Notify   func(tenantID, subject, body string, targets []string) error
}

// chunkSize is the naive fixed-width chunking boundary extract_text_and_chunk
// splits on (character count, not tokens: good enough for ranking and far
// simpler than a tokenizer dependency).
const chunkSize = 2000

// RegisterAll binds every C1 activity to r using deps, with the heartbeat
// timeouts Open Question 3 resolved per activity (see DESIGN.md): storage and
// metadata calls get a short heartbeat since they either succeed quickly or
// hang; ai-processing calls calling out to an LLM get a longer one.
func RegisterAll(r *Registry, deps Deps) {
	r.Register(ActivityDownloadBlob, Registration{Fn: deps.downloadBlob, HeartbeatTimeout: 30 * time.Second})
	r.Register(ActivityExtractTextAndChunk, Registration{Fn: deps.extractTextAndChunk, HeartbeatTimeout: 30 * time.Second})
	r.Register(ActivityAssessRelevance, Registration{Fn: deps.assessRelevance, HeartbeatTimeout: 60 * time.Second})
	r.Register(ActivityGenerateEmbeddings, Registration{Fn: deps.generateEmbeddings, HeartbeatTimeout: 60 * time.Second})
	r.Register(ActivityExtractGraphEntities, Registration{Fn: deps.extractGraphEntities, HeartbeatTimeout: 60 * time.Second})
	r.Register(ActivityUpsertVectorIndex, Registration{Fn: deps.upsertVectorIndex, HeartbeatTimeout: 30 * time.Second})
	r.Register(ActivityUpsertGraph, Registration{Fn: deps.upsertGraph, HeartbeatTimeout: 30 * time.Second})
	r.Register(ActivityDeleteVectorIndex, Registration{Fn: deps.deleteVectorIndex, HeartbeatTimeout: 30 * time.Second})
	r.Register(ActivityDeleteGraph, Registration{Fn: deps.deleteGraph, HeartbeatTimeout: 30 * time.Second})
	r.Register(ActivityUpdateMetadata, Registration{Fn: deps.updateMetadata, HeartbeatTimeout: 15 * time.Second})
	r.Register(ActivityNotifyStakeholders, Registration{Fn: deps.notifyStakeholders, HeartbeatTimeout: 15 * time.Second})
	r.Register(ActivityVectorSearch, Registration{Fn: deps.vectorSearch, HeartbeatTimeout: 15 * time.Second})
	r.Register(ActivityGraphNeighbors, Registration{Fn: deps.graphNeighbors, HeartbeatTimeout: 15 * time.Second})
	r.Register(ActivityGenerateAnswer, Registration{Fn: deps.generateAnswer, HeartbeatTimeout: 60 * time.Second})
	r.Register(ActivityScoreConfidence, Registration{Fn: deps.scoreConfidence, HeartbeatTimeout: 60 * time.Second})
	r.Register(ActivityCreateReviewTask, Registration{Fn: deps.createReviewTask, HeartbeatTimeout: 15 * time.Second})
}

func decodeInto[T any](p payload.Payload) (T, error) {
	var v T
	err := payload.Decode(p, &v)
	return v, err
}

func (d Deps) downloadBlob(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[DownloadBlobInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	obj, err := d.Blob.Download(ctx, in.TenantID, in.BlobPath)
	if err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(DownloadBlobOutput{
		LocalPath: in.BlobPath,
		SizeBytes: int64(len(obj.Data)),
		MIMEType:  obj.MIMEType,
	})
}

// extractTextAndChunk has no real text-extraction backend wired (no PDF/OCR
// library appears anywhere in the example corpus); it downloads the blob at
// LocalPath again and chunks its raw bytes as UTF-8 text, falling back to
// chunking the path string itself when that download fails, which is enough
// to exercise the rest of the pipeline deterministically in tests.
func (d Deps) extractTextAndChunk(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[ExtractTextInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	obj, err := d.Blob.Download(ctx, in.TenantID, in.LocalPath)
	text := in.LocalPath
	if err == nil {
		text = string(obj.Data)
	}
	var chunks []string
	for len(text) > 0 {
		n := chunkSize
		if n > len(text) {
			n = len(text)
		}
		for n > 0 && !utf8.ValidString(text[:n]) {
			n--
		}
		chunks = append(chunks, text[:n])
		text = text[n:]
	}
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	return payload.Encode(ExtractTextOutput{Chunks: chunks})
}

func (d Deps) assessRelevance(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[AssessRelevanceInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	score, err := d.LLM.Score(ctx, "Assess the relevance of this document:\n"+strings.Join(in.Chunks, "\n"))
	if err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(AssessRelevanceOutput{Score: score})
}

func (d Deps) generateEmbeddings(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[GenerateEmbeddingsInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	ids := make([]string, len(in.Chunks))
	for i := range in.Chunks {
		ids[i] = fmt.Sprintf("%s:%d", in.DocumentID, i)
	}
	if err := d.Vector.Upsert(ctx, in.TenantID, in.DocumentID, ids, in.Chunks); err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(GenerateEmbeddingsOutput{VectorIDs: ids})
}

func (d Deps) extractGraphEntities(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[ExtractGraphEntitiesInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	ids := make([]string, 0, len(in.Chunks))
	for i, chunk := range in.Chunks {
		for _, word := range strings.Fields(chunk) {
			if len(word) > 0 && word[0] >= 'A' && word[0] <= 'Z' {
				ids = append(ids, fmt.Sprintf("%s:%d:%s", in.DocumentID, i, word))
			}
		}
	}
	if len(ids) == 0 {
		ids = []string{in.DocumentID + ":entity:0"}
	}
	return payload.Encode(ExtractGraphEntitiesOutput{EntityIDs: ids})
}

func (d Deps) upsertVectorIndex(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[UpsertVectorIndexInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	if err := d.Vector.Upsert(ctx, in.TenantID, in.DocumentID, in.VectorIDs, nil); err != nil {
		return payload.Payload{}, err
	}
	return payload.Payload{}, nil
}

func (d Deps) upsertGraph(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[UpsertGraphInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	if err := d.Graph.Upsert(ctx, in.TenantID, in.DocumentID, in.EntityIDs); err != nil {
		return payload.Payload{}, err
	}
	return payload.Payload{}, nil
}

func (d Deps) deleteVectorIndex(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[DeleteVectorIndexInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	return payload.Payload{}, d.Vector.Delete(ctx, in.TenantID, in.DocumentID)
}

func (d Deps) deleteGraph(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[DeleteGraphInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	return payload.Payload{}, d.Graph.Delete(ctx, in.TenantID, in.DocumentID)
}

func (d Deps) updateMetadata(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[UpdateMetadataInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	err = d.Metadata.Update(ctx, metadata.Record{
		TenantID: in.TenantID, DocumentID: in.DocumentID, Status: in.Status, Fields: in.Fields,
	})
	return payload.Payload{}, err
}

func (d Deps) notifyStakeholders(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[NotifyStakeholdersInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	if d.Notify == nil {
		return payload.Payload{}, nil
	}
	return payload.Payload{}, d.Notify(in.TenantID, in.Subject, in.Body, in.Targets)
}

func (d Deps) vectorSearch(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[VectorSearchInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	docIDs, snippets, err := d.Vector.Search(ctx, in.TenantID, in.QuestionText, in.TopK)
	if err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(VectorSearchOutput{DocumentIDs: docIDs, Snippets: snippets})
}

func (d Deps) graphNeighbors(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[GraphNeighborsInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	entityIDs, snippets, err := d.Graph.Neighbors(ctx, in.TenantID, in.QuestionText, in.Depth)
	if err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(GraphNeighborsOutput{EntityIDs: entityIDs, Snippets: snippets})
}

func (d Deps) generateAnswer(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[GenerateAnswerInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	prompt := fmt.Sprintf("Question: %s\n\nContext:\n%s", in.QuestionText, strings.Join(in.Context, "\n---\n"))
	answer, err := d.LLM.Complete(ctx, prompt)
	if err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(GenerateAnswerOutput{Answer: answer})
}

func (d Deps) scoreConfidence(ctx Context, input payload.Payload) (payload.Payload, error) {
	in, err := decodeInto[ScoreConfidenceInput](input)
	if err != nil {
		return payload.Payload{}, err
	}
	prompt := fmt.Sprintf("Question: %s\nAnswer: %s\nContext:\n%s", in.QuestionText, in.Answer, strings.Join(in.Context, "\n---\n"))
	confidence, err := d.LLM.Score(ctx, prompt)
	if err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(ScoreConfidenceOutput{Confidence: confidence})
}

func (d Deps) createReviewTask(ctx Context, input payload.Payload) (payload.Payload, error) {
	if _, err := decodeInto[CreateReviewTaskInput](input); err != nil {
		return payload.Payload{}, err
	}
	return payload.Encode(CreateReviewTaskOutput{ReviewID: uuid.NewString()})
}
