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

// Package vector is the port (spec §6.3) behind generate_embeddings'
// upsert_vector_index, delete_vector_index, and vector_search activities.
// See DESIGN.md for why the only implementation here is in-memory: no
// vector-database client appears anywhere in the example corpus, so a
// concrete adapter would not be grounded on anything in it.
package vector

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Index is a per-tenant nearest-neighbor index over document chunks.
type Index interface {
	Upsert(ctx context.Context, tenantID, documentID string, vectorIDs []string, chunks []string) error
	Delete(ctx context.Context, tenantID, documentID string) error
	Search(ctx context.Context, tenantID, query string, topK int) (documentIDs []string, snippets []string, err error)
}

type entry struct {
	documentID string
	chunks     []string
}

// MemIndex is an in-memory Index using term-overlap scoring in place of a
// real embedding model; it exists so vector_search is exercisable in tests
// and local runs without an external dependency.
type MemIndex struct {
	mu      sync.RWMutex
	entries map[string]map[string]entry // tenantID -> documentID -> entry
}

func NewMemIndex() *MemIndex {
	return &MemIndex{entries: make(map[string]map[string]entry)}
}

func (m *MemIndex) Upsert(ctx context.Context, tenantID, documentID string, vectorIDs []string, chunks []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[tenantID] == nil {
		m.entries[tenantID] = make(map[string]entry)
	}
	m.entries[tenantID][documentID] = entry{documentID: documentID, chunks: chunks}
	return nil
}

func (m *MemIndex) Delete(ctx context.Context, tenantID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[tenantID], documentID)
	return nil
}

func (m *MemIndex) Search(ctx context.Context, tenantID, query string, topK int) ([]string, []string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		documentID string
		snippet    string
		score      int
	}
	terms := strings.Fields(strings.ToLower(query))
	var results []scored
	for docID, e := range m.entries[tenantID] {
		best := ""
		bestScore := 0
		for _, chunk := range e.chunks {
			lower := strings.ToLower(chunk)
			score := 0
			for _, t := range terms {
				if strings.Contains(lower, t) {
					score++
				}
			}
			if score > bestScore {
				bestScore = score
				best = chunk
			}
		}
		results = append(results, scored{documentID: docID, snippet: best, score: bestScore})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	docIDs := make([]string, 0, len(results))
	snippets := make([]string, 0, len(results))
	for _, r := range results {
		docIDs = append(docIDs, r.documentID)
		snippets = append(snippets, r.snippet)
	}
	return docIDs, snippets, nil
}
