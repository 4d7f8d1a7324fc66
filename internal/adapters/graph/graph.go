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

// Package graph is the port (spec §6.3) behind extract_graph_entities'
// upsert_graph, delete_graph, and graph_neighbors activities. See DESIGN.md
// for why, like vector, only an in-memory implementation is provided.
package graph

import (
	"context"
	"sync"
)

// Graph is a per-tenant entity/relationship store.
type Graph interface {
	Upsert(ctx context.Context, tenantID, documentID string, entityIDs []string) error
	Delete(ctx context.Context, tenantID, documentID string) error
	Neighbors(ctx context.Context, tenantID, query string, depth int) (entityIDs []string, snippets []string, err error)
}

// MemGraph is an in-memory Graph: entities are attributed to the document
// that introduced them, and Neighbors returns the tenant's entities up to a
// limit of depth*4 (8 when depth <= 0). The query text is not matched
// against anything, and the order across documents is not defined.
type MemGraph struct {
	mu        sync.RWMutex
	byTenant  map[string]map[string][]string // tenantID -> documentID -> entityIDs
}

func NewMemGraph() *MemGraph {
	return &MemGraph{byTenant: make(map[string]map[string][]string)}
}

func (g *MemGraph) Upsert(ctx context.Context, tenantID, documentID string, entityIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.byTenant[tenantID] == nil {
		g.byTenant[tenantID] = make(map[string][]string)
	}
	g.byTenant[tenantID][documentID] = entityIDs
	return nil
}

func (g *MemGraph) Delete(ctx context.Context, tenantID, documentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.byTenant[tenantID], documentID)
	return nil
}

func (g *MemGraph) Neighbors(ctx context.Context, tenantID, query string, depth int) ([]string, []string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var entityIDs []string
	var snippets []string
	limit := depth * 4
	if limit <= 0 {
		limit = 8
	}
	for _, entities := range g.byTenant[tenantID] {
		for _, id := range entities {
			if len(entityIDs) >= limit {
				return entityIDs, snippets, nil
			}
			entityIDs = append(entityIDs, id)
			snippets = append(snippets, "entity:"+id)
		}
	}
	return entityIDs, snippets, nil
}
