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

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemGraphUpsertAndNeighbors(t *testing.T) {
	g := NewMemGraph()
	ctx := context.Background()

	require.NoError(t, g.Upsert(ctx, "t1", "doc-1", []string{"alpha", "beta"}))
	require.NoError(t, g.Upsert(ctx, "t1", "doc-2", []string{"gamma"}))

	entityIDs, snippets, err := g.Neighbors(ctx, "t1", "anything", 2)
	require.NoError(t, err)
	assert.Len(t, snippets, len(entityIDs))
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, entityIDs)
}

func TestMemGraphNeighborsRespectsDepthLimit(t *testing.T) {
	g := NewMemGraph()
	ctx := context.Background()
	require.NoError(t, g.Upsert(ctx, "t1", "doc-1", []string{"a", "b", "c", "d", "e"}))

	entityIDs, _, err := g.Neighbors(ctx, "t1", "q", 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entityIDs), 4)
}

func TestMemGraphIsolatesTenants(t *testing.T) {
	g := NewMemGraph()
	ctx := context.Background()
	require.NoError(t, g.Upsert(ctx, "t1", "doc-1", []string{"alpha"}))
	require.NoError(t, g.Upsert(ctx, "t2", "doc-1", []string{"beta"}))

	entityIDs, _, err := g.Neighbors(ctx, "t1", "q", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, entityIDs)
}

func TestMemGraphDelete(t *testing.T) {
	g := NewMemGraph()
	ctx := context.Background()
	require.NoError(t, g.Upsert(ctx, "t1", "doc-1", []string{"alpha"}))
	require.NoError(t, g.Delete(ctx, "t1", "doc-1"))

	entityIDs, _, err := g.Neighbors(ctx, "t1", "q", 4)
	require.NoError(t, err)
	assert.Empty(t, entityIDs)
}
