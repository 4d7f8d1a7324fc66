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

package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemIndexSearchRanksByTermOverlap(t *testing.T) {
	idx := NewMemIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "t1", "doc-1", []string{"v1"}, []string{"Alpha provides the relevance signal for onboarding."}))
	require.NoError(t, idx.Upsert(ctx, "t1", "doc-2", []string{"v2"}, []string{"Totally unrelated content about cooking."}))

	docIDs, snippets, err := idx.Search(ctx, "t1", "relevance signal", 5)
	require.NoError(t, err)
	require.NotEmpty(t, docIDs)
	assert.Equal(t, "doc-1", docIDs[0])
	assert.Contains(t, snippets[0], "relevance signal")
}

func TestMemIndexSearchRespectsTopK(t *testing.T) {
	idx := NewMemIndex()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Upsert(ctx, "t1", string(rune('a'+i)), []string{"v"}, []string{"alpha beta"}))
	}

	docIDs, _, err := idx.Search(ctx, "t1", "alpha", 2)
	require.NoError(t, err)
	assert.Len(t, docIDs, 2)
}

func TestMemIndexDelete(t *testing.T) {
	idx := NewMemIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "t1", "doc-1", []string{"v1"}, []string{"alpha"}))
	require.NoError(t, idx.Delete(ctx, "t1", "doc-1"))

	docIDs, _, err := idx.Search(ctx, "t1", "alpha", 5)
	require.NoError(t, err)
	assert.Empty(t, docIDs)
}

func TestMemIndexIsolatesTenants(t *testing.T) {
	idx := NewMemIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "t1", "doc-1", []string{"v1"}, []string{"alpha"}))
	require.NoError(t, idx.Upsert(ctx, "t2", "doc-1", []string{"v1"}, []string{"alpha"}))

	docIDs, _, err := idx.Search(ctx, "t1", "alpha", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, docIDs)
}
