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

package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeUpdateAndGet(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	require.NoError(t, f.Update(ctx, Record{TenantID: "t1", DocumentID: "d1", Status: "PUBLISHED"}))

	rec, ok, err := f.Get(ctx, "t1", "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PUBLISHED", rec.Status)
}

func TestFakeUpdateIsIdempotentOverwrite(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	require.NoError(t, f.Update(ctx, Record{TenantID: "t1", DocumentID: "d1", Status: "PENDING_REVIEW"}))
	require.NoError(t, f.Update(ctx, Record{TenantID: "t1", DocumentID: "d1", Status: "ARCHIVED", Fields: map[string]any{"reason": "review_timeout"}}))

	rec, ok, err := f.Get(ctx, "t1", "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ARCHIVED", rec.Status)
	assert.Equal(t, "review_timeout", rec.Fields["reason"])
}

func TestFakeGetMissingRecord(t *testing.T) {
	f := NewFake()
	_, ok, err := f.Get(context.Background(), "t1", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
