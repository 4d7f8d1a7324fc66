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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpernyer/heysh-workflow/internal/payload"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	fn := func(ctx Context, input payload.Payload) (payload.Payload, error) {
		return payload.Payload{}, nil
	}
	r.Register("noop", Registration{Fn: fn, HeartbeatTimeout: 5 * time.Second})

	reg, ok := r.Lookup("noop")
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, reg.HeartbeatTimeout)
}

func TestRegistryLookupMiss(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("does_not_exist")
	assert.False(t, ok)
}

func TestRegisterAllBindsEveryActivityType(t *testing.T) {
	r := NewRegistry()
	RegisterAll(r, Deps{})

	for _, at := range []string{
		ActivityDownloadBlob, ActivityExtractTextAndChunk, ActivityAssessRelevance,
		ActivityGenerateEmbeddings, ActivityExtractGraphEntities, ActivityUpsertVectorIndex,
		ActivityUpsertGraph, ActivityDeleteVectorIndex, ActivityDeleteGraph,
		ActivityUpdateMetadata, ActivityNotifyStakeholders, ActivityVectorSearch,
		ActivityGraphNeighbors, ActivityGenerateAnswer, ActivityScoreConfidence,
		ActivityCreateReviewTask,
	} {
		_, ok := r.Lookup(at)
		assert.True(t, ok, "activity type %s not registered", at)
	}
}

func TestNotifyStakeholdersNoopsWithoutNotifyFunc(t *testing.T) {
	deps := Deps{}
	in, err := payload.Encode(NotifyStakeholdersInput{TenantID: "t1", Subject: "s", Body: "b"})
	require.NoError(t, err)

	_, err = deps.notifyStakeholders(Context{Context: context.Background()}, in)
	assert.NoError(t, err)
}

func TestNotifyStakeholdersCallsNotify(t *testing.T) {
	var gotTenant, gotSubject string
	deps := Deps{Notify: func(tenantID, subject, body string, targets []string) error {
		gotTenant, gotSubject = tenantID, subject
		return nil
	}}
	in, err := payload.Encode(NotifyStakeholdersInput{TenantID: "t1", Subject: "ready for review", Targets: []string{"u1"}})
	require.NoError(t, err)

	_, err = deps.notifyStakeholders(Context{Context: context.Background()}, in)
	require.NoError(t, err)
	assert.Equal(t, "t1", gotTenant)
	assert.Equal(t, "ready for review", gotSubject)
}
