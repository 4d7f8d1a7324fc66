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

// Package metadata is the port (spec §6.3) behind update_metadata: the
// system-of-record row each document/answer gets, independent of the
// vector/graph indexes that back retrieval.
package metadata

import "context"

// Record is one tenant-scoped document or answer's current published state.
type Record struct {
	TenantID   string
	DocumentID string
	Status     string
	Fields     map[string]any
}

// Store upserts Records keyed by (tenant_id, document_id), matching spec
// §4.4's idempotency requirement: the same (tenant_id, document_id) update
// applied twice must not double-apply side effects.
type Store interface {
	Update(ctx context.Context, rec Record) error
	Get(ctx context.Context, tenantID, documentID string) (Record, bool, error)
}
