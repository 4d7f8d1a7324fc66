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

package blob

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Store for tests and local development.
type Fake struct {
	mu      sync.Mutex
	objects map[string]Object
}

func NewFake() *Fake { return &Fake{objects: make(map[string]Object)} }

func (f *Fake) Put(tenantID, path string, obj Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key(tenantID, path)] = obj
}

func (f *Fake) Download(ctx context.Context, tenantID, path string) (Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key(tenantID, path)]
	if !ok {
		return Object{}, fmt.Errorf("blob: no such object %s/%s", tenantID, path)
	}
	return obj, nil
}

func key(tenantID, path string) string { return tenantID + "/" + path }
