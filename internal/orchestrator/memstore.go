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

package orchestrator

import (
	"context"
	"sync"

	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/history"
)

// MemStore is an in-memory Store, used by tests and single-process
// deployments. It is safe for concurrent use.
type MemStore struct {
	mu    sync.RWMutex
	byWF  map[string]*Execution
	events map[string][]history.Event
}

func NewMemStore() *MemStore {
	return &MemStore{byWF: make(map[string]*Execution), events: make(map[string][]history.Event)}
}

func (s *MemStore) CreateExecution(ctx context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exec
	s.byWF[exec.WorkflowID] = &cp
	return nil
}

func (s *MemStore) LoadExecution(ctx context.Context, workflowID string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.byWF[workflowID]
	if !ok {
		return nil, heysherrors.NewNotFoundError(workflowID)
	}
	cp := *exec
	return &cp, nil
}

func (s *MemStore) UpdateExecution(ctx context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exec
	s.byWF[exec.WorkflowID] = &cp
	return nil
}

func (s *MemStore) AppendEvents(ctx context.Context, runID string, events []history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[runID] = append(s.events[runID], events...)
	return nil
}

func (s *MemStore) LoadEvents(ctx context.Context, runID string) ([]history.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]history.Event, len(s.events[runID]))
	copy(out, s.events[runID])
	return out, nil
}

func (s *MemStore) ListByAttributes(ctx context.Context, predicate func(map[string]any) bool) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Execution
	for _, exec := range s.byWF {
		if predicate(exec.SearchAttrs) {
			cp := *exec
			out = append(out, &cp)
		}
	}
	return out, nil
}
