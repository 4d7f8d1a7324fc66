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

package workflows

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kpernyer/heysh-workflow/internal/activity"
	"github.com/kpernyer/heysh-workflow/internal/adapters/blob"
	"github.com/kpernyer/heysh-workflow/internal/adapters/graph"
	"github.com/kpernyer/heysh-workflow/internal/adapters/llm"
	"github.com/kpernyer/heysh-workflow/internal/adapters/metadata"
	"github.com/kpernyer/heysh-workflow/internal/adapters/vector"
	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/router"
	"github.com/kpernyer/heysh-workflow/internal/worker"

	fbclock "github.com/facebookgo/clock"
)

// realTimers is the production TimerService: a thin time.AfterFunc wrapper.
type realTimers struct{}

func (realTimers) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

// faultyGraph wraps a real MemGraph so a test can make upsert_graph fail on
// demand, to exercise document_processing's partial-publish rollback (S4)
// without a fault-injection knob leaking into the production adapter.
type faultyGraph struct {
	*graph.MemGraph
	FailUpsert bool
}

func (g *faultyGraph) Upsert(ctx context.Context, tenantID, documentID string, entityIDs []string) error {
	if g.FailUpsert {
		// NonRetryable: true so the test doesn't sit through five
		// exponential-backoff attempts before the workflow compensates.
		return heysherrors.NewApplicationError("graph: simulated upsert failure", true, nil, nil)
	}
	return g.MemGraph.Upsert(ctx, tenantID, documentID, entityIDs)
}

// testRig wires a real Orchestrator, Router, and worker pool against fake
// adapters, mirroring cmd/orchestrator and cmd/worker's wiring (see
// DESIGN.md's cmd/orchestrator, cmd/worker entry) but in one process so
// tests can drive and observe a full run.
type testRig struct {
	Orch   *orchestrator.Orchestrator
	Store  *orchestrator.MemStore
	Blob   *blob.Fake
	LLM    *llm.Fake
	Graph  *faultyGraph
	Worker *worker.Worker
}

// newTestRig builds a rig whose Clock is a mock frozen at its zero value.
// Every workflow timer's FireTime therefore lands far in the real past, so
// realTimers' time.AfterFunc fires it on the next scheduler tick instead of
// after the real duration requested — letting S3's 24h review-escalation
// timeout run in milliseconds without touching the workflow's own notion of
// elapsed time.
func newTestRig(t *testing.T) *testRig {
	t.Helper()

	store := orchestrator.NewMemStore()
	rt := router.New(router.DefaultConfig())
	mockClock := fbclock.NewMock()

	orch := orchestrator.New(store, rt, realTimers{}, mockClock)
	RegisterAll(orch)

	fakeBlob := blob.NewFake()
	fakeLLM := llm.NewFake()
	fakeGraph := &faultyGraph{MemGraph: graph.NewMemGraph()}

	registry := activity.NewRegistry()
	activity.RegisterAll(registry, activity.Deps{
		Blob:     fakeBlob,
		Vector:   vector.NewMemIndex(),
		Graph:    fakeGraph,
		LLM:      fakeLLM,
		Metadata: metadata.NewFake(),
		Notify:   func(tenantID, subject, body string, targets []string) error { return nil },
	})

	w := worker.New(rt, orch, registry, mockClock, zap.NewNop(), worker.Options{
		Identity:        "test",
		Queues:          []string{QueueAIProcessing, QueueStorage, QueueGeneral},
		LongPollTimeout: 50 * time.Millisecond,
		Concurrency: map[string]int{
			QueueAIProcessing: 5, QueueStorage: 20, QueueGeneral: 50,
		},
	})
	w.Start()
	t.Cleanup(w.Stop)

	return &testRig{Orch: orch, Store: store, Blob: fakeBlob, LLM: fakeLLM, Graph: fakeGraph, Worker: w}
}

// awaitTerminal polls the store until workflowID reaches any status other
// than RUNNING, or the deadline elapses.
func awaitTerminal(t *testing.T, orch *orchestrator.Orchestrator, workflowID string, timeout time.Duration) *orchestrator.Execution {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		exec, err := orch.DescribeWorkflow(context.Background(), workflowID)
		if err == nil && exec.Status != orchestrator.StatusRunning {
			return exec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("workflow %s did not reach a terminal state within %s", workflowID, timeout)
	return nil
}
