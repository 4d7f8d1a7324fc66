package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpernyer/heysh-workflow/internal/fanout"
	"github.com/kpernyer/heysh-workflow/internal/hitl"
	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/workflow"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type fakeScheduler struct{}

func (fakeScheduler) Schedule(orchestrator.ScheduledActivity) {}

type fakeTimers struct{}

func (fakeTimers) AfterFunc(d time.Duration, f func()) {}

func waitingWorkflow(ctx workflow.Context, input payload.Payload) (payload.Payload, error) {
	if err := ctx.UpsertSearchAttributes(map[string]any{
		"Assignee": "controller",
		"Queue":    "document-review",
		"Status":   "pending",
	}); err != nil {
		return payload.Payload{}, err
	}
	ch := ctx.GetSignalChannel("controller_decision")
	ch.Receive()
	return payload.Encode(map[string]string{"state": "PUBLISHED"})
}

func newTestServer() (*Server, *orchestrator.Orchestrator) {
	store := orchestrator.NewMemStore()
	orch := orchestrator.New(store, fakeScheduler{}, fakeTimers{}, fakeClock{time.Now()})
	orch.RegisterWorkflow("document_processing", waitingWorkflow)

	reviews := hitl.New(orch, store)
	hub := fanout.NewHub(fanout.NewMemStore(), nil)

	srv := New(Config{
		Orchestrator: orch,
		Reviews:      reviews,
		Inbox:        hub,
		Auth:         NoopAuthenticator{},
	})
	return srv, orch
}

func doRequest(srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestStartDocumentRequiresAuth(t *testing.T) {
	srv, _ := newTestServer()
	rec := doRequest(srv, http.MethodPost, "/api/v1/documents", "", map[string]string{
		"document_id": "d1", "domain_id": "t1", "file_path": "x.txt",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartDocumentAccepted(t *testing.T) {
	srv, _ := newTestServer()
	rec := doRequest(srv, http.MethodPost, "/api/v1/documents", "u1", map[string]string{
		"document_id": "d1", "domain_id": "t1", "file_path": "x.txt",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "document:d1", resp["workflow_id"])
	assert.Equal(t, "processing", resp["status"])
}

func TestStartDocumentDuplicateConflicts(t *testing.T) {
	srv, _ := newTestServer()
	doRequest(srv, http.MethodPost, "/api/v1/documents", "u1", map[string]string{
		"document_id": "d1", "domain_id": "t1", "file_path": "x.txt",
	})
	rec := doRequest(srv, http.MethodPost, "/api/v1/documents", "u1", map[string]string{
		"document_id": "d1", "domain_id": "t1", "file_path": "x.txt",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDescribeUnknownWorkflowNotFound(t *testing.T) {
	srv, _ := newTestServer()
	rec := doRequest(srv, http.MethodGet, "/api/v1/workflows/nope", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPendingReviewListingAndSignalCompletesWorkflow(t *testing.T) {
	srv, orch := newTestServer()
	rec := doRequest(srv, http.MethodPost, "/api/v1/documents", "u1", map[string]string{
		"document_id": "d1", "domain_id": "t1", "file_path": "x.txt",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	time.Sleep(10 * time.Millisecond)

	rec = doRequest(srv, http.MethodGet, "/api/v1/workflows?status=pending&queue=document-review", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	workflowsList, ok := listing["workflows"].([]any)
	require.True(t, ok)
	require.Len(t, workflowsList, 1)

	rec = doRequest(srv, http.MethodPost, "/api/v1/workflows/document:d1/signal", "u1", map[string]any{
		"signal_name": "controller_decision",
		"payload":     map[string]string{"decision": "approve", "reviewer": "u1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	time.Sleep(10 * time.Millisecond)
	exec, err := orch.DescribeWorkflow(context.Background(), "document:d1")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, exec.Status)
}

func TestInboxUnreadCount(t *testing.T) {
	srv, _ := newTestServer()
	rec := doRequest(srv, http.MethodGet, "/api/v1/inbox/signals/unread-count", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp["unread_count"])
}
