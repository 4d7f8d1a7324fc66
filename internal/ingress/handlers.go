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

package ingress

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	heysherrors "github.com/kpernyer/heysh-workflow/internal/errors"
	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/payload"
	"github.com/kpernyer/heysh-workflow/internal/workflows"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeStartError maps the orchestrator's typed errors onto spec §6.1's
// reserved status codes.
func writeStartError(w http.ResponseWriter, err error) {
	var already *heysherrors.AlreadyStartedError
	var user *heysherrors.UserError
	var capacity *heysherrors.CapacityError
	switch {
	case errors.As(err, &already):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &user):
		writeError(w, user.Status, user.Error())
	case errors.As(err, &capacity):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, "orchestrator unreachable")
	}
}

type startDocumentRequest struct {
	DocumentID string `json:"document_id"`
	DomainID   string `json:"domain_id"`
	FilePath   string `json:"file_path"`
}

func (s *Server) handleStartDocument(w http.ResponseWriter, r *http.Request) {
	var req startDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" || req.DomainID == "" || req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "document_id, domain_id and file_path are required")
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	in := workflows.DocumentProcessingInput{
		DocumentID:           req.DocumentID,
		TenantID:             req.DomainID,
		BlobPath:             req.FilePath,
		ContributorPrincipal: principal.ID,
	}
	input, err := payload.Encode(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, err = s.orch.StartWorkflow(r.Context(), orchestrator.StartOptions{
		WorkflowID:   "document:" + req.DocumentID,
		WorkflowType: workflows.WorkflowTypeDocumentProcessing,
		TenantID:     req.DomainID,
		Input:        input,
	})
	if err != nil {
		writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": "document:" + req.DocumentID, "status": "processing"})
}

type startQuestionRequest struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	DomainID   string `json:"domain_id"`
	UserID     string `json:"user_id"`
}

func (s *Server) handleStartQuestion(w http.ResponseWriter, r *http.Request) {
	var req startQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == "" || req.Question == "" || req.DomainID == "" {
		writeError(w, http.StatusBadRequest, "question_id, question and domain_id are required")
		return
	}

	in := workflows.QuestionAnsweringInput{
		QuestionID:     req.QuestionID,
		QuestionText:   req.Question,
		TenantID:       req.DomainID,
		AskerPrincipal: req.UserID,
	}
	input, err := payload.Encode(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, err = s.orch.StartWorkflow(r.Context(), orchestrator.StartOptions{
		WorkflowID:   "question:" + req.QuestionID,
		WorkflowType: workflows.WorkflowTypeQuestionAnswering,
		TenantID:     req.DomainID,
		Input:        input,
	})
	if err != nil {
		writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": "question:" + req.QuestionID, "status": "processing"})
}

type startReviewRequest struct {
	ReviewID       string `json:"review_id"`
	ReviewableType string `json:"reviewable_type"`
	ReviewableID   string `json:"reviewable_id"`
	DomainID       string `json:"domain_id"`
}

func (s *Server) handleStartReview(w http.ResponseWriter, r *http.Request) {
	var req startReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReviewID == "" || req.ReviewableType == "" || req.ReviewableID == "" || req.DomainID == "" {
		writeError(w, http.StatusBadRequest, "review_id, reviewable_type, reviewable_id and domain_id are required")
		return
	}

	in := workflows.QualityReviewInput{
		ReviewID:       req.ReviewID,
		ReviewableType: req.ReviewableType,
		ReviewableID:   req.ReviewableID,
		TenantID:       req.DomainID,
	}
	input, err := payload.Encode(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, err = s.orch.StartWorkflow(r.Context(), orchestrator.StartOptions{
		WorkflowID:   "review:" + req.ReviewID,
		WorkflowType: workflows.WorkflowTypeQualityReview,
		TenantID:     req.DomainID,
		Input:        input,
	})
	if err != nil {
		writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": "review:" + req.ReviewID, "status": "processing"})
}

func (s *Server) handleDescribeWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflow_id")
	exec, err := s.orch.DescribeWorkflow(r.Context(), workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown workflow id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": exec.WorkflowID,
		"run_id":      exec.RunID,
		"type":        exec.WorkflowType,
		"status":      string(exec.Status),
		"started_at":  exec.StartedAt,
		"closed_at":   exec.ClosedAt,
	})
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflow_id")
	exec, err := s.orch.DescribeWorkflow(r.Context(), workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown workflow id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": string(exec.Status), "type": exec.WorkflowType})
}

func (s *Server) handleWorkflowResults(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflow_id")
	exec, err := s.orch.DescribeWorkflow(r.Context(), workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown workflow id")
		return
	}
	if exec.Status != orchestrator.StatusCompleted {
		writeJSON(w, http.StatusOK, map[string]any{"result": nil, "message": "workflow has not completed"})
		return
	}
	var result map[string]any
	if err := payload.Decode(exec.Result, &result); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"result": nil, "message": "result not decodable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	domainID := q.Get("domain_id")
	status := q.Get("status")
	queue := q.Get("queue")

	if status == "pending" && queue != "" {
		items, err := s.reviews.Pending(r.Context(), queue)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "orchestrator unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workflows": items})
		return
	}

	if domainID == "" {
		writeError(w, http.StatusBadRequest, "domain_id or status+queue is required")
		return
	}
	execs, err := s.orch.ListByTenant(r.Context(), domainID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator unreachable")
		return
	}
	out := make([]map[string]any, 0, len(execs))
	for _, e := range execs {
		out = append(out, map[string]any{
			"workflow_id": e.WorkflowID,
			"type":        e.WorkflowType,
			"status":      string(e.Status),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

type signalRequest struct {
	SignalName string          `json:"signal_name"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *Server) handleSignalWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflow_id")
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SignalName == "" {
		writeError(w, http.StatusBadRequest, "signal_name and payload are required")
		return
	}
	p := payload.Payload{ContentType: payload.EncodingJSON, Data: []byte(req.Payload)}
	if err := s.orch.SignalWorkflow(r.Context(), workflowID, req.SignalName, p); err != nil {
		var notFound *heysherrors.NotFoundError
		var capacity *heysherrors.CapacityError
		switch {
		case errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &capacity):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, "orchestrator unreachable")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signaled"})
}

func (s *Server) handleInboxList(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	onlyUnread := r.URL.Query().Get("unread") == "true"
	items, err := s.inbox.List(r.Context(), principal.ID, onlyUnread)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "inbox unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleInboxMarkRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seq")
		return
	}
	if err := s.inbox.MarkRead(r.Context(), principal.ID, seq); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) handleInboxUnreadCount(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	n, err := s.inbox.UnreadCount(r.Context(), principal.ID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "inbox unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}
