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

// Package ingress is the HTTP/WS boundary (spec §6.1): a chi router exposing
// the workflow-starting, introspection, HITL, and inbox endpoints, plus a
// streaming /ws upgrade. It is the only place domain_id (the external name)
// and tenant_id (the internal one, see DESIGN.md Open Question 1) meet.
package ingress

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kpernyer/heysh-workflow/internal/fanout"
	"github.com/kpernyer/heysh-workflow/internal/hitl"
	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/workflows"
)

// Server bundles everything an ingress handler needs to reach the durable
// core: the orchestrator for Start/Describe/Signal, the hitl helper for
// review-queue listings, and the fanout Hub for the inbox/streaming surface.
type Server struct {
	orch     *orchestrator.Orchestrator
	reviews  *hitl.Reviews
	inbox    *fanout.Hub
	auth     Authenticator
	log      *zap.Logger
	router   chi.Router
}

// Config carries the dependencies New wires into a Server.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Reviews      *hitl.Reviews
	Inbox        *fanout.Hub
	Auth         Authenticator
	Logger       *zap.Logger
}

// New builds a Server with all routes mounted under /api/v1.
func New(cfg Config) *Server {
	auth := cfg.Auth
	if auth == nil {
		auth = NoopAuthenticator{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:    cfg.Orchestrator,
		reviews: cfg.Reviews,
		inbox:   cfg.Inbox,
		auth:    auth,
		log:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.authMiddleware)

		api.Post("/documents", s.handleStartDocument)
		api.Post("/questions", s.handleStartQuestion)
		api.Post("/reviews", s.handleStartReview)

		api.Get("/workflows", s.handleListWorkflows)
		api.Get("/workflows/{workflow_id}", s.handleDescribeWorkflow)
		api.Get("/workflows/{workflow_id}/status", s.handleWorkflowStatus)
		api.Get("/workflows/{workflow_id}/results", s.handleWorkflowResults)
		api.Post("/workflows/{workflow_id}/signal", s.handleSignalWorkflow)

		api.Get("/inbox/signals", s.handleInboxList)
		api.Post("/inbox/signals/{seq}/read", s.handleInboxMarkRead)
		api.Get("/inbox/signals/unread-count", s.handleInboxUnreadCount)

		api.Get("/ws", s.handleWebsocket)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler so Server can be passed straight to
// http.Server/httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// signalNameForQueue lets the review-queue listing map a queue name back
// to the signal a reviewer's decision must be sent on.
var signalNameForQueue = map[string]string{
	"document-review": workflows.SignalControllerDecision,
	"quality-review":   workflows.SignalReviewDecision,
}
