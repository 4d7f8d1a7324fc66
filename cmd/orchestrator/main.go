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

// Command orchestrator runs the durable core plus the HTTP/WS ingress: it
// owns WorkflowExecution state and serves spec §6.1's API. It runs no
// worker pool: activity execution lives in cmd/worker, which builds its own
// in-process router and Orchestrator against the same Store, so nothing
// polls the queues of the router built here (see DESIGN.md's note on
// cmd/worker).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kpernyer/heysh-workflow/internal/clock"
	"github.com/kpernyer/heysh-workflow/internal/config"
	"github.com/kpernyer/heysh-workflow/internal/fanout"
	"github.com/kpernyer/heysh-workflow/internal/hitl"
	"github.com/kpernyer/heysh-workflow/internal/ingress"
	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/router"
	"github.com/kpernyer/heysh-workflow/internal/workflows"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("orchestrator: building logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("orchestrator: loading config", zap.Error(err))
	}

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("orchestrator: connecting to postgres", zap.Error(err))
	}
	defer pool.Close()
	store := orchestrator.NewPGStore(pool)

	rt := router.New(router.DefaultConfig())

	clk := clock.New()
	timers := newTimerService()

	orch := orchestrator.New(store, rt, timers, clk)
	workflows.RegisterAll(orch)

	running, err := store.ListByAttributes(context.Background(), func(map[string]any) bool { return true })
	if err != nil {
		logger.Warn("orchestrator: listing executions to resume", zap.Error(err))
	}
	runningOnly := running[:0:0]
	for _, e := range running {
		if e.Status == orchestrator.StatusRunning {
			runningOnly = append(runningOnly, e)
		}
	}
	if err := orch.Resume(context.Background(), runningOnly); err != nil {
		logger.Warn("orchestrator: resuming running executions", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	hub := fanout.NewHub(fanout.NewMemStore(), rdb)
	reviews := hitl.New(orch, store)

	server := ingress.New(ingress.Config{
		Orchestrator: orch,
		Reviews:      reviews,
		Inbox:        hub,
		Auth:         ingress.NoopAuthenticator{},
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming /ws connections stay open indefinitely
	}

	go func() {
		logger.Info("orchestrator: listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("orchestrator: http server", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("orchestrator: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

// timerService is the production TimerService: a thin time.AfterFunc
// wrapper, matching the shape orchestrator.TimerService expects.
type timerService struct{}

func newTimerService() timerService { return timerService{} }

func (timerService) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }
