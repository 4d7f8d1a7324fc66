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

// Command worker runs the C4 activity worker pool: it registers every C1
// activity against its adapters (blob, vector, graph, LLM, metadata) and
// polls the three task queues.
//
// This build keeps the router in-process alongside the worker pool rather
// than behind an RPC boundary (the teacher's own client/worker split is an
// in-process Dispatcher/Client pairing, not a networked service, and this
// repo carries no gRPC/HTTP transport between router and worker) — see
// DESIGN.md's note on cmd/worker for the scaling implication. cmd/worker and
// cmd/orchestrator share the same Postgres-backed Store so history and
// search attributes stay consistent if both are run against one database;
// running more than one worker binary against the same router requires
// moving the router's queues behind Redis, which is out of scope here.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kpernyer/heysh-workflow/internal/activity"
	"github.com/kpernyer/heysh-workflow/internal/adapters/blob"
	"github.com/kpernyer/heysh-workflow/internal/adapters/graph"
	"github.com/kpernyer/heysh-workflow/internal/adapters/llm"
	"github.com/kpernyer/heysh-workflow/internal/adapters/metadata"
	"github.com/kpernyer/heysh-workflow/internal/adapters/vector"
	"github.com/kpernyer/heysh-workflow/internal/clock"
	"github.com/kpernyer/heysh-workflow/internal/config"
	"github.com/kpernyer/heysh-workflow/internal/orchestrator"
	"github.com/kpernyer/heysh-workflow/internal/router"
	"github.com/kpernyer/heysh-workflow/internal/worker"
	"github.com/kpernyer/heysh-workflow/internal/workflows"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("worker: building logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("worker: loading config", zap.Error(err))
	}

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("worker: connecting to postgres", zap.Error(err))
	}
	defer pool.Close()
	store := orchestrator.NewPGStore(pool)

	rt := router.New(router.DefaultConfig())
	clk := clock.New()
	orch := orchestrator.New(store, rt, timerService{}, clk)
	workflows.RegisterAll(orch)

	running, err := store.ListByAttributes(context.Background(), func(map[string]any) bool { return true })
	if err != nil {
		logger.Warn("worker: listing executions to resume", zap.Error(err))
	}
	runningOnly := running[:0:0]
	for _, e := range running {
		if e.Status == orchestrator.StatusRunning {
			runningOnly = append(runningOnly, e)
		}
	}
	if err := orch.Resume(context.Background(), runningOnly); err != nil {
		logger.Warn("worker: resuming running executions", zap.Error(err))
	}

	registry := activity.NewRegistry()
	activity.RegisterAll(registry, buildDeps(cfg, logger))

	w := worker.New(rt, orch, registry, clk, logger, worker.Options{
		Identity: hostname(),
		Queues:   []string{workflows.QueueAIProcessing, workflows.QueueStorage, workflows.QueueGeneral},
		Concurrency: map[string]int{
			workflows.QueueAIProcessing: cfg.WorkerConcurrency["ai-processing"],
			workflows.QueueStorage:      cfg.WorkerConcurrency["storage"],
			workflows.QueueGeneral:      cfg.WorkerConcurrency["general"],
		},
	})
	w.Start()
	defer w.Stop()

	logger.Info("worker: started", zap.Strings("queues", []string{"ai-processing", "storage", "general"}))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("worker: shutting down")
}

func buildDeps(cfg config.Config, logger *zap.Logger) activity.Deps {
	blobStore := buildBlobStore(cfg, logger)
	metaStore := buildMetadataStore(cfg, logger)

	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		llmClient = llm.NewAnthropicClientFromAPIKey(cfg.AnthropicAPIKey, cfg.AnthropicModel, 1024)
	} else {
		logger.Warn("worker: ANTHROPIC_API_KEY unset, using fake LLM client")
		llmClient = llm.NewFake()
	}

	return activity.Deps{
		Blob:     blobStore,
		Vector:   vector.NewMemIndex(),
		Graph:    graph.NewMemGraph(),
		LLM:      llmClient,
		Metadata: metaStore,
		Notify: func(tenantID, subject, body string, targets []string) error {
			logger.Info("notify_stakeholders",
				zap.String("tenant_id", tenantID), zap.String("subject", subject), zap.Strings("targets", targets))
			return nil
		},
	}
}

func buildBlobStore(cfg config.Config, logger *zap.Logger) blob.Store {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Warn("worker: loading AWS config, using fake blob store", zap.Error(err))
		return blob.NewFake()
	}
	client := s3.NewFromConfig(awsCfg)
	return blob.NewS3Store(client, cfg.S3Bucket)
}

func buildMetadataStore(cfg config.Config, logger *zap.Logger) metadata.Store {
	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		logger.Warn("worker: connecting metadata store, using fake", zap.Error(err))
		return metadata.NewFake()
	}
	return metadata.NewPGStore(pool)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return h
}

type timerService struct{}

func (timerService) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }
