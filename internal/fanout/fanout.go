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

// Package fanout is the per-principal signal inbox (spec §4.7): every signal
// addressed to a principal (a reviewer's controller_decision prompt, a
// question asker's answer-ready notice) is appended to that principal's
// durable, monotonically-sequenced inbox, then published on a Redis channel
// so any live /ws or /inbox/signals long-poller sees it immediately. The
// inbox itself is the durable record; the Redis publish is a best-effort
// wake-up, not the source of truth, so a subscriber that was offline at
// publish time still finds the item on the next inbox read.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Item is one entry in a principal's inbox.
type Item struct {
	Seq       int64     `json:"seq"`
	Principal string    `json:"principal"`
	Name      string    `json:"name"`
	Body      []byte    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Store persists inbox items for a principal and tracks read state.
// internal/fanout.MemStore backs tests; production wiring may layer a
// Postgres-backed implementation behind the same interface.
type Store interface {
	Append(ctx context.Context, principal, name string, body []byte, at time.Time) (Item, error)
	List(ctx context.Context, principal string, onlyUnread bool) ([]Item, error)
	MarkRead(ctx context.Context, principal string, seq int64) error
	UnreadCount(ctx context.Context, principal string) (int, error)
}

// MemStore is an in-memory Store: one ordered slice per principal and one
// monotonic sequence counter shared by all principals, guarded by a single
// mutex. Each principal's sequence numbers are strictly increasing but not
// contiguous (adequate for a single-process deployment or tests; sized the
// way internal/orchestrator's MemStore is).
type MemStore struct {
	mu    sync.Mutex
	seq   int64
	boxes map[string][]Item
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{boxes: make(map[string][]Item)}
}

// Append records a new item for principal, returning it with its assigned
// sequence number.
func (s *MemStore) Append(ctx context.Context, principal, name string, body []byte, at time.Time) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	item := Item{Seq: s.seq, Principal: principal, Name: name, Body: body, CreatedAt: at}
	s.boxes[principal] = append(s.boxes[principal], item)
	return item, nil
}

// List returns principal's inbox, oldest first, optionally filtered to
// unread items.
func (s *MemStore) List(ctx context.Context, principal string, onlyUnread bool) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, it := range s.boxes[principal] {
		if onlyUnread && it.Read {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// MarkRead flips the read flag on the item with the given sequence number.
func (s *MemStore) MarkRead(ctx context.Context, principal string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.boxes[principal] {
		if s.boxes[principal][i].Seq == seq {
			s.boxes[principal][i].Read = true
			return nil
		}
	}
	return fmt.Errorf("fanout: no item %d for principal %q", seq, principal)
}

// UnreadCount reports how many items in principal's inbox are unread (spec
// §6.1 GET /inbox/signals/unread-count).
func (s *MemStore) UnreadCount(ctx context.Context, principal string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.boxes[principal] {
		if !it.Read {
			n++
		}
	}
	return n, nil
}

// channelPrefix namespaces the pub/sub channel per principal so one Redis
// instance can back every tenant's inboxes.
const channelPrefix = "heysh:inbox:"

// Hub delivers signals durably (via Store) and wakes live subscribers (via
// Redis pub/sub), the at-least-once fan-out spec §4.7 calls for.
type Hub struct {
	store Store
	rdb   *redis.Client
}

// NewHub builds a Hub. rdb may be nil, in which case Deliver still persists
// to store but skips the publish step (useful for tests without a Redis
// instance).
func NewHub(store Store, rdb *redis.Client) *Hub {
	return &Hub{store: store, rdb: rdb}
}

// Deliver appends item to principal's inbox and publishes it for any live
// subscriber. The append always happens first: a publish failure (Redis
// briefly unavailable) never loses the signal, only delays a subscriber's
// live wake-up until its next poll.
func (h *Hub) Deliver(ctx context.Context, principal, name string, body []byte, at time.Time) (Item, error) {
	item, err := h.store.Append(ctx, principal, name, body, at)
	if err != nil {
		return Item{}, err
	}
	if h.rdb != nil {
		if raw, err := json.Marshal(item); err == nil {
			h.rdb.Publish(ctx, channelPrefix+principal, raw)
		}
	}
	return item, nil
}

// Subscribe returns a channel of Items published for principal from this
// point forward; it does not replay history (callers List() for that).
// Closing ctx unsubscribes and closes the returned channel.
func (h *Hub) Subscribe(ctx context.Context, principal string) (<-chan Item, error) {
	if h.rdb == nil {
		return nil, fmt.Errorf("fanout: no redis client configured")
	}
	sub := h.rdb.Subscribe(ctx, channelPrefix+principal)
	raw := sub.Channel()
	out := make(chan Item)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var item Item
				if err := json.Unmarshal([]byte(msg.Payload), &item); err != nil {
					continue
				}
				select {
				case out <- item:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// List returns principal's inbox (spec §6.1 GET /inbox/signals).
func (h *Hub) List(ctx context.Context, principal string, onlyUnread bool) ([]Item, error) {
	return h.store.List(ctx, principal, onlyUnread)
}

// MarkRead marks one inbox item read (spec §6.1 POST /inbox/signals/{id}/read).
func (h *Hub) MarkRead(ctx context.Context, principal string, seq int64) error {
	return h.store.MarkRead(ctx, principal, seq)
}

// UnreadCount reports principal's unread inbox depth.
func (h *Hub) UnreadCount(ctx context.Context, principal string) (int, error) {
	return h.store.UnreadCount(ctx, principal)
}
