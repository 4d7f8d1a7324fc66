package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreAppendAssignsMonotonicSeq(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	now := time.Now()

	a, err := store.Append(ctx, "u1", "status", []byte(`{"x":1}`), now)
	require.NoError(t, err)
	b, err := store.Append(ctx, "u1", "status", []byte(`{"x":2}`), now)
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(2), b.Seq)
}

func TestMemStoreListFiltersUnread(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	now := time.Now()

	item, err := store.Append(ctx, "u1", "status", []byte(`{}`), now)
	require.NoError(t, err)

	all, err := store.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	unread, err := store.List(ctx, "u1", true)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	require.NoError(t, store.MarkRead(ctx, "u1", item.Seq))

	unread, err = store.List(ctx, "u1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestMemStoreUnreadCount(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	now := time.Now()

	_, _ = store.Append(ctx, "u1", "status", []byte(`{}`), now)
	_, _ = store.Append(ctx, "u1", "status", []byte(`{}`), now)

	n, err := store.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemStoreMarkReadUnknownSeqErrors(t *testing.T) {
	store := NewMemStore()
	err := store.MarkRead(context.Background(), "u1", 999)
	assert.Error(t, err)
}

func TestHubDeliverWithoutRedisStillPersists(t *testing.T) {
	store := NewMemStore()
	hub := NewHub(store, nil)
	ctx := context.Background()

	item, err := hub.Deliver(ctx, "u1", "completion", []byte(`{"state":"PUBLISHED"}`), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "completion", item.Name)

	items, err := hub.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestHubSubscribeWithoutRedisErrors(t *testing.T) {
	hub := NewHub(NewMemStore(), nil)
	_, err := hub.Subscribe(context.Background(), "u1")
	assert.Error(t, err)
}
