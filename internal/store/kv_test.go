package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidata/rag-platform/pkg/logger"
)

func newTestKV(t *testing.T) (*KeyValueStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewKeyValueStoreFromClient(client, logger.NewNop()), mr
}

func TestTurnKeyRoundTrip(t *testing.T) {
	key := TurnKey("B1", 7)
	assert.Equal(t, "B1:7", key)

	block, turn, err := ParseTurnKey(key)
	require.NoError(t, err)
	assert.Equal(t, "B1", block)
	assert.Equal(t, "7", turn)

	// block ids may themselves contain colons; the last segment is the turn
	block, turn, err = ParseTurnKey("ws:B1:12")
	require.NoError(t, err)
	assert.Equal(t, "ws:B1", block)
	assert.Equal(t, "12", turn)

	_, _, err = ParseTurnKey("nocolon")
	assert.Error(t, err)
}

func TestSequentialTurnIDs(t *testing.T) {
	kv, _ := newTestKV(t)
	ctx := context.Background()

	for want := 0; want < 5; want++ {
		id, err := kv.NextTurnID(ctx, "B1")
		require.NoError(t, err)
		assert.Equal(t, want, id)

		_, err = kv.StoreQuery(ctx, "B1", "q", "user-1", 0)
		require.NoError(t, err)
	}
}

func TestStoreAndGetQueryRoundTrip(t *testing.T) {
	kv, _ := newTestKV(t)
	ctx := context.Background()

	queries := []string{
		"plain ascii",
		"",
		"নমস্কার 世界 🌍",
		"aGVsbG8gd29ybGQ=", // base64 payloads pass through untouched
	}
	for _, q := range queries {
		key, err := kv.StoreQuery(ctx, "B1", q, "user-1", 0)
		require.NoError(t, err)

		got, err := kv.GetQuery(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, q, got)
	}
}

func TestGetQueryMissing(t *testing.T) {
	kv, _ := newTestKV(t)
	_, err := kv.GetQuery(context.Background(), "B1:42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryExpiration(t *testing.T) {
	kv, mr := newTestKV(t)
	ctx := context.Background()

	key, err := kv.StoreQuery(ctx, "B1", "short lived", "user-1", time.Second)
	require.NoError(t, err)

	got, err := kv.GetQuery(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "short lived", got)

	mr.FastForward(2 * time.Second)

	_, err = kv.GetQuery(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryOrdering(t *testing.T) {
	kv, _ := newTestKV(t)
	ctx := context.Background()

	_, err := kv.StoreQuery(ctx, "B1", "first", "user-1", 0)
	require.NoError(t, err)
	_, err = kv.StoreQuery(ctx, "B1", "second", SenderAI, 0)
	require.NoError(t, err)
	_, err = kv.StoreQuery(ctx, "B1", "third", "user-1", 0)
	require.NoError(t, err)

	history, err := kv.History(ctx, "B1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{history[0].ID, history[1].ID, history[2].ID})
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, SenderAI, history[1].Sender)
	assert.Equal(t, "third", history[2].Content)
}

func TestHistoryNonNumericIDsOrderedByName(t *testing.T) {
	kv, mr := newTestKV(t)
	ctx := context.Background()

	_, err := kv.StoreQuery(ctx, "B1", "numeric", "user-1", 0)
	require.NoError(t, err)

	// Foreign writers can leave non-numeric field names in the hash.
	for _, field := range []string{"zeta", "alpha", "mid"} {
		mr.HSet("B1", field, `{"query":"from `+field+`","sender_id":"user-1","timestamp":"2026-01-01T00:00:00Z"}`)
	}

	want := []string{"numeric", "from alpha", "from mid", "from zeta"}
	for i := 0; i < 5; i++ {
		history, err := kv.History(ctx, "B1")
		require.NoError(t, err)
		require.Len(t, history, 4)
		for j, content := range want {
			assert.Equal(t, content, history[j].Content)
		}
	}
}

func TestDeleteBlock(t *testing.T) {
	kv, _ := newTestKV(t)
	ctx := context.Background()

	_, err := kv.StoreQuery(ctx, "B1", "q", "user-1", 0)
	require.NoError(t, err)

	existed, err := kv.DeleteBlock(ctx, "B1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = kv.DeleteBlock(ctx, "B1")
	require.NoError(t, err)
	assert.False(t, existed)

	history, err := kv.History(ctx, "B1")
	require.NoError(t, err)
	assert.Empty(t, history)
}
