// Package store provides the key-value, durable, and blob storage clients.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/pkg/logger"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SenderAI is the sender id used for assistant-authored turns.
const SenderAI = "AI"

// KeyValueStore is the ephemeral working log of conversation turns. Each
// conversation block is one Redis hash; fields are numeric turn ids and
// values are serialized PendingQuery records.
type KeyValueStore struct {
	client *redis.Client
	logger *logger.Logger
}

// NewKeyValueStore connects to Redis at the given address.
func NewKeyValueStore(addr, password string, db int, log *logger.Logger) *KeyValueStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &KeyValueStore{client: client, logger: log}
}

// NewKeyValueStoreFromClient wraps an existing Redis client.
func NewKeyValueStoreFromClient(client *redis.Client, log *logger.Logger) *KeyValueStore {
	return &KeyValueStore{client: client, logger: log}
}

// Ping verifies the connection.
func (kv *KeyValueStore) Ping(ctx context.Context) error {
	return kv.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (kv *KeyValueStore) Close() error {
	return kv.client.Close()
}

// TurnKey formats the key for one turn within a block.
func TurnKey(blockID string, turnID int) string {
	return fmt.Sprintf("%s:%d", blockID, turnID)
}

// ParseTurnKey splits a "{block_id}:{turn_id}" key. The turn id segment is
// returned verbatim; ids are not required to be numeric on the read path.
func ParseTurnKey(key string) (blockID, turnID string, err error) {
	idx := strings.LastIndex(key, ":")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("malformed turn key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}

// NextTurnID returns the smallest id not yet used in the block: the maximum
// existing numeric field plus one, or 0 for an empty block. This is a
// read-then-write scheme with no compare-and-swap; concurrent writers to the
// same block can observe the same id.
func (kv *KeyValueStore) NextTurnID(ctx context.Context, blockID string) (int, error) {
	fields, err := kv.client.HKeys(ctx, blockID).Result()
	if err != nil {
		return 0, fmt.Errorf("listing turn ids for block %s: %w", blockID, err)
	}

	maxID := -1
	for _, f := range fields {
		if id, convErr := strconv.Atoi(f); convErr == nil && id > maxID {
			maxID = id
		}
	}
	return maxID + 1, nil
}

// StoreQuery places a query in the block under the next turn id and returns
// the assigned turn key. A non-zero expiration applies to the whole block.
func (kv *KeyValueStore) StoreQuery(ctx context.Context, blockID, query, senderID string, expiration time.Duration) (string, error) {
	turnID, err := kv.NextTurnID(ctx, blockID)
	if err != nil {
		return "", err
	}

	record := model.PendingQuery{
		Query:     query,
		SenderID:  senderID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encoding query record: %w", err)
	}

	field := strconv.Itoa(turnID)
	if err := kv.client.HSet(ctx, blockID, field, string(data)).Err(); err != nil {
		return "", fmt.Errorf("storing query in block %s: %w", blockID, err)
	}
	if expiration > 0 {
		if err := kv.client.Expire(ctx, blockID, expiration).Err(); err != nil {
			return "", fmt.Errorf("setting expiration on block %s: %w", blockID, err)
		}
	}

	return TurnKey(blockID, turnID), nil
}

// GetQuery fetches the query text stored under a "{block}:{turn}" key.
// Returns ErrNotFound if the field is absent or expired.
func (kv *KeyValueStore) GetQuery(ctx context.Context, key string) (string, error) {
	blockID, turnID, err := ParseTurnKey(key)
	if err != nil {
		return "", err
	}

	data, err := kv.client.HGet(ctx, blockID, turnID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetching query %s: %w", key, err)
	}

	var record model.PendingQuery
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return "", fmt.Errorf("decoding query record %s: %w", key, err)
	}
	return record.Query, nil
}

// GetAllMessages returns every turn record in a block, keyed by turn id.
func (kv *KeyValueStore) GetAllMessages(ctx context.Context, blockID string) (map[string]model.PendingQuery, error) {
	raw, err := kv.client.HGetAll(ctx, blockID).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching block %s: %w", blockID, err)
	}

	records := make(map[string]model.PendingQuery, len(raw))
	for id, data := range raw {
		var record model.PendingQuery
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			kv.logger.Warn("skipping undecodable turn record",
				zap.String("block_id", blockID), zap.String("turn_id", id))
			continue
		}
		records[id] = record
	}
	return records, nil
}

// History returns a block's turns ordered by numeric id, oldest first.
// Records with non-numeric ids sort after all numeric ones.
func (kv *KeyValueStore) History(ctx context.Context, blockID string) ([]model.TurnRecord, error) {
	records, err := kv.GetAllMessages(ctx, blockID)
	if err != nil {
		return nil, err
	}

	type keyedTurn struct {
		raw  string
		turn model.TurnRecord
	}
	entries := make([]keyedTurn, 0, len(records))
	for id, record := range records {
		turn := model.TurnRecord{
			Content:   record.Query,
			Sender:    record.SenderID,
			Timestamp: record.Timestamp,
		}
		if n, convErr := strconv.Atoi(id); convErr == nil {
			turn.ID = n
		} else {
			turn.ID = int(^uint(0) >> 1) // non-numeric ids sort last
		}
		entries = append(entries, keyedTurn{raw: id, turn: turn})
	}

	// Non-numeric ids all carry the same sentinel, so break ties on the
	// raw field name to keep the order stable across map iterations.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].turn.ID != entries[j].turn.ID {
			return entries[i].turn.ID < entries[j].turn.ID
		}
		return entries[i].raw < entries[j].raw
	})

	history := make([]model.TurnRecord, len(entries))
	for i, e := range entries {
		history[i] = e.turn
	}
	return history, nil
}

// DeleteBlock removes a whole conversation block. Returns true if the block
// existed.
func (kv *KeyValueStore) DeleteBlock(ctx context.Context, blockID string) (bool, error) {
	n, err := kv.client.Del(ctx, blockID).Result()
	if err != nil {
		return false, fmt.Errorf("deleting block %s: %w", blockID, err)
	}
	return n > 0, nil
}
