package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/reviewer/internal/core/domain"
)

// entryTTL bounds how long a journal entry survives without a new failure.
const entryTTL = 7 * 24 * time.Hour

// FailedItemRepo implements storage.FailureJournal using Redis.
// Entries are JSON values indexed by a sorted set scored by failure count.
type FailedItemRepo struct {
	client *Client
}

// NewFailedItemRepo creates a new Redis-backed failure journal.
func NewFailedItemRepo(client *Client) *FailedItemRepo {
	return &FailedItemRepo{client: client}
}

func (r *FailedItemRepo) indexKey() string {
	return r.client.key("failed_items")
}

func (r *FailedItemRepo) itemKey(id string) string {
	return r.client.key("failed_item", id)
}

// Record adds or updates a failed item.
func (r *FailedItemRepo) Record(ctx context.Context, fi domain.FailedItem) error {
	rdb := r.client.rdb

	prev, err := r.get(ctx, fi.ID)
	if err != nil {
		return err
	}
	if prev != nil {
		fi.Failures = prev.Failures + 1
	} else if fi.Failures < 1 {
		fi.Failures = 1
	}

	data, err := json.Marshal(fi)
	if err != nil {
		return fmt.Errorf("failed to marshal failed item: %w", err)
	}

	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.itemKey(fi.ID), data, entryTTL)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(fi.Failures), Member: fi.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record failed item: %w", err)
	}
	return nil
}

func (r *FailedItemRepo) get(ctx context.Context, id string) (*domain.FailedItem, error) {
	data, err := r.client.rdb.Get(ctx, r.itemKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failed item: %w", err)
	}

	var fi domain.FailedItem
	if err := json.Unmarshal(data, &fi); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed item: %w", err)
	}
	return &fi, nil
}

// List returns journaled items, highest failure count first.
func (r *FailedItemRepo) List(ctx context.Context, limit int) ([]domain.FailedItem, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := r.client.rdb.ZRevRange(ctx, r.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	items := make([]domain.FailedItem, 0, len(ids))
	for _, id := range ids {
		fi, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if fi == nil {
			// Data expired but id still indexed
			r.client.rdb.ZRem(ctx, r.indexKey(), id)
			continue
		}
		items = append(items, *fi)
	}
	return items, nil
}

// Resolve removes a failed item.
func (r *FailedItemRepo) Resolve(ctx context.Context, id string) error {
	if err := r.client.rdb.ZRem(ctx, r.indexKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to remove from index: %w", err)
	}
	if err := r.client.rdb.Del(ctx, r.itemKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete failed item: %w", err)
	}
	return nil
}

// Count returns the number of journaled items.
func (r *FailedItemRepo) Count(ctx context.Context) (int, error) {
	count, err := r.client.rdb.ZCard(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}
