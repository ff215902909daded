package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// JobRecord is the index entry kept for a finished job. It records where
// the artifacts went, not the artifacts themselves.
type JobRecord struct {
	ID          string    `json:"job_id"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	Stage       string    `json:"stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	Title       string    `json:"title,omitempty"`
	Locations   Locations `json:"locations"`
	CompletedAt time.Time `json:"completed_at"`
}

// RedisIndex keeps job records in Redis: JSON under job:<id> plus a
// recency-ordered set for listing.
type RedisIndex struct {
	client *redis.Client
}

const recencySet = "jobs"

// NewRedisIndex connects to Redis at addr and verifies the connection.
func NewRedisIndex(ctx context.Context, addr string) (*RedisIndex, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisIndex{client: client}, nil
}

func (r *RedisIndex) key(id string) string { return "job:" + id }

// Record upserts a terminal job record.
func (r *RedisIndex) Record(ctx context.Context, rec JobRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("job record needs an ID")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(rec.ID), b, 0)
	pipe.ZAdd(ctx, recencySet, redis.Z{Score: float64(rec.CompletedAt.Unix()), Member: rec.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write job record: %w", err)
	}
	return nil
}

// Get returns one job record by ID.
func (r *RedisIndex) Get(ctx context.Context, id string) (JobRecord, error) {
	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return JobRecord{}, fmt.Errorf("job %s not found", id)
		}
		return JobRecord{}, err
	}
	var rec JobRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return JobRecord{}, fmt.Errorf("decode job record %s: %w", id, err)
	}
	return rec, nil
}

// List returns records newest first, capped at limit (0 means all).
func (r *RedisIndex) List(ctx context.Context, limit int) ([]JobRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := r.client.ZRevRange(ctx, recencySet, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	records := make([]JobRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close releases the underlying connection.
func (r *RedisIndex) Close() error {
	return r.client.Close()
}
