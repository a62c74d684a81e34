package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
)

// RedisMirror pushes records onto a capped Redis list, newest first.
type RedisMirror struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisMirror connects to the configured Redis server.
func NewRedisMirror(ctx context.Context, cfg *config.RedisConfig) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDBIndex,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w", cfg.RedisAddr, err)
	}

	log.Infof("Audit mirror connected to Redis at %s (key %s, max %d records)", cfg.RedisAddr, cfg.RedisKey, cfg.RedisMaxLen)
	return &RedisMirror{client: client, key: cfg.RedisKey, maxLen: cfg.RedisMaxLen}, nil
}

// Publish implements Mirror.
func (m *RedisMirror) Publish(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := m.client.TxPipeline()
	pipe.LPush(ctx, m.key, payload)
	if m.maxLen > 0 {
		pipe.LTrim(ctx, m.key, 0, m.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis audit publish: %w", err)
	}
	return nil
}

// History returns the newest mirrored records.
type History interface {
	Recent(ctx context.Context, n int64) ([]Record, error)
}

// Recent returns up to n of the newest records.
func (m *RedisMirror) Recent(ctx context.Context, n int64) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := m.client.LRange(ctx, m.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis audit history: %w", err)
	}
	return decodeRecords(m.key, raw), nil
}

func decodeRecords(key string, raw []string) []Record {
	out := make([]Record, 0, len(raw))
	for _, s := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			log.Warnf("Skipping malformed audit record in %s: %v", key, err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Close releases the Redis connection.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
