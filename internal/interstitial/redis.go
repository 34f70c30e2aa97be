package interstitial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/docstream/internal/doctree"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the shared supply list.
const DefaultRedisKey = "docstream:facts"

// RedisSupply keeps the supply in a Redis list so that several reader
// processes draw from the same finite stack.
type RedisSupply struct {
	client *redis.Client
	key    string
}

// NewRedisSupply connects to redisURL and verifies the connection.
func NewRedisSupply(redisURL, key string) (*RedisSupply, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSupplyWithClient(client, key), nil
}

// NewRedisSupplyWithClient builds a supply from an existing client.
func NewRedisSupplyWithClient(client *redis.Client, key string) *RedisSupply {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSupply{client: client, key: key}
}

func (s *RedisSupply) Pop(ctx context.Context) (doctree.Item, bool, error) {
	raw, err := s.client.RPop(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return doctree.Item{}, false, nil
	}
	if err != nil {
		return doctree.Item{}, false, fmt.Errorf("pop fact: %w", err)
	}
	var item doctree.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return doctree.Item{}, false, fmt.Errorf("unmarshal fact: %w", err)
	}
	return item, true, nil
}

func (s *RedisSupply) Push(ctx context.Context, items ...doctree.Item) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]any, 0, len(items))
	for _, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("marshal fact: %w", err)
		}
		values = append(values, data)
	}
	if err := s.client.RPush(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("push facts: %w", err)
	}
	return nil
}

func (s *RedisSupply) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return int(n), nil
}

// Close closes the Redis connection.
func (s *RedisSupply) Close() error {
	return s.client.Close()
}
