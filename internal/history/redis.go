package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/idolchat/internal/model/chat"
)

const defaultKeyPrefix = "idolchat:history:"

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires a user's list after this long without writes. Zero
	// disables expiry.
	TTL time.Duration
}

// RedisStore keeps one JSON-encoded list per user.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	store := newRedisStore(rdb, opts.KeyPrefix, logger)
	store.ttl = opts.TTL
	return store, nil
}

func newRedisStore(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

func (s *RedisStore) Append(ctx context.Context, userID string, turns []chat.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]any, 0, len(turns))
	for _, turn := range turns {
		encoded, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("encode turn %s: %w", turn.ID, err)
		}
		values = append(values, encoded)
	}
	key := s.key(userID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) []chat.Turn {
	raw, err := s.rdb.LRange(ctx, s.key(userID), 0, -1).Result()
	if err != nil {
		s.logger.Warn("redis history read failed, treating as empty", zap.String("userId", userID), zap.Error(err))
		return []chat.Turn{}
	}

	turns := make([]chat.Turn, 0, len(raw))
	for _, item := range raw {
		var turn chat.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			s.logger.Warn("skipping corrupt history entry", zap.String("userId", userID), zap.Error(err))
			continue
		}
		turns = append(turns, turn)
	}
	return turns
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
