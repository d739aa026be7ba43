package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/osagie8/tcp-chat/internal/repository"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client *redis.Client // 依赖 Redis 客户端
	// Redis key 的前缀，方便多实例共用一个 Redis
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "chat:" // 默认前缀
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) chatroomListKey() string {
	return r.keyPrefix + "chatrooms"
}

func (r *RedisStateRepository) unreadKey(username string) string {
	return fmt.Sprintf("%sunread:%s", r.keyPrefix, username)
}

// --- StateRepository Interface Implementation ---

// GetChatroomListCache 尝试从缓存获取聊天室名称列表。
func (r *RedisStateRepository) GetChatroomListCache(ctx context.Context) ([]string, error) {
	key := r.chatroomListKey()
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// 映射为仓库定义的未找到错误
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: failed to get chatroom list cache from %s: %w", key, err)
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal chatroom list cache from %s: %w", key, err)
	}
	return names, nil
}

// SetChatroomListCache 将聊天室名称列表写入缓存。
func (r *RedisStateRepository) SetChatroomListCache(ctx context.Context, names []string, ttl time.Duration) error {
	key := r.chatroomListKey()
	raw, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal chatroom list for cache: %w", err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set chatroom list cache on key %s: %w", key, err)
	}
	return nil
}

// InvalidateChatroomListCache 在创建聊天室后使缓存失效。
func (r *RedisStateRepository) InvalidateChatroomListCache(ctx context.Context) error {
	key := r.chatroomListKey()
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to invalidate chatroom list cache on key %s: %w", key, err)
	}
	return nil
}

// IncrUnread 原子地增加用户的未读私信计数。
func (r *RedisStateRepository) IncrUnread(ctx context.Context, username string) error {
	key := r.unreadKey(username)
	if err := r.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to increment unread counter on key %s: %w", key, err)
	}
	return nil
}

// ResetUnread 清零用户的未读私信计数。
func (r *RedisStateRepository) ResetUnread(ctx context.Context, username string) error {
	key := r.unreadKey(username)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to reset unread counter on key %s: %w", key, err)
	}
	return nil
}

// GetUnread 获取用户的未读私信计数。key 不存在时返回 0。
func (r *RedisStateRepository) GetUnread(ctx context.Context, username string) (int64, error) {
	key := r.unreadKey(username)
	count, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: failed to get unread counter from %s: %w", key, err)
	}
	return count, nil
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	// 使用 Pipeline 减少网络往返
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, r.keyPrefix+key)
	pipe.Expire(ctx, r.keyPrefix+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", key, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", key, err)
	}
	return count > int64(limit), nil
}
