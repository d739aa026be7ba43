package repository

import (
	"context"
	"time"
)

// StateRepository 定义了易失性共享状态的操作，通常由 Redis 实现。
// 注意：聊天室的"活跃在场"集合不在这里——它按规格属于进程内内存，
// 随连接断开和进程重启丢失。
type StateRepository interface {
	// === Chatroom List Cache ===

	// GetChatroomListCache 尝试从缓存获取聊天室名称列表。
	// 缓存未命中时返回 repository.ErrNotFound。
	GetChatroomListCache(ctx context.Context) ([]string, error)

	// SetChatroomListCache 将聊天室名称列表写入缓存。
	SetChatroomListCache(ctx context.Context, names []string, ttl time.Duration) error

	// InvalidateChatroomListCache 在创建聊天室后使缓存失效。
	InvalidateChatroomListCache(ctx context.Context) error

	// === Unread Counters ===

	// IncrUnread 原子地增加用户的未读私信计数。
	IncrUnread(ctx context.Context, username string) error

	// ResetUnread 清零用户的未读私信计数 (读取收件箱后调用)。
	ResetUnread(ctx context.Context, username string) error

	// GetUnread 获取用户的未读私信计数。key 不存在时返回 0。
	GetUnread(ctx context.Context, username string) (int64, error)

	// === Rate Limiting ===

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限，false 如果未超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
