package repository

import (
	"context"

	"github.com/osagie8/tcp-chat/internal/domain"
)

// MessageRepository 定义了聊天室消息的存储操作。
// 消息只追加，没有更新和删除。
type MessageRepository interface {
	// Save 保存一条聊天室消息。
	Save(ctx context.Context, message *domain.Message) error

	// CountByChatroom 统计聊天室的消息数量 (供运维统计使用)。
	CountByChatroom(ctx context.Context, chatroomID uint) (int64, error)
}
