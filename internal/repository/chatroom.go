package repository

import (
	"context"

	"github.com/osagie8/tcp-chat/internal/domain"
)

// ChatroomRepository 定义了聊天室及其成员关系的存储操作。
type ChatroomRepository interface {
	// FindByName 根据名称查找聊天室。
	// 如果聊天室不存在，应返回 repository.ErrChatroomNotFound。
	FindByName(ctx context.Context, name string) (*domain.Chatroom, error)

	// Save 保存聊天室。
	// 名称唯一约束冲突时返回 repository.ErrDuplicateEntry。
	Save(ctx context.Context, chatroom *domain.Chatroom) error

	// ListNames 返回所有聊天室名称，不按成员关系过滤。
	ListNames(ctx context.Context) ([]string, error)

	// AddMember 插入一条成员关系记录。插入是幂等的：
	// 记录已存在时不报错也不产生重复行。
	AddMember(ctx context.Context, chatroomID, userID uint) error

	// MemberUsernames 返回聊天室全部持久化成员的用户名。
	MemberUsernames(ctx context.Context, chatroomID uint) ([]string, error)

	// TouchLastActive 更新聊天室的最后活跃时间。
	TouchLastActive(ctx context.Context, chatroomID uint) error
}
