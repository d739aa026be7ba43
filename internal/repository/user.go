package repository

import (
	"context"

	"github.com/osagie8/tcp-chat/internal/domain"
)

// UserRepository 定义了用户数据的存储和检索操作。
type UserRepository interface {
	// FindByUsername 根据用户名查找用户。
	// 如果用户不存在，应返回 repository.ErrUserNotFound。
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// FindByID 根据用户 ID 查找用户。
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// Save 保存用户信息。
	// 如果用户已存在 (基于 ID)，则更新；否则创建新用户。
	// 用户名唯一约束冲突时返回 repository.ErrDuplicateEntry。
	Save(ctx context.Context, user *domain.User) error

	// DeleteCascade 在一个显式事务中删除用户及其所有关联数据：
	// 成员关系、聊天室消息、收发的私信，最后是用户行本身。
	// 任何一步失败都会整体回滚。
	DeleteCascade(ctx context.Context, userID uint) error
}
