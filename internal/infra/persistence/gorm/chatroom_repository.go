package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/osagie8/tcp-chat/internal/domain"
	"github.com/osagie8/tcp-chat/internal/repository"
)

// GormChatroomRepository 是 ChatroomRepository 接口的 GORM 实现
type GormChatroomRepository struct {
	db *gorm.DB
}

// NewGormChatroomRepository 创建 GormChatroomRepository 实例
func NewGormChatroomRepository(db *gorm.DB) *GormChatroomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormChatroomRepository")
	}
	return &GormChatroomRepository{db: db}
}

// FindByName 实现根据名称查找聊天室
func (r *GormChatroomRepository) FindByName(ctx context.Context, name string) (*domain.Chatroom, error) {
	var chatroom domain.Chatroom
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&chatroom).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrChatroomNotFound
		}
		return nil, fmt.Errorf("gorm: find chatroom by name '%s': %w", name, err)
	}
	return &chatroom, nil
}

// Save 实现保存聊天室（创建或更新）
func (r *GormChatroomRepository) Save(ctx context.Context, chatroom *domain.Chatroom) error {
	result := r.db.WithContext(ctx).Save(chatroom)
	if err := result.Error; err != nil {
		// 健壮的唯一约束检查 (以 MySQL 为例)
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save chatroom (id: %d, name: %s): %w", chatroom.ID, chatroom.Name, err)
	}
	return nil
}

// ListNames 实现返回所有聊天室名称
func (r *GormChatroomRepository) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&domain.Chatroom{}).Order("id").Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list chatroom names: %w", err)
	}
	return names, nil
}

// AddMember 实现幂等的成员关系插入。
// 复合主键已存在时 DoNothing，等价于旧协议的 INSERT OR IGNORE。
func (r *GormChatroomRepository) AddMember(ctx context.Context, chatroomID, userID uint) error {
	member := domain.ChatroomMember{ChatroomID: chatroomID, UserID: userID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
	if err != nil {
		// 某些驱动在 DoNothing 下仍可能上报冲突，同样视为幂等成功
		if isDuplicateEntryError(err) {
			return nil
		}
		return fmt.Errorf("gorm: add member (chatroom: %d, user: %d): %w", chatroomID, userID, err)
	}
	return nil
}

// MemberUsernames 实现返回聊天室全部持久化成员的用户名
func (r *GormChatroomRepository) MemberUsernames(ctx context.Context, chatroomID uint) ([]string, error) {
	var usernames []string
	err := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Joins("JOIN chatroom_members ON chatroom_members.user_id = users.id").
		Where("chatroom_members.chatroom_id = ?", chatroomID).
		Pluck("users.username", &usernames).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list member usernames for chatroom %d: %w", chatroomID, err)
	}
	return usernames, nil
}

// TouchLastActive 实现更新聊天室的最后活跃时间
func (r *GormChatroomRepository) TouchLastActive(ctx context.Context, chatroomID uint) error {
	err := r.db.WithContext(ctx).
		Model(&domain.Chatroom{}).
		Where("id = ?", chatroomID).
		Update("last_active", time.Now()).Error
	if err != nil {
		return fmt.Errorf("gorm: touch last_active for chatroom %d: %w", chatroomID, err)
	}
	return nil
}
