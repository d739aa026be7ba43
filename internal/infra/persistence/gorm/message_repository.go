package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/osagie8/tcp-chat/internal/domain"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Save 实现保存一条聊天室消息
func (r *GormMessageRepository) Save(ctx context.Context, message *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("gorm: save message (chatroom: %d, user: %d): %w", message.ChatroomID, message.UserID, err)
	}
	return nil
}

// CountByChatroom 实现统计聊天室的消息数量
func (r *GormMessageRepository) CountByChatroom(ctx context.Context, chatroomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).Where("chatroom_id = ?", chatroomID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count messages for chatroom %d: %w", chatroomID, err)
	}
	return count, nil
}
