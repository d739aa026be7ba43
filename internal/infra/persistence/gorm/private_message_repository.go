package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/osagie8/tcp-chat/internal/domain"
	"github.com/osagie8/tcp-chat/internal/repository"
)

// GormPrivateMessageRepository 是 PrivateMessageRepository 接口的 GORM 实现
type GormPrivateMessageRepository struct {
	db *gorm.DB
}

// NewGormPrivateMessageRepository 创建 GormPrivateMessageRepository 实例
func NewGormPrivateMessageRepository(db *gorm.DB) *GormPrivateMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormPrivateMessageRepository")
	}
	return &GormPrivateMessageRepository{db: db}
}

// Save 实现保存一条私信
func (r *GormPrivateMessageRepository) Save(ctx context.Context, message *domain.PrivateMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("gorm: save private message (sender: %d, recipient: %d): %w", message.SenderID, message.RecipientID, err)
	}
	return nil
}

// FindByRecipient 实现按时间倒序返回用户的全部私信
func (r *GormPrivateMessageRepository) FindByRecipient(ctx context.Context, recipientID uint) ([]domain.PrivateMessage, error) {
	var messages []domain.PrivateMessage
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("timestamp DESC, id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find private messages for recipient %d: %w", recipientID, err)
	}
	return messages, nil
}

// MarkRead 实现将私信标记为已读。
// 条件中带上 recipient_id，用户只能修改自己收件箱里的记录。
func (r *GormPrivateMessageRepository) MarkRead(ctx context.Context, id uint, recipientID uint) error {
	result := r.db.WithContext(ctx).
		Model(&domain.PrivateMessage{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("read", true)
	if result.Error != nil {
		return fmt.Errorf("gorm: mark private message %d read: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrMessageNotFound
	}
	return nil
}

// DeleteReadBefore 实现删除某个时间点之前的已读私信
func (r *GormPrivateMessageRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("`read` = ? AND timestamp < ?", true, cutoff).
		Delete(&domain.PrivateMessage{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: delete read private messages before %s: %w", cutoff.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}
