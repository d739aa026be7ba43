package repository

import (
	"context"
	"time"

	"github.com/osagie8/tcp-chat/internal/domain"
)

// PrivateMessageRepository 定义了私信的存储操作。
type PrivateMessageRepository interface {
	// Save 保存一条私信。
	Save(ctx context.Context, message *domain.PrivateMessage) error

	// FindByRecipient 返回某个用户收到的全部私信，按时间倒序 (最新在前)。
	FindByRecipient(ctx context.Context, recipientID uint) ([]domain.PrivateMessage, error)

	// MarkRead 将指定私信标记为已读。
	// 私信不存在或不属于该接收者时返回 repository.ErrMessageNotFound。
	MarkRead(ctx context.Context, id uint, recipientID uint) error

	// DeleteReadBefore 删除某个时间点之前的所有已读私信，返回删除行数。
	// 由后台保留策略任务调用。
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
