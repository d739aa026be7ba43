package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/service"
	"github.com/osagie8/tcp-chat/internal/tasks"
)

// RetentionHandler 处理私信保留清理任务：
// 删除已读且超过保留期的私信，未读私信永不清理。
type RetentionHandler struct {
	messagingService *service.MessagingService
}

// NewRetentionHandler 创建 RetentionHandler 实例
func NewRetentionHandler(messagingService *service.MessagingService) *RetentionHandler {
	if messagingService == nil {
		panic("MessagingService cannot be nil for RetentionHandler")
	}
	return &RetentionHandler{messagingService: messagingService}
}

// ProcessTask 执行一次保留清理
func (h *RetentionHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.MessageRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// payload 损坏时重试无意义
		return fmt.Errorf("retention: unmarshal payload failed: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RetentionDays <= 0 {
		return fmt.Errorf("retention: invalid retention days %d: %w", payload.RetentionDays, asynq.SkipRetry)
	}

	retention := time.Duration(payload.RetentionDays) * 24 * time.Hour
	deleted, err := h.messagingService.PruneRead(ctx, retention)
	if err != nil {
		logrus.WithError(err).Error("Worker: message retention prune failed")
		return err
	}
	if deleted > 0 {
		logrus.WithFields(logrus.Fields{
			"deleted":        deleted,
			"retention_days": payload.RetentionDays,
		}).Info("Worker: pruned read private messages")
	}
	return nil
}
