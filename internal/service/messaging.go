package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/domain"
	"github.com/osagie8/tcp-chat/internal/dto"
	"github.com/osagie8/tcp-chat/internal/repository"
)

// MessagingService 负责私信的存储转发逻辑。
// 持久化优先：内容的持久性不依赖接收者是否在线，
// 在线推送只是可选优化，由调用方 (Hub) 尽力而为。
type MessagingService struct {
	privateRepo repository.PrivateMessageRepository
	userRepo    repository.UserRepository
	stateRepo   repository.StateRepository
}

// NewMessagingService 创建 MessagingService 实例。
func NewMessagingService(
	privateRepo repository.PrivateMessageRepository,
	userRepo repository.UserRepository,
	stateRepo repository.StateRepository,
) *MessagingService {
	if privateRepo == nil {
		panic("PrivateMessageRepository cannot be nil for MessagingService")
	}
	if userRepo == nil {
		panic("UserRepository cannot be nil for MessagingService")
	}
	if stateRepo == nil {
		panic("StateRepository cannot be nil for MessagingService")
	}
	return &MessagingService{
		privateRepo: privateRepo,
		userRepo:    userRepo,
		stateRepo:   stateRepo,
	}
}

// SendPrivate 持久化一条私信。
// 接收者不存在返回 ErrRecipientNotFound。
// 落库成功后递增接收者的未读计数 (尽力而为)。
func (s *MessagingService) SendPrivate(ctx context.Context, senderName, recipientName, text string) (*domain.PrivateMessage, error) {
	logCtx := logrus.WithFields(logrus.Fields{"sender": senderName, "recipient": recipientName})

	sender, err := s.userRepo.FindByUsername(ctx, senderName)
	if err != nil {
		logCtx.WithError(err).Error("Failed to resolve sender for private message")
		return nil, ErrInternalServer
	}
	recipient, err := s.userRepo.FindByUsername(ctx, recipientName)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Private message rejected: recipient does not exist")
			return nil, ErrRecipientNotFound
		}
		logCtx.WithError(err).Error("Database error finding recipient")
		return nil, ErrInternalServer
	}

	message := &domain.PrivateMessage{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Body:        text,
	}
	if err := s.privateRepo.Save(ctx, message); err != nil {
		logCtx.WithError(err).Error("Database error saving private message")
		return nil, ErrInternalServer
	}

	if err := s.stateRepo.IncrUnread(ctx, recipientName); err != nil {
		logCtx.WithError(err).Warn("Failed to increment unread counter")
	}

	logCtx.WithField("message_id", message.ID).Info("Private message stored")
	return message, nil
}

// Inbox 返回用户完整的私信收件箱，最新在前。
// 读取后清零未读计数 (尽力而为)。
func (s *MessagingService) Inbox(ctx context.Context, username string) ([]dto.PrivateMessageDTO, error) {
	logCtx := logrus.WithField("username", username)

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		logCtx.WithError(err).Error("Failed to resolve user for inbox")
		return nil, ErrInternalServer
	}

	messages, err := s.privateRepo.FindByRecipient(ctx, user.ID)
	if err != nil {
		logCtx.WithError(err).Error("Database error reading inbox")
		return nil, ErrInternalServer
	}

	// 发送者 ID → 用户名，同一发送者只解析一次
	senderNames := make(map[uint]string)
	inbox := make([]dto.PrivateMessageDTO, 0, len(messages))
	for _, m := range messages {
		name, ok := senderNames[m.SenderID]
		if !ok {
			sender, err := s.userRepo.FindByID(ctx, m.SenderID)
			if err != nil {
				// 发送者可能已被管理员删除，保留消息但标注未知
				name = "(deleted)"
			} else {
				name = sender.Username
			}
			senderNames[m.SenderID] = name
		}
		inbox = append(inbox, dto.PrivateMessageDTO{
			ID:     m.ID,
			From:   name,
			Text:   m.Body,
			SentAt: m.Timestamp,
			Read:   m.Read,
		})
	}

	if err := s.stateRepo.ResetUnread(ctx, username); err != nil {
		logCtx.WithError(err).Warn("Failed to reset unread counter")
	}
	return inbox, nil
}

// UnreadCount 返回用户当前的未读私信计数。
// 计数器故障不致命，按 0 处理。
func (s *MessagingService) UnreadCount(ctx context.Context, username string) int64 {
	count, err := s.stateRepo.GetUnread(ctx, username)
	if err != nil {
		logrus.WithError(err).WithField("username", username).
			Warn("Failed to read unread counter")
		return 0
	}
	return count
}

// MarkRead 将用户收件箱中的一条私信标记为已读。
// 私信不存在或不属于该用户返回 ErrMessageNotFound。
func (s *MessagingService) MarkRead(ctx context.Context, username string, id uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"username": username, "message_id": id})

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		logCtx.WithError(err).Error("Failed to resolve user for mark read")
		return ErrInternalServer
	}

	err = s.privateRepo.MarkRead(ctx, id, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			logCtx.Warn("Mark read failed: message not found")
			return ErrMessageNotFound
		}
		logCtx.WithError(err).Error("Database error marking message read")
		return ErrInternalServer
	}
	return nil
}

// PruneRead 删除保留期之前的已读私信，返回删除行数。
// 由后台保留策略任务调用。
func (s *MessagingService) PruneRead(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	deleted, err := s.privateRepo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).Error("Database error pruning read private messages")
		return 0, ErrInternalServer
	}
	if deleted > 0 {
		logrus.WithFields(logrus.Fields{"deleted": deleted, "cutoff": cutoff}).
			Info("Pruned read private messages")
	}
	return deleted, nil
}
