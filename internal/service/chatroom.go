package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/domain"
	"github.com/osagie8/tcp-chat/internal/repository"
)

// chatroomListCacheTTL 是聊天室名称列表缓存的生存时间。
const chatroomListCacheTTL = 60 * time.Second

// ChatroomService 负责聊天室生命周期和广播消息持久化的业务逻辑。
type ChatroomService struct {
	chatroomRepo repository.ChatroomRepository
	messageRepo  repository.MessageRepository
	userRepo     repository.UserRepository
	stateRepo    repository.StateRepository
}

// NewChatroomService 创建 ChatroomService 实例。
func NewChatroomService(
	chatroomRepo repository.ChatroomRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	stateRepo repository.StateRepository,
) *ChatroomService {
	if chatroomRepo == nil {
		panic("ChatroomRepository cannot be nil for ChatroomService")
	}
	if messageRepo == nil {
		panic("MessageRepository cannot be nil for ChatroomService")
	}
	if userRepo == nil {
		panic("UserRepository cannot be nil for ChatroomService")
	}
	if stateRepo == nil {
		panic("StateRepository cannot be nil for ChatroomService")
	}
	return &ChatroomService{
		chatroomRepo: chatroomRepo,
		messageRepo:  messageRepo,
		userRepo:     userRepo,
		stateRepo:    stateRepo,
	}
}

// Create 创建一个新聊天室，管理员为调用者。
// 名称已被占用返回 ErrChatroomExists。
func (s *ChatroomService) Create(ctx context.Context, name, adminName string) error {
	logCtx := logrus.WithFields(logrus.Fields{"chatroom": name, "admin": adminName})

	admin, err := s.userRepo.FindByUsername(ctx, adminName)
	if err != nil {
		logCtx.WithError(err).Error("Failed to resolve admin user for chatroom creation")
		return ErrInternalServer
	}

	chatroom := &domain.Chatroom{
		Name:       name,
		AdminID:    admin.ID,
		LastActive: time.Now(),
	}
	err = s.chatroomRepo.Save(ctx, chatroom)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Warn("Chatroom creation failed: name already exists")
			return ErrChatroomExists
		}
		logCtx.WithError(err).Error("Database error during chatroom creation")
		return ErrInternalServer
	}

	// 创建成功后使列表缓存失效，失败只记日志
	if err := s.stateRepo.InvalidateChatroomListCache(ctx); err != nil {
		logCtx.WithError(err).Warn("Failed to invalidate chatroom list cache")
	}

	logCtx.WithField("chatroom_id", chatroom.ID).Info("Chatroom created successfully")
	return nil
}

// Join 将用户加入聊天室的持久化成员列表。
// 成员关系插入是幂等的：重复加入不改变成员集合。
// 聊天室不存在返回 ErrChatroomNotFound。
func (s *ChatroomService) Join(ctx context.Context, name, username string) error {
	logCtx := logrus.WithFields(logrus.Fields{"chatroom": name, "username": username})

	chatroom, err := s.chatroomRepo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrChatroomNotFound) {
			logCtx.Warn("Join failed: chatroom does not exist")
			return ErrChatroomNotFound
		}
		logCtx.WithError(err).Error("Database error finding chatroom for join")
		return ErrInternalServer
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		logCtx.WithError(err).Error("Failed to resolve user for chatroom join")
		return ErrInternalServer
	}

	if err := s.chatroomRepo.AddMember(ctx, chatroom.ID, user.ID); err != nil {
		logCtx.WithError(err).Error("Database error adding chatroom member")
		return ErrInternalServer
	}

	logCtx.Info("User joined chatroom")
	return nil
}

// ListNames 返回所有聊天室名称，优先读缓存。
func (s *ChatroomService) ListNames(ctx context.Context) ([]string, error) {
	names, err := s.stateRepo.GetChatroomListCache(ctx)
	if err == nil {
		return names, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		// 缓存故障不致命，回退到数据库
		logrus.WithError(err).Warn("Chatroom list cache read failed, falling back to database")
	}

	names, err = s.chatroomRepo.ListNames(ctx)
	if err != nil {
		logrus.WithError(err).Error("Database error listing chatrooms")
		return nil, ErrInternalServer
	}

	if err := s.stateRepo.SetChatroomListCache(ctx, names, chatroomListCacheTTL); err != nil {
		logrus.WithError(err).Warn("Failed to populate chatroom list cache")
	}
	return names, nil
}

// PostMessage 持久化一条聊天室消息并返回持久化成员的用户名列表。
// 广播目标是持久化成员列表，而非活跃在场集合；这是协议语义的一部分。
func (s *ChatroomService) PostMessage(ctx context.Context, chatroomName, senderName, text string) ([]string, error) {
	logCtx := logrus.WithFields(logrus.Fields{"chatroom": chatroomName, "sender": senderName})

	chatroom, err := s.chatroomRepo.FindByName(ctx, chatroomName)
	if err != nil {
		if errors.Is(err, repository.ErrChatroomNotFound) {
			logCtx.Warn("Message rejected: chatroom does not exist")
			return nil, ErrChatroomNotFound
		}
		logCtx.WithError(err).Error("Database error finding chatroom for message")
		return nil, ErrInternalServer
	}

	sender, err := s.userRepo.FindByUsername(ctx, senderName)
	if err != nil {
		logCtx.WithError(err).Error("Failed to resolve sender for message")
		return nil, ErrInternalServer
	}

	// 先持久化，后分发：落库失败则不广播
	message := &domain.Message{
		ChatroomID: chatroom.ID,
		UserID:     sender.ID,
		Body:       text,
	}
	if err := s.messageRepo.Save(ctx, message); err != nil {
		logCtx.WithError(err).Error("Database error saving chatroom message")
		return nil, ErrInternalServer
	}

	members, err := s.chatroomRepo.MemberUsernames(ctx, chatroom.ID)
	if err != nil {
		logCtx.WithError(err).Error("Database error listing chatroom members")
		return nil, ErrInternalServer
	}

	logCtx.WithFields(logrus.Fields{"message_id": message.ID, "member_count": len(members)}).
		Debug("Chatroom message persisted")
	return members, nil
}

// ChatroomStats 聚合一个聊天室的持久化统计。
type ChatroomStats struct {
	Name         string
	MessageCount int64
	MemberCount  int
}

// Stats 返回聊天室的消息量和成员量，供管理接口使用。
func (s *ChatroomService) Stats(ctx context.Context, name string) (*ChatroomStats, error) {
	logCtx := logrus.WithField("chatroom", name)

	chatroom, err := s.chatroomRepo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrChatroomNotFound) {
			return nil, ErrChatroomNotFound
		}
		logCtx.WithError(err).Error("Database error finding chatroom for stats")
		return nil, ErrInternalServer
	}

	count, err := s.messageRepo.CountByChatroom(ctx, chatroom.ID)
	if err != nil {
		logCtx.WithError(err).Error("Database error counting chatroom messages")
		return nil, ErrInternalServer
	}
	members, err := s.chatroomRepo.MemberUsernames(ctx, chatroom.ID)
	if err != nil {
		logCtx.WithError(err).Error("Database error listing chatroom members for stats")
		return nil, ErrInternalServer
	}

	return &ChatroomStats{
		Name:         chatroom.Name,
		MessageCount: count,
		MemberCount:  len(members),
	}, nil
}

// TouchLastActive 刷新聊天室的最后活跃时间，供后台任务调用。
func (s *ChatroomService) TouchLastActive(ctx context.Context, chatroomName string) error {
	chatroom, err := s.chatroomRepo.FindByName(ctx, chatroomName)
	if err != nil {
		if errors.Is(err, repository.ErrChatroomNotFound) {
			return ErrChatroomNotFound
		}
		return ErrInternalServer
	}
	if err := s.chatroomRepo.TouchLastActive(ctx, chatroom.ID); err != nil {
		return ErrInternalServer
	}
	return nil
}

// RemoveUser 级联删除用户及其全部关联数据，供管理接口调用。
func (s *ChatroomService) RemoveUser(ctx context.Context, username string) error {
	logCtx := logrus.WithField("username", username)

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		logCtx.WithError(err).Error("Database error finding user for removal")
		return ErrInternalServer
	}

	if err := s.userRepo.DeleteCascade(ctx, user.ID); err != nil {
		logCtx.WithError(err).Error("Cascade delete failed")
		return ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User removed with all associated data")
	return nil
}
