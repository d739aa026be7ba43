// Package mocks 提供各仓储接口的 testify 手写 mock，供服务层测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/osagie8/tcp-chat/internal/domain"
)

// MockUserRepository 是 repository.UserRepository 的 mock
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) Save(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) DeleteCascade(ctx context.Context, userID uint) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockChatroomRepository 是 repository.ChatroomRepository 的 mock
type MockChatroomRepository struct {
	mock.Mock
}

func (m *MockChatroomRepository) FindByName(ctx context.Context, name string) (*domain.Chatroom, error) {
	args := m.Called(ctx, name)
	chatroom, _ := args.Get(0).(*domain.Chatroom)
	return chatroom, args.Error(1)
}

func (m *MockChatroomRepository) Save(ctx context.Context, chatroom *domain.Chatroom) error {
	args := m.Called(ctx, chatroom)
	return args.Error(0)
}

func (m *MockChatroomRepository) ListNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockChatroomRepository) AddMember(ctx context.Context, chatroomID, userID uint) error {
	args := m.Called(ctx, chatroomID, userID)
	return args.Error(0)
}

func (m *MockChatroomRepository) MemberUsernames(ctx context.Context, chatroomID uint) ([]string, error) {
	args := m.Called(ctx, chatroomID)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockChatroomRepository) TouchLastActive(ctx context.Context, chatroomID uint) error {
	args := m.Called(ctx, chatroomID)
	return args.Error(0)
}

// MockMessageRepository 是 repository.MessageRepository 的 mock
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Save(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockMessageRepository) CountByChatroom(ctx context.Context, chatroomID uint) (int64, error) {
	args := m.Called(ctx, chatroomID)
	return args.Get(0).(int64), args.Error(1)
}

// MockPrivateMessageRepository 是 repository.PrivateMessageRepository 的 mock
type MockPrivateMessageRepository struct {
	mock.Mock
}

func (m *MockPrivateMessageRepository) Save(ctx context.Context, message *domain.PrivateMessage) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockPrivateMessageRepository) FindByRecipient(ctx context.Context, recipientID uint) ([]domain.PrivateMessage, error) {
	args := m.Called(ctx, recipientID)
	messages, _ := args.Get(0).([]domain.PrivateMessage)
	return messages, args.Error(1)
}

func (m *MockPrivateMessageRepository) MarkRead(ctx context.Context, id uint, recipientID uint) error {
	args := m.Called(ctx, id, recipientID)
	return args.Error(0)
}

func (m *MockPrivateMessageRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockStateRepository 是 repository.StateRepository 的 mock
type MockStateRepository struct {
	mock.Mock
}

func (m *MockStateRepository) GetChatroomListCache(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockStateRepository) SetChatroomListCache(ctx context.Context, names []string, ttl time.Duration) error {
	args := m.Called(ctx, names, ttl)
	return args.Error(0)
}

func (m *MockStateRepository) InvalidateChatroomListCache(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStateRepository) IncrUnread(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *MockStateRepository) ResetUnread(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *MockStateRepository) GetUnread(ctx context.Context, username string) (int64, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}
