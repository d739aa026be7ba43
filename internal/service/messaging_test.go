package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/osagie8/tcp-chat/internal/domain"
	"github.com/osagie8/tcp-chat/internal/repository"
	"github.com/osagie8/tcp-chat/internal/repository/mocks"
	"github.com/osagie8/tcp-chat/internal/service"
)

type messagingMocks struct {
	privateRepo *mocks.MockPrivateMessageRepository
	userRepo    *mocks.MockUserRepository
	stateRepo   *mocks.MockStateRepository
}

func newMessagingService(t *testing.T) (*service.MessagingService, messagingMocks) {
	t.Helper()
	m := messagingMocks{
		privateRepo: new(mocks.MockPrivateMessageRepository),
		userRepo:    new(mocks.MockUserRepository),
		stateRepo:   new(mocks.MockStateRepository),
	}
	svc := service.NewMessagingService(m.privateRepo, m.userRepo, m.stateRepo)
	return svc, m
}

func TestSendPrivate_Success(t *testing.T) {
	svc, m := newMessagingService(t)
	ctx := context.Background()

	sender := &domain.User{ID: 1, Username: "alice"}
	recipient := &domain.User{ID: 2, Username: "bob"}
	m.userRepo.On("FindByUsername", ctx, "alice").Return(sender, nil).Once()
	m.userRepo.On("FindByUsername", ctx, "bob").Return(recipient, nil).Once()
	m.privateRepo.On("Save", ctx, mock.AnythingOfType("*domain.PrivateMessage")).
		Run(func(args mock.Arguments) {
			message := args.Get(1).(*domain.PrivateMessage)
			assert.Equal(t, uint(1), message.SenderID)
			assert.Equal(t, uint(2), message.RecipientID)
			assert.Equal(t, "hi bob", message.Body)
			assert.False(t, message.Read, "新私信应为未读")
			message.ID = 42
		}).
		Return(nil).Once()
	m.stateRepo.On("IncrUnread", ctx, "bob").Return(nil).Once()

	message, err := svc.SendPrivate(ctx, "alice", "bob", "hi bob")

	require.NoError(t, err)
	assert.Equal(t, uint(42), message.ID)
	m.privateRepo.AssertExpectations(t)
	m.stateRepo.AssertExpectations(t)
}

func TestSendPrivate_RecipientNotFound(t *testing.T) {
	svc, m := newMessagingService(t)
	ctx := context.Background()

	sender := &domain.User{ID: 1, Username: "alice"}
	m.userRepo.On("FindByUsername", ctx, "alice").Return(sender, nil).Once()
	m.userRepo.On("FindByUsername", ctx, "ghost").
		Return(nil, repository.ErrUserNotFound).Once()

	message, err := svc.SendPrivate(ctx, "alice", "ghost", "hello?")

	assert.ErrorIs(t, err, service.ErrRecipientNotFound)
	assert.Nil(t, message)
	m.privateRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestInbox_NewestFirstAndSenderNames(t *testing.T) {
	svc, m := newMessagingService(t)
	ctx := context.Background()

	recipient := &domain.User{ID: 2, Username: "bob"}
	sender := &domain.User{ID: 1, Username: "alice"}
	now := time.Now()
	stored := []domain.PrivateMessage{
		{ID: 8, SenderID: 1, RecipientID: 2, Body: "second", Timestamp: now, Read: false},
		{ID: 7, SenderID: 1, RecipientID: 2, Body: "first", Timestamp: now.Add(-time.Minute), Read: true},
	}

	m.userRepo.On("FindByUsername", ctx, "bob").Return(recipient, nil).Once()
	m.privateRepo.On("FindByRecipient", ctx, uint(2)).Return(stored, nil).Once()
	// 同一发送者只解析一次
	m.userRepo.On("FindByID", ctx, uint(1)).Return(sender, nil).Once()
	m.stateRepo.On("ResetUnread", ctx, "bob").Return(nil).Once()

	inbox, err := svc.Inbox(ctx, "bob")

	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, uint(8), inbox[0].ID)
	assert.Equal(t, "alice", inbox[0].From)
	assert.Equal(t, "second", inbox[0].Text)
	assert.False(t, inbox[0].Read)
	assert.True(t, inbox[1].Read)
	m.userRepo.AssertExpectations(t)
	m.stateRepo.AssertExpectations(t)
}

func TestInbox_DeletedSender(t *testing.T) {
	svc, m := newMessagingService(t)
	ctx := context.Background()

	recipient := &domain.User{ID: 2, Username: "bob"}
	stored := []domain.PrivateMessage{
		{ID: 8, SenderID: 9, RecipientID: 2, Body: "orphaned", Timestamp: time.Now()},
	}

	m.userRepo.On("FindByUsername", ctx, "bob").Return(recipient, nil).Once()
	m.privateRepo.On("FindByRecipient", ctx, uint(2)).Return(stored, nil).Once()
	m.userRepo.On("FindByID", ctx, uint(9)).
		Return(nil, repository.ErrUserNotFound).Once()
	m.stateRepo.On("ResetUnread", ctx, "bob").Return(nil).Once()

	inbox, err := svc.Inbox(ctx, "bob")

	require.NoError(t, err)
	require.Len(t, inbox, 1)
	// 发送者被删除时保留消息本身
	assert.Equal(t, "(deleted)", inbox[0].From)
}

func TestInbox_Empty(t *testing.T) {
	svc, m := newMessagingService(t)
	ctx := context.Background()

	recipient := &domain.User{ID: 2, Username: "bob"}
	m.userRepo.On("FindByUsername", ctx, "bob").Return(recipient, nil).Once()
	m.privateRepo.On("FindByRecipient", ctx, uint(2)).
		Return([]domain.PrivateMessage{}, nil).Once()
	m.stateRepo.On("ResetUnread", ctx, "bob").Return(nil).Once()

	inbox, err := svc.Inbox(ctx, "bob")

	require.NoError(t, err)
	assert.NotNil(t, inbox, "空收件箱应返回空切片而非 nil")
	assert.Empty(t, inbox)
}

func TestMarkRead_Success(t *testing.T) {
	svc, m := newMessagingService(t)
	ctx := context.Background()

	recipient := &domain.User{ID: 2, Username: "bob"}
	m.userRepo.On("FindByUsername", ctx, "bob").Return(recipient, nil).Once()
	m.privateRepo.On("MarkRead", ctx, uint(42), uint(2)).Return(nil).Once()

	require.NoError(t, svc.MarkRead(ctx, "bob", 42))
	m.privateRepo.AssertExpectations(t)
}

func TestMarkRead_NotFound(t *testing.T) {
	svc, m := newMessagingService(t)
	ctx := context.Background()

	recipient := &domain.User{ID: 2, Username: "bob"}
	m.userRepo.On("FindByUsername", ctx, "bob").Return(recipient, nil).Once()
	// 私信不存在或属于别人，对调用方都是 not found
	m.privateRepo.On("MarkRead", ctx, uint(42), uint(2)).
		Return(repository.ErrMessageNotFound).Once()

	err := svc.MarkRead(ctx, "bob", 42)

	assert.ErrorIs(t, err, service.ErrMessageNotFound)
}

func TestPruneRead(t *testing.T) {
	svc, m := newMessagingService(t)
	ctx := context.Background()

	m.privateRepo.On("DeleteReadBefore", ctx, mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) {
			cutoff := args.Get(1).(time.Time)
			// 30 天保留期，cutoff 应在 30 天前附近
			expected := time.Now().Add(-30 * 24 * time.Hour)
			assert.WithinDuration(t, expected, cutoff, time.Minute)
		}).
		Return(int64(3), nil).Once()

	deleted, err := svc.PruneRead(ctx, 30*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	m.privateRepo.AssertExpectations(t)
}
