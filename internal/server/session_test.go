package server_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/osagie8/tcp-chat/internal/domain"
	"github.com/osagie8/tcp-chat/internal/dto"
	"github.com/osagie8/tcp-chat/internal/hub"
	"github.com/osagie8/tcp-chat/internal/repository"
	"github.com/osagie8/tcp-chat/internal/repository/mocks"
	"github.com/osagie8/tcp-chat/internal/server"
	"github.com/osagie8/tcp-chat/internal/service"
)

// fakeTransport 在内存里记录写出的行，供断言使用。
type fakeTransport struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeTransport) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeTransport) Close() error       { return nil }
func (f *fakeTransport) RemoteAddr() string { return "fake:0" }

func (f *fakeTransport) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lines))
	copy(out, f.lines)
	return out
}

// waitFor 等待传输层出现满足条件的行并返回它。
func waitFor(t *testing.T, ft *fakeTransport, match func(string) bool) string {
	t.Helper()
	var found string
	require.Eventually(t, func() bool {
		for _, line := range ft.snapshot() {
			if match(line) {
				found = line
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return found
}

func waitForLine(t *testing.T, ft *fakeTransport, want string) {
	t.Helper()
	waitFor(t, ft, func(line string) bool { return line == want })
}

// sessionFixture 把真实的服务层和 Hub 架在仓储 mock 之上，
// 会话走完整的分发路径。
type sessionFixture struct {
	hub      *hub.Hub
	services server.Services

	userRepo     *mocks.MockUserRepository
	chatroomRepo *mocks.MockChatroomRepository
	messageRepo  *mocks.MockMessageRepository
	privateRepo  *mocks.MockPrivateMessageRepository
	stateRepo    *mocks.MockStateRepository
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		userRepo:     new(mocks.MockUserRepository),
		chatroomRepo: new(mocks.MockChatroomRepository),
		messageRepo:  new(mocks.MockMessageRepository),
		privateRepo:  new(mocks.MockPrivateMessageRepository),
		stateRepo:    new(mocks.MockStateRepository),
	}
	chatroomService := service.NewChatroomService(f.chatroomRepo, f.messageRepo, f.userRepo, f.stateRepo)
	f.hub = hub.NewHub(chatroomService)
	f.services = server.Services{
		Auth:      service.NewAuthService(f.userRepo),
		Chatrooms: chatroomService,
		Messaging: service.NewMessagingService(f.privateRepo, f.userRepo, f.stateRepo),
	}
	return f
}

// connect 创建一条带内存传输层的会话。
func (f *sessionFixture) connect() (*server.Session, *fakeTransport) {
	ft := &fakeTransport{}
	client := hub.NewClient(ft)
	client.Run()
	return server.NewSession(f.hub, client, f.services), ft
}

// expectRegister 预置一次成功注册的仓储行为。
func (f *sessionFixture) expectRegister(username string, id uint) {
	f.userRepo.On("Save", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Username == username
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.User).ID = id
	}).Return(nil).Once()
}

// register 让会话完成注册并等待确认。
func register(t *testing.T, session *server.Session, ft *fakeTransport, username string) {
	t.Helper()
	done := session.HandleLine(context.Background(), "/register "+username+" password123")
	require.False(t, done)
	waitForLine(t, ft, "Registration successful!")
}

func TestSession_RequiresAuthentication(t *testing.T) {
	f := newSessionFixture(t)
	session, ft := f.connect()
	ctx := context.Background()

	// 未认证状态下除 /register 和 /login 外的命令一律拒绝
	require.False(t, session.HandleLine(ctx, "/chatroom_view"))
	waitForLine(t, ft, "Please login or register first.")

	require.False(t, session.HandleLine(ctx, "/create_chatroom general"))
	require.False(t, session.HandleLine(ctx, "/get_messages"))

	require.Eventually(t, func() bool { return len(ft.snapshot()) >= 3 },
		time.Second, 5*time.Millisecond)
	for _, line := range ft.snapshot() {
		assert.Equal(t, "Please login or register first.", line)
	}
}

func TestSession_MalformedInputIsRecoverable(t *testing.T) {
	f := newSessionFixture(t)
	session, ft := f.connect()
	ctx := context.Background()

	// 未知动词、参数不全、非命令输入都不断开连接
	require.False(t, session.HandleLine(ctx, "/teleport home"))
	waitForLine(t, ft, "Unknown command.")

	require.False(t, session.HandleLine(ctx, "/login alice"))
	waitForLine(t, ft, "Invalid command format.")

	require.False(t, session.HandleLine(ctx, "hello without slash"))

	// 空行被静默忽略，连接仍可正常使用
	require.False(t, session.HandleLine(ctx, ""))
	require.False(t, session.HandleLine(ctx, "   "))

	f.expectRegister("alice", 1)
	register(t, session, ft, "alice")
}

func TestSession_RegisterRejections(t *testing.T) {
	f := newSessionFixture(t)
	session, ft := f.connect()
	ctx := context.Background()

	require.False(t, session.HandleLine(ctx, "/register alice short12"))
	waitForLine(t, ft, "Password must be at least 8 characters long.")

	f.userRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.User")).
		Return(repository.ErrDuplicateEntry).Once()
	require.False(t, session.HandleLine(ctx, "/register alice password123"))
	waitForLine(t, ft, "Username already exists.")
}

func TestSession_LoginRejection(t *testing.T) {
	f := newSessionFixture(t)
	session, ft := f.connect()

	f.userRepo.On("FindByUsername", mock.Anything, "alice").
		Return(nil, repository.ErrUserNotFound).Once()

	require.False(t, session.HandleLine(context.Background(), "/login alice password123"))
	waitForLine(t, ft, "Invalid username or password.")
	assert.Empty(t, session.Username())
}

func TestSession_LoginReportsUnreadMessages(t *testing.T) {
	f := newSessionFixture(t)
	session, ft := f.connect()

	salt := "aabbccdd"
	hash, err := bcrypt.GenerateFromPassword([]byte(salt+"password123"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := &domain.User{ID: 2, Username: "bob", PasswordHash: string(hash), Salt: salt}

	f.userRepo.On("FindByUsername", mock.Anything, "bob").Return(stored, nil).Once()
	f.stateRepo.On("GetUnread", mock.Anything, "bob").Return(int64(2), nil).Once()

	require.False(t, session.HandleLine(context.Background(), "/login bob password123"))
	waitForLine(t, ft, "Login successful!")
	waitForLine(t, ft, "You have 2 unread private message(s).")
}

func TestSession_ReloginAsOtherUserClearsOldPresence(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	alice := &domain.User{ID: 1, Username: "alice"}
	general := &domain.Chatroom{ID: 10, Name: "general"}

	session, ft := f.connect()
	f.expectRegister("alice", 1)
	register(t, session, ft, "alice")

	f.userRepo.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
	f.chatroomRepo.On("FindByName", mock.Anything, "general").Return(general, nil)
	f.chatroomRepo.On("AddMember", mock.Anything, uint(10), uint(1)).Return(nil).Once()
	require.False(t, session.HandleLine(ctx, "/join_chatroom general"))
	waitForLine(t, ft, "Joined chatroom 'general'.")
	require.Equal(t, []string{"alice"}, f.hub.PresenceList("general"))

	// 同一连接重新登录为 bob：alice 的在场记录随旧绑定一起清除
	salt := "aabbccdd"
	hash, err := bcrypt.GenerateFromPassword([]byte(salt+"password123"), bcrypt.MinCost)
	require.NoError(t, err)
	bob := &domain.User{ID: 2, Username: "bob", PasswordHash: string(hash), Salt: salt}
	f.userRepo.On("FindByUsername", mock.Anything, "bob").Return(bob, nil).Once()
	f.stateRepo.On("GetUnread", mock.Anything, "bob").Return(int64(0), nil).Once()

	require.False(t, session.HandleLine(ctx, "/login bob password123"))
	waitForLine(t, ft, "Login successful!")

	assert.Empty(t, f.hub.PresenceList("general"))
	assert.Equal(t, "bob", session.Username())
}

func TestSession_ChatroomScenario(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	alice := &domain.User{ID: 1, Username: "alice"}
	bob := &domain.User{ID: 2, Username: "bob"}
	general := &domain.Chatroom{ID: 10, Name: "general"}

	aliceSession, aliceFT := f.connect()
	bobSession, bobFT := f.connect()

	f.expectRegister("alice", 1)
	f.expectRegister("bob", 2)
	register(t, aliceSession, aliceFT, "alice")
	register(t, bobSession, bobFT, "bob")

	f.userRepo.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
	f.userRepo.On("FindByUsername", mock.Anything, "bob").Return(bob, nil)

	// alice 创建聊天室
	f.chatroomRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Chatroom")).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Chatroom).ID = 10 }).
		Return(nil).Once()
	f.stateRepo.On("InvalidateChatroomListCache", mock.Anything).Return(nil).Once()
	require.False(t, aliceSession.HandleLine(ctx, "/create_chatroom general"))
	waitForLine(t, aliceFT, "Chatroom 'general' created successfully.")

	// 双方加入
	f.chatroomRepo.On("FindByName", mock.Anything, "general").Return(general, nil)
	f.chatroomRepo.On("AddMember", mock.Anything, uint(10), uint(1)).Return(nil).Once()
	f.chatroomRepo.On("AddMember", mock.Anything, uint(10), uint(2)).Return(nil).Once()
	require.False(t, aliceSession.HandleLine(ctx, "/join_chatroom general"))
	waitForLine(t, aliceFT, "Joined chatroom 'general'.")
	require.False(t, bobSession.HandleLine(ctx, "/join_chatroom general"))
	waitForLine(t, bobFT, "Joined chatroom 'general'.")

	// 在场列表包含双方
	require.False(t, bobSession.HandleLine(ctx, "/view_chatroom_users general"))
	activeLine := waitFor(t, bobFT, func(line string) bool {
		return strings.HasPrefix(line, "Active users: ")
	})
	assert.Contains(t, activeLine, "alice")
	assert.Contains(t, activeLine, "bob")

	// alice 发广播：bob 收到，alice 无回显无回执
	f.messageRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil).Once()
	f.chatroomRepo.On("MemberUsernames", mock.Anything, uint(10)).
		Return([]string{"alice", "bob"}, nil).Once()
	aliceLinesBefore := len(aliceFT.snapshot())
	require.False(t, aliceSession.HandleLine(ctx, "/chatroom_message general hello there"))
	waitForLine(t, bobFT, "alice: hello there")
	assert.Len(t, aliceFT.snapshot(), aliceLinesBefore, "发送者既无回显也无回执")

	// bob 退出聊天室后在场列表只剩 alice，持久化成员关系不受影响
	require.False(t, bobSession.HandleLine(ctx, "/exit_chatroom general"))
	waitForLine(t, bobFT, "Left chatroom 'general'.")
	require.False(t, aliceSession.HandleLine(ctx, "/view_chatroom_users general"))
	waitForLine(t, aliceFT, "Active users: alice")
}

func TestSession_BroadcastToMissingChatroom(t *testing.T) {
	f := newSessionFixture(t)
	session, ft := f.connect()
	ctx := context.Background()

	f.expectRegister("alice", 1)
	register(t, session, ft, "alice")

	f.chatroomRepo.On("FindByName", mock.Anything, "missing").
		Return(nil, repository.ErrChatroomNotFound).Once()

	require.False(t, session.HandleLine(ctx, "/chatroom_message missing hello"))
	waitForLine(t, ft, "Chatroom 'missing' does not exist.")
}

func TestSession_PrivateMessageFlow(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	alice := &domain.User{ID: 1, Username: "alice"}
	bob := &domain.User{ID: 2, Username: "bob"}

	session, ft := f.connect()
	f.expectRegister("alice", 1)
	register(t, session, ft, "alice")

	f.userRepo.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)

	// 接收者存在但不在线：消息落库，发送者收到确认
	f.userRepo.On("FindByUsername", mock.Anything, "bob").Return(bob, nil)
	f.privateRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.PrivateMessage")).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.PrivateMessage).ID = 5 }).
		Return(nil).Once()
	f.stateRepo.On("IncrUnread", mock.Anything, "bob").Return(nil).Once()
	require.False(t, session.HandleLine(ctx, "/send_private bob are you there?"))
	waitForLine(t, ft, "Message sent to 'bob'.")

	// 接收者不存在
	f.userRepo.On("FindByUsername", mock.Anything, "ghost").
		Return(nil, repository.ErrUserNotFound).Once()
	require.False(t, session.HandleLine(ctx, "/send_private ghost hello?"))
	waitForLine(t, ft, "User 'ghost' does not exist.")
}

func TestSession_OnlineRecipientGetsPush(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	alice := &domain.User{ID: 1, Username: "alice"}
	bob := &domain.User{ID: 2, Username: "bob"}

	aliceSession, aliceFT := f.connect()
	bobSession, bobFT := f.connect()
	f.expectRegister("alice", 1)
	f.expectRegister("bob", 2)
	register(t, aliceSession, aliceFT, "alice")
	register(t, bobSession, bobFT, "bob")

	f.userRepo.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
	f.userRepo.On("FindByUsername", mock.Anything, "bob").Return(bob, nil)
	f.privateRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.PrivateMessage")).Return(nil).Once()
	f.stateRepo.On("IncrUnread", mock.Anything, "bob").Return(nil).Once()

	require.False(t, aliceSession.HandleLine(ctx, "/send_private bob ping"))

	// 在线推送与持久化确认并存
	waitForLine(t, bobFT, "[pm] alice: ping")
	waitForLine(t, aliceFT, "Message sent to 'bob'.")
}

func TestSession_GetMessagesReturnsJSONInbox(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	alice := &domain.User{ID: 1, Username: "alice"}
	bob := &domain.User{ID: 2, Username: "bob"}

	session, ft := f.connect()
	f.expectRegister("bob", 2)
	register(t, session, ft, "bob")

	now := time.Now()
	f.userRepo.On("FindByUsername", mock.Anything, "bob").Return(bob, nil)
	f.privateRepo.On("FindByRecipient", mock.Anything, uint(2)).
		Return([]domain.PrivateMessage{
			{ID: 5, SenderID: 1, RecipientID: 2, Body: "are you there?", Timestamp: now},
		}, nil).Once()
	f.userRepo.On("FindByID", mock.Anything, uint(1)).Return(alice, nil).Once()
	f.stateRepo.On("ResetUnread", mock.Anything, "bob").Return(nil).Once()

	require.False(t, session.HandleLine(ctx, "/get_messages"))

	payload := waitFor(t, ft, func(line string) bool {
		return strings.HasPrefix(line, "[")
	})
	var inbox []dto.PrivateMessageDTO
	require.NoError(t, json.Unmarshal([]byte(payload), &inbox))
	require.Len(t, inbox, 1)
	assert.Equal(t, uint(5), inbox[0].ID)
	assert.Equal(t, "alice", inbox[0].From)
	assert.Equal(t, "are you there?", inbox[0].Text)
	assert.False(t, inbox[0].Read)
}

func TestSession_MarkRead(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	bob := &domain.User{ID: 2, Username: "bob"}
	session, ft := f.connect()
	f.expectRegister("bob", 2)
	register(t, session, ft, "bob")

	f.userRepo.On("FindByUsername", mock.Anything, "bob").Return(bob, nil)

	// 非数字 ID 是格式错误
	require.False(t, session.HandleLine(ctx, "/mark_read abc"))
	waitForLine(t, ft, "Invalid command format.")

	f.privateRepo.On("MarkRead", mock.Anything, uint(5), uint(2)).Return(nil).Once()
	require.False(t, session.HandleLine(ctx, "/mark_read 5"))
	waitForLine(t, ft, "Message 5 marked as read.")

	f.privateRepo.On("MarkRead", mock.Anything, uint(6), uint(2)).
		Return(repository.ErrMessageNotFound).Once()
	require.False(t, session.HandleLine(ctx, "/mark_read 6"))
	waitForLine(t, ft, "Message 6 not found.")
}

func TestSession_ChatroomView(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, ft := f.connect()
	f.expectRegister("alice", 1)
	register(t, session, ft, "alice")

	f.stateRepo.On("GetChatroomListCache", mock.Anything).
		Return([]string{"general", "random"}, nil).Once()

	require.False(t, session.HandleLine(ctx, "/chatroom_view"))
	waitForLine(t, ft, "general, random")
}

func TestSession_ExitEndsSession(t *testing.T) {
	f := newSessionFixture(t)
	session, ft := f.connect()

	f.expectRegister("alice", 1)
	register(t, session, ft, "alice")
	require.Equal(t, 1, f.hub.ClientCount())

	done := session.HandleLine(context.Background(), "/exit")
	assert.True(t, done, "显式 /exit 应结束会话")
	waitForLine(t, ft, "Goodbye.")

	session.Close()
	assert.Equal(t, 0, f.hub.ClientCount())
}
