package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/hub"
	"github.com/osagie8/tcp-chat/internal/protocol"
	"github.com/osagie8/tcp-chat/internal/service"
)

// Services 聚合了会话分发需要的全部业务服务。
type Services struct {
	Auth      *service.AuthService
	Chatrooms *service.ChatroomService
	Messaging *service.MessagingService
}

// sessionState 是单连接状态机的状态。
type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateAuthenticated
	stateInChatroom
)

// 固定的线协议响应串。客户端按前缀/全文匹配这些串，改动即破坏兼容。
const (
	respAuthRequired     = "Please login or register first."
	respRegisterOK       = "Registration successful!"
	respUsernameTaken    = "Username already exists."
	respPasswordTooShort = "Password must be at least 8 characters long."
	respLoginOK          = "Login successful!"
	respBadCredentials   = "Invalid username or password."
	respUnknownCommand   = "Unknown command."
	respBadFormat        = "Invalid command format."
	respServerError      = "Server error. Please try again."
	respGoodbye          = "Goodbye."
)

// Session 是单条连接的命令分发状态机:
// Unauthenticated → Authenticated ⇄ InChatroom。
// 未认证状态只接受 /register 和 /login，其余动词收到固定提示。
// 所有解析/业务错误都是连接级可恢复的，连接保持打开。
type Session struct {
	hub      *hub.Hub
	client   *hub.Client
	services Services

	state    sessionState
	username string
	chatroom string // InChatroom 状态下所处的聊天室名

	log *logrus.Entry
}

// NewSession 创建一个会话分发器。
func NewSession(h *hub.Hub, client *hub.Client, services Services) *Session {
	if h == nil {
		panic("Hub cannot be nil for Session")
	}
	if client == nil {
		panic("Client cannot be nil for Session")
	}
	return &Session{
		hub:      h,
		client:   client,
		services: services,
		state:    stateUnauthenticated,
		log:      logrus.WithField("remote_addr", client.RemoteAddr()),
	}
}

// Username 返回会话绑定的用户名 (未认证时为空串)。
func (s *Session) Username() string { return s.username }

// HandleLine 处理一行客户端输入。
// 返回 true 表示会话应当结束 (显式 /exit 或写端已死)。
func (s *Session) HandleLine(ctx context.Context, line string) bool {
	cmd, err := protocol.Parse(line)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrEmpty):
			return false // 空行直接忽略
		case errors.Is(err, protocol.ErrBadArguments):
			s.log.WithField("verb", cmd.Verb).Warn("Malformed command: bad argument count")
			return s.reply(respBadFormat)
		default:
			s.log.WithField("input_size", len(line)).Warn("Malformed command: unknown verb")
			return s.reply(respUnknownCommand)
		}
	}

	// 认证门禁：未认证连接只放行 /register 和 /login
	if s.state == stateUnauthenticated && !protocol.IsAuthVerb(cmd.Verb) {
		return s.reply(respAuthRequired)
	}

	switch cmd.Verb {
	case protocol.VerbRegister:
		return s.handleRegister(ctx, cmd)
	case protocol.VerbLogin:
		return s.handleLogin(ctx, cmd)
	case protocol.VerbCreateChatroom:
		return s.handleCreateChatroom(ctx, cmd)
	case protocol.VerbJoinChatroom:
		return s.handleJoinChatroom(ctx, cmd)
	case protocol.VerbChatroomMessage:
		return s.handleChatroomMessage(ctx, cmd)
	case protocol.VerbViewChatroomUsers:
		return s.handleViewChatroomUsers(cmd)
	case protocol.VerbChatroomView:
		return s.handleChatroomView(ctx)
	case protocol.VerbExitChatroom:
		return s.handleExitChatroom(cmd)
	case protocol.VerbSendPrivate:
		return s.handleSendPrivate(ctx, cmd)
	case protocol.VerbGetMessages:
		return s.handleGetMessages(ctx)
	case protocol.VerbMarkRead:
		return s.handleMarkRead(ctx, cmd)
	case protocol.VerbExit:
		_ = s.client.Send(respGoodbye)
		return true
	default:
		// Parse 已经校验过动词表，到这里属于编程错误
		s.log.WithField("verb", cmd.Verb).Error("Verb accepted by parser but not dispatched")
		return s.reply(respUnknownCommand)
	}
}

// Close 结束会话并清理注册表/在场状态。
func (s *Session) Close() {
	s.hub.Remove(s.client)
}

// --- 命令处理 ---

func (s *Session) handleRegister(ctx context.Context, cmd protocol.Command) bool {
	user, err := s.services.Auth.Register(ctx, cmd.Arg, cmd.Body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPasswordTooShort):
			return s.reply(respPasswordTooShort)
		case errors.Is(err, service.ErrUsernameTaken):
			return s.reply(respUsernameTaken)
		default:
			return s.reply(respServerError)
		}
	}
	s.bind(user.Username)
	return s.reply(respRegisterOK)
}

func (s *Session) handleLogin(ctx context.Context, cmd protocol.Command) bool {
	user, err := s.services.Auth.Login(ctx, cmd.Arg, cmd.Body)
	if err != nil {
		if errors.Is(err, service.ErrAuthenticationFailed) {
			return s.reply(respBadCredentials)
		}
		return s.reply(respServerError)
	}
	s.bind(user.Username)
	if done := s.reply(respLoginOK); done {
		return true
	}
	// 登录成功后附带未读私信提示，计数器故障时静默省略
	if unread := s.services.Messaging.UnreadCount(ctx, user.Username); unread > 0 {
		return s.reply(fmt.Sprintf("You have %d unread private message(s).", unread))
	}
	return false
}

func (s *Session) handleCreateChatroom(ctx context.Context, cmd protocol.Command) bool {
	err := s.services.Chatrooms.Create(ctx, cmd.Arg, s.username)
	if err != nil {
		// 重名是常规业务结果，以消息而非故障返回
		if errors.Is(err, service.ErrChatroomExists) {
			return s.reply(fmt.Sprintf("Chatroom '%s' already exists.", cmd.Arg))
		}
		return s.reply(respServerError)
	}
	return s.reply(fmt.Sprintf("Chatroom '%s' created successfully.", cmd.Arg))
}

func (s *Session) handleJoinChatroom(ctx context.Context, cmd protocol.Command) bool {
	err := s.services.Chatrooms.Join(ctx, cmd.Arg, s.username)
	if err != nil {
		if errors.Is(err, service.ErrChatroomNotFound) {
			return s.reply(fmt.Sprintf("Chatroom '%s' does not exist.", cmd.Arg))
		}
		return s.reply(respServerError)
	}
	s.hub.JoinPresence(cmd.Arg, s.username)
	s.state = stateInChatroom
	s.chatroom = cmd.Arg
	return s.reply(fmt.Sprintf("Joined chatroom '%s'.", cmd.Arg))
}

func (s *Session) handleChatroomMessage(ctx context.Context, cmd protocol.Command) bool {
	line := fmt.Sprintf("%s: %s", s.username, cmd.Body)
	err := s.hub.Broadcast(ctx, cmd.Arg, s.username, line, cmd.Body)
	if err != nil {
		if errors.Is(err, service.ErrChatroomNotFound) {
			return s.reply(fmt.Sprintf("Chatroom '%s' does not exist.", cmd.Arg))
		}
		return s.reply(respServerError)
	}
	// 发送者不收到自己的消息，成功也不回执
	return false
}

func (s *Session) handleViewChatroomUsers(cmd protocol.Command) bool {
	// 只报告易失的在场集合，不查持久化成员表
	active := s.hub.PresenceList(cmd.Arg)
	if len(active) == 0 {
		return s.reply(fmt.Sprintf("No active users in chatroom '%s'.", cmd.Arg))
	}
	return s.reply("Active users: " + strings.Join(active, ", "))
}

func (s *Session) handleChatroomView(ctx context.Context) bool {
	names, err := s.services.Chatrooms.ListNames(ctx)
	if err != nil {
		return s.reply(respServerError)
	}
	return s.reply(strings.Join(names, ", "))
}

func (s *Session) handleExitChatroom(cmd protocol.Command) bool {
	s.hub.LeavePresence(cmd.Arg, s.username)
	if s.chatroom == cmd.Arg {
		s.state = stateAuthenticated
		s.chatroom = ""
	}
	return s.reply(fmt.Sprintf("Left chatroom '%s'.", cmd.Arg))
}

func (s *Session) handleSendPrivate(ctx context.Context, cmd protocol.Command) bool {
	_, err := s.services.Messaging.SendPrivate(ctx, s.username, cmd.Arg, cmd.Body)
	if err != nil {
		if errors.Is(err, service.ErrRecipientNotFound) {
			return s.reply(fmt.Sprintf("User '%s' does not exist.", cmd.Arg))
		}
		return s.reply(respServerError)
	}
	// 在线推送是可选优化，失败不影响已落库的私信
	delivered := s.hub.DeliverPrivate(cmd.Arg, fmt.Sprintf("[pm] %s: %s", s.username, cmd.Body))
	if !delivered {
		s.log.WithField("recipient", cmd.Arg).Debug("Recipient offline, message stored for later delivery")
	}
	return s.reply(fmt.Sprintf("Message sent to '%s'.", cmd.Arg))
}

func (s *Session) handleGetMessages(ctx context.Context) bool {
	inbox, err := s.services.Messaging.Inbox(ctx, s.username)
	if err != nil {
		return s.reply(respServerError)
	}
	// 收件箱以 JSON 数组编码，替代旧协议的 eval 风格列表
	payload, err := json.Marshal(inbox)
	if err != nil {
		s.log.WithError(err).Error("Failed to marshal inbox")
		return s.reply(respServerError)
	}
	return s.reply(string(payload))
}

func (s *Session) handleMarkRead(ctx context.Context, cmd protocol.Command) bool {
	id, err := strconv.ParseUint(cmd.Arg, 10, 32)
	if err != nil {
		return s.reply(respBadFormat)
	}
	err = s.services.Messaging.MarkRead(ctx, s.username, uint(id))
	if err != nil {
		if errors.Is(err, service.ErrMessageNotFound) {
			return s.reply(fmt.Sprintf("Message %d not found.", id))
		}
		return s.reply(respServerError)
	}
	return s.reply(fmt.Sprintf("Message %d marked as read.", id))
}

// --- 私有辅助 ---

// bind 将认证通过的用户名绑定到本会话和 Hub 注册表。
// 同一连接重新认证为另一个用户时，旧用户的聊天室上下文作废，
// Hub 同时清掉旧用户名的在场记录。
func (s *Session) bind(username string) {
	if s.username != "" && s.username != username {
		s.state = stateAuthenticated
		s.chatroom = ""
	}
	s.username = username
	if s.state == stateUnauthenticated {
		s.state = stateAuthenticated
	}
	s.hub.Bind(s.client, username)
	s.log = s.log.WithField("username", username)
}

// reply 发送一行响应。写端已死时返回 true 结束会话。
func (s *Session) reply(line string) bool {
	if err := s.client.Send(line); err != nil {
		s.log.WithError(err).Warn("Failed to queue response, ending session")
		return true
	}
	return false
}
