package hub

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/service"
)

// Hub 维护活跃连接注册表、各聊天室的活跃在场集合，并负责广播分发。
//
// 两个集合语义不同且刻意分离：
//   - 注册表 (clients) 将活跃连接映射到已认证的用户名；
//   - 在场集合 (presence) 记录哪些用户名当前"处于"某个聊天室视图中，
//     纯内存、不持久化，连接断开或进程重启即丢失。
//
// 广播的目标是数据库里的持久化成员列表，而 /view_chatroom_users
// 只报告在场集合。这一不对称是协议语义，不是实现漏洞。
type Hub struct {
	mu sync.RWMutex
	// 连接注册表: 客户端 → 绑定的用户名 (认证后才有条目)
	clients map[*Client]string
	// 在场集合: 聊天室名 → 用户名集合
	presence map[string]map[string]struct{}

	// 注入的 Service，用于广播时的消息持久化
	chatroomService *service.ChatroomService
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(chatroomService *service.ChatroomService) *Hub {
	if chatroomService == nil {
		panic("ChatroomService cannot be nil for Hub")
	}
	return &Hub{
		clients:         make(map[*Client]string),
		presence:        make(map[string]map[string]struct{}),
		chatroomService: chatroomService,
	}
}

// Bind 将已认证的用户名绑定到连接并登记到注册表。
// 同一连接重新认证为另一个用户时，旧用户名的在场记录
// 随绑定一起清除 (除非它还有其他活跃连接)。
func (h *Hub) Bind(client *Client, username string) {
	if client == nil {
		logrus.Error("Hub: Attempted to bind a nil client")
		return
	}
	h.mu.Lock()
	previous, rebound := h.clients[client]
	h.clients[client] = username
	if rebound && previous != username {
		h.purgePresenceLocked(previous)
	}
	h.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"username":    username,
		"remote_addr": client.RemoteAddr(),
	}).Info("Client bound to Hub")
}

// Username 返回连接绑定的用户名，未认证连接返回 false。
func (h *Hub) Username(client *Client) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	username, ok := h.clients[client]
	return username, ok
}

// Remove 将连接从注册表移除，并把它的用户名从所有在场集合清除。
// 触发时机：显式 /exit、广播发送失败、连接级故障。
func (h *Hub) Remove(client *Client) {
	if client == nil {
		return
	}
	h.mu.Lock()
	username, ok := h.clients[client]
	delete(h.clients, client)
	if ok {
		h.purgePresenceLocked(username)
	}
	h.mu.Unlock()

	client.Close()
	if ok {
		logrus.WithField("username", username).Info("Client removed from Hub")
	}
}

// purgePresenceLocked 在用户名失去最后一条活跃连接时
// 把它从所有在场集合清除。调用方必须持有 h.mu。
func (h *Hub) purgePresenceLocked(username string) {
	for _, other := range h.clients {
		if other == username {
			// 还有其他活跃连接，在场记录保留
			return
		}
	}
	for chatroom, members := range h.presence {
		delete(members, username)
		if len(members) == 0 {
			// 空集合从内存里摘掉，持久化的聊天室行不受影响
			delete(h.presence, chatroom)
		}
	}
}

// JoinPresence 将用户名加入聊天室的在场集合。
func (h *Hub) JoinPresence(chatroom, username string) {
	h.mu.Lock()
	if _, ok := h.presence[chatroom]; !ok {
		h.presence[chatroom] = make(map[string]struct{})
	}
	h.presence[chatroom][username] = struct{}{}
	h.mu.Unlock()
}

// LeavePresence 将用户名从聊天室的在场集合移除。
// 持久化成员关系不受影响。
func (h *Hub) LeavePresence(chatroom, username string) {
	h.mu.Lock()
	if members, ok := h.presence[chatroom]; ok {
		delete(members, username)
		if len(members) == 0 {
			delete(h.presence, chatroom)
		}
	}
	h.mu.Unlock()
}

// PresenceList 返回聊天室在场集合的快照。
func (h *Hub) PresenceList(chatroom string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.presence[chatroom]
	if !ok {
		return nil
	}
	list := make([]string, 0, len(members))
	for username := range members {
		list = append(list, username)
	}
	return list
}

// Broadcast 持久化聊天室消息并分发给持久化成员。
// 流程：先由 Service 落库并解析成员列表，再对注册表做一致性快照，
// 向每个"用户名在成员列表里且不是发送者"的活跃连接投递。
// 投递是尽力而为：发送失败立即把该连接从注册表驱逐，不重试不确认。
func (h *Hub) Broadcast(ctx context.Context, chatroom, sender, line, text string) error {
	members, err := h.chatroomService.PostMessage(ctx, chatroom, sender, text)
	if err != nil {
		return err
	}

	memberSet := make(map[string]struct{}, len(members))
	for _, m := range members {
		memberSet[m] = struct{}{}
	}

	// 持有读锁期间只复制接收者列表，发送在锁外进行
	type target struct {
		client   *Client
		username string
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.clients))
	for client, username := range h.clients {
		if username == sender {
			continue
		}
		if _, ok := memberSet[username]; ok {
			targets = append(targets, target{client: client, username: username})
		}
	}
	h.mu.RUnlock()

	logCtx := logrus.WithFields(logrus.Fields{
		"chatroom":        chatroom,
		"sender":          sender,
		"recipient_count": len(targets),
	})
	logCtx.Debug("Broadcasting message to members")

	for _, t := range targets {
		if err := t.client.Send(line); err != nil {
			logCtx.WithField("recipient", t.username).
				Warn("Broadcast delivery failed, evicting client")
			h.Remove(t.client)
		}
	}
	return nil
}

// DeliverPrivate 尝试把一行私信推给接收者的某条活跃连接。
// 返回 false 表示接收者不在线或推送失败；
// 调用方不据此回滚已持久化的私信。
func (h *Hub) DeliverPrivate(recipient, line string) bool {
	h.mu.RLock()
	var target *Client
	for client, username := range h.clients {
		if username == recipient {
			target = client
			break
		}
	}
	h.mu.RUnlock()

	if target == nil {
		return false
	}
	if err := target.Send(line); err != nil {
		logrus.WithField("recipient", recipient).
			Warn("Private delivery failed, evicting client")
		h.Remove(target)
		return false
	}
	return true
}

// ClientCount 返回当前注册表中的活跃连接数。
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ActiveChatroomCount 返回当前有活跃在场用户的聊天室数量。
func (h *Hub) ActiveChatroomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence)
}

// ActiveChatroomNames 返回当前有活跃在场用户的聊天室名称快照。
func (h *Hub) ActiveChatroomNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.presence))
	for name := range h.presence {
		names = append(names, name)
	}
	return names
}

// CloseAll 向所有活跃连接发送关闭通知并断开它们。
// 由优雅关闭流程调用，发送失败被吞掉。
func (h *Hub) CloseAll(notice string) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]string)
	h.presence = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		_ = client.Send(notice)
		client.Close()
	}
	logrus.WithField("count", len(clients)).Info("All clients disconnected")
}
