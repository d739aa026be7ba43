package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/hub"
	"github.com/osagie8/tcp-chat/internal/service"
)

// ActivityHandler 周期性刷新有在场用户的聊天室的 last_active。
type ActivityHandler struct {
	hub             *hub.Hub
	chatroomService *service.ChatroomService
}

// NewActivityHandler 创建 ActivityHandler 实例
func NewActivityHandler(h *hub.Hub, chatroomService *service.ChatroomService) *ActivityHandler {
	if h == nil {
		panic("Hub cannot be nil for ActivityHandler")
	}
	if chatroomService == nil {
		panic("ChatroomService cannot be nil for ActivityHandler")
	}
	return &ActivityHandler{hub: h, chatroomService: chatroomService}
}

// ProcessTask 刷新所有当前有在场用户的聊天室
func (h *ActivityHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	names := h.hub.ActiveChatroomNames()
	for _, name := range names {
		if err := h.chatroomService.TouchLastActive(ctx, name); err != nil {
			// 单个聊天室失败不阻断其余刷新
			logrus.WithError(err).WithField("chatroom", name).Warn("Worker: failed to touch chatroom activity")
		}
	}
	if len(names) > 0 {
		logrus.WithField("count", len(names)).Debug("Worker: refreshed chatroom activity")
	}
	return nil
}
