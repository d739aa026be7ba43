package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/hub"
	"github.com/osagie8/tcp-chat/internal/service"
)

// AdminHandler 封装了运维管理接口：
// 健康检查、运行统计、级联删除用户、请求优雅关闭。
// 这组接口取代了旧实现里跑在终端上的服务器管理菜单。
type AdminHandler struct {
	hub             *hub.Hub
	chatroomService *service.ChatroomService
	requestShutdown func()
}

// NewAdminHandler 创建 AdminHandler 实例。
// requestShutdown 在收到关闭请求时被调用一次，由 bootstrap 注入。
func NewAdminHandler(h *hub.Hub, chatroomService *service.ChatroomService, requestShutdown func()) *AdminHandler {
	if h == nil {
		panic("Hub cannot be nil for AdminHandler")
	}
	if chatroomService == nil {
		panic("ChatroomService cannot be nil for AdminHandler")
	}
	if requestShutdown == nil {
		panic("requestShutdown cannot be nil for AdminHandler")
	}
	return &AdminHandler{
		hub:             h,
		chatroomService: chatroomService,
		requestShutdown: requestShutdown,
	}
}

// Health 处理健康检查请求。
// GET /healthz
func (h *AdminHandler) Health(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{"status": "ok"})
}

// Stats 返回运行时统计。
// GET /api/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{
		"active_connections": h.hub.ClientCount(),
		"active_chatrooms":   h.hub.ActiveChatroomCount(),
	})
}

// ChatroomStats 返回单个聊天室的持久化统计。
// GET /api/chatrooms/:name
func (h *AdminHandler) ChatroomStats(c *gin.Context) {
	name := c.Param("name")
	stats, err := h.chatroomService.Stats(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrChatroomNotFound) {
			ErrorResponse(c, http.StatusNotFound, "chatroom not found")
			return
		}
		logrus.WithError(err).WithField("chatroom", name).Error("Admin: chatroom stats failed")
		ErrorResponse(c, http.StatusInternalServerError, "chatroom stats failed")
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"name":          stats.Name,
		"message_count": stats.MessageCount,
		"member_count":  stats.MemberCount,
	})
}

// RemoveUser 级联删除一个用户及其全部关联数据。
// DELETE /api/users/:username
func (h *AdminHandler) RemoveUser(c *gin.Context) {
	username := c.Param("username")
	err := h.chatroomService.RemoveUser(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			ErrorResponse(c, http.StatusNotFound, "user not found")
			return
		}
		logrus.WithError(err).WithField("username", username).Error("Admin: user removal failed")
		ErrorResponse(c, http.StatusInternalServerError, "user removal failed")
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "user removed"})
}

// Shutdown 请求服务器优雅关闭。
// POST /api/shutdown
func (h *AdminHandler) Shutdown(c *gin.Context) {
	logrus.Info("Admin: graceful shutdown requested")
	SuccessResponse(c, http.StatusAccepted, gin.H{"message": "shutting down"})
	// 响应写出后再触发，避免客户端收不到确认
	go h.requestShutdown()
}
