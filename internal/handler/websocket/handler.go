package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/hub"
	"github.com/osagie8/tcp-chat/internal/server"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// WebSocketHandler 将 WebSocket 连接桥接进与 TCP 相同的命令分发器。
// 一个文本帧等于一行命令，会话语义与 TCP 完全一致：
// 新连接必须先 /register 或 /login。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	services server.Services
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub, services server.Services) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 允许所有来源连接 (生产环境应配置具体的允许来源)
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		hub:      h,
		services: services,
	}
}

// HandleConnection 处理 WebSocket 连接请求。
// URL: GET /ws
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 方法会自动发送 HTTP 错误响应，这里只记录日志
		logrus.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx := logrus.WithField("remote_addr", conn.RemoteAddr().String())
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	transport := newWSTransport(conn, pingPeriod)
	client := hub.NewClient(transport)
	client.Run()
	session := server.NewSession(h.hub, client, h.services)

	// 读循环在 handler 的 goroutine 里运行；
	// HandleConnection 返回即连接结束。
	defer session.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Ignoring non-text message type: %d", messageType)
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if done := session.HandleLine(context.Background(), string(message)); done {
			return
		}
	}
}

// --- WebSocket transport ---

// wsTransport 将 *websocket.Conn 适配为 hub.Transport。
// 一行响应对应一个文本帧。写锁串行化数据帧和 Ping 帧；
// Ping 循环让只收广播的空闲连接也能滚动对端的读超时。
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn, pingInterval time.Duration) *wsTransport {
	t := &wsTransport{
		conn: conn,
		done: make(chan struct{}),
	}
	go t.pingLoop(pingInterval)
	return t
}

// pingLoop 周期性发送 Ping 帧，直到传输层关闭。
// 对端的 Pong 由读循环的 PongHandler 消化并刷新读超时。
func (t *wsTransport) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.mu.Unlock()
			if err != nil {
				// 写端已死，读循环随之退出并清理会话
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *wsTransport) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
