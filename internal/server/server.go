package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/hub"
)

const (
	// 单次响应写入允许的最长时间
	writeTimeout = 10 * time.Second

	// 单行命令允许的最大字节数
	maxLineSize = 64 * 1024

	// ShutdownNotice 是优雅关闭时发给所有客户端的通知。
	ShutdownNotice = "Server is shutting down..."
)

// Server 是 TCP 连接接收器：监听端点，为每条接受的连接
// 启动一个独立的 goroutine。接受循环绝不等待任何单连接操作。
type Server struct {
	addr     string
	hub      *hub.Hub
	services Services
	log      *logrus.Logger

	listener net.Listener

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	shutdown bool

	wg sync.WaitGroup
}

// NewServer 创建 TCP 聊天服务器。
func NewServer(addr string, h *hub.Hub, services Services, log *logrus.Logger) *Server {
	if h == nil {
		panic("Hub cannot be nil for Server")
	}
	if log == nil {
		panic("Logger cannot be nil for Server")
	}
	return &Server{
		addr:     addr,
		hub:      h,
		services: services,
		log:      log,
		conns:    make(map[net.Conn]struct{}),
	}
}

// ListenAndServe 启动接受循环，直到 Shutdown 关闭监听端点。
// 正常关闭时返回 nil。
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()

	s.log.Infof("Chat server listening on %s", s.addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Info("Chat listener closed")
				return nil
			}
			s.log.WithError(err).Error("Error accepting connection")
			continue
		}

		s.mu.Lock()
		if s.shutdown {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.log.WithField("remote_addr", conn.RemoteAddr().String()).Info("Connection accepted")
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn 驱动一条连接的完整生命周期：
// 读行 → 分发 → 清理。每条连接有自己的 goroutine，
// 慢对端只会拖慢自己。
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	transport := newNetTransport(conn)
	client := hub.NewClient(transport)
	client.Run()
	session := NewSession(s.hub, client, s.services)

	defer func() {
		session.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.log.WithField("remote_addr", transport.RemoteAddr()).Info("Connection closed")
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	for scanner.Scan() {
		if done := session.HandleLine(context.Background(), scanner.Text()); done {
			return
		}
	}
	// 读端出错或对端关闭：连接级故障，清理后不重试
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.WithFields(logrus.Fields{
			"remote_addr": transport.RemoteAddr(),
			"username":    session.Username(),
		}).WithError(err).Warn("Connection read error")
	}
}

// Shutdown 优雅地停止服务器：停止接受新连接，
// 通知并关闭所有活跃连接 (吞掉发送失败)，等待工作协程退出。
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.shutdown = true
	listener := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}

	// 已认证连接由 Hub 统一通知；这里兜底关闭包括未认证在内的全部连接
	s.hub.CloseAll(ShutdownNotice)
	for _, conn := range conns {
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("All connection workers drained")
	case <-ctx.Done():
		s.log.Warn("Shutdown timeout elapsed before all workers drained")
	}
}

// --- TCP transport ---

// netTransport 将 net.Conn 适配为 hub.Transport。
type netTransport struct {
	conn net.Conn

	mu sync.Mutex // 串行化写入，保证每行原子落到 socket
}

func newNetTransport(conn net.Conn) *netTransport {
	return &netTransport{conn: conn}
}

// WriteLine 以换行分帧写出一行响应，带写超时。
func (t *netTransport) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := t.conn.Write([]byte(line + "\n"))
	return err
}

func (t *netTransport) Close() error { return t.conn.Close() }

func (t *netTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
