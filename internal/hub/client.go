package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// 写端常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// 每个客户端发送队列的缓冲区大小
	sendBufferSize = 256
)

// ErrClientClosed 表示向已关闭客户端的发送队列写入。
var ErrClientClosed = errors.New("hub: client closed")

// Transport 抽象了一条客户端连接的写端。
// TCP 连接和 WebSocket 连接各有一个实现。
type Transport interface {
	// WriteLine 将一行响应写给对端，由实现负责写超时。
	WriteLine(line string) error
	// Close 关闭底层连接。
	Close() error
	// RemoteAddr 返回对端地址，用于日志。
	RemoteAddr() string
}

// Client 代表一条连接到 Hub 的客户端连接。
// 所有出站写入都经过带缓冲的 send 通道和 WritePump，
// 慢对端最多拖慢自己的 WritePump，不会阻塞广播或其他连接。
type Client struct {
	transport Transport
	send      chan string // 出站行的缓冲通道

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient 创建一个新的 Client 实例
func NewClient(transport Transport) *Client {
	if transport == nil {
		panic("transport cannot be nil for Client")
	}
	return &Client{
		transport: transport,
		send:      make(chan string, sendBufferSize),
		done:      make(chan struct{}),
	}
}

// Run 启动客户端的写 goroutine。
func (c *Client) Run() {
	go c.WritePump()
}

// Send 将一行响应放入发送队列 (非阻塞)。
// 队列已满或客户端已关闭时返回错误，调用方据此决定是否驱逐。
func (c *Client) Send(line string) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- line:
		return nil
	default:
		logrus.WithField("remote_addr", c.transport.RemoteAddr()).
			Warn("Client send queue full, dropping message")
		return ErrClientClosed
	}
}

// Close 关闭客户端：停止 WritePump 并关闭底层连接。
// 可以安全地多次调用。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.transport.Close()
	})
}

// RemoteAddr 返回对端地址。
func (c *Client) RemoteAddr() string { return c.transport.RemoteAddr() }

// WritePump 将消息从 send 通道泵送到底层连接。
// 它在自己的 goroutine 中运行，写失败即关闭客户端。
func (c *Client) WritePump() {
	logCtx := logrus.WithField("remote_addr", c.transport.RemoteAddr())
	defer func() {
		c.Close()
		logCtx.Debug("WritePump exited")
	}()

	for {
		select {
		case line := <-c.send:
			if err := c.transport.WriteLine(line); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to client")
				return
			}
		case <-c.done:
			// 退出前尽量排空残留的出站消息
			for {
				select {
				case line := <-c.send:
					if err := c.transport.WriteLine(line); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
